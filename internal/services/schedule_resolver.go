package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	scheduleDateLayout  = "2006-01-02"
	scheduleMonthLayout = "2006-01"
	scheduleSlotLayout  = "15:04"
	scheduleScanDays    = 370
	// AppointmentSlotDuration is the length of an at-home visit.
	AppointmentSlotDuration = 45 * time.Minute
)

// Slot starts in minutes after midnight; every slot must end by 17:00.
var (
	scheduleSlotMinutes   = []int{9 * 60, 10*60 + 15, 11*60 + 30, 13 * 60, 14*60 + 15, 15*60 + 30}
	scheduleWindowEndMins = 17 * 60
)

var (
	// ErrInvalidScheduleDate indicates a date that is not YYYY-MM-DD.
	ErrInvalidScheduleDate = errors.New("schedule: invalid date")
	// ErrInvalidScheduleMonth indicates a month that is not YYYY-MM.
	ErrInvalidScheduleMonth = errors.New("schedule: invalid month")
	// ErrDayNotSelectable indicates a day outside the bookable Saturdays.
	ErrDayNotSelectable = errors.New("schedule: day is not selectable")
	// ErrSlotNotSelectable indicates a slot that is past or unknown.
	ErrSlotNotSelectable = errors.New("schedule: slot is not selectable")
)

// SlotView is one bookable time on a day.
type SlotView struct {
	Time       string `json:"time"`
	End        string `json:"end"`
	Selectable bool   `json:"selectable"`
}

// DayView is one calendar day of a month view.
type DayView struct {
	Date       string     `json:"date"`
	Weekday    int        `json:"weekday"`
	Saturday   bool       `json:"saturday"`
	Blocked    bool       `json:"blocked"`
	Past       bool       `json:"past"`
	Selectable bool       `json:"selectable"`
	Slots      []SlotView `json:"slots,omitempty"`
}

// MonthView lists the days of a month with their availability.
type MonthView struct {
	Month     string    `json:"month"`
	Forbidden bool      `json:"forbidden"`
	Days      []DayView `json:"days"`
}

// ScheduleResolver computes bookable Saturdays and slots in the shop time zone.
type ScheduleResolver struct {
	loc     *time.Location
	blocked map[string]struct{}
	clock   func() time.Time
}

// NewScheduleResolver builds a resolver; blocked holds YYYY-MM-DD keys.
func NewScheduleResolver(loc *time.Location, blocked []string, clock func() time.Time) *ScheduleResolver {
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = time.Now
	}
	set := make(map[string]struct{}, len(blocked))
	for _, day := range blocked {
		if day = strings.TrimSpace(day); day != "" {
			set[day] = struct{}{}
		}
	}
	return &ScheduleResolver{loc: loc, blocked: set, clock: clock}
}

// Location returns the shop time zone.
func (r *ScheduleResolver) Location() *time.Location { return r.loc }

func (r *ScheduleResolver) now() time.Time { return r.clock().In(r.loc) }

func (r *ScheduleResolver) today() time.Time {
	now := r.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.loc)
}

func (r *ScheduleResolver) parseDay(day string) (time.Time, error) {
	t, err := time.ParseInLocation(scheduleDateLayout, strings.TrimSpace(day), r.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidScheduleDate, day)
	}
	return t, nil
}

// IsBlocked reports whether day is a closed date.
func (r *ScheduleResolver) IsBlocked(day string) bool {
	_, ok := r.blocked[day]
	return ok
}

// IsSelectableDay reports whether day is a future-or-today, unblocked Saturday of viewMonth.
// An empty viewMonth skips the month check.
func (r *ScheduleResolver) IsSelectableDay(day, viewMonth string, forbidden bool) bool {
	if forbidden {
		return false
	}
	date, err := r.parseDay(day)
	if err != nil {
		return false
	}
	if date.Weekday() != time.Saturday {
		return false
	}
	if viewMonth != "" && date.Format(scheduleMonthLayout) != viewMonth {
		return false
	}
	if date.Before(r.today()) {
		return false
	}
	return !r.IsBlocked(day)
}

// IsSelectableSlot reports whether slot is a known start on day that ends inside the window and has not started.
func (r *ScheduleResolver) IsSelectableSlot(day, slot string) bool {
	date, err := r.parseDay(day)
	if err != nil {
		return false
	}
	minutes, ok := slotMinutes(slot)
	if !ok || minutes+int(AppointmentSlotDuration/time.Minute) > scheduleWindowEndMins {
		return false
	}
	start := date.Add(time.Duration(minutes) * time.Minute)
	return !start.Before(r.now())
}

func slotMinutes(slot string) (int, bool) {
	t, err := time.Parse(scheduleSlotLayout, strings.TrimSpace(slot))
	if err != nil {
		return 0, false
	}
	minutes := t.Hour()*60 + t.Minute()
	for _, known := range scheduleSlotMinutes {
		if known == minutes {
			return minutes, true
		}
	}
	return 0, false
}

func formatSlot(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Slots lists every slot of day with its selectability.
func (r *ScheduleResolver) Slots(day string) []SlotView {
	out := make([]SlotView, 0, len(scheduleSlotMinutes))
	for _, minutes := range scheduleSlotMinutes {
		slot := formatSlot(minutes)
		out = append(out, SlotView{
			Time:       slot,
			End:        formatSlot(minutes + int(AppointmentSlotDuration/time.Minute)),
			Selectable: r.IsSelectableSlot(day, slot),
		})
	}
	return out
}

// FirstSelectableSlot returns the earliest slot still bookable on day.
func (r *ScheduleResolver) FirstSelectableSlot(day string) (string, bool) {
	for _, minutes := range scheduleSlotMinutes {
		slot := formatSlot(minutes)
		if r.IsSelectableSlot(day, slot) {
			return slot, true
		}
	}
	return "", false
}

// AutoSelectNextSaturday picks the first open Saturday from today with its first bookable slot.
func (r *ScheduleResolver) AutoSelectNextSaturday(forbidden bool) (Appointment, bool) {
	if forbidden {
		return Appointment{}, false
	}
	day := r.today()
	for i := 0; i < scheduleScanDays; i++ {
		candidate := day.AddDate(0, 0, i)
		if candidate.Weekday() != time.Saturday {
			continue
		}
		key := candidate.Format(scheduleDateLayout)
		if r.IsBlocked(key) {
			continue
		}
		if slot, ok := r.FirstSelectableSlot(key); ok {
			return Appointment{Date: key, Slot: slot}, true
		}
	}
	return Appointment{}, false
}

// SelectDay moves the appointment to day, choosing its first bookable slot unless one was already picked on that day.
func (r *ScheduleResolver) SelectDay(day string, current Appointment, forbidden bool) (Appointment, error) {
	if !r.IsSelectableDay(day, "", forbidden) {
		return current, ErrDayNotSelectable
	}
	if current.Date == day && current.Slot != "" && r.IsSelectableSlot(day, current.Slot) {
		return current, nil
	}
	slot, ok := r.FirstSelectableSlot(day)
	if !ok {
		return current, ErrSlotNotSelectable
	}
	return Appointment{Date: day, Slot: slot}, nil
}

// SelectSlot sets an explicit slot on day.
func (r *ScheduleResolver) SelectSlot(day, slot string, forbidden bool) (Appointment, error) {
	if !r.IsSelectableDay(day, "", forbidden) {
		return Appointment{}, ErrDayNotSelectable
	}
	if !r.IsSelectableSlot(day, slot) {
		return Appointment{}, ErrSlotNotSelectable
	}
	minutes, _ := slotMinutes(slot)
	return Appointment{Date: day, Slot: formatSlot(minutes)}, nil
}

// MonthView returns every day of month (YYYY-MM); an empty month means the current one.
func (r *ScheduleResolver) MonthView(month string, forbidden bool) (MonthView, error) {
	if strings.TrimSpace(month) == "" {
		month = r.now().Format(scheduleMonthLayout)
	}
	first, err := time.ParseInLocation(scheduleMonthLayout, strings.TrimSpace(month), r.loc)
	if err != nil {
		return MonthView{}, fmt.Errorf("%w: %q", ErrInvalidScheduleMonth, month)
	}
	month = first.Format(scheduleMonthLayout)
	today := r.today()
	view := MonthView{Month: month, Forbidden: forbidden}
	for d := first; d.Month() == first.Month(); d = d.AddDate(0, 0, 1) {
		key := d.Format(scheduleDateLayout)
		day := DayView{
			Date:     key,
			Weekday:  int(d.Weekday()),
			Saturday: d.Weekday() == time.Saturday,
			Blocked:  r.IsBlocked(key),
			Past:     d.Before(today),
		}
		day.Selectable = r.IsSelectableDay(key, month, forbidden)
		if day.Selectable {
			day.Slots = r.Slots(key)
		}
		view.Days = append(view.Days, day)
	}
	return view, nil
}
