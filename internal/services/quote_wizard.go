package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/microcosm-cc/bluemonday"

	"github.com/recophone/api/internal/domain"
)

// WizardStep names a step of the quote wizard.
type WizardStep string

const (
	StepModel    WizardStep = "model"
	StepRepairs  WizardStep = "repairs"
	StepInfo     WizardStep = "info"
	StepSchedule WizardStep = "schedule"
	StepResume   WizardStep = "resume"
)

// TravelStatus is the state of the at-home travel resolution.
type TravelStatus string

const (
	TravelIdle    TravelStatus = "idle"
	TravelPending TravelStatus = "pending"
	TravelReady   TravelStatus = "ready"
	TravelFailed  TravelStatus = "failed"
)

// FinalizeStatus is the state of the finalization dialog.
type FinalizeStatus string

const (
	FinalizeIdle       FinalizeStatus = "idle"
	FinalizeConfirming FinalizeStatus = "confirming"
	FinalizeSubmitting FinalizeStatus = "submitting"
)

var (
	// ErrStepInvalid indicates a gated transition whose requirements are not met.
	ErrStepInvalid = errors.New("quote wizard: step requirements not met")
	// ErrStepOutOfRange indicates a jump to a step after the current one.
	ErrStepOutOfRange = errors.New("quote wizard: step out of range")
	// ErrUnknownModel indicates a category/model pair absent from the catalog.
	ErrUnknownModel = errors.New("quote wizard: unknown model")
	// ErrUnknownDevice indicates a device id not present in the wizard.
	ErrUnknownDevice = errors.New("quote wizard: unknown device")
	// ErrUnknownRepair indicates a repair label not offered for the device.
	ErrUnknownRepair = errors.New("quote wizard: unknown repair")
	// ErrItemNotSelected indicates an update to a repair that is not selected.
	ErrItemNotSelected = errors.New("quote wizard: repair not selected")
	// ErrInvalidQuantity indicates a quantity below one.
	ErrInvalidQuantity = errors.New("quote wizard: quantity must be at least 1")
	// ErrCGVRefused indicates CGV acceptance while travel is unresolved or at-home is forbidden.
	ErrCGVRefused = errors.New("quote wizard: terms cannot be accepted yet")
	// ErrAtHomeRequired indicates an appointment change without at-home service.
	ErrAtHomeRequired = errors.New("quote wizard: appointment requires at-home service")
	// ErrNothingSelected indicates finalization without any repair.
	ErrNothingSelected = errors.New("quote wizard: no repair selected")
	// ErrFinalizeNotRequested indicates a confirmation outside the confirmation state.
	ErrFinalizeNotRequested = errors.New("quote wizard: finalization was not requested")
	// ErrFinalizeInProgress indicates a second confirmation while one is running.
	ErrFinalizeInProgress = errors.New("quote wizard: finalization already in progress")
)

// StepValidationError lists why a step cannot be left.
type StepValidationError struct {
	Step    WizardStep
	Reasons []string
}

func (e *StepValidationError) Error() string {
	return fmt.Sprintf("quote wizard: step %s invalid: %s", e.Step, strings.Join(e.Reasons, "; "))
}

func (e *StepValidationError) Unwrap() error { return ErrStepInvalid }

var (
	emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)
	notesPolicy  = bluemonday.StrictPolicy()
)

// TravelScheduler starts debounced travel resolutions. Implemented by TravelFeeTracker.
type TravelScheduler interface {
	Schedule(address Address) uint64
	Cancel()
}

// ClientInfoPatch carries the client fields to change; nil fields are left untouched.
type ClientInfoPatch struct {
	FirstName        *string
	LastName         *string
	Email            *string
	Phone            *string
	Notes            *string
	PayInTwo         *bool
	SignatureDataURL *string
	ADomicile        *bool
	Address          *Address
	CGVAccepted      *bool
}

// StepView describes one step of the current sequence.
type StepView struct {
	Step    WizardStep
	Valid   bool
	Reasons []string
}

// FinalizeView is the state of the finalization dialog.
type FinalizeView struct {
	Status    FinalizeStatus
	Preview   *DocumentBundle
	LastError string
}

// WizardView is a read-only snapshot of a wizard.
type WizardView struct {
	Steps        []StepView
	CurrentIndex int
	CurrentStep  WizardStep
	State        WizardState
	Totals       QuoteTotals
	Eligibility  Eligibility
	TravelStatus TravelStatus
	TravelError  string
	Finalize     FinalizeView
}

// QuoteWizardDeps bundles the wizard collaborators.
type QuoteWizardDeps struct {
	Catalog   Catalog
	Schedule  *ScheduleResolver
	Travel    TravelScheduler
	Finalizer Finalizer
	Clock     func() time.Time
}

// QuoteWizard is the state machine behind one quote session. It is not safe for concurrent use.
type QuoteWizard struct {
	catalog   Catalog
	schedule  *ScheduleResolver
	travel    TravelScheduler
	finalizer Finalizer
	pricing   PricingResolver
	clock     func() time.Time

	state        WizardState
	nextDeviceID int
	travelSeq    uint64
	travelStatus TravelStatus
	travelError  string
	finalize     FinalizeView
}

// NewQuoteWizard returns a wizard in its initial state.
func NewQuoteWizard(deps QuoteWizardDeps) (*QuoteWizard, error) {
	if deps.Schedule == nil {
		return nil, errors.New("quote wizard: schedule resolver is required")
	}
	if deps.Finalizer == nil {
		return nil, errors.New("quote wizard: finalizer is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	w := &QuoteWizard{
		catalog:   deps.Catalog,
		schedule:  deps.Schedule,
		travel:    deps.Travel,
		finalizer: deps.Finalizer,
		pricing:   NewPricingResolver(),
		clock:     clock,
	}
	w.resetState()
	return w, nil
}

func (w *QuoteWizard) resetState() {
	w.state = WizardState{}
	w.nextDeviceID = 1
	w.travelSeq = 0
	w.travelStatus = TravelIdle
	w.travelError = ""
	w.finalize = FinalizeView{Status: FinalizeIdle}
}

// SetTravel attaches the travel scheduler once the owning session exists.
func (w *QuoteWizard) SetTravel(travel TravelScheduler) { w.travel = travel }

// Steps returns the step sequence: schedule is present only for at-home visits.
func (w *QuoteWizard) Steps() []WizardStep {
	if w.state.ClientInfo.ADomicile {
		return []WizardStep{StepModel, StepRepairs, StepInfo, StepSchedule, StepResume}
	}
	return []WizardStep{StepModel, StepRepairs, StepInfo, StepResume}
}

// CurrentStep returns the step at the current index.
func (w *QuoteWizard) CurrentStep() WizardStep {
	steps := w.Steps()
	return steps[w.state.CurrentStep]
}

func (w *QuoteWizard) clampStep() {
	last := len(w.Steps()) - 1
	if w.state.CurrentStep > last {
		w.state.CurrentStep = last
	}
	if w.state.CurrentStep < 0 {
		w.state.CurrentStep = 0
	}
}

// State returns a deep copy of the wizard state.
func (w *QuoteWizard) State() WizardState {
	return cloneWizardState(w.state)
}

// Eligibility evaluates the at-home guard for the current selection.
func (w *QuoteWizard) Eligibility() Eligibility {
	return EvaluateEligibility(w.state.Devices)
}

func (w *QuoteWizard) forbidden() bool {
	return w.state.ClientInfo.ADomicile && w.Eligibility().Forbidden
}

// AddDevice adds a catalog model as a new device and focuses it when nothing is focused.
func (w *QuoteWizard) AddDevice(category, model string) (Device, error) {
	cat, m, ok := w.catalog.FindModel(strings.TrimSpace(category), strings.TrimSpace(model))
	if !ok {
		return Device{}, fmt.Errorf("%w: %s / %s", ErrUnknownModel, category, model)
	}
	device := Device{ID: w.nextDeviceID, Category: cat.Name, Brand: cat.Brand, Model: m.Name}
	w.nextDeviceID++
	w.state.Devices = append(w.state.Devices, device)
	if w.state.ActiveDeviceID == 0 {
		w.state.ActiveDeviceID = device.ID
	}
	return device, nil
}

// RemoveDevice drops a device; the first remaining device becomes active if the removed one was.
func (w *QuoteWizard) RemoveDevice(id int) error {
	idx := w.deviceIndex(id)
	if idx < 0 {
		return ErrUnknownDevice
	}
	w.state.Devices = append(w.state.Devices[:idx], w.state.Devices[idx+1:]...)
	if w.state.ActiveDeviceID == id {
		w.state.ActiveDeviceID = 0
		if len(w.state.Devices) > 0 {
			w.state.ActiveDeviceID = w.state.Devices[0].ID
		}
	}
	w.afterSelectionChange()
	return nil
}

// SetActiveDevice focuses a device.
func (w *QuoteWizard) SetActiveDevice(id int) error {
	if w.deviceIndex(id) < 0 {
		return ErrUnknownDevice
	}
	w.state.ActiveDeviceID = id
	return nil
}

func (w *QuoteWizard) deviceIndex(id int) int {
	for i, d := range w.state.Devices {
		if d.ID == id {
			return i
		}
	}
	return -1
}

func (w *QuoteWizard) repairOption(device Device, label string) (RepairOption, bool) {
	_, model, ok := w.catalog.FindModel(device.Category, device.Model)
	if !ok {
		return RepairOption{}, false
	}
	for _, opt := range w.catalog.OptionsFor(model) {
		if opt.Label == label {
			return opt, true
		}
	}
	return RepairOption{}, false
}

// ToggleItem selects a repair for a device, or removes it when already selected.
// It reports whether the repair is selected afterwards.
func (w *QuoteWizard) ToggleItem(deviceID int, label string, color *string) (bool, error) {
	idx := w.deviceIndex(deviceID)
	if idx < 0 {
		return false, ErrUnknownDevice
	}
	device := &w.state.Devices[idx]
	for i, item := range device.Items {
		if item.Key == label {
			device.Items = append(device.Items[:i], device.Items[i+1:]...)
			w.afterSelectionChange()
			return false, nil
		}
	}
	opt, ok := w.repairOption(*device, label)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownRepair, label)
	}
	item := SelectedItem{Key: opt.Label, Label: opt.Label, Price: opt.Price, Qty: 1}
	if opt.RequiresColor != nil {
		item.Meta = &domain.ItemMeta{Color: normalizeColor(color), PartKind: opt.RequiresColor.Part}
	}
	device.Items = append(device.Items, item)
	w.afterSelectionChange()
	return true, nil
}

func normalizeColor(color *string) *string {
	if color == nil {
		return nil
	}
	c := strings.TrimSpace(*color)
	if c == "" {
		return nil
	}
	return &c
}

func (w *QuoteWizard) selectedItem(deviceID int, label string) (*SelectedItem, error) {
	idx := w.deviceIndex(deviceID)
	if idx < 0 {
		return nil, ErrUnknownDevice
	}
	items := w.state.Devices[idx].Items
	for i := range items {
		if items[i].Key == label {
			return &items[i], nil
		}
	}
	return nil, ErrItemNotSelected
}

// SetItemColor records the colour of a housing repair; nil means "don't know".
func (w *QuoteWizard) SetItemColor(deviceID int, label string, color *string) error {
	item, err := w.selectedItem(deviceID, label)
	if err != nil {
		return err
	}
	if item.Meta == nil {
		return fmt.Errorf("%w: %s does not take a colour", ErrUnknownRepair, label)
	}
	item.Meta.Color = normalizeColor(color)
	return nil
}

// SetItemQty changes the quantity of a selected repair.
func (w *QuoteWizard) SetItemQty(deviceID int, label string, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	item, err := w.selectedItem(deviceID, label)
	if err != nil {
		return err
	}
	item.Qty = qty
	return nil
}

// A selection change can make at-home forbidden; accepted terms are then withdrawn.
func (w *QuoteWizard) afterSelectionChange() {
	if w.forbidden() {
		w.state.ClientInfo.CGVAccepted = false
	}
	w.clampStep()
}

// UpdateClientInfo applies a patch to the client step.
// A refused CGV acceptance leaves the state untouched.
func (w *QuoteWizard) UpdateClientInfo(patch ClientInfoPatch) error {
	info := &w.state.ClientInfo
	if patch.CGVAccepted != nil && *patch.CGVAccepted && !w.cgvAcceptable(patch) {
		return ErrCGVRefused
	}
	if patch.FirstName != nil {
		info.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		info.LastName = *patch.LastName
	}
	if patch.Email != nil {
		info.Email = strings.TrimSpace(*patch.Email)
	}
	if patch.Phone != nil {
		info.Phone = *patch.Phone
	}
	if patch.Notes != nil {
		info.Notes = html.UnescapeString(notesPolicy.Sanitize(*patch.Notes))
	}
	if patch.PayInTwo != nil {
		info.PayInTwo = *patch.PayInTwo
	}
	if patch.SignatureDataURL != nil {
		info.SignatureDataURL = strings.TrimSpace(*patch.SignatureDataURL)
	}
	if patch.ADomicile != nil && *patch.ADomicile != info.ADomicile {
		if *patch.ADomicile {
			info.ADomicile = true
		} else {
			w.leaveAtHome()
		}
	}
	if patch.Address != nil && info.ADomicile {
		w.changeAddress(*patch.Address)
	}
	if patch.CGVAccepted != nil {
		info.CGVAccepted = *patch.CGVAccepted
	}
	w.clampStep()
	return nil
}

// cgvAcceptable reports whether terms could be accepted once patch is applied:
// at-home on, travel priced for an unchanged address, and no forbidding repair.
func (w *QuoteWizard) cgvAcceptable(patch ClientInfoPatch) bool {
	info := w.state.ClientInfo
	atHome := info.ADomicile
	if patch.ADomicile != nil {
		atHome = *patch.ADomicile
	}
	if !atHome || !info.ADomicile || w.forbidden() {
		return false
	}
	if patch.Address != nil && (info.Address == nil || *info.Address != *patch.Address) {
		return false
	}
	return info.DistanceKm != nil && info.TravelFee != nil
}

func (w *QuoteWizard) leaveAtHome() {
	info := &w.state.ClientInfo
	info.ADomicile = false
	info.Address = nil
	info.CGVAccepted = false
	info.DistanceKm = nil
	info.TravelFee = nil
	w.state.Appointment = Appointment{}
	w.cancelTravel()
}

func (w *QuoteWizard) changeAddress(address Address) {
	info := &w.state.ClientInfo
	if info.Address != nil && *info.Address == address {
		return
	}
	a := address
	info.Address = &a
	info.CGVAccepted = false
	info.DistanceKm = nil
	info.TravelFee = nil
	if !address.Complete() || w.travel == nil {
		w.cancelTravel()
		return
	}
	w.travelSeq = w.travel.Schedule(address)
	w.travelStatus = TravelPending
	w.travelError = ""
}

func (w *QuoteWizard) cancelTravel() {
	if w.travel != nil {
		w.travel.Cancel()
	}
	w.travelSeq = 0
	w.travelStatus = TravelIdle
	w.travelError = ""
}

// ApplyTravel stores a travel resolution if it answers the latest request.
func (w *QuoteWizard) ApplyTravel(outcome TravelOutcome) bool {
	if outcome.Seq == 0 || outcome.Seq != w.travelSeq || !w.state.ClientInfo.ADomicile {
		return false
	}
	info := &w.state.ClientInfo
	if outcome.Err != nil {
		info.DistanceKm = nil
		info.TravelFee = nil
		w.travelStatus = TravelFailed
		w.travelError = outcome.Err.Error()
		return true
	}
	distance := outcome.Quote.DistanceKm
	fee := outcome.Quote.Fee
	info.DistanceKm = &distance
	info.TravelFee = &fee
	w.travelStatus = TravelReady
	w.travelError = ""
	return true
}

// SelectAppointment chooses a day and, optionally, a slot. Without a slot the first bookable one is taken.
func (w *QuoteWizard) SelectAppointment(day, slot string) error {
	if !w.state.ClientInfo.ADomicile {
		return ErrAtHomeRequired
	}
	var (
		appt Appointment
		err  error
	)
	if strings.TrimSpace(slot) == "" {
		appt, err = w.schedule.SelectDay(day, w.state.Appointment, w.forbidden())
	} else {
		appt, err = w.schedule.SelectSlot(day, slot, w.forbidden())
	}
	if err != nil {
		return err
	}
	w.state.Appointment = appt
	return nil
}

// MonthView returns the schedule calendar for month.
func (w *QuoteWizard) MonthView(month string) (MonthView, error) {
	return w.schedule.MonthView(month, w.forbidden())
}

// StepIssues lists what blocks leaving step.
func (w *QuoteWizard) StepIssues(step WizardStep) []string {
	var reasons []string
	switch step {
	case StepModel:
		if len(w.state.Devices) == 0 {
			reasons = append(reasons, "Ajoutez au moins un appareil.")
		}
	case StepRepairs:
		if countItems(w.state.Devices) == 0 {
			reasons = append(reasons, "Sélectionnez au moins une réparation.")
		}
	case StepInfo:
		reasons = w.infoIssues()
	case StepSchedule:
		if !w.state.Appointment.Complete() {
			reasons = append(reasons, "Choisissez une date et un créneau.")
		}
		if w.forbidden() {
			reasons = append(reasons, AtHomeForbiddenReason)
		}
	}
	return reasons
}

func (w *QuoteWizard) infoIssues() []string {
	info := w.state.ClientInfo
	var reasons []string
	if strings.TrimSpace(info.FirstName) == "" {
		reasons = append(reasons, "Le prénom est requis.")
	}
	if strings.TrimSpace(info.LastName) == "" {
		reasons = append(reasons, "Le nom est requis.")
	}
	if !emailPattern.MatchString(info.Email) {
		reasons = append(reasons, "L'adresse e-mail est invalide.")
	}
	if n := countDigits(info.Phone); n < 9 || n > 12 {
		reasons = append(reasons, "Le numéro de téléphone est invalide.")
	}
	if info.PayInTwo && strings.TrimSpace(info.SignatureDataURL) == "" {
		reasons = append(reasons, "La signature est requise pour le paiement en deux fois.")
	}
	if info.ADomicile {
		if info.Address == nil || !info.Address.Complete() {
			reasons = append(reasons, "L'adresse est incomplète.")
		}
		if info.DistanceKm == nil || info.TravelFee == nil {
			reasons = append(reasons, "Les frais de déplacement ne sont pas encore calculés.")
		}
		if !info.CGVAccepted {
			reasons = append(reasons, "Les conditions générales doivent être acceptées.")
		}
		if w.Eligibility().Forbidden {
			reasons = append(reasons, AtHomeForbiddenReason)
		}
	}
	return reasons
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

func countItems(devices []Device) int {
	n := 0
	for _, d := range devices {
		n += len(d.Items)
	}
	return n
}

// Next advances one step when the current step is valid.
func (w *QuoteWizard) Next() error {
	steps := w.Steps()
	current := steps[w.state.CurrentStep]
	if current == StepResume {
		return ErrStepOutOfRange
	}
	if reasons := w.StepIssues(current); len(reasons) > 0 {
		return &StepValidationError{Step: current, Reasons: reasons}
	}
	w.state.CurrentStep++
	if steps[w.state.CurrentStep] == StepSchedule && !w.state.Appointment.Complete() {
		if appt, ok := w.schedule.AutoSelectNextSaturday(w.forbidden()); ok {
			w.state.Appointment = appt
		}
	}
	return nil
}

// Back moves one step back; it is a no-op on the first step.
func (w *QuoteWizard) Back() {
	if w.state.CurrentStep > 0 {
		w.state.CurrentStep--
	}
}

// GoTo jumps to an already reached step.
func (w *QuoteWizard) GoTo(index int) error {
	if index < 0 || index > w.state.CurrentStep {
		return ErrStepOutOfRange
	}
	w.state.CurrentStep = index
	return nil
}

// RequestFinalize builds a preview of the documents and waits for confirmation.
func (w *QuoteWizard) RequestFinalize() (DocumentBundle, error) {
	if w.finalize.Status == FinalizeSubmitting {
		return DocumentBundle{}, ErrFinalizeInProgress
	}
	if countItems(w.state.Devices) == 0 {
		return DocumentBundle{}, ErrNothingSelected
	}
	if err := w.openIssues(); err != nil {
		return DocumentBundle{}, err
	}
	preview := BuildDocumentBundle(w.state, DocumentNumbers{}, w.clock(), w.schedule.Location())
	w.finalize = FinalizeView{Status: FinalizeConfirming, Preview: &preview}
	return preview, nil
}

// openIssues reports the first step before Resume whose gate is not met.
func (w *QuoteWizard) openIssues() error {
	for _, step := range w.Steps() {
		if step == StepResume {
			break
		}
		if reasons := w.StepIssues(step); len(reasons) > 0 {
			return &StepValidationError{Step: step, Reasons: reasons}
		}
	}
	return nil
}

// Submitting reports whether documents are being generated and delivered.
func (w *QuoteWizard) Submitting() bool {
	return w.finalize.Status == FinalizeSubmitting
}

// CancelFinalize closes the confirmation dialog.
func (w *QuoteWizard) CancelFinalize() {
	if w.finalize.Status == FinalizeConfirming {
		w.finalize = FinalizeView{Status: FinalizeIdle}
	}
}

// BeginFinalize moves to submitting and returns the state to hand to the orchestrator.
func (w *QuoteWizard) BeginFinalize() (WizardState, error) {
	switch w.finalize.Status {
	case FinalizeSubmitting:
		return WizardState{}, ErrFinalizeInProgress
	case FinalizeConfirming:
	default:
		return WizardState{}, ErrFinalizeNotRequested
	}
	if err := w.openIssues(); err != nil {
		w.finalize = FinalizeView{Status: FinalizeIdle}
		return WizardState{}, err
	}
	w.finalize.Status = FinalizeSubmitting
	w.finalize.LastError = ""
	return w.State(), nil
}

// CompleteFinalize records the orchestrator outcome. Success resets the wizard; failure keeps it for a retry.
func (w *QuoteWizard) CompleteFinalize(err error) {
	if err == nil {
		w.Reset()
		return
	}
	w.finalize.Status = FinalizeConfirming
	w.finalize.LastError = err.Error()
}

// ConfirmFinalize runs the orchestrator synchronously. Callers that must release a lock while
// delivering use BeginFinalize and CompleteFinalize instead.
func (w *QuoteWizard) ConfirmFinalize(ctx context.Context) (FinalizeResult, error) {
	state, err := w.BeginFinalize()
	if err != nil {
		return FinalizeResult{}, err
	}
	result, err := w.finalizer.Finalize(ctx, state)
	w.CompleteFinalize(err)
	if err != nil {
		return FinalizeResult{}, err
	}
	return result, nil
}

// Reset returns the wizard to its initial state and drops in-flight travel work.
func (w *QuoteWizard) Reset() {
	if w.travel != nil {
		w.travel.Cancel()
	}
	w.resetState()
}

// View returns a snapshot with steps, gates, totals and statuses.
func (w *QuoteWizard) View() WizardView {
	steps := w.Steps()
	views := make([]StepView, 0, len(steps))
	for _, step := range steps {
		reasons := w.StepIssues(step)
		views = append(views, StepView{Step: step, Valid: len(reasons) == 0, Reasons: reasons})
	}
	finalize := w.finalize
	if finalize.Preview != nil {
		preview := *finalize.Preview
		finalize.Preview = &preview
	}
	return WizardView{
		Steps:        views,
		CurrentIndex: w.state.CurrentStep,
		CurrentStep:  steps[w.state.CurrentStep],
		State:        w.State(),
		Totals:       w.pricing.Resolve(w.state.Devices, w.state.ClientInfo),
		Eligibility:  w.Eligibility(),
		TravelStatus: w.travelStatus,
		TravelError:  w.travelError,
		Finalize:     finalize,
	}
}

func cloneWizardState(s WizardState) WizardState {
	out := s
	out.Devices = make([]Device, len(s.Devices))
	for i, d := range s.Devices {
		out.Devices[i] = d
		out.Devices[i].Items = make([]SelectedItem, len(d.Items))
		for j, item := range d.Items {
			out.Devices[i].Items[j] = item
			if item.Meta != nil {
				meta := *item.Meta
				meta.Color = copyString(item.Meta.Color)
				out.Devices[i].Items[j].Meta = &meta
			}
		}
	}
	if s.ClientInfo.Address != nil {
		a := *s.ClientInfo.Address
		out.ClientInfo.Address = &a
	}
	out.ClientInfo.DistanceKm = copyFloat(s.ClientInfo.DistanceKm)
	out.ClientInfo.TravelFee = copyFloat(s.ClientInfo.TravelFee)
	return out
}
