package domain

import (
	"strings"
	"time"
)

// Brand groups catalog categories for ordering.
type Brand string

const (
	BrandApple   Brand = "Apple"
	BrandSamsung Brand = "Samsung"
	BrandXiaomi  Brand = "Xiaomi"
	BrandOther   Brand = "Autre"
)

// PartKind marks repairs that replace a coloured housing part.
type PartKind string

const (
	PartKindBack  PartKind = "back"
	PartKindFrame PartKind = "frame"
)

// Catalog is the canonical, read-only repair catalog served to the wizard.
type Catalog struct {
	Categories []Category
	Extras     []RepairOption
	LoadedAt   time.Time
}

// Category lists the models of one brand family (e.g. "Samsung - Série S").
type Category struct {
	Name   string
	Brand  Brand
	Models []Model
}

// Model is a device model with its ordered repair options.
type Model struct {
	Name          string
	Colors        []string
	RepairOptions []RepairOption
}

// ColorRequirement signals that the client must pick the colour of the replaced part.
type ColorRequirement struct {
	Part PartKind
}

// RepairOption is a priced repair line offered for a model.
type RepairOption struct {
	Label         string
	Price         float64
	RequiresColor *ColorRequirement
}

// FindCategory returns the category with the given name.
func (c Catalog) FindCategory(name string) (Category, bool) {
	for _, category := range c.Categories {
		if category.Name == name {
			return category, true
		}
	}
	return Category{}, false
}

// FindModel returns the model in the named category.
func (c Catalog) FindModel(category, model string) (Category, Model, bool) {
	cat, ok := c.FindCategory(category)
	if !ok {
		return Category{}, Model{}, false
	}
	for _, m := range cat.Models {
		if m.Name == model {
			return cat, m, true
		}
	}
	return Category{}, Model{}, false
}

// OptionsFor returns the model repairs followed by the fixed extras.
func (c Catalog) OptionsFor(model Model) []RepairOption {
	out := make([]RepairOption, 0, len(model.RepairOptions)+len(c.Extras))
	out = append(out, model.RepairOptions...)
	out = append(out, c.Extras...)
	return out
}

// ItemMeta carries the colour choice of a housing repair. A nil Color means "don't know".
type ItemMeta struct {
	Color    *string
	PartKind PartKind
}

// SelectedItem is one repair chosen for a device. Key equals Label.
type SelectedItem struct {
	Key   string
	Label string
	Price float64
	Qty   int
	Meta  *ItemMeta
}

// Quantity returns the effective quantity (defaults to 1).
func (i SelectedItem) Quantity() int {
	if i.Qty < 1 {
		return 1
	}
	return i.Qty
}

// Device is a phone added to the quote.
type Device struct {
	ID       int
	Category string
	Brand    Brand
	Model    string
	Items    []SelectedItem
}

// Address is the client address for at-home interventions.
type Address struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	PostalCode string `json:"postalCode"`
	City       string `json:"city"`
}

// Complete reports whether every address field is filled.
func (a Address) Complete() bool {
	return strings.TrimSpace(a.Street) != "" &&
		strings.TrimSpace(a.Number) != "" &&
		strings.TrimSpace(a.PostalCode) != "" &&
		strings.TrimSpace(a.City) != ""
}

// Line renders the address as a single geocodable line.
func (a Address) Line() string {
	parts := []string{
		strings.TrimSpace(strings.TrimSpace(a.Street) + " " + strings.TrimSpace(a.Number)),
		strings.TrimSpace(strings.TrimSpace(a.PostalCode) + " " + strings.TrimSpace(a.City)),
		"Belgique",
	}
	return strings.Join(parts, ", ")
}

// ClientInfo is the client step data.
type ClientInfo struct {
	FirstName        string
	LastName         string
	Email            string
	Phone            string
	Notes            string
	PayInTwo         bool
	SignatureDataURL string
	ADomicile        bool
	Address          *Address
	CGVAccepted      bool
	DistanceKm       *float64
	TravelFee        *float64
}

// Appointment is a Saturday slot for an at-home visit.
type Appointment struct {
	Date string `json:"date,omitempty"`
	Slot string `json:"slot,omitempty"`
}

// Complete reports whether both date and slot are chosen.
func (a Appointment) Complete() bool {
	return a.Date != "" && a.Slot != ""
}

// Start returns the slot start in loc.
func (a Appointment) Start(loc *time.Location) (time.Time, bool) {
	if !a.Complete() {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", a.Date+" "+a.Slot, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// End returns the slot end for the given slot duration.
func (a Appointment) End(loc *time.Location, duration time.Duration) (time.Time, bool) {
	start, ok := a.Start(loc)
	if !ok {
		return time.Time{}, false
	}
	return start.Add(duration), true
}

// ISO returns the RFC 3339 start timestamp, or "" when incomplete.
func (a Appointment) ISO(loc *time.Location) string {
	start, ok := a.Start(loc)
	if !ok {
		return ""
	}
	return start.Format(time.RFC3339)
}

// DateOnly returns the YYYY-MM-DD part.
func (a Appointment) DateOnly() string { return a.Date }

// TimeOnly returns the HH:MM part.
func (a Appointment) TimeOnly() string { return a.Slot }

// WizardState is the mutable state of a quote wizard.
type WizardState struct {
	CurrentStep    int
	Devices        []Device
	ClientInfo     ClientInfo
	Appointment    Appointment
	ActiveDeviceID int
}

// QuoteItemMeta mirrors ItemMeta on documents.
type QuoteItemMeta struct {
	Color    *string  `json:"color"`
	PartKind PartKind `json:"partKind,omitempty"`
}

// QuoteItem is a document line.
type QuoteItem struct {
	Label string         `json:"label"`
	Price float64        `json:"price"`
	Qty   int            `json:"qty,omitempty"`
	Meta  *QuoteItemMeta `json:"meta,omitempty"`
}

// QuoteDevice groups document lines per device.
type QuoteDevice struct {
	Category string      `json:"category,omitempty"`
	Model    string      `json:"model,omitempty"`
	Items    []QuoteItem `json:"items"`
}

// QuoteClient is the client block printed on documents.
type QuoteClient struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Notes     string `json:"notes,omitempty"`
}

// QuotePayload is the immutable projection of a wizard sent to document delivery.
type QuotePayload struct {
	QuoteNumber      string        `json:"quoteNumber"`
	DateISO          string        `json:"dateISO"`
	Company          CompanyInfo   `json:"company"`
	Client           QuoteClient   `json:"client"`
	Devices          []QuoteDevice `json:"devices"`
	TravelFee        *float64      `json:"travelFee,omitempty"`
	DistanceKm       *float64      `json:"distanceKm,omitempty"`
	PayInTwo         bool          `json:"payInTwo"`
	SignatureDataURL string        `json:"signatureDataUrl,omitempty"`
	ADomicile        bool          `json:"aDomicile"`
	Address          *Address      `json:"address,omitempty"`
	Appointment      *Appointment  `json:"appointment,omitempty"`
	Total            float64       `json:"total"`
}

// ContractPayload is the pay-in-two contract projection.
type ContractPayload struct {
	ContractNumber   string        `json:"contractNumber"`
	QuoteNumber      string        `json:"quoteNumber,omitempty"`
	DateISO          string        `json:"dateISO"`
	Company          CompanyInfo   `json:"company"`
	Client           QuoteClient   `json:"client"`
	Devices          []QuoteDevice `json:"devices"`
	TravelFee        *float64      `json:"travelFee,omitempty"`
	SignatureDataURL string        `json:"signatureDataUrl,omitempty"`
	DeliveryDateISO  string        `json:"deliveryDateISO,omitempty"`
	ADomicile        bool          `json:"aDomicile"`
	Address          *Address      `json:"address,omitempty"`
	Appointment      *Appointment  `json:"appointment,omitempty"`
	Total            float64       `json:"total"`
}

// DocumentBundle is what document delivery receives.
type DocumentBundle struct {
	Quote    QuotePayload     `json:"quote"`
	Contract *ContractPayload `json:"contract,omitempty"`
	PayInTwo bool             `json:"payInTwo"`
}

// DeliveryReceipt reports where the documents were stored.
type DeliveryReceipt struct {
	Folder      string `json:"folder"`
	QuoteURL    string `json:"quoteUrl"`
	ContractURL string `json:"contractUrl,omitempty"`
}

// QuoteStatus is the ledger state of a finalization attempt.
type QuoteStatus string

const (
	QuoteStatusDelivered QuoteStatus = "delivered"
	QuoteStatusFailed    QuoteStatus = "failed"
)

// QuoteRecord is a ledger entry for a finalization attempt.
type QuoteRecord struct {
	ID             string
	QuoteNumber    string
	ContractNumber string
	Folder         string
	ClientName     string
	ClientEmail    string
	DeviceCount    int
	Total          float64
	TravelFee      float64
	ADomicile      bool
	Appointment    Appointment
	Status         QuoteStatus
	Error          string
	QuoteURL       string
	ContractURL    string
	CreatedAt      time.Time
}
