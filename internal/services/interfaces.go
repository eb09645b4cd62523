package services

import (
	"context"
	"time"

	"github.com/recophone/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Catalog            = domain.Catalog
	Category           = domain.Category
	Model              = domain.Model
	RepairOption       = domain.RepairOption
	Device             = domain.Device
	SelectedItem       = domain.SelectedItem
	ClientInfo         = domain.ClientInfo
	Address            = domain.Address
	Appointment        = domain.Appointment
	WizardState        = domain.WizardState
	QuotePayload       = domain.QuotePayload
	ContractPayload    = domain.ContractPayload
	DocumentBundle     = domain.DocumentBundle
	DeliveryReceipt    = domain.DeliveryReceipt
	QuoteRecord        = domain.QuoteRecord
	QuoteTotals        = domain.QuoteTotals
	SystemHealthReport = domain.SystemHealthReport
	CheckoutSession    = domain.CheckoutSession
	CheckoutMode       = domain.CheckoutMode
	CartLine           = domain.CartLine
	Subscription       = domain.Subscription
	CheckoutPayment    = domain.CheckoutPayment
	FolderSummary      = domain.FolderSummary
	DocumentEntry      = domain.DocumentEntry
)

// Logger is the structured event logger taken by every service.
type Logger func(ctx context.Context, event string, fields map[string]any)

func nopLogger(context.Context, string, map[string]any) {}

// EventMessage is a domain event published after a state change.
type EventMessage struct {
	Type       string
	Key        string
	OccurredAt time.Time
	Data       map[string]any
}

// EventPublisher delivers domain events (Pub/Sub in production).
type EventPublisher interface {
	PublishEvent(ctx context.Context, event EventMessage) (string, error)
}

// CatalogProvider serves the canonical repair catalog.
type CatalogProvider interface {
	Catalog(ctx context.Context) (Catalog, error)
}

// DocumentDelivery renders, stores and mails the finalized documents.
type DocumentDelivery interface {
	Deliver(ctx context.Context, bundle DocumentBundle) (DeliveryReceipt, error)
}

// Geocoder resolves free-text addresses to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (GeocodeResult, error)
}

// DistanceRouter returns the driving distance between two points.
type DistanceRouter interface {
	Route(ctx context.Context, from, to LatLon) (RouteResult, error)
}

// TravelResolver computes the at-home travel fee for an address.
type TravelResolver interface {
	Resolve(ctx context.Context, address Address) (TravelQuote, error)
}

// Finalizer turns a wizard state into delivered documents.
type Finalizer interface {
	Finalize(ctx context.Context, state WizardState) (FinalizeResult, error)
}

// CounterService hands out RP_/RC_ document numbers.
type CounterService interface {
	NextQuoteNumber(ctx context.Context) (string, error)
	NextContractNumber(ctx context.Context) (string, error)
}

// SystemService aggregates health reporting.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}
