package repositories

import (
	"context"
	"time"

	"github.com/recophone/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Quotes() QuoteRepository
	Counters() CounterRepository
	WebhookEvents() WebhookEventRepository
	Subscriptions() SubscriptionRepository
	CheckoutPayments() CheckoutPaymentRepository
	Ping(ctx context.Context) error
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// QuoteRepository is the append-only ledger of finalization attempts.
type QuoteRepository interface {
	Insert(ctx context.Context, record domain.QuoteRecord) error
	FindByNumber(ctx context.Context, quoteNumber string) (domain.QuoteRecord, error)
	List(ctx context.Context, filter QuoteListFilter) (domain.CursorPage[domain.QuoteRecord], error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// WebhookEventRepository de-duplicates processed Stripe events.
type WebhookEventRepository interface {
	// MarkProcessed stores the event and reports false when it was already recorded.
	MarkProcessed(ctx context.Context, event domain.WebhookEvent) (bool, error)
	// Forget removes an event so a failed delivery can be retried by Stripe.
	Forget(ctx context.Context, eventID string) error
}

// SubscriptionRepository mirrors Stripe subscriptions.
type SubscriptionRepository interface {
	Upsert(ctx context.Context, subscription domain.Subscription) error
	FindByID(ctx context.Context, subscriptionID string) (domain.Subscription, error)
	UpdatePayment(ctx context.Context, subscriptionID string, update SubscriptionPaymentUpdate) error
}

// CheckoutPaymentRepository records completed one-shot checkouts.
type CheckoutPaymentRepository interface {
	Upsert(ctx context.Context, payment domain.CheckoutPayment) error
	FindBySession(ctx context.Context, sessionID string) (domain.CheckoutPayment, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// QuoteListFilter pages the ledger newest first. After is the keyset cursor.
type QuoteListFilter struct {
	Status         []domain.QuoteStatus
	PageSize       int
	AfterCreatedAt time.Time
	AfterID        string
}

// SubscriptionPaymentUpdate carries invoice outcomes for a subscription.
type SubscriptionPaymentUpdate struct {
	InvoiceID     string
	PaymentStatus string
	UpdatedAt     time.Time
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
