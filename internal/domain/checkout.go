package domain

import "time"

// CartLineType distinguishes subscriptions from one-shot purchases.
type CartLineType string

const (
	CartLinePlan    CartLineType = "plan"
	CartLineProduct CartLineType = "product"
)

// CartLine is an item submitted for checkout. UnitPrice is in cents.
type CartLine struct {
	ID        string
	Title     string
	Type      CartLineType
	UnitPrice int64
	Qty       int64
	Meta      map[string]any
}

// IsPlan reports whether the line is a subscription plan.
func (l CartLine) IsPlan() bool {
	return l.Type == CartLinePlan
}

// CheckoutMode is the Stripe checkout mode.
type CheckoutMode string

const (
	CheckoutModePayment      CheckoutMode = "payment"
	CheckoutModeSubscription CheckoutMode = "subscription"
)

// CheckoutSession is the redirect target returned to the storefront.
type CheckoutSession struct {
	ID        string
	URL       string
	Mode      CheckoutMode
	CreatedAt time.Time
}

// Subscription mirrors a Stripe subscription.
type Subscription struct {
	ID            string
	CustomerID    string
	CustomerEmail string
	Status        string
	LastInvoiceID string
	PaymentStatus string
	Metadata      map[string]string
	UpdatedAt     time.Time
}

// CheckoutPayment records a completed one-shot checkout.
type CheckoutPayment struct {
	SessionID     string
	CustomerEmail string
	AmountTotal   int64
	Currency      string
	Status        string
	CompletedAt   time.Time
}

// WebhookEvent is a processed Stripe event, kept for de-duplication.
type WebhookEvent struct {
	ID          string
	Type        string
	ProcessedAt time.Time
}
