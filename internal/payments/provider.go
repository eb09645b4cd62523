package payments

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrWebhookNotConfigured is returned when no webhook signing secret is set.
	ErrWebhookNotConfigured = errors.New("payments: webhook secret not configured")
	// ErrInvalidSignature is returned when a webhook payload fails signature verification.
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
	// ErrInvalidPayload is returned when a verified event cannot be decoded.
	ErrInvalidPayload = errors.New("payments: invalid webhook payload")
)

// Mode is the checkout mode of a session.
type Mode string

const (
	ModePayment      Mode = "payment"
	ModeSubscription Mode = "subscription"
)

// Event types handled by the webhook.
const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventSubscriptionCreated   = "customer.subscription.created"
	EventSubscriptionUpdated   = "customer.subscription.updated"
	EventSubscriptionDeleted   = "customer.subscription.deleted"
	EventInvoicePaymentSuccess = "invoice.payment_succeeded"
	EventInvoicePaymentFailed  = "invoice.payment_failed"
)

// CheckoutLineItem is one line of a checkout session. PriceID selects a recurring price;
// otherwise Amount (cents) and Currency build an inline price.
type CheckoutLineItem struct {
	PriceID     string
	Name        string
	Description string
	Quantity    int64
	Amount      int64
	Currency    string
}

// CheckoutSessionRequest captures the payload required to create a checkout session.
type CheckoutSessionRequest struct {
	Mode           Mode
	SuccessURL     string
	CancelURL      string
	Locale         string
	Metadata       map[string]string
	IdempotencyKey string
	Items          []CheckoutLineItem
}

// CheckoutSession is the hosted page returned to the client.
type CheckoutSession struct {
	ID          string
	Provider    string
	RedirectURL string
	Mode        Mode
	ExpiresAt   time.Time
}

// SessionDetails is a completed checkout session extracted from a webhook.
type SessionDetails struct {
	ID             string
	Mode           Mode
	CustomerID     string
	CustomerEmail  string
	SubscriptionID string
	AmountTotal    int64
	Currency       string
	PaymentStatus  string
	Metadata       map[string]string
}

// SubscriptionDetails is a PSP subscription snapshot.
type SubscriptionDetails struct {
	ID              string
	CustomerID      string
	CustomerEmail   string
	Status          string
	LatestInvoiceID string
	Metadata        map[string]string
}

// InvoiceDetails is an invoice payment outcome.
type InvoiceDetails struct {
	ID             string
	SubscriptionID string
	CustomerEmail  string
	Status         string
	Paid           bool
}

// WebhookEvent is a verified, decoded PSP event. Only the object matching Type is set.
type WebhookEvent struct {
	ID           string
	Type         string
	Created      time.Time
	Session      *SessionDetails
	Subscription *SubscriptionDetails
	Invoice      *InvoiceDetails
}

// Gateway is the PSP surface used by checkout and webhook processing.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	GetSubscription(ctx context.Context, subscriptionID string) (SubscriptionDetails, error)
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
}
