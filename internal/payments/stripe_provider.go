package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeSubscriptionAPI interface {
	Get(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
}

type stripeClients struct {
	sessions      stripeSessionAPI
	subscriptions stripeSubscriptionAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey        string
	WebhookSecret string
	Backends      *stripe.Backends
	Logger        StripeLogger
	Clock         func() time.Time
	Clients       *stripeClients
}

// StripeProvider implements Gateway using Stripe Checkout.
type StripeProvider struct {
	api           stripeClients
	webhookSecret string
	clock         func() time.Time
	logger        StripeLogger
}

var _ Gateway = (*StripeProvider)(nil)

// NewStripeProvider constructs a Stripe Gateway using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			sessions:      sc.CheckoutSessions,
			subscriptions: sc.Subscriptions,
		}
	}
	if clients.sessions == nil || clients.subscriptions == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:           clients,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateCheckoutSession creates a hosted Stripe Checkout session.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if p == nil {
		return CheckoutSession{}, errors.New("stripe: provider is nil")
	}
	if len(req.Items) == 0 {
		return CheckoutSession{}, errors.New("stripe: at least one line item is required")
	}
	mode := req.Mode
	if mode == "" {
		mode = ModePayment
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(mode)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if req.Locale != "" {
		params.Locale = stripe.String(strings.ReplaceAll(strings.ToLower(req.Locale), "_", "-"))
	}
	if len(req.Metadata) > 0 {
		params.Metadata = maps.Clone(req.Metadata)
		if mode == ModeSubscription {
			params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: maps.Clone(req.Metadata)}
		}
	}

	params.LineItems = make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, item := range req.Items {
		line := &stripe.CheckoutSessionLineItemParams{Quantity: stripe.Int64(max(item.Quantity, 1))}
		if item.PriceID != "" {
			line.Price = stripe.String(item.PriceID)
		} else {
			line.PriceData = &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(item.Currency)),
				UnitAmount: stripe.Int64(item.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			}
			if item.Description != "" {
				line.PriceData.ProductData.Description = stripe.String(item.Description)
			}
		}
		params.LineItems = append(params.LineItems, line)
	}

	session, err := p.api.sessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	p.logger(ctx, "payments.stripe.session.created", map[string]any{
		"sessionId": session.ID,
		"mode":      string(mode),
		"items":     len(req.Items),
	})

	expiresAt := p.clock().Add(24 * time.Hour)
	if session.ExpiresAt != 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}
	return CheckoutSession{
		ID:          session.ID,
		Provider:    "stripe",
		RedirectURL: session.URL,
		Mode:        mode,
		ExpiresAt:   expiresAt,
	}, nil
}

// GetSubscription retrieves a subscription with its customer expanded.
func (p *StripeProvider) GetSubscription(ctx context.Context, subscriptionID string) (SubscriptionDetails, error) {
	if p == nil {
		return SubscriptionDetails{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("customer")
	sub, err := p.api.subscriptions.Get(subscriptionID, params)
	if err != nil {
		return SubscriptionDetails{}, fmt.Errorf("stripe: get subscription: %w", err)
	}
	return stripeSubscriptionDetails(sub), nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event object.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (WebhookEvent, error) {
	if p == nil || p.webhookSecret == "" {
		return WebhookEvent{}, ErrWebhookNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := WebhookEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Created: time.Unix(event.Created, 0).UTC(),
	}
	if event.Data == nil {
		return out, nil
	}

	switch out.Type {
	case EventCheckoutCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		out.Session = stripeSessionDetails(&session)
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		details := stripeSubscriptionDetails(&sub)
		out.Subscription = &details
	case EventInvoicePaymentSuccess, EventInvoicePaymentFailed:
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		out.Invoice = stripeInvoiceDetails(&invoice)
	}
	return out, nil
}

func stripeSessionDetails(session *stripe.CheckoutSession) *SessionDetails {
	details := &SessionDetails{
		ID:            session.ID,
		Mode:          Mode(session.Mode),
		CustomerEmail: session.CustomerEmail,
		AmountTotal:   session.AmountTotal,
		Currency:      string(session.Currency),
		PaymentStatus: string(session.PaymentStatus),
		Metadata:      session.Metadata,
	}
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		details.CustomerEmail = session.CustomerDetails.Email
	}
	if session.Customer != nil {
		details.CustomerID = session.Customer.ID
	}
	if session.Subscription != nil {
		details.SubscriptionID = session.Subscription.ID
	}
	return details
}

func stripeSubscriptionDetails(sub *stripe.Subscription) SubscriptionDetails {
	details := SubscriptionDetails{
		ID:       sub.ID,
		Status:   string(sub.Status),
		Metadata: sub.Metadata,
	}
	if sub.Customer != nil {
		details.CustomerID = sub.Customer.ID
		details.CustomerEmail = sub.Customer.Email
	}
	if sub.LatestInvoice != nil {
		details.LatestInvoiceID = sub.LatestInvoice.ID
	}
	return details
}

func stripeInvoiceDetails(invoice *stripe.Invoice) *InvoiceDetails {
	details := &InvoiceDetails{
		ID:            invoice.ID,
		CustomerEmail: invoice.CustomerEmail,
		Status:        string(invoice.Status),
		Paid:          invoice.Paid,
	}
	if invoice.Subscription != nil {
		details.SubscriptionID = invoice.Subscription.ID
	}
	return details
}
