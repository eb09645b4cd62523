package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/recophone/api/internal/domain"
	"github.com/recophone/api/internal/payments"
	"github.com/recophone/api/internal/repositories"
)

// EventCheckoutCompleted is published once a Stripe checkout completes.
const EventCheckoutCompleted = "checkout.completed"

var (
	// ErrWebhookRejected indicates a missing secret, a bad signature or an undecodable payload.
	ErrWebhookRejected = errors.New("stripe webhook: rejected")
	// ErrWebhookProcessing indicates a verified event could not be applied; Stripe will retry.
	ErrWebhookProcessing = errors.New("stripe webhook: processing failed")
)

// WebhookOutcome summarises how an event was handled.
type WebhookOutcome struct {
	EventID   string
	Type      string
	Duplicate bool
	Handled   bool
}

// StripeWebhookServiceDeps wires the webhook processor.
type StripeWebhookServiceDeps struct {
	Payments      payments.Gateway
	Events        repositories.WebhookEventRepository
	Subscriptions repositories.SubscriptionRepository
	Checkouts     repositories.CheckoutPaymentRepository
	// Tx, when set, applies the de-duplication mark and the event's writes atomically.
	Tx        repositories.UnitOfWork
	Publisher EventPublisher
	Clock     func() time.Time
	Logger    Logger
}

// StripeWebhookService verifies, de-duplicates and applies Stripe events.
type StripeWebhookService struct {
	payments      payments.Gateway
	events        repositories.WebhookEventRepository
	subscriptions repositories.SubscriptionRepository
	checkouts     repositories.CheckoutPaymentRepository
	tx            repositories.UnitOfWork
	publisher     EventPublisher
	now           func() time.Time
	logger        Logger
}

// NewStripeWebhookService validates dependencies.
func NewStripeWebhookService(deps StripeWebhookServiceDeps) (*StripeWebhookService, error) {
	switch {
	case deps.Payments == nil:
		return nil, errors.New("stripe webhook service: payment gateway is required")
	case deps.Events == nil:
		return nil, errors.New("stripe webhook service: webhook event repository is required")
	case deps.Subscriptions == nil:
		return nil, errors.New("stripe webhook service: subscription repository is required")
	case deps.Checkouts == nil:
		return nil, errors.New("stripe webhook service: checkout payment repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	return &StripeWebhookService{
		payments:      deps.Payments,
		events:        deps.Events,
		subscriptions: deps.Subscriptions,
		checkouts:     deps.Checkouts,
		tx:            deps.Tx,
		publisher:     deps.Publisher,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Handle processes one webhook delivery. A failed event is not left marked, so Stripe's retry is applied.
// Events are published only after the writes are committed.
func (s *StripeWebhookService) Handle(ctx context.Context, payload []byte, signature string) (WebhookOutcome, error) {
	if strings.TrimSpace(signature) == "" {
		return WebhookOutcome{}, fmt.Errorf("%w: missing signature", ErrWebhookRejected)
	}
	event, err := s.payments.ParseWebhook(payload, signature)
	if err != nil {
		return WebhookOutcome{}, fmt.Errorf("%w: %v", ErrWebhookRejected, err)
	}
	outcome := WebhookOutcome{EventID: event.ID, Type: event.Type}

	var (
		message *EventMessage
		marked  bool
	)
	process := func(ctx context.Context) error {
		fresh, err := s.events.MarkProcessed(ctx, domain.WebhookEvent{ID: event.ID, Type: event.Type, ProcessedAt: s.now()})
		if err != nil {
			return err
		}
		if !fresh {
			outcome.Duplicate = true
			return nil
		}
		marked = true
		outcome.Handled, message, err = s.apply(ctx, event)
		return err
	}
	if s.tx != nil {
		err = s.tx.RunInTx(ctx, process)
	} else {
		err = process(ctx)
		if err != nil && marked {
			if forgetErr := s.events.Forget(ctx, event.ID); forgetErr != nil {
				s.logger(ctx, "stripe.webhook.forget_failed", map[string]any{"eventId": event.ID, "error": forgetErr.Error()})
			}
		}
	}
	if err != nil {
		s.logger(ctx, "stripe.webhook.failed", map[string]any{"eventId": event.ID, "type": event.Type, "error": err.Error()})
		return WebhookOutcome{EventID: event.ID, Type: event.Type}, fmt.Errorf("%w: %v", ErrWebhookProcessing, err)
	}
	if outcome.Duplicate {
		s.logger(ctx, "stripe.webhook.duplicate", map[string]any{"eventId": event.ID, "type": event.Type})
		return outcome, nil
	}
	if message != nil {
		s.publish(ctx, *message)
	}
	return outcome, nil
}

func (s *StripeWebhookService) apply(ctx context.Context, event payments.WebhookEvent) (bool, *EventMessage, error) {
	switch event.Type {
	case payments.EventCheckoutCompleted:
		if event.Session == nil {
			return false, nil, nil
		}
		message, err := s.checkoutCompleted(ctx, event, *event.Session)
		return err == nil, message, err
	case payments.EventSubscriptionCreated, payments.EventSubscriptionUpdated, payments.EventSubscriptionDeleted:
		if event.Subscription == nil {
			return false, nil, nil
		}
		s.logger(ctx, "stripe.subscription.synced", map[string]any{
			"subscriptionId": event.Subscription.ID,
			"type":           event.Type,
			"status":         event.Subscription.Status,
		})
		return true, nil, s.subscriptions.Upsert(ctx, s.subscriptionFrom(*event.Subscription))
	case payments.EventInvoicePaymentSuccess, payments.EventInvoicePaymentFailed:
		if event.Invoice == nil {
			return false, nil, nil
		}
		return true, nil, s.invoicePayment(ctx, event, *event.Invoice)
	default:
		return false, nil, nil
	}
}

func (s *StripeWebhookService) checkoutCompleted(ctx context.Context, event payments.WebhookEvent, session payments.SessionDetails) (*EventMessage, error) {
	data := map[string]any{
		"sessionId": session.ID,
		"mode":      string(session.Mode),
		"email":     session.CustomerEmail,
	}
	if session.SubscriptionID != "" {
		sub, err := s.payments.GetSubscription(ctx, session.SubscriptionID)
		if err != nil {
			return nil, err
		}
		if sub.CustomerEmail == "" {
			sub.CustomerEmail = session.CustomerEmail
		}
		if err := s.subscriptions.Upsert(ctx, s.subscriptionFrom(sub)); err != nil {
			return nil, err
		}
		data["subscriptionId"] = sub.ID
		data["status"] = sub.Status
	} else {
		completedAt := event.Created
		if completedAt.IsZero() {
			completedAt = s.now()
		}
		if err := s.checkouts.Upsert(ctx, domain.CheckoutPayment{
			SessionID:     session.ID,
			CustomerEmail: session.CustomerEmail,
			AmountTotal:   session.AmountTotal,
			Currency:      strings.ToUpper(session.Currency),
			Status:        session.PaymentStatus,
			CompletedAt:   completedAt,
		}); err != nil {
			return nil, err
		}
		data["amountTotal"] = session.AmountTotal
	}
	s.logger(ctx, "stripe.checkout.completed", data)
	return &EventMessage{Type: EventCheckoutCompleted, Key: session.ID, OccurredAt: s.now(), Data: data}, nil
}

func (s *StripeWebhookService) invoicePayment(ctx context.Context, event payments.WebhookEvent, invoice payments.InvoiceDetails) error {
	if invoice.SubscriptionID == "" {
		return nil
	}
	status := "failed"
	if event.Type == payments.EventInvoicePaymentSuccess {
		status = "paid"
	}
	err := s.subscriptions.UpdatePayment(ctx, invoice.SubscriptionID, repositories.SubscriptionPaymentUpdate{
		InvoiceID:     invoice.ID,
		PaymentStatus: status,
		UpdatedAt:     s.now(),
	})
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		sub, getErr := s.payments.GetSubscription(ctx, invoice.SubscriptionID)
		if getErr != nil {
			return getErr
		}
		record := s.subscriptionFrom(sub)
		record.LastInvoiceID = invoice.ID
		record.PaymentStatus = status
		err = s.subscriptions.Upsert(ctx, record)
	}
	if err != nil {
		return err
	}
	s.logger(ctx, "stripe.invoice."+status, map[string]any{
		"invoiceId":      invoice.ID,
		"subscriptionId": invoice.SubscriptionID,
	})
	return nil
}

func (s *StripeWebhookService) subscriptionFrom(sub payments.SubscriptionDetails) domain.Subscription {
	return domain.Subscription{
		ID:            sub.ID,
		CustomerID:    sub.CustomerID,
		CustomerEmail: sub.CustomerEmail,
		Status:        sub.Status,
		LastInvoiceID: sub.LatestInvoiceID,
		Metadata:      sub.Metadata,
		UpdatedAt:     s.now(),
	}
}

func (s *StripeWebhookService) publish(ctx context.Context, event EventMessage) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.PublishEvent(ctx, event); err != nil {
		s.logger(ctx, "stripe.checkout.publish_failed", map[string]any{"key": event.Key, "error": err.Error()})
	}
}
