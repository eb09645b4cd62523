package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/recophone/api/internal/platform/httpx"
	"github.com/recophone/api/internal/services"
)

const maxWebhookBody = 512 * 1024

// StripeWebhookProcessor verifies and applies one Stripe delivery.
type StripeWebhookProcessor interface {
	Handle(ctx context.Context, payload []byte, signature string) (services.WebhookOutcome, error)
}

// WebhookHandlers receives PSP callbacks.
type WebhookHandlers struct {
	stripe StripeWebhookProcessor
}

// NewWebhookHandlers constructs the webhook endpoints.
func NewWebhookHandlers(stripe StripeWebhookProcessor) *WebhookHandlers {
	return &WebhookHandlers{stripe: stripe}
}

// Routes registers webhook endpoints relative to /webhooks.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.stripeWebhook)
}

type webhookResponse struct {
	Received  bool   `json:"received"`
	EventID   string `json:"eventId,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

func (h *WebhookHandlers) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stripe == nil {
		unavailable(w, r, "webhook")
		return
	}
	// the signature covers the exact bytes, so the body is passed through untouched
	payload, err := readLimitedBody(r, maxWebhookBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	outcome, err := h.stripe.Handle(ctx, payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, services.ErrWebhookRejected) {
			httpx.WriteError(ctx, w, httpx.NewError("webhook_rejected", "webhook signature verification failed", http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("webhook_failed", "webhook could not be processed", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, webhookResponse{Received: true, EventID: outcome.EventID, Duplicate: outcome.Duplicate})
}
