package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/recophone/api/internal/domain"
	"github.com/recophone/api/internal/platform/httpx"
	"github.com/recophone/api/internal/services"
)

const maxCheckoutRequestBody = 64 * 1024

// CheckoutSessionCreator creates hosted checkout sessions.
type CheckoutSessionCreator interface {
	CreateSession(ctx context.Context, items []services.CartLine) (services.CheckoutSession, error)
}

// CheckoutHandlers exposes the storefront checkout endpoint.
type CheckoutHandlers struct {
	checkout CheckoutSessionCreator
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(checkout CheckoutSessionCreator) *CheckoutHandlers {
	return &CheckoutHandlers{checkout: checkout}
}

// Routes registers checkout endpoints relative to /checkout.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/session", h.createSession)
}

type checkoutItemRequest struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Type      string         `json:"type"`
	UnitPrice int64          `json:"unitPrice"`
	Qty       int64          `json:"qty"`
	Meta      map[string]any `json:"meta"`
}

type checkoutSessionRequest struct {
	Items []checkoutItemRequest `json:"items"`
}

type checkoutSessionResponse struct {
	URL string `json:"url"`
}

func (h *CheckoutHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		unavailable(w, r, "checkout")
		return
	}

	var req checkoutSessionRequest
	if !decodeRequest(w, r, maxCheckoutRequestBody, &req, false) {
		return
	}

	lines := make([]services.CartLine, 0, len(req.Items))
	for _, item := range req.Items {
		lineType := domain.CartLineProduct
		if strings.EqualFold(strings.TrimSpace(item.Type), string(domain.CartLinePlan)) {
			lineType = domain.CartLinePlan
		}
		lines = append(lines, services.CartLine{
			ID:        strings.TrimSpace(item.ID),
			Title:     strings.TrimSpace(item.Title),
			Type:      lineType,
			UnitPrice: item.UnitPrice,
			Qty:       item.Qty,
			Meta:      item.Meta,
		})
	}

	session, err := h.checkout.CreateSession(ctx, lines)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, checkoutSessionResponse{URL: session.URL})
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "Panier vide.", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutMixedCart):
		httpx.WriteError(ctx, w, httpx.NewError("mixed_cart", "Les abonnements et les produits doivent être payés séparément.", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutMultiplePlans):
		httpx.WriteError(ctx, w, httpx.NewError("multiple_plans", "Un seul abonnement par paiement.", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutUnknownPlan):
		httpx.WriteError(ctx, w, httpx.NewError("unknown_plan", "Abonnement inconnu.", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "Le paiement n'a pas pu être initialisé.", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "Erreur serveur.", http.StatusInternalServerError))
	}
}
