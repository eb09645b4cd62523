package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/recophone/api/internal/domain"
	"github.com/recophone/api/internal/platform/httpx"
	"github.com/recophone/api/internal/services"
)

const maxQuoteRequestBody = httpx.DefaultMaxBody

// QuoteSessionStore is the subset of the session service the wizard endpoints need.
type QuoteSessionStore interface {
	Create(ctx context.Context) (string, services.WizardView, error)
	View(ctx context.Context, id string) (services.WizardView, error)
	Do(ctx context.Context, id string, fn func(w *services.QuoteWizard) error) (services.WizardView, error)
	Confirm(ctx context.Context, id string) (services.FinalizeResult, services.WizardView, error)
	Delete(ctx context.Context, id string) error
}

// QuoteHandlers exposes the quote wizard sessions and the direct document delivery endpoint.
type QuoteHandlers struct {
	sessions QuoteSessionStore
	delivery services.DocumentDelivery
	confirm  []func(http.Handler) http.Handler
}

// QuoteOption customises QuoteHandlers.
type QuoteOption func(*QuoteHandlers)

// WithQuoteDelivery enables POST /quotes/finish.
func WithQuoteDelivery(delivery services.DocumentDelivery) QuoteOption {
	return func(h *QuoteHandlers) {
		h.delivery = delivery
	}
}

// WithConfirmMiddlewares wraps the finalize:confirm and finish endpoints, typically with idempotency.
func WithConfirmMiddlewares(mw ...func(http.Handler) http.Handler) QuoteOption {
	return func(h *QuoteHandlers) {
		h.confirm = append(h.confirm, mw...)
	}
}

// NewQuoteHandlers constructs the wizard handlers.
func NewQuoteHandlers(sessions QuoteSessionStore, opts ...QuoteOption) *QuoteHandlers {
	h := &QuoteHandlers{sessions: sessions}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the wizard endpoints relative to /quotes.
func (h *QuoteHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	guarded := r.With(h.confirm...)
	guarded.Post("/finish", h.finish)

	r.Post("/sessions", h.createSession)
	r.Route("/sessions/{sessionID}", func(s chi.Router) {
		s.Get("/", h.getSession)
		s.Delete("/", h.deleteSession)
		s.Post("/devices", h.addDevice)
		s.Delete("/devices/{deviceID}", h.removeDevice)
		s.Put("/active-device", h.setActiveDevice)
		s.Post("/devices/{deviceID}/items:toggle", h.toggleItem)
		s.Patch("/devices/{deviceID}/items", h.updateItem)
		s.Patch("/client", h.updateClient)
		s.Get("/schedule", h.monthView)
		s.Put("/appointment", h.selectAppointment)
		s.Post("/navigation:next", h.next)
		s.Post("/navigation:back", h.back)
		s.Post("/navigation:goto", h.goTo)
		s.Post("/finalize", h.requestFinalize)
		s.With(h.confirm...).Post("/finalize:confirm", h.confirmFinalize)
		s.Post("/finalize:cancel", h.cancelFinalize)
		s.Post("/reset", h.reset)
	})
}

type stepResponse struct {
	Step    string   `json:"step"`
	Valid   bool     `json:"valid"`
	Reasons []string `json:"reasons,omitempty"`
}

type itemResponse struct {
	Label    string  `json:"label"`
	Price    float64 `json:"price"`
	Qty      int     `json:"qty"`
	Color    *string `json:"color,omitempty"`
	PartKind string  `json:"partKind,omitempty"`
}

type deviceResponse struct {
	ID       int            `json:"id"`
	Category string         `json:"category"`
	Brand    string         `json:"brand"`
	Model    string         `json:"model"`
	Items    []itemResponse `json:"items"`
	Subtotal float64        `json:"subtotal"`
}

type clientResponse struct {
	FirstName    string          `json:"firstName"`
	LastName     string          `json:"lastName"`
	Email        string          `json:"email"`
	Phone        string          `json:"phone"`
	Notes        string          `json:"notes,omitempty"`
	PayInTwo     bool            `json:"payInTwo"`
	HasSignature bool            `json:"hasSignature"`
	ADomicile    bool            `json:"aDomicile"`
	Address      *domain.Address `json:"address,omitempty"`
	CGVAccepted  bool            `json:"cgvAccepted"`
}

type travelResponse struct {
	Status     string   `json:"status"`
	Error      string   `json:"error,omitempty"`
	DistanceKm *float64 `json:"distanceKm,omitempty"`
	Fee        *float64 `json:"fee,omitempty"`
}

type totalsResponse struct {
	Currency   string  `json:"currency"`
	TravelFee  float64 `json:"travelFee"`
	GrandTotal float64 `json:"grandTotal"`
}

type finalizeResponse struct {
	Status    string                  `json:"status"`
	Preview   *services.DocumentBundle `json:"preview,omitempty"`
	LastError string                  `json:"lastError,omitempty"`
}

type wizardViewResponse struct {
	Steps          []stepResponse       `json:"steps"`
	CurrentIndex   int                  `json:"currentIndex"`
	CurrentStep    string               `json:"currentStep"`
	Devices        []deviceResponse     `json:"devices"`
	ActiveDeviceID int                  `json:"activeDeviceId,omitempty"`
	Client         clientResponse       `json:"client"`
	Appointment    *domain.Appointment  `json:"appointment,omitempty"`
	Totals         totalsResponse       `json:"totals"`
	Eligibility    services.Eligibility `json:"eligibility"`
	Travel         travelResponse       `json:"travel"`
	Finalize       finalizeResponse     `json:"finalize"`
}

type quoteSessionResponse struct {
	SessionID string             `json:"sessionId"`
	Selected  *bool              `json:"selected,omitempty"`
	View      wizardViewResponse `json:"view"`
}

type finalizeResultResponse struct {
	QuoteNumber    string                 `json:"quoteNumber"`
	ContractNumber string                 `json:"contractNumber,omitempty"`
	Total          float64                `json:"total"`
	Receipt        domain.DeliveryReceipt `json:"receipt"`
	DraftKeys      []string               `json:"draftKeys"`
	View           wizardViewResponse     `json:"view"`
}

func newWizardViewResponse(view services.WizardView) wizardViewResponse {
	subtotals := make(map[int]float64, len(view.Totals.PerDevice))
	for _, total := range view.Totals.PerDevice {
		subtotals[total.DeviceID] = total.Subtotal
	}

	resp := wizardViewResponse{
		Steps:          make([]stepResponse, 0, len(view.Steps)),
		CurrentIndex:   view.CurrentIndex,
		CurrentStep:    string(view.CurrentStep),
		Devices:        make([]deviceResponse, 0, len(view.State.Devices)),
		ActiveDeviceID: view.State.ActiveDeviceID,
		Totals: totalsResponse{
			Currency:   view.Totals.Currency,
			TravelFee:  view.Totals.TravelFee,
			GrandTotal: view.Totals.GrandTotal,
		},
		Eligibility: view.Eligibility,
		Travel: travelResponse{
			Status:     string(view.TravelStatus),
			Error:      view.TravelError,
			DistanceKm: view.State.ClientInfo.DistanceKm,
			Fee:        view.State.ClientInfo.TravelFee,
		},
		Finalize: finalizeResponse{
			Status:    string(view.Finalize.Status),
			Preview:   view.Finalize.Preview,
			LastError: view.Finalize.LastError,
		},
	}
	for _, step := range view.Steps {
		resp.Steps = append(resp.Steps, stepResponse{Step: string(step.Step), Valid: step.Valid, Reasons: step.Reasons})
	}
	for _, device := range view.State.Devices {
		out := deviceResponse{
			ID:       device.ID,
			Category: device.Category,
			Brand:    string(device.Brand),
			Model:    device.Model,
			Items:    make([]itemResponse, 0, len(device.Items)),
			Subtotal: subtotals[device.ID],
		}
		for _, item := range device.Items {
			line := itemResponse{Label: item.Label, Price: item.Price, Qty: item.Quantity()}
			if item.Meta != nil {
				line.Color = item.Meta.Color
				line.PartKind = string(item.Meta.PartKind)
			}
			out.Items = append(out.Items, line)
		}
		resp.Devices = append(resp.Devices, out)
	}

	info := view.State.ClientInfo
	resp.Client = clientResponse{
		FirstName:    info.FirstName,
		LastName:     info.LastName,
		Email:        info.Email,
		Phone:        info.Phone,
		Notes:        info.Notes,
		PayInTwo:     info.PayInTwo,
		HasSignature: info.SignatureDataURL != "",
		ADomicile:    info.ADomicile,
		Address:      info.Address,
		CGVAccepted:  info.CGVAccepted,
	}
	if appt := view.State.Appointment; appt.Date != "" || appt.Slot != "" {
		resp.Appointment = &appt
	}
	return resp
}

func (h *QuoteHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		unavailable(w, r, "quote")
		return
	}
	id, view, err := h.sessions.Create(r.Context())
	if err != nil {
		writeQuoteError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, quoteSessionResponse{SessionID: id, View: newWizardViewResponse(view)})
}

func (h *QuoteHandlers) getSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		unavailable(w, r, "quote")
		return
	}
	id := chi.URLParam(r, "sessionID")
	view, err := h.sessions.View(r.Context(), id)
	if err != nil {
		writeQuoteError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, quoteSessionResponse{SessionID: id, View: newWizardViewResponse(view)})
}

func (h *QuoteHandlers) deleteSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		unavailable(w, r, "quote")
		return
	}
	if err := h.sessions.Delete(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeQuoteError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// mutate runs fn against the session wizard and answers with the resulting view.
func (h *QuoteHandlers) mutate(w http.ResponseWriter, r *http.Request, fn func(wz *services.QuoteWizard) error) {
	if h.sessions == nil {
		unavailable(w, r, "quote")
		return
	}
	id := chi.URLParam(r, "sessionID")
	view, err := h.sessions.Do(r.Context(), id, fn)
	if err != nil {
		writeQuoteError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, quoteSessionResponse{SessionID: id, View: newWizardViewResponse(view)})
}

type addDeviceRequest struct {
	Category string `json:"category"`
	Model    string `json:"model"`
}

func (h *QuoteHandlers) addDevice(w http.ResponseWriter, r *http.Request) {
	var req addDeviceRequest
	if !decodeRequest(w, r, maxQuoteRequestBody, &req, false) {
		return
	}
	if strings.TrimSpace(req.Category) == "" || strings.TrimSpace(req.Model) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "category and model are required", http.StatusBadRequest))
		return
	}
	h.mutate(w, r, func(wz *services.QuoteWizard) error {
		_, err := wz.AddDevice(req.Category, req.Model)
		return err
	})
}

func deviceIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "deviceID"))
	if err != nil || id <= 0 {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "deviceID must be a positive integer", http.StatusBadRequest))
		return 0, false
	}
	return id, true
}

func (h *QuoteHandlers) removeDevice(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := deviceIDParam(w, r)
	if !ok {
		return
	}
	h.mutate(w, r, func(wz *services.QuoteWizard) error {
		return wz.RemoveDevice(deviceID)
	})
}

type activeDeviceRequest struct {
	DeviceID int `json:"deviceId"`
}

func (h *QuoteHandlers) setActiveDevice(w http.ResponseWriter, r *http.Request) {
	var req activeDeviceRequest
	if !decodeRequest(w, r, maxQuoteRequestBody, &req, false) {
		return
	}
	h.mutate(w, r, func(wz *services.QuoteWizard) error {
		return wz.SetActiveDevice(req.DeviceID)
	})
}

type toggleItemRequest struct {
	Label string  `json:"label"`
	Color *string `json:"color"`
}

func (h *QuoteHandlers) toggleItem(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := deviceIDParam(w, r)
	if !ok {
		return
	}
	var req toggleItemRequest
	if !decodeRequest(w, r, maxQuoteRequestBody, &req, false) {
		return
	}
	if strings.TrimSpace(req.Label) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "label is required", http.StatusBadRequest))
		return
	}
	if h.sessions == nil {
		unavailable(w, r, "quote")
		return
	}
	id := chi.URLParam(r, "sessionID")
	var selected bool
	view, err := h.sessions.Do(r.Context(), id, func(wz *services.QuoteWizard) error {
		var err error
		selected, err = wz.ToggleItem(deviceID, req.Label, req.Color)
		return err
	})
	if err != nil {
		writeQuoteError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, quoteSessionResponse{SessionID: id, Selected: &selected, View: newWizardViewResponse(view)})
}

// updateItemRequest keeps color raw so an explicit null ("don't know") differs from an absent field.
type updateItemRequest struct {
	Label string          `json:"label"`
	Color json.RawMessage `json:"color"`
	Qty   *int            `json:"qty"`
}

func (h *QuoteHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := deviceIDParam(w, r)
	if !ok {
		return
	}
	var req updateItemRequest
	if !decodeRequest(w, r, maxQuoteRequestBody, &req, false) {
		return
	}
	if strings.TrimSpace(req.Label) == "" || (req.Qty == nil && len(req.Color) == 0) {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "label and one of color or qty are required", http.StatusBadRequest))
		return
	}
	var color *string
	if len(req.Color) > 0 && string(req.Color) != "null" {
		var value string
		if err := json.Unmarshal(req.Color, &value); err != nil {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "color must be a string or null", http.StatusBadRequest))
			return
		}
		color = &value
	}
	h.mutate(w, r, func(wz *services.QuoteWizard) error {
		if len(req.Color) > 0 {
			if err := wz.SetItemColor(deviceID, req.Label, color); err != nil {
				return err
			}
		}
		if req.Qty != nil {
			return wz.SetItemQty(deviceID, req.Label, *req.Qty)
		}
		return nil
	})
}

type clientInfoRequest struct {
	FirstName        *string         `json:"firstName"`
	LastName         *string         `json:"lastName"`
	Email            *string         `json:"email"`
	Phone            *string         `json:"phone"`
	Notes            *string         `json:"notes"`
	PayInTwo         *bool           `json:"payInTwo"`
	SignatureDataURL *string         `json:"signatureDataUrl"`
	ADomicile        *bool           `json:"aDomicile"`
	Address          *domain.Address `json:"address"`
	CGVAccepted      *bool           `json:"cgvAccepted"`
}

func (h *QuoteHandlers) updateClient(w http.ResponseWriter, r *http.Request) {
	var req clientInfoRequest
	if !decodeRequest(w, r, maxQuoteRequestBody, &req, false) {
		return
	}
	patch := services.ClientInfoPatch{
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Email:            req.Email,
		Phone:            req.Phone,
		Notes:            req.Notes,
		PayInTwo:         req.PayInTwo,
		SignatureDataURL: req.SignatureDataURL,
		ADomicile:        req.ADomicile,
		Address:          req.Address,
		CGVAccepted:      req.CGVAccepted,
	}
	h.mutate(w, r, func(wz *services.QuoteWizard) error {
		return wz.UpdateClientInfo(patch)
	})
}

func (h *QuoteHandlers) monthView(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		unavailable(w, r, "quote")
		return
	}
	var month services.MonthView
	_, err := h.sessions.Do(r.Context(), chi.URLParam(r, "sessionID"), func(wz *services.QuoteWizard) error {
		var err error
		month, err = wz.MonthView(r.URL.Query().Get("month"))
		return err
	})
	if err != nil {
		writeQuoteError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, month)
}

type appointmentRequest struct {
	Date string `json:"date"`
	Slot string `json:"slot"`
}

func (h *QuoteHandlers) selectAppointment(w http.ResponseWriter, r *http.Request) {
	var req appointmentRequest
	if !decodeRequest(w, r, maxQuoteRequestBody, &req, false) {
		return
	}
	if strings.TrimSpace(req.Date) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "date is required", http.StatusBadRequest))
		return
	}
	h.mutate(w, r, func(wz *services.QuoteWizard) error {
		return wz.SelectAppointment(req.Date, req.Slot)
	})
}

func (h *QuoteHandlers) next(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(wz *services.QuoteWizard) error { return wz.Next() })
}

func (h *QuoteHandlers) back(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(wz *services.QuoteWizard) error {
		wz.Back()
		return nil
	})
}

type gotoRequest struct {
	Index *int `json:"index"`
}

func (h *QuoteHandlers) goTo(w http.ResponseWriter, r *http.Request) {
	var req gotoRequest
	if !decodeRequest(w, r, maxQuoteRequestBody, &req, false) {
		return
	}
	if req.Index == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "index is required", http.StatusBadRequest))
		return
	}
	h.mutate(w, r, func(wz *services.QuoteWizard) error { return wz.GoTo(*req.Index) })
}

func (h *QuoteHandlers) requestFinalize(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(wz *services.QuoteWizard) error {
		_, err := wz.RequestFinalize()
		return err
	})
}

func (h *QuoteHandlers) cancelFinalize(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(wz *services.QuoteWizard) error {
		wz.CancelFinalize()
		return nil
	})
}

func (h *QuoteHandlers) reset(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(wz *services.QuoteWizard) error {
		wz.Reset()
		return nil
	})
}

func (h *QuoteHandlers) confirmFinalize(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		unavailable(w, r, "quote")
		return
	}
	result, view, err := h.sessions.Confirm(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeQuoteError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, finalizeResultResponse{
		QuoteNumber:    result.QuoteNumber,
		ContractNumber: result.ContractNumber,
		Total:          result.Total,
		Receipt:        result.Receipt,
		DraftKeys:      result.DraftKeys,
		View:           newWizardViewResponse(view),
	})
}

type finishResponse struct {
	OK bool `json:"ok"`
	domain.DeliveryReceipt
}

func (h *QuoteHandlers) finish(w http.ResponseWriter, r *http.Request) {
	if h.delivery == nil {
		unavailable(w, r, "delivery")
		return
	}
	var bundle services.DocumentBundle
	if !decodeRequest(w, r, maxQuoteRequestBody, &bundle, false) {
		return
	}
	receipt, err := h.delivery.Deliver(r.Context(), bundle)
	if err != nil {
		if errors.Is(err, services.ErrDeliveryInvalidPayload) {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_payload", err.Error(), http.StatusBadRequest))
			return
		}
		httpx.WriteError(r.Context(), w, httpx.NewError("delivery_failed", "documents could not be delivered", http.StatusBadGateway))
		return
	}
	writeJSONResponse(w, http.StatusOK, finishResponse{OK: true, DeliveryReceipt: receipt})
}

func writeQuoteError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var stepErr *services.StepValidationError
	switch {
	case errors.As(err, &stepErr):
		httpx.WriteError(ctx, w, httpx.NewError("step_invalid", "step requirements not met", http.StatusUnprocessableEntity).
			WithDetails(map[string]any{"step": string(stepErr.Step), "reasons": stepErr.Reasons}))
	case errors.Is(err, services.ErrQuoteSessionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("session_not_found", "quote session not found", http.StatusNotFound))
	case errors.Is(err, services.ErrUnknownDevice):
		httpx.WriteError(ctx, w, httpx.NewError("device_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrUnknownModel),
		errors.Is(err, services.ErrUnknownRepair),
		errors.Is(err, services.ErrItemNotSelected),
		errors.Is(err, services.ErrInvalidQuantity),
		errors.Is(err, services.ErrInvalidScheduleDate),
		errors.Is(err, services.ErrInvalidScheduleMonth):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrDayNotSelectable),
		errors.Is(err, services.ErrSlotNotSelectable),
		errors.Is(err, services.ErrAtHomeRequired):
		httpx.WriteError(ctx, w, httpx.NewError("appointment_invalid", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCGVRefused):
		httpx.WriteError(ctx, w, httpx.NewError("cgv_refused", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrNothingSelected):
		httpx.WriteError(ctx, w, httpx.NewError("nothing_selected", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrStepOutOfRange),
		errors.Is(err, services.ErrFinalizeNotRequested),
		errors.Is(err, services.ErrFinalizeInProgress):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrFinalizeFailed):
		httpx.WriteError(ctx, w, httpx.NewError("finalize_failed", "documents could not be delivered, please retry", http.StatusBadGateway))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "quote operation failed", http.StatusInternalServerError))
	}
}
