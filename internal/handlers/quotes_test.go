package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recophone/api/internal/domain"
	"github.com/recophone/api/internal/services"
)

type staticCatalogProvider struct {
	catalog services.Catalog
}

func (p staticCatalogProvider) Catalog(context.Context) (services.Catalog, error) {
	return p.catalog, nil
}

type finalizerFunc func(ctx context.Context, state services.WizardState) (services.FinalizeResult, error)

func (f finalizerFunc) Finalize(ctx context.Context, state services.WizardState) (services.FinalizeResult, error) {
	return f(ctx, state)
}

type deliveryFunc func(ctx context.Context, bundle services.DocumentBundle) (services.DeliveryReceipt, error)

func (f deliveryFunc) Deliver(ctx context.Context, bundle services.DocumentBundle) (services.DeliveryReceipt, error) {
	return f(ctx, bundle)
}

func handlerTestCatalog() services.Catalog {
	return services.Catalog{
		Categories: []domain.Category{{
			Name:  "iPhone",
			Brand: domain.BrandApple,
			Models: []domain.Model{{
				Name:   "iPhone 13",
				Colors: []string{"Noir", "Bleu"},
				RepairOptions: []domain.RepairOption{
					{Label: "Écran", Price: 129},
					{Label: "Face arrière", Price: 89, RequiresColor: &domain.ColorRequirement{Part: domain.PartKindBack}},
				},
			}},
		}},
	}
}

func newQuoteTestRouter(t *testing.T, finalizer services.Finalizer, opts ...QuoteOption) (chi.Router, *services.QuoteSessionService) {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Brussels")
	require.NoError(t, err)
	now := time.Date(2026, time.March, 4, 10, 0, 0, 0, loc)
	clock := func() time.Time { return now }
	var ids atomic.Int32
	svc, err := services.NewQuoteSessionService(services.QuoteSessionServiceDeps{
		Catalog:     staticCatalogProvider{catalog: handlerTestCatalog()},
		Schedule:    services.NewScheduleResolver(loc, nil, clock),
		Finalizer:   finalizer,
		Clock:       clock,
		IDGenerator: func() string { return fmt.Sprintf("sess-%d", ids.Add(1)) },
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	router := chi.NewRouter()
	router.Route("/quotes", NewQuoteHandlers(svc, opts...).Routes)
	return router, svc
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeSession(t *testing.T, rr *httptest.ResponseRecorder) quoteSessionResponse {
	t.Helper()
	var resp quoteSessionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	return resp
}

func TestQuoteHandlersWizardFlow(t *testing.T) {
	var finalized services.WizardState
	router, _ := newQuoteTestRouter(t, finalizerFunc(func(_ context.Context, state services.WizardState) (services.FinalizeResult, error) {
		finalized = state
		return services.FinalizeResult{
			QuoteNumber: "RP_00007",
			Total:       129,
			Receipt:     services.DeliveryReceipt{Folder: "DUPONT_RP_00007", QuoteURL: "https://docs.example/DUPONT_RP_00007/devis_RP_00007.pdf"},
			DraftKeys:   services.QuoteDraftKeys,
		}, nil
	}))

	rr := doJSON(t, router, http.MethodPost, "/quotes/sessions", "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decodeSession(t, rr)
	assert.Equal(t, "sess-1", created.SessionID)
	assert.Equal(t, "model", created.View.CurrentStep)
	require.Len(t, created.View.Steps, 4)
	assert.False(t, created.View.Steps[0].Valid)
	base := "/quotes/sessions/sess-1"

	rr = doJSON(t, router, http.MethodPost, base+"/devices", `{"category":"iPhone","model":"iPhone 13"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	view := decodeSession(t, rr).View
	require.Len(t, view.Devices, 1)
	assert.Equal(t, 1, view.ActiveDeviceID)

	rr = doJSON(t, router, http.MethodPost, base+"/devices/1/items:toggle", `{"label":"Écran"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	toggled := decodeSession(t, rr)
	require.NotNil(t, toggled.Selected)
	assert.True(t, *toggled.Selected)
	assert.InDelta(t, 129, toggled.View.Totals.GrandTotal, 1e-9)

	rr = doJSON(t, router, http.MethodPatch, base+"/devices/1/items", `{"label":"Écran","qty":2}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	view = decodeSession(t, rr).View
	assert.Equal(t, 2, view.Devices[0].Items[0].Qty)
	assert.InDelta(t, 258, view.Devices[0].Subtotal, 1e-9)

	rr = doJSON(t, router, http.MethodPatch, base+"/devices/1/items", `{"label":"Écran","qty":1}`)
	require.Equal(t, http.StatusOK, rr.Code)

	for _, want := range []string{"repairs", "info"} {
		rr = doJSON(t, router, http.MethodPost, base+"/navigation:next", "")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, want, decodeSession(t, rr).View.CurrentStep)
	}

	rr = doJSON(t, router, http.MethodPost, base+"/navigation:next", "")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var stepErr map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stepErr))
	assert.Equal(t, "step_invalid", stepErr["error"])
	assert.Equal(t, "info", stepErr["step"])
	assert.NotEmpty(t, stepErr["reasons"])

	rr = doJSON(t, router, http.MethodPatch, base+"/client", `{"firstName":"Marie","lastName":"Dupont","email":"marie@example.be","phone":"0492 09 05 33","notes":"<b>fragile</b>"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	view = decodeSession(t, rr).View
	assert.Equal(t, "fragile", view.Client.Notes)
	assert.False(t, view.Client.HasSignature)

	rr = doJSON(t, router, http.MethodPost, base+"/navigation:next", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "resume", decodeSession(t, rr).View.CurrentStep)

	rr = doJSON(t, router, http.MethodPost, base+"/finalize:confirm", "")
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = doJSON(t, router, http.MethodPost, base+"/finalize", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	view = decodeSession(t, rr).View
	assert.Equal(t, "confirming", view.Finalize.Status)
	require.NotNil(t, view.Finalize.Preview)
	assert.Equal(t, "Dupont", view.Finalize.Preview.Quote.Client.LastName)

	rr = doJSON(t, router, http.MethodPost, base+"/finalize:confirm", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var result finalizeResultResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, "RP_00007", result.QuoteNumber)
	assert.Equal(t, "DUPONT_RP_00007", result.Receipt.Folder)
	assert.Equal(t, services.QuoteDraftKeys, result.DraftKeys)
	assert.Equal(t, "model", result.View.CurrentStep)
	assert.Empty(t, result.View.Devices)
	require.Len(t, finalized.Devices, 1)

	rr = doJSON(t, router, http.MethodDelete, base, "")
	require.Equal(t, http.StatusNoContent, rr.Code)
	rr = doJSON(t, router, http.MethodGet, base, "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestQuoteHandlersFinalizeFailureKeepsSession(t *testing.T) {
	router, svc := newQuoteTestRouter(t, finalizerFunc(func(context.Context, services.WizardState) (services.FinalizeResult, error) {
		return services.FinalizeResult{}, fmt.Errorf("%w: smtp down", services.ErrFinalizeFailed)
	}))
	id, _, err := svc.Create(context.Background())
	require.NoError(t, err)
	_, err = svc.Do(context.Background(), id, func(w *services.QuoteWizard) error {
		if _, err := w.AddDevice("iPhone", "iPhone 13"); err != nil {
			return err
		}
		if _, err := w.ToggleItem(1, "Écran", nil); err != nil {
			return err
		}
		first, last, email, phone := "Marie", "Dupont", "marie@example.be", "0492 09 05 33"
		if err := w.UpdateClientInfo(services.ClientInfoPatch{FirstName: &first, LastName: &last, Email: &email, Phone: &phone}); err != nil {
			return err
		}
		_, err := w.RequestFinalize()
		return err
	})
	require.NoError(t, err)

	rr := doJSON(t, router, http.MethodPost, "/quotes/sessions/"+id+"/finalize:confirm", "")
	require.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), "finalize_failed")

	view, err := svc.View(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, services.FinalizeConfirming, view.Finalize.Status)
	assert.NotEmpty(t, view.Finalize.LastError)
	require.Len(t, view.State.Devices, 1)
}

func TestQuoteHandlersFinalizeRequiresValidInfo(t *testing.T) {
	router, _ := newQuoteTestRouter(t, finalizerFunc(func(context.Context, services.WizardState) (services.FinalizeResult, error) {
		t.Fatal("finalizer must not run")
		return services.FinalizeResult{}, nil
	}))
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/quotes/sessions", "").Code)
	base := "/quotes/sessions/sess-1"
	require.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPost, base+"/devices", `{"category":"iPhone","model":"iPhone 13"}`).Code)
	require.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPost, base+"/devices/1/items:toggle", `{"label":"Écran"}`).Code)
	require.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPatch, base+"/client", `{"aDomicile":true}`).Code)

	rr := doJSON(t, router, http.MethodPost, base+"/finalize", "")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "step_invalid", body["error"])
	assert.Equal(t, "info", body["step"])
}

func TestQuoteHandlersValidationErrors(t *testing.T) {
	router, _ := newQuoteTestRouter(t, finalizerFunc(func(context.Context, services.WizardState) (services.FinalizeResult, error) {
		return services.FinalizeResult{}, nil
	}))
	rr := doJSON(t, router, http.MethodPost, "/quotes/sessions", "")
	require.Equal(t, http.StatusCreated, rr.Code)
	base := "/quotes/sessions/sess-1"

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown session", http.MethodGet, "/quotes/sessions/nope", "", http.StatusNotFound},
		{"missing model", http.MethodPost, base + "/devices", `{"category":"iPhone"}`, http.StatusBadRequest},
		{"unknown model", http.MethodPost, base + "/devices", `{"category":"iPhone","model":"iPhone 99"}`, http.StatusBadRequest},
		{"malformed json", http.MethodPost, base + "/devices", `{`, http.StatusBadRequest},
		{"bad device id", http.MethodDelete, base + "/devices/abc", "", http.StatusBadRequest},
		{"unknown device", http.MethodDelete, base + "/devices/9", "", http.StatusNotFound},
		{"jump ahead", http.MethodPost, base + "/navigation:goto", `{"index":3}`, http.StatusConflict},
		{"missing index", http.MethodPost, base + "/navigation:goto", `{}`, http.StatusBadRequest},
		{"appointment without at-home", http.MethodPut, base + "/appointment", `{"date":"2026-03-14"}`, http.StatusUnprocessableEntity},
		{"bad month", http.MethodGet, base + "/schedule?month=march", "", http.StatusBadRequest},
		{"cgv before travel", http.MethodPatch, base + "/client", `{"cgvAccepted":true}`, http.StatusUnprocessableEntity},
		{"finalize empty", http.MethodPost, base + "/finalize", "", http.StatusUnprocessableEntity},
		{"item update without change", http.MethodPatch, base + "/devices/1/items", `{"label":"Écran"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doJSON(t, router, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, rr.Code, rr.Body.String())
		})
	}
}

func TestQuoteHandlersScheduleAndColor(t *testing.T) {
	router, _ := newQuoteTestRouter(t, finalizerFunc(func(context.Context, services.WizardState) (services.FinalizeResult, error) {
		return services.FinalizeResult{}, nil
	}))
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/quotes/sessions", "").Code)
	base := "/quotes/sessions/sess-1"

	rr := doJSON(t, router, http.MethodGet, base+"/schedule?month=2026-03", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var month services.MonthView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &month))
	assert.Equal(t, "2026-03", month.Month)
	assert.Len(t, month.Days, 31)

	require.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPost, base+"/devices", `{"category":"iPhone","model":"iPhone 13"}`).Code)
	rr = doJSON(t, router, http.MethodPost, base+"/devices/1/items:toggle", `{"label":"Face arrière","color":"Bleu"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	view := decodeSession(t, rr).View
	require.NotNil(t, view.Devices[0].Items[0].Color)
	assert.Equal(t, "Bleu", *view.Devices[0].Items[0].Color)
	assert.True(t, view.Eligibility.Forbidden)

	rr = doJSON(t, router, http.MethodPatch, base+"/devices/1/items", `{"label":"Face arrière","color":null}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	view = decodeSession(t, rr).View
	assert.Nil(t, view.Devices[0].Items[0].Color)

	rr = doJSON(t, router, http.MethodPost, base+"/devices/1/items:toggle", `{"label":"Face arrière"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	toggled := decodeSession(t, rr)
	assert.False(t, *toggled.Selected)
	assert.False(t, toggled.View.Eligibility.Forbidden)
}

func TestQuoteHandlersFinish(t *testing.T) {
	var delivered services.DocumentBundle
	delivery := deliveryFunc(func(_ context.Context, bundle services.DocumentBundle) (services.DeliveryReceipt, error) {
		if bundle.Quote.Client.Email == "" {
			return services.DeliveryReceipt{}, services.ErrDeliveryInvalidPayload
		}
		if bundle.Quote.QuoteNumber == "RP_00500" {
			return services.DeliveryReceipt{}, errors.New("ftp: 421 service not available")
		}
		delivered = bundle
		return services.DeliveryReceipt{Folder: "DUPONT_RP_00001", QuoteURL: "https://docs.example/q.pdf"}, nil
	})
	router, _ := newQuoteTestRouter(t, finalizerFunc(func(context.Context, services.WizardState) (services.FinalizeResult, error) {
		return services.FinalizeResult{}, nil
	}), WithQuoteDelivery(delivery))

	rr := doJSON(t, router, http.MethodPost, "/quotes/finish", `{"quote":{"quoteNumber":"RP_00001","client":{"firstName":"Marie","lastName":"Dupont","email":"marie@example.be","phone":"0492"},"devices":[],"total":0},"payInTwo":false}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, "DUPONT_RP_00001", resp["folder"])
	assert.Equal(t, "RP_00001", delivered.Quote.QuoteNumber)

	rr = doJSON(t, router, http.MethodPost, "/quotes/finish", `{"quote":{"quoteNumber":"RP_00001","client":{"lastName":"Dupont"}}}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/quotes/finish", `{"quote":{"quoteNumber":"RP_00500","client":{"lastName":"Dupont","email":"a@b.be"}}}`)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}
