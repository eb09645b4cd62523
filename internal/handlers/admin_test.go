package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/recophone/api/internal/domain"
	"github.com/recophone/api/internal/platform/auth"
	"github.com/recophone/api/internal/platform/config"
	"github.com/recophone/api/internal/platform/pagination"
	"github.com/recophone/api/internal/platform/storage"
	"github.com/recophone/api/internal/services"
)

type stubLedger struct {
	query   services.QuoteLedgerQuery
	page    domain.CursorPage[services.QuoteRecord]
	records map[string]services.QuoteRecord
}

func (s *stubLedger) List(_ context.Context, query services.QuoteLedgerQuery) (domain.CursorPage[services.QuoteRecord], error) {
	s.query = query
	if query.Status == "pending" {
		return domain.CursorPage[services.QuoteRecord]{}, services.ErrQuoteLedgerInvalidFilter
	}
	return s.page, nil
}

func (s *stubLedger) Find(_ context.Context, number string) (services.QuoteRecord, error) {
	record, ok := s.records[number]
	if !ok {
		return services.QuoteRecord{}, services.ErrQuoteRecordNotFound
	}
	return record, nil
}

type adminFixture struct {
	router chi.Router
	store  *storage.MemoryStore
	ledger *stubLedger
}

func newAdminFixture(t *testing.T, opts ...AdminOption) adminFixture {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	creds, err := auth.NewCredentials(config.AdminConfig{Email: "admin@recophone.be", PasswordHash: string(hash)})
	require.NoError(t, err)
	sessions, err := auth.NewSessions([]byte(strings.Repeat("k", 32)), time.Hour, nil)
	require.NoError(t, err)
	authSvc, err := services.NewAdminAuthService(services.AdminAuthServiceDeps{Credentials: creds, Sessions: sessions})
	require.NoError(t, err)

	store := storage.NewMemoryStore("https://docs.recophone.be")
	browser, err := services.NewDocumentBrowserService(services.DocumentBrowserServiceDeps{Store: store})
	require.NoError(t, err)
	ledger := &stubLedger{records: map[string]services.QuoteRecord{}}

	opts = append([]AdminOption{WithAdminDocuments(browser), WithAdminLedger(ledger)}, opts...)
	router := chi.NewRouter()
	router.Route("/admin", NewAdminHandlers(authSvc, auth.Cookies{Name: "rp_session"}, opts...).Routes)
	return adminFixture{router: router, store: store, ledger: ledger}
}

func (f adminFixture) login(t *testing.T) *http.Cookie {
	t.Helper()
	rr := doJSON(t, f.router, http.MethodPost, "/admin/auth/login", `{"email":"ADMIN@recophone.be","password":"s3cret-pass"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	for _, c := range rr.Result().Cookies() {
		if c.Name == "rp_session" {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func (f adminFixture) get(t *testing.T, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func TestAdminHandlersLoginFlow(t *testing.T) {
	f := newAdminFixture(t)

	rr := f.get(t, "/admin/auth/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"authenticated":false}`, rr.Body.String())

	rr = doJSON(t, f.router, http.MethodPost, "/admin/auth/login", `{"email":"admin@recophone.be","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	rr = doJSON(t, f.router, http.MethodPost, "/admin/auth/login", `{"email":"admin@recophone.be"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = doJSON(t, f.router, http.MethodPost, "/admin/auth/login", `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	cookie := f.login(t)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	rr = f.get(t, "/admin/auth/status", cookie)
	var status authStatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.True(t, status.Authenticated)
	assert.Equal(t, "admin@recophone.be", status.Email)

	rr = doJSON(t, f.router, http.MethodPost, "/admin/auth/logout", "")
	require.Equal(t, http.StatusOK, rr.Code)
	cleared := rr.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge)
}

func TestAdminHandlersLoginRateLimited(t *testing.T) {
	now := time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)
	f := newAdminFixture(t, WithLoginRateLimit(3), WithAdminClock(func() time.Time { return now }))
	for i := 0; i < 3; i++ {
		rr := doJSON(t, f.router, http.MethodPost, "/admin/auth/login", `{"email":"admin@recophone.be","password":"nope"}`)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	}
	rr := doJSON(t, f.router, http.MethodPost, "/admin/auth/login", `{"email":"admin@recophone.be","password":"s3cret-pass"}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestAdminHandlersRequireSession(t *testing.T) {
	f := newAdminFixture(t)
	for _, path := range []string{
		"/admin/documents",
		"/admin/documents/browse?path=",
		"/admin/documents/download?path=a.pdf",
		"/admin/quotes",
		"/admin/quotes/RP_00001",
	} {
		assert.Equal(t, http.StatusUnauthorized, f.get(t, path, nil).Code, path)
	}
	forged := &http.Cookie{Name: "rp_session", Value: "eyJhbGciOiJIUzI1NiJ9.e30.forged"}
	assert.Equal(t, http.StatusUnauthorized, f.get(t, "/admin/documents", forged).Code)
}

func TestAdminHandlersDocuments(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Put(ctx, "DUPONT_RP_00001/devis_RP_00001.pdf", bytes.NewReader([]byte("%PDF-1.7")), 8, "application/pdf"))
	require.NoError(t, f.store.Put(ctx, "DUPONT_RP_00001/contrat_RC_00001.pdf", bytes.NewReader([]byte("%PDF")), 4, "application/pdf"))
	require.NoError(t, f.store.Put(ctx, "LEFÈVRE_RP_00002/devis_RP_00002 final.pdf", bytes.NewReader([]byte("%PDF-x")), 6, ""))
	cookie := f.login(t)

	rr := f.get(t, "/admin/documents", cookie)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var folders struct {
		Folders []folderResponse `json:"folders"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &folders))
	require.Len(t, folders.Folders, 2)
	counts := map[string]folderResponse{}
	for _, folder := range folders.Folders {
		counts[folder.Name] = folder
	}
	assert.Equal(t, 2, counts["DUPONT_RP_00001"].FileCount)
	assert.Equal(t, int64(12), counts["DUPONT_RP_00001"].TotalSize)

	rr = f.get(t, "/admin/documents/browse?path=DUPONT_RP_00001", cookie)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var listing struct {
		Path    string          `json:"path"`
		Entries []entryResponse `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listing))
	require.Len(t, listing.Entries, 2)
	assert.Equal(t, "contrat_RC_00001.pdf", listing.Entries[0].Name)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/admin/documents/browse?path=../etc", cookie).Code)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/admin/documents/browse?path=NOBODY", cookie).Code)

	rr = f.get(t, "/admin/documents/download?path=DUPONT_RP_00001/devis_RP_00001.pdf&disposition=inline", cookie)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.Equal(t, `inline; filename="devis_RP_00001.pdf"; filename*=UTF-8''devis_RP_00001.pdf`, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.7", rr.Body.String())

	rr = f.get(t, "/admin/documents/download?path=LEF%C3%88VRE_RP_00002/devis_RP_00002%20final.pdf", cookie)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="devis_RP_00002 final.pdf"; filename*=UTF-8''devis_RP_00002%20final.pdf`, rr.Header().Get("Content-Disposition"))

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/admin/documents/download?path=a.pdf&disposition=evil", cookie).Code)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/admin/documents/download?path=DUPONT_RP_00001/missing.pdf", cookie).Code)
}

func TestContentDispositionEncodesNonASCII(t *testing.T) {
	got := contentDisposition("attachment", `Lefèvre "devis".pdf`)
	assert.Equal(t, `attachment; filename="Lef_vre _devis_.pdf"; filename*=UTF-8''Lef%C3%A8vre%20%22devis%22.pdf`, got)
}

func TestAdminHandlersQuotes(t *testing.T) {
	f := newAdminFixture(t)
	created := time.Date(2026, time.March, 7, 9, 0, 0, 0, time.UTC)
	record := services.QuoteRecord{
		ID:          "01HZ0000000000000000000001",
		QuoteNumber: "RP_00001",
		ClientName:  "Marie Dupont",
		ClientEmail: "marie@example.be",
		DeviceCount: 1,
		Total:       146.5,
		TravelFee:   17.5,
		ADomicile:   true,
		Appointment: domain.Appointment{Date: "2026-03-14", Slot: "10:15"},
		Status:      domain.QuoteStatusDelivered,
		CreatedAt:   created,
	}
	f.ledger.page = domain.CursorPage[services.QuoteRecord]{Items: []services.QuoteRecord{record}, NextPageToken: "next-token"}
	f.ledger.records["RP_00001"] = record
	cookie := f.login(t)

	rr := f.get(t, "/admin/quotes?pageSize=1&status=delivered", cookie)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var list quoteListResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, "next-token", list.NextPageToken)
	assert.Equal(t, "2026-03-14 10:15", list.Items[0].Appointment)
	assert.Equal(t, "delivered", list.Items[0].Status)
	assert.Equal(t, pagination.Params{PageSize: 1}, f.ledger.query.Page)
	assert.Equal(t, "delivered", f.ledger.query.Status)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/admin/quotes?pageSize=abc", cookie).Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/admin/quotes?status=pending", cookie).Code)

	rr = f.get(t, "/admin/quotes/RP_00001", cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"clientName":"Marie Dupont"`)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/admin/quotes/RP_09999", cookie).Code)
}
