package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/recophone/api/internal/domain"
	"github.com/recophone/api/internal/platform/auth"
	"github.com/recophone/api/internal/platform/httpx"
	"github.com/recophone/api/internal/platform/pagination"
	"github.com/recophone/api/internal/services"
)

const (
	defaultLoginRatePerMinute = 10
	maxLoginRequestBody       = 8 * 1024
	defaultAdminCookieName    = "rp_session"
)

// AdminAuthenticator logs the back-office admin in.
type AdminAuthenticator interface {
	Login(ctx context.Context, email, password string) (services.AdminSession, error)
	Sessions() *auth.Sessions
}

// DocumentBrowser lists and opens stored documents.
type DocumentBrowser interface {
	Folders(ctx context.Context) ([]services.FolderSummary, error)
	Browse(ctx context.Context, path string) ([]services.DocumentEntry, error)
	Open(ctx context.Context, path string) (services.DocumentDownload, error)
}

// QuoteLedger pages through finalization attempts.
type QuoteLedger interface {
	List(ctx context.Context, query services.QuoteLedgerQuery) (domain.CursorPage[services.QuoteRecord], error)
	Find(ctx context.Context, quoteNumber string) (services.QuoteRecord, error)
}

// AdminHandlers serves the back-office login, document browser and quote ledger.
type AdminHandlers struct {
	auth    AdminAuthenticator
	cookies auth.Cookies
	browser DocumentBrowser
	ledger  QuoteLedger
	limiter rateLimiter
	now     func() time.Time
}

// AdminOption customises AdminHandlers.
type AdminOption func(*adminConfig)

type adminConfig struct {
	browser    DocumentBrowser
	ledger     QuoteLedger
	loginLimit int
	clock      func() time.Time
}

// WithAdminDocuments enables the document browser routes.
func WithAdminDocuments(browser DocumentBrowser) AdminOption {
	return func(cfg *adminConfig) { cfg.browser = browser }
}

// WithAdminLedger enables the quote ledger routes.
func WithAdminLedger(ledger QuoteLedger) AdminOption {
	return func(cfg *adminConfig) { cfg.ledger = ledger }
}

// WithLoginRateLimit overrides the per-IP login attempts per minute; zero disables it.
func WithLoginRateLimit(perMinute int) AdminOption {
	return func(cfg *adminConfig) { cfg.loginLimit = perMinute }
}

// WithAdminClock injects a clock for cookies and the login limiter.
func WithAdminClock(clock func() time.Time) AdminOption {
	return func(cfg *adminConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// NewAdminHandlers constructs the admin endpoints.
func NewAdminHandlers(authn AdminAuthenticator, cookies auth.Cookies, opts ...AdminOption) *AdminHandlers {
	cfg := adminConfig{loginLimit: defaultLoginRatePerMinute, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if strings.TrimSpace(cookies.Name) == "" {
		cookies.Name = defaultAdminCookieName
	}
	return &AdminHandlers{
		auth:    authn,
		cookies: cookies,
		browser: cfg.browser,
		ledger:  cfg.ledger,
		limiter: newPerMinuteLimiter(cfg.loginLimit, cfg.clock),
		now:     cfg.clock,
	}
}

// Routes registers admin endpoints relative to /admin.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(rateLimit(h.limiter)).Post("/auth/login", h.login)
	r.Post("/auth/logout", h.logout)
	r.Get("/auth/status", h.status)

	var sessions *auth.Sessions
	if h.auth != nil {
		sessions = h.auth.Sessions()
	}
	r.Group(func(protected chi.Router) {
		protected.Use(auth.RequireAdmin(sessions, h.cookies))
		protected.Get("/documents", h.listFolders)
		protected.Get("/documents/browse", h.browse)
		protected.Get("/documents/download", h.download)
		protected.Get("/quotes", h.listQuotes)
		protected.Get("/quotes/{quoteNumber}", h.getQuote)
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authStatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
	ExpiresAt     string `json:"expiresAt,omitempty"`
}

func (h *AdminHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.auth == nil {
		unavailable(w, r, "admin")
		return
	}
	var req loginRequest
	if !decodeRequest(w, r, maxLoginRequestBody, &req, false) {
		return
	}
	session, err := h.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAdminLoginInvalid):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "email and password are required", http.StatusBadRequest))
		case errors.Is(err, auth.ErrInvalidCredentials):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_credentials", "invalid email or password", http.StatusUnauthorized))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("internal_error", "login failed", http.StatusInternalServerError))
		}
		return
	}
	h.cookies.Set(w, session.Token, session.ExpiresAt, h.now())
	writeJSONResponse(w, http.StatusOK, authStatusResponse{
		Authenticated: true,
		Email:         session.Admin.Email,
		ExpiresAt:     session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (h *AdminHandlers) logout(w http.ResponseWriter, _ *http.Request) {
	h.cookies.Clear(w)
	writeJSONResponse(w, http.StatusOK, authStatusResponse{Authenticated: false})
}

func (h *AdminHandlers) status(w http.ResponseWriter, r *http.Request) {
	var sessions *auth.Sessions
	if h.auth != nil {
		sessions = h.auth.Sessions()
	}
	admin, ok := auth.Authenticate(r, sessions, h.cookies)
	w.Header().Set("Cache-Control", "no-store")
	if !ok {
		writeJSONResponse(w, http.StatusOK, authStatusResponse{Authenticated: false})
		return
	}
	writeJSONResponse(w, http.StatusOK, authStatusResponse{Authenticated: true, Email: admin.Email})
}

type folderResponse struct {
	Name           string `json:"name"`
	Path           string `json:"path"`
	FileCount      int    `json:"fileCount"`
	SubfolderCount int    `json:"subfolderCount"`
	TotalSize      int64  `json:"totalSize"`
	LastActivity   string `json:"lastActivity,omitempty"`
}

type entryResponse struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	IsDir      bool   `json:"isDir"`
	Size       int64  `json:"size"`
	ModifiedAt string `json:"modifiedAt,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func (h *AdminHandlers) listFolders(w http.ResponseWriter, r *http.Request) {
	if h.browser == nil {
		unavailable(w, r, "documents")
		return
	}
	folders, err := h.browser.Folders(r.Context())
	if err != nil {
		writeDocumentError(r.Context(), w, err)
		return
	}
	items := make([]folderResponse, 0, len(folders))
	for _, f := range folders {
		items = append(items, folderResponse{
			Name:           f.Name,
			Path:           f.Path,
			FileCount:      f.FileCount,
			SubfolderCount: f.SubfolderCount,
			TotalSize:      f.TotalSize,
			LastActivity:   formatTime(f.LastActivity),
		})
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSONResponse(w, http.StatusOK, map[string]any{"folders": items})
}

func (h *AdminHandlers) browse(w http.ResponseWriter, r *http.Request) {
	if h.browser == nil {
		unavailable(w, r, "documents")
		return
	}
	path := r.URL.Query().Get("path")
	entries, err := h.browser.Browse(r.Context(), path)
	if err != nil {
		writeDocumentError(r.Context(), w, err)
		return
	}
	items := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, entryResponse{
			Name:       e.Name,
			Path:       e.Path,
			IsDir:      e.IsDir,
			Size:       e.Size,
			ModifiedAt: formatTime(e.ModifiedAt),
		})
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSONResponse(w, http.StatusOK, map[string]any{"path": strings.Trim(path, "/"), "entries": items})
}

func (h *AdminHandlers) download(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.browser == nil {
		unavailable(w, r, "documents")
		return
	}
	query := r.URL.Query()
	disposition := "attachment"
	switch strings.ToLower(strings.TrimSpace(query.Get("disposition"))) {
	case "", "attachment":
	case "inline":
		disposition = "inline"
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "disposition must be inline or attachment", http.StatusBadRequest))
		return
	}
	doc, err := h.browser.Open(ctx, query.Get("path"))
	if err != nil {
		writeDocumentError(ctx, w, err)
		return
	}
	defer doc.Body.Close()

	w.Header().Set("Content-Type", doc.ContentType)
	if doc.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(doc.Size, 10))
	}
	w.Header().Set("Content-Disposition", contentDisposition(disposition, doc.Name))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, doc.Body)
}

func writeDocumentError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrDocumentPathInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_path", "invalid document path", http.StatusBadRequest))
	case errors.Is(err, services.ErrDocumentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "document not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("storage_error", "document store unavailable", http.StatusBadGateway))
	}
}

// contentDisposition emits an ASCII filename plus its RFC 5987 UTF-8 form.
func contentDisposition(disposition, name string) string {
	fallback := make([]byte, 0, len(name))
	for _, r := range name {
		switch {
		case r == '"' || r == '\\' || r < 0x20 || r > 0x7e:
			fallback = append(fallback, '_')
		default:
			fallback = append(fallback, byte(r))
		}
	}
	return fmt.Sprintf(`%s; filename="%s"; filename*=UTF-8''%s`, disposition, fallback, encodeRFC5987(name))
}

func encodeRFC5987(value string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		c := value[i]
		if isRFC5987AttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isRFC5987AttrChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}

type quoteRecordResponse struct {
	ID             string  `json:"id"`
	QuoteNumber    string  `json:"quoteNumber"`
	ContractNumber string  `json:"contractNumber,omitempty"`
	Folder         string  `json:"folder,omitempty"`
	ClientName     string  `json:"clientName"`
	ClientEmail    string  `json:"clientEmail"`
	DeviceCount    int     `json:"deviceCount"`
	Total          float64 `json:"total"`
	TravelFee      float64 `json:"travelFee"`
	ADomicile      bool    `json:"aDomicile"`
	Appointment    string  `json:"appointment,omitempty"`
	Status         string  `json:"status"`
	Error          string  `json:"error,omitempty"`
	QuoteURL       string  `json:"quoteUrl,omitempty"`
	ContractURL    string  `json:"contractUrl,omitempty"`
	CreatedAt      string  `json:"createdAt"`
}

type quoteListResponse struct {
	Items         []quoteRecordResponse `json:"items"`
	NextPageToken string                `json:"nextPageToken,omitempty"`
}

func newQuoteRecordResponse(record services.QuoteRecord) quoteRecordResponse {
	resp := quoteRecordResponse{
		ID:             record.ID,
		QuoteNumber:    record.QuoteNumber,
		ContractNumber: record.ContractNumber,
		Folder:         record.Folder,
		ClientName:     record.ClientName,
		ClientEmail:    record.ClientEmail,
		DeviceCount:    record.DeviceCount,
		Total:          record.Total,
		TravelFee:      record.TravelFee,
		ADomicile:      record.ADomicile,
		Status:         string(record.Status),
		Error:          record.Error,
		QuoteURL:       record.QuoteURL,
		ContractURL:    record.ContractURL,
		CreatedAt:      formatTime(record.CreatedAt),
	}
	if record.Appointment.Complete() {
		resp.Appointment = record.Appointment.Date + " " + record.Appointment.Slot
	}
	return resp
}

func (h *AdminHandlers) listQuotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		unavailable(w, r, "ledger")
		return
	}
	params, err := pagination.Parse(r.URL.Query())
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	page, err := h.ledger.List(ctx, services.QuoteLedgerQuery{Page: params, Status: r.URL.Query().Get("status")})
	if err != nil {
		if errors.Is(err, services.ErrQuoteLedgerInvalidFilter) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "quote ledger unavailable", http.StatusInternalServerError))
		return
	}
	resp := quoteListResponse{Items: make([]quoteRecordResponse, 0, len(page.Items)), NextPageToken: page.NextPageToken}
	for _, record := range page.Items {
		resp.Items = append(resp.Items, newQuoteRecordResponse(record))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *AdminHandlers) getQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		unavailable(w, r, "ledger")
		return
	}
	record, err := h.ledger.Find(ctx, chi.URLParam(r, "quoteNumber"))
	if err != nil {
		if errors.Is(err, services.ErrQuoteRecordNotFound) {
			httpx.WriteError(ctx, w, httpx.NewError("not_found", "quote not found", http.StatusNotFound))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "quote ledger unavailable", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, newQuoteRecordResponse(record))
}
