package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/recophone/api/internal/platform/httpx"
	"github.com/recophone/api/internal/platform/pdf"
	"github.com/recophone/api/internal/services"
)

// DocumentHandlers renders quote and contract previews.
type DocumentHandlers struct {
	renderer services.DocumentRenderer
}

// NewDocumentHandlers constructs the PDF preview handlers.
func NewDocumentHandlers(renderer services.DocumentRenderer) *DocumentHandlers {
	return &DocumentHandlers{renderer: renderer}
}

// Routes registers the document endpoints relative to /documents.
func (h *DocumentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/pdf", h.renderPDF)
}

type renderPDFRequest struct {
	DocType  string          `json:"docType"`
	Payload  json.RawMessage `json:"payload"`
	Download bool            `json:"download"`
}

func (h *DocumentHandlers) renderPDF(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.renderer == nil {
		unavailable(w, r, "documents")
		return
	}
	var req renderPDFRequest
	if !decodeRequest(w, r, httpx.DefaultMaxBody, &req, false) {
		return
	}
	docType, ok := pdf.ParseDocType(req.DocType)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "docType must be quote or contract", http.StatusBadRequest))
		return
	}
	if len(req.Payload) == 0 || string(req.Payload) == "null" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "payload is required", http.StatusBadRequest))
		return
	}

	var (
		data   []byte
		number string
		err    error
	)
	switch docType {
	case pdf.DocContract:
		var payload services.ContractPayload
		if err := json.Unmarshal(req.Payload, &payload); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "payload must be a contract", http.StatusBadRequest))
			return
		}
		number = payload.ContractNumber
		data, err = h.renderer.Contract(ctx, payload)
	default:
		var payload services.QuotePayload
		if err := json.Unmarshal(req.Payload, &payload); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "payload must be a quote", http.StatusBadRequest))
			return
		}
		number = payload.QuoteNumber
		data, err = h.renderer.Quote(ctx, payload)
	}
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("render_failed", "document could not be rendered", http.StatusBadGateway))
		return
	}

	disposition := "inline"
	if req.Download {
		disposition = "attachment"
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", contentDisposition(disposition, previewFileName(docType, number)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func previewFileName(docType pdf.DocType, number string) string {
	prefix := "devis"
	if docType == pdf.DocContract {
		prefix = "contrat"
	}
	number = strings.TrimSpace(number)
	if number == "" {
		return prefix + ".pdf"
	}
	return fmt.Sprintf("%s_%s.pdf", prefix, number)
}
