package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recophone/api/internal/services"
)

type stubRenderer struct {
	quote    services.QuotePayload
	contract services.ContractPayload
	err      error
}

func (s *stubRenderer) Quote(_ context.Context, payload services.QuotePayload) ([]byte, error) {
	s.quote = payload
	return []byte("%PDF-quote"), s.err
}

func (s *stubRenderer) Contract(_ context.Context, payload services.ContractPayload) ([]byte, error) {
	s.contract = payload
	return []byte("%PDF-contract"), s.err
}

func TestDocumentHandlersRenderPDF(t *testing.T) {
	renderer := &stubRenderer{}
	router := chi.NewRouter()
	router.Route("/documents", NewDocumentHandlers(renderer).Routes)

	rr := doJSON(t, router, http.MethodPost, "/documents/pdf", `{"docType":"quote","payload":{"quoteNumber":"RP_00012","client":{"lastName":"Dupont"},"devices":[],"total":129}}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.Equal(t, `inline; filename="devis_RP_00012.pdf"; filename*=UTF-8''devis_RP_00012.pdf`, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-quote", rr.Body.String())
	assert.Equal(t, "Dupont", renderer.quote.Client.LastName)

	rr = doJSON(t, router, http.MethodPost, "/documents/pdf", `{"docType":"CONTRACT","download":true,"payload":{"contractNumber":"RC_00003","total":200}}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Header().Get("Content-Disposition"), `attachment; filename="contrat_RC_00003.pdf"`)
	assert.Equal(t, "RC_00003", renderer.contract.ContractNumber)
}

func TestDocumentHandlersRenderPDFErrors(t *testing.T) {
	renderer := &stubRenderer{}
	router := chi.NewRouter()
	router.Route("/documents", NewDocumentHandlers(renderer).Routes)

	for name, body := range map[string]string{
		"unknown type":    `{"docType":"invoice","payload":{}}`,
		"missing payload": `{"docType":"quote"}`,
		"bad payload":     `{"docType":"quote","payload":[1,2]}`,
		"empty body":      ``,
	} {
		rr := doJSON(t, router, http.MethodPost, "/documents/pdf", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, name)
	}

	renderer.err = errors.New("chrome: context deadline exceeded")
	rr := doJSON(t, router, http.MethodPost, "/documents/pdf", `{"docType":"quote","payload":{"quoteNumber":"RP_1"}}`)
	assert.Equal(t, http.StatusBadGateway, rr.Code)

	router = chi.NewRouter()
	router.Route("/documents", NewDocumentHandlers(nil).Routes)
	rr = doJSON(t, router, http.MethodPost, "/documents/pdf", `{"docType":"quote","payload":{}}`)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
