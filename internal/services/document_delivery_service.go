package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/recophone/api/internal/platform/mail"
	"github.com/recophone/api/internal/platform/storage"
	"github.com/recophone/api/internal/platform/textutil"
)

// ErrDeliveryInvalidPayload indicates a bundle without client e-mail, last name or quote number.
var ErrDeliveryInvalidPayload = errors.New("document delivery: missing client email, last name or quote number")

// DocumentRenderer renders documents to PDF. Implemented by pdf.Generator.
type DocumentRenderer interface {
	Quote(ctx context.Context, payload QuotePayload) ([]byte, error)
	Contract(ctx context.Context, payload ContractPayload) ([]byte, error)
}

// DocumentDeliveryServiceDeps bundles the delivery collaborators.
type DocumentDeliveryServiceDeps struct {
	Renderer DocumentRenderer
	Store    storage.DocumentStore
	Mailer   mail.Sender
	From     string
	CopyTo   string
	Logger   Logger
}

// DocumentDeliveryService renders, stores and e-mails finalized documents.
type DocumentDeliveryService struct {
	renderer DocumentRenderer
	store    storage.DocumentStore
	mailer   mail.Sender
	from     string
	copyTo   string
	logger   Logger
}

// NewDocumentDeliveryService constructs the service.
func NewDocumentDeliveryService(deps DocumentDeliveryServiceDeps) (*DocumentDeliveryService, error) {
	if deps.Renderer == nil {
		return nil, errors.New("document delivery: renderer is required")
	}
	if deps.Store == nil {
		return nil, errors.New("document delivery: store is required")
	}
	if deps.Mailer == nil {
		return nil, errors.New("document delivery: mailer is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	return &DocumentDeliveryService{
		renderer: deps.Renderer,
		store:    deps.Store,
		mailer:   deps.Mailer,
		from:     strings.TrimSpace(deps.From),
		copyTo:   strings.TrimSpace(deps.CopyTo),
		logger:   logger,
	}, nil
}

// DocumentFolder is the storage folder of a quote: SLUGIFIED_LASTNAME_RP_00001.
func DocumentFolder(lastName, quoteNumber string) string {
	return textutil.SlugifyUpper(lastName) + "_" + strings.TrimSpace(quoteNumber)
}

// Deliver renders the quote (and contract when paying in two), uploads them and mails the links.
func (s *DocumentDeliveryService) Deliver(ctx context.Context, bundle DocumentBundle) (DeliveryReceipt, error) {
	quote := bundle.Quote
	email := strings.TrimSpace(quote.Client.Email)
	if email == "" || strings.TrimSpace(quote.Client.LastName) == "" || strings.TrimSpace(quote.QuoteNumber) == "" {
		return DeliveryReceipt{}, ErrDeliveryInvalidPayload
	}
	receipt := DeliveryReceipt{Folder: DocumentFolder(quote.Client.LastName, quote.QuoteNumber)}

	quotePDF, err := s.renderer.Quote(ctx, quote)
	if err != nil {
		return DeliveryReceipt{}, fmt.Errorf("document delivery: render quote: %w", err)
	}
	receipt.QuoteURL, err = s.upload(ctx, receipt.Folder, "devis_"+quote.QuoteNumber+".pdf", quotePDF)
	if err != nil {
		return DeliveryReceipt{}, err
	}

	if bundle.PayInTwo && bundle.Contract != nil {
		contract := *bundle.Contract
		number := contract.ContractNumber
		if number == "" {
			number = quote.QuoteNumber
		}
		contractPDF, err := s.renderer.Contract(ctx, contract)
		if err != nil {
			return DeliveryReceipt{}, fmt.Errorf("document delivery: render contract: %w", err)
		}
		receipt.ContractURL, err = s.upload(ctx, receipt.Folder, "contrat_"+number+".pdf", contractPDF)
		if err != nil {
			return DeliveryReceipt{}, err
		}
	}

	msg, err := s.message(quote, receipt, email)
	if err != nil {
		return DeliveryReceipt{}, err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return DeliveryReceipt{}, fmt.Errorf("document delivery: mail client: %w", err)
	}
	if s.copyTo != "" {
		shopCopy := msg
		shopCopy.To = []string{s.copyTo}
		shopCopy.Subject = "[COPIE] " + msg.Subject
		if err := s.mailer.Send(ctx, shopCopy); err != nil {
			return DeliveryReceipt{}, fmt.Errorf("document delivery: mail copy: %w", err)
		}
	}

	s.logger(ctx, "documents.delivered", map[string]any{
		"folder":      receipt.Folder,
		"quoteNumber": quote.QuoteNumber,
		"contract":    receipt.ContractURL != "",
	})
	return receipt, nil
}

func (s *DocumentDeliveryService) upload(ctx context.Context, folder, fileName string, data []byte) (string, error) {
	path, err := storage.DocumentPath(folder, fileName)
	if err != nil {
		return "", fmt.Errorf("document delivery: %w", err)
	}
	if err := s.store.Put(ctx, path, bytes.NewReader(data), int64(len(data)), "application/pdf"); err != nil {
		return "", fmt.Errorf("document delivery: upload %s: %w", fileName, err)
	}
	url, err := s.store.URL(ctx, path)
	if err != nil {
		return "", fmt.Errorf("document delivery: url %s: %w", fileName, err)
	}
	return url, nil
}

var deliveryMailTemplate = template.Must(template.New("delivery").Parse(`<div style="font-family:Arial,Helvetica,sans-serif;font-size:14px;color:#222;line-height:1.5">
<p>Bonjour {{.FirstName}},</p>
<p>Merci pour votre demande chez <strong>RecoPhone</strong>.</p>
<p style="margin:14px 0"><a href="{{.QuoteURL}}" target="_blank" rel="noopener" style="display:inline-block;background:#54b435;color:#fff;padding:10px 14px;border-radius:10px;text-decoration:none;font-weight:600">Télécharger le devis</a></p>
{{- if .ContractURL}}
<p style="margin:6px 0"><a href="{{.ContractURL}}" target="_blank" rel="noopener" style="display:inline-block;background:#0ea5e9;color:#fff;padding:10px 14px;border-radius:10px;text-decoration:none;font-weight:600">Télécharger le contrat</a></p>
{{- end}}
<p style="margin-top:18px">Besoin d'aide ? Répondez simplement à cet e-mail.</p>
<p>RecoPhone</p>
</div>`))

type deliveryMailView struct {
	FirstName   string
	QuoteURL    string
	ContractURL string
}

func (s *DocumentDeliveryService) message(quote QuotePayload, receipt DeliveryReceipt, to string) (mail.Message, error) {
	subject := "Votre devis RecoPhone " + quote.QuoteNumber
	if receipt.ContractURL != "" {
		subject = "Votre devis et contrat RecoPhone " + quote.QuoteNumber
	}
	firstName := strings.TrimSpace(quote.Client.FirstName)

	lines := []string{
		"Bonjour " + firstName + ",",
		"",
		"Merci pour votre demande chez RecoPhone.",
		"Devis : " + receipt.QuoteURL,
	}
	if receipt.ContractURL != "" {
		lines = append(lines, "Contrat : "+receipt.ContractURL)
	}
	lines = append(lines, "", "Besoin d'aide ? Répondez simplement à cet e-mail.", "RecoPhone")

	var html bytes.Buffer
	if err := deliveryMailTemplate.Execute(&html, deliveryMailView{
		FirstName:   firstName,
		QuoteURL:    receipt.QuoteURL,
		ContractURL: receipt.ContractURL,
	}); err != nil {
		return mail.Message{}, fmt.Errorf("document delivery: mail body: %w", err)
	}
	return mail.Message{
		From:    s.from,
		ReplyTo: s.from,
		To:      []string{to},
		Subject: subject,
		Text:    strings.Join(lines, "\n"),
		HTML:    html.String(),
	}, nil
}
