package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/recophone/api/internal/domain"
	"github.com/recophone/api/internal/platform/pagination"
	"github.com/recophone/api/internal/repositories"
)

var (
	// ErrQuoteRecordNotFound indicates no ledger entry has the requested number.
	ErrQuoteRecordNotFound = errors.New("quote ledger: not found")
	// ErrQuoteLedgerInvalidFilter indicates an unknown status filter.
	ErrQuoteLedgerInvalidFilter = errors.New("quote ledger: invalid filter")
)

// QuoteLedgerQuery pages the ledger newest first.
type QuoteLedgerQuery struct {
	Page   pagination.Params
	Status string
}

// QuoteLedgerService exposes finalization attempts to the back office.
type QuoteLedgerService struct {
	quotes repositories.QuoteRepository
}

// NewQuoteLedgerService validates the repository.
func NewQuoteLedgerService(quotes repositories.QuoteRepository) (*QuoteLedgerService, error) {
	if quotes == nil {
		return nil, errors.New("quote ledger: repository is required")
	}
	return &QuoteLedgerService{quotes: quotes}, nil
}

// List returns one page of records and the token of the next one.
func (s *QuoteLedgerService) List(ctx context.Context, query QuoteLedgerQuery) (domain.CursorPage[QuoteRecord], error) {
	filter := repositories.QuoteListFilter{
		PageSize:       query.Page.PageSize,
		AfterCreatedAt: query.Page.Cursor.CreatedAt,
		AfterID:        query.Page.Cursor.ID,
	}
	switch status := domain.QuoteStatus(strings.ToLower(strings.TrimSpace(query.Status))); status {
	case "":
	case domain.QuoteStatusDelivered, domain.QuoteStatusFailed:
		filter.Status = []domain.QuoteStatus{status}
	default:
		return domain.CursorPage[QuoteRecord]{}, fmt.Errorf("%w: status %q", ErrQuoteLedgerInvalidFilter, query.Status)
	}
	return s.quotes.List(ctx, filter)
}

// Find returns the latest attempt recorded for a quote number.
func (s *QuoteLedgerService) Find(ctx context.Context, quoteNumber string) (QuoteRecord, error) {
	record, err := s.quotes.FindByNumber(ctx, strings.TrimSpace(quoteNumber))
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return QuoteRecord{}, fmt.Errorf("%w: %s", ErrQuoteRecordNotFound, quoteNumber)
		}
		return QuoteRecord{}, err
	}
	return record, nil
}
