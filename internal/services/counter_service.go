package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/recophone/api/internal/repositories"
)

// DocumentSeries is a numbered document family sharing one sequence.
type DocumentSeries string

const (
	QuoteSeries    DocumentSeries = "RP"
	ContractSeries DocumentSeries = "RC"
)

const (
	documentCounterScope = "documents"
	documentNumberDigits = 5
	documentNumberCeil   = 99999
)

// ErrCounterExhausted means a series reached RP_99999 or RC_99999.
var ErrCounterExhausted = repositories.ErrCounterExhausted

// Format renders value as PREFIX_NNNNN.
func (d DocumentSeries) Format(value int64) string {
	return fmt.Sprintf("%s_%0*d", d, documentNumberDigits, value)
}

func (d DocumentSeries) counterID() string {
	return documentCounterScope + ":" + string(d)
}

// CounterServiceDeps bundles collaborators required to construct a counter service.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
	Logger     Logger
}

// DocumentCounterService issues quote and contract numbers from persistent sequences.
type DocumentCounterService struct {
	repo   repositories.CounterRepository
	logger Logger

	mu     sync.Mutex
	capped map[DocumentSeries]bool
}

var _ CounterService = (*DocumentCounterService)(nil)

// NewCounterService builds the RP/RC numbering service.
func NewCounterService(deps CounterServiceDeps) (*DocumentCounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	return &DocumentCounterService{
		repo:   deps.Repository,
		logger: logger,
		capped: make(map[DocumentSeries]bool, 2),
	}, nil
}

func (s *DocumentCounterService) NextQuoteNumber(ctx context.Context) (string, error) {
	return s.Next(ctx, QuoteSeries)
}

func (s *DocumentCounterService) NextContractNumber(ctx context.Context) (string, error) {
	return s.Next(ctx, ContractSeries)
}

// Next increments series and formats the result. Numbers are never reused, even when delivery later fails.
func (s *DocumentCounterService) Next(ctx context.Context, series DocumentSeries) (string, error) {
	if err := s.ensureCeiling(ctx, series); err != nil {
		return "", err
	}
	value, err := s.repo.Next(ctx, series.counterID(), 1)
	if err != nil {
		if errors.Is(err, ErrCounterExhausted) {
			s.logger(ctx, "counter.exhausted", map[string]any{"series": string(series)})
		}
		return "", fmt.Errorf("next %s number: %w", series, err)
	}
	return series.Format(value), nil
}

// ensureCeiling stores the five-digit bound once per series and process.
func (s *DocumentCounterService) ensureCeiling(ctx context.Context, series DocumentSeries) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capped[series] {
		return nil
	}
	ceiling := int64(documentNumberCeil)
	if err := s.repo.Configure(ctx, series.counterID(), repositories.CounterConfig{MaxValue: &ceiling}); err != nil {
		return fmt.Errorf("configure %s counter: %w", series, err)
	}
	s.capped[series] = true
	return nil
}
