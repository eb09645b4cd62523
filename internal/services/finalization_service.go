package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/recophone/api/internal/domain"
	"github.com/recophone/api/internal/repositories"
)

// EventQuoteFinalized is published after documents are delivered.
const EventQuoteFinalized = "quote.finalized"

// QuoteDraftKeys are the client-side draft storage keys to purge after a successful finalization.
var QuoteDraftKeys = []string{"recophone:quote", "quote:draft", "rp:quote", "rp-quote", "RECOPHONE_QUOTE"}

// ErrFinalizeFailed wraps any numbering or delivery failure.
var ErrFinalizeFailed = errors.New("finalize: failed")

// FinalizeResult describes a completed finalization.
type FinalizeResult struct {
	RecordID       string
	QuoteNumber    string
	ContractNumber string
	Receipt        DeliveryReceipt
	Total          float64
	DraftKeys      []string
}

// FinalizationServiceDeps bundles the orchestrator collaborators.
type FinalizationServiceDeps struct {
	Counters    CounterService
	Delivery    DocumentDelivery
	Quotes      repositories.QuoteRepository
	Events      EventPublisher
	Location    *time.Location
	Timeout     time.Duration
	Clock       func() time.Time
	IDGenerator func() string
	Logger      Logger
}

// FinalizationService numbers, delivers and records finalized quotes.
type FinalizationService struct {
	counters CounterService
	delivery DocumentDelivery
	quotes   repositories.QuoteRepository
	events   EventPublisher
	loc      *time.Location
	timeout  time.Duration
	clock    func() time.Time
	newID    func() string
	logger   Logger
}

// NewFinalizationService constructs the orchestrator.
func NewFinalizationService(deps FinalizationServiceDeps) (*FinalizationService, error) {
	if deps.Counters == nil {
		return nil, errors.New("finalization service: counter service is required")
	}
	if deps.Delivery == nil {
		return nil, errors.New("finalization service: document delivery is required")
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	return &FinalizationService{
		counters: deps.Counters,
		delivery: deps.Delivery,
		quotes:   deps.Quotes,
		events:   deps.Events,
		loc:      loc,
		timeout:  deps.Timeout,
		clock:    func() time.Time { return clock().UTC() },
		newID:    newID,
		logger:   logger,
	}, nil
}

// Finalize assigns document numbers, delivers the documents and records the attempt.
// Delivery ignores the caller's cancellation once started.
func (s *FinalizationService) Finalize(ctx context.Context, state WizardState) (FinalizeResult, error) {
	if countItems(state.Devices) == 0 {
		return FinalizeResult{}, ErrNothingSelected
	}
	ctx = context.WithoutCancel(ctx)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	numbers, err := s.numbers(ctx, state.ClientInfo.PayInTwo)
	if err != nil {
		s.logger(ctx, "quote.finalize.numbering_failed", map[string]any{"error": err.Error()})
		return FinalizeResult{}, fmt.Errorf("%w: %v", ErrFinalizeFailed, err)
	}

	now := s.clock()
	bundle := BuildDocumentBundle(state, numbers, now, s.loc)
	receipt, deliverErr := s.delivery.Deliver(ctx, bundle)

	record := s.record(state, bundle, receipt, now, deliverErr)
	if s.quotes != nil {
		if err := s.quotes.Insert(ctx, record); err != nil {
			s.logger(ctx, "quote.ledger.insert_failed", map[string]any{
				"quoteNumber": numbers.Quote,
				"error":       err.Error(),
			})
		}
	}

	if deliverErr != nil {
		s.logger(ctx, "quote.finalize.failed", map[string]any{
			"quoteNumber": numbers.Quote,
			"error":       deliverErr.Error(),
		})
		return FinalizeResult{}, fmt.Errorf("%w: %v", ErrFinalizeFailed, deliverErr)
	}

	result := FinalizeResult{
		RecordID:       record.ID,
		QuoteNumber:    numbers.Quote,
		ContractNumber: numbers.Contract,
		Receipt:        receipt,
		Total:          bundle.Quote.Total,
		DraftKeys:      append([]string(nil), QuoteDraftKeys...),
	}
	s.publish(ctx, record)
	s.logger(ctx, "quote.finalized", map[string]any{
		"quoteNumber":    numbers.Quote,
		"contractNumber": numbers.Contract,
		"folder":         receipt.Folder,
		"total":          result.Total,
	})
	return result, nil
}

func (s *FinalizationService) numbers(ctx context.Context, payInTwo bool) (DocumentNumbers, error) {
	quote, err := s.counters.NextQuoteNumber(ctx)
	if err != nil {
		return DocumentNumbers{}, err
	}
	numbers := DocumentNumbers{Quote: quote}
	if payInTwo {
		contract, err := s.counters.NextContractNumber(ctx)
		if err != nil {
			return DocumentNumbers{}, err
		}
		numbers.Contract = contract
	}
	return numbers, nil
}

func (s *FinalizationService) record(state WizardState, bundle DocumentBundle, receipt DeliveryReceipt, now time.Time, deliverErr error) QuoteRecord {
	client := state.ClientInfo
	record := QuoteRecord{
		ID:          s.newID(),
		QuoteNumber: bundle.Quote.QuoteNumber,
		Folder:      receipt.Folder,
		ClientName:  strings.TrimSpace(strings.TrimSpace(client.FirstName) + " " + strings.TrimSpace(client.LastName)),
		ClientEmail: strings.TrimSpace(client.Email),
		DeviceCount: len(bundle.Quote.Devices),
		Total:       bundle.Quote.Total,
		ADomicile:   client.ADomicile,
		Status:      domain.QuoteStatusDelivered,
		QuoteURL:    receipt.QuoteURL,
		ContractURL: receipt.ContractURL,
		CreatedAt:   now,
	}
	if bundle.Contract != nil {
		record.ContractNumber = bundle.Contract.ContractNumber
	}
	if bundle.Quote.TravelFee != nil {
		record.TravelFee = *bundle.Quote.TravelFee
	}
	if bundle.Quote.Appointment != nil {
		record.Appointment = *bundle.Quote.Appointment
	}
	if deliverErr != nil {
		record.Status = domain.QuoteStatusFailed
		record.Error = deliverErr.Error()
	}
	return record
}

func (s *FinalizationService) publish(ctx context.Context, record QuoteRecord) {
	if s.events == nil {
		return
	}
	_, err := s.events.PublishEvent(ctx, EventMessage{
		Type:       EventQuoteFinalized,
		Key:        record.QuoteNumber,
		OccurredAt: record.CreatedAt,
		Data: map[string]any{
			"recordId":       record.ID,
			"quoteNumber":    record.QuoteNumber,
			"contractNumber": record.ContractNumber,
			"folder":         record.Folder,
			"total":          record.Total,
			"aDomicile":      record.ADomicile,
		},
	})
	if err != nil {
		s.logger(ctx, "quote.finalized.publish_failed", map[string]any{
			"quoteNumber": record.QuoteNumber,
			"error":       err.Error(),
		})
	}
}
