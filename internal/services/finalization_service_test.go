package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recophone/api/internal/domain"
	"github.com/recophone/api/internal/repositories"
)

type fakeDocumentCounters struct {
	quote    int
	contract int
	err      error
}

func (f *fakeDocumentCounters) NextQuoteNumber(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.quote++
	return "RP_0000" + string(rune('0'+f.quote)), nil
}

func (f *fakeDocumentCounters) NextContractNumber(context.Context) (string, error) {
	f.contract++
	return "RC_0000" + string(rune('0'+f.contract)), nil
}

type fakeDelivery struct {
	bundle  DocumentBundle
	ctxErr  error
	err     error
	receipt DeliveryReceipt
}

func (f *fakeDelivery) Deliver(ctx context.Context, bundle DocumentBundle) (DeliveryReceipt, error) {
	f.bundle = bundle
	f.ctxErr = ctx.Err()
	return f.receipt, f.err
}

type memoryQuoteLedger struct {
	mu      sync.Mutex
	records []domain.QuoteRecord
}

func (m *memoryQuoteLedger) Insert(_ context.Context, record domain.QuoteRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func (m *memoryQuoteLedger) FindByNumber(_ context.Context, number string) (domain.QuoteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].QuoteNumber == number {
			return m.records[i], nil
		}
	}
	return domain.QuoteRecord{}, errors.New("not found")
}

func (m *memoryQuoteLedger) List(context.Context, repositories.QuoteListFilter) (domain.CursorPage[domain.QuoteRecord], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]domain.QuoteRecord, len(m.records))
	copy(items, m.records)
	return domain.CursorPage[domain.QuoteRecord]{Items: items}, nil
}

type capturePublisher struct {
	events []EventMessage
	err    error
}

func (c *capturePublisher) PublishEvent(_ context.Context, event EventMessage) (string, error) {
	c.events = append(c.events, event)
	return "msg-1", c.err
}

func finalizableState(payInTwo bool) WizardState {
	fee := 17.5
	distance := 20.0
	color := "Noir"
	return WizardState{
		CurrentStep: 4,
		Devices: []Device{
			{ID: 1, Category: "iPhone", Brand: domain.BrandApple, Model: "iPhone 13", Items: []SelectedItem{
				{Key: "Écran", Label: "Écran", Price: 219, Qty: 1},
				{Key: "Face arrière", Label: "Face arrière", Price: 99, Qty: 1, Meta: &domain.ItemMeta{Color: &color, PartKind: domain.PartKindBack}},
			}},
			{ID: 2, Category: "iPad", Model: "iPad Air 4"},
		},
		ClientInfo: ClientInfo{
			FirstName:        "Marie",
			LastName:         "Dupont",
			Email:            "marie@example.be",
			Phone:            "0492090533",
			PayInTwo:         payInTwo,
			SignatureDataURL: "data:image/png;base64,AAAA",
			ADomicile:        true,
			Address:          &Address{Street: "Rue de Fer", Number: "1", PostalCode: "5000", City: "Namur"},
			CGVAccepted:      true,
			DistanceKm:       &distance,
			TravelFee:        &fee,
		},
		Appointment: Appointment{Date: "2026-03-21", Slot: "09:00"},
	}
}

func newTestFinalization(t *testing.T, counters *fakeDocumentCounters, delivery *fakeDelivery, ledger *memoryQuoteLedger, events *capturePublisher) *FinalizationService {
	t.Helper()
	svc, err := NewFinalizationService(FinalizationServiceDeps{
		Counters:    counters,
		Delivery:    delivery,
		Quotes:      ledger,
		Events:      events,
		Location:    brussels,
		Clock:       func() time.Time { return time.Date(2026, time.March, 7, 9, 0, 0, 0, time.UTC) },
		IDGenerator: func() string { return "01HZQUOTE" },
	})
	require.NoError(t, err)
	return svc
}

func TestFinalizationServiceDelivers(t *testing.T) {
	counters := &fakeDocumentCounters{}
	delivery := &fakeDelivery{receipt: DeliveryReceipt{Folder: "DUPONT_RP_00001", QuoteURL: "https://docs/q.pdf", ContractURL: "https://docs/c.pdf"}}
	ledger := &memoryQuoteLedger{}
	events := &capturePublisher{}
	svc := newTestFinalization(t, counters, delivery, ledger, events)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := svc.Finalize(ctx, finalizableState(true))
	require.NoError(t, err)

	assert.NoError(t, delivery.ctxErr, "delivery must not see the caller's cancellation")
	assert.Equal(t, "RP_00001", result.QuoteNumber)
	assert.Equal(t, "RC_00001", result.ContractNumber)
	assert.Equal(t, QuoteDraftKeys, result.DraftKeys)
	assert.InDelta(t, 335.5, result.Total, 1e-9)

	quote := delivery.bundle.Quote
	assert.Equal(t, "RP_00001", quote.QuoteNumber)
	assert.Equal(t, "2026-03-07T10:00:00+01:00", quote.DateISO)
	assert.Equal(t, domain.RecoPhone(), quote.Company)
	require.Len(t, quote.Devices, 1, "devices without items are left out")
	assert.Equal(t, "Noir", *quote.Devices[0].Items[1].Meta.Color)
	require.NotNil(t, quote.Appointment)
	require.NotNil(t, delivery.bundle.Contract)
	assert.Equal(t, "RC_00001", delivery.bundle.Contract.ContractNumber)
	assert.Equal(t, "2026-03-21T09:00:00+01:00", delivery.bundle.Contract.DeliveryDateISO)

	require.Len(t, ledger.records, 1)
	record := ledger.records[0]
	assert.Equal(t, "01HZQUOTE", record.ID)
	assert.Equal(t, domain.QuoteStatusDelivered, record.Status)
	assert.Equal(t, "Marie Dupont", record.ClientName)
	assert.InDelta(t, 17.5, record.TravelFee, 1e-9)

	require.Len(t, events.events, 1)
	assert.Equal(t, EventQuoteFinalized, events.events[0].Type)
	assert.Equal(t, "RP_00001", events.events[0].Key)
}

func TestFinalizationServiceDeliveryFailure(t *testing.T) {
	counters := &fakeDocumentCounters{}
	delivery := &fakeDelivery{err: errors.New("ftp refused")}
	ledger := &memoryQuoteLedger{}
	events := &capturePublisher{}
	svc := newTestFinalization(t, counters, delivery, ledger, events)

	_, err := svc.Finalize(context.Background(), finalizableState(false))
	require.ErrorIs(t, err, ErrFinalizeFailed)
	assert.Contains(t, err.Error(), "ftp refused")
	assert.Nil(t, delivery.bundle.Contract)
	assert.Equal(t, 0, counters.contract)

	require.Len(t, ledger.records, 1)
	assert.Equal(t, domain.QuoteStatusFailed, ledger.records[0].Status)
	assert.Equal(t, "ftp refused", ledger.records[0].Error)
	assert.Empty(t, events.events)
}

func TestFinalizationServiceNumberingFailure(t *testing.T) {
	counters := &fakeDocumentCounters{err: ErrCounterExhausted}
	delivery := &fakeDelivery{}
	svc := newTestFinalization(t, counters, delivery, &memoryQuoteLedger{}, nil)

	_, err := svc.Finalize(context.Background(), finalizableState(false))
	require.ErrorIs(t, err, ErrFinalizeFailed)
	assert.Empty(t, delivery.bundle.Quote.QuoteNumber)

	_, err = svc.Finalize(context.Background(), WizardState{})
	require.ErrorIs(t, err, ErrNothingSelected)
}

func TestFinalizationServicePublishFailureIsLogged(t *testing.T) {
	events := &capturePublisher{err: errors.New("pubsub down")}
	var logged []string
	svc, err := NewFinalizationService(FinalizationServiceDeps{
		Counters: &fakeDocumentCounters{},
		Delivery: &fakeDelivery{},
		Events:   events,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logged = append(logged, event)
		},
	})
	require.NoError(t, err)

	_, err = svc.Finalize(context.Background(), finalizableState(false))
	require.NoError(t, err)
	assert.Contains(t, logged, "quote.finalized.publish_failed")
}
