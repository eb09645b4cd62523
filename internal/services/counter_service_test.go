package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recophone/api/internal/repositories"
)

type memoryCounters struct {
	mu         sync.Mutex
	values     map[string]int64
	ceilings   map[string]int64
	configured []string
	configErr  error
}

func newMemoryCounters() *memoryCounters {
	return &memoryCounters{values: map[string]int64{}, ceilings: map[string]int64{}}
}

func (m *memoryCounters) Next(_ context.Context, counterID string, step int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.values[counterID] + step
	if ceiling, ok := m.ceilings[counterID]; ok && next > ceiling {
		return 0, repositories.ExhaustedCounter(counterID, ceiling)
	}
	m.values[counterID] = next
	return next, nil
}

func (m *memoryCounters) Configure(_ context.Context, counterID string, cfg repositories.CounterConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.configErr != nil {
		return m.configErr
	}
	m.configured = append(m.configured, counterID)
	if cfg.MaxValue != nil {
		m.ceilings[counterID] = *cfg.MaxValue
	}
	return nil
}

func TestDocumentSeriesFormat(t *testing.T) {
	assert.Equal(t, "RP_00001", QuoteSeries.Format(1))
	assert.Equal(t, "RC_12345", ContractSeries.Format(12345))
	assert.Equal(t, "RP_99999", QuoteSeries.Format(99999))
}

func TestCounterServiceSeriesAreIndependent(t *testing.T) {
	repo := newMemoryCounters()
	svc, err := NewCounterService(CounterServiceDeps{Repository: repo})
	require.NoError(t, err)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		quote, err := svc.NextQuoteNumber(ctx)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("RP_%05d", i), quote)
	}
	contract, err := svc.NextContractNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, "RC_00001", contract)

	assert.ElementsMatch(t, []string{"documents:RP", "documents:RC"}, repo.configured)
	assert.Equal(t, int64(99999), repo.ceilings["documents:RP"])
}

func TestCounterServiceConcurrentNumbersAreUnique(t *testing.T) {
	svc, err := NewCounterService(CounterServiceDeps{Repository: newMemoryCounters()})
	require.NoError(t, err)

	const workers = 20
	results := make(chan string, workers)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			number, err := svc.NextQuoteNumber(context.Background())
			assert.NoError(t, err)
			results <- number
		}()
	}
	wg.Wait()
	close(results)

	seen := map[string]bool{}
	for number := range results {
		assert.False(t, seen[number], "duplicate %s", number)
		seen[number] = true
	}
	assert.Len(t, seen, workers)
}

func TestCounterServiceExhaustion(t *testing.T) {
	repo := newMemoryCounters()
	repo.values["documents:RC"] = 99999
	var events []string
	svc, err := NewCounterService(CounterServiceDeps{
		Repository: repo,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			events = append(events, event)
		},
	})
	require.NoError(t, err)

	_, err = svc.NextContractNumber(context.Background())
	require.ErrorIs(t, err, ErrCounterExhausted)
	assert.Equal(t, []string{"counter.exhausted"}, events)
}

func TestCounterServiceRetriesConfigureAfterFailure(t *testing.T) {
	repo := newMemoryCounters()
	repo.configErr = errors.New("database locked")
	svc, err := NewCounterService(CounterServiceDeps{Repository: repo})
	require.NoError(t, err)

	_, err = svc.NextQuoteNumber(context.Background())
	require.ErrorContains(t, err, "database locked")

	repo.configErr = nil
	quote, err := svc.NextQuoteNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "RP_00001", quote)
}

func TestNewCounterServiceRequiresRepository(t *testing.T) {
	_, err := NewCounterService(CounterServiceDeps{})
	assert.Error(t, err)
}
