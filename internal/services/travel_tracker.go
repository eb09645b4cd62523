package services

import (
	"context"
	"errors"
	"sync"
	"time"
)

const defaultTravelDebounce = 600 * time.Millisecond

// TravelOutcome is delivered when a scheduled resolution completes. Seq identifies the request.
type TravelOutcome struct {
	Seq   uint64
	Quote TravelQuote
	Err   error
}

// TravelFeeTracker debounces address changes and delivers only the latest resolution.
type TravelFeeTracker struct {
	resolver TravelResolver
	debounce time.Duration
	deliver  func(TravelOutcome)

	mu     sync.Mutex
	seq    uint64
	timer  *time.Timer
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// NewTravelFeeTracker builds a tracker that calls deliver from its own goroutine.
func NewTravelFeeTracker(resolver TravelResolver, debounce time.Duration, deliver func(TravelOutcome)) (*TravelFeeTracker, error) {
	if resolver == nil {
		return nil, errors.New("travel tracker: resolver is required")
	}
	if deliver == nil {
		return nil, errors.New("travel tracker: deliver callback is required")
	}
	if debounce <= 0 {
		debounce = defaultTravelDebounce
	}
	return &TravelFeeTracker{resolver: resolver, debounce: debounce, deliver: deliver}, nil
}

// Schedule replaces any pending or in-flight resolution with one for address and returns its token.
func (t *TravelFeeTracker) Schedule(address Address) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.seq++
	if t.closed {
		return t.seq
	}
	seq := t.seq
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.wg.Add(1)
	t.timer = time.AfterFunc(t.debounce, func() {
		defer t.wg.Done()
		t.run(ctx, seq, address)
	})
	return seq
}

// Cancel aborts pending and in-flight work and invalidates outstanding tokens.
func (t *TravelFeeTracker) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.seq++
}

// Close cancels outstanding work and waits for the worker to exit.
func (t *TravelFeeTracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.stopLocked()
	t.seq++
	t.mu.Unlock()
	t.wg.Wait()
}

// Latest reports whether seq is the most recent token.
func (t *TravelFeeTracker) Latest(seq uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return seq == t.seq
}

func (t *TravelFeeTracker) stopLocked() {
	if t.timer != nil {
		if t.timer.Stop() {
			t.wg.Done()
		}
		t.timer = nil
	}
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

func (t *TravelFeeTracker) run(ctx context.Context, seq uint64, address Address) {
	quote, err := t.resolver.Resolve(ctx, address)
	if ctx.Err() != nil || !t.Latest(seq) {
		return
	}
	t.deliver(TravelOutcome{Seq: seq, Quote: quote, Err: err})
}
