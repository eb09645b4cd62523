package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultQuoteSessionTTL = 2 * time.Hour

// ErrQuoteSessionNotFound indicates an unknown or expired session id.
var ErrQuoteSessionNotFound = errors.New("quote session: not found")

// QuoteSessionServiceDeps bundles the session store collaborators.
type QuoteSessionServiceDeps struct {
	Catalog     CatalogProvider
	Schedule    *ScheduleResolver
	Travel      TravelResolver
	Finalizer   Finalizer
	TTL         time.Duration
	Debounce    time.Duration
	Clock       func() time.Time
	IDGenerator func() string
	Logger      Logger
}

type quoteSession struct {
	id       string
	mu       sync.Mutex
	wizard   *QuoteWizard
	tracker  *TravelFeeTracker
	lastSeen time.Time
	closed   bool
}

// QuoteSessionService keeps wizard sessions in memory and serializes access per session.
type QuoteSessionService struct {
	catalog   CatalogProvider
	schedule  *ScheduleResolver
	travel    TravelResolver
	finalizer Finalizer
	ttl       time.Duration
	debounce  time.Duration
	clock     func() time.Time
	newID     func() string
	logger    Logger

	mu       sync.Mutex
	sessions map[string]*quoteSession
}

// NewQuoteSessionService constructs the session store.
func NewQuoteSessionService(deps QuoteSessionServiceDeps) (*QuoteSessionService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("quote session service: catalog is required")
	}
	if deps.Schedule == nil {
		return nil, errors.New("quote session service: schedule resolver is required")
	}
	if deps.Finalizer == nil {
		return nil, errors.New("quote session service: finalizer is required")
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = defaultQuoteSessionTTL
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	return &QuoteSessionService{
		catalog:   deps.Catalog,
		schedule:  deps.Schedule,
		travel:    deps.Travel,
		finalizer: deps.Finalizer,
		ttl:       ttl,
		debounce:  deps.Debounce,
		clock:     func() time.Time { return clock().UTC() },
		newID:     newID,
		logger:    logger,
		sessions:  make(map[string]*quoteSession),
	}, nil
}

// Create starts a wizard session on the current catalog.
func (s *QuoteSessionService) Create(ctx context.Context) (string, WizardView, error) {
	catalog, err := s.catalog.Catalog(ctx)
	if err != nil {
		return "", WizardView{}, err
	}
	wizard, err := NewQuoteWizard(QuoteWizardDeps{
		Catalog:   catalog,
		Schedule:  s.schedule,
		Finalizer: s.finalizer,
		Clock:     s.clock,
	})
	if err != nil {
		return "", WizardView{}, err
	}
	sess := &quoteSession{id: s.newID(), wizard: wizard, lastSeen: s.clock()}
	if s.travel != nil {
		tracker, err := NewTravelFeeTracker(s.travel, s.debounce, func(o TravelOutcome) {
			s.applyTravel(sess, o)
		})
		if err != nil {
			return "", WizardView{}, err
		}
		sess.tracker = tracker
		wizard.SetTravel(tracker)
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger(ctx, "quote.session.created", map[string]any{"sessionId": sess.id})
	return sess.id, wizard.View(), nil
}

func (s *QuoteSessionService) applyTravel(sess *quoteSession, outcome TravelOutcome) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return
	}
	if sess.wizard.ApplyTravel(outcome) && outcome.Err != nil {
		s.logger(context.Background(), "quote.session.travel_failed", map[string]any{
			"sessionId": sess.id,
			"error":     outcome.Err.Error(),
		})
	}
}

func (s *QuoteSessionService) lookup(id string) (*quoteSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrQuoteSessionNotFound
	}
	return sess, nil
}

// Do runs fn on the session wizard under the session lock and returns the resulting view.
// The view is returned even when fn fails so callers can show the unchanged state.
// While documents are being delivered every mutation fails with ErrFinalizeInProgress.
func (s *QuoteSessionService) Do(ctx context.Context, id string, fn func(w *QuoteWizard) error) (WizardView, error) {
	return s.do(ctx, id, fn, false)
}

func (s *QuoteSessionService) do(_ context.Context, id string, fn func(w *QuoteWizard) error, duringSubmit bool) (WizardView, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return WizardView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return WizardView{}, ErrQuoteSessionNotFound
	}
	sess.lastSeen = s.clock()
	var fnErr error
	switch {
	case fn == nil:
	case !duringSubmit && sess.wizard.Submitting():
		fnErr = ErrFinalizeInProgress
	default:
		fnErr = fn(sess.wizard)
	}
	return sess.wizard.View(), fnErr
}

// View returns the current view of a session.
func (s *QuoteSessionService) View(ctx context.Context, id string) (WizardView, error) {
	return s.Do(ctx, id, nil)
}

// Confirm runs the finalization orchestrator. The session lock is released while documents are delivered.
func (s *QuoteSessionService) Confirm(ctx context.Context, id string) (FinalizeResult, WizardView, error) {
	var state WizardState
	if view, err := s.Do(ctx, id, func(w *QuoteWizard) error {
		var err error
		state, err = w.BeginFinalize()
		return err
	}); err != nil {
		return FinalizeResult{}, view, err
	}

	result, finalizeErr := s.finalizer.Finalize(ctx, state)
	view, err := s.do(ctx, id, func(w *QuoteWizard) error {
		w.CompleteFinalize(finalizeErr)
		return nil
	}, true)
	if finalizeErr != nil {
		return FinalizeResult{}, view, finalizeErr
	}
	if err != nil && !errors.Is(err, ErrQuoteSessionNotFound) {
		return result, view, err
	}
	return result, view, nil
}

// Delete discards a session and stops its travel worker.
func (s *QuoteSessionService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return ErrQuoteSessionNotFound
	}
	s.close(sess)
	s.logger(ctx, "quote.session.deleted", map[string]any{"sessionId": id})
	return nil
}

func (s *QuoteSessionService) close(sess *quoteSession) {
	sess.mu.Lock()
	sess.closed = true
	sess.mu.Unlock()
	if sess.tracker != nil {
		sess.tracker.Close()
	}
}

// Sweep removes sessions idle for longer than the TTL and returns how many were dropped.
func (s *QuoteSessionService) Sweep(ctx context.Context) int {
	now := s.clock()
	var expired []*quoteSession
	s.mu.Lock()
	for id, sess := range s.sessions {
		sess.mu.Lock()
		idle := now.Sub(sess.lastSeen)
		sess.mu.Unlock()
		if idle > s.ttl {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()
	for _, sess := range expired {
		s.close(sess)
	}
	if len(expired) > 0 {
		s.logger(ctx, "quote.session.swept", map[string]any{"expired": len(expired)})
	}
	return len(expired)
}

// Run sweeps expired sessions every interval until ctx is cancelled.
func (s *QuoteSessionService) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("quote session service: sweep interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Close drops every session.
func (s *QuoteSessionService) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*quoteSession)
	s.mu.Unlock()
	for _, sess := range sessions {
		s.close(sess)
	}
}

// Count returns the number of live sessions.
func (s *QuoteSessionService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
