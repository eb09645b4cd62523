package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL bounds how long a confirm or checkout key can be replayed.
const DefaultTTL = 24 * time.Hour

// Status is the persisted lifecycle of a key.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Outcome tells the middleware what to do after Reserve.
type Outcome int

const (
	// OutcomeFresh: the key is ours, run the handler.
	OutcomeFresh Outcome = iota
	// OutcomeReplay: a stored response exists for this key and fingerprint.
	OutcomeReplay
	// OutcomeInFlight: another request holds the key and has not finished.
	OutcomeInFlight
)

type Reservation struct {
	Outcome Outcome
	Record  Record
}

// Record is one Idempotency-Key and, once completed, the response it produced.
type Record struct {
	Key             string
	Fingerprint     string
	Status          Status
	ResponseStatus  int
	ResponseHeaders map[string][]string
	ResponseBody    []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       time.Time
}

// Response is what the wrapped handler wrote.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store is implemented by GormStore (sqlite/postgres) and MemoryStore.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrFingerprintMismatch means the key was already used for a different method, path or body.
var ErrFingerprintMismatch = errors.New("idempotency: key reused with a different request")

func keyDigest(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// skippedReplayHeaders are never stored: hop-by-hop, per-response or session bearing.
var skippedReplayHeaders = map[string]bool{
	"Content-Length":    true,
	"Date":              true,
	"Connection":        true,
	"Keep-Alive":        true,
	"Te":                true,
	"Trailers":          true,
	"Transfer-Encoding": true,
	"Upgrade":           true,
	"Set-Cookie":        true,
}

func replayableHeaders(header http.Header) map[string][]string {
	var out map[string][]string
	for name, values := range header {
		name = http.CanonicalHeaderKey(name)
		if skippedReplayHeaders[name] {
			continue
		}
		if out == nil {
			out = make(map[string][]string, len(header))
		}
		out[name] = append([]string(nil), values...)
	}
	return out
}
