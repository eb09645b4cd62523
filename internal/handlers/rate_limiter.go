package handlers

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/recophone/api/internal/platform/httpx"
)

type rateLimiter interface {
	Allow(key string) bool
}

// perMinuteLimiter keeps one token bucket per key refilled at limit/minute with a burst of limit.
type perMinuteLimiter struct {
	limit   int
	every   rate.Limit
	idleTTL time.Duration
	clock   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
	sweepAt time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newPerMinuteLimiter(limit int, clock func() time.Time) rateLimiter {
	if limit <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &perMinuteLimiter{
		limit:   limit,
		every:   rate.Limit(float64(limit) / 60),
		idleTTL: 2 * time.Minute,
		clock:   clock,
		buckets: make(map[string]*bucket),
	}
}

func (l *perMinuteLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.every, l.limit)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)
	l.pruneIdleLocked(now)
	return allowed
}

// pruneIdleLocked drops buckets idle long enough to be full again.
func (l *perMinuteLimiter) pruneIdleLocked(now time.Time) {
	if now.Before(l.sweepAt) {
		return
	}
	l.sweepAt = now.Add(l.idleTTL)
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.buckets, key)
		}
	}
}

// rateLimit answers 429 once the caller's IP has spent its bucket.
func rateLimit(limiter rateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientIP(r)) {
				w.Header().Set("Retry-After", strconv.Itoa(60))
				httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
