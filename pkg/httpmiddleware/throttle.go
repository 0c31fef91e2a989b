package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// KeyFunc names the caller a request is throttled as.
type KeyFunc func(*http.Request) string

// Quota is the state of one key after a call to Allow.
type Quota struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// bucket counts hits in the current aligned window and the one before it.
type bucket struct {
	start time.Time
	prev  int
	curr  int
}

// Limiter is a sliding-window counter keyed by caller. The previous window
// contributes in proportion to its overlap with the sliding window.
type Limiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewLimiter allows max hits per key in any window-long interval.
func NewLimiter(max int, window time.Duration) *Limiter {
	return &Limiter{
		max:     max,
		window:  window,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow records a hit for key unless the key is over its quota.
func (l *Limiter) Allow(key string) (Quota, bool) {
	now := l.now()
	start := now.Truncate(l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	switch {
	case !ok:
		b = &bucket{start: start}
		l.buckets[key] = b
	case !b.start.Equal(start):
		if start.Sub(b.start) == l.window {
			b.prev = b.curr
		} else {
			b.prev = 0
		}
		b.curr = 0
		b.start = start
	}

	overlap := 1 - float64(now.Sub(start))/float64(l.window)
	used := int(math.Ceil(float64(b.prev)*overlap)) + b.curr
	q := Quota{Limit: l.max, Reset: start.Add(l.window)}
	if used >= l.max {
		return q, false
	}
	b.curr++
	q.Remaining = max(l.max-used-1, 0)
	return q, true
}

// Run evicts idle keys until ctx is done.
func (l *Limiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(2 * l.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.evict()
		}
	}
}

func (l *Limiter) evict() {
	cutoff := l.now().Truncate(l.window).Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.start.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// Throttle rejects requests over the limiter's quota with 429. Quota headers
// are set on every response.
func Throttle(l *Limiter, key KeyFunc) Middleware {
	if key == nil {
		key = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q, ok := l.Allow(key(r))

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(q.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(q.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(q.Reset.Unix(), 10))
			if !ok {
				wait := max(q.Reset.Sub(l.now()), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "throttled", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP keys by the first X-Forwarded-For hop, then X-Real-IP, then the
// remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
