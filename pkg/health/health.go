// Package health serves liveness and readiness probes.
//
// Every registered check runs on its own ticker. A check turns unhealthy after
// FailureThreshold consecutive failures and healthy again after
// SuccessThreshold consecutive successes, so a single slow ping does not pull
// the instance out of rotation.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CheckFunc returns nil while the checked component is usable.
type CheckFunc func(ctx context.Context) error

// Probe selects the endpoint a check contributes to.
type Probe int

const (
	Liveness Probe = iota
	Readiness
)

func (p Probe) String() string {
	if p == Liveness {
		return "liveness"
	}
	return "readiness"
}

// Check describes one registered check. Zero thresholds default to 3
// failures and 1 success.
type Check struct {
	Name             string
	Probe            Probe
	Timeout          time.Duration
	FailureThreshold int
	SuccessThreshold int
	Func             CheckFunc
}

// state is written only by the goroutine running the check. healthy and
// lastErr are also read by the HTTP handlers.
type state struct {
	Check

	healthy atomic.Bool
	lastErr atomic.Pointer[string]

	fails int
	oks   int
}

func (s *state) observe(ctx context.Context, lg *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	err := s.Func(ctx)
	if err == nil {
		s.fails = 0
		s.oks++
		if s.oks >= s.SuccessThreshold && !s.healthy.Swap(true) {
			lg.Info("Check recovered", zap.String("check", s.Name), zap.Stringer("probe", s.Probe))
		}
		s.lastErr.Store(nil)
		return
	}

	msg := err.Error()
	s.lastErr.Store(&msg)
	s.oks = 0
	s.fails++
	if s.fails >= s.FailureThreshold && s.healthy.Swap(false) {
		lg.Warn("Check failing", zap.String("check", s.Name), zap.Stringer("probe", s.Probe), zap.Error(err))
	}
}

// reason is the message reported for an unhealthy check.
func (s *state) reason() string {
	if p := s.lastErr.Load(); p != nil {
		return *p
	}
	return "check is unhealthy"
}

// Health holds the registered checks and the manual readiness flag.
type Health struct {
	lg    *zap.Logger
	ready atomic.Bool

	mu     sync.RWMutex
	checks []*state
}

// New returns a Health that is not ready until SetReady(true).
func New(lg *zap.Logger) *Health {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Health{lg: lg}
}

// Add registers c. Checks start healthy.
func (h *Health) Add(c Check) {
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
	s := &state{Check: c}
	s.healthy.Store(true)

	h.mu.Lock()
	h.checks = append(h.checks, s)
	h.mu.Unlock()
}

// Run executes every check immediately and then once per interval until ctx
// is done.
func (h *Health) Run(ctx context.Context, interval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range h.snapshot(nil) {
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				s.observe(ctx, h.lg)
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		})
	}
	return g.Wait()
}

// SetReady flips the manual readiness flag. It is set once start-up completes
// and cleared when draining.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the manual flag combined with every readiness check.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	for _, s := range h.snapshot(func(s *state) bool { return s.Probe == Readiness }) {
		if !s.healthy.Load() {
			return false
		}
	}
	return true
}

// Live serves /livez.
func (h *Health) Live(w http.ResponseWriter, _ *http.Request) {
	write(w, h.failures(Liveness))
}

// Ready serves /readyz.
func (h *Health) Ready(w http.ResponseWriter, _ *http.Request) {
	failures := h.failures(Readiness)
	if !h.ready.Load() {
		failures = append(failures, failure{name: "_readiness", reason: "service is not ready"})
	}
	write(w, failures)
}

func (h *Health) snapshot(keep func(*state) bool) []*state {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if keep == nil {
		return slices.Clone(h.checks)
	}
	var out []*state
	for _, s := range h.checks {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

type failure struct {
	name   string
	reason string
}

func (h *Health) failures(p Probe) []failure {
	var out []failure
	for _, s := range h.snapshot(func(s *state) bool { return s.Probe == p }) {
		if !s.healthy.Load() {
			out = append(out, failure{name: s.Name, reason: s.reason()})
		}
	}
	return out
}

// write renders {"status":"ok"} or {"status":"unhealthy","checks":{...}}.
func write(w http.ResponseWriter, failures []failure) {
	status := http.StatusOK
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		if len(failures) == 0 {
			e.Field("status", func(e *jx.Encoder) { e.Str("ok") })
			return
		}
		status = http.StatusServiceUnavailable
		e.Field("status", func(e *jx.Encoder) { e.Str("unhealthy") })
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, f := range failures {
					e.Field(f.name, func(e *jx.Encoder) { e.Str(f.reason) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
