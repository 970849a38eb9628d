// Package health serves liveness and readiness probes.
//
// Checks run on demand when a probe endpoint is hit. All checks of a probe
// run concurrently, each bounded by its own timeout.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"golang.org/x/sync/errgroup"
)

// Check reports nil when the component it guards is usable.
type Check func(ctx context.Context) error

type namedCheck struct {
	name    string
	timeout time.Duration
	check   Check
}

// Health holds the registered probes. The zero value is not ready.
type Health struct {
	ready atomic.Bool

	mu        sync.RWMutex
	live      []namedCheck
	readiness []namedCheck
}

// New returns a Health that reports not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check for /livez.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.live = append(h.live, namedCheck{name: name, timeout: timeout, check: check})
}

// AddReadinessCheck registers a check for /readyz.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, namedCheck{name: name, timeout: timeout, check: check})
}

// SetReady toggles the manual readiness gate. Shutdown clears it before
// draining the server.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Ready runs the readiness checks and returns the failures by name.
func (h *Health) Ready(ctx context.Context) map[string]string {
	h.mu.RLock()
	checks := slices.Clone(h.readiness)
	h.mu.RUnlock()

	failures := runChecks(ctx, checks)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	return failures
}

// Live runs the liveness checks and returns the failures by name.
func (h *Health) Live(ctx context.Context) map[string]string {
	h.mu.RLock()
	checks := slices.Clone(h.live)
	h.mu.RUnlock()

	return runChecks(ctx, checks)
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, h.Live(r.Context()))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, h.Ready(r.Context()))
}

func runChecks(ctx context.Context, checks []namedCheck) map[string]string {
	var (
		mu       sync.Mutex
		failures = make(map[string]string)
		g        errgroup.Group
	)
	for _, c := range checks {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			if err := c.check(checkCtx); err != nil {
				mu.Lock()
				failures[c.name] = err.Error()
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failures
}

func writeResponse(w http.ResponseWriter, failures map[string]string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	status := http.StatusOK
	e.Obj(func(e *jx.Encoder) {
		if len(failures) == 0 {
			e.Field("status", func(e *jx.Encoder) { e.Str("ok") })
			return
		}
		status = http.StatusServiceUnavailable
		e.Field("status", func(e *jx.Encoder) { e.Str("unhealthy") })
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				names := make([]string, 0, len(failures))
				for name := range failures {
					names = append(names, name)
				}
				slices.Sort(names)
				for _, name := range names {
					e.Field(name, func(e *jx.Encoder) { e.Str(failures[name]) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
