// Package failover implements the dual-backend storage policy: every
// operation runs against the durable backend first and, depending on its
// policy, either degrades to the in-memory backend or fails loudly.
package failover

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alltowndelivery/platform/platform/go/metrics"
)

// Policy declares whether an operation may be served by the in-memory
// backend when the durable backend is unreachable. Writes with correctness
// requirements (claim, loyalty, releases) must use FallbackForbidden so they
// fail loudly instead of silently landing on a lossy backend.
type Policy int

const (
	FallbackAllowed Policy = iota
	FallbackForbidden
)

// ErrPrimaryUnavailable marks an operation rejected because the durable
// backend was unreachable and its policy forbids fallback. Callers surface
// it as a retryable failure.
var ErrPrimaryUnavailable = errors.New("durable storage unavailable")

// Gate caches the verdict that the durable backend is down so allowed
// operations do not re-probe it on every call within the verdict window.
type Gate struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	downUntil time.Time
}

// NewGate constructs a Gate with the given verdict TTL. A nil now func
// defaults to time.Now.
func NewGate(ttl time.Duration, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{ttl: ttl, now: now}
}

// MarkDown records a durable backend failure, starting the verdict window.
func (g *Gate) MarkDown() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.downUntil = g.now().Add(g.ttl)
}

// MarkUp clears the verdict after a successful durable call.
func (g *Gate) MarkUp() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.downUntil = time.Time{}
}

// Down reports whether the backend is currently considered unreachable.
func (g *Gate) Down() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.now().Before(g.downUntil)
}

// Runner binds a gate, a logger and the set of errors that must pass through
// untouched (domain errors such as not-found or state conflicts never
// trigger fallback; only infrastructure failures do).
type Runner struct {
	gate        *Gate
	logger      *zap.Logger
	passThrough []error
}

// NewRunner constructs a Runner. passThrough lists sentinel errors treated
// as domain results rather than backend failures.
func NewRunner(gate *Gate, logger *zap.Logger, passThrough ...error) *Runner {
	if gate == nil {
		panic("failover: gate is required")
	}
	if logger == nil {
		panic("failover: logger is required")
	}
	return &Runner{gate: gate, logger: logger, passThrough: passThrough}
}

// Gate exposes the underlying gate, shared across all resilient repositories.
func (r *Runner) Gate() *Gate { return r.gate }

func (r *Runner) infraFailure(err error) bool {
	if err == nil {
		return false
	}
	// A canceled or expired caller context is not a backend outage.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	for _, p := range r.passThrough {
		if errors.Is(err, p) {
			return false
		}
	}
	return true
}

// Run executes op against primary first. Infrastructure failures mark the
// gate down and, per policy, either degrade to fallback (logged) or return
// ErrPrimaryUnavailable. While the gate is down, allowed operations skip the
// primary entirely; forbidden operations always probe it so they recover as
// soon as the backend does.
func Run[T any](ctx context.Context, r *Runner, op string, policy Policy, primary, fallback func(context.Context) (T, error)) (T, error) {
	if policy == FallbackAllowed && r.gate.Down() {
		metrics.StorageFallbacks.WithLabelValues(op).Inc()
		return fallback(ctx)
	}

	out, err := primary(ctx)
	if !r.infraFailure(err) {
		if err == nil {
			r.gate.MarkUp()
		}
		return out, err
	}

	r.gate.MarkDown()

	if policy == FallbackForbidden {
		metrics.StorageUnavailable.WithLabelValues(op).Inc()
		r.logger.Error("durable storage failed, fallback forbidden",
			zap.String("operation", op),
			zap.Error(err),
		)
		var zero T
		return zero, errors.Join(ErrPrimaryUnavailable, err)
	}

	metrics.StorageFallbacks.WithLabelValues(op).Inc()
	r.logger.Warn("durable storage failed, degrading to in-memory backend",
		zap.String("operation", op),
		zap.Error(err),
	)
	return fallback(ctx)
}

// RunVoid is Run for operations without a result.
func RunVoid(ctx context.Context, r *Runner, op string, policy Policy, primary, fallback func(context.Context) error) error {
	_, err := Run(ctx, r, op, policy,
		func(ctx context.Context) (struct{}, error) { return struct{}{}, primary(ctx) },
		func(ctx context.Context) (struct{}, error) { return struct{}{}, fallback(ctx) },
	)
	return err
}
