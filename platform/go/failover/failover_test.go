package failover

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errNotFound = errors.New("not found")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRunner(t *testing.T, clock *fakeClock) *Runner {
	t.Helper()
	return NewRunner(NewGate(30*time.Second, clock.Now), zaptest.NewLogger(t), errNotFound)
}

func TestRunAllowedFallsBackOnInfraFailure(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	r := newTestRunner(t, clock)

	out, err := Run(context.Background(), r, "tenants.get", FallbackAllowed,
		func(context.Context) (string, error) { return "", errors.New("connection refused") },
		func(context.Context) (string, error) { return "from-memory", nil },
	)
	require.NoError(t, err)
	require.Equal(t, "from-memory", out)
	require.True(t, r.Gate().Down())
}

func TestRunAllowedSkipsPrimaryWhileGateDown(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	r := newTestRunner(t, clock)
	r.Gate().MarkDown()

	primaryCalls := 0
	out, err := Run(context.Background(), r, "deliveries.list", FallbackAllowed,
		func(context.Context) (int, error) { primaryCalls++; return 1, nil },
		func(context.Context) (int, error) { return 2, nil },
	)
	require.NoError(t, err)
	require.Equal(t, 2, out)
	require.Zero(t, primaryCalls)

	// After the verdict expires the primary is probed again.
	clock.Advance(31 * time.Second)
	out, err = Run(context.Background(), r, "deliveries.list", FallbackAllowed,
		func(context.Context) (int, error) { primaryCalls++; return 1, nil },
		func(context.Context) (int, error) { return 2, nil },
	)
	require.NoError(t, err)
	require.Equal(t, 1, out)
	require.Equal(t, 1, primaryCalls)
}

func TestRunForbiddenFailsLoudly(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	r := newTestRunner(t, clock)

	cause := errors.New("dial tcp: timeout")
	fallbackCalls := 0
	_, err := Run(context.Background(), r, "deliveries.claim", FallbackForbidden,
		func(context.Context) (string, error) { return "", cause },
		func(context.Context) (string, error) { fallbackCalls++; return "memory-claim", nil },
	)
	require.ErrorIs(t, err, ErrPrimaryUnavailable)
	require.ErrorIs(t, err, cause)
	require.Zero(t, fallbackCalls)
}

func TestRunForbiddenProbesPrimaryWhileGateDown(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	r := newTestRunner(t, clock)
	r.Gate().MarkDown()

	out, err := Run(context.Background(), r, "deliveries.claim", FallbackForbidden,
		func(context.Context) (string, error) { return "claimed", nil },
		func(context.Context) (string, error) { return "", errors.New("unexpected fallback") },
	)
	require.NoError(t, err)
	require.Equal(t, "claimed", out)
	// Successful probe clears the verdict for everyone else.
	require.False(t, r.Gate().Down())
}

func TestRunDomainErrorsPassThrough(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	r := newTestRunner(t, clock)

	fallbackCalls := 0
	_, err := Run(context.Background(), r, "tenants.get", FallbackAllowed,
		func(context.Context) (string, error) { return "", errNotFound },
		func(context.Context) (string, error) { fallbackCalls++; return "", nil },
	)
	require.ErrorIs(t, err, errNotFound)
	require.Zero(t, fallbackCalls)
	require.False(t, r.Gate().Down())
}

func TestRunContextCancellationIsNotAnOutage(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	r := newTestRunner(t, clock)

	_, err := Run(context.Background(), r, "tenants.get", FallbackAllowed,
		func(context.Context) (string, error) { return "", context.Canceled },
		func(context.Context) (string, error) { return "", errors.New("unexpected fallback") },
	)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, r.Gate().Down())
}

func TestRunVoid(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	r := newTestRunner(t, clock)

	ran := false
	err := RunVoid(context.Background(), r, "profiles.touch", FallbackAllowed,
		func(context.Context) error { return errors.New("down") },
		func(context.Context) error { ran = true; return nil },
	)
	require.NoError(t, err)
	require.True(t, ran)
}
