package tenant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/alltowndelivery/platform/platform/go/cache"
)

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

// tableLookup emulates the backing tenant table; entries can be swapped out
// between calls to observe cache behavior.
type tableLookup struct {
	mu          sync.Mutex
	bySubdomain map[string]Context
	byDomain    map[string]Context
	failWith    error
	lookups     int
}

func (l *tableLookup) FindBySubdomain(_ context.Context, sub string) (Context, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lookups++
	if l.failWith != nil {
		return Context{}, l.failWith
	}
	tc, ok := l.bySubdomain[sub]
	if !ok {
		return Context{}, ErrNotFound
	}
	return tc, nil
}

func (l *tableLookup) FindByCustomDomain(_ context.Context, domain string) (Context, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lookups++
	if l.failWith != nil {
		return Context{}, l.failWith
	}
	tc, ok := l.byDomain[domain]
	if !ok {
		return Context{}, ErrNotFound
	}
	return tc, nil
}

func newTenantContext(name string) Context {
	return Context{TenantID: uuid.New(), CompanyName: name, PlanType: "starter"}
}

func newResolverFixture(clock *fakeClock) (*Resolver, *tableLookup) {
	lookup := &tableLookup{
		bySubdomain: map[string]Context{},
		byDomain:    map[string]Context{},
	}
	c := cache.NewTTL[Context](5*time.Minute, clock.Now)
	r := NewResolver(lookup, c, []string{"alltowndelivery.com", "www.alltowndelivery.com", "localhost", "127.0.0.1"})
	return r, lookup
}

func TestResolveMainSiteSkipsLookup(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	r, lookup := newResolverFixture(clock)

	for _, host := range []string{"alltowndelivery.com", "WWW.alltowndelivery.com:443", "localhost:3000"} {
		tc, err := r.Resolve(context.Background(), host)
		require.NoError(t, err, host)
		require.True(t, tc.IsMainSite, host)
	}
	require.Zero(t, lookup.lookups)
}

func TestResolveByCustomDomain(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	r, lookup := newResolverFixture(clock)
	want := newTenantContext("Corner Store Couriers")
	lookup.byDomain["cornerstore.example"] = want

	tc, err := r.Resolve(context.Background(), "cornerstore.example")
	require.NoError(t, err)
	require.Equal(t, want.TenantID, tc.TenantID)
}

func TestResolveBySubdomain(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	r, lookup := newResolverFixture(clock)
	want := newTenantContext("Acme Deliveries")
	lookup.bySubdomain["acme"] = want

	tc, err := r.Resolve(context.Background(), "Acme.alltowndelivery.com:8443")
	require.NoError(t, err)
	require.Equal(t, want.TenantID, tc.TenantID)
}

func TestResolveCustomDomainWinsOverCachedSubdomainLabel(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	r, lookup := newResolverFixture(clock)
	subdomainTenant := newTenantContext("Acme Deliveries")
	domainTenant := newTenantContext("Acme Corner Shop")
	lookup.bySubdomain["acme"] = subdomainTenant
	lookup.byDomain["acme.cornershop.example"] = domainTenant

	// Prime the cache through the platform subdomain.
	tc, err := r.Resolve(context.Background(), "acme.alltowndelivery.com")
	require.NoError(t, err)
	require.Equal(t, subdomainTenant.TenantID, tc.TenantID)

	// A different host sharing the first label must resolve through its
	// registered custom domain, never the cached subdomain tenant.
	tc, err = r.Resolve(context.Background(), "acme.cornershop.example")
	require.NoError(t, err)
	require.Equal(t, domainTenant.TenantID, tc.TenantID)

	// Both hosts stay cached independently.
	before := lookup.lookups
	tc, err = r.Resolve(context.Background(), "acme.cornershop.example")
	require.NoError(t, err)
	require.Equal(t, domainTenant.TenantID, tc.TenantID)
	tc, err = r.Resolve(context.Background(), "acme.alltowndelivery.com")
	require.NoError(t, err)
	require.Equal(t, subdomainTenant.TenantID, tc.TenantID)
	require.Equal(t, before, lookup.lookups)
}

func TestResolveUnknownHostIsNotFound(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	r, _ := newResolverFixture(clock)

	_, err := r.Resolve(context.Background(), "unknown-business.alltowndelivery.com")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = r.Resolve(context.Background(), "nobody.example")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolveCachesWithinTTL(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	r, lookup := newResolverFixture(clock)
	original := newTenantContext("Original")
	lookup.bySubdomain["acme"] = original

	tc, err := r.Resolve(context.Background(), "acme.alltowndelivery.com")
	require.NoError(t, err)
	require.Equal(t, original.TenantID, tc.TenantID)

	// The backing table changes, but within the TTL the cached result wins.
	replacement := newTenantContext("Replacement")
	lookup.mu.Lock()
	lookup.bySubdomain["acme"] = replacement
	lookup.mu.Unlock()

	clock.Advance(4 * time.Minute)
	tc, err = r.Resolve(context.Background(), "acme.alltowndelivery.com")
	require.NoError(t, err)
	require.Equal(t, original.TenantID, tc.TenantID)

	// After expiry the edit becomes visible.
	clock.Advance(2 * time.Minute)
	tc, err = r.Resolve(context.Background(), "acme.alltowndelivery.com")
	require.NoError(t, err)
	require.Equal(t, replacement.TenantID, tc.TenantID)
}

func TestResolveInfrastructureErrorIsDistinct(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	r, lookup := newResolverFixture(clock)
	boom := errors.New("connection refused")
	lookup.failWith = boom

	_, err := r.Resolve(context.Background(), "acme.alltowndelivery.com")
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestResolveDisabledTenantPropagates(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	r, lookup := newResolverFixture(clock)
	lookup.failWith = ErrDisabled

	_, err := r.Resolve(context.Background(), "churned.alltowndelivery.com")
	require.ErrorIs(t, err, ErrDisabled)
}
