package tenant

import (
	"context"
	"errors"
	"strings"

	"github.com/alltowndelivery/platform/platform/go/cache"
	"github.com/alltowndelivery/platform/platform/go/metrics"
)

// Resolution errors. ErrNotFound means no tenant owns the host; it must be
// surfaced as a routing error, never substituted with a default tenant.
// Lookup infrastructure failures propagate as-is and are distinct from both.
var (
	ErrNotFound = errors.New("tenant not found for host")
	ErrDisabled = errors.New("tenant is deactivated")
)

// Lookup is the minimal storage capability the resolver needs. Implemented
// by the tenants repository. Both methods return ErrNotFound when no active
// tenant matches and ErrDisabled for deactivated tenants.
type Lookup interface {
	FindBySubdomain(ctx context.Context, subdomain string) (Context, error)
	FindByCustomDomain(ctx context.Context, domain string) (Context, error)
}

// Resolver maps an inbound host header to a tenant Context. Successful
// lookups are cached per full host for the cache's TTL; entries are never
// invalidated proactively, so domain or branding edits take effect only
// after expiry. Caching by full host keeps the custom-domain match ahead of
// the subdomain match: two hosts sharing a first label never share an entry.
type Resolver struct {
	lookup        Lookup
	cache         *cache.TTL[Context]
	platformHosts map[string]struct{}
}

// NewResolver constructs a Resolver. platformHosts is the fixed allow-list
// of the platform's own hostnames (marketing site and bare development
// hosts); requests for them resolve to the synthetic main-site context
// without any storage lookup.
func NewResolver(lookup Lookup, c *cache.TTL[Context], platformHosts []string) *Resolver {
	if lookup == nil {
		panic("tenant resolver: lookup is required")
	}
	if c == nil {
		panic("tenant resolver: cache is required")
	}

	hosts := make(map[string]struct{}, len(platformHosts))
	for _, h := range platformHosts {
		h = NormalizeHost(h)
		if h != "" {
			hosts[h] = struct{}{}
		}
	}
	return &Resolver{lookup: lookup, cache: c, platformHosts: hosts}
}

// Resolve classifies hostHeader and returns the owning tenant Context.
func (r *Resolver) Resolve(ctx context.Context, hostHeader string) (Context, error) {
	host := NormalizeHost(hostHeader)
	if host == "" {
		return Context{}, ErrNotFound
	}

	if _, ok := r.platformHosts[host]; ok {
		return MainSite(), nil
	}

	key := "host:" + host
	if tc, ok := r.cache.Get(key); ok {
		metrics.TenantCacheHits.Inc()
		return tc, nil
	}
	metrics.TenantCacheMisses.Inc()

	// The exact custom-domain match runs first; the subdomain label is only
	// consulted once no tenant owns the host as a custom domain.
	tc, err := r.lookup.FindByCustomDomain(ctx, host)
	if err == nil {
		r.cache.Put(key, tc)
		return tc, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Context{}, err
	}

	sub := Subdomain(host)
	if sub == "" {
		return Context{}, ErrNotFound
	}

	tc, err = r.lookup.FindBySubdomain(ctx, strings.ToLower(sub))
	if err != nil {
		return Context{}, err
	}
	r.cache.Put(key, tc)
	return tc, nil
}
