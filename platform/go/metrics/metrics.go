// Package metrics declares the process-wide prometheus collectors.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// StorageFallbacks counts operations served by the in-memory backend after
	// a durable backend failure, labeled by operation name.
	StorageFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_fallbacks_total",
		Help: "Operations degraded to the in-memory backend",
	}, []string{"operation"})

	// StorageUnavailable counts operations that failed loudly because fallback
	// is forbidden for them (claim, loyalty and other state-machine writes).
	StorageUnavailable = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_unavailable_total",
		Help: "Operations rejected because the durable backend was unreachable",
	}, []string{"operation"})

	// ClaimConflicts counts claim attempts that lost the race for a delivery.
	ClaimConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "delivery_claim_conflicts_total",
		Help: "Claim attempts rejected because the delivery was not available",
	})

	// TenantCacheHits / TenantCacheMisses track resolver cache effectiveness.
	TenantCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tenant_resolver_cache_hits_total",
		Help: "Tenant resolutions answered from the TTL cache",
	})
	TenantCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tenant_resolver_cache_misses_total",
		Help: "Tenant resolutions that required a storage lookup",
	})

	// LoyaltyCreditsIssued counts free-delivery credits granted by the ledger.
	LoyaltyCreditsIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loyalty_credits_issued_total",
		Help: "Free delivery credits issued when loyalty points crossed the threshold",
	})
)

// Init registers all collectors with the default registry. Call once at startup.
func Init() {
	prometheus.MustRegister(
		StorageFallbacks,
		StorageUnavailable,
		ClaimConflicts,
		TenantCacheHits,
		TenantCacheMisses,
		LoyaltyCreditsIssued,
	)
}
