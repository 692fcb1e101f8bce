// Package pricing defines the fare-quoting contract. The computation itself
// is an external pure function; the delivery service only consumes a Quoter.
package pricing

import "math"

// Config is the per-tenant pricing configuration stored in tenant settings.
type Config struct {
	BaseFeeCents   int64   `json:"baseFeeCents"`
	PerKmCents     int64   `json:"perKmCents"`
	RushMultiplier float64 `json:"rushMultiplier"`
}

// DefaultConfig applies when a tenant has no settings document yet.
func DefaultConfig() Config {
	return Config{BaseFeeCents: 500, PerKmCents: 150, RushMultiplier: 1.5}
}

// Quoter computes the delivery fee in cents for a distance under a tenant's
// pricing configuration. It must be pure.
type Quoter func(distanceKm float64, cfg Config, isRush bool) int64

// Standard is the platform's default quoter: base fee plus per-km rate,
// multiplied for rush orders, rounded to the nearest cent.
func Standard(distanceKm float64, cfg Config, isRush bool) int64 {
	if distanceKm < 0 {
		distanceKm = 0
	}
	fee := float64(cfg.BaseFeeCents) + distanceKm*float64(cfg.PerKmCents)
	if isRush {
		mult := cfg.RushMultiplier
		if mult <= 0 {
			mult = 1
		}
		fee *= mult
	}
	return int64(math.Round(fee))
}
