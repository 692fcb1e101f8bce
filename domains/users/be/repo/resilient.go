package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/alltowndelivery/platform/domains/users/be/service"
	"github.com/alltowndelivery/platform/platform/go/failover"
	"github.com/alltowndelivery/platform/platform/go/identity"
)

// ResilientRepository fronts the durable profile backend with the in-memory
// one. Profile reads and the duty flag tolerate degraded answers; loyalty
// mutation never flows through this repository, it rides the delivery
// completion transaction.
type ResilientRepository struct {
	primary  *PostgresRepository
	fallback *MemoryRepository
	runner   *failover.Runner
}

// NewResilientRepository composes the two backends behind one contract.
func NewResilientRepository(primary *PostgresRepository, fallback *MemoryRepository, runner *failover.Runner) *ResilientRepository {
	if primary == nil || fallback == nil || runner == nil {
		panic("resilient users repo: all dependencies are required")
	}
	return &ResilientRepository{primary: primary, fallback: fallback, runner: runner}
}

func (r *ResilientRepository) Ensure(ctx context.Context, tenantID, userID uuid.UUID, role identity.Role) (service.Profile, error) {
	return failover.Run(ctx, r.runner, "users.ensure", failover.FallbackAllowed,
		func(ctx context.Context) (service.Profile, error) { return r.primary.Ensure(ctx, tenantID, userID, role) },
		func(ctx context.Context) (service.Profile, error) { return r.fallback.Ensure(ctx, tenantID, userID, role) },
	)
}

func (r *ResilientRepository) Get(ctx context.Context, tenantID, userID uuid.UUID) (service.Profile, error) {
	return failover.Run(ctx, r.runner, "users.get", failover.FallbackAllowed,
		func(ctx context.Context) (service.Profile, error) { return r.primary.Get(ctx, tenantID, userID) },
		func(ctx context.Context) (service.Profile, error) { return r.fallback.Get(ctx, tenantID, userID) },
	)
}

func (r *ResilientRepository) SetOnDuty(ctx context.Context, tenantID, userID uuid.UUID, onDuty bool) (service.Profile, error) {
	return failover.Run(ctx, r.runner, "users.set_on_duty", failover.FallbackAllowed,
		func(ctx context.Context) (service.Profile, error) {
			return r.primary.SetOnDuty(ctx, tenantID, userID, onDuty)
		},
		func(ctx context.Context) (service.Profile, error) {
			return r.fallback.SetOnDuty(ctx, tenantID, userID, onDuty)
		},
	)
}

// Ensure interface compliance.
var _ service.Repository = (*ResilientRepository)(nil)
