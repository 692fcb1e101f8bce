package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/alltowndelivery/platform/domains/deliveries/be/service"
	"github.com/alltowndelivery/platform/platform/go/failover"
)

// ResilientRepository fronts the durable delivery backend with the in-memory
// one. Creates and reads tolerate degraded answers; every state transition is
// FallbackForbidden because a claim or completion accepted by the in-memory
// backend would vanish on restart and could double-assign once the durable
// backend returns.
type ResilientRepository struct {
	primary  *PostgresRepository
	fallback *MemoryRepository
	runner   *failover.Runner
}

// NewResilientRepository composes the two backends behind one contract.
func NewResilientRepository(primary *PostgresRepository, fallback *MemoryRepository, runner *failover.Runner) *ResilientRepository {
	if primary == nil || fallback == nil || runner == nil {
		panic("resilient deliveries repo: all dependencies are required")
	}
	return &ResilientRepository{primary: primary, fallback: fallback, runner: runner}
}

func (r *ResilientRepository) Insert(ctx context.Context, d service.Delivery) (service.Delivery, error) {
	return failover.Run(ctx, r.runner, "deliveries.insert", failover.FallbackAllowed,
		func(ctx context.Context) (service.Delivery, error) { return r.primary.Insert(ctx, d) },
		func(ctx context.Context) (service.Delivery, error) { return r.fallback.Insert(ctx, d) },
	)
}

func (r *ResilientRepository) Get(ctx context.Context, tenantID, deliveryID uuid.UUID) (service.Delivery, error) {
	return failover.Run(ctx, r.runner, "deliveries.get", failover.FallbackAllowed,
		func(ctx context.Context) (service.Delivery, error) { return r.primary.Get(ctx, tenantID, deliveryID) },
		func(ctx context.Context) (service.Delivery, error) { return r.fallback.Get(ctx, tenantID, deliveryID) },
	)
}

func (r *ResilientRepository) ListAvailable(ctx context.Context, tenantID uuid.UUID) ([]service.Delivery, error) {
	return failover.Run(ctx, r.runner, "deliveries.list_available", failover.FallbackAllowed,
		func(ctx context.Context) ([]service.Delivery, error) { return r.primary.ListAvailable(ctx, tenantID) },
		func(ctx context.Context) ([]service.Delivery, error) { return r.fallback.ListAvailable(ctx, tenantID) },
	)
}

func (r *ResilientRepository) ListByDriver(ctx context.Context, tenantID, driverID uuid.UUID) ([]service.Delivery, error) {
	return failover.Run(ctx, r.runner, "deliveries.list_by_driver", failover.FallbackAllowed,
		func(ctx context.Context) ([]service.Delivery, error) {
			return r.primary.ListByDriver(ctx, tenantID, driverID)
		},
		func(ctx context.Context) ([]service.Delivery, error) {
			return r.fallback.ListByDriver(ctx, tenantID, driverID)
		},
	)
}

func (r *ResilientRepository) ListByUser(ctx context.Context, tenantID, userID uuid.UUID) ([]service.Delivery, error) {
	return failover.Run(ctx, r.runner, "deliveries.list_by_user", failover.FallbackAllowed,
		func(ctx context.Context) ([]service.Delivery, error) {
			return r.primary.ListByUser(ctx, tenantID, userID)
		},
		func(ctx context.Context) ([]service.Delivery, error) {
			return r.fallback.ListByUser(ctx, tenantID, userID)
		},
	)
}

func (r *ResilientRepository) Claim(ctx context.Context, tenantID, deliveryID, driverID uuid.UUID, notes *string) (service.Delivery, error) {
	return failover.Run(ctx, r.runner, "deliveries.claim", failover.FallbackForbidden,
		func(ctx context.Context) (service.Delivery, error) {
			return r.primary.Claim(ctx, tenantID, deliveryID, driverID, notes)
		},
		nil,
	)
}

func (r *ResilientRepository) Start(ctx context.Context, tenantID, deliveryID, driverID uuid.UUID, notes *string) (service.Delivery, error) {
	return failover.Run(ctx, r.runner, "deliveries.start", failover.FallbackForbidden,
		func(ctx context.Context) (service.Delivery, error) {
			return r.primary.Start(ctx, tenantID, deliveryID, driverID, notes)
		},
		nil,
	)
}

func (r *ResilientRepository) UpdateNotes(ctx context.Context, tenantID, deliveryID, driverID uuid.UUID, notes string) (service.Delivery, error) {
	return failover.Run(ctx, r.runner, "deliveries.update_notes", failover.FallbackForbidden,
		func(ctx context.Context) (service.Delivery, error) {
			return r.primary.UpdateNotes(ctx, tenantID, deliveryID, driverID, notes)
		},
		nil,
	)
}

func (r *ResilientRepository) Complete(ctx context.Context, p service.CompleteParams) (service.Delivery, error) {
	return failover.Run(ctx, r.runner, "deliveries.complete", failover.FallbackForbidden,
		func(ctx context.Context) (service.Delivery, error) { return r.primary.Complete(ctx, p) },
		nil,
	)
}

func (r *ResilientRepository) Cancel(ctx context.Context, tenantID, deliveryID uuid.UUID) (service.Delivery, error) {
	return failover.Run(ctx, r.runner, "deliveries.cancel", failover.FallbackForbidden,
		func(ctx context.Context) (service.Delivery, error) { return r.primary.Cancel(ctx, tenantID, deliveryID) },
		nil,
	)
}

func (r *ResilientRepository) ReleaseForDriver(ctx context.Context, tenantID, driverID uuid.UUID) (int, error) {
	return failover.Run(ctx, r.runner, "deliveries.release_for_driver", failover.FallbackForbidden,
		func(ctx context.Context) (int, error) { return r.primary.ReleaseForDriver(ctx, tenantID, driverID) },
		nil,
	)
}

// Ensure interface compliance.
var _ service.Repository = (*ResilientRepository)(nil)
