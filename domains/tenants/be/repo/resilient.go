package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/alltowndelivery/platform/domains/tenants/be/service"
	"github.com/alltowndelivery/platform/platform/go/failover"
)

// ResilientRepository fronts the durable repository with the in-memory one:
// every operation tries the durable backend first and degrades per the
// failover policy. Tenant operations are read-mostly and low-stakes, so all
// of them allow fallback; there is no reconciliation between backends.
type ResilientRepository struct {
	primary  *PostgresRepository
	fallback *MemoryRepository
	runner   *failover.Runner
}

// NewResilientRepository composes the two backends behind one contract.
func NewResilientRepository(primary *PostgresRepository, fallback *MemoryRepository, runner *failover.Runner) *ResilientRepository {
	if primary == nil || fallback == nil || runner == nil {
		panic("resilient tenant repo: all dependencies are required")
	}
	return &ResilientRepository{primary: primary, fallback: fallback, runner: runner}
}

func (r *ResilientRepository) Create(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	return failover.Run(ctx, r.runner, "tenants.create", failover.FallbackAllowed,
		func(ctx context.Context) (service.Tenant, error) { return r.primary.Create(ctx, t) },
		func(ctx context.Context) (service.Tenant, error) { return r.fallback.Create(ctx, t) },
	)
}

func (r *ResilientRepository) Get(ctx context.Context, id uuid.UUID) (service.Tenant, error) {
	return failover.Run(ctx, r.runner, "tenants.get", failover.FallbackAllowed,
		func(ctx context.Context) (service.Tenant, error) { return r.primary.Get(ctx, id) },
		func(ctx context.Context) (service.Tenant, error) { return r.fallback.Get(ctx, id) },
	)
}

func (r *ResilientRepository) Update(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	return failover.Run(ctx, r.runner, "tenants.update", failover.FallbackAllowed,
		func(ctx context.Context) (service.Tenant, error) { return r.primary.Update(ctx, t) },
		func(ctx context.Context) (service.Tenant, error) { return r.fallback.Update(ctx, t) },
	)
}

func (r *ResilientRepository) Deactivate(ctx context.Context, id uuid.UUID) (service.Tenant, error) {
	return failover.Run(ctx, r.runner, "tenants.deactivate", failover.FallbackAllowed,
		func(ctx context.Context) (service.Tenant, error) { return r.primary.Deactivate(ctx, id) },
		func(ctx context.Context) (service.Tenant, error) { return r.fallback.Deactivate(ctx, id) },
	)
}

func (r *ResilientRepository) List(ctx context.Context, limit, offset int) ([]service.Tenant, error) {
	return failover.Run(ctx, r.runner, "tenants.list", failover.FallbackAllowed,
		func(ctx context.Context) ([]service.Tenant, error) { return r.primary.List(ctx, limit, offset) },
		func(ctx context.Context) ([]service.Tenant, error) { return r.fallback.List(ctx, limit, offset) },
	)
}

func (r *ResilientRepository) FindBySubdomain(ctx context.Context, subdomain string) (service.Tenant, error) {
	return failover.Run(ctx, r.runner, "tenants.find_by_subdomain", failover.FallbackAllowed,
		func(ctx context.Context) (service.Tenant, error) { return r.primary.FindBySubdomain(ctx, subdomain) },
		func(ctx context.Context) (service.Tenant, error) { return r.fallback.FindBySubdomain(ctx, subdomain) },
	)
}

func (r *ResilientRepository) FindByCustomDomain(ctx context.Context, domain string) (service.Tenant, error) {
	return failover.Run(ctx, r.runner, "tenants.find_by_custom_domain", failover.FallbackAllowed,
		func(ctx context.Context) (service.Tenant, error) { return r.primary.FindByCustomDomain(ctx, domain) },
		func(ctx context.Context) (service.Tenant, error) { return r.fallback.FindByCustomDomain(ctx, domain) },
	)
}

func (r *ResilientRepository) GetSettings(ctx context.Context, tenantID uuid.UUID) ([]byte, error) {
	return failover.Run(ctx, r.runner, "tenants.get_settings", failover.FallbackAllowed,
		func(ctx context.Context) ([]byte, error) { return r.primary.GetSettings(ctx, tenantID) },
		func(ctx context.Context) ([]byte, error) { return r.fallback.GetSettings(ctx, tenantID) },
	)
}

func (r *ResilientRepository) PutSettings(ctx context.Context, tenantID uuid.UUID, document []byte) ([]byte, error) {
	return failover.Run(ctx, r.runner, "tenants.put_settings", failover.FallbackAllowed,
		func(ctx context.Context) ([]byte, error) { return r.primary.PutSettings(ctx, tenantID, document) },
		func(ctx context.Context) ([]byte, error) { return r.fallback.PutSettings(ctx, tenantID, document) },
	)
}

// Ensure interface compliance.
var (
	_ service.Repository         = (*ResilientRepository)(nil)
	_ service.SettingsRepository = (*ResilientRepository)(nil)
)
