package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/alltowndelivery/platform/domains/tenants/be/service"
	"github.com/alltowndelivery/platform/platform/go/persistence"
	"github.com/alltowndelivery/platform/platform/go/tenant"
)

// PostgresRepository implements the tenant repository on the durable backend.
type PostgresRepository struct {
	store    *persistence.TenantStore
	settings *persistence.SettingsStore
}

// NewPostgresRepository constructs a repository backed by the shared stores.
func NewPostgresRepository(store *persistence.TenantStore, settings *persistence.SettingsStore) *PostgresRepository {
	if store == nil {
		panic("tenant store is required")
	}
	if settings == nil {
		panic("settings store is required")
	}
	return &PostgresRepository{store: store, settings: settings}
}

func (r *PostgresRepository) Create(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	rec, err := r.store.Create(ctx, toRecord(t))
	if err != nil {
		return service.Tenant{}, mapTenantErr(err)
	}
	return toServiceTenant(rec), nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (service.Tenant, error) {
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return service.Tenant{}, mapTenantErr(err)
	}
	return toServiceTenant(rec), nil
}

func (r *PostgresRepository) Update(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	rec, err := r.store.Update(ctx, toRecord(t))
	if err != nil {
		return service.Tenant{}, mapTenantErr(err)
	}
	return toServiceTenant(rec), nil
}

func (r *PostgresRepository) Deactivate(ctx context.Context, id uuid.UUID) (service.Tenant, error) {
	rec, err := r.store.Deactivate(ctx, id)
	if err != nil {
		return service.Tenant{}, mapTenantErr(err)
	}
	return toServiceTenant(rec), nil
}

func (r *PostgresRepository) List(ctx context.Context, limit, offset int) ([]service.Tenant, error) {
	recs, err := r.store.ListActive(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]service.Tenant, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toServiceTenant(rec))
	}
	return out, nil
}

func (r *PostgresRepository) FindBySubdomain(ctx context.Context, subdomain string) (service.Tenant, error) {
	rec, err := r.store.GetBySubdomain(ctx, subdomain)
	if err != nil {
		return service.Tenant{}, mapTenantErr(err)
	}
	return toServiceTenant(rec), nil
}

func (r *PostgresRepository) FindByCustomDomain(ctx context.Context, domain string) (service.Tenant, error) {
	rec, err := r.store.GetByCustomDomain(ctx, domain)
	if err != nil {
		return service.Tenant{}, mapTenantErr(err)
	}
	return toServiceTenant(rec), nil
}

func (r *PostgresRepository) GetSettings(ctx context.Context, tenantID uuid.UUID) ([]byte, error) {
	rec, err := r.settings.Get(ctx, tenantID)
	if err != nil {
		return nil, mapTenantErr(err)
	}
	return rec.Document, nil
}

func (r *PostgresRepository) PutSettings(ctx context.Context, tenantID uuid.UUID, document []byte) ([]byte, error) {
	rec, err := r.settings.Put(ctx, tenantID, document)
	if err != nil {
		return nil, mapTenantErr(err)
	}
	return rec.Document, nil
}

func toRecord(t service.Tenant) persistence.TenantRecord {
	return persistence.TenantRecord{
		TenantID:     t.ID,
		CompanyName:  t.CompanyName,
		Subdomain:    t.Subdomain,
		CustomDomain: t.CustomDomain,
		LogoURL:      t.Branding.LogoURL,
		PrimaryColor: t.Branding.PrimaryColor,
		PlanType:     string(t.PlanType),
		IsActive:     t.Active,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func toServiceTenant(rec persistence.TenantRecord) service.Tenant {
	return service.Tenant{
		ID:           rec.TenantID,
		CompanyName:  rec.CompanyName,
		Subdomain:    rec.Subdomain,
		CustomDomain: rec.CustomDomain,
		Branding:     tenant.Branding{LogoURL: rec.LogoURL, PrimaryColor: rec.PrimaryColor},
		PlanType:     service.PlanTypeFromString(rec.PlanType),
		Active:       rec.IsActive,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

func mapTenantErr(err error) error {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return service.ErrNotFound
	case errors.Is(err, persistence.ErrConflict):
		return service.ErrDomainConflict
	default:
		return err
	}
}

// Ensure interface compliance.
var (
	_ service.Repository         = (*PostgresRepository)(nil)
	_ service.SettingsRepository = (*PostgresRepository)(nil)
)
