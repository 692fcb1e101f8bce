package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const TenantsTable = "tenants"

// TenantRecord represents a row in the tenants table.
type TenantRecord struct {
	TenantID     uuid.UUID `db:"tenant_id"`
	CompanyName  string    `db:"company_name"`
	Subdomain    *string   `db:"subdomain"`
	CustomDomain *string   `db:"custom_domain"`
	LogoURL      string    `db:"logo_url"`
	PrimaryColor string    `db:"primary_color"`
	PlanType     string    `db:"plan_type"`
	IsActive     bool      `db:"is_active"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// TenantStore exposes persistence helpers for the tenants table.
type TenantStore struct {
	pool *pgxpool.Pool
}

// NewTenantStore returns a store instance bound to the shared pool.
func NewTenantStore(pool *pgxpool.Pool) (*TenantStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &TenantStore{pool: pool}, nil
}

const tenantColumns = `tenant_id, company_name, subdomain, custom_domain, logo_url, primary_color, plan_type, is_active, created_at, updated_at`

// Create inserts a new tenant and returns the persisted record.
func (s *TenantStore) Create(ctx context.Context, rec TenantRecord) (TenantRecord, error) {
	if rec.TenantID == uuid.Nil {
		return TenantRecord{}, errors.New("tenant id is required")
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (tenant_id, company_name, subdomain, custom_domain, logo_url, primary_color, plan_type, is_active)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING %s
    `, TenantsTable, tenantColumns),
		rec.TenantID,
		strings.TrimSpace(rec.CompanyName),
		rec.Subdomain,
		rec.CustomDomain,
		rec.LogoURL,
		rec.PrimaryColor,
		rec.PlanType,
		rec.IsActive,
	)

	out, err := scanTenant(row)
	if err != nil {
		if isUniqueViolation(err) {
			return TenantRecord{}, ErrConflict
		}
		return TenantRecord{}, err
	}
	return out, nil
}

// Get returns a tenant by id.
func (s *TenantStore) Get(ctx context.Context, id uuid.UUID) (TenantRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE tenant_id = $1
    `, tenantColumns, TenantsTable), id)
	return scanTenant(row)
}

// GetBySubdomain returns the tenant owning a subdomain label (case-insensitive).
func (s *TenantStore) GetBySubdomain(ctx context.Context, subdomain string) (TenantRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE LOWER(subdomain) = LOWER($1)
    `, tenantColumns, TenantsTable), strings.TrimSpace(subdomain))
	return scanTenant(row)
}

// GetByCustomDomain returns the tenant owning a custom domain (case-insensitive).
func (s *TenantStore) GetByCustomDomain(ctx context.Context, domain string) (TenantRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE LOWER(custom_domain) = LOWER($1)
    `, tenantColumns, TenantsTable), strings.TrimSpace(domain))
	return scanTenant(row)
}

// Update rewrites the mutable tenant fields and returns the new record.
func (s *TenantStore) Update(ctx context.Context, rec TenantRecord) (TenantRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s
        SET company_name = $2, subdomain = $3, custom_domain = $4,
            logo_url = $5, primary_color = $6, plan_type = $7, updated_at = now()
        WHERE tenant_id = $1
        RETURNING %s
    `, TenantsTable, tenantColumns),
		rec.TenantID,
		strings.TrimSpace(rec.CompanyName),
		rec.Subdomain,
		rec.CustomDomain,
		rec.LogoURL,
		rec.PrimaryColor,
		rec.PlanType,
	)

	out, err := scanTenant(row)
	if err != nil {
		if isUniqueViolation(err) {
			return TenantRecord{}, ErrConflict
		}
		return TenantRecord{}, err
	}
	return out, nil
}

// Deactivate soft-disables a tenant; records are never hard-deleted.
func (s *TenantStore) Deactivate(ctx context.Context, id uuid.UUID) (TenantRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s SET is_active = FALSE, updated_at = now()
        WHERE tenant_id = $1
        RETURNING %s
    `, TenantsTable, tenantColumns), id)
	return scanTenant(row)
}

// ListActive returns active tenants ordered by creation time.
func (s *TenantStore) ListActive(ctx context.Context, limit, offset int) ([]TenantRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE is_active ORDER BY created_at LIMIT $1 OFFSET $2
    `, tenantColumns, TenantsTable), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TenantRecord
	for rows.Next() {
		rec, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanTenant(row pgx.Row) (TenantRecord, error) {
	var rec TenantRecord
	err := row.Scan(
		&rec.TenantID,
		&rec.CompanyName,
		&rec.Subdomain,
		&rec.CustomDomain,
		&rec.LogoURL,
		&rec.PrimaryColor,
		&rec.PlanType,
		&rec.IsActive,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantRecord{}, ErrNotFound
		}
		return TenantRecord{}, err
	}
	return rec, nil
}
