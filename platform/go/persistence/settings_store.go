package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const SettingsTable = "tenant_settings"

// SettingsRecord is a tenant's settings document with its update time.
type SettingsRecord struct {
	TenantID  uuid.UUID `db:"tenant_id"`
	Document  []byte    `db:"document"`
	UpdatedAt time.Time `db:"updated_at"`
}

// SettingsStore persists one JSONB settings document per tenant.
type SettingsStore struct {
	pool *pgxpool.Pool
}

// NewSettingsStore returns a store instance bound to the shared pool.
func NewSettingsStore(pool *pgxpool.Pool) (*SettingsStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &SettingsStore{pool: pool}, nil
}

// Get returns the settings document for a tenant.
func (s *SettingsStore) Get(ctx context.Context, tenantID uuid.UUID) (SettingsRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT tenant_id, document, updated_at FROM %s WHERE tenant_id = $1
    `, SettingsTable), tenantID)

	var rec SettingsRecord
	if err := row.Scan(&rec.TenantID, &rec.Document, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SettingsRecord{}, ErrNotFound
		}
		return SettingsRecord{}, err
	}
	return rec, nil
}

// Put upserts the settings document for a tenant.
func (s *SettingsStore) Put(ctx context.Context, tenantID uuid.UUID, document []byte) (SettingsRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (tenant_id, document)
        VALUES ($1, $2)
        ON CONFLICT (tenant_id) DO UPDATE SET document = EXCLUDED.document, updated_at = now()
        RETURNING tenant_id, document, updated_at
    `, SettingsTable), tenantID, document)

	var rec SettingsRecord
	if err := row.Scan(&rec.TenantID, &rec.Document, &rec.UpdatedAt); err != nil {
		return SettingsRecord{}, err
	}
	return rec, nil
}
