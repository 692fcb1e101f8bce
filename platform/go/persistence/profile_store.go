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

const (
	ProfilesTable      = "user_profiles"
	LoyaltyLedgerTable = "loyalty_ledger"

	// LoyaltyThreshold is the point total that converts into one free
	// delivery credit; points reset to zero on conversion, without carryover.
	LoyaltyThreshold = 10
)

// ProfileRecord represents a row in the user_profiles table.
type ProfileRecord struct {
	TenantID            uuid.UUID `db:"tenant_id"`
	UserID              uuid.UUID `db:"user_id"`
	Role                string    `db:"role"`
	OnDuty              bool      `db:"on_duty"`
	LoyaltyPoints       int       `db:"loyalty_points"`
	FreeDeliveryCredits int       `db:"free_delivery_credits"`
	TotalDeliveries     int       `db:"total_deliveries"`
	CreatedAt           time.Time `db:"created_at"`
	UpdatedAt           time.Time `db:"updated_at"`
}

// LoyaltyParams describes one completed delivery's effect on a profile.
type LoyaltyParams struct {
	TenantID        uuid.UUID
	UserID          uuid.UUID
	DeliveryID      uuid.UUID
	PointsToAdd     int
	WasFreeDelivery bool
}

// ProfileStore exposes persistence helpers for user profiles and the loyalty ledger.
type ProfileStore struct {
	pool *pgxpool.Pool
}

// NewProfileStore returns a store instance bound to the shared pool.
func NewProfileStore(pool *pgxpool.Pool) (*ProfileStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &ProfileStore{pool: pool}, nil
}

const profileColumns = `tenant_id, user_id, role, on_duty, loyalty_points, free_delivery_credits, total_deliveries, created_at, updated_at`

// Ensure inserts a profile if absent and returns the current record.
func (s *ProfileStore) Ensure(ctx context.Context, tenantID, userID uuid.UUID, role string) (ProfileRecord, error) {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (tenant_id, user_id, role)
        VALUES ($1, $2, $3)
        ON CONFLICT (tenant_id, user_id) DO NOTHING
    `, ProfilesTable), tenantID, userID, role)
	if err != nil {
		return ProfileRecord{}, err
	}
	return s.Get(ctx, tenantID, userID)
}

// Get returns a profile by tenant-scoped user id.
func (s *ProfileStore) Get(ctx context.Context, tenantID, userID uuid.UUID) (ProfileRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE tenant_id = $1 AND user_id = $2
    `, profileColumns, ProfilesTable), tenantID, userID)
	return scanProfile(row)
}

// SetOnDuty flips the driver on-duty flag.
func (s *ProfileStore) SetOnDuty(ctx context.Context, tenantID, userID uuid.UUID, onDuty bool) (ProfileRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s SET on_duty = $3, updated_at = now()
        WHERE tenant_id = $1 AND user_id = $2
        RETURNING %s
    `, ProfilesTable, profileColumns), tenantID, userID, onDuty)
	return scanProfile(row)
}

// ApplyLoyalty records one completed delivery inside the supplied transaction:
// it writes the ledger row whose primary key enforces exactly-once semantics,
// then mutates the profile counters. Free deliveries consume a credit without
// granting progress; crossing the threshold converts points into exactly one
// credit with no carryover. Returns the updated profile and whether a credit
// was issued.
func ApplyLoyalty(ctx context.Context, tx pgx.Tx, p LoyaltyParams) (ProfileRecord, bool, error) {
	// Profile may not exist yet for phone-order customers.
	if _, err := tx.Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (tenant_id, user_id, role)
        VALUES ($1, $2, 'customer')
        ON CONFLICT (tenant_id, user_id) DO NOTHING
    `, ProfilesTable), p.TenantID, p.UserID); err != nil {
		return ProfileRecord{}, false, fmt.Errorf("ensure profile: %w", err)
	}

	row := tx.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE tenant_id = $1 AND user_id = $2 FOR UPDATE
    `, profileColumns, ProfilesTable), p.TenantID, p.UserID)
	rec, err := scanProfile(row)
	if err != nil {
		return ProfileRecord{}, false, fmt.Errorf("lock profile: %w", err)
	}

	points := rec.LoyaltyPoints
	credits := rec.FreeDeliveryCredits
	creditIssued := false

	if p.WasFreeDelivery {
		if credits > 0 {
			credits--
		}
	} else {
		points += p.PointsToAdd
		if points >= LoyaltyThreshold {
			points = 0
			credits++
			creditIssued = true
		}
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (delivery_id, tenant_id, user_id, points_added, was_free_delivery, credit_issued)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, LoyaltyLedgerTable),
		p.DeliveryID, p.TenantID, p.UserID, p.PointsToAdd, p.WasFreeDelivery, creditIssued,
	); err != nil {
		if isUniqueViolation(err) {
			return ProfileRecord{}, false, fmt.Errorf("loyalty already recorded for delivery %s: %w", p.DeliveryID, ErrConflict)
		}
		return ProfileRecord{}, false, fmt.Errorf("insert ledger entry: %w", err)
	}

	row = tx.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s
        SET loyalty_points = $3, free_delivery_credits = $4,
            total_deliveries = total_deliveries + 1, updated_at = now()
        WHERE tenant_id = $1 AND user_id = $2
        RETURNING %s
    `, ProfilesTable, profileColumns), p.TenantID, p.UserID, points, credits)
	out, err := scanProfile(row)
	if err != nil {
		return ProfileRecord{}, false, fmt.Errorf("update profile: %w", err)
	}

	return out, creditIssued, nil
}

func scanProfile(row pgx.Row) (ProfileRecord, error) {
	var rec ProfileRecord
	err := row.Scan(
		&rec.TenantID,
		&rec.UserID,
		&rec.Role,
		&rec.OnDuty,
		&rec.LoyaltyPoints,
		&rec.FreeDeliveryCredits,
		&rec.TotalDeliveries,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProfileRecord{}, ErrNotFound
		}
		return ProfileRecord{}, err
	}
	return rec, nil
}
