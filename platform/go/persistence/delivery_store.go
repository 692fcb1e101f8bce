package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alltowndelivery/platform/platform/go/metrics"
)

const DeliveriesTable = "delivery_requests"

// Delivery status values as stored. The domain layer owns the richer enum;
// the store only needs the literals used in conditional updates.
const (
	statusAvailable  = "available"
	statusClaimed    = "claimed"
	statusInProgress = "in_progress"
	statusCompleted  = "completed"
	statusCancelled  = "cancelled"
)

// DeliveryRecord represents a row in the delivery_requests table.
type DeliveryRecord struct {
	DeliveryID       uuid.UUID  `db:"delivery_id"`
	TenantID         uuid.UUID  `db:"tenant_id"`
	UserID           *uuid.UUID `db:"user_id"`
	BusinessID       *uuid.UUID `db:"business_id"`
	PickupAddress    string     `db:"pickup_address"`
	DeliveryAddress  string     `db:"delivery_address"`
	ScheduledFor     *time.Time `db:"scheduled_for"`
	IsRush           bool       `db:"is_rush"`
	FeeCents         int64      `db:"fee_cents"`
	PaymentMethod    string     `db:"payment_method"`
	PaymentID        *string    `db:"payment_id"`
	IsPaid           bool       `db:"is_paid"`
	Status           string     `db:"status"`
	ClaimedBy        *uuid.UUID `db:"claimed_by"`
	ClaimedAt        *time.Time `db:"claimed_at"`
	DriverNotes      string     `db:"driver_notes"`
	UsedFreeDelivery bool       `db:"used_free_delivery"`
	CreatedAt        time.Time  `db:"created_at"`
}

// CompleteDeliveryParams drives the completion transition and its loyalty side effect.
type CompleteDeliveryParams struct {
	TenantID    uuid.UUID
	DeliveryID  uuid.UUID
	DriverID    uuid.UUID
	Notes       *string
	PointsToAdd int
}

// DeliveryStore exposes persistence helpers for delivery requests. All
// transitions are single conditional UPDATE statements so concurrent callers
// serialize on the row: exactly one claim observes 'available'.
type DeliveryStore struct {
	pool *pgxpool.Pool
}

// NewDeliveryStore returns a store instance bound to the shared pool.
func NewDeliveryStore(pool *pgxpool.Pool) (*DeliveryStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &DeliveryStore{pool: pool}, nil
}

const deliveryColumns = `delivery_id, tenant_id, user_id, business_id, pickup_address, delivery_address, scheduled_for, is_rush, fee_cents, payment_method, payment_id, is_paid, status, claimed_by, claimed_at, driver_notes, used_free_delivery, created_at`

// Insert creates a new request in 'available' with null claim fields.
func (s *DeliveryStore) Insert(ctx context.Context, rec DeliveryRecord) (DeliveryRecord, error) {
	if rec.DeliveryID == uuid.Nil {
		return DeliveryRecord{}, errors.New("delivery id is required")
	}
	if rec.TenantID == uuid.Nil {
		return DeliveryRecord{}, errors.New("tenant id is required")
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (delivery_id, tenant_id, user_id, business_id, pickup_address, delivery_address,
                        scheduled_for, is_rush, fee_cents, payment_method, payment_id, is_paid,
                        status, used_free_delivery)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, '%s', $13)
        RETURNING %s
    `, DeliveriesTable, statusAvailable, deliveryColumns),
		rec.DeliveryID, rec.TenantID, rec.UserID, rec.BusinessID,
		rec.PickupAddress, rec.DeliveryAddress, rec.ScheduledFor, rec.IsRush,
		rec.FeeCents, rec.PaymentMethod, rec.PaymentID, rec.IsPaid,
		rec.UsedFreeDelivery,
	)
	return scanDelivery(row)
}

// Get returns a tenant-scoped delivery by id.
func (s *DeliveryStore) Get(ctx context.Context, tenantID, deliveryID uuid.UUID) (DeliveryRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE tenant_id = $1 AND delivery_id = $2
    `, deliveryColumns, DeliveriesTable), tenantID, deliveryID)
	return scanDelivery(row)
}

// ListAvailable returns unclaimed requests for a tenant, oldest first.
func (s *DeliveryStore) ListAvailable(ctx context.Context, tenantID uuid.UUID) ([]DeliveryRecord, error) {
	return s.list(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE tenant_id = $1 AND status = '%s' ORDER BY created_at
    `, deliveryColumns, DeliveriesTable, statusAvailable), tenantID)
}

// ListByDriver returns requests currently claimed or in progress by a driver.
func (s *DeliveryStore) ListByDriver(ctx context.Context, tenantID, driverID uuid.UUID) ([]DeliveryRecord, error) {
	return s.list(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE tenant_id = $1 AND claimed_by = $2 ORDER BY claimed_at
    `, deliveryColumns, DeliveriesTable), tenantID, driverID)
}

// ListByUser returns a customer's requests, newest first.
func (s *DeliveryStore) ListByUser(ctx context.Context, tenantID, userID uuid.UUID) ([]DeliveryRecord, error) {
	return s.list(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE tenant_id = $1 AND user_id = $2 ORDER BY created_at DESC
    `, deliveryColumns, DeliveriesTable), tenantID, userID)
}

func (s *DeliveryStore) list(ctx context.Context, sql string, args ...any) ([]DeliveryRecord, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeliveryRecord
	for rows.Next() {
		rec, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Claim atomically assigns an available delivery to a driver. The WHERE
// clause carries the availability predicate, so two racing drivers resolve
// inside the database: one row update wins, the other call falls through to
// classify and reports the conflict.
func (s *DeliveryStore) Claim(ctx context.Context, tenantID, deliveryID, driverID uuid.UUID, notes *string) (DeliveryRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s
        SET status = '%s', claimed_by = $3, claimed_at = now(), driver_notes = COALESCE($4, driver_notes)
        WHERE tenant_id = $1 AND delivery_id = $2 AND status = '%s'
        RETURNING %s
    `, DeliveriesTable, statusClaimed, statusAvailable, deliveryColumns),
		tenantID, deliveryID, driverID, notes,
	)

	rec, err := scanDelivery(row)
	if errors.Is(err, ErrNotFound) {
		return DeliveryRecord{}, s.classify(ctx, tenantID, deliveryID, nil)
	}
	return rec, err
}

// Start moves a driver's claimed delivery to in_progress.
func (s *DeliveryStore) Start(ctx context.Context, tenantID, deliveryID, driverID uuid.UUID, notes *string) (DeliveryRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s
        SET status = '%s', driver_notes = COALESCE($4, driver_notes)
        WHERE tenant_id = $1 AND delivery_id = $2 AND claimed_by = $3 AND status = '%s'
        RETURNING %s
    `, DeliveriesTable, statusInProgress, statusClaimed, deliveryColumns),
		tenantID, deliveryID, driverID, notes,
	)

	rec, err := scanDelivery(row)
	if errors.Is(err, ErrNotFound) {
		return DeliveryRecord{}, s.classify(ctx, tenantID, deliveryID, &driverID)
	}
	return rec, err
}

// UpdateNotes attaches driver notes without changing state.
func (s *DeliveryStore) UpdateNotes(ctx context.Context, tenantID, deliveryID, driverID uuid.UUID, notes string) (DeliveryRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s
        SET driver_notes = $4
        WHERE tenant_id = $1 AND delivery_id = $2 AND claimed_by = $3 AND status IN ('%s', '%s')
        RETURNING %s
    `, DeliveriesTable, statusClaimed, statusInProgress, deliveryColumns),
		tenantID, deliveryID, driverID, notes,
	)

	rec, err := scanDelivery(row)
	if errors.Is(err, ErrNotFound) {
		return DeliveryRecord{}, s.classify(ctx, tenantID, deliveryID, &driverID)
	}
	return rec, err
}

// Complete finishes a driver's in-progress delivery and applies the loyalty
// side effect in the same transaction, so the transition and the ledger
// entry commit or roll back together. Claim fields are cleared: a record
// carries claimed_by/claimed_at only while claimed or in progress.
func (s *DeliveryStore) Complete(ctx context.Context, p CompleteDeliveryParams) (DeliveryRecord, *ProfileRecord, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return DeliveryRecord{}, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	row := tx.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s
        SET status = '%s', claimed_by = NULL, claimed_at = NULL, driver_notes = COALESCE($4, driver_notes)
        WHERE tenant_id = $1 AND delivery_id = $2 AND claimed_by = $3 AND status = '%s'
        RETURNING %s
    `, DeliveriesTable, statusCompleted, statusInProgress, deliveryColumns),
		p.TenantID, p.DeliveryID, p.DriverID, p.Notes,
	)

	rec, err := scanDelivery(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return DeliveryRecord{}, nil, s.classify(ctx, p.TenantID, p.DeliveryID, &p.DriverID)
		}
		return DeliveryRecord{}, nil, err
	}

	var profile *ProfileRecord
	creditIssued := false
	if rec.UserID != nil {
		updated, issued, err := ApplyLoyalty(ctx, tx, LoyaltyParams{
			TenantID:        p.TenantID,
			UserID:          *rec.UserID,
			DeliveryID:      p.DeliveryID,
			PointsToAdd:     p.PointsToAdd,
			WasFreeDelivery: rec.UsedFreeDelivery,
		})
		if err != nil {
			return DeliveryRecord{}, nil, err
		}
		profile = &updated
		creditIssued = issued
	}

	if err := tx.Commit(ctx); err != nil {
		return DeliveryRecord{}, nil, fmt.Errorf("commit: %w", err)
	}
	if creditIssued {
		metrics.LoyaltyCreditsIssued.Inc()
	}
	return rec, profile, nil
}

// Cancel terminates an available or claimed request, clearing claim fields.
func (s *DeliveryStore) Cancel(ctx context.Context, tenantID, deliveryID uuid.UUID) (DeliveryRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s
        SET status = '%s', claimed_by = NULL, claimed_at = NULL
        WHERE tenant_id = $1 AND delivery_id = $2 AND status IN ('%s', '%s')
        RETURNING %s
    `, DeliveriesTable, statusCancelled, statusAvailable, statusClaimed, deliveryColumns),
		tenantID, deliveryID,
	)

	rec, err := scanDelivery(row)
	if errors.Is(err, ErrNotFound) {
		return DeliveryRecord{}, s.classify(ctx, tenantID, deliveryID, nil)
	}
	return rec, err
}

// ReleaseForDriver returns every request the driver has merely claimed back
// to the pool. In-progress deliveries are deliberately untouched.
func (s *DeliveryStore) ReleaseForDriver(ctx context.Context, tenantID, driverID uuid.UUID) (int, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
        UPDATE %s
        SET status = '%s', claimed_by = NULL, claimed_at = NULL, driver_notes = ''
        WHERE tenant_id = $1 AND claimed_by = $2 AND status = '%s'
    `, DeliveriesTable, statusAvailable, statusClaimed),
		tenantID, driverID,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// classify turns a zero-row conditional update into the precise error:
// missing row, wrong state, or wrong claim owner. Terminal records carry no
// claim, so their state answers before any ownership check.
func (s *DeliveryStore) classify(ctx context.Context, tenantID, deliveryID uuid.UUID, driverID *uuid.UUID) error {
	rec, err := s.Get(ctx, tenantID, deliveryID)
	if err != nil {
		return err
	}
	if rec.Status == statusCompleted || rec.Status == statusCancelled {
		return fmt.Errorf("delivery is %s: %w", rec.Status, ErrStateConflict)
	}
	if driverID != nil && (rec.ClaimedBy == nil || *rec.ClaimedBy != *driverID) {
		return ErrNotClaimOwner
	}
	return fmt.Errorf("delivery is %s: %w", rec.Status, ErrStateConflict)
}

func scanDelivery(row pgx.Row) (DeliveryRecord, error) {
	var rec DeliveryRecord
	err := row.Scan(
		&rec.DeliveryID,
		&rec.TenantID,
		&rec.UserID,
		&rec.BusinessID,
		&rec.PickupAddress,
		&rec.DeliveryAddress,
		&rec.ScheduledFor,
		&rec.IsRush,
		&rec.FeeCents,
		&rec.PaymentMethod,
		&rec.PaymentID,
		&rec.IsPaid,
		&rec.Status,
		&rec.ClaimedBy,
		&rec.ClaimedAt,
		&rec.DriverNotes,
		&rec.UsedFreeDelivery,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DeliveryRecord{}, ErrNotFound
		}
		return DeliveryRecord{}, err
	}
	return rec, nil
}
