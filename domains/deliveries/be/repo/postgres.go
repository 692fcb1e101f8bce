package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/alltowndelivery/platform/domains/deliveries/be/service"
	"github.com/alltowndelivery/platform/platform/go/persistence"
)

// PostgresRepository implements the delivery repository on the durable
// backend. Claim and the driver transitions ride the store's conditional
// UPDATEs, so the state predicate is checked by the database itself.
type PostgresRepository struct {
	store *persistence.DeliveryStore
}

// NewPostgresRepository constructs a repository backed by the shared store.
func NewPostgresRepository(store *persistence.DeliveryStore) *PostgresRepository {
	if store == nil {
		panic("delivery store is required")
	}
	return &PostgresRepository{store: store}
}

func (r *PostgresRepository) Insert(ctx context.Context, d service.Delivery) (service.Delivery, error) {
	rec, err := r.store.Insert(ctx, toRecord(d))
	if err != nil {
		return service.Delivery{}, mapDeliveryErr(err)
	}
	return toServiceDelivery(rec), nil
}

func (r *PostgresRepository) Get(ctx context.Context, tenantID, deliveryID uuid.UUID) (service.Delivery, error) {
	rec, err := r.store.Get(ctx, tenantID, deliveryID)
	if err != nil {
		return service.Delivery{}, mapDeliveryErr(err)
	}
	return toServiceDelivery(rec), nil
}

func (r *PostgresRepository) ListAvailable(ctx context.Context, tenantID uuid.UUID) ([]service.Delivery, error) {
	recs, err := r.store.ListAvailable(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return toServiceDeliveries(recs), nil
}

func (r *PostgresRepository) ListByDriver(ctx context.Context, tenantID, driverID uuid.UUID) ([]service.Delivery, error) {
	recs, err := r.store.ListByDriver(ctx, tenantID, driverID)
	if err != nil {
		return nil, err
	}
	return toServiceDeliveries(recs), nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, tenantID, userID uuid.UUID) ([]service.Delivery, error) {
	recs, err := r.store.ListByUser(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	return toServiceDeliveries(recs), nil
}

func (r *PostgresRepository) Claim(ctx context.Context, tenantID, deliveryID, driverID uuid.UUID, notes *string) (service.Delivery, error) {
	rec, err := r.store.Claim(ctx, tenantID, deliveryID, driverID, notes)
	if err != nil {
		return service.Delivery{}, mapDeliveryErr(err)
	}
	return toServiceDelivery(rec), nil
}

func (r *PostgresRepository) Start(ctx context.Context, tenantID, deliveryID, driverID uuid.UUID, notes *string) (service.Delivery, error) {
	rec, err := r.store.Start(ctx, tenantID, deliveryID, driverID, notes)
	if err != nil {
		return service.Delivery{}, mapDeliveryErr(err)
	}
	return toServiceDelivery(rec), nil
}

func (r *PostgresRepository) UpdateNotes(ctx context.Context, tenantID, deliveryID, driverID uuid.UUID, notes string) (service.Delivery, error) {
	rec, err := r.store.UpdateNotes(ctx, tenantID, deliveryID, driverID, notes)
	if err != nil {
		return service.Delivery{}, mapDeliveryErr(err)
	}
	return toServiceDelivery(rec), nil
}

func (r *PostgresRepository) Complete(ctx context.Context, p service.CompleteParams) (service.Delivery, error) {
	rec, _, err := r.store.Complete(ctx, persistence.CompleteDeliveryParams{
		TenantID:    p.TenantID,
		DeliveryID:  p.DeliveryID,
		DriverID:    p.DriverID,
		Notes:       p.Notes,
		PointsToAdd: p.PointsToAdd,
	})
	if err != nil {
		return service.Delivery{}, mapDeliveryErr(err)
	}
	return toServiceDelivery(rec), nil
}

func (r *PostgresRepository) Cancel(ctx context.Context, tenantID, deliveryID uuid.UUID) (service.Delivery, error) {
	rec, err := r.store.Cancel(ctx, tenantID, deliveryID)
	if err != nil {
		return service.Delivery{}, mapDeliveryErr(err)
	}
	return toServiceDelivery(rec), nil
}

func (r *PostgresRepository) ReleaseForDriver(ctx context.Context, tenantID, driverID uuid.UUID) (int, error) {
	return r.store.ReleaseForDriver(ctx, tenantID, driverID)
}

func toRecord(d service.Delivery) persistence.DeliveryRecord {
	return persistence.DeliveryRecord{
		DeliveryID:       d.ID,
		TenantID:         d.TenantID,
		UserID:           d.UserID,
		BusinessID:       d.BusinessID,
		PickupAddress:    d.PickupAddress,
		DeliveryAddress:  d.DeliveryAddress,
		ScheduledFor:     d.ScheduledFor,
		IsRush:           d.IsRush,
		FeeCents:         d.FeeCents,
		PaymentMethod:    d.PaymentMethod,
		PaymentID:        d.PaymentID,
		IsPaid:           d.IsPaid,
		Status:           string(d.Status),
		ClaimedBy:        d.ClaimedBy,
		ClaimedAt:        d.ClaimedAt,
		DriverNotes:      d.DriverNotes,
		UsedFreeDelivery: d.UsedFreeDelivery,
		CreatedAt:        d.CreatedAt,
	}
}

func toServiceDelivery(rec persistence.DeliveryRecord) service.Delivery {
	status, err := service.ParseStatus(rec.Status)
	if err != nil {
		status = service.Status(rec.Status)
	}
	return service.Delivery{
		ID:               rec.DeliveryID,
		TenantID:         rec.TenantID,
		UserID:           rec.UserID,
		BusinessID:       rec.BusinessID,
		PickupAddress:    rec.PickupAddress,
		DeliveryAddress:  rec.DeliveryAddress,
		ScheduledFor:     rec.ScheduledFor,
		IsRush:           rec.IsRush,
		FeeCents:         rec.FeeCents,
		PaymentMethod:    rec.PaymentMethod,
		PaymentID:        rec.PaymentID,
		IsPaid:           rec.IsPaid,
		Status:           status,
		ClaimedBy:        rec.ClaimedBy,
		ClaimedAt:        rec.ClaimedAt,
		DriverNotes:      rec.DriverNotes,
		UsedFreeDelivery: rec.UsedFreeDelivery,
		CreatedAt:        rec.CreatedAt,
	}
}

func toServiceDeliveries(recs []persistence.DeliveryRecord) []service.Delivery {
	out := make([]service.Delivery, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toServiceDelivery(rec))
	}
	return out
}

func mapDeliveryErr(err error) error {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return service.ErrNotFound
	case errors.Is(err, persistence.ErrNotClaimOwner):
		return service.ErrNotClaimOwner
	case errors.Is(err, persistence.ErrStateConflict), errors.Is(err, persistence.ErrConflict):
		return service.ErrStateConflict
	default:
		return err
	}
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
