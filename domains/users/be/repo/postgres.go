package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/alltowndelivery/platform/domains/users/be/service"
	"github.com/alltowndelivery/platform/platform/go/identity"
	"github.com/alltowndelivery/platform/platform/go/persistence"
)

// PostgresRepository implements the profile repository on the durable backend.
type PostgresRepository struct {
	store *persistence.ProfileStore
}

// NewPostgresRepository constructs a repository backed by the shared store.
func NewPostgresRepository(store *persistence.ProfileStore) *PostgresRepository {
	if store == nil {
		panic("profile store is required")
	}
	return &PostgresRepository{store: store}
}

func (r *PostgresRepository) Ensure(ctx context.Context, tenantID, userID uuid.UUID, role identity.Role) (service.Profile, error) {
	rec, err := r.store.Ensure(ctx, tenantID, userID, string(role))
	if err != nil {
		return service.Profile{}, mapProfileErr(err)
	}
	return toServiceProfile(rec), nil
}

func (r *PostgresRepository) Get(ctx context.Context, tenantID, userID uuid.UUID) (service.Profile, error) {
	rec, err := r.store.Get(ctx, tenantID, userID)
	if err != nil {
		return service.Profile{}, mapProfileErr(err)
	}
	return toServiceProfile(rec), nil
}

func (r *PostgresRepository) SetOnDuty(ctx context.Context, tenantID, userID uuid.UUID, onDuty bool) (service.Profile, error) {
	rec, err := r.store.SetOnDuty(ctx, tenantID, userID, onDuty)
	if err != nil {
		return service.Profile{}, mapProfileErr(err)
	}
	return toServiceProfile(rec), nil
}

func toServiceProfile(rec persistence.ProfileRecord) service.Profile {
	role, err := identity.ParseRole(rec.Role)
	if err != nil {
		role = identity.RoleCustomer
	}
	return service.Profile{
		TenantID:            rec.TenantID,
		UserID:              rec.UserID,
		Role:                role,
		OnDuty:              rec.OnDuty,
		LoyaltyPoints:       rec.LoyaltyPoints,
		FreeDeliveryCredits: rec.FreeDeliveryCredits,
		TotalDeliveries:     rec.TotalDeliveries,
		CreatedAt:           rec.CreatedAt,
		UpdatedAt:           rec.UpdatedAt,
	}
}

func mapProfileErr(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return service.ErrNotFound
	}
	return err
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
