package repo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alltowndelivery/platform/domains/users/be/service"
	"github.com/alltowndelivery/platform/platform/go/identity"
	"github.com/alltowndelivery/platform/platform/go/metrics"
	"github.com/alltowndelivery/platform/platform/go/persistence"
)

type profileKey struct {
	tenantID uuid.UUID
	userID   uuid.UUID
}

// MemoryRepository is the process-local, non-durable profile backend. Loyalty
// state accrued here is lost on restart; the failover layer owns that
// trade-off. The ledger map preserves exactly-once accrual per delivery for
// the lifetime of the process.
type MemoryRepository struct {
	mu       sync.Mutex
	profiles map[profileKey]service.Profile
	ledger   map[uuid.UUID]struct{}
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		profiles: make(map[profileKey]service.Profile),
		ledger:   make(map[uuid.UUID]struct{}),
	}
}

func (r *MemoryRepository) Ensure(ctx context.Context, tenantID, userID uuid.UUID, role identity.Role) (service.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureLocked(tenantID, userID, role), nil
}

func (r *MemoryRepository) Get(ctx context.Context, tenantID, userID uuid.UUID) (service.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[profileKey{tenantID, userID}]
	if !ok {
		return service.Profile{}, service.ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepository) SetOnDuty(ctx context.Context, tenantID, userID uuid.UUID, onDuty bool) (service.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := profileKey{tenantID, userID}
	p, ok := r.profiles[key]
	if !ok {
		return service.Profile{}, service.ErrNotFound
	}
	p.OnDuty = onDuty
	p.UpdatedAt = time.Now().UTC()
	r.profiles[key] = p
	return p, nil
}

// ApplyLoyalty records one completed delivery against the profile counters,
// mirroring the durable backend's semantics: the ledger rejects a second
// application for the same delivery, free deliveries consume a credit without
// granting progress, and crossing the threshold converts points into one
// credit with no carryover. Returns the updated profile and whether a credit
// was issued.
func (r *MemoryRepository) ApplyLoyalty(ctx context.Context, p persistence.LoyaltyParams) (service.Profile, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, seen := r.ledger[p.DeliveryID]; seen {
		return service.Profile{}, false, fmt.Errorf("loyalty already recorded for delivery %s: %w", p.DeliveryID, persistence.ErrConflict)
	}

	profile := r.ensureLocked(p.TenantID, p.UserID, identity.RoleCustomer)

	creditIssued := false
	if p.WasFreeDelivery {
		if profile.FreeDeliveryCredits > 0 {
			profile.FreeDeliveryCredits--
		}
	} else {
		profile.LoyaltyPoints += p.PointsToAdd
		if profile.LoyaltyPoints >= persistence.LoyaltyThreshold {
			profile.LoyaltyPoints = 0
			profile.FreeDeliveryCredits++
			creditIssued = true
		}
	}
	profile.TotalDeliveries++
	profile.UpdatedAt = time.Now().UTC()

	r.ledger[p.DeliveryID] = struct{}{}
	r.profiles[profileKey{p.TenantID, p.UserID}] = profile

	if creditIssued {
		metrics.LoyaltyCreditsIssued.Inc()
	}
	return profile, creditIssued, nil
}

// ensureLocked inserts a fresh profile when absent. Caller must hold the lock.
func (r *MemoryRepository) ensureLocked(tenantID, userID uuid.UUID, role identity.Role) service.Profile {
	key := profileKey{tenantID, userID}
	if p, ok := r.profiles[key]; ok {
		return p
	}
	now := time.Now().UTC()
	p := service.Profile{
		TenantID:  tenantID,
		UserID:    userID,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.profiles[key] = p
	return p
}

// Ensure interface compliance.
var _ service.Repository = (*MemoryRepository)(nil)
