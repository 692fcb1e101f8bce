package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alltowndelivery/platform/domains/deliveries/be/service"
	usersrepo "github.com/alltowndelivery/platform/domains/users/be/repo"
	"github.com/alltowndelivery/platform/platform/go/persistence"
)

type deliveryKey struct {
	tenantID   uuid.UUID
	deliveryID uuid.UUID
}

// MemoryRepository is the process-local, non-durable delivery backend. The
// failover layer only routes creates and reads here; the full transition
// surface exists so the backend honors the same contract, with claim
// atomicity provided by the repository mutex instead of a conditional UPDATE.
type MemoryRepository struct {
	mu         sync.Mutex
	deliveries map[deliveryKey]service.Delivery
	profiles   *usersrepo.MemoryRepository
}

// NewMemoryRepository constructs an empty MemoryRepository. The profiles
// backend receives loyalty updates when deliveries complete here.
func NewMemoryRepository(profiles *usersrepo.MemoryRepository) *MemoryRepository {
	if profiles == nil {
		panic("users memory repo is required")
	}
	return &MemoryRepository{
		deliveries: make(map[deliveryKey]service.Delivery),
		profiles:   profiles,
	}
}

func (r *MemoryRepository) Insert(ctx context.Context, d service.Delivery) (service.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d.Status = service.StatusAvailable
	d.ClaimedBy = nil
	d.ClaimedAt = nil
	d.CreatedAt = time.Now().UTC()
	r.deliveries[deliveryKey{d.TenantID, d.ID}] = d
	return d, nil
}

func (r *MemoryRepository) Get(ctx context.Context, tenantID, deliveryID uuid.UUID) (service.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(tenantID, deliveryID)
}

func (r *MemoryRepository) ListAvailable(ctx context.Context, tenantID uuid.UUID) ([]service.Delivery, error) {
	return r.list(tenantID, func(d service.Delivery) bool {
		return d.Status == service.StatusAvailable
	}, oldestFirst), nil
}

func (r *MemoryRepository) ListByDriver(ctx context.Context, tenantID, driverID uuid.UUID) ([]service.Delivery, error) {
	return r.list(tenantID, func(d service.Delivery) bool {
		return d.ClaimedBy != nil && *d.ClaimedBy == driverID
	}, oldestFirst), nil
}

func (r *MemoryRepository) ListByUser(ctx context.Context, tenantID, userID uuid.UUID) ([]service.Delivery, error) {
	return r.list(tenantID, func(d service.Delivery) bool {
		return d.UserID != nil && *d.UserID == userID
	}, newestFirst), nil
}

func (r *MemoryRepository) Claim(ctx context.Context, tenantID, deliveryID, driverID uuid.UUID, notes *string) (service.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, err := r.getLocked(tenantID, deliveryID)
	if err != nil {
		return service.Delivery{}, err
	}
	if d.Status != service.StatusAvailable {
		return service.Delivery{}, fmt.Errorf("delivery is %s: %w", d.Status, service.ErrStateConflict)
	}

	now := time.Now().UTC()
	d.Status = service.StatusClaimed
	d.ClaimedBy = &driverID
	d.ClaimedAt = &now
	if notes != nil {
		d.DriverNotes = *notes
	}
	r.deliveries[deliveryKey{tenantID, deliveryID}] = d
	return d, nil
}

func (r *MemoryRepository) Start(ctx context.Context, tenantID, deliveryID, driverID uuid.UUID, notes *string) (service.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, err := r.ownedLocked(tenantID, deliveryID, driverID)
	if err != nil {
		return service.Delivery{}, err
	}
	if d.Status != service.StatusClaimed {
		return service.Delivery{}, fmt.Errorf("delivery is %s: %w", d.Status, service.ErrStateConflict)
	}

	d.Status = service.StatusInProgress
	if notes != nil {
		d.DriverNotes = *notes
	}
	r.deliveries[deliveryKey{tenantID, deliveryID}] = d
	return d, nil
}

func (r *MemoryRepository) UpdateNotes(ctx context.Context, tenantID, deliveryID, driverID uuid.UUID, notes string) (service.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, err := r.ownedLocked(tenantID, deliveryID, driverID)
	if err != nil {
		return service.Delivery{}, err
	}
	if d.Status != service.StatusClaimed && d.Status != service.StatusInProgress {
		return service.Delivery{}, fmt.Errorf("delivery is %s: %w", d.Status, service.ErrStateConflict)
	}

	d.DriverNotes = notes
	r.deliveries[deliveryKey{tenantID, deliveryID}] = d
	return d, nil
}

func (r *MemoryRepository) Complete(ctx context.Context, p service.CompleteParams) (service.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, err := r.ownedLocked(p.TenantID, p.DeliveryID, p.DriverID)
	if err != nil {
		return service.Delivery{}, err
	}
	if d.Status != service.StatusInProgress {
		return service.Delivery{}, fmt.Errorf("delivery is %s: %w", d.Status, service.ErrStateConflict)
	}

	d.Status = service.StatusCompleted
	d.ClaimedBy = nil
	d.ClaimedAt = nil
	if p.Notes != nil {
		d.DriverNotes = *p.Notes
	}
	r.deliveries[deliveryKey{p.TenantID, p.DeliveryID}] = d

	if d.UserID != nil {
		if _, _, err := r.profiles.ApplyLoyalty(ctx, persistence.LoyaltyParams{
			TenantID:        p.TenantID,
			UserID:          *d.UserID,
			DeliveryID:      p.DeliveryID,
			PointsToAdd:     p.PointsToAdd,
			WasFreeDelivery: d.UsedFreeDelivery,
		}); err != nil {
			return service.Delivery{}, fmt.Errorf("apply loyalty: %w", err)
		}
	}
	return d, nil
}

func (r *MemoryRepository) Cancel(ctx context.Context, tenantID, deliveryID uuid.UUID) (service.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, err := r.getLocked(tenantID, deliveryID)
	if err != nil {
		return service.Delivery{}, err
	}
	if d.Status != service.StatusAvailable && d.Status != service.StatusClaimed {
		return service.Delivery{}, fmt.Errorf("delivery is %s: %w", d.Status, service.ErrStateConflict)
	}

	d.Status = service.StatusCancelled
	d.ClaimedBy = nil
	d.ClaimedAt = nil
	r.deliveries[deliveryKey{tenantID, deliveryID}] = d
	return d, nil
}

func (r *MemoryRepository) ReleaseForDriver(ctx context.Context, tenantID, driverID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	released := 0
	for key, d := range r.deliveries {
		if key.tenantID != tenantID || d.Status != service.StatusClaimed {
			continue
		}
		if d.ClaimedBy == nil || *d.ClaimedBy != driverID {
			continue
		}
		d.Status = service.StatusAvailable
		d.ClaimedBy = nil
		d.ClaimedAt = nil
		d.DriverNotes = ""
		r.deliveries[key] = d
		released++
	}
	return released, nil
}

func (r *MemoryRepository) getLocked(tenantID, deliveryID uuid.UUID) (service.Delivery, error) {
	d, ok := r.deliveries[deliveryKey{tenantID, deliveryID}]
	if !ok {
		return service.Delivery{}, service.ErrNotFound
	}
	return d, nil
}

func (r *MemoryRepository) ownedLocked(tenantID, deliveryID, driverID uuid.UUID) (service.Delivery, error) {
	d, err := r.getLocked(tenantID, deliveryID)
	if err != nil {
		return service.Delivery{}, err
	}
	// Terminal records carry no claim; their state answers before ownership.
	if d.Status == service.StatusCompleted || d.Status == service.StatusCancelled {
		return service.Delivery{}, fmt.Errorf("delivery is %s: %w", d.Status, service.ErrStateConflict)
	}
	if d.ClaimedBy == nil || *d.ClaimedBy != driverID {
		return service.Delivery{}, service.ErrNotClaimOwner
	}
	return d, nil
}

type lessFunc func(a, b service.Delivery) bool

func oldestFirst(a, b service.Delivery) bool { return a.CreatedAt.Before(b.CreatedAt) }
func newestFirst(a, b service.Delivery) bool { return a.CreatedAt.After(b.CreatedAt) }

func (r *MemoryRepository) list(tenantID uuid.UUID, keep func(service.Delivery) bool, less lessFunc) []service.Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []service.Delivery
	for key, d := range r.deliveries {
		if key.tenantID == tenantID && keep(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// Ensure interface compliance.
var _ service.Repository = (*MemoryRepository)(nil)
