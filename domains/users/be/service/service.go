package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/alltowndelivery/platform/platform/go/identity"
	"github.com/alltowndelivery/platform/platform/go/persistence"
)

// Errors returned by the service layer.
var (
	ErrNotFound  = errors.New("profile not found")
	ErrNotDriver = errors.New("caller is not a driver")
)

// Profile is the tenant-scoped account state for a user.
type Profile struct {
	TenantID            uuid.UUID
	UserID              uuid.UUID
	Role                identity.Role
	OnDuty              bool
	LoyaltyPoints       int
	FreeDeliveryCredits int
	TotalDeliveries     int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// LoyaltySummary is the customer-facing view of the loyalty counters.
type LoyaltySummary struct {
	LoyaltyPoints       int `json:"loyaltyPoints"`
	FreeDeliveryCredits int `json:"freeDeliveryCredits"`
	TotalDeliveries     int `json:"totalDeliveries"`
	// NextFreeAt counts the remaining points before the next free delivery
	// credit, assuming one point per delivery.
	NextFreeAt int `json:"nextFreeAt"`
}

// Repository abstracts profile persistence.
type Repository interface {
	Ensure(ctx context.Context, tenantID, userID uuid.UUID, role identity.Role) (Profile, error)
	Get(ctx context.Context, tenantID, userID uuid.UUID) (Profile, error)
	SetOnDuty(ctx context.Context, tenantID, userID uuid.UUID, onDuty bool) (Profile, error)
}

// DeliveryReleaser returns a driver's claimed deliveries to the pool. The
// deliveries domain provides the implementation; it is attached after both
// services exist.
type DeliveryReleaser interface {
	ReleaseDriverDeliveries(ctx context.Context, tenantID, driverID uuid.UUID) (int, error)
}

// Service provides profile and loyalty operations.
type Service struct {
	repo     Repository
	releaser DeliveryReleaser
}

// New constructs a Service with required dependencies.
func New(repo Repository) *Service {
	if repo == nil {
		panic("users repo is required")
	}
	return &Service{repo: repo}
}

// SetReleaser attaches the deliveries-side hook invoked when a driver goes
// off duty. Must be called during wiring, before requests are served.
func (s *Service) SetReleaser(r DeliveryReleaser) {
	s.releaser = r
}

// EnsureProfile creates the profile on first contact and returns it.
func (s *Service) EnsureProfile(ctx context.Context, tenantID uuid.UUID, p identity.Principal) (Profile, error) {
	return s.repo.Ensure(ctx, tenantID, p.UserID, p.Role)
}

// Get returns the profile for a tenant-scoped user.
func (s *Service) Get(ctx context.Context, tenantID, userID uuid.UUID) (Profile, error) {
	return s.repo.Get(ctx, tenantID, userID)
}

// LoyaltySummary returns the loyalty counters, treating a missing profile as
// a fresh one with zeroed counters.
func (s *Service) LoyaltySummary(ctx context.Context, tenantID, userID uuid.UUID) (LoyaltySummary, error) {
	profile, err := s.repo.Get(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoyaltySummary{NextFreeAt: persistence.LoyaltyThreshold}, nil
		}
		return LoyaltySummary{}, err
	}

	return LoyaltySummary{
		LoyaltyPoints:       profile.LoyaltyPoints,
		FreeDeliveryCredits: profile.FreeDeliveryCredits,
		TotalDeliveries:     profile.TotalDeliveries,
		NextFreeAt:          persistence.LoyaltyThreshold - profile.LoyaltyPoints,
	}, nil
}

// CheckLoyaltyEligibility reports whether the user holds at least one free
// delivery credit. Users without a profile are not eligible.
func (s *Service) CheckLoyaltyEligibility(ctx context.Context, tenantID, userID uuid.UUID) (bool, error) {
	profile, err := s.repo.Get(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return profile.FreeDeliveryCredits > 0, nil
}

// SetOnDuty flips a driver's duty flag. Going off duty releases every
// delivery the driver has claimed but not started; the count of released
// deliveries is returned for the caller to report.
func (s *Service) SetOnDuty(ctx context.Context, tenantID uuid.UUID, p identity.Principal, onDuty bool) (Profile, int, error) {
	if p.Role != identity.RoleDriver {
		return Profile{}, 0, ErrNotDriver
	}

	if _, err := s.repo.Ensure(ctx, tenantID, p.UserID, p.Role); err != nil {
		return Profile{}, 0, err
	}

	profile, err := s.repo.SetOnDuty(ctx, tenantID, p.UserID, onDuty)
	if err != nil {
		return Profile{}, 0, err
	}

	released := 0
	if !onDuty && s.releaser != nil {
		released, err = s.releaser.ReleaseDriverDeliveries(ctx, tenantID, p.UserID)
		if err != nil {
			return Profile{}, 0, err
		}
	}
	return profile, released, nil
}
