package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alltowndelivery/platform/platform/go/identity"
	"github.com/alltowndelivery/platform/platform/go/metrics"
	"github.com/alltowndelivery/platform/platform/go/pricing"
)

// Errors returned by the service layer.
var (
	ErrNotFound      = errors.New("delivery not found")
	ErrStateConflict = errors.New("delivery is not in the expected state")
	ErrNotClaimOwner = errors.New("delivery is claimed by another driver")
	ErrNotOwner      = errors.New("delivery does not belong to caller")
	ErrNoFreeCredit  = errors.New("no free delivery credit available")
	ErrInvalidInput  = errors.New("invalid delivery input")

	// ErrAlreadyClaimed narrows ErrStateConflict for the claim race loser, so
	// the handler can say "someone already took this".
	ErrAlreadyClaimed = fmt.Errorf("delivery already claimed: %w", ErrStateConflict)
)

// Status is the closed set of delivery request states.
type Status string

const (
	StatusAvailable  Status = "available"
	StatusClaimed    Status = "claimed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// ParseStatus validates a raw status string against the closed set.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusAvailable, StatusClaimed, StatusInProgress, StatusCompleted, StatusCancelled:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown status %q: %w", s, ErrInvalidInput)
	}
}

// Payment methods accepted at creation time. Payment itself is settled by an
// external provider; this core only records the outcome.
const (
	PaymentCard = "card"
	PaymentCash = "cash"
)

// Delivery is one delivery job.
type Delivery struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	UserID           *uuid.UUID
	BusinessID       *uuid.UUID
	PickupAddress    string
	DeliveryAddress  string
	ScheduledFor     *time.Time
	IsRush           bool
	FeeCents         int64
	PaymentMethod    string
	PaymentID        *string
	IsPaid           bool
	Status           Status
	ClaimedBy        *uuid.UUID
	ClaimedAt        *time.Time
	DriverNotes      string
	UsedFreeDelivery bool
	CreatedAt        time.Time
}

// CreateInput represents a new delivery request.
type CreateInput struct {
	UserID          *uuid.UUID
	BusinessID      *uuid.UUID
	PickupAddress   string
	DeliveryAddress string
	ScheduledFor    *time.Time
	IsRush          bool
	DistanceKm      float64
	PaymentMethod   string
	PaymentID       *string
	IsPaid          bool
	UseFreeDelivery bool
}

// DriverUpdate carries a driver's mutation of a claimed delivery: an optional
// forward transition and optional notes.
type DriverUpdate struct {
	Status *Status
	Notes  *string
}

// CompleteParams drives the completion transition and its loyalty side effect.
type CompleteParams struct {
	TenantID    uuid.UUID
	DeliveryID  uuid.UUID
	DriverID    uuid.UUID
	Notes       *string
	PointsToAdd int
}

// Repository abstracts delivery persistence. Claim and the transitions are
// atomic against the backend; see the postgres implementation.
type Repository interface {
	Insert(ctx context.Context, d Delivery) (Delivery, error)
	Get(ctx context.Context, tenantID, deliveryID uuid.UUID) (Delivery, error)
	ListAvailable(ctx context.Context, tenantID uuid.UUID) ([]Delivery, error)
	ListByDriver(ctx context.Context, tenantID, driverID uuid.UUID) ([]Delivery, error)
	ListByUser(ctx context.Context, tenantID, userID uuid.UUID) ([]Delivery, error)
	Claim(ctx context.Context, tenantID, deliveryID, driverID uuid.UUID, notes *string) (Delivery, error)
	Start(ctx context.Context, tenantID, deliveryID, driverID uuid.UUID, notes *string) (Delivery, error)
	UpdateNotes(ctx context.Context, tenantID, deliveryID, driverID uuid.UUID, notes string) (Delivery, error)
	Complete(ctx context.Context, p CompleteParams) (Delivery, error)
	Cancel(ctx context.Context, tenantID, deliveryID uuid.UUID) (Delivery, error)
	ReleaseForDriver(ctx context.Context, tenantID, driverID uuid.UUID) (int, error)
}

// SettingsSource yields the tenant's effective pricing configuration and
// loyalty points per delivery. The tenants domain provides it.
type SettingsSource interface {
	Effective(ctx context.Context, tenantID uuid.UUID) (pricing.Config, int, error)
}

// LoyaltyChecker reports whether a user holds a free delivery credit. The
// users domain provides it.
type LoyaltyChecker interface {
	CheckLoyaltyEligibility(ctx context.Context, tenantID, userID uuid.UUID) (bool, error)
}

// Service enforces the delivery lifecycle.
type Service struct {
	repo     Repository
	settings SettingsSource
	loyalty  LoyaltyChecker
	quote    pricing.Quoter
}

// New constructs a Service with required dependencies.
func New(repo Repository, settings SettingsSource, loyalty LoyaltyChecker, quote pricing.Quoter) *Service {
	if repo == nil {
		panic("deliveries repo is required")
	}
	if settings == nil {
		panic("settings source is required")
	}
	if loyalty == nil {
		panic("loyalty checker is required")
	}
	if quote == nil {
		panic("pricing quoter is required")
	}
	return &Service{repo: repo, settings: settings, loyalty: loyalty, quote: quote}
}

// Create inserts a new request in 'available'. The fee comes from the
// tenant's pricing configuration; a free delivery consumes the caller's
// credit at completion time and carries a zero fee.
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, input CreateInput) (Delivery, error) {
	if strings.TrimSpace(input.PickupAddress) == "" {
		return Delivery{}, fmt.Errorf("pickup address is required: %w", ErrInvalidInput)
	}
	if strings.TrimSpace(input.DeliveryAddress) == "" {
		return Delivery{}, fmt.Errorf("delivery address is required: %w", ErrInvalidInput)
	}
	if input.DistanceKm < 0 {
		return Delivery{}, fmt.Errorf("distance must not be negative: %w", ErrInvalidInput)
	}
	if input.PaymentMethod != PaymentCard && input.PaymentMethod != PaymentCash {
		return Delivery{}, fmt.Errorf("unknown payment method %q: %w", input.PaymentMethod, ErrInvalidInput)
	}

	pricingCfg, _, err := s.settings.Effective(ctx, tenantID)
	if err != nil {
		return Delivery{}, fmt.Errorf("load tenant settings: %w", err)
	}

	d := Delivery{
		ID:               uuid.New(),
		TenantID:         tenantID,
		UserID:           input.UserID,
		BusinessID:       input.BusinessID,
		PickupAddress:    strings.TrimSpace(input.PickupAddress),
		DeliveryAddress:  strings.TrimSpace(input.DeliveryAddress),
		ScheduledFor:     input.ScheduledFor,
		IsRush:           input.IsRush,
		PaymentMethod:    input.PaymentMethod,
		PaymentID:        input.PaymentID,
		IsPaid:           input.IsPaid,
		Status:           StatusAvailable,
		UsedFreeDelivery: input.UseFreeDelivery,
	}

	if input.UseFreeDelivery {
		if input.UserID == nil {
			return Delivery{}, fmt.Errorf("free delivery requires an owning user: %w", ErrInvalidInput)
		}
		eligible, err := s.loyalty.CheckLoyaltyEligibility(ctx, tenantID, *input.UserID)
		if err != nil {
			return Delivery{}, fmt.Errorf("check loyalty eligibility: %w", err)
		}
		if !eligible {
			return Delivery{}, ErrNoFreeCredit
		}
		d.FeeCents = 0
		d.IsPaid = true
	} else {
		d.FeeCents = s.quote(input.DistanceKm, pricingCfg, input.IsRush)
	}

	return s.repo.Insert(ctx, d)
}

// Get returns a tenant-scoped delivery by id.
func (s *Service) Get(ctx context.Context, tenantID, deliveryID uuid.UUID) (Delivery, error) {
	return s.repo.Get(ctx, tenantID, deliveryID)
}

// ListAvailable returns the tenant's unclaimed requests, oldest first.
func (s *Service) ListAvailable(ctx context.Context, tenantID uuid.UUID) ([]Delivery, error) {
	return s.repo.ListAvailable(ctx, tenantID)
}

// ListForDriver returns deliveries claimed or in progress by the driver.
func (s *Service) ListForDriver(ctx context.Context, tenantID, driverID uuid.UUID) ([]Delivery, error) {
	return s.repo.ListByDriver(ctx, tenantID, driverID)
}

// ListForUser returns a customer's requests, newest first.
func (s *Service) ListForUser(ctx context.Context, tenantID, userID uuid.UUID) ([]Delivery, error) {
	return s.repo.ListByUser(ctx, tenantID, userID)
}

// Claim exclusively assigns an available delivery to the driver. Exactly one
// of two racing claimers wins; the loser gets ErrAlreadyClaimed.
func (s *Service) Claim(ctx context.Context, tenantID, deliveryID, driverID uuid.UUID, notes *string) (Delivery, error) {
	d, err := s.repo.Claim(ctx, tenantID, deliveryID, driverID, notes)
	if err != nil {
		if errors.Is(err, ErrStateConflict) {
			metrics.ClaimConflicts.Inc()
			return Delivery{}, ErrAlreadyClaimed
		}
		return Delivery{}, err
	}
	return d, nil
}

// UpdateForDriver applies a driver's mutation to a delivery they own:
// notes-only, claimed → in_progress, or in_progress → completed. Completion
// triggers the loyalty update with the tenant's configured points.
func (s *Service) UpdateForDriver(ctx context.Context, tenantID, deliveryID, driverID uuid.UUID, update DriverUpdate) (Delivery, error) {
	if update.Status == nil {
		if update.Notes == nil {
			return Delivery{}, fmt.Errorf("nothing to update: %w", ErrInvalidInput)
		}
		return s.repo.UpdateNotes(ctx, tenantID, deliveryID, driverID, *update.Notes)
	}

	switch *update.Status {
	case StatusInProgress:
		return s.repo.Start(ctx, tenantID, deliveryID, driverID, update.Notes)
	case StatusCompleted:
		_, points, err := s.settings.Effective(ctx, tenantID)
		if err != nil {
			return Delivery{}, fmt.Errorf("load tenant settings: %w", err)
		}
		return s.repo.Complete(ctx, CompleteParams{
			TenantID:    tenantID,
			DeliveryID:  deliveryID,
			DriverID:    driverID,
			Notes:       update.Notes,
			PointsToAdd: points,
		})
	default:
		return Delivery{}, fmt.Errorf("drivers cannot move a delivery to %s: %w", *update.Status, ErrInvalidInput)
	}
}

// Cancel terminates an available or claimed request. Customers may only
// cancel their own; dispatchers and admins may cancel any.
func (s *Service) Cancel(ctx context.Context, tenantID, deliveryID uuid.UUID, caller identity.Principal) (Delivery, error) {
	if caller.Role == identity.RoleCustomer {
		d, err := s.repo.Get(ctx, tenantID, deliveryID)
		if err != nil {
			return Delivery{}, err
		}
		if d.UserID == nil || *d.UserID != caller.UserID {
			return Delivery{}, ErrNotOwner
		}
	}
	return s.repo.Cancel(ctx, tenantID, deliveryID)
}

// ReleaseDriverDeliveries returns every delivery the driver has claimed but
// not started back to the pool. Called when a driver goes off duty.
func (s *Service) ReleaseDriverDeliveries(ctx context.Context, tenantID, driverID uuid.UUID) (int, error) {
	return s.repo.ReleaseForDriver(ctx, tenantID, driverID)
}
