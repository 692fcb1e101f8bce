package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alltowndelivery/platform/platform/go/pricing"
	"github.com/alltowndelivery/platform/platform/go/tenant"
)

// Errors returned by the service layer.
var (
	ErrNotFound       = errors.New("tenant not found")
	ErrDomainConflict = errors.New("subdomain or custom domain already in use")
	ErrInvalidInput   = errors.New("invalid tenant input")
)

// PlanType is the closed set of subscription plans.
type PlanType string

const (
	PlanStarter    PlanType = "starter"
	PlanPro        PlanType = "pro"
	PlanEnterprise PlanType = "enterprise"
)

// PlanTypeFromString converts a stored string to PlanType; defaults to starter on unknown.
func PlanTypeFromString(s string) PlanType {
	switch PlanType(s) {
	case PlanStarter, PlanPro, PlanEnterprise:
		return PlanType(s)
	default:
		return PlanStarter
	}
}

// Tenant represents the domain model for a subscribing business.
type Tenant struct {
	ID           uuid.UUID
	CompanyName  string
	Subdomain    *string
	CustomDomain *string
	Branding     tenant.Branding
	PlanType     PlanType
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Context projects the tenant into the routing context handed to middleware and the UI.
func (t Tenant) Context() tenant.Context {
	return tenant.Context{
		TenantID:     t.ID,
		CompanyName:  t.CompanyName,
		Subdomain:    t.Subdomain,
		CustomDomain: t.CustomDomain,
		Branding:     t.Branding,
		PlanType:     string(t.PlanType),
	}
}

// CreateInput represents the request to register a tenant.
type CreateInput struct {
	CompanyName  string
	Subdomain    *string
	CustomDomain *string
	Branding     tenant.Branding
	PlanType     PlanType
}

// UpdateInput represents mutable fields; nil leaves a field unchanged, an
// empty string clears an optional domain field.
type UpdateInput struct {
	CompanyName  *string
	Subdomain    *string
	CustomDomain *string
	Branding     *tenant.Branding
	PlanType     *PlanType
}

// Settings is the parsed tenant settings document consumed by other domains.
type Settings struct {
	Pricing                  pricing.Config `json:"pricing"`
	LoyaltyPointsPerDelivery int            `json:"loyaltyPointsPerDelivery"`
}

// DefaultSettings applies for tenants without a stored document.
func DefaultSettings() Settings {
	return Settings{Pricing: pricing.DefaultConfig(), LoyaltyPointsPerDelivery: 1}
}

// Repository abstracts tenant persistence.
type Repository interface {
	Create(ctx context.Context, t Tenant) (Tenant, error)
	Get(ctx context.Context, id uuid.UUID) (Tenant, error)
	Update(ctx context.Context, t Tenant) (Tenant, error)
	Deactivate(ctx context.Context, id uuid.UUID) (Tenant, error)
	List(ctx context.Context, limit, offset int) ([]Tenant, error)
	FindBySubdomain(ctx context.Context, subdomain string) (Tenant, error)
	FindByCustomDomain(ctx context.Context, domain string) (Tenant, error)
}

// SettingsRepository abstracts the per-tenant settings document.
type SettingsRepository interface {
	GetSettings(ctx context.Context, tenantID uuid.UUID) ([]byte, error)
	PutSettings(ctx context.Context, tenantID uuid.UUID, document []byte) ([]byte, error)
}

// SettingsValidator checks a settings document before it is persisted.
type SettingsValidator interface {
	Validate(ctx context.Context, payload []byte) error
}

// Service provides tenant registry and host resolution operations.
type Service struct {
	repo      Repository
	settings  SettingsRepository
	validator SettingsValidator
}

// New constructs a Service with required dependencies.
func New(repo Repository, settings SettingsRepository, validator SettingsValidator) *Service {
	if repo == nil {
		panic("tenants repo is required")
	}
	if settings == nil {
		panic("settings repo is required")
	}
	if validator == nil {
		panic("settings validator is required")
	}
	return &Service{repo: repo, settings: settings, validator: validator}
}

// Create registers a new tenant.
func (s *Service) Create(ctx context.Context, input CreateInput) (Tenant, error) {
	name := strings.TrimSpace(input.CompanyName)
	if name == "" {
		return Tenant{}, fmt.Errorf("company name is required: %w", ErrInvalidInput)
	}

	t := Tenant{
		ID:           uuid.New(),
		CompanyName:  name,
		Subdomain:    normalizeLabel(input.Subdomain),
		CustomDomain: normalizeLabel(input.CustomDomain),
		Branding:     input.Branding,
		PlanType:     PlanTypeFromString(string(input.PlanType)),
		Active:       true,
	}
	return s.repo.Create(ctx, t)
}

// Get returns a tenant by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Tenant, error) {
	return s.repo.Get(ctx, id)
}

// List returns active tenants.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Tenant, error) {
	return s.repo.List(ctx, limit, offset)
}

// Update modifies mutable tenant fields.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (Tenant, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Tenant{}, err
	}

	next := current
	if input.CompanyName != nil {
		name := strings.TrimSpace(*input.CompanyName)
		if name == "" {
			return Tenant{}, fmt.Errorf("company name is required: %w", ErrInvalidInput)
		}
		next.CompanyName = name
	}
	if input.Subdomain != nil {
		next.Subdomain = normalizeLabel(input.Subdomain)
	}
	if input.CustomDomain != nil {
		next.CustomDomain = normalizeLabel(input.CustomDomain)
	}
	if input.Branding != nil {
		next.Branding = *input.Branding
	}
	if input.PlanType != nil {
		next.PlanType = PlanTypeFromString(string(*input.PlanType))
	}

	return s.repo.Update(ctx, next)
}

// Deactivate soft-disables a tenant on churn; its hosts stop resolving once
// the resolver cache expires.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) (Tenant, error) {
	return s.repo.Deactivate(ctx, id)
}

// FindBySubdomain implements tenant.Lookup for the host resolver.
func (s *Service) FindBySubdomain(ctx context.Context, subdomain string) (tenant.Context, error) {
	return s.toResolved(s.repo.FindBySubdomain(ctx, strings.ToLower(subdomain)))
}

// FindByCustomDomain implements tenant.Lookup for the host resolver.
func (s *Service) FindByCustomDomain(ctx context.Context, domain string) (tenant.Context, error) {
	return s.toResolved(s.repo.FindByCustomDomain(ctx, strings.ToLower(domain)))
}

func (s *Service) toResolved(t Tenant, err error) (tenant.Context, error) {
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return tenant.Context{}, tenant.ErrNotFound
		}
		return tenant.Context{}, err
	}
	if !t.Active {
		return tenant.Context{}, tenant.ErrDisabled
	}
	return t.Context(), nil
}

// GetSettings returns the raw settings document, or the serialized defaults
// when none is stored yet.
func (s *Service) GetSettings(ctx context.Context, tenantID uuid.UUID) (json.RawMessage, error) {
	doc, err := s.settings.GetSettings(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return json.Marshal(DefaultSettings())
		}
		return nil, err
	}
	return doc, nil
}

// PutSettings validates and stores a settings document.
func (s *Service) PutSettings(ctx context.Context, tenantID uuid.UUID, document []byte) (json.RawMessage, error) {
	if err := s.validator.Validate(ctx, document); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	return s.settings.PutSettings(ctx, tenantID, document)
}

// Effective parses the stored settings into the typed form consumed by the
// delivery service. Missing documents and missing fields fall back to defaults.
func (s *Service) Effective(ctx context.Context, tenantID uuid.UUID) (pricing.Config, int, error) {
	defaults := DefaultSettings()

	doc, err := s.settings.GetSettings(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return defaults.Pricing, defaults.LoyaltyPointsPerDelivery, nil
		}
		return pricing.Config{}, 0, err
	}

	parsed := defaults
	if err := json.Unmarshal(doc, &parsed); err != nil {
		return pricing.Config{}, 0, fmt.Errorf("parse settings document: %w", err)
	}
	if parsed.LoyaltyPointsPerDelivery <= 0 {
		parsed.LoyaltyPointsPerDelivery = defaults.LoyaltyPointsPerDelivery
	}
	return parsed.Pricing, parsed.LoyaltyPointsPerDelivery, nil
}

func normalizeLabel(v *string) *string {
	if v == nil {
		return nil
	}
	label := strings.ToLower(strings.TrimSpace(*v))
	if label == "" {
		return nil
	}
	return &label
}
