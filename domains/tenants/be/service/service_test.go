package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/alltowndelivery/platform/domains/tenants/be/repo"
	"github.com/alltowndelivery/platform/domains/tenants/be/service"
	"github.com/alltowndelivery/platform/platform/go/persistence"
	"github.com/alltowndelivery/platform/platform/go/tenant"
)

func newService(t *testing.T) *service.Service {
	t.Helper()
	mem := repo.NewMemoryRepository()
	return service.New(mem, mem, persistence.NewSettingsValidator())
}

func strPtr(s string) *string { return &s }

func TestCreateNormalizesLabels(t *testing.T) {
	t.Parallel()
	svc := newService(t)

	created, err := svc.Create(context.Background(), service.CreateInput{
		CompanyName: "  Joe's Couriers ",
		Subdomain:   strPtr(" Joes "),
		PlanType:    "pro",
	})
	require.NoError(t, err)
	require.Equal(t, "Joe's Couriers", created.CompanyName)
	require.NotNil(t, created.Subdomain)
	require.Equal(t, "joes", *created.Subdomain)
	require.Nil(t, created.CustomDomain)
	require.Equal(t, service.PlanPro, created.PlanType)
	require.True(t, created.Active)
}

func TestCreateRejectsEmptyCompanyName(t *testing.T) {
	t.Parallel()
	svc := newService(t)

	_, err := svc.Create(context.Background(), service.CreateInput{CompanyName: "   "})
	require.ErrorIs(t, err, service.ErrInvalidInput)
}

func TestCreateRejectsDomainConflicts(t *testing.T) {
	t.Parallel()
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, service.CreateInput{CompanyName: "First", Subdomain: strPtr("shared")})
	require.NoError(t, err)

	_, err = svc.Create(ctx, service.CreateInput{CompanyName: "Second", Subdomain: strPtr("SHARED")})
	require.ErrorIs(t, err, service.ErrDomainConflict)
}

func TestFindBySubdomainResolution(t *testing.T) {
	t.Parallel()
	svc := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, service.CreateInput{CompanyName: "Acme", Subdomain: strPtr("acme")})
	require.NoError(t, err)

	tc, err := svc.FindBySubdomain(ctx, "ACME")
	require.NoError(t, err)
	require.Equal(t, created.ID, tc.TenantID)
	require.False(t, tc.IsMainSite)

	_, err = svc.FindBySubdomain(ctx, "nobody")
	require.ErrorIs(t, err, tenant.ErrNotFound)
}

func TestDeactivatedTenantStopsResolving(t *testing.T) {
	t.Parallel()
	svc := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, service.CreateInput{CompanyName: "Churned", Subdomain: strPtr("churned")})
	require.NoError(t, err)

	_, err = svc.Deactivate(ctx, created.ID)
	require.NoError(t, err)

	_, err = svc.FindBySubdomain(ctx, "churned")
	require.ErrorIs(t, err, tenant.ErrDisabled)

	// Deactivation is soft: the record itself remains readable.
	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, got.Active)
}

func TestUpdateAppliesPartialInput(t *testing.T) {
	t.Parallel()
	svc := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, service.CreateInput{CompanyName: "Before", Subdomain: strPtr("before")})
	require.NoError(t, err)

	plan := service.PlanEnterprise
	updated, err := svc.Update(ctx, created.ID, service.UpdateInput{
		CompanyName: strPtr("After"),
		PlanType:    &plan,
	})
	require.NoError(t, err)
	require.Equal(t, "After", updated.CompanyName)
	require.Equal(t, service.PlanEnterprise, updated.PlanType)
	require.NotNil(t, updated.Subdomain)
	require.Equal(t, "before", *updated.Subdomain)
}

func TestSettingsDefaultsAndEffective(t *testing.T) {
	t.Parallel()
	svc := newService(t)
	ctx := context.Background()
	tenantID := uuid.New()

	cfg, points, err := svc.Effective(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, service.DefaultSettings().Pricing, cfg)
	require.Equal(t, 1, points)

	_, err = svc.PutSettings(ctx, tenantID, []byte(`{
		"pricing": {"baseFeeCents": 700, "perKmCents": 200, "rushMultiplier": 2},
		"loyaltyPointsPerDelivery": 2
	}`))
	require.NoError(t, err)

	cfg, points, err = svc.Effective(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, int64(700), cfg.BaseFeeCents)
	require.Equal(t, int64(200), cfg.PerKmCents)
	require.Equal(t, 2, points)
}

func TestPutSettingsValidatesDocument(t *testing.T) {
	t.Parallel()
	svc := newService(t)
	ctx := context.Background()
	tenantID := uuid.New()

	_, err := svc.PutSettings(ctx, tenantID, []byte(`{"loyaltyPointsPerDelivery": 50}`))
	require.ErrorIs(t, err, service.ErrInvalidInput)

	_, err = svc.PutSettings(ctx, tenantID, []byte(`{"unknownKey": true}`))
	require.ErrorIs(t, err, service.ErrInvalidInput)

	_, err = svc.PutSettings(ctx, tenantID, []byte(`not json`))
	require.ErrorIs(t, err, service.ErrInvalidInput)
}
