package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/alltowndelivery/platform/domains/users/be/repo"
	"github.com/alltowndelivery/platform/domains/users/be/service"
	"github.com/alltowndelivery/platform/platform/go/identity"
	"github.com/alltowndelivery/platform/platform/go/persistence"
)

func applyPaidDelivery(t *testing.T, profiles *repo.MemoryRepository, tenantID, userID uuid.UUID, points int) (service.Profile, bool) {
	t.Helper()
	p, credit, err := profiles.ApplyLoyalty(context.Background(), persistence.LoyaltyParams{
		TenantID:    tenantID,
		UserID:      userID,
		DeliveryID:  uuid.New(),
		PointsToAdd: points,
	})
	require.NoError(t, err)
	return p, credit
}

func TestLoyaltyThresholdConversion(t *testing.T) {
	t.Parallel()
	profiles := repo.NewMemoryRepository()
	tenantID := uuid.New()
	userID := uuid.New()

	// 8 points accrued, then a 2-point delivery crosses the threshold.
	for i := 0; i < 8; i++ {
		_, credit := applyPaidDelivery(t, profiles, tenantID, userID, 1)
		require.False(t, credit)
	}

	p, credit := applyPaidDelivery(t, profiles, tenantID, userID, 2)
	require.True(t, credit)
	require.Equal(t, 0, p.LoyaltyPoints)
	require.Equal(t, 1, p.FreeDeliveryCredits)
	require.Equal(t, 9, p.TotalDeliveries)
}

func TestLoyaltyNoCarryover(t *testing.T) {
	t.Parallel()
	profiles := repo.NewMemoryRepository()
	tenantID := uuid.New()
	userID := uuid.New()

	// 9 + 5 crosses with overshoot; the excess is discarded, not banked.
	for i := 0; i < 9; i++ {
		applyPaidDelivery(t, profiles, tenantID, userID, 1)
	}
	p, credit := applyPaidDelivery(t, profiles, tenantID, userID, 5)
	require.True(t, credit)
	require.Equal(t, 0, p.LoyaltyPoints)
	require.Equal(t, 1, p.FreeDeliveryCredits)
}

func TestLoyaltyPointsStayBounded(t *testing.T) {
	t.Parallel()
	profiles := repo.NewMemoryRepository()
	tenantID := uuid.New()
	userID := uuid.New()

	credits := 0
	for i := 0; i < 35; i++ {
		p, credit := applyPaidDelivery(t, profiles, tenantID, userID, 1)
		if credit {
			credits++
		}
		require.GreaterOrEqual(t, p.LoyaltyPoints, 0)
		require.LessOrEqual(t, p.LoyaltyPoints, 9)
		require.Equal(t, (i+1)%persistence.LoyaltyThreshold, p.LoyaltyPoints)
	}
	require.Equal(t, 3, credits)
}

func TestFreeDeliveryConsumesCreditWithoutProgress(t *testing.T) {
	t.Parallel()
	profiles := repo.NewMemoryRepository()
	ctx := context.Background()
	tenantID := uuid.New()
	userID := uuid.New()

	for i := 0; i < 10; i++ {
		applyPaidDelivery(t, profiles, tenantID, userID, 1)
	}
	applyPaidDelivery(t, profiles, tenantID, userID, 3)

	p, credit, err := profiles.ApplyLoyalty(ctx, persistence.LoyaltyParams{
		TenantID:        tenantID,
		UserID:          userID,
		DeliveryID:      uuid.New(),
		PointsToAdd:     1,
		WasFreeDelivery: true,
	})
	require.NoError(t, err)
	require.False(t, credit)
	require.Equal(t, 3, p.LoyaltyPoints)
	require.Equal(t, 0, p.FreeDeliveryCredits)
	require.Equal(t, 12, p.TotalDeliveries)

	// Redemption with zero credits floors at zero.
	p, _, err = profiles.ApplyLoyalty(ctx, persistence.LoyaltyParams{
		TenantID:        tenantID,
		UserID:          userID,
		DeliveryID:      uuid.New(),
		WasFreeDelivery: true,
	})
	require.NoError(t, err)
	require.Equal(t, 0, p.FreeDeliveryCredits)
	require.Equal(t, 3, p.LoyaltyPoints)
}

func TestLoyaltyExactlyOncePerDelivery(t *testing.T) {
	t.Parallel()
	profiles := repo.NewMemoryRepository()
	ctx := context.Background()
	tenantID := uuid.New()
	userID := uuid.New()
	deliveryID := uuid.New()

	params := persistence.LoyaltyParams{
		TenantID:    tenantID,
		UserID:      userID,
		DeliveryID:  deliveryID,
		PointsToAdd: 1,
	}
	_, _, err := profiles.ApplyLoyalty(ctx, params)
	require.NoError(t, err)

	_, _, err = profiles.ApplyLoyalty(ctx, params)
	require.ErrorIs(t, err, persistence.ErrConflict)

	p, err := profiles.Get(ctx, tenantID, userID)
	require.NoError(t, err)
	require.Equal(t, 1, p.LoyaltyPoints)
	require.Equal(t, 1, p.TotalDeliveries)
}

func TestLoyaltySummary(t *testing.T) {
	t.Parallel()
	profiles := repo.NewMemoryRepository()
	svc := service.New(profiles)
	ctx := context.Background()
	tenantID := uuid.New()
	userID := uuid.New()

	// Fresh users have zero counters and a full threshold ahead.
	summary, err := svc.LoyaltySummary(ctx, tenantID, userID)
	require.NoError(t, err)
	require.Equal(t, persistence.LoyaltyThreshold, summary.NextFreeAt)
	require.Zero(t, summary.TotalDeliveries)

	for i := 0; i < 4; i++ {
		applyPaidDelivery(t, profiles, tenantID, userID, 1)
	}

	summary, err = svc.LoyaltySummary(ctx, tenantID, userID)
	require.NoError(t, err)
	require.Equal(t, 4, summary.LoyaltyPoints)
	require.Equal(t, 6, summary.NextFreeAt)
	require.Equal(t, 4, summary.TotalDeliveries)
}

func TestCheckLoyaltyEligibility(t *testing.T) {
	t.Parallel()
	profiles := repo.NewMemoryRepository()
	svc := service.New(profiles)
	ctx := context.Background()
	tenantID := uuid.New()
	userID := uuid.New()

	eligible, err := svc.CheckLoyaltyEligibility(ctx, tenantID, userID)
	require.NoError(t, err)
	require.False(t, eligible)

	for i := 0; i < 10; i++ {
		applyPaidDelivery(t, profiles, tenantID, userID, 1)
	}

	eligible, err = svc.CheckLoyaltyEligibility(ctx, tenantID, userID)
	require.NoError(t, err)
	require.True(t, eligible)
}

func TestSetOnDutyRequiresDriverRole(t *testing.T) {
	t.Parallel()
	svc := service.New(repo.NewMemoryRepository())

	_, _, err := svc.SetOnDuty(context.Background(), uuid.New(),
		identity.Principal{UserID: uuid.New(), Role: identity.RoleCustomer}, true)
	require.ErrorIs(t, err, service.ErrNotDriver)
}

func TestEnsureProfileIsIdempotent(t *testing.T) {
	t.Parallel()
	profiles := repo.NewMemoryRepository()
	svc := service.New(profiles)
	ctx := context.Background()
	tenantID := uuid.New()
	p := identity.Principal{UserID: uuid.New(), Role: identity.RoleCustomer}

	first, err := svc.EnsureProfile(ctx, tenantID, p)
	require.NoError(t, err)

	applyPaidDelivery(t, profiles, tenantID, p.UserID, 1)

	second, err := svc.EnsureProfile(ctx, tenantID, p)
	require.NoError(t, err)
	require.Equal(t, first.UserID, second.UserID)
	require.Equal(t, 1, second.LoyaltyPoints)
}
