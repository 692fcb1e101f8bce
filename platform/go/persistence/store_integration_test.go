package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startTestPool launches a throwaway postgres container and applies the
// embedded DDL.
func startTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	t.Cleanup(cancel)

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("alltown"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, PoolConfig{ConnString: connString})
	require.NoError(t, err)
	t.Cleanup(func() { ClosePool(pool) })

	require.NoError(t, Bootstrap(ctx, pool))
	return pool
}

func insertTestTenant(t *testing.T, store *TenantStore) TenantRecord {
	t.Helper()
	sub := "test-" + uuid.NewString()[:8]
	rec, err := store.Create(context.Background(), TenantRecord{
		TenantID:    uuid.New(),
		CompanyName: "Test Couriers",
		Subdomain:   &sub,
		PlanType:    "starter",
		IsActive:    true,
	})
	require.NoError(t, err)
	return rec
}

func insertTestDelivery(t *testing.T, store *DeliveryStore, tenantID uuid.UUID, userID *uuid.UUID) DeliveryRecord {
	t.Helper()
	rec, err := store.Insert(context.Background(), DeliveryRecord{
		DeliveryID:      uuid.New(),
		TenantID:        tenantID,
		UserID:          userID,
		PickupAddress:   "12 Main St",
		DeliveryAddress: "80 Oak Ave",
		PaymentMethod:   "card",
		FeeCents:        950,
	})
	require.NoError(t, err)
	require.Equal(t, "available", rec.Status)
	require.Nil(t, rec.ClaimedBy)
	return rec
}

func TestTenantStoreUniqueness(t *testing.T) {
	t.Parallel()
	if testing.Short() {
		t.Skip("skipping persistence integration test in short mode")
	}

	pool := startTestPool(t)
	ctx := context.Background()

	store, err := NewTenantStore(pool)
	require.NoError(t, err)

	sub := "acme"
	_, err = store.Create(ctx, TenantRecord{
		TenantID:    uuid.New(),
		CompanyName: "Acme",
		Subdomain:   &sub,
		PlanType:    "starter",
		IsActive:    true,
	})
	require.NoError(t, err)

	upper := "ACME"
	_, err = store.Create(ctx, TenantRecord{
		TenantID:    uuid.New(),
		CompanyName: "Imposter",
		Subdomain:   &upper,
		PlanType:    "starter",
		IsActive:    true,
	})
	require.ErrorIs(t, err, ErrConflict)

	got, err := store.GetBySubdomain(ctx, "AcMe")
	require.NoError(t, err)
	require.Equal(t, "Acme", got.CompanyName)

	_, err = store.GetBySubdomain(ctx, "nobody")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeliveryStoreClaimRace(t *testing.T) {
	t.Parallel()
	if testing.Short() {
		t.Skip("skipping persistence integration test in short mode")
	}

	pool := startTestPool(t)
	ctx := context.Background()

	tenantStore, err := NewTenantStore(pool)
	require.NoError(t, err)
	store, err := NewDeliveryStore(pool)
	require.NoError(t, err)

	tenantRec := insertTestTenant(t, tenantStore)
	delivery := insertTestDelivery(t, store, tenantRec.TenantID, nil)

	const drivers = 12
	var wg sync.WaitGroup
	errs := make([]error, drivers)
	for i := 0; i < drivers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.Claim(ctx, tenantRec.TenantID, delivery.DeliveryID, uuid.New(), nil)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, ErrStateConflict)
	}
	require.Equal(t, 1, wins)

	got, err := store.Get(ctx, tenantRec.TenantID, delivery.DeliveryID)
	require.NoError(t, err)
	require.Equal(t, "claimed", got.Status)
	require.NotNil(t, got.ClaimedBy)
	require.NotNil(t, got.ClaimedAt)
}

func TestDeliveryStoreCompleteAppliesLoyaltyOnce(t *testing.T) {
	t.Parallel()
	if testing.Short() {
		t.Skip("skipping persistence integration test in short mode")
	}

	pool := startTestPool(t)
	ctx := context.Background()

	tenantStore, err := NewTenantStore(pool)
	require.NoError(t, err)
	store, err := NewDeliveryStore(pool)
	require.NoError(t, err)
	profiles, err := NewProfileStore(pool)
	require.NoError(t, err)

	tenantRec := insertTestTenant(t, tenantStore)
	userID := uuid.New()
	driverID := uuid.New()
	delivery := insertTestDelivery(t, store, tenantRec.TenantID, &userID)

	_, err = store.Claim(ctx, tenantRec.TenantID, delivery.DeliveryID, driverID, nil)
	require.NoError(t, err)
	_, err = store.Start(ctx, tenantRec.TenantID, delivery.DeliveryID, driverID, nil)
	require.NoError(t, err)

	rec, profile, err := store.Complete(ctx, CompleteDeliveryParams{
		TenantID:    tenantRec.TenantID,
		DeliveryID:  delivery.DeliveryID,
		DriverID:    driverID,
		PointsToAdd: 1,
	})
	require.NoError(t, err)
	require.Equal(t, "completed", rec.Status)
	require.Nil(t, rec.ClaimedBy)
	require.Nil(t, rec.ClaimedAt)
	require.NotNil(t, profile)
	require.Equal(t, 1, profile.LoyaltyPoints)
	require.Equal(t, 1, profile.TotalDeliveries)

	// The transition guard rejects a second completion.
	_, _, err = store.Complete(ctx, CompleteDeliveryParams{
		TenantID:    tenantRec.TenantID,
		DeliveryID:  delivery.DeliveryID,
		DriverID:    driverID,
		PointsToAdd: 1,
	})
	require.ErrorIs(t, err, ErrStateConflict)

	// Even bypassing the transition, the ledger primary key blocks a second
	// application for the same delivery.
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	require.NoError(t, err)
	_, _, err = ApplyLoyalty(ctx, tx, LoyaltyParams{
		TenantID:    tenantRec.TenantID,
		UserID:      userID,
		DeliveryID:  delivery.DeliveryID,
		PointsToAdd: 1,
	})
	require.ErrorIs(t, err, ErrConflict)
	require.NoError(t, tx.Rollback(ctx))

	got, err := profiles.Get(ctx, tenantRec.TenantID, userID)
	require.NoError(t, err)
	require.Equal(t, 1, got.LoyaltyPoints)
	require.Equal(t, 1, got.TotalDeliveries)
}

func TestDeliveryStoreClassifiesOwnershipAndState(t *testing.T) {
	t.Parallel()
	if testing.Short() {
		t.Skip("skipping persistence integration test in short mode")
	}

	pool := startTestPool(t)
	ctx := context.Background()

	tenantStore, err := NewTenantStore(pool)
	require.NoError(t, err)
	store, err := NewDeliveryStore(pool)
	require.NoError(t, err)

	tenantRec := insertTestTenant(t, tenantStore)
	owner := uuid.New()
	stranger := uuid.New()
	delivery := insertTestDelivery(t, store, tenantRec.TenantID, nil)

	_, err = store.Claim(ctx, tenantRec.TenantID, delivery.DeliveryID, owner, nil)
	require.NoError(t, err)

	_, err = store.Start(ctx, tenantRec.TenantID, delivery.DeliveryID, stranger, nil)
	require.ErrorIs(t, err, ErrNotClaimOwner)

	_, err = store.Start(ctx, tenantRec.TenantID, uuid.New(), owner, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeliveryStoreReleaseForDriver(t *testing.T) {
	t.Parallel()
	if testing.Short() {
		t.Skip("skipping persistence integration test in short mode")
	}

	pool := startTestPool(t)
	ctx := context.Background()

	tenantStore, err := NewTenantStore(pool)
	require.NoError(t, err)
	store, err := NewDeliveryStore(pool)
	require.NoError(t, err)

	tenantRec := insertTestTenant(t, tenantStore)
	driverID := uuid.New()

	claimed := insertTestDelivery(t, store, tenantRec.TenantID, nil)
	started := insertTestDelivery(t, store, tenantRec.TenantID, nil)

	_, err = store.Claim(ctx, tenantRec.TenantID, claimed.DeliveryID, driverID, nil)
	require.NoError(t, err)
	_, err = store.Claim(ctx, tenantRec.TenantID, started.DeliveryID, driverID, nil)
	require.NoError(t, err)
	_, err = store.Start(ctx, tenantRec.TenantID, started.DeliveryID, driverID, nil)
	require.NoError(t, err)

	released, err := store.ReleaseForDriver(ctx, tenantRec.TenantID, driverID)
	require.NoError(t, err)
	require.Equal(t, 1, released)

	got, err := store.Get(ctx, tenantRec.TenantID, claimed.DeliveryID)
	require.NoError(t, err)
	require.Equal(t, "available", got.Status)
	require.Nil(t, got.ClaimedBy)
	require.Nil(t, got.ClaimedAt)
	require.Empty(t, got.DriverNotes)

	got, err = store.Get(ctx, tenantRec.TenantID, started.DeliveryID)
	require.NoError(t, err)
	require.Equal(t, "in_progress", got.Status)
}
