package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/alltowndelivery/platform/database"
)

// Bootstrap applies the embedded core DDL. Statements are idempotent
// (IF NOT EXISTS) so repeated startups are safe.
func Bootstrap(ctx context.Context, pool *pgxpool.Pool) error {
	assets := []struct {
		name string
		ddl  string
	}{
		{"tenants", sqlassets.TenantsSQL},
		{"delivery_requests", sqlassets.DeliveryRequestsSQL},
		{"user_profiles", sqlassets.UserProfilesSQL},
		{"tenant_settings", sqlassets.TenantSettingsSQL},
	}

	for _, asset := range assets {
		if _, err := pool.Exec(ctx, asset.ddl); err != nil {
			return fmt.Errorf("apply %s ddl: %w", asset.name, err)
		}
	}
	return nil
}
