package sqlassets

import _ "embed"

//go:embed schema/tenants.sql
var TenantsSQL string

//go:embed schema/delivery_requests.sql
var DeliveryRequestsSQL string

//go:embed schema/user_profiles.sql
var UserProfilesSQL string

//go:embed schema/tenant_settings.sql
var TenantSettingsSQL string
