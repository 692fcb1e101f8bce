package tenant

import (
	"context"

	"github.com/google/uuid"
)

// Branding carries the tenant-facing presentation fields handed to the UI layer.
type Branding struct {
	LogoURL      string `json:"logoUrl"`
	PrimaryColor string `json:"primaryColor"`
}

// Context captures the resolved tenant routing metadata for a request.
// It is attached to the request context by middleware once the host header
// has been resolved. IsMainSite marks the platform's own marketing host; no
// tenant fields are populated for it.
type Context struct {
	TenantID     uuid.UUID `json:"id"`
	CompanyName  string    `json:"companyName"`
	Subdomain    *string   `json:"subdomain,omitempty"`
	CustomDomain *string   `json:"customDomain,omitempty"`
	Branding     Branding  `json:"branding"`
	PlanType     string    `json:"planType"`
	IsMainSite   bool      `json:"isMainSite"`
}

// MainSite returns the synthetic context used for the platform's own hosts.
func MainSite() Context {
	return Context{IsMainSite: true}
}

type ctxKey struct{}

// WithContext returns a derived context carrying the tenant Context.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// FromContext extracts the tenant Context and a boolean indicating presence.
func FromContext(ctx context.Context) (Context, bool) {
	v := ctx.Value(ctxKey{})
	if v == nil {
		return Context{}, false
	}
	tc, ok := v.(Context)
	return tc, ok
}
