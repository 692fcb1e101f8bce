package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/alltowndelivery/platform/platform/go/cache"
	"github.com/alltowndelivery/platform/platform/go/tenant"
)

type stubLookup struct {
	bySubdomain map[string]tenant.Context
	failWith    error
}

func (l *stubLookup) FindBySubdomain(_ context.Context, sub string) (tenant.Context, error) {
	if l.failWith != nil {
		return tenant.Context{}, l.failWith
	}
	tc, ok := l.bySubdomain[sub]
	if !ok {
		return tenant.Context{}, tenant.ErrNotFound
	}
	return tc, nil
}

func (l *stubLookup) FindByCustomDomain(context.Context, string) (tenant.Context, error) {
	if l.failWith != nil {
		return tenant.Context{}, l.failWith
	}
	return tenant.Context{}, tenant.ErrNotFound
}

func newHandler(t *testing.T, lookup tenant.Lookup) (http.Handler, *tenant.Context) {
	t.Helper()

	resolver := tenant.NewResolver(lookup, cache.NewTTL[tenant.Context](5*time.Minute, nil), []string{"alltowndelivery.com"})

	var seen tenant.Context
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc, ok := tenant.FromContext(r.Context())
		require.True(t, ok)
		seen = tc
		w.WriteHeader(http.StatusOK)
	})

	return WithTenant(resolver, zaptest.NewLogger(t))(inner), &seen
}

func TestWithTenantAttachesContext(t *testing.T) {
	t.Parallel()

	want := tenant.Context{TenantID: uuid.New(), CompanyName: "Acme Deliveries"}
	h, seen := newHandler(t, &stubLookup{bySubdomain: map[string]tenant.Context{"acme": want}})

	req := httptest.NewRequest(http.MethodGet, "http://acme.alltowndelivery.com/deliveries", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, want.TenantID, seen.TenantID)
}

func TestWithTenantUnknownHost404(t *testing.T) {
	t.Parallel()

	h, _ := newHandler(t, &stubLookup{bySubdomain: map[string]tenant.Context{}})

	req := httptest.NewRequest(http.MethodGet, "http://unknown-business.alltowndelivery.com/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
}

func TestWithTenantInfrastructureFailure503(t *testing.T) {
	t.Parallel()

	h, _ := newHandler(t, &stubLookup{failWith: errors.New("connection refused")})

	req := httptest.NewRequest(http.MethodGet, "http://acme.alltowndelivery.com/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
}

func TestRequireTenantRejectsMainSite(t *testing.T) {
	t.Parallel()

	inner := RequireTenant(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "http://alltowndelivery.com/deliveries", nil)
	req = req.WithContext(tenant.WithContext(req.Context(), tenant.MainSite()))
	rec := httptest.NewRecorder()
	inner.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
