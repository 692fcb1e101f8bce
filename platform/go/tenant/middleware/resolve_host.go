// Package middleware attaches the resolved tenant Context to each request.
package middleware

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/alltowndelivery/platform/platform/go/httpapi"
	"github.com/alltowndelivery/platform/platform/go/logging"
	"github.com/alltowndelivery/platform/platform/go/tenant"
)

// WithTenant resolves the request's Host header to a tenant Context and
// stores it on the request context. Unknown and deactivated hosts get 404;
// lookup infrastructure failures get 503 and are never defaulted.
func WithTenant(resolver *tenant.Resolver, logger *zap.Logger) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("tenant middleware: resolver is required")
	}
	if logger == nil {
		panic("tenant middleware: logger is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, err := resolver.Resolve(r.Context(), r.Host)
			if err != nil {
				if errors.Is(err, tenant.ErrNotFound) || errors.Is(err, tenant.ErrDisabled) {
					httpapi.WriteProblem(w, httpapi.NotFound("no tenant for this host"))
					return
				}
				logging.FromRequest(r, logger).Error("tenant resolution failed",
					zap.String("host", r.Host),
					zap.Error(err),
				)
				httpapi.WriteProblem(w, httpapi.Unavailable())
				return
			}

			ctx := tenant.WithContext(r.Context(), tc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireTenant rejects requests that resolved to the main site on routes
// that only make sense inside a tenant storefront.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc, ok := tenant.FromContext(r.Context())
		if !ok || tc.IsMainSite {
			httpapi.WriteProblem(w, httpapi.NotFound("no tenant for this host"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
