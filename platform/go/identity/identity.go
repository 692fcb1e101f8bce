// Package identity carries the already-authenticated caller identity through
// the request context. Credential verification happens upstream; this core
// only trusts the identity headers that middleware layer injects.
package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/alltowndelivery/platform/platform/go/httpapi"
)

// Role is the closed set of user roles on the platform.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleDriver     Role = "driver"
	RoleDispatcher Role = "dispatcher"
	RoleAdmin      Role = "admin"
)

// ParseRole validates a raw role string against the closed set.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleCustomer:
		return RoleCustomer, nil
	case RoleDriver:
		return RoleDriver, nil
	case RoleDispatcher:
		return RoleDispatcher, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Principal is the authenticated caller.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}

type ctxKey struct{}

// WithPrincipal stores the principal on the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext extracts the principal and a boolean indicating presence.
func FromContext(ctx context.Context) (Principal, bool) {
	v := ctx.Value(ctxKey{})
	if v == nil {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

// Header names populated by the upstream auth middleware.
const (
	UserIDHeader = "X-User-Id"
	RoleHeader   = "X-User-Role"
)

// TrustedHeaders reads the upstream identity headers and attaches a
// Principal when both are present and valid. Requests without identity pass
// through unauthenticated; route-level guards decide what requires one.
func TrustedHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawID := r.Header.Get(UserIDHeader)
			rawRole := r.Header.Get(RoleHeader)
			if rawID == "" || rawRole == "" {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := uuid.Parse(rawID)
			if err != nil {
				httpapi.WriteProblem(w, httpapi.Unauthorized())
				return
			}
			role, err := ParseRole(rawRole)
			if err != nil {
				httpapi.WriteProblem(w, httpapi.Unauthorized())
				return
			}

			ctx := WithPrincipal(r.Context(), Principal{UserID: userID, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects requests whose principal is missing or whose role is
// not in the allowed set.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	allowed := make(map[Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok {
				httpapi.WriteProblem(w, httpapi.Unauthorized())
				return
			}
			if _, ok := allowed[p.Role]; !ok {
				httpapi.WriteProblem(w, httpapi.Forbidden("insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
