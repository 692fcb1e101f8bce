package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alltowndelivery/platform/domains/users/be/service"
	"github.com/alltowndelivery/platform/platform/go/failover"
	"github.com/alltowndelivery/platform/platform/go/httpapi"
	"github.com/alltowndelivery/platform/platform/go/identity"
	platformlogging "github.com/alltowndelivery/platform/platform/go/logging"
	"github.com/alltowndelivery/platform/platform/go/tenant"
)

type operation string

const (
	profileOperation operation = "usersProfile"
	loyaltyOperation operation = "usersLoyalty"
	dutyOperation    operation = "usersSetDuty"
)

// Handler exposes profile and loyalty operations over HTTP.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("users service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

type profilePayload struct {
	UserID              uuid.UUID `json:"userId"`
	Role                string    `json:"role"`
	OnDuty              bool      `json:"onDuty"`
	LoyaltyPoints       int       `json:"loyaltyPoints"`
	FreeDeliveryCredits int       `json:"freeDeliveryCredits"`
	TotalDeliveries     int       `json:"totalDeliveries"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

type dutyRequest struct {
	OnDuty bool `json:"onDuty"`
}

type dutyResponse struct {
	Profile            profilePayload `json:"profile"`
	ReleasedDeliveries int            `json:"releasedDeliveries"`
}

// Profile returns the caller's tenant-scoped profile, creating it on first contact.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	tc, principal, ok := h.scope(w, r)
	if !ok {
		return
	}

	profile, err := h.svc.EnsureProfile(r.Context(), tc.TenantID, principal)
	if err != nil {
		h.respondError(w, r, err, profileOperation)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toPayload(profile))
}

// Loyalty returns the caller's loyalty counters.
func (h *Handler) Loyalty(w http.ResponseWriter, r *http.Request) {
	tc, principal, ok := h.scope(w, r)
	if !ok {
		return
	}

	summary, err := h.svc.LoyaltySummary(r.Context(), tc.TenantID, principal.UserID)
	if err != nil {
		h.respondError(w, r, err, loyaltyOperation)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, summary)
}

// SetDuty flips the driver duty flag; going off duty releases claimed deliveries.
func (h *Handler) SetDuty(w http.ResponseWriter, r *http.Request) {
	tc, principal, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req dutyRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 4<<10))
	if err := dec.Decode(&req); err != nil {
		httpapi.WriteProblem(w, httpapi.Validation("invalid request body"))
		return
	}

	profile, released, err := h.svc.SetOnDuty(r.Context(), tc.TenantID, principal, req.OnDuty)
	if err != nil {
		h.respondError(w, r, err, dutyOperation)
		return
	}

	if !req.OnDuty {
		platformlogging.FromRequest(r, h.logger).Info("driver went off duty",
			zap.String("driver_id", principal.UserID.String()),
			zap.Int("released_deliveries", released),
		)
	}
	httpapi.WriteJSON(w, http.StatusOK, dutyResponse{Profile: toPayload(profile), ReleasedDeliveries: released})
}

// scope extracts the tenant and principal every profile route requires.
func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (tenant.Context, identity.Principal, bool) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok || tc.IsMainSite {
		httpapi.WriteProblem(w, httpapi.NotFound("no tenant for this host"))
		return tenant.Context{}, identity.Principal{}, false
	}
	principal, ok := identity.FromContext(r.Context())
	if !ok {
		httpapi.WriteProblem(w, httpapi.Unauthorized())
		return tenant.Context{}, identity.Principal{}, false
	}
	return tc, principal, true
}

func toPayload(p service.Profile) profilePayload {
	return profilePayload{
		UserID:              p.UserID,
		Role:                string(p.Role),
		OnDuty:              p.OnDuty,
		LoyaltyPoints:       p.LoyaltyPoints,
		FreeDeliveryCredits: p.FreeDeliveryCredits,
		TotalDeliveries:     p.TotalDeliveries,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error, op operation) {
	logger := platformlogging.FromRequest(r, h.logger).With(zap.String("operation", string(op)))

	switch {
	case errors.Is(err, service.ErrNotDriver):
		logger.Warn("profile request rejected", zap.Error(err))
		httpapi.WriteProblem(w, httpapi.Forbidden("only drivers can change duty status"))
	case errors.Is(err, service.ErrNotFound):
		logger.Info("profile not found", zap.Error(err))
		httpapi.WriteProblem(w, httpapi.NotFound("profile not found"))
	case errors.Is(err, failover.ErrPrimaryUnavailable):
		logger.Error("profile storage unavailable", zap.Error(err))
		httpapi.WriteProblem(w, httpapi.Unavailable())
	default:
		logger.Error("profile operation failed", zap.Error(err))
		httpapi.WriteProblem(w, httpapi.Internal())
	}
}
