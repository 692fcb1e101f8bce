package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alltowndelivery/platform/domains/tenants/be/service"
	"github.com/alltowndelivery/platform/platform/go/failover"
	"github.com/alltowndelivery/platform/platform/go/httpapi"
	"github.com/alltowndelivery/platform/platform/go/identity"
	platformlogging "github.com/alltowndelivery/platform/platform/go/logging"
	"github.com/alltowndelivery/platform/platform/go/tenant"
)

type operation string

const (
	contextOperation     operation = "tenantsContext"
	createOperation      operation = "tenantsCreate"
	listOperation        operation = "tenantsList"
	getOperation         operation = "tenantsGet"
	updateOperation      operation = "tenantsUpdate"
	deactivateOperation  operation = "tenantsDeactivate"
	getSettingsOperation operation = "tenantsGetSettings"
	putSettingsOperation operation = "tenantsPutSettings"
)

const maxBodyBytes = 64 << 10

// Handler exposes the tenant registry and settings over HTTP.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// AdminRoutes returns the platform-operator routes for managing tenants.
// Callers mount these behind the admin role guard.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(identity.RequireRole(identity.RoleAdmin))
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{tenantID}", h.Get)
	r.Patch("/{tenantID}", h.Update)
	r.Delete("/{tenantID}", h.Deactivate)
	return r
}

type brandingPayload struct {
	LogoURL      string `json:"logoUrl"`
	PrimaryColor string `json:"primaryColor"`
}

type tenantPayload struct {
	ID           uuid.UUID       `json:"id"`
	CompanyName  string          `json:"companyName"`
	Subdomain    *string         `json:"subdomain,omitempty"`
	CustomDomain *string         `json:"customDomain,omitempty"`
	Branding     brandingPayload `json:"branding"`
	PlanType     string          `json:"planType"`
	Active       bool            `json:"active"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type createRequest struct {
	CompanyName  string           `json:"companyName"`
	Subdomain    *string          `json:"subdomain"`
	CustomDomain *string          `json:"customDomain"`
	Branding     *brandingPayload `json:"branding"`
	PlanType     string           `json:"planType"`
}

type updateRequest struct {
	CompanyName  *string          `json:"companyName"`
	Subdomain    *string          `json:"subdomain"`
	CustomDomain *string          `json:"customDomain"`
	Branding     *brandingPayload `json:"branding"`
	PlanType     *string          `json:"planType"`
}

// TenantContext returns the routing context resolved from the request host.
// The storefront calls it on page load to decide branding and main-site mode.
func (h *Handler) TenantContext(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		h.respondError(w, r, errors.New("tenant context missing"), contextOperation)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, tc)
}

// Create registers a new tenant.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeBody(r, &req); err != nil {
		httpapi.WriteProblem(w, httpapi.Validation(err.Error()))
		return
	}

	input := service.CreateInput{
		CompanyName:  req.CompanyName,
		Subdomain:    req.Subdomain,
		CustomDomain: req.CustomDomain,
		PlanType:     service.PlanTypeFromString(req.PlanType),
	}
	if req.Branding != nil {
		input.Branding = tenant.Branding{LogoURL: req.Branding.LogoURL, PrimaryColor: req.Branding.PrimaryColor}
	}

	created, err := h.svc.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err, createOperation)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/admin/tenants/%s", created.ID))
	httpapi.WriteJSON(w, http.StatusCreated, toPayload(created))
}

// List returns active tenants.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)

	tenants, err := h.svc.List(r.Context(), limit, offset)
	if err != nil {
		h.respondError(w, r, err, listOperation)
		return
	}

	items := make([]tenantPayload, 0, len(tenants))
	for _, t := range tenants {
		items = append(items, toPayload(t))
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Get returns one tenant by id.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		httpapi.WriteProblem(w, httpapi.Validation("tenant id must be a UUID"))
		return
	}

	t, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err, getOperation)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toPayload(t))
}

// Update modifies mutable tenant fields.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		httpapi.WriteProblem(w, httpapi.Validation("tenant id must be a UUID"))
		return
	}

	var req updateRequest
	if err := decodeBody(r, &req); err != nil {
		httpapi.WriteProblem(w, httpapi.Validation(err.Error()))
		return
	}

	input := service.UpdateInput{
		CompanyName:  req.CompanyName,
		Subdomain:    req.Subdomain,
		CustomDomain: req.CustomDomain,
	}
	if req.Branding != nil {
		input.Branding = &tenant.Branding{LogoURL: req.Branding.LogoURL, PrimaryColor: req.Branding.PrimaryColor}
	}
	if req.PlanType != nil {
		plan := service.PlanTypeFromString(*req.PlanType)
		input.PlanType = &plan
	}

	updated, err := h.svc.Update(r.Context(), id, input)
	if err != nil {
		h.respondError(w, r, err, updateOperation)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toPayload(updated))
}

// Deactivate soft-disables a tenant.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		httpapi.WriteProblem(w, httpapi.Validation("tenant id must be a UUID"))
		return
	}

	if _, err := h.svc.Deactivate(r.Context(), id); err != nil {
		h.respondError(w, r, err, deactivateOperation)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSettings returns the settings document for the request's tenant.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok || tc.IsMainSite {
		httpapi.WriteProblem(w, httpapi.NotFound("no tenant for this host"))
		return
	}

	doc, err := h.svc.GetSettings(r.Context(), tc.TenantID)
	if err != nil {
		h.respondError(w, r, err, getSettingsOperation)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

// PutSettings validates and replaces the settings document for the request's tenant.
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok || tc.IsMainSite {
		httpapi.WriteProblem(w, httpapi.NotFound("no tenant for this host"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		httpapi.WriteProblem(w, httpapi.Validation("unable to read request body"))
		return
	}

	doc, err := h.svc.PutSettings(r.Context(), tc.TenantID, body)
	if err != nil {
		h.respondError(w, r, err, putSettingsOperation)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func toPayload(t service.Tenant) tenantPayload {
	return tenantPayload{
		ID:           t.ID,
		CompanyName:  t.CompanyName,
		Subdomain:    t.Subdomain,
		CustomDomain: t.CustomDomain,
		Branding:     brandingPayload{LogoURL: t.Branding.LogoURL, PrimaryColor: t.Branding.PrimaryColor},
		PlanType:     string(t.PlanType),
		Active:       t.Active,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %s", err)
	}
	return nil
}

func paginationParams(r *http.Request) (limit, offset int) {
	limit = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &limit); err != nil || limit <= 0 || limit > 200 {
			limit = 50
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &offset); err != nil || offset < 0 {
			offset = 0
		}
	}
	return limit, offset
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error, op operation) {
	logger := platformlogging.FromRequest(r, h.logger).With(zap.String("operation", string(op)))

	switch {
	case errors.Is(err, service.ErrInvalidInput):
		logger.Warn("tenant request rejected", zap.Error(err))
		httpapi.WriteProblem(w, httpapi.Validation(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		logger.Info("tenant not found", zap.Error(err))
		httpapi.WriteProblem(w, httpapi.NotFound("tenant not found"))
	case errors.Is(err, service.ErrDomainConflict):
		logger.Warn("tenant domain conflict", zap.Error(err))
		httpapi.WriteProblem(w, httpapi.Conflict("subdomain or custom domain already in use"))
	case errors.Is(err, failover.ErrPrimaryUnavailable):
		logger.Error("tenant storage unavailable", zap.Error(err))
		httpapi.WriteProblem(w, httpapi.Unavailable())
	default:
		logger.Error("tenant operation failed", zap.Error(err))
		httpapi.WriteProblem(w, httpapi.Internal())
	}
}
