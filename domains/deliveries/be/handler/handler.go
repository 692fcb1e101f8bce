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

	"github.com/alltowndelivery/platform/domains/deliveries/be/service"
	"github.com/alltowndelivery/platform/platform/go/failover"
	"github.com/alltowndelivery/platform/platform/go/httpapi"
	"github.com/alltowndelivery/platform/platform/go/identity"
	platformlogging "github.com/alltowndelivery/platform/platform/go/logging"
	"github.com/alltowndelivery/platform/platform/go/tenant"
)

type operation string

const (
	createOperation        operation = "deliveriesCreate"
	getOperation           operation = "deliveriesGet"
	listAvailableOperation operation = "deliveriesListAvailable"
	listMineOperation      operation = "deliveriesListMine"
	listAssignedOperation  operation = "deliveriesListAssigned"
	claimOperation         operation = "deliveriesClaim"
	updateOperation        operation = "deliveriesDriverUpdate"
	cancelOperation        operation = "deliveriesCancel"
)

const maxBodyBytes = 64 << 10

// Handler exposes the delivery lifecycle over HTTP.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("deliveries service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes returns the tenant-scoped delivery routes. Callers mount these
// behind the tenant and identity middleware.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(identity.RequireRole(identity.RoleCustomer, identity.RoleDispatcher, identity.RoleAdmin)).
		Post("/", h.Create)
	r.With(identity.RequireRole(identity.RoleDriver, identity.RoleDispatcher, identity.RoleAdmin)).
		Get("/available", h.ListAvailable)
	r.With(identity.RequireRole(identity.RoleCustomer)).
		Get("/mine", h.ListMine)
	r.With(identity.RequireRole(identity.RoleDriver)).
		Get("/assigned", h.ListAssigned)
	r.With(identity.RequireRole(identity.RoleDriver, identity.RoleDispatcher, identity.RoleAdmin)).
		Get("/{deliveryID}", h.Get)
	r.With(identity.RequireRole(identity.RoleDriver)).
		Post("/{deliveryID}/claim", h.Claim)
	r.With(identity.RequireRole(identity.RoleDriver)).
		Patch("/{deliveryID}", h.DriverUpdate)
	r.With(identity.RequireRole(identity.RoleCustomer, identity.RoleDispatcher, identity.RoleAdmin)).
		Post("/{deliveryID}/cancel", h.Cancel)
	return r
}

type createRequest struct {
	UserID          *uuid.UUID `json:"userId"`
	BusinessID      *uuid.UUID `json:"businessId"`
	PickupAddress   string     `json:"pickupAddress"`
	DeliveryAddress string     `json:"deliveryAddress"`
	ScheduledFor    *time.Time `json:"scheduledFor"`
	IsRush          bool       `json:"isRush"`
	DistanceKm      float64    `json:"distanceKm"`
	PaymentMethod   string     `json:"paymentMethod"`
	PaymentID       *string    `json:"paymentId"`
	IsPaid          bool       `json:"isPaid"`
	UseFreeDelivery bool       `json:"useFreeDelivery"`
}

type claimRequest struct {
	Notes *string `json:"notes"`
}

type driverUpdateRequest struct {
	Status *string `json:"status"`
	Notes  *string `json:"notes"`
}

type deliveryPayload struct {
	ID               uuid.UUID  `json:"id"`
	UserID           *uuid.UUID `json:"userId,omitempty"`
	BusinessID       *uuid.UUID `json:"businessId,omitempty"`
	PickupAddress    string     `json:"pickupAddress"`
	DeliveryAddress  string     `json:"deliveryAddress"`
	ScheduledFor     *time.Time `json:"scheduledFor,omitempty"`
	IsRush           bool       `json:"isRush"`
	FeeCents         int64      `json:"feeCents"`
	PaymentMethod    string     `json:"paymentMethod"`
	PaymentID        *string    `json:"paymentId,omitempty"`
	IsPaid           bool       `json:"isPaid"`
	Status           string     `json:"status"`
	ClaimedBy        *uuid.UUID `json:"claimedBy,omitempty"`
	ClaimedAt        *time.Time `json:"claimedAt,omitempty"`
	DriverNotes      string     `json:"driverNotes,omitempty"`
	UsedFreeDelivery bool       `json:"usedFreeDelivery"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// Create inserts a new delivery request. Customers always create for
// themselves; dispatchers may create phone orders for a named user or none.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	tc, principal, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req createRequest
	if err := decodeBody(r, &req); err != nil {
		httpapi.WriteProblem(w, httpapi.Validation(err.Error()))
		return
	}

	input := service.CreateInput{
		UserID:          req.UserID,
		BusinessID:      req.BusinessID,
		PickupAddress:   req.PickupAddress,
		DeliveryAddress: req.DeliveryAddress,
		ScheduledFor:    req.ScheduledFor,
		IsRush:          req.IsRush,
		DistanceKm:      req.DistanceKm,
		PaymentMethod:   req.PaymentMethod,
		PaymentID:       req.PaymentID,
		IsPaid:          req.IsPaid,
		UseFreeDelivery: req.UseFreeDelivery,
	}
	if principal.Role == identity.RoleCustomer {
		input.UserID = &principal.UserID
	}

	created, err := h.svc.Create(r.Context(), tc.TenantID, input)
	if err != nil {
		h.respondError(w, r, err, createOperation)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/deliveries/%s", created.ID))
	httpapi.WriteJSON(w, http.StatusCreated, toPayload(created))
}

// Get returns one delivery.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	tc, _, ok := h.scope(w, r)
	if !ok {
		return
	}
	deliveryID, ok := h.deliveryID(w, r)
	if !ok {
		return
	}

	d, err := h.svc.Get(r.Context(), tc.TenantID, deliveryID)
	if err != nil {
		h.respondError(w, r, err, getOperation)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toPayload(d))
}

// ListAvailable returns the tenant's unclaimed requests.
func (h *Handler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	tc, _, ok := h.scope(w, r)
	if !ok {
		return
	}

	items, err := h.svc.ListAvailable(r.Context(), tc.TenantID)
	if err != nil {
		h.respondError(w, r, err, listAvailableOperation)
		return
	}
	h.writeList(w, items)
}

// ListMine returns the calling customer's requests.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	tc, principal, ok := h.scope(w, r)
	if !ok {
		return
	}

	items, err := h.svc.ListForUser(r.Context(), tc.TenantID, principal.UserID)
	if err != nil {
		h.respondError(w, r, err, listMineOperation)
		return
	}
	h.writeList(w, items)
}

// ListAssigned returns the calling driver's claimed and in-progress deliveries.
func (h *Handler) ListAssigned(w http.ResponseWriter, r *http.Request) {
	tc, principal, ok := h.scope(w, r)
	if !ok {
		return
	}

	items, err := h.svc.ListForDriver(r.Context(), tc.TenantID, principal.UserID)
	if err != nil {
		h.respondError(w, r, err, listAssignedOperation)
		return
	}
	h.writeList(w, items)
}

// Claim exclusively assigns an available delivery to the calling driver.
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	tc, principal, ok := h.scope(w, r)
	if !ok {
		return
	}
	deliveryID, ok := h.deliveryID(w, r)
	if !ok {
		return
	}

	var req claimRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			httpapi.WriteProblem(w, httpapi.Validation(err.Error()))
			return
		}
	}

	d, err := h.svc.Claim(r.Context(), tc.TenantID, deliveryID, principal.UserID, req.Notes)
	if err != nil {
		h.respondError(w, r, err, claimOperation)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toPayload(d))
}

// DriverUpdate applies a driver's transition or notes to a delivery they own.
func (h *Handler) DriverUpdate(w http.ResponseWriter, r *http.Request) {
	tc, principal, ok := h.scope(w, r)
	if !ok {
		return
	}
	deliveryID, ok := h.deliveryID(w, r)
	if !ok {
		return
	}

	var req driverUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		httpapi.WriteProblem(w, httpapi.Validation(err.Error()))
		return
	}

	update := service.DriverUpdate{Notes: req.Notes}
	if req.Status != nil {
		status, err := service.ParseStatus(*req.Status)
		if err != nil {
			httpapi.WriteProblem(w, httpapi.Validation(err.Error()))
			return
		}
		update.Status = &status
	}

	d, err := h.svc.UpdateForDriver(r.Context(), tc.TenantID, deliveryID, principal.UserID, update)
	if err != nil {
		h.respondError(w, r, err, updateOperation)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toPayload(d))
}

// Cancel terminates an available or claimed delivery.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	tc, principal, ok := h.scope(w, r)
	if !ok {
		return
	}
	deliveryID, ok := h.deliveryID(w, r)
	if !ok {
		return
	}

	d, err := h.svc.Cancel(r.Context(), tc.TenantID, deliveryID, principal)
	if err != nil {
		h.respondError(w, r, err, cancelOperation)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toPayload(d))
}

// scope extracts the tenant and principal every delivery route requires.
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

func (h *Handler) deliveryID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "deliveryID"))
	if err != nil {
		httpapi.WriteProblem(w, httpapi.Validation("delivery id must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeList(w http.ResponseWriter, items []service.Delivery) {
	payloads := make([]deliveryPayload, 0, len(items))
	for _, d := range items {
		payloads = append(payloads, toPayload(d))
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"items": payloads})
}

func toPayload(d service.Delivery) deliveryPayload {
	return deliveryPayload{
		ID:               d.ID,
		UserID:           d.UserID,
		BusinessID:       d.BusinessID,
		PickupAddress:    d.PickupAddress,
		DeliveryAddress:  d.DeliveryAddress,
		ScheduledFor:     d.ScheduledFor,
		IsRush:           d.IsRush,
		FeeCents:         d.FeeCents,
		PaymentMethod:    d.PaymentMethod,
		PaymentID:        d.PaymentID,
		IsPaid:           d.IsPaid,
		Status:           string(d.Status),
		ClaimedBy:        d.ClaimedBy,
		ClaimedAt:        d.ClaimedAt,
		DriverNotes:      d.DriverNotes,
		UsedFreeDelivery: d.UsedFreeDelivery,
		CreatedAt:        d.CreatedAt,
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

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error, op operation) {
	logger := platformlogging.FromRequest(r, h.logger).With(zap.String("operation", string(op)))

	switch {
	case errors.Is(err, service.ErrInvalidInput):
		logger.Warn("delivery request rejected", zap.Error(err))
		httpapi.WriteProblem(w, httpapi.Validation(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		logger.Info("delivery not found", zap.Error(err))
		httpapi.WriteProblem(w, httpapi.NotFound("delivery not found"))
	case errors.Is(err, service.ErrAlreadyClaimed):
		logger.Info("delivery claim lost", zap.Error(err))
		httpapi.WriteProblem(w, httpapi.Conflict("delivery already claimed"))
	case errors.Is(err, service.ErrStateConflict):
		logger.Info("delivery state conflict", zap.Error(err))
		httpapi.WriteProblem(w, httpapi.Conflict(err.Error()))
	case errors.Is(err, service.ErrNotClaimOwner):
		logger.Warn("delivery ownership violation", zap.Error(err))
		httpapi.WriteProblem(w, httpapi.Forbidden("delivery is claimed by another driver"))
	case errors.Is(err, service.ErrNotOwner):
		logger.Warn("delivery ownership violation", zap.Error(err))
		httpapi.WriteProblem(w, httpapi.Forbidden("delivery does not belong to caller"))
	case errors.Is(err, service.ErrNoFreeCredit):
		logger.Info("free delivery rejected", zap.Error(err))
		httpapi.WriteProblem(w, httpapi.Validation("no free delivery credit available"))
	case errors.Is(err, failover.ErrPrimaryUnavailable):
		logger.Error("delivery storage unavailable", zap.Error(err))
		httpapi.WriteProblem(w, httpapi.Unavailable())
	default:
		logger.Error("delivery operation failed", zap.Error(err))
		httpapi.WriteProblem(w, httpapi.Internal())
	}
}
