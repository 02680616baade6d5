package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/cluster"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/lock"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
	tenantmiddleware "github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant/middleware"
)

const (
	problemTypeValidation   = "https://palmyra.pro/problems/validation-error"
	problemTypeNotFound     = "https://palmyra.pro/problems/not-found"
	problemTypeConflict     = "https://palmyra.pro/problems/conflict"
	problemTypeProvisioning = "https://palmyra.pro/problems/partial-provisioning"
	problemTypeUnavailable  = "https://palmyra.pro/problems/unavailable"
	problemTypeInternal     = "https://palmyra.pro/problems/internal-error"
)

// ProblemDetails is an RFC 7807 error body.
type ProblemDetails struct {
	Type        string              `json:"type"`
	Title       string              `json:"title"`
	Status      int                 `json:"status"`
	Detail      string              `json:"detail,omitempty"`
	Errors      map[string][]string `json:"errors,omitempty"`
	FailedStep  string              `json:"failedStep,omitempty"`
	Completed   []string            `json:"completedSteps,omitempty"`
	Compensated *bool               `json:"compensated,omitempty"`
}

// Handler exposes the tenant provisioning service over HTTP.
type Handler struct {
	svc        *service.Service
	topologies *cluster.Registry
	logger     *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, topologies *cluster.Registry, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if topologies == nil {
		panic("topology registry is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, topologies: topologies, logger: logger}
}

// Routes mounts the admin API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/tenants", func(r chi.Router) {
		r.Get("/", h.listTenants)
		r.Post("/", h.createTenant)
		r.Route("/{tenantId}", func(r chi.Router) {
			r.Use(tenantmiddleware.WithTenantRoute("tenantId"))
			r.Get("/", h.getTenant)
			r.Patch("/", h.updateTenant)
			r.Delete("/", h.deleteTenant)
			r.Get("/members", h.listMembers)
			r.Post("/members", h.addMember)
			r.Delete("/members/{userId}", h.removeMember)
			r.Get("/configs/{configType}", h.getConfig)
			r.Patch("/configs/{configType}", h.updateConfig)
		})
	})

	r.Get("/users/{userId}/memberships", h.userMemberships)
	r.Get("/users/{userId}/tenants", h.userTenants)

	r.Route("/partners", func(r chi.Router) {
		r.Get("/", h.listPartners)
		r.Post("/", h.createPartner)
		r.Get("/{partnerId}", h.getPartner)
		r.Post("/{partnerId}/customers", h.assignCustomer)
	})

	r.Get("/topology", h.currentTopology)
	return r
}

func (h *Handler) listTenants(w http.ResponseWriter, r *http.Request) {
	var opts service.ListTenantsOptions
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := service.Status(raw)
		opts.Status = &status
	}
	tenants, err := h.svc.ListTenants(r.Context(), opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": tenants})
}

func (h *Handler) createTenant(w http.ResponseWriter, r *http.Request) {
	var input service.CreateTenantInput
	if !h.decode(w, r, &input) {
		return
	}
	t, err := h.svc.CreateTenant(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/tenants/%s", t.ID))
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) getTenant(w http.ResponseWriter, r *http.Request) {
	route := mustRoute(r)
	t, err := h.svc.GetTenant(r.Context(), route.TenantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) updateTenant(w http.ResponseWriter, r *http.Request) {
	var input service.UpdateTenantInput
	if !h.decode(w, r, &input) {
		return
	}
	t, err := h.svc.UpdateTenant(r.Context(), mustRoute(r).TenantID, input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) deleteTenant(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTenant(r.Context(), mustRoute(r).TenantID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.svc.GetTenantMembers(r.Context(), mustRoute(r).TenantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": members})
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	var input service.AddMemberInput
	if !h.decode(w, r, &input) {
		return
	}
	m, err := h.svc.AddUserToTenant(r.Context(), mustRoute(r).TenantID, input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveUserFromTenant(r.Context(), mustRoute(r).TenantID, chi.URLParam(r, "userId")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	typ := service.ConfigType(chi.URLParam(r, "configType"))
	cfg, err := h.svc.GetTenantConfig(r.Context(), mustRoute(r).TenantID, typ)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) updateConfig(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if !h.decode(w, r, &patch) {
		return
	}
	typ := service.ConfigType(chi.URLParam(r, "configType"))
	cfg, err := h.svc.UpdateTenantConfig(r.Context(), mustRoute(r).TenantID, typ, patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) userMemberships(w http.ResponseWriter, r *http.Request) {
	memberships, err := h.svc.GetUserMemberships(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": memberships})
}

func (h *Handler) userTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.svc.GetUserTenants(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": tenants})
}

func (h *Handler) listPartners(w http.ResponseWriter, r *http.Request) {
	partners, err := h.svc.ListPartners(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": partners})
}

func (h *Handler) createPartner(w http.ResponseWriter, r *http.Request) {
	var input service.CreatePartnerInput
	if !h.decode(w, r, &input) {
		return
	}
	p, err := h.svc.CreatePartner(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/partners/%s", p.ID))
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) getPartner(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uuidParam(w, r, "partnerId")
	if !ok {
		return
	}
	p, err := h.svc.GetPartner(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) assignCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uuidParam(w, r, "partnerId")
	if !ok {
		return
	}
	var body struct {
		TenantID uuid.UUID `json:"tenantId"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	p, err := h.svc.AssignPartnerCustomer(r.Context(), id, body.TenantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) currentTopology(w http.ResponseWriter, r *http.Request) {
	topology, err := h.topologies.ResolveCurrent()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"registered": h.topologies.Names(),
		"current":    topology,
	})
}

func mustRoute(r *http.Request) tenant.Route {
	route, ok := tenant.FromContext(r.Context())
	if !ok {
		panic("tenant route middleware not mounted")
	}
	return route
}

func (h *Handler) uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeProblem(w, ProblemDetails{
			Type:   problemTypeValidation,
			Title:  "Invalid identifier",
			Status: http.StatusBadRequest,
			Detail: fmt.Sprintf("%s must be a UUID", name),
		})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeProblem(w, ProblemDetails{
			Type:   problemTypeValidation,
			Title:  "Invalid request body",
			Status: http.StatusBadRequest,
			Detail: err.Error(),
		})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeProblem(w, h.problemForError(r, err))
}

func (h *Handler) problemForError(r *http.Request, err error) ProblemDetails {
	var (
		verr   *service.ValidationError
		perr   *service.PartialProvisioningError
		cfgErr *cluster.ConfigurationError
	)
	// checked first: a partial failure unwraps to its step cause
	switch {
	case errors.As(err, &perr):
		compensated := perr.Compensated()
		platformlogging.FromRequest(r, h.logger).Error("partial provisioning", zap.Error(err))
		return ProblemDetails{
			Type:        problemTypeProvisioning,
			Title:       "Provisioning failed",
			Status:      http.StatusBadGateway,
			Detail:      perr.Error(),
			FailedStep:  perr.FailedStep,
			Completed:   perr.Completed,
			Compensated: &compensated,
		}
	case errors.As(err, &verr):
		return ProblemDetails{
			Type:   problemTypeValidation,
			Title:  "Validation failed",
			Status: http.StatusBadRequest,
			Detail: verr.Error(),
			Errors: validationErrors(verr),
		}
	case errors.Is(err, service.ErrTenantNotFound),
		errors.Is(err, service.ErrPartnerNotFound),
		errors.Is(err, service.ErrMembershipNotFound),
		errors.Is(err, service.ErrConfigNotFound):
		return ProblemDetails{Type: problemTypeNotFound, Title: "Not found", Status: http.StatusNotFound, Detail: err.Error()}
	case errors.Is(err, persistence.ErrConcurrencyConflict), errors.Is(err, lock.ErrNotAcquired):
		return ProblemDetails{Type: problemTypeConflict, Title: "Conflict", Status: http.StatusConflict, Detail: err.Error()}
	case errors.As(err, &cfgErr), errors.Is(err, service.ErrServiceClosed):
		platformlogging.FromRequest(r, h.logger).Error("tenant service unavailable", zap.Error(err))
		return ProblemDetails{Type: problemTypeUnavailable, Title: "Service unavailable", Status: http.StatusServiceUnavailable, Detail: err.Error()}
	default:
		platformlogging.FromRequest(r, h.logger).Error("tenant operation failed", zap.Error(err))
		return ProblemDetails{Type: problemTypeInternal, Title: "Internal error", Status: http.StatusInternalServerError, Detail: "internal error"}
	}
}

func validationErrors(verr *service.ValidationError) map[string][]string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(verr, &fieldErrs) {
		return nil
	}
	out := make(map[string][]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		out[fe.Namespace()] = append(out[fe.Namespace()], fe.Tag())
	}
	return out
}

func writeProblem(w http.ResponseWriter, p ProblemDetails) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
