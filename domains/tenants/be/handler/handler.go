package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/robotika-cloud/nekazari-erp-bridge/domains/tenants/be/service"
	"github.com/robotika-cloud/nekazari-erp-bridge/platform/go/httpapi"
)

// Handler exposes the tenant lifecycle over HTTP.
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

// Routes returns the tenant admin routes, mounted under /tenants.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Get("/{tenantID}", h.get)
	r.Post("/{tenantID}/provision", h.provision)
	r.Delete("/{tenantID}", h.decommission)
	return r
}

type provisionRequest struct {
	AdminEmail         string   `json:"admin_email"`
	EnergyCapabilities bool     `json:"energy_capabilities"`
	ExtraCapabilities  []string `json:"extra_capabilities"`
}

type tenantResponse struct {
	TenantID              string    `json:"tenant_id"`
	DatabaseName          string    `json:"database_name"`
	Status                string    `json:"status"`
	EnergyCapabilities    bool      `json:"energy_capabilities"`
	InstalledCapabilities []string  `json:"installed_capabilities"`
	AdminEmail            *string   `json:"admin_email,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	LastError             *string   `json:"last_error,omitempty"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.svc.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]tenantResponse, 0, len(tenants))
	for _, t := range tenants {
		items = append(items, toResponse(t))
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Get(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toResponse(t))
}

func (h *Handler) provision(w http.ResponseWriter, r *http.Request) {
	// An empty body provisions with defaults.
	var req provisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httpapi.WriteProblem(w, http.StatusBadRequest, httpapi.ProblemTypeValidation,
			"Invalid request body", err.Error())
		return
	}

	t, err := h.svc.Provision(r.Context(), service.ProvisionInput{
		TenantID:           chi.URLParam(r, "tenantID"),
		AdminEmail:         req.AdminEmail,
		EnergyCapabilities: req.EnergyCapabilities,
		ExtraCapabilities:  req.ExtraCapabilities,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, toResponse(t))
}

func (h *Handler) decommission(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Decommission(r.Context(), chi.URLParam(r, "tenantID")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		httpapi.WriteProblem(w, http.StatusNotFound, httpapi.ProblemTypeNotFound,
			"Not found", err.Error())
	case errors.Is(err, service.ErrAlreadyProvisioned):
		httpapi.WriteProblem(w, http.StatusConflict, httpapi.ProblemTypeConflict,
			"Conflict", err.Error())
	default:
		h.logger.Error("tenant operation failed", zap.Error(err))
		httpapi.WriteProblem(w, http.StatusInternalServerError, httpapi.ProblemTypeInternal,
			"Internal error", "internal error")
	}
}

func toResponse(t service.Tenant) tenantResponse {
	return tenantResponse{
		TenantID:              t.TenantID,
		DatabaseName:          t.DatabaseName,
		Status:                string(t.Status),
		EnergyCapabilities:    t.EnergyCapabilities,
		InstalledCapabilities: t.InstalledCapabilities,
		AdminEmail:            t.AdminEmail,
		CreatedAt:             t.CreatedAt,
		LastError:             t.LastError,
	}
}
