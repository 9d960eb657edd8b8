package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/robotika-cloud/nekazari-erp-bridge/domains/sync/be/service"
	"github.com/robotika-cloud/nekazari-erp-bridge/platform/go/contextgraph"
	"github.com/robotika-cloud/nekazari-erp-bridge/platform/go/httpapi"
	"github.com/robotika-cloud/nekazari-erp-bridge/platform/go/transform"
)

// Handler exposes sync operations and the broker notification endpoint.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("sync service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes returns the sync routes, mounted under /sync.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{tenantID}/full", h.fullSync)
	r.Post("/{tenantID}/entity", h.syncSingle)
	r.Get("/{tenantID}/status", h.status)
	r.Get("/{tenantID}/mappings", h.listMappings)
	r.Get("/{tenantID}/mappings/{entityID}", h.getMapping)
	return r
}

type mappingResponse struct {
	TenantID   string     `json:"tenant_id"`
	EntityID   string     `json:"entity_id"`
	EntityType string     `json:"entity_type"`
	RecordID   int64      `json:"record_id"`
	RecordKind string     `json:"record_kind"`
	RecordName string     `json:"record_name,omitempty"`
	LastSync   *time.Time `json:"last_sync,omitempty"`
}

type statusResponse struct {
	TenantID       string     `json:"tenant_id"`
	Status         string     `json:"status"`
	LastSync       *time.Time `json:"last_sync,omitempty"`
	EntitiesSynced int        `json:"entities_synced"`
	Errors         []string   `json:"errors"`
}

// Notification handles POST /webhooks/ngsi: entity change notifications
// delivered by the context broker. Notifications the bridge cannot attribute
// to one of its own subscriptions are acknowledged and dropped, so the
// broker does not retry them forever.
func (h *Handler) Notification(w http.ResponseWriter, r *http.Request) {
	var n contextgraph.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		httpapi.WriteProblem(w, http.StatusBadRequest, httpapi.ProblemTypeValidation,
			"Invalid notification", err.Error())
		return
	}

	result, err := h.svc.IngestNotification(r.Context(), n)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if result.Ignored {
		httpapi.WriteJSON(w, http.StatusOK, map[string]any{
			"status": "ignored",
			"reason": "unknown_subscription",
		})
		return
	}
	notifErrors := result.Errors
	if notifErrors == nil {
		notifErrors = []string{}
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"tenant_id": result.TenantID,
		"processed": result.Processed,
		"skipped":   result.Skipped,
		"errors":    notifErrors,
	})
}

func (h *Handler) fullSync(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.FullSync(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toStatusResponse(status))
}

func (h *Handler) syncSingle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EntityID string `json:"entity_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EntityID == "" {
		httpapi.WriteProblem(w, http.StatusBadRequest, httpapi.ProblemTypeValidation,
			"Invalid request body", "entity_id is required")
		return
	}

	mapping, err := h.svc.SyncSingle(r.Context(), chi.URLParam(r, "tenantID"), req.EntityID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toMappingResponse(mapping))
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.GetSyncStatus(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toStatusResponse(status))
}

func (h *Handler) listMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.svc.ListMappings(r.Context(), chi.URLParam(r, "tenantID"), r.URL.Query().Get("type"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]mappingResponse, 0, len(mappings))
	for _, m := range mappings {
		items = append(items, toMappingResponse(m))
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) getMapping(w http.ResponseWriter, r *http.Request) {
	mapping, err := h.svc.GetMapping(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "entityID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toMappingResponse(mapping))
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrTenantNotProvisioned):
		httpapi.WriteProblem(w, http.StatusConflict, httpapi.ProblemTypeConflict,
			"Tenant not provisioned", err.Error())
	case errors.Is(err, service.ErrMappingNotFound):
		httpapi.WriteProblem(w, http.StatusNotFound, httpapi.ProblemTypeNotFound,
			"Not found", err.Error())
	case errors.Is(err, transform.ErrUnsupportedType):
		httpapi.WriteProblem(w, http.StatusUnprocessableEntity, httpapi.ProblemTypeValidation,
			"Unsupported entity type", err.Error())
	case errors.Is(err, contextgraph.ErrEntityNotFound):
		httpapi.WriteProblem(w, http.StatusNotFound, httpapi.ProblemTypeNotFound,
			"Entity not found", err.Error())
	default:
		h.logger.Error("sync operation failed", zap.Error(err))
		httpapi.WriteProblem(w, http.StatusBadGateway, httpapi.ProblemTypeUpstream,
			"Sync failed", "sync operation failed")
	}
}

func toMappingResponse(m service.Mapping) mappingResponse {
	return mappingResponse{
		TenantID:   m.TenantID,
		EntityID:   m.EntityID,
		EntityType: m.EntityType,
		RecordID:   m.RecordID,
		RecordKind: string(m.RecordKind),
		RecordName: m.RecordName,
		LastSync:   m.LastSync,
	}
}

func toStatusResponse(s service.SyncStatus) statusResponse {
	errs := s.Errors
	if errs == nil {
		errs = []string{}
	}
	return statusResponse{
		TenantID:       s.TenantID,
		Status:         s.Status,
		LastSync:       s.LastSync,
		EntitiesSynced: s.EntitiesSynced,
		Errors:         errs,
	}
}
