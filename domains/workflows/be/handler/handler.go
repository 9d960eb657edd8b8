package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	syncservice "github.com/robotika-cloud/nekazari-erp-bridge/domains/sync/be/service"
	"github.com/robotika-cloud/nekazari-erp-bridge/domains/workflows/be/service"
	"github.com/robotika-cloud/nekazari-erp-bridge/platform/go/httpapi"
)

// signatureHeader carries the hex HMAC-SHA256 of the raw request body.
const signatureHeader = "X-Webhook-Signature"

const maxEventBody = 1 << 20

// Handler exposes the workflow-automation webhook.
type Handler struct {
	svc    *service.Service
	secret []byte
	logger *zap.Logger
}

// New constructs a Handler. An empty secret disables signature checking,
// which is only acceptable behind a trusted ingress.
func New(svc *service.Service, secret string, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("workflows service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, secret: []byte(secret), logger: logger}
}

// Event handles POST /webhooks/workflow.
func (h *Handler) Event(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		httpapi.WriteProblem(w, http.StatusBadRequest, httpapi.ProblemTypeValidation,
			"Invalid request body", err.Error())
		return
	}

	if len(h.secret) > 0 && !h.verifySignature(body, r.Header.Get(signatureHeader)) {
		httpapi.WriteProblem(w, http.StatusUnauthorized, httpapi.ProblemTypeValidation,
			"Invalid signature", "webhook signature mismatch")
		return
	}

	var event service.Event
	if err := json.Unmarshal(body, &event); err != nil {
		httpapi.WriteProblem(w, http.StatusBadRequest, httpapi.ProblemTypeValidation,
			"Invalid event envelope", err.Error())
		return
	}

	result, err := h.svc.Handle(r.Context(), event)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) verifySignature(body []byte, got string) bool {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(got))
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidPayload):
		httpapi.WriteProblem(w, http.StatusBadRequest, httpapi.ProblemTypeValidation,
			"Invalid event payload", err.Error())
	case errors.Is(err, service.ErrUnknownReference):
		httpapi.WriteProblem(w, http.StatusUnprocessableEntity, httpapi.ProblemTypeValidation,
			"Unknown reference", err.Error())
	case errors.Is(err, syncservice.ErrTenantNotProvisioned):
		httpapi.WriteProblem(w, http.StatusConflict, httpapi.ProblemTypeConflict,
			"Tenant not provisioned", err.Error())
	default:
		h.logger.Error("workflow event failed", zap.Error(err))
		httpapi.WriteProblem(w, http.StatusBadGateway, httpapi.ProblemTypeUpstream,
			"Event failed", "workflow event failed")
	}
}
