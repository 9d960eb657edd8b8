package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	syncservice "github.com/robotika-cloud/nekazari-erp-bridge/domains/sync/be/service"
	"github.com/robotika-cloud/nekazari-erp-bridge/domains/workflows/be/service"
)

type noTenants struct{}

func (noTenants) Lookup(_ context.Context, tenantID string) (syncservice.TenantInfo, error) {
	return syncservice.TenantInfo{}, fmt.Errorf("%w: %s", syncservice.ErrTenantNotProvisioned, tenantID)
}

type nopERP struct{}

func (nopERP) CreateRecord(context.Context, string, string, map[string]any) (int64, error) {
	return 0, nil
}
func (nopERP) UpdateRecord(context.Context, string, string, int64, map[string]any) error {
	return nil
}
func (nopERP) SearchRecords(context.Context, string, string, []any, []string, int) ([]map[string]any, error) {
	return nil, nil
}

type nopMappings struct{}

func (nopMappings) GetMapping(context.Context, string, string) (syncservice.Mapping, error) {
	return syncservice.Mapping{}, syncservice.ErrMappingNotFound
}

type nopSyncer struct{}

func (nopSyncer) FullSync(_ context.Context, tenantID string) (syncservice.SyncStatus, error) {
	return syncservice.SyncStatus{TenantID: tenantID, Status: syncservice.StatusSynced}, nil
}

func (nopSyncer) SyncSingle(_ context.Context, tenantID, entityID string) (syncservice.Mapping, error) {
	return syncservice.Mapping{TenantID: tenantID, EntityID: entityID}, nil
}

func newTestHandler(t *testing.T, secret string) *Handler {
	t.Helper()
	svc, err := service.New(noTenants{}, nopERP{}, nopMappings{}, nopSyncer{}, zap.NewNop())
	require.NoError(t, err)
	return New(svc, secret, zap.NewNop())
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestEventAcceptsValidSignature(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, "hunter2")
	body := `{"event":"erp.unknown","tenant":"farm-7","payload":{}}`

	req := httptest.NewRequest(http.MethodPost, "/webhooks/workflow", strings.NewReader(body))
	req.Header.Set(signatureHeader, sign("hunter2", body))
	rec := httptest.NewRecorder()
	h.Event(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "unknown_event")
}

func TestEventRejectsBadSignature(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, "hunter2")
	body := `{"event":"erp.unknown","tenant":"farm-7","payload":{}}`

	req := httptest.NewRequest(http.MethodPost, "/webhooks/workflow", strings.NewReader(body))
	req.Header.Set(signatureHeader, sign("wrong-secret", body))
	rec := httptest.NewRecorder()
	h.Event(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEventRejectsMissingSignature(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, "hunter2")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/workflow",
		strings.NewReader(`{"event":"erp.unknown","tenant":"farm-7"}`))
	rec := httptest.NewRecorder()
	h.Event(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEventSkipsSignatureWhenNoSecret(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, "")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/workflow",
		strings.NewReader(`{"event":"erp.unknown","tenant":"farm-7","payload":{}}`))
	rec := httptest.NewRecorder()
	h.Event(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestEventRejectsMalformedEnvelope(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, "")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/workflow", strings.NewReader(`not json`))
	rec := httptest.NewRecorder()
	h.Event(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventMapsTenantErrors(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t, "")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/workflow",
		strings.NewReader(`{"event":"sync.request","tenant":"farm-7","payload":{}}`))
	rec := httptest.NewRecorder()
	h.Event(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}
