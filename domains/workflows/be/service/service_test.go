package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	syncservice "github.com/robotika-cloud/nekazari-erp-bridge/domains/sync/be/service"
)

type fakeDirectory struct {
	tenants map[string]syncservice.TenantInfo
}

func (f *fakeDirectory) Lookup(_ context.Context, tenantID string) (syncservice.TenantInfo, error) {
	info, ok := f.tenants[tenantID]
	if !ok || !info.Active {
		return syncservice.TenantInfo{}, fmt.Errorf("%w: %s", syncservice.ErrTenantNotProvisioned, tenantID)
	}
	return info, nil
}

type createdRecord struct {
	database string
	model    string
	fields   map[string]any
}

type fakeERP struct {
	created []createdRecord
	updated []createdRecord
	// search results keyed "model/field=value"
	searchResults map[string][]map[string]any
}

func newFakeERP() *fakeERP {
	return &fakeERP{searchResults: make(map[string][]map[string]any)}
}

func searchKey(model string, domain []any) string {
	clause := domain[0].([]any)
	return fmt.Sprintf("%s/%v=%v", model, clause[0], clause[2])
}

func (f *fakeERP) CreateRecord(_ context.Context, database, model string, fields map[string]any) (int64, error) {
	f.created = append(f.created, createdRecord{database: database, model: model, fields: fields})
	return int64(100 + len(f.created)), nil
}

func (f *fakeERP) UpdateRecord(_ context.Context, database, model string, id int64, fields map[string]any) error {
	f.updated = append(f.updated, createdRecord{database: database, model: model, fields: fields})
	return nil
}

func (f *fakeERP) SearchRecords(_ context.Context, _ string, model string, domain []any, _ []string, _ int) ([]map[string]any, error) {
	return f.searchResults[searchKey(model, domain)], nil
}

type fakeMappings struct {
	mappings map[string]syncservice.Mapping
}

func (f *fakeMappings) GetMapping(_ context.Context, tenantID, entityID string) (syncservice.Mapping, error) {
	m, ok := f.mappings[tenantID+"/"+entityID]
	if !ok {
		return syncservice.Mapping{}, syncservice.ErrMappingNotFound
	}
	return m, nil
}

type fakeSyncer struct {
	swept   []string
	singles []string
}

func (f *fakeSyncer) FullSync(_ context.Context, tenantID string) (syncservice.SyncStatus, error) {
	f.swept = append(f.swept, tenantID)
	return syncservice.SyncStatus{TenantID: tenantID, Status: syncservice.StatusSynced}, nil
}

func (f *fakeSyncer) SyncSingle(_ context.Context, tenantID, entityID string) (syncservice.Mapping, error) {
	f.singles = append(f.singles, tenantID+"/"+entityID)
	return syncservice.Mapping{TenantID: tenantID, EntityID: entityID, RecordID: 77}, nil
}

type testDeps struct {
	erp      *fakeERP
	mappings *fakeMappings
	syncer   *fakeSyncer
}

func newTestService(t *testing.T) (*Service, *testDeps) {
	t.Helper()
	deps := &testDeps{
		erp:      newFakeERP(),
		mappings: &fakeMappings{mappings: make(map[string]syncservice.Mapping)},
		syncer:   &fakeSyncer{},
	}
	dir := &fakeDirectory{tenants: map[string]syncservice.TenantInfo{
		"farm-7": {DatabaseName: "nkz_odoo_farm-7", Active: true},
	}}
	svc, err := New(dir, deps.erp, deps.mappings, deps.syncer, zap.NewNop())
	require.NoError(t, err)
	return svc, deps
}

func event(name, tenant, payload string) Event {
	return Event{Event: name, Tenant: tenant, Payload: json.RawMessage(payload)}
}

func TestHandleIgnoresUnknownEvents(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	result, err := svc.Handle(context.Background(), event("erp.timetravel", "farm-7", `{}`))
	require.NoError(t, err)
	require.Equal(t, "ignored", result.Status)
	require.Equal(t, "unknown_event", result.Reason)
}

func TestHandleValidatesPayload(t *testing.T) {
	t.Parallel()

	svc, deps := newTestService(t)

	_, err := svc.Handle(context.Background(),
		event(EventInvoiceCreate, "farm-7", `{"partner_name":"ACME"}`))
	require.ErrorIs(t, err, ErrInvalidPayload)

	_, err = svc.Handle(context.Background(),
		event(EventInvoiceCreate, "farm-7", `{"partner_name":"ACME","amount":10,"extra":true}`))
	require.ErrorIs(t, err, ErrInvalidPayload)

	require.Empty(t, deps.erp.created)
}

func TestHandleRequiresProvisionedTenant(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	_, err := svc.Handle(context.Background(),
		event(EventInvoiceCreate, "ghost", `{"partner_name":"ACME","amount":10}`))
	require.ErrorIs(t, err, syncservice.ErrTenantNotProvisioned)
}

func TestInvoiceCreate(t *testing.T) {
	t.Parallel()

	svc, deps := newTestService(t)
	deps.erp.searchResults["res.partner/name=ACME"] = []map[string]any{{"id": int64(12)}}

	result, err := svc.Handle(context.Background(),
		event(EventInvoiceCreate, "farm-7", `{"partner_name":"ACME","amount":42.5,"description":"August harvest"}`))
	require.NoError(t, err)
	require.Equal(t, "ok", result.Status)
	require.NotZero(t, result.RecordID)

	require.Len(t, deps.erp.created, 1)
	created := deps.erp.created[0]
	require.Equal(t, "nkz_odoo_farm-7", created.database)
	require.Equal(t, "account.move", created.model)
	require.Equal(t, "out_invoice", created.fields["move_type"])
	require.Equal(t, int64(12), created.fields["partner_id"])
}

func TestInvoiceCreateUnknownPartner(t *testing.T) {
	t.Parallel()

	svc, deps := newTestService(t)
	_, err := svc.Handle(context.Background(),
		event(EventInvoiceCreate, "farm-7", `{"partner_name":"Nobody","amount":10}`))
	require.ErrorIs(t, err, ErrUnknownReference)
	require.Empty(t, deps.erp.created)
}

func TestOrderCreateResolvesProductsByExternalID(t *testing.T) {
	t.Parallel()

	svc, deps := newTestService(t)
	deps.erp.searchResults["res.partner/name=ACME"] = []map[string]any{{"id": int64(12)}}
	deps.erp.searchResults["product.template/x_ngsi_id=urn:ngsi-ld:AgriParcel:p1"] =
		[]map[string]any{{"id": int64(41)}}

	result, err := svc.Handle(context.Background(), event(EventOrderCreate, "farm-7",
		`{"partner_name":"ACME","lines":[{"entity_id":"urn:ngsi-ld:AgriParcel:p1","quantity":3}]}`))
	require.NoError(t, err)
	require.Equal(t, "ok", result.Status)

	require.Len(t, deps.erp.created, 1)
	created := deps.erp.created[0]
	require.Equal(t, "sale.order", created.model)
	lines := created.fields["order_line"].([]any)
	require.Len(t, lines, 1)
	line := lines[0].([]any)[2].(map[string]any)
	require.Equal(t, int64(41), line["product_id"])
	require.Equal(t, 3.0, line["product_uom_qty"])
}

func TestEnergyLogUsesMeterMapping(t *testing.T) {
	t.Parallel()

	svc, deps := newTestService(t)
	deps.mappings.mappings["farm-7/urn:ngsi-ld:EnergyMeter:m1"] = syncservice.Mapping{
		TenantID: "farm-7",
		EntityID: "urn:ngsi-ld:EnergyMeter:m1",
		RecordID: 55,
	}

	result, err := svc.Handle(context.Background(), event(EventEnergyLog, "farm-7",
		`{"entity_id":"urn:ngsi-ld:EnergyMeter:m1","value":17.3,"timestamp":"2026-08-31T10:00:00Z"}`))
	require.NoError(t, err)
	require.Equal(t, "ok", result.Status)

	require.Len(t, deps.erp.created, 1)
	created := deps.erp.created[0]
	require.Equal(t, "energy.log", created.model)
	require.Equal(t, int64(55), created.fields["meter_id"])
	require.Equal(t, 17.3, created.fields["value"])
}

func TestEnergyLogUnsyncedMeter(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	_, err := svc.Handle(context.Background(), event(EventEnergyLog, "farm-7",
		`{"entity_id":"urn:ngsi-ld:EnergyMeter:ghost","value":1}`))
	require.ErrorIs(t, err, ErrUnknownReference)
}

func TestProductUpdateProtectsIdentityFields(t *testing.T) {
	t.Parallel()

	svc, deps := newTestService(t)
	deps.mappings.mappings["farm-7/urn:ngsi-ld:AgriParcel:p1"] = syncservice.Mapping{
		TenantID:   "farm-7",
		EntityID:   "urn:ngsi-ld:AgriParcel:p1",
		RecordID:   41,
		RecordKind: "product",
	}

	result, err := svc.Handle(context.Background(), event(EventProductUpdate, "farm-7",
		`{"entity_id":"urn:ngsi-ld:AgriParcel:p1","fields":{"list_price":9.5,"x_ngsi_id":"urn:evil"}}`))
	require.NoError(t, err)
	require.Equal(t, int64(41), result.RecordID)

	require.Len(t, deps.erp.updated, 1)
	updated := deps.erp.updated[0]
	require.Equal(t, "product.template", updated.model)
	require.Equal(t, 9.5, updated.fields["list_price"])
	require.NotContains(t, updated.fields, "x_ngsi_id")
}

func TestSyncRequestTriggersFullSweep(t *testing.T) {
	t.Parallel()

	svc, deps := newTestService(t)
	result, err := svc.Handle(context.Background(), event(EventSyncRequest, "farm-7", `{}`))
	require.NoError(t, err)
	require.Equal(t, syncservice.StatusSynced, result.Status)
	require.Equal(t, []string{"farm-7"}, deps.syncer.swept)
}

func TestSyncRequestWithEntityIDSyncsSingle(t *testing.T) {
	t.Parallel()

	svc, deps := newTestService(t)
	result, err := svc.Handle(context.Background(), event(EventSyncRequest, "farm-7",
		`{"entity_id":"urn:ngsi-ld:AgriParcel:p1"}`))
	require.NoError(t, err)
	require.Equal(t, "ok", result.Status)
	require.Equal(t, int64(77), result.RecordID)

	require.Equal(t, []string{"farm-7/urn:ngsi-ld:AgriParcel:p1"}, deps.syncer.singles)
	require.Empty(t, deps.syncer.swept)
}
