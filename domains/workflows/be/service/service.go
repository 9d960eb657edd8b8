package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	syncservice "github.com/robotika-cloud/nekazari-erp-bridge/domains/sync/be/service"
)

// Accepted workflow events.
const (
	EventInvoiceCreate = "erp.invoice.create"
	EventOrderCreate   = "erp.order.create"
	EventEnergyLog     = "erp.energy.log"
	EventProductUpdate = "erp.product.update"
	EventSyncRequest   = "sync.request"
)

// Errors returned by the service layer.
var (
	ErrInvalidPayload   = errors.New("invalid event payload")
	ErrUnknownReference = errors.New("referenced record not found")
)

// Event is the envelope workflow automations deliver.
type Event struct {
	Event   string          `json:"event"`
	Tenant  string          `json:"tenant"`
	Payload json.RawMessage `json:"payload"`
}

// Result reports how an event was handled.
type Result struct {
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	RecordID int64  `json:"record_id,omitempty"`
}

// ERPGateway covers the record-level ERP surface workflow handlers write
// through. Satisfied by the platform erp client.
type ERPGateway interface {
	CreateRecord(ctx context.Context, database, model string, fields map[string]any) (int64, error)
	UpdateRecord(ctx context.Context, database, model string, id int64, fields map[string]any) error
	SearchRecords(ctx context.Context, database, model string, domain []any, fields []string, limit int) ([]map[string]any, error)
}

// MappingSource resolves context-graph entity ids to ERP records.
// Satisfied by the sync service.
type MappingSource interface {
	GetMapping(ctx context.Context, tenantID, entityID string) (syncservice.Mapping, error)
}

// Syncer triggers sweeps, full or single-entity. Satisfied by the sync
// service.
type Syncer interface {
	FullSync(ctx context.Context, tenantID string) (syncservice.SyncStatus, error)
	SyncSingle(ctx context.Context, tenantID, entityID string) (syncservice.Mapping, error)
}

// Service dispatches workflow-automation events into tenant ERP databases.
type Service struct {
	tenants  syncservice.TenantDirectory
	erp      ERPGateway
	mappings MappingSource
	syncer   Syncer
	schemas  map[string]*jsonschema.Schema
	logger   *zap.Logger
}

// New constructs a Service with required dependencies.
func New(tenants syncservice.TenantDirectory, erp ERPGateway, mappings MappingSource, syncer Syncer, logger *zap.Logger) (*Service, error) {
	if tenants == nil {
		panic("tenant directory is required")
	}
	if erp == nil {
		panic("erp gateway is required")
	}
	if mappings == nil {
		panic("mapping source is required")
	}
	if syncer == nil {
		panic("syncer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	return &Service{
		tenants:  tenants,
		erp:      erp,
		mappings: mappings,
		syncer:   syncer,
		schemas:  schemas,
		logger:   logger,
	}, nil
}

// Handle validates and dispatches one event. Unknown event names are ignored
// rather than failed: automations evolve independently of the bridge and the
// sender retries on error responses.
func (s *Service) Handle(ctx context.Context, event Event) (Result, error) {
	schema, ok := s.schemas[event.Event]
	if !ok {
		s.logger.Warn("ignoring unknown workflow event", zap.String("event", event.Event))
		return Result{Status: "ignored", Reason: "unknown_event"}, nil
	}
	if event.Tenant == "" {
		return Result{}, fmt.Errorf("%w: tenant is required", ErrInvalidPayload)
	}
	if err := s.validate(schema, event.Payload); err != nil {
		return Result{}, err
	}

	info, err := s.tenants.Lookup(ctx, event.Tenant)
	if err != nil {
		return Result{}, err
	}

	switch event.Event {
	case EventInvoiceCreate:
		return s.createInvoice(ctx, info.DatabaseName, event.Payload)
	case EventOrderCreate:
		return s.createOrder(ctx, info.DatabaseName, event.Payload)
	case EventEnergyLog:
		return s.logEnergyReading(ctx, event.Tenant, info.DatabaseName, event.Payload)
	case EventProductUpdate:
		return s.updateProduct(ctx, event.Tenant, info.DatabaseName, event.Payload)
	case EventSyncRequest:
		return s.requestSync(ctx, event.Tenant, event.Payload)
	default:
		return Result{Status: "ignored", Reason: "unknown_event"}, nil
	}
}

func (s *Service) validate(schema *jsonschema.Schema, payload json.RawMessage) error {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	var document any
	if err := json.Unmarshal(payload, &document); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := schema.Validate(document); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func (s *Service) createInvoice(ctx context.Context, database string, payload json.RawMessage) (Result, error) {
	var req struct {
		PartnerName string  `json:"partner_name"`
		Amount      float64 `json:"amount"`
		Description string  `json:"description"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	partnerID, err := s.findPartner(ctx, database, req.PartnerName)
	if err != nil {
		return Result{}, err
	}

	description := req.Description
	if description == "" {
		description = "Workflow invoice"
	}
	recordID, err := s.erp.CreateRecord(ctx, database, "account.move", map[string]any{
		"move_type":  "out_invoice",
		"partner_id": partnerID,
		"invoice_line_ids": []any{
			[]any{0, 0, map[string]any{
				"name":       description,
				"quantity":   1,
				"price_unit": req.Amount,
			}},
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("create invoice: %w", err)
	}
	return Result{Status: "ok", RecordID: recordID}, nil
}

func (s *Service) createOrder(ctx context.Context, database string, payload json.RawMessage) (Result, error) {
	var req struct {
		PartnerName string `json:"partner_name"`
		Lines       []struct {
			EntityID string  `json:"entity_id"`
			Quantity float64 `json:"quantity"`
		} `json:"lines"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	partnerID, err := s.findPartner(ctx, database, req.PartnerName)
	if err != nil {
		return Result{}, err
	}

	orderLines := make([]any, 0, len(req.Lines))
	for _, line := range req.Lines {
		productID, err := s.findByExternalID(ctx, database, "product.template", line.EntityID)
		if err != nil {
			return Result{}, err
		}
		orderLines = append(orderLines, []any{0, 0, map[string]any{
			"product_id":      productID,
			"product_uom_qty": line.Quantity,
		}})
	}

	recordID, err := s.erp.CreateRecord(ctx, database, "sale.order", map[string]any{
		"partner_id": partnerID,
		"order_line": orderLines,
	})
	if err != nil {
		return Result{}, fmt.Errorf("create order: %w", err)
	}
	return Result{Status: "ok", RecordID: recordID}, nil
}

func (s *Service) logEnergyReading(ctx context.Context, tenantID, database string, payload json.RawMessage) (Result, error) {
	var req struct {
		EntityID  string  `json:"entity_id"`
		Value     float64 `json:"value"`
		Timestamp string  `json:"timestamp"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	mapping, err := s.mappings.GetMapping(ctx, tenantID, req.EntityID)
	if err != nil {
		if errors.Is(err, syncservice.ErrMappingNotFound) {
			return Result{}, fmt.Errorf("%w: meter %s is not synced", ErrUnknownReference, req.EntityID)
		}
		return Result{}, err
	}

	fields := map[string]any{
		"meter_id": mapping.RecordID,
		"value":    req.Value,
	}
	if req.Timestamp != "" {
		fields["x_timestamp"] = req.Timestamp
	}
	recordID, err := s.erp.CreateRecord(ctx, database, "energy.log", fields)
	if err != nil {
		return Result{}, fmt.Errorf("create energy log: %w", err)
	}
	return Result{Status: "ok", RecordID: recordID}, nil
}

func (s *Service) updateProduct(ctx context.Context, tenantID, database string, payload json.RawMessage) (Result, error) {
	var req struct {
		EntityID string         `json:"entity_id"`
		Fields   map[string]any `json:"fields"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	mapping, err := s.mappings.GetMapping(ctx, tenantID, req.EntityID)
	if err != nil {
		if errors.Is(err, syncservice.ErrMappingNotFound) {
			return Result{}, fmt.Errorf("%w: product %s is not synced", ErrUnknownReference, req.EntityID)
		}
		return Result{}, err
	}

	// Identity fields stay under the bridge's control.
	delete(req.Fields, "x_ngsi_id")
	if len(req.Fields) == 0 {
		return Result{}, fmt.Errorf("%w: no updatable fields", ErrInvalidPayload)
	}

	if err := s.erp.UpdateRecord(ctx, database, mapping.RecordKind.Model(), mapping.RecordID, req.Fields); err != nil {
		return Result{}, fmt.Errorf("update product: %w", err)
	}
	return Result{Status: "ok", RecordID: mapping.RecordID}, nil
}

// requestSync sweeps the whole tenant, or just one entity when the payload
// names it.
func (s *Service) requestSync(ctx context.Context, tenantID string, payload json.RawMessage) (Result, error) {
	var req struct {
		EntityID string `json:"entity_id"`
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}

	if req.EntityID != "" {
		mapping, err := s.syncer.SyncSingle(ctx, tenantID, req.EntityID)
		if err != nil {
			return Result{}, err
		}
		return Result{Status: "ok", RecordID: mapping.RecordID}, nil
	}

	status, err := s.syncer.FullSync(ctx, tenantID)
	if err != nil {
		return Result{}, err
	}
	return Result{Status: status.Status}, nil
}

func (s *Service) findPartner(ctx context.Context, database, name string) (int64, error) {
	records, err := s.erp.SearchRecords(ctx, database, "res.partner",
		[]any{[]any{"name", "=", name}}, []string{"id"}, 1)
	if err != nil {
		return 0, fmt.Errorf("search partner: %w", err)
	}
	if len(records) == 0 {
		return 0, fmt.Errorf("%w: partner %q", ErrUnknownReference, name)
	}
	return recordID(records[0])
}

func (s *Service) findByExternalID(ctx context.Context, database, model, entityID string) (int64, error) {
	records, err := s.erp.SearchRecords(ctx, database, model,
		[]any{[]any{"x_ngsi_id", "=", entityID}}, []string{"id"}, 1)
	if err != nil {
		return 0, fmt.Errorf("search %s: %w", model, err)
	}
	if len(records) == 0 {
		return 0, fmt.Errorf("%w: %s %q", ErrUnknownReference, model, entityID)
	}
	return recordID(records[0])
}

func recordID(record map[string]any) (int64, error) {
	switch id := record["id"].(type) {
	case int64:
		return id, nil
	case int:
		return int64(id), nil
	case float64:
		return int64(id), nil
	default:
		return 0, fmt.Errorf("unexpected id type %T", record["id"])
	}
}
