package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/robotika-cloud/nekazari-erp-bridge/platform/go/contextgraph"
	"github.com/robotika-cloud/nekazari-erp-bridge/platform/go/subscription"
	"github.com/robotika-cloud/nekazari-erp-bridge/platform/go/transform"
)

// Errors returned by the service layer.
var (
	ErrTenantNotProvisioned = errors.New("tenant not provisioned")
	ErrMappingNotFound      = errors.New("entity mapping not found")
	ErrStatusNotFound       = errors.New("sync status not found")
)

// Sync status values reported per tenant.
const (
	StatusNeverSynced      = "never_synced"
	StatusSynced           = "synced"
	StatusSyncedWithErrors = "synced_with_errors"
)

// Mapping links a context-graph entity to the ERP record it produced.
type Mapping struct {
	TenantID   string
	EntityID   string
	EntityType string
	RecordID   int64
	RecordKind transform.RecordKind
	RecordName string
	LastSync   *time.Time
	CreatedAt  time.Time
}

// SyncStatus is the outcome of a tenant's most recent full sweep.
type SyncStatus struct {
	TenantID       string
	Status         string
	LastSync       *time.Time
	EntitiesSynced int
	Errors         []string
	UpdatedAt      time.Time
}

// NotificationResult summarizes how a broker notification was handled.
type NotificationResult struct {
	TenantID  string
	Processed int
	Skipped   int
	Errors    []string
	Ignored   bool
}

// Repository abstracts mapping and status persistence.
type Repository interface {
	GetMapping(ctx context.Context, tenantID, entityID string) (Mapping, error)
	ListMappings(ctx context.Context, tenantID, entityType string) ([]Mapping, error)
	UpsertMapping(ctx context.Context, m Mapping) error
	GetStatus(ctx context.Context, tenantID string) (SyncStatus, error)
	PutStatus(ctx context.Context, s SyncStatus) error
}

// Config tunes the sync service.
type Config struct {
	// FullSyncWorkers bounds the entity fan-out during a full sweep.
	FullSyncWorkers int
	// PageLimit caps how many entities of one type a sweep pulls from the
	// broker.
	PageLimit int
}

// Service syncs context-graph entities into per-tenant ERP databases.
type Service struct {
	repo    Repository
	tenants TenantDirectory
	erp     ERPGateway
	graph   GraphSource
	cfg     Config
	logger  *zap.Logger
	locks   *keyedLocks
	nowFn   func() time.Time
}

// New constructs a Service with required dependencies.
func New(repo Repository, tenants TenantDirectory, erp ERPGateway, graph GraphSource, cfg Config, logger *zap.Logger) *Service {
	if repo == nil {
		panic("sync repo is required")
	}
	if tenants == nil {
		panic("tenant directory is required")
	}
	if erp == nil {
		panic("erp gateway is required")
	}
	if graph == nil {
		panic("graph source is required")
	}
	if cfg.FullSyncWorkers <= 0 {
		cfg.FullSyncWorkers = 8
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:    repo,
		tenants: tenants,
		erp:     erp,
		graph:   graph,
		cfg:     cfg,
		logger:  logger,
		locks:   newKeyedLocks(),
		nowFn:   time.Now,
	}
}

// UpsertEntity pushes one entity into the tenant's ERP database. The first
// sync of an entity creates a record and a durable mapping; every later sync
// updates the same record in place. Unsupported entity types are rejected
// with transform.ErrUnsupportedType and leave no trace.
func (s *Service) UpsertEntity(ctx context.Context, tenantID string, entity contextgraph.Entity) (Mapping, error) {
	kind, err := transform.Classify(entity.Type)
	if err != nil {
		return Mapping{}, err
	}
	fields, err := transform.Transform(entity, kind)
	if err != nil {
		return Mapping{}, err
	}

	info, err := s.tenants.Lookup(ctx, tenantID)
	if err != nil {
		return Mapping{}, err
	}

	unlock := s.locks.lock(tenantID + "\x00" + entity.ID)
	defer unlock()

	now := s.nowFn().UTC()
	existing, err := s.repo.GetMapping(ctx, tenantID, entity.ID)
	switch {
	case err == nil:
		if err := s.erp.UpdateRecord(ctx, info.DatabaseName, existing.RecordKind.Model(), existing.RecordID, fields); err != nil {
			return Mapping{}, fmt.Errorf("update %s record %d: %w", existing.RecordKind, existing.RecordID, err)
		}
		existing.EntityType = entity.Type
		existing.RecordName = fields.DisplayName()
		existing.LastSync = &now
		if err := s.repo.UpsertMapping(ctx, existing); err != nil {
			return Mapping{}, err
		}
		s.logger.Debug("entity updated",
			zap.String("tenant_id", tenantID),
			zap.String("entity_id", entity.ID),
			zap.Int64("record_id", existing.RecordID))
		return existing, nil

	case errors.Is(err, ErrMappingNotFound):
		recordID, err := s.erp.CreateRecord(ctx, info.DatabaseName, kind.Model(), fields)
		if err != nil {
			return Mapping{}, fmt.Errorf("create %s record: %w", kind, err)
		}
		m := Mapping{
			TenantID:   tenantID,
			EntityID:   entity.ID,
			EntityType: entity.Type,
			RecordID:   recordID,
			RecordKind: kind,
			RecordName: fields.DisplayName(),
			LastSync:   &now,
			CreatedAt:  now,
		}
		if err := s.repo.UpsertMapping(ctx, m); err != nil {
			return Mapping{}, err
		}
		s.logger.Debug("entity created",
			zap.String("tenant_id", tenantID),
			zap.String("entity_id", entity.ID),
			zap.Int64("record_id", recordID))
		return m, nil

	default:
		return Mapping{}, err
	}
}

// FullSync sweeps every supported entity type from the broker into the
// tenant's ERP database. Individual entity failures are contained: the sweep
// continues, each failure is recorded against the tenant's sync status, and
// the surviving entities keep their mappings. Cancellation stops the sweep
// but keeps whatever progress was made.
func (s *Service) FullSync(ctx context.Context, tenantID string) (SyncStatus, error) {
	if _, err := s.tenants.Lookup(ctx, tenantID); err != nil {
		return SyncStatus{}, err
	}

	var (
		mu       sync.Mutex
		synced   int
		failures []string
	)
	record := func(msg string) {
		mu.Lock()
		failures = append(failures, msg)
		mu.Unlock()
	}

	g := &errgroup.Group{}
	g.SetLimit(s.cfg.FullSyncWorkers)

	for _, entityType := range transform.EntityTypes() {
		entities, err := s.graph.EntitiesByType(ctx, tenantID, entityType, s.cfg.PageLimit)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			record(fmt.Sprintf("%s: list entities: %v", entityType, err))
			continue
		}
		for _, entity := range entities {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				if _, err := s.UpsertEntity(ctx, tenantID, entity); err != nil {
					record(fmt.Sprintf("%s: %v", entity.ID, err))
					return nil
				}
				mu.Lock()
				synced++
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return SyncStatus{}, err
	}

	sort.Strings(failures)
	now := s.nowFn().UTC()
	status := SyncStatus{
		TenantID:       tenantID,
		Status:         StatusSynced,
		LastSync:       &now,
		EntitiesSynced: synced,
		Errors:         failures,
	}
	if len(failures) > 0 {
		status.Status = StatusSyncedWithErrors
	}
	if err := s.repo.PutStatus(ctx, status); err != nil {
		return SyncStatus{}, err
	}

	s.logger.Info("full sync finished",
		zap.String("tenant_id", tenantID),
		zap.String("status", status.Status),
		zap.Int("entities_synced", synced),
		zap.Int("failures", len(failures)))
	return status, nil
}

// SyncSingle re-reads one entity from the broker and pushes it.
func (s *Service) SyncSingle(ctx context.Context, tenantID, entityID string) (Mapping, error) {
	if _, err := s.tenants.Lookup(ctx, tenantID); err != nil {
		return Mapping{}, err
	}
	entity, err := s.graph.Entity(ctx, tenantID, entityID)
	if err != nil {
		return Mapping{}, fmt.Errorf("fetch entity: %w", err)
	}
	return s.UpsertEntity(ctx, tenantID, entity)
}

// IngestNotification handles a broker notification. The owning tenant is
// recovered from the subscription id; notifications for foreign or unknown
// subscriptions are ignored rather than failed, since the broker retries on
// error. Unsupported entity types inside the payload are skipped the same
// way, and a failing entity never blocks the rest of the batch: its error is
// recorded in the result and the remaining entities still sync.
func (s *Service) IngestNotification(ctx context.Context, n contextgraph.Notification) (NotificationResult, error) {
	tenantID, ok := subscription.ParseTenant(n.SubscriptionID)
	if !ok {
		s.logger.Warn("ignoring notification for foreign subscription",
			zap.String("subscription_id", n.SubscriptionID))
		return NotificationResult{Ignored: true}, nil
	}
	if _, err := s.tenants.Lookup(ctx, tenantID); err != nil {
		if errors.Is(err, ErrTenantNotProvisioned) {
			s.logger.Warn("ignoring notification for unprovisioned tenant",
				zap.String("tenant_id", tenantID),
				zap.String("subscription_id", n.SubscriptionID))
			return NotificationResult{TenantID: tenantID, Ignored: true}, nil
		}
		return NotificationResult{}, err
	}

	result := NotificationResult{TenantID: tenantID}
	for _, entity := range n.Data {
		if _, err := s.UpsertEntity(ctx, tenantID, entity); err != nil {
			if errors.Is(err, transform.ErrUnsupportedType) {
				result.Skipped++
				continue
			}
			s.logger.Warn("notification entity failed",
				zap.String("tenant_id", tenantID),
				zap.String("entity_id", entity.ID),
				zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", entity.ID, err))
			continue
		}
		result.Processed++
	}
	return result, nil
}

// GetSyncStatus reports a tenant's latest sweep outcome; tenants that were
// never swept report never_synced.
func (s *Service) GetSyncStatus(ctx context.Context, tenantID string) (SyncStatus, error) {
	if _, err := s.tenants.Lookup(ctx, tenantID); err != nil {
		return SyncStatus{}, err
	}
	status, err := s.repo.GetStatus(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrStatusNotFound) {
			return SyncStatus{TenantID: tenantID, Status: StatusNeverSynced}, nil
		}
		return SyncStatus{}, err
	}
	return status, nil
}

// ListMappings returns a tenant's mappings, optionally filtered by type.
func (s *Service) ListMappings(ctx context.Context, tenantID, entityType string) ([]Mapping, error) {
	return s.repo.ListMappings(ctx, tenantID, entityType)
}

// GetMapping returns the mapping for one entity.
func (s *Service) GetMapping(ctx context.Context, tenantID, entityID string) (Mapping, error) {
	return s.repo.GetMapping(ctx, tenantID, entityID)
}
