package repo

import (
	"context"
	"errors"

	"github.com/robotika-cloud/nekazari-erp-bridge/domains/sync/be/service"
	"github.com/robotika-cloud/nekazari-erp-bridge/platform/go/persistence"
	"github.com/robotika-cloud/nekazari-erp-bridge/platform/go/transform"
)

// Postgres backs the sync repository with the shared entity_mappings and
// sync_status tables.
type Postgres struct {
	mappings *persistence.MappingStore
	statuses *persistence.SyncStatusStore
}

// NewPostgres wraps the two stores.
func NewPostgres(mappings *persistence.MappingStore, statuses *persistence.SyncStatusStore) *Postgres {
	if mappings == nil || statuses == nil {
		panic("mapping and status stores are required")
	}
	return &Postgres{mappings: mappings, statuses: statuses}
}

func (p *Postgres) GetMapping(ctx context.Context, tenantID, entityID string) (service.Mapping, error) {
	rec, err := p.mappings.Get(ctx, tenantID, entityID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return service.Mapping{}, service.ErrMappingNotFound
		}
		return service.Mapping{}, err
	}
	return fromMappingRecord(rec), nil
}

func (p *Postgres) ListMappings(ctx context.Context, tenantID, entityType string) ([]service.Mapping, error) {
	records, err := p.mappings.List(ctx, tenantID, entityType)
	if err != nil {
		return nil, err
	}
	mappings := make([]service.Mapping, 0, len(records))
	for _, rec := range records {
		mappings = append(mappings, fromMappingRecord(rec))
	}
	return mappings, nil
}

func (p *Postgres) UpsertMapping(ctx context.Context, m service.Mapping) error {
	return p.mappings.Upsert(ctx, persistence.EntityMapping{
		TenantID:   m.TenantID,
		EntityID:   m.EntityID,
		EntityType: m.EntityType,
		RecordID:   m.RecordID,
		RecordKind: string(m.RecordKind),
		RecordName: m.RecordName,
		LastSync:   m.LastSync,
	})
}

func (p *Postgres) GetStatus(ctx context.Context, tenantID string) (service.SyncStatus, error) {
	rec, err := p.statuses.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return service.SyncStatus{}, service.ErrStatusNotFound
		}
		return service.SyncStatus{}, err
	}
	return service.SyncStatus{
		TenantID:       rec.TenantID,
		Status:         rec.Status,
		LastSync:       rec.LastSync,
		EntitiesSynced: rec.EntitiesSynced,
		Errors:         rec.Errors,
		UpdatedAt:      rec.UpdatedAt,
	}, nil
}

func (p *Postgres) PutStatus(ctx context.Context, status service.SyncStatus) error {
	return p.statuses.Put(ctx, persistence.SyncStatusRecord{
		TenantID:       status.TenantID,
		Status:         status.Status,
		LastSync:       status.LastSync,
		EntitiesSynced: status.EntitiesSynced,
		Errors:         status.Errors,
	})
}

// PurgeTenant drops every mapping and status row a tenant owns. Used by the
// tenants domain on decommission.
func (p *Postgres) PurgeTenant(ctx context.Context, tenantID string) error {
	if err := p.mappings.DeleteByTenant(ctx, tenantID); err != nil {
		return err
	}
	return p.statuses.Delete(ctx, tenantID)
}

func fromMappingRecord(rec persistence.EntityMapping) service.Mapping {
	return service.Mapping{
		TenantID:   rec.TenantID,
		EntityID:   rec.EntityID,
		EntityType: rec.EntityType,
		RecordID:   rec.RecordID,
		RecordKind: transform.RecordKind(rec.RecordKind),
		RecordName: rec.RecordName,
		LastSync:   rec.LastSync,
		CreatedAt:  rec.CreatedAt,
	}
}
