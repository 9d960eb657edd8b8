package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EntityMapping links one context-graph entity to the ERP record created for
// it. The (tenant_id, entity_id) pair is unique; re-syncing an entity updates
// the existing row in place.
type EntityMapping struct {
	ID         int64      `db:"id"`
	TenantID   string     `db:"tenant_id"`
	EntityID   string     `db:"entity_id"`
	EntityType string     `db:"entity_type"`
	RecordID   int64      `db:"record_id"`
	RecordKind string     `db:"record_kind"`
	RecordName string     `db:"record_name"`
	LastSync   *time.Time `db:"last_sync"`
	CreatedAt  time.Time  `db:"created_at"`
}

// MappingStore provides access to the entity_mappings table.
type MappingStore struct {
	pool *pgxpool.Pool
}

func NewMappingStore(pool *pgxpool.Pool) (*MappingStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &MappingStore{pool: pool}, nil
}

const mappingColumns = `id, tenant_id, entity_id, entity_type, record_id,
    record_kind, record_name, last_sync, created_at`

// Get fetches the mapping for one entity within a tenant.
func (s *MappingStore) Get(ctx context.Context, tenantID, entityID string) (EntityMapping, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+mappingColumns+` FROM entity_mappings
         WHERE tenant_id = $1 AND entity_id = $2`, tenantID, entityID)
	return scanMapping(row)
}

// List returns a tenant's mappings, optionally filtered by entity type.
// Results are ordered by creation time so paging stays stable.
func (s *MappingStore) List(ctx context.Context, tenantID string, entityType string) ([]EntityMapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM entity_mappings WHERE tenant_id = $1`
	args := []any{tenantID}
	if entityType != "" {
		query += ` AND entity_type = $2`
		args = append(args, entityType)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []EntityMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// Upsert records that an entity now maps to the given ERP record. On conflict
// the existing row keeps its id and created_at; everything else is replaced.
func (s *MappingStore) Upsert(ctx context.Context, m EntityMapping) error {
	if m.TenantID == "" || m.EntityID == "" {
		return errors.New("tenant id and entity id are required")
	}

	_, err := s.pool.Exec(ctx, `
        INSERT INTO entity_mappings (
            tenant_id, entity_id, entity_type, record_id,
            record_kind, record_name, last_sync
        ) VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (tenant_id, entity_id) DO UPDATE SET
            entity_type = EXCLUDED.entity_type,
            record_id = EXCLUDED.record_id,
            record_kind = EXCLUDED.record_kind,
            record_name = EXCLUDED.record_name,
            last_sync = EXCLUDED.last_sync
    `, m.TenantID, m.EntityID, m.EntityType, m.RecordID,
		m.RecordKind, m.RecordName, m.LastSync)
	return err
}

// DeleteByTenant drops every mapping a tenant owns. Used on decommission.
func (s *MappingStore) DeleteByTenant(ctx context.Context, tenantID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM entity_mappings WHERE tenant_id = $1`, tenantID)
	return err
}

func scanMapping(row pgx.Row) (EntityMapping, error) {
	var m EntityMapping
	var name *string
	err := row.Scan(&m.ID, &m.TenantID, &m.EntityID, &m.EntityType, &m.RecordID,
		&m.RecordKind, &name, &m.LastSync, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EntityMapping{}, ErrNotFound
		}
		return EntityMapping{}, err
	}
	if name != nil {
		m.RecordName = *name
	}
	return m, nil
}
