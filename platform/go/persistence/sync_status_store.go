package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SyncStatusRecord is the outcome of a tenant's most recent full sync sweep.
// Errors holds one message per entity that failed during that sweep.
type SyncStatusRecord struct {
	TenantID       string     `db:"tenant_id"`
	Status         string     `db:"status"`
	LastSync       *time.Time `db:"last_sync"`
	EntitiesSynced int        `db:"entities_synced"`
	Errors         []string   `db:"errors"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// SyncStatusStore provides access to the sync_status table.
type SyncStatusStore struct {
	pool *pgxpool.Pool
}

func NewSyncStatusStore(pool *pgxpool.Pool) (*SyncStatusStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &SyncStatusStore{pool: pool}, nil
}

// Get fetches a tenant's sync status. Returns ErrNotFound when the tenant
// has never been swept; callers report that as a never_synced default.
func (s *SyncStatusStore) Get(ctx context.Context, tenantID string) (SyncStatusRecord, error) {
	var rec SyncStatusRecord
	err := s.pool.QueryRow(ctx, `
        SELECT tenant_id, status, last_sync, entities_synced, errors, updated_at
        FROM sync_status WHERE tenant_id = $1`, tenantID,
	).Scan(&rec.TenantID, &rec.Status, &rec.LastSync, &rec.EntitiesSynced,
		&rec.Errors, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SyncStatusRecord{}, ErrNotFound
		}
		return SyncStatusRecord{}, err
	}
	return rec, nil
}

// Put replaces a tenant's sync status wholesale. Each sweep overwrites the
// previous outcome; there is no history kept here.
func (s *SyncStatusStore) Put(ctx context.Context, rec SyncStatusRecord) error {
	if rec.TenantID == "" {
		return errors.New("tenant id is required")
	}
	if rec.Errors == nil {
		rec.Errors = []string{}
	}

	_, err := s.pool.Exec(ctx, `
        INSERT INTO sync_status (tenant_id, status, last_sync, entities_synced, errors, updated_at)
        VALUES ($1,$2,$3,$4,$5,NOW())
        ON CONFLICT (tenant_id) DO UPDATE SET
            status = EXCLUDED.status,
            last_sync = EXCLUDED.last_sync,
            entities_synced = EXCLUDED.entities_synced,
            errors = EXCLUDED.errors,
            updated_at = NOW()
    `, rec.TenantID, rec.Status, rec.LastSync, rec.EntitiesSynced, rec.Errors)
	return err
}

// Delete removes a tenant's sync status. Used on decommission; missing rows
// are not an error.
func (s *SyncStatusStore) Delete(ctx context.Context, tenantID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sync_status WHERE tenant_id = $1`, tenantID)
	return err
}
