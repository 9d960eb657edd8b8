package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// TenantRecord is one tenant's ERP bridge state. At most one row per tenant;
// decommissioning deletes the row outright.
type TenantRecord struct {
	TenantID              string     `db:"tenant_id"`
	DatabaseName          string     `db:"database_name"`
	Status                string     `db:"status"`
	EnergyCapabilities    bool       `db:"energy_capabilities"`
	InstalledCapabilities []string   `db:"installed_capabilities"`
	AdminEmail            *string    `db:"admin_email"`
	CreatedAt             time.Time  `db:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at"`
	LastError             *string    `db:"last_error"`
}

// TenantStore provides access to the erp_tenants table.
type TenantStore struct {
	pool *pgxpool.Pool
}

// NewTenantStore creates a store; assumes Bootstrap already created the table.
func NewTenantStore(pool *pgxpool.Pool) (*TenantStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &TenantStore{pool: pool}, nil
}

const tenantColumns = `tenant_id, database_name, status, energy_capabilities,
    installed_capabilities, admin_email, created_at, updated_at, last_error`

// Get fetches one tenant record.
func (s *TenantStore) Get(ctx context.Context, tenantID string) (TenantRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM erp_tenants WHERE tenant_id = $1`, tenantID)
	return scanTenantRecord(row)
}

// List returns every tenant record ordered by creation time.
func (s *TenantStore) List(ctx context.Context) ([]TenantRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tenantColumns+` FROM erp_tenants ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []TenantRecord
	for rows.Next() {
		rec, err := scanTenantRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Upsert writes the record wholesale, keyed on tenant id.
func (s *TenantStore) Upsert(ctx context.Context, rec TenantRecord) error {
	if rec.TenantID == "" {
		return errors.New("tenant id is required")
	}
	if rec.InstalledCapabilities == nil {
		rec.InstalledCapabilities = []string{}
	}

	_, err := s.pool.Exec(ctx, `
        INSERT INTO erp_tenants (
            tenant_id, database_name, status, energy_capabilities,
            installed_capabilities, admin_email, created_at, updated_at, last_error
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),$8)
        ON CONFLICT (tenant_id) DO UPDATE SET
            database_name = EXCLUDED.database_name,
            status = EXCLUDED.status,
            energy_capabilities = EXCLUDED.energy_capabilities,
            installed_capabilities = EXCLUDED.installed_capabilities,
            admin_email = EXCLUDED.admin_email,
            updated_at = NOW(),
            last_error = EXCLUDED.last_error
    `, rec.TenantID, rec.DatabaseName, rec.Status, rec.EnergyCapabilities,
		rec.InstalledCapabilities, rec.AdminEmail, rec.CreatedAt, rec.LastError)
	return err
}

// Delete removes the tenant record entirely.
func (s *TenantStore) Delete(ctx context.Context, tenantID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM erp_tenants WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTenantRecord(row pgx.Row) (TenantRecord, error) {
	var rec TenantRecord
	err := row.Scan(&rec.TenantID, &rec.DatabaseName, &rec.Status, &rec.EnergyCapabilities,
		&rec.InstalledCapabilities, &rec.AdminEmail, &rec.CreatedAt, &rec.UpdatedAt, &rec.LastError)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantRecord{}, ErrNotFound
		}
		return TenantRecord{}, err
	}
	return rec, nil
}
