package repo

import (
	"context"
	"errors"

	"github.com/robotika-cloud/nekazari-erp-bridge/domains/tenants/be/service"
	"github.com/robotika-cloud/nekazari-erp-bridge/platform/go/persistence"
)

// Postgres backs the tenant repository with the shared erp_tenants table.
type Postgres struct {
	store *persistence.TenantStore
}

// NewPostgres wraps a tenant store.
func NewPostgres(store *persistence.TenantStore) *Postgres {
	if store == nil {
		panic("tenant store is required")
	}
	return &Postgres{store: store}
}

func (p *Postgres) Get(ctx context.Context, tenantID string) (service.Tenant, error) {
	rec, err := p.store.Get(ctx, tenantID)
	if err != nil {
		return service.Tenant{}, mapErr(err)
	}
	return fromRecord(rec), nil
}

func (p *Postgres) List(ctx context.Context) ([]service.Tenant, error) {
	records, err := p.store.List(ctx)
	if err != nil {
		return nil, err
	}
	tenants := make([]service.Tenant, 0, len(records))
	for _, rec := range records {
		tenants = append(tenants, fromRecord(rec))
	}
	return tenants, nil
}

func (p *Postgres) Upsert(ctx context.Context, t service.Tenant) error {
	return p.store.Upsert(ctx, persistence.TenantRecord{
		TenantID:              t.TenantID,
		DatabaseName:          t.DatabaseName,
		Status:                string(t.Status),
		EnergyCapabilities:    t.EnergyCapabilities,
		InstalledCapabilities: t.InstalledCapabilities,
		AdminEmail:            t.AdminEmail,
		CreatedAt:             t.CreatedAt,
		LastError:             t.LastError,
	})
}

func (p *Postgres) Delete(ctx context.Context, tenantID string) error {
	return mapErr(p.store.Delete(ctx, tenantID))
}

func fromRecord(rec persistence.TenantRecord) service.Tenant {
	return service.Tenant{
		TenantID:              rec.TenantID,
		DatabaseName:          rec.DatabaseName,
		Status:                service.StatusFromString(rec.Status),
		EnergyCapabilities:    rec.EnergyCapabilities,
		InstalledCapabilities: rec.InstalledCapabilities,
		AdminEmail:            rec.AdminEmail,
		CreatedAt:             rec.CreatedAt,
		UpdatedAt:             rec.UpdatedAt,
		LastError:             rec.LastError,
	}
}

func mapErr(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return service.ErrNotFound
	}
	return err
}
