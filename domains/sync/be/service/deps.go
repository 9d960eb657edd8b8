package service

import (
	"context"

	"github.com/robotika-cloud/nekazari-erp-bridge/platform/go/contextgraph"
)

// TenantInfo is the slice of tenant state sync needs: where records go and
// whether the tenant may receive them.
type TenantInfo struct {
	DatabaseName string
	Active       bool
}

// TenantDirectory resolves tenants. Implementations return
// ErrTenantNotProvisioned for tenants that are absent or not yet active.
type TenantDirectory interface {
	Lookup(ctx context.Context, tenantID string) (TenantInfo, error)
}

// ERPGateway covers the record-level ERP surface sync writes through.
// Satisfied by the platform erp client.
type ERPGateway interface {
	CreateRecord(ctx context.Context, database, model string, fields map[string]any) (int64, error)
	UpdateRecord(ctx context.Context, database, model string, id int64, fields map[string]any) error
}

// GraphSource reads entities from the context broker. Satisfied by the
// platform contextgraph client.
type GraphSource interface {
	Entity(ctx context.Context, tenantID, entityID string) (contextgraph.Entity, error)
	EntitiesByType(ctx context.Context, tenantID, entityType string, limit int) ([]contextgraph.Entity, error)
}
