package service

import (
	"context"

	"github.com/robotika-cloud/nekazari-erp-bridge/platform/go/contextgraph"
)

// ERPProvisioner covers the ERP-side admin surface provisioning needs:
// database cloning, capability module installation, admin user creation.
// Satisfied by the platform erp client.
type ERPProvisioner interface {
	ListDatabases(ctx context.Context) ([]string, error)
	DuplicateDatabase(ctx context.Context, source, target string) error
	DropDatabase(ctx context.Context, database string) error
	InstallCapabilities(ctx context.Context, database string, names []string) error
	InstalledCapabilities(ctx context.Context, database string) ([]string, error)
	CreateUser(ctx context.Context, database, email, displayName string, isAdmin bool) (int64, error)
}

// SubscriptionBroker covers the context-broker subscription surface.
// Satisfied by the platform contextgraph client.
type SubscriptionBroker interface {
	CreateSubscription(ctx context.Context, tenantID string, sub contextgraph.Subscription) error
	DeleteSubscription(ctx context.Context, tenantID, subscriptionID string) error
}

// SyncStateCleaner purges a tenant's entity mappings and sync status when
// the tenant is decommissioned. Implemented by the sync domain repo.
type SyncStateCleaner interface {
	PurgeTenant(ctx context.Context, tenantID string) error
}
