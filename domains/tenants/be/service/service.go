package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/robotika-cloud/nekazari-erp-bridge/platform/go/contextgraph"
	"github.com/robotika-cloud/nekazari-erp-bridge/platform/go/subscription"
	"github.com/robotika-cloud/nekazari-erp-bridge/platform/go/transform"
)

// Errors returned by the service layer.
var (
	ErrNotFound           = errors.New("tenant not found")
	ErrAlreadyProvisioned = errors.New("tenant already provisioned")
)

// Status is a tenant's position in the provisioning lifecycle. Decommissioned
// tenants have no status: their record is deleted outright.
type Status string

const (
	StatusPending      Status = "pending"
	StatusProvisioning Status = "provisioning"
	StatusActive       Status = "active"
	StatusError        Status = "error"
)

// StatusFromString converts a stored string to a Status; defaults to pending
// on unknown values.
func StatusFromString(s string) Status {
	switch Status(s) {
	case StatusPending, StatusProvisioning, StatusActive, StatusError:
		return Status(s)
	default:
		return StatusPending
	}
}

// Tenant is the domain model for one tenant's ERP bridge registration.
type Tenant struct {
	TenantID              string
	DatabaseName          string
	Status                Status
	EnergyCapabilities    bool
	InstalledCapabilities []string
	AdminEmail            *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
	LastError             *string
}

// ProvisionInput is the request to provision a tenant's ERP environment.
type ProvisionInput struct {
	TenantID           string
	AdminEmail         string
	EnergyCapabilities bool
	ExtraCapabilities  []string
}

// Repository abstracts tenant record persistence.
type Repository interface {
	Get(ctx context.Context, tenantID string) (Tenant, error)
	List(ctx context.Context) ([]Tenant, error)
	Upsert(ctx context.Context, t Tenant) error
	Delete(ctx context.Context, tenantID string) error
}

// Config carries the service's environment-level settings.
type Config struct {
	// TemplateDatabase is the pre-seeded ERP database every tenant database
	// is cloned from.
	TemplateDatabase string
	// NotificationEndpoint is the public URL the context broker delivers
	// entity change notifications to.
	NotificationEndpoint string
}

// Service manages the tenant provisioning lifecycle.
type Service struct {
	repo    Repository
	erp     ERPProvisioner
	broker  SubscriptionBroker
	cleaner SyncStateCleaner
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Service with required dependencies.
func New(repo Repository, erp ERPProvisioner, broker SubscriptionBroker, cleaner SyncStateCleaner, cfg Config, logger *zap.Logger) *Service {
	if repo == nil {
		panic("tenants repo is required")
	}
	if erp == nil {
		panic("erp provisioner is required")
	}
	if broker == nil {
		panic("subscription broker is required")
	}
	if cleaner == nil {
		panic("sync state cleaner is required")
	}
	if cfg.TemplateDatabase == "" {
		panic("template database is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, erp: erp, broker: broker, cleaner: cleaner, cfg: cfg, logger: logger}
}

// DatabaseName derives the tenant's dedicated ERP database name.
func DatabaseName(tenantID string) string {
	return "nkz_odoo_" + tenantID
}

// baseCapabilities are installed for every tenant; energyCapabilities are
// added for energy community tenants.
var (
	baseCapabilities   = []string{"base", "sale", "purchase", "stock", "account"}
	energyCapabilities = []string{"energy_community", "energy_selfconsumption", "energy_import_statement"}
)

// Get returns a tenant by id.
func (s *Service) Get(ctx context.Context, tenantID string) (Tenant, error) {
	return s.repo.Get(ctx, tenantID)
}

// List returns every registered tenant.
func (s *Service) List(ctx context.Context) ([]Tenant, error) {
	return s.repo.List(ctx)
}

// Provision creates the tenant's dedicated ERP database, installs its
// capability modules, creates the admin user, and registers context broker
// subscriptions for every supported entity type. Only active tenants are
// rejected with ErrAlreadyProvisioned; pending, error, and provisioning
// tenants may all be retried, so a crash mid-provision never wedges the
// tenant. Every step is idempotent against a partially built environment.
// On failure the tenant record is kept with status error and the failure
// message, so operators can inspect and retry.
func (s *Service) Provision(ctx context.Context, input ProvisionInput) (Tenant, error) {
	if input.TenantID == "" {
		return Tenant{}, errors.New("tenant id is required")
	}

	existing, err := s.repo.Get(ctx, input.TenantID)
	switch {
	case err == nil:
		if existing.Status == StatusActive {
			return Tenant{}, fmt.Errorf("%w: %s", ErrAlreadyProvisioned, input.TenantID)
		}
	case errors.Is(err, ErrNotFound):
		// First provisioning attempt.
	default:
		return Tenant{}, err
	}

	t := Tenant{
		TenantID:           input.TenantID,
		DatabaseName:       DatabaseName(input.TenantID),
		Status:             StatusProvisioning,
		EnergyCapabilities: input.EnergyCapabilities,
		CreatedAt:          time.Now().UTC(),
	}
	if input.AdminEmail != "" {
		email := input.AdminEmail
		t.AdminEmail = &email
	}
	if !existing.CreatedAt.IsZero() {
		t.CreatedAt = existing.CreatedAt
	}
	if err := s.repo.Upsert(ctx, t); err != nil {
		return Tenant{}, err
	}

	if err := s.provisionEnvironment(ctx, &t, input); err != nil {
		msg := err.Error()
		t.Status = StatusError
		t.LastError = &msg
		if storeErr := s.repo.Upsert(ctx, t); storeErr != nil {
			s.logger.Error("failed to record provisioning error",
				zap.String("tenant_id", t.TenantID), zap.Error(storeErr))
		}
		return Tenant{}, err
	}

	t.Status = StatusActive
	t.LastError = nil
	if err := s.repo.Upsert(ctx, t); err != nil {
		return Tenant{}, err
	}

	s.logger.Info("tenant provisioned",
		zap.String("tenant_id", t.TenantID),
		zap.String("database", t.DatabaseName),
		zap.Strings("capabilities", t.InstalledCapabilities))
	return t, nil
}

func (s *Service) provisionEnvironment(ctx context.Context, t *Tenant, input ProvisionInput) error {
	databases, err := s.erp.ListDatabases(ctx)
	if err != nil {
		return fmt.Errorf("list databases: %w", err)
	}
	if !slices.Contains(databases, t.DatabaseName) {
		if err := s.erp.DuplicateDatabase(ctx, s.cfg.TemplateDatabase, t.DatabaseName); err != nil {
			return fmt.Errorf("duplicate template database: %w", err)
		}
	} else {
		s.logger.Info("database already exists, resuming provisioning",
			zap.String("tenant_id", t.TenantID), zap.String("database", t.DatabaseName))
	}

	capabilities := append([]string{}, baseCapabilities...)
	if input.EnergyCapabilities {
		capabilities = append(capabilities, energyCapabilities...)
	}
	capabilities = append(capabilities, input.ExtraCapabilities...)

	if err := s.erp.InstallCapabilities(ctx, t.DatabaseName, capabilities); err != nil {
		return fmt.Errorf("install capabilities: %w", err)
	}
	installed, err := s.erp.InstalledCapabilities(ctx, t.DatabaseName)
	if err != nil {
		return fmt.Errorf("verify capabilities: %w", err)
	}
	t.InstalledCapabilities = installed

	if input.AdminEmail != "" {
		if _, err := s.erp.CreateUser(ctx, t.DatabaseName, input.AdminEmail, "Administrator", true); err != nil {
			return fmt.Errorf("create admin user: %w", err)
		}
	}

	if err := s.registerSubscriptions(ctx, t.TenantID); err != nil {
		return fmt.Errorf("register subscriptions: %w", err)
	}
	return nil
}

// registerSubscriptions creates one broker subscription per supported entity
// type. Subscription ids are deterministic, so re-registration is idempotent:
// the broker answers 409 for an existing id and the client treats that as
// success.
func (s *Service) registerSubscriptions(ctx context.Context, tenantID string) error {
	for _, entityType := range transform.EntityTypes() {
		sub := contextgraph.Subscription{
			ID:         subscription.BuildID(tenantID, entityType),
			EntityType: entityType,
			Endpoint:   s.cfg.NotificationEndpoint,
		}
		if err := s.broker.CreateSubscription(ctx, tenantID, sub); err != nil {
			return fmt.Errorf("subscribe %s: %w", entityType, err)
		}
	}
	return nil
}

// Decommission tears a tenant down: cancels its broker subscriptions, drops
// its ERP database, purges its sync state, and deletes its record. Only
// subscription cancellation is best effort. The database drop must succeed
// before the record is deleted, otherwise tenant data would stay alive in
// the ERP with nothing pointing at it; on drop failure the record is kept so
// the operator can retry.
func (s *Service) Decommission(ctx context.Context, tenantID string) error {
	t, err := s.repo.Get(ctx, tenantID)
	if err != nil {
		return err
	}

	for _, entityType := range transform.EntityTypes() {
		subID := subscription.BuildID(tenantID, entityType)
		if err := s.broker.DeleteSubscription(ctx, tenantID, subID); err != nil {
			s.logger.Warn("failed to cancel subscription, continuing teardown",
				zap.String("tenant_id", tenantID),
				zap.String("subscription_id", subID),
				zap.Error(err))
		}
	}

	// The database may not exist when provisioning failed before the clone.
	databases, err := s.erp.ListDatabases(ctx)
	if err != nil {
		return fmt.Errorf("list databases: %w", err)
	}
	if slices.Contains(databases, t.DatabaseName) {
		if err := s.erp.DropDatabase(ctx, t.DatabaseName); err != nil {
			return fmt.Errorf("drop tenant database: %w", err)
		}
	}

	if err := s.cleaner.PurgeTenant(ctx, tenantID); err != nil {
		return fmt.Errorf("purge sync state: %w", err)
	}
	if err := s.repo.Delete(ctx, tenantID); err != nil {
		return err
	}

	s.logger.Info("tenant decommissioned", zap.String("tenant_id", tenantID))
	return nil
}

