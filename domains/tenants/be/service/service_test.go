package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/robotika-cloud/nekazari-erp-bridge/platform/go/contextgraph"
	"github.com/robotika-cloud/nekazari-erp-bridge/platform/go/transform"
)

type memRepo struct {
	mu      sync.Mutex
	tenants map[string]Tenant
}

func newMemRepo() *memRepo {
	return &memRepo{tenants: make(map[string]Tenant)}
}

func (m *memRepo) Get(_ context.Context, id string) (Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return Tenant{}, ErrNotFound
	}
	return t, nil
}

func (m *memRepo) List(_ context.Context) ([]Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		out = append(out, t)
	}
	return out, nil
}

func (m *memRepo) Upsert(_ context.Context, t Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[t.TenantID] = t
	return nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[id]; !ok {
		return ErrNotFound
	}
	delete(m.tenants, id)
	return nil
}

type fakeERP struct {
	databases  []string
	duplicated [][2]string
	dropped    []string
	installed  map[string][]string
	users      []string

	installErr error
	dropErr    error
}

func newFakeERP() *fakeERP {
	return &fakeERP{installed: make(map[string][]string)}
}

func (f *fakeERP) ListDatabases(context.Context) ([]string, error) {
	return append([]string{}, f.databases...), nil
}

func (f *fakeERP) DuplicateDatabase(_ context.Context, source, target string) error {
	f.duplicated = append(f.duplicated, [2]string{source, target})
	f.databases = append(f.databases, target)
	return nil
}

func (f *fakeERP) DropDatabase(_ context.Context, database string) error {
	if f.dropErr != nil {
		return f.dropErr
	}
	f.dropped = append(f.dropped, database)
	return nil
}

func (f *fakeERP) InstallCapabilities(_ context.Context, database string, names []string) error {
	if f.installErr != nil {
		return f.installErr
	}
	f.installed[database] = append(f.installed[database], names...)
	return nil
}

func (f *fakeERP) InstalledCapabilities(_ context.Context, database string) ([]string, error) {
	return append([]string{}, f.installed[database]...), nil
}

func (f *fakeERP) CreateUser(_ context.Context, database, email, _ string, _ bool) (int64, error) {
	f.users = append(f.users, database+"/"+email)
	return 7, nil
}

type fakeBroker struct {
	created   []contextgraph.Subscription
	deleted   []string
	deleteErr error
}

func (f *fakeBroker) CreateSubscription(_ context.Context, _ string, sub contextgraph.Subscription) error {
	f.created = append(f.created, sub)
	return nil
}

func (f *fakeBroker) DeleteSubscription(_ context.Context, _ string, subscriptionID string) error {
	f.deleted = append(f.deleted, subscriptionID)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return nil
}

type fakeCleaner struct {
	purged []string
}

func (f *fakeCleaner) PurgeTenant(_ context.Context, tenantID string) error {
	f.purged = append(f.purged, tenantID)
	return nil
}

func newTestService(repo Repository, erp *fakeERP, broker *fakeBroker, cleaner *fakeCleaner) *Service {
	return New(repo, erp, broker, cleaner, Config{
		TemplateDatabase:     "nkz_odoo_template",
		NotificationEndpoint: "https://bridge.example/webhooks/ngsi",
	}, zap.NewNop())
}

func TestProvisionCreatesEnvironment(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	erp := newFakeERP()
	broker := &fakeBroker{}
	svc := newTestService(repo, erp, broker, &fakeCleaner{})

	tenant, err := svc.Provision(context.Background(), ProvisionInput{
		TenantID:           "farm-7",
		AdminEmail:         "admin@farm-7.example",
		EnergyCapabilities: true,
	})
	require.NoError(t, err)

	require.Equal(t, StatusActive, tenant.Status)
	require.Equal(t, "nkz_odoo_farm-7", tenant.DatabaseName)
	require.Equal(t, [][2]string{{"nkz_odoo_template", "nkz_odoo_farm-7"}}, erp.duplicated)
	require.Contains(t, erp.installed["nkz_odoo_farm-7"], "sale")
	require.Contains(t, erp.installed["nkz_odoo_farm-7"], "energy_community")
	require.Equal(t, []string{"nkz_odoo_farm-7/admin@farm-7.example"}, erp.users)

	// One subscription per supported entity type, with deterministic ids.
	require.Len(t, broker.created, len(transform.EntityTypes()))
	ids := make(map[string]bool)
	for _, sub := range broker.created {
		ids[sub.ID] = true
		require.Equal(t, "https://bridge.example/webhooks/ngsi", sub.Endpoint)
	}
	require.True(t, ids["urn:ngsi-ld:Subscription:nkz-odoo-farm-7-agriparcel"])

	stored, err := repo.Get(context.Background(), "farm-7")
	require.NoError(t, err)
	require.Equal(t, StatusActive, stored.Status)
}

func TestProvisionSkipsEnergyModulesByDefault(t *testing.T) {
	t.Parallel()

	erp := newFakeERP()
	svc := newTestService(newMemRepo(), erp, &fakeBroker{}, &fakeCleaner{})

	_, err := svc.Provision(context.Background(), ProvisionInput{TenantID: "farm-9"})
	require.NoError(t, err)
	require.NotContains(t, erp.installed["nkz_odoo_farm-9"], "energy_community")
	require.Contains(t, erp.installed["nkz_odoo_farm-9"], "account")
}

func TestProvisionRejectsActiveTenant(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	require.NoError(t, repo.Upsert(context.Background(), Tenant{
		TenantID: "farm-7",
		Status:   StatusActive,
	}))
	erp := newFakeERP()
	svc := newTestService(repo, erp, &fakeBroker{}, &fakeCleaner{})

	_, err := svc.Provision(context.Background(), ProvisionInput{TenantID: "farm-7"})
	require.ErrorIs(t, err, ErrAlreadyProvisioned)
	require.Empty(t, erp.duplicated)
}

func TestProvisionFailureLeavesErrorStatus(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	erp := newFakeERP()
	erp.installErr = errors.New("module registry unavailable")
	svc := newTestService(repo, erp, &fakeBroker{}, &fakeCleaner{})

	_, err := svc.Provision(context.Background(), ProvisionInput{TenantID: "farm-7"})
	require.Error(t, err)

	stored, getErr := repo.Get(context.Background(), "farm-7")
	require.NoError(t, getErr)
	require.Equal(t, StatusError, stored.Status)
	require.NotNil(t, stored.LastError)
	require.Contains(t, *stored.LastError, "module registry unavailable")
}

func TestProvisionRetryReusesExistingDatabase(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	erp := newFakeERP()
	erp.installErr = errors.New("transient")
	svc := newTestService(repo, erp, &fakeBroker{}, &fakeCleaner{})

	_, err := svc.Provision(context.Background(), ProvisionInput{TenantID: "farm-7"})
	require.Error(t, err)
	require.Len(t, erp.duplicated, 1)

	erp.installErr = nil
	tenant, err := svc.Provision(context.Background(), ProvisionInput{TenantID: "farm-7"})
	require.NoError(t, err)
	require.Equal(t, StatusActive, tenant.Status)
	// The clone from the first attempt survives; no second duplicate.
	require.Len(t, erp.duplicated, 1)
}

func TestProvisionRetryFromInterruptedProvisioning(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	require.NoError(t, repo.Upsert(context.Background(), Tenant{
		TenantID:     "farm-7",
		DatabaseName: DatabaseName("farm-7"),
		Status:       StatusProvisioning,
	}))
	erp := newFakeERP()
	// The crashed attempt already cloned the database.
	erp.databases = []string{"nkz_odoo_farm-7"}
	svc := newTestService(repo, erp, &fakeBroker{}, &fakeCleaner{})

	tenant, err := svc.Provision(context.Background(), ProvisionInput{TenantID: "farm-7"})
	require.NoError(t, err)
	require.Equal(t, StatusActive, tenant.Status)
	// The existing clone is picked up rather than duplicated again.
	require.Empty(t, erp.duplicated)
}

func TestDecommissionTearsDownTenant(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	erp := newFakeERP()
	broker := &fakeBroker{}
	cleaner := &fakeCleaner{}
	svc := newTestService(repo, erp, broker, cleaner)

	_, err := svc.Provision(context.Background(), ProvisionInput{TenantID: "farm-7"})
	require.NoError(t, err)

	require.NoError(t, svc.Decommission(context.Background(), "farm-7"))

	require.Equal(t, []string{"nkz_odoo_farm-7"}, erp.dropped)
	require.Equal(t, []string{"farm-7"}, cleaner.purged)
	require.Len(t, broker.deleted, len(transform.EntityTypes()))

	_, err = repo.Get(context.Background(), "farm-7")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDecommissionToleratesSubscriptionFailures(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	erp := newFakeERP()
	broker := &fakeBroker{deleteErr: errors.New("broker offline")}
	cleaner := &fakeCleaner{}
	svc := newTestService(repo, erp, broker, cleaner)

	_, err := svc.Provision(context.Background(), ProvisionInput{TenantID: "farm-7"})
	require.NoError(t, err)

	require.NoError(t, svc.Decommission(context.Background(), "farm-7"))

	// A dead broker cannot block teardown; the database and local state
	// still go.
	require.Equal(t, []string{"nkz_odoo_farm-7"}, erp.dropped)
	require.Equal(t, []string{"farm-7"}, cleaner.purged)
	_, err = repo.Get(context.Background(), "farm-7")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDecommissionAbortsWhenDropFails(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	erp := newFakeERP()
	cleaner := &fakeCleaner{}
	svc := newTestService(repo, erp, &fakeBroker{}, cleaner)

	_, err := svc.Provision(context.Background(), ProvisionInput{TenantID: "farm-7"})
	require.NoError(t, err)

	erp.dropErr = errors.New("erp offline")
	err = svc.Decommission(context.Background(), "farm-7")
	require.ErrorContains(t, err, "drop tenant database")

	// The record survives so the operator can retry; the database is never
	// orphaned without a record pointing at it.
	require.Empty(t, cleaner.purged)
	stored, getErr := repo.Get(context.Background(), "farm-7")
	require.NoError(t, getErr)
	require.Equal(t, StatusActive, stored.Status)
}

func TestDecommissionSkipsAbsentDatabase(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	require.NoError(t, repo.Upsert(context.Background(), Tenant{
		TenantID:     "farm-7",
		DatabaseName: DatabaseName("farm-7"),
		Status:       StatusError,
	}))
	erp := newFakeERP()
	cleaner := &fakeCleaner{}
	svc := newTestService(repo, erp, &fakeBroker{}, cleaner)

	// Provisioning failed before the clone: nothing to drop, teardown still
	// clears local state.
	require.NoError(t, svc.Decommission(context.Background(), "farm-7"))
	require.Empty(t, erp.dropped)
	require.Equal(t, []string{"farm-7"}, cleaner.purged)
	_, err := repo.Get(context.Background(), "farm-7")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDecommissionUnknownTenant(t *testing.T) {
	t.Parallel()

	svc := newTestService(newMemRepo(), newFakeERP(), &fakeBroker{}, &fakeCleaner{})
	err := svc.Decommission(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}
