package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/robotika-cloud/nekazari-erp-bridge/domains/tenants/be/service"
)

// Memory is an in-memory tenant repository for tests and local development.
type Memory struct {
	mu      sync.RWMutex
	tenants map[string]service.Tenant
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{tenants: make(map[string]service.Tenant)}
}

func (m *Memory) Get(_ context.Context, tenantID string) (service.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	return t, nil
}

func (m *Memory) List(_ context.Context) ([]service.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]service.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out, nil
}

func (m *Memory) Upsert(_ context.Context, t service.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[t.TenantID] = t
	return nil
}

func (m *Memory) Delete(_ context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[tenantID]; !ok {
		return service.ErrNotFound
	}
	delete(m.tenants, tenantID)
	return nil
}
