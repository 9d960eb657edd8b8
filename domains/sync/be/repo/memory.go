package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/robotika-cloud/nekazari-erp-bridge/domains/sync/be/service"
)

// Memory is an in-memory sync repository for tests and local development.
type Memory struct {
	mu       sync.RWMutex
	mappings map[string]map[string]service.Mapping
	statuses map[string]service.SyncStatus
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		mappings: make(map[string]map[string]service.Mapping),
		statuses: make(map[string]service.SyncStatus),
	}
}

func (m *Memory) GetMapping(_ context.Context, tenantID, entityID string) (service.Mapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mapping, ok := m.mappings[tenantID][entityID]
	if !ok {
		return service.Mapping{}, service.ErrMappingNotFound
	}
	return mapping, nil
}

func (m *Memory) ListMappings(_ context.Context, tenantID, entityType string) ([]service.Mapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []service.Mapping
	for _, mapping := range m.mappings[tenantID] {
		if entityType != "" && mapping.EntityType != entityType {
			continue
		}
		out = append(out, mapping)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

func (m *Memory) UpsertMapping(_ context.Context, mapping service.Mapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byEntity, ok := m.mappings[mapping.TenantID]
	if !ok {
		byEntity = make(map[string]service.Mapping)
		m.mappings[mapping.TenantID] = byEntity
	}
	byEntity[mapping.EntityID] = mapping
	return nil
}

func (m *Memory) GetStatus(_ context.Context, tenantID string) (service.SyncStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.statuses[tenantID]
	if !ok {
		return service.SyncStatus{}, service.ErrStatusNotFound
	}
	return status, nil
}

func (m *Memory) PutStatus(_ context.Context, status service.SyncStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[status.TenantID] = status
	return nil
}

// PurgeTenant drops every mapping and status row a tenant owns.
func (m *Memory) PurgeTenant(_ context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.mappings, tenantID)
	delete(m.statuses, tenantID)
	return nil
}
