package saga

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStorage implements Storage using in-memory maps.
// WARNING: Not production safe - use only for testing.
type MemoryStorage struct {
	mu        sync.RWMutex
	instances map[string]*Instance
}

// NewMemoryStorage creates a new MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		instances: make(map[string]*Instance),
	}
}

// IsProductionSafe returns false - MemoryStorage is not production safe.
func (s *MemoryStorage) IsProductionSafe() bool {
	return false
}

// Create persists a new instance.
func (s *MemoryStorage) Create(ctx context.Context, inst *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[inst.ID]; ok {
		return NewInstanceExistsError(inst.ID)
	}

	now := time.Now()
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	if inst.UpdatedAt.IsZero() {
		inst.UpdatedAt = inst.CreatedAt
	}
	s.instances[inst.ID] = inst.Clone()
	return nil
}

// Load retrieves an instance.
func (s *MemoryStorage) Load(ctx context.Context, id string) (*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if inst, ok := s.instances[id]; ok {
		// Return a copy to avoid race conditions
		return inst.Clone(), nil
	}
	return nil, nil
}

// Save writes inst under optimistic version control.
func (s *MemoryStorage) Save(ctx context.Context, inst *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.instances[inst.ID]
	if !ok || existing.Version != inst.Version {
		return NewConcurrentUpdateError(inst.ID, inst.Version)
	}

	inst.Version++
	if inst.UpdatedAt.IsZero() {
		inst.UpdatedAt = time.Now()
	}
	s.instances[inst.ID] = inst.Clone()
	return nil
}

// Query retrieves instances matching the filter.
func (s *MemoryStorage) Query(ctx context.Context, filter InstanceFilter) (*InstanceQueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var instances []Instance
	for _, inst := range s.instances {
		if !matchesFilter(inst, filter) {
			continue
		}
		instances = append(instances, *inst.Clone())
	}

	sort.Slice(instances, func(i, j int) bool {
		if instances[i].CreatedAt.Equal(instances[j].CreatedAt) {
			return instances[i].ID < instances[j].ID
		}
		return instances[i].CreatedAt.After(instances[j].CreatedAt)
	})

	total := len(instances)

	// Apply pagination
	if filter.Offset > 0 && filter.Offset < len(instances) {
		instances = instances[filter.Offset:]
	} else if filter.Offset >= len(instances) {
		instances = nil
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if len(instances) > limit {
		instances = instances[:limit]
	}

	return &InstanceQueryResult{
		Instances: instances,
		Total:     total,
	}, nil
}

// CountByStatus counts instances by status.
func (s *MemoryStorage) CountByStatus(ctx context.Context, statuses ...InstanceStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, inst := range s.instances {
		for _, st := range statuses {
			if inst.Status == st {
				count++
				break
			}
		}
	}
	return count, nil
}

func matchesFilter(inst *Instance, filter InstanceFilter) bool {
	if len(filter.Status) > 0 {
		found := false
		for _, st := range filter.Status {
			if inst.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(filter.Workflow) > 0 {
		found := false
		for _, wf := range filter.Workflow {
			if inst.Workflow == wf {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if filter.CreatedAfter != nil && inst.CreatedAt.Before(*filter.CreatedAfter) {
		return false
	}
	if filter.CreatedBefore != nil && inst.CreatedAt.After(*filter.CreatedBefore) {
		return false
	}
	if filter.UpdatedBefore != nil && inst.UpdatedAt.After(*filter.UpdatedBefore) {
		return false
	}
	return true
}

// Ensure MemoryStorage implements Storage.
var _ Storage = (*MemoryStorage)(nil)
