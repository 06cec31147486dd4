package saga

import "context"

// Storage is the interface for saga instance persistence.
type Storage interface {
	// IsProductionSafe returns true if this storage is safe for production use.
	IsProductionSafe() bool

	// Create persists a new instance. Returns an InstanceExistsError if the id is taken.
	Create(ctx context.Context, inst *Instance) error

	// Load retrieves an instance. Returns nil, nil when the id is unknown.
	Load(ctx context.Context, id string) (*Instance, error)

	// Save writes inst if the stored version equals inst.Version, then
	// increments inst.Version. Returns a ConcurrentUpdateError otherwise.
	Save(ctx context.Context, inst *Instance) error

	// Query retrieves instances matching the filter, newest first.
	Query(ctx context.Context, filter InstanceFilter) (*InstanceQueryResult, error)

	// CountByStatus counts instances by status.
	CountByStatus(ctx context.Context, statuses ...InstanceStatus) (int, error)
}
