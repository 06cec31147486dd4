package saga

import "time"

const (
	// DefaultLockTTL bounds how long a single signal may hold an instance lock.
	DefaultLockTTL = 30 * time.Second

	// MaxErrorLength is the maximum length of error messages kept in logs and records (2KB).
	MaxErrorLength = 2048

	// DefaultQueryLimit is applied when a filter does not set one.
	DefaultQueryLimit = 100
)

// InstanceStatus represents the lifecycle state of a saga instance.
type InstanceStatus string

const (
	StatusPending   InstanceStatus = "pending"
	StatusCompleted InstanceStatus = "completed"
	StatusFailed    InstanceStatus = "failed"
)

// Archived reports whether the status is terminal.
func (s InstanceStatus) Archived() bool {
	return s == StatusCompleted || s == StatusFailed
}

// WorkflowType names a workflow definition.
type WorkflowType string
