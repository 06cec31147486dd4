// Package saga provides an event-driven process manager for multi-step
// business transactions that span independently committed ledgers.
//
// A workflow is a per-instance state machine. An initiating command creates
// the instance and issues the first command; every later step is a reaction
// to an event or rejection routed back to the instance. Each reaction emits
// exactly one follow-up command, or a terminal event that archives the
// instance. Failures travel through explicit compensation edges, never
// through retries.
//
// Key features:
//   - Explicit dispatch: each workflow declares a {signal type -> reaction} table
//   - Pure routing: each consumed signal type has a rule mapping it to instance ids
//   - Single writer per instance: a Lock serialises signals for one id
//   - Redelivery safety: signals to archived instances and duplicate signals are dropped
//   - Pluggable storage: in-memory, PostgreSQL and SQLite
//
// Example:
//
//	engine, _ := saga.NewEngine(storage, sink, saga.EngineOptions{Lock: saga.NewLocalLock()},
//	    workflow.Purchase(), workflow.Sale())
//	id, err := engine.Execute(ctx, message.PurchaseShares{...})
//	// later, from the transport:
//	err = engine.Deliver(ctx, message.MoneyReserved{...})
package saga

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Message is any command, event or rejection exchanged with the engine.
type Message interface {
	MessageType() string
}

// Rejection is a typed negative outcome of a command. It is routed exactly
// like an event.
type Rejection interface {
	Message
	Reason() string
}

// CommandSink accepts messages issued by the engine. Send only enqueues: the
// resulting event arrives later through Engine.Deliver. An error means the
// message could not be handed over, never that the command failed.
// Deduplicating re-issued commands is the sink's responsibility.
type CommandSink interface {
	Send(ctx context.Context, msg Message) error
}

// SinkFunc adapts a function to CommandSink.
type SinkFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// CommandHandler executes one command against a ledger and returns the
// event or rejection it produced. An error means the command could not be
// processed at all; domain refusals are rejections, not errors.
type CommandHandler func(ctx context.Context, cmd Message) (Message, error)

// Instance is a saga instance as stored.
type Instance struct {
	ID        string          `json:"id"`
	Workflow  WorkflowType    `json:"workflow"`
	State     json.RawMessage `json:"state"`
	Status    InstanceStatus  `json:"status"`
	Archived  bool            `json:"archived"`
	Terminal  string          `json:"terminal,omitempty"`
	Applied   []string        `json:"applied"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// HasApplied reports whether a signal type was already applied to the instance.
func (i *Instance) HasApplied(signalType string) bool {
	for _, t := range i.Applied {
		if t == signalType {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the instance.
func (i *Instance) Clone() *Instance {
	c := *i
	c.State = append(json.RawMessage(nil), i.State...)
	c.Applied = append(make([]string, 0, len(i.Applied)), i.Applied...)
	return &c
}

// InstanceFilter is used to query instances.
type InstanceFilter struct {
	Workflow      []WorkflowType
	Status        []InstanceStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	UpdatedBefore *time.Time
	Offset        int
	Limit         int
}

// InstanceQueryResult is the result of an instance query.
type InstanceQueryResult struct {
	Instances []Instance
	Total     int
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	Lock    Lock
	LockTTL time.Duration
	Logger  *zap.Logger
	Events  *EngineEvents
	Clock   func() time.Time
}
