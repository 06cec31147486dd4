package saga

// EngineEvents provides hooks for observability and monitoring.
// All callbacks are optional - only set the ones you need.
// Event handlers are called synchronously but wrapped in panic recovery,
// so a panicking handler won't break signal processing.
//
// Example:
//
//	events := &saga.EngineEvents{
//	    OnInstanceArchived: func(id string, wf saga.WorkflowType, terminal saga.Message) {
//	        metrics.Inc("saga_archived", string(wf), terminal.MessageType())
//	    },
//	    OnSignalDropped: func(id string, signal saga.Message, reason saga.DropReason) {
//	        log.Printf("dropped %s for %s: %s", signal.MessageType(), id, reason)
//	    },
//	}
type EngineEvents struct {
	// Instance lifecycle
	OnInstanceStarted  func(id string, workflow WorkflowType, cmd Message)
	OnInstanceArchived func(id string, workflow WorkflowType, terminal Message)

	// Signal lifecycle
	OnSignalApplied func(id string, signal Message)
	OnSignalDropped func(id string, signal Message, reason DropReason)

	// Outbound
	OnCommandIssued func(id string, cmd Message)
}

// DropReason explains why a routed signal was not applied.
type DropReason string

const (
	DropUnknownInstance  DropReason = "unknown_instance"
	DropArchived         DropReason = "archived"
	DropDuplicate        DropReason = "duplicate"
	DropWorkflowMismatch DropReason = "workflow_mismatch"
	DropOutOfOrder       DropReason = "out_of_order"
)

// emitEvent safely calls an event handler, catching any panics.
func emitEvent(events *EngineEvents, handler func()) {
	if events == nil || handler == nil {
		return
	}
	defer func() {
		// Catch panics from event handlers - never break signal processing
		_ = recover()
	}()
	handler()
}
