package saga

import (
	"encoding/json"
	"fmt"
)

// RouteFunc maps a signal to the ids of the instances that must receive it.
// It must be pure: the same signal always yields the same ids. An empty
// result is a valid no-op.
type RouteFunc func(sig Message) []string

// RouteBy builds a RouteFunc for signals of type T whose target id is given
// by key. Signals of another type, or with an empty key, route nowhere.
func RouteBy[T Message](key func(T) string) RouteFunc {
	return func(sig Message) []string {
		typed, ok := sig.(T)
		if !ok {
			return nil
		}
		id := key(typed)
		if id == "" {
			return nil
		}
		return []string{id}
	}
}

// Outcome is the single result of a reaction: a follow-up command, or a
// terminal event that archives the instance.
type Outcome struct {
	Message  Message
	Terminal bool
	Failed   bool
}

// Emit issues a follow-up command and keeps the instance pending.
func Emit(cmd Message) Outcome {
	return Outcome{Message: cmd}
}

// Complete ends the instance with a success terminal event.
func Complete(evt Message) Outcome {
	return Outcome{Message: evt, Terminal: true}
}

// Fail ends the instance with a failure terminal event.
func Fail(evt Message) Outcome {
	return Outcome{Message: evt, Terminal: true, Failed: true}
}

// Reaction reacts to one routed signal against the instance state. It may
// update the state in place.
type Reaction[S any] func(state *S, sig Message) (Outcome, error)

// On adapts a reaction typed on the signal it consumes.
func On[S any, T Message](fn func(state *S, sig T) Outcome) Reaction[S] {
	return func(state *S, sig Message) (Outcome, error) {
		typed, ok := sig.(T)
		if !ok {
			return Outcome{}, fmt.Errorf("unexpected signal %T", sig)
		}
		return fn(state, typed), nil
	}
}

// Workflow defines one workflow type over its state S.
type Workflow[S any] struct {
	Name WorkflowType

	// Initiator is the message type of the initiating command.
	Initiator string

	// Start validates the initiating command and returns the instance id,
	// the initial state and the first command.
	Start func(cmd Message) (id string, state S, next Message, err error)

	// Reactions is the dispatch table {signal type -> reaction}.
	Reactions map[string]Reaction[S]

	// Routes is the routing table {signal type -> rule}.
	Routes map[string]RouteFunc

	// After is the step table {signal type -> signal types one of which
	// must be the last applied}. Started stands for an instance that has
	// applied nothing yet. Signal types missing from the table are accepted
	// at any step.
	After map[string][]string
}

// Started names the step of an instance that has applied no signal.
const Started = ""

// Definition is a workflow with its state type erased, as used by the Engine.
type Definition interface {
	Type() WorkflowType
	InitiatedBy() string
	Begin(cmd Message) (id string, state json.RawMessage, next Message, err error)
	React(state json.RawMessage, sig Message) (json.RawMessage, Outcome, error)
	Routing() map[string]RouteFunc
	Reacts(signalType string) bool
	Accepts(signalType string, applied []string) bool
}

// Type returns the workflow name.
func (w *Workflow[S]) Type() WorkflowType { return w.Name }

// InitiatedBy returns the initiating command type.
func (w *Workflow[S]) InitiatedBy() string { return w.Initiator }

// Routing returns the routing table.
func (w *Workflow[S]) Routing() map[string]RouteFunc { return w.Routes }

// Reacts reports whether the workflow has a reaction for signalType.
func (w *Workflow[S]) Reacts(signalType string) bool {
	_, ok := w.Reactions[signalType]
	return ok
}

// Accepts reports whether signalType may be applied after the signals
// already applied, in order.
func (w *Workflow[S]) Accepts(signalType string, applied []string) bool {
	preceding, ok := w.After[signalType]
	if !ok {
		return true
	}
	last := Started
	if n := len(applied); n > 0 {
		last = applied[n-1]
	}
	for _, t := range preceding {
		if t == last {
			return true
		}
	}
	return false
}

// Begin runs Start and encodes the initial state.
func (w *Workflow[S]) Begin(cmd Message) (string, json.RawMessage, Message, error) {
	if w.Start == nil {
		return "", nil, nil, fmt.Errorf("workflow %s has no start handler", w.Name)
	}
	id, state, next, err := w.Start(cmd)
	if err != nil {
		return "", nil, nil, err
	}
	if id == "" {
		return "", nil, nil, fmt.Errorf("instance id is required")
	}
	if next == nil {
		return "", nil, nil, fmt.Errorf("workflow %s issued no command", w.Name)
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return "", nil, nil, fmt.Errorf("marshal state: %w", err)
	}
	return id, raw, next, nil
}

// React decodes the state, applies the reaction for sig and re-encodes the state.
func (w *Workflow[S]) React(raw json.RawMessage, sig Message) (json.RawMessage, Outcome, error) {
	reaction, ok := w.Reactions[sig.MessageType()]
	if !ok {
		return nil, Outcome{}, NewNoReactionError(w.Name, sig.MessageType())
	}

	var state S
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &state); err != nil {
			return nil, Outcome{}, fmt.Errorf("unmarshal state: %w", err)
		}
	}

	outcome, err := reaction(&state, sig)
	if err != nil {
		return nil, Outcome{}, err
	}
	if outcome.Message == nil {
		return nil, Outcome{}, fmt.Errorf("reaction to %s produced no message", sig.MessageType())
	}

	next, err := json.Marshal(state)
	if err != nil {
		return nil, Outcome{}, fmt.Errorf("marshal state: %w", err)
	}
	return next, outcome, nil
}

// MergeReactions combines reaction tables. A signal type present in more
// than one table is a definition error.
func MergeReactions[S any](tables ...map[string]Reaction[S]) (map[string]Reaction[S], error) {
	merged := make(map[string]Reaction[S])
	for _, table := range tables {
		for signalType, reaction := range table {
			if _, ok := merged[signalType]; ok {
				return nil, fmt.Errorf("duplicate reaction for %s", signalType)
			}
			merged[signalType] = reaction
		}
	}
	return merged, nil
}

// validateDefinition checks that routes and reactions describe the same
// signal types.
func validateDefinition(def Definition) error {
	if def.Type() == "" {
		return NewInvalidDefinitionError(def.Type(), "workflow name is required")
	}
	if def.InitiatedBy() == "" {
		return NewInvalidDefinitionError(def.Type(), "initiating command is required")
	}
	for signalType, rule := range def.Routing() {
		if rule == nil {
			return NewInvalidDefinitionError(def.Type(), fmt.Sprintf("nil route for %s", signalType))
		}
		if !def.Reacts(signalType) {
			return NewNoReactionError(def.Type(), signalType)
		}
	}
	if w, ok := def.(interface{ reactionTypes() []string }); ok {
		for _, signalType := range w.reactionTypes() {
			if _, routed := def.Routing()[signalType]; !routed {
				return NewInvalidDefinitionError(def.Type(), fmt.Sprintf("reaction for %s has no route", signalType))
			}
		}
	}
	if w, ok := def.(interface{ steps() map[string][]string }); ok {
		for signalType, preceding := range w.steps() {
			if !def.Reacts(signalType) {
				return NewInvalidDefinitionError(def.Type(), fmt.Sprintf("step for %s has no reaction", signalType))
			}
			if len(preceding) == 0 {
				return NewInvalidDefinitionError(def.Type(), fmt.Sprintf("step for %s is never reachable", signalType))
			}
			for _, t := range preceding {
				if t != Started && !def.Reacts(t) {
					return NewInvalidDefinitionError(def.Type(), fmt.Sprintf("%s follows %s, which has no reaction", signalType, t))
				}
			}
		}
	}
	return nil
}

func (w *Workflow[S]) steps() map[string][]string { return w.After }

func (w *Workflow[S]) reactionTypes() []string {
	types := make([]string, 0, len(w.Reactions))
	for signalType := range w.Reactions {
		types = append(types, signalType)
	}
	return types
}

// Ensure Workflow implements Definition.
var _ Definition = (*Workflow[struct{}])(nil)
