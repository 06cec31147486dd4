package saga

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Engine is the process manager. It starts instances from initiating
// commands and advances them with routed signals, one writer per id.
type Engine struct {
	storage    Storage
	sink       CommandSink
	lock       Lock
	lockTTL    time.Duration
	logger     *zap.Logger
	events     *EngineEvents
	now        func() time.Time
	router     *Router
	defs       map[WorkflowType]Definition
	initiators map[string]Definition
}

// NewEngine creates an Engine for the given workflow definitions. Routes
// without a reaction, reactions without a route and duplicate workflow or
// initiator names are rejected here rather than at delivery time.
func NewEngine(storage Storage, sink CommandSink, opts EngineOptions, defs ...Definition) (*Engine, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("command sink is required")
	}

	lock := opts.Lock
	if lock == nil {
		lock = NewLocalLock()
	}
	lockTTL := opts.LockTTL
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		storage:    storage,
		sink:       sink,
		lock:       lock,
		lockTTL:    lockTTL,
		logger:     logger,
		events:     opts.Events,
		now:        now,
		defs:       make(map[WorkflowType]Definition, len(defs)),
		initiators: make(map[string]Definition, len(defs)),
	}

	for _, def := range defs {
		if def == nil {
			return nil, fmt.Errorf("nil workflow definition")
		}
		if err := validateDefinition(def); err != nil {
			return nil, err
		}
		if _, ok := e.defs[def.Type()]; ok {
			return nil, NewInvalidDefinitionError(def.Type(), "registered twice")
		}
		if other, ok := e.initiators[def.InitiatedBy()]; ok {
			return nil, NewInvalidDefinitionError(def.Type(),
				fmt.Sprintf("initiator %s already starts %s", def.InitiatedBy(), other.Type()))
		}
		e.defs[def.Type()] = def
		e.initiators[def.InitiatedBy()] = def
	}
	e.router = NewRouter(defs...)

	if !storage.IsProductionSafe() {
		logger.Warn("saga storage is not production safe")
	}

	return e, nil
}

// Initiates reports whether commandType starts a workflow.
func (e *Engine) Initiates(commandType string) bool {
	_, ok := e.initiators[commandType]
	return ok
}

// InitiatorTypes returns the initiating command types, sorted.
func (e *Engine) InitiatorTypes() []string {
	types := make([]string, 0, len(e.initiators))
	for t := range e.initiators {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Router returns the engine's routing table.
func (e *Engine) Router() *Router {
	return e.router
}

// Execute handles an initiating command: it validates the command, issues
// the first follow-up command and persists the new instance. Invalid
// commands are rejected before any state change.
func (e *Engine) Execute(ctx context.Context, cmd Message) (string, error) {
	if cmd == nil {
		return "", NewInvalidCommandError("", fmt.Errorf("command is nil"))
	}
	def, ok := e.initiators[cmd.MessageType()]
	if !ok {
		return "", NewUnknownCommandError(cmd.MessageType())
	}

	id, state, next, err := def.Begin(cmd)
	if err != nil {
		return "", NewInvalidCommandError(cmd.MessageType(), err)
	}

	token, err := e.acquire(ctx, id)
	if err != nil {
		return "", err
	}
	defer e.release(ctx, id, token)

	existing, err := e.storage.Load(ctx, id)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", id, err)
	}
	if existing != nil {
		e.logger.Warn("initiating command for existing instance",
			zap.String("saga_id", id),
			zap.String("command", cmd.MessageType()),
			zap.Bool("archived", existing.Archived),
		)
		return "", NewInstanceExistsError(id)
	}

	if err := e.sink.Send(ctx, next); err != nil {
		return "", fmt.Errorf("send %s: %w", next.MessageType(), err)
	}

	now := e.now()
	inst := &Instance{
		ID:        id,
		Workflow:  def.Type(),
		State:     state,
		Status:    StatusPending,
		Applied:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.storage.Create(ctx, inst); err != nil {
		return "", fmt.Errorf("create %s: %w", id, err)
	}

	e.logger.Info("saga started",
		zap.String("saga_id", id),
		zap.String("workflow", string(def.Type())),
		zap.String("command", next.MessageType()),
	)
	emitEvent(e.events, func() {
		if e.events.OnInstanceStarted != nil {
			e.events.OnInstanceStarted(id, def.Type(), cmd)
		}
	})
	emitEvent(e.events, func() {
		if e.events.OnCommandIssued != nil {
			e.events.OnCommandIssued(id, next)
		}
	})

	return id, nil
}

// Deliver routes an event or rejection and applies it to every target
// instance. Signals routed nowhere are a no-op. Signals for unknown or
// archived instances, duplicates and signals arriving at the wrong step are
// dropped and logged.
func (e *Engine) Deliver(ctx context.Context, sig Message) error {
	if sig == nil {
		return fmt.Errorf("signal is nil")
	}

	targets, err := e.router.Route(sig)
	if err != nil {
		e.logger.Error("unroutable signal", zap.String("signal", sig.MessageType()), zap.Error(err))
		return err
	}
	if len(targets) == 0 {
		e.logger.Debug("signal routed to no instance", zap.String("signal", sig.MessageType()))
		return nil
	}

	var errs []error
	for _, target := range targets {
		if err := e.advance(ctx, e.defs[target.Workflow], target.InstanceID, sig); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) advance(ctx context.Context, def Definition, id string, sig Message) error {
	signalType := sig.MessageType()

	token, err := e.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer e.release(ctx, id, token)

	inst, err := e.storage.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("load %s: %w", id, err)
	}

	switch {
	case inst == nil:
		e.drop(id, sig, DropUnknownInstance)
		return nil
	case inst.Workflow != def.Type():
		e.drop(id, sig, DropWorkflowMismatch)
		return nil
	case inst.Archived:
		e.drop(id, sig, DropArchived)
		return nil
	case inst.HasApplied(signalType):
		e.drop(id, sig, DropDuplicate)
		return nil
	case !def.Accepts(signalType, inst.Applied):
		e.drop(id, sig, DropOutOfOrder)
		return nil
	}

	state, outcome, err := def.React(inst.State, sig)
	if err != nil {
		var noReaction *NoReactionError
		if errors.As(err, &noReaction) {
			e.logger.Error("signal has no reaction",
				zap.String("saga_id", id),
				zap.String("workflow", string(def.Type())),
				zap.String("signal", signalType),
			)
			return err
		}
		e.logger.Error("reaction failed",
			zap.String("saga_id", id),
			zap.String("signal", signalType),
			zap.String("error", TruncateError(err)),
		)
		return NewReactionFailedError(id, signalType, err)
	}

	if err := e.sink.Send(ctx, outcome.Message); err != nil {
		return fmt.Errorf("send %s: %w", outcome.Message.MessageType(), err)
	}

	inst.State = state
	inst.Applied = append(inst.Applied, signalType)
	inst.UpdatedAt = e.now()
	if outcome.Terminal {
		inst.Archived = true
		inst.Terminal = outcome.Message.MessageType()
		inst.Status = StatusCompleted
		if outcome.Failed {
			inst.Status = StatusFailed
		}
	}

	if err := e.storage.Save(ctx, inst); err != nil {
		return fmt.Errorf("save %s: %w", id, err)
	}

	emitEvent(e.events, func() {
		if e.events.OnSignalApplied != nil {
			e.events.OnSignalApplied(id, sig)
		}
	})

	if outcome.Terminal {
		e.logger.Info("saga archived",
			zap.String("saga_id", id),
			zap.String("workflow", string(def.Type())),
			zap.String("signal", signalType),
			zap.String("terminal", inst.Terminal),
			zap.String("status", string(inst.Status)),
		)
		emitEvent(e.events, func() {
			if e.events.OnInstanceArchived != nil {
				e.events.OnInstanceArchived(id, def.Type(), outcome.Message)
			}
		})
		return nil
	}

	e.logger.Debug("saga advanced",
		zap.String("saga_id", id),
		zap.String("workflow", string(def.Type())),
		zap.String("signal", signalType),
		zap.String("command", outcome.Message.MessageType()),
	)
	emitEvent(e.events, func() {
		if e.events.OnCommandIssued != nil {
			e.events.OnCommandIssued(id, outcome.Message)
		}
	})
	return nil
}

func (e *Engine) drop(id string, sig Message, reason DropReason) {
	e.logger.Warn("signal dropped",
		zap.String("saga_id", id),
		zap.String("signal", sig.MessageType()),
		zap.String("reason", string(reason)),
	)
	emitEvent(e.events, func() {
		if e.events.OnSignalDropped != nil {
			e.events.OnSignalDropped(id, sig, reason)
		}
	})
}

func (e *Engine) acquire(ctx context.Context, id string) (string, error) {
	token, err := e.lock.Acquire(ctx, id, e.lockTTL)
	if err != nil {
		var lockedErr *InstanceLockedError
		if errors.As(err, &lockedErr) {
			return "", err
		}
		return "", fmt.Errorf("acquire lock: %w", err)
	}
	return token, nil
}

// release uses a detached context so a cancelled caller never leaks a lock.
func (e *Engine) release(ctx context.Context, id, token string) {
	if err := e.lock.Release(context.WithoutCancel(ctx), id, token); err != nil {
		e.logger.Error("release lock", zap.String("saga_id", id), zap.Error(err))
	}
}

// Instance returns the current state of an instance, or nil if unknown.
func (e *Engine) Instance(ctx context.Context, id string) (*Instance, error) {
	inst, err := e.storage.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	return inst, nil
}

// Query lists instances for read models.
func (e *Engine) Query(ctx context.Context, filter InstanceFilter) (*InstanceQueryResult, error) {
	return e.storage.Query(ctx, filter)
}

// Stale lists pending instances not updated for at least olderThan. The
// engine never times instances out; this is the operator's view of
// workflows waiting on a signal that may never arrive.
func (e *Engine) Stale(ctx context.Context, olderThan time.Duration, limit int) (*InstanceQueryResult, error) {
	cutoff := e.now().Add(-olderThan)
	return e.storage.Query(ctx, InstanceFilter{
		Status:        []InstanceStatus{StatusPending},
		UpdatedBefore: &cutoff,
		Limit:         limit,
	})
}
