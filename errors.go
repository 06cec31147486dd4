package saga

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is() support
var (
	ErrInvalidCommand    = errors.New("invalid command")
	ErrInstanceExists    = errors.New("instance exists")
	ErrInstanceLocked    = errors.New("instance locked")
	ErrNoReaction        = errors.New("no reaction")
	ErrUnroutableSignal  = errors.New("unroutable signal")
	ErrUnknownCommand    = errors.New("unknown command")
	ErrConcurrentUpdate  = errors.New("concurrent update")
	ErrInvalidDefinition = errors.New("invalid definition")
	ErrReactionFailed    = errors.New("reaction failed")
)

// Error codes for saga errors
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInstanceExists    = "INSTANCE_EXISTS"
	ErrCodeInstanceLocked    = "INSTANCE_LOCKED"
	ErrCodeNoReaction        = "NO_REACTION"
	ErrCodeUnroutableSignal  = "UNROUTABLE_SIGNAL"
	ErrCodeUnknownCommand    = "UNKNOWN_COMMAND"
	ErrCodeConcurrentUpdate  = "CONCURRENT_UPDATE"
	ErrCodeInvalidDefinition = "INVALID_DEFINITION"
	ErrCodeReactionFailed    = "REACTION_FAILED"
)

// SagaError is the base error type for all saga errors.
type SagaError struct {
	Code    string
	Message string
	Cause   error
}

func (e *SagaError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SagaError) Unwrap() error {
	return e.Cause
}

// InvalidCommandError is returned when an initiating command fails validation.
// No state is created.
type InvalidCommandError struct {
	SagaError
	CommandType string
}

// NewInvalidCommandError creates a new InvalidCommandError.
func NewInvalidCommandError(commandType string, cause error) *InvalidCommandError {
	return &InvalidCommandError{
		SagaError: SagaError{
			Code:    ErrCodeInvalidCommand,
			Message: fmt.Sprintf("command '%s' rejected", commandType),
			Cause:   cause,
		},
		CommandType: commandType,
	}
}

func (e *InvalidCommandError) Is(target error) bool {
	return target == ErrInvalidCommand
}

// InstanceExistsError is returned when an initiating command targets an id
// that already has an instance.
type InstanceExistsError struct {
	SagaError
	InstanceID string
}

// NewInstanceExistsError creates a new InstanceExistsError.
func NewInstanceExistsError(id string) *InstanceExistsError {
	return &InstanceExistsError{
		SagaError: SagaError{
			Code:    ErrCodeInstanceExists,
			Message: fmt.Sprintf("saga instance '%s' already exists", id),
		},
		InstanceID: id,
	}
}

func (e *InstanceExistsError) Is(target error) bool {
	return target == ErrInstanceExists
}

// InstanceLockedError is returned when another writer holds the instance.
type InstanceLockedError struct {
	SagaError
	InstanceID string
}

// NewInstanceLockedError creates a new InstanceLockedError.
func NewInstanceLockedError(id string, cause error) *InstanceLockedError {
	return &InstanceLockedError{
		SagaError: SagaError{
			Code:    ErrCodeInstanceLocked,
			Message: fmt.Sprintf("saga instance '%s' is locked by another writer", id),
			Cause:   cause,
		},
		InstanceID: id,
	}
}

func (e *InstanceLockedError) Is(target error) bool {
	return target == ErrInstanceLocked
}

// NoReactionError is a configuration error: a signal was routed to a
// workflow that defines no reaction for it.
type NoReactionError struct {
	SagaError
	Workflow   WorkflowType
	SignalType string
}

// NewNoReactionError creates a new NoReactionError.
func NewNoReactionError(workflow WorkflowType, signalType string) *NoReactionError {
	return &NoReactionError{
		SagaError: SagaError{
			Code:    ErrCodeNoReaction,
			Message: fmt.Sprintf("workflow '%s' has no reaction for '%s'", workflow, signalType),
		},
		Workflow:   workflow,
		SignalType: signalType,
	}
}

func (e *NoReactionError) Is(target error) bool {
	return target == ErrNoReaction
}

// UnroutableSignalError is a configuration error: no workflow routes the signal type.
type UnroutableSignalError struct {
	SagaError
	SignalType string
}

// NewUnroutableSignalError creates a new UnroutableSignalError.
func NewUnroutableSignalError(signalType string) *UnroutableSignalError {
	return &UnroutableSignalError{
		SagaError: SagaError{
			Code:    ErrCodeUnroutableSignal,
			Message: fmt.Sprintf("no workflow routes signal '%s'", signalType),
		},
		SignalType: signalType,
	}
}

func (e *UnroutableSignalError) Is(target error) bool {
	return target == ErrUnroutableSignal
}

// UnknownCommandError is returned when no workflow is initiated by a command type.
type UnknownCommandError struct {
	SagaError
	CommandType string
}

// NewUnknownCommandError creates a new UnknownCommandError.
func NewUnknownCommandError(commandType string) *UnknownCommandError {
	return &UnknownCommandError{
		SagaError: SagaError{
			Code:    ErrCodeUnknownCommand,
			Message: fmt.Sprintf("no workflow is initiated by '%s'", commandType),
		},
		CommandType: commandType,
	}
}

func (e *UnknownCommandError) Is(target error) bool {
	return target == ErrUnknownCommand
}

// ConcurrentUpdateError is returned by storage when the stored version moved
// under a writer.
type ConcurrentUpdateError struct {
	SagaError
	InstanceID string
	Version    int64
}

// NewConcurrentUpdateError creates a new ConcurrentUpdateError.
func NewConcurrentUpdateError(id string, version int64) *ConcurrentUpdateError {
	return &ConcurrentUpdateError{
		SagaError: SagaError{
			Code:    ErrCodeConcurrentUpdate,
			Message: fmt.Sprintf("saga instance '%s' changed since version %d", id, version),
		},
		InstanceID: id,
		Version:    version,
	}
}

func (e *ConcurrentUpdateError) Is(target error) bool {
	return target == ErrConcurrentUpdate
}

// InvalidDefinitionError is returned by NewEngine when workflow definitions
// are inconsistent.
type InvalidDefinitionError struct {
	SagaError
	Workflow WorkflowType
}

// NewInvalidDefinitionError creates a new InvalidDefinitionError.
func NewInvalidDefinitionError(workflow WorkflowType, reason string) *InvalidDefinitionError {
	return &InvalidDefinitionError{
		SagaError: SagaError{
			Code:    ErrCodeInvalidDefinition,
			Message: fmt.Sprintf("workflow '%s': %s", workflow, reason),
		},
		Workflow: workflow,
	}
}

func (e *InvalidDefinitionError) Is(target error) bool {
	return target == ErrInvalidDefinition
}

// ReactionFailedError is returned when a reaction cannot be applied to the
// stored state. The instance is left unchanged, and redelivering the same
// signal fails the same way.
type ReactionFailedError struct {
	SagaError
	InstanceID string
	SignalType string
}

// NewReactionFailedError creates a new ReactionFailedError.
func NewReactionFailedError(id, signalType string, cause error) *ReactionFailedError {
	return &ReactionFailedError{
		SagaError: SagaError{
			Code:    ErrCodeReactionFailed,
			Message: fmt.Sprintf("saga instance '%s' cannot react to '%s'", id, signalType),
			Cause:   cause,
		},
		InstanceID: id,
		SignalType: signalType,
	}
}

func (e *ReactionFailedError) Is(target error) bool {
	return target == ErrReactionFailed
}

// TruncateError truncates an error message to MaxErrorLength.
func TruncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) <= MaxErrorLength {
		return msg
	}
	marker := "... [TRUNCATED]"
	return msg[:MaxErrorLength-len(marker)] + marker
}
