package entities

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Rejected errors: a precondition was not met. They surface directly to the
// caller and are never retried automatically.
var (
	ErrBattleNotFound      = errors.New("battle not found")
	ErrBattleNotJoinable   = errors.New("battle is not joinable")
	ErrAlreadyJoined       = errors.New("user already joined this battle")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBotsNotAllowed      = errors.New("battle does not allow bots")
	ErrNotCreator          = errors.New("only the battle creator may do this")
	ErrUserNotFound        = errors.New("user not found")
)

// ValidationError marks invalid input on battle creation or joining
type ValidationError struct {
	msg string
}

// NewValidationError creates a validation error with the given message
func NewValidationError(msg string) error {
	return &ValidationError{msg: msg}
}

func (e *ValidationError) Error() string {
	return e.msg
}

// IsRejected checks whether an error is a non-retryable precondition failure
func IsRejected(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	for _, rejected := range []error{
		ErrBattleNotFound,
		ErrBattleNotJoinable,
		ErrAlreadyJoined,
		ErrInsufficientBalance,
		ErrBotsNotAllowed,
		ErrNotCreator,
		ErrUserNotFound,
	} {
		if errors.Is(err, rejected) {
			return true
		}
	}
	return false
}

// TransientError wraps a failure of an external collaborator that is safe to
// retry with backoff, because every guarded operation is idempotent or a no-op
// on re-entry.
type TransientError struct {
	Op  string
	Err error
}

// NewTransientError wraps err as a retryable failure of the named operation
func NewTransientError(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient checks whether an error is retryable
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// InvariantViolationError indicates the idempotency guard or state machine was
// bypassed. It must halt forward progress on the battle rather than produce an
// incorrect financial outcome, and must never be silently swallowed.
type InvariantViolationError struct {
	BattleID uuid.UUID
	Reason   string
}

// NewInvariantViolation creates an invariant violation for the given battle
func NewInvariantViolation(battleID uuid.UUID, format string, args ...any) error {
	return &InvariantViolationError{BattleID: battleID, Reason: fmt.Sprintf(format, args...)}
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation on battle %s: %s", e.BattleID, e.Reason)
}

// IsInvariantViolation checks whether an error indicates a bypassed guard
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolationError
	return errors.As(err, &iv)
}
