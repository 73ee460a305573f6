package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Code categorizes store errors.
type Code string

const (
	// CodeNotFound indicates no version of the entity is visible at the
	// requested commit.
	CodeNotFound Code = "NOT_FOUND"

	// CodeInvariantViolation indicates a write would break the
	// single-current or no-overlap guarantees. The enclosing transaction is
	// aborted.
	CodeInvariantViolation Code = "INVARIANT_VIOLATION"

	// CodeForkDetected indicates an incoming commit does not extend the
	// recorded head.
	CodeForkDetected Code = "FORK_DETECTED"

	// CodeConnection indicates the database could not be reached.
	CodeConnection Code = "CONNECTION_ERROR"

	// CodeTransaction indicates a transaction failed to commit or was
	// aborted by the database.
	CodeTransaction Code = "TRANSACTION_ERROR"

	// CodeInvalidInput indicates a malformed argument.
	CodeInvalidInput Code = "INVALID_INPUT"

	// CodeCorruption indicates stored versions violate their invariants
	// after a rollback. It is fatal.
	CodeCorruption Code = "CORRUPTION"
)

// Error is a store failure with structured context.
//
// Two Errors match under errors.Is when their codes are equal, so the
// package sentinels below can be used to test a category:
//
//	if errors.Is(err, store.ErrNotFound) { ... }
type Error struct {
	// Code identifies the error category.
	Code Code

	// Op names the failing operation ("insert current", "rollback").
	Op string

	// Entity names the table or entity kind involved.
	Entity string

	// Key is the natural key involved, when there is one.
	Key string

	// Message is a human-readable description.
	Message string

	// Err is the underlying driver error, if any.
	Err error

	// Transient marks failures that may succeed when the whole operation is
	// retried.
	Transient bool
}

// Sentinels for errors.Is.
var (
	ErrNotFound           = &Error{Code: CodeNotFound, Message: "not found"}
	ErrInvariantViolation = &Error{Code: CodeInvariantViolation, Message: "invariant violation"}
	ErrForkDetected       = &Error{Code: CodeForkDetected, Message: "fork detected"}
	ErrConnection         = &Error{Code: CodeConnection, Message: "connection error"}
	ErrTransaction        = &Error{Code: CodeTransaction, Message: "transaction error"}
	ErrInvalidInput       = &Error{Code: CodeInvalidInput, Message: "invalid input"}
	ErrCorruption         = &Error{Code: CodeCorruption, Message: "corruption"}
)

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Entity != "" && e.Key != "" {
		fmt.Fprintf(&b, " (%s=%s)", e.Entity, e.Key)
	} else if e.Entity != "" {
		fmt.Fprintf(&b, " (%s)", e.Entity)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewNotFoundError reports that entity key has no visible version.
func NewNotFoundError(entity, key string) *Error {
	return &Error{Code: CodeNotFound, Entity: entity, Key: key, Message: "not found"}
}

// NewInvariantError reports a write that would break version invariants.
func NewInvariantError(op, entity, key, format string, args ...any) *Error {
	return &Error{
		Code:    CodeInvariantViolation,
		Op:      op,
		Entity:  entity,
		Key:     key,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewInvalidInputError reports a malformed argument.
func NewInvalidInputError(entity, key, format string, args ...any) *Error {
	return &Error{
		Code:    CodeInvalidInput,
		Entity:  entity,
		Key:     key,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewCorruptionError reports stored data that no longer satisfies the
// version invariants.
func NewCorruptionError(op, format string, args ...any) *Error {
	return &Error{Code: CodeCorruption, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NewConflictError reports a write that lost a race with a concurrent
// transaction. Retrying the whole operation sees the winner's state.
func NewConflictError(op, entity, key string, err error) *Error {
	return &Error{Code: CodeTransaction, Op: op, Entity: entity, Key: key, Message: "concurrent write", Err: err, Transient: true}
}

// CodeOf returns the code of the first *Error in err's chain, or "" when
// there is none.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsNotFound returns true if err reports a missing entity.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}

// IsInvariantViolation returns true if err reports a broken version
// invariant.
func IsInvariantViolation(err error) bool {
	return CodeOf(err) == CodeInvariantViolation
}

// IsForkDetected returns true if err reports a ledger fork.
func IsForkDetected(err error) bool {
	return CodeOf(err) == CodeForkDetected
}

// IsRetryable returns true for transient failures such as lost connections,
// serialization aborts and lock timeouts. Every write runs in a single
// transaction, so the whole operation can be retried.
func IsRetryable(err error) bool {
	var se *Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == CodeConnection || se.Transient
}

// IsFatal returns true for errors that must stop the process.
func IsFatal(err error) bool {
	return CodeOf(err) == CodeCorruption
}

// classify wraps a raw driver error into the store taxonomy.
// Errors that already carry a code pass through unchanged.
func (b Backend) classify(op, entity, key string, err error) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) != "" {
		return err
	}
	e := &Error{Op: op, Entity: entity, Key: key, Err: err}
	switch {
	case b.isUniqueViolation(err):
		e.Code = CodeInvariantViolation
		e.Message = "a current version already exists"
	case errors.Is(err, driver.ErrBadConn), isNetError(err), b.isConnectionError(err):
		e.Code = CodeConnection
		e.Message = "database unavailable"
		e.Transient = true
	case errors.Is(err, context.DeadlineExceeded):
		e.Code = CodeTransaction
		e.Message = "operation timed out"
		e.Transient = true
	case errors.Is(err, context.Canceled):
		e.Code = CodeTransaction
		e.Message = "operation cancelled"
	case b.isTransientTxError(err):
		e.Code = CodeTransaction
		e.Message = "transaction aborted"
		e.Transient = true
	default:
		e.Code = CodeTransaction
		e.Message = "statement failed"
	}
	return e
}

func isNetError(err error) bool {
	var ne net.Error
	return errors.As(err, &ne)
}
