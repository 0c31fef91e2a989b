// Package failure defines the error taxonomy shared by the order engine and
// its collaborators. Every failure surfaced to a caller carries a stable Kind
// and a human-readable message.
package failure

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Kind classifies a failure for callers that need to react to it, such as the
// HTTP layer choosing a status code.
type Kind string

const (
	// KindNotFound means a referenced client, product or order does not exist.
	KindNotFound Kind = "not_found"
	// KindValidation means the request violates a business or inventory rule.
	KindValidation Kind = "validation"
	// KindConflict means the request raced with another mutation of the same order.
	KindConflict Kind = "conflict"
	// KindTransaction means the store failed mid-write and the unit of work was rolled back.
	KindTransaction Kind = "transaction"
	// KindInternal is reported for errors that did not originate from this package.
	KindInternal Kind = "internal"
)

// ErrTransaction is the reason attached to every transaction failure. Its
// message is deliberately generic: callers must never be told which step
// failed, since nothing was persisted.
var ErrTransaction = errors.New("transaction failed")

// Error is a classified failure.
//
// Reason is a package-level sentinel (for example order.ErrInsufficientStock),
// so errors.Is(err, order.ErrInsufficientStock) holds for any *Error carrying it.
// Detail names the offending product, quantity or status.
type Error struct {
	Kind   Kind
	Reason error
	Detail string

	cause error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Reason.Error()
	}
	return e.Reason.Error() + ": " + e.Detail
}

// Is reports whether target is the reason of this failure.
func (e *Error) Is(target error) bool {
	return e.Reason == target
}

// Unwrap returns the underlying cause, if any. For transaction failures this is
// the store error, kept for logging only.
func (e *Error) Unwrap() error {
	return e.cause
}

// Cause returns the underlying store error of a transaction failure.
func (e *Error) Cause() error {
	return e.cause
}

func newError(kind Kind, reason error, format string, args []any) *Error {
	detail := format
	if len(args) > 0 {
		detail = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: kind, Reason: reason, Detail: detail}
}

// NotFound builds a KindNotFound failure.
func NotFound(reason error, format string, args ...any) *Error {
	return newError(KindNotFound, reason, format, args)
}

// Validation builds a KindValidation failure.
func Validation(reason error, format string, args ...any) *Error {
	return newError(KindValidation, reason, format, args)
}

// Conflict builds a KindConflict failure.
func Conflict(reason error, format string, args ...any) *Error {
	return newError(KindConflict, reason, format, args)
}

// Transaction wraps a store error into a generic transaction failure.
func Transaction(cause error) *Error {
	return &Error{Kind: KindTransaction, Reason: ErrTransaction, cause: cause}
}

// KindOf returns the Kind of err, or KindInternal if err is not a classified
// failure. It returns the empty Kind for a nil error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// Is reports whether err is a classified failure of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
