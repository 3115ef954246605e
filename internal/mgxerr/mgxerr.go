// Package mgxerr implements the closed error-kind taxonomy from spec.md §7
// as a single tagged error type. Components return (value, error) and wrap
// failures with New/Wrap so the executor can switch on Kind without type
// assertions scattered across the codebase.
package mgxerr

import (
	"errors"
	"fmt"

	"github.com/mgxlabs/orchestrator/internal/types"
)

// Error is a tagged error carrying a closed Kind, a human-readable message
// and an optional structured detail bag. It satisfies the error interface.
type Error struct {
	Kind    types.ErrorKind
	Message string
	Detail  map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no cause.
func New(kind types.ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(kind types.ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new Error of the given kind.
func Wrap(kind types.ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetail returns a copy of e with Detail set.
func (e *Error) WithDetail(detail map[string]any) *Error {
	cp := *e
	cp.Detail = detail
	return &cp
}

// WrapPreserving wraps cause with message, keeping cause's own Kind and
// Detail if it is already a structured *Error, or falling back to
// defaultKind otherwise. Used where an inner call site has already
// classified its own failure (e.g. a parse_error from a malformed diff)
// and a surrounding step must not collapse that back to its own generic
// kind (e.g. patch_error).
func WrapPreserving(defaultKind types.ErrorKind, message string, cause error) *Error {
	var e *Error
	if errors.As(cause, &e) {
		return &Error{Kind: e.Kind, Message: message, Detail: e.Detail, Cause: cause}
	}
	return &Error{Kind: defaultKind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error, and
// types.ErrInternal otherwise.
func KindOf(err error) types.ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return types.ErrInternal
}

// ToRunError converts err into the structured form persisted on a TaskRun.
func ToRunError(err error) *types.RunError {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &types.RunError{Kind: e.Kind, Message: e.Message, Detail: e.Detail}
	}
	return &types.RunError{Kind: types.ErrInternal, Message: err.Error()}
}
