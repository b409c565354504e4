package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure for transport mapping.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindInvalidArgument marks malformed caller input, rejected before any side effect.
	KindInvalidArgument
	// KindUnauthenticated marks a missing or unverifiable caller identity.
	KindUnauthenticated
	// KindPermissionDenied marks a verified caller lacking a required capability.
	KindPermissionDenied
	// KindFailedPrecondition marks a valid request against invalid state,
	// e.g. insufficient balance or a non-completed order.
	KindFailedPrecondition
	// KindInternal marks upstream or service failures.
	KindInternal
)

// Error is a kind-typed error carrying an operator-facing message.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func InvalidArgument(format string, args ...any) error {
	return &Error{Kind: KindInvalidArgument, Msg: fmt.Sprintf(format, args...)}
}

func Unauthenticated(format string, args ...any) error {
	return &Error{Kind: KindUnauthenticated, Msg: fmt.Sprintf(format, args...)}
}

func PermissionDenied(format string, args ...any) error {
	return &Error{Kind: KindPermissionDenied, Msg: fmt.Sprintf(format, args...)}
}

func FailedPrecondition(format string, args ...any) error {
	return &Error{Kind: KindFailedPrecondition, Msg: fmt.Sprintf(format, args...)}
}

func Internal(format string, args ...any) error {
	return &Error{Kind: KindInternal, Msg: fmt.Sprintf(format, args...)}
}

// InternalWrap keeps the cause unwrappable for errors.Is/As chains.
func InternalWrap(err error, format string, args ...any) error {
	return &Error{Kind: KindInternal, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the classification from err, KindUnknown if untyped.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}
