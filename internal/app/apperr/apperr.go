package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindUnknown         Kind = ""
	KindValidation      Kind = "validation"
	KindUnauthenticated Kind = "unauthenticated"
	KindAuthorization   Kind = "authorization"
	KindNotFound        Kind = "not_found"
	KindStateConflict   Kind = "state_conflict"
	KindNotOnboarded    Kind = "not_onboarded"
	KindDuplicate       Kind = "duplicate"
	KindExternal        Kind = "external"
)

// Error classifies a failure for transport mapping. The wrapped error keeps
// domain sentinels reachable through errors.Is.
type Error struct {
	Kind      Kind
	Op        string
	Msg       string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		fmt.Fprintf(&b, "%s: %v", e.Msg, e.Err)
	case e.Msg != "":
		b.WriteString(e.Msg)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	default:
		b.WriteString(string(e.Kind))
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Message is the client-facing text: Msg when set, otherwise the cause.
func (e *Error) Message() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Validation(op string, err error) error    { return wrap(KindValidation, op, err) }
func NotFound(op string, err error) error      { return wrap(KindNotFound, op, err) }
func Authorization(op string, err error) error { return wrap(KindAuthorization, op, err) }
func Conflict(op string, err error) error      { return wrap(KindStateConflict, op, err) }
func NotOnboarded(op string, err error) error  { return wrap(KindNotOnboarded, op, err) }
func Duplicate(op string, err error) error     { return wrap(KindDuplicate, op, err) }

func Unauthenticated(op string) error {
	return &Error{Kind: KindUnauthenticated, Op: op, Msg: "authentication required"}
}

func Invalid(op, msg string) error {
	return &Error{Kind: KindValidation, Op: op, Msg: msg}
}

func Forbidden(op, msg string) error {
	return &Error{Kind: KindAuthorization, Op: op, Msg: msg}
}

// External wraps a processor failure. Deadline expiry is always retryable.
func External(op string, err error, retryable bool) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		retryable = true
	}
	return &Error{Kind: KindExternal, Op: op, Msg: "payment processor error", Retryable: retryable, Err: err}
}

// KindOf returns the outermost classification of err.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
