package apperr

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failure classes. Every error returned across a
// package boundary in this service carries exactly one.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindTransform
	KindStore
	KindNotFound
	KindUnauthenticated
	KindWrongRole
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransform:
		return "transform"
	case KindStore:
		return "store"
	case KindNotFound:
		return "not_found"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindWrongRole:
		return "wrong_role"
	default:
		return "unknown"
	}
}

// Error is the tagged error value. Op names the operation that failed
// ("ingest.validate", "catalog.patch"), Field is set for validation errors.
type Error struct {
	Kind  Kind
	Op    string
	Field string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable is true only for store failures; everything else is the caller's
// input or a permanent decode problem.
func (e *Error) Retryable() bool { return e.Kind == KindStore }

func Validation(op, field, msg string) *Error {
	return &Error{Kind: KindValidation, Op: op, Field: field, Msg: msg}
}

func Transform(op, msg string, err error) *Error {
	return &Error{Kind: KindTransform, Op: op, Msg: msg, Err: err}
}

func Store(op string, err error) *Error {
	return &Error{Kind: KindStore, Op: op, Err: err}
}

func NotFound(op, msg string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Msg: msg}
}

func Unauthenticated(op string) *Error {
	return &Error{Kind: KindUnauthenticated, Op: op, Msg: "login required"}
}

func WrongRole(op string) *Error {
	return &Error{Kind: KindWrongRole, Op: op, Msg: "role not allowed"}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries kind k.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
