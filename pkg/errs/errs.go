package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by who can fix it.
type Kind int

const (
	// KindInternal is any unexpected failure.
	KindInternal Kind = iota
	// KindInput is a user-correctable request problem.
	KindInput
	// KindArtifact is a missing, corrupt or mismatched artifact pair (operator-correctable).
	KindArtifact
	// KindDimension is an encoder/model width mismatch. It indicates a packaging bug.
	KindDimension
	// KindUnavailable means no artifact pair is loaded.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindArtifact:
		return "artifact"
	case KindDimension:
		return "dimension"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

var (
	ErrEmptyInput         = &Error{Kind: KindInput, Msg: "empty ingredient text"}
	ErrServiceUnavailable = &Error{Kind: KindUnavailable, Msg: "scoring unavailable: model not loaded"}
	ErrArtifactNotFound   = &Error{Kind: KindArtifact, Msg: "artifact not found"}
	ErrArtifactCorrupt    = &Error{Kind: KindArtifact, Msg: "artifact corrupt"}
	ErrDimensionMismatch  = &Error{Kind: KindDimension, Msg: "dimension mismatch"}
)

// Error carries a Kind alongside the wrapped cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String() + " error"
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors by kind and message so that wrapped copies
// created with Wrap still satisfy errors.Is against the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Msg == t.Msg
}

// Wrap attaches op and cause to a sentinel, preserving errors.Is matching.
func Wrap(sentinel *Error, op string, cause error) error {
	return &Error{Kind: sentinel.Kind, Op: op, Msg: sentinel.Msg, Err: cause}
}

// Wrapf is Wrap with a formatted cause.
func Wrapf(sentinel *Error, op, format string, args ...any) error {
	return Wrap(sentinel, op, fmt.Errorf(format, args...))
}

// Internal wraps an unexpected failure.
func Internal(op string, cause error) error {
	return &Error{Kind: KindInternal, Op: op, Msg: "internal error", Err: cause}
}

// KindOf returns the Kind of the first *Error in the chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
