// Package corvuserr defines the error-kind taxonomy shared across the
// control plane. Callers discriminate with errors.Is against the sentinel
// kinds, the same way the teacher's db package distinguished ErrRecordNotFound
// from a generic SQL error, generalized here to the full taxonomy the deploy
// pipeline, reconciler and pruner need.
package corvuserr

import (
	"errors"
	"fmt"
)

// Kind is one of the taxonomy values from the error handling design.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
	KindConflict     Kind = "conflict"
	KindBadRequest   Kind = "bad_request"
	KindBuildFailure Kind = "build_failure"
	KindDaemonError  Kind = "daemon_error"
)

// Error pairs a Kind with a message and an optional wrapped cause.
// Kind is compared with errors.Is via the sentinel kind values below, not
// by comparing *Error pointers, so wrapping with fmt.Errorf("%w") preserves
// discrimination through any number of layers.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, corvuserr.NotFound) work without comparing messages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel values usable directly with errors.Is, e.g.
// errors.Is(err, corvuserr.NotFound).
var (
	NotFound     = &Error{Kind: KindNotFound, Message: "not found"}
	Forbidden    = &Error{Kind: KindForbidden, Message: "forbidden"}
	Conflict     = &Error{Kind: KindConflict, Message: "conflict"}
	BadRequest   = &Error{Kind: KindBadRequest, Message: "bad request"}
	BuildFailure = &Error{Kind: KindBuildFailure, Message: "build failure"}
	DaemonError  = &Error{Kind: KindDaemonError, Message: "daemon error"}
)

// New builds a kind-tagged error with a specific message, optionally wrapping cause.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Wrap tags an arbitrary error with a kind, preserving it as the cause.
func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Message: kind.String(), Cause: cause}
}

func (k Kind) String() string { return string(k) }

// OfKind reports whether err (or anything it wraps) carries the given kind.
func OfKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
