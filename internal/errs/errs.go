// Package errs defines the error taxonomy shared by the tool gateway and the
// orchestrator. Callers wrap these sentinels with fmt.Errorf("...: %w") and
// classify with KindOf.
package errs

import (
	"context"
	"errors"
)

var (
	// ErrValidation marks missing, forbidden or mistyped arguments.
	ErrValidation = errors.New("validation error")
	// ErrPolicy marks requests that are well-formed but not permitted.
	ErrPolicy = errors.New("policy error")
	// ErrNotFound marks an unknown tool or session.
	ErrNotFound = errors.New("not found")
	// ErrBackend marks database or connectivity failures.
	ErrBackend = errors.New("backend error")
	// ErrEngine marks reasoning-engine failures and timeouts.
	ErrEngine = errors.New("engine error")
	// ErrBoundExceeded marks a turn that hit the iteration cap.
	ErrBoundExceeded = errors.New("iteration bound exceeded")
)

// Kind is the serializable classification of an error.
type Kind string

const (
	KindNone          Kind = ""
	KindValidation    Kind = "validation"
	KindPolicy        Kind = "policy"
	KindNotFound      Kind = "not_found"
	KindBackend       Kind = "backend"
	KindEngine        Kind = "engine"
	KindBoundExceeded Kind = "bound_exceeded"
	KindCancelled     Kind = "cancelled"
)

// KindOf classifies err. Unclassified errors count as backend errors since
// everything detectable from input shape is wrapped explicitly.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrPolicy):
		return KindPolicy
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrEngine):
		return KindEngine
	case errors.Is(err, ErrBoundExceeded):
		return KindBoundExceeded
	case errors.Is(err, context.Canceled):
		return KindCancelled
	default:
		return KindBackend
	}
}
