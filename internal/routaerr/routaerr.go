// Package routaerr defines the error kinds propagated across the
// orchestration core: Validation, NotFound, AccessDenied, Transient,
// CircuitOpen, Cancelled, NoSuitableProvider, and PipelineFailure. Each kind
// is a sentinel wrapped with context via fmt.Errorf("%w", ...), so callers
// use errors.Is/errors.As rather than type-switching on a tagged union.
package routaerr

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Compare with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrAccessDenied      = errors.New("access denied")
	ErrTransient         = errors.New("transient error")
	ErrCircuitOpen       = errors.New("circuit open")
	ErrCancelled         = errors.New("cancelled")
	ErrNoSuitableProvider = errors.New("no suitable provider")
	ErrPipelineFailure   = errors.New("pipeline failure")
)

// Validation wraps ErrValidation with context, e.g. an unknown role string
// or a blank path.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

// NotFound wraps ErrNotFound for a missing agent/task/entity id.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s not found: %s: %w", kind, id, ErrNotFound)
}

// AccessDenied wraps ErrAccessDenied, e.g. a path escaping the workspace root.
func AccessDenied(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrAccessDenied)
}

// Transient wraps ErrTransient around an underlying cause (a network
// hiccup, a subprocess exit, or a timeout) so the resilient wrapper can
// retry it.
func Transient(cause error) error {
	if cause == nil {
		return fmt.Errorf("transient: %w", ErrTransient)
	}
	return fmt.Errorf("transient: %v: %w", cause, ErrTransient)
}

// CircuitOpen reports that the per-agent circuit breaker has tripped.
func CircuitOpen(agentID string) error {
	return fmt.Errorf("circuit open for agent %s: %w", agentID, ErrCircuitOpen)
}

// Cancelled reports cooperative cancellation of a run.
func Cancelled() error {
	return fmt.Errorf("cancelled: %w", ErrCancelled)
}

// NoSuitableProvider reports that the capability router found no provider
// satisfying a role's required capabilities.
func NoSuitableProvider(role string) error {
	return fmt.Errorf("no suitable provider for role %s: %w", role, ErrNoSuitableProvider)
}

// PipelineFailure wraps a stage's terminal cause once its retry budget is
// exhausted.
func PipelineFailure(stage string, cause error) error {
	return fmt.Errorf("stage %s exceeded retry budget: %v: %w", stage, cause, ErrPipelineFailure)
}

// IsTransient reports whether err (or anything it wraps) is a Transient error.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsCancelled reports whether err (or anything it wraps) is a Cancelled error.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
