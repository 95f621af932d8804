package resilience

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStageTimeout classifies an attempt that hit the stage timeout.
	ErrStageTimeout = errors.New("resilience: stage timeout")

	// ErrProviderFailure classifies an attempt the provider rejected.
	ErrProviderFailure = errors.New("resilience: provider failure")

	// ErrStageExhausted matches every [*ExhaustedError].
	ErrStageExhausted = errors.New("resilience: stage exhausted")

	// ErrCancelled is returned when the caller's context ends during an
	// execution. The returned error also wraps the context's error.
	ErrCancelled = errors.New("resilience: cancelled")

	// ErrEmptyRanking is reported by [NewRanking] for a ranking without
	// candidates.
	ErrEmptyRanking = errors.New("resilience: empty provider ranking")
)

// ProviderFailure is the last error of one provider in an exhausted ranking.
type ProviderFailure struct {
	Provider string
	Err      error
}

// ExhaustedError reports that every provider of a stage failed. Failures
// holds exactly one entry per provider tried, in ranking order.
type ExhaustedError struct {
	Stage    string
	Failures []ProviderFailure
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "resilience: stage %s exhausted", e.Stage)
	for i, f := range e.Failures {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %v", f.Provider, f.Err)
	}
	return b.String()
}

// Is reports whether target is [ErrStageExhausted].
func (e *ExhaustedError) Is(target error) bool { return target == ErrStageExhausted }

// Unwrap exposes the per-provider errors to errors.Is and errors.As.
func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Providers returns the names of the failed providers in order.
func (e *ExhaustedError) Providers() []string {
	names := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		names[i] = f.Provider
	}
	return names
}
