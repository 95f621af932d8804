// Package translate defines the Provider interface for machine translation
// between the candidate's language and the language the interview model
// works in.
//
// Implementations must be safe for concurrent use.
package translate

import (
	"context"
	"fmt"
)

// Provider is the abstraction over any translation backend.
type Provider interface {
	// Translate renders text from language from into language to. Both are
	// BCP-47 base tags such as "tr" or "en".
	//
	// Failures are reported as *[TranslationError].
	Translate(ctx context.Context, text, from, to string) (string, error)
}

// TranslationError wraps a provider-specific translation failure.
type TranslationError struct {
	// Provider is the registry name of the failing backend.
	Provider string

	// StatusCode is the HTTP status returned by the backend, or 0.
	StatusCode int

	Err error
}

// Error implements the error interface.
func (e *TranslationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("translate: %s: HTTP %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("translate: %s: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *TranslationError) Unwrap() error { return e.Err }
