// Package tts defines the Provider interface for text-to-speech backends.
//
// A provider renders one complete interviewer line to PCM audio. Engines
// that stream internally (ElevenLabs) collect their output before returning
// so that playback starts from a whole clip and a failed synthesis never
// leaves half a sentence on the speaker.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"fmt"

	"github.com/vzynszice/voice-interview-system/pkg/audio"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text spoken in language (a BCP-47 base tag such as
	// "tr") and returns the PCM clip. Failures are reported as
	// *[SynthesisError].
	Synthesize(ctx context.Context, text, language string) (audio.Clip, error)
}

// Voice describes one voice offered by a backend.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which backend this voice belongs to.
	Provider string

	// Metadata holds provider-specific attributes (gender, accent, model).
	Metadata map[string]string
}

// VoiceLister is implemented by providers that can enumerate their voices.
// The CLI uses it to help pick a voice for the configuration file.
type VoiceLister interface {
	ListVoices(ctx context.Context) ([]Voice, error)
}

// SynthesisError wraps a provider-specific synthesis failure.
type SynthesisError struct {
	// Provider is the registry name of the failing backend.
	Provider string

	// StatusCode is the HTTP status returned by the backend, or 0.
	StatusCode int

	Err error
}

// Error implements the error interface.
func (e *SynthesisError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("tts: %s: HTTP %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("tts: %s: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *SynthesisError) Unwrap() error { return e.Err }
