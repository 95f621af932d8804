// Package stt defines the Provider interface for speech-to-text backends.
//
// A provider turns one complete utterance into text. Segmentation happens
// upstream, so providers are used in batch mode even when the underlying
// service is a streaming API (Deepgram): the whole clip is sent, the stream
// is closed, and the final transcript is returned.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"fmt"

	"github.com/vzynszice/voice-interview-system/pkg/audio"
)

// ErrEmptyTranscript reports that a provider recognised no words in the
// clip. The pipeline treats it like any other provider failure so that the
// next provider in the ranking gets a chance.
var ErrEmptyTranscript = errors.New("stt: empty transcript")

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe returns the text spoken in clip. language is a BCP-47 base
	// tag such as "tr" or "en"; an empty string lets the provider
	// auto-detect when it supports that.
	//
	// Failures are reported as *[TranscriptionError].
	Transcribe(ctx context.Context, clip audio.Clip, language string) (string, error)
}

// TranscriptionError wraps a provider-specific transcription failure.
type TranscriptionError struct {
	// Provider is the registry name of the failing backend, e.g. "deepgram".
	Provider string

	// StatusCode is the HTTP status returned by the backend, or 0 when the
	// failure happened before a response was received.
	StatusCode int

	Err error
}

// Error implements the error interface.
func (e *TranscriptionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("stt: %s: HTTP %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("stt: %s: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *TranscriptionError) Unwrap() error { return e.Err }
