// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/vzynszice/voice-interview-system/pkg/audio"
	"github.com/vzynszice/voice-interview-system/pkg/provider/stt"
)

const nativeProviderName = "whisper-native"

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using whisper.cpp Go bindings
// (CGO). The model is loaded once at startup; each call creates its own
// inference context. whisper.cpp contexts are CPU-heavy, so calls are
// serialised.
type NativeProvider struct {
	model   whisperlib.Model
	threads uint

	mu sync.Mutex
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeThreads sets the number of CPU threads used per inference.
// Zero keeps the library default.
func WithNativeThreads(n uint) NativeOption {
	return func(p *NativeProvider) { p.threads = n }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{model: model}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe implements stt.Provider. whisper.cpp cannot be interrupted
// mid-inference; ctx is checked before and after the call only.
func (p *NativeProvider) Transcribe(ctx context.Context, clip audio.Clip, language string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if clip.Empty() {
		return "", &stt.TranscriptionError{Provider: nativeProviderName, Err: errors.New("empty audio")}
	}

	if clip.SampleRate != modelSampleRate {
		clip = audio.Convert(clip, audio.Format{SampleRate: modelSampleRate, Channels: clip.Channels})
	}
	samples := pcmToFloat32Mono(clip.Data, clip.Channels)

	p.mu.Lock()
	text, err := p.infer(samples, language)
	p.mu.Unlock()
	if err != nil {
		return "", &stt.TranscriptionError{Provider: nativeProviderName, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return text, nil
}

// infer runs whisper.cpp inference using a fresh context and returns the
// concatenated segment text.
func (p *NativeProvider) infer(samples []float32, language string) (string, error) {
	// Each context is NOT thread-safe, but the model can be shared.
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("create context: %w", err)
	}

	if language != "" {
		if err := wctx.SetLanguage(language); err != nil {
			slog.Warn("whisper: failed to set language, using default", "language", language, "err", err)
		}
	}
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
