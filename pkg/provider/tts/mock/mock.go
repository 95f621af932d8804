// Package mock provides a test double for [tts.Provider].
//
// With no configuration the mock answers every call with a short silent clip,
// so orchestrator tests only need to set fields they assert on.
//
// Example:
//
//	p := &mock.Provider{Voices: []tts.Voice{{ID: "v1", Name: "Alice"}}}
//	clip, _ := p.Synthesize(ctx, "Merhaba", "tr")
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/vzynszice/voice-interview-system/pkg/audio"
	"github.com/vzynszice/voice-interview-system/pkg/provider/tts"
)

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

// DefaultClip is returned when neither Script nor Clip supplies audio:
// 20 ms of 16 kHz mono silence.
var DefaultClip = audio.Clip{Data: make([]byte, 640), SampleRate: 16000, Channels: 1}

// Response is one scripted answer.
type Response struct {
	Clip audio.Clip
	Err  error
}

// SynthesizeCall records a single invocation of Provider.Synthesize.
type SynthesizeCall struct {
	Text     string
	Language string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu    sync.Mutex
	calls []SynthesizeCall

	// Script holds per-call responses consumed in order. Once exhausted, Clip
	// and Err are returned.
	Script []Response

	// Clip is returned when Script is exhausted. A zero Clip means DefaultClip.
	Clip audio.Clip

	// Err, if non-nil, is returned when Script is exhausted.
	Err error

	// Delay makes each call wait before answering, or until ctx is done.
	Delay time.Duration

	// OnCall, if set, is invoked at the start of every call.
	OnCall func()

	// Voices and VoicesErr are returned by ListVoices.
	Voices    []tts.Voice
	VoicesErr error
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text, language string) (audio.Clip, error) {
	p.mu.Lock()
	p.calls = append(p.calls, SynthesizeCall{Text: text, Language: language})
	resp := Response{Clip: p.Clip, Err: p.Err}
	if len(p.Script) > 0 {
		resp = p.Script[0]
		p.Script = p.Script[1:]
	}
	delay, hook := p.Delay, p.OnCall
	p.mu.Unlock()

	if hook != nil {
		hook()
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return audio.Clip{}, ctx.Err()
		}
	}
	if resp.Err != nil {
		return audio.Clip{}, resp.Err
	}
	if resp.Clip.Empty() {
		return DefaultClip, nil
	}
	return resp.Clip, nil
}

// ListVoices implements tts.VoiceLister.
func (p *Provider) ListVoices(_ context.Context) ([]tts.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Voices, p.VoicesErr
}

// Calls returns a copy of all recorded Synthesize calls.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount returns the number of Synthesize calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
