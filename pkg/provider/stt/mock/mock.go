// Package mock provides a test double for [stt.Provider].
//
// Set Text/Err for a fixed answer, or Script for per-call answers consumed
// in order. Every call is recorded.
//
// Example:
//
//	p := &mock.Provider{Text: "merhaba"}
//	text, _ := p.Transcribe(ctx, clip, "tr")
//	p.Calls()[0].Language // "tr"
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/vzynszice/voice-interview-system/pkg/audio"
	"github.com/vzynszice/voice-interview-system/pkg/provider/stt"
)

var _ stt.Provider = (*Provider)(nil)

// Response is one scripted answer.
type Response struct {
	Text string
	Err  error
}

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	Clip     audio.Clip
	Language string
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu    sync.Mutex
	calls []TranscribeCall

	// Script holds per-call responses consumed in order. Once exhausted, Text
	// and Err are returned.
	Script []Response

	// Text is returned when Script is exhausted.
	Text string

	// Err, if non-nil, is returned when Script is exhausted.
	Err error

	// Delay makes each call wait before answering. The wait is cut short by
	// ctx, in which case ctx.Err() is returned.
	Delay time.Duration

	// OnCall, if set, is invoked at the start of every call.
	OnCall func()
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, clip audio.Clip, language string) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, TranscribeCall{Clip: clip, Language: language})
	resp := Response{Text: p.Text, Err: p.Err}
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
			return "", ctx.Err()
		}
	}
	return resp.Text, resp.Err
}

// Calls returns a copy of all recorded calls.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranscribeCall, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount returns the number of Transcribe calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
