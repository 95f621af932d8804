// Package mock provides a test double for [translate.Provider].
//
// Set Text/Err for a fixed answer, or Script for per-call answers consumed in
// order. With neither set, the mock echoes the input tagged with the target
// language, e.g. "[en] merhaba".
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/vzynszice/voice-interview-system/pkg/provider/translate"
)

var _ translate.Provider = (*Provider)(nil)

// Response is one scripted answer.
type Response struct {
	Text string
	Err  error
}

// TranslateCall records a single invocation of Provider.Translate.
type TranslateCall struct {
	Text string
	From string
	To   string
}

// Provider is a mock implementation of translate.Provider.
type Provider struct {
	mu    sync.Mutex
	calls []TranslateCall

	// Script holds per-call responses consumed in order.
	Script []Response

	// Text is returned when Script is exhausted. Empty means echo.
	Text string

	// Err, if non-nil, is returned when Script is exhausted.
	Err error

	// Delay makes each call wait before answering, or until ctx is done.
	Delay time.Duration

	// OnCall, if set, is invoked at the start of every call.
	OnCall func()
}

// Translate implements translate.Provider.
func (p *Provider) Translate(ctx context.Context, text, from, to string) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, TranslateCall{Text: text, From: from, To: to})
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
	if resp.Err != nil {
		return "", resp.Err
	}
	if resp.Text == "" {
		return "[" + to + "] " + text, nil
	}
	return resp.Text, nil
}

// Calls returns a copy of all recorded calls.
func (p *Provider) Calls() []TranslateCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranslateCall, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount returns the number of Translate calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
