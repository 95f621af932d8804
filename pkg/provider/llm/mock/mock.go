// Package mock provides a test double for [llm.Provider].
//
// Set Content/Err for a fixed reply, or Script for per-call replies consumed
// in order. Every request is recorded.
//
// Example:
//
//	p := &mock.Provider{Content: "Hi, tell me about yourself"}
//	resp, _ := p.Complete(ctx, req)
//	p.Calls()[0].SystemPrompt
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/vzynszice/voice-interview-system/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Response is one scripted reply.
type Response struct {
	Content string
	Err     error
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu    sync.Mutex
	calls []llm.CompletionRequest

	// Script holds per-call replies consumed in order. Once exhausted,
	// Content and Err are returned.
	Script []Response

	// Content is returned when Script is exhausted.
	Content string

	// Err, if non-nil, is returned when Script is exhausted.
	Err error

	// Delay makes each call wait before answering, unless ctx ends first.
	Delay time.Duration

	// OnCall, if set, is invoked at the start of every call.
	OnCall func()
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	resp := Response{Content: p.Content, Err: p.Err}
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
			return nil, ctx.Err()
		}
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return &llm.CompletionResponse{Content: resp.Content, FinishReason: "stop"}, nil
}

// Calls returns a copy of all recorded requests.
func (p *Provider) Calls() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.CompletionRequest, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount returns the number of Complete calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
