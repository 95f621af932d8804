// Package llm defines the Provider interface for large language model
// backends used as the interview Generator and, optionally, as a translator.
//
// The interview pipeline needs exactly one operation: given a system prompt
// and the conversation so far, produce the interviewer's next line. Streaming
// and tool calling are deliberately absent from the interface.
//
// Implementations must be safe for concurrent use and must return promptly
// when ctx is cancelled.
package llm

import (
	"context"
	"fmt"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single entry in the conversation history.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the text of the message.
	Content string
}

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
// At minimum one of SystemPrompt or Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is the high-priority instruction injected before the
	// conversation history.
	SystemPrompt string

	// Messages is the ordered conversation history. The last message is
	// typically from the user role.
	Messages []Message

	// Temperature controls output randomness in [0.0, 2.0]. Zero leaves the
	// provider default in place.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider
	// default.
	MaxTokens int

	// Language is the BCP-47 base tag the reply is expected in. Model-backed
	// providers carry it in the prompt; canned providers use it directly.
	Language string

	// Phase is the interview phase the reply belongs to (e.g. "technical").
	// Optional hint for providers that do not understand the prompt.
	Phase string
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// FinishReason reports why generation stopped ("stop", "length", ...).
	FinishReason string

	// Usage contains token accounting for this request.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full reply.
	// Failures are reported as *[GenerationError].
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// GenerationError wraps a provider-specific completion failure.
type GenerationError struct {
	// Provider is the registry name of the failing backend.
	Provider string

	// Model is the model the request was sent to, when known.
	Model string

	Err error
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("llm: %s (%s): %v", e.Provider, e.Model, e.Err)
	}
	return fmt.Sprintf("llm: %s: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *GenerationError) Unwrap() error { return e.Err }
