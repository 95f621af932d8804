// Package llmtranslate adapts any [llm.Provider] into a translator by
// prompting the model to return a bare translation.
package llmtranslate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/vzynszice/voice-interview-system/pkg/provider/llm"
	"github.com/vzynszice/voice-interview-system/pkg/provider/translate"
)

var _ translate.Provider = (*Provider)(nil)

const defaultTemperature = 0.1

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithName overrides the provider name reported in errors (default "llm").
func WithName(name string) Option {
	return func(p *Provider) {
		p.name = name
	}
}

// WithTemperature sets the sampling temperature of translation requests.
func WithTemperature(t float64) Option {
	return func(p *Provider) {
		p.temperature = t
	}
}

// Provider implements translate.Provider on top of a chat model.
type Provider struct {
	model       llm.Provider
	name        string
	temperature float64
}

// New wraps model.
func New(model llm.Provider, opts ...Option) (*Provider, error) {
	if model == nil {
		return nil, errors.New("llmtranslate: model must not be nil")
	}
	p := &Provider{model: model, name: "llm", temperature: defaultTemperature}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Translate implements translate.Provider.
func (p *Provider) Translate(ctx context.Context, text, from, to string) (string, error) {
	resp, err := p.model.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt(from, to),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: text}},
		Temperature:  p.temperature,
		Language:     to,
	})
	if err != nil {
		return "", &translate.TranslationError{Provider: p.name, Err: err}
	}
	out := cleanTranslation(resp.Content)
	if out == "" {
		return "", &translate.TranslationError{Provider: p.name, Err: errors.New("empty translation")}
	}
	return out, nil
}

func systemPrompt(from, to string) string {
	return fmt.Sprintf(
		"You are a professional interpreter. Translate the user's message from %s to %s. "+
			"Keep the meaning and tone. Reply with the translation only, without quotes, notes or explanations.",
		languageName(from), languageName(to))
}

// languageName returns the English display name of a BCP-47 tag, or the tag
// itself when it cannot be parsed.
func languageName(tag string) string {
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	if name := display.English.Languages().Name(t); name != "" {
		return name
	}
	return tag
}

// cleanTranslation strips whitespace and a single pair of wrapping quotes
// that chat models like to add.
func cleanTranslation(s string) string {
	s = strings.TrimSpace(s)
	for _, q := range [][2]string{{`"`, `"`}, {"“", "”"}, {"'", "'"}} {
		if len(s) >= len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			return strings.TrimSpace(s[len(q[0]) : len(s)-len(q[1])])
		}
	}
	return s
}
