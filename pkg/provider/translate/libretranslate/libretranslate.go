// Package libretranslate provides a translator backed by a LibreTranslate
// server (https://libretranslate.com), the self-hosted Argos Translate
// frontend.
package libretranslate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vzynszice/voice-interview-system/pkg/provider/translate"
)

var _ translate.Provider = (*Provider)(nil)

const (
	providerName      = "libretranslate"
	translateEndpoint = "/translate"
	defaultTimeout    = 30 * time.Second
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithAPIKey sets the api_key sent with each request. Self-hosted servers
// usually run without one.
func WithAPIKey(key string) Option {
	return func(p *Provider) {
		p.apiKey = key
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements translate.Provider against the LibreTranslate REST API.
type Provider struct {
	serverURL  string
	apiKey     string
	httpClient *http.Client
}

// New creates a Provider for the server at serverURL
// (e.g. "http://localhost:5000").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("libretranslate: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error"`
}

// Translate implements translate.Provider.
func (p *Provider) Translate(ctx context.Context, text, from, to string) (string, error) {
	body, err := json.Marshal(translateRequest{
		Q:      text,
		Source: from,
		Target: to,
		Format: "text",
		APIKey: p.apiKey,
	})
	if err != nil {
		return "", p.fail(0, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+translateEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", p.fail(0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", p.fail(0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", p.fail(resp.StatusCode, fmt.Errorf("read response: %w", err))
	}

	var out translateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", p.fail(resp.StatusCode, errors.New(string(bytes.TrimSpace(raw))))
		}
		return "", p.fail(resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		msg := out.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", p.fail(resp.StatusCode, errors.New(msg))
	}

	translated := strings.TrimSpace(out.TranslatedText)
	if translated == "" {
		return "", p.fail(resp.StatusCode, errors.New("empty translation"))
	}
	return translated, nil
}

func (p *Provider) fail(status int, err error) error {
	return &translate.TranslationError{Provider: providerName, StatusCode: status, Err: err}
}
