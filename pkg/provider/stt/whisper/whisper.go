// Package whisper provides whisper.cpp-backed transcribers.
//
// [Provider] talks to a running whisper-server binary over its REST API
// (POST /inference). [NativeProvider] links the whisper.cpp library directly
// through its cgo bindings and avoids the HTTP hop. Both are batch engines:
// each call transcribes one complete utterance.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithModel("small"))
//	text, err := p.Transcribe(ctx, utt.Audio, "tr")
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/vzynszice/voice-interview-system/pkg/audio"
	"github.com/vzynszice/voice-interview-system/pkg/provider/stt"
)

const (
	providerName = "whisper"

	// whisper.cpp expects 16 kHz mono input; other formats are converted
	// before upload.
	modelSampleRate = 16000

	defaultTemperature = 0.0
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base", "small"). When empty the server uses whichever model it
// was started with; this is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithTemperature sets the decoding temperature sent with each request.
// Defaults to 0 (greedy).
func WithTemperature(t float64) Option {
	return func(p *Provider) {
		p.temperature = t
	}
}

// WithHTTPClient overrides the HTTP client. Per-call deadlines come from the
// context, so the client should not carry its own timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL   string
	model       string
	temperature float64
	httpClient  *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:   strings.TrimRight(serverURL, "/"),
		temperature: defaultTemperature,
		httpClient:  &http.Client{Timeout: 2 * time.Minute},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider. The clip is converted to 16 kHz mono,
// wrapped in a WAV container and uploaded as multipart/form-data.
func (p *Provider) Transcribe(ctx context.Context, clip audio.Clip, language string) (string, error) {
	if clip.Empty() {
		return "", &stt.TranscriptionError{Provider: providerName, Err: errors.New("empty audio")}
	}
	clip = audio.Convert(clip, audio.Format{SampleRate: modelSampleRate, Channels: 1})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", p.fail(0, fmt.Errorf("create form file: %w", err))
	}
	if _, err := fw.Write(audio.EncodeWAV(clip)); err != nil {
		return "", p.fail(0, fmt.Errorf("write wav data: %w", err))
	}

	fields := map[string]string{
		"response_format": "json",
		"temperature":     fmt.Sprintf("%.2f", p.temperature),
	}
	if language != "" {
		fields["language"] = language
	}
	if p.model != "" {
		fields["model"] = p.model
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return "", p.fail(0, fmt.Errorf("write %s field: %w", k, err))
		}
	}
	if err := mw.Close(); err != nil {
		return "", p.fail(0, fmt.Errorf("close multipart writer: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return "", p.fail(0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", p.fail(0, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", p.fail(resp.StatusCode, fmt.Errorf("read response body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", p.fail(resp.StatusCode, fmt.Errorf("%s", bytes.TrimSpace(data)))
	}

	var result struct {
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", p.fail(resp.StatusCode, fmt.Errorf("parse JSON response: %w", err))
	}
	if result.Error != "" {
		return "", p.fail(resp.StatusCode, errors.New(result.Error))
	}
	return strings.TrimSpace(result.Text), nil
}

func (p *Provider) fail(status int, err error) error {
	return &stt.TranscriptionError{Provider: providerName, StatusCode: status, Err: err}
}
