// Package deepgram provides a Deepgram-backed transcriber using the Deepgram
// streaming WebSocket API in batch mode: the whole utterance is streamed,
// the stream is closed with a CloseStream message, and the final results are
// joined once the server hangs up.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/vzynszice/voice-interview-system/pkg/audio"
	"github.com/vzynszice/voice-interview-system/pkg/provider/stt"
)

const (
	providerName     = "deepgram"
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"

	// chunkBytes is the size of each binary message; Deepgram recommends
	// 20-250ms of audio per message.
	chunkBytes = 8000
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithKeyterms adds vocabulary hints for terms likely to appear in answers,
// such as technology names from the job requirements.
func WithKeyterms(terms ...string) Option {
	return func(p *Provider) {
		p.keyterms = append(p.keyterms, terms...)
	}
}

// WithEndpoint overrides the WebSocket endpoint. Used by tests and for
// self-hosted Deepgram deployments.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey   string
	model    string
	endpoint string
	keyterms []string
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, clip audio.Clip, language string) (string, error) {
	if clip.Empty() {
		return "", p.fail(0, errors.New("empty audio"))
	}
	wsURL, err := p.buildURL(clip.Format(), language)
	if err != nil {
		return "", p.fail(0, fmt.Errorf("build URL: %w", err))
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return "", p.fail(status, fmt.Errorf("dial: %w", err))
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 20)

	// Send and receive concurrently so a slow reader never stalls the server.
	writeErr := make(chan error, 1)
	go func() {
		writeErr <- p.stream(ctx, conn, clip.Data)
	}()

	var finals []string
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			if ctx.Err() != nil {
				return "", p.fail(0, ctx.Err())
			}
			return "", p.fail(0, fmt.Errorf("read: %w", err))
		}
		res, ok := parseDeepgramResponse(msg)
		if !ok {
			continue
		}
		if res.isFinal && res.text != "" {
			finals = append(finals, res.text)
		}
	}
	if err := <-writeErr; err != nil {
		return "", p.fail(0, err)
	}
	conn.Close(websocket.StatusNormalClosure, "")
	return strings.Join(finals, " "), nil
}

// stream sends pcm in chunks and then asks Deepgram to flush and close.
func (p *Provider) stream(ctx context.Context, conn *websocket.Conn, pcm []byte) error {
	for off := 0; off < len(pcm); off += chunkBytes {
		end := min(off+chunkBytes, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return fmt.Errorf("write audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("write CloseStream: %w", err)
	}
	return nil
}

// buildURL constructs the Deepgram streaming endpoint URL for the given
// audio format and language.
func (p *Provider) buildURL(f audio.Format, language string) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	if language != "" {
		q.Set("language", language)
	} else {
		q.Set("detect_language", "true")
	}
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(f.SampleRate))
	q.Set("channels", strconv.Itoa(max(f.Channels, 1)))
	for _, kt := range p.keyterms {
		q.Add("keyterm", kt)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (p *Provider) fail(status int, err error) error {
	return &stt.TranscriptionError{Provider: providerName, StatusCode: status, Err: err}
}

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type result struct {
	text       string
	confidence float64
	isFinal    bool
}

// parseDeepgramResponse parses a raw Deepgram WebSocket message. It returns
// false for messages that are not transcription results (Metadata,
// SpeechStarted, UtteranceEnd).
func parseDeepgramResponse(data []byte) (result, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return result{}, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return result{}, false
	}
	alt := resp.Channel.Alternatives[0]
	return result{
		text:       strings.TrimSpace(alt.Transcript),
		confidence: alt.Confidence,
		isFinal:    resp.IsFinal,
	}, true
}
