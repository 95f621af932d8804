// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs streaming WebSocket API. It implements the tts.Provider interface.
//
// The stream-input endpoint is used in batch fashion: the whole line is sent,
// flushed, and the audio chunks are collected until the server marks the
// generation final.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/vzynszice/voice-interview-system/pkg/audio"
	"github.com/vzynszice/voice-interview-system/pkg/provider/tts"
)

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

const (
	providerName      = "elevenlabs"
	defaultWSBase     = "wss://api.elevenlabs.io"
	defaultAPIBase    = "https://api.elevenlabs.io"
	defaultModel      = "eleven_flash_v2_5"
	defaultOutputFmt  = "pcm_16000"
	defaultVoice      = "21m00Tcm4TlvDq8ikWAM"
	maxMessageBytes   = 1 << 22
	streamInputPath   = "/v1/text-to-speech/%s/stream-input"
	voicesPath        = "/v1/voices"
	defaultStability  = 0.5
	defaultSimilarity = 0.75
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithVoice sets the voice ID used for synthesis.
func WithVoice(id string) Option {
	return func(p *Provider) {
		p.voice = id
	}
}

// WithOutputFormat sets the audio output format (e.g., "pcm_16000", "pcm_24000").
// Only raw PCM formats are accepted.
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithEndpoint overrides the WebSocket and REST base URLs. Tests point both
// at an httptest server.
func WithEndpoint(wsBase, apiBase string) Option {
	return func(p *Provider) {
		p.wsBase = strings.TrimRight(wsBase, "/")
		p.apiBase = strings.TrimRight(apiBase, "/")
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	model        string
	voice        string
	outputFormat string
	sampleRate   int
	wsBase       string
	apiBase      string
	httpClient   *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		voice:        defaultVoice,
		outputFormat: defaultOutputFmt,
		wsBase:       defaultWSBase,
		apiBase:      defaultAPIBase,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	if p.voice == "" {
		return nil, errors.New("elevenlabs: voice must not be empty")
	}
	rate, err := parseOutputFormat(p.outputFormat)
	if err != nil {
		return nil, err
	}
	p.sampleRate = rate
	return p, nil
}

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	Flush         bool           `json:"flush,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// boiMessage is used for the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
	OutputFormat  string         `json:"output_format,omitempty"`
}

// Synthesize implements tts.Provider. It opens one WebSocket per call.
func (p *Provider) Synthesize(ctx context.Context, text, language string) (audio.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return audio.Clip{}, &tts.SynthesisError{Provider: providerName, Err: errors.New("empty text")}
	}

	conn, resp, err := websocket.Dial(ctx, p.streamURL(language), nil)
	if err != nil {
		se := &tts.SynthesisError{Provider: providerName, Err: fmt.Errorf("dial: %w", err)}
		if resp != nil {
			se.StatusCode = resp.StatusCode
		}
		return audio.Clip{}, se
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxMessageBytes)

	msgs := []any{
		boiMessage{
			Text:          " ", // ElevenLabs requires a non-empty first text value
			VoiceSettings: &voiceSettings{Stability: defaultStability, SimilarityBoost: defaultSimilarity},
			XiAPIKey:      p.apiKey,
			OutputFormat:  p.outputFormat,
		},
		textMessage{Text: text + " ", Flush: true},
		textMessage{Text: ""}, // end of input
	}
	for _, m := range msgs {
		if err := writeJSON(ctx, conn, m); err != nil {
			return audio.Clip{}, &tts.SynthesisError{Provider: providerName, Err: err}
		}
	}

	pcm, err := collectAudio(ctx, conn)
	if err != nil {
		return audio.Clip{}, &tts.SynthesisError{Provider: providerName, Err: err}
	}
	conn.Close(websocket.StatusNormalClosure, "done")

	return audio.Clip{Data: pcm, SampleRate: p.sampleRate, Channels: 1}, nil
}

// collectAudio reads audio messages until the final marker or a normal close.
func collectAudio(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	var pcm []byte
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure && len(pcm) > 0 {
				return pcm, nil
			}
			return nil, fmt.Errorf("read: %w", err)
		}
		var msg audioResponse
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		if msg.Error != "" {
			return nil, fmt.Errorf("server: %s", msg.Error)
		}
		if msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return nil, fmt.Errorf("decode audio: %w", err)
			}
			pcm = append(pcm, chunk...)
		} else if msg.Message != "" && !msg.IsFinal {
			return nil, fmt.Errorf("server: %s", msg.Message)
		}
		if msg.IsFinal {
			if len(pcm) == 0 {
				return nil, errors.New("no audio received")
			}
			return pcm, nil
		}
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (p *Provider) streamURL(language string) string {
	q := url.Values{}
	q.Set("model_id", p.model)
	q.Set("output_format", p.outputFormat)
	if language != "" {
		q.Set("language_code", language)
	}
	return p.wsBase + fmt.Sprintf(streamInputPath, url.PathEscape(p.voice)) + "?" + q.Encode()
}

// ---- ListVoices ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available from ElevenLabs for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+voicesPath, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return toVoices(vr), nil
}

func toVoices(vr voicesResponse) []tts.Voice {
	voices := make([]tts.Voice, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		voices = append(voices, tts.Voice{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: providerName,
			Metadata: meta,
		})
	}
	return voices
}

// parseOutputFormat extracts the sample rate from a "pcm_<rate>" format name.
func parseOutputFormat(format string) (int, error) {
	rest, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: output format %q is not raw PCM", format)
	}
	rate, err := strconv.Atoi(rest)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("elevenlabs: invalid sample rate in output format %q", format)
	}
	return rate, nil
}
