// Package coqui provides a Coqui TTS-backed synthesizer that connects to
// either a Coqui XTTS v2 server or a standard Coqui TTS server via its REST
// API.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): targets the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is performed via GET /api/tts with
//     URL query parameters; voice catalogue is retrieved from GET /details.
//
//   - APIModeXTTS: targets the Coqui XTTS v2 API server. Synthesis is performed
//     via POST /tts_to_audio/ with a JSON body; voice catalogue is retrieved from
//     GET /studio_speakers.
//
// Coqui models degrade on long inputs, so text is split into sentences and
// each sentence is synthesised separately; the PCM is concatenated in order.
//
// Typical usage:
//
//	p, err := coqui.New("http://localhost:5002", coqui.WithVoice("p225"))
//	clip, err := p.Synthesize(ctx, "Merhaba, kendinden bahseder misin?", "tr")
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/vzynszice/voice-interview-system/pkg/audio"
	"github.com/vzynszice/voice-interview-system/pkg/provider/tts"
)

// Compile-time interface assertions.
var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

const (
	providerName           = "coqui"
	defaultTimeout         = time.Minute
	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"
)

// APIMode selects which Coqui server API the provider will target.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithVoice sets the speaker. In standard mode it is sent as speaker_id and
// may be empty for single-speaker models; in XTTS mode it is the
// speaker_wav reference and is required.
func WithVoice(id string) Option {
	return func(p *Provider) {
		p.voice = id
	}
}

// WithTimeout sets the per-request HTTP timeout for calls to the TTS server.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// WithMultilingual makes the standard-mode provider send language_id. Only
// multilingual models (YourTTS, XTTS served through /api/tts) accept it.
func WithMultilingual(on bool) Option {
	return func(p *Provider) {
		p.multilingual = on
	}
}

// Provider implements tts.Provider backed by a locally running Coqui TTS server.
type Provider struct {
	serverURL    string
	voice        string
	apiMode      APIMode
	multilingual bool
	httpClient   *http.Client
}

// New creates a new Coqui Provider that targets the TTS server at serverURL
// (e.g., "http://localhost:5002"). The default API mode is APIModeStandard.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	switch p.apiMode {
	case APIModeStandard:
	case APIModeXTTS:
		if p.voice == "" {
			return nil, errors.New("coqui: a voice is required in XTTS mode")
		}
	default:
		return nil, fmt.Errorf("coqui: unknown API mode %q", p.apiMode)
	}
	return p, nil
}

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text, language string) (audio.Clip, error) {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return audio.Clip{}, &tts.SynthesisError{Provider: providerName, Err: errors.New("empty text")}
	}

	var out audio.Clip
	for _, s := range sentences {
		clip, err := p.synthesizeSentence(ctx, s, language)
		if err != nil {
			return audio.Clip{}, err
		}
		if out.SampleRate == 0 {
			out.SampleRate, out.Channels = clip.SampleRate, clip.Channels
		} else if clip.Format() != out.Format() {
			clip = audio.Convert(clip, out.Format())
		}
		out.Data = append(out.Data, clip.Data...)
	}
	return out, nil
}

func (p *Provider) synthesizeSentence(ctx context.Context, sentence, language string) (audio.Clip, error) {
	var (
		req *http.Request
		err error
	)
	if p.apiMode == APIModeXTTS {
		req, err = p.xttsRequest(ctx, sentence, language)
	} else {
		req, err = p.standardRequest(ctx, sentence, language)
	}
	if err != nil {
		return audio.Clip{}, &tts.SynthesisError{Provider: providerName, Err: err}
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return audio.Clip{}, &tts.SynthesisError{Provider: providerName, Err: err}
	}
	defer resp.Body.Close()

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return audio.Clip{}, &tts.SynthesisError{Provider: providerName, StatusCode: resp.StatusCode, Err: fmt.Errorf("read WAV response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return audio.Clip{}, &tts.SynthesisError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s %s: %s", req.Method, req.URL.Path, bytes.TrimSpace(wav)),
		}
	}

	clip, err := audio.DecodeWAV(wav)
	if err != nil {
		return audio.Clip{}, &tts.SynthesisError{Provider: providerName, StatusCode: resp.StatusCode, Err: err}
	}
	return clip, nil
}

func (p *Provider) xttsRequest(ctx context.Context, sentence, language string) (*http.Request, error) {
	data, err := json.Marshal(ttsRequest{Text: sentence, SpeakerWav: p.voice, Language: language})
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (p *Provider) standardRequest(ctx context.Context, sentence, language string) (*http.Request, error) {
	params := url.Values{}
	params.Set("text", sentence)
	if p.voice != "" {
		params.Set("speaker_id", p.voice)
	}
	if p.multilingual && language != "" {
		params.Set("language_id", language)
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
}

// ListVoices implements tts.VoiceLister.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	if p.apiMode == APIModeStandard {
		return p.listVoicesStandard(ctx)
	}
	return p.listVoicesXTTS(ctx)
}

func (p *Provider) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("coqui: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("coqui: GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coqui: GET %s returned status %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("coqui: decode %s: %w", endpoint, err)
	}
	return nil
}

func (p *Provider) listVoicesXTTS(ctx context.Context) ([]tts.Voice, error) {
	// Only the keys (voice names) matter.
	var raw map[string]json.RawMessage
	if err := p.getJSON(ctx, studioSpeakersEndpoint, &raw); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	voices := make([]tts.Voice, 0, len(names))
	for _, name := range names {
		voices = append(voices, tts.Voice{
			ID:       name,
			Name:     name,
			Provider: providerName,
			Metadata: map[string]string{"type": "studio"},
		})
	}
	return voices, nil
}

func (p *Provider) listVoicesStandard(ctx context.Context) ([]tts.Voice, error) {
	var details struct {
		ModelName string   `json:"model_name"`
		Speakers  []string `json:"speakers"`
	}
	if err := p.getJSON(ctx, detailsEndpoint, &details); err != nil {
		return nil, err
	}

	if len(details.Speakers) == 0 {
		name := details.ModelName
		if name == "" {
			name = "default"
		}
		return []tts.Voice{{
			ID:       name,
			Name:     name,
			Provider: providerName,
			Metadata: map[string]string{"type": "single-speaker", "model_name": name},
		}}, nil
	}

	speakers := append([]string(nil), details.Speakers...)
	sort.Strings(speakers)
	voices := make([]tts.Voice, 0, len(speakers))
	for _, spk := range speakers {
		voices = append(voices, tts.Voice{
			ID:       spk,
			Name:     spk,
			Provider: providerName,
			Metadata: map[string]string{"type": "speaker", "model_name": details.ModelName},
		})
	}
	return voices, nil
}

// splitSentences breaks text at sentence boundaries and drops empty pieces.
func splitSentences(text string) []string {
	var out []string
	for {
		idx := findSentenceBoundary(text)
		if idx < 0 {
			break
		}
		if s := strings.TrimSpace(text[:idx+1]); s != "" {
			out = append(out, s)
		}
		text = text[idx+1:]
	}
	if s := strings.TrimSpace(text); s != "" {
		out = append(out, s)
	}
	return out
}

// findSentenceBoundary returns the byte index of the first sentence-ending
// punctuation mark ('.', '!' or '?') that is followed by whitespace or ends
// the string, or -1 when there is none.
func findSentenceBoundary(s string) int {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '.' || c == '!' || c == '?' {
			if i+1 >= len(s) || unicode.IsSpace(rune(s[i+1])) {
				return i
			}
		}
	}
	return -1
}
