// Package config provides the configuration schema, loader, and provider
// registry for the interview orchestrator.
package config

import (
	"time"

	"github.com/vzynszice/voice-interview-system/internal/interview"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Session        SessionConfig        `yaml:"session"`
	Audio          AudioConfig          `yaml:"audio"`
	Segmenter      SegmenterConfig      `yaml:"segmenter"`
	Stages         StagesConfig         `yaml:"stages"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Interview      InterviewConfig      `yaml:"interview"`
	Storage        StorageConfig        `yaml:"storage"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the health and metrics server
	// (e.g., ":8080"). Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`

	LogLevel  LogLevel  `yaml:"log_level"`
	LogFormat LogFormat `yaml:"log_format"`
}

// SessionConfig describes the languages spoken and how many turns may be
// processed at once.
type SessionConfig struct {
	// PrimaryLanguage is the candidate's language (BCP-47, e.g. "tr").
	PrimaryLanguage string `yaml:"primary_language"`

	// TargetLanguage is the language the generator works in.
	TargetLanguage string `yaml:"target_language"`

	// MaxConcurrentTurns bounds the turns processed in parallel. Playback is
	// always serialised. Default: 1.
	MaxConcurrentTurns int `yaml:"max_concurrent_turns"`

	// UtteranceQueue is the buffer between the segmenter and the
	// orchestrator. Default: 4.
	UtteranceQueue int `yaml:"utterance_queue"`
}

// AudioConfig describes the capture format and the output sink.
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// FrameMS is the duration of one frame in milliseconds. Default: 20.
	FrameMS int `yaml:"frame_ms"`

	// QueueSize bounds the frame queue between capture and segmentation.
	QueueSize int `yaml:"queue_size"`

	// EnergyThreshold is the RMS level above which a frame counts as speech
	// for the energy classifier.
	EnergyThreshold float64 `yaml:"energy_threshold"`

	// VAD selects the frame classifier. Default: energy.
	VAD ProviderEntry `yaml:"vad"`

	// Input is a WAV file to read the candidate's audio from. "-" reads
	// from stdin.
	Input string `yaml:"input"`

	// InputCommand is a capture command (e.g. ["arecord", "-q", "-t", "raw",
	// "-f", "S16_LE", "-r", "16000", "-c", "1"]) that writes raw 16-bit PCM
	// in the configured format to stdout. It takes precedence over Input.
	InputCommand []string `yaml:"input_command"`

	// OutputDir receives one WAV file per spoken reply when OutputCommand is
	// empty.
	OutputDir string `yaml:"output_dir"`

	// OutputCommand is a player command (e.g. ["aplay", "-q"]) that receives
	// WAV data on stdin.
	OutputCommand []string `yaml:"output_command"`
}

// FrameDuration returns FrameMS as a duration.
func (a AudioConfig) FrameDuration() time.Duration {
	return time.Duration(a.FrameMS) * time.Millisecond
}

// SegmenterConfig holds the voice segmenter thresholds, counted in frames.
type SegmenterConfig struct {
	OnsetFrames     int `yaml:"onset_frames"`
	HangoverFrames  int `yaml:"hangover_frames"`
	MinSpeechFrames int `yaml:"min_speech_frames"`

	// TrailingSilenceFrames caps the hangover silence kept at the end of an
	// utterance. Unset keeps all of it.
	TrailingSilenceFrames *int `yaml:"trailing_silence_frames"`
}

// StageConfig is the policy and ordered provider ranking of one stage.
type StageConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  *int          `yaml:"max_retries"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
	Jitter      *float64      `yaml:"jitter"`

	// Providers is the ranking: the first entry is tried first.
	Providers []ProviderEntry `yaml:"providers"`
}

// Retries returns MaxRetries, or 0 when unset.
func (s StageConfig) Retries() int {
	if s.MaxRetries == nil {
		return 0
	}
	return *s.MaxRetries
}

// JitterFactor returns Jitter, or 0 when unset.
func (s StageConfig) JitterFactor() float64 {
	if s.Jitter == nil {
		return 0
	}
	return *s.Jitter
}

// StagesConfig holds one [StageConfig] per pipeline stage. The translate
// stage serves both directions of translation.
type StagesConfig struct {
	Transcribe StageConfig `yaml:"transcribe"`
	Translate  StageConfig `yaml:"translate"`
	Generate   StageConfig `yaml:"generate"`
	Synthesize StageConfig `yaml:"synthesize"`
}

// CircuitBreakerConfig tunes the per-provider breakers.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures that open a
	// provider's breaker. Zero disables breakers.
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// InterviewConfig describes the position, the candidate, and the question
// plan.
type InterviewConfig struct {
	Job       interview.Job       `yaml:"job"`
	Candidate interview.Candidate `yaml:"candidate"`

	// Phases lists the interview phases in order.
	Phases []string `yaml:"phases"`

	// QuestionsPerPhase overrides the default question count per phase.
	QuestionsPerPhase map[string]int `yaml:"questions_per_phase"`

	// SystemPrompt replaces the default generator system prompt template.
	SystemPrompt string `yaml:"system_prompt"`

	// MaxHistoryTokens bounds the conversation history sent to the
	// generator.
	MaxHistoryTokens int `yaml:"max_history_tokens"`

	Vocabulary VocabularyConfig `yaml:"vocabulary"`
}

// VocabularyConfig controls correction of misheard names and technical terms
// in transcripts.
type VocabularyConfig struct {
	// Enabled turns correction on. The job title, company, candidate name and
	// every listed skill are always part of the vocabulary.
	Enabled bool `yaml:"enabled"`

	// Terms adds further words or phrases.
	Terms []string `yaml:"terms"`

	// PhoneticThreshold and FuzzyThreshold override the similarity needed
	// for a replacement, within [0, 1]. Zero keeps the default.
	PhoneticThreshold float64 `yaml:"phonetic_threshold"`
	FuzzyThreshold    float64 `yaml:"fuzzy_threshold"`
}

// StorageConfig locates checkpoints, transcripts, and the optional turn log
// database.
type StorageConfig struct {
	StateDir         string        `yaml:"state_dir"`
	TranscriptDir    string        `yaml:"transcript_dir"`
	AutosaveInterval time.Duration `yaml:"autosave_interval"`

	// Retention is how long finished checkpoints are kept.
	Retention time.Duration `yaml:"retention"`

	// PostgresDSN enables the Postgres turn log when set.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "whisper", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini", "nova-2").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or lists.
	Options map[string]any `yaml:"options"`
}

// String returns the option named key, or "" when it is missing or not a
// string.
func (e ProviderEntry) String(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// Float returns the numeric option named key.
func (e ProviderEntry) Float(key string) (float64, bool) {
	switch v := e.Options[key].(type) {
	case int:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// Int returns the integer option named key.
func (e ProviderEntry) Int(key string) (int, bool) {
	switch v := e.Options[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Bool returns the boolean option named key.
func (e ProviderEntry) Bool(key string) (bool, bool) {
	b, ok := e.Options[key].(bool)
	return b, ok
}

// Strings returns the list option named key, skipping non-string items.
func (e ProviderEntry) Strings(key string) []string {
	list, _ := e.Options[key].([]any)
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
