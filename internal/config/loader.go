package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/vzynszice/voice-interview-system/internal/interview"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":       {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", interview.BankName},
	"stt":       {"whisper", "whisper-native", "deepgram"},
	"translate": {"libretranslate", "openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts":       {"coqui", "elevenlabs"},
	"vad":       {"energy"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default values filled in by [ApplyDefaults].
const (
	DefaultSampleRate       = 16000
	DefaultFrameMS          = 20
	DefaultQueueSize        = 256
	DefaultOnsetFrames      = 3
	DefaultHangoverFrames   = 25
	DefaultMinSpeechFrames  = 10
	DefaultAutosaveInterval = 60 * time.Second
	DefaultRetention        = 7 * 24 * time.Hour
)

// stageDefaults holds the per-stage timeout applied when none is set.
var stageDefaults = map[string]time.Duration{
	"transcribe": 30 * time.Second,
	"translate":  10 * time.Second,
	"generate":   30 * time.Second,
	"synthesize": 30 * time.Second,
}

// ApplyDefaults fills every unset field of cfg with its default. Explicit
// zero values of pointer fields (max_retries, jitter) are kept.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = LogFormatText
	}

	s := &cfg.Session
	if s.PrimaryLanguage == "" {
		s.PrimaryLanguage = "tr"
	}
	if s.TargetLanguage == "" {
		s.TargetLanguage = "en"
	}
	if s.MaxConcurrentTurns == 0 {
		s.MaxConcurrentTurns = 1
	}
	if s.UtteranceQueue == 0 {
		s.UtteranceQueue = 4
	}

	a := &cfg.Audio
	if a.SampleRate == 0 {
		a.SampleRate = DefaultSampleRate
	}
	if a.Channels == 0 {
		a.Channels = 1
	}
	if a.FrameMS == 0 {
		a.FrameMS = DefaultFrameMS
	}
	if a.QueueSize == 0 {
		a.QueueSize = DefaultQueueSize
	}
	if a.VAD.Name == "" {
		a.VAD.Name = "energy"
	}
	// audio.energy_threshold is shorthand for the energy classifier's
	// threshold option.
	if _, set := a.VAD.Options["threshold"]; !set && a.EnergyThreshold > 0 {
		if a.VAD.Options == nil {
			a.VAD.Options = make(map[string]any)
		}
		a.VAD.Options["threshold"] = a.EnergyThreshold
	}

	seg := &cfg.Segmenter
	if seg.OnsetFrames == 0 {
		seg.OnsetFrames = DefaultOnsetFrames
	}
	if seg.HangoverFrames == 0 {
		seg.HangoverFrames = DefaultHangoverFrames
	}
	if seg.MinSpeechFrames == 0 {
		seg.MinSpeechFrames = DefaultMinSpeechFrames
	}

	stageDefault(&cfg.Stages.Transcribe, stageDefaults["transcribe"])
	stageDefault(&cfg.Stages.Translate, stageDefaults["translate"])
	stageDefault(&cfg.Stages.Generate, stageDefaults["generate"])
	stageDefault(&cfg.Stages.Synthesize, stageDefaults["synthesize"])

	cb := &cfg.CircuitBreaker
	if cb.ResetTimeout == 0 {
		cb.ResetTimeout = 30 * time.Second
	}
	if cb.HalfOpenMax == 0 {
		cb.HalfOpenMax = 1
	}

	if len(cfg.Interview.Phases) == 0 {
		cfg.Interview.Phases = slices.Clone(interview.DefaultPhases)
	}
	if cfg.Interview.QuestionsPerPhase == nil {
		cfg.Interview.QuestionsPerPhase = make(map[string]int, len(cfg.Interview.Phases))
	}
	for _, ph := range cfg.Interview.Phases {
		if _, ok := cfg.Interview.QuestionsPerPhase[ph]; ok {
			continue
		}
		if n, ok := interview.DefaultQuestionsPerPhase[ph]; ok {
			cfg.Interview.QuestionsPerPhase[ph] = n
		}
	}

	st := &cfg.Storage
	if st.StateDir == "" {
		st.StateDir = "data/state"
	}
	if st.TranscriptDir == "" {
		st.TranscriptDir = "data/transcripts"
	}
	if st.AutosaveInterval == 0 {
		st.AutosaveInterval = DefaultAutosaveInterval
	}
	if st.Retention == 0 {
		st.Retention = DefaultRetention
	}
}

func stageDefault(s *StageConfig, timeout time.Duration) {
	if s.Timeout == 0 {
		s.Timeout = timeout
	}
	if s.MaxRetries == nil {
		one := 1
		s.MaxRetries = &one
	}
	if s.BaseBackoff == 0 {
		s.BaseBackoff = 250 * time.Millisecond
	}
	if s.MaxBackoff == 0 {
		s.MaxBackoff = 2 * time.Second
	}
	if s.Jitter == nil {
		j := 0.2
		s.Jitter = &j
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}

	// Session
	if cfg.Session.PrimaryLanguage == "" || cfg.Session.TargetLanguage == "" {
		errs = append(errs, errors.New("session.primary_language and session.target_language are required"))
	}
	if cfg.Session.MaxConcurrentTurns < 1 {
		errs = append(errs, fmt.Errorf("session.max_concurrent_turns must be >= 1, got %d", cfg.Session.MaxConcurrentTurns))
	}
	if cfg.Session.UtteranceQueue < 0 {
		errs = append(errs, fmt.Errorf("session.utterance_queue must not be negative, got %d", cfg.Session.UtteranceQueue))
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		errs = append(errs, fmt.Errorf("audio.channels must be 1 or 2, got %d", cfg.Audio.Channels))
	}
	if cfg.Audio.FrameMS <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_ms must be positive, got %d", cfg.Audio.FrameMS))
	}
	if cfg.Audio.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("audio.queue_size must be >= 1, got %d", cfg.Audio.QueueSize))
	}
	if cfg.Audio.EnergyThreshold < 0 {
		errs = append(errs, fmt.Errorf("audio.energy_threshold must not be negative, got %v", cfg.Audio.EnergyThreshold))
	}
	validateProviderName("vad", cfg.Audio.VAD.Name)

	// Segmenter
	seg := cfg.Segmenter
	if seg.OnsetFrames < 1 {
		errs = append(errs, fmt.Errorf("segmenter.onset_frames must be >= 1, got %d", seg.OnsetFrames))
	}
	if seg.HangoverFrames <= seg.OnsetFrames {
		errs = append(errs, fmt.Errorf("segmenter.hangover_frames (%d) must be greater than onset_frames (%d)", seg.HangoverFrames, seg.OnsetFrames))
	}
	if seg.MinSpeechFrames < 0 {
		errs = append(errs, fmt.Errorf("segmenter.min_speech_frames must not be negative, got %d", seg.MinSpeechFrames))
	}
	if n := seg.TrailingSilenceFrames; n != nil && *n < 0 {
		errs = append(errs, fmt.Errorf("segmenter.trailing_silence_frames must not be negative, got %d", *n))
	}

	// Stages
	needsTranslate := cfg.Session.PrimaryLanguage != cfg.Session.TargetLanguage
	errs = append(errs, validateStage("transcribe", "stt", cfg.Stages.Transcribe, true)...)
	errs = append(errs, validateStage("translate", "translate", cfg.Stages.Translate, needsTranslate)...)
	errs = append(errs, validateStage("generate", "llm", cfg.Stages.Generate, true)...)
	errs = append(errs, validateStage("synthesize", "tts", cfg.Stages.Synthesize, true)...)

	// Circuit breaker
	cb := cfg.CircuitBreaker
	if cb.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("circuit_breaker.max_failures must not be negative, got %d", cb.MaxFailures))
	}
	if cb.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("circuit_breaker.reset_timeout must not be negative, got %v", cb.ResetTimeout))
	}
	if cb.HalfOpenMax < 0 {
		errs = append(errs, fmt.Errorf("circuit_breaker.half_open_max must not be negative, got %d", cb.HalfOpenMax))
	}

	// Interview
	if _, err := interview.NewPlan(cfg.Interview.Phases, cfg.Interview.QuestionsPerPhase); err != nil {
		errs = append(errs, fmt.Errorf("interview: %w", err))
	}
	voc := cfg.Interview.Vocabulary
	if voc.PhoneticThreshold < 0 || voc.PhoneticThreshold > 1 {
		errs = append(errs, fmt.Errorf("interview.vocabulary.phonetic_threshold must be within [0, 1], got %v", voc.PhoneticThreshold))
	}
	if voc.FuzzyThreshold < 0 || voc.FuzzyThreshold > 1 {
		errs = append(errs, fmt.Errorf("interview.vocabulary.fuzzy_threshold must be within [0, 1], got %v", voc.FuzzyThreshold))
	}
	if cfg.Interview.MaxHistoryTokens < 0 {
		errs = append(errs, fmt.Errorf("interview.max_history_tokens must not be negative, got %d", cfg.Interview.MaxHistoryTokens))
	}
	if cfg.Interview.Candidate.Name == "" {
		slog.Warn("interview.candidate.name is empty; prompts will address an unnamed candidate")
	}

	// Storage
	if cfg.Storage.AutosaveInterval < 0 {
		errs = append(errs, fmt.Errorf("storage.autosave_interval must not be negative, got %v", cfg.Storage.AutosaveInterval))
	}
	if cfg.Storage.Retention < 0 {
		errs = append(errs, fmt.Errorf("storage.retention must not be negative, got %v", cfg.Storage.Retention))
	}

	return errors.Join(errs...)
}

// validateStage checks the policy fields and ranking of one stage. kind
// selects the provider names used for typo warnings.
func validateStage(name, kind string, s StageConfig, required bool) []error {
	prefix := "stages." + name
	var errs []error
	if required && len(s.Providers) == 0 {
		errs = append(errs, fmt.Errorf("%s.providers must list at least one provider", prefix))
	}
	if s.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%s.timeout must not be negative, got %v", prefix, s.Timeout))
	}
	if s.Retries() < 0 {
		errs = append(errs, fmt.Errorf("%s.max_retries must not be negative, got %d", prefix, s.Retries()))
	}
	if s.BaseBackoff < 0 || s.MaxBackoff < 0 {
		errs = append(errs, fmt.Errorf("%s: backoff durations must not be negative", prefix))
	} else if s.MaxBackoff > 0 && s.BaseBackoff > s.MaxBackoff {
		errs = append(errs, fmt.Errorf("%s.base_backoff %v exceeds max_backoff %v", prefix, s.BaseBackoff, s.MaxBackoff))
	}
	if j := s.JitterFactor(); j < 0 || j > 1 {
		errs = append(errs, fmt.Errorf("%s.jitter must be within [0, 1], got %v", prefix, j))
	}

	seen := make(map[string]int, len(s.Providers))
	for i, p := range s.Providers {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.providers[%d].name is required", prefix, i))
			continue
		}
		if prev, ok := seen[p.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.providers[%d].name %q is a duplicate of providers[%d]", prefix, i, p.Name, prev))
		}
		seen[p.Name] = i
		validateProviderName(kind, p.Name)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or a custom registration",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
