package main

import (
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/vzynszice/voice-interview-system/internal/config"
	"github.com/vzynszice/voice-interview-system/internal/interview"
	"github.com/vzynszice/voice-interview-system/pkg/provider/llm"
	"github.com/vzynszice/voice-interview-system/pkg/provider/llm/anyllm"
	"github.com/vzynszice/voice-interview-system/pkg/provider/llm/openai"
	"github.com/vzynszice/voice-interview-system/pkg/provider/stt"
	"github.com/vzynszice/voice-interview-system/pkg/provider/stt/deepgram"
	"github.com/vzynszice/voice-interview-system/pkg/provider/stt/whisper"
	"github.com/vzynszice/voice-interview-system/pkg/provider/translate"
	"github.com/vzynszice/voice-interview-system/pkg/provider/translate/libretranslate"
	"github.com/vzynszice/voice-interview-system/pkg/provider/translate/llmtranslate"
	"github.com/vzynszice/voice-interview-system/pkg/provider/tts"
	"github.com/vzynszice/voice-interview-system/pkg/provider/tts/coqui"
	"github.com/vzynszice/voice-interview-system/pkg/provider/tts/elevenlabs"
	"github.com/vzynszice/voice-interview-system/pkg/provider/vad"
	"github.com/vzynszice/voice-interview-system/pkg/provider/vad/energy"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation package.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai talks to the OpenAI SDK directly so base_url can point at any
	// compatible server (vLLM, LM Studio). The other backends go through
	// any-llm-go and share the same pattern: optional APIKey + optional BaseURL.
	reg.RegisterLLM("openai", newOpenAI)
	for _, backend := range anyllm.Backends {
		if backend == "openai" {
			continue
		}
		reg.RegisterLLM(backend, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(backend, entry.Model, opts...)
		})
	}
	// The question bank needs no network and makes a last-resort generator.
	reg.RegisterLLM(interview.BankName, func(config.ProviderEntry) (llm.Provider, error) {
		return interview.NewBank(), nil
	})

	// ── Translate ─────────────────────────────────────────────────────────────

	reg.RegisterTranslate("libretranslate", func(entry config.ProviderEntry) (translate.Provider, error) {
		var opts []libretranslate.Option
		if entry.APIKey != "" {
			opts = append(opts, libretranslate.WithAPIKey(entry.APIKey))
		}
		return libretranslate.New(entry.BaseURL, opts...)
	})

	// Any chat model can translate. The entry is handed to the LLM factory of
	// the same name.
	for _, backend := range anyllm.Backends {
		reg.RegisterTranslate(backend, func(entry config.ProviderEntry) (translate.Provider, error) {
			model, err := reg.CreateLLM(entry)
			if err != nil {
				return nil, err
			}
			opts := []llmtranslate.Option{llmtranslate.WithName(backend)}
			if t, ok := entry.Float("temperature"); ok {
				opts = append(opts, llmtranslate.WithTemperature(t))
			}
			return llmtranslate.New(model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if t, ok := entry.Float("temperature"); ok {
			opts = append(opts, whisper.WithTemperature(t))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.String("model_path")
		}
		var opts []whisper.NativeOption
		if n, ok := entry.Int("threads"); ok && n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if terms := entry.Strings("keyterms"); len(terms) > 0 {
			opts = append(opts, deepgram.WithKeyterms(terms...))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if v := entry.String("voice"); v != "" {
			opts = append(opts, coqui.WithVoice(v))
		}
		if mode := entry.String("api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if on, ok := entry.Bool("multilingual"); ok {
			opts = append(opts, coqui.WithMultilingual(on))
		}
		if d := entry.String("timeout"); d != "" {
			timeout, err := time.ParseDuration(d)
			if err != nil {
				return nil, fmt.Errorf("coqui: options.timeout: %w", err)
			}
			opts = append(opts, coqui.WithTimeout(timeout))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if v := entry.String("voice"); v != "" {
			opts = append(opts, elevenlabs.WithVoice(v))
		}
		if f := entry.String("output_format"); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithEndpoint(entry.String("ws_url"), entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Classifier, error) {
		var opts []energy.Option
		if t, ok := entry.Float("threshold"); ok {
			opts = append(opts, energy.WithThreshold(t))
		}
		if f, ok := entry.Float("noise_floor"); ok {
			opts = append(opts, energy.WithNoiseFloor(f))
		}
		return energy.New(opts...)
	})

	for _, kind := range []string{"stt", "translate", "llm", "tts", "vad"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

func newOpenAI(entry config.ProviderEntry) (llm.Provider, error) {
	var opts []openai.Option
	if entry.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(entry.BaseURL))
	}
	if org := entry.String("organization"); org != "" {
		opts = append(opts, openai.WithOrganization(org))
	}
	return openai.New(entry.APIKey, entry.Model, opts...)
}
