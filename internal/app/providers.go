package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vzynszice/voice-interview-system/internal/config"
	"github.com/vzynszice/voice-interview-system/internal/observe"
	"github.com/vzynszice/voice-interview-system/internal/resilience"
	"github.com/vzynszice/voice-interview-system/internal/session"
	"github.com/vzynszice/voice-interview-system/internal/turn"
	"github.com/vzynszice/voice-interview-system/pkg/provider/llm"
	"github.com/vzynszice/voice-interview-system/pkg/provider/stt"
	"github.com/vzynszice/voice-interview-system/pkg/provider/translate"
	"github.com/vzynszice/voice-interview-system/pkg/provider/tts"
	"github.com/vzynszice/voice-interview-system/pkg/provider/vad"
)

// Named is one provider of a stage ranking.
type Named[T any] struct {
	Name   string
	Client T
}

// Providers holds the ranked providers of every stage in configuration
// order, plus the frame classifier. Populated by main.go via the config
// registry, or directly by tests.
type Providers struct {
	Transcribe []Named[stt.Provider]
	Translate  []Named[translate.Provider]
	Generate   []Named[llm.Provider]
	Synthesize []Named[tts.Provider]
	VAD        vad.Classifier
}

// BuildProviders instantiates every provider named in cfg through reg. All
// construction failures are reported together.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	var errs []error
	ps := &Providers{
		Transcribe: build(cfg.Stages.Transcribe.Providers, "transcribe", reg.CreateSTT, &errs),
		Translate:  build(cfg.Stages.Translate.Providers, "translate", reg.CreateTranslate, &errs),
		Generate:   build(cfg.Stages.Generate.Providers, "generate", reg.CreateLLM, &errs),
		Synthesize: build(cfg.Stages.Synthesize.Providers, "synthesize", reg.CreateTTS, &errs),
	}
	v, err := reg.CreateVAD(cfg.Audio.VAD)
	if err != nil {
		errs = append(errs, fmt.Errorf("audio.vad (%s): %w", cfg.Audio.VAD.Name, err))
	}
	ps.VAD = v
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("app: build providers: %w", err)
	}
	return ps, nil
}

func build[P any](entries []config.ProviderEntry, stage string, create func(config.ProviderEntry) (P, error), errs *[]error) []Named[P] {
	out := make([]Named[P], 0, len(entries))
	for i, e := range entries {
		p, err := create(e)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("stages.%s.providers[%d] (%s): %w", stage, i, e.Name, err))
			continue
		}
		slog.Info("provider created", "stage", stage, "name", e.Name, "model", e.Model, "rank", i+1)
		out = append(out, Named[P]{Name: e.Name, Client: p})
	}
	return out
}

// breakers creates one circuit breaker per stage and provider. They live as
// long as the App, so a provider that keeps failing is skipped on later turns.
type breakers struct {
	cfg     config.CircuitBreakerConfig
	metrics *observe.Metrics
	all     []*resilience.CircuitBreaker
}

func (b *breakers) rank(stage, name string) *resilience.CircuitBreaker {
	if b.cfg.MaxFailures <= 0 {
		return nil
	}
	cb := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		Name:         stage + "/" + name,
		MaxFailures:  b.cfg.MaxFailures,
		ResetTimeout: b.cfg.ResetTimeout,
		HalfOpenMax:  b.cfg.HalfOpenMax,
		OnStateChange: func(label string, from, to resilience.State) {
			slog.Warn("circuit breaker state change", "breaker", label, "from", from, "to", to)
			b.metrics.RecordBreakerTransition(context.Background(), label, to.String())
		},
	})
	b.all = append(b.all, cb)
	return cb
}

func ranking[T any](b *breakers, stage session.Stage, named []Named[T]) (resilience.Ranking[T], error) {
	if len(named) == 0 {
		return nil, nil
	}
	cands := make([]resilience.Candidate[T], len(named))
	for i, n := range named {
		cands[i] = resilience.Candidate[T]{Name: n.Name, Client: n.Client, Breaker: b.rank(string(stage), n.Name)}
	}
	r, err := resilience.NewRanking(cands...)
	if err != nil {
		return nil, fmt.Errorf("%s ranking: %w", stage, err)
	}
	return r, nil
}

// rankings turns ps into the orchestrator's rankings. The translate ranking
// serves both translation directions and shares its breakers between them.
func (b *breakers) rankings(ps *Providers) (turn.Rankings, error) {
	var r turn.Rankings
	var errs []error
	var err error
	if r.Transcribe, err = ranking(b, session.StageTranscribe, ps.Transcribe); err != nil {
		errs = append(errs, err)
	}
	if r.Translate, err = ranking(b, session.StageTranslate, ps.Translate); err != nil {
		errs = append(errs, err)
	}
	if r.Generate, err = ranking(b, session.StageGenerate, ps.Generate); err != nil {
		errs = append(errs, err)
	}
	if r.Synthesize, err = ranking(b, session.StageSynthesize, ps.Synthesize); err != nil {
		errs = append(errs, err)
	}
	return r, errors.Join(errs...)
}

// stagePolicies maps the configured stage settings onto executor policies.
// Back-translation uses the translate settings.
func stagePolicies(cfg config.StagesConfig) []resilience.Option {
	policy := func(s config.StageConfig) resilience.Policy {
		return resilience.Policy{
			Timeout:     s.Timeout,
			MaxRetries:  s.Retries(),
			BaseBackoff: s.BaseBackoff,
			MaxBackoff:  s.MaxBackoff,
			Jitter:      s.JitterFactor(),
		}
	}
	return []resilience.Option{
		resilience.WithPolicy(string(session.StageTranscribe), policy(cfg.Transcribe)),
		resilience.WithPolicy(string(session.StageTranslate), policy(cfg.Translate)),
		resilience.WithPolicy(string(session.StageBackTranslate), policy(cfg.Translate)),
		resilience.WithPolicy(string(session.StageGenerate), policy(cfg.Generate)),
		resilience.WithPolicy(string(session.StageSynthesize), policy(cfg.Synthesize)),
	}
}
