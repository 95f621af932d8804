// Package app wires the interview subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run drives one interview from the first frame of audio to the
// exported transcript, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithSource, WithSink,
// WithSession, ...). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/vzynszice/voice-interview-system/internal/config"
	"github.com/vzynszice/voice-interview-system/internal/health"
	"github.com/vzynszice/voice-interview-system/internal/interview"
	"github.com/vzynszice/voice-interview-system/internal/observe"
	"github.com/vzynszice/voice-interview-system/internal/resilience"
	"github.com/vzynszice/voice-interview-system/internal/session"
	"github.com/vzynszice/voice-interview-system/internal/store/postgres"
	"github.com/vzynszice/voice-interview-system/internal/turn"
	"github.com/vzynszice/voice-interview-system/internal/vocab"
	"github.com/vzynszice/voice-interview-system/pkg/audio"
)

// App owns all subsystem lifetimes of one interview.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	sess        *session.Session
	interviewer *interview.Interviewer
	orch        *turn.Orchestrator
	breakers    *breakers

	source      audio.FrameSource
	sink        audio.Sink
	checkpoints *session.CheckpointStore
	autosaver   *session.Autosaver
	turnLog     *postgres.Store
	health      *health.Handler
	server      *http.Server

	execOpts []resilience.Option

	finished   chan struct{}
	finishOnce sync.Once

	mu             sync.Mutex
	transcriptPath string

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSource injects the frame source instead of opening audio.input.
func WithSource(src audio.FrameSource) Option {
	return func(a *App) { a.source = src }
}

// WithSink injects the playback sink instead of building one from config.
func WithSink(s audio.Sink) Option {
	return func(a *App) { a.sink = s }
}

// WithSession continues a restored session instead of starting a new one.
func WithSession(s *session.Session) Option {
	return func(a *App) { a.sess = s }
}

// WithTurnLog injects the Postgres turn log instead of opening
// storage.postgres_dsn.
func WithTurnLog(s *postgres.Store) Option {
	return func(a *App) { a.turnLog = s }
}

// WithMetrics records to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithExecutorOptions appends options to the stage executor, after the
// configured policies.
func WithExecutorOptions(opts ...resilience.Option) Option {
	return func(a *App) { a.execOpts = append(a.execOpts, opts...) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers come
// from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		return nil, errors.New("app: providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		finished:  make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Session + interviewer ─────────────────────────────────────────
	if err := a.initSession(); err != nil {
		return nil, fmt.Errorf("app: init session: %w", err)
	}

	// ── 2. Storage ───────────────────────────────────────────────────────
	if err := a.initStorage(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	// ── 3. Audio ─────────────────────────────────────────────────────────
	if err := a.initAudio(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("app: init audio: %w", err)
	}

	// ── 4. Orchestrator ──────────────────────────────────────────────────
	if err := a.initOrchestrator(); err != nil {
		a.close()
		return nil, fmt.Errorf("app: init orchestrator: %w", err)
	}

	// ── 5. Health ────────────────────────────────────────────────────────
	a.initHealth()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initSession() error {
	ic := a.cfg.Interview
	plan, err := interview.NewPlan(ic.Phases, ic.QuestionsPerPhase)
	if err != nil {
		return err
	}
	var ivOpts []interview.Option
	if ic.SystemPrompt != "" {
		ivOpts = append(ivOpts, interview.WithSystemPrompt(ic.SystemPrompt))
	}
	if ic.MaxHistoryTokens > 0 {
		ivOpts = append(ivOpts, interview.WithMaxHistoryTokens(ic.MaxHistoryTokens))
	}
	a.interviewer = interview.New(plan, ic.Job, ic.Candidate, a.cfg.Session.TargetLanguage, ivOpts...)

	if a.sess == nil {
		a.sess = session.New(
			session.Languages{Primary: a.cfg.Session.PrimaryLanguage, Target: a.cfg.Session.TargetLanguage},
			session.WithMetadata(interview.Labels(ic.Job, ic.Candidate)),
		)
	}
	slog.Info("interview session ready",
		"session_id", a.sess.ID(),
		"languages", a.sess.Languages(),
		"questions", plan.Total(),
		"turns", len(a.sess.Turns()),
	)
	return nil
}

// initStorage sets up checkpoints, the autosaver and the optional Postgres
// turn log.
func (a *App) initStorage(ctx context.Context) error {
	st := a.cfg.Storage
	cs, err := session.NewCheckpointStore(st.StateDir)
	if err != nil {
		return err
	}
	a.checkpoints = cs
	if n, err := cs.Cleanup(st.Retention); err != nil {
		slog.Warn("checkpoint cleanup failed", "dir", st.StateDir, "err", err)
	} else if n > 0 {
		slog.Info("removed expired checkpoints", "count", n)
	}
	a.autosaver = session.NewAutosaver(a.sess, cs, st.AutosaveInterval)

	if a.turnLog == nil && st.PostgresDSN != "" {
		store, err := postgres.Open(ctx, st.PostgresDSN)
		if err != nil {
			return err
		}
		a.turnLog = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
	}
	if a.turnLog != nil {
		if err := a.turnLog.SaveSession(ctx, a.sess); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
	}
	return nil
}

// initAudio sets up the frame source and playback sink.
func (a *App) initAudio(ctx context.Context) error {
	if a.providers.VAD == nil {
		return errors.New("no frame classifier configured")
	}
	if a.sink == nil {
		sink, err := newSink(a.cfg.Audio, a.sess.ID())
		if err != nil {
			return err
		}
		a.sink = sink
	}
	if a.source == nil {
		src, closer, err := newSource(ctx, a.cfg.Audio)
		if err != nil {
			return err
		}
		a.source = src
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}
	return nil
}

func (a *App) initOrchestrator() error {
	a.breakers = &breakers{cfg: a.cfg.CircuitBreaker, metrics: a.metrics}
	rankings, err := a.breakers.rankings(a.providers)
	if err != nil {
		return err
	}

	execOpts := append([]resilience.Option{resilience.WithMetrics(a.metrics)}, stagePolicies(a.cfg.Stages)...)
	execOpts = append(execOpts, a.execOpts...)
	exec := resilience.NewExecutor(execOpts...)

	orchOpts := []turn.Option{
		turn.WithMaxConcurrentTurns(a.cfg.Session.MaxConcurrentTurns),
		turn.WithMetrics(a.metrics),
		turn.WithRecorder(a.checkpoints),
	}
	if a.turnLog != nil {
		orchOpts = append(orchOpts, turn.WithRecorder(a.turnLog))
	}
	orchOpts = append(orchOpts, turn.WithRecorder(recorderFunc(a.checkFinished)))
	if vc := a.cfg.Interview.Vocabulary; vc.Enabled {
		ic := a.cfg.Interview
		terms := append(interview.Vocabulary(ic.Job, ic.Candidate), vc.Terms...)
		corrector := vocab.New(terms,
			vocab.WithPhoneticThreshold(vc.PhoneticThreshold),
			vocab.WithFuzzyThreshold(vc.FuzzyThreshold),
		)
		slog.Info("transcript vocabulary correction enabled", "terms", len(corrector.Terms()))
		orchOpts = append(orchOpts, turn.WithTranscriptCorrector(corrector))
	}

	orch, err := turn.New(a.sess, exec, rankings, a.interviewer, a.sink, orchOpts...)
	if err != nil {
		return err
	}
	a.orch = orch
	return nil
}

func (a *App) initHealth() {
	checkers := []health.Checker{
		{Name: "session", Check: func(context.Context) error {
			if st := a.sess.Status(); st != session.Active {
				return fmt.Errorf("session is %s", st)
			}
			return nil
		}},
		{Name: "state_dir", Check: func(context.Context) error {
			_, err := os.Stat(a.checkpoints.Dir())
			return err
		}},
	}
	if a.turnLog != nil {
		checkers = append(checkers, health.Checker{Name: "postgres", Check: a.turnLog.Ping})
	}
	a.health = health.New(checkers...)
	a.health.SetStatus(func() any { return a.Status() })
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Session returns the interview session.
func (a *App) Session() *session.Session { return a.sess }

// Health returns the health handler served on server.listen_addr.
func (a *App) Health() *health.Handler { return a.health }

// TranscriptPath returns the file written by the last Run, or "".
func (a *App) TranscriptPath() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.transcriptPath
}

// Status is the JSON document served on /statusz.
type Status struct {
	SessionID string            `json:"session_id"`
	Status    string            `json:"status"`
	Turns     int               `json:"turns"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Aborted   int               `json:"aborted"`
	Questions int               `json:"questions"`
	Phase     string            `json:"phase,omitempty"`
	Providers map[string]string `json:"providers"`
	Breakers  map[string]string `json:"breakers,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Status reports progress and provider health of the running interview.
func (a *App) Status() Status {
	snap := a.sess.Snapshot()
	st := Status{
		SessionID: a.sess.ID(),
		Status:    snap.Status.String(),
		Turns:     len(snap.Turns),
		Succeeded: a.sess.Done(session.TurnSucceeded),
		Failed:    a.sess.Done(session.TurnFailedFatal),
		Aborted:   a.sess.Done(session.TurnAborted),
		Questions: a.interviewer.Plan().Total(),
		Phase:     a.interviewer.Phase(snap.Turns),
		Providers: a.orch.Rankings().Primary(),
		UpdatedAt: snap.UpdatedAt,
	}
	if len(a.breakers.all) > 0 {
		st.Breakers = make(map[string]string, len(a.breakers.all))
		for _, cb := range a.breakers.all {
			st.Breakers[cb.Name()] = cb.State().String()
		}
	}
	return st
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server and tears down all subsystems in order. It
// respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.autosaver.Stop(); err != nil {
			slog.Warn("final checkpoint failed", "err", err)
		}
		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("http server shutdown error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// close runs the closers registered so far after a failed New.
func (a *App) close() {
	for _, c := range a.closers {
		_ = c()
	}
}

// recorderFunc adapts a function to [turn.Recorder].
type recorderFunc func(ctx context.Context, s *session.Session, t session.Turn) error

func (f recorderFunc) RecordTurn(ctx context.Context, s *session.Session, t session.Turn) error {
	return f(ctx, s, t)
}

// checkFinished signals the closing step once the last planned question has
// been answered.
func (a *App) checkFinished(_ context.Context, s *session.Session, _ session.Turn) error {
	if a.interviewer.Finished(s.Turns()) {
		a.finishOnce.Do(func() { close(a.finished) })
	}
	return nil
}
