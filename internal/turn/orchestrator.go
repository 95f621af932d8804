// Package turn sequences one interview turn: transcribe the candidate's
// utterance, translate it when the session languages differ, generate the
// interviewer's reply, translate the reply back and speak it.
//
// Every stage is a single [resilience.Execute] call against the stage's
// provider ranking, so retries, timeouts and failover are uniform. A turn that
// exhausts a ranking is recorded as failed and the orchestrator is ready for
// the next utterance; only cancellation stops it.
package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/vzynszice/voice-interview-system/internal/observe"
	"github.com/vzynszice/voice-interview-system/internal/resilience"
	"github.com/vzynszice/voice-interview-system/internal/session"
	"github.com/vzynszice/voice-interview-system/pkg/audio"
	"github.com/vzynszice/voice-interview-system/pkg/provider/llm"
	"github.com/vzynszice/voice-interview-system/pkg/provider/stt"
	"github.com/vzynszice/voice-interview-system/pkg/provider/translate"
	"github.com/vzynszice/voice-interview-system/pkg/provider/tts"
)

// ErrTurnInProgress is returned by [Orchestrator.HandleUtterance] when the
// concurrent-turn limit is already reached.
var ErrTurnInProgress = errors.New("turn: turn already in progress")

// recordTimeout bounds each Recorder call. Recorders run on a context that
// survives cancellation of the turn so aborted turns are still persisted.
const recordTimeout = 5 * time.Second

// Prompter builds generation requests from the session history.
type Prompter interface {
	// Prompt returns the request for the reply to answer, which is in the
	// target language. ok is false when no reply should be generated.
	Prompt(history []session.Turn, answer string) (req llm.CompletionRequest, ok bool)

	// Clean post-processes a generated reply before it is translated back
	// and spoken.
	Clean(reply string) string
}

// TranscriptCorrector rewrites a transcript before it is translated, for
// example to restore misheard names and technical terms.
type TranscriptCorrector interface {
	CorrectTranscript(text string) string
}

// Recorder is notified after every completed turn.
type Recorder interface {
	RecordTurn(ctx context.Context, s *session.Session, t session.Turn) error
}

// Rankings holds the ordered providers of every stage. Translate is used for
// both translation directions and may be empty when the session languages
// are equal.
type Rankings struct {
	Transcribe resilience.Ranking[stt.Provider]
	Translate  resilience.Ranking[translate.Provider]
	Generate   resilience.Ranking[llm.Provider]
	Synthesize resilience.Ranking[tts.Provider]
}

// Primary returns the first provider name of every non-empty ranking, keyed by
// stage.
func (r Rankings) Primary() map[string]string {
	out := make(map[string]string, 4)
	add := func(st session.Stage, names []string) {
		if len(names) > 0 {
			out[string(st)] = names[0]
		}
	}
	add(session.StageTranscribe, r.Transcribe.Names())
	add(session.StageTranslate, r.Translate.Names())
	add(session.StageGenerate, r.Generate.Names())
	add(session.StageSynthesize, r.Synthesize.Names())
	return out
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithRecorder adds a turn recorder. Recorders run in registration order.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorders = append(o.recorders, r) }
}

// WithMaxConcurrentTurns allows up to n turns to run at the same time.
// The default of 1 makes turns strictly non-overlapping.
func WithMaxConcurrentTurns(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxTurns = n
		}
	}
}

// WithTranscriptCorrector applies c to every transcript. The recogniser's
// output is kept in Turn.RawTranscript when c changes it.
func WithTranscriptCorrector(c TranscriptCorrector) Option {
	return func(o *Orchestrator) { o.corrector = c }
}

// WithMetrics records turn metrics to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator runs turns for one session. It is safe for concurrent use.
type Orchestrator struct {
	sess     *session.Session
	exec     *resilience.Executor
	rankings Rankings
	prompter Prompter
	sink     audio.Sink

	recorders []Recorder
	corrector TranscriptCorrector
	maxTurns  int
	metrics   *observe.Metrics

	inflight atomic.Int32
	// playMu serialises playback when turns overlap.
	playMu sync.Mutex
}

// New returns an orchestrator for sess.
func New(sess *session.Session, exec *resilience.Executor, rankings Rankings, prompter Prompter, sink audio.Sink, opts ...Option) (*Orchestrator, error) {
	var errs []error
	if sess == nil {
		errs = append(errs, errors.New("session is nil"))
	}
	if exec == nil {
		errs = append(errs, errors.New("executor is nil"))
	}
	if prompter == nil {
		errs = append(errs, errors.New("prompter is nil"))
	}
	if sink == nil {
		errs = append(errs, errors.New("sink is nil"))
	}
	if len(rankings.Transcribe) == 0 {
		errs = append(errs, errors.New("transcribe ranking is empty"))
	}
	if len(rankings.Generate) == 0 {
		errs = append(errs, errors.New("generate ranking is empty"))
	}
	if len(rankings.Synthesize) == 0 {
		errs = append(errs, errors.New("synthesize ranking is empty"))
	}
	if sess != nil && sess.Languages().NeedsTranslation() && len(rankings.Translate) == 0 {
		errs = append(errs, fmt.Errorf("translate ranking is empty but %s != %s",
			sess.Languages().Primary, sess.Languages().Target))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("turn: new orchestrator: %w", err)
	}

	o := &Orchestrator{
		sess:     sess,
		exec:     exec,
		rankings: rankings,
		prompter: prompter,
		sink:     sink,
		maxTurns: 1,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o, nil
}

// Session returns the session the orchestrator writes to.
func (o *Orchestrator) Session() *session.Session { return o.sess }

// Rankings returns the provider rankings.
func (o *Orchestrator) Rankings() Rankings { return o.rankings }

// ─── Turn loop ────────────────────────────────────────────────────────────────

// Run handles utterances from utts in order until the channel is closed, ctx
// ends or the session stops accepting turns. With a concurrency limit above 1
// the next utterance is started while earlier turns are still running.
func (o *Orchestrator) Run(ctx context.Context, utts <-chan audio.Utterance) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxTurns)

loop:
	for {
		select {
		case <-gctx.Done():
			break loop
		case u, ok := <-utts:
			if !ok {
				break loop
			}
			// With a limit Go blocks until a slot frees up, by which time
			// gctx may be done.
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				_, err := o.HandleUtterance(gctx, u)
				if errors.Is(err, resilience.ErrCancelled) {
					return nil
				}
				return err
			})
		}
	}

	err := g.Wait()
	if errors.Is(err, session.ErrStateViolation) {
		return nil
	}
	if err == nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// HandleUtterance runs one turn for utt and returns the recorded turn.
// Ending or aborting the session while the turn runs cancels the in-flight
// stage; the turn is then returned as Aborted.
//
// A turn that fails because a stage exhausted its ranking is returned with
// Status FailedFatal and a nil error; its cause is in Turn.Err. A cancelled
// turn is recorded as Aborted and the error matches
// [resilience.ErrCancelled]. Session state errors are returned unchanged.
func (o *Orchestrator) HandleUtterance(ctx context.Context, utt audio.Utterance) (session.Turn, error) {
	if n := o.inflight.Add(1); int(n) > o.maxTurns {
		o.inflight.Add(-1)
		return session.Turn{}, ErrTurnInProgress
	}
	defer o.inflight.Add(-1)

	h, err := o.sess.StartTurn(utt)
	if err != nil {
		return session.Turn{}, err
	}

	// Ending or aborting the session cancels whichever stage is running.
	tctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case <-o.sess.Stopped():
			cancel(session.ErrStopped)
		case <-tctx.Done():
		}
	}()

	ctx, span := observe.StartSpan(tctx, "turn")
	log := observe.Logger(ctx).With("session_id", o.sess.ID(), "turn", h.Index)
	log.Debug("turn started", "speech_frames", utt.SpeechFrames, "duration", utt.Duration())

	t, m := o.run(ctx, utt)
	if t.Status == session.TurnAborted {
		// The turn's own context is done; finish bookkeeping on one that is not.
		ctx = context.WithoutCancel(ctx)
	}
	t.CompletedAt = time.Now()
	t.Index = h.Index
	t.StartedAt = h.StartedAt

	if cerr := o.sess.CompleteTurn(h, t); cerr != nil {
		log.Warn("turn not recorded", "status", t.Status, "err", cerr)
		observe.EndSpan(span, cerr)
		if t.Status == session.TurnAborted {
			return t, t.Err
		}
		return t, cerr
	}
	o.metrics.RecordTurn(ctx, t.Status.String(), t.Duration())
	o.record(ctx, t)

	attrs := []attribute.KeyValue{
		attribute.Int("turn", t.Index),
		attribute.String("status", t.Status.String()),
		attribute.String("path", m.String()),
	}
	switch t.Status {
	case session.TurnSucceeded:
		log.Info("turn completed", "phase", t.Phase, "duration", t.Duration())
		observe.EndSpan(span, nil, attrs...)
		return t, nil
	case session.TurnFailedFatal:
		log.Error("turn failed", "failed_at", t.FailedAt, "err", t.Err)
		observe.EndSpan(span, t.Err, attrs...)
		return t, nil
	default:
		log.Info("turn aborted", "failed_at", t.FailedAt)
		observe.EndSpan(span, t.Err, attrs...)
		return t, t.Err
	}
}

// run executes the stages of one turn. It never returns a Pending turn.
func (o *Orchestrator) run(ctx context.Context, utt audio.Utterance) (session.Turn, *machine) {
	langs := o.sess.Languages()
	history := o.sess.Turns()
	m := newMachine()
	var t session.Turn

	fail := func(err error) (session.Turn, *machine) {
		t.FailedAt = m.state.String()
		t.Err = err
		t.Error = err.Error()
		if errors.Is(err, resilience.ErrCancelled) {
			t.Status = session.TurnAborted
		} else {
			t.Status = session.TurnFailedFatal
		}
		m.must(Failed)
		return t, m
	}

	// ── Transcribe ───────────────────────────────────────────────────────────

	m.must(Transcribing)
	text, err := runStage(ctx, o, &t, session.StageTranscribe, o.rankings.Transcribe,
		func(ctx context.Context, p stt.Provider) (string, error) {
			s, err := p.Transcribe(ctx, utt.Audio, langs.Primary)
			if err != nil {
				return "", err
			}
			if s = strings.TrimSpace(s); s == "" {
				return "", stt.ErrEmptyTranscript
			}
			return s, nil
		})
	if err != nil {
		return fail(err)
	}
	if o.corrector != nil {
		if fixed := o.corrector.CorrectTranscript(text); fixed != text {
			observe.Logger(ctx).Debug("transcript corrected", "from", text, "to", fixed)
			t.RawTranscript = text
			text = fixed
		}
	}
	t.Transcript = text

	// ── Translate ────────────────────────────────────────────────────────────

	answer := text
	if langs.NeedsTranslation() {
		m.must(Translating)
		answer, err = runStage(ctx, o, &t, session.StageTranslate, o.rankings.Translate,
			func(ctx context.Context, p translate.Provider) (string, error) {
				return nonEmpty(p.Translate(ctx, text, langs.Primary, langs.Target))
			})
		if err != nil {
			return fail(err)
		}
		t.Translated = answer
	} else {
		t.SetStage(session.StageOutcome{Stage: session.StageTranslate, Status: session.StageSkipped})
	}

	// ── Generate ─────────────────────────────────────────────────────────────

	req, ok := o.prompter.Prompt(history, answer)
	if !ok {
		for _, st := range []session.Stage{session.StageGenerate, session.StageBackTranslate, session.StageSynthesize} {
			t.SetStage(session.StageOutcome{Stage: st, Status: session.StageSkipped})
		}
		m.must(Done)
		t.Status = session.TurnSucceeded
		return t, m
	}
	t.Phase = req.Phase

	m.must(Generating)
	reply, err := runStage(ctx, o, &t, session.StageGenerate, o.rankings.Generate,
		func(ctx context.Context, p llm.Provider) (string, error) {
			resp, err := p.Complete(ctx, req)
			if err != nil {
				return "", err
			}
			return nonEmpty(o.prompter.Clean(resp.Content), nil)
		})
	if err != nil {
		return fail(err)
	}
	t.Response = reply

	// ── Back-translate ───────────────────────────────────────────────────────

	narrated := reply
	if langs.NeedsTranslation() {
		m.must(BackTranslating)
		narrated, err = runStage(ctx, o, &t, session.StageBackTranslate, o.rankings.Translate,
			func(ctx context.Context, p translate.Provider) (string, error) {
				return nonEmpty(p.Translate(ctx, reply, langs.Target, langs.Primary))
			})
		if err != nil {
			return fail(err)
		}
	} else {
		t.SetStage(session.StageOutcome{Stage: session.StageBackTranslate, Status: session.StageSkipped})
	}
	t.Narrated = narrated

	// ── Synthesize and play ──────────────────────────────────────────────────

	m.must(Synthesizing)
	clip, err := o.synthesize(ctx, &t, narrated, langs.Primary)
	if err != nil {
		return fail(err)
	}
	t.Audio = clip
	if err := o.play(ctx, clip); err != nil {
		return fail(err)
	}

	m.must(Done)
	t.Status = session.TurnSucceeded
	return t, m
}

// Speak synthesizes text in the primary language and plays it. It is used for
// lines that are not answers to an utterance, such as the welcome and the
// closing. It does not create a turn.
func (o *Orchestrator) Speak(ctx context.Context, text string) error {
	var scratch session.Turn
	clip, err := o.synthesize(ctx, &scratch, text, o.sess.Languages().Primary)
	if err != nil {
		return fmt.Errorf("turn: speak: %w", err)
	}
	if err := o.play(ctx, clip); err != nil {
		return fmt.Errorf("turn: speak: %w", err)
	}
	return nil
}

func (o *Orchestrator) synthesize(ctx context.Context, t *session.Turn, text, lang string) (audio.Clip, error) {
	return runStage(ctx, o, t, session.StageSynthesize, o.rankings.Synthesize,
		func(ctx context.Context, p tts.Provider) (audio.Clip, error) {
			c, err := p.Synthesize(ctx, text, lang)
			if err != nil {
				return audio.Clip{}, err
			}
			if c.Empty() {
				return audio.Clip{}, errors.New("synthesizer returned no audio")
			}
			return c, nil
		})
}

// play hands clip to the sink. A sink failure fails the turn at Synthesizing,
// since the candidate never heard the reply.
func (o *Orchestrator) play(ctx context.Context, clip audio.Clip) error {
	o.playMu.Lock()
	defer o.playMu.Unlock()
	if ctx.Err() != nil {
		return fmt.Errorf("%w: playback: %w", resilience.ErrCancelled, context.Cause(ctx))
	}
	if err := o.sink.Play(ctx, clip); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: playback: %w", resilience.ErrCancelled, context.Cause(ctx))
		}
		return fmt.Errorf("turn: playback: %w", err)
	}
	return nil
}

func (o *Orchestrator) record(ctx context.Context, t session.Turn) {
	for _, r := range o.recorders {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		if err := r.RecordTurn(rctx, o.sess, t); err != nil {
			observe.Logger(ctx).Warn("turn recorder failed", "turn", t.Index, "recorder", fmt.Sprintf("%T", r), "err", err)
		}
		cancel()
	}
}

// runStage executes one stage and records its outcome on t.
func runStage[T, R any](ctx context.Context, o *Orchestrator, t *session.Turn, st session.Stage, ranking resilience.Ranking[T], call func(context.Context, T) (R, error)) (R, error) {
	res, err := resilience.Execute(ctx, o.exec, string(st), ranking, call)
	out := session.StageOutcome{
		Stage:    st,
		Provider: res.Provider,
		Latency:  res.Elapsed,
		Attempts: len(res.Attempts),
	}
	switch {
	case err == nil && res.Degraded():
		out.Status = session.StageFailedFallback
	case err == nil:
		out.Status = session.StageSucceeded
	case errors.Is(err, resilience.ErrCancelled):
		out.Status = session.StagePending
		out.Error = err.Error()
	default:
		out.Status = session.StageFailedFatal
		out.Error = err.Error()
	}
	t.SetStage(out)
	return res.Value, err
}

func nonEmpty(s string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if s = strings.TrimSpace(s); s == "" {
		return "", errors.New("empty output")
	}
	return s, nil
}
