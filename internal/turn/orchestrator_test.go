package turn

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vzynszice/voice-interview-system/internal/resilience"
	"github.com/vzynszice/voice-interview-system/internal/session"
	"github.com/vzynszice/voice-interview-system/pkg/audio"
	audiomock "github.com/vzynszice/voice-interview-system/pkg/audio/mock"
	"github.com/vzynszice/voice-interview-system/pkg/provider/llm"
	llmmock "github.com/vzynszice/voice-interview-system/pkg/provider/llm/mock"
	"github.com/vzynszice/voice-interview-system/pkg/provider/stt"
	sttmock "github.com/vzynszice/voice-interview-system/pkg/provider/stt/mock"
	"github.com/vzynszice/voice-interview-system/pkg/provider/translate"
	translatemock "github.com/vzynszice/voice-interview-system/pkg/provider/translate/mock"
	"github.com/vzynszice/voice-interview-system/pkg/provider/tts"
	ttsmock "github.com/vzynszice/voice-interview-system/pkg/provider/tts/mock"
)

// callLog records the global order of provider calls across mocks.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) hook(name string) func() {
	return func() {
		l.mu.Lock()
		l.calls = append(l.calls, name)
		l.mu.Unlock()
	}
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.calls)
}

// stubPrompter passes the answer through as the only message.
type stubPrompter struct {
	done bool
}

func (p stubPrompter) Prompt(history []session.Turn, answer string) (llm.CompletionRequest, bool) {
	if p.done {
		return llm.CompletionRequest{}, false
	}
	return llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: answer}},
		Phase:    "technical",
	}, true
}

func (stubPrompter) Clean(reply string) string { return reply }

type recorderFunc func(ctx context.Context, s *session.Session, t session.Turn) error

func (f recorderFunc) RecordTurn(ctx context.Context, s *session.Session, t session.Turn) error {
	return f(ctx, s, t)
}

type fixture struct {
	log   *callLog
	stt   []*sttmock.Provider
	tr    *translatemock.Provider
	gen   *llmmock.Provider
	tts   *ttsmock.Provider
	sink  *audiomock.Sink
	sess  *session.Session
	rank  Rankings
	exec  *resilience.Executor
	turns int
}

func newFixture(t *testing.T, langs session.Languages, sttCount int) *fixture {
	t.Helper()
	f := &fixture{log: &callLog{}}
	for i := range sttCount {
		p := &sttmock.Provider{Text: "merhaba", OnCall: f.log.hook("transcribe")}
		f.stt = append(f.stt, p)
		f.rank.Transcribe = append(f.rank.Transcribe, resilience.Candidate[stt.Provider]{Name: string(rune('a' + i)), Client: p})
	}
	f.tr = &translatemock.Provider{OnCall: f.log.hook("translate")}
	f.gen = &llmmock.Provider{Content: "Hi, tell me about yourself", OnCall: f.log.hook("generate")}
	f.tts = &ttsmock.Provider{OnCall: f.log.hook("synthesize")}
	f.sink = &audiomock.Sink{OnPlay: func(audio.Clip) { f.log.hook("play")() }}

	f.rank.Translate = resilience.Ranking[translate.Provider]{{Name: "libre", Client: f.tr}}
	f.rank.Generate = resilience.Ranking[llm.Provider]{{Name: "llm", Client: f.gen}}
	f.rank.Synthesize = resilience.Ranking[tts.Provider]{{Name: "coqui", Client: f.tts}}

	f.sess = session.New(langs)
	f.exec = resilience.NewExecutor(
		resilience.WithDefaultPolicy(resilience.Policy{Timeout: time.Second, MaxRetries: 1, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond}),
		resilience.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
	)
	return f
}

func (f *fixture) orchestrator(t *testing.T, p Prompter, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(f.sess, f.exec, f.rank, p, f.sink, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func testUtterance() audio.Utterance {
	return audio.Utterance{
		FirstSeq:     3,
		LastSeq:      20,
		SpeechFrames: 15,
		Audio:        audio.Clip{Data: make([]byte, 3200), SampleRate: 16000, Channels: 1},
	}
}

func TestHandleUtterance_TranslatedTurn(t *testing.T) {
	f := newFixture(t, session.Languages{Primary: "tr", Target: "en"}, 1)
	f.tr.Script = []translatemock.Response{{Text: "hello"}, {Text: "Merhaba, kendinden bahseder misin"}}
	o := f.orchestrator(t, stubPrompter{})

	turn, err := o.HandleUtterance(context.Background(), testUtterance())
	if err != nil {
		t.Fatalf("HandleUtterance: %v", err)
	}

	wantOrder := []string{"transcribe", "translate", "generate", "translate", "synthesize", "play"}
	if got := f.log.get(); !slices.Equal(got, wantOrder) {
		t.Fatalf("call order = %v, want %v", got, wantOrder)
	}

	if got := f.stt[0].Calls()[0].Language; got != "tr" {
		t.Errorf("transcribe language = %q, want tr", got)
	}
	tcalls := f.tr.Calls()
	if tcalls[0] != (translatemock.TranslateCall{Text: "merhaba", From: "tr", To: "en"}) {
		t.Errorf("forward translate call = %+v", tcalls[0])
	}
	if tcalls[1] != (translatemock.TranslateCall{Text: "Hi, tell me about yourself", From: "en", To: "tr"}) {
		t.Errorf("back translate call = %+v", tcalls[1])
	}
	if got := f.gen.Calls()[0].Messages[0].Content; got != "hello" {
		t.Errorf("generator saw %q, want hello", got)
	}
	scall := f.tts.Calls()[0]
	if scall.Text != "Merhaba, kendinden bahseder misin" || scall.Language != "tr" {
		t.Errorf("synthesize call = %+v", scall)
	}
	if n := len(f.sink.Clips()); n != 1 {
		t.Errorf("played %d clips, want 1", n)
	}

	if turn.Status != session.TurnSucceeded || turn.Index != 1 {
		t.Fatalf("turn = %s", turn)
	}
	if turn.Transcript != "merhaba" || turn.Translated != "hello" ||
		turn.Response != "Hi, tell me about yourself" || turn.Narrated != "Merhaba, kendinden bahseder misin" {
		t.Errorf("turn texts = %q %q %q %q", turn.Transcript, turn.Translated, turn.Response, turn.Narrated)
	}
	if turn.Audio.Empty() {
		t.Error("turn has no audio")
	}
	for _, st := range session.Stages {
		o, ok := turn.Stage(st)
		if !ok || o.Status != session.StageSucceeded {
			t.Errorf("stage %s = %+v, %v, want succeeded", st, o, ok)
		}
	}

	stored := f.sess.Turns()
	if len(stored) != 1 || stored[0].Status != session.TurnSucceeded || stored[0].Utterance.LastSeq != 20 {
		t.Errorf("stored turns = %+v", stored)
	}
}

func TestHandleUtterance_TranscriptionExhausted(t *testing.T) {
	f := newFixture(t, session.Languages{Primary: "en", Target: "en"}, 2)
	f.stt[0].Err = errors.New("whisper down")
	f.stt[1].Err = errors.New("deepgram down")
	o := f.orchestrator(t, stubPrompter{})

	turn, err := o.HandleUtterance(context.Background(), testUtterance())
	if err != nil {
		t.Fatalf("HandleUtterance: %v", err)
	}
	if turn.Status != session.TurnFailedFatal {
		t.Fatalf("Status = %v, want failed_fatal", turn.Status)
	}
	if turn.FailedAt != Transcribing.String() {
		t.Errorf("FailedAt = %q, want transcribing", turn.FailedAt)
	}
	if !errors.Is(turn.Err, resilience.ErrStageExhausted) {
		t.Errorf("Err = %v, want ErrStageExhausted", turn.Err)
	}
	var ee *resilience.ExhaustedError
	if errors.As(turn.Err, &ee) && !slices.Equal(ee.Providers(), []string{"a", "b"}) {
		t.Errorf("exhausted providers = %v, want [a b]", ee.Providers())
	}
	if f.gen.CallCount() != 0 || f.tts.CallCount() != 0 || f.tr.CallCount() != 0 {
		t.Errorf("later stages called: generate=%d synthesize=%d translate=%d",
			f.gen.CallCount(), f.tts.CallCount(), f.tr.CallCount())
	}
	if o, _ := turn.Stage(session.StageTranscribe); o.Status != session.StageFailedFatal || o.Attempts != 4 {
		t.Errorf("transcribe outcome = %+v, want failed_fatal after 4 attempts", o)
	}

	// The next utterance is accepted.
	f.stt[1].Err = nil
	next, err := o.HandleUtterance(context.Background(), testUtterance())
	if err != nil || next.Status != session.TurnSucceeded || next.Index != 2 {
		t.Fatalf("next turn = %s, %v", next, err)
	}
	if o, _ := next.Stage(session.StageTranscribe); o.Status != session.StageFailedFallback || o.Provider != "b" {
		t.Errorf("transcribe outcome = %+v, want failed_fallback via b", o)
	}
	if o, _ := next.Stage(session.StageTranslate); o.Status != session.StageSkipped {
		t.Errorf("translate outcome = %+v, want skipped", o)
	}
	if got := f.sess.Turns(); len(got) != 2 || got[0].Status != session.TurnFailedFatal {
		t.Errorf("stored turns = %+v", got)
	}
}

func TestHandleUtterance_EmptyTranscriptFailsOver(t *testing.T) {
	f := newFixture(t, session.Languages{Primary: "en", Target: "en"}, 2)
	f.stt[0].Text = "   "
	f.stt[1].Text = "I like Go"
	o := f.orchestrator(t, stubPrompter{})

	turn, err := o.HandleUtterance(context.Background(), testUtterance())
	if err != nil || turn.Status != session.TurnSucceeded {
		t.Fatalf("turn = %s, %v", turn, err)
	}
	if turn.Transcript != "I like Go" {
		t.Errorf("Transcript = %q", turn.Transcript)
	}
}

func TestHandleUtterance_Cancelled(t *testing.T) {
	f := newFixture(t, session.Languages{Primary: "en", Target: "en"}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	f.gen.OnCall = cancel
	f.gen.Delay = time.Minute
	o := f.orchestrator(t, stubPrompter{})

	turn, err := o.HandleUtterance(ctx, testUtterance())
	if !errors.Is(err, resilience.ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if turn.Status != session.TurnAborted || turn.FailedAt != Generating.String() {
		t.Errorf("turn = %s", turn)
	}
	stored := f.sess.Turns()
	if len(stored) != 1 || stored[0].Status != session.TurnAborted {
		t.Fatalf("stored = %+v", stored)
	}
	if f.tts.CallCount() != 0 {
		t.Errorf("synthesizer called after cancellation")
	}
}

func TestHandleUtterance_TurnInProgress(t *testing.T) {
	f := newFixture(t, session.Languages{Primary: "en", Target: "en"}, 1)
	started := make(chan struct{})
	release := make(chan struct{})
	f.stt[0].OnCall = func() {
		close(started)
		<-release
	}
	o := f.orchestrator(t, stubPrompter{})

	done := make(chan error, 1)
	go func() {
		_, err := o.HandleUtterance(context.Background(), testUtterance())
		done <- err
	}()
	<-started

	if _, err := o.HandleUtterance(context.Background(), testUtterance()); !errors.Is(err, ErrTurnInProgress) {
		t.Fatalf("err = %v, want ErrTurnInProgress", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if n := len(f.sess.Turns()); n != 1 {
		t.Errorf("stored %d turns, want 1", n)
	}
}

func TestHandleUtterance_InterviewOver(t *testing.T) {
	f := newFixture(t, session.Languages{Primary: "tr", Target: "en"}, 1)
	f.tr.Text = "hello"
	o := f.orchestrator(t, stubPrompter{done: true})

	turn, err := o.HandleUtterance(context.Background(), testUtterance())
	if err != nil || turn.Status != session.TurnSucceeded {
		t.Fatalf("turn = %s, %v", turn, err)
	}
	if f.gen.CallCount() != 0 || f.tts.CallCount() != 0 {
		t.Errorf("reply generated after the last question")
	}
	if turn.Translated != "hello" {
		t.Errorf("Translated = %q", turn.Translated)
	}
	for _, st := range []session.Stage{session.StageGenerate, session.StageBackTranslate, session.StageSynthesize} {
		if o, _ := turn.Stage(st); o.Status != session.StageSkipped {
			t.Errorf("stage %s = %v, want skipped", st, o.Status)
		}
	}
}

func TestHandleUtterance_PlaybackFailure(t *testing.T) {
	f := newFixture(t, session.Languages{Primary: "en", Target: "en"}, 1)
	f.sink.PlayErr = errors.New("device gone")
	o := f.orchestrator(t, stubPrompter{})

	turn, err := o.HandleUtterance(context.Background(), testUtterance())
	if err != nil {
		t.Fatalf("HandleUtterance: %v", err)
	}
	if turn.Status != session.TurnFailedFatal || turn.FailedAt != Synthesizing.String() {
		t.Errorf("turn = %s", turn)
	}
	if turn.Response == "" {
		t.Errorf("partial output lost")
	}
}

func TestHandleUtterance_Recorders(t *testing.T) {
	f := newFixture(t, session.Languages{Primary: "en", Target: "en"}, 1)
	var got []int
	rec := recorderFunc(func(ctx context.Context, s *session.Session, tr session.Turn) error {
		if ctx.Err() != nil {
			t.Errorf("recorder context already done")
		}
		got = append(got, tr.Index)
		return errors.New("ignored")
	})
	o := f.orchestrator(t, stubPrompter{}, WithRecorder(rec))

	for range 2 {
		if _, err := o.HandleUtterance(context.Background(), testUtterance()); err != nil {
			t.Fatalf("HandleUtterance: %v", err)
		}
	}
	if !slices.Equal(got, []int{1, 2}) {
		t.Errorf("recorded %v, want [1 2]", got)
	}
}

func TestHandleUtterance_SessionEnded(t *testing.T) {
	f := newFixture(t, session.Languages{Primary: "en", Target: "en"}, 1)
	o := f.orchestrator(t, stubPrompter{})
	f.sess.End()

	_, err := o.HandleUtterance(context.Background(), testUtterance())
	if !errors.Is(err, session.ErrStateViolation) {
		t.Fatalf("err = %v, want ErrStateViolation", err)
	}
	if f.stt[0].CallCount() != 0 {
		t.Errorf("transcriber called for a closed session")
	}
}

type upperCorrector struct{}

func (upperCorrector) CorrectTranscript(text string) string { return strings.ToUpper(text) }

func TestHandleUtterance_TranscriptCorrector(t *testing.T) {
	f := newFixture(t, session.Languages{Primary: "tr", Target: "en"}, 1)
	o := f.orchestrator(t, stubPrompter{}, WithTranscriptCorrector(upperCorrector{}))

	turn, err := o.HandleUtterance(context.Background(), testUtterance())
	if err != nil {
		t.Fatalf("HandleUtterance: %v", err)
	}
	if turn.Transcript != "MERHABA" || turn.RawTranscript != "merhaba" {
		t.Errorf("transcript = %q (raw %q), want MERHABA (raw merhaba)", turn.Transcript, turn.RawTranscript)
	}
	if got := f.tr.Calls()[0].Text; got != "MERHABA" {
		t.Errorf("translated text = %q, want the corrected transcript", got)
	}
}

func TestHandleUtterance_SessionEndCancelsStage(t *testing.T) {
	f := newFixture(t, session.Languages{Primary: "en", Target: "en"}, 1)
	f.gen.Delay = 5 * time.Second
	f.gen.OnCall = func() {
		f.log.hook("generate")()
		f.sess.End()
	}
	o := f.orchestrator(t, stubPrompter{})

	start := time.Now()
	turn, err := o.HandleUtterance(context.Background(), testUtterance())
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("HandleUtterance took %v, want the generate call cancelled", elapsed)
	}
	if !errors.Is(err, resilience.ErrCancelled) || !errors.Is(err, session.ErrStopped) {
		t.Fatalf("err = %v, want ErrCancelled caused by ErrStopped", err)
	}
	if turn.Status != session.TurnAborted || turn.FailedAt != Generating.String() || turn.Index != 1 {
		t.Errorf("turn = %s at %q index %d, want aborted at Generating index 1", turn.Status, turn.FailedAt, turn.Index)
	}
	if n := f.tts.CallCount(); n != 0 {
		t.Errorf("synthesize calls after End = %d, want 0", n)
	}
	if clips := f.sink.Clips(); len(clips) != 0 {
		t.Errorf("played %d clips after End", len(clips))
	}
	if got, want := f.log.get(), []string{"transcribe", "generate"}; !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	recorded := f.sess.Turns()
	if len(recorded) != 1 || recorded[0].Status != session.TurnAborted {
		t.Errorf("session log = %+v, want one aborted turn", recorded)
	}
}

func TestRun_CancelDoesNotStartQueuedTurn(t *testing.T) {
	f := newFixture(t, session.Languages{Primary: "en", Target: "en"}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.stt[0].OnCall = cancel
	o := f.orchestrator(t, stubPrompter{})

	utts := make(chan audio.Utterance, 2)
	utts <- testUtterance()
	utts <- testUtterance()
	close(utts)

	if err := o.Run(ctx, utts); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if turns := f.sess.Turns(); len(turns) != 1 {
		t.Errorf("recorded %d turns, want only the one in flight at cancellation: %+v", len(turns), turns)
	}
	if n := f.stt[0].CallCount(); n != 1 {
		t.Errorf("transcribe calls = %d, want 1", n)
	}
}

func TestRun(t *testing.T) {
	f := newFixture(t, session.Languages{Primary: "en", Target: "en"}, 1)
	f.stt[0].Script = []sttmock.Response{{Text: "one"}, {Text: "two"}, {Text: "three"}}
	o := f.orchestrator(t, stubPrompter{})

	utts := make(chan audio.Utterance, 3)
	for range 3 {
		utts <- testUtterance()
	}
	close(utts)

	if err := o.Run(context.Background(), utts); err != nil {
		t.Fatalf("Run: %v", err)
	}
	turns := f.sess.Turns()
	if len(turns) != 3 {
		t.Fatalf("len(turns) = %d, want 3", len(turns))
	}
	for i, want := range []string{"one", "two", "three"} {
		if turns[i].Index != i+1 || turns[i].Transcript != want {
			t.Errorf("turn %d = %d %q, want %d %q", i, turns[i].Index, turns[i].Transcript, i+1, want)
		}
	}
}

func TestRun_StopsWhenSessionEnds(t *testing.T) {
	f := newFixture(t, session.Languages{Primary: "en", Target: "en"}, 1)
	o := f.orchestrator(t, stubPrompter{})
	f.sess.End()

	utts := make(chan audio.Utterance, 1)
	utts <- testUtterance()

	errc := make(chan error, 1)
	go func() { errc <- o.Run(context.Background(), utts) }()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the session ended")
	}
}

func TestRun_OverlappingTurnsSerialisePlayback(t *testing.T) {
	f := newFixture(t, session.Languages{Primary: "en", Target: "en"}, 1)
	f.gen.Delay = 20 * time.Millisecond

	var (
		mu              sync.Mutex
		playing, peakPl int
	)
	f.sink.OnPlay = func(audio.Clip) {
		mu.Lock()
		playing++
		peakPl = max(peakPl, playing)
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		playing--
		mu.Unlock()
	}
	o := f.orchestrator(t, stubPrompter{}, WithMaxConcurrentTurns(3))

	utts := make(chan audio.Utterance, 6)
	for range 6 {
		utts <- testUtterance()
	}
	close(utts)
	if err := o.Run(context.Background(), utts); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := len(f.sess.Turns()); n != 6 {
		t.Fatalf("stored %d turns, want 6", n)
	}
	if peakPl != 1 {
		t.Errorf("peak concurrent playback = %d, want 1", peakPl)
	}
}

func TestSpeak(t *testing.T) {
	f := newFixture(t, session.Languages{Primary: "tr", Target: "en"}, 1)
	f.tts.Script = []ttsmock.Response{{Err: errors.New("boom")}}
	o := f.orchestrator(t, stubPrompter{})

	if err := o.Speak(context.Background(), "Merhaba"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	calls := f.tts.Calls()
	if len(calls) != 2 || calls[1].Language != "tr" {
		t.Errorf("synthesize calls = %+v", calls)
	}
	if len(f.sink.Clips()) != 1 {
		t.Errorf("clips played = %d, want 1", len(f.sink.Clips()))
	}
	if len(f.sess.Turns()) != 0 {
		t.Errorf("Speak created a turn")
	}
}

func TestNew_Validation(t *testing.T) {
	f := newFixture(t, session.Languages{Primary: "tr", Target: "en"}, 1)
	r := f.rank
	r.Translate = nil
	if _, err := New(f.sess, f.exec, r, stubPrompter{}, f.sink); err == nil {
		t.Fatal("New accepted a missing translate ranking for tr->en")
	}
	if _, err := New(nil, nil, Rankings{}, nil, nil); err == nil {
		t.Fatal("New accepted nil dependencies")
	}
}

func TestRankings_Primary(t *testing.T) {
	f := newFixture(t, session.Languages{Primary: "en", Target: "en"}, 2)
	got := f.rank.Primary()
	if got["transcribe"] != "a" || got["generate"] != "llm" || got["synthesize"] != "coqui" {
		t.Errorf("Primary = %v", got)
	}
}
