package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vzynszice/voice-interview-system/internal/interview"
	"github.com/vzynszice/voice-interview-system/internal/observe"
	"github.com/vzynszice/voice-interview-system/internal/segment"
	"github.com/vzynszice/voice-interview-system/internal/session"
	"github.com/vzynszice/voice-interview-system/pkg/audio"
)

// errInterviewComplete stops the pipeline once the closing line is spoken.
var errInterviewComplete = errors.New("app: interview complete")

// Run conducts the interview and blocks until it ends.
//
// The interview ends when the plan is exhausted (closing line, session
// Ended), when the audio input is exhausted (session Ended), or when ctx is
// cancelled. A cancelled interview stays Active in its checkpoint so it can
// be resumed. In every case the transcript is exported before Run returns.
func (a *App) Run(ctx context.Context) error {
	log := slog.With("session_id", a.sess.ID())

	if err := a.startServer(); err != nil {
		return err
	}
	a.autosaver.Start(ctx)

	if a.interviewer.Finished(a.sess.Turns()) {
		a.finishOnce.Do(func() { close(a.finished) })
	}
	if n := len(a.sess.Turns()); n > 0 {
		log.Info("resuming interview", "turns", n, "answered", interview.Answered(a.sess.Turns()))
	} else {
		ic := a.cfg.Interview
		if err := a.orch.Speak(ctx, interview.Welcome(a.sess.Languages().Primary, ic.Job, ic.Candidate)); err != nil {
			log.Warn("welcome line not spoken", "err", err)
		}
	}

	err := a.pipeline(ctx)
	switch {
	case err != nil && ctx.Err() == nil:
		log.Error("interview pipeline failed", "err", err)
		a.sess.Abort()
	case ctx.Err() != nil:
		log.Info("interview interrupted; it can be resumed from its checkpoint")
		err = nil
	case a.sess.Status() == session.Active:
		log.Info("audio input ended")
		a.sess.End()
	}

	if serr := a.autosaver.SaveNow(); serr != nil {
		log.Warn("checkpoint not saved", "err", serr)
	}
	a.export(context.WithoutCancel(ctx))

	log.Info("interview finished",
		"status", a.sess.Status(),
		"turns", len(a.sess.Turns()),
		"succeeded", a.sess.Done(session.TurnSucceeded),
		"failed", a.sess.Done(session.TurnFailedFatal),
		"aborted", a.sess.Done(session.TurnAborted),
	)
	return err
}

// pipeline runs capture → frame queue → segmenter → orchestrator until one
// of them stops.
func (a *App) pipeline(ctx context.Context) error {
	sc := a.cfg.Segmenter
	segOpts := []segment.Option{
		segment.WithOnDrop(func(speech int, err error) {
			a.metrics.RecordUtterance(ctx, "dropped")
			slog.Debug("utterance dropped", "speech_frames", speech, "err", err)
		}),
	}
	if sc.TrailingSilenceFrames != nil {
		segOpts = append(segOpts, segment.WithTrailingSilence(*sc.TrailingSilenceFrames))
	}
	seg, err := segment.New(
		segment.Config{OnsetFrames: sc.OnsetFrames, HangoverFrames: sc.HangoverFrames, MinSpeechFrames: sc.MinSpeechFrames},
		a.providers.VAD,
		segOpts...,
	)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	frames := audio.NewFrameQueue(a.cfg.Audio.QueueSize)
	utts := make(chan audio.Utterance, a.cfg.Session.UtteranceQueue)
	turnsDone := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.capture(gctx, frames) })
	g.Go(func() error { return a.segment(gctx, seg, frames.Frames(), utts) })
	g.Go(func() error {
		defer close(turnsDone)
		return a.orch.Run(gctx, utts)
	})
	g.Go(func() error { return a.closeInterview(gctx, turnsDone) })

	err = g.Wait()
	if errors.Is(err, errInterviewComplete) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// capture moves frames from the source into q. Push blocks while q is full,
// so a slow pipeline slows capture down instead of losing audio.
func (a *App) capture(ctx context.Context, q *audio.FrameQueue) error {
	defer q.Close()
	for {
		f, err := a.source.Next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case ctx.Err() != nil:
			return nil
		case err != nil:
			return fmt.Errorf("app: capture: %w", err)
		}
		if err := q.Push(ctx, f); err != nil {
			if ctx.Err() != nil || errors.Is(err, audio.ErrQueueClosed) {
				return nil
			}
			return fmt.Errorf("app: capture: %w", err)
		}
	}
}

// segment feeds frames to seg and forwards complete utterances. It closes
// out when frames is drained, flushing a segment still in progress.
func (a *App) segment(ctx context.Context, seg *segment.Segmenter, frames <-chan audio.Frame, out chan<- audio.Utterance) error {
	defer close(out)
	emit := func(u audio.Utterance) bool {
		a.metrics.RecordUtterance(ctx, "emitted")
		slog.Debug("utterance emitted", "first_seq", u.FirstSeq, "last_seq", u.LastSeq, "speech_frames", u.SpeechFrames)
		select {
		case out <- u:
			return true
		case <-ctx.Done():
			return false
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-frames:
			if !ok {
				if u, ok := seg.Flush(); ok {
					emit(u)
				}
				st := seg.Stats()
				slog.Debug("segmenter drained", "frames", st.Frames, "emitted", st.Emitted, "dropped", st.Dropped)
				return nil
			}
			if u, ok := seg.Feed(f); ok && !emit(u) {
				return nil
			}
		}
	}
}

// closeInterview waits for the last planned answer, ends the session and
// speaks the closing line.
func (a *App) closeInterview(ctx context.Context, turnsDone <-chan struct{}) error {
	select {
	case <-a.finished:
	case <-turnsDone:
		select {
		case <-a.finished:
		default:
			return nil
		}
	case <-ctx.Done():
		return nil
	}

	a.sess.End()
	observe.Logger(ctx).Info("interview plan complete", "session_id", a.sess.ID())
	if err := a.orch.Speak(ctx, interview.Closing(a.sess.Languages().Primary)); err != nil {
		observe.Logger(ctx).Warn("closing line not spoken", "err", err)
	}
	return errInterviewComplete
}

// export writes the transcript file and the final session row.
func (a *App) export(ctx context.Context) {
	ic := a.cfg.Interview
	path, err := session.ExportTranscript(a.cfg.Storage.TranscriptDir, a.sess, session.ExportInfo{
		Job:       ic.Job,
		Candidate: ic.Candidate,
		Providers: a.orch.Rankings().Primary(),
	})
	if err != nil {
		slog.Error("transcript export failed", "err", err)
	} else {
		a.mu.Lock()
		a.transcriptPath = path
		a.mu.Unlock()
		slog.Info("transcript exported", "path", path)
	}

	if a.turnLog != nil {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := a.turnLog.SaveSession(ctx, a.sess); err != nil {
			slog.Warn("session row not saved", "err", err)
		}
	}
}

// startServer serves health, status and metrics on server.listen_addr.
func (a *App) startServer() error {
	addr := a.cfg.Server.ListenAddr
	if addr == "" || a.server != nil {
		return nil
	}
	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler())

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", addr, err)
	}
	a.server = &http.Server{
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
		}
	}()
	slog.Info("http server listening", "addr", ln.Addr().String())
	return nil
}
