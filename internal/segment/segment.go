// Package segment turns a stream of classified audio frames into utterances.
//
// The segmenter is a two-state machine. In Idle it waits for OnsetFrames
// consecutive speech frames; buffering starts at the first of them so the
// beginning of a word is never clipped. In Speaking it waits for
// HangoverFrames consecutive silence frames, then closes the segment. A
// closed segment is emitted only when it holds more than MinSpeechFrames
// speech frames; shorter bursts (coughs, clicks, a chair moving) are dropped
// and counted as no-ops.
//
// A Segmenter performs no I/O and never blocks. It is not safe for concurrent
// use; one segmenter serves one frame stream.
package segment

import (
	"errors"
	"fmt"

	"github.com/vzynszice/voice-interview-system/pkg/audio"
	"github.com/vzynszice/voice-interview-system/pkg/provider/vad"
)

// ErrNoop describes a candidate segment that was dropped for being too
// short. It is never returned from Feed; drops are reported through Stats
// and the optional OnDrop hook.
var ErrNoop = errors.New("segment: utterance below minimum speech length")

// Config holds the frame-count thresholds of the state machine.
type Config struct {
	// OnsetFrames is the number of consecutive speech frames that start a
	// segment. Must be at least 1.
	OnsetFrames int

	// HangoverFrames is the number of consecutive silence frames that end a
	// segment. Must be greater than OnsetFrames.
	HangoverFrames int

	// MinSpeechFrames is the exclusive lower bound on speech frames for a
	// segment to be emitted.
	MinSpeechFrames int
}

// Validate reports whether the thresholds are usable.
func (c Config) Validate() error {
	var errs []error
	if c.OnsetFrames < 1 {
		errs = append(errs, fmt.Errorf("segment: onset frames must be >= 1, got %d", c.OnsetFrames))
	}
	if c.HangoverFrames <= c.OnsetFrames {
		errs = append(errs, fmt.Errorf("segment: hangover frames (%d) must be greater than onset frames (%d)", c.HangoverFrames, c.OnsetFrames))
	}
	if c.MinSpeechFrames < 0 {
		errs = append(errs, fmt.Errorf("segment: min speech frames must be >= 0, got %d", c.MinSpeechFrames))
	}
	return errors.Join(errs...)
}

// State is the segmenter's position in its state machine.
type State int

const (
	// Idle means no speech run is in progress.
	Idle State = iota
	// Onset means a speech run has started but is shorter than OnsetFrames.
	Onset
	// Speaking means a segment is open and frames are being buffered.
	Speaking
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Onset:
		return "onset"
	case Speaking:
		return "speaking"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Stats counts what the segmenter has seen since construction or the last
// Reset.
type Stats struct {
	Frames  int // frames fed
	Emitted int // utterances returned
	Dropped int // candidates discarded as ErrNoop
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithOnDrop registers a hook called whenever a candidate is discarded. err
// always matches [ErrNoop].
func WithOnDrop(fn func(speechFrames int, err error)) Option {
	return func(s *Segmenter) {
		s.onDrop = fn
	}
}

// WithTrailingSilence keeps at most n of the hangover silence frames at the
// end of an emitted utterance. By default all of them are kept. n below 0 is
// ignored.
func WithTrailingSilence(n int) Option {
	return func(s *Segmenter) {
		if n >= 0 {
			s.keepTail = n
		}
	}
}

// Segmenter implements the onset/hangover segmentation state machine.
type Segmenter struct {
	cfg        Config
	classifier vad.Classifier
	onDrop     func(int, error)
	keepTail   int // -1 keeps every trailing silence frame

	state    State
	buf      []audio.Frame
	speech   int // speech frames in buf
	run      int // current onset speech run
	silences int // trailing silence frames while Speaking

	stats Stats
}

// New creates a Segmenter. cfg must pass Validate.
func New(cfg Config, classifier vad.Classifier, opts ...Option) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if classifier == nil {
		return nil, errors.New("segment: classifier must not be nil")
	}
	s := &Segmenter{cfg: cfg, classifier: classifier, keepTail: -1}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Feed classifies frame and advances the state machine. It returns an
// utterance and true when frame closes a segment that meets the minimum
// length.
func (s *Segmenter) Feed(frame audio.Frame) (audio.Utterance, bool) {
	s.stats.Frames++
	act := s.classifier.Classify(frame)

	switch s.state {
	case Idle:
		if act == vad.Speech {
			s.buf = append(s.buf[:0], frame)
			s.speech, s.run = 1, 1
			s.state = Onset
			s.promote()
		}

	case Onset:
		if act != vad.Speech {
			s.clear()
			return audio.Utterance{}, false
		}
		s.buf = append(s.buf, frame)
		s.speech++
		s.run++
		s.promote()

	case Speaking:
		s.buf = append(s.buf, frame)
		if act == vad.Speech {
			s.speech++
			s.silences = 0
			return audio.Utterance{}, false
		}
		s.silences++
		if s.silences >= s.cfg.HangoverFrames {
			return s.finish()
		}
	}
	return audio.Utterance{}, false
}

// promote moves Onset to Speaking once the run reaches OnsetFrames.
func (s *Segmenter) promote() {
	if s.run >= s.cfg.OnsetFrames {
		s.state = Speaking
		s.silences = 0
	}
}

// Flush closes an open segment at end of stream. An unfinished onset run is
// discarded without counting as a drop.
func (s *Segmenter) Flush() (audio.Utterance, bool) {
	if s.state != Speaking {
		s.clear()
		return audio.Utterance{}, false
	}
	return s.finish()
}

// Reset discards any buffered frames and clears the counters.
func (s *Segmenter) Reset() {
	s.clear()
	s.stats = Stats{}
}

// State returns the current state.
func (s *Segmenter) State() State { return s.state }

// Stats returns a copy of the counters.
func (s *Segmenter) Stats() Stats { return s.stats }

// Config returns the thresholds the segmenter was built with.
func (s *Segmenter) Config() Config { return s.cfg }

func (s *Segmenter) finish() (audio.Utterance, bool) {
	defer s.clear()
	if s.speech <= s.cfg.MinSpeechFrames {
		s.stats.Dropped++
		if s.onDrop != nil {
			s.onDrop(s.speech, fmt.Errorf("%w: %d speech frames, need more than %d", ErrNoop, s.speech, s.cfg.MinSpeechFrames))
		}
		return audio.Utterance{}, false
	}
	s.stats.Emitted++
	frames := s.buf
	if s.keepTail >= 0 && s.silences > s.keepTail {
		frames = frames[:len(frames)-(s.silences-s.keepTail)]
	}
	return assemble(frames, s.speech), true
}

func (s *Segmenter) clear() {
	clear(s.buf)
	s.buf = s.buf[:0]
	s.speech, s.run, s.silences = 0, 0, 0
	s.state = Idle
}

// assemble concatenates frames into an utterance that owns its audio.
func assemble(frames []audio.Frame, speech int) audio.Utterance {
	first, last := frames[0], frames[len(frames)-1]
	size := 0
	for _, f := range frames {
		size += len(f.Data)
	}
	data := make([]byte, 0, size)
	for _, f := range frames {
		data = append(data, f.Data...)
	}
	return audio.Utterance{
		FirstSeq:     first.Seq,
		LastSeq:      last.Seq,
		Start:        first.Timestamp,
		End:          last.Timestamp + last.Duration(),
		Frames:       len(frames),
		SpeechFrames: speech,
		Audio: audio.Clip{
			Data:       data,
			SampleRate: first.SampleRate,
			Channels:   first.Channels,
		},
	}
}
