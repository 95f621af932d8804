// Package mock provides in-memory implementations of [audio.FrameSource] and
// [audio.Sink] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every call so that
// tests can assert on call counts and arguments, and they expose exported
// fields that the test can set to control return values.
//
// Typical usage:
//
//	src := mock.NewSource(frames...)
//	sink := &mock.Sink{}
//	// ... run the pipeline ...
//	if len(sink.Clips()) != 1 { ... }
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/vzynszice/voice-interview-system/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock [audio.FrameSource] that replays a fixed list of frames
// and then returns Err, or [io.EOF] when Err is nil.
type Source struct {
	mu     sync.Mutex
	frames []audio.Frame
	pos    int

	// Err is returned once all frames have been delivered.
	Err error

	// CallCount records how many times Next was called.
	CallCount int
}

var _ audio.FrameSource = (*Source)(nil)

// NewSource returns a Source that yields frames in order. Seq is assigned
// from the slice position when left zero.
func NewSource(frames ...audio.Frame) *Source {
	for i := range frames {
		if frames[i].Seq == 0 {
			frames[i].Seq = uint64(i)
		}
	}
	return &Source{frames: frames}
}

// Next implements [audio.FrameSource].
func (s *Source) Next(ctx context.Context) (audio.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCount++
	if err := ctx.Err(); err != nil {
		return audio.Frame{}, err
	}
	if s.pos >= len(s.frames) {
		if s.Err != nil {
			return audio.Frame{}, s.Err
		}
		return audio.Frame{}, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

// ─── Sink ─────────────────────────────────────────────────────────────────────

// Sink is a mock [audio.Sink] that records every played clip.
type Sink struct {
	mu    sync.Mutex
	clips []audio.Clip

	// PlayErr is returned by Play. The clip is recorded either way.
	PlayErr error

	// OnPlay, if set, is invoked with every clip before Play returns.
	OnPlay func(audio.Clip)
}

var _ audio.Sink = (*Sink)(nil)

// Play implements [audio.Sink].
func (s *Sink) Play(ctx context.Context, c audio.Clip) error {
	s.mu.Lock()
	s.clips = append(s.clips, c)
	hook, playErr := s.OnPlay, s.PlayErr
	s.mu.Unlock()

	if hook != nil {
		hook(c)
	}
	if playErr != nil {
		return playErr
	}
	return ctx.Err()
}

// Clips returns a copy of all clips played so far.
func (s *Sink) Clips() []audio.Clip {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.Clip, len(s.clips))
	copy(out, s.clips)
	return out
}

// Reset clears recorded clips.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clips = nil
}
