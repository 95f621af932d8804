package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// FrameSource yields fixed-duration audio frames from a capture device or
// file. Next returns [io.EOF] once the stream is exhausted. Implementations
// need not be safe for concurrent use; the pipeline reads from a single
// capture goroutine.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
}

// ReaderSource cuts a raw PCM byte stream into fixed-size frames. A trailing
// partial frame is padded with silence so every frame has the same duration.
type ReaderSource struct {
	r        io.Reader
	format   Format
	frameDur time.Duration
	frameLen int
	seq      uint64
	done     bool
}

// Compile-time interface assertion.
var _ FrameSource = (*ReaderSource)(nil)

// NewReaderSource returns a source that reads raw PCM in format f from r and
// emits frames of frameDur each.
func NewReaderSource(r io.Reader, f Format, frameDur time.Duration) (*ReaderSource, error) {
	n := f.FrameBytes(frameDur)
	if n <= 0 {
		return nil, fmt.Errorf("audio: frame duration %s is too short for %s", frameDur, formatString(f.SampleRate, f.Channels))
	}
	return &ReaderSource{r: r, format: f, frameDur: frameDur, frameLen: n}, nil
}

// NewWAVSource decodes a complete WAV stream, converts it to target, and
// returns a [ReaderSource] over the converted PCM.
func NewWAVSource(r io.Reader, target Format, frameDur time.Duration) (*ReaderSource, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("audio: read wav: %w", err)
	}
	clip, err := DecodeWAV(raw)
	if err != nil {
		return nil, err
	}
	clip = Convert(clip, target)
	return NewReaderSource(bytes.NewReader(clip.Data), target, frameDur)
}

// Format returns the PCM format of emitted frames.
func (s *ReaderSource) Format() Format { return s.format }

// Next reads the next frame. It honours ctx between reads only; a blocked
// underlying reader is not interrupted.
func (s *ReaderSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.done {
		return Frame{}, io.EOF
	}
	buf := make([]byte, s.frameLen)
	_, err := io.ReadFull(s.r, buf)
	switch {
	case errors.Is(err, io.EOF):
		s.done = true
		return Frame{}, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		// Remaining bytes of buf are already zero.
		s.done = true
	case err != nil:
		return Frame{}, fmt.Errorf("audio: read frame %d: %w", s.seq, err)
	}

	f := Frame{
		Seq:        s.seq,
		Data:       buf,
		SampleRate: s.format.SampleRate,
		Channels:   s.format.Channels,
		Timestamp:  time.Duration(s.seq) * s.frameDur,
	}
	s.seq++
	return f, nil
}
