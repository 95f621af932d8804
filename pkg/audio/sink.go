package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// Sink plays back synthesized speech. Play blocks until the clip has been
// fully delivered or ctx is cancelled.
type Sink interface {
	Play(ctx context.Context, c Clip) error
}

// ─── WAV directory sink ──────────────────────────────────────────────────────

// DirSink writes every clip to a numbered WAV file in a directory. It is the
// default headless sink and is handy for reviewing an interview afterwards.
type DirSink struct {
	dir    string
	prefix string

	mu sync.Mutex
	n  int
}

var _ Sink = (*DirSink)(nil)

// NewDirSink creates dir if needed and returns a sink that writes files named
// "<prefix>-0001.wav", "<prefix>-0002.wav", and so on.
func NewDirSink(dir, prefix string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audio: create sink dir: %w", err)
	}
	if prefix == "" {
		prefix = "reply"
	}
	return &DirSink{dir: dir, prefix: prefix}, nil
}

// Play implements [Sink].
func (s *DirSink) Play(ctx context.Context, c Clip) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.n++
	name := filepath.Join(s.dir, fmt.Sprintf("%s-%04d.wav", s.prefix, s.n))
	s.mu.Unlock()

	if err := os.WriteFile(name, EncodeWAV(c), 0o644); err != nil {
		return fmt.Errorf("audio: write %s: %w", name, err)
	}
	slog.Debug("audio: clip written", "path", name, "duration", c.Duration())
	return nil
}

// ─── Command sink ─────────────────────────────────────────────────────────────

// CommandSink pipes each clip as a WAV stream to the stdin of an external
// player such as "aplay -q" or "ffplay -nodisp -autoexit -". Cancelling ctx
// kills the player.
type CommandSink struct {
	name string
	args []string
}

var _ Sink = (*CommandSink)(nil)

// NewCommandSink returns a sink that runs name with args once per clip.
func NewCommandSink(name string, args ...string) *CommandSink {
	return &CommandSink{name: name, args: args}
}

// Play implements [Sink].
func (s *CommandSink) Play(ctx context.Context, c Clip) error {
	cmd := exec.CommandContext(ctx, s.name, s.args...)
	cmd.Stdin = bytes.NewReader(EncodeWAV(c))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("audio: player %s: %w: %s", s.name, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}

// ─── Discard sink ─────────────────────────────────────────────────────────────

// Discard is a [Sink] that drops all audio.
var Discard Sink = discard{}

type discard struct{}

func (discard) Play(ctx context.Context, _ Clip) error { return ctx.Err() }
