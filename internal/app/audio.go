package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/vzynszice/voice-interview-system/internal/config"
	"github.com/vzynszice/voice-interview-system/pkg/audio"
)

// newSink builds the playback sink: a player command when one is configured,
// otherwise a WAV directory, otherwise nothing is played.
func newSink(cfg config.AudioConfig, sessionID string) (audio.Sink, error) {
	switch {
	case len(cfg.OutputCommand) > 0:
		slog.Info("audio output", "command", cfg.OutputCommand[0])
		return audio.NewCommandSink(cfg.OutputCommand[0], cfg.OutputCommand[1:]...), nil
	case cfg.OutputDir != "":
		slog.Info("audio output", "dir", cfg.OutputDir)
		return audio.NewDirSink(cfg.OutputDir, sessionID)
	default:
		slog.Warn("no audio output configured; interviewer replies are discarded")
		return audio.Discard, nil
	}
}

// newSource opens the candidate's audio. A capture command is preferred over
// a WAV input. The returned closer stops the capture process.
func newSource(ctx context.Context, cfg config.AudioConfig) (audio.FrameSource, func() error, error) {
	format := audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}

	if len(cfg.InputCommand) > 0 {
		cmd := exec.CommandContext(ctx, cfg.InputCommand[0], cfg.InputCommand[1:]...)
		cmd.Stderr = os.Stderr
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, nil, fmt.Errorf("capture command: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, nil, fmt.Errorf("start capture command %q: %w", cfg.InputCommand[0], err)
		}
		src, err := audio.NewReaderSource(stdout, format, cfg.FrameDuration())
		if err != nil {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			return nil, nil, err
		}
		slog.Info("audio input", "command", cfg.InputCommand[0], "format", format)
		return src, func() error {
			_ = cmd.Process.Kill()
			if err := cmd.Wait(); err != nil && !isKilled(err) {
				return err
			}
			return nil
		}, nil
	}

	var r io.Reader
	var closer func() error
	switch cfg.Input {
	case "":
		return nil, nil, errors.New("no audio input configured; set audio.input or audio.input_command")
	case "-":
		r = os.Stdin
	default:
		f, err := os.Open(cfg.Input)
		if err != nil {
			return nil, nil, fmt.Errorf("open audio input: %w", err)
		}
		r, closer = f, f.Close
	}
	src, err := audio.NewWAVSource(r, format, cfg.FrameDuration())
	if err != nil {
		if closer != nil {
			_ = closer()
		}
		return nil, nil, err
	}
	slog.Info("audio input", "file", cfg.Input, "format", format)
	return src, closer, nil
}

func isKilled(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && !exitErr.Exited()
}
