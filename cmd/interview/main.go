// Command interview conducts a spoken job interview: it listens to the
// candidate, asks the planned questions through the configured provider
// rankings and writes a transcript when the interview ends.
//
// Usage:
//
//	interview [-config config.yaml] [run]
//	interview [-config config.yaml] recover [session-id]
//	interview [-config config.yaml] providers
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vzynszice/voice-interview-system/internal/app"
	"github.com/vzynszice/voice-interview-system/internal/config"
	"github.com/vzynszice/voice-interview-system/internal/observe"
	"github.com/vzynszice/voice-interview-system/internal/session"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	fs := flag.NewFlagSet("interview", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cmd, rest := "run", fs.Args()
	if len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	if cmd == "providers" {
		printProviders(stdout, reg)
		return 0
	}
	if cmd != "run" && cmd != "recover" {
		fmt.Fprintf(stderr, "interview: unknown command %q (want run, recover or providers)\n", cmd)
		return 2
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so a config reload can change it.
	level := new(slog.LevelVar)

	// ── Load configuration ────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(_, newCfg *config.Config, d config.ConfigDiff) {
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if len(d.RestartRequired) > 0 {
			slog.Warn("config sections changed; restart to apply", "sections", d.RestartRequired)
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(stderr, "interview: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(stderr, "interview: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()
	cfg := watcher.Current()

	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(stderr, cfg.Server.LogFormat, level))

	slog.Info("interview starting",
		"config", *configPath,
		"command", cmd,
		"languages", cfg.Session.PrimaryLanguage+"→"+cfg.Session.TargetLanguage,
		"listen_addr", cfg.Server.ListenAddr,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "voice-interview"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(tctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	providers, err := app.BuildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	var opts []app.Option
	if cmd == "recover" {
		sess, err := recoverSession(cfg.Storage.StateDir, rest)
		if err != nil {
			slog.Error("recover failed", "err", err)
			return 1
		}
		opts = append(opts, app.WithSession(sess))
	}

	application, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("interview ready; press Ctrl+C to stop")

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if p := application.TranscriptPath(); p != "" {
		fmt.Fprintf(stdout, "transcript: %s\n", p)
	}
	return code
}

// recoverSession restores the session named in args, or the most recently
// updated active checkpoint when args is empty.
func recoverSession(dir string, args []string) (*session.Session, error) {
	store, err := session.NewCheckpointStore(dir)
	if err != nil {
		return nil, err
	}
	var id string
	if len(args) > 0 {
		id = args[0]
	} else {
		infos, err := store.Recoverable()
		if err != nil {
			return nil, err
		}
		if len(infos) == 0 {
			return nil, fmt.Errorf("no interrupted interview in %s", dir)
		}
		id = infos[0].ID
		slog.Info("recovering interview", "session_id", id, "turns", infos[0].Turns, "updated_at", infos[0].UpdatedAt)
	}
	cp, err := store.Load(id)
	if err != nil {
		return nil, err
	}
	if cp.Status != session.Active {
		return nil, fmt.Errorf("session %s is %s and cannot be resumed", id, cp.Status)
	}
	return session.Restore(cp)
}

func printProviders(w io.Writer, reg *config.Registry) {
	for _, kind := range []string{"stt", "translate", "llm", "tts", "vad"} {
		fmt.Fprintf(w, "%-10s %s\n", kind, strings.Join(reg.Names(kind), ", "))
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(w io.Writer, format config.LogFormat, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
