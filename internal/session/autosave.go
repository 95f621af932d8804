package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultAutosaveInterval is the period between autosave ticks.
const DefaultAutosaveInterval = 60 * time.Second

// Autosaver periodically writes a checkpoint of a session so a crash loses at
// most one interval of turns. Ticks where the session has not changed since
// the last save are skipped.
//
// All methods are safe for concurrent use.
type Autosaver struct {
	session  *Session
	store    *CheckpointStore
	interval time.Duration

	mu sync.Mutex
	// saved is the snapshot version of the last successful save.
	saved    uint64
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewAutosaver returns an autosaver for s. A non-positive interval uses
// [DefaultAutosaveInterval].
func NewAutosaver(s *Session, store *CheckpointStore, interval time.Duration) *Autosaver {
	if interval <= 0 {
		interval = DefaultAutosaveInterval
	}
	return &Autosaver{
		session:  s,
		store:    store,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins periodic saving in a background goroutine. It runs until
// [Autosaver.Stop] is called or ctx is cancelled.
func (a *Autosaver) Start(ctx context.Context) {
	a.wg.Add(1)
	go a.loop(ctx)
}

// Stop halts the loop, waits for it to exit and writes a final checkpoint.
// Safe to call multiple times.
func (a *Autosaver) Stop() error {
	var err error
	a.stopOnce.Do(func() {
		close(a.done)
		a.wg.Wait()
		err = a.SaveNow()
	})
	return err
}

// SaveNow writes a checkpoint immediately if the session changed since the
// last save.
func (a *Autosaver) SaveNow() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.save()
}

func (a *Autosaver) loop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			return
		case <-ticker.C:
			a.mu.Lock()
			if err := a.save(); err != nil {
				slog.Warn("periodic checkpoint failed",
					"session_id", a.session.ID(),
					"err", err,
				)
			}
			a.mu.Unlock()
		}
	}
}

// save must be called with a.mu held.
func (a *Autosaver) save() error {
	v := a.session.Snapshot().Version
	if v == a.saved {
		return nil
	}
	if err := a.store.Save(a.session.Checkpoint()); err != nil {
		return err
	}
	a.saved = v
	return nil
}
