package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// DefaultRetention is how long finished checkpoints are kept by Cleanup.
const DefaultRetention = 7 * 24 * time.Hour

// Checkpoint is the persisted form of a session.
type Checkpoint struct {
	ID        string            `json:"id"`
	Languages Languages         `json:"languages"`
	Status    Status            `json:"status"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	EndedAt   time.Time         `json:"ended_at,omitzero"`
	NextIndex int               `json:"next_index"`
	Turns     []Turn            `json:"turns"`
}

// Checkpoint captures the current state. Turns still in flight are not
// included; their indices are skipped on restore.
func (s *Session) Checkpoint() Checkpoint {
	s.mu.Lock()
	next := s.next
	s.mu.Unlock()

	snap := s.snap.Load()
	return Checkpoint{
		ID:        s.id,
		Languages: s.langs,
		Status:    snap.Status,
		Metadata:  s.Metadata(),
		CreatedAt: s.createdAt,
		UpdatedAt: snap.UpdatedAt,
		EndedAt:   snap.EndedAt,
		NextIndex: next,
		Turns:     slices.Clone(snap.Turns),
	}
}

// Restore rebuilds a session from cp. The restored session continues
// numbering after the highest index the checkpoint has seen.
func Restore(cp Checkpoint, opts ...Option) (*Session, error) {
	if cp.ID == "" {
		return nil, errors.New("session: restore: checkpoint has no id")
	}
	s := New(cp.Languages, append([]Option{WithID(cp.ID), WithMetadata(cp.Metadata)}, opts...)...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !cp.CreatedAt.IsZero() {
		s.createdAt = cp.CreatedAt
	}
	for _, t := range cp.Turns {
		if t.Index < 1 {
			return nil, fmt.Errorf("session: restore: turn with index %d", t.Index)
		}
		s.insertLocked(t.clone())
	}
	s.next = max(cp.NextIndex, 1)
	if n := len(s.turns); n > 0 && s.turns[n-1].Index >= s.next {
		s.next = s.turns[n-1].Index + 1
	}
	s.status = cp.Status
	s.endedAt = cp.EndedAt
	if s.status != Active {
		close(s.stopped)
	}
	s.publishLocked()
	return s, nil
}

// RecoveryInfo describes a checkpoint of a session that did not finish.
type RecoveryInfo struct {
	ID        string
	Turns     int
	UpdatedAt time.Time
	Metadata  map[string]string
}

// CheckpointStore keeps one JSON file per session in a directory.
type CheckpointStore struct {
	dir string
	now func() time.Time
}

// NewCheckpointStore creates dir if needed and returns a store rooted there.
func NewCheckpointStore(dir string) (*CheckpointStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("session: checkpoint dir: %w", err)
	}
	return &CheckpointStore{dir: dir, now: time.Now}, nil
}

// Dir returns the directory checkpoints are written to.
func (c *CheckpointStore) Dir() string { return c.dir }

func (c *CheckpointStore) path(id string) string {
	return filepath.Join(c.dir, id+".json")
}

// Save writes cp atomically: the JSON goes to <id>.tmp, which is then renamed
// over <id>.json.
func (c *CheckpointStore) Save(cp Checkpoint) error {
	if cp.ID == "" || strings.ContainsAny(cp.ID, `/\`) {
		return fmt.Errorf("session: save checkpoint: invalid id %q", cp.ID)
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("session: save checkpoint %s: %w", cp.ID, err)
	}
	tmp := filepath.Join(c.dir, cp.ID+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("session: save checkpoint %s: %w", cp.ID, err)
	}
	if err := os.Rename(tmp, c.path(cp.ID)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("session: save checkpoint %s: %w", cp.ID, err)
	}
	return nil
}

// Load reads the checkpoint of session id.
func (c *CheckpointStore) Load(id string) (Checkpoint, error) {
	return readCheckpoint(c.path(id))
}

// RecordTurn saves a checkpoint of s after every completed turn.
func (c *CheckpointStore) RecordTurn(_ context.Context, s *Session, _ Turn) error {
	return c.Save(s.Checkpoint())
}

// Recoverable lists sessions whose last checkpoint is still active, newest
// first. Unreadable files are logged and skipped.
func (c *CheckpointStore) Recoverable() ([]RecoveryInfo, error) {
	var out []RecoveryInfo
	err := c.each(func(path string, cp Checkpoint, _ fs.FileInfo) {
		if cp.Status != Active {
			return
		}
		out = append(out, RecoveryInfo{
			ID:        cp.ID,
			Turns:     len(cp.Turns),
			UpdatedAt: cp.UpdatedAt,
			Metadata:  cp.Metadata,
		})
	})
	slices.SortFunc(out, func(a, b RecoveryInfo) int { return b.UpdatedAt.Compare(a.UpdatedAt) })
	return out, err
}

// Cleanup removes checkpoints of finished sessions whose file is older than
// retention. Active checkpoints are never removed. It returns the number of
// files deleted.
func (c *CheckpointStore) Cleanup(retention time.Duration) (int, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := c.now().Add(-retention)
	removed := 0
	var errs []error
	err := c.each(func(path string, cp Checkpoint, fi fs.FileInfo) {
		if cp.Status == Active || !fi.ModTime().Before(cutoff) {
			return
		}
		if err := os.Remove(path); err != nil {
			errs = append(errs, err)
			return
		}
		removed++
	})
	if removed > 0 {
		slog.Info("removed old checkpoints", "count", removed, "dir", c.dir)
	}
	return removed, errors.Join(append(errs, err)...)
}

func (c *CheckpointStore) each(fn func(path string, cp Checkpoint, fi fs.FileInfo)) error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("session: list checkpoints: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		path := filepath.Join(c.dir, e.Name())
		fi, err := e.Info()
		if err != nil {
			continue
		}
		cp, err := readCheckpoint(path)
		if err != nil {
			slog.Warn("skipping unreadable checkpoint", "path", path, "err", err)
			continue
		}
		fn(path, cp, fi)
	}
	return nil
}

func readCheckpoint(path string) (Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("session: load checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("session: load checkpoint %s: %w", filepath.Base(path), err)
	}
	return cp, nil
}
