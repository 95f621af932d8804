// Package postgres persists interview turns to PostgreSQL so transcripts
// survive the process and can be queried across sessions.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vzynszice/voice-interview-system/internal/session"
)

// Schema is the SQL DDL for the turn log. Execute it via [Store.Migrate] or
// apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS interview_sessions (
    id               TEXT PRIMARY KEY,
    primary_language TEXT NOT NULL,
    target_language  TEXT NOT NULL,
    status           TEXT NOT NULL DEFAULT 'active',
    metadata         JSONB NOT NULL DEFAULT '{}',
    created_at       TIMESTAMPTZ NOT NULL,
    ended_at         TIMESTAMPTZ,
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS interview_turns (
    session_id   TEXT NOT NULL REFERENCES interview_sessions(id) ON DELETE CASCADE,
    idx          INTEGER NOT NULL,
    phase        TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL,
    failed_at    TEXT NOT NULL DEFAULT '',
    error        TEXT NOT NULL DEFAULT '',
    transcript   TEXT NOT NULL DEFAULT '',
    translated   TEXT NOT NULL DEFAULT '',
    response     TEXT NOT NULL DEFAULT '',
    narrated     TEXT NOT NULL DEFAULT '',
    stages       JSONB NOT NULL DEFAULT '[]',
    utterance    JSONB NOT NULL DEFAULT '{}',
    started_at   TIMESTAMPTZ NOT NULL,
    completed_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (session_id, idx)
);
CREATE INDEX IF NOT EXISTS idx_interview_turns_status ON interview_turns(status);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// Store is a PostgreSQL turn log. It satisfies the turn orchestrator's
// recorder interface. All methods are safe for concurrent use.
type Store struct {
	db   DB
	pool *pgxpool.Pool
}

// New returns a store on an existing connection or pool. The caller is
// responsible for calling [Store.Migrate].
func New(db DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn, verifies the connection and applies [Schema].
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	s := &Store{db: pool, pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool opened by [Open]. It is a no-op for stores built
// with [New].
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate executes [Schema].
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable. It is used as a readiness
// check.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// SaveSession upserts the session row.
func (s *Store) SaveSession(ctx context.Context, sess *session.Session) error {
	meta, err := json.Marshal(sess.Metadata())
	if err != nil {
		return fmt.Errorf("postgres: marshal metadata: %w", err)
	}
	snap := sess.Snapshot()
	var endedAt *time.Time
	if !snap.EndedAt.IsZero() {
		endedAt = &snap.EndedAt
	}

	const q = `
		INSERT INTO interview_sessions
		    (id, primary_language, target_language, status, metadata, created_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
		    status = EXCLUDED.status,
		    metadata = EXCLUDED.metadata,
		    ended_at = EXCLUDED.ended_at,
		    updated_at = now()`

	langs := sess.Languages()
	_, err = s.db.Exec(ctx, q,
		sess.ID(), langs.Primary, langs.Target, snap.Status.String(), meta, sess.CreatedAt(), endedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save session %s: %w", sess.ID(), err)
	}
	return nil
}

// RecordTurn upserts the session row and stores t. Re-recording a turn
// replaces the stored row.
func (s *Store) RecordTurn(ctx context.Context, sess *session.Session, t session.Turn) error {
	if err := s.SaveSession(ctx, sess); err != nil {
		return err
	}
	stages, err := json.Marshal(t.Stages)
	if err != nil {
		return fmt.Errorf("postgres: marshal stages: %w", err)
	}
	utt, err := json.Marshal(t.Utterance)
	if err != nil {
		return fmt.Errorf("postgres: marshal utterance: %w", err)
	}

	const q = `
		INSERT INTO interview_turns
		    (session_id, idx, phase, status, failed_at, error,
		     transcript, translated, response, narrated, stages, utterance,
		     started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (session_id, idx) DO UPDATE SET
		    phase = EXCLUDED.phase,
		    status = EXCLUDED.status,
		    failed_at = EXCLUDED.failed_at,
		    error = EXCLUDED.error,
		    transcript = EXCLUDED.transcript,
		    translated = EXCLUDED.translated,
		    response = EXCLUDED.response,
		    narrated = EXCLUDED.narrated,
		    stages = EXCLUDED.stages,
		    utterance = EXCLUDED.utterance,
		    completed_at = EXCLUDED.completed_at`

	_, err = s.db.Exec(ctx, q,
		sess.ID(), t.Index, t.Phase, t.Status.String(), t.FailedAt, t.Error,
		t.Transcript, t.Translated, t.Response, t.Narrated, stages, utt,
		t.StartedAt, t.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record turn %d: %w", t.Index, err)
	}
	return nil
}

// Turns returns the stored turns of sessionID ordered by index.
func (s *Store) Turns(ctx context.Context, sessionID string) ([]session.Turn, error) {
	const q = `
		SELECT idx, phase, status, failed_at, error,
		       transcript, translated, response, narrated, stages, utterance,
		       started_at, completed_at
		FROM   interview_turns
		WHERE  session_id = $1
		ORDER  BY idx`

	rows, err := s.db.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: turns: %w", err)
	}
	defer rows.Close()

	var out []session.Turn
	for rows.Next() {
		var (
			t                 session.Turn
			status            string
			stages, utterance []byte
		)
		if err := rows.Scan(
			&t.Index, &t.Phase, &status, &t.FailedAt, &t.Error,
			&t.Transcript, &t.Translated, &t.Response, &t.Narrated, &stages, &utterance,
			&t.StartedAt, &t.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan turn: %w", err)
		}
		if err := t.Status.UnmarshalText([]byte(status)); err != nil {
			return nil, fmt.Errorf("postgres: turn %d: %w", t.Index, err)
		}
		if err := json.Unmarshal(stages, &t.Stages); err != nil {
			return nil, fmt.Errorf("postgres: turn %d stages: %w", t.Index, err)
		}
		if err := json.Unmarshal(utterance, &t.Utterance); err != nil {
			return nil, fmt.Errorf("postgres: turn %d utterance: %w", t.Index, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: turns: %w", err)
	}
	return out, nil
}
