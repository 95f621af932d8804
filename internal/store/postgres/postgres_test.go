package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vzynszice/voice-interview-system/internal/session"
	"github.com/vzynszice/voice-interview-system/pkg/audio"
)

// ---------------------------------------------------------------------------
// Test helpers: mock DB types
// ---------------------------------------------------------------------------

type mockRows struct {
	data   [][]any
	idx    int
	err    error
	closed bool
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *int:
			*d = v.(int)
		case *string:
			*d = v.(string)
		case *[]byte:
			*d = v.([]byte)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
	}
	return nil
}

type execCall struct {
	sql  string
	args []any
}

type mockDB struct {
	execs   []execCall
	execErr error
	rows    *mockRows
	pingErr error
}

func (m *mockDB) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return m.rows, nil
}

func (m *mockDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execs = append(m.execs, execCall{sql: sql, args: args})
	return pgconn.CommandTag{}, m.execErr
}

func (m *mockDB) Ping(context.Context) error { return m.pingErr }

func testSession(t *testing.T) (*session.Session, session.Turn) {
	t.Helper()
	s := session.New(session.Languages{Primary: "tr", Target: "en"},
		session.WithID("sess-1"),
		session.WithMetadata(map[string]string{"candidate": "Ayşe"}),
	)
	h, err := s.StartTurn(audio.Utterance{FirstSeq: 1, LastSeq: 9, SpeechFrames: 7})
	if err != nil {
		t.Fatal(err)
	}
	turn := session.Turn{
		Status:     session.TurnSucceeded,
		Phase:      "warmup",
		Transcript: "merhaba",
		Translated: "hello",
		Stages:     []session.StageOutcome{{Stage: session.StageTranscribe, Status: session.StageSucceeded, Provider: "whisper"}},
	}
	if err := s.CompleteTurn(h, turn); err != nil {
		t.Fatal(err)
	}
	return s, s.Turns()[0]
}

// ---------------------------------------------------------------------------
// Unit tests
// ---------------------------------------------------------------------------

func TestRecordTurn(t *testing.T) {
	db := &mockDB{}
	store := New(db)
	s, turn := testSession(t)

	if err := store.RecordTurn(context.Background(), s, turn); err != nil {
		t.Fatalf("RecordTurn: %v", err)
	}
	if len(db.execs) != 2 {
		t.Fatalf("exec count = %d, want 2", len(db.execs))
	}
	if !strings.Contains(db.execs[0].sql, "INSERT INTO interview_sessions") {
		t.Errorf("first exec = %s", db.execs[0].sql)
	}
	sargs := db.execs[0].args
	if sargs[0] != "sess-1" || sargs[3] != "active" || sargs[6] != (*time.Time)(nil) {
		t.Errorf("session args = %v", sargs)
	}

	targs := db.execs[1].args
	if targs[0] != "sess-1" || targs[1] != 1 || targs[2] != "warmup" || targs[3] != "succeeded" {
		t.Errorf("turn args = %v", targs[:4])
	}
	if stages := string(targs[10].([]byte)); !strings.Contains(stages, `"status":"succeeded"`) || !strings.Contains(stages, `"provider":"whisper"`) {
		t.Errorf("stages JSON = %s", stages)
	}
	if utt := string(targs[11].([]byte)); !strings.Contains(utt, `"last_seq":9`) {
		t.Errorf("utterance JSON = %s", utt)
	}
}

func TestRecordTurn_ExecError(t *testing.T) {
	db := &mockDB{execErr: errors.New("connection reset")}
	s, turn := testSession(t)
	err := New(db).RecordTurn(context.Background(), s, turn)
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("err = %v", err)
	}
}

func TestSaveSession_Ended(t *testing.T) {
	db := &mockDB{}
	s, _ := testSession(t)
	s.End()
	if err := New(db).SaveSession(context.Background(), s); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	args := db.execs[0].args
	if args[3] != "ended" {
		t.Errorf("status = %v, want ended", args[3])
	}
	if ts, ok := args[6].(*time.Time); !ok || ts == nil || ts.IsZero() {
		t.Errorf("ended_at = %v", args[6])
	}
}

func TestTurns(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := &mockRows{data: [][]any{
		{1, "warmup", "succeeded", "", "", "merhaba", "hello", "Q?", "S?",
			[]byte(`[{"stage":"transcribe","status":"failed_fallback","provider":"b","attempts":2}]`),
			[]byte(`{"first_seq":1,"last_seq":9}`), now, now.Add(time.Second)},
		{2, "technical", "failed_fatal", "transcribing", "boom", "", "", "", "",
			[]byte(`[]`), []byte(`{}`), now, now},
	}}
	store := New(&mockDB{rows: rows})

	turns, err := store.Turns(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Turns: %v", err)
	}
	if !rows.closed {
		t.Error("rows not closed")
	}
	if len(turns) != 2 {
		t.Fatalf("len = %d, want 2", len(turns))
	}
	if turns[0].Stages[0].Status != session.StageFailedFallback || turns[0].Utterance.LastSeq != 9 {
		t.Errorf("turn 1 = %+v", turns[0])
	}
	if turns[1].Status != session.TurnFailedFatal || turns[1].FailedAt != "transcribing" {
		t.Errorf("turn 2 = %+v", turns[1])
	}
}

func TestTurns_BadStatus(t *testing.T) {
	rows := &mockRows{data: [][]any{
		{1, "", "weird", "", "", "", "", "", "", []byte(`[]`), []byte(`{}`), time.Time{}, time.Time{}},
	}}
	if _, err := New(&mockDB{rows: rows}).Turns(context.Background(), "x"); err == nil {
		t.Fatal("Turns accepted an unknown status")
	}
}

func TestMigrateAndPing(t *testing.T) {
	db := &mockDB{pingErr: errors.New("down")}
	store := New(db)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if db.execs[0].sql != Schema {
		t.Error("Migrate did not execute Schema")
	}
	if err := store.Ping(context.Background()); err == nil {
		t.Error("Ping error not propagated")
	}
	store.Close()
}

// ---------------------------------------------------------------------------
// Integration tests
// ---------------------------------------------------------------------------

func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("INTERVIEW_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("INTERVIEW_TEST_POSTGRES_DSN not set; skipping PostgreSQL integration tests")
	}
	return dsn
}

func TestIntegration_RoundTrip(t *testing.T) {
	dsn := testDSN(t)
	ctx := context.Background()

	store, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(store.Close)
	if _, err := store.pool.Exec(ctx, "DELETE FROM interview_sessions WHERE id = 'sess-1'"); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	s, turn := testSession(t)
	if err := store.RecordTurn(ctx, s, turn); err != nil {
		t.Fatalf("RecordTurn: %v", err)
	}
	// Recording again replaces the row.
	turn.Response = "Tell me more?"
	if err := store.RecordTurn(ctx, s, turn); err != nil {
		t.Fatalf("RecordTurn again: %v", err)
	}

	got, err := store.Turns(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Turns: %v", err)
	}
	if len(got) != 1 || got[0].Response != "Tell me more?" || got[0].Translated != "hello" {
		t.Fatalf("turns = %+v", got)
	}
}
