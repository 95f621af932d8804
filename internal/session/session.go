// Package session holds the state of one interview: an append-only log of
// turns, the language pair and the lifecycle status.
//
// Writers (the turn orchestrator) serialise through a mutex. Readers such as
// the autosaver, the HTTP status endpoint and the transcript exporter load an
// immutable snapshot and never block a running turn.
package session

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vzynszice/voice-interview-system/pkg/audio"
)

// Status is the lifecycle state of a session.
type Status int

const (
	// Active sessions accept new turns.
	Active Status = iota
	// Ended sessions finished normally.
	Ended
	// Aborted sessions were stopped early, by shutdown or by an operator.
	Aborted
)

var statusNames = []string{"active", "ended", "aborted"}

// String implements [fmt.Stringer].
func (s Status) String() string {
	if int(s) >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// MarshalText implements [encoding.TextMarshaler].
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements [encoding.TextUnmarshaler].
func (s *Status) UnmarshalText(b []byte) error {
	for i, n := range statusNames {
		if n == string(b) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("session: unknown status %q", b)
}

// Languages is the language pair of an interview. Primary is what the
// candidate speaks and hears; Target is what the generator works in.
type Languages struct {
	Primary string `json:"primary"`
	Target  string `json:"target"`
}

// NeedsTranslation reports whether the two languages differ.
func (l Languages) NeedsTranslation() bool { return l.Primary != l.Target }

// Handle identifies a started turn until it is completed.
type Handle struct {
	Index     int
	StartedAt time.Time
}

type pendingTurn struct {
	startedAt time.Time
	utterance UtteranceInfo
}

// Snapshot is an immutable view of a session. The Turns slice must not be
// modified.
type Snapshot struct {
	Version   uint64
	Status    Status
	Turns     []Turn
	Pending   int
	UpdatedAt time.Time
	EndedAt   time.Time
}

// Option configures a [Session].
type Option func(*Session)

// WithID sets the session ID instead of a random UUID.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithMetadata attaches free-form labels (job title, candidate name) that are
// carried into checkpoints and transcript exports.
func WithMetadata(meta map[string]string) Option {
	return func(s *Session) {
		for k, v := range meta {
			s.meta[k] = v
		}
	}
}

// Session is one interview. All methods are safe for concurrent use.
type Session struct {
	id        string
	langs     Languages
	meta      map[string]string
	now       func() time.Time
	createdAt time.Time

	mu      sync.Mutex
	status  Status
	next    int
	turns   []Turn
	pending map[int]pendingTurn
	version uint64
	endedAt time.Time
	stopped chan struct{}

	snap atomic.Pointer[Snapshot]
}

// New creates an active session with no turns.
func New(langs Languages, opts ...Option) *Session {
	s := &Session{
		langs:   langs,
		meta:    make(map[string]string),
		now:     time.Now,
		next:    1,
		pending: make(map[int]pendingTurn),
		stopped: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	s.createdAt = s.now()
	s.publishLocked()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Languages returns the language pair.
func (s *Session) Languages() Languages { return s.langs }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Metadata returns a copy of the session labels.
func (s *Session) Metadata() map[string]string {
	out := make(map[string]string, len(s.meta))
	for k, v := range s.meta {
		out[k] = v
	}
	return out
}

// Snapshot returns the current immutable view.
func (s *Session) Snapshot() *Snapshot { return s.snap.Load() }

// Status returns the lifecycle status.
func (s *Session) Status() Status { return s.snap.Load().Status }

// Turns returns the completed turns ordered by index.
func (s *Session) Turns() []Turn {
	src := s.snap.Load().Turns
	out := make([]Turn, len(src))
	for i, t := range src {
		out[i] = t.clone()
	}
	return out
}

// StartTurn reserves the next turn index for utt.
func (s *Session) StartTurn(utt audio.Utterance) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != Active {
		return Handle{}, &StateViolationError{Op: "start_turn", Status: s.status, Reason: "session is not active"}
	}
	h := Handle{Index: s.next, StartedAt: s.now()}
	s.next++
	s.pending[h.Index] = pendingTurn{startedAt: h.StartedAt, utterance: InfoFrom(utt)}
	s.publishLocked()
	return h, nil
}

// CompleteTurn stores t under the index of h. The turn's index, utterance
// metadata and start time are taken from the handle; CompletedAt defaults to
// now. t.Status must be terminal.
func (s *Session) CompleteTurn(h Handle, t Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	violation := func(reason string) error {
		return &StateViolationError{Op: "complete_turn", Status: s.status, Turn: h.Index, Reason: reason}
	}
	if s.status != Active {
		return violation("session is not active")
	}
	p, ok := s.pending[h.Index]
	if !ok {
		return violation("unknown or already completed handle")
	}
	if !t.Status.Terminal() {
		return violation(fmt.Sprintf("status %s is not terminal", t.Status))
	}
	delete(s.pending, h.Index)

	t = t.clone()
	t.Index = h.Index
	t.Utterance = p.utterance
	t.StartedAt = p.startedAt
	if t.CompletedAt.IsZero() {
		t.CompletedAt = s.now()
	}
	s.insertLocked(t)
	s.publishLocked()
	return nil
}

// End marks the session as finished. Turns still in flight are recorded as
// aborted and [Session.Stopped] is closed. Calling End again, or after Abort, has no effect.
func (s *Session) End() { s.finish(Ended) }

// Abort stops the session early. Turns still in flight are recorded as
// aborted. It has no effect on a session that is no longer active.
func (s *Session) Abort() { s.finish(Aborted) }

func (s *Session) finish(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != Active {
		return
	}
	now := s.now()
	for idx, p := range s.pending {
		s.insertLocked(Turn{
			Index:       idx,
			Utterance:   p.utterance,
			StartedAt:   p.startedAt,
			CompletedAt: now,
			Status:      TurnAborted,
			Error:       "session " + st.String() + " during turn",
		})
	}
	clear(s.pending)
	s.status = st
	s.endedAt = now
	close(s.stopped)
	s.publishLocked()
}

// Stopped returns a channel that is closed once the session is ended or
// aborted. Turns in flight use it to cancel their provider calls.
func (s *Session) Stopped() <-chan struct{} { return s.stopped }

// Done reports how many turns finished with the given status.
func (s *Session) Done(st TurnStatus) int {
	n := 0
	for _, t := range s.snap.Load().Turns {
		if t.Status == st {
			n++
		}
	}
	return n
}

// insertLocked keeps s.turns sorted by index. Turns usually complete in
// order, so this is an append in the common case.
func (s *Session) insertLocked(t Turn) {
	i, _ := slices.BinarySearchFunc(s.turns, t.Index, func(e Turn, idx int) int { return e.Index - idx })
	s.turns = slices.Insert(s.turns, i, t)
}

func (s *Session) publishLocked() {
	s.version++
	s.snap.Store(&Snapshot{
		Version:   s.version,
		Status:    s.status,
		Turns:     slices.Clone(s.turns),
		Pending:   len(s.pending),
		UpdatedAt: s.now(),
		EndedAt:   s.endedAt,
	})
}
