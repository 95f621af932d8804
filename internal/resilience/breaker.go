package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker
// rejects a call without running it.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// has elapsed.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successful probes close the breaker; any failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds tuning knobs for a [CircuitBreaker].
type BreakerConfig struct {
	// Name labels log records and state-change callbacks, usually the
	// provider name.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close again.
	// Default: 3.
	HalfOpenMax int

	// OnStateChange, if set, is called after every transition with the
	// breaker lock released.
	OnStateChange func(name string, from, to State)

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// CircuitBreaker is a three-state breaker shared by every stage execution
// that uses the same provider within a session. A provider that keeps failing
// is skipped outright instead of burning the stage's timeout on every turn.
//
// It is safe for concurrent use.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	onChange     func(string, State, State)
	now          func() time.Time

	mu              sync.Mutex
	state           State
	consecutiveFail int
	openedAt        time.Time
	halfOpenCalls   int
	halfOpenOK      int
}

// NewCircuitBreaker creates a breaker. Zero-value fields of cfg are replaced
// with defaults.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		onChange:     cfg.OnStateChange,
		now:          cfg.Now,
		state:        StateClosed,
	}
}

// Execute runs fn if the breaker admits it and records the outcome. A
// context.Canceled error is neither a success nor a failure: the caller gave
// up, the provider did not.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.record(probe, err)
	return err
}

// admit decides whether a call may proceed and reports whether it is a
// half-open probe.
func (cb *CircuitBreaker) admit() (bool, error) {
	cb.mu.Lock()
	var from State
	changed := false
	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		from, changed = cb.transition(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.halfOpenCalls >= cb.halfOpenMax {
			cb.mu.Unlock()
			return false, ErrCircuitOpen
		}
		cb.halfOpenCalls++
	}
	probe := cb.state == StateHalfOpen
	cb.mu.Unlock()

	if changed {
		cb.notify(from, StateHalfOpen)
	}
	return probe, nil
}

func (cb *CircuitBreaker) record(probe bool, err error) {
	cb.mu.Lock()
	var (
		from, to State
		changed  bool
	)
	switch {
	case errors.Is(err, context.Canceled):
		if probe && cb.state == StateHalfOpen {
			cb.halfOpenCalls--
		}

	case err != nil:
		if probe || cb.state == StateHalfOpen {
			from, changed = cb.transition(StateOpen)
			to = StateOpen
			break
		}
		cb.consecutiveFail++
		if cb.consecutiveFail >= cb.maxFailures {
			from, changed = cb.transition(StateOpen)
			to = StateOpen
		}

	default:
		if probe && cb.state == StateHalfOpen {
			cb.halfOpenOK++
			if cb.halfOpenOK >= cb.halfOpenMax {
				from, changed = cb.transition(StateClosed)
				to = StateClosed
			}
		} else {
			cb.consecutiveFail = 0
		}
	}
	cb.mu.Unlock()

	if changed {
		cb.notify(from, to)
	}
}

// transition moves to state and resets the per-state counters. Must be
// called with cb.mu held.
func (cb *CircuitBreaker) transition(to State) (from State, changed bool) {
	from = cb.state
	if from == to {
		return from, false
	}
	cb.state = to
	cb.halfOpenCalls, cb.halfOpenOK = 0, 0
	switch to {
	case StateOpen:
		cb.openedAt = cb.now()
	case StateClosed:
		cb.consecutiveFail = 0
	}
	return from, true
}

func (cb *CircuitBreaker) notify(from, to State) {
	level := slog.LevelInfo
	if to == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "circuit breaker state change",
		"provider", cb.name, "from", from.String(), "to", to.String())
	if cb.onChange != nil {
		cb.onChange(cb.name, from, to)
	}
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// Execute.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Name returns the label the breaker was configured with.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Reset forces the breaker back to [StateClosed].
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from, changed := cb.transition(StateClosed)
	cb.consecutiveFail = 0
	cb.mu.Unlock()

	if changed {
		cb.notify(from, StateClosed)
	}
}
