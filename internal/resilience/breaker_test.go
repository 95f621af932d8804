package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures, halfOpenMax int) (*CircuitBreaker, *fakeClock, *[]string) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	var transitions []string
	cb := NewCircuitBreaker(BreakerConfig{
		Name:         "whisper",
		MaxFailures:  maxFailures,
		ResetTimeout: 10 * time.Second,
		HalfOpenMax:  halfOpenMax,
		Now:          clock.Now,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, fmt.Sprintf("%s:%s->%s", name, from, to))
		},
	})
	return cb, clock, &transitions
}

func fail() error    { return errBoom }
func succeed() error { return nil }

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Name: "test"})
	if cb.maxFailures != 5 || cb.resetTimeout != 30*time.Second || cb.halfOpenMax != 3 {
		t.Errorf("defaults = %d %v %d, want 5 30s 3", cb.maxFailures, cb.resetTimeout, cb.halfOpenMax)
	}
	if cb.State() != StateClosed || cb.Name() != "test" {
		t.Errorf("State/Name = %v/%q", cb.State(), cb.Name())
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb, _, transitions := newTestBreaker(3, 1)

	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	_ = cb.Execute(succeed) // resets the counter
	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after non-consecutive failures", cb.State())
	}
	_ = cb.Execute(fail)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("open breaker: err = %v called = %v", err, called)
	}
	if len(*transitions) != 1 || (*transitions)[0] != "whisper:closed->open" {
		t.Errorf("transitions = %v", *transitions)
	}
}

func TestCircuitBreaker_HalfOpenProbesClose(t *testing.T) {
	cb, clock, transitions := newTestBreaker(1, 2)
	_ = cb.Execute(fail)

	clock.Advance(9 * time.Second)
	if cb.State() != StateOpen {
		t.Fatal("breaker left open state before the reset timeout")
	}
	clock.Advance(time.Second)
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after timeout", cb.State())
	}

	for i := range 2 {
		if err := cb.Execute(succeed); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after probes", cb.State())
	}
	want := []string{"whisper:closed->open", "whisper:open->half-open", "whisper:half-open->closed"}
	if fmt.Sprint(*transitions) != fmt.Sprint(want) {
		t.Errorf("transitions = %v, want %v", *transitions, want)
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock, _ := newTestBreaker(1, 3)
	_ = cb.Execute(fail)
	clock.Advance(10 * time.Second)

	if err := cb.Execute(fail); !errors.Is(err, errBoom) {
		t.Fatalf("probe err = %v", err)
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after failed probe", cb.State())
	}
	clock.Advance(5 * time.Second)
	if err := cb.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen (timeout restarts on re-open)", err)
	}
}

func TestCircuitBreaker_HalfOpenProbeBudget(t *testing.T) {
	cb, clock, _ := newTestBreaker(1, 1)
	_ = cb.Execute(fail)
	clock.Advance(10 * time.Second)

	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- cb.Execute(func() error { <-release; return nil })
	}()

	// Wait until the first probe is admitted.
	for {
		cb.mu.Lock()
		n := cb.halfOpenCalls
		cb.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if err := cb.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second probe err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first probe: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_CancellationIsNeutral(t *testing.T) {
	cb, _, _ := newTestBreaker(1, 1)
	canceled := func() error { return fmt.Errorf("call: %w", context.Canceled) }

	for range 3 {
		_ = cb.Execute(canceled)
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, cancellations must not open the breaker", cb.State())
	}

	// A deadline is the provider being slow, which does count.
	_ = cb.Execute(func() error { return context.DeadlineExceeded })
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after a timeout", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _, transitions := newTestBreaker(1, 1)
	_ = cb.Execute(fail)
	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after Reset", cb.State())
	}
	if err := cb.Execute(succeed); err != nil {
		t.Fatalf("Execute after Reset: %v", err)
	}
	if n := len(*transitions); n != 2 {
		t.Errorf("transitions = %v, want open then closed", *transitions)
	}
	cb.Reset()
	if n := len(*transitions); n != 2 {
		t.Error("Reset on a closed breaker must not report a transition")
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
