package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/vzynszice/voice-interview-system/internal/observe"
)

// Attempt kinds, used as the "kind" of error metrics and in logs.
const (
	KindOK          = "ok"
	KindTimeout     = "timeout"
	KindFailure     = "failure"
	KindCircuitOpen = "circuit_open"
	KindCancelled   = "cancelled"
)

// Attempt is one entry of the execution trace.
type Attempt struct {
	Provider string

	// Try is the 1-based attempt number on this provider.
	Try int

	Elapsed time.Duration

	// Err is nil for the successful attempt. Failed attempts wrap
	// ErrStageTimeout, ErrProviderFailure or ErrCircuitOpen.
	Err error
}

// Kind classifies the attempt.
func (a Attempt) Kind() string {
	switch {
	case a.Err == nil:
		return KindOK
	case errors.Is(a.Err, ErrCircuitOpen):
		return KindCircuitOpen
	case errors.Is(a.Err, ErrStageTimeout):
		return KindTimeout
	case errors.Is(a.Err, ErrCancelled):
		return KindCancelled
	default:
		return KindFailure
	}
}

// Result is the outcome of [Execute]. Attempts is filled even when Execute
// returns an error.
type Result[R any] struct {
	Value    R
	Provider string
	Elapsed  time.Duration
	Attempts []Attempt
}

// Degraded reports whether the result was reached only after at least one
// failed attempt.
func (r Result[R]) Degraded() bool {
	for _, a := range r.Attempts {
		if a.Err != nil {
			return true
		}
	}
	return false
}

// Option configures an [Executor].
type Option func(*Executor)

// WithPolicy sets the policy of one stage.
func WithPolicy(stage string, p Policy) Option {
	return func(e *Executor) {
		e.policies[stage] = p
	}
}

// WithDefaultPolicy sets the policy of stages without their own.
func WithDefaultPolicy(p Policy) Option {
	return func(e *Executor) {
		e.fallback = p
	}
}

// WithMetrics records attempts and stage latency to m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithSleep replaces the backoff wait. fn must return ctx.Err() when ctx
// ends first.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		e.sleep = fn
	}
}

// WithRand replaces the jitter source. fn must return values in [0, 1).
func WithRand(fn func() float64) Option {
	return func(e *Executor) {
		e.rand = fn
	}
}

// WithClock replaces time.Now for latency measurement.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// Executor holds the per-stage policies. It keeps no state between
// executions and is safe for concurrent use.
type Executor struct {
	policies map[string]Policy
	fallback Policy
	metrics  *observe.Metrics
	sleep    func(context.Context, time.Duration) error
	rand     func() float64
	now      func() time.Time
}

// NewExecutor builds an Executor.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		policies: make(map[string]Policy),
		fallback: DefaultPolicy(),
		sleep:    sleepCtx,
		rand:     rand.Float64,
		now:      time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// Policy returns the policy applied to stage.
func (e *Executor) Policy(stage string) Policy {
	if p, ok := e.policies[stage]; ok {
		return p
	}
	return e.fallback
}

// Execute runs call against the providers of ranking in order until one
// succeeds.
//
// It returns an [*ExhaustedError] when every provider failed, and an error
// matching both [ErrCancelled] and ctx.Err() when ctx ends first. The result
// carries the attempt trace in every case.
func Execute[T, R any](ctx context.Context, e *Executor, stage string, ranking Ranking[T], call func(context.Context, T) (R, error)) (res Result[R], err error) {
	pol := e.Policy(stage)
	start := e.now()

	ctx, span := observe.StartSpan(ctx, "stage."+stage)
	log := observe.Logger(ctx).With("stage", stage)

	var (
		failures []ProviderFailure
		outcome  = KindOK
	)
	defer func() {
		res.Elapsed = e.now().Sub(start)
		e.metrics.RecordStage(ctx, stage, outcome, res.Elapsed)
		observe.EndSpan(span, err,
			attribute.String("stage", stage),
			attribute.String("provider", res.Provider),
			attribute.Int("attempts", len(res.Attempts)),
			attribute.String("outcome", outcome),
		)
	}()

	for _, c := range ranking {
		var last error
		for try := 1; try <= 1+pol.MaxRetries; try++ {
			if try > 1 {
				if serr := e.sleep(ctx, backoffDelay(pol.BaseBackoff, pol.MaxBackoff, pol.Jitter, try-1, e.rand)); serr != nil {
					outcome, err = KindCancelled, cancelled(ctx)
					return res, err
				}
			}
			if ctx.Err() != nil {
				outcome, err = KindCancelled, cancelled(ctx)
				return res, err
			}

			val, att := attempt(ctx, e, stage, pol, c, call, try)
			res.Attempts = append(res.Attempts, att)

			if att.Err == nil {
				res.Value, res.Provider = val, c.Name
				if len(res.Attempts) > 1 {
					log.Info("stage recovered", "provider", c.Name, "attempts", len(res.Attempts))
				}
				return res, nil
			}
			if errors.Is(att.Err, ErrCancelled) {
				outcome, err = KindCancelled, att.Err
				return res, err
			}

			last = att.Err
			log.Warn("provider attempt failed", "provider", c.Name, "attempt", try, "kind", att.Kind(), "err", att.Err)
			if errors.Is(att.Err, ErrCircuitOpen) {
				break
			}
		}
		failures = append(failures, ProviderFailure{Provider: c.Name, Err: last})
	}

	outcome = "exhausted"
	err = &ExhaustedError{Stage: stage, Failures: failures}
	log.Error("stage exhausted", "providers", len(failures), "err", err)
	return res, err
}

// attempt performs one bounded call and classifies its error.
func attempt[T, R any](ctx context.Context, e *Executor, stage string, pol Policy, c Candidate[T], call func(context.Context, T) (R, error), try int) (R, Attempt) {
	actx, cancel := ctx, context.CancelFunc(func() {})
	if pol.Timeout > 0 {
		actx, cancel = context.WithTimeout(ctx, pol.Timeout)
	}
	defer cancel()

	var val R
	run := func() error {
		var err error
		val, err = call(actx, c.Client)
		return err
	}

	t0 := e.now()
	var err error
	if c.Breaker != nil {
		err = c.Breaker.Execute(run)
	} else {
		err = run()
	}
	att := Attempt{Provider: c.Name, Try: try, Elapsed: e.now().Sub(t0)}

	switch {
	case err == nil:
	case errors.Is(err, ErrCircuitOpen):
		att.Err = fmt.Errorf("%s: %w", c.Name, ErrCircuitOpen)
	case ctx.Err() != nil:
		att.Err = cancelled(ctx)
	case actx.Err() != nil && errors.Is(actx.Err(), context.DeadlineExceeded):
		att.Err = fmt.Errorf("%w: %s after %v: %w", ErrStageTimeout, c.Name, pol.Timeout, err)
	default:
		att.Err = fmt.Errorf("%w: %s: %w", ErrProviderFailure, c.Name, err)
	}

	kind := att.Kind()
	status := "ok"
	if att.Err != nil {
		status = "error"
		if kind != KindCancelled {
			e.metrics.RecordProviderError(ctx, stage, c.Name, kind)
		}
	}
	e.metrics.RecordAttempt(ctx, stage, c.Name, status, att.Elapsed)
	return val, att
}

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
