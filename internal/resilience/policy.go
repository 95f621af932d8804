package resilience

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Policy controls the timeout and retry schedule of one stage.
type Policy struct {
	// Timeout bounds each attempt. Zero means no per-attempt deadline.
	Timeout time.Duration

	// MaxRetries is the number of extra attempts on the same provider before
	// moving to the next one.
	MaxRetries int

	// BaseBackoff is the delay before the first retry. Later retries double
	// it up to MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// Jitter spreads each delay uniformly over ±Jitter of its value. Must be
	// in [0, 1].
	Jitter float64
}

// DefaultPolicy returns the policy used for stages without an explicit one.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:     15 * time.Second,
		MaxRetries:  1,
		BaseBackoff: 250 * time.Millisecond,
		MaxBackoff:  2 * time.Second,
		Jitter:      0.2,
	}
}

// Validate reports every problem with p.
func (p Policy) Validate() error {
	var errs []error
	if p.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %v", p.Timeout))
	}
	if p.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries must not be negative, got %d", p.MaxRetries))
	}
	if p.BaseBackoff < 0 || p.MaxBackoff < 0 {
		errs = append(errs, errors.New("backoff durations must not be negative"))
	}
	if p.MaxBackoff > 0 && p.BaseBackoff > p.MaxBackoff {
		errs = append(errs, fmt.Errorf("base backoff %v exceeds max backoff %v", p.BaseBackoff, p.MaxBackoff))
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		errs = append(errs, fmt.Errorf("jitter must be within [0, 1], got %v", p.Jitter))
	}
	return errors.Join(errs...)
}

// backoffDelay returns the wait before retry number retry (1-based):
// base·2^(retry-1), capped at max, then spread by ±jitter. r must return
// values in [0, 1).
func backoffDelay(base, max time.Duration, jitter float64, retry int, r func() float64) time.Duration {
	if base <= 0 || retry < 1 {
		return 0
	}
	f := float64(base) * math.Pow(2, float64(retry-1))
	if max > 0 && f > float64(max) {
		f = float64(max)
	}
	if jitter > 0 && r != nil {
		f *= 1 + jitter*(2*r()-1)
	}
	if f >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	d := time.Duration(f)
	if d < 0 {
		return 0
	}
	return d
}
