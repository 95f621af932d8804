package resilience

import (
	"errors"
	"fmt"
)

// Candidate is one named provider in a stage ranking.
type Candidate[T any] struct {
	Name   string
	Client T

	// Breaker is optional. When set it is consulted before every attempt and
	// shared across executions.
	Breaker *CircuitBreaker
}

// Ranking is the ordered failover list of a stage. It is read-only once
// built.
type Ranking[T any] []Candidate[T]

// NewRanking validates and returns a ranking. Names must be non-empty and
// unique.
func NewRanking[T any](candidates ...Candidate[T]) (Ranking[T], error) {
	if len(candidates) == 0 {
		return nil, ErrEmptyRanking
	}
	seen := make(map[string]bool, len(candidates))
	var errs []error
	for i, c := range candidates {
		switch {
		case c.Name == "":
			errs = append(errs, fmt.Errorf("resilience: candidate %d has no name", i))
		case seen[c.Name]:
			errs = append(errs, fmt.Errorf("resilience: duplicate candidate %q", c.Name))
		}
		seen[c.Name] = true
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	out := make(Ranking[T], len(candidates))
	copy(out, candidates)
	return out, nil
}

// Names returns the candidate names in order.
func (r Ranking[T]) Names() []string {
	names := make([]string, len(r))
	for i, c := range r {
		names[i] = c.Name
	}
	return names
}
