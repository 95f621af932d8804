package interview

import (
	"errors"
	"fmt"
	"slices"
)

// Phase names.
const (
	PhaseWarmup      = "warmup"
	PhaseTechnical   = "technical"
	PhaseBehavioral  = "behavioral"
	PhaseSituational = "situational"
	PhaseClosing     = "closing"
)

// DefaultPhases is the phase order used when none is configured.
var DefaultPhases = []string{PhaseWarmup, PhaseTechnical, PhaseBehavioral, PhaseSituational, PhaseClosing}

// DefaultQuestionsPerPhase is the number of questions asked per phase when
// none is configured.
var DefaultQuestionsPerPhase = map[string]int{
	PhaseWarmup:      1,
	PhaseTechnical:   2,
	PhaseBehavioral:  1,
	PhaseSituational: 1,
	PhaseClosing:     1,
}

// PhaseSpec is one step of a [Plan].
type PhaseSpec struct {
	Name      string
	Questions int
}

// Plan is the ordered list of phases an interview walks through. The phase of
// the next question is derived from how many questions were already answered.
type Plan struct {
	phases []PhaseSpec
	total  int
}

// NewPlan builds a plan from phase names and per-phase question counts.
// Phases missing from counts get one question; a count of zero skips the
// phase.
func NewPlan(phases []string, counts map[string]int) (*Plan, error) {
	if len(phases) == 0 {
		return nil, errors.New("interview: plan needs at least one phase")
	}
	p := &Plan{}
	var errs []error
	seen := make(map[string]bool, len(phases))
	for _, name := range phases {
		if name == "" {
			errs = append(errs, errors.New("interview: empty phase name"))
			continue
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("interview: duplicate phase %q", name))
			continue
		}
		seen[name] = true
		n, ok := counts[name]
		if !ok {
			n = 1
		}
		if n < 0 {
			errs = append(errs, fmt.Errorf("interview: phase %q: negative question count %d", name, n))
			continue
		}
		if n == 0 {
			continue
		}
		p.phases = append(p.phases, PhaseSpec{Name: name, Questions: n})
		p.total += n
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if p.total == 0 {
		return nil, errors.New("interview: plan has no questions")
	}
	return p, nil
}

// DefaultPlan returns the five-phase plan with 1, 2, 1, 1, 1 questions.
func DefaultPlan() *Plan {
	p, err := NewPlan(DefaultPhases, DefaultQuestionsPerPhase)
	if err != nil {
		panic(err)
	}
	return p
}

// Total returns the number of questions in the plan.
func (p *Plan) Total() int { return p.total }

// Phases returns a copy of the plan steps.
func (p *Plan) Phases() []PhaseSpec { return slices.Clone(p.phases) }

// PhaseAt returns the phase of question n (zero-based). ok is false once the
// plan is exhausted.
func (p *Plan) PhaseAt(n int) (phase string, ok bool) {
	if n < 0 {
		return "", false
	}
	for _, ph := range p.phases {
		if n < ph.Questions {
			return ph.Name, true
		}
		n -= ph.Questions
	}
	return "", false
}
