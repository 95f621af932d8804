package turn

import (
	"fmt"
	"slices"
	"strings"
)

// State is a step of the per-turn state machine.
type State int

const (
	AwaitingUtterance State = iota
	Transcribing
	Translating
	Generating
	BackTranslating
	Synthesizing
	Done
	Failed
)

var stateNames = [...]string{
	AwaitingUtterance: "awaiting_utterance",
	Transcribing:      "transcribing",
	Translating:       "translating",
	Generating:        "generating",
	BackTranslating:   "back_translating",
	Synthesizing:      "synthesizing",
	Done:              "done",
	Failed:            "failed",
}

// String implements [fmt.Stringer].
func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// validTransitions lists the legal successors of every state. Translating and
// BackTranslating are entered only when the session languages differ. Done is
// reachable before Generating when the interview has no further question.
var validTransitions = map[State][]State{
	AwaitingUtterance: {Transcribing},
	Transcribing:      {Translating, Generating, Done, Failed},
	Translating:       {Generating, Done, Failed},
	Generating:        {BackTranslating, Synthesizing, Failed},
	BackTranslating:   {Synthesizing, Failed},
	Synthesizing:      {Done, Failed},
	Done:              {AwaitingUtterance},
	Failed:            {AwaitingUtterance},
}

// InvalidTransitionError reports an attempt to move the machine along an edge
// that validTransitions does not contain.
type InvalidTransitionError struct {
	From, To State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("turn: invalid transition %s -> %s", e.From, e.To)
}

// machine tracks the state of one turn and the path it took.
type machine struct {
	state State
	path  []State
}

func newMachine() *machine {
	return &machine{state: AwaitingUtterance, path: []State{AwaitingUtterance}}
}

func (m *machine) to(next State) error {
	if !slices.Contains(validTransitions[m.state], next) {
		return &InvalidTransitionError{From: m.state, To: next}
	}
	m.state = next
	m.path = append(m.path, next)
	return nil
}

// must is used where the orchestrator's own control flow guarantees a legal
// edge; a failure there is a programming error.
func (m *machine) must(next State) {
	if err := m.to(next); err != nil {
		panic(err)
	}
}

func (m *machine) String() string {
	parts := make([]string, len(m.path))
	for i, s := range m.path {
		parts[i] = s.String()
	}
	return strings.Join(parts, " -> ")
}
