package turn

import (
	"errors"
	"testing"
)

func TestMachine_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []State
		wantErr bool
	}{
		{name: "full translated turn", path: []State{Transcribing, Translating, Generating, BackTranslating, Synthesizing, Done, AwaitingUtterance}},
		{name: "same language turn", path: []State{Transcribing, Generating, Synthesizing, Done}},
		{name: "fail while transcribing", path: []State{Transcribing, Failed, AwaitingUtterance}},
		{name: "interview over", path: []State{Transcribing, Translating, Done}},
		{name: "skip transcribing", path: []State{Generating}, wantErr: true},
		{name: "back-translate without generating", path: []State{Transcribing, Translating, BackTranslating}, wantErr: true},
		{name: "done after generating", path: []State{Transcribing, Generating, Done}, wantErr: true},
		{name: "failed to done", path: []State{Transcribing, Failed, Done}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMachine()
			var err error
			for _, s := range tt.path {
				if err = m.to(s); err != nil {
					break
				}
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v (path %s)", err, tt.wantErr, m)
			}
			var ite *InvalidTransitionError
			if tt.wantErr && !errors.As(err, &ite) {
				t.Fatalf("err is %T, want *InvalidTransitionError", err)
			}
		})
	}
}

func TestMachine_MustPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("must did not panic on an illegal edge")
		}
	}()
	newMachine().must(Done)
}

func TestState_String(t *testing.T) {
	if BackTranslating.String() != "back_translating" {
		t.Errorf("String = %q", BackTranslating.String())
	}
	if State(42).String() != "State(42)" {
		t.Errorf("String = %q", State(42).String())
	}
	m := newMachine()
	m.must(Transcribing)
	if m.String() != "awaiting_utterance -> transcribing" {
		t.Errorf("path = %q", m.String())
	}
}
