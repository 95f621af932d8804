package interview

import (
	"strings"
	"testing"
)

func TestDefaultPlan(t *testing.T) {
	p := DefaultPlan()
	if p.Total() != 6 {
		t.Fatalf("Total = %d, want 6", p.Total())
	}
	want := []string{"warmup", "technical", "technical", "behavioral", "situational", "closing"}
	for i, w := range want {
		got, ok := p.PhaseAt(i)
		if !ok || got != w {
			t.Errorf("PhaseAt(%d) = %q, %v, want %q", i, got, ok, w)
		}
	}
	if _, ok := p.PhaseAt(6); ok {
		t.Errorf("PhaseAt(6) ok, want exhausted")
	}
	if _, ok := p.PhaseAt(-1); ok {
		t.Errorf("PhaseAt(-1) ok")
	}
}

func TestNewPlan(t *testing.T) {
	tests := []struct {
		name    string
		phases  []string
		counts  map[string]int
		total   int
		wantErr string
	}{
		{name: "missing count defaults to one", phases: []string{"a", "b"}, counts: map[string]int{"a": 3}, total: 4},
		{name: "zero skips phase", phases: []string{"a", "b"}, counts: map[string]int{"a": 0}, total: 1},
		{name: "empty", wantErr: "at least one phase"},
		{name: "duplicate", phases: []string{"a", "a"}, wantErr: "duplicate"},
		{name: "negative", phases: []string{"a"}, counts: map[string]int{"a": -1}, wantErr: "negative"},
		{name: "no questions", phases: []string{"a"}, counts: map[string]int{"a": 0}, wantErr: "no questions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPlan(tt.phases, tt.counts)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewPlan: %v", err)
			}
			if p.Total() != tt.total {
				t.Errorf("Total = %d, want %d", p.Total(), tt.total)
			}
		})
	}
}
