package session

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"
)

func TestWriteTranscript(t *testing.T) {
	clk := newFakeClock()
	s := New(Languages{Primary: "tr", Target: "en"}, WithClock(clk.Now), WithID("t-1"))
	for _, text := range []string{"merhaba", "Go ile çalıştım"} {
		h, _ := s.StartTurn(utt(0, 1))
		clk.Advance(30 * time.Second)
		_ = s.CompleteTurn(h, Turn{Status: TurnSucceeded, Transcript: text})
	}
	s.End()

	var buf bytes.Buffer
	err := WriteTranscript(&buf, s, ExportInfo{
		Job:       map[string]string{"title": "Backend Developer"},
		Candidate: map[string]string{"name": "Ayşe"},
		Providers: map[string]string{"transcribe": "whisper"},
	})
	if err != nil {
		t.Fatalf("WriteTranscript: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `"interview_id":"t-1"`) || !strings.Contains(lines[0], `"total_turns":2`) {
		t.Errorf("header = %s", lines[0])
	}

	hdr, turns, err := ReadTranscript(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("ReadTranscript: %v", err)
	}
	if hdr.Duration != "1m0s" {
		t.Errorf("Duration = %q, want 1m0s", hdr.Duration)
	}
	if hdr.Providers["transcribe"] != "whisper" || hdr.Status != Ended {
		t.Errorf("header = %+v", hdr)
	}
	if len(turns) != 2 || turns[1].Transcript != "Go ile çalıştım" || turns[1].Index != 2 {
		t.Errorf("turns = %+v", turns)
	}
}

func TestExportTranscript(t *testing.T) {
	s := New(Languages{Primary: "en", Target: "en"}, WithID("file"))
	path, err := ExportTranscript(t.TempDir(), s, ExportInfo{})
	if err != nil {
		t.Fatalf("ExportTranscript: %v", err)
	}
	if !strings.HasSuffix(path, "_file.jsonl") {
		t.Errorf("path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Count(data, []byte("\n")) != 1 {
		t.Errorf("empty session should export header only, got %q", data)
	}
}
