package audio_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/vzynszice/voice-interview-system/pkg/audio"
)

func TestDirSink_WritesNumberedFiles(t *testing.T) {
	dir := t.TempDir()
	sink, err := audio.NewDirSink(filepath.Join(dir, "out"), "q")
	if err != nil {
		t.Fatalf("NewDirSink: %v", err)
	}
	clip := audio.Clip{Data: samplesToBytes([]int16{1, 2}), SampleRate: 16000, Channels: 1}
	for range 2 {
		if err := sink.Play(context.Background(), clip); err != nil {
			t.Fatalf("Play: %v", err)
		}
	}
	raw, err := os.ReadFile(filepath.Join(dir, "out", "q-0002.wav"))
	if err != nil {
		t.Fatalf("read second file: %v", err)
	}
	got, err := audio.DecodeWAV(raw)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if got.SampleRate != 16000 || len(got.Data) != 4 {
		t.Errorf("decoded %+v", got.Format())
	}
}

func TestDiscard(t *testing.T) {
	if err := audio.Discard.Play(context.Background(), audio.Clip{}); err != nil {
		t.Errorf("Discard.Play: %v", err)
	}
}
