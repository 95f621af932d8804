package coqui

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vzynszice/voice-interview-system/pkg/audio"
	"github.com/vzynszice/voice-interview-system/pkg/provider/tts"
)

// ---- test helpers ----

// testWAV encodes n mono 22.05 kHz samples of value v.
func testWAV(n int, v int16) []byte {
	pcm := make([]byte, n*2)
	for i := range n {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return audio.EncodeWAV(audio.Clip{Data: pcm, SampleRate: 22050, Channels: 1})
}

// mustNew is a test helper that calls New and fails the test on error.
func mustNew(t *testing.T, serverURL string, opts ...Option) *Provider {
	t.Helper()
	p, err := New(serverURL, opts...)
	if err != nil {
		t.Fatalf("New(%q): unexpected error: %v", serverURL, err)
	}
	return p
}

// ---- Provider creation ----

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		opts    []Option
		wantErr bool
	}{
		{name: "standard default", url: "http://localhost:5002"},
		{name: "empty url", url: "", wantErr: true},
		{name: "xtts with voice", url: "http://localhost:8002", opts: []Option{WithAPIMode(APIModeXTTS), WithVoice("Claribel Dervla")}},
		{name: "xtts without voice", url: "http://localhost:8002", opts: []Option{WithAPIMode(APIModeXTTS)}, wantErr: true},
		{name: "unknown mode", url: "http://localhost:5002", opts: []Option{WithAPIMode("grpc")}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.url, tc.opts...)
			if (err != nil) != tc.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestNew_DefaultAPIMode(t *testing.T) {
	p := mustNew(t, "http://localhost:5002/")
	if p.apiMode != APIModeStandard {
		t.Errorf("apiMode = %q, want %q", p.apiMode, APIModeStandard)
	}
	if p.serverURL != "http://localhost:5002" {
		t.Errorf("serverURL = %q, want trailing slash trimmed", p.serverURL)
	}
}

// ---- Synthesize ----

func TestSynthesize_StandardAPI(t *testing.T) {
	var (
		mu      sync.Mutex
		queries []map[string]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != apiTTSEndpoint {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		mu.Lock()
		queries = append(queries, map[string]string{
			"text":        q.Get("text"),
			"speaker_id":  q.Get("speaker_id"),
			"language_id": q.Get("language_id"),
		})
		mu.Unlock()
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(testWAV(100, 7))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithVoice("p225"), WithMultilingual(true))
	clip, err := p.Synthesize(context.Background(), "Merhaba. Kendinden bahseder misin?", "tr")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if clip.SampleRate != 22050 || clip.Channels != 1 {
		t.Errorf("format = %d/%d, want 22050/1", clip.SampleRate, clip.Channels)
	}
	if len(clip.Data) != 2*100*2 {
		t.Errorf("len(Data) = %d, want %d (two sentences)", len(clip.Data), 2*100*2)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(queries) != 2 {
		t.Fatalf("requests = %d, want 2", len(queries))
	}
	if queries[0]["text"] != "Merhaba." || queries[1]["text"] != "Kendinden bahseder misin?" {
		t.Errorf("sentences sent out of order: %v", queries)
	}
	for _, q := range queries {
		if q["speaker_id"] != "p225" || q["language_id"] != "tr" {
			t.Errorf("query = %v, want speaker_id=p225 language_id=tr", q)
		}
	}
}

func TestSynthesize_StandardAPI_NoLanguageForMonolingual(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("language_id") {
			http.Error(w, "model is not multilingual", http.StatusBadRequest)
			return
		}
		_, _ = w.Write(testWAV(10, 1))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	if _, err := p.Synthesize(context.Background(), "Hello there", "en"); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
}

func TestSynthesize_XTTS(t *testing.T) {
	var got ttsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != ttsEndpoint {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = w.Write(testWAV(50, 3))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS), WithVoice("Ana Florence"))
	clip, err := p.Synthesize(context.Background(), "Tell me about yourself", "en")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if clip.Empty() {
		t.Fatal("expected audio")
	}
	if got.Text != "Tell me about yourself" || got.SpeakerWav != "Ana Florence" || got.Language != "en" {
		t.Errorf("request = %+v", got)
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	p := mustNew(t, "http://127.0.0.1:1")
	_, err := p.Synthesize(context.Background(), "   ", "en")
	var se *tts.SynthesisError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *tts.SynthesisError", err)
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	_, err := p.Synthesize(context.Background(), "Hello.", "en")
	var se *tts.SynthesisError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *tts.SynthesisError", err)
	}
	if se.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", se.StatusCode)
	}
	if !strings.Contains(se.Error(), "model not loaded") {
		t.Errorf("error %q does not carry the server body", se.Error())
	}
}

func TestSynthesize_InvalidWAV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not a wav"))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	_, err := p.Synthesize(context.Background(), "Hello.", "en")
	if !errors.Is(err, audio.ErrInvalidWAV) {
		t.Fatalf("err = %v, want audio.ErrInvalidWAV", err)
	}
}

func TestSynthesize_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Synthesize(ctx, "Hello.", "en")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

// ---- sentence splitting ----

func TestFindSentenceBoundary(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"Hello. World", 5},
		{"Hello!", 5},
		{"Is it? Yes", 5},
		{"3.14 is pi", -1},
		{"no punctuation", -1},
		{"", -1},
	}
	for _, tc := range tests {
		if got := findSentenceBoundary(tc.in); got != tc.want {
			t.Errorf("findSentenceBoundary(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("  Merhaba.  Nasılsınız? Başlayalım  ")
	want := []string{"Merhaba.", "Nasılsınız?", "Başlayalım"}
	if len(got) != len(want) {
		t.Fatalf("splitSentences = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// ---- ListVoices ----

func TestListVoices_XTTS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != studioSpeakersEndpoint {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"Zofija Kendrick":{"speaker_embedding":[]},"Ana Florence":{}}`))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS), WithVoice("Ana Florence"))
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 || voices[0].ID != "Ana Florence" || voices[1].ID != "Zofija Kendrick" {
		t.Errorf("voices = %+v, want sorted studio speakers", voices)
	}
	if voices[0].Provider != "coqui" {
		t.Errorf("Provider = %q, want coqui", voices[0].Provider)
	}
}

func TestListVoices_Standard(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantIDs []string
	}{
		{name: "multi speaker", body: `{"model_name":"vctk/vits","speakers":["p243","p225"]}`, wantIDs: []string{"p225", "p243"}},
		{name: "single speaker", body: `{"model_name":"ljspeech/vits","speakers":[]}`, wantIDs: []string{"ljspeech/vits"}},
		{name: "no model name", body: `{}`, wantIDs: []string{"default"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			voices, err := mustNew(t, srv.URL).ListVoices(context.Background())
			if err != nil {
				t.Fatalf("ListVoices: %v", err)
			}
			if len(voices) != len(tc.wantIDs) {
				t.Fatalf("voices = %+v, want %v", voices, tc.wantIDs)
			}
			for i, id := range tc.wantIDs {
				if voices[i].ID != id {
					t.Errorf("[%d].ID = %q, want %q", i, voices[i].ID, id)
				}
			}
		})
	}
}

func TestListVoices_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := mustNew(t, srv.URL).ListVoices(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
