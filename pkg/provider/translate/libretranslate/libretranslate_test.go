package libretranslate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vzynszice/voice-interview-system/pkg/provider/translate"
)

func TestTranslate(t *testing.T) {
	var got translateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/translate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"translatedText": " hello "})
	}))
	defer srv.Close()

	p, err := New(srv.URL+"/", WithAPIKey("secret"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := p.Translate(context.Background(), "merhaba", "tr", "en")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out != "hello" {
		t.Errorf("Translate = %q, want %q", out, "hello")
	}
	want := translateRequest{Q: "merhaba", Source: "tr", Target: "en", Format: "text", APIKey: "secret"}
	if got != want {
		t.Errorf("request = %+v, want %+v", got, want)
	}
}

func TestTranslate_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{name: "api error", status: http.StatusBadRequest, body: `{"error":"tr is not supported"}`, wantStatus: 400},
		{name: "plain text error", status: http.StatusBadGateway, body: "upstream down", wantStatus: 502},
		{name: "empty translation", status: http.StatusOK, body: `{"translatedText":"  "}`, wantStatus: 200},
		{name: "bad json", status: http.StatusOK, body: `{`, wantStatus: 200},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			p, _ := New(srv.URL)
			_, err := p.Translate(context.Background(), "x", "tr", "en")
			var te *translate.TranslationError
			if !errors.As(err, &te) {
				t.Fatalf("err = %v, want *translate.TranslationError", err)
			}
			if te.StatusCode != tc.wantStatus {
				t.Errorf("StatusCode = %d, want %d", te.StatusCode, tc.wantStatus)
			}
			if te.Provider != "libretranslate" {
				t.Errorf("Provider = %q", te.Provider)
			}
		})
	}
}

func TestNew_EmptyURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error")
	}
}
