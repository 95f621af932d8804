package llmtranslate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vzynszice/voice-interview-system/pkg/provider/llm"
	llmmock "github.com/vzynszice/voice-interview-system/pkg/provider/llm/mock"
	"github.com/vzynszice/voice-interview-system/pkg/provider/translate"
)

func TestTranslate(t *testing.T) {
	model := &llmmock.Provider{Content: `"Hello, tell me about yourself."`}
	p, err := New(model)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := p.Translate(context.Background(), "Merhaba, kendinden bahseder misin?", "tr", "en")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out != "Hello, tell me about yourself." {
		t.Errorf("Translate = %q", out)
	}

	calls := model.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	req := calls[0]
	if !strings.Contains(req.SystemPrompt, "from Turkish to English") {
		t.Errorf("system prompt = %q", req.SystemPrompt)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != llm.RoleUser || req.Messages[0].Content != "Merhaba, kendinden bahseder misin?" {
		t.Errorf("messages = %+v", req.Messages)
	}
	if req.Language != "en" {
		t.Errorf("Language = %q, want en", req.Language)
	}
}

func TestTranslate_ModelError(t *testing.T) {
	boom := errors.New("rate limited")
	p, _ := New(&llmmock.Provider{Err: boom}, WithName("openai"))

	_, err := p.Translate(context.Background(), "merhaba", "tr", "en")
	var te *translate.TranslationError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *translate.TranslationError", err)
	}
	if te.Provider != "openai" || !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}

func TestTranslate_EmptyReply(t *testing.T) {
	p, _ := New(&llmmock.Provider{Content: `""`})
	if _, err := p.Translate(context.Background(), "merhaba", "tr", "en"); err == nil {
		t.Fatal("expected error for empty translation")
	}
}

func TestNew_NilModel(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestLanguageName(t *testing.T) {
	tests := map[string]string{
		"tr":    "Turkish",
		"en":    "English",
		"de":    "German",
		"!!bad": "!!bad",
	}
	for in, want := range tests {
		if got := languageName(in); got != want {
			t.Errorf("languageName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCleanTranslation(t *testing.T) {
	tests := map[string]string{
		`  hello  `:    "hello",
		`"hello"`:      "hello",
		`“merhaba”`:    "merhaba",
		`'hi'`:         "hi",
		`"unbalanced`:  `"unbalanced`,
		`say "hi" now`: `say "hi" now`,
	}
	for in, want := range tests {
		if got := cleanTranslation(in); got != want {
			t.Errorf("cleanTranslation(%q) = %q, want %q", in, got, want)
		}
	}
}
