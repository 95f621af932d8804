package config_test

import (
	"os"
	"testing"
)

// minimalYAML is the smallest config that passes validation with the
// default tr→en language pair.
const minimalYAML = `
stages:
  transcribe:
    providers:
      - name: whisper
  translate:
    providers:
      - name: libretranslate
  generate:
    providers:
      - name: ollama
        model: gemma3:4b
  synthesize:
    providers:
      - name: coqui
interview:
  candidate:
    name: Ayşe Yılmaz
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}
