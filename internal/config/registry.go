package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/vzynszice/voice-interview-system/pkg/provider/llm"
	"github.com/vzynszice/voice-interview-system/pkg/provider/stt"
	"github.com/vzynszice/voice-interview-system/pkg/provider/translate"
	"github.com/vzynszice/voice-interview-system/pkg/provider/tts"
	"github.com/vzynszice/voice-interview-system/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	llm       map[string]func(ProviderEntry) (llm.Provider, error)
	stt       map[string]func(ProviderEntry) (stt.Provider, error)
	translate map[string]func(ProviderEntry) (translate.Provider, error)
	tts       map[string]func(ProviderEntry) (tts.Provider, error)
	vad       map[string]func(ProviderEntry) (vad.Classifier, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:       make(map[string]func(ProviderEntry) (llm.Provider, error)),
		stt:       make(map[string]func(ProviderEntry) (stt.Provider, error)),
		translate: make(map[string]func(ProviderEntry) (translate.Provider, error)),
		tts:       make(map[string]func(ProviderEntry) (tts.Provider, error)),
		vad:       make(map[string]func(ProviderEntry) (vad.Classifier, error)),
	}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterSTT registers an STT provider factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterTranslate registers a translation provider factory under name.
func (r *Registry) RegisterTranslate(name string, factory func(ProviderEntry) (translate.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.translate[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterVAD registers a frame classifier factory under name.
func (r *Registry) RegisterVAD(name string, factory func(ProviderEntry) (vad.Classifier, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(r, r.llm, "llm", entry)
}

// CreateSTT instantiates an STT provider using the factory registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return create(r, r.stt, "stt", entry)
}

// CreateTranslate instantiates a translation provider using the factory registered under entry.Name.
func (r *Registry) CreateTranslate(entry ProviderEntry) (translate.Provider, error) {
	return create(r, r.translate, "translate", entry)
}

// CreateTTS instantiates a TTS provider using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return create(r, r.tts, "tts", entry)
}

// CreateVAD instantiates a frame classifier using the factory registered under entry.Name.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Classifier, error) {
	return create(r, r.vad, "vad", entry)
}

// Names returns the sorted names registered for kind ("llm", "stt",
// "translate", "tts" or "vad").
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "llm":
		names = keys(r.llm)
	case "stt":
		names = keys(r.stt)
	case "translate":
		names = keys(r.translate)
	case "tts":
		names = keys(r.tts)
	case "vad":
		names = keys(r.vad)
	}
	slices.Sort(names)
	return names
}

func create[P any](r *Registry, factories map[string]func(ProviderEntry) (P, error), kind string, entry ProviderEntry) (P, error) {
	r.mu.RLock()
	factory, ok := factories[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return factory(entry)
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
