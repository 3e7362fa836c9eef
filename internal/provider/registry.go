package provider

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// ErrNotRegistered is returned when no provider is active for a capability.
var ErrNotRegistered = errors.New("provider not registered")

// Registry keeps named implementations per capability and one active name each.
// It is safe for concurrent use; providers can be swapped at runtime.
type Registry struct {
	mu     sync.RWMutex
	impls  map[Kind]map[string]any
	active map[Kind]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		impls:  make(map[Kind]map[string]any),
		active: make(map[Kind]string),
	}
}

func (r *Registry) register(kind Kind, name string, impl any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.impls[kind] == nil {
		r.impls[kind] = make(map[string]any)
	}
	r.impls[kind][name] = impl
	r.active[kind] = name
}

// RegisterTranscriber adds t under name and makes it active.
func (r *Registry) RegisterTranscriber(name string, t Transcriber) { r.register(KindTranscription, name, t) }

// RegisterDiarizer adds d under name and makes it active.
func (r *Registry) RegisterDiarizer(name string, d Diarizer) { r.register(KindDiarization, name, d) }

// RegisterVerifier adds v under name and makes it active.
func (r *Registry) RegisterVerifier(name string, v SpeakerVerifier) {
	r.register(KindSpeakerVerification, name, v)
}

// RegisterSynthesizer adds s under name and makes it active.
func (r *Registry) RegisterSynthesizer(name string, s Synthesizer) {
	r.register(KindNarrativeSynthesis, name, s)
}

// Use switches the active implementation of kind to name.
func (r *Registry) Use(kind Kind, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.impls[kind][name]; !ok {
		return fmt.Errorf("%s provider %q: %w", kind, name, ErrNotRegistered)
	}
	r.active[kind] = name
	return nil
}

// HasProvider reports whether kind has an active implementation.
func (r *Registry) HasProvider(kind Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.impls[kind][r.active[kind]]
	return ok
}

// Active returns the active implementation name of kind.
func (r *Registry) Active(kind Kind) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[kind]
}

// Names lists the registered implementation names of kind.
func (r *Registry) Names(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.impls[kind]))
}

func (r *Registry) get(kind Kind) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	impl, ok := r.impls[kind][r.active[kind]]
	if !ok {
		return nil, fmt.Errorf("%s: %w", kind, ErrNotRegistered)
	}
	return impl, nil
}

// Transcriber returns the active transcription provider.
func (r *Registry) Transcriber() (Transcriber, error) {
	impl, err := r.get(KindTranscription)
	if err != nil {
		return nil, err
	}
	return impl.(Transcriber), nil
}

// Diarizer returns the active diarization provider.
func (r *Registry) Diarizer() (Diarizer, error) {
	impl, err := r.get(KindDiarization)
	if err != nil {
		return nil, err
	}
	return impl.(Diarizer), nil
}

// Verifier returns the active speaker verification provider.
func (r *Registry) Verifier() (SpeakerVerifier, error) {
	impl, err := r.get(KindSpeakerVerification)
	if err != nil {
		return nil, err
	}
	return impl.(SpeakerVerifier), nil
}

// Synthesizer returns the active narrative synthesis provider.
func (r *Registry) Synthesizer() (Synthesizer, error) {
	impl, err := r.get(KindNarrativeSynthesis)
	if err != nil {
		return nil, err
	}
	return impl.(Synthesizer), nil
}
