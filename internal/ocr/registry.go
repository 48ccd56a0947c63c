package ocr

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Key identifies one warm engine instance.
type Key struct {
	Kind      string
	Languages string
	UseGPU    bool
}

// NewKey normalizes the language set (sorted, joined with "+").
func NewKey(kind string, languages []string, useGPU bool) Key {
	langs := make([]string, 0, len(languages))
	for _, l := range languages {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	sort.Strings(langs)
	return Key{Kind: kind, Languages: strings.Join(langs, "+"), UseGPU: useGPU}
}

// LanguageList splits the key's language set.
func (k Key) LanguageList() []string {
	if k.Languages == "" {
		return nil
	}
	return strings.Split(k.Languages, "+")
}

func (k Key) String() string {
	return fmt.Sprintf("%s[%s gpu=%t]", k.Kind, k.Languages, k.UseGPU)
}

// Factory builds an engine for a key.
type Factory func(key Key) (Engine, error)

// ErrUnknownEngine is returned for a kind with no registered factory.
var ErrUnknownEngine = errors.New("unknown OCR engine")

type entry struct {
	once   sync.Once
	engine Engine
	err    error
}

// Registry memoizes engines per key. Concurrent first use of a key blocks
// until one initialization finishes; a failed initialization is cached until
// Reset.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	entries   map[Key]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		entries:   make(map[Key]*entry),
	}
}

// Register installs the factory for an engine kind.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Kinds returns the registered engine kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Get returns the engine for key, initializing it on first use.
func (r *Registry) Get(key Key) (Engine, error) {
	r.mu.Lock()
	f, ok := r.factories[key.Kind]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, key.Kind)
	}
	e, ok := r.entries[key]
	if !ok {
		e = &entry{}
		r.entries[key] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		slog.Debug("initializing OCR engine", "engine", key.String())
		e.engine, e.err = f(key)
		if e.err != nil {
			slog.Error("OCR engine initialization failed", "engine", key.String(), "error", e.err)
		}
	})
	return e.engine, e.err
}

// Reset drops the cached entry for key, closing a live engine.
func (r *Registry) Reset(key Key) error {
	r.mu.Lock()
	e, ok := r.entries[key]
	delete(r.entries, key)
	r.mu.Unlock()
	if ok && e.engine != nil {
		return e.engine.Close()
	}
	return nil
}

// Close closes every initialized engine and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[Key]*entry)
	r.mu.Unlock()

	var errs []error
	for key, e := range entries {
		if e.engine == nil {
			continue
		}
		if err := e.engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
