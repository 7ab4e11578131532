package registry

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// ErrDuplicate is returned when a name is registered twice.
var ErrDuplicate = errors.New("already registered")

// Registry maps case-insensitive names to constructors for one kind of component
// (source providers, secret backends).
type Registry[C any] struct {
	kind string

	mu      sync.RWMutex
	entries map[string]C
}

// New allocates a registry. kind is only used in error messages.
func New[C any](kind string) *Registry[C] {
	return &Registry[C]{kind: kind, entries: make(map[string]C)}
}

// Register adds a constructor by name.
func (r *Registry[C]) Register(name string, constructor C) error {
	key := normalize(name)
	if key == "" {
		return fmt.Errorf("registry: %s name required", r.kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[key]; exists {
		return fmt.Errorf("registry: %s %s %w", r.kind, key, ErrDuplicate)
	}
	r.entries[key] = constructor
	return nil
}

// Get fetches a constructor by name.
func (r *Registry[C]) Get(name string) (C, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	constructor, ok := r.entries[normalize(name)]
	return constructor, ok
}

// Names returns the sorted registered names.
func (r *Registry[C]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.entries))
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
