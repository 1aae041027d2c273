package style

import (
	"sort"
	"strings"
	"sync"
)

// Registry maps lowercase style names to definitions. It is filled once at
// startup and only read afterwards.
type Registry struct {
	mu     sync.RWMutex
	styles map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{
		styles: make(map[string]Definition),
	}
}

// Register stores def under its lowercase name unless that name is taken.
// It reports whether def was stored. A definition without a name is a
// configuration bug and panics.
func (r *Registry) Register(def Definition) bool {
	key := normalizeName(def.Name)
	if key == "" {
		panic("style: cannot register a style without a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.styles[key]; exists {
		return false
	}
	r.styles[key] = def.Clone()
	return true
}

// Get resolves name case-insensitively and returns a private copy.
func (r *Registry) Get(name string) (Definition, bool) {
	key := normalizeName(name)
	if key == "" {
		return Definition{}, false
	}

	r.mu.RLock()
	def, ok := r.styles[key]
	r.mu.RUnlock()
	if !ok {
		return Definition{}, false
	}
	return def.Clone(), true
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.styles))
	for name := range r.styles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.styles)
}

// LoadDir registers every style found in dir. Nothing is registered when
// any source is malformed.
func (r *Registry) LoadDir(dir string) error {
	defs, err := Load(dir)
	if err != nil {
		return err
	}
	for _, def := range defs {
		r.Register(def)
	}
	return nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
