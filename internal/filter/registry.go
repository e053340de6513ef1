package filter

import (
	"fmt"
	"sort"
	"sync"

	derrors "git.home.luguber.info/inful/docpipe/internal/foundation/errors"
)

// Registry maps aliases to filters.
type Registry struct {
	mu      sync.RWMutex
	byAlias map[string]Filter
	order   []Filter
}

// NewRegistry creates a new empty filter registry.
func NewRegistry() *Registry {
	return &Registry{byAlias: make(map[string]Filter)}
}

// Register adds a filter under all of its aliases.
// Returns an error if any alias is already taken.
func (r *Registry) Register(f Filter) error {
	if f == nil {
		return fmt.Errorf("cannot register nil filter")
	}

	info := f.Info()
	if len(info.Aliases) == 0 {
		return fmt.Errorf("filter has no aliases")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, alias := range info.Aliases {
		if alias == "" {
			return fmt.Errorf("filter %s has an empty alias", info.Alias())
		}
		if _, exists := r.byAlias[alias]; exists {
			return fmt.Errorf("filter alias %s already registered", alias)
		}
	}
	for _, alias := range info.Aliases {
		r.byAlias[alias] = f
	}
	r.order = append(r.order, f)
	return nil
}

// MustRegister registers filters and panics on error. Used for built-in
// tables.
func (r *Registry) MustRegister(filters ...Filter) {
	for _, f := range filters {
		if err := r.Register(f); err != nil {
			panic(err)
		}
	}
}

// Lookup returns the filter for alias. Unknown aliases are user errors.
func (r *Registry) Lookup(alias string) (Filter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.byAlias[alias]
	if !ok {
		return nil, derrors.UserFeedback(fmt.Sprintf("no filter named '%s' is available", alias)).
			WithContext("filter", alias).
			Build()
	}
	return f, nil
}

// Has checks if an alias is registered.
func (r *Registry) Has(alias string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byAlias[alias]
	return ok
}

// List returns each registered filter once, sorted by primary alias.
func (r *Registry) List() []Filter {
	r.mu.RLock()
	out := append([]Filter(nil), r.order...)
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Info().Alias() < out[j].Info().Alias() })
	return out
}

// Count returns the number of registered filters.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
