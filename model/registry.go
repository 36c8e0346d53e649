package model

import (
	"errors"
	"slices"
	"sync"

	"github.com/agnivade/levenshtein"
)

var ErrModelNotRegistered = errors.New("model: not registered")

// Constructor returns a fresh model with its default hyperparameters.
type Constructor func() Model

// RegistryError carries the registry operation and model name alongside
// the underlying error.
type RegistryError struct {
	Op   string
	Name string
	Err  error

	// Suggestion is the closest registered name, if any is close enough.
	Suggestion string
}

func (e *RegistryError) Error() string {
	msg := "model: " + e.Op + " '" + e.Name + "': " + e.Err.Error()
	if e.Suggestion != "" {
		msg += " (did you mean '" + e.Suggestion + "'?)"
	}
	return msg
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}

// Registry maps model names to constructors. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Constructor
}

func NewRegistry() *Registry {
	return &Registry{models: make(map[string]Constructor)}
}

// Register adds a constructor. It reports an error for a nil constructor or
// a name that is already taken.
func (r *Registry) Register(name string, c Constructor) error {
	if c == nil {
		return &RegistryError{Op: "register", Name: name, Err: errors.New("nil constructor")}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.models[name]; ok {
		return &RegistryError{Op: "register", Name: name, Err: errors.New("already registered")}
	}
	r.models[name] = c
	return nil
}

// Unregister removes a model and reports whether it existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.models[name]
	delete(r.models, name)
	return ok
}

func (r *Registry) Get(name string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.models[name]
	return c, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.models)
}

// New constructs the named model. Unknown names return a *RegistryError
// wrapping ErrModelNotRegistered.
func (r *Registry) New(name string) (Model, error) {
	c, ok := r.Get(name)
	if !ok {
		return nil, &RegistryError{
			Op:         "new",
			Name:       name,
			Err:        ErrModelNotRegistered,
			Suggestion: r.suggest(name),
		}
	}
	return c(), nil
}

// suggest returns the registered name closest to name, or "" when nothing
// is within a third of the name's length.
func (r *Registry) suggest(name string) string {
	best, bestDist := "", len(name)/3+1
	for _, candidate := range r.List() {
		if d := levenshtein.ComputeDistance(name, candidate); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}

// DefaultRegistry holds the models that register themselves from init.
var DefaultRegistry = NewRegistry()

// Register adds a model to DefaultRegistry and panics on failure. It is
// meant to be called from init.
func Register(name string, c Constructor) {
	if err := DefaultRegistry.Register(name, c); err != nil {
		panic(err)
	}
}

func New(name string) (Model, error) {
	return DefaultRegistry.New(name)
}

func List() []string {
	return DefaultRegistry.List()
}
