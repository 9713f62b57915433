package action

import (
	"fmt"
	"sort"
	"sync"
)

// Registry owns every Action by id. It only stores data; execution policy
// lives in the engine.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]*Action
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]*Action)}
}

// Register stores a, replacing any action with the same id. It reports
// whether an existing action was replaced.
func (r *Registry) Register(a *Action) (replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, replaced = r.actions[a.ID()]
	r.actions[a.ID()] = a
	return replaced
}

// Remove deletes an action. It reports whether the id was registered.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.actions[id]
	delete(r.actions, id)
	return ok
}

// Get returns the action registered under id.
func (r *Registry) Get(id string) (*Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return a, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.actions[id]
	return ok
}

// List returns all actions ordered by id.
func (r *Registry) List() []*Action {
	r.mu.RLock()
	out := make([]*Action, 0, len(r.actions))
	for _, a := range r.actions {
		out = append(out, a)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Len returns the number of registered actions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}
