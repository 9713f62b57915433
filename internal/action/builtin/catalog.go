// Package builtin provides the handler types that can be declared in the
// YAML config, keyed by their type string.
package builtin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gyaneshwarpardhi/actionflow/internal/action"
)

// Factory validates params and builds a handler for the action id.
type Factory func(id string, params map[string]interface{}) (action.Handler, error)

// Catalog maps handler type strings to factories.
// It is safe for concurrent reads; Register should only be called at startup.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Default returns a Catalog with the log, sleep and webhook types.
func Default() *Catalog {
	c := NewCatalog()
	c.Register("log", newLog)
	c.Register("sleep", newSleep)
	c.Register("webhook", newWebhook)
	return c
}

// Register adds a factory. Panics on duplicate type to surface misconfiguration early.
func (c *Catalog) Register(typ string, f Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.factories[typ]; exists {
		panic(fmt.Sprintf("handler catalog: duplicate type %q", typ))
	}
	c.factories[typ] = f
}

// Build returns a handler of type typ for action id.
func (c *Catalog) Build(typ, id string, params map[string]interface{}) (action.Handler, error) {
	c.mu.RLock()
	f, ok := c.factories[typ]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no handler registered for type %q", typ)
	}
	h, err := f(id, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", typ, err)
	}
	return h, nil
}

// Types returns all registered type strings, sorted.
func (c *Catalog) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.factories))
	for k := range c.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
