package dag

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrCycle is returned when an edge would make the graph cyclic.
var ErrCycle = errors.New("dependency cycle")

type set map[string]struct{}

// Graph is the dependency graph between action ids. Every edge is stored in
// both directions under one lock, so a dependent always points back to its
// dependency. Ids need not be registered actions.
type Graph struct {
	mu           sync.RWMutex
	dependencies map[string]set // id -> ids it waits for
	dependents   map[string]set // id -> ids waiting for it
}

// NewGraph allocates an empty Graph.
func NewGraph() *Graph {
	return &Graph{
		dependencies: make(map[string]set),
		dependents:   make(map[string]set),
	}
}

// AddEdge records that dependent must not run before dependency has run.
// Adding an existing edge is a no-op.
func (g *Graph) AddEdge(dependency, dependent string) error {
	if dependency == "" || dependent == "" {
		return fmt.Errorf("dag: empty id in edge %q -> %q", dependency, dependent)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if dependency == dependent || g.reaches(dependent, dependency) {
		return fmt.Errorf("%w: %s -> %s", ErrCycle, dependency, dependent)
	}
	link(g.dependencies, dependent, dependency)
	link(g.dependents, dependency, dependent)
	return nil
}

// RemoveEdge deletes one edge. It reports whether the edge existed.
func (g *Graph) RemoveEdge(dependency, dependent string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.dependencies[dependent][dependency]; !ok {
		return false
	}
	unlink(g.dependencies, dependent, dependency)
	unlink(g.dependents, dependency, dependent)
	return true
}

// SetDependencies replaces the full dependency set of id. If any new edge
// would close a cycle the previous set is restored and ErrCycle returned.
func (g *Graph) SetDependencies(id string, deps []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	old := sorted(g.dependencies[id])
	for _, dep := range old {
		unlink(g.dependencies, id, dep)
		unlink(g.dependents, dep, id)
	}
	for i, dep := range deps {
		if dep == "" || dep == id || g.reaches(id, dep) {
			for _, added := range deps[:i] {
				unlink(g.dependencies, id, added)
				unlink(g.dependents, added, id)
			}
			for _, prev := range old {
				link(g.dependencies, id, prev)
				link(g.dependents, prev, id)
			}
			return fmt.Errorf("%w: %s -> %s", ErrCycle, dep, id)
		}
		link(g.dependencies, id, dep)
		link(g.dependents, dep, id)
	}
	return nil
}

// RemoveNode deletes every edge touching id.
func (g *Graph) RemoveNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for dep := range g.dependencies[id] {
		unlink(g.dependents, dep, id)
	}
	for child := range g.dependents[id] {
		unlink(g.dependencies, child, id)
	}
	delete(g.dependencies, id)
	delete(g.dependents, id)
}

// Dependencies returns the ids id waits for, sorted.
func (g *Graph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sorted(g.dependencies[id])
}

// Dependents returns the ids waiting for id, sorted.
func (g *Graph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sorted(g.dependents[id])
}

// EdgeCount returns the total number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, s := range g.dependencies {
		n += len(s)
	}
	return n
}

// reaches reports whether to is reachable from from along dependent edges.
// Caller holds g.mu.
func (g *Graph) reaches(from, to string) bool {
	seen := set{from: {}}
	stack := []string{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		for next := range g.dependents[n] {
			if _, ok := seen[next]; !ok {
				seen[next] = struct{}{}
				stack = append(stack, next)
			}
		}
	}
	return false
}

func link(m map[string]set, from, to string) {
	s, ok := m[from]
	if !ok {
		s = make(set)
		m[from] = s
	}
	s[to] = struct{}{}
}

func unlink(m map[string]set, from, to string) {
	delete(m[from], to)
	if len(m[from]) == 0 {
		delete(m, from)
	}
}

func sorted(s set) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
