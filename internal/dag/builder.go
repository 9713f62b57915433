package dag

import (
	"fmt"

	"github.com/gyaneshwarpardhi/actionflow/internal/config"
)

// Build derives the dependency graph from the declared depends_on lists.
// It fails on the first edge that would close a cycle.
func Build(cfg *config.Config) (*Graph, error) {
	g := NewGraph()
	for _, a := range cfg.Actions {
		for _, dep := range a.DependsOn {
			if err := g.AddEdge(dep, a.ID); err != nil {
				return nil, fmt.Errorf("action %s: %w", a.ID, err)
			}
		}
	}
	return g, nil
}
