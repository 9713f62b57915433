package dag_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/gyaneshwarpardhi/actionflow/internal/config"
	"github.com/gyaneshwarpardhi/actionflow/internal/dag"
)

func buildTestGraph(t *testing.T) *dag.Graph {
	t.Helper()
	cfg := &config.Config{
		Version: "v1",
		Actions: []config.ActionDef{
			{ID: "fetch"},
			{ID: "transform", DependsOn: []string{"fetch"}},
			{ID: "load", DependsOn: []string{"transform"}},
			{ID: "notify", DependsOn: []string{"load", "transform"}},
		},
	}
	g, err := dag.Build(cfg)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	return g
}

func TestBuild_Edges(t *testing.T) {
	g := buildTestGraph(t)

	if n := g.EdgeCount(); n != 4 {
		t.Errorf("expected 4 edges, got %d", n)
	}
	if got := g.Dependencies("notify"); !reflect.DeepEqual(got, []string{"load", "transform"}) {
		t.Errorf("expected notify deps [load transform], got %v", got)
	}
	if got := g.Dependents("transform"); !reflect.DeepEqual(got, []string{"load", "notify"}) {
		t.Errorf("expected transform dependents [load notify], got %v", got)
	}
}

func TestBuild_Cycle(t *testing.T) {
	cfg := &config.Config{
		Version: "v1",
		Actions: []config.ActionDef{
			{ID: "a", DependsOn: []string{"c"}},
			{ID: "b", DependsOn: []string{"a"}},
			{ID: "c", DependsOn: []string{"b"}},
		},
	}
	if _, err := dag.Build(cfg); !errors.Is(err, dag.ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
}

func TestAddEdge_SelfLoop(t *testing.T) {
	g := dag.NewGraph()
	if err := g.AddEdge("a", "a"); !errors.Is(err, dag.ErrCycle) {
		t.Fatalf("expected ErrCycle for self edge, got %v", err)
	}
	if g.EdgeCount() != 0 {
		t.Errorf("self edge should not be stored")
	}
}

func TestAddEdge_Idempotent(t *testing.T) {
	g := dag.NewGraph()
	for i := 0; i < 3; i++ {
		if err := g.AddEdge("a", "b"); err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
	}
	if n := g.EdgeCount(); n != 1 {
		t.Errorf("expected 1 edge, got %d", n)
	}
}

func TestRemoveNode_ClearsBothDirections(t *testing.T) {
	g := buildTestGraph(t)
	g.RemoveNode("transform")

	if got := g.Dependencies("load"); len(got) != 0 {
		t.Errorf("load should have no deps left, got %v", got)
	}
	if got := g.Dependents("fetch"); len(got) != 0 {
		t.Errorf("fetch should have no dependents left, got %v", got)
	}
	if got := g.Dependencies("notify"); !reflect.DeepEqual(got, []string{"load"}) {
		t.Errorf("expected notify deps [load], got %v", got)
	}
}

func TestRemoveEdge(t *testing.T) {
	g := buildTestGraph(t)
	if !g.RemoveEdge("load", "notify") {
		t.Fatal("expected edge load -> notify to exist")
	}
	if g.RemoveEdge("load", "notify") {
		t.Error("second removal should report false")
	}
	if got := g.Dependents("load"); len(got) != 0 {
		t.Errorf("load should have no dependents, got %v", got)
	}
}

func TestSetDependencies_RestoresOnCycle(t *testing.T) {
	g := buildTestGraph(t)

	// fetch -> transform -> load, so fetch may not wait for load.
	err := g.SetDependencies("fetch", []string{"other", "load"})
	if !errors.Is(err, dag.ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
	if got := g.Dependencies("fetch"); len(got) != 0 {
		t.Errorf("fetch deps should be unchanged (none), got %v", got)
	}
	if got := g.Dependents("other"); len(got) != 0 {
		t.Errorf("partial edge to other should be rolled back, got %v", got)
	}

	if err := g.SetDependencies("notify", []string{"fetch"}); err != nil {
		t.Fatalf("SetDependencies: %v", err)
	}
	if got := g.Dependencies("notify"); !reflect.DeepEqual(got, []string{"fetch"}) {
		t.Errorf("expected notify deps [fetch], got %v", got)
	}
	if got := g.Dependents("load"); len(got) != 0 {
		t.Errorf("old edge load -> notify should be gone, got %v", got)
	}
}

func TestUnmetAndReady(t *testing.T) {
	g := buildTestGraph(t)
	done := map[string]bool{"fetch": true, "transform": true}
	settled := func(id string) bool { return done[id] }

	if got := dag.Unmet(g, "notify", settled); !reflect.DeepEqual(got, []string{"load"}) {
		t.Errorf("expected notify to wait for [load], got %v", got)
	}
	if got := dag.Unmet(g, "load", settled); len(got) != 0 {
		t.Errorf("load should be admissible, got unmet %v", got)
	}

	// Only load becomes ready after transform; notify still needs load.
	if got := dag.Ready(g, "transform", settled); !reflect.DeepEqual(got, []string{"load"}) {
		t.Errorf("expected ready [load], got %v", got)
	}
	done["load"] = true
	if got := dag.Ready(g, "load", settled); !reflect.DeepEqual(got, []string{"notify"}) {
		t.Errorf("expected ready [notify], got %v", got)
	}
}
