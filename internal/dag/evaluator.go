package dag

// Unmet returns the dependencies of id for which settled reports false, in id
// order. An empty result means id may be admitted.
func Unmet(g *Graph, id string, settled func(dependency string) bool) []string {
	var unmet []string
	for _, dep := range g.Dependencies(id) {
		if !settled(dep) {
			unmet = append(unmet, dep)
		}
	}
	return unmet
}

// Ready returns the dependents of id whose dependencies are now all settled.
// Used to pick the cascade after id completes.
func Ready(g *Graph, id string, settled func(dependency string) bool) []string {
	var ready []string
	for _, child := range g.Dependents(id) {
		if len(Unmet(g, child, settled)) == 0 {
			ready = append(ready, child)
		}
	}
	return ready
}
