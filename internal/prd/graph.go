package prd

import "errors"

// ErrDependencyCycle indicates tasks that depend on each other in a loop.
// A cycle makes the PRD impossible to finish, so the planner rejects it
// up front instead of letting the iteration loop spin.
var ErrDependencyCycle = errors.New("dependency cycle between tasks")

// Graph is an explicit dependency graph over task ids. Edges run from a
// dependency to its dependents, so in-degree zero means ready.
type Graph struct {
	order      []string
	dependents map[string][]string
	inDegree   map[string]int
}

// BuildGraph constructs the dependency graph for the PRD. Dependency ids
// that do not resolve to a task in the same PRD are ignored here; they
// never form cycles but still block selection in NextTask.
func BuildGraph(p *PRD) *Graph {
	g := &Graph{
		dependents: make(map[string][]string),
		inDegree:   make(map[string]int),
	}

	for i := range p.UserStories {
		id := p.UserStories[i].ID
		g.order = append(g.order, id)
		if _, ok := g.inDegree[id]; !ok {
			g.inDegree[id] = 0
		}
	}

	for i := range p.UserStories {
		t := &p.UserStories[i]
		for _, dep := range t.Dependencies {
			if p.Task(dep) == nil {
				continue
			}
			g.dependents[dep] = append(g.dependents[dep], t.ID)
			g.inDegree[t.ID]++
		}
	}

	return g
}

// DetectCycle runs Kahn's algorithm and returns the ids left unprocessed,
// i.e. the tasks stuck in (or downstream of) a cycle, in original PRD
// order. Returns nil when the graph is acyclic.
func (g *Graph) DetectCycle() []string {
	inDegree := make(map[string]int, len(g.inDegree))
	for id, d := range g.inDegree {
		inDegree[id] = d
	}

	var queue []string
	for _, id := range g.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	processed := make(map[string]bool, len(g.order))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed[id] = true

		for _, dep := range g.dependents[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	var stuck []string
	for _, id := range g.order {
		if !processed[id] {
			stuck = append(stuck, id)
		}
	}
	return stuck
}

// CheckCycles is a convenience wrapper that returns ErrDependencyCycle
// when the PRD's dependency graph contains a cycle.
func CheckCycles(p *PRD) error {
	if stuck := BuildGraph(p).DetectCycle(); stuck != nil {
		return ErrDependencyCycle
	}
	return nil
}
