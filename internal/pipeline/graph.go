package pipeline

import (
	"fmt"
	"time"

	"github.com/videogen/orchestrator/pkg/models"
)

// Graph is a validated DAG of stage definitions. Construction fails on any
// cycle or dangling predecessor, so a job-level graph is a DAG by construction.
type Graph struct {
	defs  map[models.StageName]Definition
	order []models.StageName
}

// New builds and validates a Graph from definitions in declared order.
func New(defs []Definition) (*Graph, error) {
	g := &Graph{defs: make(map[models.StageName]Definition, len(defs))}
	for _, d := range defs {
		if _, ok := g.defs[d.Name]; ok {
			return nil, fmt.Errorf("duplicate stage definition %q", d.Name)
		}
		g.defs[d.Name] = d
		g.order = append(g.order, d.Name)
	}
	for _, d := range defs {
		for _, p := range d.Predecessors {
			if _, ok := g.defs[p]; !ok {
				return nil, fmt.Errorf("stage %q declares unknown predecessor %q", d.Name, p)
			}
			if p == d.Name {
				return nil, fmt.Errorf("stage %q depends on itself", d.Name)
			}
		}
	}
	if err := g.detectCycles(); err != nil {
		return nil, err
	}
	return g, nil
}

// detectCycles runs a three-color DFS over predecessor edges.
func (g *Graph) detectCycles() error {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[models.StageName]int, len(g.defs))

	var visit func(name models.StageName) error
	visit = func(name models.StageName) error {
		color[name] = grey
		for _, p := range g.defs[name].Predecessors {
			switch color[p] {
			case grey:
				return fmt.Errorf("cycle detected through stages %q and %q", name, p)
			case white:
				if err := visit(p); err != nil {
					return err
				}
			}
		}
		color[name] = black
		return nil
	}

	for _, name := range g.order {
		if color[name] == white {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// Definition returns the static definition for a stage.
func (g *Graph) Definition(name models.StageName) (Definition, bool) {
	d, ok := g.defs[name]
	return d, ok
}

// Order returns stage names in declared pipeline order. The returned slice
// must not be modified.
func (g *Graph) Order() []models.StageName {
	return g.order
}

// Contains reports whether the graph defines the named stage.
func (g *Graph) Contains(name models.StageName) bool {
	_, ok := g.defs[name]
	return ok
}

// ReadyStages returns, in declared order, every stage that is pending and
// whose predecessors are all completed. Stages returned together carry no
// dependency edge between them and may be dispatched concurrently.
func (g *Graph) ReadyStages(statuses map[models.StageName]models.StageStatus) []models.StageName {
	var ready []models.StageName
	for _, name := range g.order {
		if statuses[name] != models.StageStatusPending {
			continue
		}
		eligible := true
		for _, p := range g.defs[name].Predecessors {
			if statuses[p] != models.StageStatusCompleted {
				eligible = false
				break
			}
		}
		if eligible {
			ready = append(ready, name)
		}
	}
	return ready
}

// Downstream returns every stage that transitively depends on name, in
// declared order. Used to mark dependents skipped after a terminal failure.
func (g *Graph) Downstream(name models.StageName) []models.StageName {
	affected := map[models.StageName]bool{name: true}
	// Definitions are not required to be listed in topological order, so
	// iterate to a fixpoint.
	for changed := true; changed; {
		changed = false
		for _, candidate := range g.order {
			if affected[candidate] {
				continue
			}
			for _, p := range g.defs[candidate].Predecessors {
				if affected[p] {
					affected[candidate] = true
					changed = true
					break
				}
			}
		}
	}
	var out []models.StageName
	for _, candidate := range g.order {
		if candidate != name && affected[candidate] {
			out = append(out, candidate)
		}
	}
	return out
}

// EstimatedDuration sums per-stage estimates along the declared order. The
// two parallel branches overlap in practice, so this is an upper bound used
// only as a completion hint.
func (g *Graph) EstimatedDuration() time.Duration {
	var total time.Duration
	for _, name := range g.order {
		total += g.defs[name].Estimate
	}
	return total
}
