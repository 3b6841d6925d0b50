package engine

import (
	"sync"

	"github.com/edgeorch/orchestrator/pkg/orcherr"
)

// DependencyGraph stores the DAG of DependencyEdges between components,
// keyed by source component name.
type DependencyGraph struct {
	mu    sync.RWMutex
	edges map[string]map[string]State // from -> to -> strictest required state
}

// NewDependencyGraph returns an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{edges: make(map[string]map[string]State)}
}

// AddDependency records from -> to with required, de-duplicating and
// keeping the strictest (highest-order) required state seen for the pair.
func (g *DependencyGraph) AddDependency(from, to string, required State) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.edges[from] == nil {
		g.edges[from] = make(map[string]State)
	}
	existing, ok := g.edges[from][to]
	if !ok || order[required] > order[existing] {
		g.edges[from][to] = required
	}
}

// Edges returns a snapshot of from's outgoing edges.
func (g *DependencyGraph) Edges(from string) map[string]State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]State, len(g.edges[from]))
	for to, req := range g.edges[from] {
		out[to] = req
	}
	return out
}

// SatisfiedBy reports whether every outgoing edge of from points to a
// component whose state (as reported by stateOf) meets its required
// state.
func (g *DependencyGraph) SatisfiedBy(from string, stateOf func(name string) (State, bool)) bool {
	for to, required := range g.Edges(from) {
		s, ok := stateOf(to)
		if !ok || !s.AtLeast(required) {
			return false
		}
	}
	return true
}

// TopoOrder returns nodes in leaves-first (dependency-first) order:
// every node appears after all nodes it depends on. names restricts the
// computation to the given node set (e.g. a target set's transitive
// closure); names with no recorded edges are treated as independent
// roots. Returns an error naming the cycle's last-touched node if names
// contains a cycle.
func (g *DependencyGraph) TopoOrder(names []string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	inSet := make(map[string]bool, len(names))
	for _, n := range names {
		inSet[n] = true
	}

	// Kahn's algorithm over in-degree computed from the outgoing edges
	// restricted to the given node set (an edge from->to means "from
	// depends on to", so to must be scheduled before from: in-degree
	// counts unresolved dependencies).
	inDegree := make(map[string]int, len(names))
	for _, n := range names {
		inDegree[n] = 0
	}
	for from, tos := range g.edges {
		if !inSet[from] {
			continue
		}
		for to := range tos {
			if inSet[to] {
				inDegree[from]++
			}
		}
	}

	var queue []string
	for _, n := range names {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	var order []string
	lastTouched := ""
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		lastTouched = n

		// n becoming available unblocks any node depending on n.
		for from, tos := range g.edges {
			if !inSet[from] {
				continue
			}
			if _, dependsOnN := tos[n]; dependsOnN {
				inDegree[from]--
				if inDegree[from] == 0 {
					queue = append(queue, from)
				}
			}
		}
	}

	if len(order) != len(names) {
		cycleNode := lastTouched
		for _, n := range names {
			if !contains(order, n) {
				cycleNode = n
			}
		}
		return nil, orcherr.NewCycle("dependency cycle").WithComponent(cycleNode)
	}

	return order, nil
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
