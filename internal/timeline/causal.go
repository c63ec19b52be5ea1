package timeline

import (
	"iter"
	"sync"

	"github.com/lanetrace/lanetrace/internal/trace"
)

// Edge is a directed causal relationship between two intervals, typically
// across lanes ("task A on lane 1 woke task B that later runs on lane 2").
//
// Edges hold only interval refs, never interval data or positions: the graph
// does not own its endpoints, so lanes may reorganize their internal index
// (for example compacting after a prune) without invalidating edges.
type Edge struct {
	From trace.IntervalRef
	To   trace.IntervalRef
	Kind trace.EdgeKind
}

// causalGraph stores directed edges and answers adjacency queries.
//
// Multiple edges between the same pair with different kinds are kept - the
// model's way of capturing several causal relationships observed between the
// same two events. Exact duplicate triples collapse to one edge.
//
// Endpoint registration is not the graph's concern; the owning Timeline
// validates refs against its registry under the configured pruning policy.
type causalGraph struct {
	mu  sync.RWMutex
	out map[trace.IntervalRef][]Edge
	in  map[trace.IntervalRef][]Edge
}

func newCausalGraph() *causalGraph {
	return &causalGraph{
		out: make(map[trace.IntervalRef][]Edge),
		in:  make(map[trace.IntervalRef][]Edge),
	}
}

// add records the edge, collapsing exact duplicates.
func (g *causalGraph) add(e Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, have := range g.out[e.From] {
		if have == e {
			return
		}
	}
	g.out[e.From] = append(g.out[e.From], e)
	g.in[e.To] = append(g.in[e.To], e)
}

// outgoing returns a restartable sequence of edges leaving ref, in insertion
// order.
func (g *causalGraph) outgoing(ref trace.IntervalRef) iter.Seq[Edge] {
	return g.adjacency(g.out, ref)
}

// incoming returns a restartable sequence of edges arriving at ref, in
// insertion order.
func (g *causalGraph) incoming(ref trace.IntervalRef) iter.Seq[Edge] {
	return g.adjacency(g.in, ref)
}

func (g *causalGraph) adjacency(index map[trace.IntervalRef][]Edge, ref trace.IntervalRef) iter.Seq[Edge] {
	return func(yield func(Edge) bool) {
		g.mu.RLock()
		edges := make([]Edge, len(index[ref]))
		copy(edges, index[ref])
		g.mu.RUnlock()

		for _, e := range edges {
			if !yield(e) {
				return
			}
		}
	}
}

// all returns every edge, in a deterministic order suitable for merging:
// grouped by from-ref insertion order is not stable across maps, so callers
// needing determinism must sort. Used by merge and snapshots.
func (g *causalGraph) all() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var edges []Edge
	for _, out := range g.out {
		edges = append(edges, out...)
	}
	return edges
}

// detach removes every edge with an endpoint in refs. Used by strict pruning.
func (g *causalGraph) detach(refs map[trace.IntervalRef]struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()

	touch := func(e Edge) bool {
		_, from := refs[e.From]
		_, to := refs[e.To]
		return from || to
	}
	for ref, edges := range g.out {
		g.out[ref] = deleteEdges(edges, touch)
		if len(g.out[ref]) == 0 {
			delete(g.out, ref)
		}
	}
	for ref, edges := range g.in {
		g.in[ref] = deleteEdges(edges, touch)
		if len(g.in[ref]) == 0 {
			delete(g.in, ref)
		}
	}
}

func deleteEdges(edges []Edge, drop func(Edge) bool) []Edge {
	kept := edges[:0]
	for _, e := range edges {
		if !drop(e) {
			kept = append(kept, e)
		}
	}
	return kept
}

// clone deep-copies the graph for merge staging.
func (g *causalGraph) clone() *causalGraph {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := newCausalGraph()
	for ref, edges := range g.out {
		out.out[ref] = append([]Edge(nil), edges...)
	}
	for ref, edges := range g.in {
		out.in[ref] = append([]Edge(nil), edges...)
	}
	return out
}

// edgeCount returns the total number of edges.
func (g *causalGraph) edgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := 0
	for _, edges := range g.out {
		n += len(edges)
	}
	return n
}
