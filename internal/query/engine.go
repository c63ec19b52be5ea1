// Package query implements the read side of the timeline model: range and
// overlap queries across lanes, wake-chain traversal over the causal graph,
// and lane-relative neighbor lookups.
//
// The engine never mutates the timeline. Every result is an immutable
// snapshot (timeline.View), so callers hold results without any locking
// protocol and queries run safely alongside writes to other lanes.
package query

import (
	"container/heap"
	"iter"

	"github.com/lanetrace/lanetrace/internal/timeline"
	"github.com/lanetrace/lanetrace/internal/trace"
)

// Engine answers structural queries over one timeline.
type Engine struct {
	tl *timeline.Timeline

	// maxDepth is the wake-chain traversal cap applied when the caller does
	// not pass an explicit depth.
	maxDepth int
}

// New creates a query engine over tl, taking the default wake-chain depth
// cap from the timeline's configuration.
func New(tl *timeline.Timeline) *Engine {
	return &Engine{tl: tl, maxDepth: tl.Options().CausalCycleMaxDepth}
}

// Overlapping returns every interval whose span intersects [t0, t1], across
// all lanes, ascending by start time with lane id (then insertion seq) as
// tie-break. The sequence is lazy, finite, and restartable; each restart
// queries a fresh snapshot.
func (e *Engine) Overlapping(t0, t1 trace.Timestamp) iter.Seq[timeline.View] {
	return func(yield func(timeline.View) bool) {
		lanes := e.tl.Lanes()

		h := make(laneHeap, 0, len(lanes))
		for _, lane := range lanes {
			next, stop := iter.Pull(lane.QueryRange(t0, t1))
			defer stop()
			if v, ok := next(); ok {
				h = append(h, laneCursor{head: v, next: next})
			} else {
				stop()
			}
		}
		heap.Init(&h)

		for h.Len() > 0 {
			cur := h[0]
			if !yield(cur.head) {
				return
			}
			if v, ok := cur.next(); ok {
				h[0].head = v
				heap.Fix(&h, 0)
			} else {
				heap.Pop(&h)
			}
		}
	}
}

// laneCursor is one lane's position in the k-way merge.
type laneCursor struct {
	head timeline.View
	next func() (timeline.View, bool)
}

// laneHeap orders cursors by (start, lane id, seq) of their head interval.
type laneHeap []laneCursor

func (h laneHeap) Len() int { return len(h) }

func (h laneHeap) Less(i, j int) bool {
	a, b := h[i].head, h[j].head
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	if a.Lane != b.Lane {
		return a.Lane < b.Lane
	}
	return a.Seq < b.Seq
}

func (h laneHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *laneHeap) Push(x any) { *h = append(*h, x.(laneCursor)) }

func (h *laneHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// WakeChain follows wake edges transitively from ref, visiting breadth-first
// up to maxDepth hops (the engine's configured cap when maxDepth <= 0). The
// root itself is not included; each reachable interval appears once, in
// (depth, discovery) order.
//
// The traversal is cycle-safe: adversarial or malformed input can produce
// wake cycles (A wakes B wakes A), and a revisited ref terminates that branch
// rather than looping. Edges whose target no longer resolves (pruned under
// the lenient policy) are silently skipped.
func (e *Engine) WakeChain(ref trace.IntervalRef, maxDepth int) ([]timeline.View, error) {
	if _, err := e.tl.Lookup(ref); err != nil {
		return nil, err
	}
	if maxDepth <= 0 {
		maxDepth = e.maxDepth
	}

	type hop struct {
		ref   trace.IntervalRef
		depth int
	}
	visited := map[trace.IntervalRef]bool{ref: true}
	frontier := []hop{{ref: ref, depth: 0}}

	var chain []timeline.View
	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		if cur.depth == maxDepth {
			continue
		}
		for edge := range e.tl.Outgoing(cur.ref) {
			if edge.Kind != trace.KindWakes || visited[edge.To] {
				continue
			}
			visited[edge.To] = true
			v, err := e.tl.Lookup(edge.To)
			if err != nil {
				continue // unresolvable endpoint (lenient prune)
			}
			chain = append(chain, v)
			frontier = append(frontier, hop{ref: edge.To, depth: cur.depth + 1})
		}
	}
	return chain, nil
}

// Neighbors returns the intervals immediately before and after ref on its
// own lane ("what ran immediately before/after this one on this CPU").
// Either neighbor may be nil.
func (e *Engine) Neighbors(ref trace.IntervalRef) (prev, next *timeline.View, err error) {
	v, err := e.tl.Lookup(ref)
	if err != nil {
		return nil, nil, err
	}
	lane, ok := e.tl.Lane(v.Lane)
	if !ok {
		return nil, nil, nil
	}
	prev, next, _ = lane.Neighbors(ref)
	return prev, next, nil
}
