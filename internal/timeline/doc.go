// Package timeline implements the core timeline data model for tracing and
// profiling tools: time-bounded events on a shared axis, grouped into
// per-resource lanes, connected by cross-lane causal edges.
//
// ARCHITECTURE:
//
// Ownership is strictly hierarchical. The Timeline owns the entity table,
// every Lane, and the causal graph; each Lane owns its intervals. The graph
// holds only stable interval refs (non-owning), so a lane can reorganize its
// internal index - for example compacting after a prune - without
// invalidating edges.
//
// Lane Invariant:
// A lane models one resource doing one thing at a time. Sealed intervals in
// a lane never overlap (touching is fine), and at most one interval per lane
// is open. Both are enforced explicitly (OVERLAP_VIOLATION, LANE_BUSY)
// rather than assumed, because malformed producer input can easily violate
// them.
//
// Error Policy:
// Invariant violations are returned to the caller as typed errors, never
// silently corrected. A timeline with a silently "fixed" overlap is worse
// than a rejected insert for a tool whose entire value is fidelity to ground
// truth.
//
// Ordering:
// Sealed intervals order by (start, insertion seq). The insertion sequence
// comes from a monotonic logical counter, never from wall-clock arrival, so
// replays and merges of the same data order identically.
//
// Amendment:
// Trace data arriving out of order or in fragments is reconciled through
// Merge, which stages every change on a private copy and commits only on
// full success - a failed merge leaves the destination untouched.
package timeline
