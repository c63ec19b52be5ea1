package timeline

import (
	"github.com/google/uuid"

	"github.com/lanetrace/lanetrace/internal/config"
	"github.com/lanetrace/lanetrace/internal/trace"
)

// Merge reconciles another independently built timeline (for example a
// second trace-capture shard) into this one.
//
// The algorithm: (1) union the entity tables, re-keying by the dedup key;
// (2) re-insert every sealed interval from other through the normal lane
// insert path, so overlap violations surface as errors instead of silent
// corruption; (3) translate and re-add every causal edge through the
// old-ref-to-new-ref map built in step 2.
//
// Merge is all-or-nothing: it stages every change on a private copy and
// commits only on full success, so a failed merge leaves this timeline
// unchanged. Under the strict pruning policy, open intervals in other
// (without allow_open_merge) and edges with unresolvable endpoints abort the
// merge; under lenient they are skipped. Overlap conflicts abort under both
// policies.
//
// Deadlock safety: the two timelines are locked in canonical (instance id)
// order, so two goroutines merging in opposite directions cannot invert the
// lock order.
func (t *Timeline) Merge(other *Timeline) error {
	if t == other {
		return newMergeConflictError("cannot merge a timeline into itself", nil)
	}

	if t.id < other.id {
		t.mu.Lock()
		other.mu.RLock()
	} else {
		other.mu.RLock()
		t.mu.Lock()
	}
	defer t.mu.Unlock()
	defer other.mu.RUnlock()

	staging := t.cloneLocked()

	// Step 1: union entity tables, building the entity translation map.
	entMap := make(map[trace.EntityRef]trace.EntityRef, len(other.entities))
	for _, ent := range other.entitiesLocked() {
		entMap[ent.Ref] = staging.internLocked(ent.Key, ent.Label)
	}

	// Step 2: re-insert other's intervals lane by lane, in canonical order,
	// building the interval ref translation map.
	strict := t.opts.PruningPolicy == config.PruneStrict
	refMap := make(map[trace.IntervalRef]trace.IntervalRef)
	for _, lane := range other.lanesLocked() {
		source := other.laneSource[lane.ID()]
		sealed, open := lane.snapshot()
		for _, v := range sealed {
			newRef, err := staging.insertMergedLocked(entMap[v.Entity], source, v)
			if err != nil {
				return newMergeConflictError("interval conflicts with merge destination", err)
			}
			refMap[v.Ref] = newRef
		}
		if open == nil {
			continue
		}
		if !t.opts.AllowOpenMerge {
			if strict {
				return newMergeConflictError("merge source has an open interval", &Error{
					Code:     CodeUnresolvedOpenInterval,
					Message:  "open interval in merge source (allow_open_merge is off)",
					Lane:     lane.ID(),
					Interval: open.Ref,
				})
			}
			continue // lenient: leave the open fragment behind
		}
		newRef, err := staging.insertMergedLocked(entMap[open.Entity], source, *open)
		if err != nil {
			return newMergeConflictError("open interval conflicts with merge destination", err)
		}
		refMap[open.Ref] = newRef
	}

	// Step 3: translate and re-add edges. Deterministic order so graph
	// adjacency order is stable across identical merges.
	for _, e := range other.Edges() {
		from, okFrom := refMap[e.From]
		to, okTo := refMap[e.To]
		if !okFrom || !okTo {
			if strict {
				missing := e.From
				if okFrom {
					missing = e.To
				}
				return newMergeConflictError("edge endpoint did not survive merge", newUnknownIntervalError(missing))
			}
			continue
		}
		staging.graph.add(Edge{From: from, To: to, Kind: e.Kind})
	}

	// Bounds may be wider than the union of interval spans (timestamped wake
	// edges widen them too), so carry other's recorded bounds across.
	if other.hasBounds {
		staging.widenBoundsLocked(other.minTime, other.maxTime)
	}

	t.adoptLocked(staging)
	return nil
}

// insertMergedLocked re-creates one interval from a snapshot view inside the
// staging timeline, minting a fresh ref and sequence number. Caller holds the
// staging timeline exclusively.
func (t *Timeline) insertMergedLocked(entity trace.EntityRef, source string, v View) (trace.IntervalRef, *Error) {
	ent := t.entityByRef[entity]
	lane := t.laneForLocked(ent, source)
	iv := &interval{
		ref:      trace.IntervalRef(uuid.Must(uuid.NewV7()).String()),
		entity:   ent.Ref,
		lane:     lane.ID(),
		start:    v.Start,
		end:      v.End,
		closed:   v.Closed,
		seq:      t.clock.Next(),
		metadata: v.Metadata.Clone(),
	}
	var err *Error
	if iv.closed {
		err = lane.insertClosed(iv)
	} else {
		iv.end = 0
		err = lane.insertOpen(iv)
	}
	if err != nil {
		return "", err
	}
	t.byRef[iv.ref] = &regEntry{lane: lane, iv: iv}
	t.widenBoundsLocked(iv.start, iv.start)
	if iv.closed {
		t.widenBoundsLocked(iv.end, iv.end)
	}
	return iv.ref, nil
}

// cloneLocked deep-copies the timeline for merge staging. Caller holds t.mu.
func (t *Timeline) cloneLocked() *Timeline {
	out := New(t.opts)
	out.clock = newSeqClockAt(t.clock.Current())
	out.minTime, out.maxTime, out.hasBounds = t.minTime, t.maxTime, t.hasBounds

	for key, ent := range t.entities {
		cp := *ent
		out.entities[key] = &cp
		out.entityByRef[cp.Ref] = &cp
	}
	for ref := range t.tombstones {
		out.tombstones[ref] = struct{}{}
	}
	for id, lane := range t.lanes {
		cloned := newLane(id, lane.Entity())
		sealed, open := lane.snapshot()
		for _, v := range sealed {
			iv := intervalFromView(v)
			cloned.sealed = append(cloned.sealed, iv)
			out.byRef[iv.ref] = &regEntry{lane: cloned, iv: iv}
		}
		if open != nil {
			iv := intervalFromView(*open)
			cloned.open = iv
			out.byRef[iv.ref] = &regEntry{lane: cloned, iv: iv}
		}
		out.lanes[id] = cloned
		out.laneSource[id] = t.laneSource[id]
	}
	out.graph = t.graph.clone()
	return out
}

// intervalFromView rebuilds a lane-owned interval record from a snapshot,
// preserving identity (ref and seq).
func intervalFromView(v View) *interval {
	return &interval{
		ref:      v.Ref,
		entity:   v.Entity,
		lane:     v.Lane,
		start:    v.Start,
		end:      v.End,
		closed:   v.Closed,
		seq:      v.Seq,
		metadata: v.Metadata.Clone(),
	}
}

// adoptLocked commits a fully validated staging copy. Caller holds t.mu.
// Readers mid-iteration keep their pre-merge lane snapshots, which is the
// documented pre-or-post visibility guarantee.
func (t *Timeline) adoptLocked(staging *Timeline) {
	t.clock = staging.clock
	t.entities = staging.entities
	t.entityByRef = staging.entityByRef
	t.lanes = staging.lanes
	t.laneSource = staging.laneSource
	t.byRef = staging.byRef
	t.tombstones = staging.tombstones
	t.graph = staging.graph
	t.minTime, t.maxTime, t.hasBounds = staging.minTime, staging.maxTime, staging.hasBounds
}
