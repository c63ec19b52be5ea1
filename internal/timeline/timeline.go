package timeline

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/lanetrace/lanetrace/internal/config"
	"github.com/lanetrace/lanetrace/internal/trace"
)

// Entity is one interned actor or resource (task, CPU, thread). Identity is
// stable for the timeline's lifetime; entities are deduplicated by the
// caller-supplied key.
type Entity struct {
	Ref   trace.EntityRef
	Key   string
	Label string
}

// regEntry locates a registered interval: the owning lane plus the record
// itself. The registry is the only path from a ref to interval data.
type regEntry struct {
	lane *Lane
	iv   *interval
}

// Timeline is the aggregate: it owns all lanes, the entity table, and the
// causal graph, maintains the global time bounds, and exposes the producer
// and reader APIs.
//
// CONCURRENCY:
//
// Mutations serialize on the timeline mutex and additionally take the
// affected lane's write lock, so every insert is atomic with respect to
// readers. Readers of lane data take only that lane's read lock: queries
// against one lane are never blocked by writes to another. Readers of shared
// state (registry, bounds, entity table) take the timeline read lock.
//
// The model favors correctness over writer throughput: one mutation at a
// time per timeline, matching the single-writer-per-lane producer contract.
type Timeline struct {
	id   string // UUIDv7; canonical lock ordering for cross-timeline merges
	opts config.Options

	clock *seqClock

	mu          sync.RWMutex
	entities    map[string]*Entity // by normalized key
	entityByRef map[trace.EntityRef]*Entity
	lanes       map[trace.LaneID]*Lane
	laneSource  map[trace.LaneID]string // shard tag per lane (isolate policy)
	byRef       map[trace.IntervalRef]*regEntry
	tombstones  map[trace.IntervalRef]struct{} // pruned refs (lenient policy)
	graph       *causalGraph

	minTime   trace.Timestamp
	maxTime   trace.Timestamp
	hasBounds bool
}

// New creates an empty timeline with the given options. Options should come
// from config.Default or a validated config load; unset fields are filled
// with defaults.
func New(opts config.Options) *Timeline {
	return &Timeline{
		id:          uuid.Must(uuid.NewV7()).String(),
		opts:        opts.WithDefaults(),
		clock:       newSeqClockAt(0),
		entities:    make(map[string]*Entity),
		entityByRef: make(map[trace.EntityRef]*Entity),
		lanes:       make(map[trace.LaneID]*Lane),
		laneSource:  make(map[trace.LaneID]string),
		byRef:       make(map[trace.IntervalRef]*regEntry),
		tombstones:  make(map[trace.IntervalRef]struct{}),
		graph:       newCausalGraph(),
	}
}

// ID returns the timeline's unique instance identifier.
func (t *Timeline) ID() string {
	return t.id
}

// Options returns the timeline's effective configuration.
func (t *Timeline) Options() config.Options {
	return t.opts
}

// InternEntity registers (or finds) the entity for key and returns its stable
// ref. Keys are NFC-normalized so visually identical keys from different
// capture sources dedupe to one entity. The label is recorded only if the
// entity does not already carry one.
func (t *Timeline) InternEntity(key, label string) trace.EntityRef {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.internLocked(key, label)
}

func (t *Timeline) internLocked(key, label string) trace.EntityRef {
	key = norm.NFC.String(key)
	if ent, ok := t.entities[key]; ok {
		if ent.Label == "" {
			ent.Label = label
		}
		return ent.Ref
	}
	ent := &Entity{
		Ref:   trace.EntityRef(uuid.Must(uuid.NewV7()).String()),
		Key:   key,
		Label: label,
	}
	t.entities[key] = ent
	t.entityByRef[ent.Ref] = ent
	return ent.Ref
}

// Entities returns all interned entities, sorted by key.
func (t *Timeline) Entities() []Entity {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.entitiesLocked()
}

func (t *Timeline) entitiesLocked() []Entity {
	out := make([]Entity, 0, len(t.entities))
	for _, ent := range t.entities {
		out = append(out, *ent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// laneKey builds the lane identifier for an entity and source under the
// configured collision policy.
func (t *Timeline) laneKey(ent *Entity, source string) trace.LaneID {
	if t.opts.LaneCollision == config.CollisionIsolate && source != "" {
		return trace.LaneID(ent.Key + "#" + source)
	}
	return trace.LaneID(ent.Key)
}

// laneForLocked returns (creating if absent) the lane for an entity/source.
func (t *Timeline) laneForLocked(ent *Entity, source string) *Lane {
	id := t.laneKey(ent, source)
	if lane, ok := t.lanes[id]; ok {
		return lane
	}
	lane := newLane(id, ent.Ref)
	t.lanes[id] = lane
	t.laneSource[id] = source
	return lane
}

// BeginEvent opens an in-progress interval for the entity starting at start.
// The lane is created on first use. Fails with INVALID_TIME if start precedes
// the configured horizon, with LANE_BUSY if the lane already has an open
// interval, and with UNKNOWN_ENTITY for a ref this timeline never interned.
func (t *Timeline) BeginEvent(entity trace.EntityRef, start trace.Timestamp, md trace.Metadata) (trace.IntervalRef, error) {
	return t.BeginEventFrom(entity, "", start, md)
}

// BeginEventFrom is BeginEvent with an explicit capture-source tag. Under the
// isolate collision policy each (entity, source) pair gets its own lane;
// under merge the tag is ignored for routing.
func (t *Timeline) BeginEventFrom(entity trace.EntityRef, source string, start trace.Timestamp, md trace.Metadata) (trace.IntervalRef, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ent, ok := t.entityByRef[entity]
	if !ok {
		return "", &Error{Code: CodeUnknownEntity, Message: fmt.Sprintf("entity %s is not interned in this timeline", entity)}
	}
	if start < t.opts.MinHorizon {
		return "", &Error{
			Code:    CodeInvalidTime,
			Message: fmt.Sprintf("start %d precedes horizon %d", start, t.opts.MinHorizon),
		}
	}

	lane := t.laneForLocked(ent, source)
	iv := &interval{
		ref:      trace.IntervalRef(uuid.Must(uuid.NewV7()).String()),
		entity:   ent.Ref,
		lane:     lane.ID(),
		start:    start,
		seq:      t.clock.Next(),
		metadata: md.Clone(),
	}
	if err := lane.insertOpen(iv); err != nil {
		return "", err
	}
	t.byRef[iv.ref] = &regEntry{lane: lane, iv: iv}
	t.widenBoundsLocked(start, start)
	return iv.ref, nil
}

// EndEvent closes the interval at end and seals it into its lane. A failed
// close (TIME_ORDER_VIOLATION, or an overlap introduced by merged data)
// leaves the interval open; closing twice fails with ALREADY_CLOSED.
func (t *Timeline) EndEvent(ref trace.IntervalRef, end trace.Timestamp) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.byRef[ref]
	if !ok {
		return newUnknownIntervalError(ref)
	}
	if err := entry.lane.seal(entry.iv, end); err != nil {
		return err
	}
	t.widenBoundsLocked(end, end)
	return nil
}

// ExtendMetadata sets one metadata key on the interval, before or after
// sealing. Last write wins per key.
func (t *Timeline) ExtendMetadata(ref trace.IntervalRef, key, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.byRef[ref]
	if !ok {
		return newUnknownIntervalError(ref)
	}
	entry.lane.extendMetadata(entry.iv, key, value)
	return nil
}

// AddEdge records a directed causal edge between two registered intervals.
// Under the strict pruning policy both endpoints must be live; under lenient,
// pruned (tombstoned) endpoints are accepted and the edge simply never
// resolves in queries.
func (t *Timeline) AddEdge(from, to trace.IntervalRef, kind trace.EdgeKind) error {
	if !kind.Valid() {
		return &Error{
			Code:    CodeInvalidEdgeKind,
			Message: fmt.Sprintf("invalid edge kind %q", kind),
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, ref := range []trace.IntervalRef{from, to} {
		if _, ok := t.byRef[ref]; ok {
			continue
		}
		if t.opts.PruningPolicy == config.PruneLenient {
			if _, ok := t.tombstones[ref]; ok {
				continue
			}
		}
		return newUnknownIntervalError(ref)
	}
	t.graph.add(Edge{From: from, To: to, Kind: kind})
	return nil
}

// RecordWake records a wake-up edge: the interval at from woke the work that
// runs as the interval at to. No time ordering between the endpoints is
// required - a wake can race with scheduling.
func (t *Timeline) RecordWake(from, to trace.IntervalRef) error {
	return t.AddEdge(from, to, trace.KindWakes)
}

// RecordWakeAt is RecordWake with the observed wake timestamp; the timestamp
// widens the timeline's global bounds the way interval endpoints do.
func (t *Timeline) RecordWakeAt(from, to trace.IntervalRef, at trace.Timestamp) error {
	if err := t.AddEdge(from, to, trace.KindWakes); err != nil {
		return err
	}
	t.mu.Lock()
	t.widenBoundsLocked(at, at)
	t.mu.Unlock()
	return nil
}

// Lookup resolves a ref into an immutable snapshot of the interval. Pruned
// and never-registered refs fail with UNKNOWN_INTERVAL.
func (t *Timeline) Lookup(ref trace.IntervalRef) (View, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entry, ok := t.byRef[ref]
	if !ok {
		return View{}, newUnknownIntervalError(ref)
	}
	return entry.iv.view(), nil
}

// Outgoing returns the causal edges leaving ref. The sequence is lazy,
// finite, and restartable; edges to pruned intervals are included here and
// skipped at resolution time by queries.
func (t *Timeline) Outgoing(ref trace.IntervalRef) iter.Seq[Edge] {
	return t.graph.outgoing(ref)
}

// Incoming returns the causal edges arriving at ref.
func (t *Timeline) Incoming(ref trace.IntervalRef) iter.Seq[Edge] {
	return t.graph.incoming(ref)
}

// Edges returns every causal edge, sorted by (from, to, kind) for
// deterministic consumption.
func (t *Timeline) Edges() []Edge {
	edges := t.graph.all()
	sortEdges(edges)
	return edges
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		return a.Kind < b.Kind
	})
}

// Lanes returns all lanes in canonical (lane id) order.
func (t *Timeline) Lanes() []*Lane {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lanesLocked()
}

func (t *Timeline) lanesLocked() []*Lane {
	out := make([]*Lane, 0, len(t.lanes))
	for _, lane := range t.lanes {
		out = append(out, lane)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Lane returns the lane with the given id, if present.
func (t *Timeline) Lane(id trace.LaneID) (*Lane, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	lane, ok := t.lanes[id]
	return lane, ok
}

// Entity returns the interned entity for ref, if present.
func (t *Timeline) Entity(ref trace.EntityRef) (Entity, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ent, ok := t.entityByRef[ref]
	if !ok {
		return Entity{}, false
	}
	return *ent, true
}

// Bounds returns the global [min, max] time bounds: the union of every
// interval span plus any explicitly timestamped wake edge. ok is false for a
// timeline with no timed data yet.
func (t *Timeline) Bounds() (min, max trace.Timestamp, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.minTime, t.maxTime, t.hasBounds
}

func (t *Timeline) widenBoundsLocked(lo, hi trace.Timestamp) {
	if !t.hasBounds {
		t.minTime, t.maxTime, t.hasBounds = lo, hi, true
		return
	}
	if lo < t.minTime {
		t.minTime = lo
	}
	if hi > t.maxTime {
		t.maxTime = hi
	}
}

// PruneBefore removes every sealed interval ending before the cutoff from
// every lane and detaches (strict) or tombstones (lenient) dependent causal
// edges. Open intervals are never pruned.
//
// Pruning is checkpointed per lane rather than atomic across the timeline: a
// context cancellation between lanes stops cleanly, returning the count
// pruned so far alongside the context error.
func (t *Timeline) PruneBefore(ctx context.Context, cutoff trace.Timestamp) (int, error) {
	lanes := t.Lanes()

	pruned := 0
	for _, lane := range lanes {
		if err := ctx.Err(); err != nil {
			return pruned, fmt.Errorf("prune interrupted: %w", err)
		}
		pruned += t.pruneLane(lane.ID(), cutoff)
	}
	return pruned, nil
}

func (t *Timeline) pruneLane(id trace.LaneID, cutoff trace.Timestamp) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	// A concurrent merge may have swapped lane objects; route through the map.
	lane, ok := t.lanes[id]
	if !ok {
		return 0
	}
	removed := lane.removeBefore(cutoff)
	if len(removed) == 0 {
		return 0
	}

	set := make(map[trace.IntervalRef]struct{}, len(removed))
	for _, ref := range removed {
		delete(t.byRef, ref)
		set[ref] = struct{}{}
	}
	switch t.opts.PruningPolicy {
	case config.PruneLenient:
		// Edges stay; tombstones let AddEdge keep accepting these refs while
		// queries skip them as unresolvable.
		for ref := range set {
			t.tombstones[ref] = struct{}{}
		}
	default:
		t.graph.detach(set)
	}
	return len(removed)
}
