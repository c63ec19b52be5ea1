package timeline

import (
	"iter"
	"slices"
	"sort"
	"sync"

	"github.com/lanetrace/lanetrace/internal/trace"
)

// Lane is the ordered, non-overlapping event stream for one resource.
//
// A lane holds a sequence of sealed intervals plus at most one open interval.
// The lane invariant models one resource doing one thing at a time: no two
// sealed intervals in the same lane overlap (touching is fine), and a second
// open interval is rejected rather than queued.
//
// Sealed intervals are kept in ascending (start, seq) order. Start times
// alone are not unique - amendment and merge can land two intervals on the
// same tick - so the insertion sequence number breaks ties, keeping ordering
// deterministic and independent of interval content.
//
// Thread-safety: one writer per lane, many readers. Mutations happen under
// the write lock so readers observe either the pre- or post-insert state,
// never a half-applied one. Readers of other lanes are never blocked.
type Lane struct {
	id     trace.LaneID
	entity trace.EntityRef

	mu     sync.RWMutex
	sealed []*interval
	open   *interval
}

func newLane(id trace.LaneID, entity trace.EntityRef) *Lane {
	return &Lane{id: id, entity: entity}
}

// ID returns the lane's identifier.
func (l *Lane) ID() trace.LaneID {
	return l.id
}

// Entity returns the entity whose events this lane holds.
func (l *Lane) Entity() trace.EntityRef {
	return l.entity
}

// sealedPos returns the index where iv belongs in the sealed slice under
// (start, seq) ordering. Caller holds the lock.
func (l *Lane) sealedPos(iv *interval) int {
	return sort.Search(len(l.sealed), func(i int) bool {
		return iv.before(l.sealed[i])
	})
}

// checkNeighbors verifies that the closed span of iv does not overlap the
// sealed intervals adjacent to position pos. Because sealed intervals are
// mutually non-overlapping and sorted by start, only the two neighbors can
// conflict. Caller holds the lock.
func (l *Lane) checkNeighbors(iv *interval, pos int) *Error {
	if pos > 0 {
		if prev := l.sealed[pos-1]; prev.span().Overlaps(iv.span()) {
			return newOverlapError(l.id, iv.ref, prev.ref)
		}
	}
	if pos < len(l.sealed) {
		if next := l.sealed[pos]; next.span().Overlaps(iv.span()) {
			return newOverlapError(l.id, iv.ref, next.ref)
		}
	}
	return nil
}

// insertClosed adds a sealed interval at its ordered position, rejecting any
// overlap with an existing sealed interval. A rejected insert leaves the lane
// exactly as it was.
func (l *Lane) insertClosed(iv *interval) *Error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos := l.sealedPos(iv)
	if err := l.checkNeighbors(iv, pos); err != nil {
		return err
	}
	l.sealed = slices.Insert(l.sealed, pos, iv)
	return nil
}

// insertOpen installs iv as the lane's open slot. A resource cannot run two
// things at once, so a second open interval is rejected with LANE_BUSY; the
// producer must close the current one first.
func (l *Lane) insertOpen(iv *interval) *Error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.open != nil {
		return newLaneBusyError(l.id, iv.ref, l.open.ref)
	}
	l.open = iv
	return nil
}

// seal closes the interval at end and moves it into the sealed sequence.
//
// Closing an already-sealed interval is an error, not a no-op, so that
// double-close bugs in producers surface instead of being swallowed. A failed
// seal (bad end time, or an overlap introduced by data merged since the open)
// leaves the interval open.
func (l *Lane) seal(iv *interval, end trace.Timestamp) *Error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if iv.closed {
		return &Error{
			Code:     CodeAlreadyClosed,
			Message:  "interval is already closed",
			Lane:     l.id,
			Interval: iv.ref,
		}
	}
	if end < iv.start {
		return &Error{
			Code:     CodeTimeOrderViolation,
			Message:  "end timestamp precedes start",
			Lane:     l.id,
			Interval: iv.ref,
		}
	}

	// Validate the would-be span before committing: sealed intervals that
	// arrived by merge while this one was open may now collide with it.
	iv.end = end
	pos := l.sealedPos(iv)
	if err := l.checkNeighbors(iv, pos); err != nil {
		iv.end = 0
		return err
	}

	iv.closed = true
	l.sealed = slices.Insert(l.sealed, pos, iv)
	l.open = nil
	return nil
}

// extendMetadata sets one metadata key on the interval. Metadata is outside
// the overlap invariant, so this is permitted before and after sealing;
// writes are last-write-wins per key.
func (l *Lane) extendMetadata(iv *interval, key, value string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if iv.metadata == nil {
		iv.metadata = make(trace.Metadata, 1)
	}
	iv.metadata[key] = value
}

// removeBefore drops every sealed interval whose span ends before t and
// returns their refs. The open interval, if any, is never pruned.
func (l *Lane) removeBefore(t trace.Timestamp) []trace.IntervalRef {
	l.mu.Lock()
	defer l.mu.Unlock()

	var removed []trace.IntervalRef
	kept := l.sealed[:0]
	for _, iv := range l.sealed {
		if iv.end < t {
			removed = append(removed, iv.ref)
			continue
		}
		kept = append(kept, iv)
	}
	// Nil out vacated tail slots so pruned intervals become collectable.
	for i := len(kept); i < len(l.sealed); i++ {
		l.sealed[i] = nil
	}
	l.sealed = kept
	return removed
}

// ordered returns views of all intervals (sealed plus open) in (start, seq)
// order. Caller holds at least the read lock.
func (l *Lane) ordered() []View {
	out := make([]View, 0, len(l.sealed)+1)
	inserted := l.open == nil
	for _, iv := range l.sealed {
		if !inserted && l.open.before(iv) {
			out = append(out, l.open.view())
			inserted = true
		}
		out = append(out, iv.view())
	}
	if !inserted {
		out = append(out, l.open.view())
	}
	return out
}

// IterOrdered returns a restartable sequence of every interval in the lane
// (sealed and the possibly-open one) in ascending (start, seq) order. Each
// restart takes a fresh snapshot; iteration is side-effect-free.
func (l *Lane) IterOrdered() iter.Seq[View] {
	return func(yield func(View) bool) {
		l.mu.RLock()
		views := l.ordered()
		l.mu.RUnlock()

		for _, v := range views {
			if !yield(v) {
				return
			}
		}
	}
}

// QueryRange returns a restartable sequence of the intervals whose span
// intersects the closed range [t0, t1], ascending by (start, seq). An open
// interval is treated as extending to infinity.
func (l *Lane) QueryRange(t0, t1 trace.Timestamp) iter.Seq[View] {
	return func(yield func(View) bool) {
		l.mu.RLock()
		views := l.rangeViews(t0, t1)
		l.mu.RUnlock()

		for _, v := range views {
			if !yield(v) {
				return
			}
		}
	}
}

// rangeViews collects the range query result. Caller holds at least the read
// lock.
//
// Start times are the only monotone bound: end times are almost ascending
// under non-overlap, but a zero-length interval may share a longer interval's
// start and sort after it by seq, putting a smaller end later in the slice.
// So the scan is bounded by start and each candidate is tested individually.
func (l *Lane) rangeViews(t0, t1 trace.Timestamp) []View {
	var out []View
	openPending := l.open != nil && l.open.intersectsRange(t0, t1)
	for _, iv := range l.sealed {
		if iv.start > t1 {
			break
		}
		if !iv.intersectsRange(t0, t1) {
			continue
		}
		if openPending && l.open.before(iv) {
			out = append(out, l.open.view())
			openPending = false
		}
		out = append(out, iv.view())
	}
	if openPending {
		out = append(out, l.open.view())
	}
	return out
}

// Neighbors returns the intervals immediately before and after ref in lane
// order. Either may be absent; found is false when ref is not in this lane.
func (l *Lane) Neighbors(ref trace.IntervalRef) (prev, next *View, found bool) {
	l.mu.RLock()
	views := l.ordered()
	l.mu.RUnlock()

	for i, v := range views {
		if v.Ref != ref {
			continue
		}
		if i > 0 {
			p := views[i-1]
			prev = &p
		}
		if i+1 < len(views) {
			n := views[i+1]
			next = &n
		}
		return prev, next, true
	}
	return nil, nil, false
}

// snapshot copies the lane's intervals for staging during a merge. Caller
// must ensure no concurrent writer (the merge holds the timeline lock).
func (l *Lane) snapshot() (sealed []View, open *View) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	sealed = make([]View, len(l.sealed))
	for i, iv := range l.sealed {
		sealed[i] = iv.view()
	}
	if l.open != nil {
		v := l.open.view()
		open = &v
	}
	return sealed, open
}
