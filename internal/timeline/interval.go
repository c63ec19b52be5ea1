package timeline

import "github.com/lanetrace/lanetrace/internal/trace"

// interval is the lane-owned record of one timed event.
//
// An interval is created open (end unknown) or fully closed, is closed at
// most once, and once sealed is immutable apart from metadata. All field
// access is guarded by the owning lane's lock; readers receive View copies,
// never pointers into lane storage.
type interval struct {
	ref      trace.IntervalRef
	entity   trace.EntityRef
	lane     trace.LaneID
	start    trace.Timestamp
	end      trace.Timestamp
	closed   bool
	seq      int64
	metadata trace.Metadata
}

// span returns the interval's closed span. Only meaningful once sealed.
func (iv *interval) span() trace.Span {
	return trace.Span{Start: iv.start, End: iv.end}
}

// intersectsRange reports whether the interval's span shares at least one
// point with [t0, t1]. An open interval is treated as [start, +inf).
func (iv *interval) intersectsRange(t0, t1 trace.Timestamp) bool {
	if !iv.closed {
		return iv.start <= t1
	}
	return iv.span().Intersects(trace.Span{Start: t0, End: t1})
}

// before reports whether iv orders before other under the lane ordering:
// ascending start, insertion seq as tie-break.
func (iv *interval) before(other *interval) bool {
	if iv.start != other.start {
		return iv.start < other.start
	}
	return iv.seq < other.seq
}

// view snapshots the interval into an immutable View.
func (iv *interval) view() View {
	return View{
		Ref:      iv.ref,
		Entity:   iv.entity,
		Lane:     iv.lane,
		Start:    iv.start,
		End:      iv.end,
		Closed:   iv.closed,
		Seq:      iv.seq,
		Metadata: iv.metadata.Clone(),
	}
}

// View is an immutable snapshot of one interval's state.
//
// Views are self-contained copies: they stay valid (and stale) regardless of
// later mutations, so readers can hold them without any locking protocol.
type View struct {
	Ref    trace.IntervalRef
	Entity trace.EntityRef
	Lane   trace.LaneID
	Start  trace.Timestamp

	// End is meaningful only when Closed is true. An open interval is an
	// in-progress event whose end is not yet known.
	End    trace.Timestamp
	Closed bool

	// Seq is the insertion sequence number: arrival order, used as the
	// deterministic tie-break for identical start times.
	Seq int64

	Metadata trace.Metadata
}

// Dur returns the view's duration in ticks and whether it is defined
// (open intervals have no duration yet).
func (v View) Dur() (trace.Timestamp, bool) {
	if !v.Closed {
		return 0, false
	}
	return v.End - v.Start, true
}
