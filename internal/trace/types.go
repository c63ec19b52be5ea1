package trace

// Timestamp is a point on a timeline's time axis, measured in integer ticks
// of the timeline's configured TimeUnit. Timestamps are opaque ticks: the
// model never converts between units, the unit exists so that front-ends can
// label the axis.
type Timestamp int64

// TimeUnit labels the tick size of a timeline's time axis.
type TimeUnit string

// Recognized time units, coarsest to finest label only - ticks are never
// converted between units.
const (
	Nanoseconds  TimeUnit = "nanoseconds"
	Microseconds TimeUnit = "microseconds"
	Milliseconds TimeUnit = "milliseconds"
	Seconds      TimeUnit = "seconds"
	Minutes      TimeUnit = "minutes"
	Hours        TimeUnit = "hours"
	Days         TimeUnit = "days"
)

// Valid reports whether u is one of the recognized time units.
func (u TimeUnit) Valid() bool {
	switch u {
	case Nanoseconds, Microseconds, Milliseconds, Seconds, Minutes, Hours, Days:
		return true
	}
	return false
}

// EntityRef is a stable opaque reference to an interned entity (a task, CPU,
// thread, or other resource). Refs are minted by the owning Timeline and stay
// valid for its lifetime.
type EntityRef string

// IntervalRef is a stable opaque reference to an interval. Refs are minted at
// open time (UUIDv7 strings) and resolved through the owning Timeline - they
// are identities, never positions.
type IntervalRef string

// LaneID identifies one lane: the ordered, non-overlapping event stream for
// one entity (or one (entity, source) pair when lane collisions are isolated).
type LaneID string

// EdgeKind categorizes a causal edge between two intervals.
//
// Beyond the predefined kinds, any tag produced by CustomKind is legal. Empty
// kinds are not; use the constructors.
type EdgeKind string

const (
	// KindWakes records that the source interval woke the entity that the
	// target interval runs on. A wake may race with scheduling, so no time
	// ordering between the endpoints is implied.
	KindWakes EdgeKind = "wakes"

	// KindPrecedes records an observed happens-before relationship.
	KindPrecedes EdgeKind = "precedes"
)

// customKindPrefix namespaces caller-defined kinds away from the predefined ones.
const customKindPrefix = "custom:"

// CustomKind builds a caller-defined edge kind from a tag.
func CustomKind(tag string) EdgeKind {
	return EdgeKind(customKindPrefix + tag)
}

// Valid reports whether k is a usable edge kind (predefined or custom-tagged).
func (k EdgeKind) Valid() bool {
	if k == KindWakes || k == KindPrecedes {
		return true
	}
	return len(k) > len(customKindPrefix) && k[:len(customKindPrefix)] == customKindPrefix
}

// Metadata carries free-form string annotations on an interval. Metadata is
// not part of any ordering or overlap invariant; writes are last-write-wins
// per key.
type Metadata map[string]string

// Clone returns an independent copy of m. A nil map clones to nil.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Span is a closed time range [Start, End]. Spans with Start == End are legal
// zero-length spans.
type Span struct {
	Start Timestamp
	End   Timestamp
}

// Overlaps reports whether s and o share a range of positive measure.
// Touching spans (s.End == o.Start) do not overlap - one resource may finish
// an event on the same tick the next one starts.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Intersects reports whether the closed spans s and o share at least one
// point. Unlike Overlaps, touching spans intersect; range queries use this
// inclusive form.
func (s Span) Intersects(o Span) bool {
	return s.Start <= o.End && o.Start <= s.End
}
