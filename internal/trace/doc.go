// Package trace defines the leaf value types shared by every part of the
// timeline model: timestamps and their units, stable references to entities
// and intervals, lane identifiers, causal edge kinds, and interval metadata.
//
// The package has no dependencies on the rest of the module so that any
// consumer (the timeline aggregate, the query engine, external serializers)
// can exchange these values without import cycles.
//
// REFERENCE STABILITY:
//
// EntityRef and IntervalRef are opaque identifiers, not positions. A ref
// stays valid for the lifetime of the owning Timeline regardless of how a
// Lane reorganizes its internal index (for example after pruning). All
// resolution goes through the Timeline; holding a ref never pins interval
// storage.
package trace
