// Package config defines the recognized timeline options, their defaults,
// validation, and YAML loading.
package config

import (
	"fmt"

	"github.com/lanetrace/lanetrace/internal/trace"
)

// PruningPolicy controls how causal edges behave around pruned intervals.
type PruningPolicy string

const (
	// PruneStrict rejects edge creation that references a pruned interval
	// and detaches existing edges when an endpoint is pruned.
	PruneStrict PruningPolicy = "strict"

	// PruneLenient allows edges to reference pruned intervals; such edges
	// become unresolvable and queries silently skip them.
	PruneLenient PruningPolicy = "lenient"
)

// LaneCollision controls what happens when two trace sources both claim the
// same entity key (for example two capture shards both reporting "CPU0").
type LaneCollision string

const (
	// CollisionMerge maps every event for an entity onto one shared lane,
	// regardless of source. Overlaps between sources surface as insert errors.
	CollisionMerge LaneCollision = "merge"

	// CollisionIsolate gives each (entity, source) pair its own lane, keeping
	// sources disambiguated instead of reconciled.
	CollisionIsolate LaneCollision = "isolate"
)

// DefaultCycleMaxDepth bounds wake-chain traversal when the caller does not
// supply an explicit depth.
const DefaultCycleMaxDepth = 64

// Options are the recognized timeline configuration knobs.
//
// The zero value is not usable directly; call Default or WithDefaults.
type Options struct {
	// PruningPolicy selects strict or lenient dangling-edge handling.
	PruningPolicy PruningPolicy `yaml:"pruning_policy"`

	// AllowOpenMerge permits merge to carry still-open intervals from the
	// source timeline instead of rejecting them.
	AllowOpenMerge bool `yaml:"allow_open_merge"`

	// CausalCycleMaxDepth caps wake-chain traversal depth when a query does
	// not pass its own limit.
	CausalCycleMaxDepth int `yaml:"causal_cycle_max_depth"`

	// LaneCollision selects the reconciliation policy for entity keys claimed
	// by multiple sources.
	LaneCollision LaneCollision `yaml:"lane_collision"`

	// MinHorizon is the minimum acceptable start timestamp for new events.
	MinHorizon trace.Timestamp `yaml:"min_horizon"`

	// TimeUnit labels the tick size of the time axis.
	TimeUnit trace.TimeUnit `yaml:"time_unit"`
}

// Default returns the documented default options: strict pruning, no open
// merge, depth cap of DefaultCycleMaxDepth, merged lanes, horizon 0,
// nanosecond ticks.
func Default() Options {
	return Options{
		PruningPolicy:       PruneStrict,
		AllowOpenMerge:      false,
		CausalCycleMaxDepth: DefaultCycleMaxDepth,
		LaneCollision:       CollisionMerge,
		MinHorizon:          0,
		TimeUnit:            trace.Nanoseconds,
	}
}

// WithDefaults fills unset fields with their defaults and returns the result.
// Explicitly set fields are preserved.
func (o Options) WithDefaults() Options {
	def := Default()
	if o.PruningPolicy == "" {
		o.PruningPolicy = def.PruningPolicy
	}
	if o.CausalCycleMaxDepth == 0 {
		o.CausalCycleMaxDepth = def.CausalCycleMaxDepth
	}
	if o.LaneCollision == "" {
		o.LaneCollision = def.LaneCollision
	}
	if o.TimeUnit == "" {
		o.TimeUnit = def.TimeUnit
	}
	return o
}

// Validate checks that every option holds a recognized value.
func (o Options) Validate() error {
	switch o.PruningPolicy {
	case PruneStrict, PruneLenient:
	default:
		return fmt.Errorf("unknown pruning_policy %q (want %q or %q)", o.PruningPolicy, PruneStrict, PruneLenient)
	}
	switch o.LaneCollision {
	case CollisionMerge, CollisionIsolate:
	default:
		return fmt.Errorf("unknown lane_collision %q (want %q or %q)", o.LaneCollision, CollisionMerge, CollisionIsolate)
	}
	if o.CausalCycleMaxDepth < 1 {
		return fmt.Errorf("causal_cycle_max_depth must be positive, got %d", o.CausalCycleMaxDepth)
	}
	if !o.TimeUnit.Valid() {
		return fmt.Errorf("unknown time_unit %q", o.TimeUnit)
	}
	return nil
}
