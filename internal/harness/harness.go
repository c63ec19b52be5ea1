// Package harness provides a conformance testing framework for the timeline
// model: YAML scenarios drive the producer API against a fresh timeline,
// every step's outcome is checked against its expectation, and the resulting
// timeline is compared against a golden snapshot.
//
// Scenarios exercise the real model end to end - the harness manufactures
// nothing. A step's outcome is whatever error code the timeline actually
// returned, so golden files and expectations validate model behavior, not
// the harness.
package harness

import (
	"context"
	"fmt"

	"github.com/lanetrace/lanetrace/internal/config"
	"github.com/lanetrace/lanetrace/internal/timeline"
	"github.com/lanetrace/lanetrace/internal/trace"
)

// TraceEvent records one executed step and its outcome code ("" for success).
type TraceEvent struct {
	Op      string `json:"op"`
	Outcome string `json:"outcome,omitempty"`
}

// Result is the outcome of running a scenario.
type Result struct {
	Scenario *Scenario
	Timeline *timeline.Timeline
	Trace    []TraceEvent

	// Handles maps scenario handle names to the refs they produced.
	Handles map[string]trace.IntervalRef
}

// Run executes a scenario against a fresh timeline.
//
// Run fails on the first step whose outcome differs from its expectation, on
// an unknown handle or entity key, or on invalid scenario options. A step
// failing with exactly its expected code is a successful run.
func Run(scenario *Scenario) (*Result, error) {
	opts := config.Default()
	if scenario.Options != nil {
		opts = scenario.Options.WithDefaults()
		if err := opts.Validate(); err != nil {
			return nil, fmt.Errorf("scenario %q: %w", scenario.Name, err)
		}
	}

	r := &Result{
		Scenario: scenario,
		Timeline: timeline.New(opts),
		Handles:  make(map[string]trace.IntervalRef),
	}
	entities := make(map[string]trace.EntityRef)

	for i, step := range scenario.Steps {
		op, err := step.op()
		if err != nil {
			return nil, fmt.Errorf("scenario %q step %d: %w", scenario.Name, i, err)
		}
		stepErr, err := r.execute(step, entities)
		if err != nil {
			return nil, fmt.Errorf("scenario %q step %d (%s): %w", scenario.Name, i, op, err)
		}

		outcome := string(timeline.CodeOf(stepErr))
		if stepErr != nil && outcome == "" {
			outcome = stepErr.Error()
		}
		r.Trace = append(r.Trace, TraceEvent{Op: op, Outcome: outcome})

		if outcome != step.Expect {
			return nil, fmt.Errorf("scenario %q step %d (%s): outcome %q, expected %q",
				scenario.Name, i, op, outcome, step.Expect)
		}
	}
	return r, nil
}

// execute performs one step. The first return value is the model's verdict
// (nil or a timeline error); the second reports harness-level problems such
// as unknown handles.
func (r *Result) execute(step Step, entities map[string]trace.EntityRef) (error, error) {
	switch {
	case step.Intern != nil:
		ref := r.Timeline.InternEntity(step.Intern.Key, step.Intern.Label)
		entities[step.Intern.Key] = ref
		return nil, nil

	case step.Begin != nil:
		b := step.Begin
		ent, ok := entities[b.Entity]
		if !ok {
			return nil, fmt.Errorf("unknown entity key %q (intern it first)", b.Entity)
		}
		ref, err := r.Timeline.BeginEventFrom(ent, b.Source, trace.Timestamp(b.Start), trace.Metadata(b.Metadata))
		if err == nil {
			r.Handles[b.Handle] = ref
		}
		return err, nil

	case step.End != nil:
		ref, err := r.handle(step.End.Handle)
		if err != nil {
			return nil, err
		}
		return r.Timeline.EndEvent(ref, trace.Timestamp(step.End.End)), nil

	case step.Annotate != nil:
		ref, err := r.handle(step.Annotate.Handle)
		if err != nil {
			return nil, err
		}
		return r.Timeline.ExtendMetadata(ref, step.Annotate.Key, step.Annotate.Value), nil

	case step.Wake != nil:
		from, err := r.handle(step.Wake.From)
		if err != nil {
			return nil, err
		}
		to, err := r.handle(step.Wake.To)
		if err != nil {
			return nil, err
		}
		if step.Wake.At != nil {
			return r.Timeline.RecordWakeAt(from, to, trace.Timestamp(*step.Wake.At)), nil
		}
		return r.Timeline.RecordWake(from, to), nil

	case step.Edge != nil:
		from, err := r.handle(step.Edge.From)
		if err != nil {
			return nil, err
		}
		to, err := r.handle(step.Edge.To)
		if err != nil {
			return nil, err
		}
		return r.Timeline.AddEdge(from, to, edgeKind(step.Edge.Kind)), nil

	case step.Prune != nil:
		_, err := r.Timeline.PruneBefore(context.Background(), trace.Timestamp(step.Prune.Before))
		return err, nil
	}
	return nil, fmt.Errorf("empty step")
}

func (r *Result) handle(name string) (trace.IntervalRef, error) {
	ref, ok := r.Handles[name]
	if !ok {
		return "", fmt.Errorf("unknown handle %q", name)
	}
	return ref, nil
}

// edgeKind maps a scenario kind string onto an EdgeKind, treating anything
// beyond the predefined kinds as a custom tag.
func edgeKind(kind string) trace.EdgeKind {
	switch trace.EdgeKind(kind) {
	case trace.KindWakes, trace.KindPrecedes:
		return trace.EdgeKind(kind)
	}
	return trace.CustomKind(kind)
}
