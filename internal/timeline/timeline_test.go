package timeline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanetrace/lanetrace/internal/config"
	"github.com/lanetrace/lanetrace/internal/trace"
)

func newTestTimeline(t *testing.T, mutate ...func(*config.Options)) *Timeline {
	t.Helper()
	opts := config.Default()
	for _, m := range mutate {
		m(&opts)
	}
	require.NoError(t, opts.Validate())
	return New(opts)
}

func lenient(o *config.Options) { o.PruningPolicy = config.PruneLenient }

func TestTimeline_InternEntity_Dedupes(t *testing.T) {
	tl := newTestTimeline(t)

	a := tl.InternEntity("cpu0", "CPU 0")
	b := tl.InternEntity("cpu0", "somebody else's label")
	assert.Equal(t, a, b)

	ents := tl.Entities()
	require.Len(t, ents, 1)
	assert.Equal(t, "cpu0", ents[0].Key)
	assert.Equal(t, "CPU 0", ents[0].Label, "label updates only when previously unset")
}

func TestTimeline_InternEntity_LabelFilledWhenUnset(t *testing.T) {
	tl := newTestTimeline(t)

	tl.InternEntity("cpu0", "")
	tl.InternEntity("cpu0", "CPU 0")

	ents := tl.Entities()
	require.Len(t, ents, 1)
	assert.Equal(t, "CPU 0", ents[0].Label)
}

func TestTimeline_InternEntity_NFCNormalization(t *testing.T) {
	tl := newTestTimeline(t)

	// U+00E9 vs e + U+0301: same text, different code points.
	a := tl.InternEntity("café", "first")
	b := tl.InternEntity("café", "second")
	assert.Equal(t, a, b, "visually identical keys must dedupe to one entity")
	assert.Len(t, tl.Entities(), 1)
}

func TestTimeline_BeginEndEvent(t *testing.T) {
	tl := newTestTimeline(t)
	cpu := tl.InternEntity("cpu0", "CPU 0")

	ref, err := tl.BeginEvent(cpu, 10, trace.Metadata{"comm": "init"})
	require.NoError(t, err)

	v, err := tl.Lookup(ref)
	require.NoError(t, err)
	assert.False(t, v.Closed)
	assert.Equal(t, trace.Timestamp(10), v.Start)
	assert.Equal(t, "init", v.Metadata["comm"])

	require.NoError(t, tl.EndEvent(ref, 20))
	v, err = tl.Lookup(ref)
	require.NoError(t, err)
	assert.True(t, v.Closed)
	assert.Equal(t, trace.Timestamp(20), v.End)
}

func TestTimeline_BeginEvent_UnknownEntity(t *testing.T) {
	tl := newTestTimeline(t)
	_, err := tl.BeginEvent("not-interned-here", 10, nil)
	assert.Equal(t, CodeUnknownEntity, CodeOf(err))
}

func TestTimeline_BeginEvent_BeforeHorizon(t *testing.T) {
	tl := newTestTimeline(t, func(o *config.Options) { o.MinHorizon = 100 })
	cpu := tl.InternEntity("cpu0", "")

	_, err := tl.BeginEvent(cpu, 99, nil)
	assert.Equal(t, CodeInvalidTime, CodeOf(err))

	_, err = tl.BeginEvent(cpu, 100, nil)
	assert.NoError(t, err)
}

func TestTimeline_BeginEvent_LaneBusy(t *testing.T) {
	tl := newTestTimeline(t)
	cpu := tl.InternEntity("cpu0", "")

	first, err := tl.BeginEvent(cpu, 0, nil)
	require.NoError(t, err)

	_, err = tl.BeginEvent(cpu, 5, nil)
	require.Error(t, err)
	assert.Equal(t, CodeLaneBusy, CodeOf(err))

	// Closing the current interval frees the lane.
	require.NoError(t, tl.EndEvent(first, 5))
	_, err = tl.BeginEvent(cpu, 5, nil)
	assert.NoError(t, err)
}

func TestTimeline_EndEvent_FailedCloseLeavesOpen(t *testing.T) {
	tl := newTestTimeline(t)
	cpu := tl.InternEntity("cpu1", "")

	ref, err := tl.BeginEvent(cpu, 100, nil)
	require.NoError(t, err)

	err = tl.EndEvent(ref, 90)
	assert.Equal(t, CodeTimeOrderViolation, CodeOf(err))

	v, err := tl.Lookup(ref)
	require.NoError(t, err)
	assert.False(t, v.Closed, "failed close must not seal")

	require.NoError(t, tl.EndEvent(ref, 110))
}

func TestTimeline_EndEvent_Twice(t *testing.T) {
	tl := newTestTimeline(t)
	cpu := tl.InternEntity("cpu0", "")
	ref, err := tl.BeginEvent(cpu, 0, nil)
	require.NoError(t, err)
	require.NoError(t, tl.EndEvent(ref, 10))

	// Any end value: the second close always fails.
	assert.Equal(t, CodeAlreadyClosed, CodeOf(tl.EndEvent(ref, 10)))
	assert.Equal(t, CodeAlreadyClosed, CodeOf(tl.EndEvent(ref, 999)))
}

func TestTimeline_EndEvent_UnknownRef(t *testing.T) {
	tl := newTestTimeline(t)
	assert.Equal(t, CodeUnknownInterval, CodeOf(tl.EndEvent("no-such-ref", 10)))
}

func TestTimeline_ExtendMetadata(t *testing.T) {
	tl := newTestTimeline(t)
	cpu := tl.InternEntity("cpu0", "")
	ref, err := tl.BeginEvent(cpu, 0, nil)
	require.NoError(t, err)

	require.NoError(t, tl.ExtendMetadata(ref, "state", "running"))
	require.NoError(t, tl.EndEvent(ref, 10))

	// Metadata is outside the overlap invariant: still writable after sealing,
	// last write wins.
	require.NoError(t, tl.ExtendMetadata(ref, "state", "done"))

	v, err := tl.Lookup(ref)
	require.NoError(t, err)
	assert.Equal(t, "done", v.Metadata["state"])

	assert.Equal(t, CodeUnknownInterval, CodeOf(tl.ExtendMetadata("ghost", "k", "v")))
}

func TestTimeline_Bounds(t *testing.T) {
	tl := newTestTimeline(t)
	_, _, ok := tl.Bounds()
	assert.False(t, ok, "no bounds before any timed data")

	cpu := tl.InternEntity("cpu0", "")
	ref, err := tl.BeginEvent(cpu, 10, nil)
	require.NoError(t, err)

	min, max, ok := tl.Bounds()
	require.True(t, ok)
	assert.Equal(t, trace.Timestamp(10), min)
	assert.Equal(t, trace.Timestamp(10), max)

	require.NoError(t, tl.EndEvent(ref, 50))
	_, max, _ = tl.Bounds()
	assert.Equal(t, trace.Timestamp(50), max)
}

func TestTimeline_RecordWakeAt_WidensBounds(t *testing.T) {
	tl := newTestTimeline(t)
	cpu0 := tl.InternEntity("cpu0", "")
	cpu1 := tl.InternEntity("cpu1", "")

	a, err := tl.BeginEvent(cpu0, 10, nil)
	require.NoError(t, err)
	require.NoError(t, tl.EndEvent(a, 20))
	b, err := tl.BeginEvent(cpu1, 15, nil)
	require.NoError(t, err)
	require.NoError(t, tl.EndEvent(b, 25))

	// The observed wake time lies outside every interval span.
	require.NoError(t, tl.RecordWakeAt(a, b, 40))

	_, max, ok := tl.Bounds()
	require.True(t, ok)
	assert.Equal(t, trace.Timestamp(40), max)
}

func TestTimeline_RecordWake_UnknownEndpoint(t *testing.T) {
	tl := newTestTimeline(t)
	cpu := tl.InternEntity("cpu0", "")
	a, err := tl.BeginEvent(cpu, 0, nil)
	require.NoError(t, err)

	assert.Equal(t, CodeUnknownInterval, CodeOf(tl.RecordWake(a, "ghost")))
	assert.Equal(t, CodeUnknownInterval, CodeOf(tl.RecordWake("ghost", a)))
	assert.Equal(t, 0, tl.graph.edgeCount())
}

func TestTimeline_AddEdge_InvalidKind(t *testing.T) {
	tl := newTestTimeline(t)
	cpu := tl.InternEntity("cpu0", "")
	a, err := tl.BeginEvent(cpu, 0, nil)
	require.NoError(t, err)

	// Invalid kinds fail with a typed error like every other mutation.
	assert.Equal(t, CodeInvalidEdgeKind, CodeOf(tl.AddEdge(a, a, "")))
	assert.Equal(t, CodeInvalidEdgeKind, CodeOf(tl.AddEdge(a, a, "preempts")))
	assert.Equal(t, 0, tl.graph.edgeCount())
}

func TestTimeline_LaneCollision_Merge(t *testing.T) {
	tl := newTestTimeline(t)
	cpu := tl.InternEntity("cpu0", "")

	// Two sources claiming the same entity share one lane, so their overlap
	// surfaces as an error.
	a, err := tl.BeginEventFrom(cpu, "shard-a", 0, nil)
	require.NoError(t, err)
	require.NoError(t, tl.EndEvent(a, 10))

	b, err := tl.BeginEventFrom(cpu, "shard-b", 5, nil)
	require.NoError(t, err)
	err = tl.EndEvent(b, 15)
	assert.Equal(t, CodeOverlapViolation, CodeOf(err))
	assert.Len(t, tl.Lanes(), 1)
}

func TestTimeline_LaneCollision_Isolate(t *testing.T) {
	tl := newTestTimeline(t, func(o *config.Options) { o.LaneCollision = config.CollisionIsolate })
	cpu := tl.InternEntity("cpu0", "")

	a, err := tl.BeginEventFrom(cpu, "shard-a", 0, nil)
	require.NoError(t, err)
	require.NoError(t, tl.EndEvent(a, 10))

	// Same claimed time range, different source: its own lane, no conflict.
	b, err := tl.BeginEventFrom(cpu, "shard-b", 5, nil)
	require.NoError(t, err)
	require.NoError(t, tl.EndEvent(b, 15))

	assert.Len(t, tl.Lanes(), 2)
}

func TestTimeline_PruneBefore_Strict(t *testing.T) {
	tl := newTestTimeline(t)
	cpu0 := tl.InternEntity("cpu0", "")
	cpu1 := tl.InternEntity("cpu1", "")

	old, err := tl.BeginEvent(cpu0, 0, nil)
	require.NoError(t, err)
	require.NoError(t, tl.EndEvent(old, 10))
	kept, err := tl.BeginEvent(cpu1, 100, nil)
	require.NoError(t, err)
	require.NoError(t, tl.EndEvent(kept, 110))
	require.NoError(t, tl.RecordWake(old, kept))

	pruned, err := tl.PruneBefore(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	_, err = tl.Lookup(old)
	assert.Equal(t, CodeUnknownInterval, CodeOf(err))

	// Strict pruning detaches dependent edges.
	assert.Equal(t, 0, tl.graph.edgeCount())

	// And rejects new edges referencing the pruned interval.
	assert.Equal(t, CodeUnknownInterval, CodeOf(tl.RecordWake(old, kept)))
}

func TestTimeline_PruneBefore_Lenient(t *testing.T) {
	tl := newTestTimeline(t, lenient)
	cpu0 := tl.InternEntity("cpu0", "")
	cpu1 := tl.InternEntity("cpu1", "")

	old, err := tl.BeginEvent(cpu0, 0, nil)
	require.NoError(t, err)
	require.NoError(t, tl.EndEvent(old, 10))
	kept, err := tl.BeginEvent(cpu1, 100, nil)
	require.NoError(t, err)
	require.NoError(t, tl.EndEvent(kept, 110))
	require.NoError(t, tl.RecordWake(old, kept))

	_, err = tl.PruneBefore(context.Background(), 50)
	require.NoError(t, err)

	// Edges survive as unresolvable, and new edges to the tombstoned ref are
	// accepted.
	assert.Equal(t, 1, tl.graph.edgeCount())
	assert.NoError(t, tl.RecordWake(kept, old))

	// But the ref itself no longer resolves.
	_, err = tl.Lookup(old)
	assert.Equal(t, CodeUnknownInterval, CodeOf(err))
}

func TestTimeline_PruneBefore_Canceled(t *testing.T) {
	tl := newTestTimeline(t)
	cpu := tl.InternEntity("cpu0", "")
	ref, err := tl.BeginEvent(cpu, 0, nil)
	require.NoError(t, err)
	require.NoError(t, tl.EndEvent(ref, 10))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pruned, err := tl.PruneBefore(ctx, 100)
	assert.Error(t, err)
	assert.Equal(t, 0, pruned)

	// Nothing was touched: the interval still resolves.
	_, err = tl.Lookup(ref)
	assert.NoError(t, err)
}

func TestTimeline_ConcurrentLanes(t *testing.T) {
	tl := newTestTimeline(t)

	const lanes = 8
	const events = 200

	refs := make([]trace.EntityRef, lanes)
	for i := range refs {
		refs[i] = tl.InternEntity(string(rune('a'+i)), "")
	}

	var wg sync.WaitGroup
	for i := 0; i < lanes; i++ {
		wg.Add(1)
		go func(ent trace.EntityRef) {
			defer wg.Done()
			for j := 0; j < events; j++ {
				start := trace.Timestamp(j * 10)
				ref, err := tl.BeginEvent(ent, start, nil)
				if err != nil {
					t.Error(err)
					return
				}
				if err := tl.EndEvent(ref, start+5); err != nil {
					t.Error(err)
					return
				}
			}
		}(refs[i])
	}

	// Concurrent readers across all lanes while writers run.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			for _, lane := range tl.Lanes() {
				var last *View
				for v := range lane.IterOrdered() {
					if last != nil && last.Closed && v.Closed {
						a := trace.Span{Start: last.Start, End: last.End}
						b := trace.Span{Start: v.Start, End: v.End}
						if a.Overlaps(b) {
							t.Error("reader observed overlapping intervals")
							return
						}
					}
					last = &v
				}
			}
		}
	}()

	wg.Wait()
	<-done

	for _, lane := range tl.Lanes() {
		count := 0
		for range lane.IterOrdered() {
			count++
		}
		assert.Equal(t, events, count)
	}
}
