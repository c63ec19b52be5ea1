package harness

import (
	"encoding/json"
	"fmt"
	"sort"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/lanetrace/lanetrace/internal/timeline"
	"github.com/lanetrace/lanetrace/internal/trace"
)

// Snapshot renders a timeline into a canonical, deterministic JSON document.
//
// Refs are minted randomly, so the snapshot never contains them: intervals
// are identified by lane position ("laneID[n]"), which is deterministic
// because lane order is (start, insertion seq) and lanes are listed in
// canonical order. Golden files stay stable across runs.
func Snapshot(tl *timeline.Timeline) ([]byte, error) {
	type intervalDump struct {
		Entity   string            `json:"entity"`
		Start    int64             `json:"start"`
		End      *int64            `json:"end,omitempty"`
		Open     bool              `json:"open,omitempty"`
		Metadata map[string]string `json:"metadata,omitempty"`
	}
	type laneDump struct {
		Lane      string         `json:"lane"`
		Intervals []intervalDump `json:"intervals"`
	}
	type edgeDump struct {
		From string `json:"from"`
		To   string `json:"to"`
		Kind string `json:"kind"`
	}
	type boundsDump struct {
		Min int64 `json:"min"`
		Max int64 `json:"max"`
	}
	type entityDump struct {
		Key   string `json:"key"`
		Label string `json:"label,omitempty"`
	}
	type snapshotDump struct {
		TimeUnit string       `json:"time_unit"`
		Bounds   *boundsDump  `json:"bounds,omitempty"`
		Entities []entityDump `json:"entities"`
		Lanes    []laneDump   `json:"lanes"`
		Edges    []edgeDump   `json:"edges"`
	}

	dump := snapshotDump{
		TimeUnit: string(tl.Options().TimeUnit),
		Entities: []entityDump{},
		Lanes:    []laneDump{},
		Edges:    []edgeDump{},
	}
	if min, max, ok := tl.Bounds(); ok {
		dump.Bounds = &boundsDump{Min: int64(min), Max: int64(max)}
	}

	entityKeys := make(map[trace.EntityRef]string)
	for _, ent := range tl.Entities() {
		entityKeys[ent.Ref] = ent.Key
		dump.Entities = append(dump.Entities, entityDump{Key: ent.Key, Label: ent.Label})
	}

	// Positional identity for edge endpoints: "laneID[n]" in lane order.
	position := make(map[trace.IntervalRef]string)
	for _, lane := range tl.Lanes() {
		ld := laneDump{Lane: string(lane.ID()), Intervals: []intervalDump{}}
		i := 0
		for v := range lane.IterOrdered() {
			position[v.Ref] = fmt.Sprintf("%s[%d]", lane.ID(), i)
			i++

			id := intervalDump{
				Entity:   entityKeys[v.Entity],
				Start:    int64(v.Start),
				Metadata: v.Metadata,
			}
			if v.Closed {
				end := int64(v.End)
				id.End = &end
			} else {
				id.Open = true
			}
			ld.Intervals = append(ld.Intervals, id)
		}
		dump.Lanes = append(dump.Lanes, ld)
	}

	for _, e := range tl.Edges() {
		from, ok := position[e.From]
		if !ok {
			from = "(pruned)"
		}
		to, ok := position[e.To]
		if !ok {
			to = "(pruned)"
		}
		dump.Edges = append(dump.Edges, edgeDump{From: from, To: to, Kind: string(e.Kind)})
	}
	// tl.Edges() orders by ref, which is random; reorder by positional
	// identity so snapshots are stable across runs.
	sort.Slice(dump.Edges, func(i, j int) bool {
		a, b := dump.Edges[i], dump.Edges[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		return a.Kind < b.Kind
	})

	return json.MarshalIndent(dump, "", "  ")
}

// RunGolden executes a scenario and compares the resulting timeline snapshot
// against testdata/golden/{scenario.Name}.golden. Regenerate golden files
// with:
//
//	go test ./internal/harness -update
func RunGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	snap, err := Snapshot(result.Timeline)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, snap)
	return result, nil
}
