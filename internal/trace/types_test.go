package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpan_Overlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Span
		want bool
	}{
		{"disjoint", Span{0, 10}, Span{20, 30}, false},
		{"touching", Span{0, 10}, Span{10, 20}, false},
		{"overlapping", Span{0, 10}, Span{5, 15}, true},
		{"contained", Span{0, 100}, Span{40, 60}, true},
		{"identical", Span{5, 15}, Span{5, 15}, true},
		{"zero length inside", Span{5, 15}, Span{10, 10}, true},
		{"zero length at start", Span{10, 20}, Span{10, 10}, false},
		{"zero length at end", Span{0, 10}, Span{10, 10}, false},
		{"two zero lengths same tick", Span{10, 10}, Span{10, 10}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.want, tt.b.Overlaps(tt.a), "Overlaps should be symmetric")
		})
	}
}

func TestSpan_Intersects(t *testing.T) {
	// Touching spans share a point, so they intersect even though they do
	// not overlap.
	assert.True(t, Span{0, 10}.Intersects(Span{10, 20}))
	assert.False(t, Span{0, 10}.Intersects(Span{11, 20}))
	assert.True(t, Span{10, 10}.Intersects(Span{10, 10}))
}

func TestTimeUnit_Valid(t *testing.T) {
	for _, u := range []TimeUnit{Nanoseconds, Microseconds, Milliseconds, Seconds, Minutes, Hours, Days} {
		assert.True(t, u.Valid(), "unit %q should be valid", u)
	}
	assert.False(t, TimeUnit("").Valid())
	assert.False(t, TimeUnit("fortnights").Valid())
}

func TestEdgeKind_Valid(t *testing.T) {
	assert.True(t, KindWakes.Valid())
	assert.True(t, KindPrecedes.Valid())
	assert.True(t, CustomKind("preempts").Valid())
	assert.False(t, EdgeKind("").Valid())
	assert.False(t, EdgeKind("custom:").Valid(), "custom kind needs a tag")
	assert.False(t, EdgeKind("preempts").Valid(), "bare tags must go through CustomKind")
}

func TestMetadata_Clone(t *testing.T) {
	assert.Nil(t, Metadata(nil).Clone())

	m := Metadata{"comm": "kworker/0:1"}
	c := m.Clone()
	c["comm"] = "idle"
	assert.Equal(t, "kworker/0:1", m["comm"], "clone must be independent")
}
