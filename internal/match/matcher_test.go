package match

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/ayusman/memora/internal/fixtures"
	"github.com/ayusman/memora/internal/gallery"
)

func galleryOf(ids []string, embeddings [][]float32) *gallery.Gallery {
	entries := make([]gallery.Entry, len(ids))
	for i := range ids {
		entries[i] = gallery.Entry{Identity: ids[i], Embedding: embeddings[i]}
	}
	return gallery.New(entries)
}

func TestMatcher_ExactEmbeddingMatches(t *testing.T) {
	e2 := fixtures.Embedding(2)
	e3 := fixtures.Embedding(3)
	g := galleryOf([]string{"2", "3"}, [][]float32{e2, e3})

	m := NewMatcher(DefaultThreshold)
	d, err := m.Match(g, e2)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}

	want := Decision{Identity: "2", Index: 0, Distance: 0, Accepted: true}
	if d != want {
		t.Errorf("Match() = %+v, want %+v", d, want)
	}
}

func TestMatcher_EveryEntryMatchesItself(t *testing.T) {
	ids := []string{"1", "2", "3", "4", "5", "6"}
	embs := make([][]float32, len(ids))
	for i := range ids {
		embs[i] = fixtures.Embedding(int64(i + 1))
	}
	g := galleryOf(ids, embs)
	m := NewMatcher(0)

	for i, id := range ids {
		d, err := m.Match(g, embs[i])
		if err != nil {
			t.Fatalf("Match(%s) error = %v", id, err)
		}
		if d.Identity != id || d.Distance != 0 || !d.Accepted {
			t.Errorf("Match(%s) = %+v", id, d)
		}
	}
}

func TestMatcher_FarQueryIsRejectedDespiteArgmin(t *testing.T) {
	base := fixtures.Embedding(7)
	g := galleryOf([]string{"a", "b"}, [][]float32{
		fixtures.Offset(base, 0.9),
		fixtures.Offset(base, 0.7),
	})

	d, err := NewMatcher(DefaultThreshold).Match(g, base)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if d.Accepted {
		t.Errorf("Match() accepted a query %.3f away with threshold %.1f", d.Distance, DefaultThreshold)
	}
	if d.Identity != "b" || d.Index != 1 {
		t.Errorf("closest entry = %s (%d), want b (1)", d.Identity, d.Index)
	}
}

func TestMatcher_ThresholdIsInclusive(t *testing.T) {
	g := galleryOf([]string{"x"}, [][]float32{{0.5, 0}})

	tests := []struct {
		name      string
		query     []float32
		threshold float64
		accepted  bool
	}{
		{name: "inside", query: []float32{0.2, 0}, threshold: 0.5, accepted: true},
		{name: "exactly at threshold", query: []float32{0, 0}, threshold: 0.5, accepted: true},
		{name: "just outside", query: []float32{0, 0}, threshold: 0.49, accepted: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewMatcher(tt.threshold).Match(g, tt.query)
			if err != nil {
				t.Fatalf("Match() error = %v", err)
			}
			if d.Accepted != tt.accepted {
				t.Errorf("Accepted = %v at distance %v, want %v", d.Accepted, d.Distance, tt.accepted)
			}
		})
	}
}

func TestMatcher_TieGoesToFirstIndex(t *testing.T) {
	g := galleryOf([]string{"first", "second", "third"}, [][]float32{
		{1, 0},
		{0, 1},
		{1, 0},
	})

	d, err := NewMatcher(DefaultThreshold).Match(g, []float32{0, 0})
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if d.Index != 0 || d.Identity != "first" {
		t.Errorf("tie resolved to %s (%d), want first (0)", d.Identity, d.Index)
	}
}

func TestMatcher_EmptyGallery(t *testing.T) {
	m := NewMatcher(DefaultThreshold)

	for _, g := range []*gallery.Gallery{gallery.Empty(), nil} {
		d, err := m.Match(g, fixtures.Embedding(1))
		if !errors.Is(err, ErrEmptyGallery) {
			t.Errorf("Match() error = %v, want ErrEmptyGallery", err)
		}
		if d.Accepted {
			t.Error("empty gallery produced an accepted decision")
		}
	}
}

func TestMatcher_EmptyBuildThenMatch(t *testing.T) {
	g, err := gallery.Build(context.Background(), nil, nil)
	if !errors.Is(err, gallery.ErrEmptyGallery) {
		t.Fatalf("Build() error = %v, want ErrEmptyGallery", err)
	}

	if _, err := NewMatcher(0).Match(g, fixtures.Embedding(1)); !errors.Is(err, ErrEmptyGallery) {
		t.Errorf("Match() error = %v, want ErrEmptyGallery", err)
	}
}

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 0},
		{name: "3-4-5", a: []float32{0, 0}, b: []float32{3, 4}, want: 5},
		{name: "empty", a: nil, b: nil, want: 0},
		{name: "length mismatch", a: []float32{1}, b: []float32{1, 2}, want: math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EuclideanDistance(tt.a, tt.b); got != tt.want {
				t.Errorf("EuclideanDistance() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatcher_MismatchedDimensionIsNeverAccepted(t *testing.T) {
	g := galleryOf([]string{"short"}, [][]float32{{0, 0}})

	d, err := NewMatcher(DefaultThreshold).Match(g, fixtures.Embedding(1))
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if d.Accepted || !math.IsInf(d.Distance, 1) {
		t.Errorf("Match() = %+v, want rejected with infinite distance", d)
	}
}

func TestArgmin(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   int
	}{
		{name: "empty", values: nil, want: -1},
		{name: "single", values: []float64{3}, want: 0},
		{name: "first minimum wins", values: []float64{2, 1, 1}, want: 1},
		{name: "nan skipped", values: []float64{math.NaN(), 4, 2}, want: 2},
		{name: "all nan", values: []float64{math.NaN(), math.NaN()}, want: 0},
		{name: "infinities", values: []float64{math.Inf(1), math.Inf(1)}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Argmin(tt.values); got != tt.want {
				t.Errorf("Argmin(%v) = %d, want %d", tt.values, got, tt.want)
			}
		})
	}
}
