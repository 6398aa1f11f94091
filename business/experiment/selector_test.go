package experiment

import (
	"math/rand"
	"testing"

	"abExperiments/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedSource replays the given draws in order, cycling.
type fixedSource struct {
	draws []float64
	i     int
}

func (f *fixedSource) Float64() float64 {
	v := f.draws[f.i%len(f.draws)]
	f.i++
	return v
}

func TestVariantSelector_Empty(t *testing.T) {
	_, ok := NewVariantSelector(nil).Select(nil)
	assert.False(t, ok)
}

func TestVariantSelector_Deterministic(t *testing.T) {
	variants := []domain.Variant{
		{Name: "control", Weight: 1},
		{Name: "treatment", Weight: 3},
	}

	cases := []struct {
		draw float64
		want string
	}{
		{0, "control"},
		{0.2, "control"},
		{0.25, "control"},
		{0.26, "treatment"},
		{0.999999, "treatment"},
	}

	for _, tc := range cases {
		sel := NewVariantSelector(&fixedSource{draws: []float64{tc.draw}})
		got, ok := sel.Select(variants)
		require.True(t, ok)
		assert.Equal(t, tc.want, got.Name, "draw %v", tc.draw)
	}
}

func TestVariantSelector_NonPositiveWeightsCountAsOne(t *testing.T) {
	variants := []domain.Variant{
		{Name: "a", Weight: 0},
		{Name: "b", Weight: -5},
	}

	sel := NewVariantSelector(&fixedSource{draws: []float64{0.4, 0.6}})

	first, _ := sel.Select(variants)
	second, _ := sel.Select(variants)

	assert.Equal(t, "a", first.Name)
	assert.Equal(t, "b", second.Name)
}

func TestVariantSelector_FallsBackToLast(t *testing.T) {
	variants := []domain.Variant{
		{Name: "a", Weight: 1},
		{Name: "b", Weight: 1},
	}

	// a misbehaving source overshoots the total weight
	sel := NewVariantSelector(&fixedSource{draws: []float64{1.5}})

	got, ok := sel.Select(variants)
	require.True(t, ok)
	assert.Equal(t, "b", got.Name)
}

func TestVariantSelector_ConvergesToWeights(t *testing.T) {
	variants := []domain.Variant{
		{Name: "a", Weight: 20},
		{Name: "b", Weight: 30},
		{Name: "c", Weight: 50},
	}

	const draws = 100000
	sel := NewVariantSelector(rand.New(rand.NewSource(42)))

	counts := make(map[string]int)
	for i := 0; i < draws; i++ {
		v, ok := sel.Select(variants)
		require.True(t, ok)
		counts[v.Name]++
	}

	assert.InDelta(t, 0.2, float64(counts["a"])/draws, 0.01)
	assert.InDelta(t, 0.3, float64(counts["b"])/draws, 0.01)
	assert.InDelta(t, 0.5, float64(counts["c"])/draws, 0.01)
}

func TestVariantSelector_AlwaysReturnsInput(t *testing.T) {
	variants := []domain.Variant{{Name: "only", Weight: 7}}
	sel := NewVariantSelector(nil)

	for i := 0; i < 100; i++ {
		v, ok := sel.Select(variants)
		require.True(t, ok)
		assert.Equal(t, "only", v.Name)
	}
}
