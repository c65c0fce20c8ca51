package cvrp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInstance(t *testing.T, x, y []float64, demand []int, capacity int) *Instance {
	t.Helper()
	in, err := NewInstance(x, y, demand, capacity)
	require.NoError(t, err)
	return in
}

func TestSplitTourClosesOnOverflow(t *testing.T) {
	// Three shops of demand 2 against capacity 5: the third shop cannot join
	// the first route, so the split must open a second one.
	in := testInstance(t,
		[]float64{0, 1, 2, 3},
		[]float64{0, 0, 0, 0},
		[]int{0, 2, 2, 2}, 5)

	rs := splitTour(Tour{1, 2, 3}, in)
	require.Len(t, rs, 2)
	assert.Equal(t, []int{Depot, 1, 2, Depot}, rs[1])
	assert.Equal(t, []int{Depot, 3, Depot}, rs[2])
}

func TestSplitTourSingleRoute(t *testing.T) {
	in := testInstance(t,
		[]float64{0, 1, 2, 3},
		[]float64{0, 0, 0, 0},
		[]int{0, 1, 1, 1}, 10)

	rs := splitTour(Tour{3, 1, 2}, in)
	require.Len(t, rs, 1)
	assert.Equal(t, []int{Depot, 3, 1, 2, Depot}, rs[1])
}

func TestSplitTourPartitionsShops(t *testing.T) {
	in := testInstance(t,
		[]float64{0, 5, 10, 15, 20, 25},
		[]float64{0, 1, 2, 3, 4, 5},
		[]int{0, 3, 1, 2, 3, 2}, 4)

	rs := splitTour(Tour{5, 3, 1, 4, 2}, in)

	seen := map[int]int{}
	for id, route := range rs {
		require.Equal(t, Depot, route[0], "route %d must start at depot", id)
		require.Equal(t, Depot, route[len(route)-1], "route %d must end at depot", id)
		load := 0
		for _, loc := range route[1 : len(route)-1] {
			require.NotEqual(t, Depot, loc)
			seen[loc]++
			load += in.Demand[loc]
		}
		assert.LessOrEqual(t, load, in.Capacity, "route %d overloaded", id)
	}
	require.Len(t, seen, in.NumShops())
	for shop, count := range seen {
		assert.Equalf(t, 1, count, "shop %d visited %d times", shop, count)
	}
}

func TestValidateRejectsOversizedDemand(t *testing.T) {
	_, err := NewInstance(
		[]float64{0, 1},
		[]float64{0, 0},
		[]int{0, 7}, 5)
	require.ErrorIs(t, err, ErrDemandExceedsCapacity)
}
