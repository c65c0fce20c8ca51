package cvrp

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shopsOf(t Tour) []int {
	out := append([]int(nil), t...)
	sort.Ints(out)
	return out
}

func TestConstructTourVisitsEveryShopOnce(t *testing.T) {
	in := testInstance(t,
		[]float64{0, 10, 20, 30, 40, 50},
		[]float64{0, 5, 15, 25, 35, 45},
		[]int{0, 1, 1, 1, 1, 1}, 10)

	for seed := int64(1); seed <= 20; seed++ {
		tour := constructTour(in, rand.New(rand.NewSource(seed)))
		require.Len(t, tour, in.NumShops())
		assert.Equal(t, []int{1, 2, 3, 4, 5}, shopsOf(tour), "seed %d", seed)
		assert.NotContains(t, tour, Depot)
	}
}

func TestPerturbTourPreservesShops(t *testing.T) {
	tour := Tour{3, 1, 5, 2, 4, 6, 8, 7}
	want := shopsOf(tour)
	for seed := int64(1); seed <= 50; seed++ {
		got := perturbTour(tour, rand.New(rand.NewSource(seed)))
		require.Len(t, got, len(tour), "seed %d", seed)
		assert.Equal(t, want, shopsOf(got), "seed %d", seed)
	}
}

func TestPerturbTourLeavesAnchorShop(t *testing.T) {
	tour := Tour{9, 1, 2, 3, 4, 5}
	for seed := int64(1); seed <= 50; seed++ {
		got := perturbTour(tour, rand.New(rand.NewSource(seed)))
		assert.Equal(t, 9, got[0], "seed %d moved the anchor", seed)
	}
}

func TestPerturbTourTinyToursAreSafe(t *testing.T) {
	for _, tour := range []Tour{{}, {1}, {1, 2}, {1, 2, 3}} {
		for seed := int64(1); seed <= 20; seed++ {
			got := perturbTour(tour, rand.New(rand.NewSource(seed)))
			assert.Equal(t, shopsOf(tour), shopsOf(got))
		}
	}
}

func TestTwoOptNeverWorsens(t *testing.T) {
	in := testInstance(t,
		[]float64{0, 12, 40, 7, 33, 21, 48},
		[]float64{0, 30, 8, 22, 41, 3, 17},
		[]int{0, 2, 1, 3, 2, 1, 2}, 6)

	tour := Tour{4, 2, 6, 1, 5, 3}
	before := tourCost(tour, in)
	for seed := int64(1); seed <= 10; seed++ {
		got := twoOpt(tour, in, rand.New(rand.NewSource(seed)))
		assert.LessOrEqual(t, tourCost(got, in), before, "seed %d", seed)
		assert.Equal(t, shopsOf(tour), shopsOf(got), "seed %d", seed)
	}
}

func TestTwoOptShortTourUnchanged(t *testing.T) {
	in := testInstance(t,
		[]float64{0, 1, 2, 3},
		[]float64{0, 1, 0, 1},
		[]int{0, 1, 1, 1}, 5)

	tour := Tour{2, 1, 3}
	got := twoOpt(tour, in, rand.New(rand.NewSource(1)))
	assert.Equal(t, tour, got)
}
