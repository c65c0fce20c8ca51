package cvrp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolutionRoutesRoundTrip(t *testing.T) {
	in := testInstance(t,
		[]float64{0, 10, 20, 5, 15},
		[]float64{0, 0, 10, 20, 5},
		[]int{0, 2, 3, 2, 1}, 5)

	rs := splitTour(Tour{1, 2, 3, 4}, in)
	sol := NewSolution(in, rs.Arcs())
	assert.Equal(t, rs, sol.Routes())
}

func TestSolutionForcedClosure(t *testing.T) {
	// Arc set missing the return hop 2 -> 0. The walk dead-ends at 2 and the
	// route is closed by force.
	in := testInstance(t,
		[]float64{0, 10, 20},
		[]float64{0, 0, 0},
		[]int{0, 1, 1}, 5)

	arcs := ArcSet{
		{From: 0, To: 1}: 1,
		{From: 1, To: 2}: 1,
	}
	routes := NewSolution(in, arcs).Routes()
	require.Len(t, routes, 1)
	assert.Equal(t, []int{0, 1, 2, 0}, routes[1])
}

func TestSolutionDropsEmptyWalks(t *testing.T) {
	in := testInstance(t,
		[]float64{0, 10},
		[]float64{0, 0},
		[]int{0, 1}, 5)

	// A depot self-loop produces a two-element walk, which is not a route.
	arcs := ArcSet{{From: 0, To: 0}: 1}
	assert.Empty(t, NewSolution(in, arcs).Routes())
}

func TestSolutionMetrics(t *testing.T) {
	in := testInstance(t,
		[]float64{0, 3, 0},
		[]float64{0, 0, 4},
		[]int{0, 2, 2}, 2)

	rs := splitTour(Tour{1, 2}, in)
	require.Len(t, rs, 2)

	m := FromRoutes(in, rs).Metrics()
	assert.Equal(t, 2, m.NumRoutes)
	assert.Equal(t, 2, m.TotalShops)
	assert.Equal(t, 4, m.TotalLoad)
	assert.InDelta(t, 14.0, m.TotalDistance, 1e-9)

	require.Len(t, m.Routes, 2)
	first := m.Routes[0]
	assert.Equal(t, 1, first.RouteID)
	assert.Equal(t, []int{0, 1, 0}, first.Sequence)
	assert.InDelta(t, 6.0, first.Distance, 1e-9)
	assert.Equal(t, 2, first.Load)
	assert.Equal(t, 2, first.Capacity)
	assert.Equal(t, 1, first.NumShops)

	// Default coefficients: out 3*0.15, back 3*(0.15+0.02*2) per x-route.
	assert.InDelta(t, 3*0.15+3*0.19, first.Emissions, 1e-9)
}

func TestSolutionMetricsUsesInstanceCoefficients(t *testing.T) {
	in := testInstance(t,
		[]float64{0, 10},
		[]float64{0, 0},
		[]int{0, 4}, 10)
	alpha, beta := 0.15, 0.02
	in.Alpha, in.Beta = &alpha, &beta

	m := FromRoutes(in, splitTour(Tour{1}, in)).Metrics()
	assert.InDelta(t, 3.8, m.Emissions, 1e-9)
}

func TestSolutionExplicitEmissions(t *testing.T) {
	in := testInstance(t,
		[]float64{0, 10},
		[]float64{0, 0},
		[]int{0, 4}, 10)

	sol := FromRoutes(in, splitTour(Tour{1}, in))
	assert.InDelta(t, 3.8, sol.Emissions(0.15, 0.02), 1e-9)
	assert.InDelta(t, 2.0, sol.Emissions(0.1, 0), 1e-9)
}

func TestActiveArcsSortedAndFiltered(t *testing.T) {
	in := testInstance(t,
		[]float64{0, 1, 2},
		[]float64{0, 0, 0},
		[]int{0, 1, 1}, 5)

	arcs := ArcSet{
		{From: 1, To: 2}: 1,
		{From: 0, To: 1}: 1,
		{From: 2, To: 0}: 1,
		{From: 0, To: 2}: 0, // inactive
	}
	got := NewSolution(in, arcs).ActiveArcs()
	assert.Equal(t, []Arc{{0, 1}, {1, 2}, {2, 0}}, got)
}
