// Package cvrp implements the iterated local search engine for the
// single-depot capacitated vehicle routing problem behind the service:
// tour construction, capacity-feasible splitting, perturbation, a
// randomized 2-opt pass, the ILS control loop and solution metrics.
package cvrp

import (
	"errors"
	"fmt"
	"math"
)

// Depot is the fixed origin/destination location id for every route.
const Depot = 0

var (
	// ErrNoInstance is returned when a solver is built or run without instance data.
	ErrNoInstance = errors.New("no instance data provided")
	// ErrDemandExceedsCapacity marks an instance where a single shop cannot fit
	// into any vehicle, making every split structurally infeasible.
	ErrDemandExceedsCapacity = errors.New("shop demand exceeds vehicle capacity")
)

// Instance is the immutable problem data for one solve. Location ids run
// 0..n with 0 as the depot; index i of the coordinate and demand slices
// belongs to location i. Demand[0] is always zero.
type Instance struct {
	X, Y     []float64
	Cost     [][]float64 // pairwise Euclidean distance, symmetric
	Capacity int
	Demand   []int
	// Optional emissions coefficients: base kg/km and load-dependent kg/km/kg.
	Alpha *float64
	Beta  *float64
	// Method annotates which solver produced the solution, for reporting only.
	Method string
}

// NumShops returns |N|, the number of locations excluding the depot.
func (in *Instance) NumShops() int {
	if in == nil {
		return 0
	}
	return len(in.X) - 1
}

// Validate checks structural invariants once, up front, so the search loop
// never has to handle a split that can fail.
func (in *Instance) Validate() error {
	if in == nil || len(in.X) == 0 {
		return ErrNoInstance
	}
	n := len(in.X)
	if len(in.Y) != n || len(in.Demand) != n || len(in.Cost) != n {
		return fmt.Errorf("inconsistent instance arrays: x=%d y=%d demand=%d cost=%d", len(in.X), len(in.Y), len(in.Demand), len(in.Cost))
	}
	if n < 2 {
		return fmt.Errorf("instance needs at least one shop besides the depot")
	}
	if in.Capacity <= 0 {
		return fmt.Errorf("vehicle capacity must be positive, got %d", in.Capacity)
	}
	for i := 1; i < n; i++ {
		if in.Demand[i] <= 0 {
			return fmt.Errorf("shop %d demand must be positive, got %d", i, in.Demand[i])
		}
		if in.Demand[i] > in.Capacity {
			return fmt.Errorf("shop %d demand %d vs capacity %d: %w", i, in.Demand[i], in.Capacity, ErrDemandExceedsCapacity)
		}
	}
	for i := range in.Cost {
		if len(in.Cost[i]) != n {
			return fmt.Errorf("cost row %d has %d entries, want %d", i, len(in.Cost[i]), n)
		}
	}
	return nil
}

// NewInstance builds an instance from coordinates and demands, computing the
// full Euclidean cost matrix. Demand index 0 (the depot) is forced to zero.
func NewInstance(x, y []float64, demand []int, capacity int) (*Instance, error) {
	in := &Instance{X: x, Y: y, Demand: append([]int(nil), demand...), Capacity: capacity}
	if len(in.Demand) > 0 {
		in.Demand[0] = 0
	}
	in.Cost = CostMatrix(x, y)
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return in, nil
}

// CostMatrix computes the full pairwise Euclidean distance matrix.
func CostMatrix(x, y []float64) [][]float64 {
	n := len(x)
	c := make([][]float64, n)
	for i := 0; i < n; i++ {
		c[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			c[i][j] = math.Hypot(x[i]-x[j], y[i]-y[j])
		}
	}
	return c
}

// Tour is an ordered visitation sequence over the shops. The depot is never
// stored in the slice; position 0 is the shop visited first after leaving
// the depot, and perturbation keeps it pinned as the traversal anchor.
type Tour []int

// Clone returns an independent copy of the tour.
func (t Tour) Clone() Tour { return append(Tour(nil), t...) }

// RouteSet maps route ids (1..k, in the order routes were closed) to
// depot-bracketed location sequences. Interior shops partition N and every
// route's interior demand fits the vehicle capacity.
type RouteSet map[int][]int

// Arc is a directed edge between two locations.
type Arc struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// ArcSet marks which arcs a solution uses, keyed by arc with value 1.
type ArcSet map[Arc]int

// Arcs flattens a route set into its used arcs.
func (rs RouteSet) Arcs() ArcSet {
	out := ArcSet{}
	for _, route := range rs {
		for i := 0; i+1 < len(route); i++ {
			out[Arc{From: route[i], To: route[i+1]}] = 1
		}
	}
	return out
}
