package cvrp

import "math/rand"

// constructTour builds an initial tour with a randomized nearest-neighbor
// rule. Half the time the walk starts at the depot, otherwise at a uniformly
// random shop that becomes the first tour element; either way the depot
// itself is never stored in the tour. Ties on cost go to the first candidate
// found scanning shop ids in ascending order, which keeps runs reproducible
// for a fixed seed.
func constructTour(in *Instance, rng *rand.Rand) Tour {
	n := in.NumShops()
	remaining := make(map[int]bool, n)
	for s := 1; s <= n; s++ {
		remaining[s] = true
	}

	tour := make(Tour, 0, n)
	current := Depot
	if rng.Float64() >= 0.5 {
		start := 1 + rng.Intn(n)
		tour = append(tour, start)
		delete(remaining, start)
		current = start
	}

	for len(remaining) > 0 {
		best := -1
		bestCost := 0.0
		for s := 1; s <= n; s++ {
			if !remaining[s] {
				continue
			}
			if best == -1 || in.Cost[current][s] < bestCost {
				best = s
				bestCost = in.Cost[current][s]
			}
		}
		tour = append(tour, best)
		delete(remaining, best)
		current = best
	}
	return tour
}
