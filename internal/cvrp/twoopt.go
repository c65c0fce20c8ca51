package cvrp

import "math/rand"

// twoOpt runs a bounded, randomized 2-opt pass over the tour. Each pass
// samples candidate (i, j) pairs, reverses the sub-range, re-splits and
// re-evaluates; the first strictly improving candidate is adopted and the
// pass ends early. A pass with no improvement terminates the loop. Sampling
// instead of the full O(n^2) neighborhood trades quality for scalability on
// larger instances. The returned tour never costs more than the input.
func twoOpt(tour Tour, in *Instance, rng *rand.Rand) Tour {
	n := len(tour)
	if n < 4 {
		return tour.Clone()
	}

	best := tour.Clone()
	bestCost := tourCost(best, in)

	maxPasses := 2 * n
	if maxPasses > 100 {
		maxPasses = 100
	}
	attempts := n * (n - 1) / 4
	if attempts > 50 {
		attempts = 50
	}

	improved := true
	for pass := 0; improved && pass < maxPasses; pass++ {
		improved = false
		for a := 0; a < attempts; a++ {
			i := 1 + rng.Intn(n-3)
			j := i + 1 + rng.Intn(n-2-i)

			cand := best.Clone()
			reverseRange(cand, i, j)

			if c := tourCost(cand, in); c < bestCost {
				best = cand
				bestCost = c
				improved = true
				break
			}
		}
	}
	return best
}
