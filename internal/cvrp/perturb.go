package cvrp

import "math/rand"

// Perturbation move kinds, selected uniformly per call.
const (
	moveSwaps = iota
	moveReverse
	moveRelocate
	moveShuffle
	numMoves
)

// perturbTour returns a structurally different tour of the same length.
// Capacity is deliberately ignored here; feasibility comes back when the
// caller re-splits the result. All moves leave position 0 alone so the
// traversal stays anchored near the depot.
func perturbTour(tour Tour, rng *rand.Rand) Tour {
	out := tour.Clone()
	n := len(out)

	switch rng.Intn(numMoves) {
	case moveSwaps:
		if n < 2 {
			return out
		}
		swaps := n / 5
		if swaps < 1 {
			swaps = 1
		}
		for k := 0; k < swaps; k++ {
			i := 1 + rng.Intn(n-1)
			j := 1 + rng.Intn(n-1)
			out[i], out[j] = out[j], out[i]
		}

	case moveReverse:
		if n <= 3 {
			return out
		}
		i, j := randSegment(n, rng)
		reverseRange(out, i, j)

	case moveRelocate:
		if n <= 2 {
			return out
		}
		i := 1 + rng.Intn(n-1)
		j := 1 + rng.Intn(n-1)
		if i != j {
			v := out[i]
			out = append(out[:i], out[i+1:]...)
			out = append(out[:j], append(Tour{v}, out[j:]...)...)
		}

	case moveShuffle:
		if n <= 3 {
			return out
		}
		i, j := randSegment(n, rng)
		rng.Shuffle(j-i+1, func(a, b int) {
			out[i+a], out[i+b] = out[i+b], out[i+a]
		})
	}
	return out
}

// randSegment picks a sub-range [i, j] with 1 <= i < j <= n-2, so the first
// and last positions are never segment endpoints.
func randSegment(n int, rng *rand.Rand) (int, int) {
	i := 1 + rng.Intn(n-3)
	j := i + 1 + rng.Intn(n-2-i)
	return i, j
}

func reverseRange(t Tour, i, j int) {
	for a, b := i, j; a < b; a, b = a+1, b-1 {
		t[a], t[b] = t[b], t[a]
	}
}
