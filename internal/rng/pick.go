package rng

import "fmt"

// WeightedIndex picks an index with probability proportional to its weight.
// A weight of zero makes that index unreachable.
//
// Precondition: every weight >= 0 and at least one weight > 0.
// Postcondition: Returns an index i with weights[i] > 0, or an error when the
// precondition fails.
func WeightedIndex(src Source, weights []int) (int, error) {
	total := 0
	for i, w := range weights {
		if w < 0 {
			return 0, fmt.Errorf("weight %d is negative", i)
		}
		total += w
	}
	if total <= 0 {
		return 0, fmt.Errorf("weights sum to zero")
	}

	roll := src.Intn(total)
	for i, w := range weights {
		if roll < w {
			return i, nil
		}
		roll -= w
	}
	// Unreachable: roll < total by the Source contract.
	return len(weights) - 1, nil
}
