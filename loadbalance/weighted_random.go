package loadbalance

import (
	"math/rand"
)

// WeightedRandomBalancer picks channel i with probability proportional to
// Weights[i]. Missing or non-positive weights count as 1.
type WeightedRandomBalancer struct {
	Weights []int
}

func (b *WeightedRandomBalancer) weight(i int) int {
	if i < len(b.Weights) && b.Weights[i] > 0 {
		return b.Weights[i]
	}
	return 1
}

func (b *WeightedRandomBalancer) Pick(_ string, n int) (int, error) {
	if n <= 0 {
		return 0, ErrNoChannels
	}

	totalWeight := 0
	for i := 0; i < n; i++ {
		totalWeight += b.weight(i)
	}

	r := rand.Intn(totalWeight)
	for i := 0; i < n; i++ {
		r -= b.weight(i)
		if r < 0 {
			return i, nil
		}
	}
	return n - 1, nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
