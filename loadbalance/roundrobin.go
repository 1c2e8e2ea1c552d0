package loadbalance

import (
	"sync/atomic"
)

// RoundRobinBalancer distributes calls evenly across all channels in order:
// 0, 1, ..., n-1, then wraps around.
// Uses an atomic counter for lock-free, goroutine-safe operation.
type RoundRobinBalancer struct {
	counter atomic.Uint64 // Number of picks so far
}

// Pick selects the next channel in round-robin order.
func (b *RoundRobinBalancer) Pick(_ string, n int) (int, error) {
	if n <= 0 {
		return 0, ErrNoChannels
	}
	next := b.counter.Add(1) - 1
	return int(next % uint64(n)), nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
