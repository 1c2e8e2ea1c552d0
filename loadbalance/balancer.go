// Package loadbalance decides which of several channels carries an outbound
// call.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity channels, strict rotation starting at 0
//   - WeightedRandom:  heterogeneous peers (different CPU/memory)
//   - ConsistentHash:  method affinity, the same method lands on the same channel
package loadbalance

import "errors"

// ErrNoChannels is returned when there is nothing to pick from.
var ErrNoChannels = errors.New("no channels available")

// Balancer is the interface for load balancing strategies.
// The client calls Pick() before each call to select a channel index.
type Balancer interface {
	// Pick returns an index in [0, n). key is the method name of the call.
	// Called on every call, must be goroutine-safe.
	Pick(key string, n int) (int, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// ByName returns a fresh balancer for a configuration name.
func ByName(name string) (Balancer, bool) {
	switch name {
	case "", "round_robin", "RoundRobin":
		return &RoundRobinBalancer{}, true
	case "weighted_random", "WeightedRandom":
		return &WeightedRandomBalancer{}, true
	case "consistent_hash", "ConsistentHash":
		return NewConsistentHashBalancer(), true
	}
	return nil, false
}
