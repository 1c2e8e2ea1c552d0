package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"sync"
)

// ConsistentHashBalancer maps keys to channels using a hash ring.
// The same key always maps to the same channel (until the pool size changes),
// which keeps per-method state warm on one peer.
//
// Virtual nodes: each channel is mapped to N virtual nodes on the ring.
// Without them a handful of channels might cluster together on the ring,
// causing uneven load distribution.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
type ConsistentHashBalancer struct {
	replicas int // Virtual nodes per channel

	mu    sync.Mutex
	size  int            // Pool size the ring was built for
	ring  []uint32       // Sorted hash values on the ring
	nodes map[uint32]int // Hash value → channel index
}

// NewConsistentHashBalancer creates a hash ring with 100 virtual nodes per channel.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{replicas: 100}
}

// build places n channels onto the ring. Each virtual node is hashed from
// "channel-{i}#{j}".
func (b *ConsistentHashBalancer) build(n int) {
	b.size = n
	b.ring = make([]uint32, 0, n*b.replicas)
	b.nodes = make(map[uint32]int, n*b.replicas)
	for i := 0; i < n; i++ {
		for j := 0; j < b.replicas; j++ {
			hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("channel-%d#%d", i, j)))
			if _, taken := b.nodes[hash]; taken {
				continue
			}
			b.ring = append(b.ring, hash)
			b.nodes[hash] = i
		}
	}
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

// Pick hashes the key and binary-searches for the first node >= hash on the
// ring, wrapping around to the first node past the end.
func (b *ConsistentHashBalancer) Pick(key string, n int) (int, error) {
	if n <= 0 {
		return 0, ErrNoChannels
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size != n {
		b.build(n)
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
