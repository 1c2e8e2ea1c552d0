package loadbalance

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	// Starts at 0 and cycles through every channel
	for i := 0; i < 7; i++ {
		idx, err := b.Pick("m", 3)
		if err != nil {
			t.Fatal(err)
		}
		if idx != i%3 {
			t.Fatalf("pick %d: expect %d, got %d", i, i%3, idx)
		}
	}
}

func TestRoundRobinConcurrent(t *testing.T) {
	b := &RoundRobinBalancer{}
	const n, workers, picks = 4, 8, 100

	var mu sync.Mutex
	counts := make([]int, n)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < picks; i++ {
				idx, _ := b.Pick("m", n)
				mu.Lock()
				counts[idx]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for i, c := range counts {
		if c != workers*picks/n {
			t.Fatalf("channel %d picked %d times, expect %d", i, c, workers*picks/n)
		}
	}
}

func TestEmpty(t *testing.T) {
	for _, b := range []Balancer{&RoundRobinBalancer{}, &WeightedRandomBalancer{}, NewConsistentHashBalancer()} {
		if _, err := b.Pick("m", 0); !errors.Is(err, ErrNoChannels) {
			t.Fatalf("%s: expect ErrNoChannels, got %v", b.Name(), err)
		}
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{Weights: []int{10, 5, 10}}

	counts := make([]int, 3)
	n := 10000
	for i := 0; i < n; i++ {
		idx, err := b.Pick("m", 3)
		if err != nil {
			t.Fatal(err)
		}
		counts[idx]++
	}

	// Weight ratio is 10:5:10, so channel 0 should be ~2x channel 1
	ratio := float64(counts[0]) / float64(counts[1])
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("weight ratio 0/1 = %.2f, expect ~2.0", ratio)
	}
}

func TestWeightedRandomDefaultsMissingWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	for i := 0; i < 100; i++ {
		idx, err := b.Pick("m", 2)
		if err != nil || idx < 0 || idx > 1 {
			t.Fatalf("unexpected pick %d, %v", idx, err)
		}
	}
}

func TestConsistentHash(t *testing.T) {
	b := NewConsistentHashBalancer()

	// Same key should always map to the same channel
	first, _ := b.Pick("user.get", 3)
	second, _ := b.Pick("user.get", 3)
	if first != second {
		t.Fatalf("same key mapped to different channels: %d vs %d", first, second)
	}

	seen := map[int]bool{}
	for i := 0; i < 100; i++ {
		idx, _ := b.Pick(fmt.Sprintf("key-%d", i), 3)
		seen[idx] = true
	}
	// With 100 different keys and 3 channels, we should hit at least 2
	if len(seen) < 2 {
		t.Fatalf("expect at least 2 different channels, got %d", len(seen))
	}

	// Rebuilt for a different pool size, result stays in range
	for i := 0; i < 100; i++ {
		idx, _ := b.Pick(fmt.Sprintf("key-%d", i), 2)
		if idx < 0 || idx > 1 {
			t.Fatalf("index %d out of range", idx)
		}
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"", "round_robin", "weighted_random", "consistent_hash"} {
		if _, ok := ByName(name); !ok {
			t.Fatalf("expect balancer for %q", name)
		}
	}
	if _, ok := ByName("random"); ok {
		t.Fatal("expect unknown name to fail")
	}
}
