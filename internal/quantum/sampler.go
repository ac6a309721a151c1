package quantum

import (
	"math/rand"
	"sync"
	"time"
)

// Sampler draws measurement outcomes from a probability distribution. One
// Sampler is shared by the local backend across jobs, so access to the
// underlying PRNG is serialized.
type Sampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSampler creates a sampler. Seed 0 derives a seed from the clock;
// any other value makes runs reproducible.
func NewSampler(seed int64) *Sampler {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Sampler{rng: rand.New(rand.NewSource(seed))}
}

// Collapse draws a single basis index from the distribution by walking the
// cumulative sum against one uniform variate.
func (s *Sampler) Collapse(probs []float64) int {
	s.mu.Lock()
	r := s.rng.Float64()
	s.mu.Unlock()
	return collapseAt(probs, r)
}

func collapseAt(probs []float64, r float64) int {
	cumulative := 0.0
	for i, p := range probs {
		cumulative += p
		if r <= cumulative {
			return i
		}
	}
	// Floating-point drift can leave the cumulative sum a hair under 1;
	// the final nonzero bucket absorbs the tail.
	for i := len(probs) - 1; i >= 0; i-- {
		if probs[i] > 0 {
			return i
		}
	}
	return len(probs) - 1
}

// Sample runs the fixed shot-count sampling loop: shots independent draws
// from probs, bucketed by bitstring. numQubits fixes the label width.
// The returned counts always sum to shots.
func (s *Sampler) Sample(probs []float64, shots, numQubits int) map[string]int {
	counts := make(map[string]int)
	for shot := 0; shot < shots; shot++ {
		idx := s.Collapse(probs)
		counts[FormatBitstring(idx, numQubits)]++
	}
	return counts
}
