package granular

import "math/rand"

// Stream is the single random source of one render. Every stage draws from
// it in a fixed order, so a seed fully determines the output:
//
//  1. segmentation: one IntRange per grain except the last
//  2. keep-set: Sample(n, keepN)
//  3. scheduling: two Intn per swap iteration
//  4. shaping, per grain in output order: reverse gate, gain draw
//  5. warp, per shaped grain: stretch gate [+ rate], pitch gate [+ steps]
//
// A Stream is not safe for concurrent use.
type Stream struct {
	r *rand.Rand
}

// NewStream returns a stream seeded with seed.
func NewStream(seed int64) *Stream {
	return &Stream{r: rand.New(rand.NewSource(seed))}
}

// Float64 returns a uniform value in [0, 1).
func (s *Stream) Float64() float64 { return s.r.Float64() }

// Intn returns a uniform integer in [0, n). n must be > 0.
func (s *Stream) Intn(n int) int { return s.r.Intn(n) }

// IntRange returns a uniform integer in [lo, hi], both inclusive.
// A collapsed range still consumes one draw.
func (s *Stream) IntRange(lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + s.r.Intn(hi-lo+1)
}

// Sample returns k distinct indices from [0, n) chosen uniformly without
// replacement, in draw order.
func (s *Stream) Sample(n, k int) []int {
	if k <= 0 || n <= 0 {
		return nil
	}
	k = min(k, n)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + s.r.Intn(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	out := make([]int, k)
	copy(out, idx[:k])
	return out
}
