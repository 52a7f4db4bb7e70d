package granular

import "math"

// KeepSet pins round(n*ratio) grain indices, sampled uniformly without
// replacement. Halves round to even.
func KeepSet(n int, ratio float64, s *Stream) map[int]bool {
	keepN := int(math.RoundToEven(float64(n) * clamp(ratio, 0, 1)))
	keep := make(map[int]bool, keepN)
	if keepN <= 0 {
		return keep
	}
	for _, i := range s.Sample(n, keepN) {
		keep[i] = true
	}
	return keep
}

// Schedule returns the output order of n grains. Starting from identity it
// runs floor(3n*shuffle) iterations, each drawing two indices a and b. If
// either is pinned in keep the iteration is consumed without a swap and
// without a retry; otherwise order[a] and order[b] are exchanged.
//
// The result is a bounded approximate shuffle, not a uniform permutation.
func Schedule(n int, keep map[int]bool, shuffle float64, s *Stream) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if n <= 1 || shuffle <= 0 {
		return order
	}

	swaps := int(float64(n*3) * clamp(shuffle, 0, 1))
	for range swaps {
		a := s.Intn(n)
		b := s.Intn(n)
		if keep[a] || keep[b] {
			continue
		}
		order[a], order[b] = order[b], order[a]
	}
	return order
}
