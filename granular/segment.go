package granular

// minGrainSamples is the floor applied to both grain length bounds.
const minGrainSamples = 16

// Grain is an owned, contiguous slice of the source signal.
type Grain struct {
	Start   int
	Samples []float32
}

// Len returns the grain length in samples.
func (g Grain) Len() int { return len(g.Samples) }

// Segment splits audio left to right into non-overlapping grains whose
// lengths are drawn uniformly from [minLen, min(maxLen, remaining)].
// Once no more than minLen samples remain, they form one final grain that
// may be shorter than minLen. Concatenating the grains reproduces audio.
func Segment(audio []float32, minLen, maxLen int, s *Stream) []Grain {
	minLen = max(minGrainSamples, minLen)
	maxLen = max(minLen, maxLen)

	var grains []Grain
	n := len(audio)
	for i := 0; i < n; {
		remaining := n - i
		if remaining <= minLen {
			grains = append(grains, newGrain(audio, i, n))
			break
		}
		size := s.IntRange(minLen, min(maxLen, remaining))
		grains = append(grains, newGrain(audio, i, i+size))
		i += size
	}
	return grains
}

func newGrain(audio []float32, start, end int) Grain {
	buf := make([]float32, end-start)
	copy(buf, audio[start:end])
	return Grain{Start: start, Samples: buf}
}
