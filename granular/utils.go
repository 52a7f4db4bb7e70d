package granular

import "math"

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func ordered(a, b float64) (float64, float64) {
	if b < a {
		return b, a
	}
	return a, b
}

func orderedInt(a, b int) (int, int) {
	if b < a {
		return b, a
	}
	return a, b
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Clip limits every sample of buf to [-1, 1] in place.
func Clip(buf []float32) {
	for i, v := range buf {
		switch {
		case v > 1:
			buf[i] = 1
		case v < -1:
			buf[i] = -1
		case v != v:
			buf[i] = 0
		}
	}
}

// MsToSamples converts a duration in milliseconds to a sample count,
// rounding half to even.
func MsToSamples(ms int, sampleRate int) int {
	return int(math.RoundToEven(float64(ms) / 1000.0 * float64(sampleRate)))
}
