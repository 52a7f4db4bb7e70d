package granular

import "math"

const (
	maxFadeSamples = 256
	minFadeSamples = 8
	fadeDivisor    = 20
)

// BiasedSample draws a value in [lo, hi]. Up to intensity 1 the draw is
// uniform; above it the uniform value is bent by a power curve of order
// k = min(8, 1+6*(intensity-1)) so results gather near both ends of the range.
func BiasedSample(s *Stream, lo, hi, intensity float64) float64 {
	u := s.Float64()
	return clamp(lo+(hi-lo)*biasCurve(u, intensity), lo, hi)
}

func biasCurve(u, intensity float64) float64 {
	if intensity <= 1 {
		return u
	}
	k := math.Min(8, 1+(intensity-1)*6)
	if u < 0.5 {
		return math.Pow(u, k)
	}
	return 1 - math.Pow(1-u, k)
}

// DBToGain converts decibels to a linear multiplier.
func DBToGain(db float64) float64 {
	return math.Pow(10, db/20)
}

// Reverse reverses buf in place.
func Reverse(buf []float32) {
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
}

// ApplyGainDB scales buf in place by db decibels.
func ApplyGainDB(buf []float32, db float64) {
	g := float32(DBToGain(db))
	for i := range buf {
		buf[i] *= g
	}
}

// FadeLength returns the edge fade length for a grain of n samples:
// n/20 bounded to [8, 256], never more than half the grain.
func FadeLength(n int) int {
	f := min(maxFadeSamples, max(minFadeSamples, n/fadeDivisor))
	return max(0, min(f, n/2))
}

// ApplyFade multiplies the first fadeLen samples by a linear 0→1 ramp and
// the last fadeLen samples by a 1→0 ramp. The ramps are applied one after
// the other, so they compound where they overlap.
func ApplyFade(buf []float32, fadeLen int) {
	fadeLen = max(0, min(fadeLen, len(buf)/2))
	if fadeLen == 0 {
		return
	}
	tail := len(buf) - fadeLen
	for i := 0; i < fadeLen; i++ {
		buf[i] *= ramp(i, fadeLen, 0, 1)
	}
	for i := 0; i < fadeLen; i++ {
		buf[tail+i] *= ramp(i, fadeLen, 1, 0)
	}
}

// ramp returns point i of an n-point line from start to stop inclusive.
func ramp(i, n int, start, stop float64) float32 {
	if n == 1 {
		return float32(start)
	}
	if i == n-1 {
		return float32(stop)
	}
	return float32(start + (stop-start)*float64(i)/float64(n-1))
}

// Shaper applies reverse, biased gain and edge fades to grains.
type Shaper struct {
	reverseProb float64
	gainMin     float64
	gainMax     float64
	intensity   float64
}

// NewShaper creates a shaper from normalized params.
func NewShaper(p Params) *Shaper {
	return &Shaper{
		reverseProb: clamp(p.ReverseProb*p.Intensity, 0, 1),
		gainMin:     p.GainDBMin,
		gainMax:     p.GainDBMax,
		intensity:   p.Intensity,
	}
}

// Shape returns a shaped copy of grain. It draws the reverse gate first and
// the gain second; the fade draws nothing.
func (sh *Shaper) Shape(grain []float32, s *Stream) []float32 {
	out := make([]float32, len(grain))
	copy(out, grain)

	if s.Float64() < sh.reverseProb {
		Reverse(out)
	}
	ApplyGainDB(out, sh.SampleGainDB(s))
	ApplyFade(out, FadeLength(len(out)))
	return out
}

// SampleGainDB draws one gain value in [GainDBMin, GainDBMax].
func (sh *Shaper) SampleGainDB(s *Stream) float64 {
	return BiasedSample(s, sh.gainMin, sh.gainMax, sh.intensity)
}
