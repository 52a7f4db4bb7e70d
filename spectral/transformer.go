// Package spectral provides the phase-vocoder time-stretch and pitch-shift
// used by the granular warp stage.
package spectral

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-approx"
	"github.com/cwbudde/algo-dsp/dsp/window"
	"github.com/cwbudde/algo-granular/granular"
)

const (
	minFrameSize = 64
	normFloor    = 1e-12
	minRate      = 0.05
)

// Transformer implements granular.Capability on top of algo-fft and
// algo-dsp. It keeps no per-call state, so one value can serve concurrent
// renders.
type Transformer struct {
	windowType   window.Type
	phaseLocking bool
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithWindow selects the STFT window.
func WithWindow(t window.Type) Option {
	return func(tr *Transformer) { tr.windowType = t }
}

// WithPhaseLocking toggles identity phase locking in TimeStretch.
func WithPhaseLocking(on bool) Option {
	return func(tr *Transformer) { tr.phaseLocking = on }
}

// New returns a Transformer with a periodic Hann window and phase locking.
func New(opts ...Option) *Transformer {
	t := &Transformer{windowType: window.TypeHann, phaseLocking: true}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

var _ granular.Capability = (*Transformer)(nil)

// Available always succeeds: the transform is compiled in.
func (t *Transformer) Available() error { return nil }

// SemitonesToRatio converts a semitone offset to a frequency ratio.
func SemitonesToRatio(semitones float64) float64 {
	const ln2 = 0.69314718055994530942
	return float64(approx.FastExp(float32(semitones / 12 * ln2)))
}

func checkFrame(fftSize, hop int) error {
	if fftSize < minFrameSize || fftSize&(fftSize-1) != 0 {
		return fmt.Errorf("%w: fft size must be a power of two >= %d, got %d", granular.ErrTransformFailure, minFrameSize, fftSize)
	}
	if hop <= 0 || hop >= fftSize {
		return fmt.Errorf("%w: hop must be in [1, %d), got %d", granular.ErrTransformFailure, fftSize, hop)
	}
	return nil
}

func toFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

// toFloat32 converts back and rejects non-finite output.
func toFloat32(in []float64) ([]float32, error) {
	out := make([]float32, len(in))
	for i, v := range in {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite sample at %d", granular.ErrTransformFailure, i)
		}
		out[i] = float32(v)
	}
	return out, nil
}

func fitLength(in []float64, n int) []float64 {
	if len(in) == n {
		return in
	}
	out := make([]float64, n)
	copy(out, in)
	return out
}

func wrapPhase(x float64) float64 {
	x = math.Mod(x+math.Pi, 2*math.Pi)
	if x < 0 {
		x += 2 * math.Pi
	}
	return x - math.Pi
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
