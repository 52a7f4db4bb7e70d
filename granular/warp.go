package granular

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

const (
	maxWarpFFTSize = 2048
	minWarpFFTSize = 256
	warpOverlap    = 4
)

// Capability is the spectral transform the warp stage calls into.
//
// Available is checked once before a render that requests warp. The
// transform methods return an error wrapping ErrCapabilityUnavailable when
// the backend is missing (the render aborts) and any other error for a
// numeric failure on one grain (the grain is kept as it was).
type Capability interface {
	Available() error
	TimeStretch(signal []float32, rate float64, fftSize, hop int) ([]float32, error)
	PitchShift(signal []float32, sampleRate int, semitones float64, fftSize, hop int) ([]float32, error)
}

// ChooseFFTSize returns the largest power of two not above min(2048, n),
// or 0 when that is below 256.
func ChooseFFTSize(n int) int {
	if n <= 0 {
		return 0
	}
	limit := min(maxWarpFFTSize, n)
	p := 1
	for p*2 <= limit {
		p *= 2
	}
	if p < minWarpFFTSize {
		return 0
	}
	return p
}

// ScaledProb is the effective trigger probability of one warp effect.
func ScaledProb(base, amount, intensity float64) float64 {
	p := base * amount
	p *= clamp(0.8+0.4*intensity, 0, 2)
	return clamp(p, 0, 1)
}

// FitLength truncates or zero-pads buf to exactly n samples.
func FitLength(buf []float32, n int) []float32 {
	if len(buf) == n {
		return buf
	}
	out := make([]float32, n)
	copy(out, buf)
	return out
}

// WarpStats counts what the warp stage did during one render.
type WarpStats struct {
	Stretched int
	Shifted   int
	Failures  int
}

// Warper applies probability-gated time-stretch and pitch-shift to grains.
type Warper struct {
	cap        Capability
	sampleRate int
	p          Params
	log        logrus.FieldLogger

	stats WarpStats
}

// NewWarper creates a warp stage from normalized params.
func NewWarper(c Capability, sampleRate int, p Params, log logrus.FieldLogger) *Warper {
	if log == nil {
		log = discardLogger()
	}
	return &Warper{cap: c, sampleRate: sampleRate, p: p, log: log}
}

// Enabled reports whether the warp stage can change any grain.
func (w *Warper) Enabled() bool { return w.p.WarpAmount > 0 }

// Stats returns the counters accumulated so far.
func (w *Warper) Stats() WarpStats { return w.stats }

// Warp returns the warped grain. Short grains and a zero warp amount pass
// through untouched without consuming the stream. The only error returned
// wraps ErrCapabilityUnavailable.
func (w *Warper) Warp(grain []float32, s *Stream) ([]float32, error) {
	if !w.Enabled() || len(grain) < w.p.WarpMinSamples {
		return grain, nil
	}
	fftSize := ChooseFFTSize(len(grain))
	if fftSize == 0 {
		return grain, nil
	}
	hop := max(1, fftSize/warpOverlap)

	y := grain

	if s.Float64() < ScaledProb(w.p.WarpStretchProb, w.p.WarpAmount, w.p.Intensity) {
		rate := BiasedSample(s, w.p.WarpStretchMin, w.p.WarpStretchMax, w.p.Intensity)
		rate = max(minStretchRate, rate)
		out, err := w.cap.TimeStretch(y, rate, fftSize, hop)
		switch {
		case err == nil:
			y = out
			w.stats.Stretched++
		case errors.Is(err, ErrCapabilityUnavailable):
			return nil, fmt.Errorf("time stretch: %w", err)
		default:
			w.failed("time_stretch", rate, len(grain), err)
		}
	}

	if s.Float64() < ScaledProb(w.p.WarpPitchProb, w.p.WarpAmount, w.p.Intensity) {
		steps := BiasedSample(s, w.p.WarpPitchMinSt, w.p.WarpPitchMaxSt, w.p.Intensity)
		out, err := w.cap.PitchShift(y, w.sampleRate, steps, fftSize, hop)
		switch {
		case err == nil:
			y = out
			w.stats.Shifted++
		case errors.Is(err, ErrCapabilityUnavailable):
			return nil, fmt.Errorf("pitch shift: %w", err)
		default:
			w.failed("pitch_shift", steps, len(grain), err)
		}
	}

	if w.p.WarpPreserveLength {
		y = FitLength(y, len(grain))
	}

	out := make([]float32, len(y))
	copy(out, y)
	Clip(out)
	return out, nil
}

func (w *Warper) failed(op string, value float64, n int, err error) {
	w.stats.Failures++
	w.log.WithFields(logrus.Fields{
		"op":      op,
		"value":   value,
		"samples": n,
		"error":   err,
	}).Debug("warp step failed, grain kept")
}
