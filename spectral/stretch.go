package spectral

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/window"
	"github.com/cwbudde/algo-granular/granular"
	algofft "github.com/cwbudde/algo-fft"
)

// TimeStretch changes the duration of signal by 1/rate without changing its
// pitch. rate > 1 shortens, rate < 1 lengthens. The result has
// round(len(signal)/rate) samples.
func (t *Transformer) TimeStretch(signal []float32, rate float64, fftSize, hop int) ([]float32, error) {
	if err := checkFrame(fftSize, hop); err != nil {
		return nil, err
	}
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return nil, fmt.Errorf("%w: invalid stretch rate %v", granular.ErrTransformFailure, rate)
	}
	rate = max(minRate, rate)
	target := int(math.Round(float64(len(signal)) / rate))
	if len(signal) == 0 {
		return []float32{}, nil
	}

	analysisHop := max(1, int(math.Round(float64(hop)*rate)))
	out, err := t.vocode(toFloat64(signal), fftSize, analysisHop, hop)
	if err != nil {
		return nil, err
	}
	return toFloat32(fitLength(out, target))
}

// vocode reads frames every analysisHop samples and writes them every
// synthesisHop samples with phases advanced to match.
func (t *Transformer) vocode(input []float64, frameSize, analysisHop, synthesisHop int) ([]float64, error) {
	plan, err := algofft.NewPlan64(frameSize)
	if err != nil {
		return nil, fmt.Errorf("%w: fft plan: %v", granular.ErrTransformFailure, err)
	}
	win := window.Generate(t.windowType, frameSize, window.WithPeriodic())
	if len(win) != frameSize {
		return nil, fmt.Errorf("%w: window generation failed for size %d", granular.ErrTransformFailure, frameSize)
	}

	half := frameSize / 2
	bins := half + 1
	omega := make([]float64, bins)
	for k := range bins {
		omega[k] = 2 * math.Pi * float64(k) / float64(frameSize)
	}

	var (
		prevPhase = make([]float64, bins)
		sumPhase  = make([]float64, bins)
		mags      = make([]float64, bins)
		instFreq  = make([]float64, bins)
		peaks     = make([]int, 0, bins)

		analysis  = make([]complex128, frameSize)
		synthesis = make([]complex128, frameSize)
		frame     = make([]complex128, frameSize)
	)

	frameCount := 1 + (len(input)-1)/analysisHop
	outLen := (frameCount-1)*synthesisHop + frameSize
	out := make([]float64, outLen)
	norm := make([]float64, outLen)

	ha := float64(analysisHop)
	hs := float64(synthesisHop)

	for f := range frameCount {
		inPos := f * analysisHop
		outPos := f * synthesisHop

		for i := range frameSize {
			x := 0.0
			if idx := inPos + i; idx < len(input) {
				x = input[idx]
			}
			analysis[i] = complex(x*win[i], 0)
		}
		if err := plan.Forward(analysis, analysis); err != nil {
			return nil, fmt.Errorf("%w: forward fft: %v", granular.ErrTransformFailure, err)
		}

		for k := 0; k <= half; k++ {
			re, im := real(analysis[k]), imag(analysis[k])
			mags[k] = math.Hypot(re, im)
			phase := math.Atan2(im, re)
			if f == 0 {
				instFreq[k] = omega[k]
				sumPhase[k] = phase - omega[k]*hs
			} else {
				delta := wrapPhase(phase - prevPhase[k] - omega[k]*ha)
				instFreq[k] = omega[k] + delta/ha
			}
			prevPhase[k] = phase
		}

		peaks = peaks[:0]
		if t.phaseLocking {
			for k := 1; k < half; k++ {
				if mags[k] >= mags[k-1] && mags[k] > mags[k+1] {
					peaks = append(peaks, k)
				}
			}
		}

		if len(peaks) == 0 {
			for k := 0; k <= half; k++ {
				sumPhase[k] += instFreq[k] * hs
				synthesis[k] = complex(mags[k]*math.Cos(sumPhase[k]), mags[k]*math.Sin(sumPhase[k]))
			}
		} else {
			for _, pk := range peaks {
				sumPhase[pk] += instFreq[pk] * hs
			}
			p := 0
			for k := 0; k <= half; k++ {
				for p+1 < len(peaks) && absInt(peaks[p+1]-k) < absInt(peaks[p]-k) {
					p++
				}
				pk := peaks[p]
				if k != pk {
					sumPhase[k] = sumPhase[pk] + (prevPhase[k] - prevPhase[pk])
				}
				synthesis[k] = complex(mags[k]*math.Cos(sumPhase[k]), mags[k]*math.Sin(sumPhase[k]))
			}
		}

		// Hermitian mirror for a real-valued frame.
		synthesis[0] = complex(real(synthesis[0]), 0)
		synthesis[half] = complex(real(synthesis[half]), 0)
		for k := 1; k < half; k++ {
			v := synthesis[k]
			synthesis[frameSize-k] = complex(real(v), -imag(v))
		}

		if err := plan.Inverse(frame, synthesis); err != nil {
			return nil, fmt.Errorf("%w: inverse fft: %v", granular.ErrTransformFailure, err)
		}

		for i := range frameSize {
			w := win[i]
			out[outPos+i] += real(frame[i]) * w
			norm[outPos+i] += w * w
		}
	}

	for i := range out {
		if norm[i] > normFloor {
			out[i] /= norm[i]
		}
	}
	return out, nil
}
