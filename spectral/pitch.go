package spectral

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/effects/pitch"
	"github.com/cwbudde/algo-granular/granular"
)

const pitchIdentityEps = 1e-6

// PitchShift transposes signal by semitones, keeping its length.
func (t *Transformer) PitchShift(signal []float32, sampleRate int, semitones float64, fftSize, hop int) ([]float32, error) {
	if err := checkFrame(fftSize, hop); err != nil {
		return nil, err
	}
	if math.IsNaN(semitones) || math.IsInf(semitones, 0) {
		return nil, fmt.Errorf("%w: invalid pitch offset %v", granular.ErrTransformFailure, semitones)
	}
	if len(signal) == 0 {
		return []float32{}, nil
	}

	ratio := SemitonesToRatio(semitones)
	if math.Abs(ratio-1) < pitchIdentityEps {
		out := make([]float32, len(signal))
		copy(out, signal)
		return out, nil
	}

	ps, err := pitch.NewSpectralPitchShifter(float64(sampleRate))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", granular.ErrTransformFailure, err)
	}
	if err := ps.SetWindowType(t.windowType); err != nil {
		return nil, fmt.Errorf("%w: %v", granular.ErrTransformFailure, err)
	}
	if err := ps.SetFrameSize(fftSize); err != nil {
		return nil, fmt.Errorf("%w: %v", granular.ErrTransformFailure, err)
	}
	if err := ps.SetAnalysisHop(hop); err != nil {
		return nil, fmt.Errorf("%w: %v", granular.ErrTransformFailure, err)
	}
	if err := ps.SetPitchRatio(ratio); err != nil {
		return nil, fmt.Errorf("%w: %v", granular.ErrTransformFailure, err)
	}

	out, err := ps.ProcessWithError(toFloat64(signal))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", granular.ErrTransformFailure, err)
	}
	return toFloat32(fitLength(out, len(signal)))
}
