package granular

import (
	"fmt"
	"math"
)

// fakeCapability is a deterministic stand-in for the spectral transform.
type fakeCapability struct {
	availErr   error
	stretchErr error
	pitchErr   error

	stretchCalls int
	pitchCalls   int
	lastRate     float64
	lastSteps    float64
	lastFFT      int
	lastHop      int
}

func (f *fakeCapability) Available() error { return f.availErr }

func (f *fakeCapability) TimeStretch(signal []float32, rate float64, fftSize, hop int) ([]float32, error) {
	f.stretchCalls++
	f.lastRate = rate
	f.lastFFT = fftSize
	f.lastHop = hop
	if f.stretchErr != nil {
		return nil, f.stretchErr
	}
	n := int(math.Round(float64(len(signal)) / rate))
	out := make([]float32, n)
	for i := range out {
		out[i] = signal[min(len(signal)-1, int(float64(i)*rate))]
	}
	return out, nil
}

func (f *fakeCapability) PitchShift(signal []float32, sampleRate int, semitones float64, fftSize, hop int) ([]float32, error) {
	f.pitchCalls++
	f.lastSteps = semitones
	if f.pitchErr != nil {
		return nil, f.pitchErr
	}
	out := make([]float32, len(signal))
	for i, v := range signal {
		out[i] = 2 * v
	}
	return out, nil
}

func constSignal(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func sineSignal(n int, sampleRate int, freq float64, amp float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = amp * float32(math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}

func transientErr(msg string) error {
	return fmt.Errorf("%w: %s", ErrTransformFailure, msg)
}

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
