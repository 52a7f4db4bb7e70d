package spectral

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-granular/granular"
	algofft "github.com/cwbudde/algo-fft"
)

const testSampleRate = 48000

func sine(freq float64, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.8 * math.Sin(2*math.Pi*freq*float64(i)/testSampleRate))
	}
	return out
}

func dominantFrequencyHz(t *testing.T, signal []float32) float64 {
	t.Helper()

	plan, err := algofft.NewPlan64(len(signal))
	if err != nil {
		t.Fatalf("failed to create FFT plan: %v", err)
	}
	in := make([]complex128, len(signal))
	out := make([]complex128, len(signal))
	for i, v := range signal {
		in[i] = complex(float64(v), 0)
	}
	if err := plan.Forward(out, in); err != nil {
		t.Fatalf("forward FFT failed: %v", err)
	}

	maxBin, maxMag := 1, 0.0
	for k := 1; k <= len(signal)/2; k++ {
		re, im := real(out[k]), imag(out[k])
		if mag := re*re + im*im; mag > maxMag {
			maxMag = mag
			maxBin = k
		}
	}
	return float64(maxBin) * testSampleRate / float64(len(signal))
}

func requireFinite(t *testing.T, buf []float32) {
	t.Helper()
	for i, v := range buf {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("index %d: non-finite value %v", i, v)
		}
	}
}

func TestTransformerAvailable(t *testing.T) {
	if err := New().Available(); err != nil {
		t.Fatalf("Available() = %v", err)
	}
}

func TestSemitonesToRatio(t *testing.T) {
	tests := []struct {
		st   float64
		want float64
	}{
		{0, 1},
		{12, 2},
		{-12, 0.5},
		{7, 1.4983},
		{-3, 0.8409},
	}
	for _, tt := range tests {
		got := SemitonesToRatio(tt.st)
		if math.Abs(got-tt.want)/tt.want > 0.01 {
			t.Fatalf("SemitonesToRatio(%v) = %f, want %f", tt.st, got, tt.want)
		}
	}
}

func TestTimeStretchLength(t *testing.T) {
	in := sine(440, 6000)
	tr := New()
	for _, rate := range []float64{0.5, 0.85, 1, 1.25, 2} {
		out, err := tr.TimeStretch(in, rate, 1024, 256)
		if err != nil {
			t.Fatalf("rate %v: TimeStretch() error = %v", rate, err)
		}
		want := int(math.Round(float64(len(in)) / rate))
		if len(out) != want {
			t.Fatalf("rate %v: len = %d, want %d", rate, len(out), want)
		}
		requireFinite(t, out)
	}
}

func TestTimeStretchUnityRateReconstructs(t *testing.T) {
	const n, fft = 4096, 1024
	in := sine(700, n)
	for _, locking := range []bool{true, false} {
		out, err := New(WithPhaseLocking(locking)).TimeStretch(in, 1, fft, fft/4)
		if err != nil {
			t.Fatalf("TimeStretch() error = %v", err)
		}
		for i := fft; i < n-fft; i++ {
			if d := math.Abs(float64(out[i] - in[i])); d > 1e-3 {
				t.Fatalf("locking=%v index %d: got %f, want %f", locking, i, out[i], in[i])
			}
		}
	}
}

func TestTimeStretchKeepsDominantFrequency(t *testing.T) {
	const n = 8192
	freq := float64(testSampleRate) * 40 / 2048
	in := sine(freq, n)

	for _, rate := range []float64{0.8, 1.25} {
		out, err := New().TimeStretch(in, rate, 2048, 512)
		if err != nil {
			t.Fatalf("TimeStretch() error = %v", err)
		}
		start := len(out)/2 - 1024
		got := dominantFrequencyHz(t, out[start:start+2048])
		if relErr := math.Abs(got-freq) / freq; relErr > 0.05 {
			t.Fatalf("rate %v: dominant %f Hz, want %f Hz", rate, got, freq)
		}
	}
}

func TestTimeStretchEmpty(t *testing.T) {
	out, err := New().TimeStretch(nil, 1.2, 1024, 256)
	if err != nil {
		t.Fatalf("TimeStretch() error = %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("len = %d, want 0", len(out))
	}
}

func TestTransformRejectsBadArguments(t *testing.T) {
	in := sine(440, 4096)
	tr := New()

	tests := []struct {
		name string
		call func() error
	}{
		{"stretch fft not pow2", func() error { _, err := tr.TimeStretch(in, 1, 1000, 250); return err }},
		{"stretch fft too small", func() error { _, err := tr.TimeStretch(in, 1, 32, 8); return err }},
		{"stretch hop zero", func() error { _, err := tr.TimeStretch(in, 1, 1024, 0); return err }},
		{"stretch hop too large", func() error { _, err := tr.TimeStretch(in, 1, 1024, 1024); return err }},
		{"stretch rate zero", func() error { _, err := tr.TimeStretch(in, 0, 1024, 256); return err }},
		{"stretch rate NaN", func() error { _, err := tr.TimeStretch(in, math.NaN(), 1024, 256); return err }},
		{"pitch NaN", func() error { _, err := tr.PitchShift(in, testSampleRate, math.NaN(), 1024, 256); return err }},
		{"pitch bad rate", func() error { _, err := tr.PitchShift(in, 0, 3, 1024, 256); return err }},
		{"pitch out of range", func() error { _, err := tr.PitchShift(in, testSampleRate, 48, 1024, 256); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if !errors.Is(err, granular.ErrTransformFailure) {
				t.Fatalf("error = %v, want ErrTransformFailure", err)
			}
			if errors.Is(err, granular.ErrCapabilityUnavailable) {
				t.Fatalf("numeric failure reported as unavailable: %v", err)
			}
		})
	}
}

func TestPitchShiftKeepsLength(t *testing.T) {
	in := sine(440, 5000)
	tr := New()
	for _, st := range []float64{-3, -1.5, 0.5, 3} {
		out, err := tr.PitchShift(in, testSampleRate, st, 1024, 256)
		if err != nil {
			t.Fatalf("st %v: PitchShift() error = %v", st, err)
		}
		if len(out) != len(in) {
			t.Fatalf("st %v: len = %d, want %d", st, len(out), len(in))
		}
		requireFinite(t, out)
	}
}

func TestPitchShiftZeroIsCopy(t *testing.T) {
	in := sine(440, 3000)
	out, err := New().PitchShift(in, testSampleRate, 0, 1024, 256)
	if err != nil {
		t.Fatalf("PitchShift() error = %v", err)
	}
	if &out[0] == &in[0] {
		t.Fatal("PitchShift returned the input slice")
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("index %d: got %f, want %f", i, out[i], in[i])
		}
	}
}

func TestPitchShiftMovesDominantFrequency(t *testing.T) {
	const n = 8192
	freq := float64(testSampleRate) * 40 / n
	in := sine(freq, n)

	for _, st := range []float64{7, -5} {
		out, err := New().PitchShift(in, testSampleRate, st, 2048, 512)
		if err != nil {
			t.Fatalf("PitchShift() error = %v", err)
		}
		got := dominantFrequencyHz(t, out[n/4:3*n/4])
		want := freq * SemitonesToRatio(st)
		if relErr := math.Abs(got-want) / want; relErr > 0.10 {
			t.Fatalf("st %v: dominant %f Hz, want %f Hz", st, got, want)
		}
	}
}

func TestTransformerDrivesWarpStage(t *testing.T) {
	in := sine(330, testSampleRate)
	p := granular.NewDefaultParams()
	p.WarpAmount = 1
	p.WarpStretchProb = 1
	p.WarpPitchProb = 1
	p.Seed = 5

	res, err := granular.Render(in, testSampleRate, p, granular.WithCapability(New()))
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if len(res.Audio) != len(in) {
		t.Fatalf("len = %d, want %d", len(res.Audio), len(in))
	}
	if res.Warp.Stretched == 0 || res.Warp.Shifted == 0 {
		t.Fatalf("warp stats = %+v, want both effects applied", res.Warp)
	}
	if res.Warp.Failures != 0 {
		t.Fatalf("failures = %d, want 0", res.Warp.Failures)
	}
}

func TestUnavailable(t *testing.T) {
	u := Unavailable{Reason: "backend not built"}
	if err := u.Available(); !errors.Is(err, granular.ErrCapabilityUnavailable) {
		t.Fatalf("Available() = %v", err)
	}
	if _, err := u.TimeStretch(nil, 1, 1024, 256); !errors.Is(err, granular.ErrCapabilityUnavailable) {
		t.Fatalf("TimeStretch() = %v", err)
	}
	if _, err := u.PitchShift(nil, 1, 1, 1024, 256); !errors.Is(err, granular.ErrCapabilityUnavailable) {
		t.Fatalf("PitchShift() = %v", err)
	}

	p := granular.NewDefaultParams()
	p.WarpAmount = 0.5
	_, err := granular.Render(sine(440, 4800), testSampleRate, p, granular.WithCapability(u))
	if !errors.Is(err, granular.ErrCapabilityUnavailable) {
		t.Fatalf("Render() error = %v, want ErrCapabilityUnavailable", err)
	}
}
