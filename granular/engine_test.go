package granular

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/go-audio/audio"
)

func flatParams() *Params {
	p := NewDefaultParams()
	p.GrainMsMin = 50
	p.GrainMsMax = 50
	p.ShuffleAmount = 0
	p.KeepOriginalRatio = 0
	p.ReverseProb = 0
	p.GainDBMin = 0
	p.GainDBMax = 0
	return p
}

func TestRenderDeterministic(t *testing.T) {
	in := sineSignal(48000, 48000, 330, 0.8)
	p := NewDefaultParams()
	p.Intensity = 1.6
	p.WarpAmount = 0.7

	var first []float32
	for run := 0; run < 3; run++ {
		res, err := Render(in, 48000, p, WithCapability(&fakeCapability{}))
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
		if run == 0 {
			first = res.Audio
			continue
		}
		if len(res.Audio) != len(first) {
			t.Fatalf("run %d length %d != %d", run, len(res.Audio), len(first))
		}
		for i := range first {
			if math.Float32bits(res.Audio[i]) != math.Float32bits(first[i]) {
				t.Fatalf("run %d sample %d differs", run, i)
			}
		}
	}
}

func TestRenderSeedChangesOutput(t *testing.T) {
	in := sineSignal(20000, 16000, 200, 0.5)
	a := NewDefaultParams()
	b := a.Clone()
	b.Seed = a.Seed + 1
	ra, err := Render(in, 16000, a)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	rb, err := Render(in, 16000, b)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	same := len(ra.Audio) == len(rb.Audio)
	for i := 0; same && i < len(ra.Audio); i++ {
		same = ra.Audio[i] == rb.Audio[i]
	}
	if same {
		t.Fatalf("different seeds gave identical output")
	}
}

func TestRenderFadeShape(t *testing.T) {
	res, err := Render(constSignal(100, 1), 1000, flatParams())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.SegmentCount != 2 || len(res.Audio) != 100 {
		t.Fatalf("segments=%d len=%d, want 2/100", res.SegmentCount, len(res.Audio))
	}
	for g := 0; g < 2; g++ {
		base := g * 50
		for i := 0; i < 8; i++ {
			in := res.Audio[base+i]
			out := res.Audio[base+42+i]
			if !almostEqual(float64(in), float64(i)/7, 1e-7) {
				t.Fatalf("grain %d fade-in[%d] = %v", g, i, in)
			}
			if !almostEqual(float64(out), 1-float64(i)/7, 1e-7) {
				t.Fatalf("grain %d fade-out[%d] = %v", g, i, out)
			}
		}
		for i := 8; i < 42; i++ {
			if res.Audio[base+i] != 1 {
				t.Fatalf("grain %d interior[%d] = %v, want 1", g, i, res.Audio[base+i])
			}
		}
	}
}

func TestRenderFixedGain(t *testing.T) {
	want := math.Pow(10, -6.0/20)
	for _, seed := range []int64{1, 77, 123456} {
		p := flatParams()
		p.GainDBMin, p.GainDBMax = -6, -6
		p.ShuffleAmount = 1
		p.ReverseProb = 0.5
		p.Seed = seed
		res, err := Render(constSignal(100, 1), 1000, p)
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
		for g := 0; g < 2; g++ {
			for i := 8; i < 42; i++ {
				v := float64(res.Audio[g*50+i])
				if !almostEqual(v, want, 1e-6) {
					t.Fatalf("seed %d grain %d sample %d = %v, want %v", seed, g, i, v, want)
				}
			}
		}
	}
}

func TestRenderCapabilityGate(t *testing.T) {
	p := NewDefaultParams()
	p.WarpAmount = 0.5
	in := constSignal(48000, 0.5)

	c := &fakeCapability{availErr: errors.New("not linked")}
	res, err := Render(in, 48000, p, WithCapability(c))
	if !errors.Is(err, ErrCapabilityUnavailable) {
		t.Fatalf("err = %v, want ErrCapabilityUnavailable", err)
	}
	if res != nil {
		t.Fatalf("partial result returned")
	}
	if c.stretchCalls+c.pitchCalls != 0 {
		t.Fatalf("grains processed before the capability check")
	}

	if _, err := Render(in, 48000, p); !errors.Is(err, ErrCapabilityUnavailable) {
		t.Fatalf("nil capability err = %v", err)
	}

	// Without warp the capability is never consulted.
	p.WarpAmount = 0
	if _, err := Render(in, 48000, p, WithCapability(c)); err != nil {
		t.Fatalf("Render without warp: %v", err)
	}
}

func TestRenderEmptyInput(t *testing.T) {
	res, err := Render(nil, 44100, NewDefaultParams())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(res.Audio) != 0 || res.SegmentCount != 0 {
		t.Fatalf("empty input gave len=%d segments=%d", len(res.Audio), res.SegmentCount)
	}
}

func TestRenderOutputRange(t *testing.T) {
	p := NewDefaultParams()
	p.GainDBMin, p.GainDBMax = 6, 24
	p.Intensity = 2
	p.WarpAmount = 1
	res, err := Render(sineSignal(30000, 22050, 150, 0.95), 22050, p, WithCapability(&fakeCapability{}))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for i, v := range res.Audio {
		if v > 1 || v < -1 {
			t.Fatalf("sample %d = %v outside [-1,1]", i, v)
		}
	}
}

func TestRenderWarpFailuresAreAbsorbed(t *testing.T) {
	p := NewDefaultParams()
	p.WarpAmount = 1
	p.WarpStretchProb = 1
	p.WarpPitchProb = 1
	in := sineSignal(44100, 44100, 220, 0.5)
	c := &fakeCapability{stretchErr: transientErr("bad frame"), pitchErr: transientErr("bad frame")}
	res, err := Render(in, 44100, p, WithCapability(c))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.Warp.Failures == 0 || res.Warp.Stretched != 0 {
		t.Fatalf("warp stats = %+v", res.Warp)
	}
	if len(res.Audio) != len(in) {
		t.Fatalf("len = %d, want %d", len(res.Audio), len(in))
	}
}

func TestRenderInvalidInput(t *testing.T) {
	p := NewDefaultParams()
	p.GainDBMax = math.NaN()
	if _, err := Render(constSignal(10, 0), 1000, p); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("NaN param err = %v", err)
	}
	if _, err := Render(constSignal(10, 0), 0, NewDefaultParams()); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero sample rate err = %v", err)
	}
}

func TestRenderBufferRejectsMultichannel(t *testing.T) {
	buf := &audio.Float32Buffer{
		Format: &audio.Format{NumChannels: 2, SampleRate: 44100},
		Data:   constSignal(200, 0.1),
	}
	if _, err := RenderBuffer(buf, NewDefaultParams()); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("stereo err = %v", err)
	}
	if _, err := RenderBuffer(&audio.Float32Buffer{}, NewDefaultParams()); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing format err = %v", err)
	}

	buf.Format.NumChannels = 1
	res, err := RenderBuffer(buf, NewDefaultParams())
	if err != nil {
		t.Fatalf("RenderBuffer: %v", err)
	}
	if len(res.Audio) != 200 {
		t.Fatalf("len = %d", len(res.Audio))
	}
}

func TestRenderDoesNotMutateParams(t *testing.T) {
	p := NewDefaultParams()
	p.Intensity = 5
	p.GainDBMin, p.GainDBMax = 3, -3
	if _, err := Render(constSignal(5000, 0.2), 8000, p); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if p.Intensity != 5 || p.GainDBMin != 3 {
		t.Fatalf("caller params were modified: %+v", p)
	}
}

func TestRenderBatchMatchesSequential(t *testing.T) {
	in := sineSignal(16000, 16000, 440, 0.6)
	p := NewDefaultParams()
	p.WarpAmount = 0.5
	seeds := []int64{3, 1, 4, 1, 5, 9, 2, 6}
	c := WithCapability(&safeCapability{})

	batch, err := RenderBatch(context.Background(), in, 16000, p, seeds, 3, c)
	if err != nil {
		t.Fatalf("RenderBatch: %v", err)
	}
	if len(batch) != len(seeds) {
		t.Fatalf("got %d results, want %d", len(batch), len(seeds))
	}
	for i, seed := range seeds {
		q := p.Clone()
		q.Seed = seed
		want, err := Render(in, 16000, q, c)
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
		got := batch[i].Audio
		if len(got) != len(want.Audio) {
			t.Fatalf("seed %d length mismatch", seed)
		}
		for j := range got {
			if got[j] != want.Audio[j] {
				t.Fatalf("seed %d sample %d differs", seed, j)
			}
		}
	}
}

func TestRenderBatchStopsOnError(t *testing.T) {
	p := NewDefaultParams()
	p.WarpAmount = 1
	_, err := RenderBatch(context.Background(), constSignal(1000, 0), 8000, p, []int64{1, 2, 3}, 2)
	if !errors.Is(err, ErrCapabilityUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestRenderBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RenderBatch(ctx, constSignal(1000, 0), 8000, NewDefaultParams(), []int64{1, 2}, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

// safeCapability is a stateless fake usable from several goroutines.
type safeCapability struct{}

func (safeCapability) Available() error { return nil }

func (safeCapability) TimeStretch(signal []float32, rate float64, fftSize, hop int) ([]float32, error) {
	return (&fakeCapability{}).TimeStretch(signal, rate, fftSize, hop)
}

func (safeCapability) PitchShift(signal []float32, sampleRate int, semitones float64, fftSize, hop int) ([]float32, error) {
	return (&fakeCapability{}).PitchShift(signal, sampleRate, semitones, fftSize, hop)
}
