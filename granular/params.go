package granular

import (
	"fmt"
	"math"
)

const (
	minGrainMs         = 10
	minStretchRate     = 0.05
	stretchSpanMax     = 0.60
	pitchRangeMaxSt    = 12.0
	defaultWarpSamples = 2048
)

// Params holds all render parameters.
type Params struct {
	// Segmentation (milliseconds).
	GrainMsMin int
	GrainMsMax int

	// Randomization.
	ShuffleAmount     float64 // 0..1
	ReverseProb       float64 // 0..1
	GainDBMin         float64
	GainDBMax         float64
	KeepOriginalRatio float64 // 0..1, share of grains pinned in place

	// Intensity skews biased draws toward their extremes and scales trigger probabilities.
	Intensity float64 // 0..2

	Seed int64

	// Warp master: 0 = off, 1 = full probability.
	WarpAmount float64

	WarpStretchMin float64 // time-stretch rate, 1.0 = unchanged
	WarpStretchMax float64
	WarpPitchMinSt float64 // semitones
	WarpPitchMaxSt float64

	WarpStretchProb float64
	WarpPitchProb   float64

	// WarpPreserveLength fits every warped grain back to its pre-warp length.
	WarpPreserveLength bool

	// Grains shorter than this are never warped.
	WarpMinSamples int
}

// NewDefaultParams creates default parameters.
func NewDefaultParams() *Params {
	return &Params{
		GrainMsMin:         80,
		GrainMsMax:         220,
		ShuffleAmount:      0.70,
		ReverseProb:        0.15,
		GainDBMin:          -6.0,
		GainDBMax:          3.0,
		KeepOriginalRatio:  0.25,
		Intensity:          1.0,
		Seed:               123456,
		WarpAmount:         0.0,
		WarpStretchMin:     0.85,
		WarpStretchMax:     1.25,
		WarpPitchMinSt:     -3.0,
		WarpPitchMaxSt:     3.0,
		WarpStretchProb:    0.60,
		WarpPitchProb:      0.60,
		WarpPreserveLength: true,
		WarpMinSamples:     defaultWarpSamples,
	}
}

// Clone returns a copy of p. A nil receiver yields the defaults.
func (p *Params) Clone() *Params {
	if p == nil {
		return NewDefaultParams()
	}
	c := *p
	return &c
}

// Normalized returns a clamped copy of p with every bound pair ordered.
// Non-finite values cannot be normalized and yield ErrInvalidInput.
func (p *Params) Normalized() (Params, error) {
	if p == nil {
		return *NewDefaultParams(), nil
	}
	if err := p.checkFinite(); err != nil {
		return Params{}, err
	}

	n := *p
	n.GrainMsMin, n.GrainMsMax = orderedInt(n.GrainMsMin, n.GrainMsMax)
	n.GrainMsMin = max(minGrainMs, n.GrainMsMin)
	n.GrainMsMax = max(n.GrainMsMin, n.GrainMsMax)

	n.ShuffleAmount = clamp(n.ShuffleAmount, 0, 1)
	n.ReverseProb = clamp(n.ReverseProb, 0, 1)
	n.KeepOriginalRatio = clamp(n.KeepOriginalRatio, 0, 1)
	n.Intensity = clamp(n.Intensity, 0, 2)
	n.GainDBMin, n.GainDBMax = ordered(n.GainDBMin, n.GainDBMax)

	n.WarpAmount = clamp(n.WarpAmount, 0, 1)
	n.WarpStretchMin, n.WarpStretchMax = ordered(n.WarpStretchMin, n.WarpStretchMax)
	n.WarpPitchMinSt, n.WarpPitchMaxSt = ordered(n.WarpPitchMinSt, n.WarpPitchMaxSt)
	n.WarpStretchProb = clamp(n.WarpStretchProb, 0, 1)
	n.WarpPitchProb = clamp(n.WarpPitchProb, 0, 1)
	n.WarpMinSamples = max(0, n.WarpMinSamples)
	return n, nil
}

func (p *Params) checkFinite() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"shuffle_amount", p.ShuffleAmount},
		{"reverse_prob", p.ReverseProb},
		{"gain_db_min", p.GainDBMin},
		{"gain_db_max", p.GainDBMax},
		{"keep_original_ratio", p.KeepOriginalRatio},
		{"intensity", p.Intensity},
		{"warp_amount", p.WarpAmount},
		{"warp_stretch_min", p.WarpStretchMin},
		{"warp_stretch_max", p.WarpStretchMax},
		{"warp_pitch_min_st", p.WarpPitchMinSt},
		{"warp_pitch_max_st", p.WarpPitchMaxSt},
		{"warp_stretch_prob", p.WarpStretchProb},
		{"warp_pitch_prob", p.WarpPitchProb},
	}
	for _, f := range fields {
		if !isFinite(f.v) {
			return fmt.Errorf("%w: %s must be finite, got %v", ErrInvalidInput, f.name, f.v)
		}
	}
	return nil
}

// WarpMacro is the four-knob view of the warp parameters.
type WarpMacro struct {
	Amount       float64 // 0..1
	StretchRange float64 // 0..1, maps to a rate span of up to ±0.60 around 1.0
	PitchRange   float64 // 0..12 semitones, symmetric around 0
	Prob         float64 // 0..1, shared by stretch and pitch
}

// ApplyWarpMacro expands m into the individual warp fields of p.
func (p *Params) ApplyWarpMacro(m WarpMacro) {
	p.WarpAmount = m.Amount

	span := clamp(m.StretchRange, 0, 1) * stretchSpanMax
	p.WarpStretchMin = math.Max(minStretchRate, 1-span)
	p.WarpStretchMax = math.Max(p.WarpStretchMin, 1+span)

	pr := clamp(m.PitchRange, 0, pitchRangeMaxSt)
	p.WarpPitchMinSt = -pr
	p.WarpPitchMaxSt = pr

	prob := clamp(m.Prob, 0, 1)
	p.WarpStretchProb = prob
	p.WarpPitchProb = prob
}

// WarpMacroFromParams reads the macro knobs back from p.
func WarpMacroFromParams(p *Params) WarpMacro {
	if p == nil {
		p = NewDefaultParams()
	}
	span := math.Max(0, math.Max(1-p.WarpStretchMin, p.WarpStretchMax-1))
	pr := math.Max(math.Abs(p.WarpPitchMinSt), math.Abs(p.WarpPitchMaxSt))
	return WarpMacro{
		Amount:       p.WarpAmount,
		StretchRange: clamp(span/stretchSpanMax, 0, 1),
		PitchRange:   clamp(pr, 0, pitchRangeMaxSt),
		Prob:         (p.WarpStretchProb + p.WarpPitchProb) / 2,
	}
}
