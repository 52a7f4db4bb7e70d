package preset

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cwbudde/algo-granular/granular"
)

// File is the JSON schema for remix presets. Every field is optional;
// missing fields keep their default and unknown keys are ignored.
type File struct {
	GrainMsMin        *int     `json:"grain_ms_min,omitempty"`
	GrainMsMax        *int     `json:"grain_ms_max,omitempty"`
	ShuffleAmount     *float64 `json:"shuffle_amount,omitempty"`
	ReverseProb       *float64 `json:"reverse_prob,omitempty"`
	GainDBMin         *float64 `json:"gain_db_min,omitempty"`
	GainDBMax         *float64 `json:"gain_db_max,omitempty"`
	KeepOriginalRatio *float64 `json:"keep_original_ratio,omitempty"`
	Intensity         *float64 `json:"intensity,omitempty"`
	Seed              *int64   `json:"seed,omitempty"`

	WarpAmount         *float64 `json:"warp_amount,omitempty"`
	WarpStretchMin     *float64 `json:"warp_stretch_min,omitempty"`
	WarpStretchMax     *float64 `json:"warp_stretch_max,omitempty"`
	WarpPitchMinSt     *float64 `json:"warp_pitch_min_st,omitempty"`
	WarpPitchMaxSt     *float64 `json:"warp_pitch_max_st,omitempty"`
	WarpStretchProb    *float64 `json:"warp_stretch_prob,omitempty"`
	WarpPitchProb      *float64 `json:"warp_pitch_prob,omitempty"`
	WarpPreserveLength *bool    `json:"warp_preserve_length,omitempty"`
	WarpMinSamples     *int     `json:"warp_min_samples,omitempty"`
}

// LoadJSON loads a preset JSON file and applies it on top of default params.
func LoadJSON(path string) (*granular.Params, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse decodes a preset document on top of default params.
func Parse(b []byte) (*granular.Params, error) {
	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	p := granular.NewDefaultParams()
	if err := ApplyFile(p, &f); err != nil {
		return nil, err
	}
	return p, nil
}

// FromMap builds params from a decoded key/value document, such as one
// produced by another tool.
func FromMap(m map[string]any) (*granular.Params, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// SaveJSON writes every field of p as a flat, indented JSON document.
func SaveJSON(path string, p *granular.Params) error {
	b, err := json.MarshalIndent(ToFile(p), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

// ToFile returns a File with every field of p set.
func ToFile(p *granular.Params) *File {
	c := p.Clone()
	return &File{
		GrainMsMin:         &c.GrainMsMin,
		GrainMsMax:         &c.GrainMsMax,
		ShuffleAmount:      &c.ShuffleAmount,
		ReverseProb:        &c.ReverseProb,
		GainDBMin:          &c.GainDBMin,
		GainDBMax:          &c.GainDBMax,
		KeepOriginalRatio:  &c.KeepOriginalRatio,
		Intensity:          &c.Intensity,
		Seed:               &c.Seed,
		WarpAmount:         &c.WarpAmount,
		WarpStretchMin:     &c.WarpStretchMin,
		WarpStretchMax:     &c.WarpStretchMax,
		WarpPitchMinSt:     &c.WarpPitchMinSt,
		WarpPitchMaxSt:     &c.WarpPitchMaxSt,
		WarpStretchProb:    &c.WarpStretchProb,
		WarpPitchProb:      &c.WarpPitchProb,
		WarpPreserveLength: &c.WarpPreserveLength,
		WarpMinSamples:     &c.WarpMinSamples,
	}
}

// ApplyFile applies a parsed preset file onto an existing params object.
// Values the engine clamps on read are taken as they are; only values that
// make no sense for any render are rejected.
func ApplyFile(dst *granular.Params, f *File) error {
	if dst == nil {
		return fmt.Errorf("nil destination params")
	}
	if f == nil {
		return nil
	}

	if f.GrainMsMin != nil {
		if *f.GrainMsMin <= 0 {
			return fmt.Errorf("grain_ms_min must be > 0")
		}
		dst.GrainMsMin = *f.GrainMsMin
	}
	if f.GrainMsMax != nil {
		if *f.GrainMsMax <= 0 {
			return fmt.Errorf("grain_ms_max must be > 0")
		}
		dst.GrainMsMax = *f.GrainMsMax
	}
	setFloat(&dst.ShuffleAmount, f.ShuffleAmount)
	setFloat(&dst.ReverseProb, f.ReverseProb)
	setFloat(&dst.GainDBMin, f.GainDBMin)
	setFloat(&dst.GainDBMax, f.GainDBMax)
	setFloat(&dst.KeepOriginalRatio, f.KeepOriginalRatio)
	if f.Intensity != nil {
		if *f.Intensity < 0 {
			return fmt.Errorf("intensity must be >= 0")
		}
		dst.Intensity = *f.Intensity
	}
	if f.Seed != nil {
		dst.Seed = *f.Seed
	}

	setFloat(&dst.WarpAmount, f.WarpAmount)
	if f.WarpStretchMin != nil {
		if *f.WarpStretchMin <= 0 {
			return fmt.Errorf("warp_stretch_min must be > 0")
		}
		dst.WarpStretchMin = *f.WarpStretchMin
	}
	if f.WarpStretchMax != nil {
		if *f.WarpStretchMax <= 0 {
			return fmt.Errorf("warp_stretch_max must be > 0")
		}
		dst.WarpStretchMax = *f.WarpStretchMax
	}
	setFloat(&dst.WarpPitchMinSt, f.WarpPitchMinSt)
	setFloat(&dst.WarpPitchMaxSt, f.WarpPitchMaxSt)
	setFloat(&dst.WarpStretchProb, f.WarpStretchProb)
	setFloat(&dst.WarpPitchProb, f.WarpPitchProb)
	if f.WarpPreserveLength != nil {
		dst.WarpPreserveLength = *f.WarpPreserveLength
	}
	if f.WarpMinSamples != nil {
		if *f.WarpMinSamples < 0 {
			return fmt.Errorf("warp_min_samples must be >= 0")
		}
		dst.WarpMinSamples = *f.WarpMinSamples
	}
	return nil
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
