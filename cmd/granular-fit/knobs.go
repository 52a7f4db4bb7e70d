package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/cwbudde/algo-granular/granular"
)

type knobDef struct {
	Name  string
	Min   float64
	Max   float64
	IsInt bool
}

type candidate struct {
	Vals []float64
}

var validGroups = []string{"grain", "shape", "warp"}

// parseOptimizeGroups parses a comma-separated string of group names.
// Valid groups: grain, shape, warp.
func parseOptimizeGroups(raw string) (map[string]bool, error) {
	valid := make(map[string]bool, len(validGroups))
	for _, g := range validGroups {
		valid[g] = true
	}
	groups := make(map[string]bool)
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !valid[s] {
			return nil, fmt.Errorf("unknown optimize group %q (valid: %s)", s, strings.Join(validGroups, ", "))
		}
		groups[s] = true
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("no optimize groups specified")
	}
	return groups, nil
}

// needsWarp returns true if candidates can turn the warp stage on.
func needsWarp(groups map[string]bool, base *granular.Params) bool {
	return groups["warp"] || (base != nil && base.WarpAmount > 0)
}

func initCandidate(base *granular.Params, groups map[string]bool) ([]knobDef, candidate) {
	defs := make([]knobDef, 0, 16)
	vals := make([]float64, 0, 16)
	addKnob := func(def knobDef, val float64) {
		for _, d := range defs {
			if d.Name == def.Name {
				return
			}
		}
		defs = append(defs, def)
		vals = append(vals, val)
	}

	if groups["grain"] {
		addKnob(knobDef{Name: "grain_ms_min", Min: 10, Max: 400, IsInt: true}, float64(base.GrainMsMin))
		addKnob(knobDef{Name: "grain_ms_max", Min: 10, Max: 800, IsInt: true}, float64(base.GrainMsMax))
		addKnob(knobDef{Name: "shuffle_amount", Min: 0, Max: 1}, base.ShuffleAmount)
		addKnob(knobDef{Name: "keep_original_ratio", Min: 0, Max: 1}, base.KeepOriginalRatio)
	}

	if groups["shape"] {
		addKnob(knobDef{Name: "reverse_prob", Min: 0, Max: 1}, base.ReverseProb)
		addKnob(knobDef{Name: "gain_db_min", Min: -24, Max: 0}, base.GainDBMin)
		addKnob(knobDef{Name: "gain_db_max", Min: -6, Max: 12}, base.GainDBMax)
		addKnob(knobDef{Name: "intensity", Min: 0, Max: 2}, base.Intensity)
	}

	if groups["warp"] {
		m := granular.WarpMacroFromParams(base)
		addKnob(knobDef{Name: "warp_amount", Min: 0, Max: 1}, m.Amount)
		addKnob(knobDef{Name: "warp_stretch_range", Min: 0, Max: 1}, m.StretchRange)
		addKnob(knobDef{Name: "warp_pitch_range", Min: 0, Max: 12}, m.PitchRange)
		addKnob(knobDef{Name: "warp_prob", Min: 0, Max: 1}, m.Prob)
	}

	for i := range vals {
		vals[i] = clamp(vals[i], defs[i].Min, defs[i].Max)
		if defs[i].IsInt {
			vals[i] = math.Round(vals[i])
		}
	}
	return defs, candidate{Vals: vals}
}

// applyCandidate returns a copy of base with the candidate's knobs set.
func applyCandidate(base *granular.Params, defs []knobDef, c candidate) *granular.Params {
	p := base.Clone()
	macro := granular.WarpMacroFromParams(p)
	useMacro := false

	for i, def := range defs {
		v := c.Vals[i]
		switch def.Name {
		case "grain_ms_min":
			p.GrainMsMin = int(math.Round(v))
		case "grain_ms_max":
			p.GrainMsMax = int(math.Round(v))
		case "shuffle_amount":
			p.ShuffleAmount = v
		case "keep_original_ratio":
			p.KeepOriginalRatio = v
		case "reverse_prob":
			p.ReverseProb = v
		case "gain_db_min":
			p.GainDBMin = v
		case "gain_db_max":
			p.GainDBMax = v
		case "intensity":
			p.Intensity = v
		case "warp_amount":
			macro.Amount = v
			useMacro = true
		case "warp_stretch_range":
			macro.StretchRange = v
			useMacro = true
		case "warp_pitch_range":
			macro.PitchRange = v
			useMacro = true
		case "warp_prob":
			macro.Prob = v
			useMacro = true
		}
	}

	if useMacro {
		p.ApplyWarpMacro(macro)
	}
	return p
}

func fromNormalized(pos []float64, defs []knobDef) candidate {
	vals := make([]float64, len(defs))
	for i := range defs {
		x := 0.0
		if i < len(pos) {
			x = clamp(pos[i], 0, 1)
		}
		v := defs[i].Min + x*(defs[i].Max-defs[i].Min)
		if defs[i].IsInt {
			v = math.Round(v)
		}
		vals[i] = v
	}
	return candidate{Vals: vals}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
