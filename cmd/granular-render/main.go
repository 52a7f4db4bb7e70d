package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/cwbudde/algo-granular/analysis"
	"github.com/cwbudde/algo-granular/granular"
	"github.com/cwbudde/algo-granular/internal/audiofile"
	fitcommon "github.com/cwbudde/algo-granular/internal/fitcommon"
	"github.com/cwbudde/algo-granular/preset"
	"github.com/cwbudde/algo-granular/spectral"
)

// overrides holds the parameter flags. Only flags given on the command
// line are applied on top of the preset.
type overrides struct {
	grainMsMin        int
	grainMsMax        int
	shuffleAmount     float64
	reverseProb       float64
	gainDBMin         float64
	gainDBMax         float64
	keepOriginalRatio float64
	intensity         float64
	seed              int64

	warpAmount       float64
	warpStretchRange float64
	warpPitchRange   float64
	warpProb         float64
	warpKeepLength   bool
}

func registerOverrides(fs *flag.FlagSet, o *overrides) {
	d := granular.NewDefaultParams()
	m := granular.WarpMacroFromParams(d)
	fs.IntVar(&o.grainMsMin, "grain-ms-min", d.GrainMsMin, "Shortest grain in milliseconds")
	fs.IntVar(&o.grainMsMax, "grain-ms-max", d.GrainMsMax, "Longest grain in milliseconds")
	fs.Float64Var(&o.shuffleAmount, "shuffle", d.ShuffleAmount, "Shuffle amount (0..1)")
	fs.Float64Var(&o.reverseProb, "reverse-prob", d.ReverseProb, "Probability of reversing a grain (0..1)")
	fs.Float64Var(&o.gainDBMin, "gain-db-min", d.GainDBMin, "Lowest grain gain in dB")
	fs.Float64Var(&o.gainDBMax, "gain-db-max", d.GainDBMax, "Highest grain gain in dB")
	fs.Float64Var(&o.keepOriginalRatio, "keep-ratio", d.KeepOriginalRatio, "Share of grains pinned to their place (0..1)")
	fs.Float64Var(&o.intensity, "intensity", d.Intensity, "Global intensity (0..2)")
	fs.Int64Var(&o.seed, "seed", d.Seed, "Random seed (first seed with -variations)")
	fs.Float64Var(&o.warpAmount, "warp-amount", m.Amount, "Warp amount (0 disables warp)")
	fs.Float64Var(&o.warpStretchRange, "warp-stretch-range", m.StretchRange, "Time-stretch span (0..1 maps to ±0.60)")
	fs.Float64Var(&o.warpPitchRange, "warp-pitch-range", m.PitchRange, "Pitch-shift range in semitones (0..12)")
	fs.Float64Var(&o.warpProb, "warp-prob", m.Prob, "Warp trigger probability (0..1)")
	fs.BoolVar(&o.warpKeepLength, "warp-keep-length", d.WarpPreserveLength, "Pad or trim warped grains to their original length")
}

// apply copies every flag named in set onto p.
func (o *overrides) apply(p *granular.Params, set map[string]bool) {
	if set["grain-ms-min"] {
		p.GrainMsMin = o.grainMsMin
	}
	if set["grain-ms-max"] {
		p.GrainMsMax = o.grainMsMax
	}
	if set["shuffle"] {
		p.ShuffleAmount = o.shuffleAmount
	}
	if set["reverse-prob"] {
		p.ReverseProb = o.reverseProb
	}
	if set["gain-db-min"] {
		p.GainDBMin = o.gainDBMin
	}
	if set["gain-db-max"] {
		p.GainDBMax = o.gainDBMax
	}
	if set["keep-ratio"] {
		p.KeepOriginalRatio = o.keepOriginalRatio
	}
	if set["intensity"] {
		p.Intensity = o.intensity
	}
	if set["seed"] {
		p.Seed = o.seed
	}
	if set["warp-keep-length"] {
		p.WarpPreserveLength = o.warpKeepLength
	}

	if set["warp-amount"] || set["warp-stretch-range"] || set["warp-pitch-range"] || set["warp-prob"] {
		m := granular.WarpMacroFromParams(p)
		if set["warp-amount"] {
			m.Amount = o.warpAmount
		}
		if set["warp-stretch-range"] {
			m.StretchRange = o.warpStretchRange
		}
		if set["warp-pitch-range"] {
			m.PitchRange = o.warpPitchRange
		}
		if set["warp-prob"] {
			m.Prob = o.warpProb
		}
		p.ApplyWarpMacro(m)
	}
}

func main() {
	input := flag.String("input", "", "Input audio path (wav, mp3, ogg, aiff)")
	output := flag.String("output", "remix.wav", "Output WAV file path")
	presetPath := flag.String("preset", "", "Preset JSON file path (empty uses defaults)")
	savePreset := flag.String("save-preset", "", "Write the effective parameters to this preset path")
	sampleRate := flag.Int("sample-rate", 0, "Resample the input to this rate before rendering (0 keeps it)")
	variations := flag.Int("variations", 1, "Number of variations rendered with consecutive seeds")
	workers := flag.String("workers", "auto", "Parallel render workers for -variations (number or 'auto')")
	compare := flag.Bool("compare", true, "Print similarity of each render to the input")
	noWarp := flag.Bool("no-warp", false, "Disable the spectral transform (warp requests fail)")
	verbose := flag.Bool("v", false, "Log engine diagnostics")
	var ov overrides
	registerOverrides(flag.CommandLine, &ov)
	flag.Parse()

	log := fitcommon.NewLogger(*verbose)

	if *input == "" {
		die("-input is required")
	}
	parsedWorkers, err := fitcommon.ParseWorkers(*workers)
	if err != nil {
		die("invalid workers value: %v", err)
	}

	params := granular.NewDefaultParams()
	if *presetPath != "" {
		params, err = preset.LoadJSON(*presetPath)
		if err != nil {
			die("Error loading preset %q: %v", *presetPath, err)
		}
	}
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	ov.apply(params, set)

	if *savePreset != "" {
		if err := preset.SaveJSON(*savePreset, params); err != nil {
			die("Error saving preset: %v", err)
		}
	}

	var capability granular.Capability = spectral.New()
	if *noWarp {
		capability = spectral.Unavailable{Reason: "disabled by -no-warp"}
	}
	if params.WarpAmount > 0 {
		if err := capability.Available(); err != nil {
			die("Warp requested but the spectral transform is unavailable: %v", err)
		}
	}

	src, sr, err := audiofile.ReadMono(*input)
	if err != nil {
		die("Error reading input: %v", err)
	}
	if *sampleRate > 0 && *sampleRate != sr {
		src, err = audiofile.ResampleIfNeeded(src, sr, *sampleRate)
		if err != nil {
			die("Error resampling input: %v", err)
		}
		sr = *sampleRate
	}

	fmt.Printf("Rendering %s (%.2fs at %d Hz, seed %d, %d variation(s))...\n", *input, float64(len(src))/float64(sr), sr, params.Seed, max(1, *variations))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	seeds := fitcommon.SeedRange(params.Seed, *variations)
	results, err := granular.RenderBatch(ctx, src, sr, params, seeds, parsedWorkers,
		granular.WithCapability(capability),
		granular.WithLogger(log),
	)
	if err != nil {
		if errors.Is(err, granular.ErrCapabilityUnavailable) {
			die("Warp requested but the spectral transform is unavailable: %v", err)
		}
		die("Render failed: %v", err)
	}

	for i, res := range results {
		path := outputPath(*output, seeds[i], len(seeds))
		if err := audiofile.WriteMonoWAV(path, res.Audio, sr); err != nil {
			die("Error writing WAV file: %v", err)
		}
		line := fmt.Sprintf("Wrote %s (%d samples, %d grains", path, len(res.Audio), res.SegmentCount)
		if params.WarpAmount > 0 {
			line += fmt.Sprintf(", stretched %d, shifted %d, failed %d", res.Warp.Stretched, res.Warp.Shifted, res.Warp.Failures)
		}
		line += ")"
		if *compare {
			m := analysis.CompareFloat32(src, res.Audio, sr)
			line += fmt.Sprintf(" similarity=%.2f%%", m.Similarity*100.0)
		}
		fmt.Println(line)
	}
}

// outputPath returns base for a single render and base-<seed>.ext for
// several.
func outputPath(base string, seed int64, count int) string {
	if count <= 1 {
		return base
	}
	ext := filepath.Ext(base)
	if ext == "" {
		ext = ".wav"
	}
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(base, filepath.Ext(base)), seed, ext)
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
