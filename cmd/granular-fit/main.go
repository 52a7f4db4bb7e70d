package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/cwbudde/algo-granular/granular"
	"github.com/cwbudde/algo-granular/internal/audiofile"
	fitcommon "github.com/cwbudde/algo-granular/internal/fitcommon"
	"github.com/cwbudde/algo-granular/preset"
	"github.com/cwbudde/algo-granular/spectral"
)

func main() {
	sourcePath := flag.String("source", "", "Source audio path (wav, mp3, ogg, aiff)")
	referencePath := flag.String("reference", "", "Optional target audio; when set the fit minimizes remix-to-reference distance")
	presetPath := flag.String("preset", "", "Base preset JSON path (empty uses defaults)")
	outputPreset := flag.String("output-preset", "out/fitted.json", "Path to write best fitted preset JSON")
	outputAudio := flag.String("output-audio", "", "Optional WAV path for the best remix")
	reportPath := flag.String("report", "", "Optional report JSON path (default: <output-preset>.report.json)")
	optimize := flag.String("optimize", "grain,shape", "Comma-separated knob groups to optimize: grain, shape, warp")
	targetSimilarity := flag.Float64("target-similarity", 0.5, "Similarity to the source the remix should reach (0..1), ignored with -reference")
	sampleRate := flag.Int("sample-rate", 0, "Analysis sample rate (0 keeps the source rate)")
	maxSeconds := flag.Float64("max-seconds", 20, "Crop source and reference to this many seconds (0 disables)")
	seed := flag.Int64("seed", 1, "Optimizer random seed")
	timeBudget := flag.Float64("time-budget", 60.0, "Optimization time budget in seconds")
	maxEvals := flag.Int("max-evals", 2000, "Maximum objective evaluations")
	reportEvery := flag.Int("report-every", 20, "Print progress every N evaluations")
	checkpointEvery := flag.Int("checkpoint-every", 1, "Write checkpoint every N best-loss improvements")
	topK := flag.Int("top-k", 5, "How many top candidates to keep in report")
	resume := flag.Bool("resume", true, "Resume from previous best_knobs report when available")
	resumeReport := flag.String("resume-report", "", "Optional report JSON path to resume from (default: current report path)")
	workers := flag.String("workers", "1", "Parallel optimization workers running independent Mayfly rounds (number or 'auto')")
	verbose := flag.Bool("v", false, "Log engine diagnostics")

	mayflyVariant := flag.String("mayfly-variant", "desma", "Mayfly variant: ma|desma|olce|eobbma|gsasma|mpma|aoblmoa")
	mayflyPop := flag.Int("mayfly-pop", 10, "Male and female population size per Mayfly run")
	mayflyRoundEvals := flag.Int("mayfly-round-evals", 240, "Target eval budget per Mayfly round")
	flag.Parse()

	log := fitcommon.NewLogger(*verbose)

	if *sourcePath == "" {
		die("-source is required")
	}
	groups, err := parseOptimizeGroups(*optimize)
	if err != nil {
		die("invalid --optimize: %v", err)
	}
	if *outputPreset == "" {
		die("output-preset must not be empty")
	}
	if *maxEvals < 1 {
		die("max-evals must be >= 1")
	}
	if *timeBudget <= 0 {
		die("time-budget must be > 0")
	}
	*targetSimilarity = fitcommon.Clamp(*targetSimilarity, 0, 1)
	if *reportEvery < 1 {
		*reportEvery = 1
	}
	if *checkpointEvery < 1 {
		*checkpointEvery = 1
	}
	if *mayflyPop < 2 {
		*mayflyPop = 2
	}
	if *mayflyRoundEvals < *mayflyPop*2 {
		*mayflyRoundEvals = *mayflyPop * 2
	}
	if *topK < 1 {
		*topK = 1
	}
	parsedWorkers, err := fitcommon.ParseWorkers(*workers)
	if err != nil {
		die("invalid workers value: %v", err)
	}

	baseParams := granular.NewDefaultParams()
	if *presetPath != "" {
		baseParams, err = preset.LoadJSON(*presetPath)
		if err != nil {
			die("failed to load preset: %v", err)
		}
	}

	capability := granular.Capability(spectral.New())
	if needsWarp(groups, baseParams) {
		if err := capability.Available(); err != nil {
			die("warp requested but spectral transform unavailable: %v", err)
		}
	}

	src, rate, err := loadMono(*sourcePath, *sampleRate, *maxSeconds)
	if err != nil {
		die("failed to read source: %v", err)
	}
	var ref []float32
	if *referencePath != "" {
		ref, _, err = loadMono(*referencePath, rate, *maxSeconds)
		if err != nil {
			die("failed to read reference: %v", err)
		}
	}

	defs, initCand := initCandidate(baseParams, groups)
	if *resume {
		resumePath := *resumeReport
		if resumePath == "" {
			if *reportPath != "" {
				resumePath = *reportPath
			} else {
				resumePath = defaultReportPath(*outputPreset)
			}
		}
		if resumed, ok, err := loadCandidateFromReport(resumePath, defs, initCand); err != nil {
			fmt.Fprintf(os.Stderr, "resume skipped (%s): %v\n", resumePath, err)
		} else if ok {
			initCand = resumed
			fmt.Printf("Resumed candidate from %s\n", resumePath)
		}
	}

	cfg := &optimizationConfig{
		source:           src,
		reference:        ref,
		sampleRate:       rate,
		targetSimilarity: *targetSimilarity,
		baseParams:       baseParams,
		defs:             defs,
		initCandidate:    initCand,
		capability:       capability,
		log:              log,
		seed:             *seed,
		timeBudget:       *timeBudget,
		maxEvals:         *maxEvals,
		reportEvery:      *reportEvery,
		checkpointEvery:  *checkpointEvery,
		mayflyVariant:    *mayflyVariant,
		mayflyPop:        *mayflyPop,
		mayflyRoundEvals: *mayflyRoundEvals,
		workers:          parsedWorkers,
		topK:             *topK,
		outputPreset:     *outputPreset,
		reportPath:       *reportPath,
		sourcePath:       *sourcePath,
		referencePath:    *referencePath,
		presetPath:       *presetPath,
	}

	fmt.Printf("Fitting %d knobs on %s (%.2fs at %d Hz)\n", len(defs), *sourcePath, float64(len(src))/float64(rate), rate)

	result, err := runOptimization(cfg)
	if err != nil {
		die("optimization failed: %v", err)
	}

	variant := strings.ToLower(*mayflyVariant)
	if err := writeOutputs(cfg, variant, result.elapsed, result.evals, result.best, result.bestEval, result.checkpoints, result.top); err != nil {
		die("failed to write outputs: %v", err)
	}

	if *outputAudio != "" {
		res, err := granular.Render(src, rate, result.bestEval.params, granular.WithCapability(capability), granular.WithLogger(log))
		if err != nil {
			die("final render failed: %v", err)
		}
		if err := audiofile.WriteMonoWAV(*outputAudio, res.Audio, rate); err != nil {
			die("failed to write audio: %v", err)
		}
	}

	fmt.Printf("Done evals=%d elapsed=%.1fs best_loss=%.4f best_similarity=%.2f%% variant=%s\n", result.evals, result.elapsed, result.bestEval.loss, result.bestEval.metrics.Similarity*100.0, variant)
}

// loadMono reads path, resamples it to rate when rate > 0 and crops it.
// It returns the samples and their sample rate.
func loadMono(path string, rate int, maxSeconds float64) ([]float32, int, error) {
	x, sr, err := audiofile.ReadMono(path)
	if err != nil {
		return nil, 0, err
	}
	if rate > 0 && rate != sr {
		x, err = audiofile.ResampleIfNeeded(x, sr, rate)
		if err != nil {
			return nil, 0, err
		}
		sr = rate
	}
	x = fitcommon.CropSeconds(x, sr, maxSeconds)
	if len(x) == 0 {
		return nil, 0, fmt.Errorf("%s: no audio", path)
	}
	return x, sr, nil
}

func loadCandidateFromReport(path string, defs []knobDef, fallback candidate) (candidate, bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fallback, false, nil
		}
		return fallback, false, err
	}

	var rep struct {
		BestKnobs map[string]float64 `json:"best_knobs"`
	}
	if err := json.Unmarshal(b, &rep); err != nil {
		return fallback, false, err
	}
	if len(rep.BestKnobs) == 0 {
		return fallback, false, nil
	}

	vals := make([]float64, len(fallback.Vals))
	copy(vals, fallback.Vals)
	updated := false
	for i, d := range defs {
		if v, ok := rep.BestKnobs[d.Name]; ok {
			vals[i] = clamp(v, d.Min, d.Max)
			if d.IsInt {
				vals[i] = math.Round(vals[i])
			}
			updated = true
		}
	}
	if !updated {
		return fallback, false, nil
	}
	return candidate{Vals: vals}, true, nil
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
