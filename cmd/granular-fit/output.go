package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cwbudde/algo-granular/analysis"
	"github.com/cwbudde/algo-granular/granular"
	"github.com/cwbudde/algo-granular/preset"
)

type runReport struct {
	SourcePath       string             `json:"source_path"`
	ReferencePath    string             `json:"reference_path,omitempty"`
	PresetPath       string             `json:"preset_path"`
	OutputPreset     string             `json:"output_preset"`
	SampleRate       int                `json:"sample_rate"`
	Seed             int64              `json:"seed"`
	TargetSimilarity float64            `json:"target_similarity,omitempty"`
	DurationSec      float64            `json:"elapsed_seconds"`
	Evaluations      int                `json:"evaluations"`
	MayflyVariant    string             `json:"mayfly_variant"`
	BestLoss         float64            `json:"best_loss"`
	BestSimilarity   float64            `json:"best_similarity"`
	BestMetrics      analysis.Metrics   `json:"best_metrics"`
	BestWarp         granular.WarpStats `json:"best_warp"`
	BestKnobs        map[string]float64 `json:"best_knobs"`
	CheckpointCount  int                `json:"checkpoint_count"`
	TopCandidates    []topCandidate     `json:"top_candidates,omitempty"`
}

func defaultReportPath(outputPreset string) string {
	return outputPreset + ".report.json"
}

func writeOutputs(
	cfg *optimizationConfig,
	variant string,
	elapsed float64,
	evals int,
	best candidate,
	bestEval optimizationEval,
	checkpoints int,
	top []topCandidate,
) error {
	if err := os.MkdirAll(filepath.Dir(cfg.outputPreset), 0o755); err != nil {
		return err
	}
	if err := preset.SaveJSON(cfg.outputPreset, bestEval.params); err != nil {
		return err
	}

	knobs := make(map[string]float64, len(cfg.defs))
	for i, d := range cfg.defs {
		knobs[d.Name] = best.Vals[i]
	}

	rep := runReport{
		SourcePath:      cfg.sourcePath,
		ReferencePath:   cfg.referencePath,
		PresetPath:      cfg.presetPath,
		OutputPreset:    cfg.outputPreset,
		SampleRate:      cfg.sampleRate,
		Seed:            cfg.baseParams.Seed,
		DurationSec:     elapsed,
		Evaluations:     evals,
		MayflyVariant:   variant,
		BestLoss:        bestEval.loss,
		BestSimilarity:  bestEval.metrics.Similarity,
		BestMetrics:     bestEval.metrics,
		BestWarp:        bestEval.warp,
		BestKnobs:       knobs,
		CheckpointCount: checkpoints,
		TopCandidates:   top,
	}
	if len(cfg.reference) == 0 {
		rep.TargetSimilarity = cfg.targetSimilarity
	}

	reportPath := cfg.reportPath
	if reportPath == "" {
		reportPath = defaultReportPath(cfg.outputPreset)
	}
	return writeJSON(reportPath, rep)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return os.WriteFile(path, b, 0o644)
}
