// Package analysis measures how far a remix has moved from its source.
package analysis

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/window"
	algofft "github.com/cwbudde/algo-fft"
)

const (
	envFrame     = 256
	envHop       = 128
	specFrame    = 2048
	specHop      = 1024
	minSpecFrame = 512
	maxSeconds   = 12
	lagSeconds   = 4
)

// Metrics contains distance and similarity measurements between two audio signals.
type Metrics struct {
	SampleRate int `json:"sample_rate"`

	ReferenceFrames int `json:"reference_frames"`
	CandidateFrames int `json:"candidate_frames"`
	AlignedFrames   int `json:"aligned_frames"`
	LagSamples      int `json:"lag_samples"`

	TimeRMSE       float64 `json:"time_rmse"`
	EnvelopeRMSEDB float64 `json:"envelope_rmse_db"`
	SpectralRMSEDB float64 `json:"spectral_rmse_db"`
	RefCentroidHz  float64 `json:"ref_centroid_hz"`
	CandCentroidHz float64 `json:"cand_centroid_hz"`
	CentroidShift  float64 `json:"centroid_shift"`

	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity"`
}

// Compare returns objective distance metrics and a combined score in [0,1].
// Score 0 means identical material; Similarity is exp(-4*Score).
func Compare(reference []float64, candidate []float64, sampleRate int) Metrics {
	m := Metrics{
		SampleRate:      sampleRate,
		ReferenceFrames: len(reference),
		CandidateFrames: len(candidate),
	}
	if sampleRate <= 0 || len(reference) == 0 || len(candidate) == 0 {
		m.Score = 1.0
		m.Similarity = 0.0
		return m
	}

	ref := trimLeadingSilence(reference, 1e-6)
	cand := trimLeadingSilence(candidate, 1e-6)
	if len(ref) == 0 || len(cand) == 0 {
		m.Score = 1.0
		m.Similarity = 0.0
		return m
	}

	ref = normalizeRMS(ref, 0.1)
	cand = normalizeRMS(cand, 0.1)

	maxLag := max(1, min(sampleRate/2, len(ref)-1, len(cand)-1))
	lagN := sampleRate * lagSeconds
	lag := estimateLag(head(ref, lagN), head(cand, lagN), maxLag)
	m.LagSamples = lag

	refA, candA := alignByLag(ref, cand, lag)
	n := min(len(refA), len(candA))
	if n < 256 {
		m.Score = 1.0
		m.Similarity = 0.0
		return m
	}
	n = min(n, sampleRate*maxSeconds)
	refA = refA[:n]
	candA = candA[:n]
	m.AlignedFrames = n

	m.TimeRMSE = rmse(refA, candA)

	refEnv := rmsEnvelope(refA, envFrame, envHop)
	candEnv := rmsEnvelope(candA, envFrame, envHop)
	if envN := min(len(refEnv), len(candEnv)); envN > 0 {
		envDiff := make([]float64, envN)
		for i := range envDiff {
			envDiff[i] = linToDB(refEnv[i]) - linToDB(candEnv[i])
		}
		m.EnvelopeRMSEDB = rms1(envDiff)
	}

	spec := spectralDistance(refA, candA, sampleRate)
	m.SpectralRMSEDB = spec.rmseDB
	m.RefCentroidHz = spec.refCentroid
	m.CandCentroidHz = spec.candCentroid
	if m.RefCentroidHz > 0 {
		m.CentroidShift = math.Abs(m.CandCentroidHz-m.RefCentroidHz) / m.RefCentroidHz
	}

	timeNorm := clamp01(m.TimeRMSE / 0.25)
	envNorm := clamp01(m.EnvelopeRMSEDB / 30.0)
	specNorm := clamp01(m.SpectralRMSEDB / 30.0)
	centNorm := clamp01(m.CentroidShift / 0.5)
	m.Score = clamp01(0.30*timeNorm + 0.25*envNorm + 0.30*specNorm + 0.15*centNorm)
	m.Similarity = clamp01(math.Exp(-4.0 * m.Score))

	return m
}

// CompareFloat32 is Compare for float32 buffers.
func CompareFloat32(reference, candidate []float32, sampleRate int) Metrics {
	return Compare(toFloat64(reference), toFloat64(candidate), sampleRate)
}

func toFloat64(x []float32) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = float64(v)
	}
	return out
}

func head(x []float64, n int) []float64 {
	if n > 0 && len(x) > n {
		return x[:n]
	}
	return x
}

func trimLeadingSilence(x []float64, threshold float64) []float64 {
	for i := 0; i < len(x); i++ {
		if math.Abs(x[i]) > threshold {
			return x[i:]
		}
	}
	return nil
}

func normalizeRMS(x []float64, target float64) []float64 {
	if len(x) == 0 {
		return x
	}
	r := rms1(x)
	if r <= 1e-12 {
		return append([]float64(nil), x...)
	}
	g := target / r
	out := make([]float64, len(x))
	for i := range x {
		out[i] = x[i] * g
	}
	return out
}

// estimateLag returns the lag in [-maxLag, maxLag] maximizing the
// cross-correlation of ref and cand, computed through one zero-padded FFT.
func estimateLag(ref []float64, cand []float64, maxLag int) int {
	if len(ref) == 0 || len(cand) == 0 {
		return 0
	}
	size := nextPow2(len(ref) + len(cand))
	plan, err := algofft.NewPlan64(size)
	if err != nil {
		return 0
	}
	a := make([]complex128, size)
	b := make([]complex128, size)
	for i, v := range ref {
		a[i] = complex(v, 0)
	}
	for i, v := range cand {
		b[i] = complex(v, 0)
	}
	if plan.Forward(a, a) != nil || plan.Forward(b, b) != nil {
		return 0
	}
	for i := range a {
		br, bi := real(b[i]), imag(b[i])
		a[i] *= complex(br, -bi)
	}
	if plan.Inverse(b, a) != nil {
		return 0
	}

	bestLag := 0
	best := math.Inf(-1)
	for lag := -maxLag; lag <= maxLag; lag++ {
		idx := lag
		if idx < 0 {
			idx += size
		}
		if s := real(b[idx]); s > best {
			best = s
			bestLag = lag
		}
	}
	return bestLag
}

func alignByLag(ref []float64, cand []float64, lag int) ([]float64, []float64) {
	if lag >= 0 {
		if lag >= len(ref) {
			return nil, nil
		}
		return ref[lag:], cand
	}
	o := -lag
	if o >= len(cand) {
		return nil, nil
	}
	return ref, cand[o:]
}

func rmse(a []float64, b []float64) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(n))
}

func rms1(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

func rmsEnvelope(x []float64, frame int, hop int) []float64 {
	if frame <= 0 || hop <= 0 || len(x) < frame {
		return nil
	}
	n := 1 + (len(x)-frame)/hop
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		start := i * hop
		out[i] = rms1(x[start : start+frame])
	}
	return out
}

type spectralResult struct {
	rmseDB       float64
	refCentroid  float64
	candCentroid float64
}

// spectralDistance compares Hann-windowed magnitude spectra frame by frame.
// Signals shorter than one full frame use a single frame of the largest
// power of two that fits.
func spectralDistance(a []float64, b []float64, sampleRate int) spectralResult {
	var res spectralResult
	n := min(len(a), len(b))
	size := specFrame
	if n < size {
		size = prevPow2(n)
	}
	if size < minSpecFrame {
		return res
	}
	hop := max(1, min(specHop, size/2))

	plan, err := algofft.NewPlan64(size)
	if err != nil {
		return res
	}
	win := window.Generate(window.TypeHann, size)
	half := size / 2
	binHz := float64(sampleRate) / float64(size)

	bufA := make([]complex128, size)
	bufB := make([]complex128, size)
	var sum, refCent, candCent float64
	var count, frames int

	for start := 0; start+size <= n; start += hop {
		for i := 0; i < size; i++ {
			bufA[i] = complex(a[start+i]*win[i], 0)
			bufB[i] = complex(b[start+i]*win[i], 0)
		}
		if plan.Forward(bufA, bufA) != nil || plan.Forward(bufB, bufB) != nil {
			return res
		}
		var ra, rw, ca, cw float64
		for k := 1; k < half; k++ {
			ma := cmplxAbs(bufA[k])
			mb := cmplxAbs(bufB[k])
			d := linToDB(ma) - linToDB(mb)
			sum += d * d
			count++

			f := float64(k) * binHz
			ra += ma * f
			rw += ma
			ca += mb * f
			cw += mb
		}
		if rw > 0 {
			refCent += ra / rw
		}
		if cw > 0 {
			candCent += ca / cw
		}
		frames++
	}
	if count == 0 || frames == 0 {
		return res
	}
	res.rmseDB = math.Sqrt(sum / float64(count))
	res.refCentroid = refCent / float64(frames)
	res.candCentroid = candCent / float64(frames)
	return res
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

func linToDB(x float64) float64 {
	if x < 1e-12 {
		x = 1e-12
	}
	return 20.0 * math.Log10(x)
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func prevPow2(n int) int {
	if n < 1 {
		return 0
	}
	p := 1
	for p*2 <= n {
		p <<= 1
	}
	return p
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
