package fitcommon

import (
	"fmt"
	"strconv"
	"strings"
)

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func ParseWorkers(raw string) (int, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return 0, fmt.Errorf("empty value (use integer >= 1 or 'auto')")
	}
	if v == "auto" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%q (use integer >= 1 or 'auto')", raw)
	}
	if n < 1 {
		return 0, fmt.Errorf("%d (must be >= 1 or 'auto')", n)
	}
	return n, nil
}

// SeedRange returns count consecutive seeds starting at first.
func SeedRange(first int64, count int) []int64 {
	count = max(1, count)
	out := make([]int64, count)
	for i := range out {
		out[i] = first + int64(i)
	}
	return out
}

// CropSeconds keeps at most seconds of audio at sampleRate. A non-positive
// limit keeps everything.
func CropSeconds(x []float32, sampleRate int, seconds float64) []float32 {
	if seconds <= 0 || sampleRate <= 0 {
		return x
	}
	n := int(seconds * float64(sampleRate))
	if n < len(x) {
		return x[:n]
	}
	return x
}
