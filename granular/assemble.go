package granular

// Assemble concatenates grains in order and clips the result to [-1, 1].
// Zero grains yield an empty, non-nil buffer.
func Assemble(grains [][]float32) []float32 {
	total := 0
	for _, g := range grains {
		total += len(g)
	}
	out := make([]float32, 0, total)
	for _, g := range grains {
		out = append(out, g...)
	}
	Clip(out)
	return out
}
