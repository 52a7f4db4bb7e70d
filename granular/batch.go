package granular

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// RenderBatch renders one variation of input per seed on up to workers
// goroutines (0 uses GOMAXPROCS). Each render owns its own Stream, so the
// result for a seed equals a sequential Render with that seed. Results are
// returned in seed order. The first failing render or a cancelled ctx stops
// the batch and its error is returned.
func RenderBatch(ctx context.Context, input []float32, sampleRate int, params *Params, seeds []int64, workers int, opts ...Option) ([]*Result, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = max(1, min(workers, len(seeds)))

	base := params.Clone()
	results := make([]*Result, len(seeds))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var next int64 = -1
	var errOnce sync.Once
	var firstErr error

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				i := int(atomic.AddInt64(&next, 1))
				if i >= len(seeds) {
					return
				}
				p := base.Clone()
				p.Seed = seeds[i]
				res, err := Render(input, sampleRate, p, opts...)
				if err != nil {
					errOnce.Do(func() {
						firstErr = fmt.Errorf("seed %d: %w", seeds[i], err)
						cancel()
					})
					return
				}
				results[i] = res
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
