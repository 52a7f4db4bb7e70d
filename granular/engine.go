// Package granular slices a mono buffer into random grains, reorders,
// reverses and gain-shapes them under a seeded random stream, optionally
// warps them through a spectral transform, and reassembles the result.
package granular

import (
	"errors"
	"fmt"

	"github.com/go-audio/audio"
	"github.com/sirupsen/logrus"
)

// Result is the output of one render.
type Result struct {
	Audio []float32

	// SegmentCount is the number of grains produced by segmentation.
	SegmentCount int

	Warp WarpStats
}

// Option configures a render.
type Option func(*renderOptions)

type renderOptions struct {
	capability Capability
	log        logrus.FieldLogger
}

// WithCapability sets the spectral transform used by the warp stage.
func WithCapability(c Capability) Option {
	return func(o *renderOptions) { o.capability = c }
}

// WithLogger routes engine diagnostics to log.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *renderOptions) { o.log = log }
}

// RenderBuffer renders a go-audio buffer. The buffer must be mono; its
// format carries the sample rate.
func RenderBuffer(buf *audio.Float32Buffer, params *Params, opts ...Option) (*Result, error) {
	if buf == nil || buf.Format == nil {
		return nil, fmt.Errorf("%w: buffer has no format", ErrInvalidInput)
	}
	if buf.Format.NumChannels != 1 {
		return nil, fmt.Errorf("%w: engine expects mono audio, got %d channels", ErrInvalidInput, buf.Format.NumChannels)
	}
	return Render(buf.Data, buf.Format.SampleRate, params, opts...)
}

// Render destructures mono audio into a granular remix. The output is a
// pure function of audio, sampleRate and params: the same inputs give the
// same samples on every call.
//
// Render returns an error wrapping ErrInvalidInput or
// ErrCapabilityUnavailable, in which case no audio is produced. Numeric
// failures of single warp steps are absorbed and counted in Result.Warp.
func Render(input []float32, sampleRate int, params *Params, opts ...Option) (*Result, error) {
	o := renderOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = discardLogger()
	}

	p, err := params.Normalized()
	if err != nil {
		return nil, err
	}
	if sampleRate <= 0 && len(input) > 0 {
		return nil, fmt.Errorf("%w: sample rate must be > 0, got %d", ErrInvalidInput, sampleRate)
	}

	warper := NewWarper(o.capability, sampleRate, p, o.log)
	if warper.Enabled() {
		if err := checkCapability(o.capability); err != nil {
			return nil, err
		}
	}

	s := NewStream(p.Seed)

	grains := Segment(
		input,
		MsToSamples(p.GrainMsMin, sampleRate),
		MsToSamples(p.GrainMsMax, sampleRate),
		s,
	)
	n := len(grains)

	keep := KeepSet(n, p.KeepOriginalRatio, s)
	order := Schedule(n, keep, p.ShuffleAmount, s)

	shaper := NewShaper(p)
	shaped := make([][]float32, 0, n)
	for _, src := range order {
		shaped = append(shaped, shaper.Shape(grains[src].Samples, s))
	}

	if warper.Enabled() {
		for i, g := range shaped {
			w, err := warper.Warp(g, s)
			if err != nil {
				return nil, err
			}
			shaped[i] = w
		}
	}

	res := &Result{
		Audio:        Assemble(shaped),
		SegmentCount: n,
		Warp:         warper.Stats(),
	}
	o.log.WithFields(logrus.Fields{
		"seed":      p.Seed,
		"segments":  n,
		"kept":      len(keep),
		"stretched": res.Warp.Stretched,
		"shifted":   res.Warp.Shifted,
		"failures":  res.Warp.Failures,
	}).Debug("render done")
	return res, nil
}

func checkCapability(c Capability) error {
	if c == nil {
		return fmt.Errorf("%w: no spectral transform configured", ErrCapabilityUnavailable)
	}
	if err := c.Available(); err != nil {
		if errors.Is(err, ErrCapabilityUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrCapabilityUnavailable, err)
	}
	return nil
}
