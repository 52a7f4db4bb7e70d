package granular

import "errors"

var (
	// ErrInvalidInput reports a non-mono buffer, a bad sample rate, or
	// parameters that cannot be normalized. The render is aborted.
	ErrInvalidInput = errors.New("granular: invalid input")

	// ErrCapabilityUnavailable reports that warp was requested but no
	// spectral transform can be reached. The render is aborted before any
	// grain is processed.
	ErrCapabilityUnavailable = errors.New("granular: spectral capability unavailable")

	// ErrTransformFailure reports a numeric failure of one spectral call.
	// The warp stage recovers from it and keeps the grain unwarped.
	ErrTransformFailure = errors.New("granular: spectral transform failed")
)
