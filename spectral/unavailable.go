package spectral

import (
	"fmt"

	"github.com/cwbudde/algo-granular/granular"
)

// Unavailable is a capability whose backend cannot be reached. Every call
// reports granular.ErrCapabilityUnavailable with Reason attached.
type Unavailable struct {
	Reason string
}

var _ granular.Capability = Unavailable{}

func (u Unavailable) err() error {
	if u.Reason == "" {
		return granular.ErrCapabilityUnavailable
	}
	return fmt.Errorf("%w: %s", granular.ErrCapabilityUnavailable, u.Reason)
}

func (u Unavailable) Available() error { return u.err() }

func (u Unavailable) TimeStretch([]float32, float64, int, int) ([]float32, error) {
	return nil, u.err()
}

func (u Unavailable) PitchShift([]float32, int, float64, int, int) ([]float32, error) {
	return nil, u.err()
}
