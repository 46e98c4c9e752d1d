package gymbridge_test

import (
	"testing"

	"github.com/samuelfneumann/gomarl/environment/gymbridge"
)

// Constructing a live environment needs a running Gym backend, so these
// tests cover the argument validation that runs before GoGym is called.
func TestNewValidatesDiscount(t *testing.T) {
	discounts := []float64{-0.1, 1.1, -1.0, 2.0}

	for _, discount := range discounts {
		env, step, err := gymbridge.New("Pendulum-v0", discount, 123)
		if err == nil {
			t.Errorf("new: discount %v should be rejected", discount)
		}
		if env != nil {
			t.Errorf("new: discount %v returned a non-nil environment",
				discount)
		}
		if step.Observations != nil {
			t.Errorf("new: discount %v returned a non-zero timestep",
				discount)
		}
	}
}
