package teammaze

import "testing"

// Constructing a live maze needs a gomaze initialisation algorithm, so
// these tests cover the argument validation that runs before any maze
// is built.
func TestNewValidates(t *testing.T) {
	tests := []struct {
		name      string
		numAgents int
		rows      int
		cols      int
		cutoff    int
		discount  float64
	}{
		{"no agents", 0, 5, 5, 20, 0.99},
		{"too few rows", 2, 1, 5, 20, 0.99},
		{"too few columns", 2, 5, 1, 20, 0.99},
		{"no cutoff", 2, 5, 5, 0, 0.99},
		{"discount too large", 2, 5, 5, 20, 1.5},
		{"negative discount", 2, 5, 5, 20, -0.1},
		{"no initialisation algorithm", 2, 5, 5, 20, 0.99},
	}

	for _, test := range tests {
		_, _, err := New(test.numAgents, test.rows, test.cols,
			test.cutoff, test.discount, nil)
		if err == nil {
			t.Errorf("%v: expected error creating environment",
				test.name)
		}
	}
}
