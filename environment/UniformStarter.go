package environment

import (
	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distmv"
)

// UniformStarter samples starting states uniformly from a hyper-rectangle
type UniformStarter struct {
	features int
	seed     uint64
	rand     *distmv.Uniform
}

// NewUniformStarter creates a starter that samples each feature
// uniformly from its corresponding interval in bounds
func NewUniformStarter(bounds []r1.Interval, seed uint64) UniformStarter {
	source := rand.NewSource(seed)
	rand := distmv.NewUniform(bounds, source)

	return UniformStarter{len(bounds), seed, rand}
}

// Start samples a single starting state
func (u UniformStarter) Start() mat.Vector {
	return mat.NewVecDense(u.features, u.rand.Rand(nil))
}

// StartN samples n independent starting states. Multi-agent
// environments use this to place each agent and landmark at the
// beginning of an episode.
func (u UniformStarter) StartN(n int) []*mat.VecDense {
	starts := make([]*mat.VecDense, n)
	for i := range starts {
		starts[i] = mat.NewVecDense(u.features, u.rand.Rand(nil))
	}
	return starts
}
