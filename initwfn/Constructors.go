package initwfn

// NewGlorotU returns a Glorot uniform weight initializer
func NewGlorotU(gain float64) (*InitWFn, error) {
	return New(Config{Type: GlorotU, Gain: gain})
}

// NewGlorotN returns a Glorot normal weight initializer
func NewGlorotN(gain float64) (*InitWFn, error) {
	return New(Config{Type: GlorotN, Gain: gain})
}

// NewHeU returns a He uniform weight initializer
func NewHeU(gain float64) (*InitWFn, error) {
	return New(Config{Type: HeU, Gain: gain})
}

// NewHeN returns a He normal weight initializer
func NewHeN(gain float64) (*InitWFn, error) {
	return New(Config{Type: HeN, Gain: gain})
}

// NewZeroes returns a weight initializer filling weights with zeroes
func NewZeroes() (*InitWFn, error) {
	return New(Config{Type: Zeroes})
}

// NewOnes returns a weight initializer filling weights with ones
func NewOnes() (*InitWFn, error) {
	return New(Config{Type: Ones})
}

// NewConstant returns a weight initializer filling weights with value
func NewConstant(value float64) (*InitWFn, error) {
	return New(Config{Type: Constant, Value: value})
}

// NewUniform returns a weight initializer drawing weights uniformly
// from [low, high)
func NewUniform(low, high float64) (*InitWFn, error) {
	return New(Config{Type: Uniform, Low: low, High: high})
}

// NewGaussian returns a weight initializer drawing weights from a
// Gaussian distribution
func NewGaussian(mean, stddev float64) (*InitWFn, error) {
	return New(Config{Type: Gaussian, Mean: mean, StdDev: stddev})
}
