package solver

// NewDefaultAdam returns an Adam solver with default hyperparameters
func NewDefaultAdam(stepSize float64, batchSize int) (*Solver, error) {
	return NewAdam(stepSize, 1e-8, 0.9, 0.999, batchSize)
}

// NewAdam returns an Adam solver
func NewAdam(stepSize, epsilon, beta1, beta2 float64,
	batchSize int) (*Solver, error) {
	return New(Config{
		Type:     Adam,
		StepSize: stepSize,
		Batch:    batchSize,
		Epsilon:  epsilon,
		Beta1:    beta1,
		Beta2:    beta2,
	})
}

// NewDefaultRMSProp returns an RMSProp solver with default
// hyperparameters and no gradient clipping
func NewDefaultRMSProp(stepSize float64, batchSize int) (*Solver,
	error) {
	return NewRMSProp(stepSize, 1e-8, 0.9, batchSize, -1.0)
}

// NewRMSProp returns an RMSProp solver
func NewRMSProp(stepSize, epsilon, rho float64, batchSize int,
	clip float64) (*Solver, error) {
	return New(Config{
		Type:     RMSProp,
		StepSize: stepSize,
		Batch:    batchSize,
		Epsilon:  epsilon,
		Rho:      rho,
		Clip:     clip,
	})
}

// NewVanilla returns a vanilla gradient descent solver
func NewVanilla(stepSize float64, batchSize int,
	clip float64) (*Solver, error) {
	return New(Config{
		Type:     Vanilla,
		StepSize: stepSize,
		Batch:    batchSize,
		Clip:     clip,
	})
}
