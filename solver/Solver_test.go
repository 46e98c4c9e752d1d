package solver

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestNewBuildsEachType(t *testing.T) {
	solvers := map[string]func() (*Solver, error){
		"adam": func() (*Solver, error) {
			return NewDefaultAdam(0.001, 32)
		},
		"rmsprop": func() (*Solver, error) {
			return NewDefaultRMSProp(0.001, 32)
		},
		"vanilla": func() (*Solver, error) {
			return NewVanilla(0.001, 32, 1.0)
		},
	}

	for name, build := range solvers {
		s, err := build()
		if err != nil {
			t.Errorf("%v: could not build solver: %v", name, err)
			continue
		}
		if s.Solver == nil {
			t.Errorf("%v: no underlying solver constructed", name)
		}
		if fresh := s.Config.Create(); fresh == nil {
			t.Errorf("%v: config could not mint a fresh solver", name)
		}
	}
}

func TestNewRejectsInvalidConfigs(t *testing.T) {
	configs := []Config{
		{Type: "momentum", StepSize: 0.001, Batch: 32},
		{Type: Adam, StepSize: 0.0, Batch: 32},
		{Type: Adam, StepSize: 0.001, Batch: 0},
	}

	for _, c := range configs {
		if _, err := New(c); err == nil {
			t.Errorf("expected error creating solver from %+v", c)
		}
	}
}

func TestConfigFromYAML(t *testing.T) {
	data := `
type: rmsprop
step_size: 0.01
batch: 64
epsilon: 1.0e-7
rho: 0.95
clip: 5.0
`

	var c Config
	if err := yaml.Unmarshal([]byte(data), &c); err != nil {
		t.Fatalf("could not unmarshal config: %v", err)
	}

	if c.Type != RMSProp {
		t.Errorf("wrong solver type \n\twant(%v) \n\thave(%v)",
			RMSProp, c.Type)
	}
	if c.StepSize != 0.01 {
		t.Errorf("wrong step size \n\twant(%v) \n\thave(%v)", 0.01,
			c.StepSize)
	}
	if c.Rho != 0.95 {
		t.Errorf("wrong rho \n\twant(%v) \n\thave(%v)", 0.95, c.Rho)
	}

	s, err := New(c)
	if err != nil {
		t.Fatalf("could not create solver: %v", err)
	}
	if s.Solver == nil {
		t.Error("no underlying solver constructed")
	}
}
