package initwfn

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestNewBuildsEachScheme(t *testing.T) {
	schemes := []Config{
		{Type: GlorotU, Gain: 1.0},
		{Type: GlorotN, Gain: 1.0},
		{Type: HeU, Gain: 1.0},
		{Type: HeN, Gain: 1.0},
		{Type: Zeroes},
		{Type: Ones},
		{Type: Constant, Value: 0.5},
		{Type: Uniform, Low: -1.0, High: 1.0},
		{Type: Gaussian, Mean: 0.0, StdDev: 0.1},
	}

	for _, c := range schemes {
		w, err := New(c)
		if err != nil {
			t.Errorf("%v: could not build initializer: %v", c.Type,
				err)
			continue
		}
		if w.InitWFn() == nil {
			t.Errorf("%v: no initialisation function constructed",
				c.Type)
		}
	}
}

func TestNewRejectsInvalidConfigs(t *testing.T) {
	configs := []Config{
		{Type: "orthogonal"},
		{Type: Uniform, Low: 1.0, High: -1.0},
		{Type: Gaussian, StdDev: -0.1},
	}

	for _, c := range configs {
		if _, err := New(c); err == nil {
			t.Errorf("expected error creating initializer from %+v",
				c)
		}
	}
}

func TestConfigFromYAML(t *testing.T) {
	data := `
type: glorot_normal
gain: 1.4142
`

	var c Config
	if err := yaml.Unmarshal([]byte(data), &c); err != nil {
		t.Fatalf("could not unmarshal config: %v", err)
	}

	if c.Type != GlorotN {
		t.Errorf("wrong scheme \n\twant(%v) \n\thave(%v)", GlorotN,
			c.Type)
	}
	if c.Gain != 1.4142 {
		t.Errorf("wrong gain \n\twant(%v) \n\thave(%v)", 1.4142,
			c.Gain)
	}

	w, err := New(c)
	if err != nil {
		t.Fatalf("could not create initializer: %v", err)
	}
	if w.InitWFn() == nil {
		t.Error("no initialisation function constructed")
	}
}
