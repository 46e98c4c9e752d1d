package envconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/gomarl/environment"
)

func TestValidateRejectsBadConfigs(t *testing.T) {
	configs := []Config{
		{Environment: "Atari", Discount: 0.99, NumAgents: 2},
		{Environment: Spread, Discount: 0.99, NumAgents: 0},
		{Environment: Spread, Discount: 1.5, NumAgents: 2},
		{Environment: Gym, Discount: 0.99},
	}

	for _, c := range configs {
		if err := c.Validate(); err == nil {
			t.Errorf("expected validation error for %+v", c)
		}
	}
}

func TestLoad(t *testing.T) {
	data := `
environment: Spread
discount: 0.95
num_agents: 3
state_info: true
`
	path := filepath.Join(t.TempDir(), "env.yaml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("could not write config file: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("could not load config: %v", err)
	}

	if c.Environment != Spread {
		t.Errorf("wrong environment \n\twant(%v) \n\thave(%v)",
			Spread, c.Environment)
	}
	if c.Discount != 0.95 {
		t.Errorf("wrong discount \n\twant(%v) \n\thave(%v)", 0.95,
			c.Discount)
	}
	if c.NumAgents != 3 {
		t.Errorf("wrong agent count \n\twant(%v) \n\thave(%v)", 3,
			c.NumAgents)
	}
	if !c.StateInfo {
		t.Error("state info flag was not loaded")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "gone.yaml")); err == nil {
		t.Error("expected error loading a missing file")
	}
}

func TestCreateSpread(t *testing.T) {
	c := NewConfig(Spread, 2, 0.99)

	e, first, err := c.Create(14)
	if err != nil {
		t.Fatalf("could not create environment: %v", err)
	}

	if agents := e.Agents(); len(agents) != 2 {
		t.Errorf("wrong number of agents \n\twant(%v) \n\thave(%v)",
			2, len(agents))
	}
	if !first.First() {
		t.Error("created environment did not return a first timestep")
	}
	if _, ok := e.(environment.StateReporter); ok {
		t.Error("environment reports global state without state info")
	}
}

func TestCreateSpreadWithState(t *testing.T) {
	c := NewConfig(Spread, 2, 0.99)
	c.StateInfo = true

	e, _, err := c.Create(14)
	if err != nil {
		t.Fatalf("could not create environment: %v", err)
	}

	reporter, ok := e.(environment.StateReporter)
	if !ok {
		t.Fatal("environment does not report global state")
	}
	if spec := reporter.StateSpec(); spec.Shape == nil {
		t.Error("state spec has no shape")
	}
}

func TestFactorySeeds(t *testing.T) {
	factory := NewConfig(Spread, 2, 0.99).Factory()

	e, err := factory(33)
	if err != nil {
		t.Fatalf("factory could not create environment: %v", err)
	}
	if len(e.Agents()) != 2 {
		t.Errorf("wrong number of agents \n\twant(%v) \n\thave(%v)",
			2, len(e.Agents()))
	}
}
