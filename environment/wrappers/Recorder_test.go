package wrappers

import (
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gomarl/environment"
	"github.com/samuelfneumann/gomarl/environment/box2d/spread"
	"github.com/samuelfneumann/gomarl/timestep"
)

// flatEnv is an environment without rendering support
type flatEnv struct{}

func (f flatEnv) Reset() timestep.TimeStep { return timestep.TimeStep{} }

func (f flatEnv) Step(map[string]*mat.VecDense) (timestep.TimeStep,
	bool, error) {
	return timestep.TimeStep{}, false, nil
}

func (f flatEnv) Agents() []string { return []string{"agent_0"} }

func (f flatEnv) ObservationSpecs() map[string]environment.Spec {
	return nil
}

func (f flatEnv) ActionSpecs() map[string]environment.Spec {
	return nil
}

func (f flatEnv) DiscountSpec() environment.Spec {
	return environment.Spec{}
}

func TestNewRecorderValidates(t *testing.T) {
	e, _, err := spread.New(2, 0.99, 14)
	if err != nil {
		t.Fatalf("could not create environment: %v", err)
	}

	if _, err := NewRecorder(flatEnv{}, t.TempDir()); err == nil {
		t.Error("expected error wrapping an environment that cannot " +
			"draw")
	}
	if _, err := NewRecorder(e, ""); err == nil {
		t.Error("expected error with no output directory")
	}
	if _, err := NewRecorder(e, t.TempDir(),
		WithFrameSize(0, 64)); err == nil {
		t.Error("expected error with a zero frame size")
	}
	if _, err := NewRecorder(e, t.TempDir(),
		WithRecordEvery(0)); err == nil {
		t.Error("expected error with a zero recording period")
	}
}

func TestRecorderWritesEpisodeGIF(t *testing.T) {
	e, _, err := spread.New(2, 0.99, 14, spread.WithStepLimit(3))
	if err != nil {
		t.Fatalf("could not create environment: %v", err)
	}

	dir := t.TempDir()
	rec, err := NewRecorder(e, dir, WithFrameSize(64, 64))
	if err != nil {
		t.Fatalf("could not create recorder: %v", err)
	}

	rec.Reset()
	actions := map[string]*mat.VecDense{
		"agent_0": mat.NewVecDense(2, nil),
		"agent_1": mat.NewVecDense(2, nil),
	}

	var last bool
	for i := 0; i < 3 && !last; i++ {
		if _, last, err = rec.Step(actions); err != nil {
			t.Fatalf("could not step environment: %v", err)
		}
	}
	if !last {
		t.Fatal("episode did not end at the step limit")
	}

	path := filepath.Join(dir, "episode_1.gif")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("no recording written: %v", err)
	}
	if info.Size() == 0 {
		t.Error("recording is empty")
	}
}

func TestRecorderRecordEvery(t *testing.T) {
	e, _, err := spread.New(2, 0.99, 14, spread.WithStepLimit(2))
	if err != nil {
		t.Fatalf("could not create environment: %v", err)
	}

	dir := t.TempDir()
	rec, err := NewRecorder(e, dir, WithFrameSize(64, 64),
		WithRecordEvery(2))
	if err != nil {
		t.Fatalf("could not create recorder: %v", err)
	}

	actions := map[string]*mat.VecDense{
		"agent_0": mat.NewVecDense(2, nil),
		"agent_1": mat.NewVecDense(2, nil),
	}

	// Episodes 1 and 2: only the first is recorded
	for episode := 1; episode <= 2; episode++ {
		rec.Reset()
		var last bool
		for !last {
			if _, last, err = rec.Step(actions); err != nil {
				t.Fatalf("could not step environment: %v", err)
			}
		}
	}

	if _, err := os.Stat(filepath.Join(dir, "episode_1.gif")); err != nil {
		t.Errorf("first episode was not recorded: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "episode_2.gif")); err == nil {
		t.Error("second episode should not have been recorded")
	}
}

func TestRecorderKeepsStateReporting(t *testing.T) {
	e, _, err := spread.New(2, 0.99, 14, spread.WithStateInfo())
	if err != nil {
		t.Fatalf("could not create environment: %v", err)
	}

	rec, err := NewRecorder(e, t.TempDir())
	if err != nil {
		t.Fatalf("could not create recorder: %v", err)
	}

	if _, ok := rec.(environment.StateReporter); !ok {
		t.Error("recorder dropped the global state of its environment")
	}

	plain, _, err := spread.New(2, 0.99, 14)
	if err != nil {
		t.Fatalf("could not create environment: %v", err)
	}
	flat, err := NewRecorder(plain, t.TempDir())
	if err != nil {
		t.Fatalf("could not create recorder: %v", err)
	}
	if _, ok := flat.(environment.StateReporter); ok {
		t.Error("recorder reports global state its environment lacks")
	}
}
