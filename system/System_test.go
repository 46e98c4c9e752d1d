package system

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samuelfneumann/gomarl/network"
	"github.com/samuelfneumann/gomarl/replay"
	"github.com/samuelfneumann/gomarl/replay/stream"
)

// pullCounter counts how many times executors pulled weights
type pullCounter struct {
	pulls int
}

func (p *pullCounter) CopyPoliciesTo(map[string]network.NeuralNet) error {
	p.pulls++
	return nil
}

func TestVariableClientPullsOnPeriod(t *testing.T) {
	source := &pullCounter{}
	client, err := NewVariableClient(source, nil, 3)
	if err != nil {
		t.Fatalf("could not create client: %v", err)
	}

	// First update always pulls, then every third call
	for i := 0; i < 7; i++ {
		if err := client.Update(); err != nil {
			t.Fatalf("update %d failed: %v", i, err)
		}
	}
	if source.pulls != 3 {
		t.Errorf("wrong number of pulls \n\twant(%v)\n\thave(%v)", 3,
			source.pulls)
	}

	if err := client.Pull(); err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if source.pulls != 4 {
		t.Errorf("pull should always reach the source \n\thave(%v)",
			source.pulls)
	}
}

func TestVariableClientValidation(t *testing.T) {
	if _, err := NewVariableClient(nil, nil, 1); err == nil {
		t.Error("expected error for nil source")
	}
	if _, err := NewVariableClient(&pullCounter{}, nil, 0); err == nil {
		t.Error("expected error for non-positive period")
	}
}

// stepCounter is a Trainer that counts steps and can fail
type stepCounter struct {
	steps int
	err   error
}

func (s *stepCounter) Step() error {
	s.steps++
	return s.err
}

func TestTrainerNodeStopsOnError(t *testing.T) {
	wantErr := errors.New("no gradient")
	node := NewTrainerNode(&stepCounter{err: wantErr})

	if err := node.Run(context.Background()); err != wantErr {
		t.Errorf("wrong error \n\twant(%v)\n\thave(%v)", wantErr, err)
	}
	if node.Trainer().(*stepCounter).steps != 1 {
		t.Error("run should stop after the failing step")
	}
}

func TestTrainerNodeHonorsCancellation(t *testing.T) {
	node := NewTrainerNode(&stepCounter{})

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		errs <- node.Run(ctx)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case err := <-errs:
		if err != context.Canceled {
			t.Errorf("wrong error \n\twant(%v)\n\thave(%v)",
				context.Canceled, err)
		}

	case <-time.After(time.Second):
		t.Fatal("run did not return after cancellation")
	}

	if node.Trainer().(*stepCounter).steps == 0 {
		t.Error("trainer should step while running")
	}
}

// samplingTrainer steps against a real replay table, so its steps
// fail with an insufficient-samples error until the table fills.
type samplingTrainer struct {
	table *replay.Table
	steps atomic.Int64
}

func (s *samplingTrainer) Step() error {
	if _, err := s.table.Sample(); err != nil {
		return err
	}
	s.steps.Add(1)
	return nil
}

func TestTrainerNodeWaitsForSamples(t *testing.T) {
	layout := replay.Layout{{Name: replay.ObsKey("agent_0"), Size: 1}}
	table, err := replay.New(layout, replay.NewFifoSelector(1),
		replay.NewFifoSelector(1), 1, 8)
	if err != nil {
		t.Fatalf("could not create table: %v", err)
	}

	trainer := &samplingTrainer{table: table}
	node := NewTrainerNode(trainer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errs := make(chan error, 1)
	go func() {
		errs <- node.Run(ctx)
	}()

	// An empty table cannot fill a batch, so the node should keep
	// retrying instead of exiting
	time.Sleep(25 * time.Millisecond)
	select {
	case err := <-errs:
		t.Fatalf("run exited while waiting for samples: %v", err)
	default:
	}

	item := replay.Item{replay.ObsKey("agent_0"): []float64{1}}
	if err := table.Add(item); err != nil {
		t.Fatalf("could not add to table: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for trainer.steps.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("trainer never stepped after the table filled")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	<-errs
}

func TestReplayNodeConsumesStream(t *testing.T) {
	layout := replay.Layout{{Name: replay.ObsKey("agent_0"), Size: 1}}
	table, err := replay.New(layout, replay.NewFifoSelector(1),
		replay.NewFifoSelector(1), 1, 8)
	if err != nil {
		t.Fatalf("could not create table: %v", err)
	}

	s := stream.NewMemory(8)
	ctx, cancel := context.WithCancel(context.Background())

	node := NewReplayNode(table, s, 1)
	errs := make(chan error, 1)
	go func() {
		errs <- node.Run(ctx)
	}()

	item := replay.Item{replay.ObsKey("agent_0"): []float64{1}}
	if err := s.Publish(ctx, item); err != nil {
		t.Fatalf("could not publish: %v", err)
	}

	// Wait for the consumer to drain the stream into the table
	deadline := time.Now().Add(time.Second)
	for node.Table().Capacity() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream item never reached the table")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	<-errs
}
