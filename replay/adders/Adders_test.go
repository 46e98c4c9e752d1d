package adders

import (
	"math"
	"testing"

	"github.com/samuelfneumann/gomarl/replay"
	"github.com/samuelfneumann/gomarl/timestep"
	"gonum.org/v1/gonum/mat"
)

const tolerance = 1e-12

// sliceWriter collects written items for inspection.
type sliceWriter struct {
	items []replay.Item
}

func (s *sliceWriter) Add(item replay.Item) error {
	s.items = append(s.items, item)
	return nil
}

func testDims() Dims {
	return Dims{
		Agents:     []string{"agent_0"},
		ObsDims:    map[string]int{"agent_0": 2},
		ActionDims: map[string]int{"agent_0": 1},
	}
}

func obsMap(v float64) map[string]*mat.VecDense {
	return map[string]*mat.VecDense{
		"agent_0": mat.NewVecDense(2, []float64{v, v}),
	}
}

func actionMap(v float64) map[string]*mat.VecDense {
	return map[string]*mat.VecDense{
		"agent_0": mat.NewVecDense(1, []float64{v}),
	}
}

// runEpisode drives adder through a three-step episode with rewards
// 1, 2, 3; discounts 1, 0.9, 0; and observations stamped with the
// timestep number.
func runEpisode(t *testing.T, adder Adder) {
	t.Helper()

	first := timestep.New(timestep.First,
		map[string]float64{"agent_0": 0},
		map[string]float64{"agent_0": 1},
		obsMap(0), 0)
	adder.ObserveFirst(first)

	rewards := []float64{1, 2, 3}
	discounts := []float64{1, 0.9, 0}
	for i := 0; i < 3; i++ {
		stepType := timestep.Mid
		if i == 2 {
			stepType = timestep.Last
		}
		ts := timestep.New(stepType,
			map[string]float64{"agent_0": rewards[i]},
			map[string]float64{"agent_0": discounts[i]},
			obsMap(float64(i+1)), i+1)
		err := adder.Observe(actionMap(float64(i)), ts)
		if err != nil {
			t.Fatalf("could not observe step %d: %v", i, err)
		}
	}
}

func checkValue(t *testing.T, item replay.Item, block string,
	want []float64) {
	t.Helper()

	have, ok := item[block]
	if !ok {
		t.Fatalf("item missing block %v", block)
	}
	if len(have) != len(want) {
		t.Fatalf("wrong size for block %v \n\twant(%v)\n\thave(%v)",
			block, len(want), len(have))
	}
	for i := range want {
		if math.Abs(have[i]-want[i]) > tolerance {
			t.Errorf("wrong value for block %v at index %d "+
				"\n\twant(%v)\n\thave(%v)", block, i, want[i], have[i])
		}
	}
}

func TestNStepOneStep(t *testing.T) {
	writer := &sliceWriter{}
	adder, err := NewNStep(testDims(), 1, writer)
	if err != nil {
		t.Fatalf("could not create adder: %v", err)
	}

	runEpisode(t, adder)

	if len(writer.items) != 3 {
		t.Fatalf("wrong number of items \n\twant(%v)\n\thave(%v)", 3,
			len(writer.items))
	}

	// With n = 1 each item is a plain transition
	item := writer.items[1]
	checkValue(t, item, replay.ObsKey("agent_0"), []float64{1, 1})
	checkValue(t, item, replay.ActionKey("agent_0"), []float64{1})
	checkValue(t, item, replay.RewardKey("agent_0"), []float64{2})
	checkValue(t, item, replay.DiscountKey("agent_0"), []float64{0.9})
	checkValue(t, item, replay.NextObsKey("agent_0"), []float64{2, 2})
}

func TestNStepAccumulates(t *testing.T) {
	writer := &sliceWriter{}
	adder, err := NewNStep(testDims(), 2, writer)
	if err != nil {
		t.Fatalf("could not create adder: %v", err)
	}

	runEpisode(t, adder)

	// One item per source step even near the episode end
	if len(writer.items) != 3 {
		t.Fatalf("wrong number of items \n\twant(%v)\n\thave(%v)", 3,
			len(writer.items))
	}

	// First item spans steps 1 and 2: R = 1 + 1*2, D = 1*0.9
	item := writer.items[0]
	checkValue(t, item, replay.ObsKey("agent_0"), []float64{0, 0})
	checkValue(t, item, replay.RewardKey("agent_0"), []float64{3})
	checkValue(t, item, replay.DiscountKey("agent_0"), []float64{0.9})
	checkValue(t, item, replay.NextObsKey("agent_0"), []float64{2, 2})

	// Second item spans steps 2 and 3: R = 2 + 0.9*3, D = 0.9*0
	item = writer.items[1]
	checkValue(t, item, replay.RewardKey("agent_0"), []float64{4.7})
	checkValue(t, item, replay.DiscountKey("agent_0"), []float64{0})
	checkValue(t, item, replay.NextObsKey("agent_0"), []float64{3, 3})

	// Final item is truncated by the episode end: R = 3, D = 0
	item = writer.items[2]
	checkValue(t, item, replay.ObsKey("agent_0"), []float64{2, 2})
	checkValue(t, item, replay.RewardKey("agent_0"), []float64{3})
	checkValue(t, item, replay.DiscountKey("agent_0"), []float64{0})
	checkValue(t, item, replay.NextObsKey("agent_0"), []float64{3, 3})
}

func TestNStepRequiresActiveEpisode(t *testing.T) {
	adder, err := NewNStep(testDims(), 1, &sliceWriter{})
	if err != nil {
		t.Fatalf("could not create adder: %v", err)
	}

	ts := timestep.New(timestep.Mid,
		map[string]float64{"agent_0": 0},
		map[string]float64{"agent_0": 1},
		obsMap(0), 1)
	if err := adder.Observe(actionMap(0), ts); err == nil {
		t.Error("expected error observing without an active episode")
	}
}

func TestNStepLayoutMatchesItems(t *testing.T) {
	dims := testDims()
	dims.StateDim = 3
	layout := NStepLayout(dims)

	table, err := replay.New(layout, replay.NewFifoSelector(1),
		replay.NewFifoSelector(1), 1, 10)
	if err != nil {
		t.Fatalf("could not create table: %v", err)
	}

	adder, err := NewNStep(dims, 1, table)
	if err != nil {
		t.Fatalf("could not create adder: %v", err)
	}

	state := mat.NewVecDense(3, []float64{7, 8, 9})
	first := timestep.NewWithState(timestep.First,
		map[string]float64{"agent_0": 0},
		map[string]float64{"agent_0": 1},
		obsMap(0), state, 0)
	adder.ObserveFirst(first)

	next := timestep.NewWithState(timestep.Mid,
		map[string]float64{"agent_0": 1},
		map[string]float64{"agent_0": 1},
		obsMap(1), state, 1)
	if err := adder.Observe(actionMap(0), next); err != nil {
		t.Fatalf("items do not match the layout: %v", err)
	}
	if table.Capacity() != 1 {
		t.Errorf("wrong capacity \n\twant(%v)\n\thave(%v)", 1,
			table.Capacity())
	}
}

func TestSequenceWritesFullSequences(t *testing.T) {
	writer := &sliceWriter{}
	adder, err := NewSequence(testDims(), 2, 2, writer)
	if err != nil {
		t.Fatalf("could not create adder: %v", err)
	}

	runEpisode(t, adder)

	if len(writer.items) != 2 {
		t.Fatalf("wrong number of items \n\twant(%v)\n\thave(%v)", 2,
			len(writer.items))
	}

	// The first sequence covers steps 1 and 2 with no padding
	item := writer.items[0]
	checkValue(t, item, replay.ObsKey("agent_0"), []float64{0, 0, 1, 1})
	checkValue(t, item, replay.ActionKey("agent_0"), []float64{0, 1})
	checkValue(t, item, replay.RewardKey("agent_0"), []float64{1, 2})
	checkValue(t, item, replay.DiscountKey("agent_0"), []float64{1, 0.9})
	checkValue(t, item, replay.MaskKey, []float64{1, 1})

	// The second sequence holds only the final step, zero-padded
	item = writer.items[1]
	checkValue(t, item, replay.ObsKey("agent_0"), []float64{2, 2, 0, 0})
	checkValue(t, item, replay.ActionKey("agent_0"), []float64{2, 0})
	checkValue(t, item, replay.RewardKey("agent_0"), []float64{3, 0})
	checkValue(t, item, replay.DiscountKey("agent_0"), []float64{0, 0})
	checkValue(t, item, replay.MaskKey, []float64{1, 0})
}

func TestSequenceOverlap(t *testing.T) {
	writer := &sliceWriter{}
	adder, err := NewSequence(testDims(), 2, 1, writer)
	if err != nil {
		t.Fatalf("could not create adder: %v", err)
	}

	runEpisode(t, adder)

	// With period 1 every step starts a sequence: [1 2], [2 3], [3 pad]
	if len(writer.items) != 3 {
		t.Fatalf("wrong number of items \n\twant(%v)\n\thave(%v)", 3,
			len(writer.items))
	}
	checkValue(t, writer.items[0], replay.RewardKey("agent_0"),
		[]float64{1, 2})
	checkValue(t, writer.items[1], replay.RewardKey("agent_0"),
		[]float64{2, 3})
	checkValue(t, writer.items[2], replay.RewardKey("agent_0"),
		[]float64{3, 0})
	checkValue(t, writer.items[2], replay.MaskKey, []float64{1, 0})
}

func TestSequenceLayoutMatchesItems(t *testing.T) {
	layout := SequenceLayout(testDims(), 4)

	table, err := replay.New(layout, replay.NewFifoSelector(1),
		replay.NewFifoSelector(1), 1, 10)
	if err != nil {
		t.Fatalf("could not create table: %v", err)
	}

	adder, err := NewSequence(testDims(), 4, 4, table)
	if err != nil {
		t.Fatalf("could not create adder: %v", err)
	}

	runEpisode(t, adder)

	if table.Capacity() != 1 {
		t.Errorf("wrong capacity \n\twant(%v)\n\thave(%v)", 1,
			table.Capacity())
	}
}
