package replay

import (
	"math"
	"testing"
)

func testLayout() Layout {
	return Layout{
		{Name: ObsKey("agent_0"), Size: 2},
		{Name: RewardKey("agent_0"), Size: 1},
	}
}

func testItem(v float64) Item {
	return Item{
		ObsKey("agent_0"):    []float64{v, v + 1},
		RewardKey("agent_0"): []float64{-v},
	}
}

func TestLayoutValidate(t *testing.T) {
	if err := (Layout{}).Validate(); err == nil {
		t.Error("expected error for empty layout")
	}

	bad := Layout{{Name: "a", Size: 1}, {Name: "a", Size: 2}}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for duplicate block names")
	}

	bad = Layout{{Name: "a", Size: 0}}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero block size")
	}

	if err := testLayout().Validate(); err != nil {
		t.Errorf("unexpected error for legal layout: %v", err)
	}
}

func TestTableAddSampleFifo(t *testing.T) {
	table, err := New(testLayout(), NewFifoSelector(1),
		NewFifoSelector(2), 1, 5)
	if err != nil {
		t.Fatalf("could not create table: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := table.Add(testItem(float64(i))); err != nil {
			t.Fatalf("could not add item %d: %v", i, err)
		}
	}
	if table.Capacity() != 3 {
		t.Errorf("wrong capacity \n\twant(%v)\n\thave(%v)", 3,
			table.Capacity())
	}

	batch, err := table.Sample()
	if err != nil {
		t.Fatalf("could not sample: %v", err)
	}

	// A fifo sampler returns the oldest items first
	wantObs := []float64{0, 1, 1, 2}
	wantRewards := []float64{0, -1}
	haveObs := batch[ObsKey("agent_0")]
	haveRewards := batch[RewardKey("agent_0")]
	if len(haveObs) != len(wantObs) {
		t.Fatalf("wrong observation batch size \n\twant(%v)"+
			"\n\thave(%v)", len(wantObs), len(haveObs))
	}
	for i := range wantObs {
		if math.Abs(haveObs[i]-wantObs[i]) > 1e-12 {
			t.Errorf("wrong observation at index %d \n\twant(%v)"+
				"\n\thave(%v)", i, wantObs[i], haveObs[i])
		}
	}
	for i := range wantRewards {
		if math.Abs(haveRewards[i]-wantRewards[i]) > 1e-12 {
			t.Errorf("wrong reward at index %d \n\twant(%v)"+
				"\n\thave(%v)", i, wantRewards[i], haveRewards[i])
		}
	}
}

func TestTableSampleEmpty(t *testing.T) {
	table, err := New(testLayout(), NewFifoSelector(1),
		NewUniformSelector(2, 42), 1, 5)
	if err != nil {
		t.Fatalf("could not create table: %v", err)
	}

	_, err = table.Sample()
	if err == nil {
		t.Fatal("expected error sampling an empty table")
	}
	if !IsEmptyTable(err) {
		t.Errorf("expected an empty-table error \n\thave(%v)", err)
	}
}

func TestTableSampleInsufficient(t *testing.T) {
	table, err := New(testLayout(), NewFifoSelector(1),
		NewUniformSelector(2, 42), 3, 5)
	if err != nil {
		t.Fatalf("could not create table: %v", err)
	}

	if err := table.Add(testItem(1)); err != nil {
		t.Fatalf("could not add item: %v", err)
	}

	_, err = table.Sample()
	if err == nil {
		t.Fatal("expected error sampling below minimum capacity")
	}
	if !IsInsufficientSamples(err) {
		t.Errorf("expected an insufficient-samples error \n\thave(%v)",
			err)
	}
	if IsEmptyTable(err) {
		t.Errorf("error should not report an empty table \n\thave(%v)",
			err)
	}
}

func TestTableRemovesWhenFull(t *testing.T) {
	table, err := New(testLayout(), NewFifoSelector(1),
		NewFifoSelector(1), 1, 2)
	if err != nil {
		t.Fatalf("could not create table: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := table.Add(testItem(float64(i))); err != nil {
			t.Fatalf("could not add item %d: %v", i, err)
		}
	}

	if table.Capacity() != 2 {
		t.Errorf("wrong capacity after eviction \n\twant(%v)"+
			"\n\thave(%v)", 2, table.Capacity())
	}

	// The oldest item was evicted, so the oldest remaining item is
	// the second one added
	batch, err := table.Sample()
	if err != nil {
		t.Fatalf("could not sample: %v", err)
	}
	haveObs := batch[ObsKey("agent_0")]
	wantObs := []float64{1, 2}
	for i := range wantObs {
		if math.Abs(haveObs[i]-wantObs[i]) > 1e-12 {
			t.Errorf("wrong observation at index %d \n\twant(%v)"+
				"\n\thave(%v)", i, wantObs[i], haveObs[i])
		}
	}
}

func TestTableAddValidatesItems(t *testing.T) {
	table, err := New(testLayout(), NewFifoSelector(1),
		NewFifoSelector(1), 1, 5)
	if err != nil {
		t.Fatalf("could not create table: %v", err)
	}

	missing := Item{ObsKey("agent_0"): []float64{1, 2}}
	if err := table.Add(missing); err == nil {
		t.Error("expected error adding an item with a missing block")
	}

	wrongSize := testItem(0)
	wrongSize[ObsKey("agent_0")] = []float64{1}
	if err := table.Add(wrongSize); err == nil {
		t.Error("expected error adding an item with a wrong-sized block")
	}

	if table.Capacity() != 0 {
		t.Errorf("rejected items should not occupy slots \n\twant(%v)"+
			"\n\thave(%v)", 0, table.Capacity())
	}
}

func TestTableUniformSample(t *testing.T) {
	table, err := New(testLayout(), NewFifoSelector(1),
		NewUniformSelector(4, 17), 1, 10)
	if err != nil {
		t.Fatalf("could not create table: %v", err)
	}

	added := make(map[float64]bool)
	for i := 0; i < 6; i++ {
		if err := table.Add(testItem(float64(i))); err != nil {
			t.Fatalf("could not add item %d: %v", i, err)
		}
		added[float64(i)] = true
	}

	batch, err := table.Sample()
	if err != nil {
		t.Fatalf("could not sample: %v", err)
	}

	obs := batch[ObsKey("agent_0")]
	rewards := batch[RewardKey("agent_0")]
	if len(obs) != 4*2 || len(rewards) != 4 {
		t.Fatalf("wrong batch sizes \n\twant(%v, %v)\n\thave(%v, %v)",
			8, 4, len(obs), len(rewards))
	}

	// Every sampled row must be one of the added items, with blocks
	// staying aligned within a row
	for i := 0; i < 4; i++ {
		v := obs[i*2]
		if !added[v] {
			t.Errorf("sampled row %d does not match any added item: %v",
				i, v)
		}
		if obs[i*2+1] != v+1 {
			t.Errorf("row %d observation corrupted \n\twant(%v)"+
				"\n\thave(%v)", i, v+1, obs[i*2+1])
		}
		if rewards[i] != -v {
			t.Errorf("row %d blocks misaligned \n\twant(%v)"+
				"\n\thave(%v)", i, -v, rewards[i])
		}
	}
}

func TestConfigCreate(t *testing.T) {
	config := Config{
		RemoveMethod: Fifo,
		SampleMethod: Uniform,
		RemoveSize:   1,
		SampleSize:   8,
		MaxCapacity:  100,
		MinCapacity:  16,
	}

	table, err := config.Create(testLayout(), 42)
	if err != nil {
		t.Fatalf("could not create table: %v", err)
	}
	if table.BatchSize() != 8 {
		t.Errorf("wrong batch size \n\twant(%v)\n\thave(%v)", 8,
			table.BatchSize())
	}
	if table.MaxCapacity() != 100 {
		t.Errorf("wrong max capacity \n\twant(%v)\n\thave(%v)", 100,
			table.MaxCapacity())
	}
	if table.MinCapacity() != 16 {
		t.Errorf("wrong min capacity \n\twant(%v)\n\thave(%v)", 16,
			table.MinCapacity())
	}

	config.SampleMethod = SelectorType("priority")
	if _, err := config.Create(testLayout(), 42); err == nil {
		t.Error("expected error for unknown selector type")
	}
}
