package counter

import (
	"sync"
	"testing"
)

func TestIncrementGet(t *testing.T) {
	c := New()

	counts := c.Increment(map[string]float64{TrainerSteps: 1})
	if counts[TrainerSteps] != 1 {
		t.Errorf("wrong count \n\twant(%v)\n\thave(%v)", 1,
			counts[TrainerSteps])
	}

	c.Increment(map[string]float64{
		TrainerSteps:  1,
		ExecutorSteps: 25,
	})

	counts = c.Get()
	if counts[TrainerSteps] != 2 {
		t.Errorf("wrong trainer steps \n\twant(%v)\n\thave(%v)", 2,
			counts[TrainerSteps])
	}
	if counts[ExecutorSteps] != 25 {
		t.Errorf("wrong executor steps \n\twant(%v)\n\thave(%v)", 25,
			counts[ExecutorSteps])
	}
	if _, ok := counts[Walltime]; !ok {
		t.Error("snapshots should include walltime")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	c := New()
	c.Increment(map[string]float64{ExecutorEpisodes: 3})

	counts := c.Get()
	counts[ExecutorEpisodes] = 1000

	if c.Get()[ExecutorEpisodes] != 3 {
		t.Error("mutating a snapshot should not change the counter")
	}
}

func TestConcurrentIncrement(t *testing.T) {
	c := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Increment(map[string]float64{ExecutorSteps: 1})
			}
		}()
	}
	wg.Wait()

	if have := c.Get()[ExecutorSteps]; have != 800 {
		t.Errorf("wrong count after concurrent increments "+
			"\n\twant(%v)\n\thave(%v)", 800, have)
	}
}
