// Package replay provides replay tables for storing and sampling
// multi-agent experience.
package replay

import "fmt"

// Block describes one named column of a replay table: a flat vector of
// Size values stored per item.
type Block struct {
	Name string
	Size int
}

// Layout is the schema of a replay table: the ordered list of blocks
// that every item stored in the table must carry.
type Layout []Block

// Validate returns an error if the Layout has duplicate block names or
// non-positive block sizes.
func (l Layout) Validate() error {
	if len(l) == 0 {
		return fmt.Errorf("layout: must have at least one block")
	}

	seen := make(map[string]struct{}, len(l))
	for _, block := range l {
		if block.Size < 1 {
			return fmt.Errorf("layout: block %v must have positive "+
				"size \n\thave(%v)", block.Name, block.Size)
		}
		if _, ok := seen[block.Name]; ok {
			return fmt.Errorf("layout: duplicate block %v", block.Name)
		}
		seen[block.Name] = struct{}{}
	}
	return nil
}

// Item is a single unit of experience, keyed by block name. The items
// an adder produces hold one flat vector per block of its table's
// Layout.
type Item map[string][]float64

// Batch is a batch of sampled items, keyed by block name. Each block
// holds batch-many item vectors back to back, so a block of size n
// sampled with batch size b has b*n values, row-major with the batch
// dimension first.
type Batch map[string][]float64

// Writer accepts items of experience. A *Table is a Writer; streams
// which forward items to a table in another process satisfy it
// through an adapter.
type Writer interface {
	Add(Item) error
}

// Block names used by the adders. Per-agent blocks are keyed by the
// agent's ID so that tables can store experience for any set of
// agents.

// ObsKey returns the name of the block holding agent's observations.
func ObsKey(agent string) string { return "obs_" + agent }

// ActionKey returns the name of the block holding agent's actions.
func ActionKey(agent string) string { return "action_" + agent }

// RewardKey returns the name of the block holding agent's rewards.
func RewardKey(agent string) string { return "reward_" + agent }

// DiscountKey returns the name of the block holding agent's discounts.
func DiscountKey(agent string) string { return "discount_" + agent }

// NextObsKey returns the name of the block holding agent's
// observations at the next timestep.
func NextObsKey(agent string) string { return "next_obs_" + agent }

// StateKey is the name of the block holding the environment's global
// state, for environments which report one.
const StateKey = "state"

// NextStateKey is the name of the block holding the environment's
// global state at the next timestep.
const NextStateKey = "next_state"

// MaskKey is the name of the block holding sequence padding masks: 1
// at timesteps holding real experience, 0 at padded timesteps.
const MaskKey = "mask"
