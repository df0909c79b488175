package snapshot

import (
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/tendermint/neosync/types"
)

type (
	BlockCache       = Cache[util.Uint256, *types.Block]
	TransactionCache = Cache[util.Uint256, *types.TransactionState]
	ContractCache    = Cache[util.Uint160, *types.ContractState]
	StorageCache     = Cache[types.StorageKey, *types.StorageItem]
	HeightIndexCache = Cache[uint32, *types.HeaderHash]
)

// Snapshot is an isolated, committable view of the chain state.
type Snapshot interface {
	Blocks() *BlockCache
	Transactions() *TransactionCache
	Contracts() *ContractCache
	Storages() *StorageCache
	HeightIndex() *HeightIndexCache
	BestHeight() *HeightAttribute

	// AddBlock stores block, indexes it by height and advances the best
	// height.
	AddBlock(block *types.Block) error

	// Clone returns a nested snapshot whose writes stay invisible to this
	// one until the clone is committed.
	Clone() *CloneSnapshot

	Commit() error
}

// caches holds the per-table caches shared by both snapshot kinds.
type caches struct {
	blocks       *BlockCache
	transactions *TransactionCache
	contracts    *ContractCache
	storages     *StorageCache
	heightIndex  *HeightIndexCache
	bestHeight   *HeightAttribute
}

func (c *caches) Blocks() *BlockCache             { return c.blocks }
func (c *caches) Transactions() *TransactionCache { return c.transactions }
func (c *caches) Contracts() *ContractCache       { return c.contracts }
func (c *caches) Storages() *StorageCache         { return c.storages }
func (c *caches) HeightIndex() *HeightIndexCache  { return c.heightIndex }
func (c *caches) BestHeight() *HeightAttribute    { return c.bestHeight }

func (c *caches) AddBlock(block *types.Block) error {
	hash := block.Hash()
	if err := c.blocks.Put(hash, block); err != nil {
		return fmt.Errorf("add block %d: %w", block.Index, err)
	}
	if err := c.heightIndex.Put(block.Index, &types.HeaderHash{Hash: hash}); err != nil {
		return fmt.Errorf("index block %d: %w", block.Index, err)
	}
	return c.bestHeight.Advance(block.Index)
}

// validate runs the first commit phase over every cache.
func (c *caches) validate() error {
	for _, v := range []interface{ Validate() error }{
		c.blocks, c.transactions, c.contracts, c.storages, c.heightIndex,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// apply runs the second commit phase over every cache and the height.
func (c *caches) apply() error {
	for _, a := range []interface{ Apply() error }{
		c.blocks, c.transactions, c.contracts, c.storages, c.heightIndex,
	} {
		if err := a.Apply(); err != nil {
			return err
		}
	}
	return c.bestHeight.Commit()
}
