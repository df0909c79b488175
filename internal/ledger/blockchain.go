package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"go.uber.org/atomic"

	"github.com/tendermint/neosync/internal/snapshot"
	"github.com/tendermint/neosync/internal/storage"
	"github.com/tendermint/neosync/libs/log"
	"github.com/tendermint/neosync/types"
)

var (
	// ErrBlockOutOfOrder is returned by Persist for a block that does not
	// directly follow the current height.
	ErrBlockOutOfOrder = errors.New("block out of order")

	// ErrNotFound is returned by lookups for absent records.
	ErrNotFound = storage.ErrKeyNotFound
)

// heightSubscriptionBuffer bounds every height subscription channel.
const heightSubscriptionBuffer = 16

// Blockchain persists blocks through the storage cache engine and serves
// lookups of committed data.
type Blockchain struct {
	logger  log.Logger
	store   storage.Store
	metrics *Metrics

	// persistMtx serializes Persist.
	persistMtx sync.Mutex
	height     *atomic.Int64

	subsMtx sync.Mutex
	subs    []chan uint32
}

// NewBlockchain opens the chain stored in store.
func NewBlockchain(logger log.Logger, store storage.Store, metrics *Metrics) (*Blockchain, error) {
	if metrics == nil {
		metrics = NopMetrics()
	}

	bc := &Blockchain{
		logger:  logger,
		store:   store,
		metrics: metrics,
		height:  atomic.NewInt64(-1),
	}

	h, known, err := snapshot.NewDBSnapshot(store).BestHeight().Get()
	if err != nil {
		return nil, fmt.Errorf("load best height: %w", err)
	}
	if known {
		bc.height.Store(int64(h))
		metrics.Height.Set(float64(h))
	}
	return bc, nil
}

// Height returns the index of the last persisted block, or -1 for an empty
// chain.
func (bc *Blockchain) Height() int64 { return bc.height.Load() }

// Persist commits block. The block must directly follow the current height;
// the first block has index 0. Backend errors are returned unchanged.
func (bc *Blockchain) Persist(block *types.Block) error {
	bc.persistMtx.Lock()
	defer bc.persistMtx.Unlock()

	start := time.Now()

	if expected := bc.Height() + 1; int64(block.Index) != expected {
		return fmt.Errorf("%w: got %d, expected %d", ErrBlockOutOfOrder, block.Index, expected)
	}

	snap := snapshot.NewDBSnapshot(bc.store)
	if err := snap.AddBlock(block); err != nil {
		return err
	}

	for _, tx := range block.Transactions {
		clone := snap.Clone()
		state := &types.TransactionState{BlockIndex: block.Index, Transaction: tx}
		if err := clone.Transactions().Put(tx.Hash(), state); err != nil {
			return fmt.Errorf("block %d: %w", block.Index, err)
		}
		if err := clone.Commit(); err != nil {
			return fmt.Errorf("block %d: %w", block.Index, err)
		}
	}

	if err := snap.Commit(); err != nil {
		return fmt.Errorf("commit block %d: %w", block.Index, err)
	}

	bc.height.Store(int64(block.Index))
	bc.publish(block.Index)

	bc.metrics.Height.Set(float64(block.Index))
	bc.metrics.BlocksPersisted.Add(1)
	bc.metrics.TransactionsPersisted.Add(float64(len(block.Transactions)))
	bc.metrics.PersistDuration.Observe(time.Since(start).Seconds())

	bc.logger.Debug("persisted block",
		"height", block.Index,
		"hash", block.Hash().StringLE(),
		"txs", len(block.Transactions))
	return nil
}

// SubscribeHeight returns a channel receiving every newly persisted height.
// Heights are dropped for a subscriber that does not keep up.
func (bc *Blockchain) SubscribeHeight() <-chan uint32 {
	ch := make(chan uint32, heightSubscriptionBuffer)

	bc.subsMtx.Lock()
	bc.subs = append(bc.subs, ch)
	bc.subsMtx.Unlock()

	return ch
}

func (bc *Blockchain) publish(height uint32) {
	bc.subsMtx.Lock()
	defer bc.subsMtx.Unlock()

	for _, ch := range bc.subs {
		select {
		case ch <- height:
		default:
		}
	}
}

func (bc *Blockchain) view() *snapshot.DBSnapshot {
	return snapshot.NewDBSnapshot(bc.store)
}

// GetBlock returns the block with the given hash.
func (bc *Blockchain) GetBlock(hash util.Uint256) (*types.Block, error) {
	return bc.view().Blocks().Get(hash, true)
}

// HasBlock reports whether a block with the given hash is stored.
func (bc *Blockchain) HasBlock(hash util.Uint256) bool {
	found, err := bc.view().Blocks().Contains(hash)
	return err == nil && found
}

// GetHeaderHash returns the hash of the block at index.
func (bc *Blockchain) GetHeaderHash(index uint32) (util.Uint256, error) {
	h, err := bc.view().HeightIndex().Get(index, true)
	if err != nil {
		return util.Uint256{}, err
	}
	return h.Hash, nil
}

// GetBlockByIndex returns the block at index.
func (bc *Blockchain) GetBlockByIndex(index uint32) (*types.Block, error) {
	view := bc.view()
	h, err := view.HeightIndex().Get(index, true)
	if err != nil {
		return nil, err
	}
	return view.Blocks().Get(h.Hash, true)
}

// GetHeader returns the header of the block at index.
func (bc *Blockchain) GetHeader(index uint32) (*types.Header, error) {
	b, err := bc.GetBlockByIndex(index)
	if err != nil {
		return nil, err
	}
	return &b.Header, nil
}

// GetTransaction returns a persisted transaction and its block index.
func (bc *Blockchain) GetTransaction(hash util.Uint256) (*types.TransactionState, error) {
	return bc.view().Transactions().Get(hash, true)
}

// GetContract returns the state of the contract with the given hash.
func (bc *Blockchain) GetContract(hash util.Uint160) (*types.ContractState, error) {
	return bc.view().Contracts().Get(hash, true)
}

// FindStorage returns the storage entries of contract id whose key starts
// with prefix, in canonical key order.
func (bc *Blockchain) FindStorage(id int32, prefix []byte) ([]snapshot.KeyValue[types.StorageKey, *types.StorageItem], error) {
	found, err := bc.view().Storages().Find(types.StorageKeyPrefix(id, prefix))
	if err != nil {
		return nil, err
	}

	result := found[:0]
	for _, kv := range found {
		if kv.Key.HasPrefix(id, prefix) {
			result = append(result, kv)
		}
	}
	return result, nil
}

// Snapshot opens a writable snapshot over the committed state. Changes are
// persisted by committing it; the chain height only moves through Persist.
func (bc *Blockchain) Snapshot() *snapshot.DBSnapshot {
	return bc.view()
}
