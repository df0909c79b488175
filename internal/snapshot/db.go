package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tendermint/neosync/internal/codec"
	"github.com/tendermint/neosync/internal/storage"
)

// DBSnapshot is a snapshot reading from a storage backend. Commit writes all
// pending mutations of every cache in one atomic batch.
type DBSnapshot struct {
	caches

	store  storage.Store
	writer *batchWriter
}

var _ Snapshot = (*DBSnapshot)(nil)

// batchWriter is shared by the sinks of one DBSnapshot and holds the batch
// of the commit in progress.
type batchWriter struct {
	batch storage.Batch
}

// NewDBSnapshot opens a snapshot over store.
func NewDBSnapshot(store storage.Store) *DBSnapshot {
	s := &DBSnapshot{store: store, writer: &batchWriter{}}
	s.caches = caches{
		blocks:       newDBCache(s, "blocks", storage.DataBlock, uint256Keys, newBlock),
		transactions: newDBCache(s, "transactions", storage.DataTransaction, uint256Keys, newTransactionState),
		contracts:    newDBCache(s, "contracts", storage.STContract, uint160Keys, newContractState),
		storages:     newDBCache(s, "storages", storage.STStorage, storageKeys, newStorageItem),
		heightIndex:  newDBCache(s, "height-index", storage.IXHeightIndex, heightKeys, newHeaderHash),
		bestHeight:   newHeightAttribute(s.loadHeight, s.storeHeight),
	}
	return s
}

// Clone returns a nested snapshot on top of s.
func (s *DBSnapshot) Clone() *CloneSnapshot { return NewCloneSnapshot(s) }

// Commit writes all pending changes atomically.
func (s *DBSnapshot) Commit() error {
	if err := s.validate(); err != nil {
		return err
	}

	s.writer.batch = s.store.NewBatch()
	defer func() {
		_ = s.writer.batch.Close()
		s.writer.batch = nil
	}()

	if err := s.apply(); err != nil {
		return err
	}
	return s.writer.batch.Write()
}

func (s *DBSnapshot) loadHeight() (uint32, bool, error) {
	value, err := s.store.Get(storage.SYSCurrentBlock.Key(nil))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if len(value) != 4 {
		return 0, false, fmt.Errorf("malformed current block record: %x", value)
	}
	return binary.LittleEndian.Uint32(value), true, nil
}

func (s *DBSnapshot) storeHeight(height uint32) error {
	value := make([]byte, 4)
	binary.LittleEndian.PutUint32(value, height)
	return s.writer.batch.Put(storage.SYSCurrentBlock.Key(nil), value)
}

// newDBCache builds a cache whose source decodes records from the store
// and whose sink writes into the snapshot's commit batch.
func newDBCache[K any, V Item[V]](
	s *DBSnapshot,
	name string,
	prefix storage.KeyPrefix,
	keys KeyCodec[K],
	newItem func() V,
) *Cache[K, V] {
	decode := func(raw []byte) (V, error) {
		item := newItem()
		if err := codec.FromBytes(raw, item); err != nil {
			var zero V
			return zero, fmt.Errorf("decode %s record: %w", name, err)
		}
		return item, nil
	}

	fetch := func(key K) (V, error) {
		raw, err := s.store.Get(prefix.Key(keys.Encode(key)))
		if err != nil {
			var zero V
			return zero, err
		}
		return decode(raw)
	}

	source := Source[K, V]{
		Fetch: fetch,
		FetchOrNil: func(key K) (V, bool, error) {
			item, err := fetch(key)
			if errors.Is(err, ErrKeyNotFound) {
				return item, false, nil
			}
			return item, err == nil, err
		},
		Enumerate: func(p []byte) ([]KeyValue[K, V], error) {
			var (
				result []KeyValue[K, V]
				ferr   error
			)
			err := s.store.Seek(prefix.Key(p), func(k, v []byte) bool {
				key, err := keys.Decode(k[1:])
				if err != nil {
					ferr = fmt.Errorf("decode %s key %x: %w", name, k, err)
					return false
				}
				item, err := decode(v)
				if err != nil {
					ferr = err
					return false
				}
				result = append(result, KeyValue[K, V]{Key: key, Value: item})
				return true
			})
			if err != nil {
				return nil, err
			}
			return result, ferr
		},
	}

	return NewCache[K, V](name, keys, source, &dbSink[K, V]{writer: s.writer, prefix: prefix, keys: keys})
}

type dbSink[K any, V Item[V]] struct {
	writer *batchWriter
	prefix storage.KeyPrefix
	keys   KeyCodec[K]
}

func (d *dbSink[K, V]) Validate(K, TrackState) error { return nil }

func (d *dbSink[K, V]) Add(key K, item V) error { return d.put(key, item) }

func (d *dbSink[K, V]) Replace(key K, item V) error { return d.put(key, item) }

func (d *dbSink[K, V]) put(key K, item V) error {
	raw, err := codec.ToBytes(item)
	if err != nil {
		return err
	}
	return d.writer.batch.Put(d.prefix.Key(d.keys.Encode(key)), raw)
}

func (d *dbSink[K, V]) Delete(key K) error {
	return d.writer.batch.Delete(d.prefix.Key(d.keys.Encode(key)))
}
