package storage

import (
	"errors"
	"fmt"

	dbm "github.com/tendermint/tm-db"
)

// ErrKeyNotFound is returned by Get for absent keys.
var ErrKeyNotFound = errors.New("key not found")

// Store is the ordered key/value backend the storage cache engine reads
// from and commits into.
type Store interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	// Seek calls fn for every entry whose key starts with prefix, in
	// ascending key order, until fn returns false.
	Seek(prefix []byte, fn func(key, value []byte) bool) error
	NewBatch() Batch
	Close() error
}

// Batch collects writes that are applied atomically by Write.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Write() error
	Close() error
}

// DBStore implements Store on top of a tm-db database.
type DBStore struct {
	db dbm.DB
}

var _ Store = (*DBStore)(nil)

// NewDBStore wraps db.
func NewDBStore(db dbm.DB) *DBStore {
	return &DBStore{db: db}
}

// NewMemStore returns an in-memory store.
func NewMemStore() *DBStore {
	return NewDBStore(dbm.NewMemDB())
}

func (s *DBStore) Get(key []byte) ([]byte, error) {
	value, err := s.db.Get(key)
	if err != nil {
		return nil, fmt.Errorf("get %x: %w", key, err)
	}
	if value == nil {
		return nil, ErrKeyNotFound
	}
	return value, nil
}

func (s *DBStore) Put(key, value []byte) error {
	if err := s.db.SetSync(key, value); err != nil {
		return fmt.Errorf("put %x: %w", key, err)
	}
	return nil
}

func (s *DBStore) Delete(key []byte) error {
	if err := s.db.DeleteSync(key); err != nil {
		return fmt.Errorf("delete %x: %w", key, err)
	}
	return nil
}

func (s *DBStore) Seek(prefix []byte, fn func(key, value []byte) bool) error {
	var (
		iter dbm.Iterator
		err  error
	)
	if len(prefix) == 0 {
		iter, err = s.db.Iterator(nil, nil)
	} else {
		iter, err = dbm.IteratePrefix(s.db, prefix)
	}
	if err != nil {
		return fmt.Errorf("seek %x: %w", prefix, err)
	}
	defer iter.Close()

	for ; iter.Valid(); iter.Next() {
		key := append([]byte(nil), iter.Key()...)
		value := append([]byte(nil), iter.Value()...)
		if !fn(key, value) {
			break
		}
	}
	return iter.Error()
}

func (s *DBStore) NewBatch() Batch {
	return &dbBatch{batch: s.db.NewBatch()}
}

func (s *DBStore) Close() error {
	return s.db.Close()
}

type dbBatch struct {
	batch dbm.Batch
}

func (b *dbBatch) Put(key, value []byte) error { return b.batch.Set(key, value) }

func (b *dbBatch) Delete(key []byte) error { return b.batch.Delete(key) }

func (b *dbBatch) Write() error {
	if err := b.batch.WriteSync(); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	return nil
}

func (b *dbBatch) Close() error { return b.batch.Close() }
