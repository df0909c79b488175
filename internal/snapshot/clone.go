package snapshot

import (
	"errors"
)

// CloneSnapshot is a snapshot layered on a parent snapshot. Reads fall
// through to the parent; Commit applies the pending changes to the parent's
// caches, where they stay pending until the parent commits.
type CloneSnapshot struct {
	caches

	parent Snapshot
}

var _ Snapshot = (*CloneSnapshot)(nil)

// NewCloneSnapshot opens a snapshot nested in parent.
func NewCloneSnapshot(parent Snapshot) *CloneSnapshot {
	return &CloneSnapshot{
		parent: parent,
		caches: caches{
			blocks:       newCloneCache(parent.Blocks()),
			transactions: newCloneCache(parent.Transactions()),
			contracts:    newCloneCache(parent.Contracts()),
			storages:     newCloneCache(parent.Storages()),
			heightIndex:  newCloneCache(parent.HeightIndex()),
			bestHeight: newHeightAttribute(
				parent.BestHeight().Get,
				parent.BestHeight().Advance,
			),
		},
	}
}

// Parent returns the snapshot this clone commits into.
func (s *CloneSnapshot) Parent() Snapshot { return s.parent }

// Clone returns a snapshot nested one level deeper.
func (s *CloneSnapshot) Clone() *CloneSnapshot { return NewCloneSnapshot(s) }

// Commit validates every pending change against the parent first and
// applies nothing if any of them conflicts.
func (s *CloneSnapshot) Commit() error {
	if err := s.validate(); err != nil {
		return err
	}
	return s.apply()
}

func newCloneCache[K any, V Item[V]](parent *Cache[K, V]) *Cache[K, V] {
	source := Source[K, V]{
		Fetch: func(key K) (V, error) {
			return parent.Get(key, true)
		},
		FetchOrNil: parent.TryGet,
		Enumerate:  parent.Find,
	}
	return NewCache[K, V](parent.name, parent.keys, source, &cacheSink[K, V]{parent: parent})
}

// cacheSink commits into a parent cache.
type cacheSink[K any, V Item[V]] struct {
	parent *Cache[K, V]
}

func (c *cacheSink[K, V]) Validate(key K, state TrackState) error {
	found, err := c.parent.Contains(key)
	if err != nil {
		return err
	}

	switch state {
	case Added:
		if found {
			return ErrDuplicateKey
		}
	case Changed:
		if !found {
			return ErrKeyNotFound
		}
	}
	return nil
}

func (c *cacheSink[K, V]) Add(key K, item V) error {
	return c.parent.Put(key, item)
}

// Replace copies the mutable fields of item into the parent's record in
// place.
func (c *cacheSink[K, V]) Replace(key K, item V) error {
	target, err := c.parent.Get(key, false)
	if err != nil {
		return err
	}
	target.FromReplica(item)
	return nil
}

func (c *cacheSink[K, V]) Delete(key K) error {
	err := c.parent.Delete(key)
	if errors.Is(err, ErrKeyNotFound) {
		return nil
	}
	return err
}
