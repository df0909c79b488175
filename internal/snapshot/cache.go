package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
)

// Cache tracks reads and writes over an underlying layer until Commit. It
// is not safe for concurrent use.
type Cache[K any, V Item[V]] struct {
	name    string
	keys    KeyCodec[K]
	source  Source[K, V]
	sink    Sink[K, V]
	tracked map[string]*Trackable[K, V]
}

// NewCache creates a cache over source that commits into sink.
func NewCache[K any, V Item[V]](name string, keys KeyCodec[K], source Source[K, V], sink Sink[K, V]) *Cache[K, V] {
	return &Cache[K, V]{
		name:    name,
		keys:    keys,
		source:  source,
		sink:    sink,
		tracked: make(map[string]*Trackable[K, V]),
	}
}

func (c *Cache[K, V]) String() string { return c.name }

func (c *Cache[K, V]) id(key K) string { return string(c.keys.Encode(key)) }

// Get returns the value stored under key. With readOnly set a deep copy is
// returned; otherwise the live tracked value is returned and the entry is
// marked Changed, so mutations made through it are committed.
func (c *Cache[K, V]) Get(key K, readOnly bool) (V, error) {
	var zero V

	id := c.id(key)
	t, ok := c.tracked[id]
	if !ok {
		item, err := c.source.Fetch(key)
		if err != nil {
			return zero, err
		}
		t = &Trackable[K, V]{Key: key, Item: item, State: None}
		c.tracked[id] = t
	}

	if t.State == Deleted {
		return zero, ErrKeyNotFound
	}
	if readOnly {
		return t.Item.Clone(), nil
	}
	if t.State == None {
		t.State = Changed
	}
	return t.Item, nil
}

// TryGet is a read-only Get that reports absence instead of failing.
func (c *Cache[K, V]) TryGet(key K) (V, bool, error) {
	var zero V

	id := c.id(key)
	t, ok := c.tracked[id]
	if !ok {
		item, found, err := c.source.FetchOrNil(key)
		if err != nil || !found {
			return zero, false, err
		}
		t = &Trackable[K, V]{Key: key, Item: item, State: None}
		c.tracked[id] = t
	}

	if t.State == Deleted {
		return zero, false, nil
	}
	return t.Item.Clone(), true, nil
}

// Contains reports whether key exists in this view.
func (c *Cache[K, V]) Contains(key K) (bool, error) {
	_, found, err := c.TryGet(key)
	return found, err
}

// GetAndChange returns the live value for key marked Changed. If the key is
// absent and factory is not nil, the value produced by factory is added.
func (c *Cache[K, V]) GetAndChange(key K, factory func() V) (V, error) {
	item, err := c.Get(key, false)
	if err == nil || !errors.Is(err, ErrKeyNotFound) || factory == nil {
		return item, err
	}

	item = factory()
	if err := c.Put(key, item); err != nil {
		var zero V
		return zero, err
	}
	return item, nil
}

// Put adds a new entry. It fails with ErrDuplicateKey if key already exists
// in this view.
func (c *Cache[K, V]) Put(key K, item V) error {
	id := c.id(key)
	if t, ok := c.tracked[id]; ok {
		if t.State != Deleted {
			return fmt.Errorf("%s %x: %w", c.name, id, ErrDuplicateKey)
		}
		t.Item = item
		t.State = Changed
		return nil
	}

	_, found, err := c.source.FetchOrNil(key)
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf("%s %x: %w", c.name, id, ErrDuplicateKey)
	}

	c.tracked[id] = &Trackable[K, V]{Key: key, Item: item, State: Added}
	return nil
}

// Delete removes key from this view. Deleting an entry added in this view
// forgets it entirely; deleting an absent key is a no-op.
func (c *Cache[K, V]) Delete(key K) error {
	id := c.id(key)
	if t, ok := c.tracked[id]; ok {
		switch t.State {
		case Added:
			delete(c.tracked, id)
		case None, Changed:
			t.State = Deleted
		}
		return nil
	}

	item, found, err := c.source.FetchOrNil(key)
	if err != nil || !found {
		return err
	}
	c.tracked[id] = &Trackable[K, V]{Key: key, Item: item, State: Deleted}
	return nil
}

// All returns every entry visible in this view ordered by canonical key.
func (c *Cache[K, V]) All() ([]KeyValue[K, V], error) {
	return c.Find(nil)
}

// Find returns the entries whose canonical key starts with prefix, merged
// from the underlying layer and the tracked set, ordered by canonical key.
// Values are copies.
func (c *Cache[K, V]) Find(prefix []byte) ([]KeyValue[K, V], error) {
	underlying, err := c.source.Enumerate(prefix)
	if err != nil {
		return nil, err
	}

	type entry struct {
		id string
		kv KeyValue[K, V]
	}

	seen := make(map[string]struct{}, len(underlying))
	entries := make([]entry, 0, len(underlying)+len(c.tracked))
	for _, kv := range underlying {
		id := c.id(kv.Key)
		seen[id] = struct{}{}
		if t, ok := c.tracked[id]; ok {
			if t.State == Deleted {
				continue
			}
			kv.Value = t.Item.Clone()
		}
		entries = append(entries, entry{id: id, kv: kv})
	}

	for id, t := range c.tracked {
		if _, ok := seen[id]; ok || t.State == Deleted {
			continue
		}
		if !bytes.HasPrefix([]byte(id), prefix) {
			continue
		}
		entries = append(entries, entry{id: id, kv: KeyValue[K, V]{Key: t.Key, Value: t.Item.Clone()}})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	result := make([]KeyValue[K, V], len(entries))
	for i := range entries {
		result[i] = entries[i].kv
	}
	return result, nil
}

// Tracked returns the tracked entries ordered by canonical key.
func (c *Cache[K, V]) Tracked() []Trackable[K, V] {
	ids := c.sortedIDs()
	result := make([]Trackable[K, V], len(ids))
	for i, id := range ids {
		result[i] = *c.tracked[id]
	}
	return result
}

func (c *Cache[K, V]) sortedIDs() []string {
	ids := make([]string, 0, len(c.tracked))
	for id := range c.tracked {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate checks every pending mutation against the sink without applying
// anything.
func (c *Cache[K, V]) Validate() error {
	for _, id := range c.sortedIDs() {
		t := c.tracked[id]
		if t.State == None {
			continue
		}
		if err := c.sink.Validate(t.Key, t.State); err != nil {
			return fmt.Errorf("%s %x: %w", c.name, id, err)
		}
	}
	return nil
}

// Apply writes every pending mutation into the sink and clears the tracked
// set. Entries in state None are skipped.
func (c *Cache[K, V]) Apply() error {
	for _, id := range c.sortedIDs() {
		t := c.tracked[id]

		var err error
		switch t.State {
		case Added:
			err = c.sink.Add(t.Key, t.Item)
		case Changed:
			err = c.sink.Replace(t.Key, t.Item)
		case Deleted:
			err = c.sink.Delete(t.Key)
		}
		if err != nil {
			return fmt.Errorf("%s %x: %w", c.name, id, err)
		}
	}

	c.tracked = make(map[string]*Trackable[K, V])
	return nil
}

// Commit validates and then applies all pending mutations.
func (c *Cache[K, V]) Commit() error {
	if err := c.Validate(); err != nil {
		return err
	}
	return c.Apply()
}
