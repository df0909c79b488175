package snapshot

import (
	"errors"
	"fmt"

	"github.com/tendermint/neosync/internal/codec"
	"github.com/tendermint/neosync/internal/storage"
)

var (
	// ErrKeyNotFound is returned when a key is absent or tracked as deleted.
	// It is the same value as storage.ErrKeyNotFound.
	ErrKeyNotFound = storage.ErrKeyNotFound

	// ErrDuplicateKey is returned by Put for a key that already exists.
	ErrDuplicateKey = errors.New("duplicate key")
)

// TrackState is the pending mutation of a cached entry.
type TrackState uint8

const (
	None TrackState = iota
	Added
	Changed
	Deleted
)

func (s TrackState) String() string {
	switch s {
	case None:
		return "none"
	case Added:
		return "added"
	case Changed:
		return "changed"
	case Deleted:
		return "deleted"
	default:
		return fmt.Sprintf("TrackState(%d)", uint8(s))
	}
}

// Item is implemented by every value kept in a cache.
type Item[V any] interface {
	codec.Serializable
	// Clone returns a deep copy.
	Clone() V
	// FromReplica copies the mutable fields of the argument into the
	// receiver without changing its identity.
	FromReplica(V)
}

// Trackable is a cached entry annotated with its pending mutation.
type Trackable[K any, V any] struct {
	Key   K
	Item  V
	State TrackState
}

// KeyValue is an entry returned by enumeration.
type KeyValue[K any, V any] struct {
	Key   K
	Value V
}

// KeyCodec maps keys to their canonical byte encoding and back. Canonical
// bytes define both identity and enumeration order.
type KeyCodec[K any] struct {
	Encode func(K) []byte
	Decode func([]byte) (K, error)
}

// Source is the read side of the layer underneath a cache.
type Source[K any, V any] struct {
	// Fetch returns the value for key or ErrKeyNotFound.
	Fetch func(key K) (V, error)
	// FetchOrNil reports whether key exists instead of failing.
	FetchOrNil func(key K) (V, bool, error)
	// Enumerate returns the entries whose canonical key starts with prefix.
	Enumerate func(prefix []byte) ([]KeyValue[K, V], error)
}

// Sink is the write side of the layer underneath a cache.
type Sink[K any, V any] interface {
	// Validate checks that applying state for key would succeed.
	Validate(key K, state TrackState) error
	Add(key K, item V) error
	Replace(key K, item V) error
	Delete(key K) error
}
