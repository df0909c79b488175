package types

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/tendermint/neosync/internal/codec"
)

const (
	// MaxStorageKeyLength bounds the user part of a storage key.
	MaxStorageKeyLength = 64
	// MaxStorageValueLength bounds a storage item value.
	MaxStorageValueLength = 0xFFFF
)

// StorageKey addresses one entry of a contract's key/value storage.
type StorageKey struct {
	ID  int32
	Key []byte
}

// Bytes returns the canonical encoding: the contract id followed by the
// grouped key bytes.
func (k StorageKey) Bytes() []byte {
	b := make([]byte, 4, 4+codec.GroupedSize(len(k.Key), codec.DefaultGroupSize))
	binary.LittleEndian.PutUint32(b, uint32(k.ID))
	return codec.AppendGrouped(b, k.Key, codec.DefaultGroupSize)
}

// StorageKeyFromBytes parses the canonical encoding produced by Bytes.
func StorageKeyFromBytes(b []byte) (StorageKey, error) {
	var k StorageKey
	if err := codec.FromBytes(b, &k); err != nil {
		return StorageKey{}, err
	}
	return k, nil
}

// StorageKeyPrefix returns a byte prefix of the canonical encoding of every
// key of contract id starting with prefix. Matches must still be checked
// with HasPrefix.
func StorageKeyPrefix(id int32, prefix []byte) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(id))
	return append(b, codec.GroupedPrefix(prefix, codec.DefaultGroupSize)...)
}

// HasPrefix reports whether k belongs to contract id and starts with prefix.
func (k StorageKey) HasPrefix(id int32, prefix []byte) bool {
	return k.ID == id && bytes.HasPrefix(k.Key, prefix)
}

func (k *StorageKey) EncodeBinary(w *codec.BinWriter) {
	w.WriteI32LE(k.ID)
	w.WriteGroupedBytes(k.Key, codec.DefaultGroupSize)
}

func (k *StorageKey) DecodeBinary(r *codec.BinReader) {
	k.ID = r.ReadI32LE()
	k.Key = r.ReadGroupedBytes(codec.DefaultGroupSize)
}

func (k *StorageKey) Size() int {
	return 4 + codec.GroupedSize(len(k.Key), codec.DefaultGroupSize)
}

func (k StorageKey) String() string {
	return fmt.Sprintf("%d:%s", k.ID, hex.EncodeToString(k.Key))
}

// StorageItem is a contract storage value.
type StorageItem struct {
	Value      []byte
	IsConstant bool
}

func (s *StorageItem) EncodeBinary(w *codec.BinWriter) {
	w.WriteVarBytes(s.Value)
	w.WriteBool(s.IsConstant)
}

func (s *StorageItem) DecodeBinary(r *codec.BinReader) {
	s.Value = r.ReadVarBytes(MaxStorageValueLength)
	s.IsConstant = r.ReadBool()
}

func (s *StorageItem) Size() int { return codec.VarBytesSize(len(s.Value)) + 1 }

func (s *StorageItem) Clone() *StorageItem {
	return &StorageItem{Value: cloneBytes(s.Value), IsConstant: s.IsConstant}
}

func (s *StorageItem) FromReplica(other *StorageItem) {
	s.Value = cloneBytes(other.Value)
	s.IsConstant = other.IsConstant
}
