package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/crypto/hash"
)

// Serializable is implemented by every entity that travels over the wire or
// lives in storage.
type Serializable interface {
	EncodeBinary(*BinWriter)
	DecodeBinary(*BinReader)
	// Size returns the exact encoded length.
	Size() int
}

// ToBytes encodes s into a fresh byte slice.
func ToBytes(s Serializable) ([]byte, error) {
	w := NewBufBinWriter()
	s.EncodeBinary(w.BinWriter)
	if w.Err != nil {
		return nil, w.Err
	}
	return w.Bytes(), nil
}

// FromBytes decodes b into s. All of b must be consumed.
func FromBytes(b []byte, s Serializable) error {
	br := bytes.NewReader(b)
	r := NewBinReaderFromIO(br)
	s.DecodeBinary(r)
	if r.Err != nil {
		return r.Err
	}
	if br.Len() != 0 {
		return fmt.Errorf("%w: %d", ErrTrailingBytes, br.Len())
	}
	return nil
}

// Checksum returns the first four bytes of SHA256(SHA256(b)) read as a
// little-endian integer.
func Checksum(b []byte) uint32 {
	h := hash.DoubleSha256(b)
	return binary.LittleEndian.Uint32(h[:4])
}

// Encodable is the pointer-side constraint used by the array helpers.
type Encodable[T any] interface {
	*T
	Serializable
}

// WriteArray writes a varint count followed by each element.
func WriteArray[T any, P Encodable[T]](w *BinWriter, items []T) {
	w.WriteVarUint(uint64(len(items)))
	for i := range items {
		P(&items[i]).EncodeBinary(w)
	}
}

// ReadArray reads at most max elements written by WriteArray.
func ReadArray[T any, P Encodable[T]](r *BinReader, max int) []T {
	n := r.ReadVarUint(uint64(max))
	if r.Err != nil {
		return nil
	}
	items := make([]T, n)
	for i := range items {
		P(&items[i]).DecodeBinary(r)
		if r.Err != nil {
			return nil
		}
	}
	return items
}

// ArraySize returns the encoded length of items.
func ArraySize[T any, P Encodable[T]](items []T) int {
	size := VarUintSize(uint64(len(items)))
	for i := range items {
		size += P(&items[i]).Size()
	}
	return size
}
