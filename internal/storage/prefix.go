package storage

import (
	"fmt"

	"github.com/google/orderedcode"
)

// KeyPrefix is the first byte of every key and selects the table.
type KeyPrefix byte

// Tables. NB: values are persisted, never renumber them.
const (
	DataBlock       KeyPrefix = 0x01
	DataTransaction KeyPrefix = 0x02
	STContract      KeyPrefix = 0x50
	STStorage       KeyPrefix = 0x70
	IXHeightIndex   KeyPrefix = 0x90
	SYSCurrentBlock KeyPrefix = 0xC0
	P2PAddress      KeyPrefix = 0xD0
)

// Key returns the table key for the canonical entity key k.
func (p KeyPrefix) Key(k []byte) []byte {
	key := make([]byte, 1+len(k))
	key[0] = byte(p)
	copy(key[1:], k)
	return key
}

func (p KeyPrefix) String() string {
	switch p {
	case DataBlock:
		return "DataBlock"
	case DataTransaction:
		return "DataTransaction"
	case STContract:
		return "STContract"
	case STStorage:
		return "STStorage"
	case IXHeightIndex:
		return "IXHeightIndex"
	case SYSCurrentBlock:
		return "SYSCurrentBlock"
	case P2PAddress:
		return "P2PAddress"
	default:
		return fmt.Sprintf("KeyPrefix(0x%02x)", byte(p))
	}
}

// HeightKey encodes a block index so that keys sort by height.
func HeightKey(index uint32) []byte {
	key, err := orderedcode.Append(nil, uint64(index))
	if err != nil {
		panic(err)
	}
	return key
}

// ParseHeightKey decodes a key produced by HeightKey.
func ParseHeightKey(key []byte) (uint32, error) {
	var index uint64
	remaining, err := orderedcode.Parse(string(key), &index)
	if err != nil {
		return 0, err
	}
	if len(remaining) != 0 {
		return 0, fmt.Errorf("expected complete key but got remainder: %x", remaining)
	}
	if index > uint64(^uint32(0)) {
		return 0, fmt.Errorf("height %d out of range", index)
	}
	return uint32(index), nil
}
