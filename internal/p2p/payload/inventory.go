package payload

import (
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/tendermint/neosync/internal/codec"
)

const (
	// MaxHashesCount is the maximum number of hashes in one inventory.
	MaxHashesCount = 500

	// MaxBlocksCount is the maximum number of blocks one request may ask for.
	MaxBlocksCount = 500

	// MaxHeadersCount is the maximum number of headers in one message.
	MaxHeadersCount = 2000
)

// InventoryType is the type of the objects an inventory refers to.
type InventoryType uint8

const (
	TXType         InventoryType = 0x2b
	BlockType      InventoryType = 0x2c
	ExtensibleType InventoryType = 0x2e
)

func (t InventoryType) String() string {
	switch t {
	case TXType:
		return "TX"
	case BlockType:
		return "block"
	case ExtensibleType:
		return "extensible"
	default:
		return fmt.Sprintf("InventoryType(0x%02x)", uint8(t))
	}
}

// Inventory is the payload of inv, getdata and notfound.
type Inventory struct {
	Type   InventoryType
	Hashes []util.Uint256
}

func (p *Inventory) EncodeBinary(w *codec.BinWriter) {
	w.WriteB(uint8(p.Type))
	w.WriteVarUint(uint64(len(p.Hashes)))
	for i := range p.Hashes {
		w.WriteBytes(p.Hashes[i][:])
	}
}

func (p *Inventory) DecodeBinary(r *codec.BinReader) {
	p.Type = InventoryType(r.ReadB())
	n := r.ReadVarUint(MaxHashesCount)
	if r.Err != nil {
		return
	}
	p.Hashes = make([]util.Uint256, n)
	for i := range p.Hashes {
		r.ReadBytes(p.Hashes[i][:])
	}
}

func (p *Inventory) Size() int {
	return 1 + codec.VarUintSize(uint64(len(p.Hashes))) + len(p.Hashes)*util.Uint256Size
}

// GetBlocks asks for the hashes of the blocks following HashStart.
type GetBlocks struct {
	HashStart util.Uint256
	Count     int16
}

func (p *GetBlocks) EncodeBinary(w *codec.BinWriter) {
	w.WriteBytes(p.HashStart[:])
	w.WriteI16LE(p.Count)
}

func (p *GetBlocks) DecodeBinary(r *codec.BinReader) {
	r.ReadBytes(p.HashStart[:])
	p.Count = r.ReadI16LE()
	if r.Err == nil && (p.Count < -1 || p.Count == 0) {
		r.Err = fmt.Errorf("invalid block count %d", p.Count)
	}
}

func (p *GetBlocks) Size() int { return util.Uint256Size + 2 }

// GetBlockByIndex asks for Count blocks (or headers) starting at
// IndexStart. Count -1 means as many as the peer is willing to send.
type GetBlockByIndex struct {
	IndexStart uint32
	Count      int16
}

// NewGetBlockByIndex builds a request payload.
func NewGetBlockByIndex(start uint32, count int16) *GetBlockByIndex {
	return &GetBlockByIndex{IndexStart: start, Count: count}
}

// Limit returns the number of items requested, capped at max.
func (p *GetBlockByIndex) Limit(max int) int {
	if p.Count == -1 || int(p.Count) > max {
		return max
	}
	return int(p.Count)
}

func (p *GetBlockByIndex) EncodeBinary(w *codec.BinWriter) {
	w.WriteU32LE(p.IndexStart)
	w.WriteI16LE(p.Count)
}

func (p *GetBlockByIndex) DecodeBinary(r *codec.BinReader) {
	p.IndexStart = r.ReadU32LE()
	p.Count = r.ReadI16LE()
	if r.Err == nil && (p.Count < -1 || p.Count == 0 || p.Count > MaxHeadersCount) {
		r.Err = fmt.Errorf("invalid block count %d", p.Count)
	}
}

func (p *GetBlockByIndex) Size() int { return 4 + 2 }
