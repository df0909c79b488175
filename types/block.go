package types

import (
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/crypto/hash"
	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/tendermint/neosync/internal/codec"
)

// MaxTransactionsPerBlock is the largest number of transactions a block may carry.
const MaxTransactionsPerBlock = 0xFFFF

// Header holds the block metadata that is hashed and linked into the chain.
type Header struct {
	Version       uint32
	PrevHash      util.Uint256
	MerkleRoot    util.Uint256
	Timestamp     uint64
	Nonce         uint64
	Index         uint32
	PrimaryIndex  uint8
	NextConsensus util.Uint160
	Witness       Witness
}

// Hash returns the SHA256 of the unsigned header fields.
func (h *Header) Hash() util.Uint256 {
	w := codec.NewBufBinWriter()
	h.encodeUnsigned(w.BinWriter)
	return hash.Sha256(w.Bytes())
}

func (h *Header) encodeUnsigned(w *codec.BinWriter) {
	w.WriteU32LE(h.Version)
	w.WriteBytes(h.PrevHash[:])
	w.WriteBytes(h.MerkleRoot[:])
	w.WriteU64LE(h.Timestamp)
	w.WriteU64LE(h.Nonce)
	w.WriteU32LE(h.Index)
	w.WriteB(h.PrimaryIndex)
	w.WriteBytes(h.NextConsensus[:])
}

func (h *Header) EncodeBinary(w *codec.BinWriter) {
	h.encodeUnsigned(w)
	// single witness, encoded as a one element array
	w.WriteVarUint(1)
	h.Witness.EncodeBinary(w)
}

func (h *Header) DecodeBinary(r *codec.BinReader) {
	h.Version = r.ReadU32LE()
	r.ReadBytes(h.PrevHash[:])
	r.ReadBytes(h.MerkleRoot[:])
	h.Timestamp = r.ReadU64LE()
	h.Nonce = r.ReadU64LE()
	h.Index = r.ReadU32LE()
	h.PrimaryIndex = r.ReadB()
	r.ReadBytes(h.NextConsensus[:])
	if n := r.ReadVarUint(1); r.Err == nil && n != 1 {
		r.Err = fmt.Errorf("%w: header must carry one witness", ErrInvalidFormat)
		return
	}
	h.Witness.DecodeBinary(r)
}

func (h *Header) Size() int {
	return 4 + util.Uint256Size*2 + 8 + 8 + 4 + 1 + util.Uint160Size + 1 + h.Witness.Size()
}

// Clone returns a deep copy of h.
func (h *Header) Clone() *Header {
	c := *h
	c.Witness = h.Witness.Copy()
	return &c
}

func (h *Header) String() string {
	return fmt.Sprintf("Header{#%d %s}", h.Index, h.Hash().StringLE())
}

// Block is a header plus the ordered list of transactions it commits to.
type Block struct {
	Header
	Transactions []*Transaction
}

// Hash returns the header hash.
func (b *Block) Hash() util.Uint256 { return b.Header.Hash() }

// ComputeMerkleRoot returns the merkle root over the transaction hashes.
func (b *Block) ComputeMerkleRoot() util.Uint256 {
	hashes := make([]util.Uint256, len(b.Transactions))
	for i, tx := range b.Transactions {
		hashes[i] = tx.Hash()
	}
	return hash.CalcMerkleRoot(hashes)
}

// RebuildMerkleRoot sets the header merkle root from the transactions.
func (b *Block) RebuildMerkleRoot() {
	b.MerkleRoot = b.ComputeMerkleRoot()
}

func (b *Block) EncodeBinary(w *codec.BinWriter) {
	b.Header.EncodeBinary(w)
	w.WriteVarUint(uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		tx.EncodeBinary(w)
	}
}

func (b *Block) DecodeBinary(r *codec.BinReader) {
	b.Header.DecodeBinary(r)
	n := r.ReadVarUint(MaxTransactionsPerBlock)
	if r.Err != nil {
		return
	}
	b.Transactions = make([]*Transaction, n)
	for i := range b.Transactions {
		tx := new(Transaction)
		tx.DecodeBinary(r)
		if r.Err != nil {
			return
		}
		b.Transactions[i] = tx
	}
}

func (b *Block) Size() int {
	size := b.Header.Size() + codec.VarUintSize(uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		size += tx.Size()
	}
	return size
}

// Clone returns a deep copy of b.
func (b *Block) Clone() *Block {
	c := &Block{Header: *b.Header.Clone()}
	if b.Transactions != nil {
		c.Transactions = make([]*Transaction, len(b.Transactions))
		for i, tx := range b.Transactions {
			c.Transactions[i] = tx.Clone()
		}
	}
	return c
}

// FromReplica copies other into b.
func (b *Block) FromReplica(other *Block) {
	*b = *other.Clone()
}

func (b *Block) String() string {
	return fmt.Sprintf("Block{#%d %s txs:%d}", b.Index, b.Hash().StringLE(), len(b.Transactions))
}
