package types

import (
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/crypto/hash"
	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/tendermint/neosync/internal/codec"
)

const (
	// MaxScriptLength is the largest accepted transaction script.
	MaxScriptLength = 0xFFFF
	// MaxWitnesses is the largest number of witnesses per transaction.
	MaxWitnesses = 16
)

// Transaction is a signed unit of work included in a block.
type Transaction struct {
	Version         uint8
	Nonce           uint32
	SystemFee       int64
	NetworkFee      int64
	ValidUntilBlock uint32
	Script          []byte
	Witnesses       []Witness
}

// Hash returns the SHA256 of the unsigned part of the transaction.
func (tx *Transaction) Hash() util.Uint256 {
	w := codec.NewBufBinWriter()
	tx.encodeUnsigned(w.BinWriter)
	return hash.Sha256(w.Bytes())
}

func (tx *Transaction) encodeUnsigned(w *codec.BinWriter) {
	w.WriteB(tx.Version)
	w.WriteU32LE(tx.Nonce)
	w.WriteI64LE(tx.SystemFee)
	w.WriteI64LE(tx.NetworkFee)
	w.WriteU32LE(tx.ValidUntilBlock)
	w.WriteVarBytes(tx.Script)
}

func (tx *Transaction) EncodeBinary(w *codec.BinWriter) {
	tx.encodeUnsigned(w)
	codec.WriteArray(w, tx.Witnesses)
}

func (tx *Transaction) DecodeBinary(r *codec.BinReader) {
	tx.Version = r.ReadB()
	tx.Nonce = r.ReadU32LE()
	tx.SystemFee = r.ReadI64LE()
	tx.NetworkFee = r.ReadI64LE()
	tx.ValidUntilBlock = r.ReadU32LE()
	tx.Script = r.ReadVarBytes(MaxScriptLength)
	tx.Witnesses = codec.ReadArray[Witness](r, MaxWitnesses)
	if r.Err == nil && (tx.SystemFee < 0 || tx.NetworkFee < 0) {
		r.Err = fmt.Errorf("%w: negative fee", ErrInvalidFormat)
	}
}

func (tx *Transaction) Size() int {
	return 1 + 4 + 8 + 8 + 4 + codec.VarBytesSize(len(tx.Script)) + codec.ArraySize(tx.Witnesses)
}

// Clone returns a deep copy of tx.
func (tx *Transaction) Clone() *Transaction {
	c := *tx
	c.Script = cloneBytes(tx.Script)
	c.Witnesses = cloneWitnesses(tx.Witnesses)
	return &c
}

func cloneWitnesses(ws []Witness) []Witness {
	if ws == nil {
		return nil
	}
	c := make([]Witness, len(ws))
	for i := range ws {
		c[i] = ws[i].Copy()
	}
	return c
}

func (tx *Transaction) String() string {
	return fmt.Sprintf("Tx{%s nonce:%d}", tx.Hash().StringLE(), tx.Nonce)
}

// TransactionState is the persisted record of a transaction together with
// the index of the block that included it.
type TransactionState struct {
	BlockIndex  uint32
	Transaction *Transaction
}

func (s *TransactionState) EncodeBinary(w *codec.BinWriter) {
	w.WriteU32LE(s.BlockIndex)
	s.Transaction.EncodeBinary(w)
}

func (s *TransactionState) DecodeBinary(r *codec.BinReader) {
	s.BlockIndex = r.ReadU32LE()
	s.Transaction = new(Transaction)
	s.Transaction.DecodeBinary(r)
}

func (s *TransactionState) Size() int { return 4 + s.Transaction.Size() }

func (s *TransactionState) Clone() *TransactionState {
	return &TransactionState{BlockIndex: s.BlockIndex, Transaction: s.Transaction.Clone()}
}

// FromReplica copies the mutable fields of other into s.
func (s *TransactionState) FromReplica(other *TransactionState) {
	s.BlockIndex = other.BlockIndex
	s.Transaction = other.Transaction.Clone()
}
