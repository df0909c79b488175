package types

import (
	"github.com/nspcc-dev/neo-go/pkg/util"
)

// MakeTestBlock builds a block at index linked to prev with n transactions.
// Blocks built from the same arguments hash identically.
func MakeTestBlock(index uint32, prev util.Uint256, n int) *Block {
	b := &Block{
		Header: Header{
			Version:   0,
			PrevHash:  prev,
			Timestamp: 1_600_000_000_000 + uint64(index)*15_000,
			Nonce:     uint64(index) * 7919,
			Index:     index,
			Witness: Witness{
				InvocationScript:   []byte{0x0c, 0x40},
				VerificationScript: []byte{0x41},
			},
		},
	}
	for i := 0; i < n; i++ {
		b.Transactions = append(b.Transactions, &Transaction{
			Nonce:           index<<8 | uint32(i),
			SystemFee:       int64(i),
			NetworkFee:      1,
			ValidUntilBlock: index + 100,
			Script:          []byte{0x11, byte(i)},
			Witnesses:       []Witness{{InvocationScript: []byte{1}, VerificationScript: []byte{2}}},
		})
	}
	b.RebuildMerkleRoot()
	return b
}

// MakeTestChain builds n linked blocks starting at index 0.
func MakeTestChain(n, txsPerBlock int) []*Block {
	blocks := make([]*Block, n)
	var prev util.Uint256
	for i := range blocks {
		blocks[i] = MakeTestBlock(uint32(i), prev, txsPerBlock)
		prev = blocks[i].Hash()
	}
	return blocks
}
