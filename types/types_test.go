package types

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/neosync/internal/codec"
)

func TestBlockEncodingRoundTrip(t *testing.T) {
	chain := MakeTestChain(3, 4)

	for _, b := range chain {
		raw, err := codec.ToBytes(b)
		require.NoError(t, err)
		require.Len(t, raw, b.Size())

		decoded := new(Block)
		require.NoError(t, codec.FromBytes(raw, decoded))
		if diff := cmp.Diff(b, decoded); diff != "" {
			t.Fatalf("decoded block differs (-want +got):\n%s", diff)
		}
		require.Equal(t, b.Hash(), decoded.Hash())
		require.Equal(t, b.MerkleRoot, decoded.ComputeMerkleRoot())
	}

	require.Equal(t, chain[0].Hash(), chain[1].PrevHash)
}

func TestBlockHashIgnoresWitness(t *testing.T) {
	b := MakeTestBlock(5, [32]byte{1}, 1)
	h := b.Hash()
	b.Witness.InvocationScript = []byte{0xde, 0xad}
	require.Equal(t, h, b.Hash())

	b.Nonce++
	require.NotEqual(t, h, b.Hash())
}

func TestBlockCloneIsDeep(t *testing.T) {
	b := MakeTestBlock(1, [32]byte{}, 2)
	c := b.Clone()
	c.Transactions[0].Script[0] = 0xFF
	c.Witness.VerificationScript[0] = 0xFF

	assert.NotEqual(t, b.Transactions[0].Script[0], c.Transactions[0].Script[0])
	assert.NotEqual(t, b.Witness.VerificationScript[0], c.Witness.VerificationScript[0])
}

func TestTransactionLimits(t *testing.T) {
	tx := &Transaction{Witnesses: make([]Witness, MaxWitnesses+1)}
	raw, err := codec.ToBytes(tx)
	require.NoError(t, err)
	require.ErrorIs(t, codec.FromBytes(raw, new(Transaction)), codec.ErrValueTooLarge)

	tx = &Transaction{SystemFee: -1}
	raw, err = codec.ToBytes(tx)
	require.NoError(t, err)
	require.ErrorIs(t, codec.FromBytes(raw, new(Transaction)), ErrInvalidFormat)
}

func TestContractScriptChecksum(t *testing.T) {
	cs := NewContractScript("neo-go-0.102", []byte{0x40, 0x41})
	raw, err := codec.ToBytes(&cs)
	require.NoError(t, err)

	var decoded ContractScript
	require.NoError(t, codec.FromBytes(raw, &decoded))
	require.Equal(t, cs, decoded)

	// flip one script byte, checksum no longer matches
	raw[len(raw)-5] ^= 0x01
	require.ErrorIs(t, codec.FromBytes(raw, &decoded), ErrInvalidChecksum)
}

func TestContractStateFromReplicaKeepsHash(t *testing.T) {
	script := []byte{0x01, 0x02}
	c := &ContractState{
		ID:     1,
		Hash:   ContractHash(script),
		Script: NewContractScript("c", script),
	}
	other := &ContractState{
		ID:            1,
		UpdateCounter: 3,
		Hash:          ContractHash([]byte{0x09}),
		Script:        NewContractScript("c", []byte{0x09}),
		Manifest:      `{"name":"x"}`,
	}

	c.FromReplica(other)
	require.Equal(t, ContractHash(script), c.Hash)
	require.EqualValues(t, 3, c.UpdateCounter)
	require.Equal(t, other.Manifest, c.Manifest)

	other.Script.Script[0] = 0x0A
	require.Equal(t, byte(0x09), c.Script.Script[0])
}

func TestStorageKeyCanonicalBytes(t *testing.T) {
	k := StorageKey{ID: 1, Key: []byte{0xAA}}
	expected := append([]byte{1, 0, 0, 0, 0xAA}, make([]byte, 15)...)
	expected = append(expected, 1)
	require.Equal(t, expected, k.Bytes())

	parsed, err := StorageKeyFromBytes(k.Bytes())
	require.NoError(t, err)
	require.Equal(t, k, parsed)
}

func TestStorageKeyPrefix(t *testing.T) {
	long := make([]byte, 20)
	for i := range long {
		long[i] = byte(i + 1)
	}

	testCases := map[string]struct {
		key    []byte
		prefix []byte
	}{
		"empty prefix":       {key: []byte{1, 2}, prefix: nil},
		"short prefix":       {key: []byte{1, 2, 3}, prefix: []byte{1, 2}},
		"whole chunk prefix": {key: long, prefix: long[:16]},
		"exact whole chunk":  {key: long[:16], prefix: long[:16]},
		"past first chunk":   {key: long, prefix: long[:18]},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			k := StorageKey{ID: 7, Key: tc.key}
			require.True(t, k.HasPrefix(7, tc.prefix))
			require.True(t, bytesHasPrefix(k.Bytes(), StorageKeyPrefix(7, tc.prefix)))
			require.False(t, bytesHasPrefix(k.Bytes(), StorageKeyPrefix(8, tc.prefix)))
		})
	}
}

func bytesHasPrefix(b, prefix []byte) bool {
	return len(b) >= len(prefix) && string(b[:len(prefix)]) == string(prefix)
}

func TestStorageItemReplica(t *testing.T) {
	item := &StorageItem{Value: []byte{1}}
	c := item.Clone()
	c.Value[0] = 2
	require.Equal(t, byte(1), item.Value[0])

	item.FromReplica(&StorageItem{Value: []byte{3, 4}, IsConstant: true})
	require.Equal(t, []byte{3, 4}, item.Value)
	require.True(t, item.IsConstant)
}
