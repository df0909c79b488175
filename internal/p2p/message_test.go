package p2p

import (
	"bytes"
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/neosync/internal/codec"
	"github.com/tendermint/neosync/internal/p2p/payload"
	"github.com/tendermint/neosync/types"
)

func decodeFrame(t *testing.T, raw []byte) *Message {
	t.Helper()

	m := new(Message)
	require.NoError(t, m.Decode(codec.NewBinReaderFromBuf(raw)))
	return m
}

func TestFrameLayout(t *testing.T) {
	msg := NewMessage(CMDPing, &payload.Ping{LastBlockIndex: 1, Timestamp: 2, Nonce: 3})
	raw, err := msg.Bytes()
	require.NoError(t, err)

	expected := []byte{
		0x00, 0x18, 0x0c,
		1, 0, 0, 0,
		2, 0, 0, 0,
		3, 0, 0, 0,
	}
	require.Equal(t, expected, raw)
	require.Equal(t, len(raw), msg.WireSize())

	decoded := decodeFrame(t, raw)
	require.Equal(t, CMDPing, decoded.Command)
	require.Equal(t, msg.Payload, decoded.Payload)
}

func TestEmptyPayloadMessages(t *testing.T) {
	for _, cmd := range []CommandType{CMDVerack, CMDGetAddr, CMDMempool} {
		raw, err := NewMessage(cmd, nil).Bytes()
		require.NoError(t, err)
		require.Equal(t, []byte{0x00, byte(cmd), 0x00}, raw)

		require.Equal(t, cmd, decodeFrame(t, raw).Command)
	}
}

func TestCompressionThreshold(t *testing.T) {
	testCases := []struct {
		original, compressed int
		expected             bool
	}{
		{200, 150, false},
		{200, 136, false},
		{200, 135, true},
		{200, 100, true},
		{128, 10, false},
		{129, 10, true},
	}

	for _, tc := range testCases {
		require.Equal(t, tc.expected, useCompressed(tc.original, tc.compressed),
			"%d -> %d", tc.original, tc.compressed)
	}
}

func TestLargeBlockIsCompressed(t *testing.T) {
	block := types.MakeTestBlock(7, [32]byte{}, 50)
	msg := NewMessage(CMDBlock, block)
	raw, err := msg.Bytes()
	require.NoError(t, err)

	require.Equal(t, Compressed, msg.Flags&Compressed)
	require.Less(t, len(raw), block.Size())

	decoded := decodeFrame(t, raw)
	require.Equal(t, block.Hash(), decoded.Payload.(*types.Block).Hash())
	require.Len(t, decoded.Payload.(*types.Block).Transactions, 50)
}

func TestSmallPayloadNotCompressed(t *testing.T) {
	inv := &payload.Inventory{Type: payload.BlockType, Hashes: make([]util.Uint256, 3)}
	msg := NewMessage(CMDInv, inv)
	_, err := msg.Bytes()
	require.NoError(t, err)
	require.Zero(t, msg.Flags&Compressed)
}

func TestDecompressRejectsGarbage(t *testing.T) {
	testCases := map[string][]byte{
		"too short":      {0x01, 0x00},
		"declared huge":  {0xFF, 0xFF, 0xFF, 0x7F, 0x00},
		"size mismatch":  append([]byte{0x10, 0x00, 0x00, 0x00}, 0x10, 'a'),
		"invalid stream": {0x04, 0x00, 0x00, 0x00, 0xF0, 0xFF},
	}

	for name, input := range testCases {
		input := input
		t.Run(name, func(t *testing.T) {
			_, err := decompress(input)
			require.Error(t, err)
		})
	}

	// a frame flagged compressed with a broken payload is a decode error
	raw := []byte{byte(Compressed), byte(CMDPing), 0x02, 0x00, 0x00}
	require.Error(t, new(Message).Decode(codec.NewBinReaderFromBuf(raw)))
}

func TestDecompressBoundsDeclaredSize(t *testing.T) {
	// 1 MiB claimed from four bytes of block data
	_, err := decompress([]byte{0x00, 0x00, 0x10, 0x00, 0x1F, 0x00, 0x01, 0x00})
	require.ErrorIs(t, err, errDecompress)

	// a long run still decodes: the bound tracks the real expansion ratio
	src := make([]byte, 1<<20)
	compressed, err := compress(src)
	require.NoError(t, err)
	out, err := decompress(compressed)
	require.NoError(t, err)
	require.Equal(t, src, out)
}

func TestCompressRoundTrip(t *testing.T) {
	src := bytes.Repeat([]byte("neosync"), 100)
	compressed, err := compress(src)
	require.NoError(t, err)
	require.Less(t, len(compressed), len(src))

	out, err := decompress(compressed)
	require.NoError(t, err)
	require.Equal(t, src, out)
}

func TestUnknownCommandConsumesFrame(t *testing.T) {
	ping, err := NewMessage(CMDPing, &payload.Ping{}).Bytes()
	require.NoError(t, err)

	stream := append([]byte{0x00, 0x77, 0x02, 0xAA, 0xBB}, ping...)
	r := codec.NewBinReaderFromBuf(stream)

	err = new(Message).Decode(r)
	require.ErrorIs(t, err, errUnknownCommand)

	next := new(Message)
	require.NoError(t, next.Decode(r))
	require.Equal(t, CMDPing, next.Command)
}

func TestCommandString(t *testing.T) {
	require.Equal(t, "getblockbyindex", CMDGetBlockByIndex.String())
	require.Equal(t, "unknown(0x77)", CommandType(0x77).String())
}
