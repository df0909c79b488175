package p2p

import (
	"errors"
	"fmt"

	"github.com/tendermint/neosync/internal/codec"
	"github.com/tendermint/neosync/internal/p2p/payload"
	"github.com/tendermint/neosync/types"
)

// CommandType is the type of a wire message.
type CommandType byte

const (
	CMDVersion         CommandType = 0x00
	CMDVerack          CommandType = 0x01
	CMDGetAddr         CommandType = 0x10
	CMDAddr            CommandType = 0x11
	CMDPing            CommandType = 0x18
	CMDPong            CommandType = 0x19
	CMDGetHeaders      CommandType = 0x20
	CMDHeaders         CommandType = 0x21
	CMDGetBlocks       CommandType = 0x24
	CMDMempool         CommandType = 0x25
	CMDInv             CommandType = 0x27
	CMDGetData         CommandType = 0x28
	CMDGetBlockByIndex CommandType = 0x29
	CMDNotFound        CommandType = 0x2a
	CMDTX              CommandType = 0x2b
	CMDBlock           CommandType = 0x2c
	CMDReject          CommandType = 0x2f
)

var commandNames = map[CommandType]string{
	CMDVersion:         "version",
	CMDVerack:          "verack",
	CMDGetAddr:         "getaddr",
	CMDAddr:            "addr",
	CMDPing:            "ping",
	CMDPong:            "pong",
	CMDGetHeaders:      "getheaders",
	CMDHeaders:         "headers",
	CMDGetBlocks:       "getblocks",
	CMDMempool:         "mempool",
	CMDInv:             "inv",
	CMDGetData:         "getdata",
	CMDGetBlockByIndex: "getblockbyindex",
	CMDNotFound:        "notfound",
	CMDTX:              "transaction",
	CMDBlock:           "block",
	CMDReject:          "reject",
}

func (c CommandType) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02x)", byte(c))
}

// MessageFlag is the flags byte of a frame.
type MessageFlag byte

// Compressed marks an LZ4 compressed payload.
const Compressed MessageFlag = 0x01

const (
	// MaxPayloadSize is the largest payload accepted on the wire.
	MaxPayloadSize = 0x02000000

	// CompressionMinSize is the payload size from which compression is
	// attempted.
	CompressionMinSize = 128

	// CompressionThreshold is the minimum number of bytes compression must
	// save for the compressed form to be used.
	CompressionThreshold = 64
)

var (
	// ErrPayloadTooLarge is returned for frames above MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("payload too large")

	// errUnknownCommand is returned when decoding a frame whose command has
	// no payload type. The frame has been consumed entirely.
	errUnknownCommand = errors.New("unknown command")
)

// ErrInvalidPayload is returned when a complete frame carries a payload that
// does not decompress or decode.
type ErrInvalidPayload struct {
	Command CommandType
	Err     error
}

func (e ErrInvalidPayload) Error() string {
	return fmt.Sprintf("invalid %s payload: %v", e.Command, e.Err)
}

func (e ErrInvalidPayload) Unwrap() error { return e.Err }

// Message is one frame on the wire.
type Message struct {
	Flags   MessageFlag
	Command CommandType
	Payload codec.Serializable

	// compressed or plain payload bytes as sent or received.
	wire []byte
}

// NewMessage builds a message carrying p. A nil payload is sent empty.
func NewMessage(cmd CommandType, p codec.Serializable) *Message {
	if p == nil {
		p = payload.Null{}
	}
	return &Message{Command: cmd, Payload: p}
}

// WireSize returns the size of the encoded frame once Encode or Decode has
// run.
func (m *Message) WireSize() int {
	return 2 + codec.VarUintSize(uint64(len(m.wire))) + len(m.wire)
}

// Encode serializes the payload, compresses it when worthwhile and writes
// the frame to w.
func (m *Message) Encode(w *codec.BinWriter) error {
	if err := m.prepare(); err != nil {
		return err
	}
	w.WriteB(byte(m.Flags))
	w.WriteB(byte(m.Command))
	w.WriteVarBytes(m.wire)
	return w.Err
}

// Bytes returns the encoded frame.
func (m *Message) Bytes() ([]byte, error) {
	w := codec.NewBufBinWriter()
	if err := m.Encode(w.BinWriter); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func (m *Message) prepare() error {
	raw, err := codec.ToBytes(m.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", m.Command, err)
	}
	if len(raw) > MaxPayloadSize {
		return ErrPayloadTooLarge
	}

	m.Flags &^= Compressed
	m.wire = raw
	if len(raw) > CompressionMinSize {
		compressed, err := compress(raw)
		if err == nil && useCompressed(len(raw), len(compressed)) {
			m.Flags |= Compressed
			m.wire = compressed
		}
	}
	return nil
}

// useCompressed reports whether a payload of original bytes that
// compresses to compressed bytes should be sent compressed.
func useCompressed(original, compressed int) bool {
	return original > CompressionMinSize && compressed < original-CompressionThreshold
}

// Decode reads one frame from r and decodes its payload. If the command is
// unknown, errUnknownCommand is returned after the frame has been consumed.
func (m *Message) Decode(r *codec.BinReader) error {
	m.Flags = MessageFlag(r.ReadB())
	m.Command = CommandType(r.ReadB())
	m.wire = r.ReadVarBytes(MaxPayloadSize)
	if r.Err != nil {
		return r.Err
	}

	data := m.wire
	if m.Flags&Compressed != 0 {
		var err error
		data, err = decompress(m.wire)
		if err != nil {
			return ErrInvalidPayload{Command: m.Command, Err: err}
		}
	}

	p := newPayload(m.Command)
	if p == nil {
		return fmt.Errorf("%w: %s", errUnknownCommand, m.Command)
	}
	if err := codec.FromBytes(data, p); err != nil {
		return ErrInvalidPayload{Command: m.Command, Err: err}
	}
	m.Payload = p
	return nil
}

func newPayload(cmd CommandType) codec.Serializable {
	switch cmd {
	case CMDVersion:
		return new(payload.Version)
	case CMDVerack, CMDGetAddr, CMDMempool:
		return payload.Null{}
	case CMDAddr:
		return new(payload.AddressList)
	case CMDPing, CMDPong:
		return new(payload.Ping)
	case CMDGetHeaders, CMDGetBlockByIndex:
		return new(payload.GetBlockByIndex)
	case CMDHeaders:
		return new(payload.Headers)
	case CMDGetBlocks:
		return new(payload.GetBlocks)
	case CMDInv, CMDGetData, CMDNotFound, CMDReject:
		return new(payload.Inventory)
	case CMDTX:
		return new(types.Transaction)
	case CMDBlock:
		return new(types.Block)
	default:
		return nil
	}
}
