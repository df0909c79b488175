package payload

import (
	"fmt"

	"github.com/tendermint/neosync/internal/codec"
)

// MaxCapabilities is the maximum number of capabilities per node.
const MaxCapabilities = 32

// CapabilityType identifies a node capability.
type CapabilityType uint8

const (
	TCPServer CapabilityType = 0x01
	WSServer  CapabilityType = 0x02
	FullNode  CapabilityType = 0x10
)

// Capability describes one service a node offers. Server capabilities carry
// a port, FullNode carries the start height.
type Capability struct {
	Type        CapabilityType
	Port        uint16
	StartHeight uint32
}

func (c *Capability) EncodeBinary(w *codec.BinWriter) {
	w.WriteB(uint8(c.Type))
	switch c.Type {
	case TCPServer, WSServer:
		w.WriteU16LE(c.Port)
	case FullNode:
		w.WriteU32LE(c.StartHeight)
	default:
		w.Err = fmt.Errorf("unknown capability type 0x%02x", uint8(c.Type))
	}
}

func (c *Capability) DecodeBinary(r *codec.BinReader) {
	c.Type = CapabilityType(r.ReadB())
	if r.Err != nil {
		return
	}
	switch c.Type {
	case TCPServer, WSServer:
		c.Port = r.ReadU16LE()
	case FullNode:
		c.StartHeight = r.ReadU32LE()
	default:
		r.Err = fmt.Errorf("unknown capability type 0x%02x", uint8(c.Type))
	}
}

func (c *Capability) Size() int {
	switch c.Type {
	case FullNode:
		return 1 + 4
	default:
		return 1 + 2
	}
}

// Capabilities is a list of node capabilities.
type Capabilities []Capability

// TCPPort returns the advertised TCP server port.
func (cs Capabilities) TCPPort() (uint16, bool) {
	for _, c := range cs {
		if c.Type == TCPServer {
			return c.Port, true
		}
	}
	return 0, false
}

// StartHeight returns the advertised full-node height.
func (cs Capabilities) StartHeight() (uint32, bool) {
	for _, c := range cs {
		if c.Type == FullNode {
			return c.StartHeight, true
		}
	}
	return 0, false
}

func (cs *Capabilities) encode(w *codec.BinWriter) {
	codec.WriteArray(w, []Capability(*cs))
}

func (cs *Capabilities) decode(r *codec.BinReader) {
	*cs = codec.ReadArray[Capability](r, MaxCapabilities)
	if r.Err != nil {
		return
	}
	seen := make(map[CapabilityType]struct{}, len(*cs))
	for _, c := range *cs {
		if _, ok := seen[c.Type]; ok {
			r.Err = fmt.Errorf("duplicate capability 0x%02x", uint8(c.Type))
			return
		}
		seen[c.Type] = struct{}{}
	}
}

func (cs Capabilities) size() int { return codec.ArraySize([]Capability(cs)) }
