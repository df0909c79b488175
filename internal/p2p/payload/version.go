package payload

import (
	"github.com/tendermint/neosync/internal/codec"
)

const (
	// MaxUserAgentLength is the maximum length of the user agent string.
	MaxUserAgentLength = 1024

	// ProtocolVersion is the protocol version announced in the handshake.
	ProtocolVersion uint32 = 0
)

// Version is the payload of the first message of the handshake.
type Version struct {
	// Network magic.
	Magic uint32
	// Protocol version.
	Version uint32
	// Unix timestamp in seconds.
	Timestamp uint32
	// Random number identifying the node, used to detect self connections.
	Nonce        uint32
	UserAgent    string
	Capabilities Capabilities
}

func (p *Version) EncodeBinary(w *codec.BinWriter) {
	w.WriteU32LE(p.Magic)
	w.WriteU32LE(p.Version)
	w.WriteU32LE(p.Timestamp)
	w.WriteU32LE(p.Nonce)
	w.WriteString(p.UserAgent)
	p.Capabilities.encode(w)
}

func (p *Version) DecodeBinary(r *codec.BinReader) {
	p.Magic = r.ReadU32LE()
	p.Version = r.ReadU32LE()
	p.Timestamp = r.ReadU32LE()
	p.Nonce = r.ReadU32LE()
	p.UserAgent = r.ReadString(MaxUserAgentLength)
	p.Capabilities.decode(r)
}

func (p *Version) Size() int {
	return 4*4 + codec.VarBytesSize(len(p.UserAgent)) + p.Capabilities.size()
}
