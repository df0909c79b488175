package payload

import (
	"net"
	"strconv"

	"github.com/tendermint/neosync/internal/codec"
)

// MaxAddressCount is the maximum number of addresses in one list.
const MaxAddressCount = 200

// AddressAndTime is one entry of an address list.
type AddressAndTime struct {
	Timestamp    uint32
	IP           [16]byte
	Capabilities Capabilities
}

// NewAddressAndTime builds an entry for a TCP endpoint.
func NewAddressAndTime(ip net.IP, port uint16, timestamp uint32) AddressAndTime {
	a := AddressAndTime{
		Timestamp:    timestamp,
		Capabilities: Capabilities{{Type: TCPServer, Port: port}},
	}
	copy(a.IP[:], ip.To16())
	return a
}

// Endpoint returns "host:port" for the TCP server capability.
func (a *AddressAndTime) Endpoint() (string, bool) {
	port, ok := a.Capabilities.TCPPort()
	if !ok {
		return "", false
	}
	ip := net.IP(a.IP[:])
	return net.JoinHostPort(ip.String(), strconv.Itoa(int(port))), true
}

func (a *AddressAndTime) EncodeBinary(w *codec.BinWriter) {
	w.WriteU32LE(a.Timestamp)
	w.WriteBytes(a.IP[:])
	a.Capabilities.encode(w)
}

func (a *AddressAndTime) DecodeBinary(r *codec.BinReader) {
	a.Timestamp = r.ReadU32LE()
	r.ReadBytes(a.IP[:])
	a.Capabilities.decode(r)
}

func (a *AddressAndTime) Size() int { return 4 + 16 + a.Capabilities.size() }

// AddressList is the payload of the addr message.
type AddressList struct {
	Addrs []AddressAndTime
}

func (p *AddressList) EncodeBinary(w *codec.BinWriter) { codec.WriteArray(w, p.Addrs) }

func (p *AddressList) DecodeBinary(r *codec.BinReader) {
	p.Addrs = codec.ReadArray[AddressAndTime](r, MaxAddressCount)
}

func (p *AddressList) Size() int { return codec.ArraySize(p.Addrs) }
