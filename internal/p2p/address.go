package p2p

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/tendermint/neosync/internal/codec"
	"github.com/tendermint/neosync/internal/p2p/payload"
)

// NodeID identifies a connected peer by its remote "host:port".
type NodeID string

// AddressState is the lifecycle state of a known address.
type AddressState uint8

const (
	// AddressNew is a known address that may be dialed.
	AddressNew AddressState = iota
	// AddressConnected is an address with an established peer.
	AddressConnected
	// AddressPoor is an address that failed recently; it is recycled to
	// AddressNew when no other candidates are left.
	AddressPoor
	// AddressDead is an address that is never dialed again.
	AddressDead
)

func (s AddressState) String() string {
	switch s {
	case AddressNew:
		return "new"
	case AddressConnected:
		return "connected"
	case AddressPoor:
		return "poor"
	case AddressDead:
		return "dead"
	default:
		return fmt.Sprintf("AddressState(%d)", uint8(s))
	}
}

// NetworkAddress is an entry of the address book. Two addresses are equal
// when their Address strings are.
type NetworkAddress struct {
	Address       string
	Timestamp     uint32
	Capabilities  payload.Capabilities
	State         AddressState
	LastConnected time.Time
}

// ParseAddress validates a "host:port" string and returns it normalized.
func ParseAddress(address string) (string, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", address, err)
	}
	if host == "" {
		return "", fmt.Errorf("invalid address %q: no host", address)
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil || p == 0 {
		return "", fmt.Errorf("invalid address %q: invalid port", address)
	}
	if ip := net.ParseIP(host); ip != nil {
		host = ip.String()
	}
	return net.JoinHostPort(host, port), nil
}

func (a *NetworkAddress) EncodeBinary(w *codec.BinWriter) {
	w.WriteString(a.Address)
	w.WriteU32LE(a.Timestamp)
	w.WriteB(uint8(a.State))
	var last int64
	if !a.LastConnected.IsZero() {
		last = a.LastConnected.UnixMilli()
	}
	w.WriteI64LE(last)
	codec.WriteArray(w, []payload.Capability(a.Capabilities))
}

func (a *NetworkAddress) DecodeBinary(r *codec.BinReader) {
	a.Address = r.ReadString(256)
	a.Timestamp = r.ReadU32LE()
	a.State = AddressState(r.ReadB())
	if last := r.ReadI64LE(); last != 0 {
		a.LastConnected = time.UnixMilli(last)
	}
	a.Capabilities = codec.ReadArray[payload.Capability](r, payload.MaxCapabilities)
	if r.Err == nil && a.State > AddressDead {
		r.Err = errors.New("invalid address state")
	}
}

func (a *NetworkAddress) Size() int {
	return codec.VarBytesSize(len(a.Address)) + 4 + 1 + 8 +
		codec.ArraySize([]payload.Capability(a.Capabilities))
}
