package p2p

import (
	"errors"
	"fmt"
)

var (
	// ErrHandshakeTimeout is returned when the remote side does not answer
	// a handshake message in time.
	ErrHandshakeTimeout = errors.New("handshake timed out")

	// ErrSelfConnection is returned when the remote version carries our own
	// nonce.
	ErrSelfConnection = errors.New("connected to self")

	// ErrMagicMismatch is returned when the remote node runs another network.
	ErrMagicMismatch = errors.New("network magic mismatch")

	// ErrPeerDisconnected is returned by Send on a peer that is going away.
	ErrPeerDisconnected = errors.New("peer disconnected")

	// ErrPeerNotFound is returned for operations on unknown peers.
	ErrPeerNotFound = errors.New("peer not found")
)

// ErrUnexpectedMessage is returned when the handshake receives a message
// other than the one it waits for.
type ErrUnexpectedMessage struct {
	Expected CommandType
	Got      CommandType
}

func (e ErrUnexpectedMessage) Error() string {
	return fmt.Sprintf("unexpected %s message, expected %s", e.Got, e.Expected)
}

// DisconnectReason tells why a peer was disconnected.
type DisconnectReason uint8

const (
	DisconnectHandshake DisconnectReason = iota + 1
	DisconnectPoorPerformance
	DisconnectFilterRejected
	DisconnectShutdown
	DisconnectProtocolViolation
	DisconnectIOError
)

func (r DisconnectReason) String() string {
	switch r {
	case DisconnectHandshake:
		return "handshake"
	case DisconnectPoorPerformance:
		return "poor_performance"
	case DisconnectFilterRejected:
		return "filter_rejected"
	case DisconnectShutdown:
		return "shutdown"
	case DisconnectProtocolViolation:
		return "protocol_violation"
	case DisconnectIOError:
		return "io_error"
	default:
		return fmt.Sprintf("DisconnectReason(%d)", uint8(r))
	}
}

// AddressState returns the state the peer's address moves to after a
// disconnect for r.
func (r DisconnectReason) AddressState() AddressState {
	switch r {
	case DisconnectFilterRejected:
		return AddressDead
	case DisconnectShutdown:
		return AddressNew
	default:
		return AddressPoor
	}
}
