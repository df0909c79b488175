package blocksync

import (
	"time"

	"github.com/tendermint/neosync/internal/p2p"
)

// FlightInfo is one request for a height sent to one peer.
type FlightInfo struct {
	Peer p2p.NodeID
	Sent time.Time
}

// RequestInfo tracks an outstanding height.
type RequestInfo struct {
	Height uint32
	// Flights in the order they were sent.
	Flights []FlightInfo
	// Failed holds the peers that timed out on this height.
	Failed map[p2p.NodeID]struct{}
}

func newRequestInfo(height uint32) *RequestInfo {
	return &RequestInfo{
		Height: height,
		Failed: make(map[p2p.NodeID]struct{}),
	}
}

func (r *RequestInfo) addFlight(peer p2p.NodeID, sent time.Time) {
	r.Flights = append(r.Flights, FlightInfo{Peer: peer, Sent: sent})
}

// lastFlight returns the most recent flight.
func (r *RequestInfo) lastFlight() (FlightInfo, bool) {
	if len(r.Flights) == 0 {
		return FlightInfo{}, false
	}
	return r.Flights[len(r.Flights)-1], true
}

// flightFrom returns the most recent flight sent to peer.
func (r *RequestInfo) flightFrom(peer p2p.NodeID) (FlightInfo, bool) {
	for i := len(r.Flights) - 1; i >= 0; i-- {
		if r.Flights[i].Peer == peer {
			return r.Flights[i], true
		}
	}
	return FlightInfo{}, false
}

func (r *RequestInfo) markFailed(peer p2p.NodeID) {
	r.Failed[peer] = struct{}{}
}

func (r *RequestInfo) timedOut(now time.Time, timeout time.Duration) bool {
	last, ok := r.lastFlight()
	return ok && now.Sub(last.Sent) > timeout
}
