package p2p

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/tendermint/neosync/internal/ledger"
	"github.com/tendermint/neosync/internal/p2p/payload"
	"github.com/tendermint/neosync/internal/storage"
	"github.com/tendermint/neosync/libs/log"
	"github.com/tendermint/neosync/types"
)

const testMagic = 0x4e454f

// testHost records everything a peer reports.
type testHost struct {
	blocks         chan *types.Block
	addrs          chan []payload.AddressAndTime
	good           []payload.AddressAndTime
	errorResponses *atomic.Int32

	mtx          sync.Mutex
	disconnects  []DisconnectReason
	disconnectCh chan DisconnectReason
}

func newTestHost() *testHost {
	return &testHost{
		blocks:         make(chan *types.Block, 100),
		addrs:          make(chan []payload.AddressAndTime, 10),
		errorResponses: atomic.NewInt32(0),
		disconnectCh:   make(chan DisconnectReason, 10),
	}
}

func (h *testHost) OnBlock(_ *Peer, block *types.Block, _ int) { h.blocks <- block }

func (h *testHost) OnAddresses(_ *Peer, addrs []payload.AddressAndTime) { h.addrs <- addrs }

func (h *testHost) GoodAddresses(limit int) []payload.AddressAndTime {
	if len(h.good) > limit {
		return h.good[:limit]
	}
	return h.good
}

func (h *testHost) OnErrorResponse(*Peer) { h.errorResponses.Inc() }

func (h *testHost) OnDisconnect(_ *Peer, reason DisconnectReason) {
	h.mtx.Lock()
	h.disconnects = append(h.disconnects, reason)
	h.mtx.Unlock()
	h.disconnectCh <- reason
}

func (h *testHost) disconnectCount() int {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	return len(h.disconnects)
}

// makeChain returns a ledger holding n test blocks.
func makeChain(t *testing.T, n int) *ledger.Blockchain {
	t.Helper()

	bc, err := ledger.NewBlockchain(log.NewNopLogger(), storage.NewMemStore(), nil)
	require.NoError(t, err)
	for _, b := range types.MakeTestChain(n, 1) {
		require.NoError(t, bc.Persist(b))
	}
	return bc
}

func testPeerOptions(nonce uint32) PeerOptions {
	return PeerOptions{
		Magic:            testMagic,
		Nonce:            nonce,
		UserAgent:        "/neosync-test/",
		HandshakeTimeout: time.Second,
		IdleTimeout:      20 * time.Millisecond,
		WriteTimeout:     time.Second,
	}
}

// handshakePair handshakes both ends of a pipe concurrently.
func handshakePair(ctx context.Context, a, b *Peer) (errA, errB error) {
	done := make(chan error, 1)
	go func() {
		err := b.Handshake(ctx)
		if err != nil {
			b.Disconnect(DisconnectHandshake)
		}
		done <- err
	}()
	errA = a.Handshake(ctx)
	if errA != nil {
		// unblock the other side
		a.Disconnect(DisconnectHandshake)
	}
	errB = <-done
	return errA, errB
}

// makePeerPair connects an outbound peer backed by chainA to an inbound
// peer backed by chainB and starts both read loops.
func makePeerPair(t *testing.T, chainA, chainB Chain) (a, b *Peer, hostA, hostB *testHost) {
	t.Helper()

	connA, connB := net.Pipe()
	hostA, hostB = newTestHost(), newTestHost()
	logger := log.TestingLogger()
	a = NewPeer(connA, true, "127.0.0.1:20333", testPeerOptions(1), hostA, chainA, logger, nil)
	b = NewPeer(connB, false, "", testPeerOptions(2), hostB, chainB, logger, nil)

	errA, errB := handshakePair(context.Background(), a, b)
	require.NoError(t, errA)
	require.NoError(t, errB)

	a.Start()
	b.Start()
	t.Cleanup(func() {
		a.Disconnect(DisconnectShutdown)
		b.Disconnect(DisconnectShutdown)
		<-a.Done()
		<-b.Done()
	})
	return a, b, hostA, hostB
}
