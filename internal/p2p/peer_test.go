package p2p

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/neosync/internal/codec"
	"github.com/tendermint/neosync/internal/p2p/payload"
	"github.com/tendermint/neosync/libs/log"
	"github.com/tendermint/neosync/types"
)

func TestPeerHandshake(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	a, b, _, _ := makePeerPair(t, makeChain(t, 3), makeChain(t, 6))

	assert.Equal(t, PeerEstablished, a.State())
	assert.Equal(t, PeerEstablished, b.State())

	// heights come from the FullNode capability
	assert.EqualValues(t, 5, a.BestHeight())
	assert.EqualValues(t, 2, b.BestHeight())

	require.NotNil(t, a.Version())
	assert.Equal(t, "/neosync-test/", a.Version().UserAgent)
	assert.EqualValues(t, 2, a.Version().Nonce)
	assert.Equal(t, "127.0.0.1:20333", a.Address())
}

func TestPeerHandshakeInboundAddress(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()
	connA, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	connB := <-accepted

	chain := makeChain(t, 1)
	optsA := testPeerOptions(1)
	optsA.ListenPort = 20444
	a := NewPeer(connA, true, ln.Addr().String(), optsA, newTestHost(), chain, log.TestingLogger(), nil)
	b := NewPeer(connB, false, "", testPeerOptions(2), newTestHost(), chain, log.TestingLogger(), nil)

	errA, errB := handshakePair(context.Background(), a, b)
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, "127.0.0.1:20444", b.Address())

	a.Disconnect(DisconnectShutdown)
	b.Disconnect(DisconnectShutdown)
}

func TestPeerHandshakeRejects(t *testing.T) {
	testcases := map[string]struct {
		nonceB uint32
		magicB uint32
		err    error
	}{
		"self connection": {nonceB: 1, magicB: testMagic, err: ErrSelfConnection},
		"magic mismatch":  {nonceB: 2, magicB: testMagic + 1, err: ErrMagicMismatch},
	}
	for name, tc := range testcases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Cleanup(leaktest.Check(t))

			connA, connB := net.Pipe()
			chain := makeChain(t, 1)
			optsB := testPeerOptions(tc.nonceB)
			optsB.Magic = tc.magicB
			a := NewPeer(connA, true, "127.0.0.1:1", testPeerOptions(1), newTestHost(), chain, log.TestingLogger(), nil)
			b := NewPeer(connB, false, "", optsB, newTestHost(), chain, log.TestingLogger(), nil)

			errA, errB := handshakePair(context.Background(), a, b)
			require.Error(t, errA)
			// the inbound side validates first
			require.ErrorIs(t, errB, tc.err)
			a.Disconnect(DisconnectHandshake)
		})
	}
}

func TestPeerHandshakeTimeout(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	connA, connB := net.Pipe()
	defer connB.Close()

	opts := testPeerOptions(1)
	opts.HandshakeTimeout = 50 * time.Millisecond
	p := NewPeer(connA, false, "", opts, newTestHost(), makeChain(t, 1), log.TestingLogger(), nil)
	defer p.Disconnect(DisconnectHandshake)

	err := p.Handshake(context.Background())
	require.ErrorIs(t, err, ErrHandshakeTimeout)
}

func TestPeerHandshakeCanceled(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	connA, connB := net.Pipe()
	defer connB.Close()

	p := NewPeer(connA, false, "", testPeerOptions(1), newTestHost(), makeChain(t, 1), log.TestingLogger(), nil)
	defer p.Disconnect(DisconnectHandshake)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	require.ErrorIs(t, p.Handshake(ctx), context.Canceled)
}

func TestPeerHandshakeUnexpectedMessage(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	connA, connB := net.Pipe()
	defer connB.Close()

	p := NewPeer(connA, false, "", testPeerOptions(1), newTestHost(), makeChain(t, 1), log.TestingLogger(), nil)
	defer p.Disconnect(DisconnectHandshake)

	go func() {
		raw, _ := NewMessage(CMDVerack, nil).Bytes()
		_, _ = connB.Write(raw)
	}()

	err := p.Handshake(context.Background())
	var unexpected ErrUnexpectedMessage
	require.ErrorAs(t, err, &unexpected)
	require.Equal(t, CMDVerack, unexpected.Got)
	require.Equal(t, CMDVersion, unexpected.Expected)
}

func TestPeerPingPong(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	chainA := makeChain(t, 2)
	a, b, _, _ := makePeerPair(t, chainA, makeChain(t, 2))
	require.EqualValues(t, 1, b.BestHeight())

	for _, block := range types.MakeTestChain(5, 1)[2:] {
		require.NoError(t, chainA.Persist(block))
	}
	before := b.LastHeightUpdate()
	require.NoError(t, a.Ping())

	// b answers the ping with a pong and learns a's new height from it
	require.Eventually(t, func() bool { return b.BestHeight() == 4 }, time.Second, 5*time.Millisecond)
	require.False(t, b.LastHeightUpdate().Before(before))
	require.Eventually(t, func() bool { return a.BestHeight() == 1 }, time.Second, 5*time.Millisecond)
}

func TestPeerServesBlocks(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	chainB := makeChain(t, 5)
	a, _, hostA, _ := makePeerPair(t, makeChain(t, 1), chainB)

	require.NoError(t, a.RequestBlocks(1, 3))
	for i := uint32(1); i <= 3; i++ {
		select {
		case block := <-hostA.blocks:
			require.Equal(t, i, block.Index)
			want, err := chainB.GetBlockByIndex(i)
			require.NoError(t, err)
			require.Equal(t, want.Hash(), block.Hash())
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for block %d", i)
		}
	}

	// missing blocks are silently skipped
	require.NoError(t, a.RequestBlocks(4, -1))
	block := <-hostA.blocks
	require.EqualValues(t, 4, block.Index)
	select {
	case block := <-hostA.blocks:
		t.Fatalf("unexpected block %d", block.Index)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPeerGetDataNotFound(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	chainB := makeChain(t, 2)
	a, _, hostA, _ := makePeerPair(t, makeChain(t, 1), chainB)

	known, err := chainB.GetHeaderHash(1)
	require.NoError(t, err)
	unknown := types.MakeTestBlock(7, known, 0).Hash()

	require.NoError(t, a.Send(NewMessage(CMDGetData, &payload.Inventory{
		Type:   payload.BlockType,
		Hashes: []util.Uint256{known, unknown},
	})))

	block := <-hostA.blocks
	require.Equal(t, known, block.Hash())
	require.Eventually(t, func() bool { return hostA.errorResponses.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestPeerGetHeaders(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	chainB := makeChain(t, 4)
	a, _, _, _ := makePeerPair(t, makeChain(t, 1), chainB)
	require.EqualValues(t, 3, a.BestHeight())

	for _, block := range types.MakeTestChain(7, 1)[4:] {
		require.NoError(t, chainB.Persist(block))
	}

	// headers only move the height hint
	require.NoError(t, a.Send(NewMessage(CMDGetHeaders, payload.NewGetBlockByIndex(0, -1))))
	require.Eventually(t, func() bool { return a.BestHeight() == 6 }, time.Second, 5*time.Millisecond)
}

func TestPeerAddresses(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	a, _, hostA, hostB := makePeerPair(t, makeChain(t, 1), makeChain(t, 1))
	hostB.good = []payload.AddressAndTime{
		payload.NewAddressAndTime(net.ParseIP("10.0.0.1"), 20333, 100),
		payload.NewAddressAndTime(net.ParseIP("10.0.0.2"), 20333, 200),
	}

	require.NoError(t, a.Send(NewMessage(CMDGetAddr, nil)))
	select {
	case addrs := <-hostA.addrs:
		require.Len(t, addrs, 2)
		endpoint, ok := addrs[1].Endpoint()
		require.True(t, ok)
		require.Equal(t, "10.0.0.2:20333", endpoint)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for addresses")
	}
}

func TestPeerProtocolViolation(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	a, b, hostA, hostB := makePeerPair(t, makeChain(t, 1), makeChain(t, 1))

	// a version after the handshake is a protocol violation
	require.NoError(t, a.Send(NewMessage(CMDVersion, a.localVersion())))
	require.Equal(t, DisconnectProtocolViolation, <-hostB.disconnectCh)
	require.Equal(t, DisconnectProtocolViolation, b.Reason())

	// the other side sees the connection drop
	require.Equal(t, DisconnectIOError, <-hostA.disconnectCh)
	<-a.Done()
	require.Equal(t, PeerClosed, a.State())
	require.ErrorIs(t, a.Send(NewMessage(CMDPing, &payload.Ping{})), ErrPeerDisconnected)
}

func TestPeerInvalidPayload(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	connA, connB := net.Pipe()
	host := newTestHost()
	p := NewPeer(connB, false, "", testPeerOptions(2), host, makeChain(t, 1), log.TestingLogger(), nil)
	p.state.Store(uint32(PeerEstablished))
	p.Start()

	// a ping frame with a truncated payload
	w := codec.NewBufBinWriter()
	w.WriteB(0)
	w.WriteB(byte(CMDPing))
	w.WriteVarBytes([]byte{1, 2, 3})
	_, err := connA.Write(w.Bytes())
	require.NoError(t, err)

	require.Equal(t, DisconnectProtocolViolation, <-host.disconnectCh)
	connA.Close()
	<-p.Done()
}

func TestPeerUnknownCommandIsDropped(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	connA, connB := net.Pipe()
	host := newTestHost()
	p := NewPeer(connB, false, "", testPeerOptions(2), host, makeChain(t, 1), log.TestingLogger(), nil)
	p.state.Store(uint32(PeerEstablished))
	p.Start()

	w := codec.NewBufBinWriter()
	w.WriteB(0)
	w.WriteB(0x77)
	w.WriteVarBytes([]byte{1, 2, 3})
	_, err := connA.Write(w.Bytes())
	require.NoError(t, err)

	raw, err := NewMessage(CMDPing, &payload.Ping{LastBlockIndex: 9}).Bytes()
	require.NoError(t, err)
	_, err = connA.Write(raw)
	require.NoError(t, err)

	// the ping is answered, so the unknown frame did not kill the peer
	reply := new(Message)
	require.NoError(t, reply.Decode(codec.NewBinReaderFromIO(connA)))
	require.Equal(t, CMDPong, reply.Command)
	require.EqualValues(t, 9, p.BestHeight())

	p.Disconnect(DisconnectShutdown)
	require.Equal(t, DisconnectShutdown, <-host.disconnectCh)
	connA.Close()
}

func TestPeerDisconnectIdempotent(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	a, _, hostA, _ := makePeerPair(t, makeChain(t, 1), makeChain(t, 1))

	a.Disconnect(DisconnectPoorPerformance)
	a.Disconnect(DisconnectShutdown)
	<-a.Done()

	require.Equal(t, DisconnectPoorPerformance, a.Reason())
	require.Equal(t, DisconnectPoorPerformance, <-hostA.disconnectCh)
	require.Equal(t, 1, hostA.disconnectCount())
}

func TestDisconnectReasonAddressState(t *testing.T) {
	testcases := []struct {
		reason DisconnectReason
		state  AddressState
	}{
		{DisconnectHandshake, AddressPoor},
		{DisconnectPoorPerformance, AddressPoor},
		{DisconnectProtocolViolation, AddressPoor},
		{DisconnectIOError, AddressPoor},
		{DisconnectFilterRejected, AddressDead},
		{DisconnectShutdown, AddressNew},
	}
	for _, tc := range testcases {
		assert.Equal(t, tc.state, tc.reason.AddressState(), tc.reason.String())
	}
}
