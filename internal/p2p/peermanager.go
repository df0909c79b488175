package p2p

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"github.com/tendermint/neosync/internal/p2p/payload"
	"github.com/tendermint/neosync/libs/log"
	"github.com/tendermint/neosync/libs/service"
	"github.com/tendermint/neosync/types"
)

// fillErrorLimit is the number of fills without candidates, while below
// MinPeers, after which poor addresses are recycled.
const fillErrorLimit = 2

// BlockEvent is a block received from a peer.
type BlockEvent struct {
	Peer     NodeID
	Block    *types.Block
	Size     int
	Received time.Time
}

// PeerManagerOptions specifies options for a PeerManager.
type PeerManagerOptions struct {
	// Seeds are dialed when the address book runs out of candidates.
	Seeds []string

	// ListenAddress enables inbound connections when not empty.
	ListenAddress string

	// MinPeers is the number of peers below which exhausting the NEW
	// addresses counts as a fill error.
	MinPeers int

	// MaxPeers is the maximum number of connected plus connecting peers.
	MaxPeers int

	// BlockedAddresses are never added to the address book.
	BlockedAddresses []string

	// Peer configures every connection.
	Peer PeerOptions

	// DialTimeout bounds the TCP connect of outbound connections.
	DialTimeout time.Duration

	FillInterval          time.Duration
	AddrQueryInterval     time.Duration
	HeightMonitorInterval time.Duration

	// MaxHeightStall is how long a peer behind us may go without its
	// height advancing before it is disconnected.
	MaxHeightStall time.Duration

	// MaxTimeouts and MaxErrorResponses are the counts above which a peer
	// is disconnected for poor performance.
	MaxTimeouts       uint32
	MaxErrorResponses uint32

	// BlockBuffer is the capacity of the Blocks channel. Blocks arriving
	// while it is full are dropped.
	BlockBuffer int

	// Dialer opens outbound connections. Defaults to a TCP dialer.
	Dialer func(ctx context.Context, address string) (net.Conn, error)
}

// Validate validates the options.
func (o *PeerManagerOptions) Validate() error {
	if o.MaxPeers <= 0 {
		return errors.New("max peers must be positive")
	}
	if o.MinPeers < 0 || o.MinPeers > o.MaxPeers {
		return fmt.Errorf("min peers %d must be between 0 and max peers %d", o.MinPeers, o.MaxPeers)
	}
	for _, seed := range o.Seeds {
		if _, err := ParseAddress(seed); err != nil {
			return fmt.Errorf("invalid seed: %w", err)
		}
	}
	if o.ListenAddress != "" {
		if _, _, err := net.SplitHostPort(o.ListenAddress); err != nil {
			return fmt.Errorf("invalid listen address %q: %w", o.ListenAddress, err)
		}
	}
	return nil
}

func (o *PeerManagerOptions) setDefaults() {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.FillInterval <= 0 {
		o.FillInterval = 10 * time.Second
	}
	if o.AddrQueryInterval <= 0 {
		o.AddrQueryInterval = 15 * time.Second
	}
	if o.HeightMonitorInterval <= 0 {
		o.HeightMonitorInterval = 30 * time.Second
	}
	if o.MaxHeightStall <= 0 {
		o.MaxHeightStall = 120 * time.Second
	}
	if o.MaxTimeouts == 0 {
		o.MaxTimeouts = 15
	}
	if o.MaxErrorResponses == 0 {
		o.MaxErrorResponses = 5
	}
	if o.BlockBuffer <= 0 {
		o.BlockBuffer = 1000
	}
	if o.Dialer == nil {
		dialer := &net.Dialer{}
		o.Dialer = func(ctx context.Context, address string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp", address)
		}
	}
	if o.Peer.ListenPort == 0 && o.ListenAddress != "" {
		if _, port, err := net.SplitHostPort(o.ListenAddress); err == nil {
			if p, err := strconv.ParseUint(port, 10, 16); err == nil {
				o.Peer.ListenPort = uint16(p)
			}
		}
	}
}

// PeerManager keeps the node connected to between MinPeers and MaxPeers
// peers, routes block requests to them and forwards the blocks they send.
//
// It runs these loops:
//
//   - fill: dials NEW addresses into open slots, recycling POOR addresses
//     and re-seeding when the book runs dry.
//   - query-addresses: asks every peer for addresses it knows.
//   - monitor-height: disconnects peers whose height stalled, pings the rest.
//   - accept: accepts inbound connections when ListenAddress is set.
type PeerManager struct {
	service.BaseService
	logger  log.Logger
	options PeerManagerOptions
	metrics *Metrics
	book    *AddressBook
	chain   Chain

	mtx        sync.RWMutex
	peers      map[NodeID]*Peer
	connecting map[string]struct{}

	// only touched by the fill loop
	fillErrors int

	blocks   chan BlockEvent
	routines *service.Routines
	listener net.Listener
}

// NewPeerManager creates a new peer manager.
func NewPeerManager(
	logger log.Logger,
	book *AddressBook,
	chain Chain,
	options PeerManagerOptions,
	metrics *Metrics,
) (*PeerManager, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}
	options.setDefaults()
	if metrics == nil {
		metrics = NopMetrics()
	}

	m := &PeerManager{
		logger:     logger,
		options:    options,
		metrics:    metrics,
		book:       book,
		chain:      chain,
		peers:      make(map[NodeID]*Peer),
		connecting: make(map[string]struct{}),
		blocks:     make(chan BlockEvent, options.BlockBuffer),
	}
	m.BaseService = *service.NewBaseService(logger, "PeerManager", m)
	return m, nil
}

// OnStart implements service.Service.
func (m *PeerManager) OnStart(ctx context.Context) error {
	if m.book.Size() == 0 {
		if err := m.book.Reseed(m.options.Seeds); err != nil {
			return fmt.Errorf("seed address book: %w", err)
		}
	}

	if m.options.ListenAddress != "" {
		ln, err := net.Listen("tcp", m.options.ListenAddress)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", m.options.ListenAddress, err)
		}
		m.listener = netutil.LimitListener(ln, m.options.MaxPeers)
		m.logger.Info("listening for peers", "addr", ln.Addr())
	}

	m.routines = service.NewRoutines(ctx, m.logger)
	m.routines.Go("fill-initial", func(ctx context.Context) error {
		m.fillOpenSpots(ctx)
		return nil
	})
	m.routines.Every("fill", m.options.FillInterval, m.fillOpenSpots)
	m.routines.Every("query-addresses", m.options.AddrQueryInterval, m.queryAddresses)
	m.routines.Every("monitor-height", m.options.HeightMonitorInterval, m.monitorHeight)
	if m.listener != nil {
		m.routines.Go("accept", m.acceptPeers)
	}
	return nil
}

// OnStop implements service.Service.
func (m *PeerManager) OnStop() {
	if m.listener != nil {
		if err := m.listener.Close(); err != nil {
			m.logger.Error("failed to close listener", "err", err)
		}
	}
	if err := m.routines.Stop(); err != nil {
		m.logger.Error("peer manager routine failed", "err", err)
	}

	for _, p := range m.Peers() {
		p.Disconnect(DisconnectShutdown)
		<-p.Done()
	}
}

// ListenAddr returns the address inbound connections are accepted on, nil
// when not listening.
func (m *PeerManager) ListenAddr() net.Addr {
	if m.listener == nil {
		return nil
	}
	return m.listener.Addr()
}

// Blocks returns the channel blocks received from peers are forwarded to.
func (m *PeerManager) Blocks() <-chan BlockEvent { return m.blocks }

// Peers returns the established peers.
func (m *PeerManager) Peers() []*Peer {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	peers := make([]*Peer, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}
	return peers
}

// PeerCount returns the number of established peers.
func (m *PeerManager) PeerCount() int {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	return len(m.peers)
}

func (m *PeerManager) getPeer(id NodeID) (*Peer, bool) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	p, ok := m.peers[id]
	return p, ok
}

// PeerHeight returns the best height of a connected peer.
func (m *PeerManager) PeerHeight(id NodeID) (uint32, bool) {
	p, ok := m.getPeer(id)
	if !ok {
		return 0, false
	}
	return p.BestHeight(), true
}

// BestPeerForHeight returns the highest weighted peer whose best height is
// at least height, along with that best height.
func (m *PeerManager) BestPeerForHeight(height uint32) (NodeID, uint32, bool) {
	best := m.pickPeer(func(p *Peer) bool { return p.BestHeight() >= height })
	if best == nil {
		return "", 0, false
	}
	return best.ID(), best.BestHeight(), true
}

// RetryPeerForHeight returns the highest weighted peer covering height that
// is not in failed. Without one it falls back to the highest weighted peer.
func (m *PeerManager) RetryPeerForHeight(height uint32, failed map[NodeID]struct{}) (NodeID, bool) {
	best := m.pickPeer(func(p *Peer) bool {
		_, ok := failed[p.ID()]
		return !ok && p.BestHeight() >= height
	})
	if best == nil {
		best = m.pickPeer(func(*Peer) bool { return true })
	}
	if best == nil {
		return "", false
	}
	return best.ID(), true
}

func (m *PeerManager) pickPeer(eligible func(*Peer) bool) *Peer {
	var (
		best       *Peer
		bestWeight float64
	)
	for _, p := range m.Peers() {
		if p.State() != PeerEstablished || !eligible(p) {
			continue
		}
		if w := p.Weight().Weight(); best == nil || w > bestWeight {
			best, bestWeight = p, w
		}
	}
	return best
}

// RequestBlocks asks a peer for count blocks starting at start.
func (m *PeerManager) RequestBlocks(id NodeID, start uint32, count int16) error {
	p, ok := m.getPeer(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPeerNotFound, id)
	}
	p.Weight().AppendRequestTime(time.Now())
	return p.RequestBlocks(start, count)
}

// RecordThroughput adds a download speed sample in bytes per second to
// the weight of a peer.
func (m *PeerManager) RecordThroughput(id NodeID, bytesPerSecond float64) {
	if p, ok := m.getPeer(id); ok {
		p.Weight().AppendSpeed(bytesPerSecond)
	}
}

// ReportTimeout counts a request the peer did not answer in time.
func (m *PeerManager) ReportTimeout(id NodeID) {
	p, ok := m.getPeer(id)
	if !ok {
		return
	}
	if n := p.Weight().AddTimeout(); n > m.options.MaxTimeouts {
		m.logger.Info("disconnecting slow peer", "peer", id, "timeouts", n)
		p.Disconnect(DisconnectPoorPerformance)
	}
}

// ReportErrorResponse counts a request the peer could not serve.
func (m *PeerManager) ReportErrorResponse(id NodeID) {
	p, ok := m.getPeer(id)
	if !ok {
		return
	}
	if n := p.Weight().AddErrorResponse(); n > m.options.MaxErrorResponses {
		m.logger.Info("disconnecting unhelpful peer", "peer", id, "error_responses", n)
		p.Disconnect(DisconnectPoorPerformance)
	}
}

// OnBlock implements PeerHost.
func (m *PeerManager) OnBlock(p *Peer, block *types.Block, size int) {
	select {
	case m.blocks <- BlockEvent{Peer: p.ID(), Block: block, Size: size, Received: time.Now()}:
	default:
		m.logger.Debug("block buffer full, dropping block", "peer", p.ID(), "index", block.Index)
	}
}

// OnAddresses implements PeerHost.
func (m *PeerManager) OnAddresses(p *Peer, addrs []payload.AddressAndTime) {
	var added int
	for i := range addrs {
		endpoint, ok := addrs[i].Endpoint()
		if !ok {
			continue
		}
		ok, err := m.book.Add(NetworkAddress{
			Address:      endpoint,
			Timestamp:    addrs[i].Timestamp,
			Capabilities: addrs[i].Capabilities,
		})
		if err != nil {
			m.logger.Error("failed to add address", "address", endpoint, "err", err)
			continue
		}
		if ok {
			added++
		}
	}
	m.logger.Debug("received addresses", "peer", p.ID(), "count", len(addrs), "added", added)
}

// GoodAddresses implements PeerHost.
func (m *PeerManager) GoodAddresses(limit int) []payload.AddressAndTime {
	good := m.book.Good(limit)
	addrs := make([]payload.AddressAndTime, 0, len(good))
	for _, a := range good {
		host, port, err := net.SplitHostPort(a.Address)
		if err != nil {
			continue
		}
		ip := net.ParseIP(host)
		p, err := strconv.ParseUint(port, 10, 16)
		if ip == nil || err != nil {
			continue
		}
		addrs = append(addrs, payload.NewAddressAndTime(ip, uint16(p), a.Timestamp))
	}
	return addrs
}

// OnErrorResponse implements PeerHost.
func (m *PeerManager) OnErrorResponse(p *Peer) {
	m.ReportErrorResponse(p.ID())
}

// OnDisconnect implements PeerHost.
func (m *PeerManager) OnDisconnect(p *Peer, reason DisconnectReason) {
	m.mtx.Lock()
	if cur, ok := m.peers[p.ID()]; ok && cur == p {
		delete(m.peers, p.ID())
	}
	peers := len(m.peers)
	m.mtx.Unlock()

	m.metrics.Peers.Set(float64(peers))
	m.metrics.PeersEvicted.With("reason", reason.String()).Add(1)

	if addr := p.Address(); addr != "" {
		if err := m.book.SetState(addr, reason.AddressState()); err != nil {
			m.logger.Error("failed to update address", "address", addr, "err", err)
		}
	}
	m.logger.Info("peer disconnected", "peer", p.ID(), "reason", reason)
}

func (m *PeerManager) fillOpenSpots(ctx context.Context) {
	m.mtx.RLock()
	connected := len(m.peers)
	open := m.options.MaxPeers - connected - len(m.connecting)
	m.mtx.RUnlock()

	m.updateAddressMetrics()
	if open <= 0 {
		return
	}

	candidates := m.book.ByState(AddressNew, open)
	if len(candidates) == 0 {
		if connected < m.options.MinPeers {
			m.fillErrors++
		}
		if m.fillErrors >= fillErrorLimit {
			m.fillErrors = 0
			m.recycleAddresses()
		}
		return
	}

	for _, c := range candidates {
		address := c.Address
		m.routines.Go("dial", func(ctx context.Context) error {
			m.connect(ctx, address)
			return nil
		})
	}
}

func (m *PeerManager) recycleAddresses() {
	n, err := m.book.RecyclePoor()
	if err != nil {
		m.logger.Error("failed to recycle addresses", "err", err)
		return
	}
	if n > 0 {
		m.logger.Debug("recycled poor addresses", "count", n)
		return
	}
	if err := m.book.Reseed(m.options.Seeds); err != nil {
		m.logger.Error("failed to reseed address book", "err", err)
	}
}

func (m *PeerManager) updateAddressMetrics() {
	counts := m.book.Count()
	for _, state := range []AddressState{AddressNew, AddressConnected, AddressPoor, AddressDead} {
		m.metrics.Addresses.With("state", state.String()).Set(float64(counts[state]))
	}
}

func (m *PeerManager) isConnectedTo(address string) bool {
	for _, p := range m.peers {
		if p.Address() == address {
			return true
		}
	}
	return false
}

func (m *PeerManager) connect(ctx context.Context, address string) {
	m.mtx.Lock()
	if _, ok := m.connecting[address]; ok || m.isConnectedTo(address) {
		m.mtx.Unlock()
		return
	}
	m.connecting[address] = struct{}{}
	m.metrics.PeersConnecting.Set(float64(len(m.connecting)))
	m.mtx.Unlock()

	defer func() {
		m.mtx.Lock()
		delete(m.connecting, address)
		m.metrics.PeersConnecting.Set(float64(len(m.connecting)))
		m.mtx.Unlock()
	}()

	dialCtx, cancel := context.WithTimeout(ctx, m.options.DialTimeout)
	defer cancel()

	conn, err := m.options.Dialer(dialCtx, address)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		state := AddressDead
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			state = AddressPoor
		}
		m.logger.Debug("failed to dial peer", "address", address, "err", err, "state", state)
		m.setAddressState(address, state)
		return
	}

	p := NewPeer(conn, true, address, m.options.Peer, m, m.chain, m.logger, m.metrics)
	if err := p.Handshake(ctx); err != nil {
		p.Disconnect(DisconnectHandshake)
		if ctx.Err() == nil {
			m.logger.Debug("peer handshake failed", "address", address, "err", err)
			m.setAddressState(address, DisconnectHandshake.AddressState())
		}
		return
	}
	m.addPeer(p)
}

func (m *PeerManager) acceptPeers(ctx context.Context) error {
	for {
		conn, err := m.listener.Accept()
		switch {
		case ctx.Err() != nil, errors.Is(err, net.ErrClosed):
			if conn != nil {
				conn.Close()
			}
			return nil
		case err != nil:
			m.logger.Error("failed to accept connection", "err", err)
			continue
		}

		// Handshake in its own goroutine to avoid head-of-line blocking.
		m.routines.Go("handshake-inbound", func(ctx context.Context) error {
			m.openInbound(ctx, conn)
			return nil
		})
	}
}

func (m *PeerManager) openInbound(ctx context.Context, conn net.Conn) {
	p := NewPeer(conn, false, "", m.options.Peer, m, m.chain, m.logger, m.metrics)
	if err := p.Handshake(ctx); err != nil {
		p.Disconnect(DisconnectHandshake)
		m.logger.Debug("inbound handshake failed", "remote", conn.RemoteAddr(), "err", err)
		return
	}
	if addr := p.Address(); addr != "" {
		if _, err := m.book.Add(NetworkAddress{Address: addr}); err != nil {
			m.logger.Error("failed to add address", "address", addr, "err", err)
		}
	}
	m.addPeer(p)
}

func (m *PeerManager) addPeer(p *Peer) {
	m.mtx.Lock()
	switch {
	case len(m.peers) >= m.options.MaxPeers:
		m.mtx.Unlock()
		m.logger.Debug("rejecting peer, too many connections", "peer", p.ID())
		p.Disconnect(DisconnectShutdown)
		return
	case p.Address() != "" && m.isConnectedTo(p.Address()):
		m.mtx.Unlock()
		m.logger.Debug("rejecting duplicate connection", "peer", p.ID(), "address", p.Address())
		p.Disconnect(DisconnectShutdown)
		return
	}
	m.peers[p.ID()] = p
	peers := len(m.peers)
	m.mtx.Unlock()

	m.metrics.Peers.Set(float64(peers))
	if addr := p.Address(); addr != "" {
		m.setAddressState(addr, AddressConnected)
	}
	m.logger.Info("peer connected", "peer", p.ID(), "address", p.Address(),
		"outbound", p.IsOutbound(), "height", p.BestHeight())
	p.Start()
}

func (m *PeerManager) setAddressState(address string, state AddressState) {
	if err := m.book.SetState(address, state); err != nil {
		m.logger.Error("failed to update address", "address", address, "err", err)
	}
}

func (m *PeerManager) queryAddresses(ctx context.Context) {
	for _, p := range m.Peers() {
		if err := p.Send(NewMessage(CMDGetAddr, nil)); err != nil {
			m.logger.Debug("failed to query addresses", "peer", p.ID(), "err", err)
		}
	}
}

func (m *PeerManager) monitorHeight(ctx context.Context) {
	for _, p := range m.Peers() {
		if time.Since(p.LastHeightUpdate()) > m.options.MaxHeightStall {
			m.logger.Info("disconnecting stalled peer", "peer", p.ID(),
				"height", p.BestHeight(), "last_update", p.LastHeightUpdate())
			p.Disconnect(DisconnectPoorPerformance)
			continue
		}
		if err := p.Ping(); err != nil {
			m.logger.Debug("failed to ping peer", "peer", p.ID(), "err", err)
		}
	}
}
