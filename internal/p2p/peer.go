package p2p

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"go.uber.org/atomic"

	"github.com/tendermint/neosync/internal/codec"
	"github.com/tendermint/neosync/internal/p2p/payload"
	"github.com/tendermint/neosync/libs/log"
	"github.com/tendermint/neosync/types"
)

// PeerState is the lifecycle state of a peer connection.
type PeerState uint32

const (
	PeerConnecting PeerState = iota
	PeerHandshaking
	PeerEstablished
	PeerDisconnecting
	PeerClosed
)

func (s PeerState) String() string {
	switch s {
	case PeerConnecting:
		return "connecting"
	case PeerHandshaking:
		return "handshaking"
	case PeerEstablished:
		return "established"
	case PeerDisconnecting:
		return "disconnecting"
	case PeerClosed:
		return "closed"
	default:
		return fmt.Sprintf("PeerState(%d)", uint32(s))
	}
}

// PeerHost receives what a peer learns from the network.
type PeerHost interface {
	// OnBlock is called for every block received. size is the frame size.
	OnBlock(p *Peer, block *types.Block, size int)
	// OnAddresses is called with the entries of an addr message.
	OnAddresses(p *Peer, addrs []payload.AddressAndTime)
	// GoodAddresses returns addresses to answer getaddr with.
	GoodAddresses(limit int) []payload.AddressAndTime
	// OnErrorResponse is called when the peer answers notfound.
	OnErrorResponse(p *Peer)
	// OnDisconnect is called once, after the read loop of a started peer
	// has exited and the connection is closed.
	OnDisconnect(p *Peer, reason DisconnectReason)
}

// Chain is the ledger view a peer serves requests from.
type Chain interface {
	Height() int64
	GetBlock(hash util.Uint256) (*types.Block, error)
	GetBlockByIndex(index uint32) (*types.Block, error)
	GetHeader(index uint32) (*types.Header, error)
	GetHeaderHash(index uint32) (util.Uint256, error)
	GetTransaction(hash util.Uint256) (*types.TransactionState, error)
}

// PeerOptions configures a peer connection.
type PeerOptions struct {
	// Magic is the network magic; peers on another network are rejected.
	Magic uint32
	// Nonce identifies this node; a peer echoing it is ourselves.
	Nonce     uint32
	UserAgent string
	// ListenPort is announced as a TCPServer capability when non-zero.
	ListenPort uint16

	// HandshakeTimeout bounds every handshake read. Default 3s.
	HandshakeTimeout time.Duration
	// IdleTimeout is how long the read loop waits for a frame before
	// checking for cancellation. Default 1s.
	IdleTimeout time.Duration
	// WriteTimeout bounds every write. Default 10s.
	WriteTimeout time.Duration
}

func (o *PeerOptions) setDefaults() {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 3 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
}

// Peer is one established connection to a remote node.
type Peer struct {
	id       NodeID
	outbound bool
	conn     net.Conn
	reader   *bufio.Reader
	opts     PeerOptions
	logger   log.Logger
	metrics  *Metrics
	host     PeerHost
	chain    Chain
	weight   *NodeWeight

	// address is the dialable "host:port" of the peer. For inbound peers
	// it is known after the handshake, from the announced TCP port.
	address string
	version *payload.Version

	state      *atomic.Uint32
	bestHeight *atomic.Uint32
	lastUpdate *atomic.Int64 // unix nanoseconds

	writeMtx sync.Mutex

	disconnectOnce sync.Once
	reason         DisconnectReason

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPeer wraps conn. address is the dialed address for outbound
// connections and empty for inbound ones.
func NewPeer(
	conn net.Conn,
	outbound bool,
	address string,
	opts PeerOptions,
	host PeerHost,
	chain Chain,
	logger log.Logger,
	metrics *Metrics,
) *Peer {
	opts.setDefaults()
	if metrics == nil {
		metrics = NopMetrics()
	}
	id := NodeID(conn.RemoteAddr().String())
	ctx, cancel := context.WithCancel(context.Background())
	return &Peer{
		id:         id,
		outbound:   outbound,
		conn:       conn,
		reader:     bufio.NewReader(conn),
		opts:       opts,
		logger:     logger.With("peer", id),
		metrics:    metrics,
		host:       host,
		chain:      chain,
		weight:     NewNodeWeight(),
		address:    address,
		state:      atomic.NewUint32(uint32(PeerConnecting)),
		bestHeight: atomic.NewUint32(0),
		lastUpdate: atomic.NewInt64(time.Now().UnixNano()),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

func (p *Peer) ID() NodeID { return p.id }

// Address returns the dialable address of the peer, empty when an inbound
// peer did not announce a TCP port.
func (p *Peer) Address() string { return p.address }

func (p *Peer) IsOutbound() bool { return p.outbound }

func (p *Peer) State() PeerState { return PeerState(p.state.Load()) }

func (p *Peer) Weight() *NodeWeight { return p.weight }

// Version returns the version the peer announced, nil before the handshake.
func (p *Peer) Version() *payload.Version { return p.version }

// BestHeight returns the highest block index the peer is known to have.
func (p *Peer) BestHeight() uint32 { return p.bestHeight.Load() }

// LastHeightUpdate returns when the best height last advanced.
func (p *Peer) LastHeightUpdate() time.Time { return time.Unix(0, p.lastUpdate.Load()) }

// Done is closed once the peer is closed.
func (p *Peer) Done() <-chan struct{} { return p.done }

func (p *Peer) String() string { return string(p.id) }

func (p *Peer) updateHeight(height uint32) {
	for {
		cur := p.bestHeight.Load()
		if height <= cur {
			return
		}
		if p.bestHeight.CAS(cur, height) {
			p.lastUpdate.Store(time.Now().UnixNano())
			return
		}
	}
}

func (p *Peer) localVersion() *payload.Version {
	caps := payload.Capabilities{{Type: payload.FullNode, StartHeight: p.localHeight()}}
	if p.opts.ListenPort != 0 {
		caps = append(caps, payload.Capability{Type: payload.TCPServer, Port: p.opts.ListenPort})
	}
	return &payload.Version{
		Magic:        p.opts.Magic,
		Version:      payload.ProtocolVersion,
		Timestamp:    uint32(time.Now().Unix()),
		Nonce:        p.opts.Nonce,
		UserAgent:    p.opts.UserAgent,
		Capabilities: caps,
	}
}

func (p *Peer) localHeight() uint32 {
	if h := p.chain.Height(); h > 0 {
		return uint32(h)
	}
	return 0
}

// Handshake exchanges version and verack messages. The dialing side speaks
// first. On failure the caller must Disconnect the peer.
func (p *Peer) Handshake(ctx context.Context) error {
	if !p.state.CAS(uint32(PeerConnecting), uint32(PeerHandshaking)) {
		return fmt.Errorf("handshake in state %s", p.State())
	}

	// unblock reads when ctx is cancelled
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = p.conn.SetDeadline(time.Now())
		case <-stop:
		}
	}()

	var err error
	if p.outbound {
		err = p.handshakeOutbound()
	} else {
		err = p.handshakeInbound()
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	if err := p.conn.SetDeadline(time.Time{}); err != nil {
		return err
	}

	p.state.Store(uint32(PeerEstablished))
	return nil
}

func (p *Peer) handshakeOutbound() error {
	if err := p.sendHandshake(NewMessage(CMDVersion, p.localVersion())); err != nil {
		return err
	}
	msg, err := p.expect(CMDVersion)
	if err != nil {
		return err
	}
	if err := p.acceptVersion(msg.Payload.(*payload.Version)); err != nil {
		return err
	}
	if err := p.sendHandshake(NewMessage(CMDVerack, nil)); err != nil {
		return err
	}
	_, err = p.expect(CMDVerack)
	return err
}

func (p *Peer) handshakeInbound() error {
	msg, err := p.expect(CMDVersion)
	if err != nil {
		return err
	}
	if err := p.acceptVersion(msg.Payload.(*payload.Version)); err != nil {
		return err
	}
	if err := p.sendHandshake(NewMessage(CMDVersion, p.localVersion())); err != nil {
		return err
	}
	if _, err := p.expect(CMDVerack); err != nil {
		return err
	}
	return p.sendHandshake(NewMessage(CMDVerack, nil))
}

func (p *Peer) acceptVersion(v *payload.Version) error {
	switch {
	case v.Nonce == p.opts.Nonce:
		return ErrSelfConnection
	case v.Magic != p.opts.Magic:
		return fmt.Errorf("%w: got %d, want %d", ErrMagicMismatch, v.Magic, p.opts.Magic)
	}

	p.version = v
	if h, ok := v.Capabilities.StartHeight(); ok {
		p.updateHeight(h)
	}
	if p.address == "" {
		if port, ok := v.Capabilities.TCPPort(); ok {
			if host, _, err := net.SplitHostPort(p.conn.RemoteAddr().String()); err == nil {
				p.address = net.JoinHostPort(host, strconv.Itoa(int(port)))
			}
		}
	}
	return nil
}

func (p *Peer) sendHandshake(msg *Message) error {
	raw, err := msg.Bytes()
	if err != nil {
		return err
	}
	if err := p.conn.SetWriteDeadline(time.Now().Add(p.opts.HandshakeTimeout)); err != nil {
		return err
	}
	if _, err := p.conn.Write(raw); err != nil {
		return handshakeError(err)
	}
	return nil
}

func (p *Peer) expect(cmd CommandType) (*Message, error) {
	if err := p.conn.SetReadDeadline(time.Now().Add(p.opts.HandshakeTimeout)); err != nil {
		return nil, err
	}
	msg := new(Message)
	if err := msg.Decode(codec.NewBinReaderFromIO(p.reader)); err != nil {
		return nil, handshakeError(err)
	}
	if msg.Command != cmd {
		return nil, ErrUnexpectedMessage{Expected: cmd, Got: msg.Command}
	}
	return msg, nil
}

func handshakeError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrHandshakeTimeout, err)
	}
	return err
}

// Start runs the read loop of an established peer.
func (p *Peer) Start() {
	go p.readLoop()
}

func (p *Peer) readLoop() {
	defer p.close()

	for {
		msg, err := p.receive()
		switch {
		case err == nil:
		case errors.Is(err, errUnknownCommand):
			p.logger.Debug("dropping message with unknown command", "err", err)
			continue
		case p.ctx.Err() != nil:
			return
		case isProtocolError(err):
			p.logger.Info("invalid message from peer", "err", err)
			p.Disconnect(DisconnectProtocolViolation)
			return
		default:
			p.logger.Debug("peer connection failed", "err", err)
			p.Disconnect(DisconnectIOError)
			return
		}

		if err := p.handleMessage(msg); err != nil {
			p.logger.Info("failed to handle message", "command", msg.Command, "err", err)
			p.Disconnect(DisconnectProtocolViolation)
			return
		}
	}
}

// receive waits for the next frame in IdleTimeout slices, checking for
// cancellation between them, then reads the whole frame.
func (p *Peer) receive() (*Message, error) {
	for {
		if err := p.ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.conn.SetReadDeadline(time.Now().Add(p.opts.IdleTimeout)); err != nil {
			return nil, err
		}
		_, err := p.reader.Peek(1)
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}
	if err := p.conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, err
	}

	msg := new(Message)
	err := msg.Decode(codec.NewBinReaderFromIO(p.reader))
	p.metrics.MessageReceiveBytesTotal.With("command", msg.Command.String()).Add(float64(msg.WireSize()))
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func isProtocolError(err error) bool {
	var payloadErr ErrInvalidPayload
	return errors.As(err, &payloadErr) ||
		errors.Is(err, codec.ErrValueTooLarge) ||
		errors.Is(err, codec.ErrMalformedVarint)
}

func (p *Peer) handleMessage(msg *Message) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("panic in %s handler: %v", msg.Command, e)
			p.logger.Error("recovering from message handler panic",
				"command", msg.Command, "err", err, "stack", string(debug.Stack()))
		}
	}()

	switch pl := msg.Payload.(type) {
	case *types.Block:
		p.updateHeight(pl.Index)
		p.host.OnBlock(p, pl, msg.WireSize())
		return nil
	case *payload.Headers:
		if n := len(pl.Hdrs); n > 0 {
			p.updateHeight(pl.Hdrs[n-1].Index)
		}
		return nil
	case *payload.AddressList:
		p.host.OnAddresses(p, pl.Addrs)
		return nil
	case *payload.Ping:
		return p.onPing(msg.Command, pl)
	case *payload.GetBlockByIndex:
		if msg.Command == CMDGetHeaders {
			return p.onGetHeaders(pl)
		}
		return p.onGetBlockByIndex(pl)
	case *payload.GetBlocks:
		return p.onGetBlocks(pl)
	case *payload.Inventory:
		return p.onInventory(msg.Command, pl)
	}

	switch msg.Command {
	case CMDVersion, CMDVerack:
		return fmt.Errorf("%s after handshake", msg.Command)
	case CMDGetAddr:
		return p.Send(NewMessage(CMDAddr, &payload.AddressList{Addrs: p.host.GoodAddresses(payload.MaxAddressCount)}))
	default:
		p.logger.Debug("ignoring message", "command", msg.Command)
		return nil
	}
}

func (p *Peer) onPing(cmd CommandType, ping *payload.Ping) error {
	p.updateHeight(ping.LastBlockIndex)
	if cmd == CMDPong {
		return nil
	}
	return p.Send(NewMessage(CMDPong, &payload.Ping{
		LastBlockIndex: p.localHeight(),
		Timestamp:      uint32(time.Now().Unix()),
		Nonce:          ping.Nonce,
	}))
}

func (p *Peer) onGetBlockByIndex(req *payload.GetBlockByIndex) error {
	count := req.Limit(payload.MaxBlocksCount)
	for i := 0; i < count; i++ {
		block, err := p.chain.GetBlockByIndex(req.IndexStart + uint32(i))
		if err != nil {
			break
		}
		if err := p.Send(NewMessage(CMDBlock, block)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Peer) onGetHeaders(req *payload.GetBlockByIndex) error {
	count := req.Limit(payload.MaxHeadersCount)
	hdrs := make([]*types.Header, 0, count)
	for i := 0; i < count; i++ {
		h, err := p.chain.GetHeader(req.IndexStart + uint32(i))
		if err != nil {
			break
		}
		hdrs = append(hdrs, h)
	}
	if len(hdrs) == 0 {
		return nil
	}
	return p.Send(NewMessage(CMDHeaders, &payload.Headers{Hdrs: hdrs}))
}

func (p *Peer) onGetBlocks(req *payload.GetBlocks) error {
	start, err := p.chain.GetBlock(req.HashStart)
	if err != nil {
		return nil
	}
	count := int(req.Count)
	if count < 0 || count > payload.MaxHashesCount {
		count = payload.MaxHashesCount
	}
	hashes := make([]util.Uint256, 0, count)
	for i := uint32(1); len(hashes) < count; i++ {
		h, err := p.chain.GetHeaderHash(start.Index + i)
		if err != nil {
			break
		}
		hashes = append(hashes, h)
	}
	if len(hashes) == 0 {
		return nil
	}
	return p.Send(NewMessage(CMDInv, &payload.Inventory{Type: payload.BlockType, Hashes: hashes}))
}

func (p *Peer) onInventory(cmd CommandType, inv *payload.Inventory) error {
	switch cmd {
	case CMDGetData:
		return p.onGetData(inv)
	case CMDNotFound:
		p.host.OnErrorResponse(p)
		return nil
	default:
		p.logger.Debug("received inventory", "command", cmd, "type", inv.Type, "count", len(inv.Hashes))
		return nil
	}
}

func (p *Peer) onGetData(inv *payload.Inventory) error {
	var missing []util.Uint256
	for _, h := range inv.Hashes {
		var msg *Message
		switch inv.Type {
		case payload.BlockType:
			if block, err := p.chain.GetBlock(h); err == nil {
				msg = NewMessage(CMDBlock, block)
			}
		case payload.TXType:
			if state, err := p.chain.GetTransaction(h); err == nil {
				msg = NewMessage(CMDTX, state.Transaction)
			}
		}
		if msg == nil {
			missing = append(missing, h)
			continue
		}
		if err := p.Send(msg); err != nil {
			return err
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return p.Send(NewMessage(CMDNotFound, &payload.Inventory{Type: inv.Type, Hashes: missing}))
}

// Send writes msg to the peer. A write failure disconnects the peer.
func (p *Peer) Send(msg *Message) error {
	if p.State() >= PeerDisconnecting {
		return ErrPeerDisconnected
	}
	raw, err := msg.Bytes()
	if err != nil {
		return err
	}

	p.writeMtx.Lock()
	defer p.writeMtx.Unlock()

	if err := p.conn.SetWriteDeadline(time.Now().Add(p.opts.WriteTimeout)); err != nil {
		return err
	}
	if _, err := p.conn.Write(raw); err != nil {
		p.Disconnect(DisconnectIOError)
		return fmt.Errorf("send %s: %w", msg.Command, err)
	}
	p.metrics.MessageSendBytesTotal.With("command", msg.Command.String()).Add(float64(len(raw)))
	return nil
}

// RequestBlocks asks the peer for count blocks starting at index.
func (p *Peer) RequestBlocks(index uint32, count int16) error {
	return p.Send(NewMessage(CMDGetBlockByIndex, payload.NewGetBlockByIndex(index, count)))
}

// Ping sends our height to the peer, which answers with a pong carrying
// its own.
func (p *Peer) Ping() error {
	return p.Send(NewMessage(CMDPing, &payload.Ping{
		LastBlockIndex: p.localHeight(),
		Timestamp:      uint32(time.Now().Unix()),
		Nonce:          p.opts.Nonce,
	}))
}

// Disconnect closes the connection. Only the first call has an effect and
// its reason is the one reported.
func (p *Peer) Disconnect(reason DisconnectReason) {
	p.disconnectOnce.Do(func() {
		p.reason = reason
		p.state.Store(uint32(PeerDisconnecting))
		p.cancel()
		if err := p.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
			p.logger.Debug("failed to close connection", "err", err)
		}
		p.logger.Debug("peer disconnected", "reason", reason)
	})
}

// Reason returns the disconnect reason, zero while connected.
func (p *Peer) Reason() DisconnectReason {
	if p.State() < PeerDisconnecting {
		return 0
	}
	return p.reason
}

func (p *Peer) close() {
	p.Disconnect(DisconnectIOError)
	p.state.Store(uint32(PeerClosed))
	p.host.OnDisconnect(p, p.reason)
	close(p.done)
}
