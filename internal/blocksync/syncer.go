package blocksync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tendermint/neosync/internal/p2p"
	"github.com/tendermint/neosync/internal/p2p/payload"
	"github.com/tendermint/neosync/libs/log"
	"github.com/tendermint/neosync/libs/service"
	"github.com/tendermint/neosync/types"
)

// PeerSet is the view of the connection pool the syncer routes requests
// through.
type PeerSet interface {
	// BestPeerForHeight returns the best peer covering height and its
	// best height.
	BestPeerForHeight(height uint32) (p2p.NodeID, uint32, bool)
	// RetryPeerForHeight returns the best peer covering height that is not
	// in failed, or the best peer overall.
	RetryPeerForHeight(height uint32, failed map[p2p.NodeID]struct{}) (p2p.NodeID, bool)
	RequestBlocks(id p2p.NodeID, start uint32, count int16) error
	ReportTimeout(id p2p.NodeID)
	RecordThroughput(id p2p.NodeID, bytesPerSecond float64)
	// Blocks delivers the blocks received from any peer.
	Blocks() <-chan p2p.BlockEvent
}

// Ledger is where synced blocks are persisted.
type Ledger interface {
	// Height returns the last persisted index, -1 for an empty chain.
	Height() int64
	Persist(block *types.Block) error
}

// Options configures a Syncer.
type Options struct {
	// BlockTimeout is how long a flight may stay unanswered. Default 5s.
	BlockTimeout time.Duration
	// MaxCacheSize bounds the blocks received and not yet persisted.
	// Default 500.
	MaxCacheSize int
	// MaxRequestBatch bounds the heights asked in one request. Default 500.
	MaxRequestBatch int
	// SyncInterval is the cadence of the timeout sweep and fill. Default 1s.
	SyncInterval time.Duration
}

// Validate validates the options.
func (o Options) Validate() error {
	switch {
	case o.BlockTimeout < 0:
		return errors.New("block timeout can't be negative")
	case o.MaxCacheSize < 0:
		return errors.New("max cache size can't be negative")
	case o.MaxRequestBatch < 0 || o.MaxRequestBatch > payload.MaxBlocksCount:
		return fmt.Errorf("max request batch must be between 0 and %d", payload.MaxBlocksCount)
	case o.SyncInterval < 0:
		return errors.New("sync interval can't be negative")
	}
	return nil
}

func (o *Options) setDefaults() {
	if o.BlockTimeout == 0 {
		o.BlockTimeout = 5 * time.Second
	}
	if o.MaxCacheSize == 0 {
		o.MaxCacheSize = 500
	}
	if o.MaxRequestBatch == 0 {
		o.MaxRequestBatch = 500
	}
	if o.SyncInterval == 0 {
		o.SyncInterval = time.Second
	}
}

// Status is a point in time view of the syncer.
type Status struct {
	Persisted int64
	Cached    int
	InFlight  int
}

// Syncer requests blocks from peers and persists them in order. All of
// its state is owned by the sync routine.
type Syncer struct {
	service.BaseService
	logger  log.Logger
	options Options
	metrics *Metrics
	peers   PeerSet
	ledger  Ledger

	requests map[uint32]*RequestInfo
	cache    map[uint32]*types.Block

	statusMtx sync.RWMutex
	status    Status

	routines *service.Routines
	now      func() time.Time
}

// NewSyncer creates a block syncer.
func NewSyncer(logger log.Logger, peers PeerSet, ledger Ledger, options Options, metrics *Metrics) (*Syncer, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}
	options.setDefaults()
	if metrics == nil {
		metrics = NopMetrics()
	}

	s := &Syncer{
		logger:   logger,
		options:  options,
		metrics:  metrics,
		peers:    peers,
		ledger:   ledger,
		requests: make(map[uint32]*RequestInfo),
		cache:    make(map[uint32]*types.Block),
		now:      time.Now,
	}
	s.BaseService = *service.NewBaseService(logger, "Syncer", s)
	s.updateStatus()
	return s, nil
}

// OnStart implements service.Service.
func (s *Syncer) OnStart(ctx context.Context) error {
	s.routines = service.NewRoutines(ctx, s.logger)
	s.routines.Go("sync", s.syncRoutine)
	return nil
}

// OnStop implements service.Service.
func (s *Syncer) OnStop() {
	if err := s.routines.Stop(); err != nil {
		s.logger.Error("sync routine failed", "err", err)
	}
	s.updateStatus()
}

// Status returns the state of the last loop iteration.
func (s *Syncer) Status() Status {
	s.statusMtx.RLock()
	defer s.statusMtx.RUnlock()

	return s.status
}

func (s *Syncer) syncRoutine(ctx context.Context) error {
	var (
		ticker  = time.NewTicker(s.options.SyncInterval)
		drainCh = make(chan struct{}, 1)
	)
	defer ticker.Stop()

	triggerDrain := func() {
		select {
		case drainCh <- struct{}{}:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev := <-s.peers.Blocks():
			s.onBlock(ev)
			triggerDrain()

		case <-ticker.C:
			s.sweepTimeouts()
			s.fill()
			triggerDrain()

		case <-drainCh:
			// persist one block per iteration and come back for the next
			if s.drainOne() {
				triggerDrain()
			}
		}
		s.updateStatus()
	}
}

// onBlock matches a received block to its request.
func (s *Syncer) onBlock(ev p2p.BlockEvent) {
	height := ev.Block.Index
	req, ok := s.requests[height]
	if !ok {
		s.logger.Debug("discarding unrequested block", "height", height, "peer", ev.Peer)
		s.metrics.DiscardedBlocks.Add(1)
		return
	}
	flight, ok := req.flightFrom(ev.Peer)
	if !ok {
		s.logger.Debug("discarding block from peer not asked", "height", height, "peer", ev.Peer)
		s.metrics.DiscardedBlocks.Add(1)
		return
	}

	elapsed := ev.Received.Sub(flight.Sent)
	if elapsed < time.Millisecond {
		elapsed = time.Millisecond
	}
	s.peers.RecordThroughput(ev.Peer, float64(ev.Size)/elapsed.Seconds())

	delete(s.requests, height)
	if _, ok := s.cache[height]; !ok && int64(height) > s.ledger.Height() {
		s.cache[height] = ev.Block
	}
}

// sweepTimeouts marks the peer of every flight older than BlockTimeout as
// failed for that height and re-requests the pending range.
func (s *Syncer) sweepTimeouts() {
	now := s.now()

	timedOut := make(map[p2p.NodeID]struct{})
	for _, height := range s.pendingHeights() {
		req := s.requests[height]
		if !req.timedOut(now, s.options.BlockTimeout) {
			continue
		}
		last, _ := req.lastFlight()
		req.markFailed(last.Peer)
		timedOut[last.Peer] = struct{}{}
		s.logger.Debug("block request timed out", "height", height, "peer", last.Peer)
	}
	if len(timedOut) == 0 {
		return
	}
	for peer := range timedOut {
		s.peers.ReportTimeout(peer)
		s.metrics.Timeouts.Add(1)
	}

	persisted := s.ledger.Height()
	for height := range s.requests {
		if _, cached := s.cache[height]; cached || int64(height) <= persisted {
			delete(s.requests, height)
		}
	}

	pending := s.pendingHeights()
	if len(pending) == 0 {
		return
	}
	min, max := pending[0], pending[len(pending)-1]

	failed := timedOut
	for _, height := range pending {
		for peer := range s.requests[height].Failed {
			failed[peer] = struct{}{}
		}
	}
	peer, ok := s.peers.RetryPeerForHeight(max, failed)
	if !ok {
		s.logger.Debug("no peer to retry blocks", "from", min, "to", max)
		return
	}

	count := int(max-min) + 1
	if count > s.options.MaxRequestBatch {
		count = s.options.MaxRequestBatch
	}
	if err := s.peers.RequestBlocks(peer, min, int16(count)); err != nil {
		s.logger.Debug("failed to retry blocks", "peer", peer, "err", err)
		return
	}
	for height := min; height < min+uint32(count); height++ {
		if req, ok := s.requests[height]; ok {
			req.addFlight(peer, now)
		}
	}
	s.metrics.Retries.Add(1)
	s.logger.Debug("retrying blocks", "from", min, "count", count, "peer", peer)
}

// fill requests the next contiguous range when nothing is outstanding.
func (s *Syncer) fill() {
	if len(s.requests) > 0 || len(s.cache) >= s.options.MaxCacheSize {
		return
	}

	// first height neither persisted nor cached; past the highest cached
	// one unless a block was lost to a failed persist
	start := s.ledger.Height() + 1
	for {
		if _, ok := s.cache[uint32(start)]; !ok {
			break
		}
		start++
	}

	peer, peerHeight, ok := s.peers.BestPeerForHeight(uint32(start))
	if !ok {
		return
	}

	count := s.options.MaxCacheSize - len(s.cache)
	if count > s.options.MaxRequestBatch {
		count = s.options.MaxRequestBatch
	}
	if avail := int64(peerHeight) - start + 1; avail < int64(count) {
		count = int(avail)
	}
	if count <= 0 {
		return
	}

	if err := s.peers.RequestBlocks(peer, uint32(start), int16(count)); err != nil {
		s.logger.Debug("failed to request blocks", "peer", peer, "err", err)
		return
	}
	now := s.now()
	for height := uint32(start); height < uint32(start)+uint32(count); height++ {
		req := newRequestInfo(height)
		req.addFlight(peer, now)
		s.requests[height] = req
	}
	s.logger.Debug("requested blocks", "from", start, "count", count, "peer", peer)
}

// drainOne persists the block following the ledger tip, reporting whether
// one was persisted.
func (s *Syncer) drainOne() bool {
	persisted := s.ledger.Height()
	for height := range s.cache {
		if int64(height) <= persisted {
			delete(s.cache, height)
		}
	}

	next := uint32(persisted + 1)
	block, ok := s.cache[next]
	if !ok {
		return false
	}
	delete(s.cache, next)

	if err := s.ledger.Persist(block); err != nil {
		s.logger.Error("failed to persist block", "height", next, "hash", block.Hash().StringLE(), "err", err)
		return false
	}
	s.metrics.Height.Set(float64(next))
	if next%1000 == 0 {
		s.logger.Info("synced blocks", "height", next, "cached", len(s.cache))
	}
	return true
}

// pendingHeights returns the outstanding heights in ascending order.
func (s *Syncer) pendingHeights() []uint32 {
	heights := make([]uint32, 0, len(s.requests))
	for height := range s.requests {
		heights = append(heights, height)
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
	return heights
}

func (s *Syncer) updateStatus() {
	status := Status{
		Persisted: s.ledger.Height(),
		Cached:    len(s.cache),
		InFlight:  len(s.requests),
	}
	s.metrics.CachedBlocks.Set(float64(status.Cached))
	s.metrics.BlocksInFlight.Set(float64(status.InFlight))

	s.statusMtx.Lock()
	s.status = status
	s.statusMtx.Unlock()
}
