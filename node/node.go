package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tendermint/neosync/config"
	"github.com/tendermint/neosync/internal/blocksync"
	"github.com/tendermint/neosync/internal/ledger"
	"github.com/tendermint/neosync/internal/p2p"
	"github.com/tendermint/neosync/internal/storage"
	"github.com/tendermint/neosync/libs/log"
	"github.com/tendermint/neosync/libs/service"
)

// Node is the highest level interface to a full node.
// It includes all configuration information and running services.
type Node struct {
	service.BaseService
	logger log.Logger

	// config
	config *config.Config

	// services
	store         *storage.DBStore
	chain         *ledger.Blockchain
	book          *p2p.AddressBook
	peerManager   *p2p.PeerManager
	syncer        *blocksync.Syncer // nil when block sync is disabled
	prometheusSrv *http.Server
}

// New returns a new, ready to go node using the default metrics provider.
func New(cfg *config.Config, logger log.Logger) (*Node, error) {
	return NewWithMetrics(cfg, logger, DefaultMetricsProvider(cfg.Instrumentation))
}

// NewWithMetrics returns a new, ready to go node.
func NewWithMetrics(cfg *config.Config, logger log.Logger, metricsProvider MetricsProvider) (*Node, error) {
	if err := cfg.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}

	n, err := makeNode(cfg, logger, store, metricsProvider(cfg.P2P.Magic))
	if err != nil {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close store", "err", cerr)
		}
		return nil, err
	}
	return n, nil
}

func makeNode(cfg *config.Config, logger log.Logger, store *storage.DBStore, metrics *Metrics) (*Node, error) {
	chain, err := ledger.NewBlockchain(logger.With("module", "ledger"), store, metrics.ledger)
	if err != nil {
		return nil, fmt.Errorf("open blockchain: %w", err)
	}

	book, err := p2p.NewAddressBook(store, cfg.P2P.BlockedAddresses)
	if err != nil {
		return nil, fmt.Errorf("load address book: %w", err)
	}

	peerManager, err := p2p.NewPeerManager(
		logger.With("module", "p2p"),
		book,
		chain,
		peerManagerOptions(cfg.P2P),
		metrics.p2p,
	)
	if err != nil {
		return nil, fmt.Errorf("create peer manager: %w", err)
	}

	var syncer *blocksync.Syncer
	if cfg.BlockSync.Enable {
		syncer, err = blocksync.NewSyncer(
			logger.With("module", "blocksync"),
			peerManager,
			chain,
			syncerOptions(cfg.BlockSync),
			metrics.blocksync,
		)
		if err != nil {
			return nil, fmt.Errorf("create block syncer: %w", err)
		}
	}

	n := &Node{
		logger:      logger,
		config:      cfg,
		store:       store,
		chain:       chain,
		book:        book,
		peerManager: peerManager,
		syncer:      syncer,
	}
	n.BaseService = *service.NewBaseService(logger, "Node", n)
	return n, nil
}

// OnStart starts the Node. It implements service.Service.
func (n *Node) OnStart(ctx context.Context) error {
	if n.config.Instrumentation.Prometheus && n.config.Instrumentation.PrometheusListenAddr != "" {
		n.prometheusSrv = n.startPrometheusServer(n.config.Instrumentation.PrometheusListenAddr)
	}

	n.logger.Info("starting node",
		"height", n.chain.Height(),
		"magic", n.config.P2P.Magic,
		"blocksync", n.syncer != nil,
	)

	if err := n.peerManager.Start(ctx); err != nil {
		return err
	}
	if n.syncer != nil {
		if err := n.syncer.Start(ctx); err != nil {
			stopService(n.logger, n.peerManager)
			return err
		}
	}
	return nil
}

// OnStop stops the Node. It implements service.Service.
func (n *Node) OnStop() {
	n.logger.Info("stopping node")

	// the syncer persists blocks, so it must stop before the store closes
	if n.syncer != nil {
		stopService(n.logger, n.syncer)
	}
	stopService(n.logger, n.peerManager)

	if n.prometheusSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := n.prometheusSrv.Shutdown(ctx); err != nil {
			// Error from closing listeners, or context timeout:
			n.logger.Error("Prometheus HTTP server Shutdown", "err", err)
		}
	}

	if err := n.store.Close(); err != nil {
		n.logger.Error("failed to close store", "err", err)
	}
}

// stopService stops s and waits until its OnStop has returned, whether it
// is stopped here or by the cancellation of its context.
func stopService(logger log.Logger, s service.Service) {
	if err := s.Stop(); err != nil && !errors.Is(err, service.ErrAlreadyStopped) {
		logger.Error("failed to stop service", "service", s.String(), "err", err)
		return
	}
	s.Wait()
}

// startPrometheusServer starts a Prometheus HTTP server, listening for metrics
// collectors on addr.
func (n *Node) startPrometheusServer(addr string) *http.Server {
	srv := &http.Server{
		Addr: addr,
		Handler: promhttp.InstrumentMetricHandler(
			prometheus.DefaultRegisterer, promhttp.HandlerFor(
				prometheus.DefaultGatherer,
				promhttp.HandlerOpts{},
			),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// Error starting or closing listener:
			n.logger.Error("Prometheus HTTP server ListenAndServe", "err", err)
		}
	}()
	return srv
}

// Config returns the Node's config.
func (n *Node) Config() *config.Config { return n.config }

// Chain returns the Node's ledger.
func (n *Node) Chain() *ledger.Blockchain { return n.chain }

// AddressBook returns the Node's address book.
func (n *Node) AddressBook() *p2p.AddressBook { return n.book }

// PeerManager returns the Node's peer manager.
func (n *Node) PeerManager() *p2p.PeerManager { return n.peerManager }

// Syncer returns the Node's block syncer, nil when block sync is disabled.
func (n *Node) Syncer() *blocksync.Syncer { return n.syncer }
