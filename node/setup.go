package node

import (
	"fmt"
	"strconv"

	"github.com/tendermint/neosync/config"
	"github.com/tendermint/neosync/internal/blocksync"
	"github.com/tendermint/neosync/internal/ledger"
	"github.com/tendermint/neosync/internal/p2p"
	"github.com/tendermint/neosync/internal/storage"
	tmrand "github.com/tendermint/neosync/libs/rand"
)

// dbName is the name of the database holding the chain and the address book.
const dbName = "chain"

var (
	_ p2p.Chain         = (*ledger.Blockchain)(nil)
	_ blocksync.Ledger  = (*ledger.Blockchain)(nil)
	_ blocksync.PeerSet = (*p2p.PeerManager)(nil)
)

// Metrics groups the metrics of every service run by a node.
type Metrics struct {
	p2p       *p2p.Metrics
	blocksync *blocksync.Metrics
	ledger    *ledger.Metrics
}

// MetricsProvider returns the metrics for the network identified by magic.
type MetricsProvider func(magic uint32) *Metrics

// DefaultMetricsProvider returns Prometheus metrics if Prometheus is enabled
// and no-op metrics otherwise.
func DefaultMetricsProvider(cfg *config.InstrumentationConfig) MetricsProvider {
	return func(magic uint32) *Metrics {
		if cfg.Prometheus {
			network := strconv.FormatUint(uint64(magic), 10)
			return &Metrics{
				p2p:       p2p.PrometheusMetrics(cfg.Namespace, "network", network),
				blocksync: blocksync.PrometheusMetrics(cfg.Namespace, "network", network),
				ledger:    ledger.PrometheusMetrics(cfg.Namespace, "network", network),
			}
		}
		return NopMetricsProvider()(magic)
	}
}

// NopMetricsProvider returns no-op metrics.
func NopMetricsProvider() MetricsProvider {
	return func(uint32) *Metrics {
		return &Metrics{
			p2p:       p2p.NopMetrics(),
			blocksync: blocksync.NopMetrics(),
			ledger:    ledger.NopMetrics(),
		}
	}
}

// OpenStore opens the database configured by cfg.
func OpenStore(cfg *config.Config) (*storage.DBStore, error) {
	db, err := config.DefaultDBProvider(&config.DBContext{ID: dbName, Config: cfg})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.DBBackend, err)
	}
	return storage.NewDBStore(db), nil
}

func peerManagerOptions(cfg *config.P2PConfig) p2p.PeerManagerOptions {
	return p2p.PeerManagerOptions{
		Seeds:            cfg.Seeds,
		ListenAddress:    cfg.ListenAddress,
		MinPeers:         cfg.MinPeers,
		MaxPeers:         cfg.MaxPeers,
		BlockedAddresses: cfg.BlockedAddresses,
		Peer: p2p.PeerOptions{
			Magic:            cfg.Magic,
			Nonce:            tmrand.Nonce(),
			UserAgent:        cfg.UserAgent,
			HandshakeTimeout: cfg.HandshakeTimeout,
			IdleTimeout:      cfg.ReadTimeout,
		},
		DialTimeout:           cfg.DialTimeout,
		FillInterval:          cfg.FillInterval,
		AddrQueryInterval:     cfg.AddrQueryInterval,
		HeightMonitorInterval: cfg.HeightMonitorInterval,
		MaxHeightStall:        cfg.MaxHeightStall,
	}
}

func syncerOptions(cfg *config.BlockSyncConfig) blocksync.Options {
	return blocksync.Options{
		BlockTimeout:    cfg.BlockTimeout,
		MaxCacheSize:    cfg.MaxCacheSize,
		MaxRequestBatch: cfg.MaxRequestBatch,
		SyncInterval:    cfg.SyncInterval,
	}
}
