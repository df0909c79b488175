package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"time"

	"github.com/tendermint/neosync/internal/p2p/payload"
	"github.com/tendermint/neosync/version"
)

const (
	// LogFormatPlain is a format for colored text
	LogFormatPlain = "plain"
	// LogFormatText is an alias for LogFormatPlain
	LogFormatText = "text"
	// LogFormatJSON is a format for json output
	LogFormatJSON = "json"

	// DefaultLogLevel defines a default log level as INFO.
	DefaultLogLevel = "info"

	// MainNetMagic is the network magic of the public main net.
	MainNetMagic = 7630401
)

// NOTE: Most of the structs & relevant comments + the
// default configuration options were used to manually
// generate the config.toml. Please reflect any changes
// made here in the defaultConfigTemplate constant in
// config/toml.go
// NOTE: libs/cli must know to look in the config dir!
var (
	DefaultNeosyncDir = ".neosync"
	defaultConfigDir  = "config"
	defaultDataDir    = "data"

	defaultConfigFileName = "config.toml"
	defaultConfigFilePath = filepath.Join(defaultConfigDir, defaultConfigFileName)

	defaultSeeds = []string{
		"seed1.neo.org:10333",
		"seed2.neo.org:10333",
		"seed3.neo.org:10333",
		"seed4.neo.org:10333",
		"seed5.neo.org:10333",
	}
)

// Config defines the top level configuration for a neosync node
type Config struct {
	// Top level options use an anonymous struct
	BaseConfig `mapstructure:",squash"`

	// Options for services
	P2P             *P2PConfig             `mapstructure:"p2p"`
	BlockSync       *BlockSyncConfig       `mapstructure:"blocksync"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation"`
}

// DefaultConfig returns a default configuration for a neosync node
func DefaultConfig() *Config {
	return &Config{
		BaseConfig:      DefaultBaseConfig(),
		P2P:             DefaultP2PConfig(),
		BlockSync:       DefaultBlockSyncConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// TestConfig returns a configuration that can be used for testing
func TestConfig() *Config {
	return &Config{
		BaseConfig:      TestBaseConfig(),
		P2P:             TestP2PConfig(),
		BlockSync:       TestBlockSyncConfig(),
		Instrumentation: TestInstrumentationConfig(),
	}
}

// SetRoot sets the RootDir for all Config structs
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.P2P.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [p2p] section: %w", err)
	}
	if err := cfg.BlockSync.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [blocksync] section: %w", err)
	}
	if err := cfg.Instrumentation.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [instrumentation] section: %w", err)
	}
	return nil
}

//-----------------------------------------------------------------------------
// BaseConfig

// BaseConfig defines the base configuration for a neosync node
type BaseConfig struct { //nolint: maligned
	// The root directory for all data.
	// This should be set in viper so it can unmarshal into this struct
	RootDir string `mapstructure:"home"`

	// Output level for logging
	LogLevel string `mapstructure:"log-level"`

	// Output format: 'plain' (colored text) or 'json'
	LogFormat string `mapstructure:"log-format"`

	// Database backend: goleveldb | memdb
	DBBackend string `mapstructure:"db-backend"`

	// Database directory
	DBPath string `mapstructure:"db-dir"`
}

// DefaultBaseConfig returns a default base configuration for a neosync node
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		LogLevel:  DefaultLogLevel,
		LogFormat: LogFormatPlain,
		DBBackend: "goleveldb",
		DBPath:    defaultDataDir,
	}
}

// TestBaseConfig returns a base configuration for testing a neosync node
func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.DBBackend = "memdb"
	return cfg
}

// DBDir returns the full path to the database directory
func (cfg BaseConfig) DBDir() string {
	return rootify(cfg.DBPath, cfg.RootDir)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.LogFormat {
	case LogFormatPlain, LogFormatText, LogFormatJSON:
	default:
		return errors.New("unknown log format (must be 'plain', 'text' or 'json')")
	}
	switch cfg.DBBackend {
	case "goleveldb", "memdb":
	default:
		return fmt.Errorf("unsupported db backend %q (must be 'goleveldb' or 'memdb')", cfg.DBBackend)
	}
	return nil
}

//-----------------------------------------------------------------------------
// P2PConfig

// P2PConfig defines the configuration options for the peer-to-peer network
type P2PConfig struct { //nolint: maligned
	// Address to listen for incoming connections; empty disables inbound
	ListenAddress string `mapstructure:"laddr"`

	// Addresses dialed when the address book has no candidates left
	Seeds []string `mapstructure:"seeds"`

	// Network magic; peers announcing another one are rejected
	Magic uint32 `mapstructure:"magic"`

	// Minimum and maximum number of connected peers
	MinPeers int `mapstructure:"min-peers"`
	MaxPeers int `mapstructure:"max-peers"`

	// Time to complete the version exchange
	HandshakeTimeout time.Duration `mapstructure:"handshake-timeout"`

	// Time the read loop waits for a message before checking for shutdown
	ReadTimeout time.Duration `mapstructure:"read-timeout"`

	// Time to establish an outbound TCP connection
	DialTimeout time.Duration `mapstructure:"dial-timeout"`

	// Cadence of the pool maintenance tasks
	FillInterval          time.Duration `mapstructure:"fill-interval"`
	AddrQueryInterval     time.Duration `mapstructure:"addr-query-interval"`
	HeightMonitorInterval time.Duration `mapstructure:"height-monitor-interval"`

	// Time a peer behind us may go without advancing its height
	MaxHeightStall time.Duration `mapstructure:"max-height-stall"`

	// Addresses never dialed nor accepted into the address book
	BlockedAddresses []string `mapstructure:"blocked-addresses"`

	// User agent announced in the version message
	UserAgent string `mapstructure:"user-agent"`
}

// DefaultP2PConfig returns a default configuration for the peer-to-peer layer
func DefaultP2PConfig() *P2PConfig {
	return &P2PConfig{
		ListenAddress:         "0.0.0.0:10333",
		Seeds:                 append([]string(nil), defaultSeeds...),
		Magic:                 MainNetMagic,
		MinPeers:              5,
		MaxPeers:              10,
		HandshakeTimeout:      3 * time.Second,
		ReadTimeout:           time.Second,
		DialTimeout:           5 * time.Second,
		FillInterval:          10 * time.Second,
		AddrQueryInterval:     15 * time.Second,
		HeightMonitorInterval: 30 * time.Second,
		MaxHeightStall:        2 * time.Minute,
		BlockedAddresses:      []string{},
		UserAgent:             version.UserAgent(),
	}
}

// TestP2PConfig returns a configuration for testing the peer-to-peer layer
func TestP2PConfig() *P2PConfig {
	cfg := DefaultP2PConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	cfg.Seeds = []string{}
	cfg.Magic = 0x4e454f
	cfg.MinPeers = 1
	cfg.DialTimeout = time.Second
	cfg.FillInterval = 100 * time.Millisecond
	cfg.AddrQueryInterval = time.Second
	cfg.HeightMonitorInterval = time.Second
	cfg.ReadTimeout = 100 * time.Millisecond
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *P2PConfig) ValidateBasic() error {
	if cfg.ListenAddress != "" {
		if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
			return fmt.Errorf("invalid laddr: %w", err)
		}
	}
	if cfg.MaxPeers <= 0 {
		return errors.New("max-peers must be positive")
	}
	if cfg.MinPeers < 0 {
		return errors.New("min-peers can't be negative")
	}
	if cfg.MinPeers > cfg.MaxPeers {
		return errors.New("min-peers can't be greater than max-peers")
	}
	for name, d := range map[string]time.Duration{
		"handshake-timeout":       cfg.HandshakeTimeout,
		"read-timeout":            cfg.ReadTimeout,
		"dial-timeout":            cfg.DialTimeout,
		"fill-interval":           cfg.FillInterval,
		"addr-query-interval":     cfg.AddrQueryInterval,
		"height-monitor-interval": cfg.HeightMonitorInterval,
		"max-height-stall":        cfg.MaxHeightStall,
	} {
		if d < 0 {
			return fmt.Errorf("%s can't be negative", name)
		}
	}
	return nil
}

//-----------------------------------------------------------------------------
// BlockSyncConfig

// BlockSyncConfig defines the configuration for the block synchronization
// service
type BlockSyncConfig struct {
	// If true, the node downloads blocks from its peers
	Enable bool `mapstructure:"enable"`

	// Time a block request may stay unanswered before it is retried
	BlockTimeout time.Duration `mapstructure:"block-timeout"`

	// Maximum number of received blocks waiting to be persisted
	MaxCacheSize int `mapstructure:"max-cache-size"`

	// Maximum number of heights asked in one request
	MaxRequestBatch int `mapstructure:"max-request-batch"`

	// Cadence of the timeout sweep and the request fill
	SyncInterval time.Duration `mapstructure:"sync-interval"`
}

// DefaultBlockSyncConfig returns a default configuration for the block
// synchronization service
func DefaultBlockSyncConfig() *BlockSyncConfig {
	return &BlockSyncConfig{
		Enable:          true,
		BlockTimeout:    5 * time.Second,
		MaxCacheSize:    500,
		MaxRequestBatch: 500,
		SyncInterval:    time.Second,
	}
}

// TestBlockSyncConfig returns a default configuration for the block
// synchronization service
func TestBlockSyncConfig() *BlockSyncConfig {
	cfg := DefaultBlockSyncConfig()
	cfg.BlockTimeout = time.Second
	cfg.SyncInterval = 50 * time.Millisecond
	return cfg
}

// ValidateBasic performs basic validation.
func (cfg *BlockSyncConfig) ValidateBasic() error {
	if cfg.BlockTimeout < 0 {
		return errors.New("block-timeout can't be negative")
	}
	if cfg.MaxCacheSize < 0 {
		return errors.New("max-cache-size can't be negative")
	}
	if cfg.MaxRequestBatch < 0 || cfg.MaxRequestBatch > payload.MaxBlocksCount {
		return fmt.Errorf("max-request-batch must be between 0 and %d", payload.MaxBlocksCount)
	}
	if cfg.SyncInterval < 0 {
		return errors.New("sync-interval can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// InstrumentationConfig

// InstrumentationConfig defines the configuration for metrics reporting.
type InstrumentationConfig struct {
	// When true, Prometheus metrics are served under /metrics on
	// PrometheusListenAddr.
	// Check out the documentation for the list of available metrics.
	Prometheus bool `mapstructure:"prometheus"`

	// Address to listen for Prometheus collector(s) connections.
	PrometheusListenAddr string `mapstructure:"prometheus-listen-addr"`

	// Instrumentation namespace.
	Namespace string `mapstructure:"namespace"`
}

// DefaultInstrumentationConfig returns a default configuration for metrics
// reporting.
func DefaultInstrumentationConfig() *InstrumentationConfig {
	return &InstrumentationConfig{
		Prometheus:           false,
		PrometheusListenAddr: ":26660",
		Namespace:            "neosync",
	}
}

// TestInstrumentationConfig returns a default configuration for metrics
// reporting.
func TestInstrumentationConfig() *InstrumentationConfig {
	return DefaultInstrumentationConfig()
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *InstrumentationConfig) ValidateBasic() error {
	if cfg.Prometheus && cfg.PrometheusListenAddr == "" {
		return errors.New("prometheus-listen-addr can't be empty when prometheus is enabled")
	}
	return nil
}

//-----------------------------------------------------------------------------
// Utils

// helper function to make config creation independent of root dir
func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
