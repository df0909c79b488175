package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	assert := assert.New(t)

	// set up some defaults
	cfg := DefaultConfig()
	assert.NotNil(cfg.P2P)
	assert.NotNil(cfg.BlockSync)
	assert.NotNil(cfg.Instrumentation)

	// check the root dir stuff...
	cfg.SetRoot("/foo")
	assert.Equal("/foo/data", cfg.DBDir())

	cfg.DBPath = "/opt/data"
	assert.Equal("/opt/data", cfg.DBDir())
}

func TestConfigValidateBasic(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.ValidateBasic())

	// tamper with block-timeout
	cfg.BlockSync.BlockTimeout = -10 * time.Second
	err := cfg.ValidateBasic()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[blocksync]")

	cfg = TestConfig()
	assert.NoError(t, cfg.ValidateBasic())
	cfg.P2P.MaxPeers = 0
	err = cfg.ValidateBasic()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[p2p]")
}

func TestBaseConfigValidateBasic(t *testing.T) {
	cfg := TestBaseConfig()
	assert.NoError(t, cfg.ValidateBasic())

	// tamper with log format
	cfg.LogFormat = "invalid"
	assert.Error(t, cfg.ValidateBasic())

	cfg = TestBaseConfig()
	cfg.DBBackend = "rocksdb"
	assert.Error(t, cfg.ValidateBasic())
}

func TestP2PConfigValidateBasic(t *testing.T) {
	testcases := map[string]struct {
		modify  func(*P2PConfig)
		wantErr bool
	}{
		"default":              {func(*P2PConfig) {}, false},
		"inbound disabled":     {func(c *P2PConfig) { c.ListenAddress = "" }, false},
		"bad laddr":            {func(c *P2PConfig) { c.ListenAddress = "10333" }, true},
		"zero max peers":       {func(c *P2PConfig) { c.MaxPeers = 0 }, true},
		"negative min peers":   {func(c *P2PConfig) { c.MinPeers = -1 }, true},
		"min above max":        {func(c *P2PConfig) { c.MinPeers = c.MaxPeers + 1 }, true},
		"negative dial":        {func(c *P2PConfig) { c.DialTimeout = -time.Second }, true},
		"negative stall":       {func(c *P2PConfig) { c.MaxHeightStall = -time.Second }, true},
		"negative fill":        {func(c *P2PConfig) { c.FillInterval = -time.Second }, true},
		"zero handshake works": {func(c *P2PConfig) { c.HandshakeTimeout = 0 }, false},
	}
	for name, tc := range testcases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			cfg := DefaultP2PConfig()
			tc.modify(cfg)
			if tc.wantErr {
				assert.Error(t, cfg.ValidateBasic())
			} else {
				assert.NoError(t, cfg.ValidateBasic())
			}
		})
	}
}

func TestBlockSyncConfigValidateBasic(t *testing.T) {
	testcases := map[string]struct {
		modify  func(*BlockSyncConfig)
		wantErr bool
	}{
		"default":            {func(*BlockSyncConfig) {}, false},
		"max batch":          {func(c *BlockSyncConfig) { c.MaxRequestBatch = 500 }, false},
		"batch too large":    {func(c *BlockSyncConfig) { c.MaxRequestBatch = 501 }, true},
		"negative cache":     {func(c *BlockSyncConfig) { c.MaxCacheSize = -1 }, true},
		"negative interval":  {func(c *BlockSyncConfig) { c.SyncInterval = -time.Second }, true},
		"negative timeout":   {func(c *BlockSyncConfig) { c.BlockTimeout = -time.Second }, true},
		"disabled is valid":  {func(c *BlockSyncConfig) { c.Enable = false }, false},
		"zero uses defaults": {func(c *BlockSyncConfig) { *c = BlockSyncConfig{} }, false},
	}
	for name, tc := range testcases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			cfg := DefaultBlockSyncConfig()
			tc.modify(cfg)
			if tc.wantErr {
				assert.Error(t, cfg.ValidateBasic())
			} else {
				assert.NoError(t, cfg.ValidateBasic())
			}
		})
	}
}

func TestInstrumentationConfigValidateBasic(t *testing.T) {
	cfg := TestInstrumentationConfig()
	assert.NoError(t, cfg.ValidateBasic())

	cfg.Prometheus = true
	cfg.PrometheusListenAddr = ""
	assert.Error(t, cfg.ValidateBasic())
}

func TestDefaultSeedsAreCopied(t *testing.T) {
	a, b := DefaultP2PConfig(), DefaultP2PConfig()
	a.Seeds[0] = "changed:1"
	assert.NotEqual(t, a.Seeds[0], b.Seeds[0])
}
