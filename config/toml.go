package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/creachadair/atomicfile"

	tmos "github.com/tendermint/neosync/libs/os"
	tmrand "github.com/tendermint/neosync/libs/rand"
)

// defaultDirPerm is the default permissions used when creating directories.
const defaultDirPerm = 0700

var configTemplate *template.Template

func init() {
	var err error
	tmpl := template.New("configFileTemplate").Funcs(template.FuncMap{
		"StringsJoin": strings.Join,
	})
	if configTemplate, err = tmpl.Parse(defaultConfigTemplate); err != nil {
		panic(err)
	}
}

/****** these are for production settings ***********/

// EnsureRoot creates the root, config, and data directories if they don't exist,
// and panics if it fails.
func EnsureRoot(rootDir string) {
	if err := tmos.EnsureDir(rootDir, defaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultConfigDir), defaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultDataDir), defaultDirPerm); err != nil {
		panic(err.Error())
	}
}

// ConfigFilePath returns the path of the config file under rootDir.
func ConfigFilePath(rootDir string) string {
	return filepath.Join(rootDir, defaultConfigFilePath)
}

// WriteConfigFile renders config using the template and writes it to
// the config file under rootDir. It is called by the init command.
func WriteConfigFile(rootDir string, config *Config) error {
	return config.WriteToTemplate(ConfigFilePath(rootDir))
}

// WriteToTemplate writes the config to the exact file specified by
// the path, in the default toml template and does not mangle the path
// or filename at all. The file is replaced atomically.
func (cfg *Config) WriteToTemplate(path string) error {
	var buffer bytes.Buffer

	if err := configTemplate.Execute(&buffer, cfg); err != nil {
		return err
	}

	if _, err := atomicfile.WriteAll(path, &buffer, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// WriteDefaultConfigFileIfNone writes the default config unless a config
// file already exists under rootDir.
func WriteDefaultConfigFileIfNone(rootDir string) error {
	if !tmos.FileExists(ConfigFilePath(rootDir)) {
		return WriteConfigFile(rootDir, DefaultConfig())
	}
	return nil
}

// Note: any changes to the comments/variables/mapstructure
// must be reflected in the appropriate struct in config/config.go
const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

# NOTE: Any path below can be absolute (e.g. "/var/neosync/data") or
# relative to the home directory (e.g. "data"). The home directory is
# "$HOME/.neosync" by default, but could be changed via $NEOSYNC_HOME env
# variable or --home cmd flag.

#######################################################################
###                   Main Base Config Options                      ###
#######################################################################

# Database backend: goleveldb | memdb
# * goleveldb (github.com/syndtr/goleveldb - most popular implementation)
#   - pure go
#   - stable
# * memdb
#   - in memory, lost on restart
db-backend = "{{ .BaseConfig.DBBackend }}"

# Database directory
db-dir = "{{ js .BaseConfig.DBPath }}"

# Output level for logging: debug | info | error
log-level = "{{ .BaseConfig.LogLevel }}"

# Output format: 'plain' (colored text) or 'json'
log-format = "{{ .BaseConfig.LogFormat }}"


#######################################################
###           P2P Configuration Options             ###
#######################################################
[p2p]

# Address to listen for incoming connections, empty to disable
laddr = "{{ .P2P.ListenAddress }}"

# host:port seed nodes
seeds = [{{ range .P2P.Seeds }}{{ printf "%q, " . }}{{end}}]

# Network magic, peers announcing another network are rejected
magic = {{ .P2P.Magic }}

# Number of peers below which poor addresses are recycled
min-peers = {{ .P2P.MinPeers }}

# Maximum number of connected peers
max-peers = {{ .P2P.MaxPeers }}

# Time to complete the version exchange
handshake-timeout = "{{ .P2P.HandshakeTimeout }}"

# Time to wait for a message before checking for shutdown
read-timeout = "{{ .P2P.ReadTimeout }}"

# Time to establish an outbound connection
dial-timeout = "{{ .P2P.DialTimeout }}"

# How often to dial new peers
fill-interval = "{{ .P2P.FillInterval }}"

# How often to ask peers for addresses
addr-query-interval = "{{ .P2P.AddrQueryInterval }}"

# How often to check the peers' heights
height-monitor-interval = "{{ .P2P.HeightMonitorInterval }}"

# Time a peer behind us may go without its height advancing
max-height-stall = "{{ .P2P.MaxHeightStall }}"

# Addresses never connected to
blocked-addresses = [{{ range .P2P.BlockedAddresses }}{{ printf "%q, " . }}{{end}}]

# User agent announced to peers
user-agent = "{{ .P2P.UserAgent }}"


#######################################################
###       Block Sync Configuration Options          ###
#######################################################
[blocksync]

# If this node is behind the network, download blocks from peers
enable = {{ .BlockSync.Enable }}

# Time a block request may stay unanswered before it is retried
block-timeout = "{{ .BlockSync.BlockTimeout }}"

# Maximum number of received blocks waiting to be persisted
max-cache-size = {{ .BlockSync.MaxCacheSize }}

# Maximum number of blocks asked in a single request (at most 500)
max-request-batch = {{ .BlockSync.MaxRequestBatch }}

# How often timed out requests are retried and new ones sent
sync-interval = "{{ .BlockSync.SyncInterval }}"


#######################################################
###       Instrumentation Configuration Options     ###
#######################################################
[instrumentation]

# When true, Prometheus metrics are served under /metrics on
# PrometheusListenAddr.
# Check out the documentation for the list of available metrics.
prometheus = {{ .Instrumentation.Prometheus }}

# Address to listen for Prometheus collector(s) connections
prometheus-listen-addr = "{{ .Instrumentation.PrometheusListenAddr }}"

# Instrumentation namespace
namespace = "{{ .Instrumentation.Namespace }}"
`

/****** these are for test settings ***********/

// ResetTestRoot creates a unique test directory under dir holding a
// default config file and returns a test config rooted there.
func ResetTestRoot(dir, testName string) (*Config, error) {
	// create a unique, concurrency-safe test directory under os.TempDir()
	rootDir, err := os.MkdirTemp(dir, fmt.Sprintf("%s_", testName))
	if err != nil {
		return nil, err
	}
	// ensure config and data subdirs are created
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultConfigDir), defaultDirPerm); err != nil {
		return nil, err
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultDataDir), defaultDirPerm); err != nil {
		return nil, err
	}

	// Write default config file if missing.
	if err := WriteDefaultConfigFileIfNone(rootDir); err != nil {
		return nil, err
	}

	config := TestConfig().SetRoot(rootDir)
	config.Instrumentation.Namespace = fmt.Sprintf("%s_%s", testName, tmrand.Str(16))
	return config, nil
}
