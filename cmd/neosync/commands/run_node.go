package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendermint/neosync/config"
	"github.com/tendermint/neosync/libs/log"
	tmos "github.com/tendermint/neosync/libs/os"
	"github.com/tendermint/neosync/libs/service"
	"github.com/tendermint/neosync/node"
)

// ServiceProvider takes a config and a logger and returns a ready to go
// node.
type ServiceProvider func(*config.Config, log.Logger) (service.Service, error)

// DefaultNewNode builds a node from the config.
func DefaultNewNode(conf *config.Config, logger log.Logger) (service.Service, error) {
	return node.New(conf, logger)
}

// AddNodeFlags exposes some common configuration options on the command-line
// These are exposed for convenience of commands embedding a neosync node
func AddNodeFlags(cmd *cobra.Command, conf *config.Config) {
	// base flags
	cmd.Flags().String("db-backend", conf.DBBackend, "database backend: goleveldb | memdb")
	cmd.Flags().String("db-dir", conf.DBPath, "database directory")

	// p2p flags
	cmd.Flags().String(
		"p2p.laddr",
		conf.P2P.ListenAddress,
		"node listen address, empty to refuse inbound connections")
	cmd.Flags().StringSlice("p2p.seeds", conf.P2P.Seeds, "comma-delimited host:port seed nodes")
	cmd.Flags().Uint32("p2p.magic", conf.P2P.Magic, "network magic")
	cmd.Flags().Int("p2p.min-peers", conf.P2P.MinPeers, "number of peers below which poor addresses are retried")
	cmd.Flags().Int("p2p.max-peers", conf.P2P.MaxPeers, "maximum number of connected peers")

	// blocksync flags
	cmd.Flags().Bool("blocksync.enable", conf.BlockSync.Enable, "download blocks from peers")

	// instrumentation flags
	cmd.Flags().Bool("instrumentation.prometheus", conf.Instrumentation.Prometheus, "serve Prometheus metrics")
	cmd.Flags().String(
		"instrumentation.prometheus-listen-addr",
		conf.Instrumentation.PrometheusListenAddr,
		"address to serve Prometheus metrics on")
}

// NewRunNodeCmd returns the command that allows the CLI to start a node.
// It can be used with a custom node provider to support custom builds.
func NewRunNodeCmd(nodeProvider ServiceProvider, conf *config.Config, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Aliases: []string{"node", "run"},
		Short:   "Run the neosync node",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := nodeProvider(conf, logger)
			if err != nil {
				return fmt.Errorf("failed to create node: %w", err)
			}

			if err := n.Start(cmd.Context()); err != nil {
				return fmt.Errorf("failed to start node: %w", err)
			}

			logger.Info("started node", "node", n.String())

			// Stop upon receiving SIGTERM or CTRL-C.
			tmos.TrapSignal(logger, func() {
				if n.IsRunning() {
					if err := n.Stop(); err != nil {
						logger.Error("unable to stop the node", "error", err)
					}
				}
			})

			n.Wait()
			return nil
		},
	}

	AddNodeFlags(cmd, conf)
	return cmd
}
