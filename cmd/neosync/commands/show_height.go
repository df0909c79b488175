package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendermint/neosync/config"
	"github.com/tendermint/neosync/internal/ledger"
	"github.com/tendermint/neosync/libs/log"
	"github.com/tendermint/neosync/node"
)

// MakeShowHeightCommand returns the command printing the index of the last
// persisted block, -1 for an empty chain.
func MakeShowHeightCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "show-height",
		Short: "Show the height of the local chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withChain(conf, logger, func(chain *ledger.Blockchain) error {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), chain.Height())
				return err
			})
		},
	}
}

// withChain opens the local chain for the duration of fn. The node must
// not be running against the same database.
func withChain(conf *config.Config, logger log.Logger, fn func(*ledger.Blockchain) error) error {
	store, err := node.OpenStore(conf)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close store", "err", err)
		}
	}()

	chain, err := ledger.NewBlockchain(logger, store, nil)
	if err != nil {
		return err
	}
	return fn(chain)
}
