package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendermint/neosync/config"
	"github.com/tendermint/neosync/internal/ledger"
	"github.com/tendermint/neosync/libs/log"
)

// MakeStorageCommand returns the command group inspecting contract storage.
func MakeStorageCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Inspect contract storage",
	}
	cmd.AddCommand(makeStorageFindCommand(conf, logger))
	return cmd
}

func makeStorageFindCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	var (
		id        int32
		prefixHex string
	)
	cmd := &cobra.Command{
		Use:   "find",
		Short: "List the storage entries of a contract under a key prefix",
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix, err := hex.DecodeString(prefixHex)
			if err != nil {
				return fmt.Errorf("invalid prefix %q: %w", prefixHex, err)
			}

			return withChain(conf, logger, func(chain *ledger.Blockchain) error {
				found, err := chain.FindStorage(id, prefix)
				if err != nil {
					return err
				}
				for _, kv := range found {
					if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%x %x const=%t\n",
						kv.Key.Key, kv.Value.Value, kv.Value.IsConstant); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().Int32Var(&id, "id", 0, "contract id")
	cmd.Flags().StringVar(&prefixHex, "prefix", "", "hex encoded key prefix")
	return cmd
}
