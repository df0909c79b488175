package commands

import (
	"github.com/spf13/cobra"

	"github.com/tendermint/neosync/config"
	"github.com/tendermint/neosync/libs/log"
	tmos "github.com/tendermint/neosync/libs/os"
)

// MakeInitCommand returns the command writing the config file of a new
// node home.
func MakeInitCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a neosync home directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			configFile := config.ConfigFilePath(conf.RootDir)
			if tmos.FileExists(configFile) {
				logger.Info("found config file", "path", configFile)
				return nil
			}
			if err := config.WriteConfigFile(conf.RootDir, conf); err != nil {
				return err
			}
			logger.Info("generated config file", "path", configFile)
			return nil
		},
	}
}
