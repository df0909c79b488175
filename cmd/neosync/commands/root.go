package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tendermint/neosync/config"
	"github.com/tendermint/neosync/libs/cli"
	"github.com/tendermint/neosync/libs/log"
)

// EnvPrefix prefixes the environment variables overriding config keys,
// e.g. NEOSYNC_P2P_MAX_PEERS.
const EnvPrefix = "NEOSYNC"

// ParseConfig retrieves the default environment configuration,
// sets up the neosync root and ensures that the root exists
func ParseConfig(conf *config.Config) (*config.Config, error) {
	if err := viper.Unmarshal(conf); err != nil {
		return nil, err
	}

	conf.SetRoot(conf.RootDir)

	if err := conf.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("error in config file: %w", err)
	}
	return conf, nil
}

// RootCommand constructs the root command-line entry point for neosync.
func RootCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "neosync",
		Short: "Block synchronizing full node for NEO networks",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == VersionCmd.Name() {
				return nil
			}

			pconf, err := ParseConfig(conf)
			if err != nil {
				return err
			}
			*conf = *pconf
			config.EnsureRoot(conf.RootDir)
			return log.OverrideWithNewLogger(logger, conf.LogFormat, conf.LogLevel)
		},
	}
	cmd.PersistentFlags().String("log-level", conf.LogLevel, "log level")
	cmd.PersistentFlags().String("log-format", conf.LogFormat, "log format (plain | json)")
	defaultHome := os.ExpandEnv(filepath.Join("$HOME", config.DefaultNeosyncDir))
	return cli.PrepareBaseCmd(cmd, EnvPrefix, defaultHome)
}
