package main

import (
	"os"

	"github.com/tendermint/neosync/cmd/neosync/commands"
	"github.com/tendermint/neosync/config"
	"github.com/tendermint/neosync/libs/cli"
	"github.com/tendermint/neosync/libs/log"
)

func main() {
	conf := config.DefaultConfig()
	logger := log.MustNewDefaultLogger(conf.LogFormat, conf.LogLevel)

	rootCmd := commands.RootCommand(conf, logger)
	rootCmd.AddCommand(
		commands.MakeInitCommand(conf, logger),
		commands.MakeShowHeightCommand(conf, logger),
		commands.MakeStorageCommand(conf, logger),
		commands.VersionCmd,
	)

	// Create & start node
	rootCmd.AddCommand(commands.NewRunNodeCmd(commands.DefaultNewNode, conf, logger))

	cmd := cli.Executor{Command: rootCmd}
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
