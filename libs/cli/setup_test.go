package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestBindFlagsLoadViperReadsConfigFile(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, "config"), 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(home, "config", "config.toml"),
		[]byte("log-level = \"debug\"\n[p2p]\nmax-peers = 7\n"),
		0644,
	))

	var seen string
	cmd := &cobra.Command{
		Use: "test",
		RunE: func(cmd *cobra.Command, args []string) error {
			seen = viper.GetString("log-level")
			return nil
		},
	}
	cmd = PrepareBaseCmd(cmd, "NEOSYNC", home)
	cmd.SetArgs([]string{"--home", home})

	require.NoError(t, cmd.Execute())
	require.Equal(t, "debug", seen)
	require.Equal(t, 7, viper.GetInt("p2p.max-peers"))
}

func TestBindFlagsLoadViperMissingConfig(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	cmd = PrepareBaseCmd(cmd, "NEOSYNC", t.TempDir())
	cmd.SetArgs(nil)

	require.NoError(t, cmd.Execute())
}
