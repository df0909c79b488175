package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendermint/neosync/internal/p2p/payload"
	"github.com/tendermint/neosync/version"
)

var verbose bool

// VersionCmd shows the version of the node software.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !verbose {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Version)
			return err
		}

		values, err := json.MarshalIndent(struct {
			Neosync     string `json:"neosync"`
			UserAgent   string `json:"user_agent"`
			P2PProtocol uint32 `json:"p2p_protocol"`
		}{
			Neosync:     version.Version,
			UserAgent:   version.UserAgent(),
			P2PProtocol: payload.ProtocolVersion,
		}, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(values))
		return err
	},
}

func init() {
	VersionCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show protocol and library versions")
}
