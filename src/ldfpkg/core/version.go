package core

import (
	"fmt"

	"github.com/bitswalk/ldfpkg/src/ldfpkg/output"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := format()
		if err != nil {
			return err
		}
		if f != output.FormatTable {
			return output.Print(cmd.OutOrStdout(), f, VersionInfo.Map(), nil, nil)
		}
		fmt.Fprintln(cmd.OutOrStdout(), VersionInfo.Full())
		return nil
	},
}
