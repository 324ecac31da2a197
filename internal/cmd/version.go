package cmd

import (
	"fmt"
	"io"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
)

var versionExtended bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print the binary name and version. --extended adds the build stamp, platform and gofulmen/crucible versions.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		writeVersion(cmd.OutOrStdout(), versionExtended)
		return nil
	},
}

func writeVersion(w io.Writer, extended bool) {
	_, _ = fmt.Fprintf(w, "%s %s\n", GetAppIdentity().BinaryName, versionInfo.Version)
	if !extended {
		return
	}

	deps := crucible.GetVersion()
	for _, row := range [][2]string{
		{"Commit", versionInfo.Commit},
		{"Built", versionInfo.BuildDate},
		{"Go", runtime.Version()},
		{"Platform", runtime.GOOS + "/" + runtime.GOARCH},
		{"Gofulmen", deps.Gofulmen},
		{"Crucible", deps.Crucible},
	} {
		_, _ = fmt.Fprintf(w, "%s: %s\n", row[0], row[1])
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&versionExtended, "extended", "e", false, "show build and dependency details")
}
