package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print tabproxy version",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "tabproxy %s (commit: %s, built: %s)\n\n", Version, CommitSHA, BuildDate)
		fmt.Fprintln(out, "Speaks MySQL wire protocol to clients; requires a native")
		fmt.Fprintln(out, "github.com/go-sql-driver/mysql-compatible backend.")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
