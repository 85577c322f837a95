package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nethalo/tabproxy/internal/diag"
)

var diagSocketFlag string

var diagCmd = &cobra.Command{
	Use:          "diag",
	Short:        "Show pool and session status for a running proxy",
	SilenceUsage: true,
	RunE:         runDiag,
}

func init() {
	rootCmd.AddCommand(diagCmd)
	diagCmd.Flags().StringVar(&diagSocketFlag, "socket", "", "diagnostic socket path (default $HOME/.tabproxy/tabproxy.sock)")
}

func runDiag(cmd *cobra.Command, args []string) error {
	socketPath := diagSocketFlag
	if socketPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		socketPath = filepath.Join(home, ".tabproxy", "tabproxy.sock")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snapshot, err := diag.Fetch(ctx, socketPath)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w (is `tabproxy serve` running?)", socketPath, err)
	}

	format, _ := cmd.Flags().GetString("format")
	renderer := diag.NewRenderer(format, os.Stdout)
	renderer.RenderSnapshot(snapshot)
	return nil
}
