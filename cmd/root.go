package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tabproxy",
	Short: "A MySQL-wire-protocol proxy that fronts a restricted-dialect backend for Tableau",
	Long: `tabproxy sits between Tableau and a backend that only accepts a narrow MySQL
dialect: no joins, no unions, no window functions, writes blocked by default.

It speaks real MySQL wire protocol to Tableau, classifies every statement
Tableau sends, rewrites or synthesizes what it can answer locally, rejects
what the backend genuinely cannot run, and forwards the rest unchanged.`,
}

// Execute is called by main.main(). It adds all child commands to the root
// command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tabproxy/config.yaml)")
	rootCmd.PersistentFlags().StringP("format", "f", "text", "Output format: text, plain, json, markdown")
}

// configPath resolves --config to a concrete path, falling back to the
// default location under $HOME the way the teacher's initConfig does.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving default config path: %w", err)
	}
	return home + "/.tabproxy/config.yaml", nil
}
