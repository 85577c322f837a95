package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nethalo/tabproxy/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage tabproxy configuration",
}

var configInitCmd = &cobra.Command{
	Use:          "init",
	Short:        "Create config file interactively",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		path, err := configPath()
		if err != nil {
			return err
		}

		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(out, "Config file already exists at %s\n", path)
			fmt.Fprint(out, "Overwrite? [y/N]: ")
			reader := bufio.NewReader(cmd.InOrStdin())
			answer, _ := reader.ReadString('\n')
			if strings.TrimSpace(strings.ToLower(answer)) != "y" {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}
		}

		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		reader := bufio.NewReader(cmd.InOrStdin())

		fmt.Fprintln(out, "tabproxy configuration setup")
		fmt.Fprintln(out, "─────────────────────────────")
		fmt.Fprintln(out)

		fmt.Fprint(out, "Proxy listen address [0.0.0.0]: ")
		host, _ := reader.ReadString('\n')
		host = strings.TrimSpace(host)
		if host == "" {
			host = "0.0.0.0"
		}

		fmt.Fprint(out, "Proxy listen port [3306]: ")
		port, _ := reader.ReadString('\n')
		port = strings.TrimSpace(port)
		if port == "" {
			port = "3306"
		}

		fmt.Fprint(out, "Backend DSN (user:pass@tcp(host:port)/db), password omitted if blank: ")
		dsn, _ := reader.ReadString('\n')
		dsn = strings.TrimSpace(dsn)
		if dsn == "" {
			return fmt.Errorf("a backend DSN is required")
		}
		if !strings.Contains(dsn, "@") {
			password := config.PromptPassword("Backend password: ")
			dsn = fmt.Sprintf("user:%s@%s", password, dsn)
		}

		fmt.Fprint(out, "Default output format [text]: ")
		format, _ := reader.ReadString('\n')
		format = strings.TrimSpace(format)
		if format == "" {
			format = "text"
		}

		var body strings.Builder
		body.WriteString("# tabproxy configuration\n\n")
		body.WriteString("proxy:\n")
		body.WriteString(fmt.Sprintf("  host: %s\n", host))
		body.WriteString(fmt.Sprintf("  port: %s\n", port))
		body.WriteString("  max_connections: 100\n\n")
		body.WriteString("backend:\n")
		body.WriteString("  connection_type: native\n")
		body.WriteString(fmt.Sprintf("  connection_string: %q\n", dsn))
		body.WriteString("  pool_size: 1\n")
		body.WriteString("  timeout: 30s\n")
		body.WriteString("  pool_pre_ping: true\n\n")
		body.WriteString("security:\n")
		body.WriteString("  block_writes: true\n\n")
		body.WriteString("business_rules:\n")
		body.WriteString("  require_cob_date: true\n")
		body.WriteString("  date_columns: [cob_date, date_index]\n\n")
		body.WriteString("logging:\n")
		body.WriteString("  level: info\n")
		body.WriteString(fmt.Sprintf("  format: %s\n", format))

		if err := os.WriteFile(path, []byte(body.String()), 0600); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Fprintf(out, "\nConfig written to %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		path, err := configPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err != nil {
			fmt.Fprintln(out, "No config file found.")
			fmt.Fprintln(out, "Run 'tabproxy config init' to create one.")
			return nil
		}

		fmt.Fprintf(out, "Config file: %s\n\n", path)
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading config: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
