package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"vitess.io/vitess/go/mysql"

	"github.com/nethalo/tabproxy/internal/backend"
	"github.com/nethalo/tabproxy/internal/config"
	"github.com/nethalo/tabproxy/internal/diag"
	"github.com/nethalo/tabproxy/internal/orchestrator"
	"github.com/nethalo/tabproxy/internal/statement"
	"github.com/nethalo/tabproxy/internal/synth"
	"github.com/nethalo/tabproxy/internal/wire"
)

var (
	serveLogLevel string
	serveDiagSock string
	serveVersion  = "8.0.34-tabproxy"
)

var serveCmd = &cobra.Command{
	Use:          "serve",
	Short:        "Run the proxy, accepting Tableau connections and forwarding to the backend",
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "override logging.level from the config file")
	serveCmd.Flags().StringVar(&serveDiagSock, "diag-socket", "", "override the diagnostic socket path (default $HOME/.tabproxy/tabproxy.sock)")
}

func runServe(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("config parse error: %w", err)
	}
	if serveLogLevel != "" {
		cfg.Logging.Level = serveLogLevel
	}

	logger, closeLog, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	if !strings.Contains(cfg.Backend.ConnectionString, "@") {
		password := config.PromptPassword("Backend password: ")
		cfg.Backend.ConnectionString = fmt.Sprintf("user:%s@%s", password, cfg.Backend.ConnectionString)
	}

	pool, err := backend.NewPool(backend.ConnectionConfig{
		DSN:          cfg.Backend.ConnectionString,
		TLSMode:      cfg.Backend.TLSMode,
		TLSCA:        cfg.Backend.TLSCA,
		PoolSize:     cfg.Backend.PoolSize,
		Timeout:      cfg.Backend.Timeout,
		PrePing:      cfg.Backend.PoolPrePing,
		RecycleAfter: cfg.Backend.PoolRecycle,
	}, logger)
	if err != nil {
		return fmt.Errorf("backend initial probe failed: %w", err)
	}
	defer pool.Close()

	gateway := backend.NewGateway(pool, logger)
	orchCfg := cfg.OrchestratorConfig()
	serverInfo := synth.ServerInfo{ServerVersion: serveVersion}

	ring := diag.NewRing(200)
	handler := wire.NewHandler(func() *orchestrator.Orchestrator {
		return orchestrator.New(orchCfg, gateway, logger, serverInfo)
	}, cfg.Backend.Timeout, logger)
	handler.OnResult(func(result statement.PipelineResult) {
		ring.Add(diag.RewriteEntry{
			StatementID: result.StatementID,
			Rewrites:    result.Rewrites,
			Success:     result.Success,
		})
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	diagSocket := resolveDiagSocket()
	if diagSocket != "" {
		provider := &servingProvider{pool: pool, handler: handler, ring: ring}
		go func() {
			if err := diag.ListenAndServe(ctx, diagSocket, provider, logger); err != nil {
				logger.Warn("diagnostic socket stopped", "err", err)
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Proxy.Host, cfg.Proxy.Port)
	authServer := mysql.NewAuthServerNone()
	listener, err := mysql.NewListener("tcp", addr, authServer, handler, 0, 0, false, 0)
	if err != nil {
		return fmt.Errorf("bind failed: %w", err)
	}

	logger.Info("tabproxy listening", "addr", addr)
	go listener.Accept()

	<-ctx.Done()
	logger.Info("shutting down, draining in-flight statements", "grace_period", cfg.Backend.Timeout)
	listener.Close()
	drainSessions(handler, cfg.Backend.Timeout, logger)

	return nil
}

// drainSessions polls the handler's live session count until it reaches
// zero or timeout elapses, giving in-flight statements a bounded window to
// finish before the deferred pool.Close() runs.
func drainSessions(handler *wire.Handler, timeout time.Duration, logger *slog.Logger) {
	if timeout <= 0 {
		return
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for time.Now().Before(deadline) {
		if handler.SessionCount() == 0 {
			return
		}
		<-ticker.C
	}
	if n := handler.SessionCount(); n > 0 {
		logger.Warn("grace period expired with sessions still active", "sessions", n)
	}
}

func resolveDiagSocket() string {
	if serveDiagSock != "" {
		return serveDiagSock
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	dir := filepath.Join(home, ".tabproxy")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return ""
	}
	return filepath.Join(dir, "tabproxy.sock")
}

// servingProvider adapts the live pool/handler/ring triple into
// internal/diag.Provider without either package importing the other.
type servingProvider struct {
	pool    *backend.Pool
	handler *wire.Handler
	ring    *diag.Ring
}

func (p *servingProvider) PoolStats() diag.PoolStats {
	inUse, capacity, waiting := p.pool.InFlight()
	return diag.PoolStats{InUse: inUse, Capacity: capacity, Waiting: waiting}
}

func (p *servingProvider) SessionCount() int { return p.handler.SessionCount() }

func (p *servingProvider) RecentRewrites() []diag.RewriteEntry { return p.ring.Snapshot() }

// newLogger builds the slog.Logger spec §10's logging.level/file/json
// config controls, returning a closer for the optional log file.
func newLogger(cfg config.LoggingConfig) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var dest io.Writer = os.Stderr
	closer := func() {}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file %q: %w", cfg.File, err)
		}
		dest = f
		closer = func() { f.Close() }
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(dest, opts)), closer, nil
	}
	return slog.New(slog.NewTextHandler(dest, opts)), closer, nil
}
