package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nethalo/tabproxy/internal/config"
)

func TestResolveDiagSocketHonorsFlag(t *testing.T) {
	serveDiagSock = "/tmp/explicit.sock"
	defer func() { serveDiagSock = "" }()

	if got := resolveDiagSocket(); got != "/tmp/explicit.sock" {
		t.Errorf("resolveDiagSocket() = %q, want explicit flag value", got)
	}
}

func TestResolveDiagSocketDefaultsUnderHome(t *testing.T) {
	serveDiagSock = ""
	origHome := os.Getenv("HOME")
	defer os.Setenv("HOME", origHome)
	tmpDir := t.TempDir()
	os.Setenv("HOME", tmpDir)

	got := resolveDiagSocket()
	want := filepath.Join(tmpDir, ".tabproxy", "tabproxy.sock")
	if got != want {
		t.Errorf("resolveDiagSocket() = %q, want %q", got, want)
	}
	if _, err := os.Stat(filepath.Dir(got)); err != nil {
		t.Errorf("expected socket directory to be created: %v", err)
	}
}

func TestNewLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tabproxy.log")
	logger, closeFn, err := newLogger(config.LoggingConfig{Level: "info", File: path})
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	defer closeFn()

	logger.Info("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected log file to contain output")
	}
}
