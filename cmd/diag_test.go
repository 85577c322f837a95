package cmd

import (
	"path/filepath"
	"testing"
)

func TestRunDiagFailsWithoutRunningProxy(t *testing.T) {
	diagSocketFlag = filepath.Join(t.TempDir(), "nonexistent.sock")
	defer func() { diagSocketFlag = "" }()

	if err := runDiag(diagCmd, nil); err == nil {
		t.Fatal("expected an error when no proxy is listening on the socket")
	}
}
