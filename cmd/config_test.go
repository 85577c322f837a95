package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigInitCmd_NewConfig(t *testing.T) {
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)
	cfgFile = ""

	input := "127.0.0.1\n3306\nuser:pass@tcp(127.0.0.1:3306)/reporting\ntext\n"
	oldStdin := os.Stdin
	defer func() { os.Stdin = oldStdin }()
	tmpInput, err := os.CreateTemp(tmpDir, "input")
	if err != nil {
		t.Fatalf("failed to create temp input file: %v", err)
	}
	defer tmpInput.Close()
	tmpInput.WriteString(input)
	tmpInput.Seek(0, 0)
	os.Stdin = tmpInput

	output := &bytes.Buffer{}
	configInitCmd.SetOut(output)
	configInitCmd.SetErr(output)

	if err := configInitCmd.RunE(configInitCmd, []string{}); err != nil {
		t.Fatalf("config init should succeed: %v", err)
	}

	path := filepath.Join(tmpDir, ".tabproxy", "config.yaml")
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config file should be created at %s: %v", path, err)
	}

	contentStr := string(content)
	expected := []string{
		"proxy:", "host: 127.0.0.1", "port: 3306",
		"backend:", "connection_string:", "user:pass@tcp(127.0.0.1:3306)/reporting",
		"security:", "block_writes: true",
		"business_rules:", "date_columns: [cob_date, date_index]",
	}
	for _, want := range expected {
		if !strings.Contains(contentStr, want) {
			t.Errorf("config should contain %q, content:\n%s", want, contentStr)
		}
	}

	fileInfo, err := os.Stat(path)
	if err != nil {
		t.Fatalf("failed to stat config file: %v", err)
	}
	if perm := fileInfo.Mode().Perm(); perm != 0600 {
		t.Errorf("config file permissions = %o, want 0600", perm)
	}
}

func TestConfigInitCmd_AlreadyExists_Abort(t *testing.T) {
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)
	cfgFile = ""

	configDir := filepath.Join(tmpDir, ".tabproxy")
	os.MkdirAll(configDir, 0700)
	path := filepath.Join(configDir, "config.yaml")
	os.WriteFile(path, []byte("existing: config"), 0600)

	input := "n\n"
	tmpInput, err := os.CreateTemp(tmpDir, "input")
	if err != nil {
		t.Fatalf("failed to create temp input: %v", err)
	}
	defer tmpInput.Close()
	tmpInput.WriteString(input)
	tmpInput.Seek(0, 0)
	oldStdin := os.Stdin
	os.Stdin = tmpInput
	defer func() { os.Stdin = oldStdin }()

	output := &bytes.Buffer{}
	configInitCmd.SetOut(output)
	configInitCmd.SetErr(output)

	if err := configInitCmd.RunE(configInitCmd, []string{}); err != nil {
		t.Fatalf("config init should handle abort gracefully: %v", err)
	}

	content, _ := os.ReadFile(path)
	if string(content) != "existing: config" {
		t.Error("config should not be overwritten when user aborts")
	}
	if !strings.Contains(output.String(), "Aborted") {
		t.Errorf("output should indicate abort, got: %s", output.String())
	}
}

func TestConfigInitCmd_RequiresDSN(t *testing.T) {
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)
	cfgFile = ""

	input := "127.0.0.1\n3306\n\n"
	tmpInput, err := os.CreateTemp(tmpDir, "input")
	if err != nil {
		t.Fatalf("failed to create temp input: %v", err)
	}
	defer tmpInput.Close()
	tmpInput.WriteString(input)
	tmpInput.Seek(0, 0)
	oldStdin := os.Stdin
	os.Stdin = tmpInput
	defer func() { os.Stdin = oldStdin }()

	output := &bytes.Buffer{}
	configInitCmd.SetOut(output)
	configInitCmd.SetErr(output)

	if err := configInitCmd.RunE(configInitCmd, []string{}); err == nil {
		t.Fatal("expected an error when no backend DSN is provided")
	}
}

func TestConfigShowCmd_NoConfig(t *testing.T) {
	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)
	cfgFile = ""

	output := &bytes.Buffer{}
	configShowCmd.SetOut(output)
	configShowCmd.SetErr(output)

	if err := configShowCmd.RunE(configShowCmd, []string{}); err != nil {
		t.Fatalf("config show should handle missing config: %v", err)
	}

	result := output.String()
	if !strings.Contains(result, "No config file found") {
		t.Errorf("should indicate no config found, got: %s", result)
	}
	if !strings.Contains(result, "config init") {
		t.Errorf("should suggest running 'config init', got: %s", result)
	}
}

func TestConfigShowCmd_WithConfig(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "test-config.yaml")
	content := "backend:\n  connection_string: testdsn\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}
	cfgFile = path
	defer func() { cfgFile = "" }()

	output := &bytes.Buffer{}
	configShowCmd.SetOut(output)
	configShowCmd.SetErr(output)

	if err := configShowCmd.RunE(configShowCmd, []string{}); err != nil {
		t.Fatalf("config show should succeed: %v", err)
	}

	result := output.String()
	if !strings.Contains(result, path) {
		t.Errorf("should show config file path, got: %s", result)
	}
	if !strings.Contains(result, "testdsn") {
		t.Errorf("should show config content, got: %s", result)
	}
}
