package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("TABPROXY_HOST", "10.0.0.5")
	os.Unsetenv("TABPROXY_MISSING")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain var", "host: ${TABPROXY_HOST}", "host: 10.0.0.5"},
		{"default used when unset", "host: ${TABPROXY_MISSING:-0.0.0.0}", "host: 0.0.0.0"},
		{"set var overrides default", "host: ${TABPROXY_HOST:-0.0.0.0}", "host: 10.0.0.5"},
		{"no substitution needed", "host: literal", "host: literal"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := string(ExpandEnv([]byte(tc.in)))
			if got != tc.want {
				t.Errorf("ExpandEnv(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestLoadAppliesDefaultsAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
backend:
  connection_string: "user:pass@tcp(127.0.0.1:3306)/reporting"
  pool_size: 4
business_rules:
  date_columns: [cob_date]
`
	if err := os.WriteFile(path, []byte(yaml), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.PoolSize != 4 {
		t.Errorf("pool_size = %d, want 4", cfg.Backend.PoolSize)
	}
	if cfg.Backend.ConnectionType != "native" {
		t.Errorf("connection_type default not applied: %q", cfg.Backend.ConnectionType)
	}
	if !cfg.Security.BlockWrites {
		t.Error("expected block_writes default to be true")
	}
	if len(cfg.BusinessRules.DateColumns) != 1 || cfg.BusinessRules.DateColumns[0] != "cob_date" {
		t.Errorf("unexpected date_columns: %v", cfg.BusinessRules.DateColumns)
	}
}

func TestLoadRejectsMissingConnectionString(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("proxy:\n  port: 3306\n"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing backend.connection_string")
	}
}

func TestLoadExpandsEnvBeforeParsing(t *testing.T) {
	t.Setenv("TABPROXY_DSN", "user:pass@tcp(127.0.0.1:3306)/reporting")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "backend:\n  connection_string: \"${TABPROXY_DSN}\"\n  pool_size: 1\n"
	if err := os.WriteFile(path, []byte(yaml), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.ConnectionString != "user:pass@tcp(127.0.0.1:3306)/reporting" {
		t.Errorf("unexpected connection string: %q", cfg.Backend.ConnectionString)
	}
}

func TestDefaultPolicyConfigMatchesPolicyDefaults(t *testing.T) {
	cfg := Default()
	pc := cfg.PolicyConfig()
	if !pc.RequireDateGate || len(pc.DateColumns) != 2 {
		t.Errorf("unexpected policy config: %+v", pc)
	}
}
