// Package config loads and validates the proxy's configuration surface
// (spec §6): YAML via viper, with `${NAME[:-default]}` environment
// substitution applied as a pre-pass over the raw bytes before viper ever
// sees them.
package config

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/spf13/viper"

	"github.com/nethalo/tabproxy/internal/orchestrator"
	"github.com/nethalo/tabproxy/internal/policy"
)

// Config is the full configuration surface spec §6's table names, plus
// logging wiring (spec §10's ambient stack).
type Config struct {
	Proxy           ProxyConfig           `mapstructure:"proxy"`
	Backend         BackendConfig         `mapstructure:"backend"`
	Capabilities    CapabilitiesConfig    `mapstructure:"capabilities"`
	Transformations TransformationsConfig `mapstructure:"transformations"`
	BusinessRules   BusinessRulesConfig   `mapstructure:"business_rules"`
	Security        SecurityConfig        `mapstructure:"security"`
	Logging         LoggingConfig         `mapstructure:"logging"`
}

type ProxyConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type BackendConfig struct {
	ConnectionType   string        `mapstructure:"connection_type"` // "odbc" or "native"
	ConnectionString string        `mapstructure:"connection_string"`
	PoolSize         int           `mapstructure:"pool_size"`
	Timeout          time.Duration `mapstructure:"timeout"`
	PoolPrePing      bool          `mapstructure:"pool_pre_ping"`
	PoolRecycle      time.Duration `mapstructure:"pool_recycle"`
	TLSMode          string        `mapstructure:"tls_mode"`
	TLSCA            string        `mapstructure:"tls_ca"`
}

type CapabilitiesConfig struct {
	UnsupportedFeatures  []string `mapstructure:"unsupported_features"`
	UnsupportedFunctions []string `mapstructure:"unsupported_functions"`
}

type TransformationsConfig struct {
	UnwrapSubqueries bool `mapstructure:"unwrap_subqueries"`
	AutoFixGroupBy   bool `mapstructure:"auto_fix_group_by"`
	MaxSubqueryDepth int  `mapstructure:"max_subquery_depth"`
}

type BusinessRulesConfig struct {
	RequireCOBDate bool     `mapstructure:"require_cob_date"`
	DateColumns    []string `mapstructure:"date_columns"`
}

type SecurityConfig struct {
	BlockWrites bool `mapstructure:"block_writes"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
	JSON  bool   `mapstructure:"json"`
}

// Default mirrors the defaults spec §6 and §9's resolved Open Question
// call out explicitly — the same defaults internal/policy.DefaultConfig
// carries, duplicated here as the on-disk shape rather than imported,
// since a Config is what gets marshaled to/from YAML and policy.Config is
// what the orchestrator consumes internally.
func Default() Config {
	return Config{
		Proxy: ProxyConfig{Host: "0.0.0.0", Port: 3306, MaxConnections: 100},
		Backend: BackendConfig{
			ConnectionType: "native",
			PoolSize:       1,
			Timeout:        30 * time.Second,
			PoolPrePing:    true,
		},
		Capabilities: CapabilitiesConfig{
			UnsupportedFeatures:  []string{policy.FeatureJoins, policy.FeatureUnions, policy.FeatureWindowFunctions, policy.FeatureCountFunction},
			UnsupportedFunctions: []string{"COUNT"},
		},
		Transformations: TransformationsConfig{
			UnwrapSubqueries: true,
			AutoFixGroupBy:   true,
			MaxSubqueryDepth: 2,
		},
		BusinessRules: BusinessRulesConfig{
			RequireCOBDate: true,
			DateColumns:    []string{"cob_date", "date_index"},
		},
		Security: SecurityConfig{BlockWrites: true},
		Logging:  LoggingConfig{Level: "info"},
	}
}

// envSubstPattern matches `${NAME}` and `${NAME:-default}`, the shell-style
// substitution form spec §6 requires and viper has no native support for.
var envSubstPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnv runs the `${NAME[:-default]}` pre-pass over raw config bytes,
// the way the teacher's initConfig maps nested viper keys onto flat ones —
// here generalized into a text-level substitution step that runs before
// viper ever parses the document.
func ExpandEnv(raw []byte) []byte {
	return envSubstPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		groups := envSubstPattern.FindSubmatch(match)
		name := string(groups[1])
		def := string(groups[3])
		if v, ok := os.LookupEnv(name); ok {
			return []byte(v)
		}
		return []byte(def)
	})
}

// Load reads path, applies ExpandEnv, and unmarshals into a Config seeded
// with Default()'s values so a partial YAML document still produces a
// complete, valid Config — the same "flags/env override file, file
// overrides built-in defaults" layering the teacher's initConfig performs
// with viper.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %q: %w", path, err)
	}
	expanded := ExpandEnv(raw)

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(expanded)); err != nil {
		return Config{}, fmt.Errorf("parsing config %q: %w", path, err)
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the orchestrator/pool could not run
// safely — this is the config-parse-error exit path spec §6's CLI section
// names ("exit 1 on ... config parse error").
func (c Config) Validate() error {
	if c.Backend.ConnectionString == "" {
		return fmt.Errorf("backend.connection_string is required")
	}
	if c.Backend.PoolSize <= 0 {
		return fmt.Errorf("backend.pool_size must be positive")
	}
	if c.Backend.ConnectionType != "odbc" && c.Backend.ConnectionType != "native" {
		return fmt.Errorf("backend.connection_type must be %q or %q", "odbc", "native")
	}
	return nil
}

// PolicyConfig translates the on-disk capabilities/business_rules/security
// sections into the internal/policy.Config the gates actually run against.
func (c Config) PolicyConfig() policy.Config {
	return policy.Config{
		BlockWrites:          c.Security.BlockWrites,
		UnsupportedFeatures:  c.Capabilities.UnsupportedFeatures,
		UnsupportedFunctions: c.Capabilities.UnsupportedFunctions,
		RequireDateGate:      c.BusinessRules.RequireCOBDate,
		DateColumns:          c.BusinessRules.DateColumns,
	}
}

// OrchestratorConfig translates this Config into the subset
// internal/orchestrator.Config needs.
func (c Config) OrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		Policy:           c.PolicyConfig(),
		UnwrapSubqueries: c.Transformations.UnwrapSubqueries,
		AutoFixGroupBy:   c.Transformations.AutoFixGroupBy,
		MaxSubqueryDepth: c.Transformations.MaxSubqueryDepth,
		StatementTimeout: c.Backend.Timeout,
	}
}
