// Package config loads the service configuration from an optional YAML file
// and COSTLEDGER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"costledger/internal/core/types"
	"costledger/internal/domain/accounts"
)

// Config holds all application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Accounts AccountsConfig `mapstructure:"accounts"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// AppConfig holds application-specific settings.
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Port string `mapstructure:"port"`
}

// IsDevelopment reports whether the service runs in development mode.
func (c AppConfig) IsDevelopment() bool { return c.Env == "development" }

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	DSN              string        `mapstructure:"dsn"`
	MaxConns         int32         `mapstructure:"max_conns"`
	MinConns         int32         `mapstructure:"min_conns"`
	MaxConnLifetime  time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `mapstructure:"max_conn_idle_time"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// HTTPConfig holds HTTP server timeouts.
type HTTPConfig struct {
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// PostingTimeout bounds one posting request including its unit.
	PostingTimeout time.Duration `mapstructure:"posting_timeout"`
}

// LedgerConfig holds journal governance settings.
type LedgerConfig struct {
	BalanceEpsilon string `mapstructure:"balance_epsilon"`
	Digits         int32  `mapstructure:"digits"`
	// ClosedUntil is an optional YYYY-MM-DD date; entries on or before it are refused.
	ClosedUntil string `mapstructure:"closed_until"`
}

// Epsilon parses BalanceEpsilon.
func (c LedgerConfig) Epsilon() (types.Money, error) {
	return types.NewMoneyFromString(c.BalanceEpsilon)
}

// ClosedUntilDate parses ClosedUntil; the zero time means no closed period.
func (c LedgerConfig) ClosedUntilDate() (time.Time, error) {
	if c.ClosedUntil == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, c.ClosedUntil)
}

// AccountsConfig holds the role fallback rules. Empty means built-in defaults.
type AccountsConfig struct {
	Rules []accounts.Rule `mapstructure:"rules"`
}

// AuditConfig holds posting audit settings.
type AuditConfig struct {
	CompressThreshold int `mapstructure:"compress_threshold"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration. Priority, highest first:
// COSTLEDGER_* environment variables, the YAML file, built-in defaults.
// An empty path searches ./config.yaml and ./config/config.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()
	applyDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix("COSTLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.Accounts.Rules) == 0 {
		cfg.Accounts.Rules = accounts.DefaultRules()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "costledger")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("database.statement_timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 60*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 30*time.Second)
	v.SetDefault("http.posting_timeout", 45*time.Second)

	v.SetDefault("ledger.balance_epsilon", "0.01")
	v.SetDefault("ledger.digits", 2)
	v.SetDefault("ledger.closed_until", "")

	v.SetDefault("audit.compress_threshold", 4096)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

func (c *Config) validate() error {
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required (COSTLEDGER_DATABASE_DSN)")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database.min_conns (%d) exceeds database.max_conns (%d)", c.Database.MinConns, c.Database.MaxConns)
	}
	if eps, err := c.Ledger.Epsilon(); err != nil || eps.IsNegative() {
		return fmt.Errorf("ledger.balance_epsilon must be a non-negative decimal, got %q", c.Ledger.BalanceEpsilon)
	}
	if c.Ledger.Digits < 0 || c.Ledger.Digits > 6 {
		return fmt.Errorf("ledger.digits must be within [0, 6], got %d", c.Ledger.Digits)
	}
	if _, err := c.Ledger.ClosedUntilDate(); err != nil {
		return fmt.Errorf("ledger.closed_until: %w", err)
	}
	if c.HTTP.PostingTimeout <= 0 {
		return errors.New("http.posting_timeout must be positive")
	}
	if _, err := accounts.CompileRules(c.Accounts.Rules); err != nil {
		return fmt.Errorf("accounts.rules: %w", err)
	}
	return nil
}
