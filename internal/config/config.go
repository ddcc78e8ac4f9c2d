// ABOUTME: Configuration loading and parsing for the CelesteNet user tool
// ABOUTME: Supports YAML or TOML files with ${VAR} expansion, CNUT_ env overrides and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. CNUT_SERVER_HTTP_ADDR.
const EnvPrefix = "CNUT_"

// MinJWTSecretLength matches the token signer's minimum key size.
const MinJWTSecretLength = 32

// Config represents the complete tool configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" toml:"server" envPrefix:"SERVER_"`
	Storage    StorageConfig    `yaml:"storage" toml:"storage" envPrefix:"STORAGE_"`
	Auth       AuthConfig       `yaml:"auth" toml:"auth" envPrefix:"AUTH_"`
	CelesteNet CelesteNetConfig `yaml:"celestenet" toml:"celestenet" envPrefix:"CELESTENET_"`
	Display    DisplayConfig    `yaml:"display" toml:"display" envPrefix:"DISPLAY_"`
	Tailscale  TailscaleConfig  `yaml:"tailscale" toml:"tailscale" envPrefix:"TAILSCALE_"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging" envPrefix:"LOGGING_"`
}

// ServerConfig holds listener configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr" env:"HTTP_ADDR"`
	// GRPCAddr enables the key lookup service when set.
	GRPCAddr              string `yaml:"grpc_addr" toml:"grpc_addr" env:"GRPC_ADDR"`
	MaxConcurrentRequests int    `yaml:"max_concurrent_requests" toml:"max_concurrent_requests" env:"MAX_CONCURRENT_REQUESTS"`
}

// StorageConfig locates the game server's user data
type StorageConfig struct {
	UserDataPath string `yaml:"user_data_path" toml:"user_data_path" env:"USER_DATA_PATH"`
	DatabaseName string `yaml:"database_name" toml:"database_name" env:"DATABASE_NAME"`
	Driver       string `yaml:"driver" toml:"driver" env:"DRIVER"`
	Real         string `yaml:"real" toml:"real" env:"REAL"`
	Module       string `yaml:"module" toml:"module" env:"MODULE"`
	Version      string `yaml:"version" toml:"version" env:"VERSION"`
}

// AuthConfig holds web token and admin configuration
type AuthConfig struct {
	JWTSecret        string   `yaml:"jwt_secret" toml:"jwt_secret" env:"JWT_SECRET"`
	SuperAdmin       []string `yaml:"super_admin" toml:"super_admin" env:"SUPER_ADMIN" envSeparator:","`
	RemoveSuperAdmin []string `yaml:"remove_super_admin" toml:"remove_super_admin" env:"REMOVE_SUPER_ADMIN" envSeparator:","`
	// ServiceToken guards the key lookup service. Empty disables the check.
	ServiceToken string `yaml:"service_token" toml:"service_token" env:"SERVICE_TOKEN"`

	TokenTTL    time.Duration `yaml:"-" toml:"-"`
	TokenTTLRaw string        `yaml:"token_ttl" toml:"token_ttl" env:"TOKEN_TTL"`
}

// CelesteNetConfig points at the game server's HTTP API
type CelesteNetConfig struct {
	APIAddr     string `yaml:"api_addr" toml:"api_addr" env:"API_ADDR"`
	WebRedirect string `yaml:"web_redirect" toml:"web_redirect" env:"WEB_REDIRECT"`
	WebTitle    string `yaml:"web_title" toml:"web_title" env:"WEB_TITLE"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout" env:"TIMEOUT"`
}

// DisplayConfig controls how timestamps are shown
type DisplayConfig struct {
	UTCOffsetHours int `yaml:"utc_offset_hours" toml:"utc_offset_hours" env:"UTC_OFFSET_HOURS"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	Hostname  string `yaml:"hostname" toml:"hostname" env:"HOSTNAME"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key" env:"AUTH_KEY"`
	StateDir  string `yaml:"state_dir" toml:"state_dir" env:"STATE_DIR"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral" env:"EPHEMERAL"`
	Funnel    bool   `yaml:"funnel" toml:"funnel" env:"FUNNEL"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" toml:"level" env:"LEVEL"`
	Format     string `yaml:"format" toml:"format" env:"FORMAT"`
	Dir        string `yaml:"dir" toml:"dir" env:"DIR"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups" env:"MAX_BACKUPS"`
	AccessLog  string `yaml:"access_log" toml:"access_log" env:"ACCESS_LOG"`
}

// Default returns the configuration written for a fresh install.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:              "0.0.0.0:17238",
			GRPCAddr:              "127.0.0.1:17239",
			MaxConcurrentRequests: 4,
		},
		Storage: StorageConfig{
			UserDataPath: "/serverpath/UserData/",
			DatabaseName: "main.db",
			Driver:       "sqlite3",
			Real:         "Celeste.Mod",
			Module:       "CelesteNet.Server",
			Version:      "2.0.0.0",
		},
		Auth: AuthConfig{
			TokenTTLRaw:      "60m",
			SuperAdmin:       []string{},
			RemoveSuperAdmin: []string{},
		},
		CelesteNet: CelesteNetConfig{
			APIAddr:     "localhost:17232/api",
			WebRedirect: "localhost:17232",
			WebTitle:    "CelesteNetCN",
			TimeoutRaw:  "3s",
		},
		Display: DisplayConfig{UTCOffsetHours: 8},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			Dir:       "CNUTlog",
			MaxSizeMB: 32,
			AccessLog: "access.log",
		},
	}
}

// DatabasePath is the SQLite file inside the user data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Storage.UserDataPath, c.Storage.DatabaseName)
}

// isTOML reports whether path should be read as TOML.
func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Fields missing from the file keep their defaults. Environment variables in
// the format ${VAR_NAME} are expanded, then CNUT_* variables override fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := parse(path, data)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func parse(path string, data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if isTOML(path) {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parsing environment overrides: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	if c.Server.MaxConcurrentRequests < 1 {
		return fmt.Errorf("server.max_concurrent_requests must be at least 1")
	}

	if c.Storage.UserDataPath == "" {
		return fmt.Errorf("storage.user_data_path is required")
	}
	if c.Storage.DatabaseName == "" {
		return fmt.Errorf("storage.database_name is required")
	}
	switch c.Storage.Driver {
	case "sqlite3", "sqlite":
	default:
		return fmt.Errorf("storage.driver must be sqlite3 or sqlite, got %q", c.Storage.Driver)
	}

	if len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d characters", MinJWTSecretLength)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.TokenTTLRaw != "" {
		cfg.Auth.TokenTTL, err = time.ParseDuration(cfg.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
		}
	}
	if cfg.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token_ttl must be positive")
	}

	if cfg.CelesteNet.TimeoutRaw != "" {
		cfg.CelesteNet.Timeout, err = time.ParseDuration(cfg.CelesteNet.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing timeout %q: %w", cfg.CelesteNet.TimeoutRaw, err)
		}
	}

	return nil
}
