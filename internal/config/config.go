// ABOUTME: Configuration loading and parsing for fedigate
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete fedigate configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Federation FederationConfig `yaml:"federation"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds token issuance and TOTP configuration
type AuthConfig struct {
	JWTSecret          string        `yaml:"jwt_secret"`
	TOTPIssuer         string        `yaml:"totp_issuer"`
	TOTPSkew           int           `yaml:"totp_skew"`
	AccessTokenExpiry  time.Duration `yaml:"-"`
	RefreshTokenExpiry time.Duration `yaml:"-"`
	MagicTokenExpiry   time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	AccessTokenExpiryRaw  string `yaml:"access_token_expiry"`
	RefreshTokenExpiryRaw string `yaml:"refresh_token_expiry"`
	MagicTokenExpiryRaw   string `yaml:"magic_token_expiry"`
}

// FederationConfig holds inbound signature verification and key fetch configuration
type FederationConfig struct {
	ExternalHost    string        `yaml:"external_host"`
	MaxBodySize     int64         `yaml:"max_body_size"`
	KeyCacheSize    int           `yaml:"key_cache_size"`
	KeyFetchTimeout time.Duration `yaml:"-"`
	KeyCacheTTL     time.Duration `yaml:"-"`

	KeyFetchTimeoutRaw string `yaml:"key_fetch_timeout"`
	KeyCacheTTLRaw     string `yaml:"key_cache_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the corresponding field is absent from the file.
const (
	DefaultRefreshTokenExpiry = 30 * 24 * time.Hour
	DefaultMagicTokenExpiry   = 10 * time.Minute
	DefaultKeyFetchTimeout    = 10 * time.Second
	DefaultKeyCacheTTL        = time.Hour
	DefaultKeyCacheSize       = 1024
	DefaultMaxBodySize        = 50 * 1024
	DefaultTOTPSkew           = 1
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}

	if c.Federation.MaxBodySize <= 0 {
		return fmt.Errorf("federation.max_body_size must be positive")
	}

	return nil
}

// applyDefaults fills in zero-valued optional fields.
func (c *Config) applyDefaults() {
	if c.Auth.RefreshTokenExpiryRaw == "" {
		c.Auth.RefreshTokenExpiry = DefaultRefreshTokenExpiry
	}
	if c.Auth.MagicTokenExpiryRaw == "" {
		c.Auth.MagicTokenExpiry = DefaultMagicTokenExpiry
	}
	if c.Auth.TOTPIssuer == "" {
		c.Auth.TOTPIssuer = "fedigate"
	}
	if c.Auth.TOTPSkew == 0 {
		c.Auth.TOTPSkew = DefaultTOTPSkew
	}
	if c.Federation.KeyFetchTimeoutRaw == "" {
		c.Federation.KeyFetchTimeout = DefaultKeyFetchTimeout
	}
	if c.Federation.KeyCacheTTLRaw == "" {
		c.Federation.KeyCacheTTL = DefaultKeyCacheTTL
	}
	if c.Federation.KeyCacheSize == 0 {
		c.Federation.KeyCacheSize = DefaultKeyCacheSize
	}
	if c.Federation.MaxBodySize == 0 {
		c.Federation.MaxBodySize = DefaultMaxBodySize
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// parseDurations converts the raw duration strings into time.Duration values.
// An access_token_expiry of "0" (or omitted) means access tokens do not expire
// and are bounded only by their backing refresh token.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.AccessTokenExpiryRaw != "" && cfg.Auth.AccessTokenExpiryRaw != "0" {
		cfg.Auth.AccessTokenExpiry, err = time.ParseDuration(cfg.Auth.AccessTokenExpiryRaw)
		if err != nil {
			return fmt.Errorf("parsing access_token_expiry %q: %w", cfg.Auth.AccessTokenExpiryRaw, err)
		}
	}

	if cfg.Auth.RefreshTokenExpiryRaw != "" {
		cfg.Auth.RefreshTokenExpiry, err = time.ParseDuration(cfg.Auth.RefreshTokenExpiryRaw)
		if err != nil {
			return fmt.Errorf("parsing refresh_token_expiry %q: %w", cfg.Auth.RefreshTokenExpiryRaw, err)
		}
	}

	if cfg.Auth.MagicTokenExpiryRaw != "" {
		cfg.Auth.MagicTokenExpiry, err = time.ParseDuration(cfg.Auth.MagicTokenExpiryRaw)
		if err != nil {
			return fmt.Errorf("parsing magic_token_expiry %q: %w", cfg.Auth.MagicTokenExpiryRaw, err)
		}
	}

	if cfg.Federation.KeyFetchTimeoutRaw != "" {
		cfg.Federation.KeyFetchTimeout, err = time.ParseDuration(cfg.Federation.KeyFetchTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing key_fetch_timeout %q: %w", cfg.Federation.KeyFetchTimeoutRaw, err)
		}
	}

	if cfg.Federation.KeyCacheTTLRaw != "" {
		cfg.Federation.KeyCacheTTL, err = time.ParseDuration(cfg.Federation.KeyCacheTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing key_cache_ttl %q: %w", cfg.Federation.KeyCacheTTLRaw, err)
		}
	}

	return nil
}
