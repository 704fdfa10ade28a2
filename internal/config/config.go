// ABOUTME: Configuration loading and parsing for editor-bridge
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied to fields left empty in the file.
const (
	DefaultHTTPAddr           = "127.0.0.1:8765"
	DefaultShutdownTimeout    = 10 * time.Second
	DefaultEditorTimeout      = 10 * time.Second
	DefaultEditorSendTimeout  = 5 * time.Second
	DefaultExecutorTimeout    = 30 * time.Second
	DefaultNonceSweepInterval = time.Minute
	DefaultTokenIssuer        = "editor-bridge"
)

// Config represents the complete editor-bridge configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Security  SecurityConfig  `yaml:"security" toml:"security"`
	Editor    EditorConfig    `yaml:"editor" toml:"editor"`
	Executor  ExecutorConfig  `yaml:"executor" toml:"executor"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Docs      DocsConfig      `yaml:"docs" toml:"docs"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	// PublicURL is the base URL the editor uses to reach the relay route.
	// Derived from http_addr when empty.
	PublicURL string `yaml:"public_url" toml:"public_url"`

	ShutdownTimeout    time.Duration `yaml:"-" toml:"-"`
	ShutdownTimeoutRaw string        `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	// HTTPS serves on :443 with certificates provisioned by Tailscale
	HTTPS bool `yaml:"https" toml:"https"`
}

// SecurityConfig holds the security gate policy
type SecurityConfig struct {
	Mode             string   `yaml:"mode" toml:"mode"` // open, lax or strict
	APIKeys          []string `yaml:"api_keys" toml:"api_keys"`
	APIKeyHashes     []string `yaml:"api_key_hashes" toml:"api_key_hashes"` // bcrypt
	AllowedAddresses []string `yaml:"allowed_addresses" toml:"allowed_addresses"`

	// JWTSecret signs tokens issued by the OAuth endpoints. A random secret
	// is generated at startup when empty.
	JWTSecret          string `yaml:"jwt_secret" toml:"jwt_secret"`
	TokenIssuer        string `yaml:"token_issuer" toml:"token_issuer"`
	AcceptIssuedTokens bool   `yaml:"accept_issued_tokens" toml:"accept_issued_tokens"`

	NonceSweepInterval    time.Duration `yaml:"-" toml:"-"`
	NonceSweepIntervalRaw string        `yaml:"nonce_sweep_interval" toml:"nonce_sweep_interval"`
}

// EditorConfig holds the editor extension endpoint configuration
type EditorConfig struct {
	CommandURL string `yaml:"command_url" toml:"command_url"`

	Timeout        time.Duration `yaml:"-" toml:"-"`
	SendTimeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw     string        `yaml:"timeout" toml:"timeout"`
	SendTimeoutRaw string        `yaml:"send_timeout" toml:"send_timeout"`
}

// ExecutorConfig holds the code execution interpreter configuration
type ExecutorConfig struct {
	Command []string `yaml:"command" toml:"command"`
	Dir     string   `yaml:"dir" toml:"dir"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// DatabaseConfig holds database configuration. An empty path disables auditing.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// DocsConfig holds agents document lookup configuration
type DocsConfig struct {
	Path string   `yaml:"path" toml:"path"`
	Dirs []string `yaml:"dirs" toml:"dirs"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
}

// Parse decodes configuration content, applies defaults and validates it.
func Parse(data []byte, isTOML bool) (*Config, error) {
	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if isTOML {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
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

// Default returns a configuration with every default applied. It is what a
// missing config file means.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// envVarPattern matches ${VAR_NAME}
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Security.Mode == "" {
		c.Security.Mode = "open"
	}
	c.Security.Mode = strings.ToLower(c.Security.Mode)
	if c.Security.TokenIssuer == "" {
		c.Security.TokenIssuer = DefaultTokenIssuer
	}
	if c.Security.NonceSweepInterval == 0 {
		c.Security.NonceSweepInterval = DefaultNonceSweepInterval
	}
	if c.Editor.Timeout == 0 {
		c.Editor.Timeout = DefaultEditorTimeout
	}
	if c.Editor.SendTimeout == 0 {
		c.Editor.SendTimeout = DefaultEditorSendTimeout
	}
	if c.Executor.Timeout == 0 {
		c.Executor.Timeout = DefaultExecutorTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// BaseURL returns the absolute base URL clients and the editor use to reach
// the server: public_url when set, otherwise derived from http_addr.
func (c *Config) BaseURL() string {
	if c.Server.PublicURL != "" {
		return strings.TrimRight(c.Server.PublicURL, "/")
	}
	host := c.Server.HTTPAddr
	if strings.HasPrefix(host, ":") {
		host = "127.0.0.1" + host
	}
	return "http://" + host
}

// RelayURL returns the absolute URL the editor posts replies to.
func (c *Config) RelayURL(relayPath string) string {
	return c.BaseURL() + relayPath
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// Server address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	switch c.Security.Mode {
	case "open", "lax":
	case "strict":
		if len(c.Security.APIKeys) == 0 && len(c.Security.APIKeyHashes) == 0 {
			return fmt.Errorf("security.api_keys is required in strict mode")
		}
	default:
		return fmt.Errorf("security.mode must be open, lax or strict, got %q", c.Security.Mode)
	}

	if c.Security.JWTSecret != "" && len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 bytes")
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
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"security.nonce_sweep_interval", cfg.Security.NonceSweepIntervalRaw, &cfg.Security.NonceSweepInterval},
		{"editor.timeout", cfg.Editor.TimeoutRaw, &cfg.Editor.Timeout},
		{"editor.send_timeout", cfg.Editor.SendTimeoutRaw, &cfg.Editor.SendTimeout},
		{"executor.timeout", cfg.Executor.TimeoutRaw, &cfg.Executor.Timeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("parsing %s %q: must be positive", f.name, f.raw)
		}
		*f.dst = d
	}

	return nil
}
