// ABOUTME: Configuration loading and parsing for heartline-gateway
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

// Environment variables consulted by LoadDefault.
const (
	EnvConfigPath = "HEARTLINE_CONFIG"
	EnvDBPath     = "HEARTLINE_DB_PATH"
)

// Config represents the complete heartline-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth"`
	Realtime RealtimeConfig `yaml:"realtime" toml:"realtime"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	// AllowedOrigins restricts browser websocket origins. Empty allows any.
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`

	ShutdownTimeout    time.Duration `yaml:"-" toml:"-"`
	ShutdownTimeoutRaw string        `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds authentication configuration.
// Without a JWT secret the gateway trusts the bearer token as the member ID.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`

	TokenTTL    time.Duration `yaml:"-" toml:"-"`
	TokenTTLRaw string        `yaml:"token_ttl" toml:"token_ttl"`
}

// RealtimeConfig holds websocket and messaging limits
type RealtimeConfig struct {
	SendBuffer       int     `yaml:"send_buffer" toml:"send_buffer"`
	MaxMessageSize   int64   `yaml:"max_message_size" toml:"max_message_size"`
	MaxContentLength int     `yaml:"max_content_length" toml:"max_content_length"`
	SendRate         float64 `yaml:"send_rate" toml:"send_rate"`
	SendBurst        int     `yaml:"send_burst" toml:"send_burst"`
	DedupeMax        int     `yaml:"dedupe_max" toml:"dedupe_max"`
	// PersistGroups mirrors conversation groups and connections to storage.
	PersistGroups *bool `yaml:"persist_groups" toml:"persist_groups"`

	WriteWait time.Duration `yaml:"-" toml:"-"`
	PongWait  time.Duration `yaml:"-" toml:"-"`
	DedupeTTL time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	WriteWaitRaw string `yaml:"write_wait" toml:"write_wait"`
	PongWaitRaw  string `yaml:"pong_wait" toml:"pong_wait"`
	DedupeTTLRaw string `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
}

// MirrorGroups reports whether group mirroring is enabled (default true).
func (r RealtimeConfig) MirrorGroups() bool {
	return r.PersistGroups == nil || *r.PersistGroups
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Path      string `yaml:"path" toml:"path"`
	Namespace string `yaml:"namespace" toml:"namespace"`
}

// Default returns a configuration with every optional field filled in.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        "localhost:8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			TokenTTL: 7 * 24 * time.Hour,
		},
		Realtime: RealtimeConfig{
			SendBuffer:       256,
			MaxMessageSize:   64 * 1024,
			MaxContentLength: 4096,
			SendRate:         5,
			SendBurst:        10,
			DedupeMax:        10000,
			WriteWait:        10 * time.Second,
			PongWait:         60 * time.Second,
			DedupeTTL:        10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Path:      "/metrics",
			Namespace: "heartline",
		},
	}
}

// Path returns the config file to load.
// Priority: HEARTLINE_CONFIG > XDG_CONFIG_HOME/heartline/gateway.yaml > ~/.config/heartline/gateway.yaml
func Path() string {
	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "heartline", "gateway.yaml")
}

// LoadDefault loads the file named by Path.
func LoadDefault() (*Config, error) {
	return Load(Path())
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded, and
// HEARTLINE_DB_PATH overrides database.path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
}

// Parse decodes raw configuration bytes on top of Default.
func Parse(data []byte, isTOML bool) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if isTOML {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if dbPath := os.Getenv(EnvDBPath); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
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

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}

	r := c.Realtime
	if r.SendBuffer <= 0 {
		return fmt.Errorf("realtime.send_buffer must be positive")
	}
	if r.MaxContentLength <= 0 {
		return fmt.Errorf("realtime.max_content_length must be positive")
	}
	if r.MaxMessageSize < int64(r.MaxContentLength) {
		return fmt.Errorf("realtime.max_message_size must be at least max_content_length")
	}
	if r.SendRate < 0 || r.SendBurst < 0 {
		return fmt.Errorf("realtime.send_rate and send_burst cannot be negative")
	}
	if r.SendRate > 0 && r.SendBurst == 0 {
		return fmt.Errorf("realtime.send_burst is required when send_rate is set")
	}
	if r.PongWait <= time.Second {
		return fmt.Errorf("realtime.pong_wait must be longer than 1s")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
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
		{"auth.token_ttl", cfg.Auth.TokenTTLRaw, &cfg.Auth.TokenTTL},
		{"realtime.write_wait", cfg.Realtime.WriteWaitRaw, &cfg.Realtime.WriteWait},
		{"realtime.pong_wait", cfg.Realtime.PongWaitRaw, &cfg.Realtime.PongWait},
		{"realtime.dedupe_ttl", cfg.Realtime.DedupeTTLRaw, &cfg.Realtime.DedupeTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
