package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the keymeter service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Probe    ProbeConfig    `yaml:"probe"`
	Poll     PollConfig     `yaml:"poll"`
	Auth     AuthConfig     `yaml:"auth"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds dashboard authentication settings.
type AuthConfig struct {
	AdminPasswordHash string `yaml:"admin_password_hash"` // bcrypt; empty disables login
	SessionTTLSec     int    `yaml:"session_ttl_sec"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// UpstreamConfig holds the usage endpoint settings.
type UpstreamConfig struct {
	URL        string `yaml:"url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// ProbeConfig holds credential validity probe settings.
// The probe checks new keys against the provider's OpenAI-compatible
// gateway before accepting them.
type ProbeConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BaseURL    string `yaml:"base_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// PollConfig holds usage polling settings.
type PollConfig struct {
	IntervalSec  int `yaml:"interval_sec"`
	Concurrency  int `yaml:"concurrency"`
	BatchDelayMs int `yaml:"batch_delay_ms"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix     string `yaml:"key_prefix"`
	EncryptionKey string `yaml:"encryption_key"` // hex-encoded 32 bytes; empty stores secrets in plaintext
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Upstream.URL == "" {
		c.Upstream.URL = "https://app.factory.ai/api/organization/usage"
	}
	if c.Upstream.TimeoutSec <= 0 {
		c.Upstream.TimeoutSec = 30
	}
	if c.Probe.TimeoutSec <= 0 {
		c.Probe.TimeoutSec = 15
	}
	if c.Poll.IntervalSec <= 0 {
		c.Poll.IntervalSec = 300
	}
	if c.Poll.Concurrency <= 0 {
		c.Poll.Concurrency = 10
	}
	if c.Poll.BatchDelayMs <= 0 {
		c.Poll.BatchDelayMs = 100
	}
	if c.Auth.SessionTTLSec <= 0 {
		c.Auth.SessionTTLSec = 86400
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "keymeter:"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if !strings.HasPrefix(c.Upstream.URL, "http://") && !strings.HasPrefix(c.Upstream.URL, "https://") {
		return fmt.Errorf("upstream.url must be an http(s) URL, got %q", c.Upstream.URL)
	}
	if c.Probe.Enabled && c.Probe.BaseURL == "" {
		return fmt.Errorf("probe.base_url is required when probe.enabled is true")
	}
	if c.Storage.EncryptionKey != "" {
		key, err := hex.DecodeString(c.Storage.EncryptionKey)
		if err != nil {
			return fmt.Errorf("storage.encryption_key must be hex-encoded: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("storage.encryption_key must decode to 32 bytes, got %d", len(key))
		}
	}
	if c.Auth.AdminPasswordHash != "" && !strings.HasPrefix(c.Auth.AdminPasswordHash, "$2") {
		return fmt.Errorf("auth.admin_password_hash must be a bcrypt hash")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
