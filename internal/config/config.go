package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// AuthClient maps a bearer token to the owner it authenticates.
type AuthClient struct {
	Token   string `toml:"token"`
	OwnerID string `toml:"owner_id"`
}

// Auth contains API authentication configuration.
type Auth struct {
	Clients []AuthClient `toml:"clients"`
}

// Transcription contains configuration for the audio transcription provider.
type Transcription struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	DefaultModel   string `toml:"default_model"`
	Language       string `toml:"language"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Chat contains configuration for the streaming chat gateway.
type Chat struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutMinutes int    `toml:"timeout_minutes"`
	RetryAttempts  int    `toml:"retry_attempts"`
	RetryBaseMS    int    `toml:"retry_base_ms"`
}

// Retention contains configuration for the dead-letter sweep.
type Retention struct {
	Days      int    `toml:"days"`
	SweepHour int    `toml:"sweep_hour"`
	Timezone  string `toml:"timezone"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Preservation   bool   `toml:"preservation"`
	Retry          bool   `toml:"retry"`
	Sweep          bool   `toml:"sweep"`
	Errors         bool   `toml:"errors"`
}

// RateLimit contains per-owner request rate limiting for the API server.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Parley.
//
// Configuration sections by subsystem:
//   - Paths: directories and API bind address
//   - Auth: bearer tokens mapped to owner identities
//   - Transcription: audio transcription provider connection settings
//   - Chat: streaming chat gateway connection settings
//   - Retention: dead-letter retention window and sweep schedule
//   - Notifications: ntfy push notification settings
//   - RateLimit: per-owner API throttling
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Auth          Auth          `toml:"auth"`
	Transcription Transcription `toml:"transcription"`
	Chat          Chat          `toml:"chat"`
	Retention     Retention     `toml:"retention"`
	Notifications Notifications `toml:"notifications"`
	RateLimit     RateLimit     `toml:"rate_limit"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/parley/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("parley.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// OwnerForToken resolves a bearer token to its configured owner identity.
func (c *Config) OwnerForToken(token string) (string, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	for _, client := range c.Auth.Clients {
		if client.Token == token {
			return client.OwnerID, true
		}
	}
	return "", false
}

// WriteSample writes the embedded sample configuration to path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// ExpandPath resolves ~ and relative segments to an absolute path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
