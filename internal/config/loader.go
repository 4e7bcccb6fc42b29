package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultBaseURL = "http://127.0.0.1:8000"
	DefaultListen  = "127.0.0.1:8080"
)

// Environment overrides, applied after the file is read.
const (
	EnvBackendURL = "CHURNBOARD_BACKEND_URL"
	EnvListen     = "CHURNBOARD_LISTEN"
	EnvStateDB    = "CHURNBOARD_STATE_DB"
	EnvLogLevel   = "LOG_LEVEL"
)

// LoadDotEnv reads KEY=VALUE pairs from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the config file at path. A missing file yields the defaults,
// so the dashboard can start with environment variables alone.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		b = []byte("{}")
	} else if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse parses a raw JSON config into Config, applies defaults, environment
// overrides and validates.
func Parse(raw []byte) (*Config, error) {
	return parse(raw, true)
}

// ParseFile is Parse without environment overrides. Its result is what
// belongs on disk.
func ParseFile(raw []byte) (*Config, error) {
	return parse(raw, false)
}

func parse(raw []byte, env bool) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if env {
		applyEnv(&cfg)
	}
	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the provided config to disk at the given path (pretty-printed JSON).
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("save config: path is empty")
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvBackendURL)); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvListen)); v != "" {
		cfg.UI.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStateDB)); v != "" {
		cfg.Runtime.StateDbPath = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = DefaultBaseURL
	}
	cfg.Backend.BaseURL = strings.TrimRight(cfg.Backend.BaseURL, "/")
	if cfg.Backend.TimeoutSec <= 0 {
		cfg.Backend.TimeoutSec = 30
	}
	if cfg.UI.Listen == "" {
		cfg.UI.Listen = DefaultListen
	}
	if cfg.UI.MessageTTLMs <= 0 {
		cfg.UI.MessageTTLMs = 5000
	}
	if cfg.UI.DownloadTTLSec <= 0 {
		cfg.UI.DownloadTTLSec = 300
	}
	if cfg.Fallback == (FallbackCfg{}) {
		cfg.Fallback = FallbackCfg{Customers: 7086, Interactions: 45, ChurnRate: 0.265}
	}
	if cfg.Runtime.DebounceMs <= 0 {
		cfg.Runtime.DebounceMs = 250
	}
}

func Validate(cfg *Config) error {
	if cfg.Version <= 0 {
		return errors.New("version must be > 0")
	}
	u, err := url.Parse(cfg.Backend.BaseURL)
	if err != nil {
		return fmt.Errorf("backend.baseUrl: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.baseUrl: scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("backend.baseUrl: host is required")
	}
	if cfg.Backend.TimeoutSec <= 0 {
		return errors.New("backend.timeoutSec must be > 0")
	}
	if _, _, err := net.SplitHostPort(cfg.UI.Listen); err != nil {
		return fmt.Errorf("ui.listen: %w", err)
	}
	if cfg.UI.MessageTTLMs <= 0 {
		return errors.New("ui.messageTtlMs must be > 0")
	}
	if cfg.Fallback.Customers < 0 || cfg.Fallback.Interactions < 0 {
		return errors.New("fallback counts must be >= 0")
	}
	if cfg.Fallback.ChurnRate < 0 || cfg.Fallback.ChurnRate > 1 {
		return errors.New("fallback.churnRate must be within 0..1")
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	return nil
}
