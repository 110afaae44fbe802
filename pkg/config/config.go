// Package config loads the service configuration from defaults, a YAML
// file, a .env file and KASBON_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DevJWTSecret is the built-in signing secret. Serving with it logs a
// warning.
const DevJWTSecret = "kasbon-dev-secret"

const envPrefix = "KASBON_"

type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Store   StoreConfig   `yaml:"store"`
	Cache   CacheConfig   `yaml:"cache"`
	Remote  RemoteConfig  `yaml:"remote"`
	Persist PersistConfig `yaml:"persist"`
	Auth    AuthConfig    `yaml:"auth"`
	Log     LogConfig     `yaml:"log"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// StoreConfig is the SQLite database holding the state document.
type StoreConfig struct {
	Path     string `yaml:"path"`
	ConfigID string `yaml:"config_id"`
}

// CacheConfig is the local JSON copy written on every change. An empty path
// disables it.
type CacheConfig struct {
	Path string `yaml:"path"`
}

// RemoteConfig points at another instance's state endpoint. When set it is
// used as the remote store instead of the local database.
type RemoteConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

type PersistConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func DefaultConfig() *Config {
	return &Config{
		HTTP:    HTTPConfig{Addr: ":8080"},
		Store:   StoreConfig{Path: "kasbon.db", ConfigID: "main"},
		Cache:   CacheConfig{Path: "kasbon-cache.json"},
		Persist: PersistConfig{Debounce: 1500 * time.Millisecond},
		Auth:    AuthConfig{JWTSecret: DevJWTSecret, TokenTTL: 24 * time.Hour},
		Log:     LogConfig{Level: "info"},
	}
}

// Load builds the configuration. configPath and envFile may be empty; a
// missing .env file is not an error.
func Load(configPath, envFile string) (*Config, error) {
	cfg := DefaultConfig()
	if configPath != "" {
		if err := cfg.loadFile(configPath); err != nil {
			return nil, err
		}
	}
	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// loadDotEnv loads variables that are not already set in the environment.
func loadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("No .env file found, using system environment", slog.String("path", path))
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from KASBON_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := lookup(envPrefix + name)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
		}
		*dst = d
		return nil
	}

	str("HTTP_ADDR", &c.HTTP.Addr)
	str("DB_PATH", &c.Store.Path)
	str("CONFIG_ID", &c.Store.ConfigID)
	str("CACHE_PATH", &c.Cache.Path)
	str("REMOTE_URL", &c.Remote.URL)
	str("REMOTE_TOKEN", &c.Remote.Token)
	str("JWT_SECRET", &c.Auth.JWTSecret)
	str("LOG_LEVEL", &c.Log.Level)
	if err := dur("PERSIST_DEBOUNCE", &c.Persist.Debounce); err != nil {
		return err
	}
	return dur("TOKEN_TTL", &c.Auth.TokenTTL)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Store.ConfigID == "" {
		return fmt.Errorf("store.config_id is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.Persist.Debounce <= 0 {
		return fmt.Errorf("persist.debounce must be positive")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
