package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1500*time.Millisecond, cfg.Persist.Debounce)
	assert.Equal(t, "main", cfg.Store.ConfigID)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kasbon.yaml")
	yml := `
http:
  addr: ":9090"
store:
  path: /var/lib/kasbon.db
persist:
  debounce: 2s
auth:
  token_ttl: 1h
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	t.Setenv("KASBON_HTTP_ADDR", ":7070")
	t.Setenv("KASBON_LOG_LEVEL", "debug")

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.HTTP.Addr, "env wins over file")
	assert.Equal(t, "/var/lib/kasbon.db", cfg.Store.Path)
	assert.Equal(t, 2*time.Second, cfg.Persist.Debounce)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "main", cfg.Store.ConfigID, "defaults survive a partial file")
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("KASBON_REMOTE_URL=http://primary:8080/api/state\nKASBON_CONFIG_ID=staging\n"), 0o644))
	t.Setenv("KASBON_CONFIG_ID", "prod")
	t.Cleanup(func() { os.Unsetenv("KASBON_REMOTE_URL") })

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "http://primary:8080/api/state", cfg.Remote.URL)
	assert.Equal(t, "prod", cfg.Store.ConfigID, ".env does not override the environment")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("http: [1"), 0o644))
	_, err = Load(bad, "")
	assert.Error(t, err)
}

func TestApplyEnv_InvalidDuration(t *testing.T) {
	cfg := DefaultConfig()
	env := map[string]string{"KASBON_TOKEN_TTL": "soon"}
	err := cfg.ApplyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	assert.ErrorContains(t, err, "KASBON_TOKEN_TTL")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.HTTP.Addr = "" }},
		{"empty db path", func(c *Config) { c.Store.Path = "" }},
		{"empty config id", func(c *Config) { c.Store.ConfigID = "" }},
		{"empty secret", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"zero ttl", func(c *Config) { c.Auth.TokenTTL = 0 }},
		{"negative debounce", func(c *Config) { c.Persist.Debounce = -time.Second }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)
}
