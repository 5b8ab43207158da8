package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var overrideKeys = []string{
	EnvStartURL, EnvExtractor, EnvStore, EnvLedger, EnvHistory,
	EnvLogLevel, EnvDelay, EnvMaxPages, EnvPort,
}

// Test helper: run from an empty directory with HOME pointing elsewhere and
// no override variables set. Variables are restored after the test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())
	for _, key := range overrideKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://www.gob.mx/sep/archivo/prensa", cfg.Source.StartURL)
	assert.Equal(t, ExtractorHTML, cfg.Source.Extractor)
	assert.Equal(t, "article", cfg.Source.Selectors.ItemSelector)
	assert.Equal(t, "data/noticias.json", cfg.Storage.Store)
	assert.Equal(t, "data/last_run.json", cfg.Storage.Ledger)
	assert.Equal(t, "data/runs.db", cfg.Storage.History)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Fetch.Delay)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 3, cfg.Fetch.MaxAttempts)
}

func TestLoad_WorkingDirectoryFile(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, DefaultFile), `
source:
  start_url: "https://example.org/news"
  max_pages: 4
  selectors:
    item: "li.news"
    title: "h3"
storage:
  store: "/var/lib/newsharvest/items.json"
fetch:
  delay: 500ms
  max_attempts: 5
server:
  port: 8080
`)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://example.org/news", cfg.Source.StartURL)
	assert.Equal(t, 4, cfg.Source.MaxPages)
	assert.Equal(t, "li.news", cfg.Source.Selectors.ItemSelector)
	assert.Equal(t, "h3", cfg.Source.Selectors.TitleSelector)
	assert.Equal(t, "a.small-link", cfg.Source.Selectors.LinkSelector, "unset selectors fall back to defaults")
	assert.Equal(t, "/var/lib/newsharvest/items.json", cfg.Storage.Store)
	assert.Equal(t, "data/last_run.json", cfg.Storage.Ledger, "unset keys keep defaults")
	assert.Equal(t, 500*time.Millisecond, cfg.Fetch.Delay)
	assert.Equal(t, 5, cfg.Fetch.MaxAttempts)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_HomeDirectoryFile(t *testing.T) {
	isolate(t)
	writeFile(t, filepath.Join(os.Getenv("HOME"), ".newsharvest", "config.yaml"), `
log:
  level: debug
`)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_ExplicitPath(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	writeFile(t, path, "source:\n  extractor: feed\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ExtractorFeed, cfg.Source.Extractor)
}

func TestLoad_ExplicitPathMissing(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, DefaultFile), `
storage:
  - this is invalid because storage should be an object not a list
`)

	cfg, err := Load("")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, DefaultFile), "storage:\n  store: from-file.json\n")
	t.Setenv(EnvStore, "from-env.json")
	t.Setenv(EnvPort, "9090")
	t.Setenv(EnvDelay, "0s")
	t.Setenv(EnvMaxPages, "7")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "from-env.json", cfg.Storage.Store)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, time.Duration(0), cfg.Fetch.Delay)
	assert.Equal(t, 7, cfg.Source.MaxPages)
}

func TestLoad_DotEnvFiles(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ".env"), EnvLedger+"=from-dotenv.json\n"+EnvHistory+"=from-dotenv.db\n")
	writeFile(t, filepath.Join(dir, ".env.local"), EnvLedger+"=from-local.json\n")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "from-local.json", cfg.Storage.Ledger, ".env.local wins over .env")
	assert.Equal(t, "from-dotenv.db", cfg.Storage.History)
}

func TestLoad_InvalidEnvNumber(t *testing.T) {
	isolate(t)
	t.Setenv(EnvPort, "not-a-port")

	_, err := Load("")
	assert.ErrorContains(t, err, EnvPort)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"empty start url", func(c *Config) { c.Source.StartURL = "" }, "start_url"},
		{"unknown extractor", func(c *Config) { c.Source.Extractor = "pdf" }, "extractor"},
		{"missing item selector", func(c *Config) { c.Source.Selectors.ItemSelector = "" }, "item selector"},
		{"feed ignores selectors", func(c *Config) {
			c.Source.Extractor = ExtractorFeed
			c.Source.Selectors.ItemSelector = ""
		}, ""},
		{"negative ceiling", func(c *Config) { c.Source.MaxPages = -1 }, "max_pages"},
		{"negative delay", func(c *Config) { c.Fetch.Delay = -time.Second }, "durations"},
		{"empty store", func(c *Config) { c.Storage.Store = "" }, "storage.store"},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestFetcherConfig(t *testing.T) {
	cfg := Default()
	cfg.Fetch.Delay = 3 * time.Second

	fc := cfg.FetcherConfig()
	assert.Equal(t, 3*time.Second, fc.Delay)
	assert.Equal(t, cfg.Fetch.UserAgent, fc.UserAgent)
}
