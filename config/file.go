package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "newsharvest.yaml"

// Environment variables that override file settings.
const (
	EnvStartURL  = "NEWSHARVEST_START_URL"
	EnvExtractor = "NEWSHARVEST_EXTRACTOR"
	EnvStore     = "NEWSHARVEST_STORE"
	EnvLedger    = "NEWSHARVEST_LEDGER"
	EnvHistory   = "NEWSHARVEST_HISTORY"
	EnvLogLevel  = "NEWSHARVEST_LOG_LEVEL"
	EnvDelay     = "NEWSHARVEST_DELAY"
	EnvMaxPages  = "NEWSHARVEST_MAX_PAGES"
	EnvPort      = "PORT"
)

// Load builds the configuration. path names a YAML file that must exist;
// when empty, ./newsharvest.yaml and then ~/.newsharvest/config.yaml are
// tried, and defaults are used if neither exists. .env files are loaded
// first and environment variables override the file.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := Default()

	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.Source.Selectors = cfg.Source.Selectors.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadEnvFiles loads .env.local and then .env. godotenv never overrides a
// variable that is already set, so .env.local wins over .env and the real
// environment wins over both.
func loadEnvFiles() error {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
	}
	return nil
}

func findConfigFile() string {
	candidates := []string{DefaultFile}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".newsharvest", "config.yaml"))
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// loadFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current values.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Source.StartURL, EnvStartURL)
	setString(&cfg.Source.Extractor, EnvExtractor)
	setString(&cfg.Storage.Store, EnvStore)
	setString(&cfg.Storage.Ledger, EnvLedger)
	setString(&cfg.Storage.History, EnvHistory)
	setString(&cfg.Log.Level, EnvLogLevel)

	if v := os.Getenv(EnvDelay); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvDelay, err)
		}
		cfg.Fetch.Delay = d
	}
	if err := setInt(&cfg.Source.MaxPages, EnvMaxPages); err != nil {
		return err
	}
	if err := setInt(&cfg.Server.Port, EnvPort); err != nil {
		return err
	}

	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}
