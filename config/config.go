// Package config loads newsharvest settings from a YAML file, .env files and
// environment variables, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/pevans/newsharvest/discovery"
	"github.com/pevans/newsharvest/scraper"
)

// Extractor kinds.
const (
	ExtractorHTML = "html"
	ExtractorFeed = "feed"
)

// Config is the complete runtime configuration.
type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Storage StorageConfig `yaml:"storage"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
}

// SourceConfig describes the archive being harvested.
type SourceConfig struct {
	StartURL  string             `yaml:"start_url"`
	Extractor string             `yaml:"extractor"` // "html" or "feed"
	Selectors scraper.ListConfig `yaml:"selectors"`
	// MaxPages is the default page ceiling for runs; zero means none.
	MaxPages int `yaml:"max_pages"`
}

// StorageConfig holds file locations.
type StorageConfig struct {
	Store   string `yaml:"store"`
	Ledger  string `yaml:"ledger"`
	History string `yaml:"history"`
}

// FetchConfig controls page requests.
type FetchConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	Delay          time.Duration `yaml:"delay"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	UserAgent      string        `yaml:"user_agent"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when nothing is configured.
func Default() *Config {
	fetch := discovery.DefaultFetcherConfig()
	return &Config{
		Source: SourceConfig{
			StartURL:  scraper.DefaultStartURL,
			Extractor: ExtractorHTML,
			Selectors: *scraper.NewListConfig(),
		},
		Storage: StorageConfig{
			Store:   "data/noticias.json",
			Ledger:  "data/last_run.json",
			History: "data/runs.db",
		},
		Fetch: FetchConfig{
			Timeout:        fetch.Timeout,
			Delay:          fetch.Delay,
			MaxAttempts:    fetch.MaxAttempts,
			InitialBackoff: fetch.InitialBackoff,
			UserAgent:      fetch.UserAgent,
			MaxBodyBytes:   fetch.MaxBodyBytes,
		},
		Server: ServerConfig{
			Port:            5000,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Source.StartURL == "" {
		errs = append(errs, errors.New("source.start_url is required"))
	}
	switch c.Source.Extractor {
	case ExtractorHTML:
		if err := c.Source.Selectors.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("source.selectors: %w", err))
		}
	case ExtractorFeed:
	default:
		errs = append(errs, fmt.Errorf("source.extractor must be %q or %q, got %q",
			ExtractorHTML, ExtractorFeed, c.Source.Extractor))
	}
	if c.Source.MaxPages < 0 {
		errs = append(errs, errors.New("source.max_pages must not be negative"))
	}

	if c.Storage.Store == "" {
		errs = append(errs, errors.New("storage.store is required"))
	}
	if c.Storage.Ledger == "" {
		errs = append(errs, errors.New("storage.ledger is required"))
	}

	if c.Fetch.Timeout < 0 || c.Fetch.Delay < 0 || c.Fetch.InitialBackoff < 0 {
		errs = append(errs, errors.New("fetch durations must not be negative"))
	}
	if c.Fetch.MaxAttempts < 0 {
		errs = append(errs, errors.New("fetch.max_attempts must not be negative"))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}

	return errors.Join(errs...)
}

// FetcherConfig converts the fetch settings for discovery.NewFetcher.
func (c *Config) FetcherConfig() discovery.FetcherConfig {
	return discovery.FetcherConfig{
		Timeout:        c.Fetch.Timeout,
		Delay:          c.Fetch.Delay,
		MaxAttempts:    c.Fetch.MaxAttempts,
		InitialBackoff: c.Fetch.InitialBackoff,
		UserAgent:      c.Fetch.UserAgent,
		MaxBodyBytes:   c.Fetch.MaxBodyBytes,
	}
}
