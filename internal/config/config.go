// Package config loads braindrain settings from defaults, an optional YAML
// file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"braindrain/internal/census"
	"braindrain/internal/notify"
	"braindrain/internal/storage"
)

// Config is the full runtime configuration.
type Config struct {
	Census  CensusConfig   `yaml:"census"`
	Store   storage.Config `yaml:"store"`
	History HistoryConfig  `yaml:"history"`
	NATS    NATSConfig     `yaml:"nats"`
	API     APIConfig      `yaml:"api"`
	Verbose bool           `yaml:"verbose" env:"BRAINDRAIN_VERBOSE"`
}

// CensusConfig holds census data API settings.
type CensusConfig struct {
	BaseURL string        `yaml:"base_url" env:"BRAINDRAIN_CENSUS_URL"`
	Year    int           `yaml:"year" env:"BRAINDRAIN_YEAR"`
	APIKey  string        `yaml:"api_key" env:"CENSUS_API_KEY"`
	Timeout time.Duration `yaml:"timeout" env:"BRAINDRAIN_CENSUS_TIMEOUT"`
	Retries uint          `yaml:"retries" env:"BRAINDRAIN_CENSUS_RETRIES"`
}

// HistoryConfig enables the ClickHouse history sink. Connection settings
// live in Store.ClickHouse.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled" env:"BRAINDRAIN_HISTORY"`
}

// NATSConfig holds snapshot announcement settings. An empty URL disables
// publishing.
type NATSConfig struct {
	URL     string `yaml:"url" env:"NATS_URL"`
	Subject string `yaml:"subject" env:"BRAINDRAIN_NATS_SUBJECT"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	Port        int      `yaml:"port" env:"BRAINDRAIN_PORT"`
	AuthEnabled bool     `yaml:"auth_enabled" env:"BRAINDRAIN_API_AUTH"`
	APIKeys     []string `yaml:"api_keys" env:"BRAINDRAIN_API_KEYS" envSeparator:","`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Census: CensusConfig{
			BaseURL: census.DefaultBaseURL,
			Year:    2022,
			Timeout: 30 * time.Second,
			Retries: 4,
		},
		Store: storage.DefaultConfig(),
		NATS:  NATSConfig{Subject: notify.DefaultSubject},
		API:   APIConfig{Port: 8080},
	}
}

// Load builds the configuration. path may be empty; when set the file must
// exist. Environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Census.BaseURL == "" {
		errs = append(errs, errors.New("census base_url is required"))
	}
	// The ACS 5-year API starts with the 2009 release.
	if c.Census.Year < 2009 || c.Census.Year > time.Now().Year() {
		errs = append(errs, fmt.Errorf("census year %d out of range", c.Census.Year))
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api port %d out of range", c.API.Port))
	}
	if c.API.AuthEnabled && len(c.API.APIKeys) == 0 {
		errs = append(errs, errors.New("api auth enabled without api_keys"))
	}

	return errors.Join(errs...)
}

// CensusClient returns the census client settings.
func (c *Config) CensusClient() census.Config {
	return census.Config{
		BaseURL: c.Census.BaseURL,
		Year:    c.Census.Year,
		APIKey:  c.Census.APIKey,
		Timeout: c.Census.Timeout,
	}
}
