// Package config holds the powerlog configuration: data/database/log paths,
// upstream endpoints, and retry/timeout knobs. Values come from an optional
// YAML file; missing fields fall back to defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level powerlog configuration.
type Config struct {
	// DataDir is the root of the archive tree. Dataset kinds live in
	// fixed subdirectories (WindForecast, SolarForecast, Belpex).
	DataDir string `yaml:"data_dir"`

	// DatabasePath is the SQLite file the loader writes to.
	DatabasePath string `yaml:"database_path"`

	// LogDir receives one log file per day.
	LogDir string `yaml:"log_dir"`

	// WindURL and SolarURL are the Elia Open Data records endpoints for
	// the ods031 (wind) and ods032 (solar) datasets.
	WindURL  string `yaml:"wind_url"`
	SolarURL string `yaml:"solar_url"`

	// ExportURL is the Elexys Belpex spot page driven by the browser.
	ExportURL string `yaml:"export_url"`

	// HTTPTimeout bounds a single API request.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// Tries, RetryDelay and RetryBackoff feed the retry policies around
	// network and browser operations.
	Tries        int           `yaml:"tries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	RetryBackoff float64       `yaml:"retry_backoff"`

	// PageSize is the API page size. The upstream caps it at 100.
	PageSize int `yaml:"page_size"`

	// BatchSize is the number of rows per store insert.
	BatchSize int `yaml:"batch_size"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir:      "Data",
		DatabasePath: filepath.Join("Database", "energy_data.sqlite"),
		LogDir:       "Log",
		WindURL:      "https://opendata.elia.be/api/explore/v2.1/catalog/datasets/ods031/records",
		SolarURL:     "https://opendata.elia.be/api/explore/v2.1/catalog/datasets/ods032/records",
		ExportURL:    "https://my.elexys.be/MarketInformation/SpotBelpex.aspx",
		HTTPTimeout:  10 * time.Second,
		Tries:        3,
		RetryDelay:   5 * time.Second,
		RetryBackoff: 2,
		PageSize:     100,
		BatchSize:    1000,
	}
}

// LoadFile reads a YAML configuration file on top of the defaults.
// A missing file is not an error; the defaults apply unchanged.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.PageSize <= 0 {
		return fmt.Errorf("config: page_size must be positive, got %d", c.PageSize)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("config: batch_size must be positive, got %d", c.BatchSize)
	}
	if c.Tries < 1 {
		return fmt.Errorf("config: tries must be at least 1, got %d", c.Tries)
	}
	return nil
}

// WindDir is the archive tree for wind forecast JSON files.
func (c *Config) WindDir() string { return filepath.Join(c.DataDir, "WindForecast") }

// SolarDir is the archive tree for solar forecast JSON files.
func (c *Config) SolarDir() string { return filepath.Join(c.DataDir, "SolarForecast") }

// BelpexDir is the download/export directory for Belpex price files.
func (c *Config) BelpexDir() string { return filepath.Join(c.DataDir, "Belpex") }
