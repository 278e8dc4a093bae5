// Package config provides configuration management for invnorm.
//
// The config file describes where inventory comes from, where artifacts go,
// and how the optional enrichment collaborator is reached. Every section has
// a usable default, so a missing file is not an error.
//
// Config file locations (priority order):
//  1. $INVNORM_CONFIG
//  2. ./invnorm.yaml
//  3. ~/.config/invnorm/config.yaml
//  4. /etc/invnorm/config.yaml
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"invnorm/internal/logger"
)

// ErrInvalid is wrapped by every Validate failure
var ErrInvalid = errors.New("invalid config")

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		// No config found - return defaults
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	return cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Input:   InputConfig{Path: DefaultInputPath},
		Output: OutputConfig{
			Dir:       ".",
			CleanCSV:  DefaultCleanCSV,
			Anomalies: DefaultAnomalies,
			AuditLog:  DefaultAuditLog,
		},
		Database:   DatabaseConfig{Path: DefaultDatabasePath},
		Logging:    logger.DefaultConfig(),
		Normalizer: NormalizerConfig{Workers: DefaultWorkers},
		Enrichment: EnrichmentConfig{
			Enabled:             false,
			Provider:            ProviderHTTP,
			Endpoint:            DefaultEndpoint,
			APIKeyEnv:           DefaultAPIKeyEnv,
			Temperature:         DefaultTemperature,
			Timeout:             Duration(DefaultEnrichmentTimeout),
			MaxTokens:           DefaultMaxTokens,
			ConfidenceThreshold: DefaultConfidenceThreshold,
			MaxConfidence:       DefaultMaxConfidence,
		},
		Server: ServerConfig{Addr: DefaultServerAddr},
		Watch:  WatchConfig{Debounce: Duration(DefaultDebounce)},
	}
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Input.Path == "" {
		c.Input.Path = DefaultInputPath
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "."
	}
	if c.Output.CleanCSV == "" {
		c.Output.CleanCSV = DefaultCleanCSV
	}
	if c.Output.Anomalies == "" {
		c.Output.Anomalies = DefaultAnomalies
	}
	if c.Output.AuditLog == "" {
		c.Output.AuditLog = DefaultAuditLog
	}
	if c.Normalizer.Workers <= 0 {
		c.Normalizer.Workers = DefaultWorkers
	}
	if c.Enrichment.Provider == "" {
		c.Enrichment.Provider = ProviderHTTP
	}
	if c.Enrichment.APIKeyEnv == "" {
		c.Enrichment.APIKeyEnv = DefaultAPIKeyEnv
	}
	if c.Enrichment.Timeout <= 0 {
		c.Enrichment.Timeout = Duration(DefaultEnrichmentTimeout)
	}
	if c.Enrichment.MaxTokens <= 0 {
		c.Enrichment.MaxTokens = DefaultMaxTokens
	}
	if c.Enrichment.ConfidenceThreshold <= 0 {
		c.Enrichment.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if c.Enrichment.MaxConfidence <= 0 {
		c.Enrichment.MaxConfidence = DefaultMaxConfidence
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = Duration(DefaultDebounce)
	}
}

// Validate checks value ranges and cross-field requirements
func (c *Config) Validate() error {
	var problems []string

	if c.Normalizer.Workers < 1 {
		problems = append(problems, "normalizer.workers must be at least 1")
	}

	e := c.Enrichment
	if e.Temperature < 0 || e.Temperature > MaxTemperature {
		problems = append(problems, fmt.Sprintf("enrichment.temperature must be within [0, %.1f]", MaxTemperature))
	}
	if e.ConfidenceThreshold <= 0 || e.ConfidenceThreshold > 1 {
		problems = append(problems, "enrichment.confidence_threshold must be within (0, 1]")
	}
	if e.MaxConfidence <= 0 || e.MaxConfidence >= 1 {
		problems = append(problems, "enrichment.max_confidence must be within (0, 1)")
	}

	switch e.Provider {
	case ProviderHTTP:
		if e.Enabled && e.Endpoint == "" {
			problems = append(problems, "enrichment.endpoint is required for the http provider")
		}
	case ProviderStatic:
		if e.Enabled && e.StaticPath == "" {
			problems = append(problems, "enrichment.static_path is required for the static provider")
		}
	default:
		problems = append(problems, fmt.Sprintf("enrichment.provider %q is not one of http, static", e.Provider))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// OutputPath joins an artifact name onto the output directory.
// Absolute names are returned unchanged.
func (c *Config) OutputPath(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Output.Dir, name)
}

// APIKey reads the enrichment API key from the configured environment variable
func (c *Config) APIKey() string {
	if c.Enrichment.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Enrichment.APIKeyEnv)
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	summary := fmt.Sprintf("Input: %s, Output dir: %s, Workers: %d\n",
		c.Input.Path, c.Output.Dir, c.Normalizer.Workers)
	if c.Enrichment.Enabled {
		summary += fmt.Sprintf("Enrichment: %s (timeout %s, temperature %.2f, threshold %.2f)",
			c.Enrichment.Provider, c.Enrichment.Timeout.Duration(), c.Enrichment.Temperature,
			c.Enrichment.ConfidenceThreshold)
	} else {
		summary += "Enrichment: disabled"
	}
	return summary
}

// Defaults
const (
	DefaultInputPath           = "inventory_raw.csv"
	DefaultCleanCSV            = "inventory_clean.csv"
	DefaultAnomalies           = "anomalies.json"
	DefaultAuditLog            = "prompts.md"
	DefaultDatabasePath        = "./invnorm.db"
	DefaultWorkers             = 4
	DefaultEndpoint            = "http://127.0.0.1:8081"
	DefaultAPIKeyEnv           = "INVNORM_API_KEY"
	DefaultTemperature         = 0.1
	MaxTemperature             = 0.2
	DefaultEnrichmentTimeout   = 10 * time.Second
	DefaultMaxTokens           = 280
	DefaultConfidenceThreshold = 0.40
	DefaultMaxConfidence       = 0.9
	DefaultServerAddr          = ":8080"
	DefaultDebounce            = 500 * time.Millisecond
)
