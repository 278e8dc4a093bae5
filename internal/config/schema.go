package config

import (
	"time"

	"invnorm/internal/logger"
)

// Config is the root configuration structure
type Config struct {
	Version    int              `yaml:"version"`
	Input      InputConfig      `yaml:"input"`
	Output     OutputConfig     `yaml:"output"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    logger.Config    `yaml:"logging"`
	Normalizer NormalizerConfig `yaml:"normalizer"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Server     ServerConfig     `yaml:"server"`
	Watch      WatchConfig      `yaml:"watch"`
}

// InputConfig names the raw inventory file
type InputConfig struct {
	Path string `yaml:"path"`
}

// OutputConfig names the artifacts written by a run, relative to Dir
type OutputConfig struct {
	Dir       string `yaml:"dir"`
	CleanCSV  string `yaml:"clean_csv"`
	Anomalies string `yaml:"anomalies"`
	AuditLog  string `yaml:"audit_log"`
	YAML      string `yaml:"yaml,omitempty"` // optional YAML copy of the clean records
	JSON      string `yaml:"json,omitempty"` // optional JSON copy of the clean records
}

// DatabaseConfig holds database settings. An empty path disables run history.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// NormalizerConfig tunes the row worker pool
type NormalizerConfig struct {
	Workers int `yaml:"workers"`
}

// Provider selects the enrichment collaborator implementation
type Provider string

const (
	ProviderHTTP   Provider = "http"   // OpenAI-compatible chat completions endpoint
	ProviderStatic Provider = "static" // canned answers keyed by row id, for dry runs
)

// EnrichmentConfig configures the optional ambiguity resolver
type EnrichmentConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Provider   Provider `yaml:"provider"`
	Endpoint   string   `yaml:"endpoint,omitempty"`
	Model      string   `yaml:"model,omitempty"`
	APIKeyEnv  string   `yaml:"api_key_env,omitempty"` // name of the variable, never the key
	StaticPath string   `yaml:"static_path,omitempty"`

	Temperature float64  `yaml:"temperature"`
	Timeout     Duration `yaml:"timeout"`
	MaxTokens   int      `yaml:"max_tokens"`

	// ConfidenceThreshold marks a rule-derived device type as ambiguous below it
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	// MaxConfidence caps the confidence attached to an enriched device type
	MaxConfidence float64 `yaml:"max_confidence"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// WatchConfig tunes watch mode
type WatchConfig struct {
	Debounce Duration `yaml:"debounce"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
