// Package config loads and validates the gateway configuration.
//
// DESIGN: One Config struct mirrors the YAML file. Credentials may reference
// environment variables as ${VAR}; expansion happens before parsing so keys
// never need to live in the file. Defaults are applied after parsing, so a
// minimal config (or none at all) still yields a working pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the terminal gateway.
type Config struct {
	Buffer     BufferConfig              `yaml:"buffer"`
	Cache      CacheConfig               `yaml:"cache"`
	Estimator  EstimatorConfig           `yaml:"estimator"`
	Sizing     SizingConfig              `yaml:"sizing"`
	Providers  map[string]ProviderConfig `yaml:"providers"`
	Active     string                    `yaml:"active_provider"`
	Feed       FeedConfig                `yaml:"feed"`
	Monitoring MonitoringConfig          `yaml:"monitoring"`
	Logging    LoggingConfig             `yaml:"logging"`
}

// BufferConfig controls the terminal line buffer.
type BufferConfig struct {
	Capacity int `yaml:"capacity"`  // Lines retained. 0 = default.
	MinLines int `yaml:"min_lines"` // Lower bound for SetMaxLines.
}

// CacheConfig controls the formatted-context cache.
type CacheConfig struct {
	Enabled    *bool    `yaml:"enabled"` // nil = enabled
	TTL        Duration `yaml:"ttl"`
	MaxEntries int      `yaml:"max_entries"`
}

// EstimatorConfig selects the token estimator.
type EstimatorConfig struct {
	Kind          string  `yaml:"kind"`            // "heuristic" (default) or "tiktoken"
	CharsPerToken float64 `yaml:"chars_per_token"` // Heuristic ratio. 0 = default.
	Encoding      string  `yaml:"encoding"`        // Tiktoken encoding name.
}

// SizingConfig mirrors the context sizing policy.
type SizingConfig struct {
	Mode       string  `yaml:"mode"` // "auto", "fixed", or "percentage"
	FixedSize  int     `yaml:"fixed_size"`
	Percentage float64 `yaml:"percentage"`
	MinLines   int     `yaml:"min_lines"`
	MaxLines   int     `yaml:"max_lines"`
	MinTokens  int     `yaml:"min_tokens"`
	MaxTokens  int     `yaml:"max_tokens"`
}

// ProviderConfig holds per-provider settings. APIKey supports ${VAR} expansion.
type ProviderConfig struct {
	Model       string   `yaml:"model"`
	APIKey      string   `yaml:"api_key"`
	Endpoint    string   `yaml:"endpoint"` // Empty = provider default.
	Region      string   `yaml:"region"`   // Bedrock only.
	Temperature float64  `yaml:"temperature"`
	TopP        float64  `yaml:"top_p"`
	MaxTokens   int      `yaml:"max_tokens"`
	MaxRetries  int      `yaml:"max_retries"`
	Timeout     Duration `yaml:"timeout"`
}

// FeedConfig controls the terminal feed server.
type FeedConfig struct {
	Listen string `yaml:"listen"` // host:port, loopback recommended
}

// MonitoringConfig controls telemetry outputs.
type MonitoringConfig struct {
	Enabled       *bool  `yaml:"enabled"`        // nil = enabled
	TelemetryPath string `yaml:"telemetry_path"` // JSONL record log. Empty = state dir default.
	UsageDBPath   string `yaml:"usage_db_path"`  // SQLite usage store. Empty = state dir default.
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // trace|debug|info|warn|error. Empty = info.
	Pretty bool   `yaml:"pretty"` // Console writer instead of JSON.
}

// Duration wraps time.Duration so YAML can use values like "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML parses a duration string or a bare number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs int64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration value on line %d", value.Line)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// MarshalYAML renders the duration in Go syntax.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// envRef matches ${VAR} references inside config values.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv replaces ${VAR} references with environment values.
// Unset variables expand to the empty string.
func ExpandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(m[2 : len(m)-1])
	})
}

// Load reads, expands, parses, defaults, and validates a config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- path comes from the CLI flag
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(raw))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a config with every field at its default value.
// The result is valid without any providers; provider-dependent commands
// check for configured providers separately.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero fields with the documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Buffer.Capacity <= 0 {
		c.Buffer.Capacity = DefaultBufferCapacity
	}
	if c.Buffer.MinLines <= 0 {
		c.Buffer.MinLines = DefaultMinContextLines
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = Duration(DefaultCacheTTL)
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = DefaultCacheMaxEntries
	}
	if c.Estimator.Kind == "" {
		c.Estimator.Kind = "heuristic"
	}
	if c.Estimator.CharsPerToken <= 0 {
		c.Estimator.CharsPerToken = DefaultCharsPerToken
	}
	if c.Estimator.Encoding == "" {
		c.Estimator.Encoding = DefaultTiktokenEncoding
	}
	if c.Sizing.Mode == "" {
		c.Sizing.Mode = "auto"
	}
	if c.Feed.Listen == "" {
		c.Feed.Listen = DefaultFeedListen
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	for name, p := range c.Providers {
		if p.Temperature == 0 {
			p.Temperature = DefaultTemperature
		}
		if p.MaxTokens <= 0 {
			p.MaxTokens = DefaultMaxTokens
		}
		if p.MaxRetries <= 0 {
			p.MaxRetries = DefaultMaxRetries
		}
		if p.Timeout <= 0 {
			p.Timeout = Duration(DefaultRequestTimeout)
		}
		c.Providers[name] = p
	}
}

// CacheEnabled reports whether the context cache should be active.
func (c *Config) CacheEnabled() bool {
	return c.Cache.Enabled == nil || *c.Cache.Enabled
}

// MonitoringEnabled reports whether telemetry and the usage store should run.
func (c *Config) MonitoringEnabled() bool {
	return c.Monitoring.Enabled == nil || *c.Monitoring.Enabled
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	switch c.Estimator.Kind {
	case "heuristic", "tiktoken":
	default:
		return fmt.Errorf("estimator.kind must be heuristic or tiktoken, got %q", c.Estimator.Kind)
	}

	switch c.Sizing.Mode {
	case "auto", "fixed", "percentage":
	default:
		return fmt.Errorf("sizing.mode must be auto, fixed, or percentage, got %q", c.Sizing.Mode)
	}
	if c.Sizing.Mode == "fixed" && c.Sizing.FixedSize <= 0 {
		return fmt.Errorf("sizing.fixed_size must be > 0 in fixed mode, got %d", c.Sizing.FixedSize)
	}
	if c.Sizing.Percentage < 0 || c.Sizing.Percentage > 1 {
		return fmt.Errorf("sizing.percentage must be within [0,1], got %g", c.Sizing.Percentage)
	}
	if c.Sizing.MinLines < 0 {
		return fmt.Errorf("sizing.min_lines must be >= 0, got %d", c.Sizing.MinLines)
	}
	if c.Sizing.MaxLines > 0 && c.Sizing.MaxLines < c.Sizing.MinLines {
		return fmt.Errorf("sizing.max_lines %d is below min_lines %d", c.Sizing.MaxLines, c.Sizing.MinLines)
	}
	if c.Sizing.MinTokens < 0 {
		return fmt.Errorf("sizing.min_tokens must be >= 0, got %d", c.Sizing.MinTokens)
	}
	if c.Sizing.MaxTokens > 0 && c.Sizing.MaxTokens < c.Sizing.MinTokens {
		return fmt.Errorf("sizing.max_tokens %d is below min_tokens %d", c.Sizing.MaxTokens, c.Sizing.MinTokens)
	}

	for name, p := range c.Providers {
		if err := validateProvider(name, p); err != nil {
			return err
		}
	}
	if c.Active != "" {
		if _, ok := c.Providers[c.Active]; !ok {
			return fmt.Errorf("active_provider %q has no providers entry", c.Active)
		}
	}
	return nil
}

func validateProvider(name string, p ProviderConfig) error {
	if p.Model == "" {
		return fmt.Errorf("providers.%s.model is required", name)
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		return fmt.Errorf("providers.%s.temperature must be within [0,2], got %g", name, p.Temperature)
	}
	if p.TopP < 0 || p.TopP > 1 {
		return fmt.Errorf("providers.%s.top_p must be within [0,1], got %g", name, p.TopP)
	}
	switch name {
	case "ollama":
		// Local runtime, no key needed.
	case "bedrock":
		if p.Region == "" {
			return fmt.Errorf("providers.bedrock.region is required")
		}
	default:
		if p.APIKey == "" {
			return fmt.Errorf("providers.%s.api_key is required (use ${ENV_VAR} to reference the environment)", name)
		}
	}
	return nil
}

// StateDir returns the directory for runtime state (telemetry, usage DB),
// creating it if needed.
func StateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "", fmt.Errorf("failed to resolve user home directory: %w", err)
	}
	dir := filepath.Join(home, ".config", "terminal-gateway")
	// #nosec G301 -- state directory permissions
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	return dir, nil
}

// DefaultConfigPath returns the conventional config file location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".config", "terminal-gateway", "config.yaml")
}
