// Package config loads the provider-layer configuration: which providers to
// register, their quotas and models, cache settings, and preset overlays.
// Precedence is defaults, then the YAML file, then environment variables.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("llmcore.yaml").
//	    WithEnvPrefix("LLMCORE").
//	    Load()
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete provider-layer configuration.
type Config struct {
	// Providers are registered on the router in listed order; the order is
	// the fallback order.
	Providers []ProviderConfig `yaml:"providers"`

	// PresetsFile points at an optional YAML preset overlay.
	PresetsFile string `yaml:"presets_file"`

	Cache CacheConfig `yaml:"cache"`
	Log   LogConfig   `yaml:"log"`
}

// ProviderConfig declares one provider registration.
type ProviderConfig struct {
	// Type is the adapter family: openai, anthropic, google, custom, ollama.
	Type string `yaml:"type"`
	// Preset names a registry preset; implies type custom.
	Preset string `yaml:"preset"`
	// APIKeyEnv names the environment variable holding the credential. Keys
	// never live in the file itself.
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`

	RequestsPerMinute int `yaml:"requests_per_minute"`
	TokensPerMinute   int `yaml:"tokens_per_minute"`

	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig configures the shared response/embedding cache.
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns the baseline configuration.
func Defaults() *Config {
	return &Config{
		Cache: CacheConfig{
			Enabled: false,
			Addr:    "localhost:6379",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Loader builds a Config with layered precedence.
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader creates a loader with no file and the LLMCORE env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "LLMCORE"}
}

// WithConfigPath sets the YAML file to load. A missing file is not an error;
// defaults and environment still apply.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load resolves the configuration: defaults, then file, then environment.
func (l *Loader) Load() (*Config, error) {
	cfg := Defaults()

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", l.configPath, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", l.configPath, err)
			}
		}
	}

	l.applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) applyEnv(cfg *Config) {
	if v, ok := l.env("CACHE_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cache.Enabled = b
		}
	}
	if v, ok := l.env("CACHE_ADDR"); ok {
		cfg.Cache.Addr = v
	}
	if v, ok := l.env("CACHE_PASSWORD"); ok {
		cfg.Cache.Password = v
	}
	if v, ok := l.env("CACHE_DB"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = n
		}
	}
	if v, ok := l.env("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := l.env("LOG_FORMAT"); ok {
		cfg.Log.Format = v
	}
	if v, ok := l.env("PRESETS_FILE"); ok {
		cfg.PresetsFile = v
	}
}

func (l *Loader) env(key string) (string, bool) {
	return os.LookupEnv(l.envPrefix + "_" + key)
}

// Validate rejects configurations that cannot produce a working router.
func (c *Config) Validate() error {
	for i, p := range c.Providers {
		if p.Type == "" && p.Preset == "" {
			return fmt.Errorf("provider %d: one of type or preset is required", i)
		}
		if p.Type != "" && p.Preset != "" {
			return fmt.Errorf("provider %d: type and preset are mutually exclusive", i)
		}
		switch p.Type {
		case "", "openai", "anthropic", "google", "custom", "ollama":
		default:
			return fmt.Errorf("provider %d: unknown type %q", i, p.Type)
		}
	}
	if c.Log.Level != "" {
		switch strings.ToLower(c.Log.Level) {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("unknown log level %q", c.Log.Level)
		}
	}
	return nil
}

// APIKey resolves the provider's credential from its declared environment
// variable. Empty when none is declared or set; the factory applies its own
// per-family fallback afterwards.
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}
