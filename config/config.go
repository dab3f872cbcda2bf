// Package config loads runtime configuration from a YAML file with
// environment overrides for credentials and endpoints, so secrets stay out
// of checked-in files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with YAML support for "30s"-style strings.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Model selects and parameterizes the language model.
type Model struct {
	// Provider is "openai" or "anthropic". OpenAI-compatible endpoints
	// (set BaseURL) also use "openai".
	Provider string `yaml:"provider"`

	// Name is the provider model identifier.
	Name string `yaml:"name"`

	// APIKey is usually supplied via environment instead.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url"`

	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// ToolServer configures the stdio MCP data server subprocess.
type ToolServer struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// Limits bounds workflow execution.
type Limits struct {
	MaxSteps      int      `yaml:"max_steps"`
	MaxIterations int      `yaml:"max_iterations"`
	MaxRetries    int      `yaml:"max_retries"`
	ToolTimeout   Duration `yaml:"tool_timeout"`
	NodeTimeout   Duration `yaml:"node_timeout"`
}

// Cache configures the Redis tool-result cache.
type Cache struct {
	Enabled  bool     `yaml:"enabled"`
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	TTL      Duration `yaml:"ttl"`
}

// Logging configures log output.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the full runtime configuration.
type Config struct {
	Model      Model      `yaml:"model"`
	ToolServer ToolServer `yaml:"tool_server"`
	Limits     Limits     `yaml:"limits"`
	Cache      Cache      `yaml:"cache"`
	Logging    Logging    `yaml:"logging"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Model: Model{
			Provider:    "openai",
			Name:        "gpt-4o-mini",
			Temperature: 0.3,
			MaxTokens:   4096,
		},
		Limits: Limits{
			MaxSteps:      20,
			MaxIterations: 8,
			MaxRetries:    2,
			ToolTimeout:   Duration(30 * time.Second),
			NodeTimeout:   Duration(2 * time.Minute),
		},
		Cache: Cache{
			Addr: "localhost:6379",
			TTL:  Duration(15 * time.Minute),
		},
		Logging: Logging{Level: "info", Format: "text"},
	}
}

// Load reads the YAML file at path (optional), merges it over defaults and
// applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Environment variables recognized by applyEnv.
const (
	EnvAPIKey     = "FINSIGHT_API_KEY"
	EnvBaseURL    = "FINSIGHT_BASE_URL"
	EnvModelName  = "FINSIGHT_MODEL"
	EnvProvider   = "FINSIGHT_PROVIDER"
	EnvRedisAddr  = "FINSIGHT_REDIS_ADDR"
	EnvCacheOn    = "FINSIGHT_CACHE"
	EnvToolServer = "FINSIGHT_TOOL_SERVER"
)

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.Model.APIKey = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.Model.BaseURL = v
	}
	if v := os.Getenv(EnvModelName); v != "" {
		c.Model.Name = v
	}
	if v := os.Getenv(EnvProvider); v != "" {
		c.Model.Provider = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Cache.Addr = v
	}
	if v := os.Getenv(EnvCacheOn); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			c.Cache.Enabled = on
		}
	}
	if v := os.Getenv(EnvToolServer); v != "" {
		c.ToolServer.Command = v
		c.ToolServer.Args = nil
	}
}

func (c *Config) validate() error {
	switch c.Model.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("config: unknown model provider %q", c.Model.Provider)
	}
	if c.Limits.MaxSteps < 0 || c.Limits.MaxRetries < 0 {
		return fmt.Errorf("config: limits must be non-negative")
	}
	return nil
}
