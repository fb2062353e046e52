package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DefaultLLM string                    `toml:"default_llm"`
	LLMs       map[string]*LLMConfig     `toml:"llm"`
	Agent      AgentConfig               `toml:"agent"`
	Prompts    map[string]string         `toml:"prompts"`
	Gateway    GatewayConfig             `toml:"gateway"`
	Channels   map[string]*ChannelConfig `toml:"channel"`
	DB         DBConfig                  `toml:"db"`
	Trace      TraceConfig               `toml:"trace"`
	Services   ServicesConfig            `toml:"services"`
}

type LLMConfig struct {
	Model           string   `toml:"model"`
	BaseURL         string   `toml:"base_url"`
	APIKey          string   `toml:"api_key"`
	Temperature     *float64 `toml:"temperature"`
	MaxOutputTokens int64    `toml:"max_output_tokens"`
}

type AgentConfig struct {
	MaxIterations int    `toml:"max_iterations"`
	SystemPrompt  string `toml:"system_prompt"`
	Language      string `toml:"language"`
}

type GatewayConfig struct {
	Addr  string `toml:"addr"`
	Token string `toml:"token"`
}

type ChannelConfig struct {
	Enabled  bool              `toml:"enabled"`
	Type     string            `toml:"type"`
	Settings map[string]string `toml:"settings"`
}

type DBConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type TraceConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
	URLPath  string `toml:"url_path"`
	APIKey   string `toml:"api_key"`
	Insecure bool   `toml:"insecure"`
}

type ServicesConfig struct {
	Brave BraveConfig `toml:"brave"`
}

type BraveConfig struct {
	APIKey string `toml:"api_key"`
}

func Default() *Config {
	return &Config{
		DefaultLLM: "openai",
		LLMs: map[string]*LLMConfig{
			"openai": {
				Model:   "gpt-4o-mini",
				BaseURL: "https://api.openai.com/v1",
			},
		},
		Agent: AgentConfig{
			MaxIterations: 5,
			Language:      "Spanish",
		},
		Gateway: GatewayConfig{
			Addr: ":8484",
		},
		DB: DBConfig{
			Enabled: true,
			Path:    defaultDBPath(),
		},
	}
}

// Load reads path (or the default config path when empty) over the
// defaults, then applies environment overrides. A missing file at the
// default location is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = Path()
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg.fillDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fillDefaults restores built-in fields for LLM entries the file only
// partially redefined, since decoding replaces whole map values.
func (c *Config) fillDefaults() {
	for name, d := range Default().LLMs {
		l, ok := c.LLMs[name]
		if !ok || l == nil {
			continue
		}
		if l.Model == "" {
			l.Model = d.Model
		}
		if l.BaseURL == "" {
			l.BaseURL = d.BaseURL
		}
	}
}

func (c *Config) applyEnv() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		for _, l := range c.LLMs {
			if l.APIKey == "" {
				l.APIKey = key
			}
		}
	}
	if model := os.Getenv("SUMMA_MODEL"); model != "" {
		if l, ok := c.LLMs[c.DefaultLLM]; ok {
			l.Model = model
		}
	}
	if key := os.Getenv("BRAVE_API_KEY"); key != "" && c.Services.Brave.APIKey == "" {
		c.Services.Brave.APIKey = key
	}
}

func (c *Config) Validate() error {
	l, ok := c.LLMs[c.DefaultLLM]
	if !ok || l == nil {
		return fmt.Errorf("default LLM %q not found in config", c.DefaultLLM)
	}
	if l.Model == "" {
		return fmt.Errorf("LLM %q has no model", c.DefaultLLM)
	}
	if c.Agent.MaxIterations < 1 {
		return errors.New("agent.max_iterations must be at least 1")
	}
	if c.Agent.Language == "" {
		return errors.New("agent.language must not be empty")
	}
	return nil
}

// LLM returns the default LLM configuration.
func (c *Config) LLM() *LLMConfig {
	return c.LLMs[c.DefaultLLM]
}

func Path() string {
	dir, _ := os.UserConfigDir()
	return filepath.Join(dir, "summa", "config.toml")
}

func defaultDBPath() string {
	dir, _ := os.UserHomeDir()
	return filepath.Join(dir, ".local", "share", "summa", "summa.db")
}
