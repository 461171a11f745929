// Package config holds the explicit configuration record passed into the
// controller. Loaded from a YAML file with environment overrides; missing
// files fall back to defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"redress/internal/synth"
)

// Config is the full redress configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Synthesis SynthesisConfig `yaml:"synthesis"`
	Bank      BankConfig      `yaml:"bank"`
	LLM       LLMConfig       `yaml:"llm"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SynthesisConfig bounds one CEGIS attempt.
type SynthesisConfig struct {
	MaxCandidates int    `yaml:"max_candidates"`
	MaxIters      int    `yaml:"max_iters"`
	Timeout       string `yaml:"timeout"`
}

// BankConfig configures the repair bank.
type BankConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LLMConfig configures the template proposer.
type LLMConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "redress",
		Version: "0.3.0",
		Synthesis: SynthesisConfig{
			MaxCandidates: 1000,
			MaxIters:      10,
			Timeout:       "60s",
		},
		Bank: BankConfig{
			Enabled: true,
			Path:    ".redress-bank.json",
		},
		LLM: LLMConfig{
			Enabled: true,
			Model:   "gemini-2.5-flash",
			Timeout: "60s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file returns the
// defaults. Environment variables are applied afterwards: REDRESS_BANK_PATH
// overrides the file value, GEMINI_API_KEY is used only when the file sets
// no API key.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
	}
	if path := os.Getenv("REDRESS_BANK_PATH"); path != "" {
		c.Bank.Path = path
	}
}

// Budget resolves the synthesis section into a synth.Budget.
func (c *Config) Budget() (synth.Budget, error) {
	timeout, err := time.ParseDuration(c.Synthesis.Timeout)
	if err != nil {
		return synth.Budget{}, fmt.Errorf("invalid synthesis timeout %q: %w", c.Synthesis.Timeout, err)
	}
	return synth.Budget{
		MaxCandidates: c.Synthesis.MaxCandidates,
		MaxIters:      c.Synthesis.MaxIters,
		Timeout:       timeout,
	}, nil
}

// LLMTimeout resolves the proposer timeout.
func (c *Config) LLMTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid llm timeout %q: %w", c.LLM.Timeout, err)
	}
	return d, nil
}
