package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Dir is the workspace-local directory for orchestrator files.
const Dir = ".prdpilot"

// Config holds campaign defaults. Flags override everything here.
type Config struct {
	Engine            string `yaml:"engine"`
	IntegrationBranch string `yaml:"integrationBranch"`
	ProgressLog       string `yaml:"progressLog"`
	SelfPath          string `yaml:"selfPath"`
}

// rawConfig distinguishes missing keys from explicit empty values.
type rawConfig struct {
	Engine            *string `yaml:"engine"`
	IntegrationBranch *string `yaml:"integrationBranch"`
	ProgressLog       *string `yaml:"progressLog"`
	SelfPath          *string `yaml:"selfPath"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Engine:            "claude",
		IntegrationBranch: "main",
		ProgressLog:       filepath.Join(Dir, "progress.log"),
		SelfPath:          "tools/prdpilot",
	}
}

// Validate checks the config fields.
func (c *Config) Validate() error {
	if c.Engine == "" {
		return fmt.Errorf("engine must not be empty")
	}
	if c.IntegrationBranch == "" {
		return fmt.Errorf("integrationBranch must not be empty")
	}
	if c.ProgressLog == "" {
		return fmt.Errorf("progressLog must not be empty")
	}
	return nil
}

// Load reads .prdpilot/config.yaml under dir, merged over defaults.
// A missing file just yields the defaults.
func Load(dir string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filepath.Join(dir, Dir, "config.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, err
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Only apply values whose keys were actually present.
	if raw.Engine != nil {
		cfg.Engine = *raw.Engine
	}
	if raw.IntegrationBranch != nil {
		cfg.IntegrationBranch = *raw.IntegrationBranch
	}
	if raw.ProgressLog != nil {
		cfg.ProgressLog = *raw.ProgressLog
	}
	if raw.SelfPath != nil {
		cfg.SelfPath = *raw.SelfPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
