package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	return &cfg, nil
}

func validate(cfg *AppConfig) error {
	if cfg.Algorand.ApplicationID == 0 {
		return fmt.Errorf("algorand.application_id is required")
	}
	if len(cfg.Algorand.Indexers) == 0 {
		return fmt.Errorf("at least one algorand indexer is required")
	}
	for i, idx := range cfg.Algorand.Indexers {
		if idx.URL == "" {
			return fmt.Errorf("algorand.indexers[%d].url is required", i)
		}
	}
	return nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Algorand.RequestTimeout == 0 {
		cfg.Algorand.RequestTimeout = 30 * time.Second
	}
	if cfg.Reconcile.Interval == 0 {
		cfg.Reconcile.Interval = 5 * time.Second
	}
	if cfg.Reconcile.SweepInterval == 0 {
		cfg.Reconcile.SweepInterval = 30 * time.Second
	}
	if cfg.Reconcile.MaxAttempts == 0 {
		cfg.Reconcile.MaxAttempts = 8
	}
	if cfg.Reconcile.InitialDelay == 0 {
		cfg.Reconcile.InitialDelay = 2 * time.Second
	}
	if cfg.Reconcile.MaxDelay == 0 {
		cfg.Reconcile.MaxDelay = 5 * time.Minute
	}
	if cfg.Reconcile.LockTTL == 0 {
		cfg.Reconcile.LockTTL = time.Minute
	}
	for i := range cfg.Algorand.Indexers {
		if cfg.Algorand.Indexers[i].Name == "" {
			cfg.Algorand.Indexers[i].Name = fmt.Sprintf("indexer-%d", i)
		}
	}
}
