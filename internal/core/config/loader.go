package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/deweblabs/txrelay/internal/core/domain"
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

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Webhook.Timeout == 0 {
		cfg.Webhook.Timeout = 10 * time.Second
	}
	if cfg.Webhook.MaxRetries == 0 {
		cfg.Webhook.MaxRetries = 3
	}

	for i := range cfg.Chains {
		c := &cfg.Chains[i]
		if !domain.KnownChains[c.Chain] {
			return nil, fmt.Errorf("unknown chain %q in config", c.Chain)
		}
		if c.ChainType == "" {
			c.ChainType = domain.ChainTypeMainnet
		}
		if c.Scheme == "" {
			c.Scheme = "sr25519"
		}
		if c.EraPeriod == 0 {
			c.EraPeriod = 64
		}
		if c.BlockParseSize == 0 {
			c.BlockParseSize = 10
		}
		if c.TransmitInterval == 0 {
			c.TransmitInterval = 30 * time.Second
		}
		if c.ReconcileInterval == 0 {
			c.ReconcileInterval = time.Minute
		}
	}

	return &cfg, nil
}
