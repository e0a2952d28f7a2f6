package config

import (
	"time"

	"github.com/deweblabs/txrelay/internal/core/domain"
	redisclient "github.com/deweblabs/txrelay/internal/infra/redis"
	"github.com/deweblabs/txrelay/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Chains   []ChainConfig      `yaml:"chains"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
	Webhook  WebhookConfig      `yaml:"webhook"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// WebhookConfig holds the downstream notification endpoint.
type WebhookConfig struct {
	URL        string        `yaml:"url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries uint64        `yaml:"max_retries"`
}

// ChainConfig holds settings for a specific chain deployment.
type ChainConfig struct {
	Chain       domain.Chain     `yaml:"chain"`
	ChainType   domain.ChainType `yaml:"chain_type"`
	Endpoint    string           `yaml:"endpoint"`     // node JSON-RPC URL
	IndexerURL  string           `yaml:"indexer_url"`  // GraphQL indexer URL
	Scheme      string           `yaml:"scheme"`       // sr25519, ed25519
	GenesisHash string           `yaml:"genesis_hash"` // hex, 32 bytes
	SpecVersion uint32           `yaml:"spec_version"`
	TxVersion   uint32           `yaml:"tx_version"`

	// EraPeriod bounds how many blocks a signed transaction stays valid.
	EraPeriod uint64 `yaml:"era_period"`

	// BlockParseSize is used for newly provisioned wallets; existing wallets
	// keep their stored window size.
	BlockParseSize uint64 `yaml:"block_parse_size"`

	TransmitInterval  time.Duration `yaml:"transmit_interval"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
}

// Ref returns the chain scope of this config entry.
func (c ChainConfig) Ref() domain.ChainRef {
	return domain.ChainRef{Chain: c.Chain, ChainType: c.ChainType}
}
