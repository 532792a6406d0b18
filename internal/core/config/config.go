package config

import (
	"time"

	redisclient "github.com/algoease/backend/internal/infra/redis"
	"github.com/algoease/backend/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Algorand  AlgorandConfig     `yaml:"algorand"`
	Reconcile ReconcileConfig    `yaml:"reconcile"`
	Redis     redisclient.Config `yaml:"redis"`
	Logging   LoggingConfig      `yaml:"logging"`
	Database  postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// AlgorandConfig holds settings for the escrow application and its indexers.
type AlgorandConfig struct {
	ApplicationID  uint64            `yaml:"application_id"`
	EscrowAddress  string            `yaml:"escrow_address"`
	RequestTimeout time.Duration     `yaml:"request_timeout"`
	Indexers       []IndexerProvider `yaml:"indexers"`
}

// IndexerProvider holds settings for one indexer endpoint.
type IndexerProvider struct {
	Name  string `yaml:"name"`
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// ReconcileConfig holds settings for the reconciliation workers.
type ReconcileConfig struct {
	Interval      time.Duration `yaml:"interval"`       // queue drain cadence
	SweepInterval time.Duration `yaml:"sweep_interval"` // status drift sweep cadence
	MaxAttempts   int           `yaml:"max_attempts"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	Retention     time.Duration `yaml:"retention"` // resolved task retention, 0 = infinite
	LockTTL       time.Duration `yaml:"lock_ttl"`
}
