// Package config loads this core's runtime configuration from YAML (via
// gopkg.in/yaml.v3), with
// environment variable overrides for values that should never live in a
// checked-in file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/leynos/wildside-core/pkg/idempotency"
	"github.com/leynos/wildside-core/pkg/log"
	"gopkg.in/yaml.v3"
)

// StoreConfig configures the PostgreSQL connection pool.
type StoreConfig struct {
	DSN            string        `yaml:"dsn"`
	MaxOpenConns   int           `yaml:"maxOpenConns"`
	MaxIdleConns   int           `yaml:"maxIdleConns"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
}

// EnrichmentWorkerConfig configures the Overpass enrichment worker's
// admission policy, concurrency, and backoff.
type EnrichmentWorkerConfig struct {
	SourceBaseURL          string        `yaml:"sourceBaseUrl"`
	SourceTimeout          time.Duration `yaml:"sourceTimeout"`
	MaxConcurrentCalls     int64         `yaml:"maxConcurrentCalls"`
	MaxRequestsPerDay      int64         `yaml:"maxRequestsPerDay"`
	MaxTransferBytesPerDay int64         `yaml:"maxTransferBytesPerDay"`
	CircuitFailureThreshold int          `yaml:"circuitFailureThreshold"`
	CircuitOpenCooldown    time.Duration `yaml:"circuitOpenCooldown"`
	MaxRetries             int           `yaml:"maxRetries"`
	BaseBackoff            time.Duration `yaml:"baseBackoff"`
	MaxBackoff             time.Duration `yaml:"maxBackoff"`
}

// MediatorConfig configures the idempotency mediation layer and its
// background sweep.
type MediatorConfig struct {
	RaceMaxRetries  int           `yaml:"raceMaxRetries"`
	RaceInterval    time.Duration `yaml:"raceInterval"`
	RecordTTL       time.Duration `yaml:"recordTtl"`
	SweepInterval   time.Duration `yaml:"sweepInterval"`
}

// LoggingConfig configures the global structured logger.
type LoggingConfig struct {
	Level      log.Level `yaml:"level"`
	JSONOutput bool      `yaml:"jsonOutput"`
}

// Config is the top-level configuration for every wildside-core entrypoint.
type Config struct {
	Store            StoreConfig            `yaml:"store"`
	EnrichmentWorker EnrichmentWorkerConfig `yaml:"enrichmentWorker"`
	Mediator         MediatorConfig         `yaml:"mediator"`
	Logging          LoggingConfig          `yaml:"logging"`
}

// Default returns a Config with the spec's documented defaults, before
// any file or environment overrides are applied.
func Default() Config {
	return Config{
		Store: StoreConfig{
			MaxOpenConns:   10,
			MaxIdleConns:   2,
			ConnectTimeout: 5 * time.Second,
		},
		EnrichmentWorker: EnrichmentWorkerConfig{
			SourceTimeout:           30 * time.Second,
			MaxConcurrentCalls:      4,
			MaxRequestsPerDay:       10000,
			MaxTransferBytesPerDay:  1 << 30,
			CircuitFailureThreshold: 5,
			CircuitOpenCooldown:     1 * time.Minute,
			MaxRetries:              5,
			BaseBackoff:             100 * time.Millisecond,
			MaxBackoff:              30 * time.Second,
		},
		Mediator: MediatorConfig{
			RaceMaxRetries: idempotency.DefaultRaceResolutionConfig().MaxRetries,
			RaceInterval:   idempotency.DefaultRaceResolutionConfig().Interval,
			RecordTTL:      24 * time.Hour,
			SweepInterval:  10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:      log.InfoLevel,
			JSONOutput: true,
		},
	}
}

// Load reads a YAML config file on top of Default, then applies the
// WILDSIDE_STORE_DSN environment override, which always wins over the
// file so secrets never need to be checked in.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if dsn := os.Getenv("WILDSIDE_STORE_DSN"); dsn != "" {
		cfg.Store.DSN = dsn
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects a configuration that would otherwise fail confusingly
// deep inside a repository or worker constructor.
func (c Config) Validate() error {
	if c.Store.DSN == "" {
		return fmt.Errorf("config: store.dsn (or WILDSIDE_STORE_DSN) must be set")
	}
	if c.EnrichmentWorker.MaxConcurrentCalls <= 0 {
		return fmt.Errorf("config: enrichmentWorker.maxConcurrentCalls must be positive")
	}
	if c.EnrichmentWorker.MaxRequestsPerDay <= 0 {
		return fmt.Errorf("config: enrichmentWorker.maxRequestsPerDay must be positive")
	}
	if c.EnrichmentWorker.MaxTransferBytesPerDay <= 0 {
		return fmt.Errorf("config: enrichmentWorker.maxTransferBytesPerDay must be positive")
	}
	if c.Mediator.RaceMaxRetries <= 0 {
		return fmt.Errorf("config: mediator.raceMaxRetries must be positive")
	}
	return nil
}
