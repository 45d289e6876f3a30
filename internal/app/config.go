package app

import "time"

// Config describes the runtime settings for the distribution service.
type Config struct {
	GRPCAddr    string
	MetricsAddr string

	// PostgresDSN selects the Postgres-backed Store Gateway when non-empty;
	// the in-memory Store Gateway is used otherwise (local/dev runs).
	PostgresDSN string

	// KafkaBrokers, comma-separated, enables the outbox publisher and the
	// four trigger consumer groups (§6.3) when non-empty.
	KafkaBrokers string

	OutboxPollInterval         time.Duration
	IdempotencyCleanupInterval time.Duration
}

// DefaultConfig returns the base addresses and intervals for a local run.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:                   ":50051",
		MetricsAddr:                ":9090",
		OutboxPollInterval:         2 * time.Second,
		IdempotencyCleanupInterval: 10 * time.Minute,
	}
}
