// Package config parses and validates all application configuration from
// environment variables using caarlos0/env/v11.
//
// Call [Load] once at startup; pass the resulting [Config] to subcommands.
// The process exits if any field tagged "required" is missing.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration sourced from environment variables.
type Config struct {
	// ── Database ─────────────────────────────────────────────────────────────────
	DatabaseURL          string        `env:"DATABASE_URL,required"`
	DBMaxConns           int32         `env:"DB_MAX_CONNS"           envDefault:"10"`
	DBMaxConnIdleTime    time.Duration `env:"DB_MAX_CONN_IDLE_TIME"  envDefault:"5m"`
	DBStatementTimeoutMS int           `env:"DB_STATEMENT_TIMEOUT_MS" envDefault:"14000"`
	// DBQueryExecMode: "simple_protocol" (PgBouncer-compatible) or "extended_protocol".
	DBQueryExecMode string `env:"DB_QUERY_EXEC_MODE" envDefault:"simple_protocol"`

	// ── Worker ───────────────────────────────────────────────────────────────────
	// WorkerCount is the number of concurrent dispatcher loops. Each loop
	// claims at most one job per tick; claims never block on each other.
	WorkerCount  int           `env:"WORKER_COUNT"  envDefault:"2"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"2s"`
	// JobTimeout bounds a single handler run, independent of the feed
	// fetcher's own HTTP timeout.
	JobTimeout time.Duration `env:"JOB_TIMEOUT" envDefault:"2m"`

	// ── Feeds ────────────────────────────────────────────────────────────────────
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`
	// HydrateInterval is how often the scheduler enqueues a hydrate_all job.
	HydrateInterval time.Duration `env:"HYDRATE_INTERVAL" envDefault:"1h"`
	// HydrantStaleAfter is the age at which a hydrant is due for another fetch.
	HydrantStaleAfter time.Duration `env:"HYDRANT_STALE_AFTER" envDefault:"1h"`

	// ── Job retention ────────────────────────────────────────────────────────────
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`
	// JobRetention is how long successfully finished job rows are kept.
	// Failed jobs are retained indefinitely for inspection.
	JobRetention time.Duration `env:"JOB_RETENTION" envDefault:"168h"`

	// ── Process ──────────────────────────────────────────────────────────────────
	AppEnv                 string `env:"APP_ENV"                  envDefault:"development"`
	ShutdownTimeoutSeconds int    `env:"SHUTDOWN_TIMEOUT_SECONDS" envDefault:"60"`

	// ── Logging ──────────────────────────────────────────────────────────────────
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load parses and returns Config from environment variables.
// Returns an error if any required field is missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment reports whether the application is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}
