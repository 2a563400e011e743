package database

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfigOptions tunes the pgxpool.Config NewPostgresDB builds its pool
// from (spec §6's Postgres ServiceEndpoint only names host/port/timeout;
// pool sizing is an implementation detail this type owns).
type PoolConfigOptions struct {
	MaxConns               int32
	MinConns               int32
	MaxConnLifetime        time.Duration
	MaxConnIdleTime        time.Duration
	HealthCheckPeriod      time.Duration
	ConnectTimeout         time.Duration
	EnableStatementCache   bool
	StatementCacheCapacity int
	PreferSimpleProtocol   bool
	ApplicationName        string
}

// DefaultPoolOptions returns the pool profile NewPostgresDB uses by
// default: sized off the host's CPU count, clamped to a sane range for a
// single relational-store collaborator.
func DefaultPoolOptions() *PoolConfigOptions {
	cpuCount := int32(runtime.NumCPU()) // #nosec G115 - CPU count fits in int32
	// Rule of thumb: (2 * CPU cores) + effective spindle count (1 for SSD)
	maxConns := cpuCount*2 + 1
	if maxConns < 10 {
		maxConns = 10
	}
	if maxConns > 50 {
		maxConns = 50
	}

	return &PoolConfigOptions{
		MaxConns:               maxConns,
		MinConns:               cpuCount / 2,
		MaxConnLifetime:        time.Hour,
		MaxConnIdleTime:        30 * time.Minute,
		HealthCheckPeriod:      30 * time.Second,
		ConnectTimeout:         5 * time.Second,
		EnableStatementCache:   true,
		StatementCacheCapacity: 512,
		PreferSimpleProtocol:   true,
		ApplicationName:        "helix-onboarding",
	}
}

// HighPerformancePoolOptions returns a profile for a deployment that trades
// idle-connection overhead for lower acquire latency under sustained load.
func HighPerformancePoolOptions() *PoolConfigOptions {
	cpuCount := int32(runtime.NumCPU()) // #nosec G115 - CPU count fits in int32
	maxConns := cpuCount * 4
	if maxConns < 20 {
		maxConns = 20
	}
	if maxConns > 100 {
		maxConns = 100
	}

	return &PoolConfigOptions{
		MaxConns:               maxConns,
		MinConns:               maxConns / 2,
		MaxConnLifetime:        30 * time.Minute,
		MaxConnIdleTime:        10 * time.Minute,
		HealthCheckPeriod:      15 * time.Second,
		ConnectTimeout:         3 * time.Second,
		EnableStatementCache:   true,
		StatementCacheCapacity: 1024,
		PreferSimpleProtocol:   true,
		ApplicationName:        "helix-onboarding-high-perf",
	}
}

// LowLatencyPoolOptions returns a profile for a deployment that favors fast
// connect/health-check cycles over holding many idle connections.
func LowLatencyPoolOptions() *PoolConfigOptions {
	cpuCount := int32(runtime.NumCPU()) // #nosec G115 - CPU count fits in int32

	return &PoolConfigOptions{
		MaxConns:               cpuCount * 2,
		MinConns:               cpuCount,
		MaxConnLifetime:        15 * time.Minute,
		MaxConnIdleTime:        5 * time.Minute,
		HealthCheckPeriod:      10 * time.Second,
		ConnectTimeout:         1 * time.Second,
		EnableStatementCache:   true,
		StatementCacheCapacity: 256,
		PreferSimpleProtocol:   true,
		ApplicationName:        "helix-onboarding-low-latency",
	}
}

// CreateOptimizedPoolConfig builds a pgxpool.Config from connString, applying
// opts (DefaultPoolOptions if nil). NewPostgresDB calls this instead of
// pgxpool.ParseConfig directly so every deployment profile goes through one
// place.
func CreateOptimizedPoolConfig(connString string, opts *PoolConfigOptions) (*pgxpool.Config, error) {
	if opts == nil {
		opts = DefaultPoolOptions()
	}

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	config.MaxConns = opts.MaxConns
	config.MinConns = opts.MinConns
	config.MaxConnLifetime = opts.MaxConnLifetime
	config.MaxConnIdleTime = opts.MaxConnIdleTime
	config.HealthCheckPeriod = opts.HealthCheckPeriod

	config.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	config.ConnConfig.RuntimeParams["application_name"] = opts.ApplicationName

	if opts.EnableStatementCache {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	}
	if opts.PreferSimpleProtocol {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}

	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if _, err := conn.Exec(ctx, "SET synchronous_commit = off"); err != nil {
			return fmt.Errorf("set synchronous_commit: %w", err)
		}
		return nil
	}

	return config, nil
}
