package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"dev.helix.onboarding/internal/config"
)

// PostgresDB wraps the pool backing the relational store collaborator
// (spec §6: get_user, list_tasks, append_message, append_routing_log, and
// CRUD for the cache table).
type PostgresDB struct {
	pool *pgxpool.Pool
}

// NewPostgresDB connects to Postgres using cfg.Postgres, applying
// environment defaults for credentials the ServiceEndpoint doesn't carry.
// The pool itself is built through CreateOptimizedPoolConfig/
// DefaultPoolOptions rather than a bare pgxpool.ParseConfig, so connection
// lifetime, health-check cadence and query execution mode are set instead of
// left at the driver's defaults. With DefaultPoolOptions, PreferSimpleProtocol
// takes precedence, so statements run over the simple protocol uncached.
func NewPostgresDB(cfg *config.Config) (*PostgresDB, error) {
	host := cfg.Postgres.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Postgres.Port
	if port == "" {
		port = "5432"
	}
	user := getEnv("DB_USER", "helixagent")
	password := getEnv("DB_PASSWORD", "secret")
	dbName := getEnv("DB_NAME", "helixagent_db")
	sslMode := getEnv("DB_SSL_MODE", "disable")

	connString := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, dbName, sslMode)

	timeout := cfg.Postgres.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	poolOpts := DefaultPoolOptions()
	poolOpts.ConnectTimeout = timeout
	poolConfig, err := CreateOptimizedPoolConfig(connString, poolOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to build pool config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		log.Printf("warning: database connection test failed: %v", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Ping checks connectivity.
func (p *PostgresDB) Ping() error {
	return p.pool.Ping(context.Background())
}

// Close releases the pool.
func (p *PostgresDB) Close() error {
	p.pool.Close()
	return nil
}

// Pool returns the underlying connection pool for repository construction.
func (p *PostgresDB) Pool() *pgxpool.Pool {
	return p.pool
}

// HealthCheck performs a bounded health check on the database.
func (p *PostgresDB) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return p.pool.Ping(ctx)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// migrations creates the tables the relational store collaborator owns
// (spec §6): users, onboarding_tasks, conversation_messages, routing_log
// and cache_entries. No repository in this package reads or writes
// cache_entries; internal/cache mirrors its entries to Redis, not here.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id VARCHAR(255) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		role VARCHAR(255) NOT NULL,
		department VARCHAR(100) NOT NULL,
		type VARCHAR(50) NOT NULL,
		language VARCHAR(10) DEFAULT 'en'
	)`,

	`CREATE TABLE IF NOT EXISTS onboarding_tasks (
		id SERIAL PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		title VARCHAR(500) NOT NULL,
		status VARCHAR(50) NOT NULL DEFAULT 'NOT_STARTED',
		due_date TIMESTAMP WITH TIME ZONE
	)`,

	`CREATE TABLE IF NOT EXISTS conversation_messages (
		id SERIAL PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		session_id VARCHAR(255),
		role VARCHAR(20) NOT NULL,
		content TEXT NOT NULL,
		department VARCHAR(100),
		language VARCHAR(10),
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS routing_log (
		id SERIAL PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		query TEXT NOT NULL,
		departments JSONB NOT NULL DEFAULT '[]',
		matched_rule VARCHAR(100),
		matched_intents JSONB NOT NULL DEFAULT '[]',
		classifier_confidence DOUBLE PRECISION,
		final_confidence DOUBLE PRECISION,
		confidence_level VARCHAR(20),
		escalated BOOLEAN DEFAULT FALSE,
		escalation_reason VARCHAR(100),
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS cache_entries (
		query_hash VARCHAR(64) PRIMARY KEY,
		department VARCHAR(100),
		response JSONB NOT NULL,
		hit_count BIGINT DEFAULT 0,
		is_valid BOOLEAN DEFAULT TRUE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		last_accessed TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		expires_at TIMESTAMP WITH TIME ZONE
	)`,

	`CREATE INDEX IF NOT EXISTS idx_onboarding_tasks_user_id ON onboarding_tasks(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_conversation_messages_user_id ON conversation_messages(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_routing_log_user_id ON routing_log(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_cache_entries_department ON cache_entries(department)`,
}

// RunMigrations applies the relational store collaborator's schema.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
