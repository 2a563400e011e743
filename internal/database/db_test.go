package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.helix.onboarding/internal/config"
)

func TestGetEnv(t *testing.T) {
	t.Run("ReturnsEnvValueWhenSet", func(t *testing.T) {
		os.Setenv("DB_TEST_KEY", "explicit")
		defer os.Unsetenv("DB_TEST_KEY")
		assert.Equal(t, "explicit", getEnv("DB_TEST_KEY", "fallback"))
	})

	t.Run("ReturnsDefaultWhenUnset", func(t *testing.T) {
		os.Unsetenv("DB_TEST_KEY_UNSET")
		assert.Equal(t, "fallback", getEnv("DB_TEST_KEY_UNSET", "fallback"))
	})
}

func TestNewPostgresDB(t *testing.T) {
	cfg := &config.Config{
		Postgres: config.ServiceEndpoint{Host: "localhost", Port: "5432", Timeout: 2 * time.Second},
	}

	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("skipping: could not construct pool: %v", err)
		return
	}
	require.NotNil(t, db)
	require.NotNil(t, db.Pool())
	defer db.Close()
}

func TestNewPostgresDB_DefaultsHostAndPortWhenUnset(t *testing.T) {
	cfg := &config.Config{Postgres: config.ServiceEndpoint{}}

	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("skipping: could not construct pool: %v", err)
		return
	}
	require.NotNil(t, db)
	defer db.Close()
}

func TestPostgresDB_Ping(t *testing.T) {
	cfg := &config.Config{Postgres: config.ServiceEndpoint{Host: "localhost", Port: "5432"}}
	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("skipping: could not construct pool: %v", err)
		return
	}
	defer db.Close()

	// Confirms the method is wired through to the pool; connection failures
	// against a real server are expected in this environment.
	_ = db.Ping()
}

func TestPostgresDB_HealthCheck(t *testing.T) {
	cfg := &config.Config{Postgres: config.ServiceEndpoint{Host: "localhost", Port: "5432"}}
	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("skipping: could not construct pool: %v", err)
		return
	}
	defer db.Close()

	_ = db.HealthCheck()
}

func TestPostgresDB_CloseIsIdempotent(t *testing.T) {
	cfg := &config.Config{Postgres: config.ServiceEndpoint{Host: "localhost", Port: "5432"}}
	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("skipping: could not construct pool: %v", err)
		return
	}
	assert.NoError(t, db.Close())
	assert.NoError(t, db.Close())
}

func TestMigrationsCoverAllRelationalStoreTables(t *testing.T) {
	wantTables := []string{
		"users",
		"onboarding_tasks",
		"conversation_messages",
		"routing_log",
		"cache_entries",
	}

	var schema string
	for _, stmt := range migrations {
		schema += stmt + "\n"
	}

	for _, table := range wantTables {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table, "missing migration for table %s", table)
	}
}

func TestMigrationsIncludeLookupIndexes(t *testing.T) {
	var schema string
	for _, stmt := range migrations {
		schema += stmt + "\n"
	}
	assert.Contains(t, schema, "idx_onboarding_tasks_user_id")
	assert.Contains(t, schema, "idx_conversation_messages_user_id")
	assert.Contains(t, schema, "idx_routing_log_user_id")
}

func TestRunMigrations(t *testing.T) {
	ctx := context.Background()
	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	connString := "postgres://" + getEnv("DB_USER", "helixagent") + ":" + getEnv("DB_PASSWORD", "secret") +
		"@" + host + ":" + port + "/" + getEnv("DB_NAME", "helixagent_db") + "?sslmode=disable"

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		t.Skipf("skipping: could not construct pool: %v", err)
		return
	}
	defer pool.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		t.Skipf("skipping: database not reachable: %v", err)
		return
	}

	require.NoError(t, RunMigrations(ctx, pool))
}
