package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/siteplan/internal/config"
	"github.com/stwalsh4118/siteplan/internal/logger"
)

func getTestConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Host:     getEnvOrDefault("DB_HOST", "host.docker.internal"),
		Port:     getEnvOrDefault("DB_PORT", "5432"),
		Name:     getEnvOrDefault("DB_NAME", "siteplan"),
		User:     getEnvOrDefault("DB_USER", "postgres"),
		Password: getEnvOrDefault("DB_PASSWORD", "postgres"),
		PoolMin:  2,
		PoolMax:  5,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host: "db", Port: "5433", Name: "siteplan", User: "app", Password: "p@ss/word",
	})
	assert.Equal(t, "postgres://app:p%40ss%2Fword@db:5433/siteplan?sslmode=disable", dsn)
}

func TestNewPostgresPool(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	cfg := getTestConfig()

	db, err := NewPostgresPool(ctx, cfg)
	require.NoError(t, err)
	defer db.Close()

	require.NotNil(t, db.Pool)
	require.NoError(t, db.Ping(ctx))

	stats := db.Stats()
	require.NotNil(t, stats)
	assert.Equal(t, int32(cfg.PoolMax), stats.MaxConns())
}

func TestNewPostgresPool_InvalidHost(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	cfg := getTestConfig()
	cfg.Host = "invalid-host-that-does-not-exist"

	_, err := NewPostgresPool(ctx, cfg)
	assert.Error(t, err)
}

func TestPing_AfterClose(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	db, err := NewPostgresPool(ctx, getTestConfig())
	require.NoError(t, err)

	db.Close()
	db.Close()
	assert.Error(t, db.Ping(ctx))
}

func TestMigrate_Idempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	db, err := NewPostgresPool(ctx, getTestConfig())
	require.NoError(t, err)
	defer db.Close()

	log := logger.New("test")
	require.NoError(t, db.Migrate(ctx, log))
	require.NoError(t, db.Migrate(ctx, log))

	for _, table := range []string{"geometry_records", "geometry_history", "promotions", "planning_rules"} {
		var exists bool
		err := db.Pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}
}
