package config

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Taichi-iskw/vidgraph/internal/logger"
)

const connectTimeout = 10 * time.Second

// NewDatabasePool opens the PostgreSQL pool and checks it with a ping.
// The pool is sized so every ingest worker can hold a transaction.
func NewDatabasePool(ctx context.Context, config *Config, log *logger.Logger) (*pgxpool.Pool, error) {
	dbConfig, err := config.ParseDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(dbConfig.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = max(dbConfig.MaxConns, int32(config.Ingest.Workers)+1)
	poolConfig.MinConns = dbConfig.MinConns
	poolConfig.MaxConnLifetime = dbConfig.MaxConnLifetime
	poolConfig.MaxConnIdleTime = dbConfig.MaxConnIdleTime

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL at %s:%d: %w", dbConfig.Host, dbConfig.Port, err)
	}

	if log != nil {
		log.Debug("postgres connected", "host", dbConfig.Host, "port", dbConfig.Port, "database", dbConfig.DBName, "max_conns", poolConfig.MaxConns)
	}
	return pool, nil
}

// CloseDatabasePool closes the pool, logging how it was used
func CloseDatabasePool(pool *pgxpool.Pool, log *logger.Logger) {
	if pool == nil {
		return
	}
	if log != nil {
		stat := pool.Stat()
		log.Debug("postgres pool closed", "acquired_total", stat.AcquireCount(), "max_conns", stat.MaxConns())
	}
	pool.Close()
}
