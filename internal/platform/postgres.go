package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redisgate/redisgate/internal/config"
)

// serializationFailure and deadlockDetected are the SQLSTATE codes pgx
// surfaces when a SERIALIZABLE transaction must be retried.
const (
	serializationFailure = "40001"
	deadlockDetected     = "40P01"

	txMaxAttempts = 3
)

// NewPostgresPool creates a pgx pool with the configured limits and verifies
// connectivity with a ping.
func NewPostgresPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConnections
	poolCfg.MinConns = cfg.MinConnections
	poolCfg.MaxConnIdleTime = time.Duration(cfg.IdleTimeoutSeconds) * time.Second
	poolCfg.MaxConnLifetime = time.Duration(cfg.MaxLifetimeSeconds) * time.Second
	poolCfg.ConnConfig.ConnectTimeout = time.Duration(cfg.ConnectionTimeoutSeconds) * time.Second
	poolCfg.ConnConfig.Tracer = queryTracer{}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// Serializable runs fn inside a SERIALIZABLE transaction, retrying up to
// three times when the database reports a serialization failure. Any other
// error aborts immediately.
func Serializable(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	var lastErr error

	for attempt := 1; attempt <= txMaxAttempts; attempt++ {
		err := pgx.BeginTxFunc(ctx, pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, fn)
		if err == nil {
			return nil
		}

		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("transaction failed after %d attempts: %w", txMaxAttempts, lastErr)
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == serializationFailure || pgErr.Code == deadlockDetected
}
