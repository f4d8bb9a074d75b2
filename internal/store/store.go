package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"time"

	"polimarket/config"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// queries holds every SQL statement of the service. It runs either on the
// pool or on an open transaction.
type queries struct {
	db sqlx.ExtContext
}

type Store struct {
	*queries
	db             *sqlx.DB
	maxRetries     int
	initialBackoff time.Duration
}

// NewStore connects to Postgres and configures the pool
func NewStore(cfg config.DatabaseConfig) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return NewStoreWithDB(db, cfg.MaxTxRetries), nil
}

// NewStoreWithDB wraps an existing connection pool
func NewStoreWithDB(db *sqlx.DB, maxRetries int) *Store {
	return &Store{
		queries:        &queries{db: db},
		db:             db,
		maxRetries:     maxRetries,
		initialBackoff: 50 * time.Millisecond,
	}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn in a READ COMMITTED transaction, retrying with jittered
// exponential backoff on serialization failures, deadlocks and lock timeouts.
func (s *Store) WithTx(ctx context.Context, fn func(Repository) error) error {
	var lastErr error
	backoff := s.initialBackoff

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err

		if attempt == s.maxRetries {
			break
		}

		jitter := time.Duration(rand.Int63n(int64(backoff/4) + 1))
		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", s.maxRetries, lastErr)
}

func (s *Store) runTx(ctx context.Context, fn func(Repository) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&queries{db: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
