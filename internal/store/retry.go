package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 5, InitialDelay: 5 * time.Millisecond, MaxDelay: 500 * time.Millisecond}
}

// Executor runs a unit of work against the store in a fresh transaction,
// retrying the whole unit from scratch on transient failure. Units must be
// idempotent and side-effect-free outside the transaction.
type Executor struct {
	db  *sql.DB
	cfg RetryConfig
}

func NewExecutor(db *sql.DB, cfg RetryConfig) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Executor{db: db, cfg: cfg}
}

func (e *Executor) Run(ctx context.Context, fn func(*sql.Tx) error) error {
	var lastErr error
	delay := e.cfg.InitialDelay
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := e.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !Transient(err) {
			return err
		}
		lastErr = err
		if attempt < e.cfg.MaxAttempts {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			if delay *= 2; delay > e.cfg.MaxDelay {
				delay = e.cfg.MaxDelay
			}
		}
	}
	return fmt.Errorf("transaction retries exhausted: %w", lastErr)
}

func (e *Executor) runOnce(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type retryable interface{ Temporary() bool }

// Transient reports whether an error is worth a fresh-transaction retry.
// Lock contention surfaces from sqlite as busy/locked errors.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	var te retryable
	if errors.As(err, &te) {
		return te.Temporary()
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}
