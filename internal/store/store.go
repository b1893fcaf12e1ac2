package store

import (
	"context"
	"database/sql"
	"fmt"

	"linesink/internal/domain"

	_ "modernc.org/sqlite"
)

const createSchema = `
CREATE TABLE IF NOT EXISTS lines (
	name TEXT NOT NULL,
	line INTEGER NOT NULL,
	length INTEGER NOT NULL,
	PRIMARY KEY (name, line)
);

CREATE TABLE IF NOT EXISTS line_progress (
	partition_id INTEGER NOT NULL,
	last_offset INTEGER NOT NULL,
	PRIMARY KEY (partition_id)
);
`

const dropSchema = `
DROP TABLE IF EXISTS lines;
DROP TABLE IF EXISTS line_progress;
`

// Store owns the two durable tables: the business records and the
// per-partition applied-offset checkpoints. All access goes through the
// retrying Executor.
type Store struct {
	db   *sql.DB
	exec *Executor
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &Store{db: db, exec: NewExecutor(db, DefaultRetryConfig())}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) CreateSchema(ctx context.Context) error {
	return s.exec.Run(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, createSchema)
		return err
	})
}

func (s *Store) DropSchema(ctx context.Context) error {
	return s.exec.Run(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, dropSchema)
		return err
	})
}

// Apply runs the exactly-once unit for one message. If the partition
// checkpoint already covers the offset the store is left untouched and
// applied is false; otherwise the line record and the advanced checkpoint
// commit in the same transaction. Either way a nil error means the message
// is durably accounted for and safe to acknowledge.
func (s *Store) Apply(ctx context.Context, partitionID, offset int64, rec domain.LineRecord) (bool, error) {
	applied := false
	err := s.exec.Run(ctx, func(tx *sql.Tx) error {
		applied = false
		var last int64
		err := tx.QueryRowContext(ctx,
			`SELECT last_offset FROM line_progress WHERE partition_id = ?`, partitionID).Scan(&last)
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		if offset <= last {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO lines(name, line, length) VALUES(?, ?, ?)
ON CONFLICT(name, line) DO UPDATE SET length=excluded.length`,
			rec.Name, rec.Line, rec.Length); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO line_progress(partition_id, last_offset) VALUES(?, ?)
ON CONFLICT(partition_id) DO UPDATE SET last_offset=excluded.last_offset`,
			partitionID, offset); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("apply partition=%d offset=%d: %w", partitionID, offset, err)
	}
	return applied, nil
}

// LastOffset returns the checkpoint for a partition, zero when absent.
func (s *Store) LastOffset(ctx context.Context, partitionID int64) (int64, error) {
	var last int64
	err := s.exec.Run(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT last_offset FROM line_progress WHERE partition_id = ?`, partitionID).Scan(&last)
		if err == sql.ErrNoRows {
			last = 0
			return nil
		}
		return err
	})
	return last, err
}

func (s *Store) ListLines(ctx context.Context) ([]domain.LineRecord, error) {
	var out []domain.LineRecord
	err := s.exec.Run(ctx, func(tx *sql.Tx) error {
		out = out[:0]
		rows, err := tx.QueryContext(ctx, `SELECT name, line, length FROM lines ORDER BY name, line`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var rec domain.LineRecord
			if err := rows.Scan(&rec.Name, &rec.Line, &rec.Length); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Checkpoints(ctx context.Context) ([]domain.Checkpoint, error) {
	var out []domain.Checkpoint
	err := s.exec.Run(ctx, func(tx *sql.Tx) error {
		out = out[:0]
		rows, err := tx.QueryContext(ctx, `SELECT partition_id, last_offset FROM line_progress ORDER BY partition_id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var cp domain.Checkpoint
			if err := rows.Scan(&cp.PartitionID, &cp.LastOffset); err != nil {
				return err
			}
			out = append(out, cp)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Executor exposes the retrying transaction runner for callers with units of
// work not covered by the methods above.
func (s *Store) Executor() *Executor { return s.exec }
