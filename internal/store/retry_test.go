package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "retry.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s.db
}

type tempErr struct{ temp bool }

func (e tempErr) Error() string   { return "flaky" }
func (e tempErr) Temporary() bool { return e.temp }

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRunRetriesTransientThenCommits(t *testing.T) {
	ctx := context.Background()
	e := NewExecutor(openTestDB(t), fastRetry(5))

	attempts := 0
	err := e.Run(ctx, func(tx *sql.Tx) error {
		attempts++
		if attempts < 3 {
			return tempErr{temp: true}
		}
		_, err := tx.ExecContext(ctx, `CREATE TABLE probe(x INTEGER)`)
		return err
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestRunEachAttemptGetsFreshTransaction(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	if _, err := db.Exec(`CREATE TABLE probe(x INTEGER)`); err != nil {
		t.Fatal(err)
	}
	e := NewExecutor(db, fastRetry(3))

	attempts := 0
	err := e.Run(ctx, func(tx *sql.Tx) error {
		attempts++
		if _, err := tx.ExecContext(ctx, `INSERT INTO probe(x) VALUES(1)`); err != nil {
			return err
		}
		if attempts < 2 {
			return tempErr{temp: true}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var cnt int
	if err := db.QueryRow(`SELECT count(*) FROM probe`).Scan(&cnt); err != nil {
		t.Fatal(err)
	}
	if cnt != 1 {
		t.Fatalf("rolled-back attempt leaked rows: %d", cnt)
	}
}

func TestRunTerminalErrorNotRetried(t *testing.T) {
	ctx := context.Background()
	e := NewExecutor(openTestDB(t), fastRetry(5))

	attempts := 0
	terminal := errors.New("constraint failed")
	err := e.Run(ctx, func(*sql.Tx) error {
		attempts++
		return terminal
	})
	if !errors.Is(err, terminal) {
		t.Fatalf("expected terminal error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("terminal error retried %d times", attempts)
	}
}

func TestRunExhaustionWrapsLastError(t *testing.T) {
	ctx := context.Background()
	e := NewExecutor(openTestDB(t), fastRetry(3))

	attempts := 0
	err := e.Run(ctx, func(*sql.Tx) error {
		attempts++
		return tempErr{temp: true}
	})
	if err == nil {
		t.Fatalf("expected exhaustion error")
	}
	var te tempErr
	if !errors.As(err, &te) {
		t.Fatalf("exhaustion must wrap last error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := NewExecutor(openTestDB(t), fastRetry(3))
	err := e.Run(ctx, func(*sql.Tx) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestTransientClassification(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{tempErr{temp: true}, true},
		{tempErr{temp: false}, false},
		{errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{errors.New("database table is locked"), true},
		{errors.New("UNIQUE constraint failed: lines.name"), false},
	}
	for _, c := range cases {
		if got := Transient(c.err); got != c.want {
			t.Fatalf("Transient(%v) = %t, want %t", c.err, got, c.want)
		}
	}
}
