package memlog

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"linesink/internal/stream"
)

type Config struct {
	Partitions      int
	PollTimeout     time.Duration
	RedeliveryDelay time.Duration
}

func (c *Config) withDefaults() {
	if c.Partitions <= 0 {
		c.Partitions = 2
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = time.Second
	}
	if c.RedeliveryDelay <= 0 {
		c.RedeliveryDelay = time.Second
	}
}

type record struct {
	seqNo   int64
	offset  int64
	payload []byte

	acked      bool
	inflightAt time.Time
}

// Log is an in-process partitioned append-only log with at-least-once
// delivery: offsets are 1-based per partition, and a received but unacked
// record is redelivered once its redelivery delay elapses. It implements
// both sides of the stream boundary for local runs and tests.
type Log struct {
	cfg Config

	mu     sync.Mutex
	parts  [][]*record
	cursor int
	closed bool
}

func New(cfg Config) *Log {
	cfg.withDefaults()
	return &Log{cfg: cfg, parts: make([][]*record, cfg.Partitions)}
}

func (l *Log) Send(_ context.Context, seqNo int64, key string, payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("log is closed")
	}
	p := partitionFor(key, l.cfg.Partitions)
	rec := &record{seqNo: seqNo, offset: int64(len(l.parts[p]) + 1), payload: append([]byte(nil), payload...)}
	l.parts[p] = append(l.parts[p], rec)
	return nil
}

func (l *Log) Flush(context.Context) error { return nil }

// Receive returns the next deliverable record across partitions, blocking up
// to the poll timeout. An empty poll is (nil, nil), not an error.
func (l *Log) Receive(ctx context.Context) (*stream.Message, error) {
	deadline := time.Now().Add(l.cfg.PollTimeout)
	for {
		if msg, err := l.tryNext(); msg != nil || err != nil {
			return msg, err
		}
		if !time.Now().Before(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func (l *Log) tryNext() (*stream.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, fmt.Errorf("log is closed")
	}
	now := time.Now()
	for i := 0; i < l.cfg.Partitions; i++ {
		p := (l.cursor + i) % l.cfg.Partitions
		for _, rec := range l.parts[p] {
			if rec.acked {
				continue
			}
			if !rec.inflightAt.IsZero() && now.Sub(rec.inflightAt) < l.cfg.RedeliveryDelay {
				continue
			}
			rec.inflightAt = now
			l.cursor = (p + 1) % l.cfg.Partitions
			return stream.NewMessage(rec.seqNo, int64(p), rec.offset, rec.payload, l.ackFunc(p, rec.offset)), nil
		}
	}
	return nil, nil
}

func (l *Log) ackFunc(p int, offset int64) func(context.Context) error {
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		for _, rec := range l.parts[p] {
			if rec.offset == offset {
				rec.acked = true
				return nil
			}
		}
		return fmt.Errorf("ack unknown offset %d on partition %d", offset, p)
	}
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Depth reports unacked records per partition, for tests and the settle wait.
func (l *Log) Depth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, part := range l.parts {
		for _, rec := range part {
			if !rec.acked {
				n++
			}
		}
	}
	return n
}

func partitionFor(key string, partitions int) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum64() % uint64(partitions))
}
