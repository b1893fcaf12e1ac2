package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

func TestConfigValidate(t *testing.T) {
	cfg := Config{Brokers: []string{"127.0.0.1:9092"}, Topic: "line_topic", GroupID: "line_consumer"}
	cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Partitions != 2 || cfg.ReplicationFactor != 1 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	bad := []Config{
		{Topic: "t", GroupID: "g"},
		{Brokers: []string{"b"}, GroupID: "g"},
		{Brokers: []string{"b"}, Topic: "t"},
	}
	for _, c := range bad {
		if err := c.Validate(); err == nil {
			t.Fatalf("expected validation error for %+v", c)
		}
	}
}

func TestSeqNoHeaderRoundTrip(t *testing.T) {
	headers := []kgo.RecordHeader{
		{Key: "other", Value: []byte("x")},
		{Key: seqNoHeader, Value: encodeSeqNo(42)},
	}
	if got := decodeSeqNo(headers); got != 42 {
		t.Fatalf("decodeSeqNo = %d, want 42", got)
	}
	if got := decodeSeqNo(nil); got != 0 {
		t.Fatalf("missing header must decode to 0, got %d", got)
	}
	if got := decodeSeqNo([]kgo.RecordHeader{{Key: seqNoHeader, Value: []byte("short")}}); got != 0 {
		t.Fatalf("malformed header must decode to 0, got %d", got)
	}
}

func TestToMessagePresentsOneBasedOffsets(t *testing.T) {
	r := &Reader{cfg: Config{PollTimeout: time.Second}}
	r.markCommit = func(*kgo.Record) {}
	r.commitMarked = func(context.Context) error { return nil }

	rec := &kgo.Record{
		Partition: 3,
		Offset:    0,
		Value:     []byte("payload"),
		Headers:   []kgo.RecordHeader{{Key: seqNoHeader, Value: encodeSeqNo(1)}},
	}
	msg := r.toMessage(rec)
	if msg.PartitionID != 3 || msg.Offset != 1 || msg.SeqNo != 1 {
		t.Fatalf("unexpected mapping: %+v", msg)
	}
}

func TestAckMarksThenCommits(t *testing.T) {
	var order []string
	r := &Reader{cfg: Config{PollTimeout: time.Second}}
	r.markCommit = func(*kgo.Record) { order = append(order, "mark") }
	r.commitMarked = func(context.Context) error { order = append(order, "commit"); return nil }

	msg := r.toMessage(&kgo.Record{Partition: 0, Offset: 5})
	if err := msg.Ack(context.Background()); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if len(order) != 2 || order[0] != "mark" || order[1] != "commit" {
		t.Fatalf("unexpected ack sequence: %v", order)
	}
}
