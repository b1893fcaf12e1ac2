package kafka

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"time"

	"linesink/internal/stream"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

const seqNoHeader = "seq_no"

type Config struct {
	Brokers  []string
	Topic    string
	GroupID  string
	ClientID string

	// Provisioning knobs applied by EnsureTopic.
	Partitions        int32
	ReplicationFactor int16
	RetentionBytes    int64

	PollTimeout time.Duration
	Fetch       FetchConfig
}

type FetchConfig struct {
	MinBytes int32
	MaxBytes int32
	MaxWait  time.Duration
}

func (c *Config) withDefaults() {
	if c.Partitions <= 0 {
		c.Partitions = 2
	}
	if c.ReplicationFactor <= 0 {
		c.ReplicationFactor = 1
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = time.Second
	}
	if c.Fetch.MaxWait <= 0 {
		c.Fetch.MaxWait = 500 * time.Millisecond
	}
	if c.Fetch.MinBytes <= 0 {
		c.Fetch.MinBytes = 1
	}
	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = 50 << 20
	}
}

func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka brokers is required")
	}
	if c.Topic == "" {
		return errors.New("kafka topic is required")
	}
	if c.GroupID == "" {
		return errors.New("kafka group_id is required")
	}
	return nil
}

// Writer produces line payloads to the topic. Sends are buffered and
// fire-and-forget; the key routes all lines of one source to one partition.
type Writer struct {
	client *kgo.Client
}

func NewWriter(cfg Config) (*Writer, error) {
	cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("new kafka producer: %w", err)
	}
	return &Writer{client: client}, nil
}

func (w *Writer) Send(ctx context.Context, seqNo int64, key string, payload []byte) error {
	rec := &kgo.Record{
		Key:     []byte(key),
		Value:   payload,
		Headers: []kgo.RecordHeader{{Key: seqNoHeader, Value: encodeSeqNo(seqNo)}},
	}
	w.client.Produce(ctx, rec, nil)
	return nil
}

func (w *Writer) Flush(ctx context.Context) error { return w.client.Flush(ctx) }

func (w *Writer) Close() error {
	w.client.Close()
	return nil
}

// Reader consumes the topic with auto-commit disabled; an offset is committed
// only when the delivered message is acked.
type Reader struct {
	cfg     Config
	client  *kgo.Client
	pending []*kgo.Record

	markCommit   func(*kgo.Record)
	commitMarked func(context.Context) error
}

func NewReader(cfg Config) (*Reader, error) {
	cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.DisableAutoCommit(),
		kgo.FetchMaxWait(cfg.Fetch.MaxWait),
		kgo.FetchMinBytes(cfg.Fetch.MinBytes),
		kgo.FetchMaxBytes(cfg.Fetch.MaxBytes),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("new kafka consumer: %w", err)
	}
	r := &Reader{cfg: cfg, client: client}
	r.markCommit = func(rec *kgo.Record) { client.MarkCommitRecords(rec) }
	r.commitMarked = func(ctx context.Context) error { return client.CommitMarkedOffsets(ctx) }
	return r, nil
}

func (r *Reader) Receive(ctx context.Context) (*stream.Message, error) {
	if len(r.pending) == 0 {
		pollCtx, cancel := context.WithTimeout(ctx, r.cfg.PollTimeout)
		fetches := r.client.PollFetches(pollCtx)
		cancel()
		for _, fe := range fetches.Errors() {
			if errors.Is(fe.Err, context.DeadlineExceeded) || errors.Is(fe.Err, context.Canceled) {
				continue
			}
			return nil, fmt.Errorf("poll %s/%d: %w", fe.Topic, fe.Partition, fe.Err)
		}
		fetches.EachRecord(func(rec *kgo.Record) {
			r.pending = append(r.pending, rec)
		})
	}
	if len(r.pending) == 0 {
		return nil, nil
	}
	rec := r.pending[0]
	r.pending = r.pending[1:]
	return r.toMessage(rec), nil
}

func (r *Reader) toMessage(rec *kgo.Record) *stream.Message {
	ack := func(ctx context.Context) error {
		r.markCommit(rec)
		return r.commitMarked(ctx)
	}
	// Kafka offsets are 0-based; present them 1-based so an absent checkpoint
	// never shadows the first record of a partition.
	return stream.NewMessage(decodeSeqNo(rec.Headers), int64(rec.Partition), rec.Offset+1, rec.Value, ack)
}

func (r *Reader) Close() error {
	r.client.Close()
	return nil
}

// Admin provisions and tears down the topic via the admin API.
type Admin struct {
	cfg    Config
	client *kgo.Client
	adm    *kadm.Client
}

func NewAdmin(cfg Config) (*Admin, error) {
	cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := kgo.NewClient(kgo.SeedBrokers(cfg.Brokers...))
	if err != nil {
		return nil, fmt.Errorf("new kafka admin: %w", err)
	}
	return &Admin{cfg: cfg, client: client, adm: kadm.NewClient(client)}, nil
}

func (a *Admin) EnsureTopic(ctx context.Context) error {
	configs := map[string]*string{}
	if a.cfg.RetentionBytes > 0 {
		v := strconv.FormatInt(a.cfg.RetentionBytes, 10)
		configs["retention.bytes"] = &v
	}
	resp, err := a.adm.CreateTopic(ctx, a.cfg.Partitions, a.cfg.ReplicationFactor, configs, a.cfg.Topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", a.cfg.Topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", a.cfg.Topic, resp.Err)
	}
	return nil
}

func (a *Admin) DeleteTopic(ctx context.Context) error {
	resps, err := a.adm.DeleteTopics(ctx, a.cfg.Topic)
	if err != nil {
		return fmt.Errorf("delete topic %s: %w", a.cfg.Topic, err)
	}
	for _, resp := range resps {
		if resp.Err != nil && !errors.Is(resp.Err, kerr.UnknownTopicOrPartition) {
			return fmt.Errorf("delete topic %s: %w", resp.Topic, resp.Err)
		}
	}
	return nil
}

func (a *Admin) Close() error {
	a.client.Close()
	return nil
}

func encodeSeqNo(seqNo int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(seqNo))
	return buf[:]
}

func decodeSeqNo(headers []kgo.RecordHeader) int64 {
	for _, h := range headers {
		if h.Key == seqNoHeader && len(h.Value) == 8 {
			return int64(binary.BigEndian.Uint64(h.Value))
		}
	}
	return 0
}
