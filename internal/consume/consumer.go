package consume

import (
	"context"
	"errors"
	"log"
	"unicode/utf8"

	"linesink/internal/deadletter"
	"linesink/internal/domain"
	"linesink/internal/stream"
	"linesink/internal/wire"
)

// Applier is the store-side exactly-once unit: it must detect already
// covered offsets and commit record and checkpoint atomically.
type Applier interface {
	Apply(ctx context.Context, partitionID, offset int64, rec domain.LineRecord) (bool, error)
}

// Consumer pulls messages from the log and applies each one exactly once.
// It is single-threaded: one message finishes its lookup/apply/ack steps
// before the next poll, so store transactions are the only serialization
// needed. A message is acked strictly after its durability is confirmed.
type Consumer struct {
	reader stream.Reader
	store  Applier
	dead   deadletter.Sink
}

func New(reader stream.Reader, store Applier, dead deadletter.Sink) *Consumer {
	if dead == nil {
		dead = deadletter.Nop{}
	}
	return &Consumer{reader: reader, store: store, dead: dead}
}

// Handle supervises the background consumer task.
type Handle struct {
	done chan struct{}
	err  error
}

func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the loop exits and returns its terminal error, if any.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Start runs the poll loop until ctx is cancelled. Cancellation is observed
// only between messages; an in-flight message completes its apply and ack
// steps before the loop exits.
func (c *Consumer) Start(ctx context.Context) *Handle {
	h := &Handle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		h.err = c.run(ctx)
	}()
	return h
}

func (c *Consumer) run(ctx context.Context) error {
	log.Printf("consumer started")
	defer log.Printf("consumer stopped")
	for {
		if ctx.Err() != nil {
			return nil
		}
		msg, err := c.reader.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			log.Printf("receive: %v", err)
			continue
		}
		if msg == nil {
			continue
		}
		c.process(context.WithoutCancel(ctx), msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg *stream.Message) {
	payload, err := wire.Unmarshal(msg.Payload)
	if err != nil {
		// Undecodable payloads can never apply; park and acknowledge so a
		// single poisoned message does not wedge the partition.
		log.Printf("decode partition=%d offset=%d: %v", msg.PartitionID, msg.Offset, err)
		if dlErr := c.dead.Publish(ctx, msg.PartitionID, msg.Offset, err.Error(), msg.Payload); dlErr != nil {
			log.Printf("dead-letter publish: %v", dlErr)
		}
		if ackErr := msg.Ack(ctx); ackErr != nil {
			log.Printf("ack partition=%d offset=%d: %v", msg.PartitionID, msg.Offset, ackErr)
		}
		return
	}

	rec := domain.LineRecord{
		Name:   payload.Name,
		Line:   msg.SeqNo,
		Length: int64(utf8.RuneCountInString(payload.Text)),
	}
	if _, err := c.store.Apply(ctx, msg.PartitionID, msg.Offset, rec); err != nil {
		// Not acked: the log redelivers and the next attempt re-enters Apply,
		// where the checkpoint lookup decides duplicate vs fresh.
		log.Printf("apply: %v", err)
		return
	}
	if err := msg.Ack(ctx); err != nil {
		log.Printf("ack partition=%d offset=%d: %v", msg.PartitionID, msg.Offset, err)
	}
}
