package stream

import "context"

// Message is one delivery from the log. PartitionID and Offset are assigned
// by the log on append; adapters present offsets 1-based within a partition
// so an absent checkpoint (zero) never collides with a real offset.
type Message struct {
	SeqNo       int64
	PartitionID int64
	Offset      int64
	Payload     []byte

	ack func(context.Context) error
}

func NewMessage(seqNo, partitionID, offset int64, payload []byte, ack func(context.Context) error) *Message {
	return &Message{SeqNo: seqNo, PartitionID: partitionID, Offset: offset, Payload: payload, ack: ack}
}

// Ack acknowledges the delivery to the log. Must not be called before the
// message is durably applied; the log may redeliver anything unacked.
func (m *Message) Ack(ctx context.Context) error {
	if m.ack == nil {
		return nil
	}
	return m.ack(ctx)
}

// Reader consumes messages from the log. Receive blocks up to the adapter's
// poll timeout and returns (nil, nil) when no message arrived in time.
type Reader interface {
	Receive(ctx context.Context) (*Message, error)
	Close() error
}

// Writer appends payloads to the log. Sends may be buffered and are
// fire-and-forget; Flush blocks until everything sent so far is accepted.
// Messages sharing a key land in the same partition, in send order.
type Writer interface {
	Send(ctx context.Context, seqNo int64, key string, payload []byte) error
	Flush(ctx context.Context) error
	Close() error
}

// Admin manages the log-side lifecycle of the stream.
type Admin interface {
	EnsureTopic(ctx context.Context) error
	DeleteTopic(ctx context.Context) error
	Close() error
}

// NopAdmin is for transports whose stream needs no provisioning.
type NopAdmin struct{}

func (NopAdmin) EnsureTopic(context.Context) error { return nil }
func (NopAdmin) DeleteTopic(context.Context) error { return nil }
func (NopAdmin) Close() error                      { return nil }
