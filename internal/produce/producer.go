package produce

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"linesink/internal/stream"
	"linesink/internal/wire"
)

const maxLineBytes = 4 << 20

// Producer emits one sequenced message per input line. Sends are
// fire-and-forget; redelivery and deduplication are log and consumer
// concerns, not production concerns.
type Producer struct {
	name   string
	writer stream.Writer
}

func New(name string, writer stream.Writer) *Producer {
	return &Producer{name: name, writer: writer}
}

// Stream sends every line of r as a message whose seqNo is the 1-indexed
// line number, keyed by the source name. Returns the number of lines sent.
func (p *Producer) Stream(ctx context.Context, r io.Reader) (int64, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	var sent int64
	for sc.Scan() {
		payload, err := wire.Marshal(&wire.LinePayload{Name: p.name, Text: sc.Text()})
		if err != nil {
			return sent, fmt.Errorf("encode line %d: %w", sent+1, err)
		}
		if err := p.writer.Send(ctx, sent+1, p.name, payload); err != nil {
			return sent, fmt.Errorf("send line %d: %w", sent+1, err)
		}
		sent++
	}
	if err := sc.Err(); err != nil {
		return sent, fmt.Errorf("read source %s: %w", p.name, err)
	}
	return sent, nil
}
