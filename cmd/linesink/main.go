package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"linesink/internal/config"
	"linesink/internal/consume"
	"linesink/internal/deadletter"
	"linesink/internal/produce"
	"linesink/internal/store"
	"linesink/internal/stream"
	"linesink/internal/stream/kafka"
	"linesink/internal/stream/memlog"
)

func main() {
	cfgPath := flag.String("config", "linesink.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := run(cfg); err != nil {
		log.Fatalf("linesink: %v", err)
	}
}

// run is the whole batch pipeline: provision, consume in the background,
// stream the source, settle, stop, print, join, tear down.
func run(cfg config.Config) error {
	ctx := context.Background()

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if err := st.CreateSchema(ctx); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	writer, reader, admin, err := openStream(cfg.Stream)
	if err != nil {
		return err
	}
	defer writer.Close()
	defer reader.Close()
	defer admin.Close()
	if err := admin.EnsureTopic(ctx); err != nil {
		return fmt.Errorf("ensure topic: %w", err)
	}

	dead, err := openDeadLetter(cfg.DeadLetter)
	if err != nil {
		return err
	}
	defer dead.Close()

	consumeCtx, stop := context.WithCancel(ctx)
	defer stop()
	handle := consume.New(reader, st, dead).Start(consumeCtx)

	f, err := os.Open(cfg.Source.Path)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	sent, err := produce.New(cfg.Source.Name, writer).Stream(ctx, f)
	f.Close()
	if err != nil {
		return err
	}
	if err := writer.Flush(ctx); err != nil {
		return fmt.Errorf("flush producer: %w", err)
	}
	log.Printf("sent %d lines from %s", sent, cfg.Source.Path)

	time.Sleep(cfg.Run.Settle)
	stop()

	rows, err := st.ListLines(ctx)
	if err != nil {
		return fmt.Errorf("list lines: %w", err)
	}
	for _, r := range rows {
		fmt.Printf("name: %s, line: %d, length: %d\n", r.Name, r.Line, r.Length)
	}

	if err := handle.Wait(); err != nil {
		return fmt.Errorf("consumer: %w", err)
	}

	if err := st.DropSchema(ctx); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}
	if err := admin.DeleteTopic(ctx); err != nil {
		return fmt.Errorf("delete topic: %w", err)
	}
	return nil
}

func openStream(cfg config.StreamConfig) (stream.Writer, stream.Reader, stream.Admin, error) {
	switch cfg.Kind {
	case "kafka":
		kcfg := kafka.Config{
			Brokers:           cfg.Kafka.Brokers,
			Topic:             cfg.Kafka.Topic,
			GroupID:           cfg.Kafka.GroupID,
			ClientID:          cfg.Kafka.ClientID,
			Partitions:        cfg.Kafka.Partitions,
			ReplicationFactor: cfg.Kafka.ReplicationFactor,
			RetentionBytes:    cfg.Kafka.RetentionBytes,
			PollTimeout:       cfg.Kafka.PollTimeout,
		}
		writer, err := kafka.NewWriter(kcfg)
		if err != nil {
			return nil, nil, nil, err
		}
		reader, err := kafka.NewReader(kcfg)
		if err != nil {
			writer.Close()
			return nil, nil, nil, err
		}
		admin, err := kafka.NewAdmin(kcfg)
		if err != nil {
			writer.Close()
			reader.Close()
			return nil, nil, nil, err
		}
		return writer, reader, admin, nil
	default:
		l := memlog.New(memlog.Config{
			Partitions:      cfg.Memory.Partitions,
			PollTimeout:     cfg.Memory.PollTimeout,
			RedeliveryDelay: cfg.Memory.RedeliveryDelay,
		})
		return l, l, stream.NopAdmin{}, nil
	}
}

func openDeadLetter(cfg config.DeadLetterConfig) (deadletter.Sink, error) {
	if !cfg.Enabled {
		return deadletter.Nop{}, nil
	}
	pub, err := deadletter.NewPublisher(deadletter.Config{
		Enabled:    true,
		URL:        cfg.URL,
		Exchange:   cfg.Exchange,
		RoutingKey: cfg.RoutingKey,
		Auth:       deadletter.AuthConfig{Username: cfg.Username, Password: cfg.Password},
	})
	if err != nil {
		return nil, fmt.Errorf("dead-letter publisher: %w", err)
	}
	return pub, nil
}
