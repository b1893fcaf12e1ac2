package deadletter

import (
	"context"
	"errors"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

// Sink receives payloads the consumer could not decode. Undecodable messages
// can never apply, so they are parked here and acknowledged to the log.
type Sink interface {
	Publish(ctx context.Context, partitionID, offset int64, reason string, payload []byte) error
	Close() error
}

// Nop discards dead letters. Default when no sink is configured.
type Nop struct{}

func (Nop) Publish(context.Context, int64, int64, string, []byte) error { return nil }
func (Nop) Close() error                                                { return nil }

type Config struct {
	Enabled    bool
	URL        string
	Exchange   string
	RoutingKey string
	Auth       AuthConfig
}

type AuthConfig struct {
	Username string
	Password string
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.URL == "" {
		return fmt.Errorf("dead_letter url is required")
	}
	if c.Exchange == "" {
		return fmt.Errorf("dead_letter exchange is required")
	}
	return nil
}

// Publisher forwards dead letters to a durable RabbitMQ topic exchange.
type Publisher struct {
	cfg  Config
	conn *amqp091.Connection
	ch   *amqp091.Channel
}

func NewPublisher(cfg Config) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = "linesink.dead"
	}
	dialCfg := amqp091.Config{}
	if cfg.Auth.Username != "" {
		dialCfg.SASL = []amqp091.Authentication{&amqp091.PlainAuth{Username: cfg.Auth.Username, Password: cfg.Auth.Password}}
	}
	conn, err := amqp091.DialConfig(cfg.URL, dialCfg)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{cfg: cfg, conn: conn, ch: ch}, nil
}

func (p *Publisher) Publish(ctx context.Context, partitionID, offset int64, reason string, payload []byte) error {
	return p.ch.PublishWithContext(ctx, p.cfg.Exchange, p.cfg.RoutingKey, false, false,
		publishing(partitionID, offset, reason, payload))
}

func (p *Publisher) Close() error {
	var errs []error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func publishing(partitionID, offset int64, reason string, payload []byte) amqp091.Publishing {
	return amqp091.Publishing{
		ContentType:  "application/octet-stream",
		DeliveryMode: amqp091.Persistent,
		Headers: amqp091.Table{
			"partition_id": partitionID,
			"offset":       offset,
			"reason":       reason,
		},
		Body: payload,
	}
}
