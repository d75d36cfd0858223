package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

// Publisher writes domain messages to the queue topic. Messages are keyed by
// domain so redeliveries of the same domain land on the same partition and
// stay ordered.
type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewPublisher creates a publisher for the configured topic.
func NewPublisher(cfg *Config, logger *slog.Logger) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}, nil
}

// PublishDomain publishes one domain message observed now.
func (p *Publisher) PublishDomain(ctx context.Context, domain string) error {
	payload, err := NewDomainMessage(domain).Encode()
	if err != nil {
		return fmt.Errorf("failed to encode domain message: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(domain),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to publish domain %s: %w", domain, err)
	}

	p.logger.Info("Published domain to queue", "domain", domain)

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
