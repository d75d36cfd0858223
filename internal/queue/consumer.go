package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

// Disposition is the handler's verdict on a delivered message.
type Disposition int

const (
	// Ack marks the message handled; its offset is committed.
	Ack Disposition = iota

	// Nak requests redelivery: the message is republished to the topic and
	// the original offset is committed.
	Nak
)

// Handler processes one decoded domain message and returns how the delivery
// should be settled. Poison payloads never reach the handler.
type Handler func(ctx context.Context, msg DomainMessage) Disposition

// Consumer is a durable serial consumer of domain messages. Each
// classification type gets its own consumer group, and messages are fetched
// and settled one at a time, so at most one classification per type runs at
// once.
type Consumer struct {
	reader  *kafka.Reader
	requeue *kafka.Writer
	logger  *slog.Logger
}

// NewConsumer creates a consumer in the group for the given classification
// type. The group's committed offset is the durable subscription state; on
// reconnect, delivery resumes from the last committed offset.
func NewConsumer(cfg *Config, classificationType string, logger *slog.Logger) (*Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			GroupID:     GroupID(classificationType),
			Topic:       cfg.Topic,
			StartOffset: kafka.FirstOffset,
		}),
		requeue: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}, nil
}

// Run fetches and handles messages serially until the context is cancelled
// or the reader fails. Returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("message handler is required")
	}

	for {
		fetched, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("failed to fetch message: %w", err)
		}

		msg, err := DecodeDomainMessage(fetched.Value)
		if err != nil {
			// Poison message: commit so the broker never redelivers it.
			c.logger.Warn("Discarding malformed queue message",
				"error", err, "payload", string(fetched.Value))

			if err := c.reader.CommitMessages(ctx, fetched); err != nil {
				c.logger.Error("Failed to commit malformed message", "error", err)
			}

			continue
		}

		c.logger.Info("Received domain from queue",
			"domain", msg.Domain, "timestamp", msg.Timestamp)

		switch handler(ctx, msg) {
		case Ack:
			if err := c.reader.CommitMessages(ctx, fetched); err != nil {
				c.logger.Error("Failed to commit message",
					"domain", msg.Domain, "error", err)
			}
		case Nak:
			c.redeliver(ctx, fetched, msg.Domain)
		}
	}
}

// redeliver republishes the message and commits the original offset. If the
// republish fails the offset stays uncommitted, so the broker redelivers the
// original after a restart instead of losing it.
func (c *Consumer) redeliver(ctx context.Context, fetched kafka.Message, domain string) {
	err := c.requeue.WriteMessages(ctx, kafka.Message{
		Key:   fetched.Key,
		Value: fetched.Value,
	})
	if err != nil {
		c.logger.Error("Failed to requeue message for redelivery",
			"domain", domain, "error", err)

		return
	}

	c.logger.Info("Requeued domain for redelivery", "domain", domain)

	if err := c.reader.CommitMessages(ctx, fetched); err != nil {
		c.logger.Error("Failed to commit requeued message",
			"domain", domain, "error", err)
	}
}

// Close closes the reader and the requeue writer.
func (c *Consumer) Close() error {
	return errors.Join(c.reader.Close(), c.requeue.Close())
}
