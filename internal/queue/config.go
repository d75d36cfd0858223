// Package queue provides the durable domain work queue on top of Kafka.
//
// The log processor publishes one message per unseen domain; each queue
// processor consumes through a named consumer group per classification type,
// one message at a time, with explicit commits. Retry is requeue-based: a
// negatively acknowledged message is republished to the topic before its
// original offset is committed.
package queue

import (
	"errors"
	"strings"

	"github.com/dns-smart-block/dns-smart-block/internal/config"
)

const (
	defaultBrokers = "localhost:9092"
	defaultTopic   = "dns.domains"

	// consumerGroupPrefix names the durable consumer group per
	// classification type, e.g. "dns-smart-block-gaming".
	consumerGroupPrefix = "dns-smart-block-"
)

var (
	// ErrNoBrokers is returned when the broker list is empty.
	ErrNoBrokers = errors.New("queue brokers cannot be empty")

	// ErrNoTopic is returned when the topic is empty.
	ErrNoTopic = errors.New("queue topic cannot be empty")
)

// Config holds Kafka connection configuration shared by publisher and
// consumer.
type Config struct {
	Brokers []string // Kafka bootstrap brokers
	Topic   string   // Topic carrying domain messages
}

// LoadConfig loads queue configuration from environment variables with
// fallback to defaults. QUEUE_BROKERS is a comma-separated broker list.
func LoadConfig() *Config {
	return &Config{
		Brokers: splitBrokers(config.GetEnvStr("QUEUE_BROKERS", defaultBrokers)),
		Topic:   config.GetEnvStr("QUEUE_TOPIC", defaultTopic),
	}
}

// NewConfig creates a Config from an explicit broker list string and topic,
// for binaries that resolve them from flags.
func NewConfig(brokers, topic string) *Config {
	return &Config{
		Brokers: splitBrokers(brokers),
		Topic:   topic,
	}
}

// Validate checks if the queue configuration is valid.
func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return ErrNoBrokers
	}

	if strings.TrimSpace(c.Topic) == "" {
		return ErrNoTopic
	}

	return nil
}

// GroupID returns the durable consumer group name for a classification type.
func GroupID(classificationType string) string {
	return consumerGroupPrefix + classificationType
}

func splitBrokers(raw string) []string {
	var brokers []string

	for _, broker := range strings.Split(raw, ",") {
		broker = strings.TrimSpace(broker)
		if broker != "" {
			brokers = append(brokers, broker)
		}
	}

	return brokers
}
