package queue

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const consumeTimeout = 90 * time.Second

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupKafka(ctx context.Context, t *testing.T, topic string) *Config {
	t.Helper()

	container, err := tckafka.Run(ctx,
		"confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("test-cluster"),
	)
	require.NoError(t, err, "Failed to start kafka container")

	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err, "Failed to get kafka brokers")

	return NewConfig(strings.Join(brokers, ","), topic)
}

func TestPublishAndConsume(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	cfg := setupKafka(ctx, t, "dns.domains.pubsub")

	publisher, err := NewPublisher(cfg, testLogger())
	require.NoError(t, err)
	defer func() {
		_ = publisher.Close()
	}()

	require.NoError(t, publisher.PublishDomain(ctx, "first.example.com"))
	require.NoError(t, publisher.PublishDomain(ctx, "second.example.com"))

	consumer, err := NewConsumer(cfg, "gaming", testLogger())
	require.NoError(t, err)
	defer func() {
		_ = consumer.Close()
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		received []string
	)

	done := make(chan error, 1)
	go func() {
		done <- consumer.Run(runCtx, func(_ context.Context, msg DomainMessage) Disposition {
			mu.Lock()
			received = append(received, msg.Domain)
			count := len(received)
			mu.Unlock()

			assert.NotZero(t, msg.Timestamp)

			if count == 2 {
				cancel()
			}

			return Ack
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(consumeTimeout):
		cancel()
		t.Fatal("timed out waiting for messages")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"first.example.com", "second.example.com"}, received)
}

func TestNakRedeliversMessage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	cfg := setupKafka(ctx, t, "dns.domains.nak")

	publisher, err := NewPublisher(cfg, testLogger())
	require.NoError(t, err)
	defer func() {
		_ = publisher.Close()
	}()

	require.NoError(t, publisher.PublishDomain(ctx, "flaky.example.com"))

	consumer, err := NewConsumer(cfg, "gaming", testLogger())
	require.NoError(t, err)
	defer func() {
		_ = consumer.Close()
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu         sync.Mutex
		deliveries int
	)

	done := make(chan error, 1)
	go func() {
		done <- consumer.Run(runCtx, func(_ context.Context, msg DomainMessage) Disposition {
			mu.Lock()
			deliveries++
			count := deliveries
			mu.Unlock()

			if count == 1 {
				return Nak
			}

			cancel()

			return Ack
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(consumeTimeout):
		cancel()
		t.Fatal("timed out waiting for redelivery")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, deliveries)
}

func TestPoisonMessageIsDiscarded(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	cfg := setupKafka(ctx, t, "dns.domains.poison")

	// Write a malformed payload directly, then a valid message behind it.
	raw := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	require.NoError(t, raw.WriteMessages(ctx, kafka.Message{Value: []byte("not json")}))
	require.NoError(t, raw.Close())

	publisher, err := NewPublisher(cfg, testLogger())
	require.NoError(t, err)
	defer func() {
		_ = publisher.Close()
	}()
	require.NoError(t, publisher.PublishDomain(ctx, "good.example.com"))

	consumer, err := NewConsumer(cfg, "gaming", testLogger())
	require.NoError(t, err)
	defer func() {
		_ = consumer.Close()
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		received []string
	)

	done := make(chan error, 1)
	go func() {
		done <- consumer.Run(runCtx, func(_ context.Context, msg DomainMessage) Disposition {
			mu.Lock()
			received = append(received, msg.Domain)
			mu.Unlock()

			cancel()

			return Ack
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(consumeTimeout):
		cancel()
		t.Fatal("timed out waiting for valid message")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"good.example.com"}, received)
}
