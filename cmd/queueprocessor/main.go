// Package main provides the classification queue processor service.
//
// The queue processor consumes queued domains one at a time, runs the
// classifier subprocess, records lifecycle events, and commits successful
// high-confidence classifications into the blocklist projection.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/dns-smart-block/dns-smart-block/internal/processor"
	"github.com/dns-smart-block/dns-smart-block/internal/queue"
	"github.com/dns-smart-block/dns-smart-block/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "dns-smart-block-queue-processor"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	logger.Info("Starting queue processor service",
		slog.String("service", name),
		slog.String("version", version),
	)

	processorConfig := processor.LoadConfig()

	storageConfig, err := storage.LoadConfig()
	if err != nil {
		logger.Error("Failed to load database configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	dbConn, err := storage.NewConnection(storageConfig)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = dbConn.Close()
	}()

	logger.Info("Connected to database",
		slog.String("database_url", storageConfig.MaskDatabaseURL()),
	)

	store, err := storage.NewEventStore(dbConn)
	if err != nil {
		logger.Error("Failed to create event store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	runner := processor.NewSubprocessRunner(processorConfig, logger)

	proc, err := processor.New(processorConfig, store, runner, logger)
	if err != nil {
		logger.Error("Failed to create processor", slog.String("error", err.Error()))
		os.Exit(1)
	}

	queueConfig := queue.LoadConfig()

	consumer, err := queue.NewConsumer(queueConfig, processorConfig.ClassificationType, logger)
	if err != nil {
		logger.Error("Failed to create queue consumer", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = consumer.Close()
	}()

	logger.Info("Queue consumer initialized",
		slog.Any("brokers", queueConfig.Brokers),
		slog.String("topic", queueConfig.Topic),
		slog.String("group_id", queue.GroupID(processorConfig.ClassificationType)),
		slog.String("classification_type", processorConfig.ClassificationType),
		slog.String("classifier_path", processorConfig.ClassifierPath),
		slog.String("ollama_model", processorConfig.OllamaModel),
		slog.Float64("min_confidence", processorConfig.MinConfidence),
		slog.Int("ttl_days", processorConfig.TTLDays),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := consumer.Run(ctx, proc.HandleMessage); err != nil {
		logger.Error("Consumer stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Queue processor service stopped")
}
