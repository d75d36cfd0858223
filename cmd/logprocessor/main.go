// Package main provides the DNS log processor service.
//
// The log processor tails a DNS log source, extracts queried domains, and
// publishes unseen ones to the classification queue, recording a queued
// event for each.
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

	"github.com/dns-smart-block/dns-smart-block/internal/config"
	"github.com/dns-smart-block/dns-smart-block/internal/dnsdist"
	"github.com/dns-smart-block/dns-smart-block/internal/dnslog"
	"github.com/dns-smart-block/dns-smart-block/internal/queue"
	"github.com/dns-smart-block/dns-smart-block/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "dns-smart-block-log-processor"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	logSource := flag.String("log-source", config.GetEnvStr("LOG_SOURCE", ""),
		"log source: a file path or cmd:<command> to tail")
	dnsdistURL := flag.String("dnsdist-api-url", config.GetEnvStr("DNSDIST_API_URL", ""),
		"dnsdist API URL for already-blocked checks (empty disables)")
	dnsdistKey := flag.String("dnsdist-api-key", config.GetEnvStr("DNSDIST_API_KEY", ""),
		"dnsdist API key")
	skipDnsdist := flag.Bool("skip-dnsdist-check", config.GetEnvBool("SKIP_DNSDIST_CHECK", false),
		"skip the dnsdist already-blocked check")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	logger.Info("Starting log processor service",
		slog.String("service", name),
		slog.String("version", version),
	)

	if *logSource == "" {
		logger.Error("Missing required flag: --log-source (or LOG_SOURCE)")
		os.Exit(2)
	}

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

	queueConfig := queue.LoadConfig()

	publisher, err := queue.NewPublisher(queueConfig, logger)
	if err != nil {
		logger.Error("Failed to create queue publisher", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = publisher.Close()
	}()

	logger.Info("Queue publisher initialized",
		slog.Any("brokers", queueConfig.Brokers),
		slog.String("topic", queueConfig.Topic),
	)

	var checker dnslog.BlockChecker

	if *dnsdistURL != "" && !*skipDnsdist {
		checker = dnsdist.NewClient(*dnsdistURL, *dnsdistKey, logger)

		logger.Info("dnsdist blocklist check enabled", slog.String("url", *dnsdistURL))
	} else {
		logger.Info("dnsdist blocklist check disabled")
	}

	source, err := dnslog.NewSource(*logSource, logger)
	if err != nil {
		logger.Error("Failed to open log source",
			slog.String("source", *logSource),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline := dnslog.NewPipeline(source, store, publisher, checker, logger)

	if err := pipeline.Run(ctx); err != nil {
		logger.Error("Pipeline failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Log processor service stopped")
}
