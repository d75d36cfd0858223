package dnslog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dns-smart-block/dns-smart-block/internal/storage"
)

type (
	// EventRecorder is the event store surface the pipeline needs for
	// cross-process deduplication.
	EventRecorder interface {
		ShouldQueue(ctx context.Context, domain string) (bool, error)
		AppendEvent(ctx context.Context, domain string, action storage.Action, actionData any) error
	}

	// DomainPublisher publishes a domain to the work queue.
	DomainPublisher interface {
		PublishDomain(ctx context.Context, domain string) error
	}

	// BlockChecker asks a downstream resolver whether a domain is already
	// blocked.
	BlockChecker interface {
		IsDomainBlocked(ctx context.Context, domain string) (bool, error)
	}
)

// Pipeline tails a log source and publishes unseen domains to the queue.
// Deduplication is layered: a process-local seen set rejects repeats cheaply,
// the event store decides across processes and restarts, and an optional
// resolver check skips domains already blocked downstream.
type Pipeline struct {
	parser    *Parser
	source    Source
	store     EventRecorder
	publisher DomainPublisher
	checker   BlockChecker // nil disables the resolver check
	logger    *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewPipeline assembles a log processing pipeline. checker may be nil.
func NewPipeline(source Source, store EventRecorder, publisher DomainPublisher, checker BlockChecker, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		parser:    NewParser(),
		source:    source,
		store:     store,
		publisher: publisher,
		checker:   checker,
		logger:    logger,
		seen:      make(map[string]struct{}),
	}
}

// Run processes log lines serially until the source ends or the context is
// cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	lines, err := p.source.Lines(ctx)
	if err != nil {
		return err
	}

	p.logger.Info("Starting log stream processing")

	for line := range lines {
		domain, ok := p.parser.Extract(line)
		if !ok {
			continue
		}

		p.handleDomain(ctx, domain)
	}

	p.logger.Info("Log stream ended")

	return nil
}

// handleDomain applies the dedup layers and queues the domain when all of
// them agree it is new work.
func (p *Pipeline) handleDomain(ctx context.Context, domain string) {
	if p.seenBefore(domain) {
		return
	}

	logger := p.logger.With("domain", domain)
	logger.Info("Found domain in log")

	shouldQueue, err := p.store.ShouldQueue(ctx, domain)
	if err != nil {
		// Queue anyway: a duplicate message is cheaper than a lost
		// domain, and the processor deduplicates on its side too.
		logger.Warn("Failed to check domain status, will queue anyway", "error", err)
	} else if !shouldQueue {
		logger.Info("Domain already queued, classified, or in progress, skipping")
		p.markSeen(domain)

		return
	}

	if p.checker != nil {
		blocked, err := p.checker.IsDomainBlocked(ctx, domain)
		if err != nil {
			logger.Warn("Failed to check resolver blocklist, will queue anyway", "error", err)
		} else if blocked {
			logger.Info("Domain already blocked downstream, skipping")
			p.markSeen(domain)

			return
		}
	}

	err = p.store.AppendEvent(ctx, domain, storage.ActionQueued, map[string]any{})
	if err != nil {
		// The publish still goes out; the processor tolerates a missing
		// queued event.
		logger.Error("Failed to record queued event", "error", err)
	}

	if err := p.publisher.PublishDomain(ctx, domain); err != nil {
		// The queued event stays; the domain is retried only once a
		// later event moves its lifecycle forward.
		logger.Error("Failed to publish domain to queue", "error", err)

		return
	}

	logger.Info("Queued domain for classification")
	p.markSeen(domain)
}

func (p *Pipeline) seenBefore(domain string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.seen[domain]

	return ok
}

func (p *Pipeline) markSeen(domain string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seen[domain] = struct{}{}
}
