package processor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dns-smart-block/dns-smart-block/internal/classifier"
	"github.com/dns-smart-block/dns-smart-block/internal/queue"
	"github.com/dns-smart-block/dns-smart-block/internal/storage"
)

// permanentErrorMarkers identify failures that no amount of retrying fixes:
// the domain does not resolve, is syntactically invalid, or the site actively
// refuses us.
var permanentErrorMarkers = []string{
	"dns_resolution_failed",
	"invalid_domain",
	"http_fetch_failed: 404",
	"http_fetch_failed: 403",
}

// Store is the event store surface the processor needs.
type Store interface {
	LatestEvent(ctx context.Context, domain string) (*storage.Event, error)
	HasValidClassification(ctx context.Context, domain string) (bool, error)
	ConsecutiveErrorCount(ctx context.Context, domain string) (int, error)
	AppendEvent(ctx context.Context, domain string, action storage.Action, actionData any) error
	CommitClassification(ctx context.Context, params storage.ClassificationParams) error
}

// Processor handles one queue message at a time: decide whether the domain
// needs work, run the classifier, record the outcome, settle the delivery.
// All lifecycle state lives in the event store; the processor holds nothing
// across messages, so crash recovery is just redelivery.
type Processor struct {
	store      Store
	runner     Runner
	cfg        *Config
	promptHash string
	prompt     string
	logger     *slog.Logger
}

// New creates a processor. The prompt template is read once at startup; a
// missing template is a fatal configuration error.
func New(cfg *Config, store Store, runner Runner, logger *slog.Logger) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	prompt, err := os.ReadFile(cfg.PromptTemplatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt template %s: %w", cfg.PromptTemplatePath, err)
	}

	return &Processor{
		store:      store,
		runner:     runner,
		cfg:        cfg,
		prompt:     string(prompt),
		promptHash: classifier.PromptHash(string(prompt)),
		logger:     logger,
	}, nil
}

// HandleMessage implements the queue handler for one domain message.
func (p *Processor) HandleMessage(ctx context.Context, msg queue.DomainMessage) queue.Disposition {
	domain := msg.Domain
	logger := p.logger.With("domain", domain)

	proceed, err := p.shouldProcess(ctx, domain)
	if err != nil {
		logger.Error("Failed to determine lifecycle state", "error", err)

		return queue.Nak
	}

	if !proceed {
		logger.Info("Skipping domain, no work needed")

		return queue.Ack
	}

	err = p.store.AppendEvent(ctx, domain, storage.ActionClassifying, map[string]any{
		"model":       p.cfg.OllamaModel,
		"prompt_hash": p.promptHash,
	})
	if err != nil {
		logger.Error("Failed to record classifying event", "error", err)

		return queue.Nak
	}

	output, err := p.classify(ctx, domain)
	if err != nil {
		return p.handleFailure(ctx, domain, err, logger)
	}

	return p.handleVerdict(ctx, domain, output, logger)
}

// shouldProcess applies the lifecycle state machine to the latest event:
//
//	none               -> proceed
//	queued             -> proceed, we are the intended consumer
//	classifying        -> proceed, likely a redelivery after a crash
//	classified + valid -> skip
//	classified expired -> proceed, re-classify
//	error              -> proceed on redelivery while the circuit is
//	                      closed; skip once it opens
//
// New observations of an errored domain never reach the queue (the log
// processor's dedup stops them), so an error-latest delivery here is a
// redelivery of a transient failure.
func (p *Processor) shouldProcess(ctx context.Context, domain string) (bool, error) {
	event, err := p.store.LatestEvent(ctx, domain)
	if err != nil {
		return false, err
	}

	if event == nil {
		return true, nil
	}

	switch event.Action {
	case storage.ActionQueued, storage.ActionClassifying:
		return true, nil
	case storage.ActionError:
		count, err := p.store.ConsecutiveErrorCount(ctx, domain)
		if err != nil {
			return false, err
		}

		return count < maxConsecutiveErrors, nil
	case storage.ActionClassified:
		valid, err := p.store.HasValidClassification(ctx, domain)
		if err != nil {
			return false, err
		}

		return !valid, nil
	default:
		return true, nil
	}
}

// classify runs the subprocess and reduces its output to a verdict or an
// error. An error-variant document becomes a Go error carrying the semantic
// type in its message, which the permanent-failure check matches against.
func (p *Processor) classify(ctx context.Context, domain string) (*classifier.Output, error) {
	stdout, err := p.runner.Run(ctx, domain)
	if err != nil {
		return nil, err
	}

	output, err := classifier.DecodeOutput(stdout)
	if err != nil {
		return nil, fmt.Errorf("%w; output was: %s", err, stdout)
	}

	if output.Result == classifier.ResultError {
		return nil, fmt.Errorf("%s: %s", output.Error.ErrorType, output.Error.Message)
	}

	return output, nil
}

// handleVerdict records a classified event and, when the verdict clears the
// confidence threshold, commits the projection rows.
func (p *Processor) handleVerdict(ctx context.Context, domain string, output *classifier.Output, logger *slog.Logger) queue.Disposition {
	logger.Info("Classification successful",
		"is_matching_site", output.Classification.IsMatchingSite,
		"confidence", output.Classification.Confidence)

	err := p.store.AppendEvent(ctx, domain, storage.ActionClassified, map[string]any{
		"is_matching_site":    output.Classification.IsMatchingSite,
		"confidence":          output.Classification.Confidence,
		"classification_type": p.cfg.ClassificationType,
		"http_status":         output.Metadata.HTTPStatus,
	})
	if err != nil {
		logger.Error("Failed to record classified event", "error", err)

		return queue.Nak
	}

	if !output.Classification.IsMatchingSite || output.Classification.Confidence < p.cfg.MinConfidence {
		logger.Info("Domain does not match or is below confidence threshold")

		return queue.Ack
	}

	err = p.store.CommitClassification(ctx, storage.ClassificationParams{
		Domain:             domain,
		ClassificationType: p.cfg.ClassificationType,
		Confidence:         output.Classification.Confidence,
		Model:              p.cfg.OllamaModel,
		PromptContent:      p.prompt,
		PromptHash:         output.Metadata.PromptHash,
		TTLDays:            p.cfg.TTLDays,
	})
	if err != nil {
		logger.Error("Failed to commit classification", "error", err)

		return queue.Nak
	}

	logger.Info("Domain added to blocklist projection",
		"classification_type", p.cfg.ClassificationType)

	return queue.Ack
}

// handleFailure records an error event and settles the delivery: permanent
// failures and open circuits are acknowledged, transient ones redelivered.
func (p *Processor) handleFailure(ctx context.Context, domain string, classifyErr error, logger *slog.Logger) queue.Disposition {
	logger.Error("Classification failed", "error", classifyErr)

	err := p.store.AppendEvent(ctx, domain, storage.ActionError, map[string]any{
		"error": classifyErr.Error(),
	})
	if err != nil {
		logger.Error("Failed to record error event", "error", err)

		return queue.Nak
	}

	if isPermanentError(classifyErr) {
		logger.Info("Permanent error, will not retry")

		return queue.Ack
	}

	count, err := p.store.ConsecutiveErrorCount(ctx, domain)
	if err != nil {
		logger.Error("Failed to count consecutive errors", "error", err)

		return queue.Nak
	}

	if count >= maxConsecutiveErrors {
		logger.Warn("Too many consecutive failures, will not retry", "count", count)

		return queue.Ack
	}

	logger.Info("Transient error, requesting redelivery", "count", count)

	return queue.Nak
}

func isPermanentError(err error) bool {
	msg := err.Error()

	for _, marker := range permanentErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}
