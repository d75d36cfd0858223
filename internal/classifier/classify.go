package classifier

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"
)

// Config carries one classification run's parameters, resolved from flags or
// environment by the binary.
type Config struct {
	Domain             string
	OllamaURL          string
	OllamaModel        string
	PromptTemplatePath string
	ClassificationType string
	HTTPTimeout        time.Duration
	HTTPMaxKB          int
}

// Classifier runs one fetch-extract-classify pass for a single domain.
type Classifier struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a classifier for one invocation.
func New(cfg Config, logger *slog.Logger) *Classifier {
	return &Classifier{cfg: cfg, logger: logger}
}

// Run executes the classification and always returns an Output, success or
// error variant; the process never has to exit without a stdout document.
func (c *Classifier) Run(ctx context.Context) *Output {
	template, err := os.ReadFile(c.cfg.PromptTemplatePath)
	if err != nil {
		c.logger.Error("Failed to read prompt template",
			"path", c.cfg.PromptTemplatePath, "error", err)

		return NewErrorOutput(c.cfg.Domain,
			newClassifyError(ErrorTypePromptFileRead, err), nil)
	}

	promptTemplate := string(template)
	promptHash := PromptHash(promptTemplate)
	c.logger.Info("Loaded prompt template", "hash", promptHash)

	metadata := c.fetchMetadata(ctx)
	c.logger.Info("Extracted site metadata",
		"domain", metadata.Domain, "http_status", metadata.HTTPStatus,
		"title", metadata.Title, "fetch_error", metadata.FetchError)

	ollama := NewOllamaClient(c.cfg.OllamaURL, c.cfg.OllamaModel)

	classification, err := ollama.Classify(ctx, metadata, promptTemplate)
	if err != nil {
		c.logger.Error("Classification failed", "domain", c.cfg.Domain, "error", err)

		var classifyErr *ClassifyError
		if !errors.As(err, &classifyErr) {
			classifyErr = newClassifyError(ErrorTypeOllamaAPI, err)
		}

		return NewErrorOutput(c.cfg.Domain, classifyErr, &Metadata{
			Model:      c.cfg.OllamaModel,
			PromptHash: promptHash,
		})
	}

	c.logger.Info("Classification complete",
		"domain", c.cfg.Domain,
		"is_matching_site", classification.IsMatchingSite,
		"confidence", classification.Confidence)

	return NewClassifiedOutput(c.cfg.Domain, classification, Metadata{
		HTTPStatus: metadata.HTTPStatus,
		Model:      c.cfg.OllamaModel,
		PromptHash: promptHash,
	})
}

// fetchMetadata fetches the site and extracts metadata, degrading to a
// fetch-error stub on failure so the LLM still sees the domain name.
func (c *Classifier) fetchMetadata(ctx context.Context) SiteMetadata {
	fetcher := NewFetcher(c.cfg.HTTPTimeout, c.cfg.HTTPMaxKB)

	html, status, err := fetcher.Fetch(ctx, c.cfg.Domain)
	if err != nil {
		c.logger.Warn("Failed to fetch domain, classifying on name alone",
			"domain", c.cfg.Domain, "error", err)

		return MetadataFromFetchError(c.cfg.Domain, err.Error())
	}

	metadata, err := ExtractMetadata(c.cfg.Domain, html, status)
	if err != nil {
		c.logger.Warn("Failed to extract metadata",
			"domain", c.cfg.Domain, "error", err)

		return MetadataFromFetchError(c.cfg.Domain, "metadata extraction failed: "+err.Error())
	}

	return metadata
}
