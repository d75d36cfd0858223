// Package processor drives domains through the classification lifecycle: it
// consumes queue messages, spawns the classifier subprocess, records events,
// and updates the blocklist projection on matching verdicts.
package processor

import (
	"errors"
	"time"

	"github.com/dns-smart-block/dns-smart-block/internal/config"
)

const (
	defaultClassifierPath = "dns-smart-block-classifier"
	defaultOllamaURL      = "http://localhost:11434"
	defaultOllamaModel    = "llama2"
	defaultType           = "gaming"
	defaultHTTPTimeout    = 10 * time.Second
	defaultHTTPMaxKB      = 100
	defaultMinConfidence  = 0.8
	defaultTTLDays        = 10

	// maxConsecutiveErrors opens the circuit for a domain: at this many
	// errors in a row, delivery is acknowledged and retries stop.
	maxConsecutiveErrors = 3
)

var (
	// ErrNoPromptTemplate is returned when the prompt template path is
	// missing.
	ErrNoPromptTemplate = errors.New("prompt template path is required")

	// ErrInvalidConfidence is returned for a threshold outside [0, 1].
	ErrInvalidConfidence = errors.New("minimum confidence must be between 0 and 1")
)

// Config holds queue processor configuration.
type Config struct {
	ClassifierPath     string
	OllamaURL          string
	OllamaModel        string
	PromptTemplatePath string
	ClassificationType string
	HTTPTimeout        time.Duration
	HTTPMaxKB          int
	MinConfidence      float64
	TTLDays            int
}

// LoadConfig loads processor configuration from environment variables with
// fallback to defaults. PROMPT_TEMPLATE has no default and must be set.
func LoadConfig() *Config {
	return &Config{
		ClassifierPath:     config.GetEnvStr("CLASSIFIER_PATH", defaultClassifierPath),
		OllamaURL:          config.GetEnvStr("OLLAMA_URL", defaultOllamaURL),
		OllamaModel:        config.GetEnvStr("OLLAMA_MODEL", defaultOllamaModel),
		PromptTemplatePath: config.GetEnvStr("PROMPT_TEMPLATE", ""),
		ClassificationType: config.GetEnvStr("CLASSIFICATION_TYPE", defaultType),
		HTTPTimeout:        config.GetEnvDuration("HTTP_TIMEOUT", defaultHTTPTimeout),
		HTTPMaxKB:          config.GetEnvInt("HTTP_MAX_KB", defaultHTTPMaxKB),
		MinConfidence:      config.GetEnvFloat("MIN_CONFIDENCE", defaultMinConfidence),
		TTLDays:            config.GetEnvInt("CLASSIFICATION_TTL_DAYS", defaultTTLDays),
	}
}

// Validate checks if the processor configuration is valid.
func (c *Config) Validate() error {
	if c.PromptTemplatePath == "" {
		return ErrNoPromptTemplate
	}

	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return ErrInvalidConfidence
	}

	return nil
}
