package processor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
)

// Runner executes one classifier invocation and returns its raw stdout.
type Runner interface {
	Run(ctx context.Context, domain string) ([]byte, error)
}

// SubprocessRunner spawns the classifier binary per domain. The exit code is
// advisory; callers judge the run by the stdout JSON alone.
type SubprocessRunner struct {
	cfg    *Config
	logger *slog.Logger
}

// Compile-time interface check.
var _ Runner = (*SubprocessRunner)(nil)

// NewSubprocessRunner creates a runner for the configured classifier binary.
func NewSubprocessRunner(cfg *Config, logger *slog.Logger) *SubprocessRunner {
	return &SubprocessRunner{cfg: cfg, logger: logger}
}

// Run spawns the classifier and waits for it to exit. Stdout and stderr are
// drained concurrently; draining them in sequence deadlocks once either pipe
// buffer fills.
func (r *SubprocessRunner) Run(ctx context.Context, domain string) ([]byte, error) {
	r.logger.Info("Running classifier", "domain", domain)

	cmd := exec.CommandContext(ctx, r.cfg.ClassifierPath,
		"--domain", domain,
		"--ollama-url", r.cfg.OllamaURL,
		"--ollama-model", r.cfg.OllamaModel,
		"--prompt-template", r.cfg.PromptTemplatePath,
		"--classification-type", r.cfg.ClassificationType,
		"--http-timeout-sec", strconv.Itoa(int(r.cfg.HTTPTimeout.Seconds())),
		"--http-max-kb", strconv.Itoa(r.cfg.HTTPMaxKB),
		"--output", "json",
	)

	// exec copies each non-file stream on its own goroutine, so the two
	// buffers fill concurrently.
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if stderr.Len() > 0 {
		r.logger.Info("Classifier stderr", "domain", domain, "stderr", stderr.String())
	}

	if stdout.Len() == 0 {
		if runErr != nil {
			return nil, fmt.Errorf("classifier produced no output: %w", runErr)
		}

		return nil, fmt.Errorf("classifier produced no output")
	}

	return stdout.Bytes(), nil
}
