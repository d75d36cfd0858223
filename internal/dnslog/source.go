package dnslog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

const (
	// commandPrefix marks a log source spec as a command to spawn rather
	// than a file to read, e.g. "cmd:journalctl -f -u dnsdist".
	commandPrefix = "cmd:"

	// maxLineBytes bounds a single log line; resolver logs stay well under
	// this, and anything longer is not a DNS query line we care about.
	maxLineBytes = 1 << 20
)

var (
	// ErrEmptyLogSource is returned when the log source spec is blank.
	ErrEmptyLogSource = errors.New("log source cannot be empty")

	// ErrEmptyCommand is returned for a "cmd:" spec with no command.
	ErrEmptyCommand = errors.New("log source command cannot be empty")
)

// Source yields log lines until the underlying source ends or the context is
// cancelled. The returned channel is closed when the stream ends; read errors
// are logged and terminate the stream.
type Source interface {
	Lines(ctx context.Context) (<-chan string, error)
}

// NewSource builds a Source from a spec string: a plain file path, or a
// command line prefixed with "cmd:" whose stdout is tailed.
func NewSource(spec string, logger *slog.Logger) (Source, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, ErrEmptyLogSource
	}

	if cmdLine, ok := strings.CutPrefix(spec, commandPrefix); ok {
		args := strings.Fields(cmdLine)
		if len(args) == 0 {
			return nil, ErrEmptyCommand
		}

		return &CommandSource{args: args, logger: logger}, nil
	}

	return &FileSource{path: spec, logger: logger}, nil
}

// FileSource reads lines from a log file until EOF.
type FileSource struct {
	path   string
	logger *slog.Logger
}

// Compile-time interface check.
var _ Source = (*FileSource)(nil)

// Lines opens the file and streams its lines.
func (s *FileSource) Lines(ctx context.Context) (<-chan string, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", s.path, err)
	}

	s.logger.Info("Opened log file", "path", s.path)

	out := make(chan string)

	go func() {
		defer close(out)
		defer func() {
			_ = file.Close()
		}()

		scanLines(ctx, file, out, s.logger)
		s.logger.Info("File stream ended", "path", s.path)
	}()

	return out, nil
}

// CommandSource spawns a child process and streams its stdout, for sources
// like "journalctl -f -u dnsdist" that follow logs indefinitely.
type CommandSource struct {
	args   []string
	logger *slog.Logger
}

var _ Source = (*CommandSource)(nil)

// Lines starts the command and streams its stdout. Cancelling the context
// kills the child process, which ends the stream.
func (s *CommandSource) Lines(ctx context.Context) (<-chan string, error) {
	cmd := exec.CommandContext(ctx, s.args[0], s.args[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to capture command stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start log source command: %w", err)
	}

	s.logger.Info("Started log source command", "command", strings.Join(s.args, " "))

	out := make(chan string)

	go func() {
		defer close(out)

		scanLines(ctx, stdout, out, s.logger)

		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			s.logger.Error("Log source command exited with error", "error", err)
		}

		s.logger.Info("Command stream ended")
	}()

	return out, nil
}

// scanLines pumps lines from r into out until EOF, read error, or context
// cancellation.
func scanLines(ctx context.Context, r io.Reader, out chan<- string, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineBytes)

	for scanner.Scan() {
		select {
		case out <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		logger.Error("Error reading log source", "error", err)
	}
}
