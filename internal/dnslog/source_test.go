package dnslog

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func collectLines(t *testing.T, lines <-chan string) []string {
	t.Helper()

	var out []string
	for line := range lines {
		out = append(out, line)
	}

	return out
}

func TestNewSource(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("empty spec", func(t *testing.T) {
		_, err := NewSource("", testLogger())
		assert.ErrorIs(t, err, ErrEmptyLogSource)
	})

	t.Run("empty command", func(t *testing.T) {
		_, err := NewSource("cmd:   ", testLogger())
		assert.ErrorIs(t, err, ErrEmptyCommand)
	})

	t.Run("file path yields file source", func(t *testing.T) {
		source, err := NewSource("/var/log/dnsdist.log", testLogger())
		require.NoError(t, err)
		assert.IsType(t, &FileSource{}, source)
	})

	t.Run("cmd prefix yields command source", func(t *testing.T) {
		source, err := NewSource("cmd:journalctl -f -u dnsdist", testLogger())
		require.NoError(t, err)
		assert.IsType(t, &CommandSource{}, source)
	})
}

func TestFileSourceLines(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("streams file lines in order", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "dnsdist.log")
		content := "Query from 192.168.1.100:54321: example.com IN A\nquery: news.example.org\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		source, err := NewSource(path, testLogger())
		require.NoError(t, err)

		lines, err := source.Lines(context.Background())
		require.NoError(t, err)

		assert.Equal(t, []string{
			"Query from 192.168.1.100:54321: example.com IN A",
			"query: news.example.org",
		}, collectLines(t, lines))
	})

	t.Run("missing file fails", func(t *testing.T) {
		source, err := NewSource("/nonexistent/dnsdist.log", testLogger())
		require.NoError(t, err)

		_, err = source.Lines(context.Background())
		assert.Error(t, err)
	})
}

func TestCommandSourceLines(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("streams command stdout", func(t *testing.T) {
		source, err := NewSource("cmd:echo test line", testLogger())
		require.NoError(t, err)

		lines, err := source.Lines(context.Background())
		require.NoError(t, err)

		assert.Equal(t, []string{"test line"}, collectLines(t, lines))
	})

	t.Run("missing binary fails to start", func(t *testing.T) {
		source, err := NewSource("cmd:definitely-not-a-command-xyz", testLogger())
		require.NoError(t, err)

		_, err = source.Lines(context.Background())
		assert.Error(t, err)
	})

	t.Run("cancellation ends the stream", func(t *testing.T) {
		source, err := NewSource("cmd:sleep 60", testLogger())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		lines, err := source.Lines(ctx)
		require.NoError(t, err)

		cancel()
		assert.Empty(t, collectLines(t, lines))
	})
}
