package processor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/dns-smart-block/dns-smart-block/internal/classifier"
	"github.com/dns-smart-block/dns-smart-block/internal/config"
	"github.com/dns-smart-block/dns-smart-block/internal/queue"
	"github.com/dns-smart-block/dns-smart-block/internal/storage"
)

func setupIntegration(ctx context.Context, t *testing.T, runner Runner) (*Processor, *storage.EventStore) {
	t.Helper()

	testDB := config.SetupTestDatabase(ctx, t)
	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	store, err := storage.NewEventStore(&storage.Connection{DB: testDB.Connection})
	require.NoError(t, err)

	promptPath := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(promptPath, []byte("Classify: {{INPUT_JSON}}"), 0o600))

	p, err := New(&Config{
		ClassifierPath:     "unused",
		OllamaURL:          "http://localhost:11434",
		OllamaModel:        "llama3.1",
		PromptTemplatePath: promptPath,
		ClassificationType: "gaming",
		MinConfidence:      0.8,
		TTLDays:            10,
	}, store, runner, testLogger())
	require.NoError(t, err)

	return p, store
}

func TestPipelineHappyPath(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	runner := &fakeRunner{outputs: [][]byte{classifiedJSON(t, "gaming1.com", true, 0.95)}}
	p, store := setupIntegration(ctx, t, runner)

	// The log processor writes queued before publishing.
	require.NoError(t, store.AppendEvent(ctx, "gaming1.com", storage.ActionQueued, map[string]string{}))

	disp := p.HandleMessage(ctx, queue.DomainMessage{Domain: "gaming1.com", Timestamp: time.Now().Unix()})
	assert.Equal(t, queue.Ack, disp)

	event, err := store.LatestEvent(ctx, "gaming1.com")
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, storage.ActionClassified, event.Action)

	domains, err := store.DomainsValidAt(ctx, "gaming", time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"gaming1.com"}, domains)

	count, err := store.ConsecutiveErrorCount(ctx, "gaming1.com")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPipelineBelowThreshold(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	runner := &fakeRunner{outputs: [][]byte{classifiedJSON(t, "maybe.com", true, 0.5)}}
	p, store := setupIntegration(ctx, t, runner)

	require.NoError(t, store.AppendEvent(ctx, "maybe.com", storage.ActionQueued, map[string]string{}))

	disp := p.HandleMessage(ctx, queue.DomainMessage{Domain: "maybe.com", Timestamp: time.Now().Unix()})
	assert.Equal(t, queue.Ack, disp)

	event, err := store.LatestEvent(ctx, "maybe.com")
	require.NoError(t, err)
	assert.Equal(t, storage.ActionClassified, event.Action)

	domains, err := store.DomainsValidAt(ctx, "gaming", time.Now())
	require.NoError(t, err)
	assert.Empty(t, domains)
}

func TestPipelineTransientThenSuccess(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	runner := &fakeRunner{outputs: [][]byte{
		errorJSON(t, "flaky.com", classifier.ErrorTypeOllamaAPITimeout, "request timed out"),
		errorJSON(t, "flaky.com", classifier.ErrorTypeOllamaAPITimeout, "request timed out"),
		classifiedJSON(t, "flaky.com", true, 0.9),
	}}
	p, store := setupIntegration(ctx, t, runner)

	msg := queue.DomainMessage{Domain: "flaky.com", Timestamp: time.Now().Unix()}

	// Two transient failures, each requesting redelivery.
	assert.Equal(t, queue.Nak, p.HandleMessage(ctx, msg))
	assert.Equal(t, queue.Nak, p.HandleMessage(ctx, msg))

	count, err := store.ConsecutiveErrorCount(ctx, "flaky.com")
	require.NoError(t, err)
	assert.Equal(t, 1, count) // classifying events reset the streak

	// Third delivery succeeds.
	assert.Equal(t, queue.Ack, p.HandleMessage(ctx, msg))

	count, err = store.ConsecutiveErrorCount(ctx, "flaky.com")
	require.NoError(t, err)
	assert.Zero(t, count)

	domains, err := store.DomainsValidAt(ctx, "gaming", time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"flaky.com"}, domains)
}

func TestPipelinePermanentError(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	runner := &fakeRunner{outputs: [][]byte{
		errorJSON(t, "gone.com", classifier.ErrorTypeDomainFetch, "dns_resolution_failed: no such host"),
	}}
	p, store := setupIntegration(ctx, t, runner)

	msg := queue.DomainMessage{Domain: "gone.com", Timestamp: time.Now().Unix()}

	assert.Equal(t, queue.Ack, p.HandleMessage(ctx, msg))

	event, err := store.LatestEvent(ctx, "gone.com")
	require.NoError(t, err)
	assert.Equal(t, storage.ActionError, event.Action)

	// Subsequent observations must not re-queue the domain.
	shouldQueue, err := store.ShouldQueue(ctx, "gone.com")
	require.NoError(t, err)
	assert.False(t, shouldQueue)
}
