// Package api provides the HTTP blocklist server.
package api

import (
	"context"
	"time"

	"github.com/dns-smart-block/dns-smart-block/internal/storage"
)

// BlocklistStore is the read-only store surface the server needs. The
// blocklist server never writes events; it projects what the queue
// processor committed.
type BlocklistStore interface {
	// DomainsValidAt returns the sorted, distinct domains with a
	// classification of the given type valid at time t.
	DomainsValidAt(ctx context.Context, classificationType string, t time.Time) ([]string, error)

	// MetricsSnapshot aggregates the store counts backing the /metrics
	// gauges.
	MetricsSnapshot(ctx context.Context) (*storage.MetricsStats, error)

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error
}

var _ BlocklistStore = (*storage.EventStore)(nil)
