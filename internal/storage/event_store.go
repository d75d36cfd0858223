package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEventStoreFailed is returned when an event log operation fails.
	ErrEventStoreFailed = errors.New("event store operation failed")

	// ErrClassificationCommitFailed is returned when the projection
	// transaction cannot be committed.
	ErrClassificationCommitFailed = errors.New("classification commit failed")
)

// EventStore implements the event log and projection contract over PostgreSQL.
//
// Write paths:
//   - AppendEvent: append-only event log (all services)
//   - CommitClassification: projection tables (queue processor only)
//
// Read paths:
//   - LatestEvent / ConsecutiveErrorCount / ShouldQueue: lifecycle decisions
//   - DomainsValidAt / MetricsSnapshot: blocklist server
//
// All operations rely on the store's transaction isolation; there is no
// cross-transaction locking in application code.
type EventStore struct {
	conn *Connection
}

// NewEventStore creates a PostgreSQL-backed event store.
// Returns ErrNoDatabaseConnection if conn is nil.
func NewEventStore(conn *Connection) (*EventStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &EventStore{conn: conn}, nil
}

// HealthCheck delegates to the underlying connection's health check.
func (s *EventStore) HealthCheck(ctx context.Context) error {
	return s.conn.HealthCheck(ctx)
}

// AppendEvent inserts one event row with created_at = NOW(). Events are never
// updated or deleted after insert.
func (s *EventStore) AppendEvent(ctx context.Context, domain string, action Action, actionData any) error {
	if !action.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	data, err := json.Marshal(actionData)
	if err != nil {
		return fmt.Errorf("%w: failed to encode action data: %w", ErrEventStoreFailed, err)
	}

	_, err = s.conn.DB.ExecContext(ctx, `
		INSERT INTO domain_classification_events (domain, action, action_data, created_at)
		VALUES ($1, $2::classification_action, $3, NOW())
	`, domain, string(action), data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEventStoreFailed, err)
	}

	return nil
}

// LatestEvent returns the most recent event for a domain, or nil when the
// domain has no events. Ordering is created_at with id as the tie breaker, so
// same-millisecond events resolve by insertion order.
func (s *EventStore) LatestEvent(ctx context.Context, domain string) (*Event, error) {
	row := s.conn.DB.QueryRowContext(ctx, `
		SELECT id, domain, action::text, action_data, created_at
		FROM domain_classification_events
		WHERE domain = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, domain)

	var (
		event  Event
		action string
		data   []byte
	)

	err := row.Scan(&event.ID, &event.Domain, &action, &data, &event.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEventStoreFailed, err)
	}

	event.Action = Action(action)
	event.ActionData = json.RawMessage(data)

	return &event, nil
}

// ConsecutiveErrorCount returns the number of error events newer than the most
// recent non-error event for the domain. The count is zero as soon as any
// non-error event lands, which is what resets the circuit breaker.
func (s *EventStore) ConsecutiveErrorCount(ctx context.Context, domain string) (int, error) {
	row := s.conn.DB.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM domain_classification_events
		WHERE domain = $1
		  AND action = 'error'
		  AND id > COALESCE((
			SELECT MAX(id)
			FROM domain_classification_events
			WHERE domain = $1 AND action != 'error'
		  ), 0)
	`, domain)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrEventStoreFailed, err)
	}

	return count, nil
}

// HasValidClassification reports whether the domain has any classification
// whose interval covers the current time.
func (s *EventStore) HasValidClassification(ctx context.Context, domain string) (bool, error) {
	row := s.conn.DB.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM domain_classifications
		WHERE domain = $1 AND valid_on <= NOW() AND valid_until > NOW()
	`, domain)

	var count int64
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("%w: %w", ErrEventStoreFailed, err)
	}

	return count > 0, nil
}

// ShouldQueue decides whether the log processor should publish a domain for
// classification, based on the latest event:
//
//	none               -> queue
//	queued/classifying -> skip, a consumer owns it
//	classified         -> queue only when no still-valid classification exists
//	error              -> skip, no automatic retry
//
// Unknown actions queue the domain to be safe.
func (s *EventStore) ShouldQueue(ctx context.Context, domain string) (bool, error) {
	event, err := s.LatestEvent(ctx, domain)
	if err != nil {
		return false, err
	}

	if event == nil {
		return true, nil
	}

	switch event.Action {
	case ActionQueued, ActionClassifying:
		return false, nil
	case ActionError:
		return false, nil
	case ActionClassified:
		valid, err := s.HasValidClassification(ctx, domain)
		if err != nil {
			return false, err
		}

		return !valid, nil
	default:
		return true, nil
	}
}

// CommitClassification records a successful classification in the projection
// tables inside a single transaction:
//
//  1. insert-or-ignore the prompt by hash, then read its id
//  2. upsert the domain row (last_updated = NOW())
//  3. insert a classification valid for [NOW(), NOW() + TTLDays)
//
// The three writes either all commit or all roll back.
func (s *EventStore) CommitClassification(ctx context.Context, params ClassificationParams) error {
	tx, err := s.conn.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrClassificationCommitFailed, err)
	}

	defer func() {
		_ = tx.Rollback() // No-op after a successful commit.
	}()

	promptID, err := ensurePrompt(ctx, tx, params.PromptContent, params.PromptHash)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrClassificationCommitFailed, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO domains (domain, last_updated)
		VALUES ($1, NOW())
		ON CONFLICT (domain) DO UPDATE SET last_updated = NOW()
	`, params.Domain)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrClassificationCommitFailed, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO domain_classifications (
			domain, classification_type, confidence, valid_on, valid_until,
			model, prompt_id, created_at
		)
		VALUES ($1, $2, $3, NOW(), NOW() + make_interval(days => $4), $5, $6, NOW())
	`, params.Domain, params.ClassificationType, params.Confidence,
		params.TTLDays, params.Model, promptID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrClassificationCommitFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrClassificationCommitFailed, err)
	}

	return nil
}

// ensurePrompt inserts the prompt if its hash is unseen and returns the row id
// either way. The insert is idempotent on the unique hash column.
func ensurePrompt(ctx context.Context, tx *sql.Tx, content, hash string) (int64, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO prompts (content, hash, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (hash) DO NOTHING
	`, content, hash)
	if err != nil {
		return 0, err
	}

	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM prompts WHERE hash = $1`, hash).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

// DomainsValidAt returns the sorted, distinct domains that have a
// classification of the given type covering time t (valid_on inclusive,
// valid_until exclusive). This query backs the blocklist endpoint.
func (s *EventStore) DomainsValidAt(ctx context.Context, classificationType string, t time.Time) ([]string, error) {
	rows, err := s.conn.DB.QueryContext(ctx, `
		SELECT DISTINCT domain
		FROM domain_classifications
		WHERE classification_type = $1
		  AND valid_on <= $2
		  AND valid_until > $2
		ORDER BY domain ASC
	`, classificationType, t)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEventStoreFailed, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var domains []string

	for rows.Next() {
		var domain string
		if err := rows.Scan(&domain); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEventStoreFailed, err)
		}

		domains = append(domains, domain)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEventStoreFailed, err)
	}

	return domains, nil
}

// MetricsSnapshot aggregates the counts backing the blocklist server's
// Prometheus gauges.
func (s *EventStore) MetricsSnapshot(ctx context.Context) (*MetricsStats, error) {
	stats := &MetricsStats{
		CurrentClassificationsByType: make(map[string]int64),
		EventsByAction:               make(map[string]int64),
		ClassificationsCreatedByType: make(map[string]int64),
	}

	rows, err := s.conn.DB.QueryContext(ctx, `
		SELECT classification_type, COUNT(DISTINCT domain)
		FROM domain_classifications
		WHERE valid_on <= NOW() AND valid_until > NOW()
		GROUP BY classification_type
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEventStoreFailed, err)
	}

	if err := scanCountMap(rows, stats.CurrentClassificationsByType); err != nil {
		return nil, err
	}

	err = s.conn.DB.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT domain)
		FROM domain_classifications
		WHERE valid_on <= NOW() AND valid_until > NOW()
	`).Scan(&stats.CurrentClassificationsTotal)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEventStoreFailed, err)
	}

	err = s.conn.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM domains`).Scan(&stats.DomainsSeenTotal)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEventStoreFailed, err)
	}

	rows, err = s.conn.DB.QueryContext(ctx, `
		SELECT action::text, COUNT(*)
		FROM domain_classification_events
		GROUP BY action
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEventStoreFailed, err)
	}

	if err := scanCountMap(rows, stats.EventsByAction); err != nil {
		return nil, err
	}

	rows, err = s.conn.DB.QueryContext(ctx, `
		SELECT classification_type, COUNT(*)
		FROM domain_classifications
		GROUP BY classification_type
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEventStoreFailed, err)
	}

	if err := scanCountMap(rows, stats.ClassificationsCreatedByType); err != nil {
		return nil, err
	}

	err = s.conn.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM domain_classifications`).
		Scan(&stats.ClassificationsCreatedTotal)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEventStoreFailed, err)
	}

	return stats, nil
}

// scanCountMap drains rows of (text, count) pairs into dest and closes them.
func scanCountMap(rows *sql.Rows, dest map[string]int64) error {
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var (
			key   string
			count int64
		)

		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("%w: %w", ErrEventStoreFailed, err)
		}

		dest[key] = count
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrEventStoreFailed, err)
	}

	return nil
}
