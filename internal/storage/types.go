// Package storage provides the PostgreSQL-backed event store and projection
// tables for the DNS smart block pipeline.
//
// The data model is event-sourced: domain_classification_events is an
// append-only log and the projection tables (domains, prompts,
// domain_classifications) are derived from it by the queue processor. A
// domain's lifecycle state is always the latest event; no component caches
// state in memory.
package storage

import (
	"encoding/json"
	"errors"
	"time"
)

// Action is the classification_action enum persisted with every event.
type Action string

// Lifecycle actions, in the order a domain normally moves through them.
const (
	ActionQueued      Action = "queued"
	ActionClassifying Action = "classifying"
	ActionClassified  Action = "classified"
	ActionError       Action = "error"
)

var (
	// ErrUnknownAction is returned when an action value outside the enum is
	// encountered.
	ErrUnknownAction = errors.New("unknown classification action")
)

// Valid reports whether the action is one of the four enum values.
func (a Action) Valid() bool {
	switch a {
	case ActionQueued, ActionClassifying, ActionClassified, ActionError:
		return true
	default:
		return false
	}
}

type (
	// Event is one row of the append-only domain_classification_events log.
	Event struct {
		ID         int64           `json:"id"`
		Domain     string          `json:"domain"`
		Action     Action          `json:"action"`
		ActionData json.RawMessage `json:"actionData"`
		CreatedAt  time.Time       `json:"createdAt"`
	}

	// Classification is a time-bounded verdict that a domain belongs to a
	// classification type. The half-open interval [ValidOn, ValidUntil)
	// defines when the verdict applies.
	Classification struct {
		ID                 int64     `json:"id"`
		Domain             string    `json:"domain"`
		ClassificationType string    `json:"classificationType"`
		Confidence         float64   `json:"confidence"`
		ValidOn            time.Time `json:"validOn"`
		ValidUntil         time.Time `json:"validUntil"`
		Model              string    `json:"model"`
		PromptID           int64     `json:"promptId"`
		CreatedAt          time.Time `json:"createdAt"`
	}

	// ClassificationParams carries everything needed to commit a successful
	// classification into the projection tables in one transaction.
	ClassificationParams struct {
		Domain             string
		ClassificationType string
		Confidence         float64
		Model              string
		PromptContent      string
		PromptHash         string
		TTLDays            int
	}

	// MetricsStats is an aggregate snapshot of the store, backing the
	// blocklist server's Prometheus gauges.
	MetricsStats struct {
		// CurrentClassificationsByType counts currently valid classified
		// domains per type.
		CurrentClassificationsByType map[string]int64

		// CurrentClassificationsTotal counts currently valid classified
		// domains across all types.
		CurrentClassificationsTotal int64

		// DomainsSeenTotal counts unique domains ever classified.
		DomainsSeenTotal int64

		// EventsByAction counts classification events per action.
		EventsByAction map[string]int64

		// ClassificationsCreatedByType counts classifications ever created
		// per type (cumulative).
		ClassificationsCreatedByType map[string]int64

		// ClassificationsCreatedTotal counts classifications ever created
		// across all types.
		ClassificationsCreatedTotal int64
	}
)

// Covers reports whether the classification is valid at time t, using
// half-open interval semantics: ValidOn is inclusive, ValidUntil exclusive.
func (c *Classification) Covers(t time.Time) bool {
	return !c.ValidOn.After(t) && c.ValidUntil.After(t)
}
