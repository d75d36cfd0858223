package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestActionValid(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		action Action
		valid  bool
	}{
		{ActionQueued, true},
		{ActionClassifying, true},
		{ActionClassified, true},
		{ActionError, true},
		{Action(""), false},
		{Action("QUEUED"), false},
		{Action("retried"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.action.Valid())
		})
	}
}

func TestClassificationCovers(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	validOn := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	validUntil := validOn.AddDate(0, 0, 10)
	c := &Classification{ValidOn: validOn, ValidUntil: validUntil}

	t.Run("valid_on is inclusive", func(t *testing.T) {
		assert.True(t, c.Covers(validOn))
	})

	t.Run("valid_until is exclusive", func(t *testing.T) {
		assert.False(t, c.Covers(validUntil))
	})

	t.Run("inside the interval", func(t *testing.T) {
		assert.True(t, c.Covers(validOn.AddDate(0, 0, 5)))
	})

	t.Run("before the interval", func(t *testing.T) {
		assert.False(t, c.Covers(validOn.Add(-time.Nanosecond)))
	})

	t.Run("just before expiry", func(t *testing.T) {
		assert.True(t, c.Covers(validUntil.Add(-time.Nanosecond)))
	})
}
