package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecipientStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    RecipientStatus
		to      RecipientStatus
		allowed bool
	}{
		{"pending to queued", RecipientStatusPending, RecipientStatusQueued, true},
		{"queued to sent", RecipientStatusQueued, RecipientStatusSent, true},
		{"sent to delivered", RecipientStatusSent, RecipientStatusDelivered, true},
		{"delivered to read", RecipientStatusDelivered, RecipientStatusRead, true},
		{"sent to read skips delivered", RecipientStatusSent, RecipientStatusRead, true},

		{"pending to failed", RecipientStatusPending, RecipientStatusFailed, true},
		{"queued to failed", RecipientStatusQueued, RecipientStatusFailed, true},
		{"sent to failed via callback", RecipientStatusSent, RecipientStatusFailed, true},
		{"pending to skipped", RecipientStatusPending, RecipientStatusSkipped, true},
		{"queued to skipped", RecipientStatusQueued, RecipientStatusSkipped, true},

		{"no backward delivered to sent", RecipientStatusDelivered, RecipientStatusSent, false},
		{"no backward read to delivered", RecipientStatusRead, RecipientStatusDelivered, false},
		{"no backward sent to queued", RecipientStatusSent, RecipientStatusQueued, false},
		{"sent cannot be skipped", RecipientStatusSent, RecipientStatusSkipped, false},
		{"failed is terminal", RecipientStatusFailed, RecipientStatusSent, false},
		{"skipped is terminal", RecipientStatusSkipped, RecipientStatusQueued, false},
		{"failed cannot re-fail", RecipientStatusFailed, RecipientStatusFailed, false},
		{"same status is not a transition", RecipientStatusSent, RecipientStatusSent, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestRecipientStatusRank(t *testing.T) {
	assert.Equal(t, 0, RecipientStatusPending.Rank())
	assert.Equal(t, 1, RecipientStatusQueued.Rank())
	assert.Equal(t, 2, RecipientStatusSent.Rank())
	assert.Equal(t, 3, RecipientStatusDelivered.Rank())
	assert.Equal(t, 4, RecipientStatusRead.Rank())
	assert.Equal(t, -1, RecipientStatusFailed.Rank())
	assert.Equal(t, -1, RecipientStatusSkipped.Rank())
}

func TestRecipientStatusDoneSending(t *testing.T) {
	assert.False(t, RecipientStatusPending.DoneSending())
	assert.False(t, RecipientStatusQueued.DoneSending())
	assert.True(t, RecipientStatusSent.DoneSending())
	assert.True(t, RecipientStatusDelivered.DoneSending())
	assert.True(t, RecipientStatusRead.DoneSending())
	assert.True(t, RecipientStatusFailed.DoneSending())
	assert.True(t, RecipientStatusSkipped.DoneSending())
}

func TestHistogramTotals(t *testing.T) {
	hist := Histogram{
		Pending:   3,
		Queued:    2,
		Sent:      5,
		Delivered: 4,
		Read:      1,
		Failed:    2,
		Skipped:   1,
	}
	assert.Equal(t, uint(18), hist.Total())
	assert.Equal(t, uint(5), hist.Remaining())
}

func TestHistogramBucket(t *testing.T) {
	var hist Histogram
	for _, status := range []RecipientStatus{
		RecipientStatusPending, RecipientStatusQueued, RecipientStatusSent,
		RecipientStatusDelivered, RecipientStatusRead, RecipientStatusFailed,
		RecipientStatusSkipped,
	} {
		bucket := hist.Bucket(status)
		assert.NotNil(t, bucket, status.String())
		*bucket++
	}
	assert.Equal(t, uint(7), hist.Total())
	assert.Nil(t, hist.Bucket(RecipientStatus("bogus")))
}
