package businessflow

import (
	"context"
	"testing"
	"time"

	"github.com/blastline/blastline-backend/app/dto"
	"github.com/blastline/blastline-backend/models"
	"github.com/blastline/blastline-backend/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type deliveryEnv struct {
	*lifecycleEnv

	status DeliveryStatusFlow
}

func newDeliveryEnv(t *testing.T) *deliveryEnv {
	t.Helper()
	base := newLifecycleEnv(t, 10)
	return &deliveryEnv{
		lifecycleEnv: base,
		status: NewDeliveryStatusFlow(
			base.Recipients, base.Campaigns, base.Events, base.Clicks,
			base.flow, base.Tx,
		),
	}
}

// sentRecipient creates a single-recipient campaign and walks the recipient to
// sent with the given platform message id, the way the dispatcher would.
func (e *deliveryEnv) sentRecipient(t *testing.T, messageID string, sentAt time.Time) *models.Recipient {
	t.Helper()
	ctx := context.Background()

	_, campaignUUID := e.create(t, "+1555124"+messageID[len(messageID)-4:])
	campaign, err := e.Campaigns.ByUUID(ctx, campaignUUID)
	require.NoError(t, err)

	recipients, err := e.Recipients.ByFilter(ctx, models.RecipientFilter{CampaignID: &campaign.ID}, "id ASC", 0, 0)
	require.NoError(t, err)
	require.Len(t, recipients, 1)
	recipient := recipients[0]

	e.advance(t, recipient, models.RecipientStatusQueued, repository.RecipientUpdate{QueuedAt: &sentAt})
	attempts := 1
	e.advance(t, recipient, models.RecipientStatusSent, repository.RecipientUpdate{
		PlatformMessageID: &messageID,
		AttemptCount:      &attempts,
		SentAt:            &sentAt,
		LastEventAt:       &sentAt,
	})

	fresh, err := e.Recipients.ByID(ctx, recipient.ID)
	require.NoError(t, err)
	return fresh
}

func deliveryEvent(messageID, status string, at time.Time) *dto.DeliveryCallbackRequest {
	return &dto.DeliveryCallbackRequest{MessageID: messageID, Status: status, Timestamp: at}
}

func TestApplyDeliveryEventForwardChain(t *testing.T) {
	env := newDeliveryEnv(t)
	ctx := context.Background()
	t0 := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	recipient := env.sentRecipient(t, "wamid.0001", t0)

	resp, err := env.status.ApplyDeliveryEvent(ctx, deliveryEvent("wamid.0001", "delivered", t0.Add(time.Minute)), nil)
	require.NoError(t, err)
	assert.True(t, resp.Applied)

	resp, err = env.status.ApplyDeliveryEvent(ctx, deliveryEvent("wamid.0001", "read", t0.Add(2*time.Minute)), nil)
	require.NoError(t, err)
	assert.True(t, resp.Applied)

	got, err := env.Recipients.ByID(ctx, recipient.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecipientStatusRead, got.Status)
	require.NotNil(t, got.DeliveredAt)
	require.NotNil(t, got.ReadAt)
	assert.True(t, got.ReadAt.After(*got.DeliveredAt))

	campaign, err := env.Campaigns.ByID(ctx, recipient.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, uint(1), campaign.DeliveredCount)
	assert.Equal(t, uint(1), campaign.ReadCount)

	// One audit row per applied event
	events, err := env.Events.ListByRecipient(ctx, recipient.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestApplyDeliveryEventReadBeforeDelivered(t *testing.T) {
	env := newDeliveryEnv(t)
	ctx := context.Background()
	t0 := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	recipient := env.sentRecipient(t, "wamid.0002", t0)

	// The read callback overtook the delivered one in transit
	readAt := t0.Add(2 * time.Minute)
	resp, err := env.status.ApplyDeliveryEvent(ctx, deliveryEvent("wamid.0002", "read", readAt), nil)
	require.NoError(t, err)
	assert.True(t, resp.Applied)

	got, err := env.Recipients.ByID(ctx, recipient.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecipientStatusRead, got.Status)
	require.NotNil(t, got.DeliveredAt)
	assert.True(t, got.DeliveredAt.Equal(readAt))

	// The late delivered event would move the recipient backwards; dropped
	resp, err = env.status.ApplyDeliveryEvent(ctx, deliveryEvent("wamid.0002", "delivered", t0.Add(time.Minute)), nil)
	require.NoError(t, err)
	assert.False(t, resp.Applied)

	campaign, err := env.Campaigns.ByID(ctx, recipient.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, uint(1), campaign.DeliveredCount)
	assert.Equal(t, uint(1), campaign.ReadCount)
}

func TestApplyDeliveryEventDuplicate(t *testing.T) {
	env := newDeliveryEnv(t)
	ctx := context.Background()
	t0 := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	recipient := env.sentRecipient(t, "wamid.0003", t0)

	first, err := env.status.ApplyDeliveryEvent(ctx, deliveryEvent("wamid.0003", "delivered", t0.Add(time.Minute)), nil)
	require.NoError(t, err)
	assert.True(t, first.Applied)

	second, err := env.status.ApplyDeliveryEvent(ctx, deliveryEvent("wamid.0003", "delivered", t0.Add(time.Minute)), nil)
	require.NoError(t, err)
	assert.False(t, second.Applied)

	campaign, err := env.Campaigns.ByID(ctx, recipient.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, uint(1), campaign.DeliveredCount)
	events, err := env.Events.ListByRecipient(ctx, recipient.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestApplyDeliveryEventStaleTimestamp(t *testing.T) {
	env := newDeliveryEnv(t)
	ctx := context.Background()
	t0 := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	recipient := env.sentRecipient(t, "wamid.0004", t0)

	// Timestamp at or before the watermark is stale even if the status moves forward
	resp, err := env.status.ApplyDeliveryEvent(ctx, deliveryEvent("wamid.0004", "delivered", t0), nil)
	require.NoError(t, err)
	assert.False(t, resp.Applied)

	got, err := env.Recipients.ByID(ctx, recipient.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecipientStatusSent, got.Status)
}

func TestApplyDeliveryEventFailedAfterSent(t *testing.T) {
	env := newDeliveryEnv(t)
	ctx := context.Background()
	t0 := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	recipient := env.sentRecipient(t, "wamid.0005", t0)

	// A failure report wins even with a timestamp behind the watermark
	resp, err := env.status.ApplyDeliveryEvent(ctx, deliveryEvent("wamid.0005", "failed", t0.Add(-time.Minute)), nil)
	require.NoError(t, err)
	assert.True(t, resp.Applied)

	got, err := env.Recipients.ByID(ctx, recipient.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecipientStatusFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, models.ReasonDeliveryFailed, *got.FailureReason)
	assert.NotNil(t, got.TerminalAt)

	campaign, err := env.Campaigns.ByID(ctx, recipient.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, uint(1), campaign.SentCount)
	assert.Equal(t, uint(1), campaign.FailedCount)
}

func TestApplyDeliveryEventRejections(t *testing.T) {
	env := newDeliveryEnv(t)
	ctx := context.Background()
	t0 := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	env.sentRecipient(t, "wamid.0006", t0)

	tests := []struct {
		name  string
		req   *dto.DeliveryCallbackRequest
		check func(error) bool
	}{
		{"unknown message id", deliveryEvent("wamid.unknown", "delivered", t0.Add(time.Minute)), IsRecipientNotFound},
		{"unknown status", deliveryEvent("wamid.0006", "bounced", t0.Add(time.Minute)), IsUnknownDeliveryStatus},
		{"internal status", deliveryEvent("wamid.0006", "queued", t0.Add(time.Minute)), IsUnknownDeliveryStatus},
		{"zero timestamp", deliveryEvent("wamid.0006", "delivered", time.Time{}), IsInvalidEventTimestamp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.status.ApplyDeliveryEvent(ctx, tt.req, nil)
			require.Error(t, err)
			assert.True(t, tt.check(err))
		})
	}
}

func TestApplyButtonClick(t *testing.T) {
	env := newDeliveryEnv(t)
	ctx := context.Background()
	t0 := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	recipient := env.sentRecipient(t, "wamid.0007", t0)

	text := "Track order"
	err := env.status.ApplyButtonClick(ctx, &dto.ButtonClickCallbackRequest{
		MessageID:  "wamid.0007",
		ButtonID:   "track_order",
		ButtonText: &text,
		Timestamp:  t0.Add(3 * time.Minute),
	}, nil)
	require.NoError(t, err)

	clicks, err := env.Clicks.ListByCampaign(ctx, recipient.CampaignID, 0, 0)
	require.NoError(t, err)
	require.Len(t, clicks, 1)
	assert.Equal(t, "track_order", clicks[0].ButtonID)
	assert.Equal(t, recipient.ID, clicks[0].RecipientID)

	// Clicks never change delivery status
	got, err := env.Recipients.ByID(ctx, recipient.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecipientStatusSent, got.Status)

	err = env.status.ApplyButtonClick(ctx, &dto.ButtonClickCallbackRequest{
		MessageID: "wamid.unknown",
		ButtonID:  "track_order",
		Timestamp: t0,
	}, nil)
	require.Error(t, err)
	assert.True(t, IsRecipientNotFound(err))
}
