package scheduler

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/blastline/blastline-backend/app/dto"
	"github.com/blastline/blastline-backend/app/services"
	businessflow "github.com/blastline/blastline-backend/business_flow"
	"github.com/blastline/blastline-backend/config"
	"github.com/blastline/blastline-backend/models"
	"github.com/blastline/blastline-backend/repository"
	apptesting "github.com/blastline/blastline-backend/testing"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatchEnv struct {
	*apptesting.Env

	flow       businessflow.CampaignLifecycleFlow
	sender     *services.MockMessageSender
	dispatcher *CampaignDispatcher
	wallet     *models.Wallet
	channel    *models.Channel
	template   *models.Template
}

func newDispatchEnv(t *testing.T, cfg config.DispatcherConfig) *dispatchEnv {
	t.Helper()
	env := apptesting.NewEnv()

	ledger := businessflow.NewCreditLedger(env.Wallets, env.Reservations, env.Tx)
	flow := businessflow.NewCampaignLifecycleFlow(
		env.Campaigns, env.Recipients, env.Channels, env.Templates,
		env.Reservations, env.Audits, ledger, nil, env.Tx,
	)
	sender := services.NewMockMessageSender()

	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxSendAttempts == 0 {
		cfg.MaxSendAttempts = 3
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = time.Second
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Millisecond
	}

	dispatcher := NewCampaignDispatcher(
		env.Campaigns, env.Recipients, env.Channels, env.Templates,
		env.Reservations, flow, ledger, sender, NewMemoryRateLimiter(),
		log.New(io.Discard, "", 0), cfg,
	)

	return &dispatchEnv{
		Env:        env,
		flow:       flow,
		sender:     sender,
		dispatcher: dispatcher,
		wallet:     env.SeedWallet(1, 100),
		channel:    env.SeedChannel(1),
		template:   env.SeedTemplate(),
	}
}

func (e *dispatchEnv) createCampaign(t *testing.T, contacts ...string) *models.Campaign {
	t.Helper()
	ctx := context.Background()

	inputs := make([]dto.ContactInput, 0, len(contacts))
	for _, phone := range contacts {
		inputs = append(inputs, dto.ContactInput{Phone: phone, Variables: []string{"Ada", "1042"}})
	}
	resp, err := e.flow.CreateCampaign(ctx, &dto.CreateCampaignRequest{
		CustomerID: 1,
		ChannelID:  e.channel.UUID.String(),
		TemplateID: e.template.UUID.String(),
		Name:       "dispatch test",
		Contacts:   inputs,
	}, nil)
	require.NoError(t, err)

	id, err := uuid.Parse(resp.UUID)
	require.NoError(t, err)
	campaign, err := e.Campaigns.ByUUID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, campaign)
	return campaign
}

func (e *dispatchEnv) recipients(t *testing.T, campaignID uint) []*models.Recipient {
	t.Helper()
	out, err := e.Recipients.ByFilter(context.Background(), models.RecipientFilter{CampaignID: &campaignID}, "id ASC", 0, 0)
	require.NoError(t, err)
	return out
}

func TestDispatchSendsAllRecipients(t *testing.T) {
	env := newDispatchEnv(t, config.DispatcherConfig{})
	ctx := context.Background()
	campaign := env.createCampaign(t, "+15551230001", "+15551230002", "+15551230003")

	env.dispatcher.runOnce(ctx)

	assert.Equal(t, 3, env.sender.SentCount())

	for _, r := range env.recipients(t, campaign.ID) {
		assert.Equal(t, models.RecipientStatusSent, r.Status)
		require.NotNil(t, r.PlatformMessageID)
		assert.Equal(t, 1, r.AttemptCount)
		assert.NotNil(t, r.SentAt)
	}

	campaign, err := env.Campaigns.ByID(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusCompleted, campaign.Status)
	assert.Equal(t, uint(3), campaign.SentCount)
	assert.Equal(t, 100, campaign.ProgressPercent())

	reservation, err := env.Reservations.ByCampaignID(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusSettled, reservation.Status)
	assert.Equal(t, uint(3), reservation.Consumed)
	assert.Equal(t, uint(0), reservation.Released)

	wallet, err := env.Wallets.ByID(ctx, env.wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(97), wallet.FreeCredits)
	assert.Equal(t, uint(0), wallet.ReservedCredits)
	assert.Equal(t, uint(3), wallet.UsedCredits)
}

func TestDispatchRetriesTransientFailure(t *testing.T) {
	env := newDispatchEnv(t, config.DispatcherConfig{})
	ctx := context.Background()
	campaign := env.createCampaign(t, "+15551230001")
	env.sender.FailFirst = 2

	env.dispatcher.runOnce(ctx)

	recipients := env.recipients(t, campaign.ID)
	require.Len(t, recipients, 1)
	assert.Equal(t, models.RecipientStatusSent, recipients[0].Status)
	assert.Equal(t, 3, recipients[0].AttemptCount)
	assert.Equal(t, 1, env.sender.SentCount())
}

func TestDispatchExhaustsRetries(t *testing.T) {
	env := newDispatchEnv(t, config.DispatcherConfig{MaxSendAttempts: 2})
	ctx := context.Background()
	campaign := env.createCampaign(t, "+15551230001")
	env.sender.FailWith = &services.SendError{Reason: "platform_unavailable", Permanent: false}

	env.dispatcher.runOnce(ctx)

	recipients := env.recipients(t, campaign.ID)
	require.Len(t, recipients, 1)
	assert.Equal(t, models.RecipientStatusFailed, recipients[0].Status)
	assert.Equal(t, 2, recipients[0].AttemptCount)
	require.NotNil(t, recipients[0].FailureReason)
	assert.Equal(t, models.ReasonSendRetriesExhausted, *recipients[0].FailureReason)

	// The reserved credit flows back to the wallet
	wallet, err := env.Wallets.ByID(ctx, env.wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(100), wallet.FreeCredits)
	assert.Equal(t, uint(0), wallet.UsedCredits)

	campaign, err = env.Campaigns.ByID(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(1), campaign.FailedCount)
	assert.Equal(t, models.CampaignStatusCompleted, campaign.Status)
}

func TestDispatchPermanentFailureDoesNotRetry(t *testing.T) {
	env := newDispatchEnv(t, config.DispatcherConfig{})
	ctx := context.Background()
	campaign := env.createCampaign(t, "+15551230001")
	env.sender.FailWith = &services.SendError{Reason: models.ReasonPlatformRejected, Permanent: true}

	env.dispatcher.runOnce(ctx)

	recipients := env.recipients(t, campaign.ID)
	require.Len(t, recipients, 1)
	assert.Equal(t, models.RecipientStatusFailed, recipients[0].Status)
	assert.Equal(t, 1, recipients[0].AttemptCount)
	require.NotNil(t, recipients[0].FailureReason)
	assert.Equal(t, models.ReasonPlatformRejected, *recipients[0].FailureReason)

	wallet, err := env.Wallets.ByID(ctx, env.wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(100), wallet.FreeCredits)
}

func TestDispatchSkipsOptedOutRecipient(t *testing.T) {
	env := newDispatchEnv(t, config.DispatcherConfig{})
	ctx := context.Background()
	campaign := env.createCampaign(t, "+15551230001")
	env.sender.FailWith = &services.SendError{Reason: models.ReasonContactOptedOut, Permanent: true, Skip: true}

	env.dispatcher.runOnce(ctx)

	recipients := env.recipients(t, campaign.ID)
	require.Len(t, recipients, 1)
	assert.Equal(t, models.RecipientStatusSkipped, recipients[0].Status)
	assert.Equal(t, 1, recipients[0].AttemptCount)
	require.NotNil(t, recipients[0].FailureReason)
	assert.Equal(t, models.ReasonContactOptedOut, *recipients[0].FailureReason)
	assert.NotNil(t, recipients[0].TerminalAt)

	campaign, err := env.Campaigns.ByID(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusCompleted, campaign.Status)
	assert.Equal(t, uint(0), campaign.FailedCount)

	wallet, err := env.Wallets.ByID(ctx, env.wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(100), wallet.FreeCredits)
	assert.Equal(t, uint(0), wallet.ReservedCredits)
}

func TestDispatchSkipsPausedCampaign(t *testing.T) {
	env := newDispatchEnv(t, config.DispatcherConfig{})
	ctx := context.Background()
	campaign := env.createCampaign(t, "+15551230001", "+15551230002")

	require.NoError(t, env.flow.Pause(ctx, 1, campaign.UUID, nil))

	env.dispatcher.runOnce(ctx)

	assert.Equal(t, 0, env.sender.SentCount())
	for _, r := range env.recipients(t, campaign.ID) {
		assert.Equal(t, models.RecipientStatusPending, r.Status)
	}
}

func TestDispatchFailsCampaignOnRevokedChannel(t *testing.T) {
	env := newDispatchEnv(t, config.DispatcherConfig{})
	ctx := context.Background()
	campaign := env.createCampaign(t, "+15551230001", "+15551230002")

	env.channel.Status = models.ChannelStatusRevoked
	require.NoError(t, env.Channels.Save(ctx, env.channel))

	env.dispatcher.runOnce(ctx)

	assert.Equal(t, 0, env.sender.SentCount())

	campaign, err := env.Campaigns.ByID(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusFailed, campaign.Status)

	for _, r := range env.recipients(t, campaign.ID) {
		assert.Equal(t, models.RecipientStatusSkipped, r.Status)
		require.NotNil(t, r.FailureReason)
		assert.Equal(t, models.ReasonChannelRevoked, *r.FailureReason)
	}

	wallet, err := env.Wallets.ByID(ctx, env.wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(100), wallet.FreeCredits)
}

func TestDispatchHonorsChannelRate(t *testing.T) {
	env := newDispatchEnv(t, config.DispatcherConfig{})
	ctx := context.Background()

	env.channel.MessagesPerSecond = 2
	require.NoError(t, env.Channels.Save(ctx, env.channel))

	campaign := env.createCampaign(t, "+15551230001", "+15551230002", "+15551230003", "+15551230004")

	env.dispatcher.runOnce(ctx)

	// The bucket holds two tokens for this second; the rest wait for later ticks
	assert.Equal(t, 2, env.sender.SentCount())
	hist, err := env.Recipients.Histogram(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(2), hist.Sent)
	assert.Equal(t, uint(2), hist.Pending)

	campaign, err = env.Campaigns.ByID(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusRunning, campaign.Status)
}

func TestDispatchResumesStaleQueued(t *testing.T) {
	env := newDispatchEnv(t, config.DispatcherConfig{})
	ctx := context.Background()
	campaign := env.createCampaign(t, "+15551230001")

	// Simulate a crash after the queued write but before the platform call
	recipients := env.recipients(t, campaign.ID)
	require.Len(t, recipients, 1)
	queuedAt := time.Now().UTC().Add(-10 * time.Minute)
	attempts := 1
	ok, err := env.Recipients.Transition(ctx, recipients[0].ID, models.RecipientStatusPending, models.RecipientStatusQueued, repository.RecipientUpdate{
		QueuedAt:     &queuedAt,
		AttemptCount: &attempts,
	})
	require.NoError(t, err)
	require.True(t, ok)

	env.dispatcher.runOnce(ctx)

	got := env.recipients(t, campaign.ID)
	require.Len(t, got, 1)
	assert.Equal(t, models.RecipientStatusSent, got[0].Status)
	// The interrupted attempt still counts against the ceiling
	assert.Equal(t, 2, got[0].AttemptCount)
	assert.Equal(t, 1, env.sender.SentCount())
}

func TestDispatchPauseStopsStaleResume(t *testing.T) {
	env := newDispatchEnv(t, config.DispatcherConfig{})
	ctx := context.Background()
	campaign := env.createCampaign(t, "+15551230001", "+15551230002")

	queuedAt := time.Now().UTC().Add(-10 * time.Minute)
	for _, r := range env.recipients(t, campaign.ID) {
		ok, err := env.Recipients.Transition(ctx, r.ID, models.RecipientStatusPending, models.RecipientStatusQueued, repository.RecipientUpdate{
			QueuedAt: &queuedAt,
		})
		require.NoError(t, err)
		require.True(t, ok)
	}

	// The tick loaded the campaign as running, then a pause landed before the
	// stale rows were resumed.
	snapshot, err := env.Campaigns.ByID(ctx, campaign.ID)
	require.NoError(t, err)
	require.NoError(t, env.flow.Pause(ctx, 1, campaign.UUID, nil))

	require.NoError(t, env.dispatcher.dispatchCampaign(ctx, snapshot))

	assert.Equal(t, 0, env.sender.SentCount())
	for _, r := range env.recipients(t, campaign.ID) {
		assert.Equal(t, models.RecipientStatusQueued, r.Status)
	}
}

func TestDispatchCancelRacingSendIsBenign(t *testing.T) {
	env := newDispatchEnv(t, config.DispatcherConfig{})
	ctx := context.Background()
	campaign := env.createCampaign(t, "+15551230001")

	recipients := env.recipients(t, campaign.ID)
	require.Len(t, recipients, 1)
	queuedAt := time.Now().UTC().Add(-10 * time.Minute)
	ok, err := env.Recipients.Transition(ctx, recipients[0].ID, models.RecipientStatusPending, models.RecipientStatusQueued, repository.RecipientUpdate{
		QueuedAt: &queuedAt,
	})
	require.NoError(t, err)
	require.True(t, ok)

	// Cancel lands while the send is in flight: the queued row is skipped and
	// the reservation settled before the queued->sent write comes back.
	require.NoError(t, env.flow.Cancel(ctx, 1, campaign.UUID, nil))

	channel, err := env.Channels.ByID(ctx, campaign.ChannelID)
	require.NoError(t, err)
	template, err := env.Templates.ByID(ctx, campaign.TemplateID)
	require.NoError(t, err)
	reservation, err := env.Reservations.ByCampaignID(ctx, campaign.ID)
	require.NoError(t, err)

	require.NoError(t, env.dispatcher.sendQueued(ctx, campaign, channel, template, reservation, recipients[0], 0))

	got := env.recipients(t, campaign.ID)
	require.Len(t, got, 1)
	assert.Equal(t, models.RecipientStatusSkipped, got[0].Status)

	// Conservation holds: the settled reservation was not consumed again
	reservation, err = env.Reservations.ByCampaignID(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusSettled, reservation.Status)
	assert.Equal(t, reservation.Amount, reservation.Consumed+reservation.Released)

	wallet, err := env.Wallets.ByID(ctx, env.wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(100), wallet.FreeCredits)
}

func TestMemoryRateLimiter(t *testing.T) {
	limiter := NewMemoryRateLimiter()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(ctx, 1, 2)
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := limiter.Allow(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, allowed)

	// Buckets are per channel
	allowed, err = limiter.Allow(ctx, 2, 2)
	require.NoError(t, err)
	assert.True(t, allowed)

	// Zero limit means unlimited
	allowed, err = limiter.Allow(ctx, 3, 0)
	require.NoError(t, err)
	assert.True(t, allowed)
}
