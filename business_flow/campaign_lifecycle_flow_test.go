package businessflow

import (
	"context"
	"testing"

	"github.com/blastline/blastline-backend/app/dto"
	"github.com/blastline/blastline-backend/models"
	"github.com/blastline/blastline-backend/repository"
	apptesting "github.com/blastline/blastline-backend/testing"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lifecycleEnv struct {
	*apptesting.Env

	ledger   CreditLedger
	flow     CampaignLifecycleFlow
	wallet   *models.Wallet
	channel  *models.Channel
	template *models.Template
}

func newLifecycleEnv(t *testing.T, credits uint) *lifecycleEnv {
	t.Helper()
	env := apptesting.NewEnv()
	ledger := NewCreditLedger(env.Wallets, env.Reservations, env.Tx)
	flow := NewCampaignLifecycleFlow(
		env.Campaigns, env.Recipients, env.Channels, env.Templates,
		env.Reservations, env.Audits, ledger, nil, env.Tx,
	)
	return &lifecycleEnv{
		Env:      env,
		ledger:   ledger,
		flow:     flow,
		wallet:   env.SeedWallet(1, credits),
		channel:  env.SeedChannel(1),
		template: env.SeedTemplate(),
	}
}

func (e *lifecycleEnv) createRequest(contacts ...string) *dto.CreateCampaignRequest {
	inputs := make([]dto.ContactInput, 0, len(contacts))
	for _, phone := range contacts {
		inputs = append(inputs, dto.ContactInput{Phone: phone, Variables: []string{"Ada", "1042"}})
	}
	return &dto.CreateCampaignRequest{
		CustomerID: 1,
		ChannelID:  e.channel.UUID.String(),
		TemplateID: e.template.UUID.String(),
		Name:       "August promo",
		Contacts:   inputs,
	}
}

func (e *lifecycleEnv) create(t *testing.T, contacts ...string) (*dto.CreateCampaignResponse, uuid.UUID) {
	t.Helper()
	resp, err := e.flow.CreateCampaign(context.Background(), e.createRequest(contacts...), nil)
	require.NoError(t, err)
	id, err := uuid.Parse(resp.UUID)
	require.NoError(t, err)
	return resp, id
}

func TestCreateCampaignAutoStart(t *testing.T) {
	env := newLifecycleEnv(t, 10)
	ctx := context.Background()

	resp, campaignUUID := env.create(t, "+15551230001", "+15551230002", "+15551230003")

	assert.Equal(t, "running", resp.Status)
	assert.Equal(t, uint(3), resp.TotalRecipients)
	assert.Equal(t, uint(3), resp.CreditsReserved)

	// The reserved amount is written with the campaign row, not just echoed
	// back in the create response.
	campaign, err := env.Campaigns.ByUUID(ctx, campaignUUID)
	require.NoError(t, err)
	require.NotNil(t, campaign)
	assert.Equal(t, models.CampaignStatusRunning, campaign.Status)
	assert.Equal(t, uint(3), campaign.CreditsReserved)
	assert.NotNil(t, campaign.StartedAt)

	status, err := env.flow.GetStatus(ctx, 1, campaignUUID)
	require.NoError(t, err)
	assert.Equal(t, uint(3), status.CreditsReserved)

	hist, err := env.Recipients.Histogram(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(3), hist.Pending)
	assert.Equal(t, uint(3), hist.Total())

	wallet, err := env.Wallets.ByID(ctx, env.wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(7), wallet.FreeCredits)
	assert.Equal(t, uint(3), wallet.ReservedCredits)

	reservation, err := env.Reservations.ByCampaignID(ctx, campaign.ID)
	require.NoError(t, err)
	require.NotNil(t, reservation)
	assert.Equal(t, uint(3), reservation.Amount)
}

func TestCreateCampaignWithoutAutoStart(t *testing.T) {
	env := newLifecycleEnv(t, 10)

	req := env.createRequest("+15551230001")
	autoStart := false
	req.AutoStart = &autoStart

	resp, err := env.flow.CreateCampaign(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, "scheduled", resp.Status)
}

func TestCreateCampaignDedupesContacts(t *testing.T) {
	env := newLifecycleEnv(t, 10)
	ctx := context.Background()

	// Same number three ways: formatted, spaced, and 00-prefixed
	resp, campaignUUID := env.create(t,
		"+1 (555) 123-0001",
		"+15551230001",
		"0015551230001",
		"+15551230002",
	)

	assert.Equal(t, uint(2), resp.TotalRecipients)
	assert.Equal(t, uint(2), resp.CreditsReserved)

	campaign, err := env.Campaigns.ByUUID(ctx, campaignUUID)
	require.NoError(t, err)
	recipients, err := env.Recipients.ByFilter(ctx, models.RecipientFilter{CampaignID: &campaign.ID}, "id ASC", 0, 0)
	require.NoError(t, err)
	require.Len(t, recipients, 2)
	assert.Equal(t, "+15551230001", recipients[0].Phone)
	assert.Equal(t, "+15551230002", recipients[1].Phone)
}

func TestCreateCampaignInsufficientCredits(t *testing.T) {
	env := newLifecycleEnv(t, 2)
	ctx := context.Background()

	_, err := env.flow.CreateCampaign(ctx, env.createRequest("+15551230001", "+15551230002", "+15551230003"), nil)
	require.Error(t, err)
	assert.True(t, IsInsufficientCredits(err))

	// Nothing was admitted: no recipients, no reservation, wallet untouched
	recipients, err := env.Recipients.ByFilter(ctx, models.RecipientFilter{}, "id ASC", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, recipients)

	wallet, err := env.Wallets.ByID(ctx, env.wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(2), wallet.FreeCredits)
	assert.Equal(t, uint(0), wallet.ReservedCredits)
}

func TestCreateCampaignChannelOwnership(t *testing.T) {
	env := newLifecycleEnv(t, 10)
	other := env.SeedChannel(2)

	req := env.createRequest("+15551230001")
	req.ChannelID = other.UUID.String()

	_, err := env.flow.CreateCampaign(context.Background(), req, nil)
	require.Error(t, err)
	assert.True(t, IsChannelAccessDenied(err))
}

func TestCreateCampaignTemplateNotSendable(t *testing.T) {
	env := newLifecycleEnv(t, 10)
	env.template.Status = models.TemplateStatusPending
	require.NoError(t, env.Templates.Save(context.Background(), env.template))

	_, err := env.flow.CreateCampaign(context.Background(), env.createRequest("+15551230001"), nil)
	require.Error(t, err)
	assert.True(t, IsTemplateNotSendable(err))
}

func TestPauseAndResume(t *testing.T) {
	env := newLifecycleEnv(t, 10)
	ctx := context.Background()
	_, campaignUUID := env.create(t, "+15551230001", "+15551230002")

	require.NoError(t, env.flow.Pause(ctx, 1, campaignUUID, nil))

	campaign, err := env.Campaigns.ByUUID(ctx, campaignUUID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusPaused, campaign.Status)

	// Pausing a paused campaign is rejected
	err = env.flow.Pause(ctx, 1, campaignUUID, nil)
	require.Error(t, err)
	assert.True(t, IsInvalidCampaignTransition(err))

	require.NoError(t, env.flow.Resume(ctx, 1, campaignUUID, nil))

	campaign, err = env.Campaigns.ByUUID(ctx, campaignUUID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusRunning, campaign.Status)
}

func TestPauseDeniedForOtherCustomer(t *testing.T) {
	env := newLifecycleEnv(t, 10)
	_, campaignUUID := env.create(t, "+15551230001")

	err := env.flow.Pause(context.Background(), 2, campaignUUID, nil)
	require.Error(t, err)
	assert.True(t, IsCampaignAccessDenied(err))
}

func TestCancelSkipsRecipientsAndReleasesCredits(t *testing.T) {
	env := newLifecycleEnv(t, 10)
	ctx := context.Background()
	_, campaignUUID := env.create(t, "+15551230001", "+15551230002", "+15551230003")

	require.NoError(t, env.flow.Cancel(ctx, 1, campaignUUID, nil))

	campaign, err := env.Campaigns.ByUUID(ctx, campaignUUID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusCancelled, campaign.Status)
	assert.NotNil(t, campaign.CompletedAt)

	hist, err := env.Recipients.Histogram(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(3), hist.Skipped)
	assert.Equal(t, uint(0), hist.Remaining())

	recipients, err := env.Recipients.ByFilter(ctx, models.RecipientFilter{CampaignID: &campaign.ID}, "id ASC", 0, 0)
	require.NoError(t, err)
	for _, r := range recipients {
		require.NotNil(t, r.FailureReason)
		assert.Equal(t, models.ReasonCampaignCancelled, *r.FailureReason)
		assert.NotNil(t, r.TerminalAt)
	}

	wallet, err := env.Wallets.ByID(ctx, env.wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(10), wallet.FreeCredits)
	assert.Equal(t, uint(0), wallet.ReservedCredits)

	reservation, err := env.Reservations.ByCampaignID(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusSettled, reservation.Status)
	assert.Equal(t, uint(3), reservation.Released)

	// Cancelling a terminal campaign is rejected
	err = env.flow.Cancel(ctx, 1, campaignUUID, nil)
	require.Error(t, err)
	assert.True(t, IsInvalidCampaignTransition(err))
}

func TestGetStatusHistogram(t *testing.T) {
	env := newLifecycleEnv(t, 10)
	ctx := context.Background()
	_, campaignUUID := env.create(t, "+15551230001", "+15551230002")

	status, err := env.flow.GetStatus(ctx, 1, campaignUUID)
	require.NoError(t, err)
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, uint(2), status.TotalRecipients)
	assert.Equal(t, uint(2), status.Histogram.Pending)
	assert.Equal(t, 0, status.ProgressPercent)

	_, err = env.flow.GetStatus(ctx, 2, campaignUUID)
	require.Error(t, err)
	assert.True(t, IsCampaignAccessDenied(err))
}

func TestListCampaignsPagination(t *testing.T) {
	env := newLifecycleEnv(t, 100)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		env.create(t, "+1555123000"+string(rune('1'+i)))
	}

	resp, err := env.flow.ListCampaigns(ctx, &dto.ListCampaignsRequest{CustomerID: 1, Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, resp.Campaigns, 2)
	assert.Equal(t, int64(3), resp.TotalCount)
	assert.Equal(t, 2, resp.TotalPages)

	resp, err = env.flow.ListCampaigns(ctx, &dto.ListCampaignsRequest{CustomerID: 1, Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, resp.Campaigns, 1)

	// Another customer sees nothing
	resp, err = env.flow.ListCampaigns(ctx, &dto.ListCampaignsRequest{CustomerID: 2})
	require.NoError(t, err)
	assert.Empty(t, resp.Campaigns)
}

// advance moves a recipient through the repository CAS and folds the change
// into the campaign counters the way the dispatcher and the ingestor do.
func (e *lifecycleEnv) advance(t *testing.T, recipient *models.Recipient, to models.RecipientStatus, upd repository.RecipientUpdate) {
	t.Helper()
	ctx := context.Background()
	from := recipient.Status
	ok, err := e.Recipients.Transition(ctx, recipient.ID, from, to, upd)
	require.NoError(t, err)
	require.True(t, ok)
	recipient.Status = to
	require.NoError(t, e.flow.OnRecipientTransition(ctx, recipient.CampaignID, from, to))
}

func TestOnRecipientTransitionCountersAndCompletion(t *testing.T) {
	env := newLifecycleEnv(t, 10)
	ctx := context.Background()
	_, campaignUUID := env.create(t, "+15551230001", "+15551230002")

	campaign, err := env.Campaigns.ByUUID(ctx, campaignUUID)
	require.NoError(t, err)
	recipients, err := env.Recipients.ByFilter(ctx, models.RecipientFilter{CampaignID: &campaign.ID}, "id ASC", 0, 0)
	require.NoError(t, err)
	require.Len(t, recipients, 2)

	first, second := recipients[0], recipients[1]

	env.advance(t, first, models.RecipientStatusQueued, repository.RecipientUpdate{})
	env.advance(t, first, models.RecipientStatusSent, repository.RecipientUpdate{})

	campaign, _ = env.Campaigns.ByID(ctx, campaign.ID)
	assert.Equal(t, uint(1), campaign.SentCount)
	assert.Equal(t, models.CampaignStatusRunning, campaign.Status)

	// A read callback on a sent recipient crosses delivered and read at once
	env.advance(t, first, models.RecipientStatusRead, repository.RecipientUpdate{})

	campaign, _ = env.Campaigns.ByID(ctx, campaign.ID)
	assert.Equal(t, uint(1), campaign.SentCount)
	assert.Equal(t, uint(1), campaign.DeliveredCount)
	assert.Equal(t, uint(1), campaign.ReadCount)

	// Last recipient fails; nothing remains and the campaign completes
	env.advance(t, second, models.RecipientStatusQueued, repository.RecipientUpdate{})
	env.advance(t, second, models.RecipientStatusFailed, repository.RecipientUpdate{})

	campaign, _ = env.Campaigns.ByID(ctx, campaign.ID)
	assert.Equal(t, uint(1), campaign.FailedCount)
	assert.Equal(t, models.CampaignStatusCompleted, campaign.Status)
	assert.NotNil(t, campaign.CompletedAt)

	reservation, err := env.Reservations.ByCampaignID(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusSettled, reservation.Status)
}

func TestFailCampaignSkipsUndispatched(t *testing.T) {
	env := newLifecycleEnv(t, 10)
	ctx := context.Background()
	_, campaignUUID := env.create(t, "+15551230001", "+15551230002")

	campaign, err := env.Campaigns.ByUUID(ctx, campaignUUID)
	require.NoError(t, err)

	require.NoError(t, env.flow.FailCampaign(ctx, campaign.ID, models.ReasonChannelRevoked))

	campaign, _ = env.Campaigns.ByID(ctx, campaign.ID)
	assert.Equal(t, models.CampaignStatusFailed, campaign.Status)

	hist, err := env.Recipients.Histogram(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(2), hist.Skipped)

	wallet, err := env.Wallets.ByID(ctx, env.wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(10), wallet.FreeCredits)
}

func TestStageDelta(t *testing.T) {
	tests := []struct {
		name     string
		from     models.RecipientStatus
		to       models.RecipientStatus
		expected repository.CounterDelta
	}{
		{"pending to queued", models.RecipientStatusPending, models.RecipientStatusQueued, repository.CounterDelta{}},
		{"queued to sent", models.RecipientStatusQueued, models.RecipientStatusSent, repository.CounterDelta{Sent: 1}},
		{"sent to delivered", models.RecipientStatusSent, models.RecipientStatusDelivered, repository.CounterDelta{Delivered: 1}},
		{"delivered to read", models.RecipientStatusDelivered, models.RecipientStatusRead, repository.CounterDelta{Read: 1}},
		{"sent to read crosses both", models.RecipientStatusSent, models.RecipientStatusRead, repository.CounterDelta{Delivered: 1, Read: 1}},
		{"queued to failed", models.RecipientStatusQueued, models.RecipientStatusFailed, repository.CounterDelta{Failed: 1}},
		{"sent to failed", models.RecipientStatusSent, models.RecipientStatusFailed, repository.CounterDelta{Failed: 1}},
		{"skipped counts nowhere", models.RecipientStatusPending, models.RecipientStatusSkipped, repository.CounterDelta{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, stageDelta(tt.from, tt.to))
		})
	}
}
