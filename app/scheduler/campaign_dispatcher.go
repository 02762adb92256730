// Package scheduler runs the background campaign dispatcher and its rate limiting
package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	businessflow "github.com/blastline/blastline-backend/business_flow"
	"github.com/blastline/blastline-backend/app/services"
	"github.com/blastline/blastline-backend/config"
	"github.com/blastline/blastline-backend/models"
	"github.com/blastline/blastline-backend/repository"
	"github.com/blastline/blastline-backend/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Send outcomes partitioned by result: sent, failed, skipped, retried
	dispatchSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_sends_total",
			Help: "Total recipient send outcomes processed by the dispatcher",
		},
		[]string{"result"},
	)

	// Campaigns moved to a terminal state by the dispatcher
	dispatchCampaignsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_campaigns_total",
			Help: "Total campaigns finished by the dispatcher",
		},
		[]string{"status"},
	)

	// Duration of one full dispatch tick over all running campaigns
	dispatchTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_tick_duration_seconds",
			Help:    "Duration of one dispatcher tick in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// runningCampaignsPerTick bounds how many campaigns one tick picks up
const runningCampaignsPerTick = 50

// staleQueuedAfter is how long a queued recipient may sit without a send
// before the dispatcher treats it as an interrupted delivery and resumes it.
const staleQueuedAfter = 5 * time.Minute

// CampaignDispatcher periodically admits pending recipients of running
// campaigns and hands them to the messaging platform. Every recipient is moved
// to queued before its send goes out, so a crash between the write and the
// platform call leaves a queued row that is retried, never a silent loss.
type CampaignDispatcher struct {
	campaignRepo    repository.CampaignRepository
	recipientRepo   repository.RecipientRepository
	channelRepo     repository.ChannelRepository
	templateRepo    repository.TemplateRepository
	reservationRepo repository.CreditReservationRepository
	lifecycle       businessflow.CampaignLifecycleFlow
	ledger          businessflow.CreditLedger
	sender          services.MessageSender
	limiter         RateLimiter
	logger          *log.Logger
	cfg             config.DispatcherConfig
}

// NewCampaignDispatcher creates a new campaign dispatcher instance
func NewCampaignDispatcher(
	campaignRepo repository.CampaignRepository,
	recipientRepo repository.RecipientRepository,
	channelRepo repository.ChannelRepository,
	templateRepo repository.TemplateRepository,
	reservationRepo repository.CreditReservationRepository,
	lifecycle businessflow.CampaignLifecycleFlow,
	ledger businessflow.CreditLedger,
	sender services.MessageSender,
	limiter RateLimiter,
	logger *log.Logger,
	cfg config.DispatcherConfig,
) *CampaignDispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = utils.DefaultDispatchInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = utils.DefaultDispatchBatchSize
	}
	if cfg.MaxSendAttempts <= 0 {
		cfg.MaxSendAttempts = utils.DefaultMaxSendAttempts
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = utils.DefaultSendTimeout
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = utils.DefaultRetryBackoff
	}
	if cfg.Workers <= 0 {
		cfg.Workers = utils.DefaultDispatchWorkers
	}
	if logger == nil {
		logger = log.Default()
	}

	return &CampaignDispatcher{
		campaignRepo:    campaignRepo,
		recipientRepo:   recipientRepo,
		channelRepo:     channelRepo,
		templateRepo:    templateRepo,
		reservationRepo: reservationRepo,
		lifecycle:       lifecycle,
		ledger:          ledger,
		sender:          sender,
		limiter:         limiter,
		logger:          logger,
		cfg:             cfg,
	}
}

// Start launches the dispatch loop and returns a function that stops it
func (d *CampaignDispatcher) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(d.cfg.Interval)
		defer ticker.Stop()

		d.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.runOnce(ctx)
			}
		}
	}()

	return cancel
}

// runOnce processes one dispatch tick over all running campaigns
func (d *CampaignDispatcher) runOnce(ctx context.Context) {
	start := time.Now()
	defer func() {
		dispatchTickDuration.Observe(time.Since(start).Seconds())
	}()

	running, err := d.campaignRepo.ListByStatus(ctx, models.CampaignStatusRunning, runningCampaignsPerTick)
	if err != nil {
		d.logger.Printf("dispatcher: list running campaigns failed: %v", err)
		return
	}

	// Campaigns are independent, so one tick fans them out across a bounded
	// pool. Recipients inside a campaign are still sent in order.
	sem := make(chan struct{}, d.cfg.Workers)
	var wg sync.WaitGroup
	for _, campaign := range running {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(campaign *models.Campaign) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := d.dispatchCampaign(ctx, campaign); err != nil {
				d.logger.Printf("dispatcher: campaign %s dispatch failed: %v", campaign.UUID, err)
			}
		}(campaign)
	}
	wg.Wait()
}

// dispatchCampaign admits and sends one batch of pending recipients
func (d *CampaignDispatcher) dispatchCampaign(ctx context.Context, campaign *models.Campaign) error {
	channel, err := d.channelRepo.ByID(ctx, campaign.ChannelID)
	if err != nil {
		return err
	}
	if channel == nil || !channel.IsSendable() {
		// The channel is gone mid-run; every unsent recipient is skipped and
		// its credit returned.
		d.logger.Printf("dispatcher: campaign %s channel unusable, failing campaign", campaign.UUID)
		dispatchCampaignsTotal.WithLabelValues(string(models.CampaignStatusFailed)).Inc()
		return d.lifecycle.FailCampaign(ctx, campaign.ID, models.ReasonChannelRevoked)
	}

	template, err := d.templateRepo.ByID(ctx, campaign.TemplateID)
	if err != nil {
		return err
	}
	if template == nil || !template.IsSendable() {
		d.logger.Printf("dispatcher: campaign %s template unusable, failing campaign", campaign.UUID)
		dispatchCampaignsTotal.WithLabelValues(string(models.CampaignStatusFailed)).Inc()
		return d.lifecycle.FailCampaign(ctx, campaign.ID, models.ReasonPlatformRejected)
	}

	reservation, err := d.reservationRepo.ByCampaignID(ctx, campaign.ID)
	if err != nil {
		return err
	}
	if reservation == nil {
		return businessflow.ErrReservationNotFound
	}

	// Sends interrupted between the queued write and the platform call are
	// picked up before new admissions; their persisted attempt count carries
	// over, so a crash loop cannot grant unlimited retries.
	stale, err := d.recipientRepo.ListStaleQueued(ctx, campaign.ID, utils.UTCNowAdd(-staleQueuedAfter), d.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, recipient := range stale {
		if ctx.Err() != nil {
			return nil
		}

		// A pause or cancel landing mid-resume stops recovery too.
		current, err := d.campaignRepo.ByID(ctx, campaign.ID)
		if err != nil {
			return err
		}
		if current == nil || current.Status != models.CampaignStatusRunning {
			d.logger.Printf("dispatcher: campaign %s no longer running, stopping resume", campaign.UUID)
			return nil
		}

		allowed, err := d.limiter.Allow(ctx, channel.ID, channel.MessagesPerSecond)
		if err != nil {
			return err
		}
		if !allowed {
			return nil
		}
		if err := d.sendQueued(ctx, campaign, channel, template, reservation, recipient, recipient.AttemptCount); err != nil {
			d.logger.Printf("dispatcher: stale recipient %d resume failed: %v", recipient.ID, err)
		}
	}

	admissible, err := d.recipientRepo.ListAdmissible(ctx, campaign.ID, d.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(admissible) == 0 && len(stale) == 0 {
		return d.lifecycle.CheckCompletion(ctx, campaign.ID)
	}

	for _, recipient := range admissible {
		if ctx.Err() != nil {
			return nil
		}

		// Pause and cancel take effect between sends, not mid-flight.
		current, err := d.campaignRepo.ByID(ctx, campaign.ID)
		if err != nil {
			return err
		}
		if current == nil || current.Status != models.CampaignStatusRunning {
			d.logger.Printf("dispatcher: campaign %s no longer running, stopping admission", campaign.UUID)
			return nil
		}

		allowed, err := d.limiter.Allow(ctx, channel.ID, channel.MessagesPerSecond)
		if err != nil {
			return err
		}
		if !allowed {
			// Quota spent for this second; the next tick picks the rest up.
			return nil
		}

		if err := d.dispatchRecipient(ctx, campaign, channel, template, reservation, recipient); err != nil {
			d.logger.Printf("dispatcher: recipient %d send failed: %v", recipient.ID, err)
		}
	}

	return nil
}

// dispatchRecipient moves one recipient pending -> queued -> sent/failed
func (d *CampaignDispatcher) dispatchRecipient(
	ctx context.Context,
	campaign *models.Campaign,
	channel *models.Channel,
	template *models.Template,
	reservation *models.CreditReservation,
	recipient *models.Recipient,
) error {
	queuedAt := utils.UTCNow()
	ok, err := d.recipientRepo.Transition(ctx, recipient.ID, models.RecipientStatusPending, models.RecipientStatusQueued, repository.RecipientUpdate{
		QueuedAt: &queuedAt,
	})
	if err != nil {
		return err
	}
	if !ok {
		// Another worker claimed the row.
		return nil
	}

	if err := d.lifecycle.OnRecipientTransition(ctx, campaign.ID, models.RecipientStatusPending, models.RecipientStatusQueued); err != nil {
		return err
	}

	return d.sendQueued(ctx, campaign, channel, template, reservation, recipient, recipient.AttemptCount)
}

// sendQueued attempts the platform send for an already-queued recipient,
// retrying transient failures up to the attempt ceiling. The attempt count is
// persisted after every try so a restart resumes counting instead of granting
// a fresh budget.
func (d *CampaignDispatcher) sendQueued(
	ctx context.Context,
	campaign *models.Campaign,
	channel *models.Channel,
	template *models.Template,
	reservation *models.CreditReservation,
	recipient *models.Recipient,
	attempts int,
) error {
	req := services.SendTemplateRequest{
		ChannelPhone: channel.PhoneNumber,
		ToPhone:      recipient.Phone,
		TemplateName: template.Name,
		Language:     template.Language,
		Variables:    recipient.Variables,
	}

	for attempts < d.cfg.MaxSendAttempts {
		attempts++

		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		messageID, err := d.sender.SendTemplate(sendCtx, req)
		cancel()

		if err == nil {
			now := utils.UTCNow()
			ok, err := d.recipientRepo.Transition(ctx, recipient.ID, models.RecipientStatusQueued, models.RecipientStatusSent, repository.RecipientUpdate{
				PlatformMessageID: &messageID,
				AttemptCount:      &attempts,
				SentAt:            &now,
				LastEventAt:       &now,
			})
			if err != nil {
				return err
			}
			if !ok {
				// The row moved underneath us (cancel raced the send). The
				// message went out, but cancel may already have settled the
				// reservation, in which case the unit was released rather
				// than consumed.
				d.logger.Printf("dispatcher: recipient %d finished elsewhere after send", recipient.ID)
			}

			if err := d.ledger.ConsumeUnit(ctx, reservation.ID); err != nil {
				if ok || !errors.Is(err, businessflow.ErrReservationExhausted) {
					return err
				}
			}
			dispatchSendsTotal.WithLabelValues("sent").Inc()
			if !ok {
				return nil
			}
			return d.lifecycle.OnRecipientTransition(ctx, campaign.ID, models.RecipientStatusQueued, models.RecipientStatusSent)
		}

		if se, isSendErr := services.AsSendError(err); isSendErr && se.Permanent {
			if se.Skip {
				dispatchSendsTotal.WithLabelValues("skipped").Inc()
				return d.terminateQueued(ctx, campaign, reservation, recipient, attempts, models.RecipientStatusSkipped, se.Reason)
			}
			dispatchSendsTotal.WithLabelValues("failed").Inc()
			return d.terminateQueued(ctx, campaign, reservation, recipient, attempts, models.RecipientStatusFailed, se.Reason)
		}

		d.logger.Printf("dispatcher: recipient %d attempt %d/%d failed: %v", recipient.ID, attempts, d.cfg.MaxSendAttempts, err)
		if _, err := d.recipientRepo.Transition(ctx, recipient.ID, models.RecipientStatusQueued, models.RecipientStatusQueued, repository.RecipientUpdate{
			AttemptCount: &attempts,
		}); err != nil {
			return err
		}
		dispatchSendsTotal.WithLabelValues("retried").Inc()

		if attempts < d.cfg.MaxSendAttempts {
			// Backoff doubles per attempt: base, 2*base, 4*base, ...
			backoff := d.cfg.RetryBackoff * time.Duration(1<<(attempts-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	dispatchSendsTotal.WithLabelValues("failed").Inc()
	return d.terminateQueued(ctx, campaign, reservation, recipient, attempts, models.RecipientStatusFailed, models.ReasonSendRetriesExhausted)
}

// terminateQueued moves a queued recipient to failed or skipped and returns its credit
func (d *CampaignDispatcher) terminateQueued(
	ctx context.Context,
	campaign *models.Campaign,
	reservation *models.CreditReservation,
	recipient *models.Recipient,
	attempts int,
	terminal models.RecipientStatus,
	reason string,
) error {
	now := utils.UTCNow()
	ok, err := d.recipientRepo.Transition(ctx, recipient.ID, models.RecipientStatusQueued, terminal, repository.RecipientUpdate{
		FailureReason: &reason,
		AttemptCount:  &attempts,
		TerminalAt:    &now,
	})
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if err := d.ledger.ReleaseUnit(ctx, reservation.ID); err != nil {
		return err
	}
	return d.lifecycle.OnRecipientTransition(ctx, campaign.ID, models.RecipientStatusQueued, terminal)
}
