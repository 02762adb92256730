package businessflow

import (
	"context"
	"fmt"
	"time"

	"github.com/blastline/blastline-backend/app/dto"
	"github.com/blastline/blastline-backend/models"
	"github.com/blastline/blastline-backend/repository"
	"github.com/blastline/blastline-backend/utils"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// CampaignLifecycleFlow owns campaign-level state transitions and the
// aggregate counter views derived from recipient transitions.
type CampaignLifecycleFlow interface {
	CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest, metadata *ClientMetadata) (*dto.CreateCampaignResponse, error)
	Pause(ctx context.Context, customerID uint, campaignUUID uuid.UUID, metadata *ClientMetadata) error
	Resume(ctx context.Context, customerID uint, campaignUUID uuid.UUID, metadata *ClientMetadata) error
	Cancel(ctx context.Context, customerID uint, campaignUUID uuid.UUID, metadata *ClientMetadata) error
	GetStatus(ctx context.Context, customerID uint, campaignUUID uuid.UUID) (*dto.CampaignStatusResponse, error)
	ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest) (*dto.ListCampaignsResponse, error)

	// OnRecipientTransition folds a recipient status change into the
	// campaign's high-water-mark counters and runs completion detection.
	// Called by the dispatcher and the status ingestor after every applied
	// recipient transition.
	OnRecipientTransition(ctx context.Context, campaignID uint, from, to models.RecipientStatus) error

	// CheckCompletion runs completion detection for the campaign without
	// applying any counter change. The dispatcher calls it when a tick finds
	// nothing left to admit.
	CheckCompletion(ctx context.Context, campaignID uint) error

	// FailCampaign marks a running campaign systemically failed (e.g. its
	// channel was revoked mid-run), skips every recipient not yet handed to
	// the platform and releases their reserved credits.
	FailCampaign(ctx context.Context, campaignID uint, reason string) error
}

// CampaignLifecycleFlowImpl implements the campaign lifecycle business flow
type CampaignLifecycleFlowImpl struct {
	campaignRepo    repository.CampaignRepository
	recipientRepo   repository.RecipientRepository
	channelRepo     repository.ChannelRepository
	templateRepo    repository.TemplateRepository
	reservationRepo repository.CreditReservationRepository
	auditRepo       repository.AuditLogRepository
	ledger          CreditLedger
	statusCache     StatusCache
	tx              repository.Transactor
}

// NewCampaignLifecycleFlow creates a new campaign lifecycle flow instance
func NewCampaignLifecycleFlow(
	campaignRepo repository.CampaignRepository,
	recipientRepo repository.RecipientRepository,
	channelRepo repository.ChannelRepository,
	templateRepo repository.TemplateRepository,
	reservationRepo repository.CreditReservationRepository,
	auditRepo repository.AuditLogRepository,
	ledger CreditLedger,
	statusCache StatusCache,
	tx repository.Transactor,
) CampaignLifecycleFlow {
	if statusCache == nil {
		statusCache = NoopStatusCache{}
	}
	return &CampaignLifecycleFlowImpl{
		campaignRepo:    campaignRepo,
		recipientRepo:   recipientRepo,
		channelRepo:     channelRepo,
		templateRepo:    templateRepo,
		reservationRepo: reservationRepo,
		auditRepo:       auditRepo,
		ledger:          ledger,
		statusCache:     statusCache,
		tx:              tx,
	}
}

// CreateCampaign handles the complete campaign creation process: validation,
// credit reservation, bulk recipient insertion and the initial status chain
// draft -> scheduled -> running. The whole call is atomic — insufficient
// credits or an unusable channel/template reject the batch with no side
// effects.
func (s *CampaignLifecycleFlowImpl) CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest, metadata *ClientMetadata) (*dto.CreateCampaignResponse, error) {
	if err := s.validateCreateCampaignRequest(req); err != nil {
		return nil, NewBusinessError("CAMPAIGN_VALIDATION_FAILED", "Campaign validation failed", err)
	}

	channelUUID, err := uuid.Parse(req.ChannelID)
	if err != nil {
		return nil, NewBusinessError("CHANNEL_LOOKUP_FAILED", "Invalid channel id", ErrChannelNotFound)
	}
	templateUUID, err := uuid.Parse(req.TemplateID)
	if err != nil {
		return nil, NewBusinessError("TEMPLATE_LOOKUP_FAILED", "Invalid template id", ErrTemplateNotFound)
	}

	channel, err := s.channelRepo.ByUUID(ctx, channelUUID)
	if err != nil {
		return nil, NewBusinessError("CHANNEL_LOOKUP_FAILED", "Failed to lookup channel", err)
	}
	if channel == nil {
		return nil, NewBusinessError("CHANNEL_NOT_FOUND", "Channel not found", ErrChannelNotFound)
	}
	if channel.CustomerID != req.CustomerID {
		return nil, NewBusinessError("CHANNEL_ACCESS_DENIED", "Channel belongs to another customer", ErrChannelAccessDenied)
	}
	if !channel.IsSendable() {
		return nil, NewBusinessError("CHANNEL_NOT_SENDABLE", "Channel is not sendable", ErrChannelNotSendable)
	}

	template, err := s.templateRepo.ByUUID(ctx, templateUUID)
	if err != nil {
		return nil, NewBusinessError("TEMPLATE_LOOKUP_FAILED", "Failed to lookup template", err)
	}
	if template == nil {
		return nil, NewBusinessError("TEMPLATE_NOT_FOUND", "Template not found", ErrTemplateNotFound)
	}
	if !template.IsSendable() {
		return nil, NewBusinessError("TEMPLATE_NOT_SENDABLE", "Template is not approved for sending", ErrTemplateNotSendable)
	}

	contacts := dedupeContacts(req.Contacts)
	if len(contacts) == 0 {
		return nil, NewBusinessError("NO_CONTACTS", "Campaign has no contacts", ErrNoContacts)
	}

	autoStart := req.AutoStart == nil || *req.AutoStart

	var campaign *models.Campaign

	err = s.tx.WithTx(ctx, func(txCtx context.Context) error {
		amount := uint(len(contacts)) * utils.CreditsPerRecipient
		campaign = &models.Campaign{
			CustomerID:      req.CustomerID,
			ChannelID:       channel.ID,
			TemplateID:      template.ID,
			Name:            req.Name,
			Status:          models.CampaignStatusDraft,
			TotalRecipients: uint(len(contacts)),
			CreditsReserved: amount,
		}
		if err := s.campaignRepo.Save(txCtx, campaign); err != nil {
			return err
		}

		if _, err := s.ledger.Reserve(txCtx, req.CustomerID, campaign.ID, amount); err != nil {
			return err
		}

		recipients := make([]*models.Recipient, 0, len(contacts))
		for _, contact := range contacts {
			recipients = append(recipients, &models.Recipient{
				CampaignID: campaign.ID,
				ChannelID:  channel.ID,
				Phone:      contact.Phone,
				Variables:  pq.StringArray(contact.Variables),
				Status:     models.RecipientStatusPending,
			})
		}
		if err := s.recipientRepo.SaveBatch(txCtx, recipients); err != nil {
			return err
		}

		if ok, err := s.campaignRepo.UpdateStatus(txCtx, campaign.ID, models.CampaignStatusDraft, models.CampaignStatusScheduled, nil, nil); err != nil {
			return err
		} else if !ok {
			return ErrInvalidCampaignTransition
		}
		campaign.Status = models.CampaignStatusScheduled

		if autoStart {
			startedAt := utils.UTCNow()
			if ok, err := s.campaignRepo.UpdateStatus(txCtx, campaign.ID, models.CampaignStatusScheduled, models.CampaignStatusRunning, &startedAt, nil); err != nil {
				return err
			} else if !ok {
				return ErrInvalidCampaignTransition
			}
			campaign.Status = models.CampaignStatusRunning
			campaign.StartedAt = &startedAt
		}

		return nil
	})
	if err != nil {
		errMsg := fmt.Sprintf("Campaign creation failed: %s", err.Error())
		_ = s.createAuditLog(ctx, req.CustomerID, nil, models.AuditActionCampaignCreationFailed, errMsg, false, &errMsg, metadata)

		if be, ok := err.(*BusinessError); ok {
			return nil, be
		}
		return nil, NewBusinessError("CAMPAIGN_CREATION_FAILED", "Campaign creation failed", err)
	}

	msg := fmt.Sprintf("Campaign created: %s (%d recipients, %d credits reserved)", campaign.UUID, campaign.TotalRecipients, campaign.CreditsReserved)
	_ = s.createAuditLog(ctx, req.CustomerID, &campaign.ID, models.AuditActionCampaignCreated, msg, true, nil, metadata)

	return &dto.CreateCampaignResponse{
		UUID:            campaign.UUID.String(),
		Status:          string(campaign.Status),
		TotalRecipients: campaign.TotalRecipients,
		CreditsReserved: campaign.CreditsReserved,
		CreatedAt:       campaign.CreatedAt.Format(time.RFC3339),
	}, nil
}

// Pause stops the dispatcher from admitting new recipients for the campaign.
// Sends already in flight are allowed to complete.
func (s *CampaignLifecycleFlowImpl) Pause(ctx context.Context, customerID uint, campaignUUID uuid.UUID, metadata *ClientMetadata) error {
	campaign, err := s.ownedCampaign(ctx, customerID, campaignUUID)
	if err != nil {
		return err
	}

	if !campaign.CanTransitionTo(models.CampaignStatusPaused) {
		return NewBusinessError("CAMPAIGN_TRANSITION_NOT_ALLOWED", "Campaign cannot be paused in its current status", ErrInvalidCampaignTransition)
	}
	ok, err := s.campaignRepo.UpdateStatus(ctx, campaign.ID, models.CampaignStatusRunning, models.CampaignStatusPaused, nil, nil)
	if err != nil {
		return NewBusinessError("CAMPAIGN_PAUSE_FAILED", "Campaign pause failed", err)
	}
	if !ok {
		return NewBusinessError("CAMPAIGN_TRANSITION_NOT_ALLOWED", "Campaign moved concurrently", ErrInvalidCampaignTransition)
	}

	_ = s.createAuditLog(ctx, customerID, &campaign.ID, models.AuditActionCampaignPaused, "Campaign paused", true, nil, metadata)
	return nil
}

// Resume re-admits the campaign for dispatching. A paused campaign whose
// recipients all finished while sends were in flight completes immediately.
func (s *CampaignLifecycleFlowImpl) Resume(ctx context.Context, customerID uint, campaignUUID uuid.UUID, metadata *ClientMetadata) error {
	campaign, err := s.ownedCampaign(ctx, customerID, campaignUUID)
	if err != nil {
		return err
	}

	if !campaign.CanTransitionTo(models.CampaignStatusRunning) {
		return NewBusinessError("CAMPAIGN_TRANSITION_NOT_ALLOWED", "Campaign cannot be resumed in its current status", ErrInvalidCampaignTransition)
	}
	ok, err := s.campaignRepo.UpdateStatus(ctx, campaign.ID, models.CampaignStatusPaused, models.CampaignStatusRunning, nil, nil)
	if err != nil {
		return NewBusinessError("CAMPAIGN_RESUME_FAILED", "Campaign resume failed", err)
	}
	if !ok {
		return NewBusinessError("CAMPAIGN_TRANSITION_NOT_ALLOWED", "Campaign moved concurrently", ErrInvalidCampaignTransition)
	}

	_ = s.createAuditLog(ctx, customerID, &campaign.ID, models.AuditActionCampaignResumed, "Campaign resumed", true, nil, metadata)

	return s.maybeComplete(ctx, campaign.ID)
}

// Cancel terminates the campaign from any non-terminal state. Recipients still
// pending or queued become skipped with reason campaign_cancelled and their
// reserved credits flow back to the wallet.
func (s *CampaignLifecycleFlowImpl) Cancel(ctx context.Context, customerID uint, campaignUUID uuid.UUID, metadata *ClientMetadata) error {
	campaign, err := s.ownedCampaign(ctx, customerID, campaignUUID)
	if err != nil {
		return err
	}

	if !campaign.CanTransitionTo(models.CampaignStatusCancelled) {
		return NewBusinessError("CAMPAIGN_TRANSITION_NOT_ALLOWED", "Campaign is already terminal", ErrInvalidCampaignTransition)
	}

	err = s.tx.WithTx(ctx, func(txCtx context.Context) error {
		skipped, err := s.recipientRepo.TransitionAll(
			txCtx,
			campaign.ID,
			[]models.RecipientStatus{models.RecipientStatusPending, models.RecipientStatusQueued},
			models.RecipientStatusSkipped,
			models.ReasonCampaignCancelled,
			utils.UTCNow(),
		)
		if err != nil {
			return err
		}
		_ = skipped // credit release is settled below from the reservation remainder

		completedAt := utils.UTCNow()
		ok, err := s.campaignRepo.UpdateStatus(txCtx, campaign.ID, campaign.Status, models.CampaignStatusCancelled, nil, &completedAt)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidCampaignTransition
		}

		return s.settleReservation(txCtx, campaign.ID)
	})
	if err != nil {
		if be, ok := err.(*BusinessError); ok {
			return be
		}
		return NewBusinessError("CAMPAIGN_CANCEL_FAILED", "Campaign cancel failed", err)
	}

	_ = s.createAuditLog(ctx, customerID, &campaign.ID, models.AuditActionCampaignCancelled, "Campaign cancelled", true, nil, metadata)
	return nil
}

// GetStatus returns the campaign record together with the current recipient
// histogram. The histogram is computed in one grouped scan, so each recipient
// lands in exactly one bucket and the buckets sum to total_recipients. The scan
// result is cached briefly; ownership is checked before the cache is consulted.
func (s *CampaignLifecycleFlowImpl) GetStatus(ctx context.Context, customerID uint, campaignUUID uuid.UUID) (*dto.CampaignStatusResponse, error) {
	campaign, err := s.ownedCampaign(ctx, customerID, campaignUUID)
	if err != nil {
		return nil, err
	}

	hist, cached := s.statusCache.GetHistogram(ctx, campaign.ID)
	if !cached {
		hist, err = s.recipientRepo.Histogram(ctx, campaign.ID)
		if err != nil {
			return nil, NewBusinessError("CAMPAIGN_STATUS_FAILED", "Failed to compute campaign histogram", err)
		}
		s.statusCache.SetHistogram(ctx, campaign.ID, hist)
	}

	return &dto.CampaignStatusResponse{
		UUID:            campaign.UUID.String(),
		Name:            campaign.Name,
		Status:          string(campaign.Status),
		TotalRecipients: campaign.TotalRecipients,
		SentCount:       campaign.SentCount,
		DeliveredCount:  campaign.DeliveredCount,
		ReadCount:       campaign.ReadCount,
		FailedCount:     campaign.FailedCount,
		CreditsReserved: campaign.CreditsReserved,
		ProgressPercent: campaign.ProgressPercent(),
		Histogram: dto.HistogramDTO{
			Pending:   hist.Pending,
			Queued:    hist.Queued,
			Sent:      hist.Sent,
			Delivered: hist.Delivered,
			Read:      hist.Read,
			Failed:    hist.Failed,
			Skipped:   hist.Skipped,
		},
		StartedAt:   campaign.StartedAt,
		CompletedAt: campaign.CompletedAt,
		CreatedAt:   campaign.CreatedAt,
	}, nil
}

// ListCampaigns fetches the customer's campaigns with pagination
func (s *CampaignLifecycleFlowImpl) ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest) (*dto.ListCampaignsResponse, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	filter := models.CampaignFilter{CustomerID: &req.CustomerID}
	if req.Status != nil {
		status := models.CampaignStatus(*req.Status)
		filter.Status = &status
	}

	campaigns, err := s.campaignRepo.ByFilter(ctx, filter, "created_at DESC", pageSize, offset)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LIST_FAILED", "Failed to list campaigns", err)
	}
	total, err := s.campaignRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LIST_FAILED", "Failed to count campaigns", err)
	}

	rows := make([]dto.CampaignSummaryDTO, 0, len(campaigns))
	for _, c := range campaigns {
		rows = append(rows, dto.CampaignSummaryDTO{
			UUID:            c.UUID.String(),
			Name:            c.Name,
			Status:          string(c.Status),
			TotalRecipients: c.TotalRecipients,
			SentCount:       c.SentCount,
			ProgressPercent: c.ProgressPercent(),
			CreatedAt:       c.CreatedAt,
		})
	}

	return &dto.ListCampaignsResponse{
		Campaigns:  rows,
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
	}, nil
}

// OnRecipientTransition applies the counter increments for one recipient move
// and runs completion detection when the recipient finished sending. The
// per-stage guards live in the recipient CAS: a recipient crosses each stage
// exactly once, so the plain additive increments can never double-count and
// the counters stay monotonic.
func (s *CampaignLifecycleFlowImpl) OnRecipientTransition(ctx context.Context, campaignID uint, from, to models.RecipientStatus) error {
	delta := stageDelta(from, to)
	if !delta.IsZero() {
		if err := s.campaignRepo.IncrementCounters(ctx, campaignID, delta); err != nil {
			return err
		}
	}

	if to.DoneSending() {
		return s.maybeComplete(ctx, campaignID)
	}
	return nil
}

// CheckCompletion runs completion detection without touching any counter
func (s *CampaignLifecycleFlowImpl) CheckCompletion(ctx context.Context, campaignID uint) error {
	return s.maybeComplete(ctx, campaignID)
}

// FailCampaign handles systemic dispatch failure (e.g. channel revoked)
func (s *CampaignLifecycleFlowImpl) FailCampaign(ctx context.Context, campaignID uint, reason string) error {
	err := s.tx.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := s.recipientRepo.TransitionAll(
			txCtx,
			campaignID,
			[]models.RecipientStatus{models.RecipientStatusPending, models.RecipientStatusQueued},
			models.RecipientStatusSkipped,
			reason,
			utils.UTCNow(),
		); err != nil {
			return err
		}

		completedAt := utils.UTCNow()
		ok, err := s.campaignRepo.UpdateStatus(txCtx, campaignID, models.CampaignStatusRunning, models.CampaignStatusFailed, nil, &completedAt)
		if err != nil {
			return err
		}
		if !ok {
			// Already moved by a concurrent pause/cancel; nothing left to fail.
			return nil
		}

		return s.settleReservation(txCtx, campaignID)
	})
	if err != nil {
		return err
	}

	desc := fmt.Sprintf("Campaign failed: %s", reason)
	_ = s.createAuditLog(ctx, 0, &campaignID, models.AuditActionCampaignFailed, desc, false, &reason, nil)
	return nil
}

// maybeComplete flips a running campaign to completed once no recipient
// remains pending or queued. Sent-and-beyond counts as done sending; delivery
// and read callbacks keep arriving after completion and still apply.
func (s *CampaignLifecycleFlowImpl) maybeComplete(ctx context.Context, campaignID uint) error {
	hist, err := s.recipientRepo.Histogram(ctx, campaignID)
	if err != nil {
		return err
	}
	if hist.Remaining() > 0 {
		return nil
	}

	completedAt := utils.UTCNow()
	ok, err := s.campaignRepo.UpdateStatus(ctx, campaignID, models.CampaignStatusRunning, models.CampaignStatusCompleted, nil, &completedAt)
	if err != nil {
		return err
	}
	if !ok {
		// Not running (paused, cancelled or already completed by a peer).
		return nil
	}

	if err := s.settleReservation(ctx, campaignID); err != nil {
		return err
	}

	_ = s.createAuditLog(ctx, 0, &campaignID, models.AuditActionCampaignCompleted, "Campaign completed", true, nil, nil)
	return nil
}

// settleReservation releases all outstanding reserved units of the campaign
func (s *CampaignLifecycleFlowImpl) settleReservation(ctx context.Context, campaignID uint) error {
	reservation, err := s.reservationRepo.ByCampaignID(ctx, campaignID)
	if err != nil {
		return err
	}
	if reservation == nil {
		return nil
	}
	return s.ledger.SettleRemainder(ctx, reservation.ID)
}

func (s *CampaignLifecycleFlowImpl) ownedCampaign(ctx context.Context, customerID uint, campaignUUID uuid.UUID) (*models.Campaign, error) {
	campaign, err := s.campaignRepo.ByUUID(ctx, campaignUUID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	if campaign == nil {
		return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", ErrCampaignNotFound)
	}
	if campaign.CustomerID != customerID {
		return nil, NewBusinessError("CAMPAIGN_ACCESS_DENIED", "Access denied: campaign belongs to another customer", ErrCampaignAccessDenied)
	}
	return campaign, nil
}

func (s *CampaignLifecycleFlowImpl) validateCreateCampaignRequest(req *dto.CreateCampaignRequest) error {
	if req.Name == "" {
		return ErrCampaignNameRequired
	}
	if len(req.Contacts) == 0 {
		return ErrNoContacts
	}
	return nil
}

func (s *CampaignLifecycleFlowImpl) createAuditLog(ctx context.Context, customerID uint, campaignID *uint, action, description string, success bool, errorMsg *string, metadata *ClientMetadata) error {
	entry := &models.AuditLog{
		CampaignID:   campaignID,
		Action:       action,
		Description:  &description,
		Success:      &success,
		ErrorMessage: errorMsg,
	}
	if customerID != 0 {
		entry.CustomerID = &customerID
	}
	if metadata != nil {
		if metadata.IPAddress != "" {
			entry.IPAddress = &metadata.IPAddress
		}
		if metadata.UserAgent != "" {
			entry.UserAgent = &metadata.UserAgent
		}
		if metadata.RequestID != "" {
			entry.RequestID = &metadata.RequestID
		}
	}
	return s.auditRepo.Save(ctx, entry)
}

// dedupeContacts normalizes phone numbers and keeps the first occurrence of
// each contact. Duplicate rows in the uploaded list would otherwise double-bill
// and double-send the same phone within one campaign.
func dedupeContacts(contacts []dto.ContactInput) []dto.ContactInput {
	seen := make(map[string]bool, len(contacts))
	out := make([]dto.ContactInput, 0, len(contacts))
	for _, c := range contacts {
		phone := utils.NormalizePhone(c.Phone)
		if phone == "" || seen[phone] {
			continue
		}
		seen[phone] = true
		out = append(out, dto.ContactInput{Phone: phone, Variables: c.Variables})
	}
	return out
}
