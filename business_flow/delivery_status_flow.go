package businessflow

import (
	"context"
	"fmt"

	"github.com/blastline/blastline-backend/app/dto"
	"github.com/blastline/blastline-backend/models"
	"github.com/blastline/blastline-backend/repository"
	"github.com/blastline/blastline-backend/utils"
)

// statusApplyAttempts bounds the CAS retry loop against concurrent callbacks
// for the same recipient.
const statusApplyAttempts = 3

// DeliveryStatusFlow ingests asynchronous platform callbacks. Callbacks are
// at-least-once and possibly out of order; applying one is a monotonic merge
// into the recipient's forward chain, so replays and stale events degrade to
// acknowledged no-ops.
type DeliveryStatusFlow interface {
	ApplyDeliveryEvent(ctx context.Context, req *dto.DeliveryCallbackRequest, metadata *ClientMetadata) (*dto.DeliveryCallbackResponse, error)
	ApplyButtonClick(ctx context.Context, req *dto.ButtonClickCallbackRequest, metadata *ClientMetadata) error
}

// DeliveryStatusFlowImpl implements the delivery status ingestion flow
type DeliveryStatusFlowImpl struct {
	recipientRepo repository.RecipientRepository
	campaignRepo  repository.CampaignRepository
	eventRepo     repository.DeliveryEventRepository
	clickRepo     repository.ButtonClickRepository
	lifecycle     CampaignLifecycleFlow
	tx            repository.Transactor
}

// NewDeliveryStatusFlow creates a new delivery status flow instance
func NewDeliveryStatusFlow(
	recipientRepo repository.RecipientRepository,
	campaignRepo repository.CampaignRepository,
	eventRepo repository.DeliveryEventRepository,
	clickRepo repository.ButtonClickRepository,
	lifecycle CampaignLifecycleFlow,
	tx repository.Transactor,
) DeliveryStatusFlow {
	return &DeliveryStatusFlowImpl{
		recipientRepo: recipientRepo,
		campaignRepo:  campaignRepo,
		eventRepo:     eventRepo,
		clickRepo:     clickRepo,
		lifecycle:     lifecycle,
		tx:            tx,
	}
}

// ApplyDeliveryEvent merges one platform callback into the recipient's status.
// The event is applied only when it moves the recipient strictly forward and
// carries a timestamp newer than the last applied event. A failure callback for
// an already-sent recipient is always honored regardless of ordering.
func (s *DeliveryStatusFlowImpl) ApplyDeliveryEvent(ctx context.Context, req *dto.DeliveryCallbackRequest, metadata *ClientMetadata) (*dto.DeliveryCallbackResponse, error) {
	status := models.RecipientStatus(req.Status)
	if !status.Valid() || status == models.RecipientStatusPending || status == models.RecipientStatusQueued || status == models.RecipientStatusSkipped {
		return nil, NewBusinessError("DELIVERY_STATUS_UNKNOWN", fmt.Sprintf("Unknown delivery status: %s", req.Status), ErrUnknownDeliveryStatus)
	}
	if req.Timestamp.IsZero() {
		return nil, NewBusinessError("DELIVERY_TIMESTAMP_INVALID", "Event timestamp is missing or invalid", ErrInvalidEventTimestamp)
	}

	for attempt := 0; attempt < statusApplyAttempts; attempt++ {
		recipient, err := s.recipientRepo.ByPlatformMessageID(ctx, req.MessageID)
		if err != nil {
			return nil, NewBusinessError("DELIVERY_LOOKUP_FAILED", "Failed to lookup recipient by message id", err)
		}
		if recipient == nil {
			return nil, NewBusinessError("RECIPIENT_NOT_FOUND", "No recipient for the given message id", ErrRecipientNotFound)
		}

		if recipient.Status == status {
			return &dto.DeliveryCallbackResponse{Applied: false, Message: "duplicate event ignored"}, nil
		}
		if !recipient.Status.CanTransitionTo(status) {
			return &dto.DeliveryCallbackResponse{Applied: false, Message: "stale event ignored"}, nil
		}
		// Failure reports win regardless of timestamp ordering; everything
		// else must beat the watermark.
		if status != models.RecipientStatusFailed &&
			recipient.LastEventAt != nil && !req.Timestamp.After(*recipient.LastEventAt) {
			return &dto.DeliveryCallbackResponse{Applied: false, Message: "stale event ignored"}, nil
		}

		upd := repository.RecipientUpdate{LastEventAt: &req.Timestamp}
		now := utils.UTCNow()
		switch status {
		case models.RecipientStatusDelivered:
			upd.DeliveredAt = &req.Timestamp
		case models.RecipientStatusRead:
			upd.ReadAt = &req.Timestamp
			if recipient.DeliveredAt == nil {
				upd.DeliveredAt = &req.Timestamp
			}
		case models.RecipientStatusFailed:
			reason := models.ReasonDeliveryFailed
			upd.FailureReason = &reason
			upd.TerminalAt = &now
		}

		from := recipient.Status
		ok, err := s.recipientRepo.Transition(ctx, recipient.ID, from, status, upd)
		if err != nil {
			return nil, NewBusinessError("DELIVERY_APPLY_FAILED", "Failed to apply delivery event", err)
		}
		if !ok {
			// Another callback moved the row between read and write; re-read
			// and re-evaluate against the new state.
			continue
		}

		event := &models.DeliveryEvent{
			RecipientID:       recipient.ID,
			CampaignID:        recipient.CampaignID,
			PlatformMessageID: req.MessageID,
			Status:            status,
			EventAt:           req.Timestamp,
		}
		if err := s.eventRepo.Save(ctx, event); err != nil {
			return nil, NewBusinessError("DELIVERY_EVENT_SAVE_FAILED", "Failed to record delivery event", err)
		}

		if err := s.lifecycle.OnRecipientTransition(ctx, recipient.CampaignID, from, status); err != nil {
			return nil, NewBusinessError("DELIVERY_COUNTER_FAILED", "Failed to update campaign counters", err)
		}

		return &dto.DeliveryCallbackResponse{Applied: true, Message: fmt.Sprintf("recipient moved to %s", status)}, nil
	}

	// Every attempt lost its CAS race, meaning concurrent callbacks kept
	// advancing the recipient past this event. Treat it as superseded.
	return &dto.DeliveryCallbackResponse{Applied: false, Message: "event superseded by concurrent updates"}, nil
}

// ApplyButtonClick records an interactive button press. Clicks are engagement
// telemetry only and never change the recipient's delivery status.
func (s *DeliveryStatusFlowImpl) ApplyButtonClick(ctx context.Context, req *dto.ButtonClickCallbackRequest, metadata *ClientMetadata) error {
	recipient, err := s.recipientRepo.ByPlatformMessageID(ctx, req.MessageID)
	if err != nil {
		return NewBusinessError("BUTTON_CLICK_LOOKUP_FAILED", "Failed to lookup recipient by message id", err)
	}
	if recipient == nil {
		return NewBusinessError("RECIPIENT_NOT_FOUND", "No recipient for the given message id", ErrRecipientNotFound)
	}

	campaign, err := s.campaignRepo.ByID(ctx, recipient.CampaignID)
	if err != nil {
		return NewBusinessError("BUTTON_CLICK_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	if campaign == nil {
		return NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", ErrCampaignNotFound)
	}

	click := &models.ButtonClick{
		RecipientID:       recipient.ID,
		CampaignID:        recipient.CampaignID,
		TemplateID:        campaign.TemplateID,
		PlatformMessageID: req.MessageID,
		Phone:             recipient.Phone,
		ButtonID:          req.ButtonID,
		ButtonText:        req.ButtonText,
		ClickedAt:         req.Timestamp,
	}
	if err := s.clickRepo.Save(ctx, click); err != nil {
		return NewBusinessError("BUTTON_CLICK_SAVE_FAILED", "Failed to record button click", err)
	}
	return nil
}
