package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blastline/blastline-backend/models"
	"gorm.io/gorm"
)

// RecipientRepositoryImpl implements RecipientRepository
type RecipientRepositoryImpl struct {
	*BaseRepository[models.Recipient, models.RecipientFilter]
}

// NewRecipientRepository creates a new recipient repository
func NewRecipientRepository(db *gorm.DB) RecipientRepository {
	return &RecipientRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Recipient, models.RecipientFilter](db),
	}
}

// ByPlatformMessageID finds the recipient a platform callback refers to
func (r *RecipientRepositoryImpl) ByPlatformMessageID(ctx context.Context, platformMessageID string) (*models.Recipient, error) {
	db := r.getDB(ctx)
	var recipient models.Recipient
	err := db.Where("platform_message_id = ?", platformMessageID).Last(&recipient).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find recipient by platform message id %s: %w", platformMessageID, err)
	}
	return &recipient, nil
}

func (r *RecipientRepositoryImpl) applyFilter(db *gorm.DB, f models.RecipientFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.CampaignID != nil {
		db = db.Where("campaign_id = ?", *f.CampaignID)
	}
	if f.Phone != nil {
		db = db.Where("phone = ?", *f.Phone)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.PlatformMessageID != nil {
		db = db.Where("platform_message_id = ?", *f.PlatformMessageID)
	}
	return db
}

// ByFilter retrieves recipients based on filter criteria
func (r *RecipientRepositoryImpl) ByFilter(ctx context.Context, filter models.RecipientFilter, orderBy string, limit, offset int) ([]*models.Recipient, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Recipient{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var recipients []*models.Recipient
	if err := query.Find(&recipients).Error; err != nil {
		return nil, fmt.Errorf("failed to find recipients by filter: %w", err)
	}
	return recipients, nil
}

// ListAdmissible returns up to limit pending recipients of the campaign, oldest first
func (r *RecipientRepositoryImpl) ListAdmissible(ctx context.Context, campaignID uint, limit int) ([]*models.Recipient, error) {
	pending := models.RecipientStatusPending
	return r.ByFilter(ctx, models.RecipientFilter{CampaignID: &campaignID, Status: &pending}, "id ASC", limit, 0)
}

// ListStaleQueued returns queued recipients abandoned before their send went out
func (r *RecipientRepositoryImpl) ListStaleQueued(ctx context.Context, campaignID uint, olderThan time.Time, limit int) ([]*models.Recipient, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Recipient{}).
		Where("campaign_id = ? AND status = ? AND queued_at < ?", campaignID, models.RecipientStatusQueued, olderThan).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var recipients []*models.Recipient
	if err := query.Find(&recipients).Error; err != nil {
		return nil, fmt.Errorf("failed to find stale queued recipients of campaign %d: %w", campaignID, err)
	}
	return recipients, nil
}

// Transition performs a compare-and-swap status transition on a single recipient row.
// The WHERE guard on the current status is what prevents two workers from
// double-sending the same recipient.
func (r *RecipientRepositoryImpl) Transition(ctx context.Context, id uint, from, to models.RecipientStatus, upd RecipientUpdate) (bool, error) {
	db := r.getDB(ctx)

	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	if upd.PlatformMessageID != nil {
		updates["platform_message_id"] = *upd.PlatformMessageID
	}
	if upd.FailureReason != nil {
		updates["failure_reason"] = *upd.FailureReason
	}
	if upd.AttemptCount != nil {
		updates["attempt_count"] = *upd.AttemptCount
	}
	if upd.QueuedAt != nil {
		updates["queued_at"] = *upd.QueuedAt
	}
	if upd.SentAt != nil {
		updates["sent_at"] = *upd.SentAt
	}
	if upd.DeliveredAt != nil {
		updates["delivered_at"] = *upd.DeliveredAt
	}
	if upd.ReadAt != nil {
		updates["read_at"] = *upd.ReadAt
	}
	if upd.TerminalAt != nil {
		updates["terminal_at"] = *upd.TerminalAt
	}
	if upd.LastEventAt != nil {
		updates["last_event_at"] = *upd.LastEventAt
	}

	res := db.Model(&models.Recipient{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to transition recipient %d %s -> %s: %w", id, from, to, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// TransitionAll bulk-moves recipients of a campaign out of the given statuses
func (r *RecipientRepositoryImpl) TransitionAll(ctx context.Context, campaignID uint, from []models.RecipientStatus, to models.RecipientStatus, reason string, terminalAt time.Time) (int64, error) {
	db := r.getDB(ctx)

	res := db.Model(&models.Recipient{}).
		Where("campaign_id = ? AND status IN ?", campaignID, from).
		Updates(map[string]any{
			"status":         to,
			"failure_reason": reason,
			"terminal_at":    terminalAt,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to bulk transition recipients of campaign %d: %w", campaignID, res.Error)
	}
	return res.RowsAffected, nil
}

// Histogram returns the mutually exclusive status bucket counts for the campaign
func (r *RecipientRepositoryImpl) Histogram(ctx context.Context, campaignID uint) (models.Histogram, error) {
	db := r.getDB(ctx)

	var rows []struct {
		Status models.RecipientStatus
		Count  uint
	}
	err := db.Model(&models.Recipient{}).
		Select("status, COUNT(*) AS count").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return models.Histogram{}, fmt.Errorf("failed to compute histogram for campaign %d: %w", campaignID, err)
	}

	var hist models.Histogram
	for _, row := range rows {
		if bucket := hist.Bucket(row.Status); bucket != nil {
			*bucket = row.Count
		}
	}
	return hist, nil
}
