package repository

import (
	"context"
	"fmt"

	"github.com/blastline/blastline-backend/models"
	"gorm.io/gorm"
)

// DeliveryEventRepositoryImpl implements DeliveryEventRepository
type DeliveryEventRepositoryImpl struct {
	*BaseRepository[models.DeliveryEvent, models.DeliveryEventFilter]
}

// NewDeliveryEventRepository creates a new delivery event repository
func NewDeliveryEventRepository(db *gorm.DB) DeliveryEventRepository {
	return &DeliveryEventRepositoryImpl{
		BaseRepository: NewBaseRepository[models.DeliveryEvent, models.DeliveryEventFilter](db),
	}
}

// ListByRecipient returns the accepted callbacks for a recipient, oldest first
func (r *DeliveryEventRepositoryImpl) ListByRecipient(ctx context.Context, recipientID uint) ([]*models.DeliveryEvent, error) {
	db := r.getDB(ctx)
	var events []*models.DeliveryEvent
	err := db.Where("recipient_id = ?", recipientID).Order("id ASC").Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery events for recipient %d: %w", recipientID, err)
	}
	return events, nil
}

// ButtonClickRepositoryImpl implements ButtonClickRepository
type ButtonClickRepositoryImpl struct {
	*BaseRepository[models.ButtonClick, models.ButtonClickFilter]
}

// NewButtonClickRepository creates a new button click repository
func NewButtonClickRepository(db *gorm.DB) ButtonClickRepository {
	return &ButtonClickRepositoryImpl{
		BaseRepository: NewBaseRepository[models.ButtonClick, models.ButtonClickFilter](db),
	}
}

// ListByCampaign returns recorded button clicks for a campaign, newest first
func (r *ButtonClickRepositoryImpl) ListByCampaign(ctx context.Context, campaignID uint, limit, offset int) ([]*models.ButtonClick, error) {
	db := r.getDB(ctx)
	query := db.Where("campaign_id = ?", campaignID).Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var clicks []*models.ButtonClick
	if err := query.Find(&clicks).Error; err != nil {
		return nil, fmt.Errorf("failed to list button clicks for campaign %d: %w", campaignID, err)
	}
	return clicks, nil
}
