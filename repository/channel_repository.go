package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blastline/blastline-backend/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChannelRepositoryImpl implements ChannelRepository
type ChannelRepositoryImpl struct {
	*BaseRepository[models.Channel, models.ChannelFilter]
}

// NewChannelRepository creates a new channel repository
func NewChannelRepository(db *gorm.DB) ChannelRepository {
	return &ChannelRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Channel, models.ChannelFilter](db),
	}
}

// ByUUID finds a channel by UUID
func (r *ChannelRepositoryImpl) ByUUID(ctx context.Context, id uuid.UUID) (*models.Channel, error) {
	db := r.getDB(ctx)
	var channel models.Channel
	err := db.Where("uuid = ?", id).Last(&channel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find channel by UUID %s: %w", id, err)
	}
	return &channel, nil
}

// UpdateStatus sets the channel's operational status
func (r *ChannelRepositoryImpl) UpdateStatus(ctx context.Context, id uint, status models.ChannelStatus) error {
	db := r.getDB(ctx)
	err := db.Model(&models.Channel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update channel %d status: %w", id, err)
	}
	return nil
}
