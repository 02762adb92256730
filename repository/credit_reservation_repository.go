package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blastline/blastline-backend/models"
	"gorm.io/gorm"
)

// CreditReservationRepositoryImpl implements CreditReservationRepository
type CreditReservationRepositoryImpl struct {
	*BaseRepository[models.CreditReservation, models.CreditReservationFilter]
}

// NewCreditReservationRepository creates a new credit reservation repository
func NewCreditReservationRepository(db *gorm.DB) CreditReservationRepository {
	return &CreditReservationRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CreditReservation, models.CreditReservationFilter](db),
	}
}

// ByCampaignID finds the reservation backing a campaign
func (r *CreditReservationRepositoryImpl) ByCampaignID(ctx context.Context, campaignID uint) (*models.CreditReservation, error) {
	db := r.getDB(ctx)
	var reservation models.CreditReservation
	err := db.Where("campaign_id = ?", campaignID).Last(&reservation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find reservation for campaign %d: %w", campaignID, err)
	}
	return &reservation, nil
}

// AddConsumed moves units from outstanding to consumed. The WHERE guard keeps
// consumed+released within the reserved amount under concurrent callers.
func (r *CreditReservationRepositoryImpl) AddConsumed(ctx context.Context, id uint, units uint) (bool, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.CreditReservation{}).
		Where("id = ? AND consumed + released + ? <= amount", id, units).
		Updates(map[string]any{
			"consumed":   gorm.Expr("consumed + ?", units),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to consume %d units of reservation %d: %w", units, id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// AddReleased moves units from outstanding back to released
func (r *CreditReservationRepositoryImpl) AddReleased(ctx context.Context, id uint, units uint) (bool, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.CreditReservation{}).
		Where("id = ? AND consumed + released + ? <= amount", id, units).
		Updates(map[string]any{
			"released":   gorm.Expr("released + ?", units),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to release %d units of reservation %d: %w", units, id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Settle marks the reservation settled once fully consumed or released
func (r *CreditReservationRepositoryImpl) Settle(ctx context.Context, id uint) error {
	db := r.getDB(ctx)
	err := db.Model(&models.CreditReservation{}).
		Where("id = ? AND consumed + released = amount", id).
		Updates(map[string]any{
			"status":     models.ReservationStatusSettled,
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to settle reservation %d: %w", id, err)
	}
	return nil
}
