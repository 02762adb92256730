package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/blastline/blastline-backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WalletRepositoryImpl implements WalletRepository
type WalletRepositoryImpl struct {
	*BaseRepository[models.Wallet, models.WalletFilter]
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *gorm.DB) WalletRepository {
	return &WalletRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Wallet, models.WalletFilter](db),
	}
}

// ByCustomerID finds a wallet by customer ID
func (r *WalletRepositoryImpl) ByCustomerID(ctx context.Context, customerID uint) (*models.Wallet, error) {
	db := r.getDB(ctx)
	var wallet models.Wallet
	err := db.Where("customer_id = ?", customerID).Last(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find wallet for customer %d: %w", customerID, err)
	}
	return &wallet, nil
}

// ByCustomerIDForUpdate loads the wallet under SELECT ... FOR UPDATE. Must be
// called inside a transaction; the row lock serializes concurrent reservation
// decisions for the same customer.
func (r *WalletRepositoryImpl) ByCustomerIDForUpdate(ctx context.Context, customerID uint) (*models.Wallet, error) {
	db := r.getDB(ctx)
	var wallet models.Wallet
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("customer_id = ?", customerID).
		Last(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock wallet for customer %d: %w", customerID, err)
	}
	return &wallet, nil
}

// AdjustBalances atomically applies signed credit movements to the wallet
func (r *WalletRepositoryImpl) AdjustBalances(ctx context.Context, walletID uint, freeDelta, reservedDelta, usedDelta int64) error {
	db := r.getDB(ctx)

	updates := map[string]any{}
	if freeDelta != 0 {
		updates["free_credits"] = gorm.Expr("free_credits + ?", freeDelta)
	}
	if reservedDelta != 0 {
		updates["reserved_credits"] = gorm.Expr("reserved_credits + ?", reservedDelta)
	}
	if usedDelta != 0 {
		updates["used_credits"] = gorm.Expr("used_credits + ?", usedDelta)
	}
	if len(updates) == 0 {
		return nil
	}

	err := db.Model(&models.Wallet{}).Where("id = ?", walletID).Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to adjust balances of wallet %d: %w", walletID, err)
	}
	return nil
}
