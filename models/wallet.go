package models

import (
	"time"

	"github.com/blastline/blastline-backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Wallet tracks a customer's message credit balance. One credit pays for one
// recipient send. Reserving moves credits free -> reserved, consuming moves
// reserved -> used, releasing moves reserved -> free. All three movements are
// serialized per customer by the repository, so concurrent reservations can
// never oversubscribe the free balance.
type Wallet struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_wallets_uuid" json:"uuid"`
	CustomerID uint      `gorm:"not null;uniqueIndex:uk_wallets_customer_id" json:"customer_id"`

	FreeCredits     uint `gorm:"not null;default:0" json:"free_credits"`
	ReservedCredits uint `gorm:"not null;default:0" json:"reserved_credits"`
	UsedCredits     uint `gorm:"not null;default:0" json:"used_credits"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	Reservations []CreditReservation `gorm:"foreignKey:WalletID" json:"reservations,omitempty"`
}

// TableName returns the table name for the model
func (Wallet) TableName() string {
	return "wallets"
}

// BeforeCreate is called before creating a new record
func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	if w.UUID == uuid.Nil {
		w.UUID = uuid.New()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (w *Wallet) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	w.UpdatedAt = &now
	return nil
}

// CanReserve checks whether the free balance covers the requested amount
func (w *Wallet) CanReserve(amount uint) bool {
	return w.FreeCredits >= amount
}

// WalletFilter represents filter criteria for wallet queries
type WalletFilter struct {
	ID         *uint      `json:"id,omitempty"`
	UUID       *uuid.UUID `json:"uuid,omitempty"`
	CustomerID *uint      `json:"customer_id,omitempty"`
}
