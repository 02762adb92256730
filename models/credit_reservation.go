package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/blastline/blastline-backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReservationStatus represents the lifecycle of a credit reservation
type ReservationStatus string

const (
	ReservationStatusActive  ReservationStatus = "active"
	ReservationStatusSettled ReservationStatus = "settled"
)

// Valid checks if the status is valid
func (s ReservationStatus) Valid() bool {
	return s == ReservationStatusActive || s == ReservationStatusSettled
}

// Scan implements the sql.Scanner interface for ReservationStatus
func (s *ReservationStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = ReservationStatus(v)
	case []byte:
		*s = ReservationStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ReservationStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for ReservationStatus
func (s ReservationStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid ReservationStatus: %s", s)
	}
	return string(s), nil
}

// CreditReservation is the ledger entry tying a campaign to a reserved credit
// amount. The amount is held out of the wallet's free balance at creation time.
// Units are consumed (made permanent) one by one as recipients are actually sent
// and released back for recipients that end up skipped or failed, so
// consumed + released == amount once the campaign is terminal.
type CreditReservation struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:uk_credit_reservations_uuid" json:"uuid"`
	WalletID   uint              `gorm:"not null;index:idx_credit_reservations_wallet_id" json:"wallet_id"`
	CustomerID uint              `gorm:"not null;index:idx_credit_reservations_customer_id" json:"customer_id"`
	CampaignID uint              `gorm:"not null;uniqueIndex:uk_credit_reservations_campaign_id" json:"campaign_id"`
	Amount     uint              `gorm:"not null" json:"amount"`
	Consumed   uint              `gorm:"not null;default:0" json:"consumed"`
	Released   uint              `gorm:"not null;default:0" json:"released"`
	Status     ReservationStatus `gorm:"type:reservation_status;not null;default:'active'" json:"status"`
	CreatedAt  time.Time         `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt  *time.Time        `json:"updated_at,omitempty"`

	Wallet *Wallet `gorm:"foreignKey:WalletID;references:ID" json:"wallet,omitempty"`
}

// TableName returns the table name for the model
func (CreditReservation) TableName() string {
	return "credit_reservations"
}

// BeforeCreate is called before creating a new record
func (r *CreditReservation) BeforeCreate(tx *gorm.DB) error {
	if r.UUID == uuid.Nil {
		r.UUID = uuid.New()
	}
	if r.Status == "" {
		r.Status = ReservationStatusActive
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (r *CreditReservation) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	r.UpdatedAt = &now
	return nil
}

// Outstanding returns the number of reserved units not yet consumed or released
func (r *CreditReservation) Outstanding() uint {
	return r.Amount - r.Consumed - r.Released
}

// CreditReservationFilter represents filter criteria for credit reservations
type CreditReservationFilter struct {
	ID         *uint              `json:"id,omitempty"`
	UUID       *uuid.UUID         `json:"uuid,omitempty"`
	WalletID   *uint              `json:"wallet_id,omitempty"`
	CustomerID *uint              `json:"customer_id,omitempty"`
	CampaignID *uint              `json:"campaign_id,omitempty"`
	Status     *ReservationStatus `json:"status,omitempty"`
}
