package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/blastline/blastline-backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChannelStatus represents the operational state of a sending channel
type ChannelStatus string

const (
	ChannelStatusActive    ChannelStatus = "active"
	ChannelStatusSuspended ChannelStatus = "suspended"
	ChannelStatusRevoked   ChannelStatus = "revoked"
)

// Valid checks if the status is valid
func (s ChannelStatus) Valid() bool {
	switch s {
	case ChannelStatusActive, ChannelStatusSuspended, ChannelStatusRevoked:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for ChannelStatus
func (s *ChannelStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = ChannelStatus(v)
	case []byte:
		*s = ChannelStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ChannelStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for ChannelStatus
func (s ChannelStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid ChannelStatus: %s", s)
	}
	return string(s), nil
}

// Channel represents a sending phone channel registered with the messaging
// platform. MessagesPerSecond is the throughput ceiling the dispatcher enforces
// as admission control for this channel.
type Channel struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_channels_uuid" json:"uuid"`
	CustomerID uint      `gorm:"not null;index:idx_channels_customer_id" json:"customer_id"`

	PhoneNumber string        `gorm:"size:20;not null;uniqueIndex:uk_channels_phone_number" json:"phone_number"`
	DisplayName *string       `gorm:"size:255" json:"display_name,omitempty"`
	Status      ChannelStatus `gorm:"type:channel_status;not null;default:'active';index:idx_channels_status" json:"status"`

	MessagesPerSecond int `gorm:"not null;default:10" json:"messages_per_second"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_channels_created_at" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (Channel) TableName() string {
	return "channels"
}

// BeforeCreate is called before creating a new record
func (c *Channel) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = ChannelStatusActive
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (c *Channel) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	c.UpdatedAt = &now
	return nil
}

// IsSendable checks if the channel may be used for outbound sends
func (c *Channel) IsSendable() bool {
	return c.Status == ChannelStatusActive
}

// ChannelFilter represents filter criteria for channel queries
type ChannelFilter struct {
	ID          *uint          `json:"id,omitempty"`
	UUID        *uuid.UUID     `json:"uuid,omitempty"`
	CustomerID  *uint          `json:"customer_id,omitempty"`
	PhoneNumber *string        `json:"phone_number,omitempty"`
	Status      *ChannelStatus `json:"status,omitempty"`
}
