package models

import (
	"time"

	"github.com/blastline/blastline-backend/utils"
	"gorm.io/gorm"
)

// DeliveryEvent is an audit row recorded for every platform callback that was
// accepted by the status ingestor. Stale and duplicate callbacks are dropped
// before this table is written, so the rows per recipient are strictly forward.
type DeliveryEvent struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	RecipientID       uint            `gorm:"not null;index:idx_delivery_events_recipient_id" json:"recipient_id"`
	CampaignID        uint            `gorm:"not null;index:idx_delivery_events_campaign_id" json:"campaign_id"`
	PlatformMessageID string          `gorm:"size:128;not null;index:idx_delivery_events_platform_message_id" json:"platform_message_id"`
	Status            RecipientStatus `gorm:"type:recipient_status;not null" json:"status"`
	EventAt           time.Time       `gorm:"not null" json:"event_at"`
	CreatedAt         time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
}

// TableName returns the table name for the model
func (DeliveryEvent) TableName() string {
	return "delivery_events"
}

// BeforeCreate is called before creating a new record
func (e *DeliveryEvent) BeforeCreate(tx *gorm.DB) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = utils.UTCNow()
	}
	return nil
}

// DeliveryEventFilter represents filter criteria for delivery event queries
type DeliveryEventFilter struct {
	ID                *uint            `json:"id,omitempty"`
	RecipientID       *uint            `json:"recipient_id,omitempty"`
	CampaignID        *uint            `json:"campaign_id,omitempty"`
	PlatformMessageID *string          `json:"platform_message_id,omitempty"`
	Status            *RecipientStatus `json:"status,omitempty"`
}

// ButtonClick records an interactive button press reported by the platform for
// a delivered message. Clicks never alter the recipient's delivery status.
type ButtonClick struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	RecipientID       uint      `gorm:"not null;index:idx_button_clicks_recipient_id" json:"recipient_id"`
	CampaignID        uint      `gorm:"not null;index:idx_button_clicks_campaign_id" json:"campaign_id"`
	TemplateID        uint      `gorm:"not null" json:"template_id"`
	PlatformMessageID string    `gorm:"size:128;not null" json:"platform_message_id"`
	Phone             string    `gorm:"size:20;not null" json:"phone"`
	ButtonID          string    `gorm:"size:100;not null" json:"button_id"`
	ButtonText        *string   `gorm:"size:255" json:"button_text,omitempty"`
	ClickedAt         time.Time `gorm:"not null" json:"clicked_at"`
	CreatedAt         time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
}

// TableName returns the table name for the model
func (ButtonClick) TableName() string {
	return "button_clicks"
}

// BeforeCreate is called before creating a new record
func (b *ButtonClick) BeforeCreate(tx *gorm.DB) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = utils.UTCNow()
	}
	return nil
}

// ButtonClickFilter represents filter criteria for button click queries
type ButtonClickFilter struct {
	ID          *uint   `json:"id,omitempty"`
	RecipientID *uint   `json:"recipient_id,omitempty"`
	CampaignID  *uint   `json:"campaign_id,omitempty"`
	ButtonID    *string `json:"button_id,omitempty"`
}
