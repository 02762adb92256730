package models

import (
	"database/sql/driver"
	"fmt"
	"math"
	"time"

	"github.com/blastline/blastline-backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CampaignStatus represents the lifecycle status of a campaign
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusFailed    CampaignStatus = "failed"
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

// String returns the string representation of the status
func (s CampaignStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusScheduled, CampaignStatusRunning,
		CampaignStatusPaused, CampaignStatusCompleted, CampaignStatusFailed,
		CampaignStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal checks if the status is a final state
func (s CampaignStatus) IsTerminal() bool {
	switch s {
	case CampaignStatusCompleted, CampaignStatusFailed, CampaignStatusCancelled:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for CampaignStatus
func (s *CampaignStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = CampaignStatus(v)
	case []byte:
		*s = CampaignStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for CampaignStatus
func (s CampaignStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CampaignStatus: %s", s)
	}
	return string(s), nil
}

// Campaign represents a bulk send operation against a list of contacts using one template.
// The four *Count fields are high-water-mark counters: each counts recipients that have
// reached at least that pipeline stage, so sent_count >= delivered_count >= read_count
// at all times. The mutually exclusive current-state view lives on Recipient rows.
type Campaign struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uk_campaigns_uuid" json:"uuid"`
	CustomerID uint           `gorm:"not null;index:idx_campaigns_customer_id" json:"customer_id"`
	ChannelID  uint           `gorm:"not null;index:idx_campaigns_channel_id" json:"channel_id"`
	TemplateID uint           `gorm:"not null" json:"template_id"`
	Name       string         `gorm:"size:200;not null" json:"name"`
	Status     CampaignStatus `gorm:"type:campaign_status;not null;default:'draft';index:idx_campaigns_status" json:"status"`

	TotalRecipients uint `gorm:"not null;default:0" json:"total_recipients"`
	SentCount       uint `gorm:"not null;default:0" json:"sent_count"`
	DeliveredCount  uint `gorm:"not null;default:0" json:"delivered_count"`
	ReadCount       uint `gorm:"not null;default:0" json:"read_count"`
	FailedCount     uint `gorm:"not null;default:0" json:"failed_count"`
	CreditsReserved uint `gorm:"not null;default:0" json:"credits_reserved"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_campaigns_created_at" json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`

	// Relations
	Channel  *Channel  `gorm:"foreignKey:ChannelID;references:ID" json:"channel,omitempty"`
	Template *Template `gorm:"foreignKey:TemplateID;references:ID" json:"template,omitempty"`
}

// TableName returns the table name for the model
func (Campaign) TableName() string {
	return "campaigns"
}

// BeforeCreate is called before creating a new record
func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = CampaignStatusDraft
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (c *Campaign) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	c.UpdatedAt = &now
	return nil
}

// CanTransitionTo checks if the campaign can transition to the given status.
// Cancellation is allowed from every non-terminal state.
func (c *Campaign) CanTransitionTo(newStatus CampaignStatus) bool {
	if newStatus == CampaignStatusCancelled {
		return !c.Status.IsTerminal()
	}

	switch c.Status {
	case CampaignStatusDraft:
		return newStatus == CampaignStatusScheduled
	case CampaignStatusScheduled:
		return newStatus == CampaignStatusRunning
	case CampaignStatusRunning:
		return newStatus == CampaignStatusPaused ||
			newStatus == CampaignStatusCompleted ||
			newStatus == CampaignStatusFailed
	case CampaignStatusPaused:
		return newStatus == CampaignStatusRunning
	default:
		return false
	}
}

// IsDispatchable checks if the dispatcher may admit recipients for this campaign
func (c *Campaign) IsDispatchable() bool {
	return c.Status == CampaignStatusRunning
}

// ProgressPercent returns the sending progress as a rounded percentage, clamped
// to [0, 100]. Campaigns with no recipients report 0.
func (c *Campaign) ProgressPercent() int {
	if c.TotalRecipients == 0 {
		return 0
	}
	pct := int(math.Round(float64(c.SentCount) / float64(c.TotalRecipients) * 100))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// CampaignFilter represents filter criteria for campaigns
type CampaignFilter struct {
	ID            *uint           `json:"id,omitempty"`
	UUID          *uuid.UUID      `json:"uuid,omitempty"`
	CustomerID    *uint           `json:"customer_id,omitempty"`
	ChannelID     *uint           `json:"channel_id,omitempty"`
	Status        *CampaignStatus `json:"status,omitempty"`
	Name          *string         `json:"name,omitempty"`
	CreatedAfter  *time.Time      `json:"created_after,omitempty"`
	CreatedBefore *time.Time      `json:"created_before,omitempty"`
}
