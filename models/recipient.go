package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/blastline/blastline-backend/utils"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// RecipientStatus represents the current delivery state of a recipient.
// A recipient is in exactly one status at any instant; the per-campaign
// distribution over these buckets is the histogram view.
type RecipientStatus string

const (
	RecipientStatusPending   RecipientStatus = "pending"
	RecipientStatusQueued    RecipientStatus = "queued"
	RecipientStatusSent      RecipientStatus = "sent"
	RecipientStatusDelivered RecipientStatus = "delivered"
	RecipientStatusRead      RecipientStatus = "read"
	RecipientStatusFailed    RecipientStatus = "failed"
	RecipientStatusSkipped   RecipientStatus = "skipped"
)

// Failure/skip reasons recorded on terminal recipients
const (
	ReasonSendRetriesExhausted = "send_retries_exhausted"
	ReasonCampaignCancelled    = "campaign_cancelled"
	ReasonChannelRevoked       = "channel_revoked"
	ReasonInvalidContact       = "invalid_contact"
	ReasonContactOptedOut      = "contact_opted_out"
	ReasonDuplicateContact     = "duplicate_contact"
	ReasonPlatformRejected     = "platform_rejected"
	ReasonDeliveryFailed       = "delivery_failed"
)

// String returns the string representation of the status
func (s RecipientStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s RecipientStatus) Valid() bool {
	switch s {
	case RecipientStatusPending, RecipientStatusQueued, RecipientStatusSent,
		RecipientStatusDelivered, RecipientStatusRead, RecipientStatusFailed,
		RecipientStatusSkipped:
		return true
	default:
		return false
	}
}

// IsTerminal checks if the status is a final state
func (s RecipientStatus) IsTerminal() bool {
	return s == RecipientStatusFailed || s == RecipientStatusSkipped
}

// DoneSending reports whether the recipient no longer needs dispatching.
// Sent and beyond count as done; delivery and read are refinements.
func (s RecipientStatus) DoneSending() bool {
	switch s {
	case RecipientStatusSent, RecipientStatusDelivered, RecipientStatusRead,
		RecipientStatusFailed, RecipientStatusSkipped:
		return true
	default:
		return false
	}
}

// Rank returns the position of the status in the forward delivery chain
// pending < queued < sent < delivered < read. Terminal statuses have no rank.
func (s RecipientStatus) Rank() int {
	switch s {
	case RecipientStatusPending:
		return 0
	case RecipientStatusQueued:
		return 1
	case RecipientStatusSent:
		return 2
	case RecipientStatusDelivered:
		return 3
	case RecipientStatusRead:
		return 4
	default:
		return -1
	}
}

// CanTransitionTo checks whether newStatus is reachable from s in one step.
// The transition graph is a DAG with no backward edges: the only forward chain
// is pending -> queued -> sent -> delivered -> read; pending and queued may
// instead go terminal, and sent may go failed via an explicit failure callback.
// Delivery callbacks may skip stages (a read callback can arrive for a sent
// recipient), so any strictly higher rank is a legal jump.
func (s RecipientStatus) CanTransitionTo(newStatus RecipientStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if newStatus == RecipientStatusFailed {
		return true
	}
	if newStatus == RecipientStatusSkipped {
		return s == RecipientStatusPending || s == RecipientStatusQueued
	}
	return newStatus.Rank() > s.Rank()
}

// Scan implements the sql.Scanner interface for RecipientStatus
func (s *RecipientStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = RecipientStatus(v)
	case []byte:
		*s = RecipientStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into RecipientStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for RecipientStatus
func (s RecipientStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid RecipientStatus: %s", s)
	}
	return string(s), nil
}

// Recipient is the per-contact tracking row within a campaign. Rows are created
// in bulk at campaign creation and are never deleted, only transitioned.
type Recipient struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uk_recipients_uuid" json:"uuid"`
	CampaignID uint            `gorm:"not null;index:idx_recipients_campaign_id;uniqueIndex:uk_recipients_campaign_phone,priority:1" json:"campaign_id"`
	ChannelID  uint            `gorm:"not null" json:"channel_id"`
	Phone      string          `gorm:"size:20;not null;uniqueIndex:uk_recipients_campaign_phone,priority:2" json:"phone"`
	Variables  pq.StringArray  `gorm:"type:text[]" json:"variables"`
	Status     RecipientStatus `gorm:"type:recipient_status;not null;default:'pending';index:idx_recipients_status" json:"status"`

	// Assigned by the platform at sent time, stable afterwards
	PlatformMessageID *string `gorm:"size:128;index:idx_recipients_platform_message_id" json:"platform_message_id,omitempty"`

	FailureReason *string `gorm:"size:100" json:"failure_reason,omitempty"`

	// Persisted so a restart resumes retry counting instead of resetting it
	AttemptCount int `gorm:"not null;default:0" json:"attempt_count"`

	QueuedAt    *time.Time `json:"queued_at,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	TerminalAt  *time.Time `json:"terminal_at,omitempty"`

	// Watermark of the last applied platform callback, used to drop stale events
	LastEventAt *time.Time `json:"last_event_at,omitempty"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (Recipient) TableName() string {
	return "recipients"
}

// BeforeCreate is called before creating a new record
func (r *Recipient) BeforeCreate(tx *gorm.DB) error {
	if r.UUID == uuid.Nil {
		r.UUID = uuid.New()
	}
	if r.Status == "" {
		r.Status = RecipientStatusPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (r *Recipient) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	r.UpdatedAt = &now
	return nil
}

// RecipientFilter represents filter criteria for recipients
type RecipientFilter struct {
	ID                *uint            `json:"id,omitempty"`
	UUID              *uuid.UUID       `json:"uuid,omitempty"`
	CampaignID        *uint            `json:"campaign_id,omitempty"`
	Phone             *string          `json:"phone,omitempty"`
	Status            *RecipientStatus `json:"status,omitempty"`
	PlatformMessageID *string          `json:"platform_message_id,omitempty"`
}

// Histogram is the mutually exclusive current-state bucket distribution over the
// recipients of one campaign. Buckets always sum to the campaign's total.
type Histogram struct {
	Pending   uint `json:"pending"`
	Queued    uint `json:"queued"`
	Sent      uint `json:"sent"`
	Delivered uint `json:"delivered"`
	Read      uint `json:"read"`
	Failed    uint `json:"failed"`
	Skipped   uint `json:"skipped"`
}

// Total returns the sum over all buckets
func (h Histogram) Total() uint {
	return h.Pending + h.Queued + h.Sent + h.Delivered + h.Read + h.Failed + h.Skipped
}

// Remaining returns the number of recipients the dispatcher still owes work for
func (h Histogram) Remaining() uint {
	return h.Pending + h.Queued
}

// Bucket returns a pointer to the bucket counter for the given status
func (h *Histogram) Bucket(s RecipientStatus) *uint {
	switch s {
	case RecipientStatusPending:
		return &h.Pending
	case RecipientStatusQueued:
		return &h.Queued
	case RecipientStatusSent:
		return &h.Sent
	case RecipientStatusDelivered:
		return &h.Delivered
	case RecipientStatusRead:
		return &h.Read
	case RecipientStatusFailed:
		return &h.Failed
	case RecipientStatusSkipped:
		return &h.Skipped
	default:
		return nil
	}
}
