package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/blastline/blastline-backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TemplateStatus represents the platform approval state of a message template.
// Template authoring and the third-party approval workflow live outside this
// service; campaigns only need to know whether a template is sendable.
type TemplateStatus string

const (
	TemplateStatusPending  TemplateStatus = "pending"
	TemplateStatusApproved TemplateStatus = "approved"
	TemplateStatusRejected TemplateStatus = "rejected"
)

// Valid checks if the status is valid
func (s TemplateStatus) Valid() bool {
	switch s {
	case TemplateStatusPending, TemplateStatusApproved, TemplateStatusRejected:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for TemplateStatus
func (s *TemplateStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = TemplateStatus(v)
	case []byte:
		*s = TemplateStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into TemplateStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for TemplateStatus
func (s TemplateStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid TemplateStatus: %s", s)
	}
	return string(s), nil
}

// Template mirrors a platform-registered message template. Variables are
// position-keyed: a body with {{1}}..{{n}} placeholders expects n values per
// recipient.
type Template struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_templates_uuid" json:"uuid"`

	Name          string         `gorm:"size:200;not null" json:"name"`
	Language      string         `gorm:"size:10;not null;default:'en'" json:"language"`
	Body          string         `gorm:"type:text;not null" json:"body"`
	VariableCount int            `gorm:"not null;default:0" json:"variable_count"`
	Status        TemplateStatus `gorm:"type:template_status;not null;default:'pending';index:idx_templates_status" json:"status"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (Template) TableName() string {
	return "templates"
}

// BeforeCreate is called before creating a new record
func (t *Template) BeforeCreate(tx *gorm.DB) error {
	if t.UUID == uuid.Nil {
		t.UUID = uuid.New()
	}
	if t.Status == "" {
		t.Status = TemplateStatusPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (t *Template) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	t.UpdatedAt = &now
	return nil
}

// IsSendable checks if the template may be used for outbound sends
func (t *Template) IsSendable() bool {
	return t.Status == TemplateStatusApproved
}

// TemplateFilter represents filter criteria for template queries
type TemplateFilter struct {
	ID       *uint           `json:"id,omitempty"`
	UUID     *uuid.UUID      `json:"uuid,omitempty"`
	Name     *string         `json:"name,omitempty"`
	Language *string         `json:"language,omitempty"`
	Status   *TemplateStatus `json:"status,omitempty"`
}
