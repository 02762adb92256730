package dto

import "time"

// ContactInput is one contact of a create-campaign request. Variables are
// position-keyed template values; missing positions fall back to the
// campaign-level defaults.
type ContactInput struct {
	Phone     string   `json:"phone" validate:"required,min=7,max=20"`
	Variables []string `json:"variables,omitempty" validate:"omitempty,dive,max=500"`
}

// CreateCampaignRequest represents a campaign creation request
type CreateCampaignRequest struct {
	CustomerID uint           `json:"-"` // set from the authenticated boundary, not the body
	ChannelID  string         `json:"channel_id" validate:"required,uuid4"`
	TemplateID string         `json:"template_id" validate:"required,uuid4"`
	Name       string         `json:"name" validate:"required,min=1,max=200"`
	AutoStart  *bool          `json:"auto_start,omitempty"`
	Contacts   []ContactInput `json:"contacts" validate:"required,min=1,max=100000,dive"`
}

// CreateCampaignResponse represents a campaign creation response
type CreateCampaignResponse struct {
	UUID            string `json:"uuid"`
	Status          string `json:"status"`
	TotalRecipients uint   `json:"total_recipients"`
	CreditsReserved uint   `json:"credits_reserved"`
	CreatedAt       string `json:"created_at"`
}

// HistogramDTO is the mutually exclusive recipient bucket distribution
type HistogramDTO struct {
	Pending   uint `json:"pending"`
	Queued    uint `json:"queued"`
	Sent      uint `json:"sent"`
	Delivered uint `json:"delivered"`
	Read      uint `json:"read"`
	Failed    uint `json:"failed"`
	Skipped   uint `json:"skipped"`
}

// CampaignStatusResponse represents a campaign status read
type CampaignStatusResponse struct {
	UUID            string       `json:"uuid"`
	Name            string       `json:"name"`
	Status          string       `json:"status"`
	TotalRecipients uint         `json:"total_recipients"`
	SentCount       uint         `json:"sent_count"`
	DeliveredCount  uint         `json:"delivered_count"`
	ReadCount       uint         `json:"read_count"`
	FailedCount     uint         `json:"failed_count"`
	CreditsReserved uint         `json:"credits_reserved"`
	ProgressPercent int          `json:"progress_percent"`
	Histogram       HistogramDTO `json:"histogram"`
	StartedAt       *time.Time   `json:"started_at,omitempty"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// ListCampaignsRequest represents a paginated campaign list request
type ListCampaignsRequest struct {
	CustomerID uint    `json:"-"`
	Page       int     `json:"page" validate:"omitempty,min=1"`
	PageSize   int     `json:"page_size" validate:"omitempty,min=1,max=100"`
	Status     *string `json:"status,omitempty" validate:"omitempty,oneof=draft scheduled running paused completed failed cancelled"`
}

// CampaignSummaryDTO is one row of a campaign list
type CampaignSummaryDTO struct {
	UUID            string    `json:"uuid"`
	Name            string    `json:"name"`
	Status          string    `json:"status"`
	TotalRecipients uint      `json:"total_recipients"`
	SentCount       uint      `json:"sent_count"`
	ProgressPercent int       `json:"progress_percent"`
	CreatedAt       time.Time `json:"created_at"`
}

// ListCampaignsResponse represents a paginated campaign list
type ListCampaignsResponse struct {
	Campaigns  []CampaignSummaryDTO `json:"campaigns"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
	TotalCount int64                `json:"total_count"`
	TotalPages int                  `json:"total_pages"`
}

// ImportContactsResponse represents the result of a contact sheet upload
type ImportContactsResponse struct {
	Contacts []ContactInput `json:"contacts"`
	Total    int            `json:"total"`
}
