// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/blastline/blastline-backend/models"
	"github.com/google/uuid"
)

// RecipientUpdate carries the optional fields written together with a status
// transition. Nil fields are left untouched.
type RecipientUpdate struct {
	PlatformMessageID *string
	FailureReason     *string
	AttemptCount      *int
	QueuedAt          *time.Time
	SentAt            *time.Time
	DeliveredAt       *time.Time
	ReadAt            *time.Time
	TerminalAt        *time.Time
	LastEventAt       *time.Time
}

// CounterDelta is a set of guarded increments for a campaign's high-water-mark
// counters. Each field is added atomically in storage, never read-modify-write.
type CounterDelta struct {
	Sent      uint
	Delivered uint
	Read      uint
	Failed    uint
}

// IsZero reports whether the delta changes nothing
func (d CounterDelta) IsZero() bool {
	return d.Sent == 0 && d.Delivered == 0 && d.Read == 0 && d.Failed == 0
}

// CampaignRepository defines operations for campaigns
type CampaignRepository interface {
	ByID(ctx context.Context, id uint) (*models.Campaign, error)
	ByUUID(ctx context.Context, uuid uuid.UUID) (*models.Campaign, error)
	Save(ctx context.Context, campaign *models.Campaign) error
	ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error)
	Count(ctx context.Context, filter models.CampaignFilter) (int64, error)
	ListByStatus(ctx context.Context, status models.CampaignStatus, limit int) ([]*models.Campaign, error)
	// UpdateStatus transitions the campaign from -> to with a compare-and-swap
	// on the current status. It reports false when the row was not in the
	// expected from status. startedAt/completedAt are set when non-nil.
	UpdateStatus(ctx context.Context, id uint, from, to models.CampaignStatus, startedAt, completedAt *time.Time) (bool, error)
	// IncrementCounters atomically adds the delta to the high-water-mark
	// counters of the campaign.
	IncrementCounters(ctx context.Context, id uint, delta CounterDelta) error
}

// RecipientRepository defines operations for recipients
type RecipientRepository interface {
	ByID(ctx context.Context, id uint) (*models.Recipient, error)
	ByPlatformMessageID(ctx context.Context, platformMessageID string) (*models.Recipient, error)
	SaveBatch(ctx context.Context, recipients []*models.Recipient) error
	ByFilter(ctx context.Context, filter models.RecipientFilter, orderBy string, limit, offset int) ([]*models.Recipient, error)
	// ListAdmissible returns up to limit recipients of the campaign still in
	// pending, oldest first.
	ListAdmissible(ctx context.Context, campaignID uint, limit int) ([]*models.Recipient, error)
	// ListStaleQueued returns queued recipients whose queued_at is older than
	// the cutoff. These are sends interrupted between the queued write and the
	// platform call; the dispatcher resumes them.
	ListStaleQueued(ctx context.Context, campaignID uint, olderThan time.Time, limit int) ([]*models.Recipient, error)
	// Transition performs a compare-and-swap status transition: the row is
	// updated only if its current status equals from. Reports false when the
	// guard failed (another worker already moved the row).
	Transition(ctx context.Context, id uint, from, to models.RecipientStatus, upd RecipientUpdate) (bool, error)
	// TransitionAll moves every recipient of the campaign currently in one of
	// the from statuses to the terminal to status with the given reason, and
	// returns how many rows were moved.
	TransitionAll(ctx context.Context, campaignID uint, from []models.RecipientStatus, to models.RecipientStatus, reason string, terminalAt time.Time) (int64, error)
	// Histogram returns the current-state bucket counts for the campaign.
	Histogram(ctx context.Context, campaignID uint) (models.Histogram, error)
}

// WalletRepository defines operations for wallets
type WalletRepository interface {
	ByID(ctx context.Context, id uint) (*models.Wallet, error)
	ByCustomerID(ctx context.Context, customerID uint) (*models.Wallet, error)
	// ByCustomerIDForUpdate loads the wallet holding a row-level lock for the
	// remainder of the surrounding transaction, serializing reservation
	// decisions per customer.
	ByCustomerIDForUpdate(ctx context.Context, customerID uint) (*models.Wallet, error)
	Save(ctx context.Context, wallet *models.Wallet) error
	// AdjustBalances atomically applies the signed credit movements to the
	// wallet's free/reserved/used balances.
	AdjustBalances(ctx context.Context, walletID uint, freeDelta, reservedDelta, usedDelta int64) error
}

// CreditReservationRepository defines operations for credit reservations
type CreditReservationRepository interface {
	ByID(ctx context.Context, id uint) (*models.CreditReservation, error)
	ByCampaignID(ctx context.Context, campaignID uint) (*models.CreditReservation, error)
	Save(ctx context.Context, reservation *models.CreditReservation) error
	// AddConsumed / AddReleased atomically move reserved units. Both guard
	// against exceeding the reservation amount and report false when the
	// guard failed.
	AddConsumed(ctx context.Context, id uint, units uint) (bool, error)
	AddReleased(ctx context.Context, id uint, units uint) (bool, error)
	// Settle marks the reservation settled once consumed+released == amount.
	Settle(ctx context.Context, id uint) error
}

// ChannelRepository defines operations for sending channels
type ChannelRepository interface {
	ByID(ctx context.Context, id uint) (*models.Channel, error)
	ByUUID(ctx context.Context, uuid uuid.UUID) (*models.Channel, error)
	Save(ctx context.Context, channel *models.Channel) error
	UpdateStatus(ctx context.Context, id uint, status models.ChannelStatus) error
}

// TemplateRepository defines operations for message templates
type TemplateRepository interface {
	ByID(ctx context.Context, id uint) (*models.Template, error)
	ByUUID(ctx context.Context, uuid uuid.UUID) (*models.Template, error)
	Save(ctx context.Context, template *models.Template) error
}

// DeliveryEventRepository defines operations for accepted delivery callbacks
type DeliveryEventRepository interface {
	Save(ctx context.Context, event *models.DeliveryEvent) error
	ListByRecipient(ctx context.Context, recipientID uint) ([]*models.DeliveryEvent, error)
}

// ButtonClickRepository defines operations for button click records
type ButtonClickRepository interface {
	Save(ctx context.Context, click *models.ButtonClick) error
	ListByCampaign(ctx context.Context, campaignID uint, limit, offset int) ([]*models.ButtonClick, error)
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Save(ctx context.Context, entry *models.AuditLog) error
	ListByCampaign(ctx context.Context, campaignID uint, limit, offset int) ([]*models.AuditLog, error)
}
