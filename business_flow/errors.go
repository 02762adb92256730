// Package businessflow contains the core business logic and use cases for campaign workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Admission errors — rejected synchronously at creation, no partial state
	ErrChannelNotFound      = errors.New("channel not found")
	ErrChannelNotSendable   = errors.New("channel is not sendable")
	ErrChannelAccessDenied  = errors.New("channel belongs to another customer")
	ErrTemplateNotFound     = errors.New("template not found")
	ErrTemplateNotSendable  = errors.New("template is not approved for sending")
	ErrNoContacts           = errors.New("campaign has no contacts")
	ErrInsufficientCredits  = errors.New("insufficient credits")
	ErrWalletNotFound       = errors.New("wallet not found")
	ErrCampaignNameRequired = errors.New("campaign name is required")

	// Campaign lifecycle errors
	ErrCampaignNotFound          = errors.New("campaign not found")
	ErrCampaignAccessDenied      = errors.New("campaign access denied")
	ErrInvalidCampaignTransition = errors.New("campaign cannot transition to the requested status")

	// Ledger errors
	ErrReservationNotFound  = errors.New("credit reservation not found")
	ErrReservationExhausted = errors.New("credit reservation has no outstanding units")

	// Ingestion errors
	ErrRecipientNotFound      = errors.New("recipient not found for platform message id")
	ErrUnknownDeliveryStatus  = errors.New("unknown delivery status")
	ErrInvalidEventTimestamp  = errors.New("event timestamp is missing or invalid")
	ErrStaleDeliveryEvent     = errors.New("stale delivery event")
	ErrDuplicateDeliveryEvent = errors.New("duplicate delivery event")

	// Filter errors
	ErrInvalidPage     = errors.New("page must be at least 1")
	ErrInvalidPageSize = errors.New("page size must be between 1 and 100")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func IsChannelNotFound(err error) bool {
	return errors.Is(err, ErrChannelNotFound)
}

func IsChannelNotSendable(err error) bool {
	return errors.Is(err, ErrChannelNotSendable)
}

func IsChannelAccessDenied(err error) bool {
	return errors.Is(err, ErrChannelAccessDenied)
}

func IsNoContacts(err error) bool {
	return errors.Is(err, ErrNoContacts)
}

func IsWalletNotFound(err error) bool {
	return errors.Is(err, ErrWalletNotFound)
}

func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

func IsTemplateNotSendable(err error) bool {
	return errors.Is(err, ErrTemplateNotSendable)
}

func IsInsufficientCredits(err error) bool {
	return errors.Is(err, ErrInsufficientCredits)
}

func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

func IsCampaignAccessDenied(err error) bool {
	return errors.Is(err, ErrCampaignAccessDenied)
}

func IsInvalidCampaignTransition(err error) bool {
	return errors.Is(err, ErrInvalidCampaignTransition)
}

func IsRecipientNotFound(err error) bool {
	return errors.Is(err, ErrRecipientNotFound)
}

func IsUnknownDeliveryStatus(err error) bool {
	return errors.Is(err, ErrUnknownDeliveryStatus)
}

func IsInvalidEventTimestamp(err error) bool {
	return errors.Is(err, ErrInvalidEventTimestamp)
}

func IsStaleDeliveryEvent(err error) bool {
	return errors.Is(err, ErrStaleDeliveryEvent)
}

func IsDuplicateDeliveryEvent(err error) bool {
	return errors.Is(err, ErrDuplicateDeliveryEvent)
}
