// Package businessflow contains the business logic for the application.
package businessflow

import (
	"github.com/blastline/blastline-backend/models"
	"github.com/blastline/blastline-backend/repository"
)

const RequestIDKey = "X-Request-ID"

// ClientMetadata holds client-related information for audit logging
type ClientMetadata struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	RequestID string `json:"request_id,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// stageDelta computes the high-water-mark counter increments for a recipient
// moving from one status to another. A forward jump crosses every intermediate
// stage at once: a read callback applied to a sent recipient increments both
// delivered_count and read_count, which keeps sent >= delivered >= read.
// Terminal moves increment failed_count only for failed, not skipped —
// recipients that were never transmitted stay out of the sending counters.
func stageDelta(from, to models.RecipientStatus) (delta repository.CounterDelta) {
	if to == models.RecipientStatusFailed {
		delta.Failed = 1
		return delta
	}
	if to == models.RecipientStatusSkipped {
		return delta
	}

	fromRank := from.Rank()
	toRank := to.Rank()
	if from.IsTerminal() || fromRank >= toRank {
		return delta
	}

	if fromRank < models.RecipientStatusSent.Rank() && toRank >= models.RecipientStatusSent.Rank() {
		delta.Sent = 1
	}
	if fromRank < models.RecipientStatusDelivered.Rank() && toRank >= models.RecipientStatusDelivered.Rank() {
		delta.Delivered = 1
	}
	if fromRank < models.RecipientStatusRead.Rank() && toRank >= models.RecipientStatusRead.Rank() {
		delta.Read = 1
	}
	return delta
}
