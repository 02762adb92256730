package utils

import (
	"time"
)

// Dispatcher constants
const (
	// DefaultMaxSendAttempts is the attempt ceiling before a recipient is failed
	DefaultMaxSendAttempts = 3

	// DefaultSendTimeout bounds a single outbound send attempt
	DefaultSendTimeout = 30 * time.Second

	// DefaultRetryBackoff is the base delay between send attempts; it doubles
	// per attempt
	DefaultRetryBackoff = 2 * time.Second

	// DefaultDispatchInterval is how often the dispatcher polls for admissible
	// recipients
	DefaultDispatchInterval = 5 * time.Second

	// DefaultDispatchBatchSize caps how many recipients one dispatch pass
	// admits per campaign
	DefaultDispatchBatchSize = 100

	// DefaultDispatchWorkers is how many campaigns one tick dispatches in parallel
	DefaultDispatchWorkers = 4
)

// Credit constants
const (
	// CreditsPerRecipient is the number of credits reserved per contact
	CreditsPerRecipient = 1
)

// Cache constants
const (
	// CampaignStatusCacheTTL bounds staleness of cached status reads
	CampaignStatusCacheTTL = 2 * time.Second

	// CampaignStatusCacheKeyPrefix namespaces status cache entries in redis
	CampaignStatusCacheKeyPrefix = "blastline:campaign-status:"

	// RateLimiterKeyPrefix namespaces channel rate limiter windows in redis
	RateLimiterKeyPrefix = "blastline:channel-rate:"
)
