package domain

import "time"

// BounceType classifies a bounce notification from the mail transport.
type BounceType string

const (
	BounceHard      BounceType = "hard"
	BounceSoft      BounceType = "soft"
	BounceComplaint BounceType = "complaint"
)

// BounceRecord captures a single inbound bounce notification for a lead.
// RetryCount persists across repeated soft bounces for the same address
// within a sequence.
type BounceRecord struct {
	ID         string     `json:"id" db:"id"`
	LeadID     string     `json:"lead_id" db:"lead_id"`
	Email      string     `json:"email" db:"email"`
	BounceType BounceType `json:"bounce_type" db:"bounce_type"`
	RetryCount int        `json:"retry_count" db:"retry_count"`
	Reason     string     `json:"reason" db:"reason"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// BounceAction is the decision the bounce processor hands back to the host.
type BounceAction string

const (
	// ActionRetry schedules a delayed re-send for a recoverable soft bounce.
	ActionRetry BounceAction = "retry"
	// ActionBounce marks the lead bounced and, for hard bounces and
	// complaints, enrolls the address in the suppression list.
	ActionBounce BounceAction = "bounce"
)
