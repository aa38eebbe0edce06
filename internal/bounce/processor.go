package bounce

import (
	"strings"
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/lifecycle"
)

const (
	// MaxSoftBounceRetries is how many delayed re-sends a soft-bouncing
	// address gets before it converts to a hard bounce.
	MaxSoftBounceRetries = 3

	// maxRetriesSuffix is appended to the stored bounce reason when a soft
	// bounce exhausts its retries, for diagnostics.
	maxRetriesSuffix = " (max retries exceeded)"
)

// retrySchedule escalates the delay per attempt. Indexed by the current
// retry count; indexes past the end clamp to the last entry.
var retrySchedule = []time.Duration{
	1 * time.Hour,
	4 * time.Hour,
	24 * time.Hour,
}

// StatusHint tells the host what to record on the lead after a bounce.
type StatusHint string

const (
	StatusRetryPending StatusHint = "retry_pending"
	StatusBounced      StatusHint = "bounced"
)

// Decision is the full outcome of processing one bounce notification.
type Decision struct {
	// EffectiveBounceType is the classification used for every downstream
	// decision. It differs from the notification's raw type only when a
	// soft bounce has exhausted its retries, in which case it is hard.
	EffectiveBounceType domain.BounceType
	Action              domain.BounceAction

	// RetryDelay and RetryCount are set only when Action is ActionRetry.
	// RetryCount is the value the host must persist (current + 1).
	RetryDelay time.Duration
	RetryCount int

	AddToSuppression  bool
	SuppressionReason domain.SuppressionReason

	// BounceEvent is the lead event derived from the effective type; feed
	// it to the state machine.
	BounceEvent  domain.LeadEvent
	StatusUpdate StatusHint

	// Reason is the stored bounce reason, suffixed when retries ran out.
	Reason string
}

// Process classifies a bounce notification against the lead's persisted
// retry count and returns the complete decision. It never fails: an
// unrecognized bounce type falls through to the hard-bounce path.
func Process(bounceType domain.BounceType, currentRetryCount int, reason string) Decision {
	if bounceType == domain.BounceSoft && currentRetryCount < MaxSoftBounceRetries {
		return Decision{
			EffectiveBounceType: domain.BounceSoft,
			Action:              domain.ActionRetry,
			RetryDelay:          retryDelay(currentRetryCount),
			RetryCount:          currentRetryCount + 1,
			BounceEvent:         lifecycle.BounceTypeEvent(domain.BounceSoft),
			StatusUpdate:        StatusRetryPending,
			Reason:              reason,
		}
	}

	effective := bounceType
	switch bounceType {
	case domain.BounceComplaint:
		// Complaints keep their type; suppression reason differs below.
	case domain.BounceSoft:
		// Retries exhausted: hard for every downstream decision.
		effective = domain.BounceHard
		reason += maxRetriesSuffix
	default:
		// Hard, or an unrecognized type we refuse to fail on.
		effective = domain.BounceHard
	}

	d := Decision{
		EffectiveBounceType: effective,
		Action:              domain.ActionBounce,
		BounceEvent:         lifecycle.BounceTypeEvent(effective),
		StatusUpdate:        StatusBounced,
		Reason:              reason,
	}

	if bounceType == domain.BounceComplaint {
		d.AddToSuppression = true
		d.SuppressionReason = domain.ReasonComplaint
	} else if effective == domain.BounceHard {
		d.AddToSuppression = true
		d.SuppressionReason = domain.ReasonHardBounce
	}
	return d
}

func retryDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= len(retrySchedule) {
		return retrySchedule[len(retrySchedule)-1]
	}
	return retrySchedule[retryCount]
}

// NormalizeEmail lower-cases and trims an address. Every suppression store
// or lookup goes through this so matching is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
