package lifecycle

import (
	"strings"

	"github.com/ignite/outreach-engine/internal/domain"
)

// ReplyIntentEvent translates a reply classifier intent into a lead event.
// Anything unrecognized (including empty) is treated as a plain reply so a
// misbehaving classifier can never block the pipeline.
func ReplyIntentEvent(intent string) domain.LeadEvent {
	switch strings.ToLower(strings.TrimSpace(intent)) {
	case "interested", "meeting_request":
		return domain.EventReplyInterested
	case "not_interested":
		return domain.EventReplyNotInterested
	case "unsubscribe":
		return domain.EventUnsubscribe
	case "bounce":
		return domain.EventEmailBounced
	default:
		return domain.EventReplyReceived
	}
}

// BounceTypeEvent translates a bounce classification into a lead event.
// Unrecognized types map to the hard bounce event.
func BounceTypeEvent(t domain.BounceType) domain.LeadEvent {
	switch t {
	case domain.BounceSoft:
		return domain.EventSoftBounce
	case domain.BounceComplaint:
		return domain.EventSpamReport
	default:
		return domain.EventEmailBounced
	}
}
