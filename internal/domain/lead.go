package domain

import "time"

// LeadStatus enumerates the states a lead can be in during an outreach
// sequence.
type LeadStatus string

const (
	LeadPending          LeadStatus = "pending"
	LeadInSequence       LeadStatus = "in_sequence"
	LeadContacted        LeadStatus = "contacted"
	LeadReplied          LeadStatus = "replied"
	LeadInterested       LeadStatus = "interested"
	LeadNotInterested    LeadStatus = "not_interested"
	LeadMeetingBooked    LeadStatus = "meeting_booked"
	LeadBounced          LeadStatus = "bounced"
	LeadSoftBounced      LeadStatus = "soft_bounced"
	LeadUnsubscribed     LeadStatus = "unsubscribed"
	LeadSpamReported     LeadStatus = "spam_reported"
	LeadSequenceComplete LeadStatus = "sequence_complete"
)

// AllLeadStatuses lists every lead status. Order matters for deterministic
// iteration in the transition matrix tests.
var AllLeadStatuses = []LeadStatus{
	LeadPending, LeadInSequence, LeadContacted, LeadReplied,
	LeadInterested, LeadNotInterested, LeadMeetingBooked, LeadBounced,
	LeadSoftBounced, LeadUnsubscribed, LeadSpamReported, LeadSequenceComplete,
}

// LeadEvent enumerates the events that drive lead status transitions.
type LeadEvent string

const (
	EventEmailSent          LeadEvent = "EMAIL_SENT"
	EventEmailOpened        LeadEvent = "EMAIL_OPENED"
	EventEmailClicked       LeadEvent = "EMAIL_CLICKED"
	EventEmailBounced       LeadEvent = "EMAIL_BOUNCED"
	EventSoftBounce         LeadEvent = "SOFT_BOUNCE"
	EventReplyReceived      LeadEvent = "REPLY_RECEIVED"
	EventReplyInterested    LeadEvent = "REPLY_INTERESTED"
	EventReplyNotInterested LeadEvent = "REPLY_NOT_INTERESTED"
	EventUnsubscribe        LeadEvent = "UNSUBSCRIBE"
	EventSpamReport         LeadEvent = "SPAM_REPORT"
	EventMeetingBooked      LeadEvent = "MEETING_BOOKED"
	EventSequenceComplete   LeadEvent = "SEQUENCE_COMPLETE"
	EventManualOverride     LeadEvent = "MANUAL_OVERRIDE"
)

// AllLeadEvents lists every lead event.
var AllLeadEvents = []LeadEvent{
	EventEmailSent, EventEmailOpened, EventEmailClicked, EventEmailBounced,
	EventSoftBounce, EventReplyReceived, EventReplyInterested,
	EventReplyNotInterested, EventUnsubscribe, EventSpamReport,
	EventMeetingBooked, EventSequenceComplete, EventManualOverride,
}

// Lead represents a single outreach recipient progressing through a sequence.
type Lead struct {
	ID             string     `json:"id" db:"id"`
	OrganizationID string     `json:"organization_id" db:"organization_id"`
	CampaignID     string     `json:"campaign_id" db:"campaign_id"`
	Email          string     `json:"email" db:"email"`
	FirstName      string     `json:"first_name" db:"first_name"`
	LastName       string     `json:"last_name" db:"last_name"`
	Status         LeadStatus `json:"status" db:"status"`
	SequenceStep   int        `json:"sequence_step" db:"sequence_step"`
	RetryCount     int        `json:"retry_count" db:"retry_count"`

	LastContactedAt *time.Time `json:"last_contacted_at" db:"last_contacted_at"`
	LastReplyAt     *time.Time `json:"last_reply_at" db:"last_reply_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// LeadStateChange is the immutable audit record produced by every successful
// status transition.
type LeadStateChange struct {
	ID             string            `json:"id" db:"id"`
	LeadID         string            `json:"lead_id" db:"lead_id"`
	PreviousStatus LeadStatus        `json:"previous_status" db:"previous_status"`
	NewStatus      LeadStatus        `json:"new_status" db:"new_status"`
	Event          LeadEvent         `json:"event" db:"event"`
	Timestamp      time.Time         `json:"timestamp" db:"timestamp"`
	Metadata       map[string]string `json:"metadata,omitempty" db:"metadata"`
}
