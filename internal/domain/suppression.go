package domain

import "time"

// SuppressionReason enumerates why an email was suppressed.
type SuppressionReason string

const (
	ReasonHardBounce  SuppressionReason = "hard_bounce"
	ReasonComplaint   SuppressionReason = "spam_complaint"
	ReasonUnsubscribe SuppressionReason = "unsubscribe"
	ReasonManual      SuppressionReason = "manual"
)

// SuppressionSource indicates where the suppression signal originated.
type SuppressionSource string

const (
	SourceBounceWebhook SuppressionSource = "bounce_webhook"
	SourceFBLReport     SuppressionSource = "fbl_report"
	SourceReply         SuppressionSource = "reply"
	SourceUnsubLink     SuppressionSource = "unsubscribe_link"
	SourceManual        SuppressionSource = "manual"
	SourceImport        SuppressionSource = "import"
)

// Suppression represents a single entry in the permanent do-not-send list.
// Email is always stored lower-cased and trimmed; the registry is append-only
// from the engine's perspective (removal is an administrative action).
type Suppression struct {
	ID             string            `json:"id" db:"id"`
	OrganizationID string            `json:"organization_id" db:"organization_id"`
	Email          string            `json:"email" db:"email"`
	Reason         SuppressionReason `json:"reason" db:"reason"`
	Source         SuppressionSource `json:"source" db:"source"`
	CampaignID     string            `json:"campaign_id,omitempty" db:"campaign_id"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
}
