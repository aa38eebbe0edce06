package domain

import "time"

// ABTestStatus enumerates the lifecycle states of an A/B test.
type ABTestStatus string

const (
	ABTestRunning   ABTestStatus = "running"
	ABTestCompleted ABTestStatus = "completed"
)

// ABTest groups message variants competing within one campaign.
type ABTest struct {
	ID              string       `json:"id" db:"id"`
	OrganizationID  string       `json:"organization_id" db:"organization_id"`
	CampaignID      string       `json:"campaign_id" db:"campaign_id"`
	Name            string       `json:"name" db:"name"`
	Status          ABTestStatus `json:"status" db:"status"`
	WinnerVariantID *string      `json:"winner_variant_id" db:"winner_variant_id"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
	CompletedAt     *time.Time   `json:"completed_at" db:"completed_at"`
}

// VariantStats holds the send/engagement counters and current traffic weight
// for one variant. Rates are derived, never stored.
type VariantStats struct {
	VariantID    string `json:"variant_id" db:"variant_id"`
	TestID       string `json:"test_id" db:"test_id"`
	SentCount    int    `json:"sent_count" db:"sent_count"`
	OpenedCount  int    `json:"opened_count" db:"opened_count"`
	ClickedCount int    `json:"clicked_count" db:"clicked_count"`
	RepliedCount int    `json:"replied_count" db:"replied_count"`
	// Weight is the integer percentage (0-100) of new traffic routed to
	// this variant. Weights across a test always sum to 100.
	Weight   int  `json:"weight" db:"weight"`
	IsWinner bool `json:"is_winner" db:"is_winner"`
}

// OpenRate returns opens/sends, 0 when no sends.
func (v VariantStats) OpenRate() float64 {
	if v.SentCount == 0 {
		return 0
	}
	return float64(v.OpenedCount) / float64(v.SentCount)
}

// ClickRate returns clicks/opens, 0 when no opens.
func (v VariantStats) ClickRate() float64 {
	if v.OpenedCount == 0 {
		return 0
	}
	return float64(v.ClickedCount) / float64(v.OpenedCount)
}

// ReplyRate returns replies/sends, 0 when no sends.
func (v VariantStats) ReplyRate() float64 {
	if v.SentCount == 0 {
		return 0
	}
	return float64(v.RepliedCount) / float64(v.SentCount)
}

// ABAuditAction enumerates the audit trail entries written when variant
// weights change.
type ABAuditAction string

const (
	AuditWinnerDeclared ABAuditAction = "winner_declared"
	AuditTestReset      ABAuditAction = "test_reset"
	AuditManualOverride ABAuditAction = "manual_override"
)

// ABAuditEvent records a weight change on a test for the audit trail.
type ABAuditEvent struct {
	ID        string         `json:"id" db:"id"`
	TestID    string         `json:"test_id" db:"test_id"`
	Action    ABAuditAction  `json:"action" db:"action"`
	Detail    string         `json:"detail,omitempty" db:"detail"`
	Weights   map[string]int `json:"weights" db:"weights"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}
