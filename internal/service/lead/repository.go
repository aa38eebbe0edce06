package lead

import (
	"context"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Repository defines the data access contract for leads.
type Repository interface {
	// Get returns a single lead. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, orgID, id string) (*domain.Lead, error)

	// GetByEmail returns the lead for a normalized email within a campaign.
	GetByEmail(ctx context.Context, orgID, campaignID, email string) (*domain.Lead, error)

	// UpdateStatusCAS updates the lead's status only if it still equals
	// from. Returns false (and no error) when the guard fails.
	UpdateStatusCAS(ctx context.Context, leadID string, from, to domain.LeadStatus) (bool, error)

	// SetRetryCount persists the soft-bounce retry counter.
	SetRetryCount(ctx context.Context, leadID string, count int) error

	// RecordStateChange appends an immutable audit record.
	RecordStateChange(ctx context.Context, change *domain.LeadStateChange) error
}
