package suppression

import (
	"context"
	"fmt"

	"github.com/ignite/outreach-engine/internal/bounce"
	"github.com/ignite/outreach-engine/internal/domain"
)

// Service implements suppression business logic. It is safe for concurrent
// use. All methods normalize emails before touching the repository.
type Service struct {
	repo Repository
}

// NewService creates a suppression service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// IsSuppressed checks whether an email address must be blocked from sending.
func (s *Service) IsSuppressed(ctx context.Context, orgID, email string) (bool, error) {
	return s.repo.IsSuppressed(ctx, orgID, bounce.NormalizeEmail(email))
}

// Suppress adds an email to the suppression list. Idempotent — if the
// email is already suppressed, the existing record is preserved.
func (s *Service) Suppress(ctx context.Context, orgID, email string, reason domain.SuppressionReason, source domain.SuppressionSource, campaignID string) error {
	email = bounce.NormalizeEmail(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}

	entry := &domain.Suppression{
		OrganizationID: orgID,
		Email:          email,
		Reason:         reason,
		Source:         source,
		CampaignID:     campaignID,
	}
	return s.repo.Suppress(ctx, entry)
}

// Remove deletes a suppression entry. Administrative action only; returns
// ErrNotFound if the email is not suppressed.
func (s *Service) Remove(ctx context.Context, orgID, email string) error {
	email = bounce.NormalizeEmail(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	return s.repo.Remove(ctx, orgID, email)
}

// List returns suppression entries matching the given filter.
func (s *Service) List(ctx context.Context, orgID string, filter ListFilter) ([]domain.Suppression, int, error) {
	return s.repo.List(ctx, orgID, filter)
}

// Count returns the total number of suppressed emails for an organization.
func (s *Service) Count(ctx context.Context, orgID string) (int, error) {
	return s.repo.Count(ctx, orgID)
}

// Stats holds aggregate suppression counts for the dashboard collaborator.
type Stats struct {
	Total    int            `json:"total"`
	ByReason map[string]int `json:"by_reason"`
	BySource map[string]int `json:"by_source"`
}

// GetStats computes suppression statistics grouped by reason and source.
func (s *Service) GetStats(ctx context.Context, orgID string) (*Stats, error) {
	entries, total, err := s.repo.List(ctx, orgID, ListFilter{Limit: 0})
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Total:    total,
		ByReason: make(map[string]int),
		BySource: make(map[string]int),
	}
	for _, e := range entries {
		stats.ByReason[string(e.Reason)]++
		stats.BySource[string(e.Source)]++
	}
	return stats, nil
}
