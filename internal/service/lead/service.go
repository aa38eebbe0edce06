package lead

import (
	"context"
	"fmt"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/lifecycle"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// Service coordinates the pure state machine with persisted lead state.
type Service struct {
	machine *lifecycle.Machine
	repo    Repository
}

// NewService creates a lead service. The machine carries the injected
// transition table and observer list.
func NewService(machine *lifecycle.Machine, repo Repository) *Service {
	return &Service{machine: machine, repo: repo}
}

// ApplyEvent applies an event to a lead. The returned boolean reports
// whether the transition was accepted; a rejection is a normal outcome,
// not an error. Errors are reserved for storage failures and lost CAS
// races (ErrConflict).
func (s *Service) ApplyEvent(ctx context.Context, l *domain.Lead, event domain.LeadEvent, metadata map[string]string) (*domain.LeadStateChange, bool, error) {
	// Capture the status we validated against: a repository that aliases
	// the lead (in-memory, cache-backed) mutates l.Status during the CAS,
	// and the audit record must carry the pre-transition pair.
	prev := l.Status
	next, ok := s.machine.CanTransition(prev, event)
	if !ok {
		return nil, false, nil
	}

	applied, err := s.repo.UpdateStatusCAS(ctx, l.ID, prev, next)
	if err != nil {
		return nil, false, fmt.Errorf("update lead %s: %w", l.ID, err)
	}
	if !applied {
		return nil, false, ErrConflict
	}

	change, _ := s.machine.Transition(l.ID, prev, event, metadata)
	l.Status = change.NewStatus

	if err := s.repo.RecordStateChange(ctx, change); err != nil {
		// The transition committed; a lost audit row is logged, not
		// rolled back.
		logger.Error("record state change failed",
			"lead_id", l.ID, "event", string(event), "error", err)
	}
	return change, true, nil
}

// Get loads a lead by id.
func (s *Service) Get(ctx context.Context, orgID, leadID string) (*domain.Lead, error) {
	return s.repo.Get(ctx, orgID, leadID)
}

// GetByEmail loads the lead a webhook notification refers to. The caller
// normalizes the address first.
func (s *Service) GetByEmail(ctx context.Context, orgID, campaignID, email string) (*domain.Lead, error) {
	return s.repo.GetByEmail(ctx, orgID, campaignID, email)
}

// ApplyEventByID loads the lead and applies the event.
func (s *Service) ApplyEventByID(ctx context.Context, orgID, leadID string, event domain.LeadEvent, metadata map[string]string) (*domain.LeadStateChange, bool, error) {
	l, err := s.repo.Get(ctx, orgID, leadID)
	if err != nil {
		return nil, false, err
	}
	return s.ApplyEvent(ctx, l, event, metadata)
}

// Override moves a lead to an administrator-chosen non-terminal status
// (pending when target is empty), from any status including terminals.
func (s *Service) Override(ctx context.Context, orgID, leadID string, target domain.LeadStatus) (*domain.LeadStateChange, error) {
	l, err := s.repo.Get(ctx, orgID, leadID)
	if err != nil {
		return nil, err
	}

	next := target
	if next == "" {
		next = domain.LeadPending
	}
	if lifecycle.IsTerminal(next) {
		return nil, fmt.Errorf("override target %q is terminal", target)
	}

	prev := l.Status
	applied, err := s.repo.UpdateStatusCAS(ctx, l.ID, prev, next)
	if err != nil {
		return nil, fmt.Errorf("override lead %s: %w", l.ID, err)
	}
	if !applied {
		return nil, ErrConflict
	}

	change, _ := s.machine.Override(l.ID, prev, next)
	l.Status = change.NewStatus

	if err := s.repo.RecordStateChange(ctx, change); err != nil {
		logger.Error("record state change failed",
			"lead_id", l.ID, "event", "MANUAL_OVERRIDE", "error", err)
	}
	return change, nil
}

// SetRetryCount persists the soft-bounce retry counter for a lead.
func (s *Service) SetRetryCount(ctx context.Context, leadID string, count int) error {
	return s.repo.SetRetryCount(ctx, leadID, count)
}

// CanSendSequenceStep reports whether the scheduler may enqueue another
// sequence step for the lead.
func (s *Service) CanSendSequenceStep(l *domain.Lead) bool {
	return !lifecycle.BlocksSequence(l.Status)
}

// AvailableEvents enumerates the events with a non-rejected outcome for
// the lead's current status.
func (s *Service) AvailableEvents(l *domain.Lead) []domain.LeadEvent {
	return s.machine.AvailableEvents(l.Status)
}
