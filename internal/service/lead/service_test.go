package lead

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/lifecycle"
)

// mockRepo is an in-memory lead repository with CAS semantics.
type mockRepo struct {
	mu      sync.Mutex
	leads   map[string]*domain.Lead
	changes []*domain.LeadStateChange

	failAudit bool
}

func newMockRepo(leads ...*domain.Lead) *mockRepo {
	m := &mockRepo{leads: make(map[string]*domain.Lead)}
	for _, l := range leads {
		m.leads[l.ID] = l
	}
	return m
}

func (m *mockRepo) Get(_ context.Context, orgID, id string) (*domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok || l.OrganizationID != orgID {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *mockRepo) GetByEmail(_ context.Context, orgID, campaignID, email string) (*domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.leads {
		if l.OrganizationID == orgID && l.CampaignID == campaignID && l.Email == email {
			cp := *l
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) UpdateStatusCAS(_ context.Context, leadID string, from, to domain.LeadStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[leadID]
	if !ok {
		return false, nil
	}
	if l.Status != from {
		return false, nil
	}
	l.Status = to
	return true, nil
}

func (m *mockRepo) SetRetryCount(_ context.Context, leadID string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.leads[leadID]; ok {
		l.RetryCount = count
	}
	return nil
}

func (m *mockRepo) RecordStateChange(_ context.Context, change *domain.LeadStateChange) error {
	if m.failAudit {
		return errors.New("audit table unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, change)
	return nil
}

const testOrgID = "org-001"

func testLead(status domain.LeadStatus) *domain.Lead {
	return &domain.Lead{
		ID:             "lead-001",
		OrganizationID: testOrgID,
		CampaignID:     "camp-001",
		Email:          "lead@example.com",
		Status:         status,
	}
}

func TestApplyEvent_AcceptedTransition(t *testing.T) {
	l := testLead(domain.LeadPending)
	repo := newMockRepo(l)
	svc := NewService(lifecycle.NewMachine(), repo)

	change, applied, err := svc.ApplyEvent(context.Background(), l, domain.EventEmailSent, nil)
	if err != nil {
		t.Fatalf("ApplyEvent: %v", err)
	}
	if !applied {
		t.Fatal("transition should be accepted")
	}
	if change.NewStatus != domain.LeadInSequence {
		t.Errorf("NewStatus = %s, want in_sequence", change.NewStatus)
	}
	if l.Status != domain.LeadInSequence {
		t.Errorf("in-memory lead not updated: %s", l.Status)
	}
	if len(repo.changes) != 1 {
		t.Errorf("audit records = %d, want 1", len(repo.changes))
	}
}

func TestApplyEvent_AuditPairSurvivesAliasedRepo(t *testing.T) {
	// mockRepo stores the same *domain.Lead the caller holds, so the CAS
	// mutates l.Status in place. The transition must still be evaluated
	// once, from the status the caller validated against, and the audit
	// record must carry that pre-transition pair.
	l := testLead(domain.LeadPending)
	repo := newMockRepo(l)
	svc := NewService(lifecycle.NewMachine(), repo)

	change, applied, err := svc.ApplyEvent(context.Background(), l, domain.EventEmailSent, nil)
	if err != nil || !applied {
		t.Fatalf("ApplyEvent: applied=%v err=%v", applied, err)
	}
	if change.PreviousStatus != domain.LeadPending || change.NewStatus != domain.LeadInSequence {
		t.Errorf("audit pair = %s -> %s, want pending -> in_sequence",
			change.PreviousStatus, change.NewStatus)
	}
	if l.Status != domain.LeadInSequence {
		t.Errorf("lead status = %s, want in_sequence (not double-advanced)", l.Status)
	}

	ch, err := svc.Override(context.Background(), testOrgID, l.ID, domain.LeadContacted)
	if err != nil {
		t.Fatalf("Override: %v", err)
	}
	if ch.PreviousStatus != domain.LeadInSequence || ch.NewStatus != domain.LeadContacted {
		t.Errorf("override audit pair = %s -> %s, want in_sequence -> contacted",
			ch.PreviousStatus, ch.NewStatus)
	}
}

func TestApplyEvent_RejectionIsNotAnError(t *testing.T) {
	l := testLead(domain.LeadBounced)
	repo := newMockRepo(l)
	svc := NewService(lifecycle.NewMachine(), repo)

	change, applied, err := svc.ApplyEvent(context.Background(), l, domain.EventEmailSent, nil)
	if err != nil {
		t.Fatalf("rejection must not be an error, got %v", err)
	}
	if applied || change != nil {
		t.Error("terminal lead must reject EMAIL_SENT")
	}
	if len(repo.changes) != 0 {
		t.Error("rejected transition must not write audit records")
	}
}

func TestApplyEvent_LostRaceReturnsConflict(t *testing.T) {
	l := testLead(domain.LeadContacted)
	repo := newMockRepo(l)
	svc := NewService(lifecycle.NewMachine(), repo)

	// Another producer commits a hard bounce between our read and write.
	stale := *l
	repo.leads[l.ID].Status = domain.LeadBounced

	_, applied, err := svc.ApplyEvent(context.Background(), &stale, domain.EventReplyReceived, nil)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if applied {
		t.Error("lost race must not apply")
	}

	// Re-reading shows the terminal status; the replay now rejects cleanly.
	fresh, _ := repo.Get(context.Background(), testOrgID, l.ID)
	_, applied, err = svc.ApplyEvent(context.Background(), fresh, domain.EventReplyReceived, nil)
	if err != nil || applied {
		t.Errorf("replay after re-read: applied=%v err=%v, want clean rejection", applied, err)
	}
}

func TestApplyEvent_AuditFailureDoesNotRollBack(t *testing.T) {
	l := testLead(domain.LeadPending)
	repo := newMockRepo(l)
	repo.failAudit = true
	svc := NewService(lifecycle.NewMachine(), repo)

	change, applied, err := svc.ApplyEvent(context.Background(), l, domain.EventEmailSent, nil)
	if err != nil || !applied || change == nil {
		t.Fatalf("transition must survive audit failure: applied=%v err=%v", applied, err)
	}
	if repo.leads[l.ID].Status != domain.LeadInSequence {
		t.Error("status update rolled back on audit failure")
	}
}

func TestOverride(t *testing.T) {
	l := testLead(domain.LeadBounced)
	repo := newMockRepo(l)
	svc := NewService(lifecycle.NewMachine(), repo)
	ctx := context.Background()

	// Default target is pending.
	change, err := svc.Override(ctx, testOrgID, l.ID, "")
	if err != nil {
		t.Fatalf("Override: %v", err)
	}
	if change.NewStatus != domain.LeadPending {
		t.Errorf("NewStatus = %s, want pending", change.NewStatus)
	}
	if repo.leads[l.ID].Status != domain.LeadPending {
		t.Errorf("persisted status = %s, want pending", repo.leads[l.ID].Status)
	}

	// Terminal targets are refused.
	if _, err := svc.Override(ctx, testOrgID, l.ID, domain.LeadSpamReported); err == nil {
		t.Error("override to terminal target should fail")
	}
}

func TestCanSendSequenceStep(t *testing.T) {
	svc := NewService(lifecycle.NewMachine(), newMockRepo())

	if !svc.CanSendSequenceStep(testLead(domain.LeadContacted)) {
		t.Error("contacted lead should be sendable")
	}
	for _, status := range []domain.LeadStatus{
		domain.LeadReplied, domain.LeadInterested, domain.LeadBounced, domain.LeadUnsubscribed,
	} {
		if svc.CanSendSequenceStep(testLead(status)) {
			t.Errorf("%s lead must not receive sequence steps", status)
		}
	}
}
