package suppression

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/ignite/outreach-engine/internal/domain"
)

// mockRepo is an in-memory repository for testing.
type mockRepo struct {
	mu       sync.RWMutex
	store    map[string]*domain.Suppression // keyed by "orgID:email"
	inserted int
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[string]*domain.Suppression)}
}

func (m *mockRepo) key(orgID, email string) string {
	return orgID + ":" + strings.ToLower(email)
}

func (m *mockRepo) IsSuppressed(_ context.Context, orgID, email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.store[m.key(orgID, email)]
	return ok, nil
}

func (m *mockRepo) Suppress(_ context.Context, s *domain.Suppression) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(s.OrganizationID, s.Email)
	if _, exists := m.store[k]; exists {
		return nil
	}
	m.store[k] = s
	m.inserted++
	return nil
}

func (m *mockRepo) Remove(_ context.Context, orgID, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(orgID, email)
	if _, ok := m.store[k]; !ok {
		return ErrNotFound
	}
	delete(m.store, k)
	return nil
}

func (m *mockRepo) List(_ context.Context, orgID string, f ListFilter) ([]domain.Suppression, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []domain.Suppression
	for _, s := range m.store {
		if s.OrganizationID != orgID {
			continue
		}
		if f.Reason != "" && string(s.Reason) != f.Reason {
			continue
		}
		result = append(result, *s)
	}
	return result, len(result), nil
}

func (m *mockRepo) Count(_ context.Context, orgID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.store {
		if s.OrganizationID == orgID {
			count++
		}
	}
	return count, nil
}

const testOrgID = "org-001"

func TestSuppress_NormalizesEmail(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	err := svc.Suppress(ctx, testOrgID, "  BOUNCE@Example.COM ",
		domain.ReasonHardBounce, domain.SourceBounceWebhook, "camp-001")
	if err != nil {
		t.Fatalf("Suppress: %v", err)
	}

	// Lookup with any casing must match.
	for _, email := range []string{"bounce@example.com", "BOUNCE@EXAMPLE.COM", "Bounce@Example.com"} {
		ok, err := svc.IsSuppressed(ctx, testOrgID, email)
		if err != nil {
			t.Fatalf("IsSuppressed(%s): %v", email, err)
		}
		if !ok {
			t.Errorf("IsSuppressed(%s) = false, want true", email)
		}
	}
}

func TestSuppress_Idempotent(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := svc.Suppress(ctx, testOrgID, "dup@example.com",
			domain.ReasonHardBounce, domain.SourceBounceWebhook, "")
		if err != nil {
			t.Fatalf("Suppress #%d: %v", i, err)
		}
	}

	if repo.inserted != 1 {
		t.Errorf("inserted %d records, want 1", repo.inserted)
	}
	n, _ := svc.Count(ctx, testOrgID)
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestSuppress_EmptyEmailRejected(t *testing.T) {
	svc := NewService(newMockRepo())
	if err := svc.Suppress(context.Background(), testOrgID, "   ",
		domain.ReasonManual, domain.SourceManual, ""); err == nil {
		t.Error("expected error for empty email")
	}
}

func TestRemove(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	if err := svc.Remove(ctx, testOrgID, "missing@example.com"); err != ErrNotFound {
		t.Errorf("Remove(missing) = %v, want ErrNotFound", err)
	}

	svc.Suppress(ctx, testOrgID, "gone@example.com", domain.ReasonManual, domain.SourceManual, "")
	if err := svc.Remove(ctx, testOrgID, "GONE@example.com"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	ok, _ := svc.IsSuppressed(ctx, testOrgID, "gone@example.com")
	if ok {
		t.Error("email still suppressed after Remove")
	}
}

func TestGetStats(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	svc.Suppress(ctx, testOrgID, "a@example.com", domain.ReasonHardBounce, domain.SourceBounceWebhook, "")
	svc.Suppress(ctx, testOrgID, "b@example.com", domain.ReasonHardBounce, domain.SourceBounceWebhook, "")
	svc.Suppress(ctx, testOrgID, "c@example.com", domain.ReasonComplaint, domain.SourceFBLReport, "")
	svc.Suppress(ctx, "other-org", "d@example.com", domain.ReasonManual, domain.SourceManual, "")

	stats, err := svc.GetStats(ctx, testOrgID)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.ByReason["hard_bounce"] != 2 {
		t.Errorf("hard_bounce = %d, want 2", stats.ByReason["hard_bounce"])
	}
	if stats.ByReason["spam_complaint"] != 1 {
		t.Errorf("spam_complaint = %d, want 1", stats.ByReason["spam_complaint"])
	}
}
