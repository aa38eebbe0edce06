package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ignite/outreach-engine/internal/bounce"
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/lifecycle"
	"github.com/ignite/outreach-engine/internal/service/lead"
)

type fakeLeadDir struct {
	machine       *lifecycle.Machine
	leads         map[string]*domain.Lead // keyed by email
	retryCounts   map[string]int
	conflictsLeft int
}

func newFakeLeadDir(leads ...*domain.Lead) *fakeLeadDir {
	f := &fakeLeadDir{
		machine:     lifecycle.NewMachine(),
		leads:       make(map[string]*domain.Lead),
		retryCounts: make(map[string]int),
	}
	for _, l := range leads {
		f.leads[l.Email] = l
	}
	return f
}

func (f *fakeLeadDir) GetByEmail(_ context.Context, _, _, email string) (*domain.Lead, error) {
	l, ok := f.leads[email]
	if !ok {
		return nil, lead.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (f *fakeLeadDir) ApplyEvent(_ context.Context, l *domain.Lead, event domain.LeadEvent, metadata map[string]string) (*domain.LeadStateChange, bool, error) {
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return nil, false, lead.ErrConflict
	}
	stored := f.leads[l.Email]
	change, ok := f.machine.Transition(l.ID, stored.Status, event, metadata)
	if !ok {
		return nil, false, nil
	}
	stored.Status = change.NewStatus
	l.Status = change.NewStatus
	return change, true, nil
}

func (f *fakeLeadDir) SetRetryCount(_ context.Context, leadID string, count int) error {
	f.retryCounts[leadID] = count
	for _, l := range f.leads {
		if l.ID == leadID {
			l.RetryCount = count
		}
	}
	return nil
}

type fakeSuppressions struct {
	entries map[string]domain.SuppressionReason
	sources map[string]domain.SuppressionSource
}

func newFakeSuppressions() *fakeSuppressions {
	return &fakeSuppressions{
		entries: make(map[string]domain.SuppressionReason),
		sources: make(map[string]domain.SuppressionSource),
	}
}

func (f *fakeSuppressions) Suppress(_ context.Context, _, email string, reason domain.SuppressionReason, source domain.SuppressionSource, _ string) error {
	if _, exists := f.entries[email]; exists {
		return nil // idempotent, first record wins
	}
	f.entries[email] = reason
	f.sources[email] = source
	return nil
}

func contactedLead(email string, retryCount int) *domain.Lead {
	return &domain.Lead{
		ID:             "lead-" + email,
		OrganizationID: "org-1",
		CampaignID:     "camp-1",
		Email:          email,
		Status:         domain.LeadContacted,
		RetryCount:     retryCount,
	}
}

func TestWebhookReceiver_SoftBounceSchedulesRetry(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	leads := newFakeLeadDir(contactedLead("soft@example.com", 0))
	sup := newFakeSuppressions()
	retries := NewRetryScheduler(rdb, func(context.Context, RetryJob) error { return nil }, time.Minute)
	rec := NewWebhookReceiver(leads, sup, retries, nil)

	out, err := rec.ProcessBounce(ctx, BounceNotification{
		OrganizationID: "org-1",
		CampaignID:     "camp-1",
		Email:          "Soft@Example.com", // normalization exercises the lookup
		BounceType:     domain.BounceSoft,
		Reason:         "mailbox full",
	})
	if err != nil {
		t.Fatalf("ProcessBounce: %v", err)
	}

	if out.Action != domain.ActionRetry {
		t.Errorf("action = %s, want retry", out.Action)
	}
	if !out.RetryScheduled {
		t.Error("expected a retry job on the schedule")
	}
	if out.Suppressed {
		t.Error("recoverable soft bounce must not suppress")
	}
	if got := leads.leads["soft@example.com"].Status; got != domain.LeadSoftBounced {
		t.Errorf("status = %s, want soft_bounced", got)
	}
	if got := leads.retryCounts["lead-soft@example.com"]; got != 1 {
		t.Errorf("retry count = %d, want 1", got)
	}
	if pending, _ := retries.Pending(ctx); pending != 1 {
		t.Errorf("pending jobs = %d, want 1", pending)
	}
}

func TestWebhookReceiver_ExhaustedSoftBounceBecomesHard(t *testing.T) {
	leads := newFakeLeadDir(contactedLead("tired@example.com", bounce.MaxSoftBounceRetries))
	sup := newFakeSuppressions()
	rec := NewWebhookReceiver(leads, sup, nil, nil)

	out, err := rec.ProcessBounce(context.Background(), BounceNotification{
		OrganizationID: "org-1",
		CampaignID:     "camp-1",
		Email:          "tired@example.com",
		BounceType:     domain.BounceSoft,
		Reason:         "mailbox full",
	})
	if err != nil {
		t.Fatalf("ProcessBounce: %v", err)
	}

	if out.EffectiveType != domain.BounceHard {
		t.Errorf("effective type = %s, want hard", out.EffectiveType)
	}
	if !out.Suppressed {
		t.Error("exhausted soft bounce must suppress")
	}
	if got := sup.entries["tired@example.com"]; got != domain.ReasonHardBounce {
		t.Errorf("suppression reason = %s, want hard_bounce", got)
	}
	if got := leads.leads["tired@example.com"].Status; got != domain.LeadBounced {
		t.Errorf("status = %s, want bounced", got)
	}
}

func TestWebhookReceiver_ComplaintKeepsItsReason(t *testing.T) {
	leads := newFakeLeadDir(contactedLead("angry@example.com", 0))
	sup := newFakeSuppressions()
	rec := NewWebhookReceiver(leads, sup, nil, nil)

	out, err := rec.ProcessBounce(context.Background(), BounceNotification{
		OrganizationID: "org-1",
		CampaignID:     "camp-1",
		Email:          "angry@example.com",
		BounceType:     domain.BounceComplaint,
	})
	if err != nil {
		t.Fatalf("ProcessBounce: %v", err)
	}

	if !out.Suppressed {
		t.Error("complaint must suppress")
	}
	if got := sup.entries["angry@example.com"]; got != domain.ReasonComplaint {
		t.Errorf("suppression reason = %s, want spam_complaint", got)
	}
	if got := sup.sources["angry@example.com"]; got != domain.SourceFBLReport {
		t.Errorf("suppression source = %s, want fbl_report", got)
	}
	if got := leads.leads["angry@example.com"].Status; got != domain.LeadSpamReported {
		t.Errorf("status = %s, want spam_reported", got)
	}
}

func TestWebhookReceiver_UnknownLeadStillSuppresses(t *testing.T) {
	leads := newFakeLeadDir()
	sup := newFakeSuppressions()
	rec := NewWebhookReceiver(leads, sup, nil, nil)
	ctx := context.Background()

	out, err := rec.ProcessBounce(ctx, BounceNotification{
		OrganizationID: "org-1",
		Email:          "ghost@example.com",
		BounceType:     domain.BounceHard,
	})
	if err != nil {
		t.Fatalf("ProcessBounce: %v", err)
	}
	if out.LeadFound {
		t.Error("lead must not be found")
	}
	if !out.Suppressed {
		t.Error("hard bounce for an unknown lead must still suppress")
	}

	// Soft bounces for unknown leads carry no signal worth storing.
	out, err = rec.ProcessBounce(ctx, BounceNotification{
		OrganizationID: "org-1",
		Email:          "ghost2@example.com",
		BounceType:     domain.BounceSoft,
	})
	if err != nil {
		t.Fatalf("ProcessBounce: %v", err)
	}
	if out.Suppressed {
		t.Error("soft bounce for an unknown lead must not suppress")
	}
}

func TestWebhookReceiver_RetriesLostCASRace(t *testing.T) {
	leads := newFakeLeadDir(contactedLead("busy@example.com", 0))
	leads.conflictsLeft = 1
	rec := NewWebhookReceiver(leads, newFakeSuppressions(), nil, nil)

	applied, err := rec.ProcessEngagement(context.Background(), EngagementNotification{
		OrganizationID: "org-1",
		CampaignID:     "camp-1",
		Email:          "busy@example.com",
		Type:           "open",
	})
	if err != nil {
		t.Fatalf("ProcessEngagement: %v", err)
	}
	if !applied {
		t.Error("expected the event to apply after the conflict retry")
	}
}

func TestWebhookReceiver_ReplyUnsubscribeIntentSuppresses(t *testing.T) {
	leads := newFakeLeadDir(contactedLead("done@example.com", 0))
	sup := newFakeSuppressions()
	rec := NewWebhookReceiver(leads, sup, nil, nil)

	applied, err := rec.ProcessReply(context.Background(), ReplyNotification{
		OrganizationID: "org-1",
		CampaignID:     "camp-1",
		Email:          "done@example.com",
		Intent:         "unsubscribe",
	})
	if err != nil {
		t.Fatalf("ProcessReply: %v", err)
	}
	if !applied {
		t.Error("expected unsubscribe transition to apply")
	}
	if got := sup.entries["done@example.com"]; got != domain.ReasonUnsubscribe {
		t.Errorf("suppression reason = %s, want unsubscribe", got)
	}
	if got := leads.leads["done@example.com"].Status; got != domain.LeadUnsubscribed {
		t.Errorf("status = %s, want unsubscribed", got)
	}
}

func TestWebhookReceiver_InboxPauseRecommendation(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	// 3 bounces over 100 sends sits exactly on the threshold; the next
	// bounce tips it over.
	mr.HSet("inbox:health:inb-1", "sent", "100", "bounced", "3")

	leads := newFakeLeadDir(contactedLead("bad@example.com", bounce.MaxSoftBounceRetries))
	rec := NewWebhookReceiver(leads, newFakeSuppressions(), nil, bounce.NewInboxHealth(rdb))

	out, err := rec.ProcessBounce(ctx, BounceNotification{
		OrganizationID: "org-1",
		CampaignID:     "camp-1",
		InboxID:        "inb-1",
		Email:          "bad@example.com",
		BounceType:     domain.BounceHard,
	})
	if err != nil {
		t.Fatalf("ProcessBounce: %v", err)
	}
	if !out.PauseInbox {
		t.Error("4 bounces over 100 sends must recommend a pause")
	}
}

func TestWebhookReceiver_HTTPEndpoints(t *testing.T) {
	leads := newFakeLeadDir(contactedLead("web@example.com", 0))
	rec := NewWebhookReceiver(leads, newFakeSuppressions(), nil, nil)
	srv := httptest.NewServer(rec.Routes())
	defer srv.Close()

	body, _ := json.Marshal(BounceNotification{
		OrganizationID: "org-1",
		CampaignID:     "camp-1",
		Email:          "web@example.com",
		BounceType:     domain.BounceHard,
	})
	resp, err := http.Post(srv.URL+"/bounce", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /bounce: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out BounceOutcome
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.LeadFound || !out.Suppressed {
		t.Errorf("outcome = %+v, want lead found and suppressed", out)
	}

	// Missing email is a client error.
	resp2, err := http.Post(srv.URL+"/bounce", "application/json",
		bytes.NewReader([]byte(`{"organization_id":"org-1"}`)))
	if err != nil {
		t.Fatalf("POST /bounce: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp2.StatusCode)
	}

	// Unknown lead on the engagement path is a 404.
	ebody, _ := json.Marshal(EngagementNotification{
		OrganizationID: "org-1",
		Email:          "ghost@example.com",
		Type:           "open",
	})
	resp3, err := http.Post(srv.URL+"/engagement", "application/json", bytes.NewReader(ebody))
	if err != nil {
		t.Fatalf("POST /engagement: %v", err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp3.StatusCode)
	}
}
