package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach-engine/internal/bounce"
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/lifecycle"
	"github.com/ignite/outreach-engine/internal/pkg/httputil"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/service/lead"
)

// applyAttempts bounds the reload-and-retry loop when a status CAS loses a
// race to a concurrent webhook.
const applyAttempts = 3

// LeadDirectory is the slice of the lead service the receiver needs.
type LeadDirectory interface {
	GetByEmail(ctx context.Context, orgID, campaignID, email string) (*domain.Lead, error)
	ApplyEvent(ctx context.Context, l *domain.Lead, event domain.LeadEvent, metadata map[string]string) (*domain.LeadStateChange, bool, error)
	SetRetryCount(ctx context.Context, leadID string, count int) error
}

// SuppressionList is the slice of the suppression service the receiver needs.
type SuppressionList interface {
	Suppress(ctx context.Context, orgID, email string, reason domain.SuppressionReason, source domain.SuppressionSource, campaignID string) error
}

// WebhookReceiver ingests delivery notifications from the mail transport
// and drives the bounce pipeline and lead lifecycle. Handlers are idempotent
// under webhook replays: suppression inserts are no-ops on duplicates, retry
// jobs deduplicate on (lead, retry count), and already-applied transitions
// come back as rejections.
type WebhookReceiver struct {
	leads        LeadDirectory
	suppressions SuppressionList
	retries      *RetryScheduler
	health       *bounce.InboxHealth
}

// NewWebhookReceiver creates a receiver. retries and health may be nil when
// the deployment runs without Redis; the corresponding steps are skipped.
func NewWebhookReceiver(leads LeadDirectory, suppressions SuppressionList, retries *RetryScheduler, health *bounce.InboxHealth) *WebhookReceiver {
	return &WebhookReceiver{
		leads:        leads,
		suppressions: suppressions,
		retries:      retries,
		health:       health,
	}
}

// BounceNotification is the transport's bounce webhook payload.
type BounceNotification struct {
	OrganizationID string            `json:"organization_id"`
	CampaignID     string            `json:"campaign_id"`
	InboxID        string            `json:"inbox_id"`
	Email          string            `json:"email"`
	BounceType     domain.BounceType `json:"bounce_type"`
	Reason         string            `json:"reason"`
}

// BounceOutcome reports what the pipeline did with one bounce notification.
type BounceOutcome struct {
	LeadFound      bool                `json:"lead_found"`
	Action         domain.BounceAction `json:"action,omitempty"`
	EffectiveType  domain.BounceType   `json:"effective_type,omitempty"`
	StatusChanged  bool                `json:"status_changed"`
	Suppressed     bool                `json:"suppressed"`
	RetryScheduled bool                `json:"retry_scheduled"`
	PauseInbox     bool                `json:"pause_inbox"`
}

// ProcessBounce runs the full bounce pipeline for one notification.
func (rec *WebhookReceiver) ProcessBounce(ctx context.Context, n BounceNotification) (*BounceOutcome, error) {
	email := bounce.NormalizeEmail(n.Email)
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	out := &BounceOutcome{}
	l, err := rec.leads.GetByEmail(ctx, n.OrganizationID, n.CampaignID, email)
	switch {
	case errors.Is(err, lead.ErrNotFound):
		// Unknown lead: nothing to transition or retry, but hard bounces
		// and complaints still poison the address for the organization.
		if err := rec.suppressUnknown(ctx, n, email, out); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("load lead: %w", err)
	default:
		out.LeadFound = true
		if err := rec.processLeadBounce(ctx, n, l, email, out); err != nil {
			return nil, err
		}
	}

	if err := rec.recordInboxBounce(ctx, n, out); err != nil {
		logger.Warn("inbox health update failed", "inbox_id", n.InboxID, "error", err)
	}
	return out, nil
}

func (rec *WebhookReceiver) processLeadBounce(ctx context.Context, n BounceNotification, l *domain.Lead, email string, out *BounceOutcome) error {
	d := bounce.Process(n.BounceType, l.RetryCount, n.Reason)
	out.Action = d.Action
	out.EffectiveType = d.EffectiveBounceType

	changed, err := rec.applyWithRetry(ctx, n.OrganizationID, n.CampaignID, email, l, d.BounceEvent, map[string]string{
		"bounce_type": string(d.EffectiveBounceType),
		"reason":      d.Reason,
	})
	if err != nil {
		return err
	}
	out.StatusChanged = changed

	if d.Action == domain.ActionRetry {
		// Replay window: the ZSET key dedups notifications that read the
		// same persisted count. A redelivery arriving after this write
		// commits re-reads the incremented count and advances it again;
		// closing that window needs a transport notification id, which the
		// payload does not carry.
		if err := rec.leads.SetRetryCount(ctx, l.ID, d.RetryCount); err != nil {
			return fmt.Errorf("persist retry count: %w", err)
		}
		if rec.retries != nil {
			job := RetryJob{
				LeadID:         l.ID,
				OrganizationID: n.OrganizationID,
				CampaignID:     n.CampaignID,
				Email:          email,
				RetryCount:     d.RetryCount,
			}
			if err := rec.retries.Schedule(ctx, job, d.RetryDelay); err != nil {
				return fmt.Errorf("schedule retry: %w", err)
			}
			out.RetryScheduled = true
		}
	}

	if d.AddToSuppression {
		source := domain.SourceBounceWebhook
		if d.EffectiveBounceType == domain.BounceComplaint {
			source = domain.SourceFBLReport
		}
		if err := rec.suppressions.Suppress(ctx, n.OrganizationID, email, d.SuppressionReason, source, n.CampaignID); err != nil {
			return fmt.Errorf("suppress: %w", err)
		}
		out.Suppressed = true
	}
	return nil
}

func (rec *WebhookReceiver) suppressUnknown(ctx context.Context, n BounceNotification, email string, out *BounceOutcome) error {
	var reason domain.SuppressionReason
	var source domain.SuppressionSource
	switch n.BounceType {
	case domain.BounceComplaint:
		reason, source = domain.ReasonComplaint, domain.SourceFBLReport
	case domain.BounceSoft:
		return nil
	default:
		reason, source = domain.ReasonHardBounce, domain.SourceBounceWebhook
	}
	if err := rec.suppressions.Suppress(ctx, n.OrganizationID, email, reason, source, n.CampaignID); err != nil {
		return fmt.Errorf("suppress: %w", err)
	}
	out.Suppressed = true
	return nil
}

func (rec *WebhookReceiver) recordInboxBounce(ctx context.Context, n BounceNotification, out *BounceOutcome) error {
	if rec.health == nil || n.InboxID == "" {
		return nil
	}
	var err error
	if n.BounceType == domain.BounceComplaint {
		err = rec.health.RecordComplaint(ctx, n.InboxID)
	} else {
		err = rec.health.RecordBounce(ctx, n.InboxID)
	}
	if err != nil {
		return err
	}
	pause, err := rec.health.ShouldPause(ctx, n.InboxID)
	if err != nil {
		return err
	}
	if pause {
		logger.Warn("inbox over bounce threshold", "inbox_id", n.InboxID)
	}
	out.PauseInbox = pause
	return nil
}

// EngagementNotification covers send, open and click events.
type EngagementNotification struct {
	OrganizationID string `json:"organization_id"`
	CampaignID     string `json:"campaign_id"`
	InboxID        string `json:"inbox_id"`
	Email          string `json:"email"`
	Type           string `json:"type"`
}

// ProcessEngagement applies a send/open/click event to the lead. A rejected
// transition (stale or replayed webhook) is a normal outcome.
func (rec *WebhookReceiver) ProcessEngagement(ctx context.Context, n EngagementNotification) (bool, error) {
	email := bounce.NormalizeEmail(n.Email)
	if email == "" {
		return false, fmt.Errorf("email is required")
	}

	var event domain.LeadEvent
	switch strings.ToLower(strings.TrimSpace(n.Type)) {
	case "sent", "delivery":
		event = domain.EventEmailSent
	case "open":
		event = domain.EventEmailOpened
	case "click":
		event = domain.EventEmailClicked
	default:
		return false, fmt.Errorf("unknown engagement type %q", n.Type)
	}

	if event == domain.EventEmailSent && rec.health != nil && n.InboxID != "" {
		if err := rec.health.RecordSent(ctx, n.InboxID); err != nil {
			logger.Warn("inbox health update failed", "inbox_id", n.InboxID, "error", err)
		}
	}

	l, err := rec.leads.GetByEmail(ctx, n.OrganizationID, n.CampaignID, email)
	if err != nil {
		return false, err
	}
	return rec.applyWithRetry(ctx, n.OrganizationID, n.CampaignID, email, l, event, map[string]string{"type": n.Type})
}

// ReplyNotification carries a classified inbound reply.
type ReplyNotification struct {
	OrganizationID string `json:"organization_id"`
	CampaignID     string `json:"campaign_id"`
	Email          string `json:"email"`
	Intent         string `json:"intent"`
}

// ProcessReply maps the classifier intent onto a lead event. Unsubscribe
// intents also enroll the address in the suppression list.
func (rec *WebhookReceiver) ProcessReply(ctx context.Context, n ReplyNotification) (bool, error) {
	email := bounce.NormalizeEmail(n.Email)
	if email == "" {
		return false, fmt.Errorf("email is required")
	}

	event := lifecycle.ReplyIntentEvent(n.Intent)
	if event == domain.EventUnsubscribe {
		if err := rec.suppressions.Suppress(ctx, n.OrganizationID, email, domain.ReasonUnsubscribe, domain.SourceReply, n.CampaignID); err != nil {
			return false, fmt.Errorf("suppress: %w", err)
		}
	}

	l, err := rec.leads.GetByEmail(ctx, n.OrganizationID, n.CampaignID, email)
	if err != nil {
		return false, err
	}
	return rec.applyWithRetry(ctx, n.OrganizationID, n.CampaignID, email, l, event, map[string]string{"intent": n.Intent})
}

// UnsubscribeNotification is fired when a recipient uses the list
// unsubscribe link.
type UnsubscribeNotification struct {
	OrganizationID string `json:"organization_id"`
	CampaignID     string `json:"campaign_id"`
	Email          string `json:"email"`
}

// ProcessUnsubscribe suppresses the address and moves the lead to
// unsubscribed. The suppression happens even when no lead matches.
func (rec *WebhookReceiver) ProcessUnsubscribe(ctx context.Context, n UnsubscribeNotification) (bool, error) {
	email := bounce.NormalizeEmail(n.Email)
	if email == "" {
		return false, fmt.Errorf("email is required")
	}
	if err := rec.suppressions.Suppress(ctx, n.OrganizationID, email, domain.ReasonUnsubscribe, domain.SourceUnsubLink, n.CampaignID); err != nil {
		return false, fmt.Errorf("suppress: %w", err)
	}

	l, err := rec.leads.GetByEmail(ctx, n.OrganizationID, n.CampaignID, email)
	if errors.Is(err, lead.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.applyWithRetry(ctx, n.OrganizationID, n.CampaignID, email, l, domain.EventUnsubscribe, nil)
}

// applyWithRetry applies an event, reloading the lead and trying again when
// a concurrent update wins the CAS race. Gives up after applyAttempts.
func (rec *WebhookReceiver) applyWithRetry(ctx context.Context, orgID, campaignID, email string, l *domain.Lead, event domain.LeadEvent, metadata map[string]string) (bool, error) {
	for attempt := 0; attempt < applyAttempts; attempt++ {
		_, applied, err := rec.leads.ApplyEvent(ctx, l, event, metadata)
		if err == nil {
			return applied, nil
		}
		if !errors.Is(err, lead.ErrConflict) {
			return false, err
		}
		l, err = rec.leads.GetByEmail(ctx, orgID, campaignID, email)
		if err != nil {
			return false, fmt.Errorf("reload after conflict: %w", err)
		}
	}
	return false, lead.ErrConflict
}

// Routes mounts the webhook endpoints.
func (rec *WebhookReceiver) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/bounce", rec.handleBounce)
	r.Post("/engagement", rec.handleEngagement)
	r.Post("/reply", rec.handleReply)
	r.Post("/unsubscribe", rec.handleUnsubscribe)
	return r
}

func (rec *WebhookReceiver) handleBounce(w http.ResponseWriter, r *http.Request) {
	var n BounceNotification
	if !httputil.Decode(w, r, &n) {
		return
	}
	if n.OrganizationID == "" || n.Email == "" {
		httputil.BadRequest(w, "organization_id and email are required")
		return
	}
	out, err := rec.ProcessBounce(r.Context(), n)
	if err != nil {
		rec.writeProcessError(w, err)
		return
	}
	httputil.OK(w, out)
}

func (rec *WebhookReceiver) handleEngagement(w http.ResponseWriter, r *http.Request) {
	var n EngagementNotification
	if !httputil.Decode(w, r, &n) {
		return
	}
	if n.OrganizationID == "" || n.Email == "" {
		httputil.BadRequest(w, "organization_id and email are required")
		return
	}
	applied, err := rec.ProcessEngagement(r.Context(), n)
	if err != nil {
		rec.writeProcessError(w, err)
		return
	}
	httputil.OK(w, map[string]bool{"applied": applied})
}

func (rec *WebhookReceiver) handleReply(w http.ResponseWriter, r *http.Request) {
	var n ReplyNotification
	if !httputil.Decode(w, r, &n) {
		return
	}
	if n.OrganizationID == "" || n.Email == "" {
		httputil.BadRequest(w, "organization_id and email are required")
		return
	}
	applied, err := rec.ProcessReply(r.Context(), n)
	if err != nil {
		rec.writeProcessError(w, err)
		return
	}
	httputil.OK(w, map[string]bool{"applied": applied})
}

func (rec *WebhookReceiver) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var n UnsubscribeNotification
	if !httputil.Decode(w, r, &n) {
		return
	}
	if n.OrganizationID == "" || n.Email == "" {
		httputil.BadRequest(w, "organization_id and email are required")
		return
	}
	applied, err := rec.ProcessUnsubscribe(r.Context(), n)
	if err != nil {
		rec.writeProcessError(w, err)
		return
	}
	httputil.OK(w, map[string]bool{"applied": applied})
}

func (rec *WebhookReceiver) writeProcessError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lead.ErrNotFound):
		httputil.NotFound(w, "lead not found")
	case errors.Is(err, lead.ErrConflict):
		httputil.Conflict(w, "concurrent update, retry")
	default:
		httputil.InternalError(w, err)
	}
}
