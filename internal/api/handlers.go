package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/httputil"
	"github.com/ignite/outreach-engine/internal/service/lead"
	"github.com/ignite/outreach-engine/internal/service/suppression"
)

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}
	if s.optimizer != nil {
		status["optimizer_running"] = s.optimizer.IsRunning()
		if last := s.optimizer.LastRunAt(); !last.IsZero() {
			status["optimizer_last_run"] = last
		}
	}
	httputil.OK(w, status)
}

func (s *Server) handleListSuppressions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	entries, total, err := s.suppressions.List(r.Context(), orgID(r), suppression.ListFilter{
		Reason: q.Get("reason"),
		Source: q.Get("source"),
		Search: q.Get("search"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"entries": entries,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

func (s *Server) handleAddSuppression(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email      string `json:"email"`
		Reason     string `json:"reason"`
		CampaignID string `json:"campaign_id"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Email == "" {
		httputil.BadRequest(w, "email is required")
		return
	}
	reason := domain.SuppressionReason(req.Reason)
	if reason == "" {
		reason = domain.ReasonManual
	}

	err := s.suppressions.Suppress(r.Context(), orgID(r), req.Email, reason, domain.SourceManual, req.CampaignID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, map[string]string{"email": req.Email, "reason": string(reason)})
}

func (s *Server) handleRemoveSuppression(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	err := s.suppressions.Remove(r.Context(), orgID(r), email)
	if errors.Is(err, suppression.ErrNotFound) {
		httputil.NotFound(w, "email is not suppressed")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (s *Server) handleSuppressionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.suppressions.GetStats(r.Context(), orgID(r))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, stats)
}

func (s *Server) handleCheckSuppression(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		httputil.BadRequest(w, "email query parameter is required")
		return
	}
	suppressed, err := s.suppressions.IsSuppressed(r.Context(), orgID(r), email)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"email": email, "suppressed": suppressed})
}

func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	l, err := s.leads.Get(r.Context(), orgID(r), chi.URLParam(r, "leadID"))
	if errors.Is(err, lead.ErrNotFound) {
		httputil.NotFound(w, "lead not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, l)
}

func (s *Server) handleAvailableEvents(w http.ResponseWriter, r *http.Request) {
	l, err := s.leads.Get(r.Context(), orgID(r), chi.URLParam(r, "leadID"))
	if errors.Is(err, lead.ErrNotFound) {
		httputil.NotFound(w, "lead not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"status":       l.Status,
		"events":       s.leads.AvailableEvents(l),
		"can_sequence": s.leads.CanSendSequenceStep(l),
	})
}

func (s *Server) handleApplyEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Event    string            `json:"event"`
		Metadata map[string]string `json:"metadata"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Event == "" {
		httputil.BadRequest(w, "event is required")
		return
	}

	change, applied, err := s.leads.ApplyEventByID(r.Context(), orgID(r), chi.URLParam(r, "leadID"),
		domain.LeadEvent(req.Event), req.Metadata)
	switch {
	case errors.Is(err, lead.ErrNotFound):
		httputil.NotFound(w, "lead not found")
	case errors.Is(err, lead.ErrConflict):
		httputil.Conflict(w, "concurrent update, retry")
	case err != nil:
		httputil.InternalError(w, err)
	case !applied:
		// A rejected transition is a valid answer, not an error.
		httputil.OK(w, map[string]any{"applied": false})
	default:
		httputil.OK(w, map[string]any{"applied": true, "change": change})
	}
}

func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target string `json:"target"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}

	change, err := s.leads.Override(r.Context(), orgID(r), chi.URLParam(r, "leadID"),
		domain.LeadStatus(req.Target))
	switch {
	case errors.Is(err, lead.ErrNotFound):
		httputil.NotFound(w, "lead not found")
	case errors.Is(err, lead.ErrConflict):
		httputil.Conflict(w, "concurrent update, retry")
	case err != nil:
		httputil.BadRequest(w, err.Error())
	default:
		httputil.OK(w, map[string]any{"applied": true, "change": change})
	}
}

func (s *Server) handleEvaluateNow(w http.ResponseWriter, r *http.Request) {
	if s.optimizer == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "optimizer is not enabled")
		return
	}
	s.optimizer.RunOnce(r.Context())
	httputil.Accepted(w, map[string]string{"status": "evaluated"})
}

func (s *Server) handleResetTest(w http.ResponseWriter, r *http.Request) {
	if s.optimizer == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "optimizer is not enabled")
		return
	}
	if err := s.optimizer.ResetTest(r.Context(), chi.URLParam(r, "testID")); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "reset"})
}

func (s *Server) handleSetWeights(w http.ResponseWriter, r *http.Request) {
	if s.optimizer == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "optimizer is not enabled")
		return
	}
	var req struct {
		Weights map[string]int `json:"weights"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.Weights) == 0 {
		httputil.BadRequest(w, "weights are required")
		return
	}
	if err := s.optimizer.SetWeights(r.Context(), chi.URLParam(r, "testID"), req.Weights); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.OK(w, map[string]any{"weights": req.Weights})
}

func (s *Server) handleInboxHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "inbox health tracking is not enabled")
		return
	}
	inboxID := chi.URLParam(r, "inboxID")
	pause, err := s.health.ShouldPause(r.Context(), inboxID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"inbox_id": inboxID, "pause": pause})
}

func (s *Server) handleResetInboxHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "inbox health tracking is not enabled")
		return
	}
	if err := s.health.Reset(r.Context(), chi.URLParam(r, "inboxID")); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}
