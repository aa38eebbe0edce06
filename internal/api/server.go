package api

import (
	"net/http"

	"github.com/ignite/outreach-engine/internal/bounce"
	"github.com/ignite/outreach-engine/internal/service/lead"
	"github.com/ignite/outreach-engine/internal/service/suppression"
	"github.com/ignite/outreach-engine/internal/worker"
)

// Server bundles the service dependencies behind the HTTP surface.
type Server struct {
	leads        *lead.Service
	suppressions *suppression.Service
	optimizer    *worker.Optimizer
	webhooks     *worker.WebhookReceiver
	health       *bounce.InboxHealth
}

// NewServer creates the API server. optimizer, webhooks and health may be
// nil; their routes respond 503 or are not mounted.
func NewServer(
	leads *lead.Service,
	suppressions *suppression.Service,
	optimizer *worker.Optimizer,
	webhooks *worker.WebhookReceiver,
	health *bounce.InboxHealth,
) *Server {
	return &Server{
		leads:        leads,
		suppressions: suppressions,
		optimizer:    optimizer,
		webhooks:     webhooks,
		health:       health,
	}
}

// orgID extracts the organization scope from the request. Every /api route
// is organization-scoped.
func orgID(r *http.Request) string {
	if id := r.Header.Get("X-Organization-ID"); id != "" {
		return id
	}
	return r.URL.Query().Get("org_id")
}
