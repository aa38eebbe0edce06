package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/service/lead"
)

// LeadRepo implements lead.Repository against PostgreSQL.
type LeadRepo struct{ db *sql.DB }

// NewLeadRepo creates a Postgres-backed lead repository.
func NewLeadRepo(db *sql.DB) *LeadRepo { return &LeadRepo{db: db} }

const leadColumns = `id, organization_id, campaign_id, email, first_name, last_name,
	status, sequence_step, retry_count, last_contacted_at, last_reply_at, created_at, updated_at`

func (r *LeadRepo) Get(ctx context.Context, orgID, id string) (*domain.Lead, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE organization_id = $1 AND id = $2`,
		orgID, id,
	)
	return scanLead(row)
}

func (r *LeadRepo) GetByEmail(ctx context.Context, orgID, campaignID, email string) (*domain.Lead, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE organization_id = $1 AND campaign_id = $2 AND email = $3`,
		orgID, campaignID, email,
	)
	return scanLead(row)
}

// UpdateStatusCAS is the concurrency guard for the whole pipeline: the
// UPDATE only matches when the status column still holds the value the
// caller read, so racing producers can never both commit.
func (r *LeadRepo) UpdateStatusCAS(ctx context.Context, leadID string, from, to domain.LeadStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE leads SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		to, leadID, from,
	)
	if err != nil {
		return false, fmt.Errorf("cas update lead: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *LeadRepo) SetRetryCount(ctx context.Context, leadID string, count int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE leads SET retry_count = $1, updated_at = NOW() WHERE id = $2`,
		count, leadID,
	)
	if err != nil {
		return fmt.Errorf("set retry count: %w", err)
	}
	return nil
}

func (r *LeadRepo) RecordStateChange(ctx context.Context, c *domain.LeadStateChange) error {
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO lead_state_changes (id, lead_id, previous_status, new_status, event, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.LeadID, c.PreviousStatus, c.NewStatus, c.Event, meta, c.Timestamp)
	if err != nil {
		return fmt.Errorf("record state change: %w", err)
	}
	return nil
}

func scanLead(row *sql.Row) (*domain.Lead, error) {
	var l domain.Lead
	err := row.Scan(
		&l.ID, &l.OrganizationID, &l.CampaignID, &l.Email, &l.FirstName, &l.LastName,
		&l.Status, &l.SequenceStep, &l.RetryCount, &l.LastContactedAt, &l.LastReplyAt,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lead.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan lead: %w", err)
	}
	return &l, nil
}
