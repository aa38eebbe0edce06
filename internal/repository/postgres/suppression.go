package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/service/suppression"
)

// SuppressionRepo implements suppression.Repository against PostgreSQL.
type SuppressionRepo struct{ db *sql.DB }

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

func (r *SuppressionRepo) IsSuppressed(ctx context.Context, orgID, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM suppressions WHERE organization_id = $1 AND email = $2)`,
		orgID, email,
	).Scan(&exists)
	return exists, err
}

func (r *SuppressionRepo) Suppress(ctx context.Context, s *domain.Suppression) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	// ON CONFLICT DO NOTHING keeps the first record: suppression is
	// append-only and idempotent.
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO suppressions (id, organization_id, email, reason, source, campaign_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (organization_id, email) DO NOTHING
	`, s.ID, s.OrganizationID, s.Email, s.Reason, s.Source, s.CampaignID)
	if err != nil {
		return fmt.Errorf("suppress: %w", err)
	}
	return nil
}

func (r *SuppressionRepo) Remove(ctx context.Context, orgID, email string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM suppressions WHERE organization_id = $1 AND email = $2`,
		orgID, email,
	)
	if err != nil {
		return fmt.Errorf("remove suppression: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return suppression.ErrNotFound
	}
	return nil
}

func (r *SuppressionRepo) List(ctx context.Context, orgID string, f suppression.ListFilter) ([]domain.Suppression, int, error) {
	// The total must reflect the same predicates as the rows, or paginated
	// responses overstate the filtered set.
	var total int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM suppressions
		WHERE organization_id = $1
		  AND ($2 = '' OR reason = $2)
		  AND ($3 = '' OR source = $3)
		  AND ($4 = '' OR email LIKE '%' || $4 || '%')
	`, orgID, f.Reason, f.Source, f.Search).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count suppressions: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = total
	}
	if limit == 0 {
		return nil, 0, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, organization_id, email, reason, source, campaign_id, created_at
		FROM suppressions
		WHERE organization_id = $1
		  AND ($2 = '' OR reason = $2)
		  AND ($3 = '' OR source = $3)
		  AND ($4 = '' OR email LIKE '%' || $4 || '%')
		ORDER BY created_at DESC
		LIMIT $5 OFFSET $6
	`, orgID, f.Reason, f.Source, f.Search, limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list suppressions: %w", err)
	}
	defer rows.Close()

	var out []domain.Suppression
	for rows.Next() {
		var s domain.Suppression
		var campaignID sql.NullString
		if err := rows.Scan(&s.ID, &s.OrganizationID, &s.Email, &s.Reason, &s.Source, &campaignID, &s.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan suppression: %w", err)
		}
		s.CampaignID = campaignID.String
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *SuppressionRepo) Count(ctx context.Context, orgID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM suppressions WHERE organization_id = $1`, orgID,
	).Scan(&n)
	return n, err
}
