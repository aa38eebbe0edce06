package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/abtest"
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/distlock"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// DefaultOptimizerInterval is the reference cadence for the traffic
// optimizer tick.
const DefaultOptimizerInterval = 30 * time.Minute

// Optimizer periodically re-evaluates every running A/B test and shifts
// traffic toward statistical leaders. Each test's weight update runs in its
// own transaction: one broken test never blocks the rest. Tests with a
// declared winner are skipped entirely until a manual reset.
type Optimizer struct {
	mu       sync.RWMutex
	db       *sql.DB
	lock     distlock.DistLock
	metric   abtest.Metric
	interval time.Duration

	running   bool
	stopCh    chan struct{}
	lastRunAt time.Time
}

// NewOptimizer creates an optimizer. The lock serializes ticks across
// replicas; pass nil to run unlocked (tests, single-node deployments).
func NewOptimizer(db *sql.DB, lock distlock.DistLock, metric abtest.Metric, interval time.Duration) *Optimizer {
	if interval <= 0 {
		interval = DefaultOptimizerInterval
	}
	if metric == "" {
		metric = abtest.MetricOpenRate
	}
	return &Optimizer{
		db:       db,
		lock:     lock,
		metric:   metric,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the optimization loop.
func (o *Optimizer) Start() {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}
	o.running = true
	o.mu.Unlock()

	logger.Info("optimizer starting", "interval", o.interval.String(), "metric", string(o.metric))
	go o.loop()
}

// Stop stops the optimization loop.
func (o *Optimizer) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	o.mu.Unlock()
	close(o.stopCh)
}

// IsRunning reports whether the loop is active.
func (o *Optimizer) IsRunning() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.running
}

// LastRunAt returns the start time of the most recent tick.
func (o *Optimizer) LastRunAt() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastRunAt
}

func (o *Optimizer) loop() {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.RunOnce(context.Background())
		case <-o.stopCh:
			logger.Info("optimizer stopped")
			return
		}
	}
}

// RunOnce evaluates every active test. Exported so the HTTP surface can
// trigger an immediate evaluation.
func (o *Optimizer) RunOnce(ctx context.Context) {
	o.mu.Lock()
	o.lastRunAt = time.Now()
	o.mu.Unlock()

	if o.lock != nil {
		ok, err := o.lock.Acquire(ctx)
		if err != nil {
			logger.Warn("optimizer lock error", "error", err)
			return
		}
		if !ok {
			// Another replica owns this tick.
			return
		}
		defer o.lock.Release(ctx)
	}

	rows, err := o.db.QueryContext(ctx,
		`SELECT id FROM ab_tests WHERE status = 'running'`)
	if err != nil {
		logger.Error("optimizer query tests failed", "error", err)
		return
	}
	defer rows.Close()

	var testIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		testIDs = append(testIDs, id)
	}

	for _, testID := range testIDs {
		if err := o.evaluateTest(ctx, testID); err != nil {
			logger.Error("test evaluation failed", "test_id", testID, "error", err)
		}
	}
}

func (o *Optimizer) evaluateTest(ctx context.Context, testID string) error {
	variants, err := o.loadVariants(ctx, testID)
	if err != nil {
		return err
	}

	// Sticky winners: a test with a declared winner is never re-evaluated.
	for _, v := range variants {
		if v.IsWinner {
			return nil
		}
	}

	leader := abtest.FindLeader(variants, o.metric)
	if leader == nil {
		return nil
	}
	action := abtest.DetermineShiftAction(leader.Confidence)
	if action == nil {
		return nil
	}

	weights := abtest.AdjustedWeights(leader.VariantID, variants, *action)
	return o.applyWeights(ctx, testID, leader, weights, action.DeclareWinner)
}

func (o *Optimizer) loadVariants(ctx context.Context, testID string) ([]domain.VariantStats, error) {
	rows, err := o.db.QueryContext(ctx, `
		SELECT variant_id, sent_count, opened_count, clicked_count, replied_count, weight, is_winner
		FROM ab_test_variants WHERE test_id = $1`, testID)
	if err != nil {
		return nil, fmt.Errorf("load variants: %w", err)
	}
	defer rows.Close()

	var variants []domain.VariantStats
	for rows.Next() {
		v := domain.VariantStats{TestID: testID}
		if err := rows.Scan(&v.VariantID, &v.SentCount, &v.OpenedCount, &v.ClickedCount, &v.RepliedCount, &v.Weight, &v.IsWinner); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

// applyWeights writes the new split in a single transaction per test.
func (o *Optimizer) applyWeights(ctx context.Context, testID string, leader *abtest.Leader, weights map[string]int, declareWinner bool) error {
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for variantID, weight := range weights {
		if _, err := tx.ExecContext(ctx,
			`UPDATE ab_test_variants SET weight = $1, updated_at = NOW() WHERE test_id = $2 AND variant_id = $3`,
			weight, testID, variantID,
		); err != nil {
			return fmt.Errorf("update weight: %w", err)
		}
	}

	if declareWinner {
		if _, err := tx.ExecContext(ctx,
			`UPDATE ab_test_variants SET is_winner = TRUE WHERE test_id = $1 AND variant_id = $2`,
			testID, leader.VariantID,
		); err != nil {
			return fmt.Errorf("mark winner: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE ab_tests SET status = 'completed', winner_variant_id = $1, completed_at = NOW() WHERE id = $2`,
			leader.VariantID, testID,
		); err != nil {
			return fmt.Errorf("complete test: %w", err)
		}
		if err := recordAudit(ctx, tx, testID, domain.AuditWinnerDeclared,
			fmt.Sprintf("variant %s at confidence %.4f", leader.VariantID, leader.Confidence), weights); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	logger.Info("traffic shifted",
		"test_id", testID,
		"leader", leader.VariantID,
		"confidence", fmt.Sprintf("%.4f", leader.Confidence),
		"winner_declared", declareWinner)
	return nil
}

// ResetTest clears a declared winner and restores even weights, recording
// a test_reset audit event. Variant order follows creation order so the
// reset remainder lands deterministically on the first variant.
func (o *Optimizer) ResetTest(ctx context.Context, testID string) error {
	rows, err := o.db.QueryContext(ctx,
		`SELECT variant_id FROM ab_test_variants WHERE test_id = $1 ORDER BY created_at`, testID)
	if err != nil {
		return fmt.Errorf("load variants: %w", err)
	}
	var variantIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		variantIDs = append(variantIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(variantIDs) == 0 {
		return fmt.Errorf("test %s has no variants", testID)
	}

	weights := abtest.ResetWeights(len(variantIDs))
	weightMap := make(map[string]int, len(variantIDs))
	for i, id := range variantIDs {
		weightMap[id] = weights[i]
	}

	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for id, w := range weightMap {
		if _, err := tx.ExecContext(ctx,
			`UPDATE ab_test_variants SET weight = $1, is_winner = FALSE, updated_at = NOW() WHERE test_id = $2 AND variant_id = $3`,
			w, testID, id,
		); err != nil {
			return fmt.Errorf("reset variant: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE ab_tests SET status = 'running', winner_variant_id = NULL, completed_at = NULL WHERE id = $1`,
		testID,
	); err != nil {
		return fmt.Errorf("reopen test: %w", err)
	}
	if err := recordAudit(ctx, tx, testID, domain.AuditTestReset, "manual reset", weightMap); err != nil {
		return err
	}
	return tx.Commit()
}

// SetWeights applies a manual weight edit. The split must cover every
// variant and sum to exactly 100.
func (o *Optimizer) SetWeights(ctx context.Context, testID string, weights map[string]int) error {
	sum := 0
	for _, w := range weights {
		if w < 0 {
			return fmt.Errorf("negative weight")
		}
		sum += w
	}
	if sum != 100 {
		return fmt.Errorf("weights sum to %d, want 100", sum)
	}

	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for id, w := range weights {
		res, err := tx.ExecContext(ctx,
			`UPDATE ab_test_variants SET weight = $1, updated_at = NOW() WHERE test_id = $2 AND variant_id = $3`,
			w, testID, id,
		)
		if err != nil {
			return fmt.Errorf("set weight: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("unknown variant %s", id)
		}
	}
	if err := recordAudit(ctx, tx, testID, domain.AuditManualOverride, "manual weight edit", weights); err != nil {
		return err
	}
	return tx.Commit()
}

func recordAudit(ctx context.Context, tx *sql.Tx, testID string, action domain.ABAuditAction, detail string, weights map[string]int) error {
	payload, err := json.Marshal(weights)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ab_audit_events (id, test_id, action, detail, weights, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, uuid.New().String(), testID, action, detail, payload); err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	return nil
}
