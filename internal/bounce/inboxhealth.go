package bounce

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

const (
	// MinEmailsForRate is the sample floor below which an inbox is never
	// auto-paused, regardless of its bounce rate. Tiny samples produce
	// false positives.
	MinEmailsForRate = 50

	// BounceRateThreshold pauses an inbox only when its bounce rate is
	// strictly above this value; exactly 3.0% does not pause.
	BounceRateThreshold = 0.03
)

// ShouldAutoPause decides whether a sending inbox must stop sending based
// on its rolling bounce counters.
func ShouldAutoPause(bounceCount, sentTotal int) bool {
	if sentTotal < MinEmailsForRate {
		return false
	}
	return float64(bounceCount)/float64(sentTotal) > BounceRateThreshold
}

// InboxHealth keeps rolling per-inbox send/bounce/complaint counters in
// Redis so every replica sees the same sample. The host resets the window
// (by deleting the hash) on its own cadence.
type InboxHealth struct {
	rdb *redis.Client
}

// NewInboxHealth creates a Redis-backed inbox health tracker.
func NewInboxHealth(rdb *redis.Client) *InboxHealth {
	return &InboxHealth{rdb: rdb}
}

func inboxKey(inboxID string) string {
	return fmt.Sprintf("inbox:health:%s", inboxID)
}

// RecordSent increments the sent counter for an inbox.
func (h *InboxHealth) RecordSent(ctx context.Context, inboxID string) error {
	return h.rdb.HIncrBy(ctx, inboxKey(inboxID), "sent", 1).Err()
}

// RecordBounce increments the bounce counter for an inbox.
func (h *InboxHealth) RecordBounce(ctx context.Context, inboxID string) error {
	return h.rdb.HIncrBy(ctx, inboxKey(inboxID), "bounced", 1).Err()
}

// RecordComplaint increments the spam complaint counter for an inbox.
// Complaints do not feed the bounce-rate pause; the host escalates them
// separately.
func (h *InboxHealth) RecordComplaint(ctx context.Context, inboxID string) error {
	return h.rdb.HIncrBy(ctx, inboxKey(inboxID), "complained", 1).Err()
}

// ShouldPause reads the rolling counters and applies the auto-pause rule.
// Redis errors fail open (no pause) but are logged: a flaky Redis must not
// stop a healthy inbox.
func (h *InboxHealth) ShouldPause(ctx context.Context, inboxID string) (bool, error) {
	vals, err := h.rdb.HMGet(ctx, inboxKey(inboxID), "bounced", "sent").Result()
	if err != nil {
		logger.Warn("inbox health read failed", "inbox_id", inboxID, "error", err)
		return false, err
	}
	bounced := toInt(vals[0])
	sent := toInt(vals[1])
	return ShouldAutoPause(bounced, sent), nil
}

// Reset clears the rolling window for an inbox.
func (h *InboxHealth) Reset(ctx context.Context, inboxID string) error {
	return h.rdb.Del(ctx, inboxKey(inboxID)).Err()
}

func toInt(v any) int {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n := 0
	fmt.Sscanf(s, "%d", &n)
	return n
}
