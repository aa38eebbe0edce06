package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

const (
	retryScheduleKey = "retry:schedule"
	retryPayloadKey  = "retry:payloads"

	// retryRequeueDelay is the backoff applied when a handler fails and the
	// job goes back on the schedule.
	retryRequeueDelay = 5 * time.Minute
)

// RetryJob is one scheduled re-send attempt after a soft bounce.
type RetryJob struct {
	LeadID         string `json:"lead_id"`
	OrganizationID string `json:"organization_id"`
	CampaignID     string `json:"campaign_id"`
	Email          string `json:"email"`
	RetryCount     int    `json:"retry_count"`
}

// Key identifies a job for deduplication. Scheduling the same lead at the
// same retry count twice is a no-op, which makes webhook replays safe.
func (j RetryJob) Key() string {
	return j.LeadID + ":" + strconv.Itoa(j.RetryCount)
}

// RetryHandler processes one due retry job. Returning an error puts the job
// back on the schedule with a requeue delay, giving at-least-once delivery.
type RetryHandler func(ctx context.Context, job RetryJob) error

// RetryScheduler stores delayed retry jobs in a Redis sorted set keyed by
// due time and drains due jobs on a ticker.
type RetryScheduler struct {
	mu       sync.RWMutex
	rdb      *redis.Client
	handler  RetryHandler
	interval time.Duration

	running bool
	stopCh  chan struct{}
}

// NewRetryScheduler creates a scheduler that polls for due jobs every
// interval.
func NewRetryScheduler(rdb *redis.Client, handler RetryHandler, interval time.Duration) *RetryScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &RetryScheduler{
		rdb:      rdb,
		handler:  handler,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Schedule enqueues a retry job to fire after delay. Duplicate keys keep
// their original due time.
func (s *RetryScheduler) Schedule(ctx context.Context, job RetryJob, delay time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal retry job: %w", err)
	}
	due := float64(time.Now().Add(delay).Unix())

	if err := s.rdb.ZAddNX(ctx, retryScheduleKey, redis.Z{
		Score:  due,
		Member: job.Key(),
	}).Err(); err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	if err := s.rdb.HSet(ctx, retryPayloadKey, job.Key(), payload).Err(); err != nil {
		return fmt.Errorf("store retry payload: %w", err)
	}
	return nil
}

// Pending returns the number of jobs currently on the schedule.
func (s *RetryScheduler) Pending(ctx context.Context) (int64, error) {
	return s.rdb.ZCard(ctx, retryScheduleKey).Result()
}

// Start begins the drain loop.
func (s *RetryScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	logger.Info("retry scheduler starting", "interval", s.interval.String())
	go s.loop()
}

// Stop stops the drain loop.
func (s *RetryScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()
	close(s.stopCh)
}

// IsRunning reports whether the loop is active.
func (s *RetryScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *RetryScheduler) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.DrainDue(context.Background(), time.Now())
		case <-s.stopCh:
			logger.Info("retry scheduler stopped")
			return
		}
	}
}

// DrainDue pops every job due at or before now and hands it to the handler.
// Failed jobs are re-scheduled. Returns how many jobs were processed.
func (s *RetryScheduler) DrainDue(ctx context.Context, now time.Time) int {
	keys, err := s.rdb.ZRangeByScore(ctx, retryScheduleKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		logger.Error("retry drain query failed", "error", err)
		return 0
	}

	processed := 0
	for _, key := range keys {
		job, ok := s.takeJob(ctx, key)
		if !ok {
			continue
		}
		if err := s.handler(ctx, job); err != nil {
			logger.Warn("retry job failed, requeueing",
				"lead_id", job.LeadID, "retry_count", job.RetryCount, "error", err)
			if rerr := s.Schedule(ctx, job, retryRequeueDelay); rerr != nil {
				logger.Error("retry requeue failed", "lead_id", job.LeadID, "error", rerr)
			}
			continue
		}
		processed++
	}
	return processed
}

// takeJob atomically claims one job off the schedule. The ZRem result is the
// claim: when two drainers race, only the one that removed the member runs
// the job.
func (s *RetryScheduler) takeJob(ctx context.Context, key string) (RetryJob, bool) {
	removed, err := s.rdb.ZRem(ctx, retryScheduleKey, key).Result()
	if err != nil || removed == 0 {
		return RetryJob{}, false
	}

	raw, err := s.rdb.HGet(ctx, retryPayloadKey, key).Result()
	if err != nil {
		logger.Error("retry payload missing", "key", key, "error", err)
		return RetryJob{}, false
	}
	s.rdb.HDel(ctx, retryPayloadKey, key)

	var job RetryJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		logger.Error("retry payload corrupt", "key", key, "error", err)
		return RetryJob{}, false
	}
	return job, true
}
