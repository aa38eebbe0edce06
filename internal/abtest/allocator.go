package abtest

import (
	"sort"

	"github.com/ignite/outreach-engine/internal/domain"
)

const (
	// MinSamplesPerVariant gates evaluation: every variant needs this many
	// sends before the test is compared at all.
	MinSamplesPerVariant = 50

	// MinLeaderConfidence is the floor below which no traffic shifts.
	MinLeaderConfidence = 0.70
)

// Metric selects which derived rate a test optimizes for.
type Metric string

const (
	MetricOpenRate  Metric = "open_rate"
	MetricClickRate Metric = "click_rate"
	MetricReplyRate Metric = "reply_rate"
)

// Rate returns the chosen rate for a variant, 0 on unknown metrics.
func (m Metric) Rate(v domain.VariantStats) float64 {
	switch m {
	case MetricClickRate:
		return v.ClickRate()
	case MetricReplyRate:
		return v.ReplyRate()
	case MetricOpenRate:
		return v.OpenRate()
	}
	return 0
}

// Leader identifies the best-performing variant of a test and the
// confidence that its lead over the runner-up is real.
type Leader struct {
	VariantID  string
	Rate       float64
	Confidence float64
}

// FindLeader compares the top two variants by the chosen metric and returns
// the leader if the confidence in its lead is at least MinLeaderConfidence.
// Returns nil when the test has fewer than two variants, any variant is
// below the minimum sample size, or the lead is not yet convincing.
func FindLeader(variants []domain.VariantStats, metric Metric) *Leader {
	if len(variants) < 2 {
		return nil
	}
	for _, v := range variants {
		if v.SentCount < MinSamplesPerVariant {
			return nil
		}
	}

	ranked := make([]domain.VariantStats, len(variants))
	copy(ranked, variants)
	sort.SliceStable(ranked, func(i, j int) bool {
		return metric.Rate(ranked[i]) > metric.Rate(ranked[j])
	})

	best, second := ranked[0], ranked[1]
	z := ZScore(metric.Rate(best), best.SentCount, metric.Rate(second), second.SentCount)
	conf := Confidence(z)
	if conf < MinLeaderConfidence {
		return nil
	}
	return &Leader{
		VariantID:  best.VariantID,
		Rate:       metric.Rate(best),
		Confidence: conf,
	}
}

// ShiftAction is the traffic decision for one optimizer evaluation.
type ShiftAction struct {
	LeaderWeight  int
	DeclareWinner bool
}

// DetermineShiftAction maps a confidence level onto the progressive
// shifting schedule. Tier boundaries are inclusive at the bottom. Returns
// nil below the minimum confidence: no action, weights stay as they are.
func DetermineShiftAction(confidence float64) *ShiftAction {
	switch {
	case confidence >= 0.95:
		return &ShiftAction{LeaderWeight: 100, DeclareWinner: true}
	case confidence >= 0.90:
		return &ShiftAction{LeaderWeight: 85}
	case confidence >= 0.80:
		return &ShiftAction{LeaderWeight: 75}
	case confidence >= MinLeaderConfidence:
		return &ShiftAction{LeaderWeight: 60}
	}
	return nil
}

// AdjustedWeights computes the new weight map after a shift action. The
// leader gets leaderWeight; on winner declaration every other variant gets
// 0. Otherwise losers split the remainder evenly with integer floor — with
// three or more variants the total can legitimately sum below 100, an
// accepted rounding loss.
func AdjustedWeights(leaderID string, variants []domain.VariantStats, action ShiftAction) map[string]int {
	weights := make(map[string]int, len(variants))
	loserCount := len(variants) - 1

	loserWeight := 0
	if !action.DeclareWinner && loserCount > 0 {
		loserWeight = (100 - action.LeaderWeight) / loserCount
	}

	for _, v := range variants {
		if v.VariantID == leaderID {
			weights[v.VariantID] = action.LeaderWeight
		} else {
			weights[v.VariantID] = loserWeight
		}
	}
	return weights
}

// ResetWeights returns an even split across n variants. The integer
// remainder of 100/n goes entirely to the first variant so the total always
// sums to exactly 100, for any n >= 1.
func ResetWeights(n int) []int {
	if n <= 0 {
		return nil
	}
	base := 100 / n
	weights := make([]int, n)
	for i := range weights {
		weights[i] = base
	}
	weights[0] += 100 - base*n
	return weights
}
