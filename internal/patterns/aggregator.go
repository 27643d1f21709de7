package patterns

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"

	"github.com/opsboard/sopmatch/internal/types"
)

// PatternType selects which metric of the completion log is aggregated.
type PatternType string

const (
	CompletionTime PatternType = "completion_time"
	SuccessRate    PatternType = "success_rate"
	ErrorPattern   PatternType = "error"
	Seasonal       PatternType = "seasonal"
	Difficulty     PatternType = "difficulty"
)

// AllPatternTypes lists every supported pattern type.
func AllPatternTypes() []PatternType {
	return []PatternType{CompletionTime, SuccessRate, ErrorPattern, Seasonal, Difficulty}
}

// ParsePatternType validates a pattern type string.
func ParsePatternType(s string) (PatternType, bool) {
	switch PatternType(s) {
	case CompletionTime, SuccessRate, ErrorPattern, Seasonal, Difficulty:
		return PatternType(s), true
	default:
		return "", false
	}
}

// Trend classifications.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// trendThreshold is the minimum relative change between the first- and
// second-half bucket means before a trend is flagged; smaller moves are
// reported as stable so noise is not labelled a trend.
const trendThreshold = 0.05

// minRetainedConfidence is the floor below which a computed pattern is
// dropped rather than reported.
const minRetainedConfidence = 0.6

// Statistics are the descriptive statistics of one analyzed group.
type Statistics struct {
	Mean          float64 `json:"mean"`
	Median        float64 `json:"median"`
	StdDev        float64 `json:"std_dev"`
	SampleSize    int     `json:"sample_size"`
	BucketCount   int     `json:"bucket_count"`
	Trend         string  `json:"trend"`
	ChangePercent float64 `json:"change_percent"`
}

// Pattern is one persisted statistical summary over a group of completion
// records. Analysis runs append new rows; existing patterns are never
// updated in place, so the history accumulates.
type Pattern struct {
	ID          string      `json:"id"`
	SOPID       string      `json:"sop_id"`
	PatternType PatternType `json:"pattern_type"`
	Granularity Granularity `json:"granularity"`
	Stats       Statistics  `json:"stats"`
	Insights    []string    `json:"insights"`
	Confidence  float64     `json:"confidence"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Analyze groups records by procedure, buckets each group by time, and
// computes descriptive statistics, a trend and templated insights. Groups
// below minSampleSize are silently skipped, and patterns that do not reach
// the retention confidence are dropped.
func Analyze(records []types.CompletionRecord, patternType PatternType, granularity Granularity, minSampleSize int) []Pattern {
	bySOP := make(map[string][]types.CompletionRecord)
	for _, r := range records {
		bySOP[r.SOPID] = append(bySOP[r.SOPID], r)
	}

	sopIDs := make([]string, 0, len(bySOP))
	for id := range bySOP {
		sopIDs = append(sopIDs, id)
	}
	sort.Strings(sopIDs)

	now := time.Now().UTC()
	out := make([]Pattern, 0, len(sopIDs))
	for _, sopID := range sopIDs {
		group := bySOP[sopID]
		if len(group) < minSampleSize {
			continue
		}

		statistics, ok := analyzeGroup(group, patternType, granularity)
		if !ok {
			continue
		}

		confidence := confidenceLevel(statistics)
		if confidence < minRetainedConfidence {
			continue
		}

		out = append(out, Pattern{
			ID:          uuid.New().String(),
			SOPID:       sopID,
			PatternType: patternType,
			Granularity: granularity,
			Stats:       statistics,
			Insights:    insights(sopID, patternType, statistics),
			Confidence:  confidence,
			CreatedAt:   now,
		})
	}
	return out
}

// metricValue extracts the analyzed metric from one record.
func metricValue(r types.CompletionRecord, patternType PatternType) float64 {
	switch patternType {
	case SuccessRate:
		if r.PercentComplete >= 100 {
			return 1
		}
		return 0
	case ErrorPattern:
		return 100 - r.PercentComplete
	case Difficulty:
		// long attempts that still fall short read as difficulty
		return r.TimeSpentMinutes * (1 + (100-r.PercentComplete)/100)
	default: // CompletionTime, Seasonal
		return r.TimeSpentMinutes
	}
}

func analyzeGroup(group []types.CompletionRecord, patternType PatternType, granularity Granularity) (Statistics, bool) {
	values := make([]float64, len(group))
	buckets := make(map[string][]float64)
	for i, r := range group {
		v := metricValue(r, patternType)
		values[i] = v
		key := BucketKey(r.CompletedAt, granularity)
		buckets[key] = append(buckets[key], v)
	}

	mean, err := stats.Mean(values)
	if err != nil {
		return Statistics{}, false
	}
	median, err := stats.Median(values)
	if err != nil {
		return Statistics{}, false
	}
	stddev, err := stats.StandardDeviation(values)
	if err != nil {
		stddev = 0
	}

	bucketMeans := orderedBucketMeans(buckets)
	trend, change := classifyTrend(bucketMeans)

	return Statistics{
		Mean:          mean,
		Median:        median,
		StdDev:        stddev,
		SampleSize:    len(group),
		BucketCount:   len(bucketMeans),
		Trend:         trend,
		ChangePercent: change,
	}, true
}

// orderedBucketMeans returns the per-bucket means in bucket-label order.
// Labels are built so lexicographic order is chronological order.
func orderedBucketMeans(buckets map[string][]float64) []float64 {
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	means := make([]float64, 0, len(keys))
	for _, k := range keys {
		m, err := stats.Mean(buckets[k])
		if err != nil {
			continue
		}
		means = append(means, m)
	}
	return means
}

// classifyTrend compares the mean of the first half of ordered bucket
// means against the second half. Relative changes under the threshold are
// stable.
func classifyTrend(bucketMeans []float64) (string, float64) {
	if len(bucketMeans) < 2 {
		return TrendStable, 0
	}

	mid := len(bucketMeans) / 2
	firstHalf, err := stats.Mean(bucketMeans[:mid])
	if err != nil {
		return TrendStable, 0
	}
	secondHalf, err := stats.Mean(bucketMeans[mid:])
	if err != nil {
		return TrendStable, 0
	}

	if firstHalf == 0 {
		if secondHalf == 0 {
			return TrendStable, 0
		}
		return TrendIncreasing, 100
	}

	change := (secondHalf - firstHalf) / math.Abs(firstHalf)
	changePercent := change * 100

	switch {
	case change >= trendThreshold:
		return TrendIncreasing, changePercent
	case change <= -trendThreshold:
		return TrendDecreasing, changePercent
	default:
		return TrendStable, changePercent
	}
}

// confidenceLevel combines sample-size tiers with a variability penalty,
// clamped to [0.1, 1.0].
func confidenceLevel(s Statistics) float64 {
	confidence := 0.4

	switch {
	case s.SampleSize >= 100:
		confidence += 0.3
	case s.SampleSize >= 50:
		confidence += 0.2
	case s.SampleSize >= 20:
		confidence += 0.1
	}

	if s.Mean != 0 {
		cv := math.Abs(s.StdDev / s.Mean)
		confidence -= 0.2 * math.Min(cv, 1)
	}

	if s.BucketCount >= 4 {
		confidence += 0.1
	}

	if confidence < 0.1 {
		confidence = 0.1
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

// insights renders the templated natural-language summaries for a pattern.
func insights(sopID string, patternType PatternType, s Statistics) []string {
	out := []string{
		fmt.Sprintf("Procedure %s shows a %s %s trend over %d buckets (%.1f%% change)",
			sopID, s.Trend, patternType, s.BucketCount, s.ChangePercent),
		fmt.Sprintf("Mean %.1f, median %.1f across %d records", s.Mean, s.Median, s.SampleSize),
	}

	if s.Mean != 0 && math.Abs(s.StdDev/s.Mean) > 0.5 {
		out = append(out, fmt.Sprintf("High variability (σ=%.1f); results differ widely between staff", s.StdDev))
	}

	switch {
	case patternType == CompletionTime && s.Trend == TrendDecreasing:
		out = append(out, "Completion times are improving; recent attempts finish faster")
	case patternType == SuccessRate && s.Trend == TrendDecreasing:
		out = append(out, "Success rate is declining; review recent procedure changes or training")
	case patternType == ErrorPattern && s.Trend == TrendIncreasing:
		out = append(out, "Error rate is rising; consider refresher training")
	}

	return out
}
