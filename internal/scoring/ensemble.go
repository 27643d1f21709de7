package scoring

import (
	"github.com/montanaflynn/stats"
)

// Combined is the ensemble output: one score with a clamped confidence
// interval and the per-algorithm contributions that produced it.
type Combined struct {
	Score         float64  `json:"score"`
	Confidence    float64  `json:"confidence"`
	IntervalLow   float64  `json:"interval_low"`
	IntervalHigh  float64  `json:"interval_high"`
	Contributions []Result `json:"contributions"`
}

// Combine merges the ordered algorithm results into a single score using
// the per-algorithm weights from cfg. The confidence interval is
// mean ± 1.96σ over the individual scores, clamped to [0,100].
//
// When the ensemble is disabled the first algorithm's raw score is returned
// unchanged with a degenerate interval; that is documented fallback
// behavior, not an error.
func Combine(results []Result, cfg Config) Combined {
	if len(results) == 0 {
		return Combined{Confidence: DegradedConfidence}
	}

	if !cfg.EnsembleEnabled {
		first := results[0]
		return Combined{
			Score:         first.Score,
			Confidence:    first.Confidence,
			IntervalLow:   clampScore(first.Score),
			IntervalHigh:  clampScore(first.Score),
			Contributions: results,
		}
	}

	names := make([]string, len(results))
	scores := make([]float64, len(results))
	for i, r := range results {
		names[i] = r.Algorithm
		scores[i] = r.Score
	}
	weights := cfg.weightsFor(names)

	weightedScore, weightedConfidence, weightTotal := 0.0, 0.0, 0.0
	for i, r := range results {
		weightedScore += weights[i] * r.Score
		weightedConfidence += weights[i] * r.Confidence
		weightTotal += weights[i]
	}
	score := weightedScore / weightTotal
	confidence := clampUnit(weightedConfidence / weightTotal)

	mean, err := stats.Mean(scores)
	if err != nil {
		mean = score
	}
	stddev, err := stats.StandardDeviation(scores)
	if err != nil {
		stddev = 0
	}

	low := clampScore(mean - 1.96*stddev)
	high := clampScore(mean + 1.96*stddev)
	if low > high {
		low, high = high, low
	}

	return Combined{
		Score:         clampScore(score),
		Confidence:    confidence,
		IntervalLow:   low,
		IntervalHigh:  high,
		Contributions: results,
	}
}
