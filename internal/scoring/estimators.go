package scoring

import (
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/opsboard/sopmatch/internal/features"
	"github.com/opsboard/sopmatch/internal/types"
)

// ewmaDecay is the per-step recency decay of the moving averages: the most
// recent record carries weight 1, the one before it 0.9, and so on.
const ewmaDecay = 0.9

// Estimate is a point estimate with a confidence scalar and a symmetric
// range of one standard deviation around the point.
type Estimate struct {
	Value      float64 `json:"value"`
	Confidence float64 `json:"confidence"`
	Low        float64 `json:"low"`
	High       float64 `json:"high"`
}

// EstimateCompletionTime computes the recency-weighted completion time in
// minutes over the given history.
func EstimateCompletionTime(records []types.CompletionRecord) Estimate {
	values := extract(records, func(r types.CompletionRecord) float64 { return r.TimeSpentMinutes })
	return pointEstimate(values, 0)
}

// EstimateSuccessProbability computes the recency-weighted completion
// probability over the given history, in [0,1].
func EstimateSuccessProbability(records []types.CompletionRecord) Estimate {
	values := extract(records, func(r types.CompletionRecord) float64 {
		if r.PercentComplete >= 100 {
			return 1
		}
		return 0
	})
	est := pointEstimate(values, 0)
	est.Value = clampUnit(est.Value)
	est.Low = clampUnit(est.Low)
	est.High = clampUnit(est.High)
	return est
}

// EstimateQuality computes the recency-weighted mean percent progress over
// the given history on the 0-100 scale.
func EstimateQuality(records []types.CompletionRecord) Estimate {
	values := extract(records, func(r types.CompletionRecord) float64 { return r.PercentComplete })
	est := pointEstimate(values, 0)
	est.Value = clampScore(est.Value)
	est.Low = clampScore(est.Low)
	est.High = clampScore(est.High)
	return est
}

// EstimateDifficulty blends the procedure's intrinsic complexity with the
// observed failure rate into a 0-100 difficulty.
func EstimateDifficulty(records []types.CompletionRecord, proc features.ProcedureRequirements) Estimate {
	success := EstimateSuccessProbability(records)
	value := clampScore(100 * (0.6*proc.ComplexityScore + 0.4*(1-success.Value)))
	spread := (success.High - success.Low) * 40
	return Estimate{
		Value:      value,
		Confidence: success.Confidence,
		Low:        clampScore(value - spread),
		High:       clampScore(value + spread),
	}
}

// extract pulls a value series out of records ordered oldest first.
func extract(records []types.CompletionRecord, value func(types.CompletionRecord) float64) []float64 {
	cp := append([]types.CompletionRecord(nil), records...)
	sort.Slice(cp, func(i, j int) bool { return cp[i].CompletedAt.Before(cp[j].CompletedAt) })

	out := make([]float64, len(cp))
	for i, r := range cp {
		out[i] = value(r)
	}
	return out
}

// pointEstimate computes the exponentially weighted mean of values (last
// element most recent), a one-sigma range floored at floor, and a
// confidence from sample size and dispersion. Empty input degrades to the
// fixed low confidence.
func pointEstimate(values []float64, floor float64) Estimate {
	if len(values) == 0 {
		return Estimate{Value: 0, Confidence: DegradedConfidence, Low: 0, High: 0}
	}

	weight := 1.0
	weightedSum, weightTotal := 0.0, 0.0
	for i := len(values) - 1; i >= 0; i-- {
		weightedSum += weight * values[i]
		weightTotal += weight
		weight *= ewmaDecay
	}
	value := weightedSum / weightTotal

	stddev, err := stats.StandardDeviation(values)
	if err != nil {
		stddev = 0
	}

	low := value - stddev
	if low < floor {
		low = floor
	}

	// More samples and less dispersion both raise confidence.
	sizeTerm := float64(len(values)) / 20.0
	if sizeTerm > 1 {
		sizeTerm = 1
	}
	dispersionTerm := 1.0
	if value != 0 {
		cv := stddev / value
		if cv < 0 {
			cv = -cv
		}
		dispersionTerm = clampUnit(1 - cv)
	}
	confidence := clampUnit(0.7*sizeTerm + 0.3*dispersionTerm)
	if confidence < DegradedConfidence {
		confidence = DegradedConfidence
	}

	return Estimate{Value: value, Confidence: confidence, Low: low, High: value + stddev}
}

// OutcomeEstimator scores a pairing from the profile's quality and
// performance scalars against the procedure's demands. It is the scoring
// face of the time/quality estimators: the same scalars drive the
// prediction endpoints.
type OutcomeEstimator struct{}

func (OutcomeEstimator) Name() string { return AlgorithmOutcomeEstimator }

func (OutcomeEstimator) Score(staff features.StaffProfile, proc features.ProcedureRequirements) Result {
	if staff.SampleSize == 0 {
		return Result{Algorithm: AlgorithmOutcomeEstimator, Score: 50, Confidence: DegradedConfidence}
	}

	score := 100 * (0.35*staff.QualityConsistency +
		0.25*staff.HistoricalPerformance +
		0.20*staff.ErrorRecovery +
		0.20*(1-proc.ComplexityScore))

	confidence := clampUnit(0.4 + 0.025*float64(staff.SampleSize))
	if confidence > 0.88 {
		confidence = 0.88
	}

	return Result{Algorithm: AlgorithmOutcomeEstimator, Score: clampScore(score), Confidence: confidence}
}
