package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsboard/sopmatch/internal/features"
	"github.com/opsboard/sopmatch/internal/types"
)

func sampleProfile() features.StaffProfile {
	return features.StaffProfile{
		StaffID:                   "staff-1",
		Role:                      "line_cook",
		TechnicalSkills:           []float64{0.7, 0.6},
		SoftSkills:                []float64{0.8},
		DomainKnowledge:           []float64{0.5, 0.4},
		ProblemSolvingSkills:      []float64{0.6},
		ExperienceLevel:           0.6,
		HistoricalPerformance:     0.7,
		CompletionSpeedPercentile: 0.5,
		QualityConsistency:        0.8,
		ErrorRecovery:             0.6,
		SampleSize:                15,
	}
}

func sampleRequirements() features.ProcedureRequirements {
	return features.ProcedureRequirements{
		SOPID:             "sop-1",
		RequirementVector: []float64{0.6, 0.5, 0.7, 0.4, 0.5, 0.6},
		ComplexityScore:   0.5,
		EstimatedDuration: 45,
		BaseSuccessRate:   0.7,
		SampleSize:        30,
	}
}

func TestDefaultStrategiesCount(t *testing.T) {
	strategies := DefaultStrategies()
	require.Len(t, strategies, 5)

	names := make(map[string]bool)
	for _, s := range strategies {
		names[s.Name()] = true
	}
	assert.True(t, names[AlgorithmVectorSimilarity])
	assert.True(t, names[AlgorithmWeightedBoosting])
	assert.True(t, names[AlgorithmRandomizedEnsemble])
	assert.True(t, names[AlgorithmLogisticProbability])
	assert.True(t, names[AlgorithmOutcomeEstimator])
}

func TestAllStrategiesStayInBounds(t *testing.T) {
	profile := sampleProfile()
	proc := sampleRequirements()

	for _, strategy := range DefaultStrategies() {
		t.Run(strategy.Name(), func(t *testing.T) {
			result := strategy.Score(profile, proc)
			assert.Equal(t, strategy.Name(), result.Algorithm)
			assert.GreaterOrEqual(t, result.Score, 0.0)
			assert.LessOrEqual(t, result.Score, 100.0)
			assert.GreaterOrEqual(t, result.Confidence, 0.0)
			assert.LessOrEqual(t, result.Confidence, 1.0)
		})
	}
}

func TestAllStrategiesDeterministic(t *testing.T) {
	profile := sampleProfile()
	proc := sampleRequirements()

	for _, strategy := range DefaultStrategies() {
		t.Run(strategy.Name(), func(t *testing.T) {
			first := strategy.Score(profile, proc)
			second := strategy.Score(profile, proc)
			assert.Equal(t, first, second)
		})
	}
}

func TestWeightedBoostingConverges(t *testing.T) {
	result := WeightedBoosting{}.Score(sampleProfile(), sampleRequirements())

	// Ten rounds at learning rate 0.1 move the prediction most of the way
	// from the base toward the scaled feature sum.
	assert.Greater(t, result.Score, boostingBase)
	assert.Less(t, result.Score, 100.0)
}

func TestWeightedBoostingEmptyProfileDegrades(t *testing.T) {
	result := WeightedBoosting{}.Score(features.StaffProfile{}, sampleRequirements())
	assert.Equal(t, boostingBase, result.Score)
	assert.Equal(t, DegradedConfidence, result.Confidence)
}

func TestRandomizedEnsembleConfidenceFromSpread(t *testing.T) {
	result := RandomizedEnsemble{}.Score(sampleProfile(), sampleRequirements())

	// Jitter in [0.8,1.2) keeps dispersion moderate, so confidence is well
	// above the degraded floor.
	assert.Greater(t, result.Confidence, DegradedConfidence)
}

func TestLogisticProbabilityBaseRateClamp(t *testing.T) {
	profile := sampleProfile()

	tests := []struct {
		name     string
		baseRate float64
	}{
		{name: "zero base rate", baseRate: 0},
		{name: "perfect base rate", baseRate: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := sampleRequirements()
			proc.BaseSuccessRate = tt.baseRate

			result := LogisticProbability{}.Score(profile, proc)
			assert.Greater(t, result.Score, 0.0)
			assert.Less(t, result.Score, 100.0)
		})
	}
}

func TestLogisticProbabilityMonotonicInExperience(t *testing.T) {
	proc := sampleRequirements()

	weak := sampleProfile()
	weak.ExperienceLevel = 0.2
	strong := sampleProfile()
	strong.ExperienceLevel = 0.9

	assert.Greater(t,
		LogisticProbability{}.Score(strong, proc).Score,
		LogisticProbability{}.Score(weak, proc).Score)
}

func TestOutcomeEstimatorEmptyProfileDegrades(t *testing.T) {
	result := OutcomeEstimator{}.Score(features.StaffProfile{}, sampleRequirements())
	assert.Equal(t, 50.0, result.Score)
	assert.Equal(t, DegradedConfidence, result.Confidence)
}

func completionSeries(times []float64) []types.CompletionRecord {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	out := make([]types.CompletionRecord, len(times))
	for i, minutes := range times {
		out[i] = types.CompletionRecord{
			ID:               "r",
			StaffID:          "staff-1",
			SOPID:            "sop-1",
			PercentComplete:  100,
			TimeSpentMinutes: minutes,
			CompletedAt:      base.Add(time.Duration(i) * 24 * time.Hour),
		}
	}
	return out
}

func TestEstimateCompletionTimeWeightsRecent(t *testing.T) {
	// Times trend downward; the EWMA must sit below the plain mean.
	records := completionSeries([]float64{60, 55, 50, 45, 40, 35, 30})

	est := EstimateCompletionTime(records)
	assert.Less(t, est.Value, 45.0)
	assert.Greater(t, est.Value, 30.0)
	assert.LessOrEqual(t, est.Low, est.Value)
	assert.GreaterOrEqual(t, est.High, est.Value)
}

func TestEstimateConfidenceGrowsWithSamples(t *testing.T) {
	small := EstimateCompletionTime(completionSeries([]float64{40, 40, 40}))
	large := EstimateCompletionTime(completionSeries([]float64{
		40, 40, 40, 40, 40, 40, 40, 40, 40, 40,
		40, 40, 40, 40, 40, 40, 40, 40, 40, 40,
	}))

	assert.Greater(t, large.Confidence, small.Confidence)
}

func TestEstimateEmptyHistoryDegrades(t *testing.T) {
	est := EstimateCompletionTime(nil)
	assert.Equal(t, 0.0, est.Value)
	assert.Equal(t, DegradedConfidence, est.Confidence)
}

func TestEstimateSuccessProbabilityBounds(t *testing.T) {
	records := completionSeries([]float64{30, 30, 30})
	records[1].PercentComplete = 60 // one failed attempt

	est := EstimateSuccessProbability(records)
	assert.GreaterOrEqual(t, est.Value, 0.0)
	assert.LessOrEqual(t, est.Value, 1.0)
	assert.GreaterOrEqual(t, est.Low, 0.0)
	assert.LessOrEqual(t, est.High, 1.0)
}

func TestEstimateDifficultyTracksComplexity(t *testing.T) {
	records := completionSeries([]float64{30, 30, 30})

	easy := sampleRequirements()
	easy.ComplexityScore = 0.1
	hard := sampleRequirements()
	hard.ComplexityScore = 0.9

	assert.Greater(t,
		EstimateDifficulty(records, hard).Value,
		EstimateDifficulty(records, easy).Value)
}
