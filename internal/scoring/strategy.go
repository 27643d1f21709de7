package scoring

import "github.com/opsboard/sopmatch/internal/features"

// Algorithm names, also the keys of Config.AlgorithmWeights.
const (
	AlgorithmVectorSimilarity    = "vector_similarity"
	AlgorithmWeightedBoosting    = "weighted_boosting"
	AlgorithmRandomizedEnsemble  = "randomized_ensemble"
	AlgorithmLogisticProbability = "logistic_probability"
	AlgorithmOutcomeEstimator    = "outcome_estimator"
)

// DegradedConfidence is reported whenever a strategy lacks the inputs it
// needs. Missing data degrades confidence, it never throws.
const DegradedConfidence = 0.3

// Result is a single algorithm's output: a score on the 0-100 scale and a
// confidence in [0,1].
type Result struct {
	Algorithm  string  `json:"algorithm"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

// Strategy is a pure scoring function over a staff/procedure snapshot pair.
// Implementations hold no mutable state and are safe for concurrent use.
type Strategy interface {
	Name() string
	Score(staff features.StaffProfile, proc features.ProcedureRequirements) Result
}

// DefaultStrategies returns the five scoring algorithms in their canonical
// ensemble order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		VectorSimilarity{},
		WeightedBoosting{},
		RandomizedEnsemble{},
		LogisticProbability{},
		OutcomeEstimator{},
	}
}

func clampScore(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 100 {
		return 100
	}
	return x
}

func clampUnit(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
