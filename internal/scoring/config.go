package scoring

import "time"

// Config holds the per-tenant scoring configuration: per-algorithm ensemble
// weights and the named objective weights used by the ranker. It is loaded
// once per request and passed into the pipeline explicitly; nothing in this
// package keeps configuration state.
type Config struct {
	TenantID         string             `json:"tenant_id"`
	AlgorithmWeights map[string]float64 `json:"algorithm_weights"`
	ObjectiveWeights map[string]float64 `json:"objective_weights"`
	EnsembleEnabled  bool               `json:"ensemble_enabled"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// DefaultConfig returns the documented defaults used when a tenant has no
// stored configuration yet.
func DefaultConfig(tenantID string) Config {
	return Config{
		TenantID: tenantID,
		AlgorithmWeights: map[string]float64{
			AlgorithmVectorSimilarity:    0.25,
			AlgorithmWeightedBoosting:    0.20,
			AlgorithmRandomizedEnsemble:  0.20,
			AlgorithmLogisticProbability: 0.20,
			AlgorithmOutcomeEstimator:    0.15,
		},
		ObjectiveWeights: map[string]float64{
			ObjectiveSuccessProbability: 0.40,
			ObjectiveLearningSpeed:      0.25,
			ObjectiveQuality:            0.25,
			ObjectiveTeamBalance:        0.10,
		},
		EnsembleEnabled: true,
		UpdatedAt:       time.Now().UTC(),
	}
}

// weightsFor resolves ensemble weights for the named algorithms in order.
// Unset or non-positive weight totals degrade gracefully to equal weights.
func (c Config) weightsFor(names []string) []float64 {
	weights := make([]float64, len(names))
	total := 0.0
	for i, name := range names {
		w := c.AlgorithmWeights[name]
		if w < 0 {
			w = 0
		}
		weights[i] = w
		total += w
	}
	if total <= 0 {
		for i := range weights {
			weights[i] = 1.0 / float64(len(weights))
		}
	}
	return weights
}
