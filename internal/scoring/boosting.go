package scoring

import "github.com/opsboard/sopmatch/internal/features"

// Iteration count and learning rate are kept at the calibrated values; the
// fixed-point the iteration converges to depends on both.
const (
	boostingRounds       = 10
	boostingLearningRate = 0.1
	boostingBase         = 50.0
	boostingFeatureScale = 0.2
)

// WeightedBoosting starts from a constant base prediction and repeatedly
// moves it toward a scaled feature sum by a fraction of the residual.
type WeightedBoosting struct{}

func (WeightedBoosting) Name() string { return AlgorithmWeightedBoosting }

func (WeightedBoosting) Score(staff features.StaffProfile, proc features.ProcedureRequirements) Result {
	if staff.SampleSize == 0 {
		return Result{Algorithm: AlgorithmWeightedBoosting, Score: boostingBase, Confidence: DegradedConfidence}
	}

	// Five features on the 0-100 scale; the 0.2 scale maps their sum back
	// into score range.
	featureSum := 100 * (staff.ExperienceLevel +
		staff.HistoricalPerformance +
		staff.AverageProficiency() +
		(1 - proc.ComplexityScore) +
		proc.BaseSuccessRate)

	prediction := boostingBase
	for round := 0; round < boostingRounds; round++ {
		residual := boostingFeatureScale*featureSum - prediction
		prediction += boostingLearningRate * residual
	}

	confidence := clampUnit(0.55 + 0.02*float64(staff.SampleSize))
	if confidence > 0.9 {
		confidence = 0.9
	}

	return Result{Algorithm: AlgorithmWeightedBoosting, Score: clampScore(prediction), Confidence: confidence}
}
