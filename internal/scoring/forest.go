package scoring

import (
	"math"

	"github.com/montanaflynn/stats"

	"github.com/opsboard/sopmatch/internal/features"
)

const forestTrees = 50

// RandomizedEnsemble aggregates a fixed number of pseudo-trees. Each tree
// is a deterministic function of its index folded together with skill
// compatibility and the performance percentile, so identical inputs always
// reproduce the same score.
type RandomizedEnsemble struct{}

func (RandomizedEnsemble) Name() string { return AlgorithmRandomizedEnsemble }

func (RandomizedEnsemble) Score(staff features.StaffProfile, proc features.ProcedureRequirements) Result {
	skills := staff.SkillVector()
	if len(skills) == 0 && staff.SampleSize == 0 {
		return Result{Algorithm: AlgorithmRandomizedEnsemble, Score: 0, Confidence: DegradedConfidence}
	}

	compat := CosineSimilarity(skills, proc.RequirementVector)
	if compat < 0 {
		compat = 0
	}
	base := 100 * (0.6*compat + 0.4*staff.CompletionSpeedPercentile)

	scores := make([]float64, forestTrees)
	for i := 0; i < forestTrees; i++ {
		// index-seeded jitter in [0.8, 1.2)
		jitter := 0.8 + 0.4*indexNoise(i)
		scores[i] = clampScore(base * jitter)
	}

	mean, err := stats.Mean(scores)
	if err != nil {
		return Result{Algorithm: AlgorithmRandomizedEnsemble, Score: 0, Confidence: DegradedConfidence}
	}
	stddev, err := stats.StandardDeviation(scores)
	if err != nil {
		stddev = 0
	}

	confidence := clampUnit(1 - stddev/100)

	return Result{Algorithm: AlgorithmRandomizedEnsemble, Score: clampScore(mean), Confidence: confidence}
}

// indexNoise maps a tree index to a deterministic value in [0,1).
func indexNoise(i int) float64 {
	x := math.Sin(float64(i+1)*12.9898) * 43758.5453
	return x - math.Floor(x)
}
