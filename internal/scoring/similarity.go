package scoring

import (
	"math"

	"github.com/opsboard/sopmatch/internal/features"
)

// CosineSimilarity computes the cosine of the angle between a and b.
// Vectors of unequal length are compared over the longer length with the
// shorter one zero-padded. A zero vector on either side yields 0.
func CosineSimilarity(a, b []float64) float64 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}

	dot, normA, normB := 0.0, 0.0, 0.0
	for i := 0; i < n; i++ {
		av, bv := 0.0, 0.0
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// VectorSimilarity scores a pairing by the cosine similarity between the
// staff's concatenated skill vector and the procedure's requirement vector,
// scaled to 0-100.
type VectorSimilarity struct{}

func (VectorSimilarity) Name() string { return AlgorithmVectorSimilarity }

func (VectorSimilarity) Score(staff features.StaffProfile, proc features.ProcedureRequirements) Result {
	skills := staff.SkillVector()
	if len(skills) == 0 || len(proc.RequirementVector) == 0 {
		return Result{Algorithm: AlgorithmVectorSimilarity, Score: 0, Confidence: DegradedConfidence}
	}

	sim := CosineSimilarity(skills, proc.RequirementVector)
	score := clampScore(sim * 100)

	// Confidence grows with the overlap between the two vectors.
	overlap := len(skills)
	if len(proc.RequirementVector) < overlap {
		overlap = len(proc.RequirementVector)
	}
	confidence := clampUnit(0.5 + 0.05*float64(overlap))

	return Result{Algorithm: AlgorithmVectorSimilarity, Score: score, Confidence: confidence}
}
