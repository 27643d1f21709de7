package scoring

import (
	"math"

	"github.com/opsboard/sopmatch/internal/features"
)

// Linear adjustments applied in log-odds space, centered on neutral 0.5
// inputs so an average staff member leaves the base rate untouched.
const (
	logisticExperienceCoef  = 1.2
	logisticComplexityCoef  = -1.0
	logisticPerformanceCoef = 0.8
)

// LogisticProbability converts the procedure's empirical base success rate
// to log-odds, applies linear adjustments for experience, complexity and
// historical performance, and maps back to a probability.
type LogisticProbability struct{}

func (LogisticProbability) Name() string { return AlgorithmLogisticProbability }

func (LogisticProbability) Score(staff features.StaffProfile, proc features.ProcedureRequirements) Result {
	if staff.SampleSize == 0 {
		return Result{Algorithm: AlgorithmLogisticProbability, Score: 50, Confidence: DegradedConfidence}
	}

	// Base rates of exactly 0 or 1 have undefined log-odds.
	base := proc.BaseSuccessRate
	if base < 0.01 {
		base = 0.01
	}
	if base > 0.99 {
		base = 0.99
	}

	logOdds := math.Log(base / (1 - base))
	logOdds += logisticExperienceCoef * (staff.ExperienceLevel - 0.5)
	logOdds += logisticComplexityCoef * (proc.ComplexityScore - 0.5)
	logOdds += logisticPerformanceCoef * (staff.HistoricalPerformance - 0.5)

	probability := 1 / (1 + math.Exp(-logOdds))

	confidence := clampUnit(0.5 + 0.015*float64(staff.SampleSize+proc.SampleSize))
	if confidence > 0.92 {
		confidence = 0.92
	}

	return Result{Algorithm: AlgorithmLogisticProbability, Score: clampScore(probability * 100), Confidence: confidence}
}
