package scoring

import (
	"math"
	"sort"
)

// Objective names, also the keys of Config.ObjectiveWeights.
const (
	ObjectiveSuccessProbability = "success_probability"
	ObjectiveLearningSpeed      = "learning_speed"
	ObjectiveQuality            = "quality"
	ObjectiveTeamBalance        = "team_balance"
	ObjectiveRiskAversion       = "risk_aversion"
)

// Selection limits: the ranker keeps the top fifth of candidates, at least
// one, and never more than maxSelected.
const (
	topFraction = 0.2
	maxSelected = 100
)

// Candidate is a scored staff/procedure pairing as seen by the ranker.
// All objective inputs live on [0,1] except the raw match score and the
// estimated time in minutes.
type Candidate struct {
	ID                   string  `json:"id"`
	StaffID              string  `json:"staff_id"`
	SOPID                string  `json:"sop_id"`
	MatchScore           float64 `json:"match_score"`
	SuccessProbability   float64 `json:"success_probability"`
	EstimatedTimeMinutes float64 `json:"estimated_time_minutes"`
	QualityScore         float64 `json:"quality_score"`
	RiskFactor           float64 `json:"risk_factor"` // lower is better
	TeamBalance          float64 `json:"team_balance"`

	MultiObjectiveScore float64 `json:"multi_objective_score"`
	ParetoOptimal       bool    `json:"pareto_optimal"`
}

// objectiveAccessors maps objective names to candidate metrics normalized
// to [0,1], higher is better.
var objectiveAccessors = map[string]func(Candidate) float64{
	ObjectiveSuccessProbability: func(c Candidate) float64 { return clampUnit(c.SuccessProbability) },
	ObjectiveLearningSpeed: func(c Candidate) float64 {
		// shorter estimated time scores higher, one hour as the midpoint
		return 1 / (1 + c.EstimatedTimeMinutes/60)
	},
	ObjectiveQuality:      func(c Candidate) float64 { return clampUnit(c.QualityScore / 100) },
	ObjectiveTeamBalance:  func(c Candidate) float64 { return clampUnit(c.TeamBalance) },
	ObjectiveRiskAversion: func(c Candidate) float64 { return clampUnit(1 - c.RiskFactor) },
}

// Rank annotates each candidate with its multi-objective score, marks the
// Pareto frontier, and returns the weighted top fraction sorted
// non-increasing by multi-objective score.
//
// This is deliberately honest about what it is: a weighted top-K selection.
// The genuine Pareto dominance frontier is computed alongside and exposed
// through the ParetoOptimal flag rather than being conflated with the
// selection itself.
func Rank(candidates []Candidate, objectiveWeights map[string]float64) []Candidate {
	if len(candidates) == 0 {
		return nil
	}

	ranked := append([]Candidate(nil), candidates...)
	for i := range ranked {
		ranked[i].MultiObjectiveScore = multiObjectiveScore(ranked[i], objectiveWeights)
	}
	markFrontier(ranked)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].MultiObjectiveScore > ranked[j].MultiObjectiveScore
	})

	keep := int(math.Ceil(topFraction * float64(len(ranked))))
	if keep < 1 {
		keep = 1
	}
	if keep > maxSelected {
		keep = maxSelected
	}
	return ranked[:keep]
}

// multiObjectiveScore blends the configured objectives; candidates with no
// applicable objective weights fall back to match_score/100.
func multiObjectiveScore(c Candidate, weights map[string]float64) float64 {
	weightedSum, weightTotal := 0.0, 0.0
	for name, weight := range weights {
		accessor, ok := objectiveAccessors[name]
		if !ok || weight <= 0 {
			continue
		}
		weightedSum += weight * accessor(c)
		weightTotal += weight
	}
	if weightTotal <= 0 {
		return clampUnit(c.MatchScore / 100)
	}
	return clampUnit(weightedSum / weightTotal)
}

// markFrontier sets ParetoOptimal on every candidate not dominated by
// another. O(n²) dominance check; candidate sets are capped well below the
// point where that matters.
func markFrontier(candidates []Candidate) {
	for i := range candidates {
		dominated := false
		for j := range candidates {
			if i == j {
				continue
			}
			if dominates(candidates[j], candidates[i]) {
				dominated = true
				break
			}
		}
		candidates[i].ParetoOptimal = !dominated
	}
}

// dominates returns true if a is at least as good as b on every objective
// dimension and strictly better on at least one. Success probability,
// quality and team balance are higher-better; time and risk lower-better.
func dominates(a, b Candidate) bool {
	if a.SuccessProbability < b.SuccessProbability ||
		a.QualityScore < b.QualityScore ||
		a.TeamBalance < b.TeamBalance ||
		a.EstimatedTimeMinutes > b.EstimatedTimeMinutes ||
		a.RiskFactor > b.RiskFactor {
		return false
	}
	return a.SuccessProbability > b.SuccessProbability ||
		a.QualityScore > b.QualityScore ||
		a.TeamBalance > b.TeamBalance ||
		a.EstimatedTimeMinutes < b.EstimatedTimeMinutes ||
		a.RiskFactor < b.RiskFactor
}
