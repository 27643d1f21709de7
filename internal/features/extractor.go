package features

import (
	"math"
	"sort"
	"time"

	"github.com/opsboard/sopmatch/internal/types"
)

// Lookback windows are fixed constants, not configuration.
const (
	TrainingWindow = 180 * 24 * time.Hour // scoring and match generation
	PatternWindow  = 90 * 24 * time.Hour  // pattern analysis
	ContextWindow  = 30 * 24 * time.Hour  // contextual factors
)

// Minimum historical sample sizes per caller. Entities below the minimum
// are filtered out of scoring, never treated as errors.
const (
	MinSamplesMatching   = 3
	MinSamplesPrediction = 10
	MinSamplesPattern    = 10
)

var (
	roleBaseLevels = map[string]float64{
		"head_chef":  0.90,
		"manager":    0.85,
		"sous_chef":  0.80,
		"line_cook":  0.60,
		"server":     0.55,
		"prep_cook":  0.50,
		"dishwasher": 0.40,
		"trainee":    0.30,
	}
	defaultRoleBase = 0.5

	difficultyLevels = map[string]float64{
		"beginner":     0.20,
		"basic":        0.35,
		"intermediate": 0.50,
		"advanced":     0.75,
		"expert":       0.90,
	}
	defaultDifficulty = 0.5

	categoryComplexity = map[string]float64{
		"food_safety": 0.70,
		"equipment":   0.60,
		"inventory":   0.55,
		"service":     0.50,
		"closing":     0.45,
		"opening":     0.40,
		"cleaning":    0.30,
	}
	defaultCategoryComplexity = 0.5
)

// Extractor turns raw staff and procedure records plus completion history
// into fixed-shape scoring snapshots.
type Extractor struct {
	now func() time.Time
}

// NewExtractor creates an extractor using wall-clock time.
func NewExtractor() *Extractor {
	return &Extractor{now: time.Now}
}

// NewExtractorAt creates an extractor with a fixed clock, for tests.
func NewExtractorAt(now func() time.Time) *Extractor {
	return &Extractor{now: now}
}

// BuildStaffProfile constructs a StaffProfile snapshot from a staff record
// and its completion history inside the training window. The second return
// is false when the history is below minSamples; callers drop the entity
// from scoring in that case.
//
// cohort is the completion history of all staff, used for the speed
// percentile; the staff member's own records may be part of it.
func (e *Extractor) BuildStaffProfile(staff types.Staff, history, cohort []types.CompletionRecord, minSamples int) (StaffProfile, bool) {
	cutoff := e.now().Add(-TrainingWindow)
	recent := filterSince(history, cutoff)
	if len(recent) < minSamples {
		return StaffProfile{}, false
	}

	completionRate := completionRate(recent)
	avgProgress := meanPercent(recent)

	profile := StaffProfile{
		StaffID:              staff.ID,
		Role:                 staff.Role,
		TechnicalSkills:      clampVector(staff.TechnicalSkills),
		SoftSkills:           clampVector(staff.SoftSkills),
		DomainKnowledge:      clampVector(staff.DomainKnowledge),
		ProblemSolvingSkills: clampVector(staff.ProblemSolvingSkills),
		CompletionRate:       completionRate,
		Personality:          clampMap(staff.Personality),
		StressTolerance:      clamp01(staff.StressTolerance),
		Multitasking:         clamp01(staff.Multitasking),
		SampleSize:           len(recent),
	}

	// Experience = weighted role base + history + proficiency, clamped to [0,1].
	roleBase, ok := roleBaseLevels[staff.Role]
	if !ok {
		roleBase = defaultRoleBase
	}
	profile.ExperienceLevel = clamp01(
		0.40*roleBase + 0.35*completionRate + 0.25*profile.AverageProficiency())

	// Historical performance averages completion rate and mean progress.
	profile.HistoricalPerformance = clamp01((completionRate + avgProgress/100) / 2)

	profile.LearningVelocity = learningVelocity(recent)
	profile.RetentionRate = retentionRate(recent)
	profile.ProgressionRate = progressionRate(recent)
	profile.CompletionSpeedPercentile = speedPercentile(recent, filterSince(cohort, cutoff))
	profile.QualityConsistency = qualityConsistency(recent)
	profile.ErrorRecovery = errorRecovery(recent)

	return profile, true
}

// BuildProcedureRequirements constructs the scoring snapshot for a SOP from
// its record and the procedure's completion history inside the training
// window. Unlike staff, procedures with thin history still get a snapshot;
// the base success rate just degrades to the neutral prior.
func (e *Extractor) BuildProcedureRequirements(sop types.SOP, history []types.CompletionRecord) ProcedureRequirements {
	cutoff := e.now().Add(-TrainingWindow)
	recent := filterSince(history, cutoff)

	req := ProcedureRequirements{
		SOPID:             sop.ID,
		TitleEN:           sop.TitleEN,
		TitleZH:           sop.TitleZH,
		RequirementVector: clampVector(sop.RequirementVector),
		EstimatedDuration: float64(sop.EstimatedDuration),
		SampleSize:        len(recent),
	}

	difficulty, ok := difficultyLevels[sop.DifficultyLevel]
	if !ok {
		difficulty = defaultDifficulty
	}
	category, ok := categoryComplexity[sop.Category]
	if !ok {
		category = defaultCategoryComplexity
	}

	durationNorm := math.Min(float64(sop.EstimatedDuration)/120.0, 1.0)
	tagNorm := math.Min(float64(len(sop.Tags))/8.0, 1.0)

	// Complexity = weighted difficulty + duration + tag breadth + category.
	req.ComplexityScore = clamp01(
		0.35*difficulty + 0.25*durationNorm + 0.15*tagNorm + 0.25*category)

	req.CognitiveLoad = clamp01(0.6*difficulty + 0.4*category)
	req.ProceduralComplexity = clamp01(0.5*difficulty + 0.5*tagNorm)
	req.DecisionPoints = clamp01(0.7*category + 0.3*tagNorm)
	req.TimeSensitivity = clamp01(0.5*durationNorm + 0.5*category)

	req.DifficultySpike = clamp01(difficulty * 1.2)
	req.MasteryWeeks = 1 + math.Round(req.ComplexityScore*11) // 1..12 weeks

	if len(recent) > 0 {
		req.BaseSuccessRate = completionRate(recent)
	} else {
		req.BaseSuccessRate = 0.5
	}

	return req
}

// SeasonalAdjustment is a small additive offset derived from the month,
// hour and weekday of at. Callers pass the request's target date when one
// is given and fall back to request time otherwise, so the adjustment is
// anchored to the entity being scored rather than drifting with the server
// clock.
func SeasonalAdjustment(at time.Time) float64 {
	adj := 0.0

	switch m := at.Month(); {
	case m >= time.June && m <= time.August:
		adj += 0.03 // summer rush
	case m == time.December || m <= time.February:
		adj -= 0.02 // holiday and deep-winter churn
	}

	switch h := at.Hour(); {
	case h >= 11 && h <= 14:
		adj -= 0.03 // lunch service pressure
	case h >= 17 && h <= 21:
		adj -= 0.04 // dinner service pressure
	case h >= 6 && h <= 9:
		adj += 0.02 // prep hours
	}

	if wd := at.Weekday(); wd == time.Saturday || wd == time.Sunday {
		adj -= 0.02
	}

	return adj
}

func filterSince(records []types.CompletionRecord, cutoff time.Time) []types.CompletionRecord {
	out := make([]types.CompletionRecord, 0, len(records))
	for _, r := range records {
		if !r.CompletedAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

// completionRate is the share of attempts reaching 100 percent.
func completionRate(records []types.CompletionRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	done := 0
	for _, r := range records {
		if r.PercentComplete >= 100 {
			done++
		}
	}
	return float64(done) / float64(len(records))
}

func meanPercent(records []types.CompletionRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range records {
		sum += r.PercentComplete
	}
	return sum / float64(len(records))
}

// learningVelocity compares mean completion time of the newer half of the
// history against the older half; faster recent times mean higher velocity.
func learningVelocity(records []types.CompletionRecord) float64 {
	if len(records) < 4 {
		return 0.5
	}
	ordered := sortedByTime(records)
	mid := len(ordered) / 2
	older := meanTime(ordered[:mid])
	newer := meanTime(ordered[mid:])
	if older <= 0 {
		return 0.5
	}
	// improvement ratio mapped into [0,1] around 0.5
	improvement := (older - newer) / older
	return clamp01(0.5 + improvement)
}

// retentionRate is the mean progress on repeat attempts of a procedure the
// staff member has seen before.
func retentionRate(records []types.CompletionRecord) float64 {
	seen := make(map[string]bool)
	repeatSum, repeats := 0.0, 0
	for _, r := range sortedByTime(records) {
		if seen[r.SOPID] {
			repeatSum += r.PercentComplete / 100
			repeats++
		}
		seen[r.SOPID] = true
	}
	if repeats == 0 {
		return 0.5
	}
	return clamp01(repeatSum / float64(repeats))
}

// progressionRate measures breadth: distinct procedures over total attempts.
func progressionRate(records []types.CompletionRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	distinct := make(map[string]bool)
	for _, r := range records {
		distinct[r.SOPID] = true
	}
	return float64(len(distinct)) / float64(len(records))
}

// speedPercentile is the fraction of cohort attempts slower than the staff
// member's mean completion time.
func speedPercentile(own, cohort []types.CompletionRecord) float64 {
	if len(own) == 0 || len(cohort) == 0 {
		return 0.5
	}
	mine := meanTime(own)
	slower := 0
	for _, r := range cohort {
		if r.TimeSpentMinutes > mine {
			slower++
		}
	}
	return float64(slower) / float64(len(cohort))
}

// qualityConsistency is 1 minus the normalized spread of progress values.
func qualityConsistency(records []types.CompletionRecord) float64 {
	if len(records) < 2 {
		return 0.5
	}
	mean := meanPercent(records)
	varSum := 0.0
	for _, r := range records {
		d := r.PercentComplete - mean
		varSum += d * d
	}
	std := math.Sqrt(varSum / float64(len(records)))
	return clamp01(1 - std/50)
}

// errorRecovery is the share of incomplete attempts that were later
// followed by completing the same procedure.
func errorRecovery(records []types.CompletionRecord) float64 {
	ordered := sortedByTime(records)
	failures, recovered := 0, 0
	for i, r := range ordered {
		if r.PercentComplete >= 100 {
			continue
		}
		failures++
		for _, later := range ordered[i+1:] {
			if later.SOPID == r.SOPID && later.PercentComplete >= 100 {
				recovered++
				break
			}
		}
	}
	if failures == 0 {
		return 0.5
	}
	return float64(recovered) / float64(failures)
}

func meanTime(records []types.CompletionRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range records {
		sum += r.TimeSpentMinutes
	}
	return sum / float64(len(records))
}

func sortedByTime(records []types.CompletionRecord) []types.CompletionRecord {
	cp := append([]types.CompletionRecord(nil), records...)
	sort.Slice(cp, func(i, j int) bool {
		return cp[i].CompletedAt.Before(cp[j].CompletedAt)
	})
	return cp
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func clampVector(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = clamp01(x)
	}
	return out
}

func clampMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = clamp01(v)
	}
	return out
}
