package matching

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opsboard/sopmatch/internal/database"
	"github.com/opsboard/sopmatch/internal/errors"
	"github.com/opsboard/sopmatch/internal/features"
	"github.com/opsboard/sopmatch/internal/scoring"
	"github.com/opsboard/sopmatch/internal/types"
)

// floorScore is the minimum combined score a pairing must reach before it
// is kept as a match.
const floorScore = 40.0

// skillGapThreshold is the minimum requirement shortfall reported as a gap.
const skillGapThreshold = 0.15

// Store is the persistence surface the matching service needs.
type Store interface {
	GetScoringConfig(tenantID string) (scoring.Config, error)
	ListSOPs(ids []string) ([]types.SOP, error)
	ListActiveStaff() ([]types.Staff, error)
	CompletionsSince(since time.Time) ([]types.CompletionRecord, error)
	SaveMatchResults(results []*database.MatchResult) error
	ListMatches(f database.MatchFilter, now time.Time) ([]*database.MatchResult, error)
	DeleteExpiredMatches(now time.Time) (int64, error)
}

// AuditSink records match generation runs.
type AuditSink interface {
	Record(actor, action, entity, before, after string)
}

// Service runs the full match pipeline: extract features, score with every
// algorithm, combine, rank, persist. All state lives in the repository;
// the service itself is safe for concurrent requests.
type Service struct {
	repo       Store
	extractor  *features.Extractor
	strategies []scoring.Strategy
	auditor    AuditSink
	now        func() time.Time
}

// NewService creates a matching service with the default strategy set.
func NewService(repo Store, auditor AuditSink) *Service {
	return &Service{
		repo:       repo,
		extractor:  features.NewExtractor(),
		strategies: scoring.DefaultStrategies(),
		auditor:    auditor,
		now:        time.Now,
	}
}

// GenerateMatches scores the cartesian product of the requested procedures
// and all active staff, keeps pairings above the floor score, ranks them
// across the configured objectives and persists the survivors.
//
// Persistence is fire-and-forget relative to the response: a failed write
// is logged but never invalidates the computed results already returned.
func (s *Service) GenerateMatches(ctx context.Context, tenantID string, req types.GenerateMatchesRequest) ([]*database.MatchResult, error) {
	if len(req.SOPIDs) == 0 {
		return nil, errors.NewValidationError("sop_ids cannot be empty")
	}

	// Seasonal adjustment anchors on the request's target date when given,
	// request time otherwise.
	seasonalAt := s.now()
	if req.TargetDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.TargetDate)
		if err != nil {
			parsed, err = time.Parse("2006-01-02", req.TargetDate)
		}
		if err != nil {
			return nil, errors.NewValidationError("target_date must be RFC 3339 or YYYY-MM-DD")
		}
		seasonalAt = parsed
	}

	cfg, err := s.repo.GetScoringConfig(tenantID)
	if err != nil {
		return nil, errors.NewDatabaseError("failed to load scoring configuration", err)
	}
	if len(req.OptimizationGoals) > 0 {
		cfg.ObjectiveWeights = restrictObjectives(cfg.ObjectiveWeights, req.OptimizationGoals)
	}

	sops, err := s.repo.ListSOPs(req.SOPIDs)
	if err != nil {
		return nil, errors.NewDatabaseError("failed to load procedures", err)
	}
	if len(sops) == 0 {
		return nil, errors.NewNotFoundError("sop", fmt.Sprintf("%v", req.SOPIDs))
	}

	staff, err := s.repo.ListActiveStaff()
	if err != nil {
		return nil, errors.NewDatabaseError("failed to load staff", err)
	}

	now := s.now()
	history, err := s.repo.CompletionsSince(now.Add(-features.TrainingWindow))
	if err != nil {
		return nil, errors.NewDatabaseError("failed to load completion history", err)
	}

	byStaff := make(map[string][]types.CompletionRecord)
	bySOP := make(map[string][]types.CompletionRecord)
	for _, c := range history {
		byStaff[c.StaffID] = append(byStaff[c.StaffID], c)
		bySOP[c.SOPID] = append(bySOP[c.SOPID], c)
	}

	// Profiles below the minimum sample size are filtered here, not
	// reported as errors.
	profiles := make([]features.StaffProfile, 0, len(staff))
	for _, st := range staff {
		profile, ok := s.extractor.BuildStaffProfile(st, byStaff[st.ID], history, features.MinSamplesMatching)
		if !ok {
			continue
		}
		profiles = append(profiles, profile)
	}

	seasonal := features.SeasonalAdjustment(seasonalAt)

	// Procedures are independent; score them fanned out and collect.
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []*database.MatchResult
	)
	for _, sop := range sops {
		wg.Add(1)
		go func(sop types.SOP) {
			defer wg.Done()
			proc := s.extractor.BuildProcedureRequirements(sop, bySOP[sop.ID])
			sopResults := s.scoreProcedure(proc, profiles, byStaff, cfg, seasonal, now)

			mu.Lock()
			results = append(results, sopResults...)
			mu.Unlock()
		}(sop)
	}
	wg.Wait()

	ranked := s.rank(results, cfg)

	go s.persist(ranked, tenantID, len(req.SOPIDs))

	slog.Debug("Match generation completed",
		"tenant", tenantID,
		"sops", len(sops),
		"eligible_staff", len(profiles),
		"matches", len(ranked))

	return ranked, nil
}

// scoreProcedure scores every eligible staff profile against one procedure.
func (s *Service) scoreProcedure(proc features.ProcedureRequirements, profiles []features.StaffProfile,
	byStaff map[string][]types.CompletionRecord, cfg scoring.Config, seasonal float64, now time.Time) []*database.MatchResult {

	out := make([]*database.MatchResult, 0, len(profiles))
	for _, profile := range profiles {
		algorithmResults := make([]scoring.Result, 0, len(s.strategies))
		for _, strategy := range s.strategies {
			algorithmResults = append(algorithmResults, strategy.Score(profile, proc))
		}

		combined := scoring.Combine(algorithmResults, cfg)
		combined.Score = clampScore(combined.Score + 100*seasonal)

		if combined.Score < floorScore {
			continue
		}

		match := database.NewMatchResult(profile.StaffID, proc.SOPID, combined, now)
		match.Predicted = predictOutcomes(profile, proc, algorithmResults, byStaff[profile.StaffID])
		match.SkillGaps = skillGaps(profile, proc)
		match.RecommendedActions = recommendActions(match)
		out = append(out, match)
	}
	return out
}

// rank runs multi-objective selection over the scored matches and returns
// the kept subset with ranking annotations applied.
func (s *Service) rank(results []*database.MatchResult, cfg scoring.Config) []*database.MatchResult {
	if len(results) == 0 {
		return nil
	}

	byID := make(map[string]*database.MatchResult, len(results))
	candidates := make([]scoring.Candidate, 0, len(results))
	for _, m := range results {
		byID[m.ID] = m
		candidates = append(candidates, scoring.Candidate{
			ID:                   m.ID,
			StaffID:              m.StaffID,
			SOPID:                m.SOPID,
			MatchScore:           m.MatchScore,
			SuccessProbability:   m.Predicted.SuccessProbability,
			EstimatedTimeMinutes: m.Predicted.EstimatedTimeMinutes,
			QualityScore:         m.Predicted.QualityScore,
			RiskFactor:           m.Predicted.RiskFactor,
			TeamBalance:          teamBalance(m, results),
		})
	}

	selected := scoring.Rank(candidates, cfg.ObjectiveWeights)

	out := make([]*database.MatchResult, 0, len(selected))
	for _, c := range selected {
		m := byID[c.ID]
		m.MultiObjectiveScore = c.MultiObjectiveScore
		m.ParetoOptimal = c.ParetoOptimal
		out = append(out, m)
	}
	return out
}

// persist writes ranked matches and an audit entry. Runs detached from the
// request; failures are logged and dropped (at-least-once semantics).
func (s *Service) persist(ranked []*database.MatchResult, tenantID string, sopCount int) {
	if len(ranked) == 0 {
		return
	}
	if err := s.repo.SaveMatchResults(ranked); err != nil {
		slog.Error("Failed to persist match results", "error", err, "count", len(ranked))
		return
	}
	s.auditor.Record(tenantID, "matches.generate", "match_results", "",
		fmt.Sprintf("{\"sops\":%d,\"matches\":%d}", sopCount, len(ranked)))
}

// ListMatches returns stored, non-expired matches with optional analytics.
// The algorithm filter keeps only matches whose breakdown carries a
// contribution from the named algorithm.
func (s *Service) ListMatches(filter database.MatchFilter, includeAnalytics bool, tenantID string) ([]*database.MatchResult, *database.MatchAnalytics, error) {
	matches, err := s.repo.ListMatches(filter, s.now())
	if err != nil {
		return nil, nil, errors.NewDatabaseError("failed to list match results", err)
	}
	if filter.Algorithm != "" {
		matches = filterByAlgorithm(matches, filter.Algorithm)
	}

	var analytics *database.MatchAnalytics
	if includeAnalytics {
		analytics = summarize(matches, tenantID, s.now())
	}
	return matches, analytics, nil
}

func filterByAlgorithm(matches []*database.MatchResult, algorithm string) []*database.MatchResult {
	out := make([]*database.MatchResult, 0, len(matches))
	for _, m := range matches {
		for _, r := range m.Breakdown {
			if r.Algorithm == algorithm {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// PurgeExpired removes matches past their expiry.
func (s *Service) PurgeExpired() (int64, error) {
	return s.repo.DeleteExpiredMatches(s.now())
}

// predictOutcomes derives the outcome block from the algorithm results and
// the staff member's own history on this procedure family.
func predictOutcomes(profile features.StaffProfile, proc features.ProcedureRequirements,
	results []scoring.Result, staffHistory []types.CompletionRecord) database.PredictedOutcomes {

	outcomes := database.PredictedOutcomes{
		SuccessProbability:   0.5,
		EstimatedTimeMinutes: proc.EstimatedDuration,
		QualityScore:         50,
	}

	for _, r := range results {
		switch r.Algorithm {
		case scoring.AlgorithmLogisticProbability:
			outcomes.SuccessProbability = r.Score / 100
		case scoring.AlgorithmOutcomeEstimator:
			outcomes.QualityScore = r.Score
		}
	}

	if est := scoring.EstimateCompletionTime(staffHistory); est.Value > 0 {
		outcomes.EstimatedTimeMinutes = est.Value
	}

	outcomes.RiskFactor = clampUnit(proc.ComplexityScore * (1 - profile.HistoricalPerformance))
	return outcomes
}

// skillGaps reports requirement dimensions where the staff member falls
// short by more than the threshold.
func skillGaps(profile features.StaffProfile, proc features.ProcedureRequirements) []database.SkillGap {
	skills := profile.SkillVector()
	gaps := make([]database.SkillGap, 0)
	for i, required := range proc.RequirementVector {
		actual := 0.0
		if i < len(skills) {
			actual = skills[i]
		}
		if gap := required - actual; gap > skillGapThreshold {
			gaps = append(gaps, database.SkillGap{
				Dimension: i,
				Required:  required,
				Actual:    actual,
				Gap:       gap,
			})
		}
	}
	return gaps
}

// recommendActions renders the templated coaching suggestions for a match.
func recommendActions(m *database.MatchResult) []string {
	actions := make([]string, 0, 3)

	switch {
	case m.MatchScore >= 80:
		actions = append(actions, "Assign directly; this pairing is a strong fit")
	case m.MatchScore >= 60:
		actions = append(actions, "Assign with a brief walkthrough of the procedure")
	default:
		actions = append(actions, "Pair with an experienced colleague for the first attempt")
	}

	if len(m.SkillGaps) > 0 {
		actions = append(actions, fmt.Sprintf("Schedule training for %d skill gap(s) before unsupervised work", len(m.SkillGaps)))
	}
	if m.Predicted.RiskFactor > 0.5 {
		actions = append(actions, "Add a supervisor check on completion; risk factor is elevated")
	}
	return actions
}

// teamBalance rewards assigning staff who are underrepresented in the
// current result set, spreading work instead of piling it on one person.
func teamBalance(m *database.MatchResult, all []*database.MatchResult) float64 {
	if len(all) <= 1 {
		return 1
	}
	same := 0
	for _, other := range all {
		if other.StaffID == m.StaffID {
			same++
		}
	}
	return clampUnit(1 - float64(same-1)/float64(len(all)))
}

// summarize builds the analytics block over the listed matches.
func summarize(matches []*database.MatchResult, tenantID string, now time.Time) *database.MatchAnalytics {
	summary := &database.MatchAnalytics{
		TotalMatches:       len(matches),
		ScoreHistogram:     map[string]int{"40-59": 0, "60-79": 0, "80-100": 0},
		GeneratedForTenant: tenantID,
		ComputedAt:         now,
	}
	if len(matches) == 0 {
		return summary
	}

	scoreSum, widthSum := 0.0, 0.0
	gapCounts := make(map[int]int)
	for _, m := range matches {
		scoreSum += m.MatchScore
		widthSum += m.ConfidenceHigh - m.ConfidenceLow
		if m.ParetoOptimal {
			summary.ParetoOptimalCount++
		}
		switch {
		case m.MatchScore >= 80:
			summary.ScoreHistogram["80-100"]++
		case m.MatchScore >= 60:
			summary.ScoreHistogram["60-79"]++
		default:
			summary.ScoreHistogram["40-59"]++
		}
		for _, g := range m.SkillGaps {
			gapCounts[g.Dimension]++
		}
	}
	summary.MeanScore = scoreSum / float64(len(matches))
	summary.MeanIntervalWidth = widthSum / float64(len(matches))
	summary.TopSkillGapDims = topDimensions(gapCounts, 3)
	return summary
}

func topDimensions(counts map[int]int, n int) []int {
	type dimCount struct {
		dim, count int
	}
	all := make([]dimCount, 0, len(counts))
	for d, c := range counts {
		all = append(all, dimCount{d, c})
	}
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			if all[j].count > all[i].count || (all[j].count == all[i].count && all[j].dim < all[i].dim) {
				all[i], all[j] = all[j], all[i]
			}
		}
	}
	if len(all) > n {
		all = all[:n]
	}
	out := make([]int, len(all))
	for i, dc := range all {
		out[i] = dc.dim
	}
	return out
}

// restrictObjectives keeps only the requested optimization goals, falling
// back to the stored weights when none of the names match.
func restrictObjectives(weights map[string]float64, goals []string) map[string]float64 {
	restricted := make(map[string]float64)
	for _, goal := range goals {
		if w, ok := weights[goal]; ok {
			restricted[goal] = w
		}
	}
	if len(restricted) == 0 {
		return weights
	}
	return restricted
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
