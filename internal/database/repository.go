package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opsboard/sopmatch/internal/patterns"
	"github.com/opsboard/sopmatch/internal/scoring"
	"github.com/opsboard/sopmatch/internal/types"
)

// Repository handles all database operations for the scoring pipeline.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func marshalJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal json column: %w", err)
	}
	return string(b), nil
}

func unmarshalJSON(s string, v interface{}) error {
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("failed to unmarshal json column: %w", err)
	}
	return nil
}

// --- staff ---

// ListActiveStaff returns all active staff members.
func (r *Repository) ListActiveStaff() ([]types.Staff, error) {
	rows, err := r.db.Query(`
		SELECT id, name, role, active, technical_skills, soft_skills,
			domain_knowledge, problem_solving_skills, personality,
			stress_tolerance, multitasking, created_at
		FROM staff WHERE active = TRUE ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query staff: %w", err)
	}
	defer rows.Close()

	var out []types.Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetStaff returns one staff member by ID.
func (r *Repository) GetStaff(id string) (*types.Staff, error) {
	row := r.db.QueryRow(`
		SELECT id, name, role, active, technical_skills, soft_skills,
			domain_knowledge, problem_solving_skills, personality,
			stress_tolerance, multitasking, created_at
		FROM staff WHERE id = ?
	`, id)

	s, err := scanStaff(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateStaff inserts a staff member.
func (r *Repository) CreateStaff(s types.Staff) error {
	technical, err := marshalJSON(s.TechnicalSkills)
	if err != nil {
		return err
	}
	soft, err := marshalJSON(s.SoftSkills)
	if err != nil {
		return err
	}
	domain, err := marshalJSON(s.DomainKnowledge)
	if err != nil {
		return err
	}
	problem, err := marshalJSON(s.ProblemSolvingSkills)
	if err != nil {
		return err
	}
	personality, err := marshalJSON(s.Personality)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		INSERT INTO staff (id, name, role, active, technical_skills, soft_skills,
			domain_knowledge, problem_solving_skills, personality,
			stress_tolerance, multitasking, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.Name, s.Role, s.Active, technical, soft, domain, problem,
		personality, s.StressTolerance, s.Multitasking, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create staff: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStaff(row rowScanner) (types.Staff, error) {
	var s types.Staff
	var technical, soft, domain, problem string
	var personality sql.NullString

	err := row.Scan(&s.ID, &s.Name, &s.Role, &s.Active, &technical, &soft,
		&domain, &problem, &personality, &s.StressTolerance, &s.Multitasking, &s.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return s, err
		}
		return s, fmt.Errorf("failed to scan staff: %w", err)
	}

	if err := unmarshalJSON(technical, &s.TechnicalSkills); err != nil {
		return s, err
	}
	if err := unmarshalJSON(soft, &s.SoftSkills); err != nil {
		return s, err
	}
	if err := unmarshalJSON(domain, &s.DomainKnowledge); err != nil {
		return s, err
	}
	if err := unmarshalJSON(problem, &s.ProblemSolvingSkills); err != nil {
		return s, err
	}
	if personality.Valid {
		if err := unmarshalJSON(personality.String, &s.Personality); err != nil {
			return s, err
		}
	}
	return s, nil
}

// --- sops ---

// GetSOP returns one procedure by ID, nil when absent.
func (r *Repository) GetSOP(id string) (*types.SOP, error) {
	row := r.db.QueryRow(`
		SELECT id, title_en, title_zh, category, difficulty_level,
			estimated_duration_minutes, tags, requirement_vector, created_at
		FROM sops WHERE id = ?
	`, id)

	s, err := scanSOP(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSOPs returns the procedures with the given IDs; unknown IDs are
// silently absent from the result.
func (r *Repository) ListSOPs(ids []string) ([]types.SOP, error) {
	out := make([]types.SOP, 0, len(ids))
	for _, id := range ids {
		s, err := r.GetSOP(id)
		if err != nil {
			return nil, err
		}
		if s != nil {
			out = append(out, *s)
		}
	}
	return out, nil
}

// CreateSOP inserts a procedure.
func (r *Repository) CreateSOP(s types.SOP) error {
	tags, err := marshalJSON(s.Tags)
	if err != nil {
		return err
	}
	vector, err := marshalJSON(s.RequirementVector)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		INSERT INTO sops (id, title_en, title_zh, category, difficulty_level,
			estimated_duration_minutes, tags, requirement_vector, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.TitleEN, s.TitleZH, s.Category, s.DifficultyLevel,
		s.EstimatedDuration, tags, vector, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create sop: %w", err)
	}
	return nil
}

func scanSOP(row rowScanner) (types.SOP, error) {
	var s types.SOP
	var titleZH sql.NullString
	var tags, vector string

	err := row.Scan(&s.ID, &s.TitleEN, &titleZH, &s.Category, &s.DifficultyLevel,
		&s.EstimatedDuration, &tags, &vector, &s.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return s, err
		}
		return s, fmt.Errorf("failed to scan sop: %w", err)
	}

	s.TitleZH = titleZH.String
	if err := unmarshalJSON(tags, &s.Tags); err != nil {
		return s, err
	}
	if err := unmarshalJSON(vector, &s.RequirementVector); err != nil {
		return s, err
	}
	return s, nil
}

// --- completions ---

// InsertCompletion appends one attempt record.
func (r *Repository) InsertCompletion(c types.CompletionRecord) error {
	stmt, err := r.db.GetPreparedStatement("insert_completion")
	if err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err = stmt.Exec(c.ID, c.StaffID, c.SOPID, c.PercentComplete, c.TimeSpentMinutes, c.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to insert completion: %w", err)
	}
	return nil
}

// CompletionsForStaff returns the staff member's completions since cutoff.
func (r *Repository) CompletionsForStaff(staffID string, since time.Time) ([]types.CompletionRecord, error) {
	return r.queryCompletions(`
		SELECT id, staff_id, sop_id, percent_complete, time_spent_minutes, completed_at
		FROM completions WHERE staff_id = ? AND completed_at >= ?
		ORDER BY completed_at
	`, staffID, since)
}

// CompletionsForSOP returns the procedure's completions since cutoff.
func (r *Repository) CompletionsForSOP(sopID string, since time.Time) ([]types.CompletionRecord, error) {
	return r.queryCompletions(`
		SELECT id, staff_id, sop_id, percent_complete, time_spent_minutes, completed_at
		FROM completions WHERE sop_id = ? AND completed_at >= ?
		ORDER BY completed_at
	`, sopID, since)
}

// CompletionsSince returns all completions since cutoff.
func (r *Repository) CompletionsSince(since time.Time) ([]types.CompletionRecord, error) {
	return r.queryCompletions(`
		SELECT id, staff_id, sop_id, percent_complete, time_spent_minutes, completed_at
		FROM completions WHERE completed_at >= ?
		ORDER BY completed_at
	`, since)
}

// CompletionsFiltered returns completions in [start, end] restricted to the
// given SOP and staff ID sets when non-empty.
func (r *Repository) CompletionsFiltered(sopIDs, staffIDs []string, start, end time.Time) ([]types.CompletionRecord, error) {
	query := `
		SELECT id, staff_id, sop_id, percent_complete, time_spent_minutes, completed_at
		FROM completions WHERE completed_at >= ? AND completed_at <= ?`
	args := []interface{}{start, end}

	if len(sopIDs) > 0 {
		query += ` AND sop_id IN (` + placeholders(len(sopIDs)) + `)`
		for _, id := range sopIDs {
			args = append(args, id)
		}
	}
	if len(staffIDs) > 0 {
		query += ` AND staff_id IN (` + placeholders(len(staffIDs)) + `)`
		for _, id := range staffIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY completed_at`

	return r.queryCompletions(query, args...)
}

func placeholders(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ","
		}
		s += "?"
	}
	return s
}

func (r *Repository) queryCompletions(query string, args ...interface{}) ([]types.CompletionRecord, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query completions: %w", err)
	}
	defer rows.Close()

	var out []types.CompletionRecord
	for rows.Next() {
		var c types.CompletionRecord
		if err := rows.Scan(&c.ID, &c.StaffID, &c.SOPID, &c.PercentComplete,
			&c.TimeSpentMinutes, &c.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- match results ---

// SaveMatchResults persists a batch of match results.
func (r *Repository) SaveMatchResults(results []*MatchResult) error {
	stmt, err := r.db.GetPreparedStatement("insert_match")
	if err != nil {
		return err
	}

	for _, m := range results {
		breakdown, err := marshalJSON(m.Breakdown)
		if err != nil {
			return err
		}
		predicted, err := marshalJSON(m.Predicted)
		if err != nil {
			return err
		}
		gaps, err := marshalJSON(m.SkillGaps)
		if err != nil {
			return err
		}
		actions, err := marshalJSON(m.RecommendedActions)
		if err != nil {
			return err
		}

		if _, err := stmt.Exec(m.ID, m.StaffID, m.SOPID, m.MatchScore,
			m.ConfidenceLow, m.ConfidenceHigh, breakdown, m.MultiObjectiveScore,
			m.ParetoOptimal, predicted, gaps, actions, m.CreatedAt, m.ExpiresAt); err != nil {
			return fmt.Errorf("failed to insert match result: %w", err)
		}
	}
	return nil
}

// MatchFilter restricts ListMatches output. Algorithm is matched against
// the decoded breakdown after the query, since breakdowns are stored as
// JSON text.
type MatchFilter struct {
	SOPID     string
	StaffID   string
	MinScore  float64
	Algorithm string
	Limit     int
	Offset    int
}

// ListMatches returns non-expired match results matching the filter,
// newest first.
func (r *Repository) ListMatches(f MatchFilter, now time.Time) ([]*MatchResult, error) {
	query := `
		SELECT id, staff_id, sop_id, match_score, confidence_low, confidence_high,
			breakdown, multi_objective_score, pareto_optimal, predicted_outcomes,
			skill_gaps, recommended_actions, created_at, expires_at
		FROM match_results
		WHERE expires_at > ? AND match_score >= ?`
	args := []interface{}{now, f.MinScore}

	if f.SOPID != "" {
		query += ` AND sop_id = ?`
		args = append(args, f.SOPID)
	}
	if f.StaffID != "" {
		query += ` AND staff_id = ?`
		args = append(args, f.StaffID)
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query match results: %w", err)
	}
	defer rows.Close()

	var out []*MatchResult
	for rows.Next() {
		var m MatchResult
		var breakdown, predicted, gaps, actions string

		if err := rows.Scan(&m.ID, &m.StaffID, &m.SOPID, &m.MatchScore,
			&m.ConfidenceLow, &m.ConfidenceHigh, &breakdown, &m.MultiObjectiveScore,
			&m.ParetoOptimal, &predicted, &gaps, &actions, &m.CreatedAt, &m.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan match result: %w", err)
		}

		if err := unmarshalJSON(breakdown, &m.Breakdown); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(predicted, &m.Predicted); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(gaps, &m.SkillGaps); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(actions, &m.RecommendedActions); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// DeleteExpiredMatches removes results past their expiry.
func (r *Repository) DeleteExpiredMatches(now time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM match_results WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired matches: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// --- predictions ---

// SavePredictions persists a batch of predictions.
func (r *Repository) SavePredictions(preds []*Prediction) error {
	stmt, err := r.db.GetPreparedStatement("insert_prediction")
	if err != nil {
		return err
	}
	for _, p := range preds {
		if _, err := stmt.Exec(p.ID, p.StaffID, p.SOPID, p.PredictionType,
			p.PredictedValue, p.Confidence, p.IntervalLow, p.IntervalHigh,
			p.HorizonDays, p.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert prediction: %w", err)
		}
	}
	return nil
}

// GetPrediction returns one prediction by ID, nil when absent.
func (r *Repository) GetPrediction(id string) (*Prediction, error) {
	row := r.db.QueryRow(`
		SELECT id, staff_id, sop_id, prediction_type, predicted_value, confidence,
			interval_low, interval_high, horizon_days, created_at, verified,
			actual_value, accuracy
		FROM predictions WHERE id = ?
	`, id)

	p, err := scanPrediction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPredictions returns predictions newest first, optionally filtered.
func (r *Repository) ListPredictions(sopID, staffID string, limit, offset int) ([]*Prediction, error) {
	query := `
		SELECT id, staff_id, sop_id, prediction_type, predicted_value, confidence,
			interval_low, interval_high, horizon_days, created_at, verified,
			actual_value, accuracy
		FROM predictions WHERE 1=1`
	args := []interface{}{}

	if sopID != "" {
		query += ` AND sop_id = ?`
		args = append(args, sopID)
	}
	if staffID != "" {
		query += ` AND staff_id = ?`
		args = append(args, staffID)
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	var out []*Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// VerifyPrediction records the observed value and accuracy for a stored
// prediction.
func (r *Repository) VerifyPrediction(id string, actual, accuracy float64) error {
	_, err := r.db.Exec(`
		UPDATE predictions SET verified = TRUE, actual_value = ?, accuracy = ?
		WHERE id = ?
	`, actual, accuracy, id)
	if err != nil {
		return fmt.Errorf("failed to verify prediction: %w", err)
	}
	return nil
}

func scanPrediction(row rowScanner) (*Prediction, error) {
	var p Prediction
	var low, high, actual, accuracy sql.NullFloat64

	err := row.Scan(&p.ID, &p.StaffID, &p.SOPID, &p.PredictionType,
		&p.PredictedValue, &p.Confidence, &low, &high, &p.HorizonDays,
		&p.CreatedAt, &p.Verified, &actual, &accuracy)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan prediction: %w", err)
	}

	if low.Valid {
		p.IntervalLow = &low.Float64
	}
	if high.Valid {
		p.IntervalHigh = &high.Float64
	}
	if actual.Valid {
		p.ActualValue = &actual.Float64
	}
	if accuracy.Valid {
		p.Accuracy = &accuracy.Float64
	}
	return &p, nil
}

// --- patterns ---

// SavePatterns appends analysis output rows.
func (r *Repository) SavePatterns(ps []patterns.Pattern) error {
	stmt, err := r.db.GetPreparedStatement("insert_pattern")
	if err != nil {
		return err
	}
	for _, p := range ps {
		statsJSON, err := marshalJSON(p.Stats)
		if err != nil {
			return err
		}
		insightsJSON, err := marshalJSON(p.Insights)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(p.ID, p.SOPID, string(p.PatternType),
			string(p.Granularity), statsJSON, insightsJSON, p.Confidence, p.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert pattern: %w", err)
		}
	}
	return nil
}

// ListPatterns returns stored patterns newest first, optionally filtered.
func (r *Repository) ListPatterns(sopID, patternType string, limit, offset int) ([]patterns.Pattern, error) {
	query := `
		SELECT id, sop_id, pattern_type, granularity, stats, insights, confidence, created_at
		FROM patterns WHERE 1=1`
	args := []interface{}{}

	if sopID != "" {
		query += ` AND sop_id = ?`
		args = append(args, sopID)
	}
	if patternType != "" {
		query += ` AND pattern_type = ?`
		args = append(args, patternType)
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	var out []patterns.Pattern
	for rows.Next() {
		var p patterns.Pattern
		var patternType, granularity, statsJSON, insightsJSON string

		if err := rows.Scan(&p.ID, &p.SOPID, &patternType, &granularity,
			&statsJSON, &insightsJSON, &p.Confidence, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}

		p.PatternType = patterns.PatternType(patternType)
		p.Granularity = patterns.Granularity(granularity)
		if err := unmarshalJSON(statsJSON, &p.Stats); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(insightsJSON, &p.Insights); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- scoring configuration ---

// GetScoringConfig loads the tenant's configuration, lazily creating the
// documented defaults on first use.
func (r *Repository) GetScoringConfig(tenantID string) (scoring.Config, error) {
	row := r.db.QueryRow(`
		SELECT tenant_id, algorithm_weights, objective_weights, ensemble_enabled, updated_at
		FROM scoring_config WHERE tenant_id = ?
	`, tenantID)

	var cfg scoring.Config
	var algorithmWeights, objectiveWeights string
	err := row.Scan(&cfg.TenantID, &algorithmWeights, &objectiveWeights,
		&cfg.EnsembleEnabled, &cfg.UpdatedAt)

	if err == sql.ErrNoRows {
		cfg = scoring.DefaultConfig(tenantID)
		if saveErr := r.SaveScoringConfig(cfg); saveErr != nil {
			return cfg, saveErr
		}
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to query scoring config: %w", err)
	}

	if err := unmarshalJSON(algorithmWeights, &cfg.AlgorithmWeights); err != nil {
		return cfg, err
	}
	if err := unmarshalJSON(objectiveWeights, &cfg.ObjectiveWeights); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SaveScoringConfig upserts the tenant's configuration.
func (r *Repository) SaveScoringConfig(cfg scoring.Config) error {
	algorithmWeights, err := marshalJSON(cfg.AlgorithmWeights)
	if err != nil {
		return err
	}
	objectiveWeights, err := marshalJSON(cfg.ObjectiveWeights)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		INSERT INTO scoring_config (tenant_id, algorithm_weights, objective_weights, ensemble_enabled, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			algorithm_weights = excluded.algorithm_weights,
			objective_weights = excluded.objective_weights,
			ensemble_enabled = excluded.ensemble_enabled,
			updated_at = excluded.updated_at
	`, cfg.TenantID, algorithmWeights, objectiveWeights, cfg.EnsembleEnabled, cfg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save scoring config: %w", err)
	}
	return nil
}

// --- audit log ---

// InsertAudit appends one audit entry.
func (r *Repository) InsertAudit(e *AuditEntry) error {
	stmt, err := r.db.GetPreparedStatement("insert_audit")
	if err != nil {
		return err
	}
	_, err = stmt.Exec(e.ID, e.Actor, e.Action, e.Entity, e.Before, e.After, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}
