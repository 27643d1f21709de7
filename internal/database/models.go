package database

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/opsboard/sopmatch/internal/scoring"
)

// MatchLifetime is the fixed validity window of a stored match result.
const MatchLifetime = 7 * 24 * time.Hour

// PredictedOutcomes carries the outcome estimates attached to a match.
type PredictedOutcomes struct {
	SuccessProbability   float64 `json:"success_probability"`
	EstimatedTimeMinutes float64 `json:"estimated_time_minutes"`
	QualityScore         float64 `json:"quality_score"`
	RiskFactor           float64 `json:"risk_factor"`
}

// SkillGap is one requirement dimension where the staff member falls short.
type SkillGap struct {
	Dimension int     `json:"dimension"`
	Required  float64 `json:"required"`
	Actual    float64 `json:"actual"`
	Gap       float64 `json:"gap"`
}

// MatchResult is a persisted staff-to-procedure match. expires_at is always
// created_at plus the fixed lifetime, and match_score is the rounded
// ensemble output.
type MatchResult struct {
	ID                  string            `json:"id" db:"id"`
	StaffID             string            `json:"staff_id" db:"staff_id"`
	SOPID               string            `json:"sop_id" db:"sop_id"`
	MatchScore          float64           `json:"match_score" db:"match_score"`
	ConfidenceLow       float64           `json:"confidence_low" db:"confidence_low"`
	ConfidenceHigh      float64           `json:"confidence_high" db:"confidence_high"`
	Breakdown           []scoring.Result  `json:"breakdown" db:"breakdown"`
	MultiObjectiveScore float64           `json:"multi_objective_score" db:"multi_objective_score"`
	ParetoOptimal       bool              `json:"pareto_optimal" db:"pareto_optimal"`
	Predicted           PredictedOutcomes `json:"predicted_outcomes" db:"predicted_outcomes"`
	SkillGaps           []SkillGap        `json:"skill_gaps" db:"skill_gaps"`
	RecommendedActions  []string          `json:"recommended_actions" db:"recommended_actions"`
	CreatedAt           time.Time         `json:"created_at" db:"created_at"`
	ExpiresAt           time.Time         `json:"expires_at" db:"expires_at"`
}

// NewMatchResult creates a match result from the ensemble output with a
// generated ID and the fixed expiry.
func NewMatchResult(staffID, sopID string, combined scoring.Combined, now time.Time) *MatchResult {
	return &MatchResult{
		ID:             uuid.New().String(),
		StaffID:        staffID,
		SOPID:          sopID,
		MatchScore:     math.Round(combined.Score),
		ConfidenceLow:  combined.IntervalLow,
		ConfidenceHigh: combined.IntervalHigh,
		Breakdown:      combined.Contributions,
		CreatedAt:      now,
		ExpiresAt:      now.Add(MatchLifetime),
	}
}

// Prediction is a persisted point forecast for one staff/procedure pair.
type Prediction struct {
	ID             string    `json:"id" db:"id"`
	StaffID        string    `json:"staff_id" db:"staff_id"`
	SOPID          string    `json:"sop_id" db:"sop_id"`
	PredictionType string    `json:"prediction_type" db:"prediction_type"`
	PredictedValue float64   `json:"predicted_value" db:"predicted_value"`
	Confidence     float64   `json:"confidence" db:"confidence"`
	IntervalLow    *float64  `json:"interval_low,omitempty" db:"interval_low"`
	IntervalHigh   *float64  `json:"interval_high,omitempty" db:"interval_high"`
	HorizonDays    int       `json:"horizon_days" db:"horizon_days"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	Verified       bool      `json:"verified" db:"verified"`
	ActualValue    *float64  `json:"actual_value,omitempty" db:"actual_value"`
	Accuracy       *float64  `json:"accuracy,omitempty" db:"accuracy"`
}

// AuditEntry is one row in the append-only audit log.
type AuditEntry struct {
	ID        string    `json:"id" db:"id"`
	Actor     string    `json:"actor" db:"actor"`
	Action    string    `json:"action" db:"action"`
	Entity    string    `json:"entity" db:"entity"`
	Before    string    `json:"before,omitempty" db:"before_state"`
	After     string    `json:"after,omitempty" db:"after_state"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewAuditEntry creates an audit entry with a generated ID.
func NewAuditEntry(actor, action, entity, before, after string) *AuditEntry {
	return &AuditEntry{
		ID:        uuid.New().String(),
		Actor:     actor,
		Action:    action,
		Entity:    entity,
		Before:    before,
		After:     after,
		CreatedAt: time.Now().UTC(),
	}
}

// MatchAnalytics is the summary embedded by GET /matching when
// include_analytics is set.
type MatchAnalytics struct {
	TotalMatches        int            `json:"total_matches"`
	MeanScore           float64        `json:"mean_score"`
	MeanIntervalWidth   float64        `json:"mean_interval_width"`
	ParetoOptimalCount  int            `json:"pareto_optimal_count"`
	ScoreHistogram      map[string]int `json:"score_histogram"`
	TopSkillGapDims     []int          `json:"top_skill_gap_dimensions"`
	GeneratedForTenant  string         `json:"tenant_id"`
	ComputedAt          time.Time      `json:"computed_at"`
}
