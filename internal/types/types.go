package types

import "time"

// Envelope is the uniform response wrapper returned by every API route.
type Envelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorCode string      `json:"errorCode,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// OK wraps data in a successful envelope.
func OK(data interface{}) Envelope {
	return Envelope{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Fail wraps an error message and code in a failed envelope.
func Fail(message, code string) Envelope {
	return Envelope{
		Success:   false,
		Error:     message,
		ErrorCode: code,
		Timestamp: time.Now().UTC(),
	}
}

// GenerateMatchesRequest is the body of POST /matching.
type GenerateMatchesRequest struct {
	SOPIDs            []string `json:"sop_ids" binding:"required"`
	TargetDate        string   `json:"target_date,omitempty"` // RFC 3339 date, optional
	OptimizationGoals []string `json:"optimization_goals,omitempty"`
}

// GeneratePredictionsRequest is the body of POST /predictions/generate.
type GeneratePredictionsRequest struct {
	SOPIDs                     []string `json:"sop_ids,omitempty"`
	UserIDs                    []string `json:"user_ids,omitempty"`
	PredictionTypes            []string `json:"prediction_types,omitempty"`
	PredictionHorizonDays      int      `json:"prediction_horizon_days,omitempty"`
	IncludeConfidenceIntervals bool     `json:"include_confidence_intervals,omitempty"`
}

// Verification pairs a stored prediction with its observed outcome.
type Verification struct {
	PredictionID string  `json:"prediction_id" binding:"required"`
	ActualValue  float64 `json:"actual_value"`
}

// VerifyPredictionsRequest is the body of POST /predictions/verify.
type VerifyPredictionsRequest struct {
	Verifications []Verification `json:"verifications" binding:"required"`
}

// AnalyzePatternsRequest is the body of POST /patterns/analyze.
type AnalyzePatternsRequest struct {
	SOPIDs            []string `json:"sop_ids,omitempty"`
	PatternTypes      []string `json:"pattern_types,omitempty"`
	TimePeriod        string   `json:"time_period,omitempty"` // hourly, daily, weekly, monthly
	DateRangeStart    string   `json:"date_range_start,omitempty"`
	DateRangeEnd      string   `json:"date_range_end,omitempty"`
	MinimumSampleSize int      `json:"minimum_sample_size,omitempty"`
}

// UpdateConfigRequest is the body of PUT /scoring-config.
type UpdateConfigRequest struct {
	AlgorithmWeights map[string]float64 `json:"algorithm_weights,omitempty"`
	ObjectiveWeights map[string]float64 `json:"objective_weights,omitempty"`
	EnsembleEnabled  *bool              `json:"ensemble_enabled,omitempty"`
}
