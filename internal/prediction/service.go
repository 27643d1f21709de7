package prediction

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/opsboard/sopmatch/internal/database"
	"github.com/opsboard/sopmatch/internal/errors"
	"github.com/opsboard/sopmatch/internal/features"
	"github.com/opsboard/sopmatch/internal/scoring"
	"github.com/opsboard/sopmatch/internal/types"
)

// Prediction type names accepted by the generate endpoint.
const (
	TypeCompletionTime     = "completion_time"
	TypeSuccessProbability = "success_probability"
	TypeQualityScore       = "quality_score"
	TypeDifficultyRating   = "difficulty_rating"
)

const defaultHorizonDays = 30

// AllTypes lists every supported prediction type in output order.
var AllTypes = []string{TypeCompletionTime, TypeSuccessProbability, TypeQualityScore, TypeDifficultyRating}

// Store is the persistence surface the prediction service needs.
type Store interface {
	CompletionsFiltered(sopIDs, staffIDs []string, start, end time.Time) ([]types.CompletionRecord, error)
	GetSOP(id string) (*types.SOP, error)
	SavePredictions(preds []*database.Prediction) error
	GetPrediction(id string) (*database.Prediction, error)
	VerifyPrediction(id string, actual, accuracy float64) error
	ListPredictions(sopID, staffID string, limit, offset int) ([]*database.Prediction, error)
}

// AuditSink records prediction generation and verification runs.
type AuditSink interface {
	Record(actor, action, entity, before, after string)
}

// Service produces and verifies outcome predictions for staff/procedure
// pairs from their completion history.
type Service struct {
	repo      Store
	extractor *features.Extractor
	auditor   AuditSink
	now       func() time.Time
}

func NewService(repo Store, auditor AuditSink) *Service {
	return &Service{
		repo:      repo,
		extractor: features.NewExtractor(),
		auditor:   auditor,
		now:       time.Now,
	}
}

// Generate computes predictions for every staff/procedure pair covered by
// the filters. The request is rejected before any estimator runs when the
// matching history is below the minimum sample size.
func (s *Service) Generate(tenantID string, req types.GeneratePredictionsRequest) ([]*database.Prediction, error) {
	predTypes, err := resolveTypes(req.PredictionTypes)
	if err != nil {
		return nil, err
	}
	horizon := req.PredictionHorizonDays
	if horizon <= 0 {
		horizon = defaultHorizonDays
	}

	now := s.now()
	records, err := s.repo.CompletionsFiltered(req.SOPIDs, req.UserIDs, now.Add(-features.TrainingWindow), now)
	if err != nil {
		return nil, errors.NewDatabaseError("failed to load completion history", err)
	}
	if len(records) < features.MinSamplesPrediction {
		return nil, errors.NewValidationError(fmt.Sprintf(
			"insufficient historical data: %d completion record(s) found, at least %d required",
			len(records), features.MinSamplesPrediction))
	}

	// One estimator pass per (staff, sop) pair that has history.
	pairs := make(map[[2]string][]types.CompletionRecord)
	for _, rec := range records {
		key := [2]string{rec.StaffID, rec.SOPID}
		pairs[key] = append(pairs[key], rec)
	}

	procCache := make(map[string]features.ProcedureRequirements)
	preds := make([]*database.Prediction, 0, len(pairs)*len(predTypes))
	for key, history := range pairs {
		staffID, sopID := key[0], key[1]
		proc, ok := procCache[sopID]
		if !ok {
			sop, err := s.repo.GetSOP(sopID)
			if err != nil {
				return nil, errors.NewDatabaseError("failed to load procedure", err)
			}
			if sop == nil {
				continue
			}
			proc = s.extractor.BuildProcedureRequirements(*sop, history)
			procCache[sopID] = proc
		}

		for _, predType := range predTypes {
			est := estimate(predType, history, proc)
			preds = append(preds, buildPrediction(staffID, sopID, predType, est, horizon,
				req.IncludeConfidenceIntervals, now))
		}
	}

	if err := s.repo.SavePredictions(preds); err != nil {
		return nil, errors.NewDatabaseError("failed to persist predictions", err)
	}
	s.auditor.Record(tenantID, "predictions.generate", "predictions", "",
		fmt.Sprintf("{\"count\":%d,\"horizon_days\":%d}", len(preds), horizon))

	slog.Debug("Prediction generation completed",
		"tenant", tenantID, "pairs", len(pairs), "predictions", len(preds))
	return preds, nil
}

// Verify records observed outcomes against stored predictions and returns
// the updated rows. Unknown prediction IDs fail the whole batch.
func (s *Service) Verify(tenantID string, req types.VerifyPredictionsRequest) ([]*database.Prediction, error) {
	if len(req.Verifications) == 0 {
		return nil, errors.NewValidationError("verifications cannot be empty")
	}

	updated := make([]*database.Prediction, 0, len(req.Verifications))
	for _, v := range req.Verifications {
		pred, err := s.repo.GetPrediction(v.PredictionID)
		if err != nil {
			return nil, errors.NewDatabaseError("failed to load prediction", err)
		}
		if pred == nil {
			return nil, errors.NewNotFoundError("prediction", v.PredictionID)
		}

		acc := accuracy(pred.PredictedValue, v.ActualValue)
		if err := s.repo.VerifyPrediction(pred.ID, v.ActualValue, acc); err != nil {
			return nil, errors.NewDatabaseError("failed to record verification", err)
		}

		actual, accCopy := v.ActualValue, acc
		pred.Verified = true
		pred.ActualValue = &actual
		pred.Accuracy = &accCopy
		updated = append(updated, pred)
	}

	s.auditor.Record(tenantID, "predictions.verify", "predictions", "",
		fmt.Sprintf("{\"count\":%d}", len(updated)))
	return updated, nil
}

// List returns stored predictions, optionally filtered by sop and staff.
func (s *Service) List(sopID, staffID string, limit, offset int) ([]*database.Prediction, error) {
	preds, err := s.repo.ListPredictions(sopID, staffID, limit, offset)
	if err != nil {
		return nil, errors.NewDatabaseError("failed to list predictions", err)
	}
	return preds, nil
}

func estimate(predType string, history []types.CompletionRecord, proc features.ProcedureRequirements) scoring.Estimate {
	switch predType {
	case TypeCompletionTime:
		return scoring.EstimateCompletionTime(history)
	case TypeSuccessProbability:
		return scoring.EstimateSuccessProbability(history)
	case TypeQualityScore:
		return scoring.EstimateQuality(history)
	default:
		return scoring.EstimateDifficulty(history, proc)
	}
}

func buildPrediction(staffID, sopID, predType string, est scoring.Estimate,
	horizon int, withIntervals bool, now time.Time) *database.Prediction {

	pred := &database.Prediction{
		ID:             uuid.New().String(),
		StaffID:        staffID,
		SOPID:          sopID,
		PredictionType: predType,
		PredictedValue: est.Value,
		Confidence:     est.Confidence,
		HorizonDays:    horizon,
		CreatedAt:      now,
	}
	if withIntervals {
		low, high := est.Low, est.High
		pred.IntervalLow = &low
		pred.IntervalHigh = &high
	}
	return pred
}

// accuracy maps predicted versus actual into [0,1] as one minus the
// relative error against the larger magnitude. Two zero values agree
// perfectly.
func accuracy(predicted, actual float64) float64 {
	denom := math.Max(math.Abs(predicted), math.Abs(actual))
	if denom == 0 {
		return 1
	}
	acc := 1 - math.Abs(predicted-actual)/denom
	if acc < 0 {
		return 0
	}
	return acc
}

func resolveTypes(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return AllTypes, nil
	}
	valid := make(map[string]bool, len(AllTypes))
	for _, t := range AllTypes {
		valid[t] = true
	}
	out := make([]string, 0, len(requested))
	for _, t := range requested {
		if !valid[t] {
			return nil, errors.NewValidationError(fmt.Sprintf("unknown prediction type %q", t))
		}
		out = append(out, t)
	}
	return out, nil
}
