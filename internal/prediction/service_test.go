package prediction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsboard/sopmatch/internal/database"
	"github.com/opsboard/sopmatch/internal/scoring"
	"github.com/opsboard/sopmatch/internal/types"
)

type fakeStore struct {
	records []types.CompletionRecord
	sops    map[string]*types.SOP
	saved   []*database.Prediction
	stored  map[string]*database.Prediction

	saveCalls int
}

func (f *fakeStore) CompletionsFiltered(sopIDs, staffIDs []string, start, end time.Time) ([]types.CompletionRecord, error) {
	return f.records, nil
}

func (f *fakeStore) GetSOP(id string) (*types.SOP, error) {
	return f.sops[id], nil
}

func (f *fakeStore) SavePredictions(preds []*database.Prediction) error {
	f.saveCalls++
	f.saved = append(f.saved, preds...)
	return nil
}

func (f *fakeStore) GetPrediction(id string) (*database.Prediction, error) {
	return f.stored[id], nil
}

func (f *fakeStore) VerifyPrediction(id string, actual, accuracy float64) error {
	return nil
}

func (f *fakeStore) ListPredictions(sopID, staffID string, limit, offset int) ([]*database.Prediction, error) {
	return f.saved, nil
}

type fakeAudit struct {
	actions []string
}

func (f *fakeAudit) Record(actor, action, entity, before, after string) {
	f.actions = append(f.actions, action)
}

func newTestService(store *fakeStore) (*Service, *fakeAudit) {
	auditor := &fakeAudit{}
	svc := NewService(store, auditor)
	svc.now = func() time.Time {
		return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return svc, auditor
}

func historyRecords(n int) []types.CompletionRecord {
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	records := make([]types.CompletionRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, types.CompletionRecord{
			StaffID:          "staff-1",
			SOPID:            "sop-1",
			PercentComplete:  100,
			TimeSpentMinutes: 30,
			CompletedAt:      base.Add(time.Duration(i) * 12 * time.Hour),
		})
	}
	return records
}

func TestGenerateRejectsInsufficientHistory(t *testing.T) {
	store := &fakeStore{records: historyRecords(9)}
	svc, auditor := newTestService(store)

	_, err := svc.Generate("tenant-1", types.GeneratePredictionsRequest{SOPIDs: []string{"sop-1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VALIDATION_ERROR")
	assert.Contains(t, err.Error(), "9 completion record(s) found")
	assert.Contains(t, err.Error(), "at least 10 required")

	// rejected before any estimator ran or anything was written
	assert.Zero(t, store.saveCalls)
	assert.Empty(t, auditor.actions)
}

func TestGenerateProducesAllTypesPerPair(t *testing.T) {
	store := &fakeStore{
		records: historyRecords(12),
		sops: map[string]*types.SOP{
			"sop-1": {ID: "sop-1", Category: "kitchen", DifficultyLevel: "intermediate", EstimatedDuration: 45},
		},
	}
	svc, auditor := newTestService(store)

	preds, err := svc.Generate("tenant-1", types.GeneratePredictionsRequest{
		SOPIDs:                     []string{"sop-1"},
		IncludeConfidenceIntervals: true,
	})
	require.NoError(t, err)
	require.Len(t, preds, len(AllTypes))

	seen := make(map[string]bool)
	for _, p := range preds {
		seen[p.PredictionType] = true
		assert.Equal(t, "staff-1", p.StaffID)
		assert.Equal(t, "sop-1", p.SOPID)
		assert.Equal(t, defaultHorizonDays, p.HorizonDays)
		assert.NotNil(t, p.IntervalLow)
		assert.NotNil(t, p.IntervalHigh)
	}
	for _, pt := range AllTypes {
		assert.True(t, seen[pt], "missing prediction type %s", pt)
	}

	assert.Equal(t, preds, store.saved)
	assert.Equal(t, []string{"predictions.generate"}, auditor.actions)
}

func TestGenerateSkipsUnknownSOP(t *testing.T) {
	store := &fakeStore{records: historyRecords(12), sops: map[string]*types.SOP{}}
	svc, _ := newTestService(store)

	preds, err := svc.Generate("tenant-1", types.GeneratePredictionsRequest{SOPIDs: []string{"sop-1"}})
	require.NoError(t, err)
	assert.Empty(t, preds)
}

func TestVerifyUnknownPredictionFailsBatch(t *testing.T) {
	store := &fakeStore{stored: map[string]*database.Prediction{}}
	svc, auditor := newTestService(store)

	_, err := svc.Verify("tenant-1", types.VerifyPredictionsRequest{
		Verifications: []types.Verification{{PredictionID: "missing", ActualValue: 30}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_FOUND")
	assert.Empty(t, auditor.actions)
}

func TestVerifyRecordsAccuracy(t *testing.T) {
	store := &fakeStore{stored: map[string]*database.Prediction{
		"pred-1": {ID: "pred-1", PredictedValue: 50},
	}}
	svc, auditor := newTestService(store)

	updated, err := svc.Verify("tenant-1", types.VerifyPredictionsRequest{
		Verifications: []types.Verification{{PredictionID: "pred-1", ActualValue: 100}},
	})
	require.NoError(t, err)
	require.Len(t, updated, 1)

	assert.True(t, updated[0].Verified)
	require.NotNil(t, updated[0].Accuracy)
	assert.InDelta(t, 0.5, *updated[0].Accuracy, 1e-9)
	assert.Equal(t, []string{"predictions.verify"}, auditor.actions)
}

func TestAccuracy(t *testing.T) {
	tests := []struct {
		name      string
		predicted float64
		actual    float64
		want      float64
	}{
		{"exact match", 42, 42, 1},
		{"both zero", 0, 0, 1},
		{"half off", 50, 100, 0.5},
		{"order independent", 100, 50, 0.5},
		{"wildly wrong clamps to zero", 10, -90, 0},
		{"predicted zero actual nonzero", 0, 30, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, accuracy(tt.predicted, tt.actual), 1e-9)
		})
	}
}

func TestResolveTypes(t *testing.T) {
	t.Run("empty request means all types", func(t *testing.T) {
		got, err := resolveTypes(nil)
		require.NoError(t, err)
		assert.Equal(t, AllTypes, got)
	})

	t.Run("valid subset passes through", func(t *testing.T) {
		got, err := resolveTypes([]string{TypeQualityScore, TypeCompletionTime})
		require.NoError(t, err)
		assert.Equal(t, []string{TypeQualityScore, TypeCompletionTime}, got)
	})

	t.Run("unknown type is rejected", func(t *testing.T) {
		_, err := resolveTypes([]string{"mood"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mood")
	})
}

func TestBuildPrediction(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	est := scoring.Estimate{Value: 34.5, Confidence: 0.8, Low: 28, High: 41}

	t.Run("with intervals", func(t *testing.T) {
		pred := buildPrediction("staff-1", "sop-1", TypeCompletionTime, est, 30, true, now)

		assert.NotEmpty(t, pred.ID)
		assert.Equal(t, "staff-1", pred.StaffID)
		assert.Equal(t, "sop-1", pred.SOPID)
		assert.Equal(t, TypeCompletionTime, pred.PredictionType)
		assert.Equal(t, 34.5, pred.PredictedValue)
		assert.Equal(t, 0.8, pred.Confidence)
		assert.Equal(t, 30, pred.HorizonDays)
		require.NotNil(t, pred.IntervalLow)
		require.NotNil(t, pred.IntervalHigh)
		assert.Equal(t, 28.0, *pred.IntervalLow)
		assert.Equal(t, 41.0, *pred.IntervalHigh)
	})

	t.Run("without intervals", func(t *testing.T) {
		pred := buildPrediction("staff-1", "sop-1", TypeCompletionTime, est, 30, false, now)
		assert.Nil(t, pred.IntervalLow)
		assert.Nil(t, pred.IntervalHigh)
	})

	t.Run("ids are unique", func(t *testing.T) {
		a := buildPrediction("s", "p", TypeQualityScore, est, 30, false, now)
		b := buildPrediction("s", "p", TypeQualityScore, est, 30, false, now)
		assert.NotEqual(t, a.ID, b.ID)
	})
}
