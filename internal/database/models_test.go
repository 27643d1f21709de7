package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsboard/sopmatch/internal/scoring"
)

func TestNewMatchResultExpiry(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	combined := scoring.Combined{Score: 72.4, Confidence: 0.8, IntervalLow: 60, IntervalHigh: 85}

	m := NewMatchResult("staff-1", "sop-1", combined, now)

	require.NotEmpty(t, m.ID)
	assert.Equal(t, "staff-1", m.StaffID)
	assert.Equal(t, "sop-1", m.SOPID)
	assert.Equal(t, now, m.CreatedAt)
	assert.Equal(t, now.Add(7*24*time.Hour), m.ExpiresAt)
	assert.Equal(t, MatchLifetime, m.ExpiresAt.Sub(m.CreatedAt))
}

func TestNewMatchResultRoundsScore(t *testing.T) {
	tests := []struct {
		name     string
		score    float64
		expected float64
	}{
		{name: "rounds down", score: 72.4, expected: 72},
		{name: "rounds up", score: 72.5, expected: 73},
		{name: "integer unchanged", score: 80, expected: 80},
	}

	now := time.Now()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMatchResult("s", "p", scoring.Combined{Score: tt.score}, now)
			assert.Equal(t, tt.expected, m.MatchScore)
		})
	}
}

func TestNewMatchResultCarriesInterval(t *testing.T) {
	combined := scoring.Combined{
		Score:        65,
		Confidence:   0.75,
		IntervalLow:  52.5,
		IntervalHigh: 77.5,
		Contributions: []scoring.Result{
			{Algorithm: scoring.AlgorithmVectorSimilarity, Score: 60, Confidence: 0.7},
		},
	}

	m := NewMatchResult("s", "p", combined, time.Now())
	assert.Equal(t, 52.5, m.ConfidenceLow)
	assert.Equal(t, 77.5, m.ConfidenceHigh)
	assert.Len(t, m.Breakdown, 1)
}

func TestNewAuditEntry(t *testing.T) {
	e := NewAuditEntry("tenant-1", "matches.generate", "match_results", "", `{"count":3}`)

	require.NotEmpty(t, e.ID)
	assert.Equal(t, "tenant-1", e.Actor)
	assert.Equal(t, "matches.generate", e.Action)
	assert.Equal(t, "match_results", e.Entity)
	assert.Empty(t, e.Before)
	assert.Equal(t, `{"count":3}`, e.After)
	assert.False(t, e.CreatedAt.IsZero())
}
