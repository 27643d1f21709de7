package patterns

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsboard/sopmatch/internal/types"
)

var testBase = time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC) // a Monday

func steadyRecords(sopID string, n int, minutes float64) []types.CompletionRecord {
	out := make([]types.CompletionRecord, n)
	for i := 0; i < n; i++ {
		out[i] = types.CompletionRecord{
			ID:               fmt.Sprintf("r%d", i),
			StaffID:          "s1",
			SOPID:            sopID,
			PercentComplete:  100,
			TimeSpentMinutes: minutes,
			CompletedAt:      testBase.Add(time.Duration(i) * 24 * time.Hour),
		}
	}
	return out
}

func TestBucketKey(t *testing.T) {
	at := time.Date(2026, 1, 1, 13, 30, 0, 0, time.UTC)

	tests := []struct {
		name        string
		granularity Granularity
		expected    string
	}{
		{name: "hourly", granularity: Hourly, expected: "2026-01-01T13"},
		{name: "daily", granularity: Daily, expected: "2026-01-01"},
		{name: "monthly", granularity: Monthly, expected: "2026-01"},
		// Jan 1 2026 is a Thursday, ISO week 1 of 2026
		{name: "weekly iso", granularity: Weekly, expected: "2026-W01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BucketKey(at, tt.granularity))
		})
	}
}

func TestBucketKeyISOWeekYearBoundary(t *testing.T) {
	// Dec 29 2025 belongs to ISO week 1 of 2026.
	assert.Equal(t, "2026-W01", BucketKey(time.Date(2025, 12, 29, 8, 0, 0, 0, time.UTC), Weekly))
}

func TestParseGranularity(t *testing.T) {
	g, ok := ParseGranularity("")
	require.True(t, ok)
	assert.Equal(t, Weekly, g)

	_, ok = ParseGranularity("fortnightly")
	assert.False(t, ok)
}

func TestClassifyTrend(t *testing.T) {
	tests := []struct {
		name     string
		means    []float64
		expected string
	}{
		{name: "rising halves", means: []float64{10, 10, 20, 20}, expected: TrendIncreasing},
		{name: "falling halves", means: []float64{20, 20, 10, 10}, expected: TrendDecreasing},
		{name: "flat series", means: []float64{15, 15, 15, 15}, expected: TrendStable},
		{name: "change below threshold is stable", means: []float64{100, 100, 102, 102}, expected: TrendStable},
		{name: "single bucket", means: []float64{15}, expected: TrendStable},
		{name: "empty", means: nil, expected: TrendStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trend, _ := classifyTrend(tt.means)
			assert.Equal(t, tt.expected, trend)
		})
	}
}

func TestConfidenceMonotonicInSampleSize(t *testing.T) {
	sizes := []int{10, 20, 50, 100}
	var previous float64

	for i, n := range sizes {
		c := confidenceLevel(Statistics{SampleSize: n, Mean: 30, StdDev: 3, BucketCount: 2})
		if i > 0 {
			assert.GreaterOrEqual(t, c, previous, "confidence must not drop as samples grow")
		}
		previous = c
	}
}

func TestConfidencePenalizesVariability(t *testing.T) {
	steady := confidenceLevel(Statistics{SampleSize: 50, Mean: 30, StdDev: 1, BucketCount: 3})
	noisy := confidenceLevel(Statistics{SampleSize: 50, Mean: 30, StdDev: 25, BucketCount: 3})
	assert.Greater(t, steady, noisy)
}

func TestConfidenceClamped(t *testing.T) {
	low := confidenceLevel(Statistics{SampleSize: 1, Mean: 1, StdDev: 100, BucketCount: 1})
	high := confidenceLevel(Statistics{SampleSize: 500, Mean: 100, StdDev: 0, BucketCount: 10})

	assert.GreaterOrEqual(t, low, 0.1)
	assert.LessOrEqual(t, high, 1.0)
}

func TestAnalyzeSkipsGroupsBelowMinimum(t *testing.T) {
	records := append(steadyRecords("sop-small", 5, 30), steadyRecords("sop-big", 30, 30)...)

	found := Analyze(records, CompletionTime, Daily, 10)
	require.Len(t, found, 1)
	assert.Equal(t, "sop-big", found[0].SOPID)
}

func TestAnalyzeDropsLowConfidencePatterns(t *testing.T) {
	// 10 records with enormous dispersion: base 0.4, no size tier, heavy
	// variability penalty keeps it under the 0.6 retention floor.
	records := steadyRecords("sop-noisy", 10, 30)
	for i := range records {
		if i%2 == 0 {
			records[i].TimeSpentMinutes = 300
		} else {
			records[i].TimeSpentMinutes = 5
		}
	}

	found := Analyze(records, CompletionTime, Daily, 10)
	assert.Empty(t, found)
}

func TestAnalyzeProducesOrderedDeterministicOutput(t *testing.T) {
	records := append(steadyRecords("sop-b", 25, 30), steadyRecords("sop-a", 25, 40)...)

	first := Analyze(records, CompletionTime, Weekly, 10)
	second := Analyze(records, CompletionTime, Weekly, 10)

	require.Len(t, first, 2)
	assert.Equal(t, "sop-a", first[0].SOPID)
	assert.Equal(t, "sop-b", first[1].SOPID)
	require.Len(t, second, 2)
	assert.Equal(t, first[0].Stats, second[0].Stats)
}

func TestAnalyzeStatistics(t *testing.T) {
	records := steadyRecords("sop-x", 25, 30)

	found := Analyze(records, CompletionTime, Daily, 10)
	require.Len(t, found, 1)

	p := found[0]
	assert.Equal(t, CompletionTime, p.PatternType)
	assert.InDelta(t, 30, p.Stats.Mean, 1e-9)
	assert.InDelta(t, 30, p.Stats.Median, 1e-9)
	assert.InDelta(t, 0, p.Stats.StdDev, 1e-9)
	assert.Equal(t, 25, p.Stats.SampleSize)
	assert.Equal(t, 25, p.Stats.BucketCount)
	assert.Equal(t, TrendStable, p.Stats.Trend)
	assert.NotEmpty(t, p.Insights)
	assert.NotEmpty(t, p.ID)
}

func TestAnalyzeSuccessRateMetric(t *testing.T) {
	records := steadyRecords("sop-y", 100, 30)
	// fail the last 30 attempts so the later weeks drop
	for i := 70; i < 100; i++ {
		records[i].PercentComplete = 50
	}

	found := Analyze(records, SuccessRate, Weekly, 10)
	require.Len(t, found, 1)
	assert.Equal(t, TrendDecreasing, found[0].Stats.Trend)
	assert.InDelta(t, 0.7, found[0].Stats.Mean, 1e-9)
}
