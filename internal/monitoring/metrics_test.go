package monitoring

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	m.IncrementRequest()
	m.IncrementRequest()
	m.IncrementError()
	m.IncrementCacheHit()
	m.IncrementCacheMiss()
	m.AddMatchesComputed(12)
	m.AddPredictionsGenerated(8)
	m.AddPredictionsVerified(3)
	m.IncrementPatternRun()

	stats := m.GetStats()
	assert.Equal(t, int64(2), stats["total_requests"])
	assert.Equal(t, int64(1), stats["error_count"])
	assert.Equal(t, 50.0, stats["error_rate_percent"])
	assert.Equal(t, 50.0, stats["cache_hit_rate_percent"])
	assert.Equal(t, int64(12), stats["matches_computed"])
	assert.Equal(t, int64(8), stats["predictions_generated"])
	assert.Equal(t, int64(3), stats["predictions_verified"])
	assert.Equal(t, int64(1), stats["pattern_runs"])
}

func TestMetricsConcurrentIncrements(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementRequest()
			m.RecordRequestByStatus(200)
			m.IncrementRateLimitEndpoint("matching")
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), m.RequestCount)
	assert.Equal(t, int64(50), m.GetStatusCodeDistribution()[200])

	rl := m.GetRateLimitStats()
	assert.Equal(t, int64(50), rl["endpoint_blocks"].(map[string]int64)["matching"])
}

func TestPercentileResponseTime(t *testing.T) {
	m := NewMetrics()
	for i := 1; i <= 100; i++ {
		m.RecordResponseTime(time.Duration(i) * time.Millisecond)
	}

	assert.Equal(t, 50*time.Millisecond, m.GetPercentileResponseTime(50))
	assert.Equal(t, 95*time.Millisecond, m.GetPercentileResponseTime(95))
	assert.Equal(t, 100*time.Millisecond, m.GetPercentileResponseTime(100))
}

func TestPercentileEmptyWindow(t *testing.T) {
	m := NewMetrics()
	assert.Equal(t, time.Duration(0), m.GetPercentileResponseTime(95))
}

func TestResponseTimeWindowBounded(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < 1200; i++ {
		m.RecordResponseTime(time.Millisecond)
	}

	m.ResponseTimesMutex.RLock()
	defer m.ResponseTimesMutex.RUnlock()
	assert.Len(t, m.ResponseTimes, 1000)
}

func TestStatusCodeDistributionCopies(t *testing.T) {
	m := NewMetrics()
	m.RecordRequestByStatus(200)
	m.RecordRequestByStatus(404)
	m.RecordRequestByStatus(404)

	dist := m.GetStatusCodeDistribution()
	require.Equal(t, int64(2), dist[404])

	// mutating the returned map must not touch the live counters
	dist[404] = 99
	assert.Equal(t, int64(2), m.GetStatusCodeDistribution()[404])
}

func TestReset(t *testing.T) {
	m := NewMetrics()
	m.IncrementRequest()
	m.IncrementError()
	m.RecordResponseTime(time.Second)
	m.RecordRequestByStatus(500)
	m.IncrementRateLimitIPBlock()
	m.IncrementRateLimitEndpoint("patterns")

	m.Reset()

	stats := m.GetStats()
	assert.Equal(t, int64(0), stats["total_requests"])
	assert.Equal(t, int64(0), stats["error_count"])
	assert.Equal(t, 0.0, stats["avg_response_time_ms"])
	assert.Empty(t, m.GetStatusCodeDistribution())

	rl := m.GetRateLimitStats()
	assert.Equal(t, int64(0), rl["ip_blocks"])
	assert.Empty(t, rl["endpoint_blocks"])
}
