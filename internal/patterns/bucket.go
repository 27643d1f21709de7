package patterns

import (
	"fmt"
	"time"
)

// Granularity selects the time-bucket width for aggregation.
type Granularity string

const (
	Hourly  Granularity = "hourly"
	Daily   Granularity = "daily"
	Weekly  Granularity = "weekly"
	Monthly Granularity = "monthly"
)

// ParseGranularity validates a granularity string, defaulting to weekly
// for the empty string.
func ParseGranularity(s string) (Granularity, bool) {
	switch Granularity(s) {
	case Hourly, Daily, Weekly, Monthly:
		return Granularity(s), true
	case "":
		return Weekly, true
	default:
		return "", false
	}
}

// BucketKey maps a timestamp to its bucket label. Timestamps are
// UTC-normalized first; weekly buckets use ISO-8601 week numbering
// (Thursday-anchored), so year boundaries land in the correct week.
func BucketKey(t time.Time, g Granularity) string {
	t = t.UTC()
	switch g {
	case Hourly:
		return t.Format("2006-01-02T15")
	case Daily:
		return t.Format("2006-01-02")
	case Monthly:
		return t.Format("2006-01")
	default:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	}
}
