package patterns

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/opsboard/sopmatch/internal/errors"
	"github.com/opsboard/sopmatch/internal/features"
	"github.com/opsboard/sopmatch/internal/types"
)

// Store is the persistence surface the pattern service needs.
type Store interface {
	CompletionsFiltered(sopIDs, staffIDs []string, start, end time.Time) ([]types.CompletionRecord, error)
	SavePatterns(ps []Pattern) error
	ListPatterns(sopID, patternType string, limit, offset int) ([]Pattern, error)
}

// AuditSink records pattern analysis runs.
type AuditSink interface {
	Record(actor, action, entity, before, after string)
}

// Service runs pattern analysis over completion history and persists the
// retained patterns.
type Service struct {
	store   Store
	auditor AuditSink
	now     func() time.Time
}

func NewService(store Store, auditor AuditSink) *Service {
	return &Service{store: store, auditor: auditor, now: time.Now}
}

// Analyze aggregates completion history into patterns per the request and
// persists every pattern that clears the confidence floor.
func (s *Service) Analyze(tenantID string, req types.AnalyzePatternsRequest) ([]Pattern, error) {
	granularity, ok := ParseGranularity(req.TimePeriod)
	if !ok {
		return nil, errors.NewValidationError(fmt.Sprintf("unknown time_period %q", req.TimePeriod))
	}

	patternTypes := AllPatternTypes()
	if len(req.PatternTypes) > 0 {
		patternTypes = patternTypes[:0]
		for _, raw := range req.PatternTypes {
			pt, ok := ParsePatternType(raw)
			if !ok {
				return nil, errors.NewValidationError(fmt.Sprintf("unknown pattern type %q", raw))
			}
			patternTypes = append(patternTypes, pt)
		}
	}

	minSamples := req.MinimumSampleSize
	if minSamples <= 0 {
		minSamples = features.MinSamplesPattern
	}

	now := s.now()
	start, end, err := dateRange(req.DateRangeStart, req.DateRangeEnd, now)
	if err != nil {
		return nil, err
	}

	records, err := s.store.CompletionsFiltered(req.SOPIDs, nil, start, end)
	if err != nil {
		return nil, errors.NewDatabaseError("failed to load completion history", err)
	}

	all := make([]Pattern, 0)
	for _, pt := range patternTypes {
		all = append(all, Analyze(records, pt, granularity, minSamples)...)
	}

	if len(all) > 0 {
		if err := s.store.SavePatterns(all); err != nil {
			return nil, errors.NewDatabaseError("failed to persist patterns", err)
		}
	}
	s.auditor.Record(tenantID, "patterns.analyze", "patterns", "",
		fmt.Sprintf("{\"records\":%d,\"patterns\":%d}", len(records), len(all)))

	slog.Debug("Pattern analysis completed",
		"tenant", tenantID,
		"records", len(records),
		"types", len(patternTypes),
		"patterns", len(all))
	return all, nil
}

// List returns stored patterns, optionally filtered by sop and type.
func (s *Service) List(sopID, patternType string, limit, offset int) ([]Pattern, error) {
	ps, err := s.store.ListPatterns(sopID, patternType, limit, offset)
	if err != nil {
		return nil, errors.NewDatabaseError("failed to list patterns", err)
	}
	return ps, nil
}

// dateRange resolves the optional range bounds, defaulting to the trailing
// pattern window ending now.
func dateRange(startRaw, endRaw string, now time.Time) (time.Time, time.Time, error) {
	end := now
	if endRaw != "" {
		parsed, err := parseDate(endRaw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.NewValidationError("date_range_end must be RFC 3339 or YYYY-MM-DD")
		}
		end = parsed
	}
	start := end.Add(-features.PatternWindow)
	if startRaw != "" {
		parsed, err := parseDate(startRaw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.NewValidationError("date_range_start must be RFC 3339 or YYYY-MM-DD")
		}
		start = parsed
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, errors.NewValidationError("date_range_start must precede date_range_end")
	}
	return start, end, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
