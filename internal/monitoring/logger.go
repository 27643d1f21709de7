package monitoring

import (
	"log/slog"
	"os"
	"time"
)

// Logger provides structured JSON logging with domain-specific helpers.
type Logger struct {
	*slog.Logger
}

// NewLogger creates the service logger writing JSON to stdout.
func NewLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	})
	return &Logger{Logger: slog.New(handler)}
}

// RequestLogger logs HTTP request details.
func (l *Logger) RequestLogger(method, path, ip string, statusCode int, duration time.Duration) {
	l.Info("HTTP Request",
		"method", method,
		"path", path,
		"ip", ip,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// MatchLogger logs one match generation run.
func (l *Logger) MatchLogger(tenant string, sops, matches int, duration time.Duration) {
	l.Info("Match Generation",
		"tenant", tenant,
		"sops", sops,
		"matches", matches,
		"duration_ms", duration.Milliseconds(),
	)
}

// PredictionLogger logs one prediction generation run.
func (l *Logger) PredictionLogger(tenant string, predictions int, duration time.Duration) {
	l.Info("Prediction Generation",
		"tenant", tenant,
		"predictions", predictions,
		"duration_ms", duration.Milliseconds(),
	)
}

// PatternLogger logs one pattern analysis run.
func (l *Logger) PatternLogger(tenant string, patterns int, duration time.Duration) {
	l.Info("Pattern Analysis",
		"tenant", tenant,
		"patterns", patterns,
		"duration_ms", duration.Milliseconds(),
	)
}

// APIErrorLogger logs API errors with request context.
func (l *Logger) APIErrorLogger(err error, method, path, ip string, statusCode int) {
	l.Error("API Error",
		"error", err.Error(),
		"method", method,
		"path", path,
		"ip", ip,
		"status_code", statusCode,
	)
}

// CacheLogger logs cache operations at debug level.
func (l *Logger) CacheLogger(operation, key string, hit bool, itemCount int) {
	l.Debug("Cache Operation",
		"operation", operation,
		"key", key,
		"hit", hit,
		"cache_size", itemCount,
	)
}

// SystemLogger logs system-level events.
func (l *Logger) SystemLogger(event, details string) {
	l.Info("System Event",
		"event", event,
		"details", details,
		"uptime", time.Since(startTime).String(),
	)
}

var startTime = time.Now()
