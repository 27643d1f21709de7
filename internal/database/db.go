package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB is the sqlite connection with pooling and prepared statements.
type DB struct {
	*sql.DB
	pool     *ConnectionPool
	prepared map[string]*sql.Stmt
	mutex    sync.RWMutex
}

// ConnectionPool tracks the pool limits applied to the underlying sql.DB.
type ConnectionPool struct {
	db           *sql.DB
	maxOpenConns int
	maxIdleConns int
	maxLifetime  time.Duration
}

// NewConnectionPool applies pool limits and returns the tracker.
func NewConnectionPool(db *sql.DB, maxOpen, maxIdle int, maxLifetime time.Duration) *ConnectionPool {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	return &ConnectionPool{
		db:           db,
		maxOpenConns: maxOpen,
		maxIdleConns: maxIdle,
		maxLifetime:  maxLifetime,
	}
}

// GetStats returns connection pool statistics.
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	stats := cp.db.Stats()

	return map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"max_open_connections": cp.maxOpenConns,
		"max_idle_connections": cp.maxIdleConns,
		"max_lifetime_seconds": cp.maxLifetime.Seconds(),
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}
}

// dsn builds the connection string in the driver's underscore-parameter
// form so WAL, foreign keys and the busy timeout actually apply.
func dsn(dbPath string) string {
	return fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000", dbPath)
}

// NewDB opens the sqlite database under dataDir, runs migrations and
// prepares hot statements.
func NewDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "sopmatch.db")

	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pool := NewConnectionPool(db, 25, 5, 5*time.Minute)

	database := &DB{
		DB:       db,
		pool:     pool,
		prepared: make(map[string]*sql.Stmt),
	}

	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := database.initPreparedStatements(); err != nil {
		return nil, fmt.Errorf("failed to initialize prepared statements: %w", err)
	}

	slog.Info("Database initialized",
		"path", dbPath,
		"max_open_conns", pool.maxOpenConns,
		"max_idle_conns", pool.maxIdleConns)

	return database, nil
}

// migrate creates the schema.
func (db *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS staff (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			role TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			technical_skills TEXT NOT NULL,      -- JSON array
			soft_skills TEXT NOT NULL,           -- JSON array
			domain_knowledge TEXT NOT NULL,      -- JSON array
			problem_solving_skills TEXT NOT NULL, -- JSON array
			personality TEXT,                    -- JSON object
			stress_tolerance REAL NOT NULL DEFAULT 0.5,
			multitasking REAL NOT NULL DEFAULT 0.5,
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS sops (
			id TEXT PRIMARY KEY,
			title_en TEXT NOT NULL,
			title_zh TEXT,
			category TEXT NOT NULL,
			difficulty_level TEXT NOT NULL,
			estimated_duration_minutes INTEGER NOT NULL,
			tags TEXT NOT NULL,               -- JSON array
			requirement_vector TEXT NOT NULL, -- JSON array
			created_at DATETIME NOT NULL
		)`,

		// Append-only attempt log; never updated by the scoring side.
		`CREATE TABLE IF NOT EXISTS completions (
			id TEXT PRIMARY KEY,
			staff_id TEXT NOT NULL,
			sop_id TEXT NOT NULL,
			percent_complete REAL NOT NULL,
			time_spent_minutes REAL NOT NULL,
			completed_at DATETIME NOT NULL,
			FOREIGN KEY (staff_id) REFERENCES staff(id),
			FOREIGN KEY (sop_id) REFERENCES sops(id)
		)`,

		`CREATE TABLE IF NOT EXISTS match_results (
			id TEXT PRIMARY KEY,
			staff_id TEXT NOT NULL,
			sop_id TEXT NOT NULL,
			match_score REAL NOT NULL,
			confidence_low REAL NOT NULL,
			confidence_high REAL NOT NULL,
			breakdown TEXT NOT NULL,           -- JSON
			multi_objective_score REAL NOT NULL,
			pareto_optimal BOOLEAN NOT NULL DEFAULT FALSE,
			predicted_outcomes TEXT NOT NULL,  -- JSON
			skill_gaps TEXT NOT NULL,          -- JSON
			recommended_actions TEXT NOT NULL, -- JSON
			created_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS predictions (
			id TEXT PRIMARY KEY,
			staff_id TEXT NOT NULL,
			sop_id TEXT NOT NULL,
			prediction_type TEXT NOT NULL,
			predicted_value REAL NOT NULL,
			confidence REAL NOT NULL,
			interval_low REAL,
			interval_high REAL,
			horizon_days INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			verified BOOLEAN NOT NULL DEFAULT FALSE,
			actual_value REAL,
			accuracy REAL
		)`,

		// Analysis runs append rows; prior patterns are kept as history.
		`CREATE TABLE IF NOT EXISTS patterns (
			id TEXT PRIMARY KEY,
			sop_id TEXT NOT NULL,
			pattern_type TEXT NOT NULL,
			granularity TEXT NOT NULL,
			stats TEXT NOT NULL,    -- JSON
			insights TEXT NOT NULL, -- JSON array
			confidence REAL NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS scoring_config (
			tenant_id TEXT PRIMARY KEY,
			algorithm_weights TEXT NOT NULL, -- JSON object
			objective_weights TEXT NOT NULL, -- JSON object
			ensemble_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			entity TEXT NOT NULL,
			before_state TEXT,
			after_state TEXT,
			created_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_completions_staff ON completions(staff_id, completed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_completions_sop ON completions(sop_id, completed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_match_results_score ON match_results(match_score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_match_results_expires ON match_results(expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_match_results_sop ON match_results(sop_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_pair ON predictions(staff_id, sop_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_patterns_sop ON patterns(sop_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at DESC)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// initPreparedStatements prepares the statements on the hot write paths.
func (db *DB) initPreparedStatements() error {
	statements := map[string]string{
		"insert_match": `INSERT INTO match_results (
			id, staff_id, sop_id, match_score, confidence_low, confidence_high,
			breakdown, multi_objective_score, pareto_optimal, predicted_outcomes,
			skill_gaps, recommended_actions, created_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,

		"insert_prediction": `INSERT INTO predictions (
			id, staff_id, sop_id, prediction_type, predicted_value, confidence,
			interval_low, interval_high, horizon_days, created_at, verified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE)`,

		"insert_pattern": `INSERT INTO patterns (
			id, sop_id, pattern_type, granularity, stats, insights, confidence, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,

		"insert_completion": `INSERT INTO completions (
			id, staff_id, sop_id, percent_complete, time_spent_minutes, completed_at
		) VALUES (?, ?, ?, ?, ?, ?)`,

		"insert_audit": `INSERT INTO audit_logs (
			id, actor, action, entity, before_state, after_state, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, query := range statements {
		stmt, err := db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		db.prepared[name] = stmt
	}

	return nil
}

// GetPreparedStatement retrieves a prepared statement by name.
func (db *DB) GetPreparedStatement(name string) (*sql.Stmt, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	stmt, exists := db.prepared[name]
	if !exists {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}
	return stmt, nil
}

// GetPoolStats returns database connection pool statistics.
func (db *DB) GetPoolStats() map[string]interface{} {
	return db.pool.GetStats()
}

// Close closes prepared statements and the database connection.
func (db *DB) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, stmt := range db.prepared {
		if err := stmt.Close(); err != nil {
			slog.Warn("Failed to close prepared statement", "name", name, "error", err)
		}
	}
	db.prepared = make(map[string]*sql.Stmt)

	return db.DB.Close()
}
