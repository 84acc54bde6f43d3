package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/richinex/turbineopt/catalog"
	"github.com/richinex/turbineopt/model"
)

// SqliteStorage implements ResultSink, ResultReader and CatalogStore using SQLite.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type SqliteStorage struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStorage, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return newSqlite(db)
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStorage, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Each pooled connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return newSqlite(db)
}

func newSqlite(db *sql.DB) (*SqliteStorage, error) {
	storage := &SqliteStorage{db: db}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return storage, nil
}

// Close closes the database connection.
func (s *SqliteStorage) Close() error {
	return s.db.Close()
}

func (s *SqliteStorage) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS turbines (
			turbine_id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			install_date TEXT,
			last_maintenance TEXT,
			state TEXT NOT NULL DEFAULT '',
			lat REAL NOT NULL DEFAULT 0,
			lon REAL NOT NULL DEFAULT 0,
			capacity_mw REAL NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_turbines_state_model
		ON turbines(state, model);

		CREATE TABLE IF NOT EXISTS optimization_results (
			turbine_id TEXT NOT NULL,
			assessed_date TEXT NOT NULL,
			optimal_rpm REAL NOT NULL,
			cost REAL NOT NULL,
			revenue REAL NOT NULL,
			profit REAL NOT NULL,
			PRIMARY KEY (turbine_id, assessed_date)
		);

		CREATE INDEX IF NOT EXISTS idx_results_date
		ON optimization_results(assessed_date);

		CREATE TABLE IF NOT EXISTS assessment_runs (
			run_id TEXT PRIMARY KEY,
			assessed_date TEXT NOT NULL,
			started_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			turbines INTEGER NOT NULL,
			computed INTEGER NOT NULL,
			no_snapshot INTEGER NOT NULL,
			no_valid_candidates INTEGER NOT NULL,
			power_model TEXT NOT NULL DEFAULT '',
			life_model TEXT NOT NULL DEFAULT ''
		);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveResults upserts results in a single transaction.
func (s *SqliteStorage) SaveResults(ctx context.Context, results []model.OptimizationResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO optimization_results
		(turbine_id, assessed_date, optimal_rpm, cost, revenue, profit)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		_, err = stmt.ExecContext(ctx, r.TurbineID, r.AssessedDate, r.OptimalRPM, r.Cost, r.Revenue, r.Profit)
		if err != nil {
			return fmt.Errorf("failed to insert result for %s: %w", r.TurbineID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetResult returns the result for one key, or ErrNotFound.
func (s *SqliteStorage) GetResult(ctx context.Context, turbineID, assessedDate string) (model.OptimizationResult, error) {
	var r model.OptimizationResult
	err := s.db.QueryRowContext(ctx, `
		SELECT turbine_id, assessed_date, optimal_rpm, cost, revenue, profit
		FROM optimization_results WHERE turbine_id = ? AND assessed_date = ?`,
		turbineID, assessedDate).Scan(&r.TurbineID, &r.AssessedDate, &r.OptimalRPM, &r.Cost, &r.Revenue, &r.Profit)
	if err == sql.ErrNoRows {
		return model.OptimizationResult{}, fmt.Errorf("result %s/%s: %w", turbineID, assessedDate, ErrNotFound)
	}
	if err != nil {
		return model.OptimizationResult{}, fmt.Errorf("failed to get result: %w", err)
	}
	return r, nil
}

// QueryResults returns results matching q.
func (s *SqliteStorage) QueryResults(ctx context.Context, q ResultQuery) ([]model.OptimizationResult, error) {
	var where []string
	var args []interface{}
	if q.TurbineID != "" {
		where = append(where, "turbine_id = ?")
		args = append(args, q.TurbineID)
	}
	if q.AssessedDate != "" {
		where = append(where, "assessed_date = ?")
		args = append(args, q.AssessedDate)
	}

	query := "SELECT turbine_id, assessed_date, optimal_rpm, cost, revenue, profit FROM optimization_results"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY turbine_id, assessed_date"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}
	return s.queryResults(ctx, query, args...)
}

// queryResults executes a query and scans rows into results.
func (s *SqliteStorage) queryResults(ctx context.Context, query string, args ...interface{}) ([]model.OptimizationResult, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	results := []model.OptimizationResult{}
	for rows.Next() {
		var r model.OptimizationResult
		if err := rows.Scan(&r.TurbineID, &r.AssessedDate, &r.OptimalRPM, &r.Cost, &r.Revenue, &r.Profit); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iteration failed: %w", err)
	}
	return results, nil
}

// CatalogStore implementation

// SaveTurbines upserts turbines by id.
func (s *SqliteStorage) SaveTurbines(ctx context.Context, turbines []model.Turbine) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO turbines
		(turbine_id, name, model, install_date, last_maintenance, state, lat, lon, capacity_mw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for _, t := range turbines {
		_, err = stmt.ExecContext(ctx, t.ID, t.Name, t.Model,
			nullDate(t.InstallDate), nullDate(t.LastMaintenance),
			t.State, t.Lat, t.Lon, t.CapacityMW)
		if err != nil {
			return fmt.Errorf("failed to insert turbine %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetTurbine returns one turbine, or ErrNotFound.
func (s *SqliteStorage) GetTurbine(ctx context.Context, id string) (model.Turbine, error) {
	turbines, err := s.queryTurbines(ctx, turbineSelect+" WHERE turbine_id = ?", id)
	if err != nil {
		return model.Turbine{}, err
	}
	if len(turbines) == 0 {
		return model.Turbine{}, fmt.Errorf("turbine %s: %w", id, ErrNotFound)
	}
	return turbines[0], nil
}

// FindTurbines returns turbines matching the filter.
func (s *SqliteStorage) FindTurbines(ctx context.Context, f catalog.Filter) ([]model.Turbine, error) {
	var where []string
	var args []interface{}
	for _, c := range []struct{ col, val string }{
		{"state", f.State},
		{"model", f.Model},
		{"install_date", f.InstallDate},
		{"last_maintenance", f.LastMaintenance},
	} {
		if c.val != "" {
			where = append(where, c.col+" = ?")
			args = append(args, c.val)
		}
	}

	query := turbineSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	return s.queryTurbines(ctx, query+" ORDER BY turbine_id", args...)
}

const turbineSelect = `SELECT turbine_id, name, model, install_date, last_maintenance, state, lat, lon, capacity_mw FROM turbines`

func (s *SqliteStorage) queryTurbines(ctx context.Context, query string, args ...interface{}) ([]model.Turbine, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	turbines := []model.Turbine{}
	for rows.Next() {
		var t model.Turbine
		var install, maintenance sql.NullString
		if err := rows.Scan(&t.ID, &t.Name, &t.Model, &install, &maintenance, &t.State, &t.Lat, &t.Lon, &t.CapacityMW); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		if t.InstallDate, err = parseNullDate(install); err != nil {
			return nil, fmt.Errorf("turbine %s install_date: %w", t.ID, err)
		}
		if t.LastMaintenance, err = parseNullDate(maintenance); err != nil {
			return nil, fmt.Errorf("turbine %s last_maintenance: %w", t.ID, err)
		}
		turbines = append(turbines, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iteration failed: %w", err)
	}
	return turbines, nil
}

// Dates are stored as YYYY-MM-DD; a zero time is stored as NULL.
func nullDate(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.Format(model.DateLayout)
}

func parseNullDate(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	return time.Parse(model.DateLayout, s.String)
}

// Run history

// runTimeLayout has fixed width so started_at sorts lexically.
const runTimeLayout = "2006-01-02T15:04:05.000000000Z"

// RecordRun stores a run summary. Recording the same run id twice replaces it.
func (s *SqliteStorage) RecordRun(ctx context.Context, run RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO assessment_runs
		(run_id, assessed_date, started_at, duration_ms, turbines, computed, no_snapshot, no_valid_candidates, power_model, life_model)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID,
		run.AssessedDate,
		run.StartedAt.UTC().Format(runTimeLayout),
		run.Duration.Milliseconds(),
		run.Turbines,
		run.Computed,
		run.NoSnapshot,
		run.NoValidCandidates,
		run.PowerModel,
		run.LifeModel,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *SqliteStorage) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
		SELECT run_id, assessed_date, started_at, duration_ms, turbines, computed, no_snapshot, no_valid_candidates, power_model, life_model
		FROM assessment_runs
		ORDER BY started_at DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		var r RunRecord
		var started string
		var durationMS int64
		if err := rows.Scan(&r.RunID, &r.AssessedDate, &started, &durationMS, &r.Turbines,
			&r.Computed, &r.NoSnapshot, &r.NoValidCandidates, &r.PowerModel, &r.LifeModel); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.StartedAt, err = time.Parse(runTimeLayout, started); err != nil {
			return nil, fmt.Errorf("run %s started_at: %w", r.RunID, err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// Verify SqliteStorage implements all interfaces
var _ ResultSink = (*SqliteStorage)(nil)
var _ ResultReader = (*SqliteStorage)(nil)
var _ CatalogStore = (*SqliteStorage)(nil)
