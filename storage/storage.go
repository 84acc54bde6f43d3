// Package storage persists optimization results and catalog data.
//
// Information Hiding:
// - Backend details (SQLite, DynamoDB, CSV, Kafka) hidden behind small interfaces
// - Results are keyed by (turbine_id, assessed_date); saving the same key replaces the row
// - Every backend is safe for concurrent use
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/richinex/turbineopt/catalog"
	"github.com/richinex/turbineopt/model"
)

// ErrNotFound is returned when a keyed lookup has no row.
var ErrNotFound = errors.New("not found")

// ResultSink receives computed optimization results.
type ResultSink interface {
	// SaveResults upserts results by (turbine_id, assessed_date).
	SaveResults(ctx context.Context, results []model.OptimizationResult) error
}

// ResultQuery selects results. Empty fields match everything.
type ResultQuery struct {
	TurbineID    string
	AssessedDate string
	Limit        int
}

// Matches reports whether r satisfies the query.
func (q ResultQuery) Matches(r model.OptimizationResult) bool {
	if q.TurbineID != "" && r.TurbineID != q.TurbineID {
		return false
	}
	if q.AssessedDate != "" && r.AssessedDate != q.AssessedDate {
		return false
	}
	return true
}

// ResultReader retrieves persisted results.
type ResultReader interface {
	// GetResult returns the row for one key, or ErrNotFound.
	GetResult(ctx context.Context, turbineID, assessedDate string) (model.OptimizationResult, error)

	// QueryResults returns matching rows ordered by turbine_id, then assessed_date.
	QueryResults(ctx context.Context, q ResultQuery) ([]model.OptimizationResult, error)
}

// CatalogStore persists turbine reference data.
type CatalogStore interface {
	SaveTurbines(ctx context.Context, turbines []model.Turbine) error

	// GetTurbine returns one turbine, or ErrNotFound.
	GetTurbine(ctx context.Context, id string) (model.Turbine, error)

	// FindTurbines returns turbines matching every non-empty filter field,
	// ordered by turbine_id.
	FindTurbines(ctx context.Context, f catalog.Filter) ([]model.Turbine, error)
}

// RunRecord summarizes one batch assessment run.
type RunRecord struct {
	RunID             string        `json:"run_id"`
	AssessedDate      string        `json:"assessed_date"`
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"duration"`
	Turbines          int           `json:"turbines"`
	Computed          int           `json:"computed"`
	NoSnapshot        int           `json:"no_snapshot"`
	NoValidCandidates int           `json:"no_valid_candidates"`
	PowerModel        string        `json:"power_model_fingerprint,omitempty"`
	LifeModel         string        `json:"life_model_fingerprint,omitempty"`
}

// MultiSink fans results out to several sinks in order, stopping at the
// first failure.
type MultiSink []ResultSink

// SaveResults implements ResultSink.
func (m MultiSink) SaveResults(ctx context.Context, results []model.OptimizationResult) error {
	for _, s := range m {
		if err := s.SaveResults(ctx, results); err != nil {
			return err
		}
	}
	return nil
}
