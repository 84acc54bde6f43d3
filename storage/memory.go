package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/richinex/turbineopt/catalog"
	"github.com/richinex/turbineopt/model"
)

type resultKey struct {
	turbineID    string
	assessedDate string
}

// InMemoryStore implements ResultSink, ResultReader and CatalogStore with maps.
// Data is lost when the process terminates. Values are copied in and out.
type InMemoryStore struct {
	mu       sync.RWMutex
	results  map[resultKey]model.OptimizationResult
	turbines map[string]model.Turbine
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		results:  make(map[resultKey]model.OptimizationResult),
		turbines: make(map[string]model.Turbine),
	}
}

// SaveResults upserts results by key.
func (s *InMemoryStore) SaveResults(ctx context.Context, results []model.OptimizationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range results {
		s.results[resultKey{r.TurbineID, r.AssessedDate}] = r
	}
	return nil
}

// GetResult returns one result, or ErrNotFound.
func (s *InMemoryStore) GetResult(ctx context.Context, turbineID, assessedDate string) (model.OptimizationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[resultKey{turbineID, assessedDate}]
	if !ok {
		return model.OptimizationResult{}, fmt.Errorf("result %s/%s: %w", turbineID, assessedDate, ErrNotFound)
	}
	return r, nil
}

// QueryResults returns matching results ordered by turbine_id, then assessed_date.
func (s *InMemoryStore) QueryResults(ctx context.Context, q ResultQuery) ([]model.OptimizationResult, error) {
	s.mu.RLock()
	out := []model.OptimizationResult{}
	for _, r := range s.results {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	SortResults(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// SaveTurbines upserts turbines by id.
func (s *InMemoryStore) SaveTurbines(ctx context.Context, turbines []model.Turbine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range turbines {
		s.turbines[t.ID] = t
	}
	return nil
}

// GetTurbine returns one turbine, or ErrNotFound.
func (s *InMemoryStore) GetTurbine(ctx context.Context, id string) (model.Turbine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.turbines[id]
	if !ok {
		return model.Turbine{}, fmt.Errorf("turbine %s: %w", id, ErrNotFound)
	}
	return t, nil
}

// FindTurbines returns turbines matching the filter, ordered by id.
func (s *InMemoryStore) FindTurbines(ctx context.Context, f catalog.Filter) ([]model.Turbine, error) {
	s.mu.RLock()
	out := []model.Turbine{}
	for _, t := range s.turbines {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	s.mu.RUnlock()

	sortTurbines(out)
	return out, nil
}

func sortTurbines(turbines []model.Turbine) {
	sort.Slice(turbines, func(i, j int) bool { return turbines[i].ID < turbines[j].ID })
}

// SortResults orders results by turbine_id, then assessed_date.
func SortResults(results []model.OptimizationResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].TurbineID != results[j].TurbineID {
			return results[i].TurbineID < results[j].TurbineID
		}
		return results[i].AssessedDate < results[j].AssessedDate
	})
}

// Verify InMemoryStore implements all interfaces
var _ ResultSink = (*InMemoryStore)(nil)
var _ ResultReader = (*InMemoryStore)(nil)
var _ CatalogStore = (*InMemoryStore)(nil)
