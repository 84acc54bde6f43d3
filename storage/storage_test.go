package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/richinex/turbineopt/catalog"
	"github.com/richinex/turbineopt/model"
)

type resultStore interface {
	ResultSink
	ResultReader
	CatalogStore
}

func sampleResults() []model.OptimizationResult {
	return []model.OptimizationResult{
		{TurbineID: "WT-002", AssessedDate: "2024-07-02", OptimalRPM: 7, Cost: 2160000, Revenue: 32850000, Profit: 30690000},
		{TurbineID: "WT-001", AssessedDate: "2024-07-02", OptimalRPM: 5, Cost: 8760000.000000001, Revenue: 36500000, Profit: 27739999.999999996},
		{TurbineID: "WT-001", AssessedDate: "2024-07-01", OptimalRPM: 6, Cost: 21024000, Revenue: 43800000, Profit: 22776000},
	}
}

func sampleTurbines() []model.Turbine {
	day := func(s string) time.Time {
		t, _ := time.Parse(model.DateLayout, s)
		return t
	}
	return []model.Turbine{
		{ID: "WT-003", Name: "Ridge 3", Model: "V90", State: "TX", InstallDate: day("2016-05-01"), LastMaintenance: day("2024-01-10"), CapacityMW: 2},
		{ID: "WT-001", Name: "Ridge 1", Model: "V90", State: "IA", InstallDate: day("2015-03-01"), LastMaintenance: day("2024-06-01"), Lat: 41.5, Lon: -93.6, CapacityMW: 2},
		{ID: "WT-002", Name: "Ridge 2", Model: "GE1.5", State: "TX", InstallDate: day("2015-03-01"), CapacityMW: 1.5},
	}
}

// exerciseStore runs the behaviour every backend shares.
func exerciseStore(t *testing.T, store resultStore) {
	t.Helper()
	ctx := context.Background()

	if err := store.SaveResults(ctx, sampleResults()); err != nil {
		t.Fatalf("SaveResults failed: %v", err)
	}

	got, err := store.GetResult(ctx, "WT-001", "2024-07-02")
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if got != sampleResults()[1] {
		t.Errorf("expected %+v, got %+v", sampleResults()[1], got)
	}

	if _, err := store.GetResult(ctx, "WT-404", "2024-07-02"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	all, err := store.QueryResults(ctx, ResultQuery{})
	if err != nil {
		t.Fatalf("QueryResults failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 results, got %d", len(all))
	}
	if all[0].AssessedDate != "2024-07-01" || all[2].TurbineID != "WT-002" {
		t.Errorf("unexpected order: %+v", all)
	}

	byTurbine, err := store.QueryResults(ctx, ResultQuery{TurbineID: "WT-001"})
	if err != nil {
		t.Fatalf("QueryResults by turbine failed: %v", err)
	}
	if len(byTurbine) != 2 {
		t.Errorf("expected 2 results for WT-001, got %d", len(byTurbine))
	}

	byDate, err := store.QueryResults(ctx, ResultQuery{AssessedDate: "2024-07-02"})
	if err != nil {
		t.Fatalf("QueryResults by date failed: %v", err)
	}
	if len(byDate) != 2 || byDate[0].TurbineID != "WT-001" {
		t.Errorf("unexpected results for date: %+v", byDate)
	}

	limited, err := store.QueryResults(ctx, ResultQuery{Limit: 1})
	if err != nil {
		t.Fatalf("QueryResults with limit failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected 1 result, got %d", len(limited))
	}

	// Same key replaces the row.
	updated := sampleResults()[0]
	updated.OptimalRPM = 9
	if err := store.SaveResults(ctx, []model.OptimizationResult{updated}); err != nil {
		t.Fatalf("SaveResults (update) failed: %v", err)
	}
	got, err = store.GetResult(ctx, "WT-002", "2024-07-02")
	if err != nil {
		t.Fatalf("GetResult after update failed: %v", err)
	}
	if got.OptimalRPM != 9 {
		t.Errorf("expected updated rpm 9, got %v", got.OptimalRPM)
	}
	all, _ = store.QueryResults(ctx, ResultQuery{})
	if len(all) != 3 {
		t.Errorf("expected upsert to keep 3 rows, got %d", len(all))
	}

	if err := store.SaveTurbines(ctx, sampleTurbines()); err != nil {
		t.Fatalf("SaveTurbines failed: %v", err)
	}
	turbine, err := store.GetTurbine(ctx, "WT-001")
	if err != nil {
		t.Fatalf("GetTurbine failed: %v", err)
	}
	if turbine.State != "IA" || turbine.Lat != 41.5 || turbine.Attribute("last_maintenance") != "2024-06-01" {
		t.Errorf("unexpected turbine: %+v", turbine)
	}
	if _, err := store.GetTurbine(ctx, "WT-404"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	texas, err := store.FindTurbines(ctx, catalog.Filter{State: "TX"})
	if err != nil {
		t.Fatalf("FindTurbines failed: %v", err)
	}
	if len(texas) != 2 || texas[0].ID != "WT-002" || texas[1].ID != "WT-003" {
		t.Errorf("unexpected TX turbines: %+v", texas)
	}
	if !texas[0].LastMaintenance.IsZero() {
		t.Errorf("expected missing last_maintenance to stay zero, got %v", texas[0].LastMaintenance)
	}

	installed, err := store.FindTurbines(ctx, catalog.Filter{InstallDate: "2015-03-01", Model: "V90"})
	if err != nil {
		t.Fatalf("FindTurbines failed: %v", err)
	}
	if len(installed) != 1 || installed[0].ID != "WT-001" {
		t.Errorf("unexpected turbines: %+v", installed)
	}

	everything, err := store.FindTurbines(ctx, catalog.Filter{})
	if err != nil {
		t.Fatalf("FindTurbines failed: %v", err)
	}
	if len(everything) != 3 {
		t.Errorf("expected 3 turbines, got %d", len(everything))
	}
}

func TestInMemoryStore(t *testing.T) {
	exerciseStore(t, NewInMemoryStore())
}

func TestSqliteStorage(t *testing.T) {
	storage, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer storage.Close()

	exerciseStore(t, storage)
}

func TestSqliteStoragePersistsAcrossReopen(t *testing.T) {
	path := t.TempDir() + "/nested/results.db"
	ctx := context.Background()

	storage, err := OpenSqlite(path)
	if err != nil {
		t.Fatalf("OpenSqlite failed: %v", err)
	}
	if err := storage.SaveResults(ctx, sampleResults()); err != nil {
		t.Fatalf("SaveResults failed: %v", err)
	}
	storage.Close()

	reopened, err := OpenSqlite(path)
	if err != nil {
		t.Fatalf("OpenSqlite (reopen) failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetResult(ctx, "WT-001", "2024-07-02")
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if got.Profit != 27739999.999999996 {
		t.Errorf("expected exact profit, got %v", got.Profit)
	}
}

func TestSqliteRunHistory(t *testing.T) {
	storage, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer storage.Close()
	ctx := context.Background()

	base := time.Date(2024, 7, 2, 6, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		run := RunRecord{
			RunID:        id,
			AssessedDate: "2024-07-02",
			StartedAt:    base.Add(time.Duration(i) * time.Hour),
			Duration:     1500 * time.Millisecond,
			Turbines:     10,
			Computed:     8,
			NoSnapshot:   1,
			PowerModel:   "abc123",
		}
		if err := storage.RecordRun(ctx, run); err != nil {
			t.Fatalf("RecordRun failed: %v", err)
		}
	}

	runs, err := storage.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunID != "run-c" || runs[1].RunID != "run-b" {
		t.Errorf("expected newest first, got %s, %s", runs[0].RunID, runs[1].RunID)
	}
	if !runs[0].StartedAt.Equal(base.Add(2*time.Hour)) || runs[0].Duration != 1500*time.Millisecond {
		t.Errorf("unexpected run: %+v", runs[0])
	}
	if runs[0].PowerModel != "abc123" || runs[0].Computed != 8 {
		t.Errorf("unexpected run counts: %+v", runs[0])
	}
}

type failingSink struct{ err error }

func (f failingSink) SaveResults(context.Context, []model.OptimizationResult) error { return f.err }

func TestMultiSinkStopsAtFirstFailure(t *testing.T) {
	first := NewInMemoryStore()
	last := NewInMemoryStore()
	boom := errors.New("boom")

	err := MultiSink{first, failingSink{boom}, last}.SaveResults(context.Background(), sampleResults())
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got, _ := first.QueryResults(context.Background(), ResultQuery{}); len(got) != 3 {
		t.Errorf("expected first sink to have 3 results, got %d", len(got))
	}
	if got, _ := last.QueryResults(context.Background(), ResultQuery{}); len(got) != 0 {
		t.Errorf("expected last sink to be skipped, got %d", len(got))
	}
}
