package cli

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/richinex/turbineopt/catalog"
	"github.com/richinex/turbineopt/generator"
	"github.com/richinex/turbineopt/model"
	"github.com/richinex/turbineopt/storage"
)

// GenerateOptions configures synthetic data generation.
type GenerateOptions struct {
	Turbines int
	Days     int
	Interval time.Duration
	Seed     int64
}

// Generate writes a synthetic catalog and reading history ending now to the
// configured catalog and readings paths.
func Generate(env *Env, opts GenerateOptions) error {
	if opts.Turbines < 1 {
		return fmt.Errorf("turbine count must be at least 1, got %d", opts.Turbines)
	}
	if opts.Days < 1 {
		return fmt.Errorf("days must be at least 1, got %d", opts.Days)
	}
	if opts.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", opts.Interval)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	end := env.Now().UTC().Truncate(time.Hour)
	start := end.AddDate(0, 0, -opts.Days)
	turbines := generator.Catalog(opts.Turbines, rng, end)
	readings := generator.Readings(turbines, start, end, opts.Interval, rng)

	if err := writeFile(env.Settings.Paths.Catalog, func(f *os.File) error {
		return catalog.WriteTurbines(f, turbines)
	}); err != nil {
		return err
	}
	if err := writeFile(env.Settings.Paths.Readings, func(f *os.File) error {
		return catalog.WriteReadings(f, readings)
	}); err != nil {
		return err
	}

	fmt.Fprintf(env.Out, "Wrote %d turbines to %s\n", len(turbines), env.Settings.Paths.Catalog)
	fmt.Fprintf(env.Out, "Wrote %d readings to %s\n", len(readings), env.Settings.Paths.Readings)
	return nil
}

func writeFile(path string, write func(f *os.File) error) error {
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// Hydrate loads the catalog CSV, and the results CSV when it exists, into
// the given backend. DynamoDB tables are created first if missing.
func Hydrate(ctx context.Context, env *Env, backend string) error {
	turbines, err := catalog.LoadTurbinesFile(env.Settings.Paths.Catalog)
	if err != nil {
		return err
	}
	if _, err := catalog.New(turbines); err != nil {
		return err
	}

	var results []model.OptimizationResult
	if f, err := os.Open(env.Settings.Paths.OutputCSV); err == nil {
		results, err = storage.ReadResultsCSV(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", env.Settings.Paths.OutputCSV, err)
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	var s store
	closeStore := func() error { return nil }
	if backend == BackendDynamo {
		d, err := env.openDynamo(ctx)
		if err != nil {
			return err
		}
		if err := d.CreateTables(ctx); err != nil {
			return err
		}
		s = d
	} else {
		if s, closeStore, err = env.openStore(ctx, backend); err != nil {
			return err
		}
	}
	defer closeStore()

	if err := s.SaveTurbines(ctx, turbines); err != nil {
		return err
	}
	if err := s.SaveResults(ctx, results); err != nil {
		return err
	}
	env.Logger.Info("store hydrated", "backend", backend,
		"turbines", len(turbines), "results", len(results))
	fmt.Fprintf(env.Out, "Loaded %d turbines and %d results into %s\n", len(turbines), len(results), backend)
	return nil
}
