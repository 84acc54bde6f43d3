package optimize

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/richinex/turbineopt/catalog"
	"github.com/richinex/turbineopt/model"
)

// Recorder observes finished assessments. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveAssessment(a Assessment, elapsed time.Duration)
}

// Report is the outcome of one batch run.
type Report struct {
	RunID        string
	AssessedDate string
	StartedAt    time.Time
	Duration     time.Duration
	// Assessments are in the order of the input turbines.
	Assessments []Assessment
	// Results holds the computed rows only, in the same order.
	Results []model.OptimizationResult
}

// Counts returns the number of assessments per status.
func (r Report) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, a := range r.Assessments {
		counts[a.Status]++
	}
	return counts
}

// Runner assesses a fleet concurrently.
type Runner struct {
	Optimizer *Optimizer
	Workers   int
	Logger    *slog.Logger
	Metrics   Recorder
	Clock     func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}

// Run assesses every turbine against its readings. Turbines are independent
// and are evaluated by at most Workers goroutines. Cancelling ctx stops
// scheduling and returns the context error; no partial report is returned.
func (r *Runner) Run(ctx context.Context, turbines []model.Turbine, readings []model.Reading, assessedDate string) (Report, error) {
	if r.Optimizer == nil {
		return Report{}, fmt.Errorf("runner has no optimizer")
	}
	if _, err := time.Parse(model.DateLayout, assessedDate); err != nil {
		return Report{}, fmt.Errorf("invalid assessed date %q: %w", assessedDate, err)
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	report := Report{
		RunID:        uuid.NewString(),
		AssessedDate: assessedDate,
		StartedAt:    r.now(),
		Assessments:  make([]Assessment, len(turbines)),
	}
	byTurbine := catalog.GroupReadings(readings)

	workers := r.Workers
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, t := range turbines {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := r.now()
			a := r.Optimizer.Assess(t, byTurbine[t.ID], assessedDate)
			elapsed := r.now().Sub(start)

			if r.Metrics != nil {
				r.Metrics.ObserveAssessment(a, elapsed)
			}
			if a.Status != StatusComputed {
				logger.Debug("no result for turbine",
					"turbine_id", t.ID,
					"status", a.Status,
					"skipped", len(a.Evaluation.Skipped))
			}
			report.Assessments[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	for _, a := range report.Assessments {
		if a.Result != nil {
			report.Results = append(report.Results, *a.Result)
		}
	}
	report.Duration = r.now().Sub(report.StartedAt)

	counts := report.Counts()
	logger.Info("assessment run finished",
		"run_id", report.RunID,
		"assessed_date", assessedDate,
		"turbines", len(turbines),
		"computed", counts[StatusComputed],
		"no_snapshot", counts[StatusNoSnapshot],
		"no_valid_candidates", counts[StatusNoValidCandidates],
		"duration", report.Duration)
	return report, nil
}
