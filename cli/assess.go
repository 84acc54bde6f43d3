package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/richinex/turbineopt/catalog"
	"github.com/richinex/turbineopt/features"
	"github.com/richinex/turbineopt/metrics"
	"github.com/richinex/turbineopt/model"
	"github.com/richinex/turbineopt/optimize"
	"github.com/richinex/turbineopt/predict"
	"github.com/richinex/turbineopt/storage"
)

// AssessOptions configures one batch assessment.
type AssessOptions struct {
	// Date is the assessment date (YYYY-MM-DD). Empty means today in UTC.
	Date string
	// Sinks names the result destinations: sqlite, csv, kafka, dynamo.
	Sinks []string
	// MetricsFile, when set, receives a Prometheus textfile after the run.
	MetricsFile string
	// Prefix restricts the run to turbine ids starting with it.
	Prefix string
	Filter catalog.Filter
}

// DefaultSinks are used when AssessOptions.Sinks is empty.
var DefaultSinks = []string{BackendSqlite, BackendCSV}

// Assess runs the optimizer over the selected turbines, persists the
// computed results, and prints a summary.
func Assess(ctx context.Context, env *Env, opts AssessOptions) (optimize.Report, error) {
	date := opts.Date
	if date == "" {
		date = env.Today()
	}

	cat, err := env.loadCatalog()
	if err != nil {
		return optimize.Report{}, err
	}
	readings, err := env.loadReadings()
	if err != nil {
		return optimize.Report{}, err
	}
	turbines := selectTurbines(cat, opts.Prefix, opts.Filter)

	power, err := predict.Load("power", env.Settings.Paths.PowerModel)
	if err != nil {
		return optimize.Report{}, err
	}
	life, err := predict.Load("life", env.Settings.Paths.LifeModel)
	if err != nil {
		return optimize.Report{}, err
	}
	env.Logger.Debug("models loaded",
		"power_fingerprint", power.Fingerprint(),
		"life_fingerprint", life.Fingerprint())

	p := env.Settings.Pipeline
	builder := features.NewBuilder()
	builder.MinHistory = p.MinHistory
	opt, err := optimize.NewOptimizer(builder, power, life, p.ElectricityPrice,
		optimize.Sweep{Min: p.RPMMin, Max: p.RPMMax, Step: p.RPMStep})
	if err != nil {
		return optimize.Report{}, err
	}

	batch := metrics.NewBatch()
	runner := &optimize.Runner{
		Optimizer: opt,
		Workers:   p.Workers,
		Logger:    env.Logger,
		Metrics:   batch,
		Clock:     env.Now,
	}
	report, err := runner.Run(ctx, turbines, readings, date)
	if err != nil {
		return optimize.Report{}, err
	}
	for _, id := range staleSnapshots(turbines, readings, date, staleAfter) {
		env.Logger.Warn("snapshot older than assessed date", "turbine_id", id,
			"assessed_date", date, "max_age", staleAfter)
	}

	sinkNames := opts.Sinks
	if len(sinkNames) == 0 {
		sinkNames = DefaultSinks
	}
	sinks, closeSinks, history, err := env.openSinks(ctx, sinkNames, report.RunID)
	if err != nil {
		return report, err
	}
	defer closeSinks()

	if err := sinks.SaveResults(ctx, report.Results); err != nil {
		return report, fmt.Errorf("failed to persist results: %w", err)
	}
	if history != nil {
		counts := report.Counts()
		run := storage.RunRecord{
			RunID:             report.RunID,
			AssessedDate:      report.AssessedDate,
			StartedAt:         report.StartedAt,
			Duration:          report.Duration,
			Turbines:          len(report.Assessments),
			Computed:          counts[optimize.StatusComputed],
			NoSnapshot:        counts[optimize.StatusNoSnapshot],
			NoValidCandidates: counts[optimize.StatusNoValidCandidates],
			PowerModel:        power.Fingerprint(),
			LifeModel:         life.Fingerprint(),
		}
		if err := history.RecordRun(ctx, run); err != nil {
			return report, err
		}
	}

	batch.RunFinished(env.Now(), len(report.Results))
	if opts.MetricsFile != "" {
		if err := ensureDir(filepath.Dir(opts.MetricsFile)); err != nil {
			return report, err
		}
		if err := batch.WriteTextfile(opts.MetricsFile); err != nil {
			return report, err
		}
	}

	printReport(env, report)
	return report, nil
}

// staleAfter is how far a turbine's newest reading may trail the start of
// the assessed date before the assessment is flagged.
const staleAfter = 24 * time.Hour

// staleSnapshots returns the ids of turbines whose newest reading is older
// than maxAge at midnight UTC of the assessed date. Turbines with no
// readings are left out; the runner already reports them.
func staleSnapshots(turbines []model.Turbine, readings []model.Reading, date string, maxAge time.Duration) []string {
	day, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return nil
	}
	latest := catalog.Latest(readings)
	var stale []string
	for _, t := range turbines {
		r, ok := latest[t.ID]
		if ok && day.Sub(r.Timestamp) > maxAge {
			stale = append(stale, t.ID)
		}
	}
	return stale
}

func selectTurbines(cat *catalog.Catalog, prefix string, f catalog.Filter) []model.Turbine {
	var out []model.Turbine
	for _, t := range cat.WithPrefix(prefix) {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

type runHistory interface {
	RecordRun(ctx context.Context, run storage.RunRecord) error
}

// openSinks resolves sink names. history is non-nil when a sink keeps run
// records.
func (e *Env) openSinks(ctx context.Context, names []string, runID string) (storage.MultiSink, func(), runHistory, error) {
	var sinks storage.MultiSink
	var closers []func() error
	var history runHistory
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				e.Logger.Warn("failed to close sink", "error", err)
			}
		}
	}

	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case BackendSqlite:
			s, err := storage.OpenSqlite(e.Settings.Store.DBPath)
			if err != nil {
				closeAll()
				return nil, nil, nil, err
			}
			closers = append(closers, s.Close)
			sinks = append(sinks, s)
			history = s
		case BackendCSV:
			sinks = append(sinks, storage.NewCSVSink(e.Settings.Paths.OutputCSV))
		case BackendKafka:
			if len(e.Settings.Kafka.Brokers) == 0 {
				closeAll()
				return nil, nil, nil, fmt.Errorf("kafka sink requires at least one broker")
			}
			w := storage.NewKafkaWriter(e.Settings.Kafka.Brokers, e.Settings.Kafka.Topic)
			closers = append(closers, w.Close)
			sinks = append(sinks, storage.NewKafkaSink(w, runID))
		case BackendDynamo:
			s, err := e.openDynamo(ctx)
			if err != nil {
				closeAll()
				return nil, nil, nil, err
			}
			sinks = append(sinks, s)
		default:
			closeAll()
			return nil, nil, nil, fmt.Errorf("unknown sink %q", name)
		}
	}
	return sinks, closeAll, history, nil
}

func money(f float64) string {
	return decimal.NewFromFloat(f).StringFixed(2)
}

func printReport(env *Env, report optimize.Report) {
	counts := report.Counts()
	fmt.Fprintf(env.Out, "Run %s (%s): %d turbines, %d computed, %d without snapshot, %d without valid candidates in %s\n",
		report.RunID, report.AssessedDate, len(report.Assessments),
		counts[optimize.StatusComputed], counts[optimize.StatusNoSnapshot], counts[optimize.StatusNoValidCandidates],
		report.Duration.Round(time.Millisecond))
	if len(report.Results) == 0 {
		return
	}

	tw := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "TURBINE\tRPM\tREVENUE\tCOST\tPROFIT\t")
	for _, r := range report.Results {
		fmt.Fprintf(tw, "%s\t%g\t%s\t%s\t%s\t\n", r.TurbineID, r.OptimalRPM, money(r.Revenue), money(r.Cost), money(r.Profit))
	}
	total := decimal.Zero
	for _, r := range report.Results {
		total = total.Add(decimal.NewFromFloat(r.Profit))
	}
	fmt.Fprintf(tw, "TOTAL\t\t\t\t%s\t\n", total.StringFixed(2))
	tw.Flush()
}
