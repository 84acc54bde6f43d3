// Package main provides the turbineopt CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/richinex/turbineopt/catalog"
	"github.com/richinex/turbineopt/cli"
)

var (
	// Global flags
	configPath string
	verbose    bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "turbineopt",
		Short: "Wind turbine RPM optimization",
		Long: `Find the most profitable rotor speed for each turbine in a fleet.

For every turbine the latest reading is replayed at each candidate RPM,
power output and remaining life are predicted, and the setpoint with the
highest yearly revenue minus amortized cost is kept.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML settings file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logs")

	rootCmd.AddCommand(assessCmd())
	rootCmd.AddCommand(predictCmd())
	rootCmd.AddCommand(featuresCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(hydrateCmd())
	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(toolsCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newEnv() (*cli.Env, error) {
	return cli.NewEnv(cli.Options{ConfigPath: configPath, Verbose: verbose}, os.Stdout, os.Stderr)
}

func assessCmd() *cobra.Command {
	var opts cli.AssessOptions
	var state, model string

	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Compute and persist the optimal RPM for every turbine",
		Long: `Run the RPM sweep over the catalog and persist one result per turbine.

Sinks:
- sqlite: results and run history in the local database
- csv: the asset performance file
- kafka: one JSON message per result
- dynamo: the optimization table`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnv()
			if err != nil {
				return err
			}
			opts.Filter = catalog.Filter{State: state, Model: model}
			_, err = cli.Assess(cmd.Context(), env, opts)
			return err
		},
	}

	cmd.Flags().StringVarP(&opts.Date, "date", "d", "", "Assessment date YYYY-MM-DD (default today, UTC)")
	cmd.Flags().StringSliceVarP(&opts.Sinks, "sinks", "s", nil, "Result sinks: sqlite, csv, kafka, dynamo (default sqlite,csv)")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "Only turbines whose id starts with this prefix")
	cmd.Flags().StringVar(&state, "state", "", "Only turbines in this state")
	cmd.Flags().StringVar(&model, "model", "", "Only turbines of this model")

	return cmd
}

func predictCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "predict [power|life]",
		Short:     "Run a model over every reading and print predictions as CSV",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{cli.FamilyPower, cli.FamilyLife},
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnv()
			if err != nil {
				return err
			}
			return cli.Predict(env, args[0])
		},
	}
}

func featuresCmd() *cobra.Command {
	var horizon int

	cmd := &cobra.Command{
		Use:       "features [power|life|power-training]",
		Short:     "Print computed feature vectors as CSV",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{cli.FamilyPower, cli.FamilyLife, cli.FamilyPowerTraining},
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnv()
			if err != nil {
				return err
			}
			return cli.Features(env, args[0], horizon)
		},
	}
	cmd.Flags().IntVar(&horizon, "target-horizon", cli.DefaultTargetHorizon,
		"readings ahead that power-training rows take target_power from")
	return cmd
}

func generateCmd() *cobra.Command {
	var opts cli.GenerateOptions

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic catalog and reading history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnv()
			if err != nil {
				return err
			}
			return cli.Generate(env, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Turbines, "turbines", "n", 20, "Number of turbines")
	cmd.Flags().IntVar(&opts.Days, "days", 30, "Days of history ending now")
	cmd.Flags().DurationVar(&opts.Interval, "interval", time.Hour, "Reading interval")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 42, "Random seed")

	return cmd
}

func hydrateCmd() *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "hydrate",
		Short: "Load the catalog and results CSVs into a store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnv()
			if err != nil {
				return err
			}
			return cli.Hydrate(cmd.Context(), env, backend)
		},
	}

	cmd.Flags().StringVar(&backend, "store", cli.BackendSqlite, "Store: sqlite or dynamo")

	return cmd
}

func queryCmd() *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "query [function] [name=value...]",
		Short: "Answer a turbine information function",
		Long: `Invoke one turbine information function and print the response envelope.

Example:
  turbineopt query get_turbine_performance turbine_id=WT-001 assessed_date=2024-07-01`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnv()
			if err != nil {
				return err
			}
			_, err = cli.Query(cmd.Context(), env, backend, args[0], args[1:])
			return err
		},
	}

	cmd.Flags().StringVar(&backend, "store", cli.BackendSqlite, "Store: sqlite or dynamo")

	return cmd
}

func runsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent assessment runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnv()
			if err != nil {
				return err
			}
			return cli.Runs(cmd.Context(), env, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "Maximum runs to show")

	return cmd
}

func toolsCmd() *cobra.Command {
	var verboseTools bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List available query functions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListTools(os.Stdout, verboseTools)
		},
	}

	cmd.Flags().BoolVarP(&verboseTools, "verbose", "V", false, "Show function parameters")

	return cmd
}
