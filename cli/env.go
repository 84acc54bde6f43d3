// Package cli implements the turbineopt commands on top of the library
// packages. Command functions write human-readable output to Env.Out and
// logs to Env.Logger.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/richinex/turbineopt/catalog"
	"github.com/richinex/turbineopt/config"
	"github.com/richinex/turbineopt/logging"
	"github.com/richinex/turbineopt/model"
	"github.com/richinex/turbineopt/storage"
)

// Options holds global CLI options.
type Options struct {
	ConfigPath string
	Verbose    bool
}

// Env is the resolved runtime environment shared by commands.
type Env struct {
	Settings config.Settings
	Logger   *slog.Logger
	Out      io.Writer
	Now      func() time.Time
}

// NewEnv loads settings and builds the logger. Verbose forces debug level.
func NewEnv(opts Options, out, errOut io.Writer) (*Env, error) {
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	level := settings.Log.Level
	if opts.Verbose {
		level = "debug"
	}
	logger, err := logging.New(errOut, level)
	if err != nil {
		return nil, err
	}
	return &Env{Settings: settings, Logger: logger, Out: out, Now: time.Now}, nil
}

// Today returns the current UTC calendar date.
func (e *Env) Today() string {
	return e.Now().UTC().Format(model.DateLayout)
}

func (e *Env) loadCatalog() (*catalog.Catalog, error) {
	turbines, err := catalog.LoadTurbinesFile(e.Settings.Paths.Catalog)
	if err != nil {
		return nil, err
	}
	return catalog.New(turbines)
}

func (e *Env) loadReadings() ([]model.Reading, error) {
	return catalog.LoadReadingsFile(e.Settings.Paths.Readings)
}

// Backend names accepted by --store and --sinks.
const (
	BackendSqlite = "sqlite"
	BackendDynamo = "dynamo"
	BackendCSV    = "csv"
	BackendKafka  = "kafka"
)

// store is a backend that can serve queries and catalog writes.
type store interface {
	storage.ResultSink
	storage.ResultReader
	storage.CatalogStore
}

// openStore opens a queryable backend. The returned close function is never nil.
func (e *Env) openStore(ctx context.Context, backend string) (store, func() error, error) {
	switch backend {
	case BackendSqlite, "":
		s, err := storage.OpenSqlite(e.Settings.Store.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case BackendDynamo:
		s, err := e.openDynamo(ctx)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown store %q (want %s or %s)", backend, BackendSqlite, BackendDynamo)
}

func (e *Env) openDynamo(ctx context.Context) (*storage.DynamoStore, error) {
	client, err := storage.NewDynamoClient(ctx, e.Settings.Dynamo.Region)
	if err != nil {
		return nil, err
	}
	return storage.NewDynamoStore(client, e.Settings.Dynamo.CatalogTable, e.Settings.Dynamo.OptimizationTable), nil
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
