// Package config provides application settings loaded from defaults, an
// optional YAML file, and environment variables.
//
// Settings are created via Load() which handles:
// - Default value application
// - YAML file overlay (when a path is given)
// - Environment variable parsing with validation

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings holds all application configuration.
type Settings struct {
	Pipeline PipelineConfig `yaml:"pipeline"`
	Paths    PathConfig     `yaml:"paths"`
	Store    StoreConfig    `yaml:"store"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Dynamo   DynamoConfig   `yaml:"dynamo"`
	Query    QueryConfig    `yaml:"query"`
	Log      LogConfig      `yaml:"log"`
}

// PipelineConfig holds optimizer and batch execution configuration.
type PipelineConfig struct {
	ElectricityPrice float64 `yaml:"electricity_price"`
	RPMMin           int     `yaml:"rpm_min"`
	RPMMax           int     `yaml:"rpm_max"`
	RPMStep          int     `yaml:"rpm_step"`
	Workers          int     `yaml:"workers"`
	MinHistory       int     `yaml:"min_history"`
}

// PathConfig holds input and output file locations.
type PathConfig struct {
	Catalog    string `yaml:"catalog"`
	Readings   string `yaml:"readings"`
	PowerModel string `yaml:"power_model"`
	LifeModel  string `yaml:"life_model"`
	OutputCSV  string `yaml:"output_csv"`
}

// StoreConfig holds SQLite configuration.
type StoreConfig struct {
	DBPath string `yaml:"db_path"`
}

// KafkaConfig holds result stream configuration. Empty Brokers disables the sink.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// DynamoConfig holds DynamoDB table configuration.
type DynamoConfig struct {
	Region            string `yaml:"region"`
	CatalogTable      string `yaml:"catalog_table"`
	OptimizationTable string `yaml:"optimization_table"`
}

// QueryConfig bounds turbine information function calls.
type QueryConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		Pipeline: PipelineConfig{
			ElectricityPrice: 100,
			RPMMin:           5,
			RPMMax:           14,
			RPMStep:          1,
			Workers:          4,
			MinHistory:       12,
		},
		Paths: PathConfig{
			Catalog:    "data/turbine_catalog.csv",
			Readings:   "data/new_turbine_data.csv",
			PowerModel: "data/output/power/power_model.json",
			LifeModel:  "data/output/remaining_life/remaining_life_model.json",
			OutputCSV:  "data/output/asset_performance.csv",
		},
		Store: StoreConfig{
			DBPath: ".turbineopt/turbineopt.db",
		},
		Kafka: KafkaConfig{
			Topic: "turbine.asset-performance",
		},
		Dynamo: DynamoConfig{
			CatalogTable:      "WT_Catalog",
			OptimizationTable: "WT_Asset_Optimization",
		},
		Query: QueryConfig{
			Timeout:     30 * time.Second,
			MaxAttempts: 3,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// New creates settings from defaults and environment variables.
func New() (Settings, error) {
	return Load("")
}

// Load creates settings from defaults, the YAML file at path (skipped when
// path is empty), and environment variables, in that order of precedence.
func Load(path string) (Settings, error) {
	s := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Settings{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&s); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// MustLoad creates settings like Load.
// Panics if the file or environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustLoad(path string) Settings {
	settings, err := Load(path)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// Validate checks cross-field constraints.
func (s Settings) Validate() error {
	var errs []error
	p := s.Pipeline
	if p.ElectricityPrice <= 0 {
		errs = append(errs, fmt.Errorf("electricity price must be positive, got %v", p.ElectricityPrice))
	}
	if p.RPMStep <= 0 {
		errs = append(errs, fmt.Errorf("rpm step must be positive, got %d", p.RPMStep))
	}
	if p.RPMMin > p.RPMMax {
		errs = append(errs, fmt.Errorf("rpm range is empty: min %d > max %d", p.RPMMin, p.RPMMax))
	}
	if p.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", p.Workers))
	}
	if s.Query.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("query timeout must be positive, got %s", s.Query.Timeout))
	}
	if s.Query.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("query max attempts must be at least 1, got %d", s.Query.MaxAttempts))
	}
	if p.MinHistory < 0 {
		errs = append(errs, fmt.Errorf("min history must not be negative, got %d", p.MinHistory))
	}
	return errors.Join(errs...)
}

func applyEnv(s *Settings) error {
	var err error
	if s.Pipeline.ElectricityPrice, err = getEnvFloat64("TURBINE_ELECTRICITY_PRICE", s.Pipeline.ElectricityPrice); err != nil {
		return err
	}
	if s.Pipeline.RPMMin, err = getEnvInt("TURBINE_RPM_MIN", s.Pipeline.RPMMin); err != nil {
		return err
	}
	if s.Pipeline.RPMMax, err = getEnvInt("TURBINE_RPM_MAX", s.Pipeline.RPMMax); err != nil {
		return err
	}
	if s.Pipeline.RPMStep, err = getEnvInt("TURBINE_RPM_STEP", s.Pipeline.RPMStep); err != nil {
		return err
	}
	if s.Pipeline.Workers, err = getEnvInt("TURBINE_WORKERS", s.Pipeline.Workers); err != nil {
		return err
	}
	if s.Pipeline.MinHistory, err = getEnvInt("TURBINE_MIN_HISTORY", s.Pipeline.MinHistory); err != nil {
		return err
	}

	s.Paths.Catalog = getEnvString("TURBINE_CATALOG_PATH", s.Paths.Catalog)
	s.Paths.Readings = getEnvString("TURBINE_READINGS_PATH", s.Paths.Readings)
	s.Paths.PowerModel = getEnvString("TURBINE_POWER_MODEL", s.Paths.PowerModel)
	s.Paths.LifeModel = getEnvString("TURBINE_LIFE_MODEL", s.Paths.LifeModel)
	s.Paths.OutputCSV = getEnvString("TURBINE_OUTPUT_CSV", s.Paths.OutputCSV)
	s.Store.DBPath = getEnvString("TURBINE_DB_PATH", s.Store.DBPath)
	s.Log.Level = getEnvString("TURBINE_LOG_LEVEL", s.Log.Level)

	s.Kafka.Brokers = getEnvList("TURBINE_KAFKA_BROKERS", s.Kafka.Brokers)
	s.Kafka.Topic = getEnvString("TURBINE_KAFKA_TOPIC", s.Kafka.Topic)

	if s.Query.Timeout, err = getEnvDuration("TURBINE_QUERY_TIMEOUT", s.Query.Timeout); err != nil {
		return err
	}
	if s.Query.MaxAttempts, err = getEnvInt("TURBINE_QUERY_MAX_ATTEMPTS", s.Query.MaxAttempts); err != nil {
		return err
	}

	s.Dynamo.Region = getEnvString("TURBINE_DYNAMO_REGION", s.Dynamo.Region)
	s.Dynamo.CatalogTable = getEnvString("TURBINE_DYNAMO_CATALOG_TABLE", s.Dynamo.CatalogTable)
	s.Dynamo.OptimizationTable = getEnvString("TURBINE_DYNAMO_OPTIMIZATION_TABLE", s.Dynamo.OptimizationTable)
	return nil
}

// Environment variable helpers with proper error handling

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return d, nil
}
