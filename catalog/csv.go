package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/richinex/turbineopt/model"
)

// timestampLayouts are tried in order when parsing reading timestamps and
// reference dates.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	model.DateLayout,
}

// ParseTime parses a timestamp or date in any supported layout as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// table is a header-indexed view over CSV records.
type table struct {
	index map[string]int
	rows  [][]string
}

func readTable(r io.Reader, required ...string) (*table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty CSV input")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	t := &table{index: make(map[string]int, len(header))}
	for i, name := range header {
		t.index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, col := range required {
		if _, ok := t.index[col]; !ok {
			return nil, fmt.Errorf("missing required column %q", col)
		}
	}

	t.rows, err = reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV rows: %w", err)
	}
	return t, nil
}

func (t *table) value(row []string, col string) string {
	i, ok := t.index[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (t *table) float(row []string, col string) (float64, error) {
	v := t.value(row, col)
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", col, v, err)
	}
	return f, nil
}

func (t *table) date(row []string, col string) (time.Time, error) {
	v := t.value(row, col)
	if v == "" {
		return time.Time{}, nil
	}
	d, err := ParseTime(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", col, err)
	}
	return d, nil
}

// LoadTurbines parses a turbine catalog CSV.
// Blank reference dates are kept as zero times; the life feature builder
// excludes those turbines later.
func LoadTurbines(r io.Reader) ([]model.Turbine, error) {
	t, err := readTable(r, "turbine_id")
	if err != nil {
		return nil, err
	}

	turbines := make([]model.Turbine, 0, len(t.rows))
	for i, row := range t.rows {
		line := i + 2
		tb := model.Turbine{
			ID:    t.value(row, "turbine_id"),
			Name:  t.value(row, "name"),
			Model: t.value(row, "model"),
			State: t.value(row, "state"),
		}
		if tb.ID == "" {
			return nil, fmt.Errorf("line %d: empty turbine_id", line)
		}
		if tb.InstallDate, err = t.date(row, "install_date"); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if tb.LastMaintenance, err = t.date(row, "last_maintenance"); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if tb.Lat, err = t.float(row, "lat"); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if tb.Lon, err = t.float(row, "lon"); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if tb.CapacityMW, err = t.float(row, "capacity_mw"); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		turbines = append(turbines, tb)
	}
	return turbines, nil
}

// LoadTurbinesFile parses the turbine catalog CSV at path.
func LoadTurbinesFile(path string) ([]model.Turbine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	turbines, err := LoadTurbines(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return turbines, nil
}

// LoadReadings parses a sensor reading CSV. The derived columns
// days_since_install, rpm_variance and maintenance_flag are optional.
func LoadReadings(r io.Reader) ([]model.Reading, error) {
	t, err := readTable(r, "timestamp", "device_id", "rpm", "power")
	if err != nil {
		return nil, err
	}

	readings := make([]model.Reading, 0, len(t.rows))
	for i, row := range t.rows {
		line := i + 2
		rd := model.Reading{DeviceID: t.value(row, "device_id")}
		if rd.DeviceID == "" {
			return nil, fmt.Errorf("line %d: empty device_id", line)
		}
		if rd.Timestamp, err = ParseTime(t.value(row, "timestamp")); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		fields := []struct {
			col string
			dst *float64
		}{
			{"rpm", &rd.RPM},
			{"angle", &rd.Angle},
			{"temperature", &rd.Temperature},
			{"humidity", &rd.Humidity},
			{"windspeed", &rd.WindSpeed},
			{"power", &rd.Power},
			{"days_since_install", &rd.DaysSinceInstall},
			{"rpm_variance", &rd.RPMVariance},
			{"maintenance_flag", &rd.MaintenanceFlag},
		}
		for _, f := range fields {
			if *f.dst, err = t.float(row, f.col); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		readings = append(readings, rd)
	}
	return readings, nil
}

// LoadReadingsFile parses the sensor reading CSV at path.
func LoadReadingsFile(path string) ([]model.Reading, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open readings: %w", err)
	}
	defer f.Close()

	readings, err := LoadReadings(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return readings, nil
}

// TurbineHeader is the catalog CSV column order written by WriteTurbines.
var TurbineHeader = []string{"turbine_id", "name", "model", "install_date", "last_maintenance", "state", "lat", "lon", "capacity_mw"}

// ReadingHeader is the reading CSV column order written by WriteReadings.
var ReadingHeader = []string{"timestamp", "device_id", "rpm", "angle", "temperature", "humidity", "windspeed", "power", "days_since_install", "rpm_variance", "maintenance_flag"}

// WriteTurbines writes turbines as catalog CSV.
func WriteTurbines(w io.Writer, turbines []model.Turbine) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TurbineHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, tb := range turbines {
		rec := []string{
			tb.ID, tb.Name, tb.Model,
			tb.Attribute("install_date"), tb.Attribute("last_maintenance"),
			tb.State, formatFloat(tb.Lat), formatFloat(tb.Lon), formatFloat(tb.CapacityMW),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("failed to write turbine %s: %w", tb.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteReadings writes readings as sensor CSV.
func WriteReadings(w io.Writer, readings []model.Reading) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ReadingHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, rd := range readings {
		rec := []string{
			rd.Timestamp.Format("2006-01-02 15:04:05"), rd.DeviceID,
			formatFloat(rd.RPM), formatFloat(rd.Angle), formatFloat(rd.Temperature),
			formatFloat(rd.Humidity), formatFloat(rd.WindSpeed), formatFloat(rd.Power),
			formatFloat(rd.DaysSinceInstall), formatFloat(rd.RPMVariance), formatFloat(rd.MaintenanceFlag),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("failed to write reading for %s: %w", rd.DeviceID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
