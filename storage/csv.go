package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/richinex/turbineopt/model"
)

// WriteResultsCSV writes a header row and one row per result, in the column
// order of model.ResultColumns. Floats are written in plain decimal with the
// fewest digits that parse back to the same value.
func WriteResultsCSV(w io.Writer, results []model.OptimizationResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(model.ResultColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range results {
		row := []string{
			r.TurbineID,
			r.AssessedDate,
			formatFloat(r.OptimalRPM),
			formatFloat(r.Cost),
			formatFloat(r.Revenue),
			formatFloat(r.Profit),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row for %s: %w", r.TurbineID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadResultsCSV parses a file produced by WriteResultsCSV. Columns are
// located by header name, so extra columns are ignored.
func ReadResultsCSV(r io.Reader) ([]model.OptimizationResult, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	for _, col := range model.ResultColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	results := []model.OptimizationResult{}
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		res := model.OptimizationResult{
			TurbineID:    row[idx["turbine_id"]],
			AssessedDate: row[idx["assessed_date"]],
		}
		for _, f := range []struct {
			col string
			dst *float64
		}{
			{"optimal_rpm", &res.OptimalRPM},
			{"cost", &res.Cost},
			{"revenue", &res.Revenue},
			{"profit", &res.Profit},
		} {
			if *f.dst, err = strconv.ParseFloat(row[idx[f.col]], 64); err != nil {
				return nil, fmt.Errorf("line %d: column %s: %w", line, f.col, err)
			}
		}
		results = append(results, res)
	}
	return results, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// CSVSink keeps the results it receives and rewrites the file on every save,
// so the file always holds one row per key.
type CSVSink struct {
	path string

	mu   sync.Mutex
	rows map[resultKey]model.OptimizationResult
}

// NewCSVSink creates a sink writing to path. Existing file content is
// replaced on the first save.
func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path, rows: make(map[resultKey]model.OptimizationResult)}
}

// Path returns the output file path.
func (s *CSVSink) Path() string { return s.path }

// SaveResults implements ResultSink.
func (s *CSVSink) SaveResults(ctx context.Context, results []model.OptimizationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range results {
		s.rows[resultKey{r.TurbineID, r.AssessedDate}] = r
	}
	all := make([]model.OptimizationResult, 0, len(s.rows))
	for _, r := range s.rows {
		all = append(all, r)
	}
	SortResults(all)

	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if err := WriteResultsCSV(f, all); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}

var _ ResultSink = (*CSVSink)(nil)
