package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/turbineopt/model"
)

func TestResultsCSVRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResultsCSV(&buf, sampleResults()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "turbine_id,assessed_date,optimal_rpm,cost,revenue,profit", lines[0])
	assert.Equal(t, "WT-002,2024-07-02,7,2160000,32850000,30690000", lines[1])

	got, err := ReadResultsCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, sampleResults(), got)
}

func TestReadResultsCSVErrors(t *testing.T) {
	_, err := ReadResultsCSV(strings.NewReader("turbine_id,assessed_date,optimal_rpm\n"))
	assert.ErrorContains(t, err, `missing column "cost"`)

	_, err = ReadResultsCSV(strings.NewReader("turbine_id,assessed_date,optimal_rpm,cost,revenue,profit\nWT-1,2024-07-02,x,1,2,3\n"))
	assert.ErrorContains(t, err, "line 2: column optimal_rpm")

	got, err := ReadResultsCSV(strings.NewReader("profit,revenue,cost,optimal_rpm,assessed_date,turbine_id,extra\n1,2,3,4,2024-07-02,WT-9,x\n"))
	require.NoError(t, err)
	assert.Equal(t, []model.OptimizationResult{{TurbineID: "WT-9", AssessedDate: "2024-07-02", OptimalRPM: 4, Cost: 3, Revenue: 2, Profit: 1}}, got)
}

func TestCSVSinkKeepsOneRowPerKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "asset_performance.csv")
	sink := NewCSVSink(path)
	ctx := context.Background()

	require.NoError(t, sink.SaveResults(ctx, sampleResults()))
	updated := sampleResults()[0]
	updated.OptimalRPM = 12
	require.NoError(t, sink.SaveResults(ctx, []model.OptimizationResult{updated}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	got, err := ReadResultsCSV(f)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "WT-001", got[0].TurbineID)
	assert.Equal(t, "2024-07-01", got[0].AssessedDate)
	assert.Equal(t, 12.0, got[2].OptimalRPM)
	assert.NoFileExists(t, path+".tmp")
}
