package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/turbineopt/model"
)

// series returns n readings five minutes apart with power = 100+i and rpm = i.
func series(n int) []model.Reading {
	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC) // a Monday
	out := make([]model.Reading, n)
	for i := range out {
		out[i] = model.Reading{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			DeviceID:  "WT-001",
			RPM:       float64(i),
			Power:     100 + float64(i),
		}
	}
	return out
}

func TestPowerSeriesNoNullLagsWithFullHistory(t *testing.T) {
	b := NewBuilder()
	outcomes := b.PowerSeries(series(13))
	require.Len(t, outcomes, 13)

	last := outcomes[12]
	require.True(t, last.OK(), "13th reading has 12 predecessors")
	for _, lag := range DefaultLags {
		v, ok := last.Vector.Get(PowerLagCol(lag))
		require.True(t, ok, "power lag %d", lag)
		assert.Equal(t, 100+float64(12-lag), v)
		r, ok := last.Vector.Get(RPMLagCol(lag))
		require.True(t, ok, "rpm lag %d", lag)
		assert.Equal(t, float64(12-lag), r)
	}

	for i := 0; i < 12; i++ {
		require.False(t, outcomes[i].OK())
		assert.Equal(t, ReasonMissingHistory, outcomes[i].Excluded.Reason)
	}
}

func TestPowerSeriesSortsByTimestamp(t *testing.T) {
	in := series(14)
	in[0], in[13] = in[13], in[0]

	outcomes := NewBuilder().PowerSeries(in)
	last := outcomes[13]
	require.True(t, last.OK())
	assert.Equal(t, 113.0, last.Reading.Power)
	v, _ := last.Vector.Get(PowerLagCol(1))
	assert.Equal(t, 112.0, v)
	assert.Equal(t, 13.0, in[0].RPM, "input slice must not be reordered")
}

func TestRollingMeanUsesAvailableReadings(t *testing.T) {
	b := &Builder{Lags: []int{1}, RollingWindow: 6, MinHistory: 0}
	outcomes := b.PowerSeries(series(8))

	first, ok := outcomes[0].Vector.Get(ColPowerRollingAvg)
	require.True(t, ok)
	assert.Equal(t, 100.0, first, "min 1 observation")

	_, ok = outcomes[0].Vector.Get(PowerLagCol(1))
	assert.False(t, ok, "lag undefined at sequence start")

	third, _ := outcomes[2].Vector.Get(ColPowerRollingAvg)
	assert.InDelta(t, 101.0, third, 1e-12)

	eighth, _ := outcomes[7].Vector.Get(ColPowerRollingAvg)
	assert.InDelta(t, (102.0+103+104+105+106+107)/6, eighth, 1e-12)
}

func TestCalendarFeatures(t *testing.T) {
	b := &Builder{MinHistory: 0, RollingWindow: 6}
	r := model.Reading{Timestamp: time.Date(2025, 1, 12, 17, 45, 0, 0, time.UTC), Power: 1} // Sunday
	out := b.Power([]model.Reading{r})
	require.True(t, out.OK())

	hour, _ := out.Vector.Get(ColHour)
	dow, _ := out.Vector.Get(ColDayOfWeek)
	assert.Equal(t, 17.0, hour)
	assert.Equal(t, 6.0, dow)
}

func TestPowerEmptyHistory(t *testing.T) {
	out := NewBuilder().Power(nil)
	require.False(t, out.OK())
	assert.Equal(t, ReasonMissingHistory, out.Excluded.Reason)
}

func TestLifeFeatures(t *testing.T) {
	turbine := model.Turbine{
		ID:              "WT-001",
		InstallDate:     time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		LastMaintenance: time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
	}
	r := model.Reading{
		Timestamp:   time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC),
		DeviceID:    "WT-001",
		RPM:         9,
		RPMVariance: 0.1,
	}

	out := NewBuilder().Life(r, &turbine)
	require.True(t, out.OK())

	age, _ := out.Vector.Get(ColAgeDays)
	since, _ := out.Vector.Get(ColDaysSinceLastMaintenance)
	until, _ := out.Vector.Get(ColDaysUntilMaintenance)
	assert.Equal(t, 1827.0, age)
	assert.Equal(t, 31.0, since)
	assert.Equal(t, -32.0, until, "floors toward negative infinity")
	assert.True(t, out.Vector.Has(ColRPM, ColTemperature, ColHumidity, ColRPMVariance))
}

func TestLifeExclusions(t *testing.T) {
	b := NewBuilder()
	r := model.Reading{DeviceID: "WT-404", Timestamp: time.Now()}

	out := b.Life(r, nil)
	require.False(t, out.OK())
	assert.Equal(t, ReasonUnknownTurbine, out.Excluded.Reason)

	out = b.Life(r, &model.Turbine{ID: "WT-404", InstallDate: time.Now()})
	require.False(t, out.OK())
	assert.Equal(t, ReasonMissingReference, out.Excluded.Reason)
	assert.Contains(t, out.Excluded.String(), "last_maintenance")
}

func TestPowerTrainingLabelsAhead(t *testing.T) {
	b := &Builder{Lags: []int{1}, RollingWindow: 6, MinHistory: 1}
	rows := b.PowerTraining(series(10), 6)

	assert.Equal(t, ReasonMissingHistory, rows[0].Excluded.Reason)
	target, ok := rows[1].Vector.Get(ColTargetPower)
	require.True(t, ok)
	assert.Equal(t, 107.0, target)
	assert.True(t, rows[3].OK())
	assert.Equal(t, ReasonMissingTarget, rows[4].Excluded.Reason)
}

func TestFloorDays(t *testing.T) {
	assert.Equal(t, 0, FloorDays(23*time.Hour))
	assert.Equal(t, -1, FloorDays(-time.Hour))
	assert.Equal(t, -1, FloorDays(-24*time.Hour))
	assert.Equal(t, 2, FloorDays(49*time.Hour))
}
