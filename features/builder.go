// Package features turns raw sensor readings into model feature vectors.
//
// Every build returns an Outcome: either a computed vector or an explicit
// exclusion with a reason. Exclusions are data conditions, not errors; the
// caller decides whether to log, count or ignore them.
package features

import (
	"fmt"
	"sort"
	"time"

	"github.com/richinex/turbineopt/model"
)

// Feature column names shared with the trained model artifacts.
const (
	ColRPM                      = "rpm"
	ColAngle                    = "angle"
	ColTemperature              = "temperature"
	ColHumidity                 = "humidity"
	ColWindSpeed                = "windspeed"
	ColPower                    = "power"
	ColDaysSinceInstall         = "days_since_install"
	ColRPMVariance              = "rpm_variance"
	ColMaintenanceFlag          = "maintenance_flag"
	ColPowerRollingAvg          = "power_rolling_avg_6h"
	ColHour                     = "hour"
	ColDayOfWeek                = "day_of_week"
	ColAgeDays                  = "age_days"
	ColDaysSinceLastMaintenance = "days_since_last_maintenance"
	ColDaysUntilMaintenance     = "days_until_maintenance"
	ColTargetPower              = "target_power"
)

// PowerLagCol returns the column name of the power lag at offset.
func PowerLagCol(lag int) string { return fmt.Sprintf("power_lag_%d", lag) }

// RPMLagCol returns the column name of the rpm lag at offset.
func RPMLagCol(lag int) string { return fmt.Sprintf("rpm_lag_%d", lag) }

// Reason classifies why a record produced no feature vector.
type Reason string

const (
	// ReasonMissingHistory: fewer preceding readings than the builder requires.
	ReasonMissingHistory Reason = "missing_history"
	// ReasonMissingReference: the turbine lacks install or maintenance dates.
	ReasonMissingReference Reason = "missing_reference"
	// ReasonUnknownTurbine: no catalog entry for the reading's device.
	ReasonUnknownTurbine Reason = "unknown_turbine"
	// ReasonMissingTarget: no reading far enough ahead to label a training row.
	ReasonMissingTarget Reason = "missing_target"
)

// Exclusion explains a dropped record.
type Exclusion struct {
	Reason Reason
	Detail string
}

func (e Exclusion) String() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return string(e.Reason) + ": " + e.Detail
}

// Outcome is the result of building features for one reading.
// Exactly one of Vector and Excluded is set.
type Outcome struct {
	Reading  model.Reading
	Vector   model.FeatureVector
	Excluded *Exclusion
}

// OK reports whether a vector was computed.
func (o Outcome) OK() bool {
	return o.Excluded == nil
}

func excluded(r model.Reading, reason Reason, format string, args ...any) Outcome {
	return Outcome{Reading: r, Excluded: &Exclusion{Reason: reason, Detail: fmt.Sprintf(format, args...)}}
}

// DefaultLags are the lag offsets, in readings, used for power and rpm.
var DefaultLags = []int{1, 2, 3, 6, 12}

// Builder computes feature vectors. The zero value is not usable; use NewBuilder.
type Builder struct {
	Lags          []int
	RollingWindow int
	// MinHistory is the number of preceding readings a record needs before
	// it is handed to a model.
	MinHistory int
}

// NewBuilder returns a builder with lags {1,2,3,6,12}, a 6-reading rolling
// mean, and MinHistory equal to the largest lag.
func NewBuilder() *Builder {
	lags := append([]int(nil), DefaultLags...)
	return &Builder{
		Lags:          lags,
		RollingWindow: 6,
		MinHistory:    maxLag(lags),
	}
}

func maxLag(lags []int) int {
	m := 0
	for _, l := range lags {
		if l > m {
			m = l
		}
	}
	return m
}

// PowerSeries builds power features for every reading of one turbine.
// Readings are ordered by timestamp first; the input slice is not modified.
func (b *Builder) PowerSeries(readings []model.Reading) []Outcome {
	ordered := make([]model.Reading, len(readings))
	copy(ordered, readings)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	out := make([]Outcome, len(ordered))
	for i := range ordered {
		out[i] = b.powerAt(ordered, i)
	}
	return out
}

// Power builds power features for the last reading of an ordered history.
// An empty history is excluded.
func (b *Builder) Power(history []model.Reading) Outcome {
	if len(history) == 0 {
		return Outcome{Excluded: &Exclusion{Reason: ReasonMissingHistory, Detail: "no readings"}}
	}
	return b.powerAt(history, len(history)-1)
}

func (b *Builder) powerAt(ordered []model.Reading, i int) Outcome {
	r := ordered[i]
	if i < b.MinHistory {
		return excluded(r, ReasonMissingHistory, "%d preceding readings, need %d", i, b.MinHistory)
	}

	v := baseVector(r)
	for _, lag := range b.Lags {
		if j := i - lag; j >= 0 {
			v.Set(PowerLagCol(lag), ordered[j].Power)
			v.Set(RPMLagCol(lag), ordered[j].RPM)
		}
	}

	window := b.RollingWindow
	if window < 1 {
		window = 1
	}
	start := i - window + 1
	if start < 0 {
		start = 0
	}
	var sum float64
	for j := start; j <= i; j++ {
		sum += ordered[j].Power
	}
	v.Set(ColPowerRollingAvg, sum/float64(i-start+1))

	v.Set(ColHour, float64(r.Timestamp.Hour()))
	v.Set(ColDayOfWeek, float64(DayOfWeek(r.Timestamp)))
	return Outcome{Reading: r, Vector: v}
}

// Life builds remaining-life features for one reading joined with its
// turbine's reference dates. A nil turbine means the catalog has no entry.
func (b *Builder) Life(r model.Reading, turbine *model.Turbine) Outcome {
	if turbine == nil {
		return excluded(r, ReasonUnknownTurbine, "no catalog entry for %s", r.DeviceID)
	}
	if turbine.InstallDate.IsZero() {
		return excluded(r, ReasonMissingReference, "install_date missing for %s", turbine.ID)
	}
	if turbine.LastMaintenance.IsZero() {
		return excluded(r, ReasonMissingReference, "last_maintenance missing for %s", turbine.ID)
	}

	v := baseVector(r)
	v.Set(ColAgeDays, float64(FloorDays(r.Timestamp.Sub(turbine.InstallDate))))
	v.Set(ColDaysSinceLastMaintenance, float64(FloorDays(r.Timestamp.Sub(turbine.LastMaintenance))))
	v.Set(ColDaysUntilMaintenance, float64(FloorDays(turbine.LastMaintenance.Sub(r.Timestamp))))
	return Outcome{Reading: r, Vector: v}
}

// PowerTraining builds labelled power rows: each vector gains target_power,
// the power observed horizon readings later. Rows without a label are
// excluded with ReasonMissingTarget.
func (b *Builder) PowerTraining(readings []model.Reading, horizon int) []Outcome {
	series := b.PowerSeries(readings)
	for i := range series {
		if !series[i].OK() {
			continue
		}
		j := i + horizon
		if j >= len(series) {
			series[i] = excluded(series[i].Reading, ReasonMissingTarget, "no reading %d steps ahead", horizon)
			continue
		}
		series[i].Vector.Set(ColTargetPower, series[j].Reading.Power)
	}
	return series
}

func baseVector(r model.Reading) model.FeatureVector {
	return model.FeatureVector{
		ColRPM:              r.RPM,
		ColAngle:            r.Angle,
		ColTemperature:      r.Temperature,
		ColHumidity:         r.Humidity,
		ColWindSpeed:        r.WindSpeed,
		ColPower:            r.Power,
		ColDaysSinceInstall: r.DaysSinceInstall,
		ColRPMVariance:      r.RPMVariance,
		ColMaintenanceFlag:  r.MaintenanceFlag,
	}
}

// DayOfWeek returns 0 for Monday through 6 for Sunday.
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// FloorDays returns the number of whole days in d, rounding toward negative
// infinity, so -1h counts as -1 day.
func FloorDays(d time.Duration) int {
	const day = 24 * time.Hour
	days := d / day
	if d%day < 0 {
		days--
	}
	return int(days)
}
