// Package model provides domain types shared across packages.
package model

import (
	"sort"
	"time"
)

// DateLayout is the ISO 8601 calendar date format used for assessed dates and
// catalog reference dates.
const DateLayout = "2006-01-02"

// Turbine is immutable reference data for one installed turbine.
type Turbine struct {
	ID              string    `json:"turbine_id"`
	Name            string    `json:"name,omitempty"`
	Model           string    `json:"model"`
	InstallDate     time.Time `json:"install_date"`
	LastMaintenance time.Time `json:"last_maintenance"`
	State           string    `json:"state"`
	Lat             float64   `json:"lat,omitempty"`
	Lon             float64   `json:"lon,omitempty"`
	CapacityMW      float64   `json:"capacity_mw"`
}

// Attribute returns the string value of a catalog attribute by column name.
// Unknown attributes return "".
func (t Turbine) Attribute(name string) string {
	switch name {
	case "turbine_id":
		return t.ID
	case "name":
		return t.Name
	case "model":
		return t.Model
	case "state":
		return t.State
	case "install_date":
		return formatDate(t.InstallDate)
	case "last_maintenance":
		return formatDate(t.LastMaintenance)
	}
	return ""
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// Reading is one sensor sample for a turbine.
type Reading struct {
	Timestamp        time.Time `json:"timestamp"`
	DeviceID         string    `json:"device_id"`
	RPM              float64   `json:"rpm"`
	Angle            float64   `json:"angle"`
	Temperature      float64   `json:"temperature"`
	Humidity         float64   `json:"humidity"`
	WindSpeed        float64   `json:"windspeed"`
	Power            float64   `json:"power"`
	DaysSinceInstall float64   `json:"days_since_install"`
	RPMVariance      float64   `json:"rpm_variance"`
	MaintenanceFlag  float64   `json:"maintenance_flag"`
}

// WithRPM returns a copy of the reading with its rotational speed replaced.
func (r Reading) WithRPM(rpm float64) Reading {
	r.RPM = rpm
	return r
}

// FeatureVector maps feature column names to values.
// A missing key means the feature is undefined for this record.
type FeatureVector map[string]float64

// Get returns the value of a feature and whether it is defined.
func (v FeatureVector) Get(name string) (float64, bool) {
	val, ok := v[name]
	return val, ok
}

// Has reports whether every named feature is defined.
func (v FeatureVector) Has(names ...string) bool {
	for _, n := range names {
		if _, ok := v[n]; !ok {
			return false
		}
	}
	return true
}

// Set defines a feature value.
func (v FeatureVector) Set(name string, val float64) {
	v[name] = val
}

// Names returns the defined feature names in sorted order.
func (v FeatureVector) Names() []string {
	names := make([]string, 0, len(v))
	for n := range v {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy.
func (v FeatureVector) Clone() FeatureVector {
	out := make(FeatureVector, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// OptimizationResult is the persisted output of one optimizer run for one
// turbine on one assessment date. Keyed by (TurbineID, AssessedDate).
type OptimizationResult struct {
	TurbineID    string  `json:"turbine_id"`
	AssessedDate string  `json:"assessed_date"`
	OptimalRPM   float64 `json:"optimal_rpm"`
	Cost         float64 `json:"cost"`
	Revenue      float64 `json:"revenue"`
	Profit       float64 `json:"profit"`
}

// Metric returns a numeric or string column of the result by name.
func (r OptimizationResult) Metric(name string) (any, bool) {
	switch name {
	case "turbine_id":
		return r.TurbineID, true
	case "assessed_date":
		return r.AssessedDate, true
	case "optimal_rpm":
		return r.OptimalRPM, true
	case "cost":
		return r.Cost, true
	case "revenue":
		return r.Revenue, true
	case "profit":
		return r.Profit, true
	}
	return nil, false
}

// ResultColumns lists the persisted result columns in output order.
var ResultColumns = []string{"turbine_id", "assessed_date", "optimal_rpm", "cost", "revenue", "profit"}
