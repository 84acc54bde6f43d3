// Package catalog holds turbine reference data and sensor readings loaded
// from tabular inputs.
//
// A Catalog is built once by the caller and passed to the optimizer; it is
// read-only after New and safe for concurrent readers.
package catalog

import (
	"fmt"
	"sort"

	"github.com/richinex/turbineopt/internal/dsa"
	"github.com/richinex/turbineopt/model"
)

// Filter selects turbines by exact attribute match. Empty fields are ignored;
// non-empty fields are combined with AND.
type Filter struct {
	State           string
	Model           string
	InstallDate     string // YYYY-MM-DD
	LastMaintenance string // YYYY-MM-DD
}

// IsEmpty reports whether the filter matches every turbine.
func (f Filter) IsEmpty() bool {
	return f == Filter{}
}

// Match reports whether a turbine satisfies every non-empty field.
func (f Filter) Match(t model.Turbine) bool {
	if f.State != "" && t.State != f.State {
		return false
	}
	if f.Model != "" && t.Model != f.Model {
		return false
	}
	if f.InstallDate != "" && t.Attribute("install_date") != f.InstallDate {
		return false
	}
	if f.LastMaintenance != "" && t.Attribute("last_maintenance") != f.LastMaintenance {
		return false
	}
	return true
}

// Catalog indexes turbines by id.
type Catalog struct {
	index *dsa.Trie[model.Turbine]
}

// New builds a catalog. Duplicate ids are rejected.
func New(turbines []model.Turbine) (*Catalog, error) {
	c := &Catalog{index: dsa.NewTrie[model.Turbine]()}
	for _, t := range turbines {
		if _, exists := c.index.Search(t.ID); exists {
			return nil, fmt.Errorf("duplicate turbine id %q", t.ID)
		}
		c.index.Insert(t.ID, t)
	}
	return c, nil
}

// Get returns the turbine with the given id.
func (c *Catalog) Get(id string) (model.Turbine, bool) {
	return c.index.Search(id)
}

// Len returns the number of turbines.
func (c *Catalog) Len() int {
	return c.index.Size()
}

// All returns every turbine ordered by id.
func (c *Catalog) All() []model.Turbine {
	return c.index.WithPrefix("")
}

// WithPrefix returns turbines whose id starts with prefix, ordered by id.
func (c *Catalog) WithPrefix(prefix string) []model.Turbine {
	return c.index.WithPrefix(prefix)
}

// Find returns turbines matching the filter, ordered by id.
func (c *Catalog) Find(f Filter) []model.Turbine {
	var out []model.Turbine
	for _, t := range c.All() {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

// CountBy groups turbines by a catalog attribute (state, model, ...) and
// counts each group. Turbines with an empty value are not counted.
func CountBy(turbines []model.Turbine, attribute string) map[string]int {
	counts := make(map[string]int)
	for _, t := range turbines {
		if v := t.Attribute(attribute); v != "" {
			counts[v]++
		}
	}
	return counts
}

// GroupReadings splits readings by device and orders each group by
// timestamp. Readings sharing a timestamp keep their input order.
func GroupReadings(readings []model.Reading) map[string][]model.Reading {
	groups := make(map[string][]model.Reading)
	for _, r := range readings {
		groups[r.DeviceID] = append(groups[r.DeviceID], r)
	}
	for _, g := range groups {
		sort.SliceStable(g, func(i, j int) bool {
			return g[i].Timestamp.Before(g[j].Timestamp)
		})
	}
	return groups
}

// Latest returns the most recent reading per device.
func Latest(readings []model.Reading) map[string]model.Reading {
	latest := make(map[string]model.Reading)
	for _, r := range readings {
		cur, ok := latest[r.DeviceID]
		if !ok || !r.Timestamp.Before(cur.Timestamp) {
			latest[r.DeviceID] = r
		}
	}
	return latest
}
