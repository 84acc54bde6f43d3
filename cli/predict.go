package cli

import (
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/richinex/turbineopt/catalog"
	"github.com/richinex/turbineopt/features"
	"github.com/richinex/turbineopt/model"
	"github.com/richinex/turbineopt/predict"
)

// Feature families. Predict accepts power and life; Features also accepts
// power-training, the power family labelled with a future target.
const (
	FamilyPower         = "power"
	FamilyLife          = "life"
	FamilyPowerTraining = "power-training"
)

// DefaultTargetHorizon is how many readings ahead power-training rows take
// their target_power label from.
const DefaultTargetHorizon = 6

// buildOutcomes computes one feature outcome per reading for the family,
// grouped by turbine and ordered by device then timestamp. horizon only
// applies to power-training.
func (e *Env) buildOutcomes(family string, horizon int) ([]features.Outcome, error) {
	readings, err := e.loadReadings()
	if err != nil {
		return nil, err
	}
	builder := features.NewBuilder()
	builder.MinHistory = e.Settings.Pipeline.MinHistory

	groups := catalog.GroupReadings(readings)
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []features.Outcome
	switch family {
	case FamilyPower:
		for _, id := range ids {
			out = append(out, builder.PowerSeries(groups[id])...)
		}
	case FamilyPowerTraining:
		if horizon < 1 {
			return nil, fmt.Errorf("target horizon must be at least 1, got %d", horizon)
		}
		for _, id := range ids {
			out = append(out, builder.PowerTraining(groups[id], horizon)...)
		}
	case FamilyLife:
		cat, err := e.loadCatalog()
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			var turbine *model.Turbine
			if t, ok := cat.Get(id); ok {
				turbine = &t
			}
			for _, r := range groups[id] {
				out = append(out, builder.Life(r, turbine))
			}
		}
	default:
		return nil, fmt.Errorf("unknown feature family %q (want %s, %s or %s)",
			family, FamilyPower, FamilyLife, FamilyPowerTraining)
	}
	return out, nil
}

func (e *Env) modelPath(family string) string {
	if family == FamilyLife {
		return e.Settings.Paths.LifeModel
	}
	return e.Settings.Paths.PowerModel
}

// Predict runs the power or life model over every reading and writes
// timestamp,device_id,prediction rows as CSV. Readings that produce no
// prediction are counted and logged at debug level.
func Predict(env *Env, family string) error {
	if family != FamilyPower && family != FamilyLife {
		return fmt.Errorf("no model for family %q (want %s or %s)", family, FamilyPower, FamilyLife)
	}
	outcomes, err := env.buildOutcomes(family, 0)
	if err != nil {
		return err
	}
	p, err := predict.Load(family, env.modelPath(family))
	if err != nil {
		return err
	}
	preds, skipped := predict.BatchPredict(p, outcomes)
	for _, s := range skipped {
		env.Logger.Debug("no prediction", "device_id", s.Reading.DeviceID,
			"timestamp", s.Reading.Timestamp.Format(time.RFC3339), "reason", s.Reason)
	}
	env.Logger.Info("prediction finished", "model", family,
		"fingerprint", p.Fingerprint(), "predicted", len(preds), "skipped", len(skipped))

	w := csv.NewWriter(env.Out)
	if err := w.Write([]string{"timestamp", "device_id", "prediction"}); err != nil {
		return err
	}
	for _, pr := range preds {
		row := []string{
			pr.Reading.Timestamp.Format(time.RFC3339),
			pr.Reading.DeviceID,
			strconv.FormatFloat(pr.Value, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// Features writes the computed feature vectors of a family as CSV. Columns
// are timestamp, device_id, then the sorted union of feature names; a
// feature undefined for a row is left empty. horizon is the target offset
// for power-training and is ignored by the other families.
func Features(env *Env, family string, horizon int) error {
	outcomes, err := env.buildOutcomes(family, horizon)
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	var names []string
	excluded := 0
	for _, o := range outcomes {
		if !o.OK() {
			excluded++
			continue
		}
		for _, n := range o.Vector.Names() {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	sort.Strings(names)
	env.Logger.Info("features built", "family", family,
		"rows", len(outcomes)-excluded, "excluded", excluded)

	w := csv.NewWriter(env.Out)
	if err := w.Write(append([]string{"timestamp", "device_id"}, names...)); err != nil {
		return err
	}
	for _, o := range outcomes {
		if !o.OK() {
			continue
		}
		row := make([]string, 0, len(names)+2)
		row = append(row, o.Reading.Timestamp.Format(time.RFC3339), o.Reading.DeviceID)
		for _, n := range names {
			if v, ok := o.Vector.Get(n); ok {
				row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
			} else {
				row = append(row, "")
			}
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
