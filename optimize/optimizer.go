// Package optimize sweeps candidate RPM setpoints for each turbine, scores
// the predicted power and remaining life in money terms, and selects the
// most profitable setpoint.
//
// The computation is stateless per turbine. Optimizer values are read-only
// after construction and may be shared across goroutines.
package optimize

import (
	"fmt"
	"sort"

	"github.com/richinex/turbineopt/features"
	"github.com/richinex/turbineopt/model"
)

// Estimator predicts a value from a feature vector, or reports absence when
// the vector does not fit the model. *predict.Predictor implements it.
type Estimator interface {
	Predict(v model.FeatureVector) (float64, bool)
}

// SkipReason explains why a candidate RPM was not scored.
type SkipReason string

const (
	SkipPowerExcluded   SkipReason = "power_excluded"
	SkipLifeExcluded    SkipReason = "life_excluded"
	SkipPowerAbsent     SkipReason = "power_absent"
	SkipLifeAbsent      SkipReason = "life_absent"
	SkipLifeNotPositive SkipReason = "life_not_positive"
	SkipNonFinite       SkipReason = "non_finite"
)

// Skip records an unscored candidate.
type Skip struct {
	RPM    float64
	Reason SkipReason
	Detail string
}

// Evaluation holds every candidate of one sweep, scored or skipped, in
// ascending RPM order.
type Evaluation struct {
	Candidates []Candidate
	Skipped    []Skip
}

// Status is the outcome of assessing one turbine.
type Status string

const (
	StatusComputed          Status = "computed"
	StatusNoSnapshot        Status = "no_snapshot"
	StatusNoValidCandidates Status = "no_valid_candidates"
)

// Assessment is the outcome for one turbine. Result is nil unless Status is
// StatusComputed.
type Assessment struct {
	TurbineID  string
	Status     Status
	Result     *model.OptimizationResult
	Evaluation Evaluation
}

// Optimizer runs the RPM sweep for one turbine at a time.
type Optimizer struct {
	Builder *features.Builder
	Power   Estimator
	Life    Estimator
	Price   float64
	Sweep   Sweep
}

// NewOptimizer validates its arguments and returns an optimizer.
func NewOptimizer(builder *features.Builder, power, life Estimator, price float64, sweep Sweep) (*Optimizer, error) {
	if builder == nil || power == nil || life == nil {
		return nil, fmt.Errorf("optimizer requires a feature builder and both predictors")
	}
	if !(price > 0) {
		return nil, fmt.Errorf("electricity price must be positive, got %v", price)
	}
	if err := sweep.Validate(); err != nil {
		return nil, err
	}
	return &Optimizer{Builder: builder, Power: power, Life: life, Price: price, Sweep: sweep}, nil
}

// Evaluate scores every sweep setpoint. history holds the turbine's
// readings; its latest reading is the snapshot whose rpm is overridden.
// Earlier readings feed the lag and rolling features unchanged.
func (o *Optimizer) Evaluate(turbine model.Turbine, history []model.Reading) Evaluation {
	var ev Evaluation
	if len(history) == 0 {
		return ev
	}

	work := make([]model.Reading, len(history))
	copy(work, history)
	sort.SliceStable(work, func(i, j int) bool {
		return work[i].Timestamp.Before(work[j].Timestamp)
	})
	last := len(work) - 1
	snapshot := work[last]

	for _, rpm := range o.Sweep.Values() {
		work[last] = snapshot.WithRPM(rpm)

		powerOut := o.Builder.Power(work)
		if !powerOut.OK() {
			ev.Skipped = append(ev.Skipped, Skip{RPM: rpm, Reason: SkipPowerExcluded, Detail: powerOut.Excluded.String()})
			continue
		}
		lifeOut := o.Builder.Life(work[last], &turbine)
		if !lifeOut.OK() {
			ev.Skipped = append(ev.Skipped, Skip{RPM: rpm, Reason: SkipLifeExcluded, Detail: lifeOut.Excluded.String()})
			continue
		}

		power, ok := o.Power.Predict(powerOut.Vector)
		if !ok {
			ev.Skipped = append(ev.Skipped, Skip{RPM: rpm, Reason: SkipPowerAbsent})
			continue
		}
		life, ok := o.Life.Predict(lifeOut.Vector)
		if !ok {
			ev.Skipped = append(ev.Skipped, Skip{RPM: rpm, Reason: SkipLifeAbsent})
			continue
		}

		c, reason, ok := Score(rpm, power, life, o.Price)
		if !ok {
			ev.Skipped = append(ev.Skipped, Skip{RPM: rpm, Reason: reason, Detail: fmt.Sprintf("power=%v life=%v", power, life)})
			continue
		}
		ev.Candidates = append(ev.Candidates, c)
	}
	return ev
}

// Assess evaluates a turbine and selects its most profitable setpoint.
// Absence of a result is reported through Status, never as a default row.
func (o *Optimizer) Assess(turbine model.Turbine, history []model.Reading, assessedDate string) Assessment {
	a := Assessment{TurbineID: turbine.ID}
	if len(history) == 0 {
		a.Status = StatusNoSnapshot
		return a
	}

	a.Evaluation = o.Evaluate(turbine, history)
	best, ok := Best(a.Evaluation.Candidates)
	if !ok {
		a.Status = StatusNoValidCandidates
		return a
	}

	a.Status = StatusComputed
	a.Result = &model.OptimizationResult{
		TurbineID:    turbine.ID,
		AssessedDate: assessedDate,
		OptimalRPM:   best.RPM,
		Cost:         best.Cost,
		Revenue:      best.Revenue,
		Profit:       best.Profit,
	}
	return a
}
