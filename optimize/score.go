package optimize

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidSweep is returned for an empty or non-advancing RPM range.
var ErrInvalidSweep = errors.New("invalid rpm sweep")

// Sweep is a discrete, inclusive range of candidate RPM setpoints.
type Sweep struct {
	Min  int
	Max  int
	Step int
}

// DefaultSweep returns 5..14 step 1.
func DefaultSweep() Sweep {
	return Sweep{Min: 5, Max: 14, Step: 1}
}

// MaxSweepPoints bounds the number of setpoints in one sweep.
const MaxSweepPoints = 10000

// Validate rejects non-positive steps, empty ranges and sweeps longer than
// MaxSweepPoints.
func (s Sweep) Validate() error {
	if s.Step <= 0 {
		return fmt.Errorf("%w: step %d", ErrInvalidSweep, s.Step)
	}
	if s.Min > s.Max {
		return fmt.Errorf("%w: min %d > max %d", ErrInvalidSweep, s.Min, s.Max)
	}
	if s.steps() >= MaxSweepPoints {
		return fmt.Errorf("%w: more than %d setpoints", ErrInvalidSweep, MaxSweepPoints)
	}
	return nil
}

// steps is the number of increments after Min, computed in unsigned
// arithmetic so extreme bounds cannot overflow. It assumes Min <= Max and
// Step > 0.
func (s Sweep) steps() uint64 {
	return (uint64(s.Max) - uint64(s.Min)) / uint64(s.Step)
}

// Values returns the candidate setpoints in ascending order.
func (s Sweep) Values() []float64 {
	if s.Validate() != nil {
		return nil
	}
	out := make([]float64, int(s.steps())+1)
	for i := range out {
		out[i] = float64(s.Min + i*s.Step)
	}
	return out
}

// Candidate is one scored RPM setpoint.
type Candidate struct {
	RPM     float64 `json:"rpm"`
	Power   float64 `json:"expected_power"`
	Life    float64 `json:"expected_life"`
	Revenue float64 `json:"revenue"`
	Cost    float64 `json:"cost"`
	Profit  float64 `json:"profit"`
}

// DaysPerYear and HoursPerDay are the constants of the profit formula.
const (
	DaysPerYear = 365
	HoursPerDay = 24
)

// Score converts predicted power and remaining life into yearly money terms:
//
//	revenue = price * power * 365
//	cost    = (365 / life) * price * power * 24
//	profit  = revenue - cost
//
// Life at or below zero, or any non-finite input, yields no candidate: the
// cost would be infinite or meaningless.
func Score(rpm, power, life, price float64) (Candidate, SkipReason, bool) {
	if !finite(power) || !finite(life) || !finite(price) {
		return Candidate{}, SkipNonFinite, false
	}
	if life <= 0 {
		return Candidate{}, SkipLifeNotPositive, false
	}

	revenue := price * power * DaysPerYear
	cost := (DaysPerYear / life) * price * power * HoursPerDay
	profit := revenue - cost
	if !finite(profit) {
		return Candidate{}, SkipNonFinite, false
	}
	return Candidate{
		RPM:     rpm,
		Power:   power,
		Life:    life,
		Revenue: revenue,
		Cost:    cost,
		Profit:  profit,
	}, "", true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Best returns the candidate with the highest profit. Equal profits resolve
// to the lowest RPM, so the choice is independent of input order.
func Best(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Profit > best.Profit || (c.Profit == best.Profit && c.RPM < best.RPM) {
			best = c
		}
	}
	return best, true
}
