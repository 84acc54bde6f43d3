// Package generator produces synthetic turbine catalogs and sensor readings
// for demos and tests. Output is fully determined by the seed of the
// supplied random source.
package generator

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/richinex/turbineopt/model"
)

var (
	Models     = []string{"GE-2.8", "Vestas-V120", "Siemens-SWT3.2", "Goldwind-GW140"}
	States     = []string{"TX", "IA", "CA", "OK", "KS", "IL"}
	Capacities = []float64{2.8, 3.0, 3.2, 4.0}

	farmNames = []string{"Amarillo", "Sweetwater", "Des Moines", "Ames", "Tehachapi", "Palm Springs",
		"Woodward", "Weatherford", "Dodge City", "Salina", "Bloomington", "Peoria"}
)

const day = 24 * time.Hour

// Catalog returns n turbines with ids WT-001 onward. Install dates fall
// between ten and two years before now; last maintenance falls between
// install and now.
func Catalog(n int, rng *rand.Rand, now time.Time) []model.Turbine {
	today := now.UTC().Truncate(day)
	earliest := today.AddDate(-10, 0, 0)
	latest := today.AddDate(-2, 0, 0)

	out := make([]model.Turbine, n)
	for i := range out {
		state := States[rng.Intn(len(States))]
		install := dateBetween(rng, earliest, latest)
		lat, lon := 34.0+rng.Float64()*11.0, -118.0+rng.Float64()*31.0
		if state == "TX" {
			lat, lon = 32.5+rng.Float64()*10.0, -102.0+rng.Float64()*8.0
		}
		out[i] = model.Turbine{
			ID:              fmt.Sprintf("WT-%03d", i+1),
			Name:            farmNames[rng.Intn(len(farmNames))] + " Wind Farm",
			Model:           Models[rng.Intn(len(Models))],
			InstallDate:     install,
			LastMaintenance: dateBetween(rng, install, today),
			State:           state,
			Lat:             lat,
			Lon:             lon,
			CapacityMW:      Capacities[rng.Intn(len(Capacities))],
		}
	}
	return out
}

func dateBetween(rng *rand.Rand, from, to time.Time) time.Time {
	days := int(to.Sub(from) / day)
	if days <= 0 {
		return from
	}
	return from.AddDate(0, 0, rng.Intn(days+1))
}

// Readings returns readings for every turbine at each interval from start to
// end inclusive, ordered by turbine then time.
//
// Power follows the cube of wind speed through a 50 m rotor at 40%
// efficiency, derated by distance from 15 °C and clipped at rated capacity.
// Vibration grows with the square root of age. In the 30 days before last
// maintenance and after it, some readings run hotter and produce less.
func Readings(turbines []model.Turbine, start, end time.Time, interval time.Duration, rng *rand.Rand) []model.Reading {
	if interval <= 0 || end.Before(start) {
		return nil
	}
	steps := int(end.Sub(start)/interval) + 1

	out := make([]model.Reading, 0, steps*len(turbines))
	for _, t := range turbines {
		flagFrom := t.LastMaintenance.AddDate(0, 0, -30)
		for i := 0; i < steps; i++ {
			ts := start.Add(time.Duration(i) * interval).UTC()
			out = append(out, reading(t, ts, i, flagFrom, rng))
		}
	}
	return out
}

func reading(t model.Turbine, ts time.Time, i int, flagFrom time.Time, rng *rand.Rand) model.Reading {
	rpm := clip(8+rng.NormFloat64()*0.5, 6, 10)
	angle := 5 + rng.Float64()*5
	humidity := clip(70+rng.NormFloat64()*5, 50, 90)

	daily := -math.Cos(float64(ts.Hour())*2*math.Pi/24) * 8
	seasonal := -math.Cos(float64(ts.YearDay())*2*math.Pi/365) * 15
	temperature := 25 + daily + seasonal + rng.NormFloat64()*3

	wind := rpm/1.5 + rng.NormFloat64()*0.5
	theoretical := 0.5 * 1.225 * (math.Pi * 50 * 50) * math.Pow(wind, 3) * 0.4 / 1000
	efficiency := 1.0 - 0.005*math.Abs(temperature-15)
	power := clip(theoretical*efficiency, 0, t.CapacityMW*1000)
	power += rng.NormFloat64() * power * 0.05

	age := math.Floor(ts.Sub(t.InstallDate).Hours() / 24)
	variance := 0.05 * math.Sqrt(math.Max(age, 0)/365) * (1 + rng.NormFloat64()*0.2)
	rpm += rpm * variance * math.Sin(float64(i)*0.5)

	flag := 0.0
	if ts.After(flagFrom) {
		flag = 1
		if rng.Float64() < 0.3 {
			temperature += gamma5(rng) * 4
			power *= 0.7 + 0.3*rng.Float64()
		}
	}

	return model.Reading{
		Timestamp:        ts,
		DeviceID:         t.ID,
		RPM:              rpm,
		Angle:            angle,
		Temperature:      temperature,
		Humidity:         humidity,
		WindSpeed:        wind,
		Power:            power,
		DaysSinceInstall: age,
		RPMVariance:      variance,
		MaintenanceFlag:  flag,
	}
}

// gamma5 draws from Gamma(shape 5, scale 1) as a sum of five exponentials.
func gamma5(rng *rand.Rand) float64 {
	var sum float64
	for i := 0; i < 5; i++ {
		sum += rng.ExpFloat64()
	}
	return sum
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
