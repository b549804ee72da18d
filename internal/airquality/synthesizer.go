package airquality

import (
	"math"
	"math/rand/v2"
	"time"
)

// Noise levels (standard deviation of the multiplicative Gaussian noise).
const (
	realisticNoise = 0.12
	basicNoise     = 0.10
	productNoise   = 0.15
)

// Background column densities (mol/m²) used by the location-based estimate.
var realisticBase = map[Pollutant]float64{
	PollutantNO2:  1.8e-5,
	PollutantCO:   4.2e-5,
	PollutantO3:   1.35e-4,
	PollutantSO2:  7.5e-6,
	PollutantCH4:  2.2e-5,
	PollutantHCHO: 4.5e-6,
}

// NO2 ratios used to derive the other pollutants from a measured NO2 column.
var no2Ratios = map[Pollutant]float64{
	PollutantCO:   2.5,
	PollutantO3:   8.0,
	PollutantSO2:  0.4,
	PollutantCH4:  1.3,
	PollutantHCHO: 0.27,
}

// SeedFor derives the noise seed of a location: floor(|lat*lon*1000|) mod 2^32.
// Every point on the equator or the prime meridian shares seed 0.
func SeedFor(lat, lon float64) uint64 {
	return uint64(math.Floor(math.Abs(lat*lon*1000))) % (1 << 32)
}

// noise is a Gaussian source private to one synthesis call.
type noise struct {
	rng    *rand.Rand
	stddev float64
}

func newNoise(c Coordinates, stddev float64) *noise {
	return &noise{
		rng:    rand.New(rand.NewPCG(SeedFor(c.Latitude, c.Longitude), 0)), //nolint:gosec // reproducible, not secret
		stddev: stddev,
	}
}

// factor draws the next sample n and returns 1+n.
func (n *noise) factor() float64 {
	return 1 + n.rng.NormFloat64()*n.stddev
}

// apply draws the next sample and returns max(0, v*(1+n)).
func (n *noise) apply(v float64) float64 {
	return math.Max(0, v*n.factor())
}

// LatitudeFactor scales the background by climate band.
func LatitudeFactor(lat float64) float64 {
	switch abs := math.Abs(lat); {
	case abs < 30:
		return 1.2
	case abs < 60:
		return 1.0
	default:
		return 0.7
	}
}

// TrafficFactor scales NO2 and CO by hour of day: rush hours raise them,
// nights lower them.
func TrafficFactor(hour int) float64 {
	switch {
	case (hour >= 6 && hour <= 9) || (hour >= 17 && hour <= 20):
		return 1.4
	case hour >= 22 || hour <= 5:
		return 0.6
	default:
		return 1.0
	}
}

// SeasonalFactor peaks in June and bottoms out in December.
func SeasonalFactor(month time.Month) float64 {
	return 1 + 0.3*math.Sin(float64(month-3)*math.Pi/6)
}

// SynthesizeRealistic estimates densities from location and time of day. It is
// the last tier of the pipeline and cannot fail. The hour is read in now's
// location. All pollutants share a single noise multiplier.
func SynthesizeRealistic(c Coordinates, now time.Time) Reading {
	shared := newNoise(c, realisticNoise).factor()
	band := LatitudeFactor(c.Latitude)
	traffic := TrafficFactor(now.Hour())

	values := make(map[Pollutant]float64, len(Pollutants))
	for _, p := range Pollutants {
		v := realisticBase[p] * band
		if p == PollutantNO2 || p == PollutantCO {
			v *= traffic
		}
		values[p] = math.Max(0, v*shared)
	}
	return NewReading(values)
}

// SynthesizeBasic produces the fixed mock reading used when live providers
// are switched off.
func SynthesizeBasic(c Coordinates) Reading {
	n := newNoise(c, basicNoise)
	latf := math.Abs(c.Latitude) / 90
	lonf := math.Abs(c.Longitude) / 180

	base := map[Pollutant]float64{
		PollutantNO2:  1.5e-5 + latf*1e-5,
		PollutantCO:   3e-5 + lonf*2e-5,
		PollutantO3:   1.2e-4 + latf*5e-5,
		PollutantSO2:  8e-6,
		PollutantCH4:  2.5e-5,
		PollutantHCHO: 5e-6,
	}
	return applyNoise(n, base)
}

// EstimateFromProduct estimates densities for a location covered by a
// Sentinel-5P product, using the month for the seasonal cycle.
func EstimateFromProduct(c Coordinates, now time.Time) Reading {
	n := newNoise(c, productNoise)
	s := SeasonalFactor(now.Month())
	latf := math.Abs(c.Latitude) / 90
	lonf := math.Abs(c.Longitude) / 180

	base := map[Pollutant]float64{
		PollutantNO2:  1.5e-5*s + latf*1e-5,
		PollutantCO:   3.8e-5*s + lonf*1.2e-5,
		PollutantO3:   1.2e-4*s + latf*4e-5,
		PollutantSO2:  6e-6*s + latf*2e-6,
		PollutantCH4:  1.9e-5*s + lonf*8e-6,
		PollutantHCHO: 4e-6*s + latf*1.5e-6,
	}
	return applyNoise(n, base)
}

// DeriveFromNO2 builds a reading from a measured NO2 column using fixed
// ratios for the other pollutants.
func DeriveFromNO2(no2 float64) Reading {
	values := map[Pollutant]float64{PollutantNO2: no2}
	for p, ratio := range no2Ratios {
		values[p] = no2 * ratio
	}
	return NewReading(values)
}

func applyNoise(n *noise, base map[Pollutant]float64) Reading {
	values := make(map[Pollutant]float64, len(Pollutants))
	for _, p := range Pollutants {
		values[p] = n.apply(base[p])
	}
	return NewReading(values)
}
