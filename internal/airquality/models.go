// Package airquality acquires pollutant column densities for a location from
// satellite data providers, falls back to a deterministic synthesizer when no
// provider has data, and derives an air quality index from the result.
package airquality

import (
	"errors"
	"time"
)

// Errors surfaced by the package.
var (
	// ErrInvalidCoordinates is returned when a location or radius is out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")

	// ErrProviderNotConfigured is returned by providers that lack credentials.
	// The pipeline skips them without counting a failure.
	ErrProviderNotConfigured = errors.New("provider not configured")

	// ErrInvalidReading is returned when a provider yields negative or
	// non-finite densities.
	ErrInvalidReading = errors.New("invalid pollutant reading")
)

// Pollutant identifies a trace gas measured by Sentinel-5P.
type Pollutant string

const (
	PollutantNO2  Pollutant = "NO2"
	PollutantCO   Pollutant = "CO"
	PollutantO3   Pollutant = "O3"
	PollutantSO2  Pollutant = "SO2"
	PollutantCH4  Pollutant = "CH4"
	PollutantHCHO Pollutant = "HCHO"
)

// Pollutants lists every pollutant in canonical order. Synthesizer draws and
// report rows follow this order.
var Pollutants = []Pollutant{
	PollutantNO2,
	PollutantCO,
	PollutantO3,
	PollutantSO2,
	PollutantCH4,
	PollutantHCHO,
}

// Reading holds pollutant column densities in mol/m². It is immutable.
type Reading struct {
	densities map[Pollutant]float64
}

// NewReading builds a complete reading: pollutants missing from densities are
// recorded as zero.
func NewReading(densities map[Pollutant]float64) Reading {
	m := make(map[Pollutant]float64, len(Pollutants))
	for _, p := range Pollutants {
		m[p] = densities[p]
	}
	return Reading{densities: m}
}

// NewPartialReading builds a reading that keeps only the pollutants present in
// densities. Absent pollutants report ok=false from Value. It is used for
// records supplied by clients, which may omit values.
func NewPartialReading(densities map[Pollutant]float64) Reading {
	m := make(map[Pollutant]float64, len(densities))
	for _, p := range Pollutants {
		if v, ok := densities[p]; ok {
			m[p] = v
		}
	}
	return Reading{densities: m}
}

// Value returns the density of p and whether it is present.
func (r Reading) Value(p Pollutant) (float64, bool) {
	v, ok := r.densities[p]
	return v, ok
}

// Density returns the density of p, zero when absent.
func (r Reading) Density(p Pollutant) float64 {
	return r.densities[p]
}

// Complete reports whether every pollutant is present.
func (r Reading) Complete() bool {
	for _, p := range Pollutants {
		if _, ok := r.densities[p]; !ok {
			return false
		}
	}
	return true
}

// Densities returns a copy of the present values.
func (r Reading) Densities() map[Pollutant]float64 {
	out := make(map[Pollutant]float64, len(r.densities))
	for p, v := range r.densities {
		out[p] = v
	}
	return out
}

// Record is the result of one acquisition.
type Record struct {
	Coordinates    Coordinates
	Timestamp      time.Time
	Reading        Reading
	Index          int
	Category       Category
	Recommendation string
	SourceLabel    string
	RadiusKm       float64
}

// NewRecord derives index, category and recommendation from reading.
func NewRecord(c Coordinates, at time.Time, reading Reading, sourceLabel string) Record {
	index := IndexOf(reading)
	return Record{
		Coordinates:    c,
		Timestamp:      at,
		Reading:        reading,
		Index:          index,
		Category:       CategoryOf(index),
		Recommendation: RecommendationOf(index),
		SourceLabel:    sourceLabel,
		RadiusKm:       c.RadiusKm,
	}
}

// ProductRef identifies a satellite product returned by a provider query.
type ProductRef struct {
	ID           string
	Name         string
	SensingStart time.Time

	// Measured carries densities a provider computed while querying, if any.
	Measured map[Pollutant]float64
}

// DateRange is the sensing window used in provider queries.
type DateRange struct {
	Start time.Time
	End   time.Time
}
