package airquality

import (
	"fmt"
	"math"
	"strings"
)

// Reference densities (mol/m²) at which a pollutant contributes a factor of 1.
const (
	referenceNO2 = 4e-5
	referenceCO  = 1e-4
	referenceO3  = 2e-4
	referenceSO2 = 2e-5
)

// MaxIndex is the upper bound of the air quality index.
const MaxIndex = 500

// ComputeIndex maps the four index pollutants to an integer in [0, 500].
func ComputeIndex(no2, co, o3, so2 float64) int {
	weighted := 0.3*(no2/referenceNO2) +
		0.2*(co/referenceCO) +
		0.3*(o3/referenceO3) +
		0.2*(so2/referenceSO2)

	if math.IsNaN(weighted) {
		return 0
	}
	scaled := math.Round(weighted * 200)
	switch {
	case scaled <= 0:
		return 0
	case scaled >= MaxIndex:
		return MaxIndex
	}
	return int(scaled)
}

// IndexOf computes the index of a reading. Absent pollutants count as zero.
func IndexOf(r Reading) int {
	return ComputeIndex(
		r.Density(PollutantNO2),
		r.Density(PollutantCO),
		r.Density(PollutantO3),
		r.Density(PollutantSO2),
	)
}

// Category is an air quality severity tier.
type Category int

const (
	CategoryGood Category = iota
	CategoryModerate
	CategoryUnhealthyForSensitive
	CategoryUnhealthy
	CategoryVeryUnhealthy
	CategoryHazardous
)

var categoryInfo = [...]struct {
	code           string
	label          string
	upperBound     int
	recommendation string
}{
	CategoryGood: {
		"good", "Good", 50,
		"Air quality is satisfactory. The air is clean and poses little or no risk.",
	},
	CategoryModerate: {
		"moderate", "Moderate", 100,
		"Air quality is acceptable. Unusually sensitive people may experience minor symptoms.",
	},
	CategoryUnhealthyForSensitive: {
		"unhealthy_for_sensitive", "Unhealthy for Sensitive Groups", 150,
		"Sensitive groups may experience symptoms. The general public is not likely to be affected.",
	},
	CategoryUnhealthy: {
		"unhealthy", "Unhealthy", 200,
		"Everyone may begin to experience health effects. Sensitive groups may experience more serious effects.",
	},
	CategoryVeryUnhealthy: {
		"very_unhealthy", "Very Unhealthy", 300,
		"Health alert: everyone may experience more serious health effects.",
	},
	CategoryHazardous: {
		"hazardous", "Hazardous", MaxIndex,
		"Health warning of emergency conditions. The entire population is more likely to be affected.",
	},
}

// CategoryOf returns the tier an index falls into.
func CategoryOf(index int) Category {
	for c := CategoryGood; c < CategoryHazardous; c++ {
		if index <= categoryInfo[c].upperBound {
			return c
		}
	}
	return CategoryHazardous
}

// RecommendationOf returns the health advice for an index.
func RecommendationOf(index int) string {
	return categoryInfo[CategoryOf(index)].recommendation
}

// String returns the human readable label.
func (c Category) String() string {
	if !c.valid() {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryInfo[c].label
}

// Code returns the stable machine identifier, e.g. "unhealthy_for_sensitive".
func (c Category) Code() string {
	if !c.valid() {
		return ""
	}
	return categoryInfo[c].code
}

// Recommendation returns the health advice for the tier.
func (c Category) Recommendation() string {
	if !c.valid() {
		return ""
	}
	return categoryInfo[c].recommendation
}

// MarshalText encodes the category as its label.
func (c Category) MarshalText() ([]byte, error) {
	if !c.valid() {
		return nil, fmt.Errorf("unknown category %d", int(c))
	}
	return []byte(categoryInfo[c].label), nil
}

// UnmarshalText accepts either the label or the code, case-insensitively.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCategory resolves a label or code to a Category.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for c := CategoryGood; c <= CategoryHazardous; c++ {
		if strings.EqualFold(s, categoryInfo[c].label) || strings.EqualFold(s, categoryInfo[c].code) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown air quality category %q", s)
}

func (c Category) valid() bool {
	return c >= CategoryGood && c <= CategoryHazardous
}
