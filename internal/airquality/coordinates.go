package airquality

import (
	"fmt"
	"math"
	"strconv"
)

// KilometersPerDegree converts a radius into a degree delta for bounding
// boxes. Provider queries depend on this exact value.
const KilometersPerDegree = 111.0

// MaxRadiusKm is the largest analysis radius accepted.
const MaxRadiusKm = 50.0

// Coordinates is a validated location with an analysis radius.
type Coordinates struct {
	Latitude  float64
	Longitude float64
	RadiusKm  float64
}

// NewCoordinates validates and builds Coordinates.
func NewCoordinates(lat, lon, radiusKm float64) (Coordinates, error) {
	switch {
	case !isFinite(lat) || lat < -90 || lat > 90:
		return Coordinates{}, fmt.Errorf("%w: latitude %v outside [-90, 90]", ErrInvalidCoordinates, lat)
	case !isFinite(lon) || lon < -180 || lon > 180:
		return Coordinates{}, fmt.Errorf("%w: longitude %v outside [-180, 180]", ErrInvalidCoordinates, lon)
	case !isFinite(radiusKm) || radiusKm <= 0 || radiusKm > MaxRadiusKm:
		return Coordinates{}, fmt.Errorf("%w: radius %v km outside (0, %v]", ErrInvalidCoordinates, radiusKm, MaxRadiusKm)
	}
	return Coordinates{Latitude: lat, Longitude: lon, RadiusKm: radiusKm}, nil
}

// BoundingBox is a lat/lon rectangle in degrees.
type BoundingBox struct {
	West  float64
	South float64
	East  float64
	North float64
}

// BoundingBox derives the query rectangle around c.
func (c Coordinates) BoundingBox() BoundingBox {
	delta := c.RadiusKm / KilometersPerDegree
	return BoundingBox{
		West:  c.Longitude - delta,
		South: c.Latitude - delta,
		East:  c.Longitude + delta,
		North: c.Latitude + delta,
	}
}

// WKT renders the box as a closed WKT polygon in lon/lat order.
func (b BoundingBox) WKT() string {
	w, s := formatDegrees(b.West), formatDegrees(b.South)
	e, n := formatDegrees(b.East), formatDegrees(b.North)
	return "POLYGON((" +
		w + " " + s + ", " +
		e + " " + s + ", " +
		e + " " + n + ", " +
		w + " " + n + ", " +
		w + " " + s + "))"
}

func formatDegrees(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
