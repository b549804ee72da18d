package airquality_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoshield360/ecoshield/internal/airquality"
)

func TestNewCoordinates(t *testing.T) {
	tests := []struct {
		name    string
		lat     float64
		lon     float64
		radius  float64
		wantErr bool
	}{
		{"mexico city", 19.4326, -99.1332, 5, false},
		{"north pole", 90, 0, 1, false},
		{"date line", -45, 180, 50, false},
		{"west edge", 0, -180, 0.1, false},
		{"latitude too high", 95, 0, 5, true},
		{"latitude too low", -90.0001, 0, 5, true},
		{"longitude too high", 0, 180.5, 5, true},
		{"zero radius", 10, 10, 0, true},
		{"negative radius", 10, 10, -1, true},
		{"radius too large", 10, 10, 50.01, true},
		{"nan latitude", math.NaN(), 0, 5, true},
		{"infinite radius", 0, 0, math.Inf(1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := airquality.NewCoordinates(tt.lat, tt.lon, tt.radius)
			if tt.wantErr {
				require.ErrorIs(t, err, airquality.ErrInvalidCoordinates)
				assert.Equal(t, airquality.Coordinates{}, c)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.lat, c.Latitude)
			assert.Equal(t, tt.lon, c.Longitude)
			assert.Equal(t, tt.radius, c.RadiusKm)
		})
	}
}

func TestCoordinates_BoundingBox(t *testing.T) {
	c, err := airquality.NewCoordinates(40, -3, 11.1)
	require.NoError(t, err)

	bbox := c.BoundingBox()

	delta := 11.1 / 111.0
	assert.Equal(t, -3-delta, bbox.West)
	assert.Equal(t, -3+delta, bbox.East)
	assert.Equal(t, 40-delta, bbox.South)
	assert.Equal(t, 40+delta, bbox.North)
}

func TestBoundingBox_WKT(t *testing.T) {
	bbox := airquality.BoundingBox{West: -1.5, South: 10, East: 1.5, North: 12.25}

	assert.Equal(t, "POLYGON((-1.5 10, 1.5 10, 1.5 12.25, -1.5 12.25, -1.5 10))", bbox.WKT())
}
