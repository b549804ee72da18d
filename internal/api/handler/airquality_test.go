package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoshield360/ecoshield/internal/airquality"
	"github.com/ecoshield360/ecoshield/internal/api/handler"
	"github.com/ecoshield360/ecoshield/internal/api/models"
	"github.com/ecoshield360/ecoshield/internal/report"
)

type stubAcquirer struct {
	record airquality.Record
}

func (s stubAcquirer) Acquire(_ context.Context, c airquality.Coordinates) airquality.Record {
	rec := s.record
	rec.Coordinates = c
	rec.RadiusKm = c.RadiusKm
	return rec
}

// capturingRenderer records what it was asked to render.
type capturingRenderer struct {
	rec  airquality.Record
	opts report.Options
	err  error
}

func (c *capturingRenderer) Render(rec airquality.Record, opts report.Options) ([]byte, error) {
	c.rec = rec
	c.opts = opts
	if c.err != nil {
		return nil, c.err
	}
	return []byte("%PDF-1.3 test"), nil
}

func newAirQualityHandler(renderer handler.ReportRenderer) *handler.AirQualityHandler {
	return handler.NewAirQualityHandler(stubAcquirer{}, renderer, zerolog.New(io.Discard))
}

func postJSON(t *testing.T, h http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/air-quality/report", bytes.NewReader(b))
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func minimalRecord() map[string]any {
	return map[string]any{
		"coordinates":        map[string]any{"lat": 52.37, "lon": 4.89},
		"timestamp":          "2024-03-10T08:00:00Z",
		"no2_density":        0.00015,
		"co_density":         0.025,
		"o3_density":         0.12,
		"so2_density":        0.0002,
		"analysis_radius_km": 5,
	}
}

func TestReport_DerivesMissingFields(t *testing.T) {
	renderer := &capturingRenderer{}
	h := newAirQualityHandler(renderer)

	w := postJSON(t, h.Report, map[string]any{"air_quality_data": minimalRecord()})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))

	reading := airquality.NewReading(map[airquality.Pollutant]float64{
		airquality.PollutantNO2: 0.00015,
		airquality.PollutantCO:  0.025,
		airquality.PollutantO3:  0.12,
		airquality.PollutantSO2: 0.0002,
	})
	wantIndex := airquality.IndexOf(reading)

	assert.Equal(t, wantIndex, renderer.rec.Index)
	assert.Equal(t, airquality.CategoryOf(wantIndex), renderer.rec.Category)
	assert.Equal(t, airquality.RecommendationOf(wantIndex), renderer.rec.Recommendation)
	assert.Equal(t, models.DefaultDataSource, renderer.rec.SourceLabel)
	assert.True(t, renderer.opts.IncludeCharts)

	_, ok := renderer.rec.Reading.Value(airquality.PollutantCH4)
	assert.False(t, ok, "absent densities stay absent")
}

func TestReport_KeepsSuppliedFields(t *testing.T) {
	renderer := &capturingRenderer{}
	h := newAirQualityHandler(renderer)

	rec := minimalRecord()
	rec["air_quality_index"] = 180
	rec["air_quality_category"] = "unhealthy"
	rec["health_recommendations"] = "Stay inside."
	rec["data_source"] = "openEO"

	w := postJSON(t, h.Report, map[string]any{
		"air_quality_data": rec,
		"report_title":     "Amsterdam",
		"include_charts":   false,
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 180, renderer.rec.Index)
	assert.Equal(t, airquality.CategoryUnhealthy, renderer.rec.Category)
	assert.Equal(t, "Stay inside.", renderer.rec.Recommendation)
	assert.Equal(t, "openEO", renderer.rec.SourceLabel)
	assert.Equal(t, "Amsterdam", renderer.opts.Title)
	assert.False(t, renderer.opts.IncludeCharts)
}

func TestReport_CategoryMustMatchIndex(t *testing.T) {
	tests := []struct {
		name     string
		index    int
		category string
	}{
		{"low index labelled hazardous", 10, "Hazardous"},
		{"high index labelled good", 250, "good"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			renderer := &capturingRenderer{}
			h := newAirQualityHandler(renderer)

			rec := minimalRecord()
			rec["air_quality_index"] = tt.index
			rec["air_quality_category"] = tt.category

			for _, endpoint := range []http.HandlerFunc{h.Report, h.ReportInfo} {
				w := postJSON(t, endpoint, map[string]any{"air_quality_data": rec})

				assert.Equal(t, http.StatusBadRequest, w.Code)
				var problem models.Problem
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
				require.Len(t, problem.Errors, 1)
				assert.Equal(t, "air_quality_data.air_quality_category", problem.Errors[0].Field)
				assert.Equal(t, "INVALID_CATEGORY", problem.Errors[0].Code)
			}
			assert.Empty(t, renderer.rec.SourceLabel, "nothing was rendered")
		})
	}
}

func TestReport_RenderFailure(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		problemType string
	}{
		{
			name:        "render error",
			err:         fmt.Errorf("%w: broken font", report.ErrRender),
			problemType: models.ProblemTypeRender,
		},
		{
			name:        "unexpected error",
			err:         errors.New("out of memory"),
			problemType: models.ProblemTypeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newAirQualityHandler(&capturingRenderer{err: tt.err})

			w := postJSON(t, h.Report, map[string]any{"air_quality_data": minimalRecord()})

			assert.Equal(t, http.StatusInternalServerError, w.Code)
			var problem models.Problem
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
			assert.Equal(t, tt.problemType, problem.Type)
			assert.NotContains(t, problem.Detail, "broken font")
		})
	}
}

func TestReport_NegativeDensity(t *testing.T) {
	h := newAirQualityHandler(&capturingRenderer{})

	rec := minimalRecord()
	rec["no2_density"] = -1.0

	w := postJSON(t, h.Report, map[string]any{"air_quality_data": rec})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var problem models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	require.NotEmpty(t, problem.Errors)
	assert.Equal(t, "air_quality_data.no2_density", problem.Errors[0].Field)
}

func TestSummary_UsesRequestedRadius(t *testing.T) {
	acquirer := stubAcquirer{record: airquality.Record{
		Timestamp:   time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC),
		Reading:     airquality.NewReading(nil),
		Category:    airquality.CategoryGood,
		SourceLabel: "openEO",
	}}
	h := handler.NewAirQualityHandler(acquirer, &capturingRenderer{}, zerolog.New(io.Discard))

	w := postJSON(t, h.Summary, map[string]any{"lat": 1.5, "lon": 2.5, "radius": 12.5})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.SummaryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 12.5, resp.Data.AnalysisRadiusKm)
	assert.Equal(t, "Good", resp.Data.AirQualityCategory)
	require.NotNil(t, resp.Data.HCHODensity)
	assert.Zero(t, *resp.Data.HCHODensity)
}
