package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ecoshield360/ecoshield/internal/airquality"
	"github.com/ecoshield360/ecoshield/internal/api/middleware"
	"github.com/ecoshield360/ecoshield/internal/api/models"
	"github.com/ecoshield360/ecoshield/internal/api/response"
	"github.com/ecoshield360/ecoshield/internal/report"
)

var (
	errUnknownCategory  = errors.New("unknown air quality category")
	errCategoryMismatch = errors.New("air quality category does not match index")
)

// Acquirer produces an air quality record for a location.
type Acquirer interface {
	Acquire(ctx context.Context, c airquality.Coordinates) airquality.Record
}

// ReportRenderer turns a record into a PDF document.
type ReportRenderer interface {
	Render(rec airquality.Record, opts report.Options) ([]byte, error)
}

// AirQualityHandler handles air quality endpoints.
type AirQualityHandler struct {
	service  Acquirer
	renderer ReportRenderer
	logger   zerolog.Logger
	now      func() time.Time
}

// NewAirQualityHandler creates a new AirQualityHandler.
func NewAirQualityHandler(service Acquirer, renderer ReportRenderer, logger zerolog.Logger) *AirQualityHandler {
	return &AirQualityHandler{
		service:  service,
		renderer: renderer,
		logger:   logger.With().Str("handler", "airquality").Logger(),
		now:      time.Now,
	}
}

// Summary handles POST /api/v1/air-quality/summary.
func (h *AirQualityHandler) Summary(w http.ResponseWriter, r *http.Request) {
	var req models.SummaryRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	coords, err := airquality.NewCoordinates(*req.Lat, *req.Lon, req.RadiusKm())
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	rec := h.service.Acquire(r.Context(), coords)

	response.JSON(w, r, http.StatusOK, models.SummaryResponse{
		Success: true,
		Message: "Air quality data retrieved successfully",
		Data:    recordToDTO(rec),
	})
}

// Report handles POST /api/v1/air-quality/report and returns the PDF as an
// attachment.
func (h *AirQualityHandler) Report(w http.ResponseWriter, r *http.Request) {
	req, rec, ok := h.reportRecord(w, r)
	if !ok {
		return
	}

	pdf, err := h.renderer.Render(rec, report.Options{
		Title:         req.ReportTitle,
		IncludeCharts: req.Charts(),
	})
	if err != nil {
		h.logger.Error().Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Msg("report generation failed")
		if errors.Is(err, report.ErrRender) {
			response.RenderError(w, r, "the report could not be generated")
			return
		}
		response.InternalError(w, r, "the report could not be generated")
		return
	}

	response.Attachment(w, r, "application/pdf", report.Filename(rec, h.now()), pdf)
}

// ReportInfo handles POST /api/v1/air-quality/report/info. It validates the
// body and returns the filename the report would get, without rendering.
func (h *AirQualityHandler) ReportInfo(w http.ResponseWriter, r *http.Request) {
	_, rec, ok := h.reportRecord(w, r)
	if !ok {
		return
	}

	response.JSON(w, r, http.StatusOK, models.ReportInfoResponse{
		Success:  true,
		Message:  "Report information generated successfully",
		Filename: report.Filename(rec, h.now()),
	})
}

func (h *AirQualityHandler) reportRecord(w http.ResponseWriter, r *http.Request) (models.ReportRequest, airquality.Record, bool) {
	var req models.ReportRequest
	if !decodeAndValidate(w, r, &req) {
		return req, airquality.Record{}, false
	}

	rec, err := recordFromDTO(req.AirQualityData)
	switch {
	case errors.Is(err, errUnknownCategory):
		response.BadRequest(w, r, "validation error", []models.FieldError{{
			Field:   "air_quality_data.air_quality_category",
			Message: "must be a known air quality category",
			Code:    "INVALID_CATEGORY",
		}})
		return req, rec, false
	case errors.Is(err, errCategoryMismatch):
		response.BadRequest(w, r, "validation error", []models.FieldError{{
			Field:   "air_quality_data.air_quality_category",
			Message: "must match the category of air_quality_index",
			Code:    "INVALID_CATEGORY",
		}})
		return req, rec, false
	case err != nil:
		response.BadRequest(w, r, err.Error(), nil)
		return req, rec, false
	}
	return req, rec, true
}

// recordToDTO converts an acquired record to its wire form.
func recordToDTO(rec airquality.Record) *models.AirQualityRecord {
	lat := rec.Coordinates.Latitude
	lon := rec.Coordinates.Longitude
	index := rec.Index

	dto := &models.AirQualityRecord{
		Coordinates:           &models.Location{Lat: &lat, Lon: &lon},
		Timestamp:             rec.Timestamp,
		AirQualityIndex:       &index,
		AirQualityCategory:    rec.Category.String(),
		HealthRecommendations: rec.Recommendation,
		DataSource:            rec.SourceLabel,
		AnalysisRadiusKm:      rec.RadiusKm,
	}
	for _, p := range airquality.Pollutants {
		if v, ok := rec.Reading.Value(p); ok {
			*densityField(dto, p) = &v
		}
	}
	return dto
}

// recordFromDTO rebuilds a record supplied by a client. Missing index,
// category and recommendation are derived from the densities. A supplied
// category must be the one the index falls into.
func recordFromDTO(dto *models.AirQualityRecord) (airquality.Record, error) {
	coords, err := airquality.NewCoordinates(*dto.Coordinates.Lat, *dto.Coordinates.Lon, dto.AnalysisRadiusKm)
	if err != nil {
		return airquality.Record{}, err
	}

	densities := make(map[airquality.Pollutant]float64, len(airquality.Pollutants))
	for _, p := range airquality.Pollutants {
		if v := *densityField(dto, p); v != nil {
			densities[p] = *v
		}
	}
	reading := airquality.NewPartialReading(densities)

	index := airquality.IndexOf(reading)
	if dto.AirQualityIndex != nil {
		index = *dto.AirQualityIndex
	}

	category := airquality.CategoryOf(index)
	if dto.AirQualityCategory != "" {
		category, err = airquality.ParseCategory(dto.AirQualityCategory)
		if err != nil {
			return airquality.Record{}, errUnknownCategory
		}
		if category != airquality.CategoryOf(index) {
			return airquality.Record{}, errCategoryMismatch
		}
	}

	recommendation := dto.HealthRecommendations
	if recommendation == "" {
		recommendation = category.Recommendation()
	}
	source := dto.DataSource
	if source == "" {
		source = models.DefaultDataSource
	}

	return airquality.Record{
		Coordinates:    coords,
		Timestamp:      dto.Timestamp,
		Reading:        reading,
		Index:          index,
		Category:       category,
		Recommendation: recommendation,
		SourceLabel:    source,
		RadiusKm:       coords.RadiusKm,
	}, nil
}

func densityField(dto *models.AirQualityRecord, p airquality.Pollutant) **float64 {
	switch p {
	case airquality.PollutantNO2:
		return &dto.NO2Density
	case airquality.PollutantCO:
		return &dto.CODensity
	case airquality.PollutantO3:
		return &dto.O3Density
	case airquality.PollutantSO2:
		return &dto.SO2Density
	case airquality.PollutantCH4:
		return &dto.CH4Density
	default:
		return &dto.HCHODensity
	}
}
