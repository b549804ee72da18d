package models

import "time"

// DefaultRadiusKm is the analysis radius used when a summary request omits it.
const DefaultRadiusKm = 5.0

// DefaultDataSource labels client-supplied records that carry no source.
const DefaultDataSource = "Sentinel-5P"

// SummaryRequest is the body of POST /api/v1/air-quality/summary.
type SummaryRequest struct {
	Lat    *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon    *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
	Radius *float64 `json:"radius,omitempty" validate:"omitempty,gt=0,lte=50"`
}

// RadiusKm returns the requested radius or DefaultRadiusKm.
func (r SummaryRequest) RadiusKm() float64 {
	if r.Radius == nil {
		return DefaultRadiusKm
	}
	return *r.Radius
}

// Location is a latitude/longitude pair.
type Location struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
}

// AirQualityRecord is the wire form of an acquisition result. Summary
// responses return it and report requests send it back.
type AirQualityRecord struct {
	Coordinates           *Location `json:"coordinates" validate:"required"`
	Timestamp             time.Time `json:"timestamp" validate:"required"`
	NO2Density            *float64  `json:"no2_density" validate:"omitempty,gte=0"`
	CODensity             *float64  `json:"co_density" validate:"omitempty,gte=0"`
	O3Density             *float64  `json:"o3_density" validate:"omitempty,gte=0"`
	SO2Density            *float64  `json:"so2_density" validate:"omitempty,gte=0"`
	CH4Density            *float64  `json:"ch4_density" validate:"omitempty,gte=0"`
	HCHODensity           *float64  `json:"hcho_density" validate:"omitempty,gte=0"`
	AirQualityIndex       *int      `json:"air_quality_index" validate:"omitempty,gte=0,lte=500"`
	AirQualityCategory    string    `json:"air_quality_category,omitempty"`
	HealthRecommendations string    `json:"health_recommendations,omitempty"`
	DataSource            string    `json:"data_source"`
	AnalysisRadiusKm      float64   `json:"analysis_radius_km" validate:"gt=0,lte=50"`
}

// SummaryResponse wraps an acquired record.
type SummaryResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    *AirQualityRecord `json:"data,omitempty"`
}

// ReportRequest is the body of the report endpoints.
type ReportRequest struct {
	AirQualityData *AirQualityRecord `json:"air_quality_data" validate:"required"`
	ReportTitle    string            `json:"report_title,omitempty" validate:"max=200"`
	IncludeCharts  *bool             `json:"include_charts,omitempty"`
}

// Charts reports whether the chart section was requested. It defaults to true.
func (r ReportRequest) Charts() bool {
	return r.IncludeCharts == nil || *r.IncludeCharts
}

// ReportInfoResponse describes the report a request would produce.
type ReportInfoResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Filename string `json:"filename,omitempty"`
}
