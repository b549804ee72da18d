// Package report renders air quality records as PDF documents.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/rs/zerolog"

	"github.com/ecoshield360/ecoshield/internal/airquality"
)

// ErrRender is returned when a mandatory part of the report cannot be built.
var ErrRender = errors.New("render report")

// DefaultTitle is used when no title is supplied.
const DefaultTitle = "Air Quality Report"

const (
	timestampLayout = "02/01/2006 15:04:05"
	filenameLayout  = "20060102_150405"
	chartImageName  = "pollutant-chart"
	lineHeight      = 7.0
	margin          = 20.0
)

var descriptions = map[airquality.Pollutant]string{
	airquality.PollutantNO2:  "Nitrogen dioxide: vehicle exhaust and power plants",
	airquality.PollutantCO:   "Carbon monoxide: incomplete combustion",
	airquality.PollutantO3:   "Ozone: photochemical reactions",
	airquality.PollutantSO2:  "Sulfur dioxide: fossil fuel combustion",
	airquality.PollutantCH4:  "Methane: agriculture and livestock",
	airquality.PollutantHCHO: "Formaldehyde: industrial processes and vehicles",
}

// Options control a single rendering.
type Options struct {
	Title         string
	IncludeCharts bool
}

// Config holds renderer dependencies.
type Config struct {
	Logger zerolog.Logger

	// Chart draws the pollutant chart (default: BarChartPNG).
	Chart ChartFunc
}

// Renderer builds PDF reports. It is stateless and safe for concurrent use.
type Renderer struct {
	logger zerolog.Logger
	chart  ChartFunc
}

// NewRenderer creates a renderer.
func NewRenderer(cfg Config) *Renderer {
	chart := cfg.Chart
	if chart == nil {
		chart = BarChartPNG
	}
	return &Renderer{logger: cfg.Logger, chart: chart}
}

// Render builds the report for rec. Either the whole document is returned or
// an error wrapping ErrRender; a chart that cannot be drawn is left out.
func (r *Renderer) Render(rec airquality.Record, opts Options) ([]byte, error) {
	if err := validate(rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}

	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = DefaultTitle
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.SetTitle(title, true)
	pdf.SetCreator("EcoShield360", true)
	pdf.SetCatalogSort(true)
	if !rec.Timestamp.IsZero() {
		pdf.SetCreationDate(rec.Timestamp)
		pdf.SetModificationDate(rec.Timestamp)
	}
	pdf.AddPage()

	writeTitle(pdf, tr, title)
	writeMetadata(pdf, tr, rec)
	writePollutants(pdf, tr, rec.Reading)
	writeRecommendation(pdf, tr, rec.Recommendation)

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}

	if opts.IncludeCharts {
		r.writeChart(pdf, rec.Reading)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	return buf.Bytes(), nil
}

// Filename returns the attachment name of a report for rec generated at
// generatedAt.
func Filename(rec airquality.Record, generatedAt time.Time) string {
	return fmt.Sprintf("air_quality_report_%.4f_%.4f_%s.pdf",
		rec.Coordinates.Latitude, rec.Coordinates.Longitude, generatedAt.Format(filenameLayout))
}

// validate rejects records whose tables cannot be filled in truthfully.
func validate(rec airquality.Record) error {
	if rec.Index < 0 || rec.Index > airquality.MaxIndex {
		return fmt.Errorf("index %d outside [0, %d]", rec.Index, airquality.MaxIndex)
	}
	if rec.Category.Code() == "" {
		return fmt.Errorf("unknown category %d", int(rec.Category))
	}
	for _, p := range airquality.Pollutants {
		if v, ok := rec.Reading.Value(p); ok && (math.IsNaN(v) || math.IsInf(v, 0)) {
			return fmt.Errorf("%s density is not a number", p)
		}
	}
	return nil
}

func writeTitle(pdf *fpdf.Fpdf, tr func(string) string, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(0x2E, 0x86, 0xAB)
	pdf.MultiCell(0, 10, tr(title), "", "C", false)
	pdf.Ln(8)
	pdf.SetTextColor(0, 0, 0)
}

func writeMetadata(pdf *fpdf.Fpdf, tr func(string) string, rec airquality.Record) {
	rows := [][2]string{
		{"Coordinates", fmt.Sprintf("Lat: %.6f, Lon: %.6f", rec.Coordinates.Latitude, rec.Coordinates.Longitude)},
		{"Date and time", rec.Timestamp.Format(timestampLayout)},
		{"Analysis radius", fmt.Sprintf("%g km", rec.RadiusKm)},
		{"Data source", rec.SourceLabel},
		{"Air quality index", fmt.Sprintf("%d - %s", rec.Index, rec.Category)},
	}

	pdf.SetDrawColor(0, 0, 0)
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.SetFillColor(0xD3, 0xD3, 0xD3)
		pdf.CellFormat(55, lineHeight+1, tr(row[0]), "1", 0, "L", true, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.SetFillColor(0xF5, 0xF5, 0xDC)
		pdf.CellFormat(0, lineHeight+1, tr(row[1]), "1", 1, "L", true, 0, "")
	}
	pdf.Ln(8)
}

func writePollutants(pdf *fpdf.Fpdf, tr func(string) string, reading airquality.Reading) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 9, tr("Pollutant concentrations"), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	widths := []float64{30, 45, 95}
	headers := []string{"Pollutant", "Density (mol/m²)", "Description"}

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(0x2E, 0x86, 0xAB)
	pdf.SetTextColor(0xFF, 0xFF, 0xFF)
	for i, h := range headers {
		pdf.CellFormat(widths[i], lineHeight+1, tr(h), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "", 9)
	for i, p := range airquality.Pollutants {
		fill := i%2 == 1
		pdf.SetFillColor(0xF0, 0xF4, 0xF8)

		value := "N/A"
		if v, ok := reading.Value(p); ok {
			value = fmt.Sprintf("%.8f", v)
		}
		pdf.CellFormat(widths[0], lineHeight, string(p), "1", 0, "C", fill, 0, "")
		pdf.CellFormat(widths[1], lineHeight, value, "1", 0, "C", fill, 0, "")
		pdf.CellFormat(widths[2], lineHeight, tr(descriptions[p]), "1", 1, "L", fill, 0, "")
	}
	pdf.Ln(8)
}

func writeRecommendation(pdf *fpdf.Fpdf, tr func(string) string, text string) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 9, tr("Health recommendations"), "", 1, "L", false, 0, "")
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "", 11)
	if text == "" {
		text = "No recommendation available."
	}
	pdf.MultiCell(0, 6, tr(text), "", "L", false)
	pdf.Ln(6)
}

// writeChart adds the chart on a best-effort basis. Any error or panic while
// drawing it is logged and cleared so the rest of the document still renders.
func (r *Renderer) writeChart(pdf *fpdf.Fpdf, reading airquality.Reading) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn().Interface("panic", p).Msg("omitting pollutant chart")
		}
		if pdf.Err() {
			r.logger.Warn().Err(pdf.Error()).Msg("omitting pollutant chart")
			pdf.ClearError()
		}
	}()
	r.drawChart(pdf, reading)
}

func (r *Renderer) drawChart(pdf *fpdf.Fpdf, reading airquality.Reading) {
	bars, err := NormalizedBars(reading)
	if err != nil {
		r.logger.Warn().Err(err).Msg("omitting pollutant chart")
		return
	}

	png, err := r.chart(bars)
	if err != nil {
		r.logger.Warn().Err(err).Msg("omitting pollutant chart")
		return
	}

	opts := fpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	info := pdf.RegisterImageOptionsReader(chartImageName, opts, bytes.NewReader(png))
	if pdf.Err() || info == nil || info.Width() == 0 {
		r.logger.Warn().Err(pdf.Error()).Msg("omitting unreadable pollutant chart")
		pdf.ClearError()
		return
	}

	pageW, pageH := pdf.GetPageSize()
	width := pageW - 2*margin
	height := width * info.Height() / info.Width()
	if pdf.GetY()+height+12 > pageH-margin {
		pdf.AddPage()
	}

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 9, "Pollutant chart", "", 1, "L", false, 0, "")
	pdf.ImageOptions(chartImageName, margin, pdf.GetY()+2, width, height, false, opts, 0, "")
	pdf.SetY(pdf.GetY() + height + 4)
}
