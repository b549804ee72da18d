package airquality

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Source labels of the synthetic tiers.
const (
	LabelSyntheticEstimate = "Synthetic (location-based estimate)"
	LabelSyntheticMock     = "Synthetic (basic mock)"
)

// Provider is one external data source tier.
type Provider interface {
	// Name identifies the provider in logs, metrics and the health registry.
	Name() string

	// SourceLabel is written into records produced from this provider.
	SourceLabel() string

	// Query lists products covering bbox within window, most recent first.
	Query(ctx context.Context, bbox BoundingBox, window DateRange) ([]ProductRef, error)

	// Extract turns a product into densities for c.
	Extract(ctx context.Context, ref ProductRef, c Coordinates, now time.Time) (Reading, error)
}

// Clock returns the current time.
type Clock func() time.Time

// OutcomeKind classifies a tier attempt.
type OutcomeKind int

const (
	OutcomeEmpty OutcomeKind = iota
	OutcomeFound
	OutcomeTransient
	OutcomeSkipped
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeFound:
		return "found"
	case OutcomeTransient:
		return "transient_error"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "empty"
	}
}

// Outcome is the result of one tier attempt. Reading is set only for
// OutcomeFound, Err only for OutcomeTransient and OutcomeSkipped.
type Outcome struct {
	Kind    OutcomeKind
	Reading Reading
	Err     error
}

// ServiceConfig holds configuration for the acquisition service.
type ServiceConfig struct {
	// Providers are attempted in order.
	Providers []Provider

	Logger zerolog.Logger

	// Metrics is optional.
	Metrics *TierMetrics

	// Clock defaults to time.Now.
	Clock Clock

	// ProviderTimeout bounds each tier attempt (default: 30 seconds).
	ProviderTimeout time.Duration

	// LookbackDays is the sensing window ending now (default: 7).
	LookbackDays int

	// UseMockData skips every provider and returns the basic mock reading.
	UseMockData bool
}

// Service acquires air quality records. It holds no per-request state and is
// safe for concurrent use.
type Service struct {
	providers       []Provider
	logger          zerolog.Logger
	metrics         *TierMetrics
	tracer          trace.Tracer
	clock           Clock
	providerTimeout time.Duration
	lookbackDays    int
	useMockData     bool
}

// NewService creates a new acquisition service.
func NewService(cfg ServiceConfig) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	timeout := cfg.ProviderTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	lookback := cfg.LookbackDays
	if lookback <= 0 {
		lookback = 7
	}

	return &Service{
		providers:       cfg.Providers,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
		tracer:          otel.Tracer(instrumentationName),
		clock:           clock,
		providerTimeout: timeout,
		lookbackDays:    lookback,
		useMockData:     cfg.UseMockData,
	}
}

// Acquire returns a record for c. It never fails: when no provider yields
// data the record is synthesized and labelled accordingly.
func (s *Service) Acquire(ctx context.Context, c Coordinates) Record {
	now := s.clock()

	ctx, span := s.tracer.Start(ctx, "airquality.Acquire", trace.WithAttributes(
		attribute.Float64("geo.lat", c.Latitude),
		attribute.Float64("geo.lon", c.Longitude),
		attribute.Float64("airquality.radius_km", c.RadiusKm),
	))
	defer span.End()

	record := s.acquire(ctx, c, now)
	span.SetAttributes(
		attribute.String("airquality.source", record.SourceLabel),
		attribute.Int("airquality.index", record.Index),
	)
	return record
}

func (s *Service) acquire(ctx context.Context, c Coordinates, now time.Time) Record {
	if s.useMockData {
		return NewRecord(c, now, SynthesizeBasic(c), LabelSyntheticMock)
	}

	bbox := c.BoundingBox()
	window := DateRange{Start: now.AddDate(0, 0, -s.lookbackDays), End: now}

	for _, p := range s.providers {
		if ctx.Err() != nil {
			s.logger.Warn().Err(ctx.Err()).Msg("request cancelled, skipping remaining providers")
			break
		}

		outcome := s.attempt(ctx, p, c, bbox, window, now)
		log := s.logger.With().Str("provider", p.Name()).Str("outcome", outcome.Kind.String()).Logger()

		switch outcome.Kind {
		case OutcomeFound:
			log.Debug().Msg("provider returned data")
			return NewRecord(c, now, outcome.Reading, p.SourceLabel())
		case OutcomeTransient:
			log.Warn().Err(outcome.Err).Msg("provider failed, trying next tier")
		case OutcomeSkipped:
			log.Debug().Err(outcome.Err).Msg("provider skipped")
		case OutcomeEmpty:
			log.Info().Msg("provider returned no products, trying next tier")
		}
	}

	s.logger.Info().
		Float64("lat", c.Latitude).
		Float64("lon", c.Longitude).
		Msg("no provider data, using location-based estimate")
	return NewRecord(c, now, SynthesizeRealistic(c, now), LabelSyntheticEstimate)
}

// attempt runs one tier under its own timeout and classifies the result.
func (s *Service) attempt(ctx context.Context, p Provider, c Coordinates, bbox BoundingBox, window DateRange, now time.Time) Outcome {
	ctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "airquality.tier "+p.Name())
	defer span.End()

	start := time.Now()
	outcome := s.run(ctx, p, c, bbox, window, now)
	s.metrics.Record(p.Name(), outcome.Kind, time.Since(start))

	span.SetAttributes(attribute.String("airquality.outcome", outcome.Kind.String()))
	if outcome.Kind == OutcomeTransient {
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, outcome.Err.Error())
	}
	return outcome
}

func (s *Service) run(ctx context.Context, p Provider, c Coordinates, bbox BoundingBox, window DateRange, now time.Time) Outcome {
	refs, err := p.Query(ctx, bbox, window)
	if err != nil {
		if errors.Is(err, ErrProviderNotConfigured) {
			return Outcome{Kind: OutcomeSkipped, Err: err}
		}
		return Outcome{Kind: OutcomeTransient, Err: fmt.Errorf("query: %w", err)}
	}
	if len(refs) == 0 {
		return Outcome{Kind: OutcomeEmpty}
	}

	reading, err := p.Extract(ctx, refs[0], c, now)
	if err != nil {
		return Outcome{Kind: OutcomeTransient, Err: fmt.Errorf("extract %s: %w", refs[0].ID, err)}
	}
	if err := validateReading(reading); err != nil {
		return Outcome{Kind: OutcomeTransient, Err: err}
	}
	return Outcome{Kind: OutcomeFound, Reading: NewReading(reading.Densities())}
}

func validateReading(r Reading) error {
	for _, p := range Pollutants {
		v, ok := r.Value(p)
		if !ok {
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s=%v", ErrInvalidReading, p, v)
		}
	}
	return nil
}
