package airquality_test

import (
	"context"
	"errors"
	"io"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoshield360/ecoshield/internal/airquality"
)

var fixedNow = time.Date(2024, time.October, 15, 14, 30, 0, 0, time.UTC)

// fakeProvider is a configurable provider tier.
type fakeProvider struct {
	name       string
	refs       []airquality.ProductRef
	queryErr   error
	reading    airquality.Reading
	extractErr error
	block      bool

	queries  atomic.Int32
	extracts atomic.Int32
	gotBBox  airquality.BoundingBox
	gotRange airquality.DateRange
}

func (f *fakeProvider) Name() string        { return f.name }
func (f *fakeProvider) SourceLabel() string { return "Sentinel-5P (" + f.name + ")" }

func (f *fakeProvider) Query(ctx context.Context, bbox airquality.BoundingBox, window airquality.DateRange) ([]airquality.ProductRef, error) {
	f.queries.Add(1)
	f.gotBBox = bbox
	f.gotRange = window
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.refs, f.queryErr
}

func (f *fakeProvider) Extract(_ context.Context, _ airquality.ProductRef, _ airquality.Coordinates, _ time.Time) (airquality.Reading, error) {
	f.extracts.Add(1)
	return f.reading, f.extractErr
}

func newTestService(providers ...airquality.Provider) *airquality.Service {
	return airquality.NewService(airquality.ServiceConfig{
		Providers:       providers,
		Logger:          zerolog.New(io.Discard),
		Clock:           func() time.Time { return fixedNow },
		ProviderTimeout: 100 * time.Millisecond,
	})
}

func someRefs() []airquality.ProductRef {
	return []airquality.ProductRef{{ID: "S5P_OFFL_L2__NO2", Name: "product"}}
}

func someReading() airquality.Reading {
	return airquality.NewReading(map[airquality.Pollutant]float64{
		airquality.PollutantNO2: 2e-5,
		airquality.PollutantCO:  5e-5,
		airquality.PollutantO3:  1e-4,
		airquality.PollutantSO2: 1e-5,
	})
}

func TestService_FirstProviderWins(t *testing.T) {
	a := &fakeProvider{name: "a", refs: someRefs(), reading: someReading()}
	b := &fakeProvider{name: "b", refs: someRefs(), reading: someReading()}

	record := newTestService(a, b).Acquire(context.Background(), mustCoordinates(t, 52, 4, 10))

	assert.Equal(t, "Sentinel-5P (a)", record.SourceLabel)
	assert.Equal(t, 100, record.Index)
	assert.Equal(t, airquality.CategoryModerate, record.Category)
	assert.Equal(t, airquality.RecommendationOf(100), record.Recommendation)
	assert.Equal(t, fixedNow, record.Timestamp)
	assert.Equal(t, 10.0, record.RadiusKm)
	assert.Zero(t, b.queries.Load())
}

func TestService_QueriesWithBoundingBoxAndWindow(t *testing.T) {
	a := &fakeProvider{name: "a", refs: someRefs(), reading: someReading()}
	c := mustCoordinates(t, 52, 4, 11.1)

	newTestService(a).Acquire(context.Background(), c)

	assert.Equal(t, c.BoundingBox(), a.gotBBox)
	assert.Equal(t, fixedNow, a.gotRange.End)
	assert.Equal(t, fixedNow.AddDate(0, 0, -7), a.gotRange.Start)
}

func TestService_FallsThroughInOrder(t *testing.T) {
	empty := &fakeProvider{name: "a"}
	failing := &fakeProvider{name: "b", queryErr: errors.New("connection refused")}
	working := &fakeProvider{name: "c", refs: someRefs(), reading: someReading()}

	record := newTestService(empty, failing, working).Acquire(context.Background(), mustCoordinates(t, 52, 4, 5))

	assert.Equal(t, "Sentinel-5P (c)", record.SourceLabel)
	assert.Equal(t, int32(1), empty.queries.Load())
	assert.Equal(t, int32(1), failing.queries.Load(), "no retries within a tier")
	assert.Zero(t, empty.extracts.Load())
}

func TestService_ExtractErrorAdvances(t *testing.T) {
	a := &fakeProvider{name: "a", refs: someRefs(), extractErr: errors.New("corrupt product")}
	b := &fakeProvider{name: "b", refs: someRefs(), reading: someReading()}

	record := newTestService(a, b).Acquire(context.Background(), mustCoordinates(t, 52, 4, 5))

	assert.Equal(t, "Sentinel-5P (b)", record.SourceLabel)
}

func TestService_InvalidReadingAdvances(t *testing.T) {
	bad := airquality.NewReading(map[airquality.Pollutant]float64{airquality.PollutantNO2: math.NaN()})
	a := &fakeProvider{name: "a", refs: someRefs(), reading: bad}

	record := newTestService(a).Acquire(context.Background(), mustCoordinates(t, 52, 4, 5))

	assert.Equal(t, airquality.LabelSyntheticEstimate, record.SourceLabel)
}

func TestService_PartialProviderReadingIsZeroFilled(t *testing.T) {
	partial := airquality.NewPartialReading(map[airquality.Pollutant]float64{airquality.PollutantNO2: 4e-5})
	a := &fakeProvider{name: "a", refs: someRefs(), reading: partial}

	record := newTestService(a).Acquire(context.Background(), mustCoordinates(t, 52, 4, 5))

	require.True(t, record.Reading.Complete())
	assert.Zero(t, record.Reading.Density(airquality.PollutantHCHO))
	assert.Equal(t, 60, record.Index)
}

func TestService_AllProvidersFailUsesSynthesizer(t *testing.T) {
	providers := []airquality.Provider{
		&fakeProvider{name: "a", queryErr: errors.New("503")},
		&fakeProvider{name: "b", queryErr: errors.New("timeout")},
		&fakeProvider{name: "c", queryErr: errors.New("unauthorized")},
	}
	c := mustCoordinates(t, 19.4326, -99.1332, 5)

	record := newTestService(providers...).Acquire(context.Background(), c)

	assert.Equal(t, airquality.LabelSyntheticEstimate, record.SourceLabel)
	assert.Equal(t, airquality.SynthesizeRealistic(c, fixedNow).Densities(), record.Reading.Densities())
	assert.Equal(t, airquality.CategoryOf(record.Index), record.Category)
	assert.GreaterOrEqual(t, record.Index, 0)
	assert.LessOrEqual(t, record.Index, airquality.MaxIndex)
	for _, p := range airquality.Pollutants {
		assert.GreaterOrEqual(t, record.Reading.Density(p), 0.0)
	}
}

func TestService_NotConfiguredProviderIsSkipped(t *testing.T) {
	skipped := &fakeProvider{name: "a", queryErr: airquality.ErrProviderNotConfigured}
	b := &fakeProvider{name: "b", refs: someRefs(), reading: someReading()}

	record := newTestService(skipped, b).Acquire(context.Background(), mustCoordinates(t, 52, 4, 5))

	assert.Equal(t, "Sentinel-5P (b)", record.SourceLabel)
}

func TestService_TimeoutAdvancesToNextTier(t *testing.T) {
	slow := &fakeProvider{name: "a", block: true}
	b := &fakeProvider{name: "b", refs: someRefs(), reading: someReading()}

	start := time.Now()
	record := newTestService(slow, b).Acquire(context.Background(), mustCoordinates(t, 52, 4, 5))

	assert.Equal(t, "Sentinel-5P (b)", record.SourceLabel)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestService_CancelledRequestStillReturnsRecord(t *testing.T) {
	a := &fakeProvider{name: "a", refs: someRefs(), reading: someReading()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	record := newTestService(a).Acquire(ctx, mustCoordinates(t, 52, 4, 5))

	assert.Equal(t, airquality.LabelSyntheticEstimate, record.SourceLabel)
	assert.Zero(t, a.queries.Load())
}

func TestService_MockModeSkipsProviders(t *testing.T) {
	a := &fakeProvider{name: "a", refs: someRefs(), reading: someReading()}
	svc := airquality.NewService(airquality.ServiceConfig{
		Providers:   []airquality.Provider{a},
		Logger:      zerolog.New(io.Discard),
		Clock:       func() time.Time { return fixedNow },
		UseMockData: true,
	})
	c := mustCoordinates(t, 10, 20, 5)

	record := svc.Acquire(context.Background(), c)

	assert.Equal(t, airquality.LabelSyntheticMock, record.SourceLabel)
	assert.Equal(t, airquality.SynthesizeBasic(c).Densities(), record.Reading.Densities())
	assert.Zero(t, a.queries.Load())
}

func TestService_NoProvidersIsDeterministic(t *testing.T) {
	svc := newTestService()
	c := mustCoordinates(t, -33.87, 151.21, 5)

	first := svc.Acquire(context.Background(), c)
	second := svc.Acquire(context.Background(), c)

	assert.Equal(t, first, second)
}

func TestService_RecordsMetrics(t *testing.T) {
	metrics, err := airquality.NewTierMetrics()
	require.NoError(t, err)

	svc := airquality.NewService(airquality.ServiceConfig{
		Providers: []airquality.Provider{&fakeProvider{name: "a"}},
		Logger:    zerolog.New(io.Discard),
		Metrics:   metrics,
	})

	assert.NotPanics(t, func() {
		svc.Acquire(context.Background(), mustCoordinates(t, 1, 1, 1))
	})
}

func TestOutcomeKind_String(t *testing.T) {
	assert.Equal(t, "found", airquality.OutcomeFound.String())
	assert.Equal(t, "empty", airquality.OutcomeEmpty.String())
	assert.Equal(t, "transient_error", airquality.OutcomeTransient.String())
	assert.Equal(t, "skipped", airquality.OutcomeSkipped.String())
}
