package airquality

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/ecoshield360/ecoshield/internal/airquality"

// TierMetrics records the outcome of each pipeline tier.
type TierMetrics struct {
	attempts metric.Int64Counter
	duration metric.Float64Histogram
}

// NewTierMetrics creates the pipeline instruments on the global meter provider.
func NewTierMetrics() (*TierMetrics, error) {
	meter := otel.Meter(instrumentationName)

	attempts, err := meter.Int64Counter(
		"airquality.tier.attempts",
		metric.WithDescription("Acquisition attempts per tier and outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"airquality.tier.duration",
		metric.WithDescription("Duration of acquisition attempts in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &TierMetrics{attempts: attempts, duration: duration}, nil
}

// Record counts one attempt. A nil receiver records nothing.
func (m *TierMetrics) Record(tier string, kind OutcomeKind, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("airquality.tier", tier),
		attribute.String("airquality.outcome", kind.String()),
	)
	// Background context: a cancelled request must still be counted.
	ctx := context.Background()
	m.attempts.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}
