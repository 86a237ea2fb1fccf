// Package observe provides application-wide observability primitives for
// loquax: OpenTelemetry metrics and tracing for the transcription pipeline.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that long batch runs can
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all loquax metrics.
const meterName = "github.com/MrWong99/loquax"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ExtractDuration tracks ffmpeg audio extraction latency.
	ExtractDuration metric.Float64Histogram

	// RecognizeDuration tracks end-to-end recognition latency, fallback
	// attempts included.
	RecognizeDuration metric.Float64Histogram

	// CorrectDuration tracks the full terminology correction stage.
	CorrectDuration metric.Float64Histogram

	// RenderDuration tracks document rendering and writing.
	RenderDuration metric.Float64Histogram

	// --- Counters ---

	// RecognitionAttempts counts per-tier recognition attempts. Use with
	// attributes:
	//   attribute.String("tier", ...), attribute.String("status", ...)
	RecognitionAttempts metric.Int64Counter

	// CorrectionBatches counts correction batches. Use with attribute:
	//   attribute.String("status", "applied"|<skip reason>)
	CorrectionBatches metric.Int64Counter

	// LedgerContradictions counts conflicting term corrections.
	LedgerContradictions metric.Int64Counter

	// PreSubstitutions counts ledger rewrites applied before dispatch.
	PreSubstitutions metric.Int64Counter

	// DocumentSegments counts segments in finished documents.
	DocumentSegments metric.Int64Counter
}

// stageBuckets defines histogram bucket boundaries (in seconds) sized for
// batch transcription stages, which run seconds to minutes.
var stageBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ExtractDuration, err = m.Float64Histogram("loquax.extract.duration",
		metric.WithDescription("Latency of audio extraction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecognizeDuration, err = m.Float64Histogram("loquax.recognize.duration",
		metric.WithDescription("Latency of speech recognition including fallback attempts."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CorrectDuration, err = m.Float64Histogram("loquax.correct.duration",
		metric.WithDescription("Latency of terminology correction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RenderDuration, err = m.Float64Histogram("loquax.render.duration",
		metric.WithDescription("Latency of document rendering and writing."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.RecognitionAttempts, err = m.Int64Counter("loquax.recognition.attempts",
		metric.WithDescription("Total recognition attempts by tier and status."),
	); err != nil {
		return nil, err
	}
	if met.CorrectionBatches, err = m.Int64Counter("loquax.correction.batches",
		metric.WithDescription("Total correction batches by status."),
	); err != nil {
		return nil, err
	}
	if met.LedgerContradictions, err = m.Int64Counter("loquax.ledger.contradictions",
		metric.WithDescription("Total conflicting term corrections."),
	); err != nil {
		return nil, err
	}
	if met.PreSubstitutions, err = m.Int64Counter("loquax.ledger.presubstitutions",
		metric.WithDescription("Total ledger rewrites applied before dispatch."),
	); err != nil {
		return nil, err
	}
	if met.DocumentSegments, err = m.Int64Counter("loquax.document.segments",
		metric.WithDescription("Total segments in finished documents."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordRecognitionAttempt records one tier attempt with the standard
// attribute set.
func (m *Metrics) RecordRecognitionAttempt(ctx context.Context, tier, status string) {
	m.RecognitionAttempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tier", tier),
			attribute.String("status", status),
		),
	)
}

// RecordCorrectionBatch records one correction batch outcome.
func (m *Metrics) RecordCorrectionBatch(ctx context.Context, status string) {
	m.CorrectionBatches.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
