package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric instrument names.
const (
	MetricLookups         = "cache.lookups"
	MetricProducerRuns    = "cache.producer.runs"
	MetricProducerErrors  = "cache.producer.errors"
	MetricProducerLatency = "cache.producer.duration"
	MetricRemovals        = "cache.removals"
)

// Metrics records cache activity.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
// - Cardinality: keys are never recorded as attributes.
type Metrics interface {
	// RecordLookup records a hit or miss on a read path.
	RecordLookup(ctx context.Context, meta OpMeta, hit bool)

	// RecordProduce records one producer run and its outcome.
	RecordProduce(ctx context.Context, meta OpMeta, duration time.Duration, err error)

	// RecordRemoval records n entries removed by the given operation.
	RecordRemoval(ctx context.Context, meta OpMeta, n int)
}

type metricsImpl struct {
	lookups      metric.Int64Counter
	runs         metric.Int64Counter
	errors       metric.Int64Counter
	durationHist metric.Float64Histogram
	removals     metric.Int64Counter
}

// NewMetrics creates the cache instruments on the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	return newMetrics(meter)
}

func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	m := &metricsImpl{}
	var err error

	if m.lookups, err = meter.Int64Counter(MetricLookups,
		metric.WithDescription("Cache read-path lookups by outcome"),
		metric.WithUnit("{lookup}"),
	); err != nil {
		return nil, err
	}

	if m.runs, err = meter.Int64Counter(MetricProducerRuns,
		metric.WithDescription("Producer invocations on the miss path"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}

	if m.errors, err = meter.Int64Counter(MetricProducerErrors,
		metric.WithDescription("Producer invocations that returned an error"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}

	if m.durationHist, err = meter.Float64Histogram(MetricProducerLatency,
		metric.WithDescription("Producer run duration"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.removals, err = meter.Int64Counter(MetricRemovals,
		metric.WithDescription("Entries removed by forget, group invalidation, clear and purge"),
		metric.WithUnit("{entry}"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func baseAttrs(meta OpMeta) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("cache.op", meta.Op)}
	if meta.Cache != "" {
		attrs = append(attrs, attribute.String("cache.name", meta.Cache))
	}
	return attrs
}

func (m *metricsImpl) RecordLookup(ctx context.Context, meta OpMeta, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	attrs := append(baseAttrs(meta), attribute.String("cache.result", result))
	m.lookups.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *metricsImpl) RecordProduce(ctx context.Context, meta OpMeta, duration time.Duration, err error) {
	opt := metric.WithAttributes(baseAttrs(meta)...)

	m.runs.Add(ctx, 1, opt)
	if err != nil {
		m.errors.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Microseconds())/1000, opt)
}

func (m *metricsImpl) RecordRemoval(ctx context.Context, meta OpMeta, n int) {
	if n <= 0 {
		return
	}
	m.removals.Add(ctx, int64(n), metric.WithAttributes(baseAttrs(meta)...))
}

type noopMetrics struct{}

func (noopMetrics) RecordLookup(context.Context, OpMeta, bool)                  {}
func (noopMetrics) RecordProduce(context.Context, OpMeta, time.Duration, error) {}
func (noopMetrics) RecordRemoval(context.Context, OpMeta, int)                  {}
