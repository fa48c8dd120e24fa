package observe

import (
	"context"
	"time"
)

// ProduceFunc is the signature of a producer run as seen by the Middleware.
type ProduceFunc func(ctx context.Context, meta OpMeta) (any, error)

// Middleware instruments cache operations with tracing, metrics, and logging.
//
// Contract:
//   - Concurrency: all methods are safe for concurrent use.
//   - Context: Wrap propagates the span context into the producer.
//   - Errors: producer errors are recorded and returned unchanged.
//   - Ownership: produced values pass through without modification.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a new Middleware. Nil components are replaced with
// no-op implementations.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = newNoopTracer()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// NopMiddleware returns a Middleware that records nothing.
func NopMiddleware() *Middleware {
	return NewMiddleware(nil, nil, nil)
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	metrics, err := newMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// Logger returns the middleware's logger.
func (m *Middleware) Logger() Logger {
	return m.logger
}

// Wrap wraps a producer run with a span, run metrics, and a log line.
func (m *Middleware) Wrap(fn ProduceFunc) ProduceFunc {
	return func(ctx context.Context, meta OpMeta) (any, error) {
		ctx, span := m.tracer.StartSpan(ctx, meta)
		start := time.Now()

		result, err := fn(ctx, meta)

		duration := time.Since(start)
		m.tracer.EndSpan(span, err)
		m.metrics.RecordProduce(ctx, meta, duration, err)

		fields := append(meta.Fields(), Field{Key: "duration_ms", Value: float64(duration.Milliseconds())})
		if err != nil {
			fields = append(fields, Field{Key: "error", Value: err.Error()})
			m.logger.Warn(ctx, "producer failed", fields...)
		} else {
			m.logger.Debug(ctx, "producer completed", fields...)
		}

		return result, err
	}
}

// RecordLookup records the outcome of a read-path lookup.
func (m *Middleware) RecordLookup(ctx context.Context, meta OpMeta, hit bool) {
	m.metrics.RecordLookup(ctx, meta, hit)
}

// RecordRemoval records removed entries and logs bulk removals at debug level.
func (m *Middleware) RecordRemoval(ctx context.Context, meta OpMeta, n int) {
	m.metrics.RecordRemoval(ctx, meta, n)
	if meta.Op != "forget" {
		m.logger.Debug(ctx, "entries removed", append(meta.Fields(), Field{Key: "count", Value: n})...)
	}
}
