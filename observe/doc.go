// Package observe provides observability primitives for cache operations.
//
// It is a pure instrumentation library: no caching, no transport, no I/O
// beyond exporter setup. The cache package consumes a Middleware built from an
// Observer to trace producer runs, count lookups and removals, and emit
// structured debug logs.
//
//	obs, err := observe.NewObserver(ctx, observe.Config{
//	    ServiceName: "users-api",
//	    Tracing:     observe.TracingConfig{Enabled: true, Exporter: "otlp", SamplePct: 0.1},
//	    Metrics:     observe.MetricsConfig{Enabled: true, Exporter: "prometheus"},
//	    Logging:     observe.LoggingConfig{Enabled: true, Level: "info"},
//	})
//	if err != nil {
//	    return err
//	}
//	defer obs.Shutdown(ctx)
//
//	mw, err := observe.MiddlewareFromObserver(obs)
package observe
