// Package metrics exposes pipeline timings and outcomes through an
// OpenTelemetry meter backed by a Prometheus registry.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"interview-insights-go/internal/types"
)

type Metrics struct {
	provider      *sdkmetric.MeterProvider
	handler       http.Handler
	stageDuration metric.Float64Histogram
	jobs          metric.Int64Counter
	requests      metric.Int64Counter
}

func New() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("interview-insights-go")

	stageDuration, err := meter.Float64Histogram("pipeline.stage.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time spent in each pipeline stage"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2.5, 5, 10, 30, 60, 120, 300))
	if err != nil {
		return nil, err
	}
	jobs, err := meter.Int64Counter("pipeline.jobs",
		metric.WithDescription("Finished pipeline runs by outcome"))
	if err != nil {
		return nil, err
	}
	requests, err := meter.Int64Counter("http.requests",
		metric.WithDescription("HTTP requests by route and status"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		provider:      provider,
		handler:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		stageDuration: stageDuration,
		jobs:          jobs,
		requests:      requests,
	}, nil
}

// ObserveStage records how long a job spent in stage.
func (m *Metrics) ObserveStage(ctx context.Context, stage types.Stage, d time.Duration) {
	m.stageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("stage", string(stage))))
}

// CountJob counts a run that ended in outcome (done or error).
func (m *Metrics) CountJob(ctx context.Context, outcome types.Stage) {
	m.jobs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
}

func (m *Metrics) CountRequest(ctx context.Context, route string, status int) {
	m.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("route", route),
		attribute.Int("status", status),
	))
}

// Handler serves the Prometheus text exposition.
func (m *Metrics) Handler() http.Handler { return m.handler }

func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}
