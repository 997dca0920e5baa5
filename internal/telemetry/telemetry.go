package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Telemetry holds the service's metric instruments. A nil or zero-value
// Telemetry (telemetry disabled) is safe to use; every record method is a
// no-op then.
type Telemetry struct {
	meter metric.Meter

	jobsTotal     metric.Int64Counter
	jobsActive    metric.Int64UpDownCounter
	jobDuration   metric.Float64Histogram
	uploadedBytes metric.Int64Counter
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
}

// New sets up the Prometheus exporter and the meter provider.
func New(_ context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(runtime.WithMeterProvider(meterProvider)); err != nil {
		return nil, fmt.Errorf("failed to start runtime instrumentation: %w", err)
	}

	t := &Telemetry{meter: otel.Meter(cfg.ServiceName)}
	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return t, nil
}

func (t *Telemetry) initializeMetrics() error {
	var err error

	if t.jobsTotal, err = t.meter.Int64Counter("transloader_jobs_total",
		metric.WithDescription("Transfer jobs finished, by final status")); err != nil {
		return err
	}

	if t.jobsActive, err = t.meter.Int64UpDownCounter("transloader_jobs_active",
		metric.WithDescription("Transfer jobs currently being processed")); err != nil {
		return err
	}

	if t.jobDuration, err = t.meter.Float64Histogram("transloader_job_duration_seconds",
		metric.WithDescription("End-to-end transfer job duration"),
		metric.WithUnit("s")); err != nil {
		return err
	}

	if t.uploadedBytes, err = t.meter.Int64Counter("transloader_uploaded_bytes_total",
		metric.WithDescription("Bytes handed to the artifact store")); err != nil {
		return err
	}

	return nil
}

// MetricsHandler serves the Prometheus scrape endpoint.
func (t *Telemetry) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordJobStart marks a job as in-flight.
func (t *Telemetry) RecordJobStart(ctx context.Context) {
	if t == nil {
		return
	}

	if t.jobsActive != nil {
		t.jobsActive.Add(ctx, 1)
	}
}

// RecordJobEnd marks a job as finished with its final status.
func (t *Telemetry) RecordJobEnd(ctx context.Context, status string, duration time.Duration) {
	if t == nil {
		return
	}

	if t.jobsActive != nil {
		t.jobsActive.Add(ctx, -1)
	}

	if t.jobsTotal != nil {
		t.jobsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}

	if t.jobDuration != nil {
		t.jobDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("status", status)))
	}
}

// RecordUpload counts bytes shipped to the artifact store.
func (t *Telemetry) RecordUpload(ctx context.Context, bytes int64) {
	if t == nil {
		return
	}

	if t.uploadedBytes != nil {
		t.uploadedBytes.Add(ctx, bytes)
	}
}
