// Copyright 2026 The Alt Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package monitoring provides the gateway-level OpenTelemetry bootstrap for
// cmd/hpsctl: resource detection, a periodic-reader MeterProvider, and the
// request-level instruments a caller records around hps.Semaphore.Acquire
// (admitted/rejected counts, end-to-end wait latency). This is deliberately
// separate from hps/metrics.go, which instruments the semaphore itself
// (queue depth, preemption, promotion, guaranteed bandwidth): hps is a
// library and takes its metric.Meter via Config, never touching process-
// global OTel state; monitoring is the "external collaborator" that wires
// an actual exporter, matching spec.md §1's framing of metrics backends as
// out of HPS's own scope.
package monitoring

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	smetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"

	"github.com/kaikei-e/alt-hps/internal/clog"
)

var (
	osFamilyKey = "os_family"
	versionKey  = "hpsctl_version"
	classKey    = "class"
	outcomeKey  = "outcome"

	meter = otel.Meter("github.com/kaikei-e/alt-hps")

	// requestCount tracks admitted/rejected acquire outcomes.
	requestCount metric.Int64Counter
	// requestLatency tracks end-to-end acquire wait (a proxy for TTFT on
	// the RT class).
	requestLatency metric.Float64Histogram
	// leakCount adds up the held slots observed past LeakThreshold in each
	// CheckLeaks scan reported through ExportLeakMetrics.
	leakCount metric.Int64Counter

	// mu protects staticMetricLabels.
	mu sync.Mutex
	// staticMetricLabels are attached to every instrument recorded via
	// this package.
	staticMetricLabels []attribute.KeyValue
)

func otelHandleError(ctx context.Context) otel.ErrorHandlerFunc {
	return func(err error) {
		clog.Warningf(ctx, "failed to export to OpenTelemetry: %v", err)
	}
}

// SetupViews registers the gateway-level instruments and their aggregation
// views. Can only be run once per process.
func SetupViews(ctx context.Context, version string, labels map[string]string) ([]smetric.View, error) {
	otel.SetErrorHandler(otelHandleError(ctx))

	mu.Lock()
	defer mu.Unlock()
	if len(staticMetricLabels) != 0 {
		return nil, errors.New("monitoring views were already set up, cannot overwrite")
	}

	staticMetricLabels = []attribute.KeyValue{
		attribute.String(osFamilyKey, runtime.GOOS),
		attribute.String(versionKey, version),
	}
	for k, v := range labels {
		staticMetricLabels = append(staticMetricLabels, attribute.String(k, v))
	}
	clog.Infof(ctx, "static labels for monitoring were set: %v", staticMetricLabels)

	var err error
	requestCount, err = meter.Int64Counter(
		"gateway.request.count",
		metric.WithDescription("Number of acquire attempts, by class and outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}
	requestLatency, err = meter.Float64Histogram(
		"gateway.request.wait_latency",
		metric.WithDescription("Time an admitted request waited for a slot"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	leakCount, err = meter.Int64Counter(
		"gateway.leak.count",
		metric.WithDescription("Held slots observed past the configured leak threshold"),
		metric.WithUnit("{slot}"),
	)
	if err != nil {
		return nil, err
	}

	views := []smetric.View{
		func(i smetric.Instrument) (smetric.Stream, bool) {
			s := smetric.Stream{Name: i.Name, Description: i.Description, Unit: i.Unit}
			switch i.Name {
			case "gateway.request.wait_latency":
				s.Aggregation = smetric.AggregationExplicitBucketHistogram{
					Boundaries: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
				}
			case "gateway.request.count", "gateway.leak.count":
				s.Aggregation = smetric.AggregationSum{}
			default:
				return s, false
			}
			return s, true
		},
	}
	return views, nil
}

// NewMeterProvider builds a MeterProvider that periodically flushes to
// exporter, tagged with resource attributes for serviceName.
func NewMeterProvider(ctx context.Context, serviceName string, exporter smetric.Exporter, views []smetric.View) (*smetric.MeterProvider, error) {
	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithOS(),
		resource.WithHost(),
		resource.WithFromEnv(),
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
	)
	if err != nil && !errors.Is(err, resource.ErrPartialResource) && !errors.Is(err, resource.ErrSchemaURLConflict) {
		return nil, err
	}
	provider := smetric.NewMeterProvider(
		smetric.WithResource(res),
		smetric.WithReader(smetric.NewPeriodicReader(exporter, smetric.WithInterval(15*time.Second))),
		smetric.WithView(views...),
	)
	return provider, nil
}

// ExportRequestMetrics records one acquire outcome: admitted (with its
// queue wait) or rejected (ErrQueueFull / context cancellation).
func ExportRequestMetrics(ctx context.Context, class string, wait time.Duration, outcome string) {
	if !enabled() {
		return
	}
	attrs := append(append([]attribute.KeyValue{}, staticMetricLabels...),
		attribute.String(classKey, class),
		attribute.String(outcomeKey, outcome),
	)
	requestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	if outcome == "admitted" {
		requestLatency.Record(ctx, wait.Seconds(), metric.WithAttributes(attrs...))
	}
}

// ExportLeakMetrics records the number of leaked slots found in one
// CheckLeaks scan.
func ExportLeakMetrics(ctx context.Context, n int) {
	if !enabled() || n == 0 {
		return
	}
	attrs := append([]attribute.KeyValue{}, staticMetricLabels...)
	leakCount.Add(ctx, int64(n), metric.WithAttributes(attrs...))
}

func enabled() bool {
	return otel.GetMeterProvider() != nil && requestCount != nil && requestLatency != nil && leakCount != nil
}
