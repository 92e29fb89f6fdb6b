// Copyright 2026 The Alt Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package hps

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kaikei-e/alt-hps/internal/clog"
)

// semMetrics bundles the OTel instruments HPS emits, modeled directly on
// the teacher's o11y/monitoring.go house style (otel.Meter, Int64Counter,
// Float64Histogram). Unlike the teacher, which reads a package-global
// otel.GetMeterProvider(), a Semaphore takes its Meter explicitly via
// Config: a reusable library should not silently depend on global OTel
// state. A nil Meter (the default) disables metrics entirely.
type semMetrics struct {
	waitSeconds       metric.Float64Histogram
	preemptionTotal   metric.Int64Counter
	promotionTotal    metric.Int64Counter
	guaranteedBWTotal metric.Int64Counter

	attrs []attribute.KeyValue
}

func newSemMetrics(meter metric.Meter, name string, s *Semaphore) *semMetrics {
	if meter == nil {
		return nil
	}
	m := &semMetrics{attrs: []attribute.KeyValue{attribute.String("semaphore", name)}}

	var err error
	m.waitSeconds, err = meter.Float64Histogram(
		"hps.wait_seconds",
		metric.WithDescription("Time a caller was parked before Acquire returned"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil
	}
	m.preemptionTotal, err = meter.Int64Counter(
		"hps.preemption_total",
		metric.WithDescription("Number of BE requests preempted for RT priority"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil
	}
	m.promotionTotal, err = meter.Int64Counter(
		"hps.promotion_total",
		metric.WithDescription("Number of BE requests promoted into the RT queue"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil
	}
	m.guaranteedBWTotal, err = meter.Int64Counter(
		"hps.guaranteed_bandwidth_total",
		metric.WithDescription("Number of times guaranteed bandwidth forced a BE wake"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil
	}

	rtDepth, err := meter.Int64ObservableGauge(
		"hps.queue_depth.rt",
		metric.WithDescription("Current depth of the RT priority queue"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil
	}
	beDepth, err := meter.Int64ObservableGauge(
		"hps.queue_depth.be",
		metric.WithDescription("Current depth of the BE priority queue"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil
	}
	_, err = meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		status := s.QueueStatus()
		o.ObserveInt64(rtDepth, int64(status.RTQueue), metric.WithAttributes(
			append(append([]attribute.KeyValue{}, m.attrs...), attribute.String("class", "rt"))...))
		o.ObserveInt64(beDepth, int64(status.BEQueue), metric.WithAttributes(
			append(append([]attribute.KeyValue{}, m.attrs...), attribute.String("class", "be"))...))
		return nil
	}, rtDepth, beDepth)
	if err != nil {
		return nil
	}

	return m
}

func (m *semMetrics) recordWait(ctx context.Context, class Class, waitSeconds float64) {
	if m == nil {
		return
	}
	attrs := append(append([]attribute.KeyValue{}, m.attrs...), attribute.String("class", class.String()))
	m.waitSeconds.Record(ctx, waitSeconds, metric.WithAttributes(attrs...))
}

func (m *semMetrics) recordPreemption(ctx context.Context) {
	if m == nil {
		return
	}
	m.preemptionTotal.Add(ctx, 1, metric.WithAttributes(m.attrs...))
}

func (m *semMetrics) recordPromotion(ctx context.Context, count int) {
	if m == nil || count == 0 {
		return
	}
	m.promotionTotal.Add(ctx, int64(count), metric.WithAttributes(m.attrs...))
}

func (m *semMetrics) recordGuaranteedBandwidth(ctx context.Context) {
	if m == nil {
		return
	}
	m.guaranteedBWTotal.Add(ctx, 1, metric.WithAttributes(m.attrs...))
	clog.Infof(ctx, "hps: guaranteed bandwidth activated")
}
