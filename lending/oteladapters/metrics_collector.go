package oteladapters

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/branchlib/lending-go/lending/postgresengine"
)

// MetricsCollector implements postgresengine.MetricsCollector using the
// OpenTelemetry metrics API. The mapping is:
//
//	RecordDuration   -> Float64Histogram
//	IncrementCounter -> Int64Counter
//	RecordValue      -> Float64Gauge
//
// Instruments are created on demand and cached per metric name.
type MetricsCollector struct {
	meter metric.Meter

	mu         sync.Mutex
	histograms map[string]metric.Float64Histogram
	counters   map[string]metric.Int64Counter
	gauges     map[string]metric.Float64Gauge
}

// NewMetricsCollector creates a metrics collector on the given meter, which
// should come from your OpenTelemetry MeterProvider.
func NewMetricsCollector(meter metric.Meter) *MetricsCollector {
	return &MetricsCollector{
		meter:      meter,
		histograms: make(map[string]metric.Float64Histogram),
		counters:   make(map[string]metric.Int64Counter),
		gauges:     make(map[string]metric.Float64Gauge),
	}
}

// RecordDuration records a duration in seconds (OpenTelemetry convention)
// on a histogram.
func (m *MetricsCollector) RecordDuration(metricName string, duration time.Duration, labels map[string]string) {
	histogram := m.histogram(metricName)
	if histogram == nil {
		return
	}

	histogram.Record(context.Background(), duration.Seconds(), metric.WithAttributes(toAttributes(labels)...))
}

// IncrementCounter increments a monotonically increasing counter.
func (m *MetricsCollector) IncrementCounter(metricName string, labels map[string]string) {
	counter := m.counter(metricName)
	if counter == nil {
		return
	}

	counter.Add(context.Background(), 1, metric.WithAttributes(toAttributes(labels)...))
}

// RecordValue records a current value on a gauge.
func (m *MetricsCollector) RecordValue(metricName string, value float64, labels map[string]string) {
	gauge := m.gauge(metricName)
	if gauge == nil {
		return
	}

	gauge.Record(context.Background(), value, metric.WithAttributes(toAttributes(labels)...))
}

func (m *MetricsCollector) histogram(name string) metric.Float64Histogram {
	m.mu.Lock()
	defer m.mu.Unlock()

	if instrument, ok := m.histograms[name]; ok {
		return instrument
	}

	instrument, err := m.meter.Float64Histogram(name)
	if err != nil {
		return nil
	}

	m.histograms[name] = instrument

	return instrument
}

func (m *MetricsCollector) counter(name string) metric.Int64Counter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if instrument, ok := m.counters[name]; ok {
		return instrument
	}

	instrument, err := m.meter.Int64Counter(name)
	if err != nil {
		return nil
	}

	m.counters[name] = instrument

	return instrument
}

func (m *MetricsCollector) gauge(name string) metric.Float64Gauge {
	m.mu.Lock()
	defer m.mu.Unlock()

	if instrument, ok := m.gauges[name]; ok {
		return instrument
	}

	instrument, err := m.meter.Float64Gauge(name)
	if err != nil {
		return nil
	}

	m.gauges[name] = instrument

	return instrument
}

func toAttributes(labels map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for key, value := range labels {
		attrs = append(attrs, attribute.String(key, value))
	}

	return attrs
}

var _ postgresengine.MetricsCollector = (*MetricsCollector)(nil)
