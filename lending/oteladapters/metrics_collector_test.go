package oteladapters_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/branchlib/lending-go/lending/oteladapters"
)

func Test_NewMetricsCollector_Construction(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("lending")

	collector := oteladapters.NewMetricsCollector(meter)

	assert.NotNil(t, collector)
}

func Test_MetricsCollector_RecordDuration(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("lending")

	collector := oteladapters.NewMetricsCollector(meter)

	labels := map[string]string{
		"operation": "checkout",
		"status":    "success",
	}

	collector.RecordDuration("lending_operation_duration_seconds", 150*time.Millisecond, labels)

	var resourceMetrics metricdata.ResourceMetrics
	err := reader.Collect(context.Background(), &resourceMetrics)
	require.NoError(t, err, "failed to collect metrics")

	histogram := findHistogramMetric(t, resourceMetrics, "lending_operation_duration_seconds")
	require.Len(t, histogram.DataPoints, 1, "expected exactly one data point")

	dataPoint := histogram.DataPoints[0]

	// 150 ms recorded as 0.15 seconds
	assert.Equal(t, uint64(1), dataPoint.Count)
	assert.InDelta(t, 0.15, dataPoint.Sum, 0.001)

	expectedAttrs := attribute.NewSet(
		attribute.String("operation", "checkout"),
		attribute.String("status", "success"),
	)
	assert.True(t, dataPoint.Attributes.Equals(&expectedAttrs), "attributes should match")
}

func Test_MetricsCollector_IncrementCounter(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("lending")

	collector := oteladapters.NewMetricsCollector(meter)

	labels := map[string]string{
		"operation": "checkout",
		"status":    "rejected",
	}

	collector.IncrementCounter("lending_rule_rejections_total", labels)
	collector.IncrementCounter("lending_rule_rejections_total", labels)
	collector.IncrementCounter("lending_rule_rejections_total", labels)

	var resourceMetrics metricdata.ResourceMetrics
	err := reader.Collect(context.Background(), &resourceMetrics)
	require.NoError(t, err, "failed to collect metrics")

	counter := findCounterMetric(t, resourceMetrics, "lending_rule_rejections_total")
	require.Len(t, counter.DataPoints, 1, "expected exactly one data point")

	assert.Equal(t, int64(3), counter.DataPoints[0].Value)
}

func Test_MetricsCollector_RecordValue(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("lending")

	collector := oteladapters.NewMetricsCollector(meter)

	labels := map[string]string{"operation": "recompute_fines"}

	collector.RecordValue("lending_open_fines", 12, labels)
	collector.RecordValue("lending_open_fines", 7, labels)

	var resourceMetrics metricdata.ResourceMetrics
	err := reader.Collect(context.Background(), &resourceMetrics)
	require.NoError(t, err, "failed to collect metrics")

	gauge := findGaugeMetric(t, resourceMetrics, "lending_open_fines")
	require.Len(t, gauge.DataPoints, 1, "expected exactly one data point")

	assert.Equal(t, 7.0, gauge.DataPoints[0].Value, "a gauge keeps the last recorded value")
}

func findHistogramMetric(t *testing.T, resourceMetrics metricdata.ResourceMetrics, name string) metricdata.Histogram[float64] {
	t.Helper()

	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			if m.Name == name {
				histogram, ok := m.Data.(metricdata.Histogram[float64])
				require.True(t, ok, "metric %s should be a float64 histogram", name)

				return histogram
			}
		}
	}

	t.Fatalf("histogram metric %s not found", name)

	return metricdata.Histogram[float64]{}
}

func findCounterMetric(t *testing.T, resourceMetrics metricdata.ResourceMetrics, name string) metricdata.Sum[int64] {
	t.Helper()

	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			if m.Name == name {
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok, "metric %s should be an int64 sum", name)

				return sum
			}
		}
	}

	t.Fatalf("counter metric %s not found", name)

	return metricdata.Sum[int64]{}
}

func findGaugeMetric(t *testing.T, resourceMetrics metricdata.ResourceMetrics, name string) metricdata.Gauge[float64] {
	t.Helper()

	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			if m.Name == name {
				gauge, ok := m.Data.(metricdata.Gauge[float64])
				require.True(t, ok, "metric %s should be a float64 gauge", name)

				return gauge
			}
		}
	}

	t.Fatalf("gauge metric %s not found", name)

	return metricdata.Gauge[float64]{}
}
