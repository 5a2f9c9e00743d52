package otel

import (
	"context"
	"errors"
	"testing"

	authcore "github.com/authcore-io/authcore"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	snapshot authcore.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() authcore.MetricsSnapshot { return f.snapshot }

func (f *fakeSource) AuditDropped() uint64 { return f.dropped }

func testSnapshot() authcore.MetricsSnapshot {
	return authcore.MetricsSnapshot{
		Counters: map[authcore.MetricID]uint64{
			authcore.MetricLoginSuccess: 42,
			authcore.MetricMFASuccess:   9,
		},
		Histograms: map[authcore.MetricID][]uint64{
			authcore.MetricLoginLatency: {5, 2, 0, 1, 0, 0, 0, 4},
		},
	}
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	return rm
}

func findInt64(t *testing.T, rm metricdata.ResourceMetrics, name string) (int64, bool) {
	t.Helper()

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if len(data.DataPoints) == 0 {
					return 0, false
				}
				return data.DataPoints[0].Value, true
			case metricdata.Gauge[int64]:
				if len(data.DataPoints) == 0 {
					return 0, false
				}
				return data.DataPoints[0].Value, true
			default:
				t.Fatalf("metric %s has unexpected data type %T", name, m.Data)
			}
		}
	}
	return 0, false
}

func TestNewOTelExporterValidation(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("authcore-test")

	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); !errors.Is(err, ErrNilMeter) {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
	if _, err := NewOTelExporterFromSource(meter, nil); !errors.Is(err, ErrNilSource) {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
}

func TestExporterObservesCounters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("authcore-test")

	exporter, err := NewOTelExporterFromSource(meter, &fakeSource{snapshot: testSnapshot(), dropped: 7})
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer exporter.Close()

	rm := collect(t, reader)

	if got, ok := findInt64(t, rm, "authcore_login_success_total"); !ok || got != 42 {
		t.Fatalf("expected login success counter 42, got %d (found=%v)", got, ok)
	}
	if got, ok := findInt64(t, rm, "authcore_mfa_success_total"); !ok || got != 9 {
		t.Fatalf("expected mfa success counter 9, got %d (found=%v)", got, ok)
	}
	if got, ok := findInt64(t, rm, "authcore_login_failure_total"); !ok || got != 0 {
		t.Fatalf("expected zero login failure counter, got %d (found=%v)", got, ok)
	}
	if got, ok := findInt64(t, rm, "authcore_audit_dropped_total"); !ok || got != 7 {
		t.Fatalf("expected audit dropped counter 7, got %d (found=%v)", got, ok)
	}
}

func TestExporterObservesCumulativeHistogram(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("authcore-test")

	exporter, err := NewOTelExporterFromSource(meter, &fakeSource{snapshot: testSnapshot()})
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer exporter.Close()

	rm := collect(t, reader)

	// Buckets {5,2,0,1,0,0,0,4} accumulate to 5,7,7,8,8,8,8,12.
	if got, ok := findInt64(t, rm, "authcore_login_latency_seconds_bucket_le_0_005"); !ok || got != 5 {
		t.Fatalf("expected first bucket 5, got %d (found=%v)", got, ok)
	}
	if got, ok := findInt64(t, rm, "authcore_login_latency_seconds_bucket_le_0_01"); !ok || got != 7 {
		t.Fatalf("expected second bucket 7, got %d (found=%v)", got, ok)
	}
	if got, ok := findInt64(t, rm, "authcore_login_latency_seconds_bucket_le_inf"); !ok || got != 12 {
		t.Fatalf("expected overflow bucket 12, got %d (found=%v)", got, ok)
	}
	if got, ok := findInt64(t, rm, "authcore_login_latency_seconds_count"); !ok || got != 12 {
		t.Fatalf("expected sample count 12, got %d (found=%v)", got, ok)
	}
}

func TestExporterTracksSourceBetweenCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("authcore-test")

	source := &fakeSource{snapshot: testSnapshot()}
	exporter, err := NewOTelExporterFromSource(meter, source)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer exporter.Close()

	collect(t, reader)

	source.snapshot.Counters[authcore.MetricLoginSuccess] = 100
	rm := collect(t, reader)

	if got, ok := findInt64(t, rm, "authcore_login_success_total"); !ok || got != 100 {
		t.Fatalf("expected updated counter 100, got %d (found=%v)", got, ok)
	}
}

func TestExporterCloseUnregistersCallback(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("authcore-test")

	exporter, err := NewOTelExporterFromSource(meter, &fakeSource{snapshot: testSnapshot()})
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	if err := exporter.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	rm := collect(t, reader)
	if _, ok := findInt64(t, rm, "authcore_login_success_total"); ok {
		t.Fatal("expected no observations after Close")
	}

	// Closing twice is harmless.
	if err := exporter.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestExporterNilCloseSafe(t *testing.T) {
	var exporter *OTelExporter
	if err := exporter.Close(); err != nil {
		t.Fatalf("expected nil receiver Close to be a no-op, got %v", err)
	}
}
