package authcore

import (
	"context"
	"testing"
	"time"
)

func TestMetricsIncAndValue(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginFailure)

	if got := m.Value(MetricLoginSuccess); got != 2 {
		t.Fatalf("expected 2 login successes, got %d", got)
	}
	if got := m.Value(MetricLoginFailure); got != 1 {
		t.Fatalf("expected 1 login failure, got %d", got)
	}
	if got := m.Value(MetricLogout); got != 0 {
		t.Fatalf("expected untouched counter at 0, got %d", got)
	}
}

func TestMetricsDisabledIsNoOp(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})

	m.Inc(MetricLoginSuccess)
	m.Observe(MetricLoginLatency, 10*time.Millisecond)

	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("expected disabled metrics to stay at 0, got %d", got)
	}

	snap := m.Snapshot()
	if len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestMetricsNilReceiverSafe(t *testing.T) {
	var m *Metrics

	m.Inc(MetricLoginSuccess)
	m.Observe(MetricLoginLatency, time.Millisecond)
	if m.Value(MetricLoginSuccess) != 0 {
		t.Fatal("expected nil metrics to read 0")
	}
	if m.Enabled() || m.LatencyEnabled() {
		t.Fatal("expected nil metrics to report disabled")
	}
}

func TestMetricsSnapshotCoversAllCounters(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricRefreshSuccess)

	snap := m.Snapshot()
	if len(snap.Counters) != int(metricIDCount) {
		t.Fatalf("expected %d counters, got %d", metricIDCount, len(snap.Counters))
	}
	if snap.Counters[MetricRefreshSuccess] != 1 {
		t.Fatalf("expected refresh success at 1, got %d", snap.Counters[MetricRefreshSuccess])
	}
}

func TestMetricsLatencyHistogramBuckets(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	m.Observe(MetricLoginLatency, 3*time.Millisecond)
	m.Observe(MetricLoginLatency, 40*time.Millisecond)
	m.Observe(MetricLoginLatency, 40*time.Millisecond)
	m.Observe(MetricLoginLatency, 2*time.Second)

	buckets := m.Snapshot().Histograms[MetricLoginLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("expected %d buckets, got %d", histBucketCount, len(buckets))
	}
	if buckets[0] != 1 {
		t.Fatalf("expected one sample <= 5ms, got %d", buckets[0])
	}
	if buckets[3] != 2 {
		t.Fatalf("expected two samples <= 50ms, got %d", buckets[3])
	}
	if buckets[7] != 1 {
		t.Fatalf("expected one overflow sample, got %d", buckets[7])
	}
}

func TestMetricsLatencyRequiresHistogramOptIn(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	m.Observe(MetricLoginLatency, time.Millisecond)
	if hist := m.Snapshot().Histograms[MetricLoginLatency]; len(hist) != 0 {
		t.Fatalf("expected no histogram without opt-in, got %v", hist)
	}
}

func TestEngineCountsLoginOutcomes(t *testing.T) {
	cfg := baseTestConfig()
	cfg.Metrics.Enabled = true
	store := newMockUserStore()
	seedActiveUser(t, store, "alice@example.com", "correct-password-123")

	engine, _, done := newTestEngine(t, cfg, store, func(b *Builder) { b.WithMetricsEnabled(true) })
	defer done()

	if _, err := engine.Login(context.Background(), "alice@example.com", "correct-password-123", LoginOptions{}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	_, _ = engine.Login(context.Background(), "alice@example.com", "wrong-password-123", LoginOptions{})

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("expected 1 login success, got %d", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricLoginFailure] != 1 {
		t.Fatalf("expected 1 login failure, got %d", snap.Counters[MetricLoginFailure])
	}
	if snap.Counters[MetricSessionCreated] != 1 {
		t.Fatalf("expected 1 session created, got %d", snap.Counters[MetricSessionCreated])
	}
}
