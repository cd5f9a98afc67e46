package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/voyz/tokenauth"
	"github.com/voyz/tokenauth/session"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot tokenauth.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() tokenauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := tokenauth.MetricsSnapshot{
		Counters:   make(map[tokenauth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[tokenauth.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newTestMeter() (*sdkmetric.ManualReader, metric.Meter) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return reader, provider.Meter("tokenauth-test")
}

// collected indexes data points by instrument name and attribute set.
type collected map[string]int64

func collect(t *testing.T, reader *sdkmetric.ManualReader) collected {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	out := collected{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name+"{"+dp.Attributes.Encoded(attribute.DefaultEncoder())+"}"] = dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name+"{"+dp.Attributes.Encoded(attribute.DefaultEncoder())+"}"] = dp.Value
				}
			}
		}
	}
	return out
}

func TestExporterGroupsCountersByOperation(t *testing.T) {
	reader, meter := newTestMeter()

	src := &fakeSource{
		snapshot: tokenauth.MetricsSnapshot{
			Counters: map[tokenauth.MetricID]uint64{
				tokenauth.MetricLoginSuccess:         3,
				tokenauth.MetricRefreshFailure:       2,
				tokenauth.MetricRefreshMismatch:      1,
				tokenauth.MetricSweepRemoved:         5,
				tokenauth.MetricSessionExpiredLazily: 4,
				tokenauth.MetricPersistenceFailure:   6,
			},
			Histograms: map[tokenauth.MetricID][]uint64{
				tokenauth.MetricValidateLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	got := collect(t, reader)
	want := map[string]int64{
		"tokenauth.operations{operation=login,outcome=success}":   3,
		"tokenauth.operations{operation=login,outcome=failure}":   0,
		"tokenauth.operations{operation=refresh,outcome=failure}": 2,
		"tokenauth.refresh.rejected{reason=mismatch}":             1,
		"tokenauth.sessions.expired{path=sweep}":                  5,
		"tokenauth.sessions.expired{path=lazy}":                   4,
		"tokenauth.store.failures{}":                              6,
		"tokenauth.validate.duration.bucket{le=0.005}":            1,
		"tokenauth.validate.duration.bucket{le=0.5}":              7,
		"tokenauth.validate.duration.bucket{le=+Inf}":             8,
		"tokenauth.validate.duration.count{}":                     8,
		"tokenauth.audit.dropped{}":                               1,
	}
	for key, value := range want {
		v, ok := got[key]
		if !ok {
			t.Fatalf("missing data point %s in %v", key, got)
		}
		if v != value {
			t.Fatalf("%s = %d, want %d", key, v, value)
		}
	}
	if _, ok := got["tokenauth.refresh.duration.count{}"]; ok {
		t.Fatal("histogram absent from the snapshot must not be observed")
	}
}

func TestExporterObservesNothingWhenMetricsDisabled(t *testing.T) {
	reader, meter := newTestMeter()

	exp, err := NewOTelExporterFromSource(meter, &fakeSource{})
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	if got := collect(t, reader); len(got) != 0 {
		t.Fatalf("expected no data points, got %v", got)
	}
}

func TestExporterReadsEngine(t *testing.T) {
	reader, meter := newTestMeter()

	cfg := tokenauth.DefaultConfig()
	cfg.JWT.Secret = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="
	cfg.Sweep.Enabled = false
	engine, err := tokenauth.New().WithConfig(cfg).WithStore(session.NewMemoryStore()).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()
	pair, err := engine.Login(ctx, tokenauth.Principal{ID: "user-1"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if _, err := engine.Validate(ctx, "garbage"); err == nil {
		t.Fatal("expected Validate to fail")
	}

	exp, err := NewOTelExporter(meter, engine)
	if err != nil {
		t.Fatalf("NewOTelExporter failed: %v", err)
	}
	defer exp.Close()

	got := collect(t, reader)
	for key, value := range map[string]int64{
		"tokenauth.operations{operation=login,outcome=success}":    1,
		"tokenauth.operations{operation=refresh,outcome=success}":  1,
		"tokenauth.operations{operation=validate,outcome=failure}": 1,
	} {
		if got[key] != value {
			t.Fatalf("%s = %d, want %d", key, got[key], value)
		}
	}
}

func TestExporterRejectsNilSource(t *testing.T) {
	_, meter := newTestMeter()

	if _, err := NewOTelExporterFromSource(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, meter := newTestMeter()

	src := &fakeSource{
		snapshot: tokenauth.MetricsSnapshot{
			Counters: map[tokenauth.MetricID]uint64{
				tokenauth.MetricLoginSuccess: 1,
			},
			Histograms: map[tokenauth.MetricID][]uint64{
				tokenauth.MetricValidateLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[tokenauth.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
