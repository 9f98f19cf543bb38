package otel

import (
	"context"
	"sync"
	"testing"

	phoneverify "github.com/MrEthical07/phoneverify"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot phoneverify.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() phoneverify.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := phoneverify.MetricsSnapshot{
		Counters:   make(map[phoneverify.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[phoneverify.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newMeter(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader, provider
}

// findPoint returns the value of the data point on name whose attribute key
// equals value. An empty key matches a point without attributes.
func findPoint(rm metricdata.ResourceMetrics, name, key, value string) (int64, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			var points []metricdata.DataPoint[int64]
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				points = data.DataPoints
			case metricdata.Gauge[int64]:
				points = data.DataPoints
			}
			for _, dp := range points {
				if key == "" && dp.Attributes.Len() == 0 {
					return dp.Value, true
				}
				if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
					return dp.Value, true
				}
			}
		}
	}
	return 0, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newMeter(t)

	src := &fakeSource{
		snapshot: phoneverify.MetricsSnapshot{
			Counters: map[phoneverify.MetricID]uint64{
				phoneverify.MetricCodeIssued: 3,
			},
			Histograms: map[phoneverify.MetricID][]uint64{
				phoneverify.MetricIssueLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(provider.Meter("phoneverify-test"), src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	cases := []struct {
		name, key, value string
		want             int64
	}{
		{"phoneverify_issuance_total", "outcome", "issued", 3},
		{"phoneverify_issuance_total", "outcome", "delivery_failed", 0},
		{"phoneverify_phone_bound_total", "", "", 0},
		{"phoneverify_issue_latency_seconds_bucket", "le", "0.01", 1},
		{"phoneverify_issue_latency_seconds_bucket", "le", "+Inf", 8},
		{"phoneverify_issue_latency_seconds_count", "", "", 8},
		{"phoneverify_audit_dropped_total", "", "", 1},
	}
	for _, tc := range cases {
		got, ok := findPoint(rm, tc.name, tc.key, tc.value)
		if !ok || got != tc.want {
			t.Fatalf("%s{%s=%q}: expected %d, got %d (found=%v)", tc.name, tc.key, tc.value, tc.want, got, ok)
		}
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newMeter(t)

	if _, err := NewOTelExporterFromSource(provider.Meter("phoneverify-test"), nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newMeter(t)

	src := &fakeSource{
		snapshot: phoneverify.MetricsSnapshot{
			Counters: map[phoneverify.MetricID]uint64{
				phoneverify.MetricCodeIssued: 1,
			},
			Histograms: map[phoneverify.MetricID][]uint64{
				phoneverify.MetricDeliveryLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(provider.Meter("phoneverify-test"), src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() { _ = exp.Close() }()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			v := uint64(i + 1)
			src.mu.Lock()
			src.snapshot.Counters[phoneverify.MetricCodeIssued] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		})
	}
	wg.Wait()
}
