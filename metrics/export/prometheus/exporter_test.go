package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	phoneverify "github.com/MrEthical07/phoneverify"
)

type fakeSource struct {
	snapshot phoneverify.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() phoneverify.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                         { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: phoneverify.MetricsSnapshot{
			Counters:   map[phoneverify.MetricID]uint64{},
			Histograms: map[phoneverify.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCountersAndHistograms(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: phoneverify.MetricsSnapshot{
			Counters: map[phoneverify.MetricID]uint64{
				phoneverify.MetricCodeIssued:    7,
				phoneverify.MetricAbuseDetected: 2,
			},
			Histograms: map[phoneverify.MetricID][]uint64{
				phoneverify.MetricDeliveryLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"# TYPE phoneverify_issuance_total counter",
		`phoneverify_issuance_total{outcome="issued"} 7`,
		`phoneverify_issuance_total{outcome="abuse_detected"} 2`,
		`phoneverify_consume_total{outcome="replay"} 0`,
		"phoneverify_phone_bound_total 0",
		"phoneverify_delivery_latency_seconds_bucket{le=\"0.01\"} 1",
		"phoneverify_delivery_latency_seconds_bucket{le=\"1\"} 28",
		"phoneverify_delivery_latency_seconds_bucket{le=\"+Inf\"} 36",
		"phoneverify_delivery_latency_seconds_sum 0",
		"phoneverify_delivery_latency_seconds_count 36",
		"phoneverify_issue_latency_seconds_count 0",
		"phoneverify_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestRenderWritesEachFamilyHeaderOnce(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{dropped: 1})

	out := exp.Render()
	if n := strings.Count(out, "# HELP phoneverify_submission_total "); n != 1 {
		t.Fatalf("expected one HELP line for the submission family, got %d", n)
	}
	if n := strings.Count(out, "phoneverify_submission_total{"); n != 4 {
		t.Fatalf("expected four submission series, got %d", n)
	}
}

func TestEscapeHelp(t *testing.T) {
	if got := escapeHelp("a\\b\nc"); got != `a\\b\nc` {
		t.Fatalf("unexpected escape: %q", got)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: phoneverify.MetricsSnapshot{
			Counters:   map[phoneverify.MetricID]uint64{phoneverify.MetricCodeIssued: 1},
			Histograms: map[phoneverify.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: phoneverify.MetricsSnapshot{
			Counters: map[phoneverify.MetricID]uint64{
				phoneverify.MetricCodeIssued:       1000,
				phoneverify.MetricCodeValidated:    800,
				phoneverify.MetricCodeMismatch:     40,
				phoneverify.MetricCodeConsumed:     790,
				phoneverify.MetricAbuseDetected:    12,
				phoneverify.MetricDeliveryFailed:   3,
				phoneverify.MetricNoOngoingProcess: 9,
			},
			Histograms: map[phoneverify.MetricID][]uint64{
				phoneverify.MetricIssueLatency:    {10, 20, 30, 40, 50, 60, 70, 80},
				phoneverify.MetricDeliveryLatency: {5, 5, 5, 5, 5, 5, 5, 5},
			},
		},
	})

	b.ReportAllocs()
	for b.Loop() {
		_ = exp.Render()
	}
}
