package phoneverify

import (
	"testing"
	"time"
)

func BenchmarkMetrics(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	b.Run("inc", func(b *testing.B) {
		b.ReportAllocs()
		for b.Loop() {
			m.Inc(MetricCodeIssued)
		}
	})
	b.Run("inc-parallel", func(b *testing.B) {
		b.ReportAllocs()
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				m.Inc(MetricCodeValidated)
			}
		})
	})
	b.Run("observe", func(b *testing.B) {
		b.ReportAllocs()
		for b.Loop() {
			m.Observe(MetricIssueLatency, 42*time.Millisecond)
		}
	})
}
