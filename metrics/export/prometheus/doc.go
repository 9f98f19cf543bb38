// Package prometheus renders engine counters and latency histograms in the
// Prometheus text exposition format.
//
// Related counters share a family and differ by an outcome or reason label,
// e.g. phoneverify_issuance_total{outcome="abuse_detected"}. Nothing is
// registered globally; callers mount [PrometheusExporter.Handler].
package prometheus
