// Package otel publishes engine counters and latency histograms through an
// OpenTelemetry Meter supplied by the caller.
//
// Counter families map to one Int64ObservableCounter each, with the outcome
// or reason carried as an attribute. Histogram buckets are reported on a
// single gauge keyed by an "le" attribute.
package otel
