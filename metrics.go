package phoneverify

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	// MetricCodeIssued counts codes persisted and handed to the transport.
	MetricCodeIssued MetricID = iota
	// MetricCodeIssueFailure counts issuances rejected for any reason.
	MetricCodeIssueFailure
	// MetricCodeAlreadyPending counts issuances blocked by a live code.
	MetricCodeAlreadyPending
	// MetricAbuseDetected counts issuances blocked by an issuance ceiling.
	MetricAbuseDetected
	// MetricDeliveryFailed counts transport failures.
	MetricDeliveryFailed
	// MetricTestNumberIssued counts issuances to designated test numbers.
	MetricTestNumberIssued
	// MetricCodeValidated counts correct code submissions.
	MetricCodeValidated
	// MetricCodeMismatch counts wrong code submissions.
	MetricCodeMismatch
	// MetricNoOngoingProcess counts submissions with no live code.
	MetricNoOngoingProcess
	// MetricAttemptsExceeded counts codes burned by repeated wrong submissions.
	MetricAttemptsExceeded
	// MetricCodeConsumed counts consumed codes.
	MetricCodeConsumed
	// MetricCodeReplay counts attempts to consume an already consumed code.
	MetricCodeReplay
	// MetricInvalidNumber counts canonicalization failures.
	MetricInvalidNumber
	// MetricNumberNotAllowed counts numbers rejected by the allow pattern.
	MetricNumberNotAllowed
	// MetricPhoneBound counts phone binding decisions.
	MetricPhoneBound
	// MetricIssueLatency observes end-to-end issuance latency.
	MetricIssueLatency
	// MetricDeliveryLatency observes transport latency.
	MetricDeliveryLatency
	metricIDCount
)

// MetricCount is the number of defined metric ids.
const MetricCount = int(metricIDCount)

// latencyBounds are the inclusive upper bounds of every histogram bucket but
// the last, which takes everything slower.
var latencyBounds = [...]time.Duration{
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

const histBucketCount = len(latencyBounds) + 1

// latencyIDs lists the ids that keep histograms, in snapshot order.
var latencyIDs = [...]MetricID{MetricIssueLatency, MetricDeliveryLatency}

// slot keeps each counter on its own cache line so concurrent increments of
// different outcomes do not contend.
type slot struct {
	n atomic.Uint64
	_ [56]byte
}

// Metrics holds lock-free counters. The zero value and a nil *Metrics are
// both safe to use and record nothing.
type Metrics struct {
	enabled bool
	latency bool
	slots   [metricIDCount]slot
	hist    [len(latencyIDs)][histBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of all counters. Histograms holds
// per-bucket (not cumulative) counts keyed by latency id.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns metrics configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.latency
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.slots[id].n.Add(1)
}

// Observe records d against a latency id. Other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() {
		return
	}
	if h := histogramIndex(id); h >= 0 {
		m.hist[h][bucketIndex(d)].Add(1)
	}
}

// Value returns the current counter value for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.slots[id].n.Load()
}

// Snapshot copies every counter, and the latency histograms when enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}
	for id := range metricIDCount {
		s.Counters[id] = m.slots[id].n.Load()
	}
	if !m.latency {
		return s
	}
	for h, id := range latencyIDs {
		buckets := make([]uint64, histBucketCount)
		for b := range buckets {
			buckets[b] = m.hist[h][b].Load()
		}
		s.Histograms[id] = buckets
	}
	return s
}

func histogramIndex(id MetricID) int {
	for i, candidate := range latencyIDs {
		if candidate == id {
			return i
		}
	}
	return -1
}

// bucketIndex returns the first bucket whose bound is at least d, counting
// in whole milliseconds.
func bucketIndex(d time.Duration) int {
	d = d.Truncate(time.Millisecond)
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}
