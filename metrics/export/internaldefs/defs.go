package internaldefs

import (
	phoneverify "github.com/MrEthical07/phoneverify"
)

// Series is one labeled member of a counter family.
type Series struct {
	ID    phoneverify.MetricID
	Value string
}

// CounterFamily groups engine counters that share a name and differ by one
// label. A family with an empty Label has exactly one series.
type CounterFamily struct {
	Name   string
	Help   string
	Label  string
	Series []Series
}

// HistogramDef names one engine latency histogram.
type HistogramDef struct {
	ID   phoneverify.MetricID
	Name string
	Help string
}

// CounterFamilies lists every exported counter in exposition order.
var CounterFamilies = []CounterFamily{
	{
		Name:  "phoneverify_issuance_total",
		Help:  "Code issuance requests by outcome.",
		Label: "outcome",
		Series: []Series{
			{phoneverify.MetricCodeIssued, "issued"},
			{phoneverify.MetricTestNumberIssued, "test_number"},
			{phoneverify.MetricCodeIssueFailure, "failed"},
			{phoneverify.MetricCodeAlreadyPending, "already_pending"},
			{phoneverify.MetricAbuseDetected, "abuse_detected"},
			{phoneverify.MetricDeliveryFailed, "delivery_failed"},
		},
	},
	{
		Name:  "phoneverify_submission_total",
		Help:  "Code submissions by outcome.",
		Label: "outcome",
		Series: []Series{
			{phoneverify.MetricCodeValidated, "validated"},
			{phoneverify.MetricCodeMismatch, "mismatch"},
			{phoneverify.MetricNoOngoingProcess, "no_ongoing_process"},
			{phoneverify.MetricAttemptsExceeded, "attempts_exceeded"},
		},
	},
	{
		Name:  "phoneverify_consume_total",
		Help:  "Consume calls by outcome.",
		Label: "outcome",
		Series: []Series{
			{phoneverify.MetricCodeConsumed, "consumed"},
			{phoneverify.MetricCodeReplay, "replay"},
		},
	},
	{
		Name:  "phoneverify_phone_number_rejected_total",
		Help:  "Phone numbers rejected during canonicalization.",
		Label: "reason",
		Series: []Series{
			{phoneverify.MetricInvalidNumber, "invalid"},
			{phoneverify.MetricNumberNotAllowed, "not_allowed"},
		},
	},
	{
		Name:   "phoneverify_phone_bound_total",
		Help:   "Phone binding decisions.",
		Series: []Series{{ID: phoneverify.MetricPhoneBound}},
	},
}

// HistogramDefs lists the latency histograms.
var HistogramDefs = []HistogramDef{
	{ID: phoneverify.MetricIssueLatency, Name: "phoneverify_issue_latency_seconds", Help: "End-to-end issuance latency."},
	{ID: phoneverify.MetricDeliveryLatency, Name: "phoneverify_delivery_latency_seconds", Help: "Transport send latency."},
}

// AuditDropped names the dispatcher drop counter, which is read from the
// engine directly rather than from the snapshot.
const (
	AuditDroppedName = "phoneverify_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped on a full dispatcher buffer."
)

// BucketBounds are the le labels matching the engine's bucket upper bounds.
var BucketBounds = [8]string{"0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "1", "+Inf"}

// Cumulative converts a snapshot's per-bucket counts into running totals.
// A short or missing snapshot is zero-filled.
func Cumulative(raw []uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
