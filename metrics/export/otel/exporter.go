package otel

import (
	"context"
	"errors"
	"fmt"

	phoneverify "github.com/MrEthical07/phoneverify"
	"github.com/MrEthical07/phoneverify/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() phoneverify.MetricsSnapshot
	AuditDropped() uint64
}

// point binds one snapshot value to an instrument and its attribute set.
type point struct {
	id    phoneverify.MetricID
	inst  metric.Int64Observable
	attrs metric.ObserveOption
}

type latency struct {
	id      phoneverify.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
	le      [len(internaldefs.BucketBounds)]metric.ObserveOption
}

// OTelExporter observes engine snapshots from a meter callback. The
// registration stays active until Close.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	points       []point
	latencies    []latency
	dropped      metric.Int64ObservableCounter
}

func NewOTelExporter(meter metric.Meter, engine *phoneverify.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource registers one counter per family, with the
// family label carried as an attribute, and a bucket gauge keyed by "le"
// plus a count gauge per latency histogram.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	var observables []metric.Observable

	for _, fam := range internaldefs.CounterFamilies {
		counter, err := meter.Int64ObservableCounter(fam.Name, metric.WithDescription(fam.Help))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", fam.Name, err)
		}
		observables = append(observables, counter)
		for _, s := range fam.Series {
			p := point{id: s.ID, inst: counter}
			if fam.Label != "" {
				p.attrs = metric.WithAttributes(attribute.String(fam.Label, s.Value))
			}
			e.points = append(e.points, p)
		}
	}

	for _, def := range internaldefs.HistogramDefs {
		l := latency{id: def.ID}
		var err error
		if l.buckets, err = meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative bucket counts."), metric.WithUnit("1")); err != nil {
			return nil, fmt.Errorf("gauge %s_bucket: %w", def.Name, err)
		}
		if l.count, err = meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription(def.Help+" Sample count.")); err != nil {
			return nil, fmt.Errorf("gauge %s_count: %w", def.Name, err)
		}
		for i, le := range internaldefs.BucketBounds {
			l.le[i] = metric.WithAttributes(attribute.String("le", le))
		}
		observables = append(observables, l.buckets, l.count)
		e.latencies = append(e.latencies, l)
	}

	var err error
	e.dropped, err = meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp))
	if err != nil {
		return nil, fmt.Errorf("counter %s: %w", internaldefs.AuditDroppedName, err)
	}
	observables = append(observables, e.dropped)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, p := range e.points {
		v := int64(snapshot.Counters[p.id])
		if p.attrs == nil {
			o.ObserveInt64(p.inst, v)
			continue
		}
		o.ObserveInt64(p.inst, v, p.attrs)
	}
	for _, l := range e.latencies {
		cumulative := internaldefs.Cumulative(snapshot.Histograms[l.id])
		for i, v := range cumulative {
			o.ObserveInt64(l.buckets, int64(v), l.le[i])
		}
		o.ObserveInt64(l.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.dropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the callback. It is safe on a nil exporter.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
