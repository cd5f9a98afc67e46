package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/voyz/tokenauth"
	"github.com/voyz/tokenauth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() tokenauth.MetricsSnapshot
	AuditDropped() uint64
}

// series is one engine counter observed on a shared instrument.
type series struct {
	id         tokenauth.MetricID
	instrument metric.Int64ObservableCounter
	attrs      metric.ObserveOption
}

// latency observes one engine histogram as cumulative per-bucket counts.
type latency struct {
	id      tokenauth.MetricID
	buckets metric.Int64ObservableGauge
	les     []metric.ObserveOption
	count   metric.Int64ObservableGauge
}

// OTelExporter publishes engine metrics through observable instruments.
//
// Counters are grouped by operation: tokenauth.operations carries
// operation and outcome attributes, and the rejection, expiry and store
// failure counters have instruments of their own. Latency histograms are
// observed as a bucket gauge keyed by the "le" attribute plus a count gauge,
// because the metric API has no asynchronous histogram.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	series       []series
	latencies    []latency
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers instruments on meter that read engine's
// snapshot on every collection. Call Close to unregister.
func NewOTelExporter(meter metric.Meter, engine *tokenauth.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource is NewOTelExporter over any snapshot source.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{
		source:    source,
		series:    make([]series, 0, len(internaldefs.CounterDefs)),
		latencies: make([]latency, 0, len(internaldefs.HistogramDefs)),
	}
	observables := make([]metric.Observable, 0, len(internaldefs.InstrumentDefs)+2*len(internaldefs.HistogramDefs)+1)

	instruments := make(map[string]metric.Int64ObservableCounter, len(internaldefs.InstrumentDefs))
	for _, def := range internaldefs.InstrumentDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help), metric.WithUnit(def.Unit))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		instruments[def.Name] = ins
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.CounterDefs {
		ins, ok := instruments[def.Instrument]
		if !ok {
			return nil, fmt.Errorf("counter %s: unknown instrument %q", def.Name, def.Instrument)
		}
		e.series = append(e.series, series{
			id:         def.ID,
			instrument: ins,
			attrs:      metric.WithAttributeSet(labelSet(def.Labels)),
		})
	}

	les := internaldefs.BucketLabels()
	for _, def := range internaldefs.HistogramDefs {
		l := latency{id: def.ID, les: make([]metric.ObserveOption, len(les))}
		for i, le := range les {
			l.les[i] = metric.WithAttributes(attribute.String("le", le))
		}

		var err error
		l.buckets, err = meter.Int64ObservableGauge(def.Instrument+".bucket",
			metric.WithDescription(def.Help+" Cumulative count per upper bound in seconds."),
			metric.WithUnit("{call}"))
		if err != nil {
			return nil, fmt.Errorf("create bucket gauge for %s: %w", def.Instrument, err)
		}
		l.count, err = meter.Int64ObservableGauge(def.Instrument+".count",
			metric.WithDescription(def.Help+" Total sample count."),
			metric.WithUnit("{call}"))
		if err != nil {
			return nil, fmt.Errorf("create count gauge for %s: %w", def.Instrument, err)
		}
		observables = append(observables, l.buckets, l.count)
		e.latencies = append(e.latencies, l)
	}

	auditDropped, err := meter.Int64ObservableCounter(
		internaldefs.InstrumentAuditDropped,
		metric.WithDescription(internaldefs.AuditDroppedHelp),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

// observe reads one snapshot per collection. An engine with metrics
// disabled produces no observations.
func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	dropped := e.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return nil
	}

	for _, s := range e.series {
		o.ObserveInt64(s.instrument, int64(snapshot.Counters[s.id]), s.attrs)
	}
	for _, l := range e.latencies {
		raw, ok := snapshot.Histograms[l.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, le := range l.les {
			o.ObserveInt64(l.buckets, int64(cumulative[i]), le)
		}
		o.ObserveInt64(l.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(dropped))
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}

func labelSet(labels []internaldefs.Label) attribute.Set {
	kvs := make([]attribute.KeyValue, len(labels))
	for i, l := range labels {
		kvs[i] = attribute.String(l.Key, l.Value)
	}
	return attribute.NewSet(kvs...)
}
