package otel

import (
	"context"
	"errors"
	"fmt"

	donorguard "github.com/MrEthical07/donorguard"
	"github.com/MrEthical07/donorguard/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() donorguard.MetricsSnapshot
	AbuseDropped() uint64
}

type observedCounter struct {
	id         donorguard.MetricID
	instrument metric.Int64ObservableCounter
}

// observedHistogram publishes cumulative bucket counts as one gauge with an
// "le" attribute per bucket.
type observedHistogram struct {
	id      donorguard.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
	leSets  [8]metric.MeasurementOption
}

type Exporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []observedCounter
	histograms   []observedHistogram
	abuseDropped metric.Int64ObservableCounter
}

func NewExporter(meter metric.Meter, guard *donorguard.Guard) (*Exporter, error) {
	if guard == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, guard)
}

func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &Exporter{
		source:     source,
		counters:   make([]observedCounter, 0, len(internaldefs.CounterDefs)),
		histograms: make([]observedHistogram, 0, len(internaldefs.HistogramDefs)),
	}
	observables := make([]metric.Observable, 0, len(internaldefs.CounterDefs)+len(internaldefs.HistogramDefs)*2+1)

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		h := observedHistogram{id: def.ID}
		bucketName := def.Name + "_bucket"
		ins, err := meter.Int64ObservableGauge(bucketName,
			metric.WithDescription("Cumulative histogram bucket count."),
			metric.WithUnit("1"),
		)
		if err != nil {
			return nil, fmt.Errorf("create histogram bucket gauge %s: %w", bucketName, err)
		}
		h.buckets = ins
		for i, le := range internaldefs.HistogramBounds {
			h.leSets[i] = metric.WithAttributeSet(attribute.NewSet(attribute.String("le", le)))
		}

		countName := def.Name + "_count"
		countIns, err := meter.Int64ObservableGauge(countName, metric.WithDescription("Histogram total sample count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram count gauge %s: %w", countName, err)
		}
		h.count = countIns
		observables = append(observables, ins, countIns)
		exporter.histograms = append(exporter.histograms, h)
	}

	abuseDropped, err := meter.Int64ObservableCounter(
		internaldefs.AbuseDroppedName,
		metric.WithDescription(internaldefs.AbuseDroppedHelp),
	)
	if err != nil {
		return nil, fmt.Errorf("create abuse dropped counter: %w", err)
	}
	exporter.abuseDropped = abuseDropped
	observables = append(observables, abuseDropped)

	registration, err := meter.RegisterCallback(exporter.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	exporter.registration = registration
	return exporter, nil
}

func (e *Exporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
	}
	for _, h := range e.histograms {
		raw, ok := snapshot.Histograms[h.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i := range cumulative {
			observer.ObserveInt64(h.buckets, int64(cumulative[i]), h.leSets[i])
		}
		observer.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	observer.ObserveInt64(e.abuseDropped, int64(e.source.AbuseDropped()))
	return nil
}

func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
