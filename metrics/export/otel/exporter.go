package otel

import (
	"context"
	"errors"
	"fmt"

	goAuthz "github.com/MrEthical07/goAuthz"
	"github.com/MrEthical07/goAuthz/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("otel exporter: meter is nil")
	ErrNilSource = errors.New("otel exporter: source is nil")
)

// Source is what the exporter reads on every collection. *goAuthz.Engine
// implements it.
type Source interface {
	MetricsSnapshot() goAuthz.MetricsSnapshot
	AuditDropped() uint64
}

// latencyInstruments carries one histogram as a bucket gauge keyed by the
// "le" attribute plus a sample count gauge.
type latencyInstruments struct {
	id      goAuthz.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter mirrors the engine's counters and latency histogram into OTel
// observable instruments.
type Exporter struct {
	source   Source
	counters map[goAuthz.MetricID]metric.Int64ObservableCounter
	latency  []latencyInstruments
	dropped  metric.Int64ObservableCounter

	// leOptions[i] attaches le=HistogramBounds[i]; built once.
	leOptions []metric.ObserveOption

	reg metric.Registration
}

// New binds an Exporter to engine.
func New(meter metric.Meter, engine *goAuthz.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewFromSource(meter, engine)
}

// NewFromSource creates the instruments on meter and registers a single
// callback that reads source.
func NewFromSource(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	x := &Exporter{
		source:    source,
		counters:  make(map[goAuthz.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
		leOptions: make([]metric.ObserveOption, len(internaldefs.HistogramBounds)),
	}
	for i, le := range internaldefs.HistogramBounds {
		x.leOptions[i] = metric.WithAttributes(attribute.String("le", le))
	}

	var instruments []metric.Observable
	for _, def := range internaldefs.CounterDefs {
		c, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.Name, err)
		}
		x.counters[def.ID] = c
		instruments = append(instruments, c)
	}

	for _, def := range internaldefs.HistogramDefs {
		buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per upper bound."))
		if err != nil {
			return nil, fmt.Errorf("bucket gauge %s: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription(def.Help+" Total samples."))
		if err != nil {
			return nil, fmt.Errorf("count gauge %s: %w", def.Name, err)
		}
		x.latency = append(x.latency, latencyInstruments{id: def.ID, buckets: buckets, count: count})
		instruments = append(instruments, buckets, count)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp))
	if err != nil {
		return nil, fmt.Errorf("counter %s: %w", internaldefs.AuditDroppedName, err)
	}
	x.dropped = dropped
	instruments = append(instruments, dropped)

	reg, err := meter.RegisterCallback(x.observe, instruments...)
	if err != nil {
		return nil, fmt.Errorf("register otel callback: %w", err)
	}
	x.reg = reg
	return x, nil
}

func (x *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := x.source.MetricsSnapshot()
	for id, c := range x.counters {
		o.ObserveInt64(c, int64(snap.Counters[id]))
	}
	for _, h := range x.latency {
		cum := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[h.id]))
		for i, v := range cum {
			o.ObserveInt64(h.buckets, int64(v), x.leOptions[i])
		}
		o.ObserveInt64(h.count, int64(cum[len(cum)-1]))
	}
	o.ObserveInt64(x.dropped, int64(x.source.AuditDropped()))
	return nil
}

// Close unregisters the callback. The instruments stay on the meter but
// report nothing afterwards.
func (x *Exporter) Close() error {
	if x == nil || x.reg == nil {
		return nil
	}
	return x.reg.Unregister()
}
