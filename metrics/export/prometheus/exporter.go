package prometheus

import (
	"net/http"

	donorguard "github.com/MrEthical07/donorguard"
	"github.com/MrEthical07/donorguard/metrics/export/internaldefs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsSource interface {
	MetricsSnapshot() donorguard.MetricsSnapshot
	AbuseDropped() uint64
}

// Collector reads Guard counters on every scrape. It implements
// [prometheus.Collector].
type Collector struct {
	source       metricsSource
	counters     []counterDesc
	histograms   []histogramDesc
	abuseDropped *prometheus.Desc
}

type counterDesc struct {
	id   donorguard.MetricID
	desc *prometheus.Desc
}

type histogramDesc struct {
	id   donorguard.MetricID
	desc *prometheus.Desc
}

// NewCollector creates a collector for a [donorguard.Guard].
func NewCollector(guard *donorguard.Guard) *Collector {
	return NewCollectorFromSource(guard)
}

// NewCollectorFromSource creates a collector from any snapshot source.
func NewCollectorFromSource(source metricsSource) *Collector {
	c := &Collector{
		source:       source,
		counters:     make([]counterDesc, 0, len(internaldefs.CounterDefs)),
		histograms:   make([]histogramDesc, 0, len(internaldefs.HistogramDefs)),
		abuseDropped: prometheus.NewDesc(internaldefs.AbuseDroppedName, internaldefs.AbuseDroppedHelp, nil, nil),
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters = append(c.counters, counterDesc{id: def.ID, desc: prometheus.NewDesc(def.Name, def.Help, nil, nil)})
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histograms = append(c.histograms, histogramDesc{id: def.ID, desc: prometheus.NewDesc(def.Name, def.Help, nil, nil)})
	}
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counters {
		ch <- d.desc
	}
	for _, d := range c.histograms {
		ch <- d.desc
	}
	ch <- c.abuseDropped
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		return
	}
	snapshot := c.source.MetricsSnapshot()

	for _, d := range c.counters {
		ch <- prometheus.MustNewConstMetric(d.desc, prometheus.CounterValue, float64(snapshot.Counters[d.id]))
	}

	for _, d := range c.histograms {
		raw := snapshot.Histograms[d.id]
		if raw == nil {
			continue
		}
		nonCumulative := internaldefs.NormalizeBuckets(raw)
		cumulative := internaldefs.CumulativeBuckets(nonCumulative)
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for i, le := range internaldefs.HistogramUpperBounds {
			buckets[le] = cumulative[i]
		}
		ch <- prometheus.MustNewConstHistogram(d.desc,
			cumulative[len(cumulative)-1],
			internaldefs.ApproxSum(nonCumulative),
			buckets,
		)
	}

	ch <- prometheus.MustNewConstMetric(c.abuseDropped, prometheus.CounterValue, float64(c.source.AbuseDropped()))
}

// Handler registers the collector on a private registry, alongside the Go
// runtime and process collectors, and serves it.
func Handler(c *Collector) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}
