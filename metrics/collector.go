// Package metrics exports the realtime counters of jack clients to
// Prometheus.
//
// The counters are maintained by the callback trampolines with atomics;
// the collector only reads snapshots at scrape time, so nothing here runs
// on a realtime thread.
package metrics

import (
	"sort"
	"sync"

	"github.com/opd-ai/jack"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// LabelClient is the label carrying the client name.
const LabelClient = "client"

const namespace = "jack"

// StatsSource is anything that reports client statistics; *jack.Client
// implements it.
type StatsSource interface {
	Stats() jack.Stats
}

// Collector is a prometheus.Collector over a set of tracked clients.
type Collector struct {
	mu      sync.RWMutex
	sources map[string]StatsSource

	processCycles   *prometheus.Desc
	processFailures *prometheus.Desc
	xruns           *prometheus.Desc
	sampleRate      *prometheus.Desc
	connects        *prometheus.Desc
	disconnects     *prometheus.Desc

	contextsLive      *prometheus.Desc
	contextsAllocated *prometheus.Desc
	contextsReleased  *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector tracking no clients. If registry is
// non-nil the collector is registered with it.
func NewCollector(registry prometheus.Registerer) (*Collector, error) {
	clientLabels := []string{LabelClient}
	c := &Collector{
		sources: make(map[string]StatsSource),

		processCycles: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "client", "process_cycles_total"),
			"Number of process callbacks delivered",
			clientLabels, nil),
		processFailures: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "client", "process_failures_total"),
			"Number of process callbacks that returned non-zero",
			clientLabels, nil),
		xruns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "client", "xruns_total"),
			"Number of xrun notifications delivered",
			clientLabels, nil),
		sampleRate: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "client", "sample_rate_hz"),
			"Last sample rate reported to the client",
			clientLabels, nil),
		connects: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "client", "port_connects_total"),
			"Number of port connection notifications delivered",
			clientLabels, nil),
		disconnects: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "client", "port_disconnects_total"),
			"Number of port disconnection notifications delivered",
			clientLabels, nil),

		contextsLive: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "handlers", "live"),
			"Handlers currently installed across all clients",
			nil, nil),
		contextsAllocated: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "handlers", "installed_total"),
			"Handlers ever installed",
			nil, nil),
		contextsReleased: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "handlers", "released_total"),
			"Handlers released",
			nil, nil),
	}

	if registry != nil {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Track starts exporting the statistics of src under name. Tracking a name
// again replaces its source.
func (c *Collector) Track(name string, src StatsSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[name] = src

	logrus.WithFields(logrus.Fields{
		"function": "Collector.Track",
		"client":   name,
	}).Debug("Tracking client metrics")
}

// Untrack stops exporting name.
func (c *Collector) Untrack(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sources, name)
}

// Tracked returns the tracked client names, sorted.
func (c *Collector) Tracked() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.sources))
	for n := range c.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.processCycles
	ch <- c.processFailures
	ch <- c.xruns
	ch <- c.sampleRate
	ch <- c.connects
	ch <- c.disconnects
	ch <- c.contextsLive
	ch <- c.contextsAllocated
	ch <- c.contextsReleased
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for name, src := range c.sources {
		st := src.Stats()
		ch <- prometheus.MustNewConstMetric(c.processCycles, prometheus.CounterValue, float64(st.ProcessCycles), name)
		ch <- prometheus.MustNewConstMetric(c.processFailures, prometheus.CounterValue, float64(st.ProcessFailures), name)
		ch <- prometheus.MustNewConstMetric(c.xruns, prometheus.CounterValue, float64(st.XRuns), name)
		ch <- prometheus.MustNewConstMetric(c.sampleRate, prometheus.GaugeValue, float64(st.SampleRate), name)
		ch <- prometheus.MustNewConstMetric(c.connects, prometheus.CounterValue, float64(st.Connects), name)
		ch <- prometheus.MustNewConstMetric(c.disconnects, prometheus.CounterValue, float64(st.Disconnects), name)
	}

	hc := jack.HandlerContexts()
	ch <- prometheus.MustNewConstMetric(c.contextsLive, prometheus.GaugeValue, float64(hc.Live))
	ch <- prometheus.MustNewConstMetric(c.contextsAllocated, prometheus.CounterValue, float64(hc.Allocated))
	ch <- prometheus.MustNewConstMetric(c.contextsReleased, prometheus.CounterValue, float64(hc.Released))
}
