package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records listener registry activity. A nil *Collector is valid and
// records nothing.
type Collector struct {
	ActiveEntries  prometheus.Gauge
	Attaches       *prometheus.CounterVec // by listener kind
	Detaches       *prometheus.CounterVec // by listener kind
	Dispatches     *prometheus.CounterVec // by fired condition
	DispatchPanics *prometheus.CounterVec // by fired condition
	Rearms         prometheus.Counter
	WaitFailures   prometheus.Counter

	registry *prometheus.Registry
}

func New(namespace string) *Collector {
	c := &Collector{
		ActiveEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_entries",
			Help:      "Devices that currently own a looper.",
		}),
		Attaches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attach_total",
			Help:      "Successful listener attachments.",
		}, []string{"kind"}),
		Detaches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detach_total",
			Help:      "Successful listener detachments.",
		}, []string{"kind"}),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Listener callbacks invoked.",
		}, []string{"condition"}),
		DispatchPanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_panic_total",
			Help:      "Listener callbacks that panicked.",
		}, []string{"condition"}),
		Rearms: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rearm_total",
			Help:      "Looper wakeups that re-armed with a changed condition set.",
		}),
		WaitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wait_failure_total",
			Help:      "Loopers terminated by a failed device wait.",
		}),
		registry: prometheus.NewRegistry(),
	}
	c.registry.MustRegister(
		c.ActiveEntries,
		c.Attaches,
		c.Detaches,
		c.Dispatches,
		c.DispatchPanics,
		c.Rearms,
		c.WaitFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) EntryStarted() {
	if c != nil {
		c.ActiveEntries.Inc()
	}
}

func (c *Collector) EntryStopped() {
	if c != nil {
		c.ActiveEntries.Dec()
	}
}

func (c *Collector) Attached(kind string) {
	if c != nil {
		c.Attaches.WithLabelValues(kind).Inc()
	}
}

func (c *Collector) Detached(kind string) {
	if c != nil {
		c.Detaches.WithLabelValues(kind).Inc()
	}
}

func (c *Collector) Dispatched(condition string) {
	if c != nil {
		c.Dispatches.WithLabelValues(condition).Inc()
	}
}

func (c *Collector) DispatchPanicked(condition string) {
	if c != nil {
		c.DispatchPanics.WithLabelValues(condition).Inc()
	}
}

func (c *Collector) Rearmed() {
	if c != nil {
		c.Rearms.Inc()
	}
}

func (c *Collector) WaitFailed() {
	if c != nil {
		c.WaitFailures.Inc()
	}
}
