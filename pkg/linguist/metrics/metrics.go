// Package metrics exposes Prometheus counters for classification runs.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stack_linguist"

// Collector owns a private registry so several runs in one process do not
// collide on the default registerer.
type Collector struct {
	registry *prometheus.Registry

	files            *prometheus.CounterVec
	bytes            *prometheus.CounterVec
	ignored          *prometheus.CounterVec
	patternErrors    *prometheus.CounterVec
	fallbackFailures prometheus.Counter
	cacheLookups     *prometheus.CounterVec
	runDuration      prometheus.Histogram
}

// New creates a Collector with every metric registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_classified_total",
			Help:      "Files classified, by the pipeline stage that decided them.",
		}, []string{"stage"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Bytes counted, by language category (unknown for unresolved files).",
		}, []string{"category"}),
		ignored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "paths_ignored_total",
			Help:      "Paths excluded from a run, by rule origin.",
		}, []string{"origin"}),
		patternErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pattern_errors_total",
			Help:      "Patterns skipped because they could not be compiled, by source.",
		}, []string{"source"}),
		fallbackFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_unavailable_total",
			Help:      "Files whose statistical fallback had nothing to train on.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Classification cache lookups by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of complete runs.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
	c.registry.MustRegister(c.files, c.bytes, c.ignored, c.patternErrors, c.fallbackFailures, c.cacheLookups, c.runDuration)
	return c
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) FileClassified(stage string) {
	if c != nil {
		c.files.WithLabelValues(stage).Inc()
	}
}

func (c *Collector) BytesCounted(category string, n int64) {
	if c != nil && n > 0 {
		c.bytes.WithLabelValues(category).Add(float64(n))
	}
}

func (c *Collector) PathIgnored(origin string) {
	if c != nil {
		c.ignored.WithLabelValues(origin).Inc()
	}
}

func (c *Collector) PatternError(source string) {
	if c != nil {
		c.patternErrors.WithLabelValues(source).Inc()
	}
}

func (c *Collector) FallbackUnavailable() {
	if c != nil {
		c.fallbackFailures.Inc()
	}
}

// CacheLookup records a hit or a miss.
func (c *Collector) CacheLookup(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

func (c *Collector) RunFinished(d time.Duration) {
	if c != nil {
		c.runDuration.Observe(d.Seconds())
	}
}

// WriteTextfile writes the metrics in the node_exporter textfile format.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
