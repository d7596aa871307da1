package binquery

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics implements the Metrics interface using Prometheus
type PrometheusMetrics struct {
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	registry   *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance
// If registry is nil, uses the default Prometheus registry
func NewPrometheusMetrics(registry *prometheus.Registry) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer.(*prometheus.Registry)
	}

	pm := &PrometheusMetrics{
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		registry:   registry,
	}

	pm.registerDefaultMetrics()
	return pm
}

// registerDefaultMetrics registers all standard binquery metrics
func (p *PrometheusMetrics) registerDefaultMetrics() {
	p.counters[MetricIndexHits] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "binquery",
			Subsystem: "index",
			Name:      "hits_total",
			Help:      "Statements compiled with a secondary-index filter",
		},
		[]string{"set"},
	)

	p.counters[MetricIndexMisses] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "binquery",
			Subsystem: "index",
			Name:      "misses_total",
			Help:      "Statements compiled without a secondary-index filter",
		},
		[]string{"set"},
	)

	p.counters[MetricScanRejected] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "binquery",
			Subsystem: "scan",
			Name:      "rejected_total",
			Help:      "Full scans rejected by the scan guard",
		},
		[]string{"set"},
	)

	p.counters[MetricRefreshErrors] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "binquery",
			Subsystem: "refresh",
			Name:      "errors_total",
			Help:      "Index cache refresh attempts that failed",
		},
		[]string{"namespace"},
	)

	p.histograms[MetricCompileDuration] = promauto.With(p.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "binquery",
			Subsystem: "compile",
			Name:      "duration_seconds",
			Help:      "Qualifier tree compilation duration in seconds",
			Buckets:   []float64{.00001, .0001, .001, .005, .01, .05},
		},
		[]string{"set"},
	)

	p.histograms[MetricExecuteDuration] = promauto.With(p.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "binquery",
			Subsystem: "execute",
			Name:      "duration_seconds",
			Help:      "Statement execution duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"set", "mode"},
	)

	p.histograms[MetricQueryRows] = promauto.With(p.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "binquery",
			Subsystem: "query",
			Name:      "rows",
			Help:      "Number of records yielded by queries",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 10000},
		},
		[]string{"set"},
	)
}

// Increment increments a Prometheus counter
func (p *PrometheusMetrics) Increment(name string, tags ...string) {
	counter, ok := p.counters[name]
	if !ok {
		// Create dynamic counter if it doesn't exist
		counter = promauto.With(p.registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "binquery",
				Name:      name,
				Help:      "Dynamic counter: " + name,
			},
			p.extractLabels(tags),
		)
		p.counters[name] = counter
	}

	labels := p.extractLabelValues(tags)
	counter.With(labels).Inc()
}

// Gauge sets a Prometheus gauge value
func (p *PrometheusMetrics) Gauge(name string, value float64, tags ...string) {
	gauge, ok := p.gauges[name]
	if !ok {
		// Create dynamic gauge if it doesn't exist
		gauge = promauto.With(p.registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "binquery",
				Name:      name,
				Help:      "Dynamic gauge: " + name,
			},
			p.extractLabels(tags),
		)
		p.gauges[name] = gauge
	}

	labels := p.extractLabelValues(tags)
	gauge.With(labels).Set(value)
}

// Histogram records a value in a Prometheus histogram
func (p *PrometheusMetrics) Histogram(name string, value float64, tags ...string) {
	histogram, ok := p.histograms[name]
	if !ok {
		// Create dynamic histogram if it doesn't exist
		histogram = promauto.With(p.registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "binquery",
				Name:      name,
				Help:      "Dynamic histogram: " + name,
				Buckets:   prometheus.DefBuckets,
			},
			p.extractLabels(tags),
		)
		p.histograms[name] = histogram
	}

	labels := p.extractLabelValues(tags)
	histogram.With(labels).Observe(value)
}

// Timing records a duration in a Prometheus histogram
func (p *PrometheusMetrics) Timing(name string, duration time.Duration, tags ...string) {
	p.Histogram(name, duration.Seconds(), tags...)
}

// extractLabels extracts label names from tags (every even index)
func (p *PrometheusMetrics) extractLabels(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}

	labels := make([]string, 0, len(tags)/2)
	for i := 0; i < len(tags); i += 2 {
		labels = append(labels, tags[i])
	}
	return labels
}

// extractLabelValues creates a label map from tags (key-value pairs)
func (p *PrometheusMetrics) extractLabelValues(tags []string) prometheus.Labels {
	if len(tags) == 0 {
		return prometheus.Labels{}
	}

	labels := make(prometheus.Labels)
	for i := 0; i < len(tags)-1; i += 2 {
		labels[tags[i]] = tags[i+1]
	}
	return labels
}

// GetRegistry returns the underlying Prometheus registry
func (p *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return p.registry
}
