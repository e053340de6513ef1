package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "docpipe"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once              sync.Once
	reg               *prom.Registry
	stepDuration      *prom.HistogramVec
	batchDuration     prom.Histogram
	cacheResults      *prom.CounterVec
	subprocessResults *prom.CounterVec
	docOutcomes       *prom.CounterVec
	batchOutcomes     *prom.CounterVec
	workers           prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{reg: reg}
	pr.once.Do(func() {
		pr.stepDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "filter_step_duration_seconds",
			Help:      "Duration of computed filter steps",
			Buckets:   prom.DefBuckets,
		}, []string{"filter"})
		pr.batchDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Total batch duration",
			Buckets:   prom.DefBuckets,
		})
		pr.cacheResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_cache_results_total",
			Help:      "Artifact cache lookups by result",
		}, []string{"filter", "result"})
		pr.subprocessResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "subprocess_results_total",
			Help:      "Subprocess invocations by final state",
		}, []string{"filter", "state"})
		pr.docOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "doc_outcomes_total",
			Help:      "Documents by final state",
		}, []string{"outcome"})
		pr.batchOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "batch_outcomes_total",
			Help:      "Batches by terminal state",
		}, []string{"outcome"})
		pr.workers = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_concurrency",
			Help:      "Configured document worker limit for the last batch",
		})
		reg.MustRegister(pr.stepDuration, pr.batchDuration, pr.cacheResults, pr.subprocessResults, pr.docOutcomes, pr.batchOutcomes, pr.workers)
	})
	return pr
}

// Registry returns the registry the metrics are registered with.
func (p *PrometheusRecorder) Registry() *prom.Registry { return p.reg }

func (p *PrometheusRecorder) ObserveStepDuration(filter string, d time.Duration) {
	if p == nil || p.stepDuration == nil {
		return
	}
	p.stepDuration.WithLabelValues(filter).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBatchDuration(d time.Duration) {
	if p == nil || p.batchDuration == nil {
		return
	}
	p.batchDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncCacheResult(filter string, result CacheLabel) {
	if p == nil || p.cacheResults == nil {
		return
	}
	p.cacheResults.WithLabelValues(filter, string(result)).Inc()
}

func (p *PrometheusRecorder) IncSubprocessResult(filter string, state string) {
	if p == nil || p.subprocessResults == nil {
		return
	}
	p.subprocessResults.WithLabelValues(filter, state).Inc()
}

func (p *PrometheusRecorder) IncDocOutcome(outcome DocOutcomeLabel) {
	if p == nil || p.docOutcomes == nil {
		return
	}
	p.docOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncBatchOutcome(outcome string) {
	if p == nil || p.batchOutcomes == nil {
		return
	}
	p.batchOutcomes.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) SetWorkerConcurrency(n int) {
	if p == nil || p.workers == nil {
		return
	}
	p.workers.Set(float64(n))
}

// WriteTextfile writes the current metric values in text exposition format,
// suitable for the node_exporter textfile collector.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	return prom.WriteToTextfile(path, p.reg)
}
