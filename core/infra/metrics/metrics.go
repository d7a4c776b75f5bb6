package metrics

import (
	"net/http"
	"sync"

	"github.com/cordum/zipmark/core/watermark"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run statuses reported by the dispatcher.
const (
	RunWatermarked = "watermarked"
	RunFallback    = "fallback"
	RunSkipped     = "skipped"
)

// Metrics defines the counters emitted by the dispatcher, engine and janitor.
type Metrics interface {
	watermark.Observer
	ObserveRun(status string, durationSeconds float64)
	AddStagingSwept(n int)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) ObserveRule(watermark.Kind, watermark.Outcome) {}
func (Noop) ObserveRun(string, float64)                   {}
func (Noop) AddStagingSwept(int)                          {}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	runs         *prometheus.CounterVec
	rules        *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	stagingSwept prometheus.Counter
	once         sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Watermark requests by outcome",
		}, []string{"status"}),
		rules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_total",
			Help:      "Rules evaluated by kind and status",
		}, []string{"kind", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Watermark request duration by outcome",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		stagingSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staging_swept_total",
			Help:      "Customer staging directories removed by the janitor",
		}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.runs, p.rules, p.runDuration, p.stagingSwept)
	})
}

func (p *Prom) ObserveRule(kind watermark.Kind, outcome watermark.Outcome) {
	p.rules.WithLabelValues(string(kind), outcome.Status.String()).Inc()
}

func (p *Prom) ObserveRun(status string, durationSeconds float64) {
	p.runs.WithLabelValues(status).Inc()
	p.runDuration.WithLabelValues(status).Observe(durationSeconds)
}

func (p *Prom) AddStagingSwept(n int) {
	if n > 0 {
		p.stagingSwept.Add(float64(n))
	}
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
