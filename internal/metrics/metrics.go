package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline captures upload pipeline metrics.
type Pipeline interface {
	IncUpload(outcome string)
	IncCaptionAttempt(result string)
	ObserveStage(stage string, durationSeconds float64)
}

// HTTP captures request metrics for the web front end.
type HTTP interface {
	ObserveRequest(method, route, status string, durationSeconds float64)
}

// Noop implements Pipeline and HTTP without emitting anything.
type Noop struct{}

func (Noop) IncUpload(string)                               {}
func (Noop) IncCaptionAttempt(string)                       {}
func (Noop) ObserveStage(string, float64)                   {}
func (Noop) ObserveRequest(string, string, string, float64) {}

// Prom implements Pipeline and HTTP backed by Prometheus collectors.
type Prom struct {
	uploads         *prometheus.CounterVec
	captionAttempts *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	requests        *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	once            sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Upload pipeline runs by outcome",
		}, []string{"outcome"}),
		captionAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "caption_attempts_total",
			Help:      "Captioning service attempts by result",
		}, []string{"result"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Upload pipeline stage latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.uploads, p.captionAttempts, p.stageDuration, p.requests, p.requestLatency)
	})
}

func (p *Prom) IncUpload(outcome string) {
	p.uploads.WithLabelValues(outcome).Inc()
}

func (p *Prom) IncCaptionAttempt(result string) {
	p.captionAttempts.WithLabelValues(result).Inc()
}

func (p *Prom) ObserveStage(stage string, durationSeconds float64) {
	p.stageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

func (p *Prom) ObserveRequest(method, route, status string, durationSeconds float64) {
	p.requests.WithLabelValues(method, route, status).Inc()
	p.requestLatency.WithLabelValues(method, route).Observe(durationSeconds)
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
