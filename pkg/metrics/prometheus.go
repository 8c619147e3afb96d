package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	addsTotal        *prometheus.CounterVec
	addedTokens      *prometheus.CounterVec
	evictionsTotal   *prometheus.CounterVec
	evictedTokens    *prometheus.CounterVec
	archiveWrites    *prometheus.CounterVec
	tokenizeDuration *prometheus.HistogramVec
	currentTokens    prometheus.Gauge
	usableTokens     prometheus.Gauge
}

// NewPrometheusRecorder registers the context buffer metrics with reg.
// Pass prometheus.DefaultRegisterer for the process-wide registry.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		addsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contextbuf_adds_total",
				Help: "Total number of Add calls by category, priority and status",
			},
			[]string{"category", "priority", "status"},
		),
		addedTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contextbuf_added_tokens_total",
				Help: "Tokens admitted into the buffer",
			},
			[]string{"category", "priority"},
		),
		evictionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contextbuf_evictions_total",
				Help: "Items evicted by priority tier and outcome",
			},
			[]string{"priority", "outcome"},
		),
		evictedTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contextbuf_evicted_tokens_total",
				Help: "Tokens freed by eviction",
			},
			[]string{"priority"},
		),
		archiveWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contextbuf_archive_writes_total",
				Help: "Archive writes of promoted items by status",
			},
			[]string{"status"},
		),
		tokenizeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "contextbuf_tokenize_duration_seconds",
				Help:    "Duration of tokenizer calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "status"},
		),
		currentTokens: factory.NewGauge(prometheus.GaugeOpts{
			Name: "contextbuf_current_tokens",
			Help: "Tokens currently held by the buffer",
		}),
		usableTokens: factory.NewGauge(prometheus.GaugeOpts{
			Name: "contextbuf_usable_tokens",
			Help: "Usable capacity (max tokens minus reserve)",
		}),
	}
}

func (p *PrometheusRecorder) ObserveAdd(category, priority, status string, tokens int) {
	p.addsTotal.WithLabelValues(category, priority, status).Inc()
	if status == StatusSuccess {
		p.addedTokens.WithLabelValues(category, priority).Add(float64(tokens))
	}
}

func (p *PrometheusRecorder) ObserveEviction(priority, outcome string, tokens int) {
	p.evictionsTotal.WithLabelValues(priority, outcome).Inc()
	p.evictedTokens.WithLabelValues(priority).Add(float64(tokens))
}

func (p *PrometheusRecorder) ObserveArchiveWrite(success bool) {
	status := StatusSuccess
	if !success {
		status = StatusError
	}
	p.archiveWrites.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) ObserveTokenize(modelID string, success bool, duration time.Duration) {
	status := StatusSuccess
	if !success {
		status = StatusError
	}
	p.tokenizeDuration.WithLabelValues(modelID, status).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) SetUsage(current, usable int) {
	p.currentTokens.Set(float64(current))
	p.usableTokens.Set(float64(usable))
}
