// Package metrics exposes Prometheus counters and histograms for sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Collector owns a private registry so several sessions or tests never collide.
// A nil *Collector records nothing.
type Collector struct {
	registry *prometheus.Registry

	ingestsTotal   *prometheus.CounterVec
	ingestDuration prometheus.Histogram
	chunksIndexed  prometheus.Gauge
	documents      prometheus.Counter

	asksTotal     *prometheus.CounterVec
	askDuration   prometheus.Histogram
	stageDuration *prometheus.HistogramVec
}

// NewCollector registers all docchat metrics under namespace.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		ingestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingests_total",
			Help:      "Total number of ingest operations",
		}, []string{"status"}),
		ingestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Ingest duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		chunksIndexed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chunks_indexed",
			Help:      "Number of chunks in the live index",
		}),
		documents: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_ingested_total",
			Help:      "Total number of documents successfully ingested",
		}),
		asksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asks_total",
			Help:      "Total number of questions asked",
		}, []string{"status"}),
		askDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ask_duration_seconds",
			Help:      "Ask duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}
}

// RecordIngest records one ingest attempt. Counts only apply on success.
func (c *Collector) RecordIngest(err error, documents, chunks int, d time.Duration) {
	if c == nil {
		return
	}
	c.ingestsTotal.WithLabelValues(status(err)).Inc()
	c.ingestDuration.Observe(d.Seconds())
	if err == nil {
		c.documents.Add(float64(documents))
		c.chunksIndexed.Set(float64(chunks))
	}
}

// RecordReset marks the index as gone.
func (c *Collector) RecordReset() {
	if c == nil {
		return
	}
	c.chunksIndexed.Set(0)
}

// RecordAsk records one question.
func (c *Collector) RecordAsk(err error, d time.Duration) {
	if c == nil {
		return
	}
	c.asksTotal.WithLabelValues(status(err)).Inc()
	c.askDuration.Observe(d.Seconds())
}

// RecordStage records the duration of a named stage such as "extract" or "generate".
func (c *Collector) RecordStage(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}
