// Package metrics exposes Prometheus collectors for corpus loading and query
// serving.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sola-scriptura-retrieval/internal/corpus"
)

const namespace = "scripture_retrieval"

// Metrics implements corpus.Recorder and services.Recorder on a private
// registry.
type Metrics struct {
	registry *prometheus.Registry

	searchLatency    *prometheus.HistogramVec
	searchK          prometheus.Histogram
	embeddingLatency *prometheus.HistogramVec
	fetchBytes       prometheus.Counter
	fetchLatency     *prometheus.HistogramVec
	corpusLoads      *prometheus.CounterVec
	corpusRecords    prometheus.Gauge
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		searchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Latency of retrieval queries by outcome",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		searchK: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_k",
			Help:      "Requested result count per query",
			Buckets:   []float64{1, 5, 10, 20, 50, 100},
		}),
		embeddingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_duration_seconds",
			Help:      "Latency of query embedding calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		fetchBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corpus_fetch_bytes_total",
			Help:      "Bytes downloaded from the remote corpus source",
		}),
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "corpus_fetch_duration_seconds",
			Help:      "Duration of remote corpus fetches",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"status"}),
		corpusLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corpus_loads_total",
			Help:      "Corpus loads by final loader state and outcome",
		}, []string{"state", "status"}),
		corpusRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "corpus_records",
			Help:      "Number of records in the served corpus",
		}),
	}

	m.registry.MustRegister(
		m.searchLatency,
		m.searchK,
		m.embeddingLatency,
		m.fetchBytes,
		m.fetchLatency,
		m.corpusLoads,
		m.corpusRecords,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSearch implements services.Recorder
func (m *Metrics) RecordSearch(status string, k int, d time.Duration) {
	m.searchLatency.WithLabelValues(status).Observe(d.Seconds())
	m.searchK.Observe(float64(k))
}

// RecordEmbedding implements services.Recorder
func (m *Metrics) RecordEmbedding(d time.Duration, err error) {
	m.embeddingLatency.WithLabelValues(outcome(err)).Observe(d.Seconds())
}

// RecordFetch implements corpus.Recorder
func (m *Metrics) RecordFetch(bytes int64, d time.Duration, err error) {
	m.fetchBytes.Add(float64(bytes))
	m.fetchLatency.WithLabelValues(outcome(err)).Observe(d.Seconds())
}

// RecordLoad implements corpus.Recorder
func (m *Metrics) RecordLoad(state corpus.State, records int, err error) {
	m.corpusLoads.WithLabelValues(string(state), outcome(err)).Inc()
	if err == nil {
		m.corpusRecords.Set(float64(records))
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
