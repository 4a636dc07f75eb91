package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "newsflow"

// Item stages counted by ItemStage.
const (
	StageSeen      = "seen"
	StageDuplicate = "duplicate"
	StageScraped   = "scraped"
	StageInserted  = "inserted"
	StageTimeout   = "timeout"
	StageFailed    = "failed"
)

// Metrics owns a private registry so several instances can coexist in tests.
// It satisfies the recorder interfaces of fetch, rss, classify and ingest.
type Metrics struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	sources       *prometheus.CounterVec
	feeds         *prometheus.CounterVec
	items         *prometheus.CounterVec
	fetchAttempts *prometheus.CounterVec
	promoted      prometheus.Counter
	runDuration   prometheus.Histogram

	mu          sync.RWMutex
	lastRunTime time.Time
	lastError   string
	lastErrorAt time.Time
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Ingestion runs by result.",
		}, []string{"result"}),
		sources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sources_total",
			Help:      "Sources processed by result.",
		}, []string{"result"}),
		feeds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feeds_total",
			Help:      "Feed reads by result and parse path.",
		}, []string{"result", "path"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Items by pipeline stage.",
		}, []string{"stage"}),
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "HTTP fetch attempts by outcome.",
		}, []string{"outcome"}),
		promoted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "categories_promoted_total",
			Help:      "Detected categories promoted to persisted categories.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of ingestion runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
	}

	m.registry.MustRegister(
		m.runs, m.sources, m.feeds, m.items, m.fetchAttempts, m.promoted, m.runDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) FetchAttempt(outcome string) {
	m.fetchAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) FeedResult(result, path string) {
	m.feeds.WithLabelValues(result, path).Inc()
}

func (m *Metrics) CategoryPromoted() {
	m.promoted.Inc()
}

func (m *Metrics) ItemStage(stage string) {
	m.items.WithLabelValues(stage).Inc()
}

func (m *Metrics) SourceResult(result string) {
	m.sources.WithLabelValues(result).Inc()
}

// RunFinished records a completed run; a nil err counts as "ok".
func (m *Metrics) RunFinished(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.runs.WithLabelValues(result).Inc()
	m.runDuration.Observe(d.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRunTime = time.Now()
	if err != nil {
		m.lastError = err.Error()
		m.lastErrorAt = m.lastRunTime
	}
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := map[string]interface{}{
		"last_run_time": formatTime(m.lastRunTime),
		"last_error":    m.lastError,
	}
	if !m.lastErrorAt.IsZero() {
		stats["last_error_time"] = formatTime(m.lastErrorAt)
	}
	return stats
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
