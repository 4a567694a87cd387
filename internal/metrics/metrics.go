// Package metrics defines the Prometheus collectors of the bot.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hntldr"

// Cycle names used as the "cycle" label.
const (
	CyclePoll    = "poll"
	CycleRefresh = "refresh"
)

// Summary results used as the "result" label.
const (
	SummaryGenerated = "generated"
	SummaryFallback  = "fallback"
)

// Metrics holds all collectors.
type Metrics struct {
	StoriesPublished *prometheus.CounterVec
	PublishFailures  prometheus.Counter
	Summaries        *prometheus.CounterVec
	MessagesEdited   prometheus.Counter
	EditFailures     prometheus.Counter
	CycleRuns        *prometheus.CounterVec
	CycleDuration    *prometheus.HistogramVec
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StoriesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stories_published_total",
			Help:      "Stories posted to the channel, by category.",
		}, []string{"category"}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Stories that could not be posted.",
		}),
		Summaries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_total",
			Help:      "Summaries produced, by result.",
		}, []string{"result"}),
		MessagesEdited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_edited_total",
			Help:      "Posted messages edited with fresh counts.",
		}),
		EditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edit_failures_total",
			Help:      "Message edits that failed.",
		}),
		CycleRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_runs_total",
			Help:      "Poll and refresh cycle runs, by result.",
		}, []string{"cycle", "result"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of poll and refresh cycles.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"cycle"}),
	}

	reg.MustRegister(
		m.StoriesPublished, m.PublishFailures, m.Summaries,
		m.MessagesEdited, m.EditFailures, m.CycleRuns, m.CycleDuration,
	)
	return m
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the metrics of reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// ObserveCycle records one finished cycle run.
func (m *Metrics) ObserveCycle(cycle string, seconds float64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CycleRuns.WithLabelValues(cycle, result).Inc()
	m.CycleDuration.WithLabelValues(cycle).Observe(seconds)
}
