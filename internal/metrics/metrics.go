package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector is what the pipeline stages record into.
type MetricsCollector interface {
	RecordUpload(kind string, duplicate bool)
	RecordAnalysis(status string, duration time.Duration)
	RecordAnalyzerAttempt(outcome string)
	RecordAlert(category string)
	RecordStage(stage string, outcome string, duration time.Duration)
	RecordMergeConflict()
	RecordNotification(status string)
	RecordRun(trigger string, state string)
	RecordTick(users int, failed int, duration time.Duration)
}

type Collector struct {
	uploads          *prometheus.CounterVec
	analyses         *prometheus.CounterVec
	analysisLatency  prometheus.Histogram
	analyzerAttempts *prometheus.CounterVec
	alerts           *prometheus.CounterVec
	stageLatency     *prometheus.HistogramVec
	mergeConflicts   prometheus.Counter
	notifications    *prometheus.CounterVec
	runs             *prometheus.CounterVec
	tickUsers        prometheus.Gauge
	tickFailures     prometheus.Gauge
	tickDuration     prometheus.Histogram
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "health_uploads_total",
			Help: "Upload events received, by artifact kind and duplicate flag",
		}, []string{"kind", "duplicate"}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "health_analyses_total",
			Help: "Analysis results by final status",
		}, []string{"status"}),
		analysisLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "health_analysis_latency_seconds",
			Help:    "Time spent analyzing one artifact including retries",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		analyzerAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "health_analyzer_attempts_total",
			Help: "Individual analyzer calls by outcome",
		}, []string{"outcome"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "health_alerts_total",
			Help: "Alerts raised by finding category",
		}, []string{"category"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "health_stage_duration_seconds",
			Help:    "Pipeline stage latency by stage and outcome",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage", "outcome"}),
		mergeConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "health_summary_merge_conflicts_total",
			Help: "Concurrent daily summary writes that had to be retried",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "health_notifications_total",
			Help: "Notification dispatch decisions by status",
		}, []string{"status"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "health_pipeline_runs_total",
			Help: "Pipeline runs by trigger and terminal state",
		}, []string{"trigger", "state"}),
		tickUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "health_digest_tick_users",
			Help: "Users fanned out to in the last digest tick",
		}),
		tickFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "health_digest_tick_failures",
			Help: "Per-user runs that failed in the last digest tick",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "health_digest_tick_duration_seconds",
			Help:    "Wall time of a full digest tick",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}

	reg.MustRegister(
		c.uploads,
		c.analyses,
		c.analysisLatency,
		c.analyzerAttempts,
		c.alerts,
		c.stageLatency,
		c.mergeConflicts,
		c.notifications,
		c.runs,
		c.tickUsers,
		c.tickFailures,
		c.tickDuration,
	)

	return c
}

func (c *Collector) RecordUpload(kind string, duplicate bool) {
	dup := "false"
	if duplicate {
		dup = "true"
	}
	c.uploads.WithLabelValues(kind, dup).Inc()
}

func (c *Collector) RecordAnalysis(status string, duration time.Duration) {
	c.analyses.WithLabelValues(status).Inc()
	c.analysisLatency.Observe(duration.Seconds())
}

func (c *Collector) RecordAnalyzerAttempt(outcome string) {
	c.analyzerAttempts.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordAlert(category string) {
	c.alerts.WithLabelValues(category).Inc()
}

func (c *Collector) RecordStage(stage string, outcome string, duration time.Duration) {
	c.stageLatency.WithLabelValues(stage, outcome).Observe(duration.Seconds())
}

func (c *Collector) RecordMergeConflict() {
	c.mergeConflicts.Inc()
}

func (c *Collector) RecordNotification(status string) {
	c.notifications.WithLabelValues(status).Inc()
}

func (c *Collector) RecordRun(trigger string, state string) {
	c.runs.WithLabelValues(trigger, state).Inc()
}

func (c *Collector) RecordTick(users int, failed int, duration time.Duration) {
	c.tickUsers.Set(float64(users))
	c.tickFailures.Set(float64(failed))
	c.tickDuration.Observe(duration.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
