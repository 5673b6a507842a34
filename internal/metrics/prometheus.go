package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportiq_pipeline_runs_total",
			Help: "Total pipeline runs by final decision",
		},
		[]string{"decision"},
	)

	PipelineDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "supportiq_pipeline_duration_seconds",
			Help:    "End-to-end pipeline duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "supportiq_stage_duration_seconds",
			Help:    "Per-stage agent call duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"agent"},
	)

	SolverAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "supportiq_solver_attempts",
			Help:    "Solver attempts consumed per run",
			Buckets: []float64{1, 2, 3},
		},
	)

	SolverConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "supportiq_solver_confidence",
			Help:    "Final solver confidence per run",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	CriticQuality = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "supportiq_critic_quality_score",
			Help:    "Final critic quality score per run",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	QualityWarnings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "supportiq_quality_warnings_total",
			Help: "Runs that exhausted solver attempts without critic approval",
		},
	)

	GhostAlerts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "supportiq_ghost_alerts_total",
			Help: "Ghost alerts dispatched for surge plus deployment correlation",
		},
	)

	SideEffectFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportiq_side_effect_failures_total",
			Help: "Failed workflow or notification side effects by action",
		},
		[]string{"action"},
	)

	TicketsAccepted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportiq_tickets_accepted_total",
			Help: "Tickets accepted at intake by channel",
		},
		[]string{"channel"},
	)
)

func Init() {
	prometheus.MustRegister(PipelineRuns)
	prometheus.MustRegister(PipelineDuration)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(SolverAttempts)
	prometheus.MustRegister(SolverConfidence)
	prometheus.MustRegister(CriticQuality)
	prometheus.MustRegister(QualityWarnings)
	prometheus.MustRegister(GhostAlerts)
	prometheus.MustRegister(SideEffectFailures)
	prometheus.MustRegister(TicketsAccepted)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
