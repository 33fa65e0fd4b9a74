// Package observability holds the Prometheus metrics exported by the ledger
// service and the worker. Metrics are registered on the default registry and
// served by promhttp at the configured metrics path.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pointsledger"

// ═══════════════════════════════════════════════════════════════════════════
// Ledger
// ═══════════════════════════════════════════════════════════════════════════

// PenaltiesApplied counts persisted penalties.
var PenaltiesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "penalties_applied_total",
	Help:      "Penalties applied, by penalty type and actor.",
}, []string{"type", "actor"})

// PointsDeducted sums points removed by penalties.
var PointsDeducted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "points_deducted_total",
	Help:      "Points deducted by penalties, by penalty type.",
}, []string{"type"})

// PenaltiesWaived counts waives that restored points.
var PenaltiesWaived = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "penalties_waived_total",
	Help:      "Penalties waived, by penalty type.",
}, []string{"type"})

// BonusesAwarded counts persisted bonuses. Source is "manual" or "automatic".
var BonusesAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "bonuses_awarded_total",
	Help:      "Bonuses awarded, by bonus type and source.",
}, []string{"type", "source"})

// PointsAwarded sums points added by bonuses.
var PointsAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "points_awarded_total",
	Help:      "Points awarded by bonuses, by bonus type.",
}, []string{"type"})

// OptimisticConflicts counts saves rejected by the version check.
var OptimisticConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "optimistic_conflicts_total",
	Help:      "Student saves rejected because the stored version moved, by operation.",
}, []string{"operation"})

// StudentsAtRisk is set by the detect_at_risk job after each full pass.
var StudentsAtRisk = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "students_at_risk",
	Help:      "Students per risk level as of the last detection run.",
}, []string{"level"})

// ═══════════════════════════════════════════════════════════════════════════
// Scheduler
// ═══════════════════════════════════════════════════════════════════════════

// JobRuns counts job executions by outcome.
var JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "scheduler",
	Name:      "job_runs_total",
	Help:      "Scheduled job runs, by job and status.",
}, []string{"job", "status"})

// JobDuration tracks job run time.
var JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "scheduler",
	Name:      "job_duration_seconds",
	Help:      "Scheduled job duration.",
	Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
}, []string{"job"})

// ═══════════════════════════════════════════════════════════════════════════
// HTTP
// ═══════════════════════════════════════════════════════════════════════════

// HTTPRequests counts API requests. Route is the chi route pattern.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "HTTP requests, by method, route and status code.",
}, []string{"method", "route", "code"})

// HTTPDuration tracks API latency.
var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency, by method and route.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route"})

// ═══════════════════════════════════════════════════════════════════════════
// Infrastructure
// ═══════════════════════════════════════════════════════════════════════════

// CacheRequests counts profile cache lookups. Result is hit, miss, error or
// bypass (breaker open).
var CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "cache",
	Name:      "requests_total",
	Help:      "Student profile cache lookups, by result.",
}, []string{"result"})

// CircuitBreakerState is 0 closed, 1 half-open, 2 open.
var CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "cache",
	Name:      "circuit_breaker_state",
	Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open).",
}, []string{"breaker"})

// EventsPublished counts domain events handed to the bus.
var EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "events",
	Name:      "published_total",
	Help:      "Domain events published, by event type and status.",
}, []string{"event", "status"})

// ─── Helpers ────────────────────────────────────────────────────────────────

// Cache lookup results.
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheError  = "error"
	CacheBypass = "bypass"
)

// Bonus sources.
const (
	SourceManual    = "manual"
	SourceAutomatic = "automatic"
)

// RecordPenalty records one applied penalty.
func RecordPenalty(penaltyType, actor string, deducted int) {
	PenaltiesApplied.WithLabelValues(penaltyType, actor).Inc()
	PointsDeducted.WithLabelValues(penaltyType).Add(float64(deducted))
}

// RecordBonus records one awarded bonus.
func RecordBonus(bonusType, source string, awarded int) {
	BonusesAwarded.WithLabelValues(bonusType, source).Inc()
	PointsAwarded.WithLabelValues(bonusType).Add(float64(awarded))
}

// ObserveJob records a finished job run.
func ObserveJob(job string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	JobRuns.WithLabelValues(job, status).Inc()
	JobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// ObserveHTTP records a served request.
func ObserveHTTP(method, route string, code int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveCircuitBreaker maps a breaker state name onto the gauge.
func ObserveCircuitBreaker(name, state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	CircuitBreakerState.WithLabelValues(name).Set(v)
}

// RecordEvent records a publish attempt.
func RecordEvent(eventType string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	EventsPublished.WithLabelValues(eventType, status).Inc()
}

// SetRiskLevels replaces the at-risk gauge values.
func SetRiskLevels(counts map[string]int) {
	for _, level := range []string{"low", "medium", "high"} {
		StudentsAtRisk.WithLabelValues(level).Set(float64(counts[level]))
	}
}
