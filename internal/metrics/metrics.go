// Package metrics exposes Prometheus collectors for HTTP traffic and
// assessment sessions.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "assessment_active_sessions",
		Help: "Number of assessment sessions currently counting down",
	})

	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_submissions_total",
			Help: "Submitted sessions by trigger",
		},
		[]string{"trigger"},
	)

	Scores = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "assessment_score_percent",
		Help:    "Distribution of submitted scores",
		Buckets: prometheus.LinearBuckets(10, 10, 10),
	})

	NotificationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assessment_notification_failures_total",
		Help: "Results that could not be handed to the persistence collaborator",
	})

	PersistedAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_persisted_attempts_total",
			Help: "Attempts written by the result worker, by outcome",
		},
		[]string{"outcome"},
	)
)

var once sync.Once

// Init registers every collector with the default registry. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			ActiveSessions,
			Submissions,
			Scores,
			NotificationFailures,
			PersistedAttempts,
		)
	})
}

// ObserveSubmission records one submitted session.
func ObserveSubmission(score int, auto bool) {
	trigger := "manual"
	if auto {
		trigger = "timeout"
	}
	Submissions.WithLabelValues(trigger).Inc()
	Scores.Observe(float64(score))
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(time.Since(start).Seconds())
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
