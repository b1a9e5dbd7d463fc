package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the dispatcher, fetcher, and
// journal flows. All recording methods are nil-safe so components can run
// without metrics wired (tests, tooling).
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal        *prometheus.CounterVec
	httpRequestDuration      *prometheus.HistogramVec
	remindersTotal           *prometheus.CounterVec
	deliveryAttemptsTotal    *prometheus.CounterVec
	deliveryDuration         *prometheus.HistogramVec
	breakerOpenedTotal       *prometheus.CounterVec
	fetchResultsTotal        *prometheus.CounterVec
	journalBackupsTotal      *prometheus.CounterVec
	reconciledArtifactsTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "resilience",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "resilience",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		remindersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "resilience",
				Name:      "reminders_total",
				Help:      "Reminder channel outcomes per dispatch (sent, failed, resolution_error).",
			},
			[]string{"channel", "outcome"},
		),
		deliveryAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "resilience",
				Name:      "delivery_attempts_total",
				Help:      "Individual provider delivery attempts by channel and result.",
			},
			[]string{"channel", "result"},
		),
		deliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "resilience",
				Name:      "delivery_duration_seconds",
				Help:      "Provider send duration in seconds grouped by channel.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"channel"},
		),
		breakerOpenedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "resilience",
				Name:      "circuit_breaker_opened_total",
				Help:      "Number of times the circuit breaker opened per resource.",
			},
			[]string{"resource"},
		),
		fetchResultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "resilience",
				Name:      "fetch_results_total",
				Help:      "Resilient fetch outcomes by resource and status (success, cached, fallback, error).",
			},
			[]string{"resource", "status"},
		),
		journalBackupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "resilience",
				Name:      "journal_backups_total",
				Help:      "Backup artifacts written by the durable write journal, by outcome.",
			},
			[]string{"outcome"},
		),
		reconciledArtifactsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "resilience",
				Name:      "reconciled_artifacts_total",
				Help:      "Backup artifacts handled by the reconciliation pass, by action (replayed, deleted, purged, error).",
			},
			[]string{"action"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.remindersTotal,
		m.deliveryAttemptsTotal,
		m.deliveryDuration,
		m.breakerOpenedTotal,
		m.fetchResultsTotal,
		m.journalBackupsTotal,
		m.reconciledArtifactsTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncReminderOutcome(channel string, outcome string) {
	if m == nil {
		return
	}
	m.remindersTotal.WithLabelValues(normalizeLabel(channel), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) IncDeliveryAttempt(channel string, result string) {
	if m == nil {
		return
	}
	m.deliveryAttemptsTotal.WithLabelValues(normalizeLabel(channel), normalizeLabel(result)).Inc()
}

func (m *Metrics) ObserveDeliveryDuration(channel string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.deliveryDuration.WithLabelValues(normalizeLabel(channel)).Observe(seconds)
}

func (m *Metrics) IncBreakerOpened(resource string) {
	if m == nil {
		return
	}
	m.breakerOpenedTotal.WithLabelValues(normalizeLabel(resource)).Inc()
}

func (m *Metrics) IncFetchResult(resource string, status string) {
	if m == nil {
		return
	}
	m.fetchResultsTotal.WithLabelValues(normalizeLabel(resource), normalizeLabel(status)).Inc()
}

func (m *Metrics) IncJournalBackup(outcome string) {
	if m == nil {
		return
	}
	m.journalBackupsTotal.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Metrics) IncReconciledArtifact(action string) {
	if m == nil {
		return
	}
	m.reconciledArtifactsTotal.WithLabelValues(normalizeLabel(action)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
