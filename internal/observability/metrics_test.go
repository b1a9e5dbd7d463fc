package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsResilienceCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncReminderOutcome("EMAIL", "sent")
	metrics.IncDeliveryAttempt("email", "failure")
	metrics.ObserveDeliveryDuration("email", 120*time.Millisecond)
	metrics.IncBreakerOpened("billing-api")
	metrics.IncFetchResult("billing-api", "cached")
	metrics.IncJournalBackup("written")
	metrics.IncReconciledArtifact("replayed")

	if got := testutil.ToFloat64(metrics.remindersTotal.WithLabelValues("email", "sent")); got != 1 {
		t.Fatalf("reminders_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.deliveryAttemptsTotal.WithLabelValues("email", "failure")); got != 1 {
		t.Fatalf("delivery_attempts_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.breakerOpenedTotal.WithLabelValues("billing-api")); got != 1 {
		t.Fatalf("circuit_breaker_opened_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.fetchResultsTotal.WithLabelValues("billing-api", "cached")); got != 1 {
		t.Fatalf("fetch_results_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.journalBackupsTotal.WithLabelValues("written")); got != 1 {
		t.Fatalf("journal_backups_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.reconciledArtifactsTotal.WithLabelValues("replayed")); got != 1 {
		t.Fatalf("reconciled_artifacts_total = %v, want 1", got)
	}
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.IncReminderOutcome("email", "sent")
	metrics.IncFetchResult("billing-api", "success")
	metrics.IncJournalBackup("written")
	metrics.IncReconciledArtifact("deleted")
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	_, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
