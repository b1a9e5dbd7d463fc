package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/subwise/resilience/internal/domain"
	"github.com/subwise/resilience/internal/transport"
	"go.uber.org/zap"
)

type stubDispatcher struct {
	renewalFn     func(ctx context.Context, recipient domain.Recipient, plan string, daysLeft int) *domain.DeliverySummary
	shipmentFn    func(ctx context.Context, recipient domain.Recipient, trackingCode, carrier string) *domain.DeliverySummary
	appointmentFn func(ctx context.Context, recipient domain.Recipient, service string, at time.Time) *domain.DeliverySummary
}

func (s *stubDispatcher) SendRenewalReminder(ctx context.Context, recipient domain.Recipient, plan string, daysLeft int) *domain.DeliverySummary {
	if s.renewalFn != nil {
		return s.renewalFn(ctx, recipient, plan, daysLeft)
	}
	return successSummary()
}

func (s *stubDispatcher) SendShipmentReminder(ctx context.Context, recipient domain.Recipient, trackingCode, carrier string) *domain.DeliverySummary {
	if s.shipmentFn != nil {
		return s.shipmentFn(ctx, recipient, trackingCode, carrier)
	}
	return successSummary()
}

func (s *stubDispatcher) SendAppointmentReminder(ctx context.Context, recipient domain.Recipient, service string, at time.Time) *domain.DeliverySummary {
	if s.appointmentFn != nil {
		return s.appointmentFn(ctx, recipient, service, at)
	}
	return successSummary()
}

func successSummary() *domain.DeliverySummary {
	summary := domain.NewDeliverySummary()
	summary.Add(domain.DeliveryAttemptResult{Channel: domain.ChannelEmail, Attempts: 1, Success: true})
	return summary
}

func newReminderTestApp(t *testing.T, dispatcher ReminderDispatcher) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterReminderRoutes(app, dispatcher); err != nil {
		t.Fatalf("RegisterReminderRoutes() error = %v", err)
	}

	return app
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

func TestReminderIntegration_Renewal(t *testing.T) {
	t.Parallel()

	dispatcher := &stubDispatcher{
		renewalFn: func(_ context.Context, recipient domain.Recipient, plan string, daysLeft int) *domain.DeliverySummary {
			if recipient.UserID != "user-1" || plan != "premium" || daysLeft != 3 {
				t.Errorf("unexpected dispatch args: %s %s %d", recipient.UserID, plan, daysLeft)
			}
			return successSummary()
		},
	}
	app := newReminderTestApp(t, dispatcher)

	body := `{"recipient":{"userId":"user-1","email":"u@example.com","preference":"email"},"plan":"premium","daysLeft":3}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/reminders/renewal", body)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(respBody))
	}

	var parsed deliverySummaryResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if !parsed.AnySuccess {
		t.Fatalf("anySuccess = false, body=%s", string(respBody))
	}
	if len(parsed.Channels) != 1 || parsed.Channels[0].Channel != "EMAIL" || parsed.Channels[0].Attempts != 1 {
		t.Fatalf("unexpected channels: %+v", parsed.Channels)
	}
}

func TestReminderIntegration_RenewalValidation(t *testing.T) {
	t.Parallel()

	app := newReminderTestApp(t, &stubDispatcher{})

	tests := []struct {
		name string
		body string
	}{
		{
			name: "invalid preference",
			body: `{"recipient":{"userId":"user-1","email":"u@example.com","preference":"carrier-pigeon"},"plan":"premium","daysLeft":3}`,
		},
		{
			name: "missing user id",
			body: `{"recipient":{"email":"u@example.com","preference":"email"},"plan":"premium","daysLeft":3}`,
		},
		{
			name: "missing plan",
			body: `{"recipient":{"userId":"user-1","email":"u@example.com","preference":"email"},"daysLeft":3}`,
		},
		{
			name: "negative days left",
			body: `{"recipient":{"userId":"user-1","email":"u@example.com","preference":"email"},"plan":"premium","daysLeft":-1}`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp, _ := performRequest(t, app, http.MethodPost, "/v1/reminders/renewal", tt.body)
			if resp.StatusCode != fiber.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestReminderIntegration_PartialFailureIsInBand(t *testing.T) {
	t.Parallel()

	dispatcher := &stubDispatcher{
		shipmentFn: func(context.Context, domain.Recipient, string, string) *domain.DeliverySummary {
			summary := domain.NewDeliverySummary()
			summary.Add(domain.DeliveryAttemptResult{Channel: domain.ChannelEmail, Attempts: 1, Success: true})
			summary.Add(domain.DeliveryAttemptResult{
				Channel:  domain.ChannelWhatsApp,
				Attempts: 2,
				Err:      errors.New("whatsapp delivery failed after 2 attempts: gateway unavailable"),
			})
			return summary
		},
	}
	app := newReminderTestApp(t, dispatcher)

	body := `{"recipient":{"userId":"user-1","email":"u@example.com","phone":"+15551234567","preference":"both"},"trackingCode":"TRK-1","carrier":"DHL"}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/reminders/shipment", body)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200 with partial failure in-band, body=%s", resp.StatusCode, string(respBody))
	}

	var parsed deliverySummaryResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if !parsed.AnySuccess {
		t.Fatal("anySuccess = false, email delivered")
	}
	if len(parsed.Channels) != 2 {
		t.Fatalf("channels = %+v, want both reported", parsed.Channels)
	}
	if len(parsed.Errors) != 1 {
		t.Fatalf("errors = %v, want the whatsapp failure surfaced", parsed.Errors)
	}
}

func TestReminderIntegration_Appointment(t *testing.T) {
	t.Parallel()

	wantAt, _ := time.Parse(time.RFC3339, "2026-09-14T10:30:00Z")
	dispatcher := &stubDispatcher{
		appointmentFn: func(_ context.Context, _ domain.Recipient, service string, at time.Time) *domain.DeliverySummary {
			if service != "dental checkup" || !at.Equal(wantAt) {
				t.Errorf("unexpected dispatch args: %s %v", service, at)
			}
			return successSummary()
		},
	}
	app := newReminderTestApp(t, dispatcher)

	body := `{"recipient":{"userId":"user-1","email":"u@example.com","preference":"email"},"service":"dental checkup","scheduledAt":"2026-09-14T10:30:00Z"}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/reminders/appointment", body)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(respBody))
	}

	invalidBody := `{"recipient":{"userId":"user-1","email":"u@example.com","preference":"email"},"service":"dental checkup","scheduledAt":"tomorrow"}`
	resp, _ = performRequest(t, app, http.MethodPost, "/v1/reminders/appointment", invalidBody)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for invalid scheduledAt", resp.StatusCode)
	}
}
