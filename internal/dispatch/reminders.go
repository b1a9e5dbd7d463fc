package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/subwise/resilience/internal/domain"
)

// SendRenewalReminder renders and dispatches an upcoming-renewal notice.
// Rendering happens once here; retries reuse the same message.
func (d *Dispatcher) SendRenewalReminder(ctx context.Context, recipient domain.Recipient, plan string, daysLeft int) *domain.DeliverySummary {
	body := fmt.Sprintf("Your %s plan renews in %d days. Update your payment details if anything changed.", plan, daysLeft)
	msg, err := domain.NewReminderMessage(domain.ReminderRenewal, "", body, map[string]string{
		"plan":     plan,
		"daysLeft": strconv.Itoa(daysLeft),
	})
	if err != nil {
		return summaryForRenderFailure(err)
	}

	return d.Send(ctx, recipient, msg)
}

// SendShipmentReminder renders and dispatches an out-for-delivery notice.
func (d *Dispatcher) SendShipmentReminder(ctx context.Context, recipient domain.Recipient, trackingCode, carrier string) *domain.DeliverySummary {
	body := fmt.Sprintf("Your order is on its way with %s. Track it with code %s.", carrier, trackingCode)
	msg, err := domain.NewReminderMessage(domain.ReminderDelivery, "", body, map[string]string{
		"trackingCode": trackingCode,
		"carrier":      carrier,
	})
	if err != nil {
		return summaryForRenderFailure(err)
	}

	return d.Send(ctx, recipient, msg)
}

// SendAppointmentReminder renders and dispatches an upcoming-appointment notice.
func (d *Dispatcher) SendAppointmentReminder(ctx context.Context, recipient domain.Recipient, service string, at time.Time) *domain.DeliverySummary {
	body := fmt.Sprintf("Reminder: your %s appointment is scheduled for %s.", service, at.Format("Mon, 2 Jan 2006 at 15:04"))
	msg, err := domain.NewReminderMessage(domain.ReminderAppointment, "", body, map[string]string{
		"service":     service,
		"scheduledAt": at.Format(time.RFC3339),
	})
	if err != nil {
		return summaryForRenderFailure(err)
	}

	return d.Send(ctx, recipient, msg)
}

func summaryForRenderFailure(err error) *domain.DeliverySummary {
	summary := domain.NewDeliverySummary()
	summary.Errors = append(summary.Errors, err)
	return summary
}
