package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/subwise/resilience/internal/domain"
)

type ReminderDispatcher interface {
	SendRenewalReminder(ctx context.Context, recipient domain.Recipient, plan string, daysLeft int) *domain.DeliverySummary
	SendShipmentReminder(ctx context.Context, recipient domain.Recipient, trackingCode, carrier string) *domain.DeliverySummary
	SendAppointmentReminder(ctx context.Context, recipient domain.Recipient, service string, at time.Time) *domain.DeliverySummary
}

type ReminderHandler struct {
	dispatcher ReminderDispatcher
}

func NewReminderHandler(dispatcher ReminderDispatcher) (*ReminderHandler, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("reminder dispatcher is required")
	}
	return &ReminderHandler{dispatcher: dispatcher}, nil
}

func RegisterReminderRoutes(router fiber.Router, dispatcher ReminderDispatcher) error {
	h, err := NewReminderHandler(dispatcher)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/reminders/renewal", h.SendRenewal)
	v1.Post("/reminders/shipment", h.SendShipment)
	v1.Post("/reminders/appointment", h.SendAppointment)

	return nil
}

type recipientRequest struct {
	UserID     string `json:"userId"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Preference string `json:"preference"`
}

type renewalReminderRequest struct {
	Recipient recipientRequest `json:"recipient"`
	Plan      string           `json:"plan"`
	DaysLeft  int              `json:"daysLeft"`
}

type shipmentReminderRequest struct {
	Recipient    recipientRequest `json:"recipient"`
	TrackingCode string           `json:"trackingCode"`
	Carrier      string           `json:"carrier"`
}

type appointmentReminderRequest struct {
	Recipient   recipientRequest `json:"recipient"`
	Service     string           `json:"service"`
	ScheduledAt string           `json:"scheduledAt"`
}

type channelResultResponse struct {
	Channel  string `json:"channel"`
	Attempts int    `json:"attempts"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

type deliverySummaryResponse struct {
	AnySuccess bool                    `json:"anySuccess"`
	Channels   []channelResultResponse `json:"channels"`
	Errors     []string                `json:"errors,omitempty"`
}

func (h *ReminderHandler) SendRenewal(c *fiber.Ctx) error {
	var req renewalReminderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	recipient, err := requestToRecipient(req.Recipient)
	if err != nil {
		return toHTTPError(err)
	}
	if strings.TrimSpace(req.Plan) == "" {
		return toHTTPError(fmt.Errorf("%w: plan is required", domain.ErrValidation))
	}
	if req.DaysLeft < 0 {
		return toHTTPError(fmt.Errorf("%w: daysLeft must be >= 0", domain.ErrValidation))
	}

	summary := h.dispatcher.SendRenewalReminder(c.UserContext(), recipient, strings.TrimSpace(req.Plan), req.DaysLeft)
	return c.Status(fiber.StatusOK).JSON(toSummaryResponse(summary))
}

func (h *ReminderHandler) SendShipment(c *fiber.Ctx) error {
	var req shipmentReminderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	recipient, err := requestToRecipient(req.Recipient)
	if err != nil {
		return toHTTPError(err)
	}
	if strings.TrimSpace(req.TrackingCode) == "" {
		return toHTTPError(fmt.Errorf("%w: trackingCode is required", domain.ErrValidation))
	}
	if strings.TrimSpace(req.Carrier) == "" {
		return toHTTPError(fmt.Errorf("%w: carrier is required", domain.ErrValidation))
	}

	summary := h.dispatcher.SendShipmentReminder(c.UserContext(), recipient, strings.TrimSpace(req.TrackingCode), strings.TrimSpace(req.Carrier))
	return c.Status(fiber.StatusOK).JSON(toSummaryResponse(summary))
}

func (h *ReminderHandler) SendAppointment(c *fiber.Ctx) error {
	var req appointmentReminderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	recipient, err := requestToRecipient(req.Recipient)
	if err != nil {
		return toHTTPError(err)
	}
	if strings.TrimSpace(req.Service) == "" {
		return toHTTPError(fmt.Errorf("%w: service is required", domain.ErrValidation))
	}

	at, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ScheduledAt))
	if err != nil {
		return toHTTPError(fmt.Errorf("%w: scheduledAt must be RFC3339", domain.ErrValidation))
	}

	summary := h.dispatcher.SendAppointmentReminder(c.UserContext(), recipient, strings.TrimSpace(req.Service), at)
	return c.Status(fiber.StatusOK).JSON(toSummaryResponse(summary))
}

func requestToRecipient(req recipientRequest) (domain.Recipient, error) {
	preference, err := domain.ParsePreferenceFromString(req.Preference)
	if err != nil {
		return domain.Recipient{}, err
	}

	recipient := domain.Recipient{
		UserID:     strings.TrimSpace(req.UserID),
		Email:      strings.TrimSpace(req.Email),
		Phone:      strings.TrimSpace(req.Phone),
		Preference: preference,
	}
	if err := recipient.Validate(); err != nil {
		return domain.Recipient{}, err
	}

	return recipient, nil
}

// toSummaryResponse flattens the summary for the wire. Partial failure stays
// in-band; the HTTP status is 200 whatever the channels did.
func toSummaryResponse(summary *domain.DeliverySummary) deliverySummaryResponse {
	if summary == nil {
		return deliverySummaryResponse{}
	}

	response := deliverySummaryResponse{
		AnySuccess: summary.AnySuccess(),
		Channels:   make([]channelResultResponse, 0, len(summary.Results)),
	}

	for _, ch := range []domain.Channel{domain.ChannelEmail, domain.ChannelWhatsApp} {
		result, ok := summary.Results[ch]
		if !ok {
			continue
		}
		item := channelResultResponse{
			Channel:  result.Channel.String(),
			Attempts: result.Attempts,
			Success:  result.Success,
		}
		if result.Err != nil {
			item.Error = result.Err.Error()
		}
		response.Channels = append(response.Channels, item)
	}

	for _, err := range summary.Errors {
		response.Errors = append(response.Errors, err.Error())
	}

	return response
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
