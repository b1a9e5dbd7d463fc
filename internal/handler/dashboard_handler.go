package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/subwise/resilience/internal/domain"
	"github.com/subwise/resilience/internal/fetch"
)

type WidgetFetcher interface {
	Fetch(ctx context.Context, req fetch.Request) fetch.Result
}

// DashboardHandler serves account-dashboard widgets from upstream services.
// Widget routes degrade rather than fail: the response is always 200 and the
// status field tells the client which data tier it got.
type DashboardHandler struct {
	fetcher WidgetFetcher
	widgets map[string]fetch.Request
}

func NewDashboardHandler(fetcher WidgetFetcher, widgets map[string]fetch.Request) (*DashboardHandler, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("widget fetcher is required")
	}
	if len(widgets) == 0 {
		return nil, fmt.Errorf("at least one widget is required")
	}
	return &DashboardHandler{fetcher: fetcher, widgets: widgets}, nil
}

func RegisterDashboardRoutes(router fiber.Router, fetcher WidgetFetcher, widgets map[string]fetch.Request) error {
	h, err := NewDashboardHandler(fetcher, widgets)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/dashboard/:widget", h.GetWidget)

	return nil
}

type widgetResponse struct {
	Widget    string          `json:"widget"`
	Data      json.RawMessage `json:"data,omitempty"`
	Status    string          `json:"status"`
	FromCache bool            `json:"fromCache"`
	Reason    string          `json:"reason,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func (h *DashboardHandler) GetWidget(c *fiber.Ctx) error {
	name := strings.ToLower(strings.TrimSpace(c.Params("widget")))

	request, ok := h.widgets[name]
	if !ok {
		return toHTTPError(fmt.Errorf("%w: unknown dashboard widget %q", domain.ErrNotFound, name))
	}

	result := h.fetcher.Fetch(c.UserContext(), request)

	return c.Status(fiber.StatusOK).JSON(widgetResponse{
		Widget:    name,
		Data:      result.Data,
		Status:    string(result.Status),
		FromCache: result.FromCache,
		Reason:    result.Reason,
		Error:     result.Error,
	})
}
