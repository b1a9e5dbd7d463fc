package transport

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/subwise/resilience/internal/observability"
)

const CorrelationHeader = "X-Correlation-Id"

// CorrelationMiddleware tags every request with a correlation id, honoring
// one supplied by the caller, and echoes it on the response.
func CorrelationMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		correlationID := c.Get(CorrelationHeader)
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		c.SetUserContext(observability.WithCorrelationID(c.UserContext(), correlationID))
		c.Set(CorrelationHeader, correlationID)

		return c.Next()
	}
}
