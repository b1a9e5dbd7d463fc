package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/subwise/resilience/internal/domain"
)

// DeliveryError classifies a failed transport attempt. It carries the channel
// and provider name so callers can report exactly which leg failed.
type DeliveryError struct {
	Channel    domain.Channel
	Provider   string
	StatusCode int
	Transient  bool
	Cause      error
}

func (e *DeliveryError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 5)
	parts = append(parts, fmt.Sprintf("%s delivery via %s failed", strings.ToLower(e.Channel.String()), e.Provider))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *DeliveryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether a delivery error is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) {
		return deliveryErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}
