package channel

import (
	"context"

	"github.com/subwise/resilience/internal/domain"
)

// Sender is the outbound delivery port for one transport. Implementations
// report non-conforming provider responses as errors so the dispatcher can
// retry them; they never panic.
type Sender interface {
	Channel() domain.Channel
	Send(ctx context.Context, recipient domain.Recipient, msg domain.ReminderMessage) (*SendReceipt, error)
}

// SendReceipt stores provider call metadata for logging and audit.
type SendReceipt struct {
	ProviderMessageID string
	StatusCode        int
}
