package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/subwise/resilience/internal/domain"
)

const (
	whatsAppProviderName   = "whatsapp-gateway"
	defaultWhatsAppTimeout = 10 * time.Second
)

type whatsAppRequest struct {
	Phone string `json:"phone"`
	Text  string `json:"text"`
}

type whatsAppResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
}

// WhatsAppProvider sends messages through a WhatsApp-style gateway. The
// gateway signals acceptance with success=true; a 2xx response saying
// anything else is treated as a failed attempt.
type WhatsAppProvider struct {
	client   *resty.Client
	endpoint string
}

func NewWhatsAppProvider(endpoint, apiKey string) (*WhatsAppProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultWhatsAppTimeout)
	client.SetRetryCount(0)
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}

	return NewWhatsAppProviderWithClient(endpoint, client)
}

func NewWhatsAppProviderWithClient(endpoint string, client *resty.Client) (*WhatsAppProvider, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("whatsapp endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid whatsapp endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWhatsAppTimeout)
	}
	client.SetRetryCount(0)

	return &WhatsAppProvider{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (p *WhatsAppProvider) Channel() domain.Channel { return domain.ChannelWhatsApp }

func (p *WhatsAppProvider) Send(ctx context.Context, recipient domain.Recipient, msg domain.ReminderMessage) (*SendReceipt, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("whatsapp provider is not initialized")
	}

	phone := recipient.Address(domain.ChannelWhatsApp)
	if phone == "" {
		return nil, &DeliveryError{
			Channel:  domain.ChannelWhatsApp,
			Provider: whatsAppProviderName,
			Cause:    fmt.Errorf("recipient has no phone number"),
		}
	}

	var parsed whatsAppResponse
	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(whatsAppRequest{
			Phone: phone,
			Text:  msg.Body(),
		}).
		SetResult(&parsed).
		Post(p.endpoint)
	if err != nil {
		return nil, &DeliveryError{
			Channel:   domain.ChannelWhatsApp,
			Provider:  whatsAppProviderName,
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, &DeliveryError{
			Channel:    domain.ChannelWhatsApp,
			Provider:   whatsAppProviderName,
			StatusCode: statusCode,
			Transient:  isTransientHTTPStatus(statusCode),
			Cause:      fmt.Errorf("provider returned status %d", statusCode),
		}
	}

	if !parsed.Success {
		return nil, &DeliveryError{
			Channel:    domain.ChannelWhatsApp,
			Provider:   whatsAppProviderName,
			StatusCode: statusCode,
			Transient:  true,
			Cause:      fmt.Errorf("provider did not acknowledge the message"),
		}
	}

	return &SendReceipt{
		ProviderMessageID: strings.TrimSpace(parsed.MessageID),
		StatusCode:        statusCode,
	}, nil
}
