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
	emailProviderName   = "mailer"
	defaultEmailTimeout = 10 * time.Second
)

type emailRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

type emailResponse struct {
	ID string `json:"id"`
}

// EmailProvider sends transactional email through an HTTP API. A 2xx response
// without a message id does not count as delivered; the dispatcher retries it.
type EmailProvider struct {
	client   *resty.Client
	endpoint string
	from     string
}

func NewEmailProvider(endpoint, apiKey, from string) (*EmailProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultEmailTimeout)
	client.SetRetryCount(0)
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}

	return NewEmailProviderWithClient(endpoint, from, client)
}

func NewEmailProviderWithClient(endpoint, from string, client *resty.Client) (*EmailProvider, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("email endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid email endpoint: %w", err)
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("email sender address is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultEmailTimeout)
	}
	client.SetRetryCount(0)

	return &EmailProvider{
		client:   client,
		endpoint: trimmedEndpoint,
		from:     strings.TrimSpace(from),
	}, nil
}

func (p *EmailProvider) Channel() domain.Channel { return domain.ChannelEmail }

func (p *EmailProvider) Send(ctx context.Context, recipient domain.Recipient, msg domain.ReminderMessage) (*SendReceipt, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("email provider is not initialized")
	}

	to := recipient.Address(domain.ChannelEmail)
	if to == "" {
		return nil, &DeliveryError{
			Channel:  domain.ChannelEmail,
			Provider: emailProviderName,
			Cause:    fmt.Errorf("recipient has no email address"),
		}
	}

	var parsed emailResponse
	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(emailRequest{
			From:    p.from,
			To:      to,
			Subject: msg.Subject(),
			HTML:    msg.Body(),
		}).
		SetResult(&parsed).
		Post(p.endpoint)
	if err != nil {
		return nil, &DeliveryError{
			Channel:   domain.ChannelEmail,
			Provider:  emailProviderName,
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, &DeliveryError{
			Channel:    domain.ChannelEmail,
			Provider:   emailProviderName,
			StatusCode: statusCode,
			Transient:  isTransientHTTPStatus(statusCode),
			Cause:      fmt.Errorf("provider returned status %d", statusCode),
		}
	}

	// The provider acknowledges accepted mail with a message id; anything
	// else is a malformed acceptance and is retried rather than trusted.
	if strings.TrimSpace(parsed.ID) == "" {
		return nil, &DeliveryError{
			Channel:    domain.ChannelEmail,
			Provider:   emailProviderName,
			StatusCode: statusCode,
			Transient:  true,
			Cause:      fmt.Errorf("provider response is missing message id"),
		}
	}

	return &SendReceipt{
		ProviderMessageID: parsed.ID,
		StatusCode:        statusCode,
	}, nil
}
