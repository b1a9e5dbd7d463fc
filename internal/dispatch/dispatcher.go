package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/subwise/resilience/internal/backoff"
	"github.com/subwise/resilience/internal/channel"
	"github.com/subwise/resilience/internal/domain"
	"github.com/subwise/resilience/internal/observability"
	"github.com/subwise/resilience/internal/ratelimit"
	"go.uber.org/zap"
)

const defaultDispatchAttempts = 2

// Dispatcher fans a reminder out to every channel the recipient's preference
// resolves to. Send always runs resolved channels to completion and reports
// the combined outcome; it never returns an error to the caller.
type Dispatcher struct {
	senders     map[domain.Channel]channel.Sender
	policy      backoff.Policy
	rateLimiter ratelimit.RateLimiter
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(senders []channel.Sender, policy backoff.Policy, logger *zap.Logger) (*Dispatcher, error) {
	if len(senders) == 0 {
		return nil, fmt.Errorf("dispatcher requires at least one sender")
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = defaultDispatchAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	byChannel := make(map[domain.Channel]channel.Sender, len(senders))
	for _, sender := range senders {
		if sender == nil {
			return nil, fmt.Errorf("nil sender configured")
		}
		ch := sender.Channel()
		if !ch.IsValid() {
			return nil, fmt.Errorf("sender for unknown channel %q", ch)
		}
		if _, exists := byChannel[ch]; exists {
			return nil, fmt.Errorf("duplicate sender for channel %s", ch)
		}
		byChannel[ch] = sender
	}

	return &Dispatcher{
		senders: byChannel,
		policy:  policy,
		logger:  logger,
		now:     time.Now,
		sleep:   backoff.Sleep,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// SetRateLimiter installs an optional per-channel limiter consulted before
// every provider call.
func (d *Dispatcher) SetRateLimiter(limiter ratelimit.RateLimiter) {
	if d == nil {
		return
	}
	d.rateLimiter = limiter
}

// Send resolves the recipient's preferred channels and attempts each one
// concurrently. Every resolved channel is driven to completion before the
// summary is returned; a failing channel never blocks or cancels another.
func (d *Dispatcher) Send(ctx context.Context, recipient domain.Recipient, msg domain.ReminderMessage) *domain.DeliverySummary {
	if ctx == nil {
		ctx = context.Background()
	}

	summary := domain.NewDeliverySummary()
	log := observability.WithContextLogger(d.logger, ctx)

	if err := recipient.Validate(); err != nil {
		log.Warn("reminder rejected at validation",
			zap.String("userId", recipient.UserID),
			zap.Error(err),
		)
		summary.Errors = append(summary.Errors, err)
		return summary
	}

	targets, excluded := d.resolve(recipient)
	for _, result := range excluded {
		log.Warn("channel excluded during resolution",
			zap.String("userId", recipient.UserID),
			zap.String("channel", strings.ToLower(result.Channel.String())),
			zap.Error(result.Err),
		)
		d.metrics.IncReminderOutcome(result.Channel.String(), "skipped")
		summary.Add(result)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, sender := range targets {
		wg.Add(1)
		go func(sender channel.Sender) {
			defer wg.Done()

			result := d.deliverWithRetry(ctx, sender, recipient, msg)

			mu.Lock()
			summary.Add(result)
			mu.Unlock()
		}(sender)
	}
	wg.Wait()

	return summary
}

// resolve maps the preference to concrete senders. A missing address or
// missing sender excludes the channel with a recorded reason rather than
// silently dropping it.
func (d *Dispatcher) resolve(recipient domain.Recipient) ([]channel.Sender, []domain.DeliveryAttemptResult) {
	var targets []channel.Sender
	var excluded []domain.DeliveryAttemptResult

	for _, ch := range recipient.Preference.Channels() {
		if strings.TrimSpace(recipient.Address(ch)) == "" {
			excluded = append(excluded, domain.DeliveryAttemptResult{
				Channel: ch,
				Err:     &ResolutionError{Channel: ch, Reason: "recipient has no address for this channel"},
			})
			continue
		}

		sender, ok := d.senders[ch]
		if !ok {
			excluded = append(excluded, domain.DeliveryAttemptResult{
				Channel: ch,
				Err:     &ResolutionError{Channel: ch, Reason: "no sender configured for this channel"},
			})
			continue
		}

		targets = append(targets, sender)
	}

	return targets, excluded
}

func (d *Dispatcher) deliverWithRetry(ctx context.Context, sender channel.Sender, recipient domain.Recipient, msg domain.ReminderMessage) domain.DeliveryAttemptResult {
	ch := sender.Channel()
	channelName := strings.ToLower(ch.String())
	log := observability.WithContextLogger(d.logger, ctx)

	var lastErr error
	attempts := 0
	for attempt := 1; ; attempt++ {
		if d.rateLimiter != nil {
			if err := d.rateLimiter.Wait(ctx, channelName); err != nil {
				lastErr = fmt.Errorf("rate limiter wait failed: %w", err)
				break
			}
		}

		attempts = attempt
		sendStart := d.now()
		receipt, err := sender.Send(ctx, recipient, msg)
		d.metrics.ObserveDeliveryDuration(ch.String(), d.now().Sub(sendStart))

		if err == nil {
			providerMessageID := ""
			if receipt != nil {
				providerMessageID = receipt.ProviderMessageID
			}

			d.metrics.IncDeliveryAttempt(ch.String(), "success")
			d.metrics.IncReminderOutcome(ch.String(), "sent")
			log.Info("reminder delivered",
				zap.String("userId", recipient.UserID),
				zap.String("channel", channelName),
				zap.String("kind", msg.Kind().String()),
				zap.Int("attempt", attempt),
				zap.String("providerMessageId", providerMessageID),
			)
			return domain.DeliveryAttemptResult{Channel: ch, Attempts: attempt, Success: true}
		}

		lastErr = err
		d.metrics.IncDeliveryAttempt(ch.String(), "failure")
		log.Warn("delivery attempt failed",
			zap.String("userId", recipient.UserID),
			zap.String("channel", channelName),
			zap.Int("attempt", attempt),
			zap.Bool("transient", channel.IsTransient(err)),
			zap.Error(err),
		)

		delay, ok := d.policy.Next(attempt)
		if !ok {
			break
		}
		if err := d.sleep(ctx, delay); err != nil {
			lastErr = fmt.Errorf("retry wait interrupted: %w", err)
			break
		}
	}

	d.metrics.IncReminderOutcome(ch.String(), "failed")
	log.Error("reminder delivery exhausted",
		zap.String("userId", recipient.UserID),
		zap.String("channel", channelName),
		zap.Int("attempts", attempts),
		zap.Error(lastErr),
	)

	return domain.DeliveryAttemptResult{
		Channel:  ch,
		Attempts: attempts,
		Err:      &ExhaustedError{Channel: ch, Attempts: attempts, Last: lastErr},
	}
}
