package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/subwise/resilience/internal/backoff"
	"github.com/subwise/resilience/internal/channel"
	"github.com/subwise/resilience/internal/domain"
	"go.uber.org/zap"
)

type fakeSender struct {
	mu      sync.Mutex
	ch      domain.Channel
	calls   int
	sendFn  func(ctx context.Context, call int) (*channel.SendReceipt, error)
	lastMsg domain.ReminderMessage
}

func (f *fakeSender) Channel() domain.Channel { return f.ch }

func (f *fakeSender) Send(ctx context.Context, _ domain.Recipient, msg domain.ReminderMessage) (*channel.SendReceipt, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.lastMsg = msg
	f.mu.Unlock()

	if f.sendFn != nil {
		return f.sendFn(ctx, call)
	}
	return &channel.SendReceipt{ProviderMessageID: "msg-1"}, nil
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func instantPolicy(maxAttempts int) backoff.Policy {
	return backoff.Policy{MaxAttempts: maxAttempts, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func newTestDispatcher(t *testing.T, policy backoff.Policy, senders ...channel.Sender) *Dispatcher {
	t.Helper()

	dispatcher, err := NewDispatcher(senders, policy, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	dispatcher.sleep = func(context.Context, time.Duration) error { return nil }
	return dispatcher
}

func bothRecipient() domain.Recipient {
	return domain.Recipient{
		UserID:     "user-1",
		Email:      "user@example.com",
		Phone:      "+15551234567",
		Preference: domain.PreferenceBoth,
	}
}

func testMessage(t *testing.T) domain.ReminderMessage {
	t.Helper()

	msg, err := domain.NewReminderMessage(domain.ReminderRenewal, "", "renews soon", nil)
	if err != nil {
		t.Fatalf("NewReminderMessage() error = %v", err)
	}
	return msg
}

func TestNewDispatcherValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewDispatcher(nil, instantPolicy(2), zap.NewNop()); err == nil {
		t.Fatal("NewDispatcher() with no senders expected error")
	}

	duplicates := []channel.Sender{
		&fakeSender{ch: domain.ChannelEmail},
		&fakeSender{ch: domain.ChannelEmail},
	}
	if _, err := NewDispatcher(duplicates, instantPolicy(2), zap.NewNop()); err == nil {
		t.Fatal("NewDispatcher() with duplicate channel expected error")
	}
}

func TestSendBothPreferenceReachesBothChannels(t *testing.T) {
	t.Parallel()

	email := &fakeSender{ch: domain.ChannelEmail}
	whatsapp := &fakeSender{ch: domain.ChannelWhatsApp}
	dispatcher := newTestDispatcher(t, instantPolicy(2), email, whatsapp)

	summary := dispatcher.Send(context.Background(), bothRecipient(), testMessage(t))

	if !summary.Succeeded(domain.ChannelEmail) || !summary.Succeeded(domain.ChannelWhatsApp) {
		t.Fatalf("expected both channels to succeed, got %+v", summary.Results)
	}
	if email.callCount() != 1 || whatsapp.callCount() != 1 {
		t.Fatalf("expected one call per channel, got email=%d whatsapp=%d", email.callCount(), whatsapp.callCount())
	}
	if len(summary.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", summary.Errors)
	}
}

func TestSendMissingPhoneFallsBackToEmailOnly(t *testing.T) {
	t.Parallel()

	email := &fakeSender{ch: domain.ChannelEmail}
	whatsapp := &fakeSender{ch: domain.ChannelWhatsApp}
	dispatcher := newTestDispatcher(t, instantPolicy(2), email, whatsapp)

	recipient := bothRecipient()
	recipient.Phone = ""

	summary := dispatcher.Send(context.Background(), recipient, testMessage(t))

	if !summary.Succeeded(domain.ChannelEmail) {
		t.Fatal("expected email delivery to succeed")
	}
	if whatsapp.callCount() != 0 {
		t.Fatalf("whatsapp sender called %d times, want 0", whatsapp.callCount())
	}

	result, ok := summary.Results[domain.ChannelWhatsApp]
	if !ok {
		t.Fatal("expected whatsapp exclusion to be recorded")
	}
	if result.Attempts != 0 || result.Success {
		t.Fatalf("unexpected whatsapp result: %+v", result)
	}

	var resolutionErr *ResolutionError
	if !errors.As(result.Err, &resolutionErr) {
		t.Fatalf("expected ResolutionError, got %v", result.Err)
	}
}

func TestSendWhatsAppOnlyWithoutPhoneIsResolutionFailure(t *testing.T) {
	t.Parallel()

	whatsapp := &fakeSender{ch: domain.ChannelWhatsApp}
	dispatcher := newTestDispatcher(t, instantPolicy(2), whatsapp)

	recipient := domain.Recipient{UserID: "user-1", Preference: domain.PreferenceWhatsApp}

	summary := dispatcher.Send(context.Background(), recipient, testMessage(t))

	if whatsapp.callCount() != 0 {
		t.Fatalf("sender called %d times, want 0", whatsapp.callCount())
	}
	if summary.AnySuccess() {
		t.Fatal("expected no successful delivery")
	}
	if len(summary.Errors) != 1 {
		t.Fatalf("expected one resolution error, got %v", summary.Errors)
	}
}

func TestSendRetriesUpToMaxAttempts(t *testing.T) {
	t.Parallel()

	email := &fakeSender{ch: domain.ChannelEmail}
	email.sendFn = func(context.Context, int) (*channel.SendReceipt, error) {
		return nil, fmt.Errorf("provider down")
	}
	dispatcher := newTestDispatcher(t, instantPolicy(2), email)

	summary := dispatcher.Send(context.Background(), bothRecipient(), testMessage(t))

	if email.callCount() != 2 {
		t.Fatalf("sender called %d times, want 2", email.callCount())
	}

	result := summary.Results[domain.ChannelEmail]
	if result.Success || result.Attempts != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}

	var exhausted *ExhaustedError
	if !errors.As(result.Err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", result.Err)
	}
	if exhausted.Attempts != 2 {
		t.Fatalf("exhausted after %d attempts, want 2", exhausted.Attempts)
	}
}

func TestSendSucceedsOnSecondAttempt(t *testing.T) {
	t.Parallel()

	email := &fakeSender{ch: domain.ChannelEmail}
	email.sendFn = func(_ context.Context, call int) (*channel.SendReceipt, error) {
		if call == 1 {
			return nil, fmt.Errorf("transient failure")
		}
		return &channel.SendReceipt{ProviderMessageID: "msg-2"}, nil
	}
	dispatcher := newTestDispatcher(t, instantPolicy(3), email)

	summary := dispatcher.Send(context.Background(), bothRecipient(), testMessage(t))

	result := summary.Results[domain.ChannelEmail]
	if !result.Success || result.Attempts != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(summary.Errors) != 0 {
		t.Fatalf("expected no summary errors after eventual success, got %v", summary.Errors)
	}
}

func TestSendOneChannelFailureDoesNotAffectOther(t *testing.T) {
	t.Parallel()

	email := &fakeSender{ch: domain.ChannelEmail}
	whatsapp := &fakeSender{ch: domain.ChannelWhatsApp}
	whatsapp.sendFn = func(context.Context, int) (*channel.SendReceipt, error) {
		return nil, fmt.Errorf("gateway unavailable")
	}
	dispatcher := newTestDispatcher(t, instantPolicy(2), email, whatsapp)

	summary := dispatcher.Send(context.Background(), bothRecipient(), testMessage(t))

	if !summary.Succeeded(domain.ChannelEmail) {
		t.Fatal("expected email delivery to succeed despite whatsapp failure")
	}
	if summary.Succeeded(domain.ChannelWhatsApp) {
		t.Fatal("expected whatsapp delivery to fail")
	}
	if !summary.AnySuccess() {
		t.Fatal("expected AnySuccess to be true")
	}
}

func TestSendInvalidRecipientMakesNoProviderCalls(t *testing.T) {
	t.Parallel()

	email := &fakeSender{ch: domain.ChannelEmail}
	dispatcher := newTestDispatcher(t, instantPolicy(2), email)

	recipient := domain.Recipient{Email: "user@example.com", Preference: domain.PreferenceEmail}

	summary := dispatcher.Send(context.Background(), recipient, testMessage(t))

	if email.callCount() != 0 {
		t.Fatalf("sender called %d times, want 0", email.callCount())
	}
	if len(summary.Errors) != 1 || !errors.Is(summary.Errors[0], domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", summary.Errors)
	}
}

func TestSendWaitsPolicyDelayBetweenAttempts(t *testing.T) {
	t.Parallel()

	email := &fakeSender{ch: domain.ChannelEmail}
	email.sendFn = func(context.Context, int) (*channel.SendReceipt, error) {
		return nil, fmt.Errorf("provider down")
	}

	policy := backoff.Policy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 400 * time.Millisecond}
	dispatcher := newTestDispatcher(t, policy, email)

	var mu sync.Mutex
	var delays []time.Duration
	dispatcher.sleep = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return nil
	}

	dispatcher.Send(context.Background(), bothRecipient(), testMessage(t))

	if len(delays) != 2 {
		t.Fatalf("slept %d times, want 2", len(delays))
	}
	if delays[0] != 100*time.Millisecond || delays[1] != 200*time.Millisecond {
		t.Fatalf("unexpected delays: %v", delays)
	}
}

func TestSendStopsRetryingWhenContextCanceled(t *testing.T) {
	t.Parallel()

	email := &fakeSender{ch: domain.ChannelEmail}
	email.sendFn = func(context.Context, int) (*channel.SendReceipt, error) {
		return nil, fmt.Errorf("provider down")
	}
	dispatcher := newTestDispatcher(t, instantPolicy(5), email)
	dispatcher.sleep = func(context.Context, time.Duration) error {
		return context.Canceled
	}

	summary := dispatcher.Send(context.Background(), bothRecipient(), testMessage(t))

	if email.callCount() != 1 {
		t.Fatalf("sender called %d times after cancellation, want 1", email.callCount())
	}

	result := summary.Results[domain.ChannelEmail]
	if result.Success {
		t.Fatal("expected delivery to fail after cancellation")
	}
	if !errors.Is(result.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", result.Err)
	}
}
